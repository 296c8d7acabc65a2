package guardian

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/lattice/config"
	"github.com/tendermint/lattice/internal/p2p"
	"github.com/tendermint/lattice/internal/test/factory"
	"github.com/tendermint/lattice/libs/log"
	"github.com/tendermint/lattice/types"
)

type trustedSet map[types.PublicKey]bool

func (s trustedSet) IsAboveMinimalRebroadcastWeight(rep types.PublicKey) bool { return s[rep] }

type recorder struct {
	mtx    sync.Mutex
	banned []types.NodeAddress
}

func (r *recorder) Publish(e types.Event) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if ev, ok := e.(types.EventNodeBannedData); ok {
		r.banned = append(r.banned, ev.Address)
	}
}

func (r *recorder) addresses() []types.NodeAddress {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]types.NodeAddress(nil), r.banned...)
}

type network struct {
	peers   *p2p.PeerSet
	trusted trustedSet
}

func newNetwork() *network {
	return &network{peers: p2p.NewPeerSet(nil), trusted: make(trustedSet)}
}

func (n *network) connect(t *testing.T, conn, addr string, seed byte, trusted bool) {
	t.Helper()
	pk := factory.Key(seed).PublicKey()
	n.trusted[pk] = trusted
	require.True(t, n.peers.Connected(types.EventNodeConnectedData{
		Connection: types.ConnectionID(conn),
		Address:    types.NodeAddress(addr),
		PublicKey:  pk,
		Voter:      trusted,
	}))
}

func (n *network) send(conn string, count int) {
	for i := 0; i < count; i++ {
		n.peers.Received(types.ConnectionID(conn), types.VoteRequestMessage{})
	}
}

func newTestGuardian(n *network, bus EventPublisher, clk clock.Clock) *Guardian {
	return NewGuardian(log.TestingLogger(), config.TestGuardianConfig(), n.peers, n.trusted, bus, clk, nil)
}

func TestSweepBansOnlyOutliers(t *testing.T) {
	n := newNetwork()
	n.connect(t, "a", "10.0.0.1:7075", 1, true)
	n.connect(t, "b", "10.0.0.2:7075", 2, true)
	n.connect(t, "c", "10.0.0.3:7075", 3, true)
	n.connect(t, "spam", "10.0.0.9:7075", 9, false)
	n.connect(t, "busy", "10.0.0.8:7075", 8, false)
	n.connect(t, "split-1", "10.0.0.7:7075", 7, false)
	n.connect(t, "split-2", "10.0.0.7:7075", 7, false)

	bus := &recorder{}
	g := newTestGuardian(n, bus, clock.NewMock())
	require.Empty(t, g.Sweep())

	n.send("a", 2)
	n.send("b", 2)
	n.send("c", 3)
	n.send("spam", 21)    // above 2 * 10
	n.send("busy", 20)    // at the limit
	n.send("split-1", 11) // 22 together
	n.send("split-2", 11)

	banned := g.Sweep()
	want := []types.NodeAddress{"10.0.0.7:7075", "10.0.0.9:7075"}
	assert.Equal(t, want, banned)
	assert.Equal(t, want, bus.addresses())

	// deltas start over from the new snapshot
	n.send("a", 2)
	n.send("b", 2)
	n.send("c", 2)
	n.send("busy", 5)
	assert.Empty(t, g.Sweep())
}

func TestSweepSkipsQuietIntervals(t *testing.T) {
	n := newNetwork()
	n.connect(t, "a", "10.0.0.1:7075", 1, true)
	n.connect(t, "spam", "10.0.0.9:7075", 9, false)

	bus := &recorder{}
	g := newTestGuardian(n, bus, clock.NewMock())
	g.Sweep()

	n.send("spam", 1000)
	assert.Empty(t, g.Sweep(), "median of trusted is zero")
	assert.Empty(t, bus.addresses())
}

func TestSweepWithoutTrustedPeers(t *testing.T) {
	n := newNetwork()
	n.connect(t, "spam", "10.0.0.9:7075", 9, false)

	g := newTestGuardian(n, &recorder{}, clock.NewMock())
	n.send("spam", 1000)
	assert.Empty(t, g.Sweep())
}

func TestGuardianRoutine(t *testing.T) {
	defer leaktest.Check(t)()

	n := newNetwork()
	n.connect(t, "a", "10.0.0.1:7075", 1, true)
	n.connect(t, "spam", "10.0.0.9:7075", 9, false)

	bus := &recorder{}
	clk := clock.NewMock()
	g := newTestGuardian(n, bus, clk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, g.Start(ctx))

	n.send("a", 5)
	n.send("spam", 100)

	require.Eventually(t, func() bool {
		clk.Add(config.TestGuardianConfig().Interval)
		return len(bus.addresses()) > 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []types.NodeAddress{"10.0.0.9:7075"}, bus.addresses()[:1])

	require.NoError(t, g.Stop())
	g.Wait()
}
