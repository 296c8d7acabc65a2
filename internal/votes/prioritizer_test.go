package votes

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
	"github.com/tendermint/lattice/internal/test/factory"
	"github.com/tendermint/lattice/libs/log"
	"github.com/tendermint/lattice/types"
)

type recorder struct {
	mtx    sync.Mutex
	events []types.Event
}

func (r *recorder) Publish(e types.Event) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) named(name string) []types.Event {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	var out []types.Event
	for _, e := range r.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeWeights struct {
	mtx      sync.Mutex
	weights  map[types.PublicKey]uint64
	observed map[types.PublicKey]int
}

func (f *fakeWeights) Get(rep types.PublicKey) types.Amount {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return types.NewAmount(f.weights[rep])
}

func (f *fakeWeights) ObserveVote(rep types.PublicKey) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.observed[rep]++
}

type fakeElections struct {
	mtx    sync.Mutex
	active map[types.Hash]bool
}

func (f *fakeElections) IsActive(hash types.Hash) bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.active[hash]
}

func (f *fakeElections) start(hash types.Hash) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.active[hash] = true
}

type handled struct {
	mtx   sync.Mutex
	votes []*types.Vote
}

func (h *handled) handle(_ context.Context, v *types.Vote) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.votes = append(h.votes, v)
}

func (h *handled) len() int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return len(h.votes)
}

type fixture struct {
	p         *Prioritizer
	events    *recorder
	weights   *fakeWeights
	elections *fakeElections
	handled   *handled
}

func setup(t *testing.T, mutate func(*config.VoteConfig)) *fixture {
	t.Helper()

	cfg := config.TestVoteConfig()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.ValidateBasic())

	f := &fixture{
		events: &recorder{},
		weights: &fakeWeights{
			weights:  make(map[types.PublicKey]uint64),
			observed: make(map[types.PublicKey]int),
		},
		elections: &fakeElections{active: make(map[types.Hash]bool)},
		handled:   &handled{},
	}
	f.p = NewPrioritizer(log.NewNopLogger(), cfg, f.events, f.weights, f.elections, f.handled.handle, clock.New(), nil)
	return f
}

func (f *fixture) voter(seed byte, weight uint64) types.PrivateKey {
	key := factory.Key(seed)
	f.weights.weights[key.PublicKey()] = weight
	return key
}

func TestReceiveRejectsZeroWeight(t *testing.T) {
	f := setup(t, nil)
	key := f.voter(1, 0)
	f.elections.start(testHash)

	f.p.Receive(types.NewVote(key, testHash, time.UnixMilli(1000)))

	require.Len(t, f.events.named(types.EventVoteReceived), 1)
	rejected := f.events.named(types.EventVoteRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, types.InvalidVotingWeight, rejected[0].(types.EventVoteRejectedData).Reason)
	assert.Zero(t, f.p.QueueLen())
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	f := setup(t, nil)
	key := f.voter(1, 100)
	f.elections.start(testHash)

	vote := types.NewVote(key, testHash, time.UnixMilli(1000))
	vote.Timestamp++
	f.p.Receive(vote)

	rejected := f.events.named(types.EventVoteRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, types.InvalidSignature, rejected[0].(types.EventVoteRejectedData).Reason)
	assert.Zero(t, f.p.QueueLen())
	assert.Zero(t, f.weights.observed[key.PublicKey()])
}

func TestReceiveDropsDuplicates(t *testing.T) {
	f := setup(t, nil)
	key := f.voter(1, 100)
	f.elections.start(testHash)

	vote := types.NewVote(key, testHash, time.UnixMilli(1000))
	f.p.Receive(vote)
	f.p.Receive(vote)

	assert.Len(t, f.events.named(types.EventVoteReceived), 1)
	assert.Equal(t, 1, f.p.QueueLen())
	assert.Equal(t, 1, f.weights.observed[key.PublicKey()])
}

func TestVotesForRejectedTransactionsAreDropped(t *testing.T) {
	f := setup(t, nil)
	a := f.voter(1, 100)
	b := f.voter(2, 100)

	// buffered before the rejection
	f.p.Receive(types.NewVote(a, testHash, time.UnixMilli(1000)))
	require.Equal(t, 1, f.p.BufferLen())

	f.p.TransactionRejected(testHash)
	f.p.Receive(types.NewVote(b, testHash, time.UnixMilli(1000)))

	dropped := f.events.named(types.EventVoteDropped)
	require.Len(t, dropped, 2)
	for _, e := range dropped {
		assert.Equal(t, types.TransactionDropped, e.(types.EventVoteDroppedData).Reason)
	}
	assert.Zero(t, f.p.BufferLen())
	assert.Zero(t, f.p.QueueLen())
}

func TestRejectionExpires(t *testing.T) {
	defer leaktest.Check(t)()

	f := setup(t, nil)
	clk := clock.NewMock()
	cfg := config.TestVoteConfig()
	f.p = NewPrioritizer(log.NewNopLogger(), cfg, f.events, f.weights, f.elections, f.handled.handle, clk, nil)
	a := f.voter(1, 100)
	b := f.voter(2, 100)
	f.elections.start(testHash)

	f.p.TransactionRejected(testHash)
	f.p.Receive(types.NewVote(a, testHash, time.UnixMilli(1000)))
	require.Len(t, f.events.named(types.EventVoteDropped), 1)
	require.Zero(t, f.p.QueueLen())

	clk.Add(cfg.RejectedTTL)
	f.p.Receive(types.NewVote(b, testHash, time.UnixMilli(1000)))
	assert.Len(t, f.events.named(types.EventVoteDropped), 1)
	assert.Equal(t, 1, f.p.QueueLen())
}

func TestBufferKeepsNewestAndEvicts(t *testing.T) {
	f := setup(t, func(cfg *config.VoteConfig) { cfg.BufferSize = 2 })
	a := f.voter(1, 100)
	b := f.voter(2, 100)
	c := f.voter(3, 100)

	f.p.Receive(types.NewVote(a, testHash, time.UnixMilli(2000)))
	f.p.Receive(types.NewVote(a, testHash, time.UnixMilli(1000)))

	dropped := f.events.named(types.EventVoteDropped)
	require.Len(t, dropped, 1)
	assert.Equal(t, types.Superseded, dropped[0].(types.EventVoteDroppedData).Reason)

	f.p.Receive(types.NewVote(b, testHash, time.UnixMilli(1000)))
	f.p.Receive(types.NewVote(c, testHash, time.UnixMilli(1000)))

	dropped = f.events.named(types.EventVoteDropped)
	require.Len(t, dropped, 2)
	ev := dropped[1].(types.EventVoteDroppedData)
	assert.Equal(t, types.NoElection, ev.Reason)
	assert.Equal(t, a.PublicKey(), ev.Vote.PublicKey)
	assert.Equal(t, 2, f.p.BufferLen())

	f.elections.start(testHash)
	f.p.ElectionStarted(testHash)
	assert.Zero(t, f.p.BufferLen())
	assert.Equal(t, 2, f.p.QueueLen())
}

func TestDrainForwardsWeightedVotes(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := setup(t, nil)
	heavy := f.voter(1, 500)
	light := f.voter(2, 20)

	f.p.Receive(types.NewVote(light, testHash, time.UnixMilli(1000)))
	f.p.Receive(types.NewVote(heavy, testHash, time.UnixMilli(1000)))
	require.Equal(t, 2, f.p.BufferLen())

	f.elections.start(testHash)
	f.p.ElectionStarted(testHash)
	require.NoError(t, f.p.Start(ctx))

	require.Eventually(t, func() bool { return f.handled.len() == 2 }, time.Second, 5*time.Millisecond)

	f.handled.mtx.Lock()
	assert.Equal(t, heavy.PublicKey(), f.handled.votes[0].PublicKey)
	assert.Equal(t, "500", f.handled.votes[0].Weight.String())
	assert.Equal(t, "20", f.handled.votes[1].Weight.String())
	f.handled.mtx.Unlock()
	assert.Len(t, f.events.named(types.EventVoteValidated), 2)

	// votes arriving while running wake the drain loop
	late := f.voter(3, 70)
	f.p.Receive(types.NewVote(late, testHash, time.UnixMilli(1000)))
	require.Eventually(t, func() bool { return f.handled.len() == 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.p.Stop())
	f.p.Wait()
}
