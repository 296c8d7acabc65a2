package p2p

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/lattice/libs/log"
	"github.com/tendermint/lattice/types"
)

func connect(ps *PeerSet, conn, addr string, voter bool) bool {
	return ps.Connected(types.EventNodeConnectedData{
		Connection: types.ConnectionID(conn),
		Address:    types.NodeAddress(addr),
		Voter:      voter,
	})
}

func TestPeerSetCountsAndSelects(t *testing.T) {
	ps := NewPeerSet(nil)
	require.True(t, connect(ps, "c1", "10.0.0.1", true))
	require.True(t, connect(ps, "c2", "10.0.0.2", false))
	require.True(t, connect(ps, "c3", "10.0.0.3", true))

	msg := types.VoteRequestMessage{}
	assert.True(t, ps.Received("c1", msg))
	assert.True(t, ps.Received("c1", msg))
	assert.True(t, ps.Received("c2", msg))
	assert.False(t, ps.Received("unknown", msg))

	snap := ps.Snapshot()
	assert.EqualValues(t, 2, snap["c1"].Messages)
	assert.EqualValues(t, 1, snap["c2"].Messages)
	assert.EqualValues(t, 0, snap["c3"].Messages)
	assert.True(t, snap["c1"].Voter)

	assert.Equal(t, []types.ConnectionID{"c1", "c2", "c3"}, ps.Select(Everyone))
	assert.Equal(t, []types.ConnectionID{"c1", "c3"}, ps.Select(Voters))
	assert.Equal(t, []types.ConnectionID{"c3"}, ps.Select(Voters, "c1"))

	ps.Disconnected("c2")
	assert.Equal(t, 2, ps.Len())
	assert.False(t, ps.Has("c2"))
}

func TestPeerSetBan(t *testing.T) {
	ps := NewPeerSet(nil)
	require.True(t, connect(ps, "c1", "10.0.0.1", false))
	require.True(t, connect(ps, "c2", "10.0.0.1", false))
	require.True(t, connect(ps, "c3", "10.0.0.2", true))

	dropped := ps.Ban("10.0.0.1")
	assert.Equal(t, []types.ConnectionID{"c1", "c2"}, dropped)
	assert.True(t, ps.IsBanned("10.0.0.1"))
	assert.False(t, ps.IsBanned("10.0.0.2"))

	assert.False(t, ps.Received("c1", types.VoteRequestMessage{}))
	assert.False(t, connect(ps, "c4", "10.0.0.1", true))
	assert.Equal(t, []types.ConnectionID{"c3"}, ps.Select(Everyone))
}

func TestRouterPublish(t *testing.T) {
	ctx := context.Background()
	ps := NewPeerSet(nil)
	require.True(t, connect(ps, "c1", "10.0.0.1", true))
	require.True(t, connect(ps, "c2", "10.0.0.2", false))
	require.True(t, connect(ps, "c3", "10.0.0.3", true))

	var delivered []Envelope
	transport := NewMemoryTransport(func(env Envelope) { delivered = append(delivered, env) })
	router := NewRouter(log.NewNopLogger(), ps, transport, nil)

	msg := types.VoteRequestMessage{Hashes: []types.Hash{{1}}}
	require.NoError(t, router.Publish(ctx, msg, Voters, "c3"))
	require.NoError(t, router.Publish(ctx, msg, Everyone))

	sent := transport.Drain()
	require.Len(t, sent, 4)
	assert.Equal(t, sent, delivered)
	assert.Equal(t, types.ConnectionID("c1"), sent[0].To)
	assert.Empty(t, transport.Drain())

	require.NoError(t, router.SendTo(ctx, "c2", msg))
	require.ErrorIs(t, router.SendTo(ctx, "c9", msg), ErrUnknownConnection)
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "EVERYONE", Everyone.String())
	assert.Equal(t, "VOTERS", Voters.String())
	assert.Equal(t, "Strategy(7)", Strategy(7).String())
}
