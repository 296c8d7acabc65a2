package election

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/lattice/config"
	"github.com/tendermint/lattice/internal/p2p"
	"github.com/tendermint/lattice/internal/p2p/mocks"
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
	self, quorum uint64
}

func (f fakeWeights) Self() types.Amount                      { return types.NewAmount(f.self) }
func (f fakeWeights) MinimalConfirmationWeight() types.Amount { return types.NewAmount(f.quorum) }

type sent struct {
	mtx  sync.Mutex
	msgs []types.Message
	to   []p2p.Strategy
}

func (s *sent) record(args mock.Arguments) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.msgs = append(s.msgs, args.Get(1).(types.Message))
	s.to = append(s.to, args.Get(2).(p2p.Strategy))
}

func (s *sent) votes() []*types.Vote {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var out []*types.Vote
	for _, m := range s.msgs {
		if vm, ok := m.(types.VoteMessage); ok {
			out = append(out, vm.Vote)
		}
	}
	return out
}

func (s *sent) transactions() []*types.Transaction {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var out []*types.Transaction
	for _, m := range s.msgs {
		if tm, ok := m.(types.TransactionMessage); ok {
			out = append(out, tm.Transaction)
		}
	}
	return out
}

type harness struct {
	manager   *Manager
	bus       *recorder
	publisher *mocks.Publisher
	sent      *sent
	clock     *clock.Mock
	key       types.PrivateKey
}

func newHarness(t *testing.T, voter bool, weights fakeWeights, mutate func(*config.ElectionConfig)) *harness {
	t.Helper()

	cfg := config.TestElectionConfig()
	if mutate != nil {
		mutate(cfg)
	}
	clk := clock.NewMock()
	clk.Set(time.UnixMilli(1600000000000))

	h := &harness{
		bus:       &recorder{},
		publisher: mocks.NewPublisher(t),
		sent:      &sent{},
		clock:     clk,
		key:       factory.Key(99),
	}
	h.manager = NewManager(log.TestingLogger(), cfg, voter, h.key, weights, h.publisher, h.bus, clk, nil)
	return h
}

func (h *harness) expectPublish() {
	h.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Run(h.sent.record).Return(nil)
}

// competing returns two different sends from the same account slot.
func competing() (*types.Transaction, *types.Transaction) {
	acc := factory.NewAccount(1)
	acc.Genesis(1000, acc.PublicKey())
	fork := acc.Clone()
	return acc.Send(factory.Key(2).PublicKey(), 10), fork.Send(factory.Key(3).PublicKey(), 20)
}

func TestObserveCastsVoteToVoters(t *testing.T) {
	h := newHarness(t, true, fakeWeights{self: 10, quorum: 100}, nil)
	h.expectPublish()
	tx, _ := competing()

	h.manager.Observe(context.Background(), tx)

	require.True(t, h.manager.IsActive(tx.Hash()))
	state, ok := h.manager.Status(tx.Hash())
	require.True(t, ok)
	assert.Equal(t, Observed, state)

	require.Len(t, h.bus.named(types.EventElectionStarted), 1)
	require.Len(t, h.bus.named(types.EventVoteCast), 1)

	votes := h.sent.votes()
	require.Len(t, votes, 1)
	assert.Equal(t, h.key.PublicKey(), votes[0].PublicKey)
	assert.Equal(t, tx.Hash(), votes[0].BlockHash)
	assert.False(t, votes[0].IsFinal())
	assert.True(t, votes[0].Verify())
	assert.Equal(t, []p2p.Strategy{p2p.Voters}, h.sent.to)

	// observing the same transaction again is a no-op
	h.manager.Observe(context.Background(), tx)
	assert.Len(t, h.bus.named(types.EventElectionStarted), 1)
	assert.Equal(t, 1, h.manager.Len())
}

func TestNodesThatCannotVoteOnlyTrack(t *testing.T) {
	testCases := []struct {
		name    string
		voter   bool
		weights fakeWeights
		mutate  func(*config.ElectionConfig)
	}{
		{"not a voter", false, fakeWeights{self: 10, quorum: 100}, nil},
		{"no weight", true, fakeWeights{self: 0, quorum: 100}, nil},
		{"below fixed minimum", true, fakeWeights{self: 10, quorum: 100}, func(c *config.ElectionConfig) {
			c.MinimalVotingWeight = "11"
		}},
		{"below confirmation weight", true, fakeWeights{self: 99, quorum: 100}, func(c *config.ElectionConfig) {
			c.VotingWeightMode = config.VotingWeightConfirmation
		}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			// the mock fails the test on any Publish call
			h := newHarness(t, tc.voter, tc.weights, tc.mutate)
			tx, _ := competing()

			h.manager.Observe(context.Background(), tx)
			h.manager.ProcessVote(context.Background(), factory.Vote(factory.Key(5), tx, h.clock.Now(), 200))

			assert.Empty(t, h.bus.named(types.EventVoteCast))
			state, ok := h.manager.Status(tx.Hash())
			require.True(t, ok)
			assert.Equal(t, Agreed, state)
		})
	}
}

func TestConfirmationNeedsFinalQuorum(t *testing.T) {
	h := newHarness(t, false, fakeWeights{quorum: 100}, nil)
	tx, _ := competing()
	ctx := context.Background()

	h.manager.Observe(ctx, tx)

	h.manager.ProcessVote(ctx, factory.Vote(factory.Key(5), tx, h.clock.Now(), 60))
	h.manager.ProcessVote(ctx, factory.FinalVote(factory.Key(6), tx, 50))
	require.True(t, h.manager.IsActive(tx.Hash()), "non-final weight does not confirm")

	h.manager.ProcessVote(ctx, factory.FinalVote(factory.Key(5), tx, 60))
	require.False(t, h.manager.IsActive(tx.Hash()))

	confirmed := h.bus.named(types.EventTransactionConfirmed)
	require.Len(t, confirmed, 1)
	data := confirmed[0].(types.EventTransactionConfirmedData)
	assert.Equal(t, tx.Hash(), data.Transaction.Hash())
	require.Len(t, data.Votes, 2)
	for _, v := range data.Votes {
		assert.True(t, v.IsFinal())
	}

	// late votes find no election
	h.manager.ProcessVote(ctx, factory.FinalVote(factory.Key(7), tx, 10))
	dropped := h.bus.named(types.EventVoteDropped)
	require.Len(t, dropped, 1)
	assert.Equal(t, types.NoElection, dropped[0].(types.EventVoteDroppedData).Reason)
}

func TestQuorumTriggersSingleFinalVote(t *testing.T) {
	h := newHarness(t, true, fakeWeights{self: 30, quorum: 100}, nil)
	h.expectPublish()
	tx, _ := competing()
	ctx := context.Background()
	rep := factory.Key(5)

	h.manager.Observe(ctx, tx)
	h.manager.ProcessVote(ctx, factory.Vote(rep, tx, h.clock.Now(), 80))

	state, ok := h.manager.Status(tx.Hash())
	require.True(t, ok)
	assert.Equal(t, Agreed, state)

	votes := h.sent.votes()
	require.Len(t, votes, 2)
	assert.False(t, votes[0].IsFinal())
	assert.True(t, votes[1].IsFinal())
	assert.Equal(t, []p2p.Strategy{p2p.Voters, p2p.Everyone}, h.sent.to)

	// more weight does not produce another final vote
	h.manager.ProcessVote(ctx, factory.Vote(factory.Key(6), tx, h.clock.Now(), 10))
	assert.Len(t, h.sent.votes(), 2)

	h.manager.ProcessVote(ctx, factory.FinalVote(rep, tx, 80))
	assert.False(t, h.manager.IsActive(tx.Hash()))
	assert.Len(t, h.bus.named(types.EventTransactionConfirmed), 1)
}

func TestAgree(t *testing.T) {
	h := newHarness(t, true, fakeWeights{self: 30, quorum: 100}, nil)
	h.expectPublish()
	tx, other := competing()
	ctx := context.Background()

	h.manager.Observe(ctx, tx)
	h.manager.Observe(ctx, other)

	require.True(t, h.manager.Agree(ctx, other.Hash()))
	require.False(t, h.manager.Agree(ctx, other.Hash()), "final vote is cast once")
	require.False(t, h.manager.Agree(ctx, types.Hash{1}))

	votes := h.sent.votes()
	require.Len(t, votes, 2)
	assert.True(t, votes[1].IsFinal())
	assert.Equal(t, other.Hash(), votes[1].BlockHash)
}

func TestHeavierCandidateTakesTheLead(t *testing.T) {
	h := newHarness(t, true, fakeWeights{self: 10, quorum: 1000}, nil)
	h.expectPublish()
	tx, other := competing()
	ctx := context.Background()

	h.manager.Observe(ctx, tx)
	h.manager.Observe(ctx, other)
	require.Len(t, h.bus.named(types.EventElectionStarted), 2)
	require.Equal(t, 1, h.manager.Len())

	h.manager.ProcessVote(ctx, factory.Vote(factory.Key(5), other, h.clock.Now(), 50))

	state, _ := h.manager.Status(tx.Hash())
	assert.Equal(t, Consensed, state)

	votes := h.sent.votes()
	require.Len(t, votes, 2)
	assert.Equal(t, tx.Hash(), votes[0].BlockHash)
	assert.Equal(t, other.Hash(), votes[1].BlockHash)
	assert.Greater(t, votes[1].Timestamp, votes[0].Timestamp, "re-vote replaces the earlier one")

	backing := h.manager.Votes(other.Hash())
	require.Len(t, backing, 2)
	assert.Empty(t, h.manager.Votes(tx.Hash()))
}

func TestOlderVoteIsSuperseded(t *testing.T) {
	h := newHarness(t, false, fakeWeights{quorum: 1000}, nil)
	tx, _ := competing()
	ctx := context.Background()
	rep := factory.Key(5)
	now := h.clock.Now()

	h.manager.Observe(ctx, tx)
	h.manager.ProcessVote(ctx, factory.Vote(rep, tx, now, 10))
	h.manager.ProcessVote(ctx, factory.Vote(rep, tx, now.Add(-time.Second), 10))

	dropped := h.bus.named(types.EventVoteDropped)
	require.Len(t, dropped, 1)
	assert.Equal(t, types.Superseded, dropped[0].(types.EventVoteDroppedData).Reason)
}

func TestSweepRebroadcastsAndExpires(t *testing.T) {
	h := newHarness(t, false, fakeWeights{quorum: 1000}, nil)
	h.expectPublish()
	tx, _ := competing()
	ctx := context.Background()
	cfg := config.TestElectionConfig()

	h.manager.Observe(ctx, tx)

	h.manager.Sweep(ctx)
	assert.Empty(t, h.sent.msgs)

	h.clock.Add(cfg.StalingAfter)
	h.manager.Sweep(ctx)
	h.manager.Sweep(ctx)
	require.Len(t, h.sent.msgs, 1, "rebroadcast at most once per interval")
	assert.Equal(t, types.TransactionMessage{Transaction: tx}, h.sent.msgs[0])
	assert.Equal(t, p2p.Voters, h.sent.to[0])

	state, _ := h.manager.Status(tx.Hash())
	assert.Equal(t, Staling, state)

	h.clock.Add(cfg.RebroadcastInterval)
	h.manager.Sweep(ctx)
	require.Len(t, h.sent.msgs, 2)

	h.clock.Add(cfg.Timeout)
	h.manager.Sweep(ctx)
	assert.False(t, h.manager.IsActive(tx.Hash()))
	expired := h.bus.named(types.EventElectionExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, tx, expired[0].(types.EventElectionExpiredData).Transaction)
}

func TestTransactionSavedRemovesElections(t *testing.T) {
	h := newHarness(t, false, fakeWeights{quorum: 1000}, nil)
	ctx := context.Background()

	acc := factory.NewAccount(1)
	acc.Genesis(1000, acc.PublicKey())
	first := acc.Send(factory.Key(2).PublicKey(), 1)
	second := acc.Send(factory.Key(2).PublicKey(), 1)
	third := acc.Send(factory.Key(2).PublicKey(), 1)

	for _, tx := range []*types.Transaction{first, second, third} {
		h.manager.Observe(ctx, tx)
	}
	require.Equal(t, 3, h.manager.Len())

	h.manager.TransactionSaved(second)
	assert.False(t, h.manager.IsActive(first.Hash()))
	assert.False(t, h.manager.IsActive(second.Hash()))
	assert.True(t, h.manager.IsActive(third.Hash()))
}

func TestVoteRequestRepliesWithOwnVote(t *testing.T) {
	h := newHarness(t, true, fakeWeights{self: 10, quorum: 1000}, nil)
	h.expectPublish()
	tx, _ := competing()
	ctx := context.Background()

	h.manager.Observe(ctx, tx)
	own := h.sent.votes()[0]

	h.publisher.On("SendTo", mock.Anything, types.ConnectionID("c1"), types.VoteMessage{Vote: own}).Return(nil).Once()
	h.manager.VoteRequest(ctx, "c1", []types.Hash{tx.Hash(), {7}})
	h.publisher.AssertNumberOfCalls(t, "SendTo", 1)
}

func TestSweepRoutine(t *testing.T) {
	defer leaktest.Check(t)()

	h := newHarness(t, false, fakeWeights{quorum: 1000}, nil)
	h.expectPublish()
	tx, _ := competing()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.manager.Observe(ctx, tx)
	require.NoError(t, h.manager.Start(ctx))

	cfg := config.TestElectionConfig()
	require.Eventually(t, func() bool {
		h.clock.Add(cfg.SweepInterval)
		return !h.manager.IsActive(tx.Hash())
	}, time.Second, 5*time.Millisecond)

	// the stale election was rebroadcast before it expired
	rebroadcasts := h.sent.transactions()
	require.NotEmpty(t, rebroadcasts)
	assert.Equal(t, tx.Hash(), rebroadcasts[0].Hash())
	assert.Len(t, h.bus.named(types.EventElectionExpired), 1)

	h.manager.Stop()
	h.manager.Wait()
}
