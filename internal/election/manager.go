// Package election runs one election per contested account chain slot. It
// casts this node's votes, tallies the weighted votes of others and
// confirms the candidate that gathers quorum.
package election

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tendermint/lattice/config"
	"github.com/tendermint/lattice/internal/p2p"
	"github.com/tendermint/lattice/libs/log"
	"github.com/tendermint/lattice/libs/service"
	"github.com/tendermint/lattice/types"
)

// EventPublisher is the subset of the event bus the manager needs.
type EventPublisher interface {
	Publish(types.Event)
}

// WeightSource exposes the weight table and thresholds.
type WeightSource interface {
	Self() types.Amount
	MinimalConfirmationWeight() types.Amount
}

type outbound struct {
	msg      types.Message
	strategy p2p.Strategy
}

// Manager owns every active election. All transitions happen under its
// mutex; network sends happen after it is released.
type Manager struct {
	service.BaseService

	logger    log.Logger
	cfg       *config.ElectionConfig
	voter     bool
	key       types.PrivateKey
	weights   WeightSource
	publisher p2p.Publisher
	bus       EventPublisher
	clock     clock.Clock
	metrics   *Metrics

	mtx       sync.Mutex
	elections map[types.ChainKey]*election
	byHash    map[types.Hash]*election
}

// NewManager returns a manager casting votes with key when voter is set.
func NewManager(
	logger log.Logger,
	cfg *config.ElectionConfig,
	voter bool,
	key types.PrivateKey,
	weights WeightSource,
	publisher p2p.Publisher,
	bus EventPublisher,
	clk clock.Clock,
	metrics *Metrics,
) *Manager {
	if metrics == nil {
		metrics = NopMetrics()
	}
	m := &Manager{
		logger:    logger,
		cfg:       cfg,
		voter:     voter,
		key:       key,
		weights:   weights,
		publisher: publisher,
		bus:       bus,
		clock:     clk,
		metrics:   metrics,
		elections: make(map[types.ChainKey]*election),
		byHash:    make(map[types.Hash]*election),
	}
	m.BaseService = *service.NewBaseService(logger, "ElectionManager", m)
	return m
}

// OnStart starts the staling and expiry sweep.
func (m *Manager) OnStart(ctx context.Context) error {
	go m.sweepRoutine(ctx)
	return nil
}

func (m *Manager) OnStop() {}

func (m *Manager) sweepRoutine(ctx context.Context) {
	ticker := m.clock.Ticker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.Quit():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// canVote reports whether this node may cast votes right now.
func (m *Manager) canVote() bool {
	if !m.voter {
		return false
	}
	self := m.weights.Self()
	if self.IsZero() {
		return false
	}

	threshold := m.cfg.MinimalVotingAmount()
	if m.cfg.VotingWeightMode == config.VotingWeightConfirmation {
		threshold = m.weights.MinimalConfirmationWeight()
	}
	return !self.LT(threshold)
}

// Observe starts an election for a validated transaction, or adds it as a
// competing candidate to the election for its chain slot.
func (m *Manager) Observe(ctx context.Context, tx *types.Transaction) {
	m.mtx.Lock()
	out := m.observe(tx)
	m.mtx.Unlock()

	m.send(ctx, out)
}

func (m *Manager) observe(tx *types.Transaction) []outbound {
	hash := tx.Hash()
	if _, ok := m.byHash[hash]; ok {
		return nil
	}

	el, ok := m.elections[tx.Key()]
	if !ok {
		el = newElection(tx, m.clock.Now())
		m.elections[el.key] = el
		m.byHash[hash] = el
		m.metrics.Active.Set(float64(len(m.elections)))

		m.logger.Debug("election started", "key", el.key, "hash", hash)
		m.bus.Publish(types.EventElectionStartedData{Hash: hash, Key: el.key})

		var out []outbound
		if m.canVote() {
			out = append(out, m.cast(el, hash, false))
		}
		return append(out, m.evaluate(el)...)
	}

	el.candidates[hash] = tx
	m.byHash[hash] = el
	m.logger.Debug("competing candidate", "key", el.key, "hash", hash, "leader", el.leader)
	m.bus.Publish(types.EventElectionStartedData{Hash: hash, Key: el.key})
	return m.evaluate(el)
}

// ProcessVote adds a validated vote to its election.
func (m *Manager) ProcessVote(ctx context.Context, vote *types.Vote) {
	m.mtx.Lock()
	out := m.processVote(vote)
	m.mtx.Unlock()

	m.send(ctx, out)
}

func (m *Manager) processVote(vote *types.Vote) []outbound {
	el, ok := m.byHash[vote.BlockHash]
	if !ok {
		m.bus.Publish(types.EventVoteDroppedData{Vote: vote, Reason: types.NoElection})
		return nil
	}
	if !el.addVote(vote) {
		m.bus.Publish(types.EventVoteDroppedData{Vote: vote, Reason: types.Superseded})
		return nil
	}
	return m.evaluate(el)
}

// Agree locks this node in on hash: the final vote is cast for it even if
// quorum has not been observed locally.
func (m *Manager) Agree(ctx context.Context, hash types.Hash) bool {
	m.mtx.Lock()
	el, ok := m.byHash[hash]
	if !ok || el.finalCast {
		m.mtx.Unlock()
		return false
	}

	el.leader = hash
	el.state = Agreed
	var out []outbound
	if m.canVote() {
		out = append(out, m.cast(el, hash, true))
	}
	out = append(out, m.evaluate(el)...)
	m.mtx.Unlock()

	m.send(ctx, out)
	return true
}

// evaluate moves el forward after its candidates or votes changed. Caller
// holds mtx.
func (m *Manager) evaluate(el *election) []outbound {
	var out []outbound

	if leader := el.heaviest(); leader != el.leader {
		m.logger.Debug("election leader changed", "key", el.key, "from", el.leader, "to", leader)
		el.leader = leader
		if el.state != Agreed {
			el.state = Consensed
		}
		if !el.finalCast && m.canVote() {
			out = append(out, m.cast(el, leader, false))
		}
	}

	quorum := m.weights.MinimalConfirmationWeight()
	total, final := el.tally(el.leader)

	if total.Cmp(quorum) >= 0 && el.state != Agreed {
		el.state = Agreed
		if !el.finalCast && m.canVote() {
			out = append(out, m.cast(el, el.leader, true))
			total, final = el.tally(el.leader)
		}
	}

	if !final.IsZero() && final.Cmp(quorum) >= 0 {
		m.confirm(el)
	}
	return out
}

// cast signs a vote for hash, counts it and returns the message to send.
// Caller holds mtx.
func (m *Manager) cast(el *election, hash types.Hash, final bool) outbound {
	var vote *types.Vote
	if final {
		vote = types.NewFinalVote(m.key, hash)
		el.finalCast = true
	} else {
		now := m.clock.Now()
		if el.ownVote != nil && uint64(now.UnixMilli()) <= el.ownVote.Timestamp {
			now = time.UnixMilli(int64(el.ownVote.Timestamp) + 1)
		}
		vote = types.NewVote(m.key, hash, now)
	}
	vote = vote.WithWeight(m.weights.Self())
	el.ownVote = vote
	el.addVote(vote)

	m.metrics.VotesCast.With("final", boolLabel(final)).Add(1)
	m.logger.Debug("vote cast", "key", el.key, "vote", vote)
	m.bus.Publish(types.EventVoteCastData{Vote: vote})

	strategy := p2p.Voters
	if final {
		strategy = p2p.Everyone
	}
	return outbound{msg: types.VoteMessage{Vote: vote}, strategy: strategy}
}

// confirm tears el down and publishes its leader as confirmed. Caller holds
// mtx.
func (m *Manager) confirm(el *election) {
	tx := el.candidates[el.leader]
	votes := el.votesFor(el.leader)
	el.state = Confirmed
	m.remove(el)

	m.metrics.Confirmed.Add(1)
	m.logger.Info("transaction confirmed", "tx", tx, "votes", len(votes))
	m.bus.Publish(types.EventTransactionConfirmedData{Transaction: tx, Votes: votes})
}

func (m *Manager) remove(el *election) {
	delete(m.elections, el.key)
	for hash := range el.candidates {
		delete(m.byHash, hash)
	}
	m.metrics.Active.Set(float64(len(m.elections)))
}

// Sweep rebroadcasts the leading transaction of stale elections and expires
// elections past the timeout.
func (m *Manager) Sweep(ctx context.Context) {
	now := m.clock.Now()
	var out []outbound

	m.mtx.Lock()
	for _, el := range m.elections {
		age := now.Sub(el.startedAt)
		switch {
		case age >= m.cfg.Timeout:
			tx := el.candidates[el.leader]
			el.state = Staled
			m.remove(el)
			m.metrics.Expired.Add(1)
			m.logger.Info("election expired", "key", el.key, "tx", tx)
			m.bus.Publish(types.EventElectionExpiredData{Transaction: tx})

		case age >= m.cfg.StalingAfter && now.Sub(el.lastBroadcast) >= m.cfg.RebroadcastInterval:
			if el.state != Agreed {
				el.state = Staling
			}
			el.lastBroadcast = now
			m.metrics.Rebroadcasts.Add(1)
			out = append(out, outbound{
				msg:      types.TransactionMessage{Transaction: el.candidates[el.leader]},
				strategy: p2p.Voters,
			})
		}
	}
	m.mtx.Unlock()

	m.send(ctx, out)
}

// TransactionSaved drops the elections the ledger has moved past: every
// election of the account at or below the saved height.
func (m *Manager) TransactionSaved(tx *types.Transaction) {
	pk, height := tx.PublicKey(), tx.Height()

	m.mtx.Lock()
	defer m.mtx.Unlock()

	for key, el := range m.elections {
		if key.PublicKey == pk && key.Height <= height {
			m.remove(el)
		}
	}
}

// VoteRequest answers a peer asking for this node's votes on hashes.
func (m *Manager) VoteRequest(ctx context.Context, conn types.ConnectionID, hashes []types.Hash) {
	var replies []*types.Vote

	m.mtx.Lock()
	for _, hash := range hashes {
		if el, ok := m.byHash[hash]; ok && el.ownVote != nil && el.ownVote.BlockHash == hash {
			replies = append(replies, el.ownVote)
		}
	}
	m.mtx.Unlock()

	for _, vote := range replies {
		if err := m.publisher.SendTo(ctx, conn, types.VoteMessage{Vote: vote}); err != nil {
			m.logger.Debug("failed to answer vote request", "conn", conn, "err", err)
			return
		}
	}
}

// IsActive reports whether hash is a candidate of a running election.
func (m *Manager) IsActive(hash types.Hash) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	_, ok := m.byHash[hash]
	return ok
}

// Status returns the state of the election hash belongs to.
func (m *Manager) Status(hash types.Hash) (State, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	el, ok := m.byHash[hash]
	if !ok {
		return 0, false
	}
	return el.state, true
}

// Votes returns the votes currently backing hash.
func (m *Manager) Votes(hash types.Hash) []*types.Vote {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	el, ok := m.byHash[hash]
	if !ok {
		return nil
	}
	return el.votesFor(hash)
}

// Len returns the number of running elections.
func (m *Manager) Len() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.elections)
}

func (m *Manager) send(ctx context.Context, out []outbound) {
	for _, o := range out {
		if err := m.publisher.Publish(ctx, o.msg, o.strategy); err != nil {
			m.logger.Debug("failed to publish", "type", o.msg.MessageType(), "strategy", o.strategy, "err", err)
		}
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
