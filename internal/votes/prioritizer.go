// Package votes admits votes received from the network. It drops
// duplicates, rejects votes without weight or with bad signatures, holds
// votes that arrive before their election and feeds the rest, heaviest first,
// to the election manager.
package votes

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/tendermint/lattice/config"
	"github.com/tendermint/lattice/internal/libs/cache"
	"github.com/tendermint/lattice/libs/log"
	"github.com/tendermint/lattice/libs/service"
	"github.com/tendermint/lattice/types"
)

// EventPublisher is the subset of the event bus the prioritizer needs.
type EventPublisher interface {
	Publish(types.Event)
}

// WeightSource resolves the weight of a voter.
type WeightSource interface {
	Get(rep types.PublicKey) types.Amount
	ObserveVote(rep types.PublicKey)
}

// ElectionTracker reports whether a transaction has an active election.
type ElectionTracker interface {
	IsActive(hash types.Hash) bool
}

// Handler receives validated votes from the drain loop.
type Handler func(ctx context.Context, vote *types.Vote)

type bufferKey struct {
	hash  types.Hash
	voter types.PublicKey
}

// Prioritizer is the admission stage for network votes.
type Prioritizer struct {
	service.BaseService

	logger    log.Logger
	cfg       *config.VoteConfig
	bus       EventPublisher
	weights   WeightSource
	elections ElectionTracker
	handler   Handler
	clock     clock.Clock
	metrics   *Metrics

	seen     *cache.Seen[types.Signature]
	rejected *cache.Seen[types.Hash]
	queue    *Queue

	// bufMtx guards buffer and byHash, and orders buffering against
	// ElectionStarted flushes.
	bufMtx sync.Mutex
	buffer *cache.Bounded[bufferKey, *types.Vote]
	byHash map[types.Hash]map[types.PublicKey]struct{}
}

// NewPrioritizer returns a prioritizer passing drained votes to handler.
// Dedup and rejection entries expire lazily against clk, so a prioritizer
// starts no goroutines of its own and may be created per node or per test.
func NewPrioritizer(
	logger log.Logger,
	cfg *config.VoteConfig,
	bus EventPublisher,
	weights WeightSource,
	elections ElectionTracker,
	handler Handler,
	clk clock.Clock,
	metrics *Metrics,
) *Prioritizer {
	if metrics == nil {
		metrics = NopMetrics()
	}
	p := &Prioritizer{
		logger:    logger,
		cfg:       cfg,
		bus:       bus,
		weights:   weights,
		elections: elections,
		handler:   handler,
		clock:     clk,
		metrics:   metrics,
		seen:      cache.NewSeen[types.Signature](cfg.DedupCacheSize, cfg.DedupTTL, clk),
		rejected:  cache.NewSeen[types.Hash](cfg.RejectedCacheSize, cfg.RejectedTTL, clk),
		queue:     NewQueue(cfg.QueueMaxSize),
		buffer:    cache.NewBounded[bufferKey, *types.Vote](cfg.BufferSize),
		byHash:    make(map[types.Hash]map[types.PublicKey]struct{}),
	}
	p.BaseService = *service.NewBaseService(logger, "VotePrioritizer", p)
	return p
}

// OnStart starts the drain loop.
func (p *Prioritizer) OnStart(ctx context.Context) error {
	go p.drainRoutine(ctx)
	return nil
}

func (p *Prioritizer) OnStop() {}

// Receive admits a vote received from the network.
func (p *Prioritizer) Receive(vote *types.Vote) {
	if p.seen.Has(vote.Signature) {
		return
	}
	p.metrics.Received.Add(1)
	p.bus.Publish(types.EventVoteReceivedData{Vote: vote})

	weight := p.weights.Get(vote.PublicKey)
	if weight.IsZero() {
		p.reject(vote, types.InvalidVotingWeight)
		return
	}
	if !vote.Verify() {
		p.reject(vote, types.InvalidSignature)
		return
	}
	// only verified signatures are remembered
	if p.seen.Push(vote.Signature) {
		return
	}
	vote = vote.WithWeight(weight)
	p.weights.ObserveVote(vote.PublicKey)

	if p.rejected.Has(vote.BlockHash) {
		p.drop(vote, types.TransactionDropped)
		return
	}

	p.bufMtx.Lock()
	defer p.bufMtx.Unlock()

	if !p.elections.IsActive(vote.BlockHash) {
		p.bufferVote(vote)
		return
	}
	p.enqueue(vote)
}

// ElectionStarted moves every buffered vote for hash into the queue.
func (p *Prioritizer) ElectionStarted(hash types.Hash) {
	p.bufMtx.Lock()
	defer p.bufMtx.Unlock()

	for _, vote := range p.takeBuffered(hash) {
		p.enqueue(vote)
	}
}

// TransactionRejected remembers hash so later votes for it are dropped, and
// drops the votes already buffered for it.
func (p *Prioritizer) TransactionRejected(hash types.Hash) {
	p.rejected.Push(hash)

	p.bufMtx.Lock()
	defer p.bufMtx.Unlock()

	for _, vote := range p.takeBuffered(hash) {
		p.drop(vote, types.TransactionDropped)
	}
}

// MarkSeen records a vote this node signed itself, so the copies peers echo
// back are ignored.
func (p *Prioritizer) MarkSeen(vote *types.Vote) {
	p.seen.Push(vote.Signature)
}

// QueueLen returns the number of votes waiting to be drained.
func (p *Prioritizer) QueueLen() int { return p.queue.Len() }

// BufferLen returns the number of votes waiting for an election.
func (p *Prioritizer) BufferLen() int {
	p.bufMtx.Lock()
	defer p.bufMtx.Unlock()
	return p.buffer.Len()
}

// bufferVote keeps the newest vote per voter and transaction. Caller holds
// bufMtx.
func (p *Prioritizer) bufferVote(vote *types.Vote) {
	key := bufferKey{hash: vote.BlockHash, voter: vote.PublicKey}
	if existing, ok := p.buffer.Get(key); ok && !vote.NewerThan(existing) {
		p.drop(vote, types.Superseded)
		return
	}

	evictedKey, evicted, ok := p.buffer.Put(key, vote)
	p.index(key)
	if ok {
		p.unindex(evictedKey)
		p.drop(evicted, types.NoElection)
	}
	p.metrics.Buffered.Set(float64(p.buffer.Len()))
}

func (p *Prioritizer) index(key bufferKey) {
	voters, ok := p.byHash[key.hash]
	if !ok {
		voters = make(map[types.PublicKey]struct{})
		p.byHash[key.hash] = voters
	}
	voters[key.voter] = struct{}{}
}

func (p *Prioritizer) unindex(key bufferKey) {
	voters := p.byHash[key.hash]
	delete(voters, key.voter)
	if len(voters) == 0 {
		delete(p.byHash, key.hash)
	}
}

// takeBuffered removes and returns the buffered votes for hash. Caller holds
// bufMtx.
func (p *Prioritizer) takeBuffered(hash types.Hash) []*types.Vote {
	voters := p.byHash[hash]
	if len(voters) == 0 {
		return nil
	}
	delete(p.byHash, hash)

	out := make([]*types.Vote, 0, len(voters))
	for voter := range voters {
		key := bufferKey{hash: hash, voter: voter}
		if vote, ok := p.buffer.Get(key); ok {
			out = append(out, vote)
			p.buffer.Remove(key)
		}
	}
	p.metrics.Buffered.Set(float64(p.buffer.Len()))
	return out
}

func (p *Prioritizer) enqueue(vote *types.Vote) {
	if dropped, reason := p.queue.Add(vote); dropped != nil {
		p.drop(dropped, reason)
	}
	p.metrics.QueueSize.Set(float64(p.queue.Len()))
}

func (p *Prioritizer) reject(vote *types.Vote, reason types.VoteRejectionReason) {
	p.metrics.Rejected.With("reason", string(reason)).Add(1)
	p.logger.Debug("vote rejected", "vote", vote, "reason", reason)
	p.bus.Publish(types.EventVoteRejectedData{Vote: vote, Reason: reason})
}

func (p *Prioritizer) drop(vote *types.Vote, reason types.VoteDropReason) {
	p.metrics.Dropped.With("reason", string(reason)).Add(1)
	p.logger.Debug("vote dropped", "vote", vote, "reason", reason)
	p.bus.Publish(types.EventVoteDroppedData{Vote: vote, Reason: reason})
}

func (p *Prioritizer) drainRoutine(ctx context.Context) {
	for {
		vote := p.queue.Poll()
		if vote == nil {
			timer := p.clock.Timer(p.cfg.DrainInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-p.Quit():
				timer.Stop()
				return
			case <-p.queue.Notify():
			case <-timer.C:
			}
			timer.Stop()
			continue
		}

		p.metrics.QueueSize.Set(float64(p.queue.Len()))
		p.bus.Publish(types.EventVoteValidatedData{Vote: vote})
		p.handler(ctx, vote)
	}
}
