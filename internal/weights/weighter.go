// Package weights tracks the voting weight delegated to each representative
// and derives the confirmation and rebroadcast thresholds from the weight of
// the representatives currently online.
package weights

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tendermint/lattice/config"
	"github.com/tendermint/lattice/libs/log"
	"github.com/tendermint/lattice/libs/service"
	"github.com/tendermint/lattice/types"
)

// Ledger is the part of the store used to rebuild the weight table.
type Ledger interface {
	GenesisAccounts(ctx context.Context) ([]types.Account, error)
	IterateCommitted(ctx context.Context, fn func(tx *types.Transaction, prev types.Account) error) error
}

// Weighter owns the representative weight table. Weights only change when a
// confirmed transaction is applied, so unconfirmed transactions never carry
// voting power.
type Weighter struct {
	service.BaseService

	logger  log.Logger
	cfg     *config.WeightConfig
	self    types.PublicKey
	clock   clock.Clock
	metrics *Metrics

	mtx      sync.RWMutex
	weights  map[types.PublicKey]types.Amount
	lastSeen map[types.PublicKey]time.Time

	minConfirmation types.Amount
	minRebroadcast  types.Amount
	online          types.Amount
}

// NewWeighter returns an empty weight table for the node voting as self.
// Thresholds start at their configured floors.
func NewWeighter(
	logger log.Logger,
	cfg *config.WeightConfig,
	self types.PublicKey,
	clk clock.Clock,
	metrics *Metrics,
) *Weighter {
	if metrics == nil {
		metrics = NopMetrics()
	}
	w := &Weighter{
		logger:          logger,
		cfg:             cfg,
		self:            self,
		clock:           clk,
		metrics:         metrics,
		weights:         make(map[types.PublicKey]types.Amount),
		lastSeen:        make(map[types.PublicKey]time.Time),
		minConfirmation: cfg.ConfirmationFloor(),
		minRebroadcast:  cfg.RebroadcastFloor(),
	}
	w.BaseService = *service.NewBaseService(logger, "Weighter", w)
	return w
}

// OnStart recomputes thresholds every RecalculateInterval.
func (w *Weighter) OnStart(ctx context.Context) error {
	w.Recalculate()
	go w.recalculateRoutine(ctx)
	return nil
}

func (w *Weighter) OnStop() {}

func (w *Weighter) recalculateRoutine(ctx context.Context) {
	ticker := w.clock.Ticker(w.cfg.RecalculateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.Quit():
			return
		case <-ticker.C:
			w.Recalculate()
		}
	}
}

// Load credits genesis balances to their representatives.
func (w *Weighter) Load(genesis []types.Account) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	for _, acc := range genesis {
		if err := w.add(acc.Representative, acc.Balance); err != nil {
			return fmt.Errorf("genesis account %v: %w", acc.PublicKey, err)
		}
	}
	return nil
}

// Rebuild resets the table and replays genesis and every committed
// transaction in commit order.
func (w *Weighter) Rebuild(ctx context.Context, ledger Ledger) error {
	genesis, err := ledger.GenesisAccounts(ctx)
	if err != nil {
		return err
	}

	w.mtx.Lock()
	w.weights = make(map[types.PublicKey]types.Amount)
	w.mtx.Unlock()

	if err := w.Load(genesis); err != nil {
		return err
	}
	if err := ledger.IterateCommitted(ctx, w.Apply); err != nil {
		return err
	}

	w.logger.Info("rebuilt weight table", "representatives", w.NumRepresentatives(), "total", w.Total())
	return nil
}

// Apply moves weight for a confirmed transaction. prev is the state of the
// account before tx was committed.
func (w *Weighter) Apply(tx *types.Transaction, prev types.Account) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	var err error
	switch blk := tx.Block.(type) {
	case *types.SendBlock:
		err = w.sub(prev.Representative, blk.Amount)
	case *types.ReceiveBlock:
		var received types.Amount
		if received, err = tx.Balance().Sub(prev.Balance); err == nil {
			err = w.add(prev.Representative, received)
		}
	case *types.OpenBlock:
		err = w.add(blk.Representative, tx.Balance())
	case *types.ChangeBlock:
		if err = w.sub(prev.Representative, prev.Balance); err == nil {
			err = w.add(blk.Representative, prev.Balance)
		}
	default:
		err = fmt.Errorf("unknown block type %v", tx.Type())
	}
	if err != nil {
		return fmt.Errorf("applying %v: %w", tx, err)
	}
	return nil
}

func (w *Weighter) add(rep types.PublicKey, amount types.Amount) error {
	if amount.IsZero() {
		return nil
	}
	next, err := w.weights[rep].Add(amount)
	if err != nil {
		return err
	}
	w.weights[rep] = next
	return nil
}

func (w *Weighter) sub(rep types.PublicKey, amount types.Amount) error {
	if amount.IsZero() {
		return nil
	}
	next, err := w.weights[rep].Sub(amount)
	if err != nil {
		return fmt.Errorf("representative %v: %w", rep, err)
	}
	if next.IsZero() {
		delete(w.weights, rep)
		return nil
	}
	w.weights[rep] = next
	return nil
}

// Get returns the weight delegated to rep.
func (w *Weighter) Get(rep types.PublicKey) types.Amount {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.weights[rep]
}

// Self returns the weight delegated to this node.
func (w *Weighter) Self() types.Amount {
	return w.Get(w.self)
}

// SelfKey returns the key this node votes with.
func (w *Weighter) SelfKey() types.PublicKey { return w.self }

// Total returns the sum of all delegated weight.
func (w *Weighter) Total() types.Amount {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	var total types.Amount
	for _, weight := range w.weights {
		// cannot overflow: weights partition balances bounded by MaxSupply
		total, _ = total.Add(weight)
	}
	return total
}

// NumRepresentatives returns the number of representatives with weight.
func (w *Weighter) NumRepresentatives() int {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return len(w.weights)
}

// MinimalConfirmationWeight returns the weight of final votes needed to
// confirm a transaction.
func (w *Weighter) MinimalConfirmationWeight() types.Amount {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.minConfirmation
}

// MinimalRebroadcastWeight returns the weight a representative needs for its
// votes to be relayed and its peers to be trusted.
func (w *Weighter) MinimalRebroadcastWeight() types.Amount {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.minRebroadcast
}

// IsAboveMinimalRebroadcastWeight reports whether rep holds at least the
// minimal rebroadcast weight. Representatives without weight never qualify.
func (w *Weighter) IsAboveMinimalRebroadcastWeight(rep types.PublicKey) bool {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	weight, ok := w.weights[rep]
	return ok && !weight.LT(w.minRebroadcast)
}

// ObserveVote marks rep as online.
func (w *Weighter) ObserveVote(rep types.PublicKey) {
	now := w.clock.Now()

	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.lastSeen[rep] = now
}

// Recalculate derives both thresholds from the representatives that voted
// within the online sample window.
func (w *Weighter) Recalculate() {
	cutoff := w.clock.Now().Add(-w.cfg.OnlineSampleWindow)

	w.mtx.Lock()
	defer w.mtx.Unlock()

	var (
		online []types.Amount
		total  types.Amount
	)
	for rep, seen := range w.lastSeen {
		if seen.Before(cutoff) {
			delete(w.lastSeen, rep)
			continue
		}
		if weight, ok := w.weights[rep]; ok {
			online = append(online, weight)
			total, _ = total.Add(weight)
		}
	}
	sort.Slice(online, func(i, j int) bool { return online[i].GT(online[j]) })

	w.online = total
	w.minConfirmation = total.MulDiv(w.cfg.ConfirmationThresholdPercent, 100).Max(w.cfg.ConfirmationFloor())
	w.minRebroadcast = rebroadcastWeight(online, w.minConfirmation, w.cfg.RebroadcastFloor())

	w.metrics.OnlineWeight.Set(total.Float64())
	w.metrics.OnlineRepresentatives.Set(float64(len(online)))
	w.metrics.MinimalConfirmationWeight.Set(w.minConfirmation.Float64())
	w.metrics.MinimalRebroadcastWeight.Set(w.minRebroadcast.Float64())

	w.logger.Debug("recalculated thresholds",
		"online", total,
		"online_reps", len(online),
		"min_confirmation", w.minConfirmation,
		"min_rebroadcast", w.minRebroadcast,
	)
}

// rebroadcastWeight picks the weight at index min(2k, n-1) of the online
// weights sorted in descending order, where k counts the representatives
// above the confirmation weight.
func rebroadcastWeight(online []types.Amount, minConfirmation, floor types.Amount) types.Amount {
	if len(online) == 0 {
		return floor
	}

	k := 0
	for _, weight := range online {
		if weight.GT(minConfirmation) {
			k++
		}
	}

	idx := 2 * k
	if idx > len(online)-1 {
		idx = len(online) - 1
	}
	return online[idx]
}
