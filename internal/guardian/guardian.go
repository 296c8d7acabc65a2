// Package guardian bans peers whose message rate is far above the rate of
// trusted voters.
package guardian

import (
	"context"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"gonum.org/v1/gonum/stat"

	"github.com/tendermint/lattice/config"
	"github.com/tendermint/lattice/internal/p2p"
	"github.com/tendermint/lattice/libs/log"
	"github.com/tendermint/lattice/libs/service"
	"github.com/tendermint/lattice/types"
)

// Counters exposes cumulative per-connection message counts.
type Counters interface {
	Snapshot() map[types.ConnectionID]p2p.ConnectionStats
}

// WeightSource decides which voters are trusted.
type WeightSource interface {
	IsAboveMinimalRebroadcastWeight(rep types.PublicKey) bool
}

// EventPublisher is the subset of the event bus the guardian needs.
type EventPublisher interface {
	Publish(types.Event)
}

// Guardian compares each interval's message counts against the median of
// the trusted connections.
type Guardian struct {
	service.BaseService

	logger   log.Logger
	cfg      *config.GuardianConfig
	counters Counters
	weights  WeightSource
	bus      EventPublisher
	clock    clock.Clock
	metrics  *Metrics

	mtx      sync.Mutex
	previous map[types.ConnectionID]uint64
}

// NewGuardian returns a guardian reading counters every cfg.Interval.
func NewGuardian(
	logger log.Logger,
	cfg *config.GuardianConfig,
	counters Counters,
	weights WeightSource,
	bus EventPublisher,
	clk clock.Clock,
	metrics *Metrics,
) *Guardian {
	if metrics == nil {
		metrics = NopMetrics()
	}
	g := &Guardian{
		logger:   logger,
		cfg:      cfg,
		counters: counters,
		weights:  weights,
		bus:      bus,
		clock:    clk,
		metrics:  metrics,
		previous: make(map[types.ConnectionID]uint64),
	}
	g.BaseService = *service.NewBaseService(logger, "Guardian", g)
	return g
}

// OnStart takes the first snapshot and starts the sweep loop.
func (g *Guardian) OnStart(ctx context.Context) error {
	g.Sweep()
	go g.sweepRoutine(ctx)
	return nil
}

func (g *Guardian) OnStop() {}

func (g *Guardian) sweepRoutine(ctx context.Context) {
	ticker := g.clock.Ticker(g.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.Quit():
			return
		case <-ticker.C:
			g.Sweep()
		}
	}
}

// Sweep compares the current counters with the previous snapshot and bans
// the outliers. It returns the banned addresses in order.
func (g *Guardian) Sweep() []types.NodeAddress {
	snap := g.counters.Snapshot()

	g.mtx.Lock()
	defer g.mtx.Unlock()

	deltas := make(map[types.ConnectionID]uint64, len(snap))
	var trusted []float64
	for id, c := range snap {
		var d uint64
		if prev := g.previous[id]; c.Messages > prev {
			d = c.Messages - prev
		}
		deltas[id] = d
		if c.Voter && g.weights.IsAboveMinimalRebroadcastWeight(c.PublicKey) {
			trusted = append(trusted, float64(d))
		}
	}

	g.previous = make(map[types.ConnectionID]uint64, len(snap))
	for id, c := range snap {
		g.previous[id] = c.Messages
	}

	if len(trusted) == 0 {
		return nil
	}
	sort.Float64s(trusted)
	median := stat.Quantile(0.5, stat.Empirical, trusted, nil)
	g.metrics.Median.Set(median)
	if median < g.cfg.MinimalMedian {
		g.logger.Debug("median below minimum, skipping", "median", median, "trusted", len(trusted))
		return nil
	}

	perAddress := make(map[types.NodeAddress]uint64)
	for id, d := range deltas {
		perAddress[snap[id].Address] += d
	}

	limit := median * g.cfg.ToleranceMultiplier
	var banned []types.NodeAddress
	for addr, d := range perAddress {
		if float64(d) > limit {
			banned = append(banned, addr)
		}
	}
	sort.Slice(banned, func(i, j int) bool { return banned[i] < banned[j] })

	for _, addr := range banned {
		g.metrics.Bans.Add(1)
		g.logger.Info("banning peer", "address", addr, "messages", perAddress[addr], "median", median)
		g.bus.Publish(types.EventNodeBannedData{Address: addr})
	}
	return banned
}
