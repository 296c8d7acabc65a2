package node

import (
	"github.com/tendermint/lattice/config"
	"github.com/tendermint/lattice/internal/election"
	"github.com/tendermint/lattice/internal/guardian"
	"github.com/tendermint/lattice/internal/p2p"
	"github.com/tendermint/lattice/internal/validation"
	"github.com/tendermint/lattice/internal/votes"
	"github.com/tendermint/lattice/internal/weights"
)

// Metrics groups the metrics of every component.
type Metrics struct {
	Election   *election.Metrics
	Guardian   *guardian.Metrics
	P2P        *p2p.Metrics
	Validation *validation.Metrics
	Votes      *votes.Metrics
	Weights    *weights.Metrics
}

// MetricsProvider returns the metrics of every component.
type MetricsProvider func() *Metrics

// DefaultMetricsProvider returns Prometheus metrics when instrumentation is
// enabled and no-op metrics otherwise.
func DefaultMetricsProvider(cfg *config.InstrumentationConfig, chainID string) MetricsProvider {
	return func() *Metrics {
		if cfg.Prometheus {
			return &Metrics{
				Election:   election.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
				Guardian:   guardian.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
				P2P:        p2p.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
				Validation: validation.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
				Votes:      votes.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
				Weights:    weights.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
			}
		}
		return &Metrics{
			Election:   election.NopMetrics(),
			Guardian:   guardian.NopMetrics(),
			P2P:        p2p.NopMetrics(),
			Validation: validation.NopMetrics(),
			Votes:      votes.NopMetrics(),
			Weights:    weights.NopMetrics(),
		}
	}
}
