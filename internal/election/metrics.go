package election

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "election"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of running elections.
	Active metrics.Gauge
	// Number of confirmed transactions.
	Confirmed metrics.Counter
	// Number of elections that timed out.
	Expired metrics.Counter
	// Number of votes cast by this node, labeled by finality.
	VotesCast metrics.Counter
	// Number of transaction rebroadcasts for stale elections.
	Rebroadcasts metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Active: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "active",
			Help:      "Number of running elections.",
		}, labels).With(labelsAndValues...),
		Confirmed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "confirmed",
			Help:      "Number of confirmed transactions.",
		}, labels).With(labelsAndValues...),
		Expired: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "expired",
			Help:      "Number of elections that timed out.",
		}, labels).With(labelsAndValues...),
		VotesCast: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "votes_cast",
			Help:      "Number of votes cast by this node.",
		}, append(labels, "final")).With(labelsAndValues...),
		Rebroadcasts: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rebroadcasts",
			Help:      "Number of transaction rebroadcasts for stale elections.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Active:       discard.NewGauge(),
		Confirmed:    discard.NewCounter(),
		Expired:      discard.NewCounter(),
		VotesCast:    discard.NewCounter(),
		Rebroadcasts: discard.NewCounter(),
	}
}
