package votes

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "votes"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of votes waiting to be handed to elections.
	QueueSize metrics.Gauge
	// Number of votes waiting for their election to start.
	Buffered metrics.Gauge
	// Number of distinct votes received.
	Received metrics.Counter
	// Number of rejected votes, labeled by reason.
	Rejected metrics.Counter
	// Number of dropped votes, labeled by reason.
	Dropped metrics.Counter
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
		QueueSize: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "queue_size",
			Help:      "Number of votes waiting to be handed to elections.",
		}, labels).With(labelsAndValues...),
		Buffered: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "buffered",
			Help:      "Number of votes waiting for their election to start.",
		}, labels).With(labelsAndValues...),
		Received: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "received",
			Help:      "Number of distinct votes received.",
		}, labels).With(labelsAndValues...),
		Rejected: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rejected",
			Help:      "Number of rejected votes.",
		}, append(labels, "reason")).With(labelsAndValues...),
		Dropped: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "dropped",
			Help:      "Number of dropped votes.",
		}, append(labels, "reason")).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		QueueSize: discard.NewGauge(),
		Buffered:  discard.NewGauge(),
		Received:  discard.NewCounter(),
		Rejected:  discard.NewCounter(),
		Dropped:   discard.NewCounter(),
	}
}
