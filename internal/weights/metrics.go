package weights

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "weights"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Weight of the representatives seen voting recently.
	OnlineWeight metrics.Gauge
	// Number of representatives seen voting recently.
	OnlineRepresentatives metrics.Gauge
	// Final vote weight needed to confirm.
	MinimalConfirmationWeight metrics.Gauge
	// Weight needed to be trusted as a rebroadcaster.
	MinimalRebroadcastWeight metrics.Gauge
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
		OnlineWeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "online_weight",
			Help:      "Weight of the representatives seen voting recently.",
		}, labels).With(labelsAndValues...),
		OnlineRepresentatives: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "online_representatives",
			Help:      "Number of representatives seen voting recently.",
		}, labels).With(labelsAndValues...),
		MinimalConfirmationWeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "minimal_confirmation_weight",
			Help:      "Final vote weight needed to confirm a transaction.",
		}, labels).With(labelsAndValues...),
		MinimalRebroadcastWeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "minimal_rebroadcast_weight",
			Help:      "Weight needed to be trusted as a rebroadcaster.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		OnlineWeight:              discard.NewGauge(),
		OnlineRepresentatives:     discard.NewGauge(),
		MinimalConfirmationWeight: discard.NewGauge(),
		MinimalRebroadcastWeight:  discard.NewGauge(),
	}
}
