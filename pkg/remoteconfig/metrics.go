package remoteconfig

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes recorded by the Poller.
const (
	OutcomeUpdated        = "updated"
	OutcomeNoConfig       = "no_config"
	OutcomeTransportError = "transport_error"
	OutcomeDecodeError    = "decode_error"
	OutcomeError          = "error"
)

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Metrics holds Prometheus metrics for remote config polling.
type Metrics struct {
	FetchesTotal  *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	Items         prometheus.Gauge
	LastSuccess   prometheus.Gauge
	TriggersTotal *prometheus.CounterVec
}

// NewMetrics registers the metrics with reg.
//
// Metrics:
//   - beacon_remote_config_fetches_total{outcome}
//   - beacon_remote_config_fetch_duration_seconds
//   - beacon_remote_config_items
//   - beacon_remote_config_last_success_timestamp_seconds
//   - beacon_remote_config_triggers_total{result}
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_remote_config_fetches_total",
				Help: "Total number of remote config fetches by outcome",
			},
			[]string{"outcome"},
		),
		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "beacon_remote_config_fetch_duration_seconds",
				Help:    "Duration of remote config fetches in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		Items: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "beacon_remote_config_items",
				Help: "Number of items in the current config snapshot",
			},
		),
		LastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "beacon_remote_config_last_success_timestamp_seconds",
				Help: "Unix time of the last accepted config snapshot",
			},
		),
		TriggersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_remote_config_triggers_total",
				Help: "Total number of refresh triggers by result",
			},
			[]string{"result"}, // "accepted" or "throttled"
		),
	}
}

// DefaultMetrics returns metrics registered once with the default registry.
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}
