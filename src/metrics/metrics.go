package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the relay's collectors on a private registry so that
// several relays (e.g. in tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive   prometheus.Gauge
	Pushes           prometheus.Counter
	DroppedPushes    *prometheus.CounterVec
	UpstreamFailures prometheus.Counter
	RefreshDuration  prometheus.Histogram
	TimeframeChanges *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "sessions_active",
			Help:      "Number of viewer sessions currently open.",
		}),
		Pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "pushes_total",
			Help:      "Snapshots handed to viewer channels.",
		}),
		DroppedPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "pushes_dropped_total",
			Help:      "Snapshots discarded before emission, by reason.",
		}, []string{"reason"}),
		UpstreamFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "upstream_failures_total",
			Help:      "Refreshes that failed because an upstream fetch failed.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "refresh_duration_seconds",
			Help:      "Time spent fetching candles and depth for one refresh.",
			Buckets:   prometheus.DefBuckets,
		}),
		TimeframeChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "timeframe_changes_total",
			Help:      "setTimeframe requests applied, by resulting timeframe.",
		}, []string{"timeframe"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsActive,
		m.Pushes,
		m.DroppedPushes,
		m.UpstreamFailures,
		m.RefreshDuration,
		m.TimeframeChanges,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
