package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"toolhub/internal/domain"
)

type PrometheusMetrics struct {
	connectDuration   *prometheus.HistogramVec
	discoverDuration  *prometheus.HistogramVec
	discoveryCycles   *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	activeClients     prometheus.Gauge
	registeredEntries *prometheus.GaugeVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		connectDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolhub_connect_duration_seconds",
				Help:    "Duration of provider connect attempts in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "status"},
		),
		discoverDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolhub_discover_duration_seconds",
				Help:    "Duration of provider catalog discovery in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "status"},
		),
		discoveryCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolhub_discovery_cycles_total",
				Help: "Total number of completed discovery cycles",
			},
			[]string{"status"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "toolhub_discovery_cycle_duration_seconds",
				Help:    "Wall-clock duration of full discovery cycles in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		activeClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolhub_active_clients",
				Help: "Current number of live provider clients",
			},
		),
		registeredEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "toolhub_registered_definitions",
				Help: "Definitions currently registered per provider and kind",
			},
			[]string{"provider", "kind"},
		),
	}
}

func (p *PrometheusMetrics) ObserveConnect(provider string, duration time.Duration, err error) {
	p.connectDuration.WithLabelValues(provider, statusLabel(err)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveDiscovery(provider string, duration time.Duration, err error) {
	p.discoverDuration.WithLabelValues(provider, statusLabel(err)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveCycle(duration time.Duration, ready, failed int) {
	status := "success"
	if failed > 0 {
		status = "partial"
	}
	if ready == 0 && failed > 0 {
		status = "failed"
	}
	p.discoveryCycles.WithLabelValues(status).Inc()
	p.cycleDuration.Observe(duration.Seconds())
}

func (p *PrometheusMetrics) SetActiveClients(count int) {
	p.activeClients.Set(float64(count))
}

func (p *PrometheusMetrics) SetRegisteredDefinitions(provider, kind string, count int) {
	p.registeredEntries.WithLabelValues(provider, kind).Set(float64(count))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
