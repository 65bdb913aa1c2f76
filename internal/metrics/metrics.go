// Package metrics exposes cycle, sensor and persistence counters to
// Prometheus. When metrics are disabled a no-op provider is returned so
// callers never need to check.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Provider interface {
	ObserveCycle(reason string, sampled bool, awake time.Duration)
	ObserveSleep(sampled bool, sleep time.Duration)
	IncSensorFailures()
	IncCeilingBreaches(clamped bool)
	IncPersistenceErrors(tier string)
	IncRescales(transform string)
	IncRejectedCommands()
	SetTimeline(intervalSeconds uint32, populated int)
	SetBattery(volts, percent float32)
	SetNewestPressure(hPa float32)
	Handler() http.Handler
}

type PrometheusProvider struct {
	registry *prometheus.Registry

	cycles           *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	sleepDuration    *prometheus.HistogramVec
	sensorFailures   prometheus.Counter
	ceilingBreaches  *prometheus.CounterVec
	persistErrors    *prometheus.CounterVec
	rescales         *prometheus.CounterVec
	rejectedCommands prometheus.Counter
	interval         prometheus.Gauge
	populated        prometheus.Gauge
	batteryVolts     prometheus.Gauge
	batteryPercent   prometheus.Gauge
	pressure         prometheus.Gauge
}

// New returns a Prometheus-backed provider registering into reg, or a no-op
// provider when enabled is false. A nil reg gets a fresh registry.
func New(enabled bool, reg *prometheus.Registry) Provider {
	if !enabled {
		return &noopMetrics{}
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &PrometheusProvider{
		registry: reg,

		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barograph_cycles_total",
			Help: "Wake cycles by wake reason and whether a sample was taken",
		}, []string{"reason", "sampled"}),

		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "barograph_cycle_awake_seconds",
			Help:    "Time spent awake per cycle",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		sleepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "barograph_suspend_seconds",
			Help:    "Requested suspend duration",
			Buckets: []float64{1, 10, 60, 120, 225, 450, 900, 1800, 3600},
		}, []string{"sampled"}),

		sensorFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "barograph_sensor_failures_total",
			Help: "Sensor reads that failed and were stored as no-data",
		}),

		ceilingBreaches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barograph_suspend_ceiling_breaches_total",
			Help: "Suspend durations above the safety ceiling",
		}, []string{"clamped"}),

		persistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barograph_persistence_errors_total",
			Help: "Failed writes to the retained or durable store",
		}, []string{"tier"}),

		rescales: f.NewCounterVec(prometheus.CounterOpts{
			Name: "barograph_rescales_total",
			Help: "Applied resolution rescales",
		}, []string{"transform"}),

		rejectedCommands: f.NewCounter(prometheus.CounterOpts{
			Name: "barograph_rejected_commands_total",
			Help: "Configuration commands rejected by validation or precondition",
		}),

		interval: f.NewGauge(prometheus.GaugeOpts{
			Name: "barograph_interval_seconds",
			Help: "Current nominal sampling interval",
		}),

		populated: f.NewGauge(prometheus.GaugeOpts{
			Name: "barograph_timeline_populated_slots",
			Help: "Timeline slots holding a pressure value",
		}),

		batteryVolts: f.NewGauge(prometheus.GaugeOpts{
			Name: "barograph_battery_volts",
			Help: "Last battery voltage reading",
		}),

		batteryPercent: f.NewGauge(prometheus.GaugeOpts{
			Name: "barograph_battery_percent",
			Help: "Last battery charge estimate",
		}),

		pressure: f.NewGauge(prometheus.GaugeOpts{
			Name: "barograph_pressure_hpa",
			Help: "Newest stored pressure",
		}),
	}
}

func (m *PrometheusProvider) ObserveCycle(reason string, sampled bool, awake time.Duration) {
	m.cycles.WithLabelValues(reason, boolLabel(sampled)).Inc()
	m.cycleDuration.Observe(awake.Seconds())
}

func (m *PrometheusProvider) ObserveSleep(sampled bool, sleep time.Duration) {
	m.sleepDuration.WithLabelValues(boolLabel(sampled)).Observe(sleep.Seconds())
}

func (m *PrometheusProvider) IncSensorFailures() {
	m.sensorFailures.Inc()
}

func (m *PrometheusProvider) IncCeilingBreaches(clamped bool) {
	m.ceilingBreaches.WithLabelValues(boolLabel(clamped)).Inc()
}

func (m *PrometheusProvider) IncPersistenceErrors(tier string) {
	m.persistErrors.WithLabelValues(tier).Inc()
}

func (m *PrometheusProvider) IncRescales(transform string) {
	m.rescales.WithLabelValues(transform).Inc()
}

func (m *PrometheusProvider) IncRejectedCommands() {
	m.rejectedCommands.Inc()
}

func (m *PrometheusProvider) SetTimeline(intervalSeconds uint32, populated int) {
	m.interval.Set(float64(intervalSeconds))
	m.populated.Set(float64(populated))
}

func (m *PrometheusProvider) SetBattery(volts, percent float32) {
	m.batteryVolts.Set(float64(volts))
	m.batteryPercent.Set(float64(percent))
}

func (m *PrometheusProvider) SetNewestPressure(hPa float32) {
	m.pressure.Set(float64(hPa))
}

// Handler serves the provider's registry in the Prometheus text format.
func (m *PrometheusProvider) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) ObserveCycle(_ string, _ bool, _ time.Duration) {}
func (n *noopMetrics) ObserveSleep(_ bool, _ time.Duration)           {}
func (n *noopMetrics) IncSensorFailures()                             {}
func (n *noopMetrics) IncCeilingBreaches(_ bool)                      {}
func (n *noopMetrics) IncPersistenceErrors(_ string)                  {}
func (n *noopMetrics) IncRescales(_ string)                           {}
func (n *noopMetrics) IncRejectedCommands()                           {}
func (n *noopMetrics) SetTimeline(_ uint32, _ int)                    {}
func (n *noopMetrics) SetBattery(_, _ float32)                        {}
func (n *noopMetrics) SetNewestPressure(_ float32)                    {}

func (n *noopMetrics) Handler() http.Handler {
	return http.NotFoundHandler()
}
