package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/awmatheson/recoverable-cart-join/metric"
)

// runtimeMetrics holds Prometheus metrics for pipeline lifecycle
// operations.
type runtimeMetrics struct {
	starts *prometheus.CounterVec // by instance and status
	stops  *prometheus.CounterVec // by instance and status

	startDuration *prometheus.HistogramVec // by instance
	stopDuration  *prometheus.HistogramVec // by instance

	componentsRunning prometheus.Gauge
}

// newRuntimeMetrics creates and registers runtime metrics with the
// provided registry. A nil registry disables metrics.
func newRuntimeMetrics(registry *metric.Registry) (*runtimeMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &runtimeMetrics{
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "runtime",
			Name:      "component_starts_total",
			Help:      "Total number of component start operations",
		}, []string{"instance", "status"}),

		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "runtime",
			Name:      "component_stops_total",
			Help:      "Total number of component stop operations",
		}, []string{"instance", "status"}),

		startDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cartjoin",
			Subsystem: "runtime",
			Name:      "component_start_duration_seconds",
			Help:      "Component start duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"instance"}),

		stopDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cartjoin",
			Subsystem: "runtime",
			Name:      "component_stop_duration_seconds",
			Help:      "Component stop duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}, []string{"instance"}),

		componentsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cartjoin",
			Subsystem: "runtime",
			Name:      "components_running",
			Help:      "Current number of running components",
		}),
	}

	if err := registry.RegisterCounterVec("runtime", "component_starts_total", m.starts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("runtime", "component_stops_total", m.stops); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("runtime", "component_start_duration_seconds", m.startDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("runtime", "component_stop_duration_seconds", m.stopDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("runtime", "components_running", m.componentsRunning); err != nil {
		return nil, err
	}

	return m, nil
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (m *runtimeMetrics) recordStart(instance string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.starts.WithLabelValues(instance, statusLabel(success)).Inc()
	if success {
		m.startDuration.WithLabelValues(instance).Observe(duration.Seconds())
	}
}

func (m *runtimeMetrics) recordStop(instance string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.stops.WithLabelValues(instance, statusLabel(success)).Inc()
	if success {
		m.stopDuration.WithLabelValues(instance).Observe(duration.Seconds())
	}
}

func (m *runtimeMetrics) setRunning(n int) {
	if m == nil {
		return
	}
	m.componentsRunning.Set(float64(n))
}
