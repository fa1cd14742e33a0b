package cartjoin

import (
	"time"

	"github.com/awmatheson/recoverable-cart-join/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// joinMetrics holds Prometheus metrics for the cart join processor.
type joinMetrics struct {
	messagesTotal *prometheus.CounterVec // By component and status (applied/skipped/error)
	summaries     *prometheus.CounterVec // By component and subject
	errors        *prometheus.CounterVec // By component and error_type

	processDuration *prometheus.HistogramVec // By component
}

// newJoinMetrics creates and registers cart join metrics with the provided registry.
func newJoinMetrics(registry *metric.Registry, componentName string) (*joinMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &joinMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "processor",
			Name:      "messages_total",
			Help:      "Total number of raw lines handled by the join processor",
		}, []string{"component", "status"}), // status: applied, skipped, error

		summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "processor",
			Name:      "summaries_published_total",
			Help:      "Total number of customer summaries published",
		}, []string{"component", "subject"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "processor",
			Name:      "errors_total",
			Help:      "Total number of join processing errors",
		}, []string{"component", "error_type"}), // error_type: process, marshal, publish, fatal

		processDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cartjoin",
			Subsystem: "processor",
			Name:      "process_duration_seconds",
			Help:      "Time from raw line arrival to submission into the join pool",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"component"}),
	}

	if err := registry.RegisterCounterVec("cart_join", "messages_total", m.messagesTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("cart_join", "summaries_published", m.summaries); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("cart_join", "errors", m.errors); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("cart_join", "process_duration", m.processDuration); err != nil {
		return nil, err
	}

	return m, nil
}

// recordMessage records one handled line with its outcome.
func (m *joinMetrics) recordMessage(componentName, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(componentName, status).Inc()
	m.processDuration.WithLabelValues(componentName).Observe(duration.Seconds())
}

// recordSummary records a published summary.
func (m *joinMetrics) recordSummary(componentName, subject string) {
	if m == nil {
		return
	}
	m.summaries.WithLabelValues(componentName, subject).Inc()
}

// recordError records a processing error.
func (m *joinMetrics) recordError(componentName, errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(componentName, errorType).Inc()
}
