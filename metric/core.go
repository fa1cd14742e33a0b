package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the pipeline-level metrics shared by every component.
// Component-specific collectors are registered separately through the
// Registry.
type Metrics struct {
	// Component metrics
	ComponentStatus    *prometheus.GaugeVec
	EventsReceived     *prometheus.CounterVec
	EventsProcessed    *prometheus.CounterVec
	SummariesPublished *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec

	// Join metrics
	EventsRejected *prometheus.CounterVec
	OrphanPayments prometheus.Counter
	UnpaidOrders   prometheus.Gauge
	PaidOrders     prometheus.Gauge
	TrackedKeys    prometheus.Gauge

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cartjoin",
				Subsystem: "component",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"component"},
		),

		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cartjoin",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total number of events received",
			},
			[]string{"component", "kind"},
		),

		EventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cartjoin",
				Subsystem: "events",
				Name:      "processed_total",
				Help:      "Total number of events processed",
			},
			[]string{"component", "kind", "status"},
		),

		SummariesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cartjoin",
				Subsystem: "summaries",
				Name:      "published_total",
				Help:      "Total number of customer summaries published",
			},
			[]string{"component", "subject"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cartjoin",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Event processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cartjoin",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cartjoin",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),

		EventsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cartjoin",
				Subsystem: "events",
				Name:      "rejected_total",
				Help:      "Total number of events rejected before reduction",
			},
			[]string{"component", "reason"},
		),

		OrphanPayments: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cartjoin",
				Subsystem: "join",
				Name:      "orphan_payments_total",
				Help:      "Total number of payments that matched no unpaid order",
			},
		),

		UnpaidOrders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cartjoin",
				Subsystem: "join",
				Name:      "unpaid_orders",
				Help:      "Current number of unpaid orders across all customers",
			},
		),

		PaidOrders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cartjoin",
				Subsystem: "join",
				Name:      "paid_orders",
				Help:      "Current number of paid orders across all customers",
			},
		),

		TrackedKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cartjoin",
				Subsystem: "join",
				Name:      "tracked_keys",
				Help:      "Current number of customer keys with state",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cartjoin",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cartjoin",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cartjoin",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cartjoin",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordComponentStatus updates component status metric
func (c *Metrics) RecordComponentStatus(component string, status int) {
	c.ComponentStatus.WithLabelValues(component).Set(float64(status))
}

// RecordEventReceived increments received event counter
func (c *Metrics) RecordEventReceived(component, kind string) {
	c.EventsReceived.WithLabelValues(component, kind).Inc()
}

// RecordEventProcessed increments processed event counter
func (c *Metrics) RecordEventProcessed(component, kind, status string) {
	c.EventsProcessed.WithLabelValues(component, kind, status).Inc()
}

// RecordSummaryPublished increments published summary counter
func (c *Metrics) RecordSummaryPublished(component, subject string) {
	c.SummariesPublished.WithLabelValues(component, subject).Inc()
}

// RecordProcessingDuration records processing time
func (c *Metrics) RecordProcessingDuration(component, operation string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(component, operation).Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(component, errorType string) {
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(component).Set(value)
}

// RecordEventRejected increments the rejected event counter for a reason
func (c *Metrics) RecordEventRejected(component, reason string) {
	c.EventsRejected.WithLabelValues(component, reason).Inc()
}

// RecordOrphanPayment increments the orphan payment counter
func (c *Metrics) RecordOrphanPayment() {
	c.OrphanPayments.Inc()
}

// RecordJoinState updates the aggregate join state gauges
func (c *Metrics) RecordJoinState(keys, unpaid, paid int) {
	c.TrackedKeys.Set(float64(keys))
	c.UnpaidOrders.Set(float64(unpaid))
	c.PaidOrders.Set(float64(paid))
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}
