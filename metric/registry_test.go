package metric

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awmatheson/recoverable-cart-join/errors"
)

func gathered(t *testing.T, registry *Registry, name string) bool {
	t.Helper()
	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() == name {
			return true
		}
	}
	return false
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestRegistry_RegisterCounter(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.RegisterCounter("test-component", "test_counter", counter)
	require.NoError(t, err)

	counter.Inc()

	assert.True(t, gathered(t, registry, "test_counter"),
		"Counter should be registered in Prometheus registry")
}

func TestRegistry_RegisterCounterDuplicate(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dup_counter",
		Help: "A test counter",
	})

	require.NoError(t, registry.RegisterCounter("test-component", "dup_counter", counter))

	err := registry.RegisterCounter("test-component", "dup_counter", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegistry_RegisterGauge(t *testing.T) {
	registry := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})

	err := registry.RegisterGauge("test-component", "test_gauge", gauge)
	require.NoError(t, err)

	gauge.Set(42.0)

	assert.True(t, gathered(t, registry, "test_gauge"),
		"Gauge should be registered in Prometheus registry")
}

func TestRegistry_RegisterHistogramVec(t *testing.T) {
	registry := NewRegistry()

	histogramVec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_histogram",
		Help:    "A test histogram",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	err := registry.RegisterHistogramVec("test-component", "test_histogram", histogramVec)
	require.NoError(t, err)

	histogramVec.WithLabelValues("apply").Observe(0.05)

	assert.True(t, gathered(t, registry, "test_histogram"),
		"Histogram vector should be registered in Prometheus registry")
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "removable_counter",
		Help: "A test counter",
	})

	require.NoError(t, registry.RegisterCounter("test-component", "removable_counter", counter))
	assert.True(t, registry.Unregister("test-component", "removable_counter"))

	// Second removal has nothing to remove
	assert.False(t, registry.Unregister("test-component", "removable_counter"))
	assert.False(t, gathered(t, registry, "removable_counter"))
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", n),
				Help: "A test counter",
			})
			assert.NoError(t, registry.RegisterCounter("test-component",
				fmt.Sprintf("concurrent_counter_%d", n), counter))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		assert.True(t, gathered(t, registry, fmt.Sprintf("concurrent_counter_%d", i)))
	}
}

func TestMetrics_RecordJoinState(t *testing.T) {
	registry := NewRegistry()
	core := registry.CoreMetrics()

	core.RecordJoinState(3, 5, 7)
	core.RecordEventRejected("cartjoin-processor", "malformed_input")
	core.RecordOrphanPayment()
	core.RecordProcessingDuration("cartjoin-processor", "apply", 10*time.Millisecond)

	assert.True(t, gathered(t, registry, "cartjoin_join_tracked_keys"))
	assert.True(t, gathered(t, registry, "cartjoin_join_unpaid_orders"))
	assert.True(t, gathered(t, registry, "cartjoin_events_rejected_total"))
	assert.True(t, gathered(t, registry, "cartjoin_join_orphan_payments_total"))
}
