package keyed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/awmatheson/recoverable-cart-join/metric"
)

// Pool distributes work items across hash shards, preserving per-key order.
type Pool[T any] struct {
	// Configuration
	shards    int
	queueSize int
	keyFn     func(T) string
	processor func(context.Context, T) error

	// Runtime state
	queues  []chan T
	metrics *Metrics
	wg      *sync.WaitGroup

	// Lifecycle management
	lifecycleMu  sync.Mutex
	started      bool
	stopped      bool
	queuesClosed bool
	// stopping unblocks Submit calls parked on a full queue; aborted makes
	// workers exit without draining after a fatal error. Both close at most
	// once, guarded by stopped tracking under lifecycleMu.
	stopping       chan struct{}
	stoppingClosed bool
	aborted        chan struct{}
	abortedClosed  bool
	// submitters counts Submit calls between the lifecycle check and the
	// queue send, so Stop never closes a queue with a send in flight.
	submitters sync.WaitGroup

	// Statistics (atomic)
	submitted int64
	processed int64
	failed    int64

	// Fatal error escalation
	onFatal func(error)
	fatalOf func(error) bool

	// Metrics configuration
	metricsRegistry *metric.Registry
	metricsPrefix   string
}

// Metrics holds Prometheus metrics for pool monitoring
type Metrics struct {
	queueDepth     prometheus.Gauge
	submitted      prometheus.Counter
	processed      prometheus.Counter
	failed         prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// Option represents a configuration option for the pool
type Option[T any] func(*Pool[T])

// WithMetricsRegistry configures the pool to register metrics with the
// framework's registry
func WithMetricsRegistry[T any](registry *metric.Registry, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.metricsRegistry = registry
		p.metricsPrefix = prefix
	}
}

// WithFatalHandler installs a classifier and handler for fatal processor
// errors. When classify(err) is true the handler runs once and the pool
// stops accepting work.
func WithFatalHandler[T any](classify func(error) bool, handler func(error)) Option[T] {
	return func(p *Pool[T]) {
		p.fatalOf = classify
		p.onFatal = handler
	}
}

// NewPool creates a sharded pool. Items whose keyFn values are equal are
// processed in submission order on the same shard.
func NewPool[T any](shards, queueSize int, keyFn func(T) string, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if shards <= 0 {
		shards = 8
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}
	if keyFn == nil {
		panic(ErrNilKeyFunc)
	}

	pool := &Pool[T]{
		shards:    shards,
		queueSize: queueSize,
		keyFn:     keyFn,
		processor: processor,
		queues:    make([]chan T, shards),
		stopping:  make(chan struct{}),
		aborted:   make(chan struct{}),
	}
	for i := range pool.queues {
		pool.queues[i] = make(chan T, queueSize)
	}

	for _, opt := range opts {
		opt(pool)
	}

	if pool.metricsRegistry != nil && pool.metricsPrefix != "" {
		pool.initializeMetrics()
	}

	return pool
}

// initializeMetrics creates and registers metrics with the framework's registry
func (p *Pool[T]) initializeMetrics() {
	prefix := p.metricsPrefix

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "_queue_depth",
		Help: "Total items queued across all shards",
	})
	submitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_submitted_total",
		Help: "Total work items submitted",
	})
	processed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_processed_total",
		Help: "Total work items processed",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "_failed_total",
		Help: "Total work items that failed processing",
	})
	processingTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prefix + "_processing_duration_seconds",
		Help:    "Time spent processing work items",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"status"})

	serviceName := "keyed_pool"
	_ = p.metricsRegistry.RegisterGauge(serviceName, prefix+"_queue_depth", queueDepth)
	_ = p.metricsRegistry.RegisterCounter(serviceName, prefix+"_submitted_total", submitted)
	_ = p.metricsRegistry.RegisterCounter(serviceName, prefix+"_processed_total", processed)
	_ = p.metricsRegistry.RegisterCounter(serviceName, prefix+"_failed_total", failed)
	_ = p.metricsRegistry.RegisterHistogramVec(serviceName, prefix+"_processing_duration_seconds", processingTime)

	p.metrics = &Metrics{
		queueDepth:     queueDepth,
		submitted:      submitted,
		processed:      processed,
		failed:         failed,
		processingTime: processingTime,
	}
}

// shardFor maps a key to its shard index.
func (p *Pool[T]) shardFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(p.shards))
}

// Submit enqueues work on the shard owning its key, blocking while that
// shard's queue is full. Returns the context error if ctx is cancelled
// while waiting, or ErrPoolStopped if the pool begins stopping first.
// Submit is safe to race with Stop: a submitter registered before Stop
// completes its send or bails out before any queue closes.
func (p *Pool[T]) Submit(ctx context.Context, work T) error {
	p.lifecycleMu.Lock()
	if !p.started {
		p.lifecycleMu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.lifecycleMu.Unlock()
		return ErrPoolStopped
	}
	queue := p.queues[p.shardFor(p.keyFn(work))]
	p.submitters.Add(1)
	p.lifecycleMu.Unlock()
	defer p.submitters.Done()

	select {
	case queue <- work:
		atomic.AddInt64(&p.submitted, 1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
			p.metrics.queueDepth.Set(float64(p.depth()))
		}
		return nil
	case <-p.stopping:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// depth returns the total number of queued items across shards.
func (p *Pool[T]) depth() int {
	total := 0
	for _, q := range p.queues {
		total += len(q)
	}
	return total
}

// Start launches one worker goroutine per shard.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	p.wg = &sync.WaitGroup{}
	for i := 0; i < p.shards; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.started = true
	return nil
}

// worker drains one shard's queue in FIFO order. On a graceful Stop the
// queue closes and the worker finishes whatever was queued; after a fatal
// escalation it exits without draining so nothing further is emitted.
func (p *Pool[T]) worker(ctx context.Context, shard int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.aborted:
			return
		default:
		}

		var work T
		var ok bool
		select {
		case work, ok = <-p.queues[shard]:
			if !ok {
				return
			}
		case <-p.aborted:
			return
		}

		start := time.Now()
		err := p.processor(ctx, work)
		duration := time.Since(start)

		if err != nil {
			atomic.AddInt64(&p.failed, 1)
			if p.metrics != nil {
				p.metrics.failed.Inc()
				p.metrics.processingTime.WithLabelValues("error").Observe(duration.Seconds())
			}
			if p.fatalOf != nil && p.fatalOf(err) {
				p.escalate(err)
				return
			}
			continue
		}

		atomic.AddInt64(&p.processed, 1)
		if p.metrics != nil {
			p.metrics.processed.Inc()
			p.metrics.processingTime.WithLabelValues("success").Observe(duration.Seconds())
			p.metrics.queueDepth.Set(float64(p.depth()))
		}
	}
}

// closeStoppingLocked releases submitters parked on full queues.
// Callers hold lifecycleMu.
func (p *Pool[T]) closeStoppingLocked() {
	if !p.stoppingClosed {
		p.stoppingClosed = true
		close(p.stopping)
	}
}

// escalate runs the fatal handler once, marks the pool stopped so
// subsequent Submit calls fail fast, and signals every worker to exit
// without draining its queue.
func (p *Pool[T]) escalate(err error) {
	p.lifecycleMu.Lock()
	alreadyStopped := p.stopped
	p.stopped = true
	p.closeStoppingLocked()
	if !p.abortedClosed {
		p.abortedClosed = true
		close(p.aborted)
	}
	handler := p.onFatal
	p.lifecycleMu.Unlock()

	if !alreadyStopped && handler != nil {
		handler(err)
	}
}

// Stop closes all shard queues and waits for in-flight work to drain.
// Submitters racing Stop are waited out before any queue closes, so a
// late Submit gets ErrPoolStopped instead of a send on a closed channel.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started {
		p.stopped = true
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	p.closeStoppingLocked()
	p.lifecycleMu.Unlock()

	// Workers are still draining here, so registered submitters either
	// complete their send or give up on the stopping signal.
	p.submitters.Wait()

	p.lifecycleMu.Lock()
	if !p.queuesClosed {
		p.queuesClosed = true
		for _, q := range p.queues {
			close(q)
		}
	}
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// PoolStats represents pool statistics
type PoolStats struct {
	Shards     int
	QueueSize  int
	QueueDepth int
	Submitted  int64
	Processed  int64
	Failed     int64
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Shards:     p.shards,
		QueueSize:  p.queueSize,
		QueueDepth: p.depth(),
		Submitted:  atomic.LoadInt64(&p.submitted),
		Processed:  atomic.LoadInt64(&p.processed),
		Failed:     atomic.LoadInt64(&p.failed),
	}
}
