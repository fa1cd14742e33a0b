package join

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/awmatheson/recoverable-cart-join/diag"
	"github.com/awmatheson/recoverable-cart-join/errors"
	"github.com/awmatheson/recoverable-cart-join/message"
	"github.com/awmatheson/recoverable-cart-join/metric"
	"github.com/awmatheson/recoverable-cart-join/pkg/keyed"
)

const engineComponent = "Engine"

// Emitter receives each (customerID, summary) pair the engine produces.
// For a fixed customer the calls arrive in that customer's event order;
// across customers they may arrive concurrently, so implementations must
// be safe for concurrent use.
type Emitter func(customerID string, summary *message.SummaryPayload)

// Engine orchestrates decode, key extraction, keyed reduction, and
// emission. Events for distinct customers are processed in parallel across
// pool shards while events sharing a customer are applied strictly in
// arrival order.
type Engine struct {
	store   *Store
	decoder *Decoder
	reducer *Reducer
	pool    *keyed.Pool[message.EventPayload]
	emit    Emitter

	reporter diag.Reporter
	metrics  *metric.Metrics
	logger   *slog.Logger

	shards      int
	queueSize   int
	registry    *metric.Registry
	stopTimeout time.Duration

	fatalMu  sync.Mutex
	fatalErr error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithShards sets the number of parallel shards (and store lock shards).
func WithShards(n int) EngineOption {
	return func(e *Engine) { e.shards = n }
}

// WithQueueSize sets the per-shard queue depth.
func WithQueueSize(n int) EngineOption {
	return func(e *Engine) { e.queueSize = n }
}

// WithReporter sets the diagnostic reporter shared by the decoder,
// reducer, and engine.
func WithReporter(r diag.Reporter) EngineOption {
	return func(e *Engine) { e.reporter = r }
}

// WithMetricsRegistry wires the engine and its shard pool to the metrics
// registry.
func WithMetricsRegistry(registry *metric.Registry) EngineOption {
	return func(e *Engine) {
		e.registry = registry
		if registry != nil {
			e.metrics = registry.CoreMetrics()
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithStopTimeout bounds how long Stop waits for in-flight work to drain.
func WithStopTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.stopTimeout = d }
}

// NewEngine creates an engine that forwards summaries to emit.
func NewEngine(emit Emitter, opts ...EngineOption) *Engine {
	e := &Engine{
		emit:        emit,
		reporter:    diag.Discard,
		shards:      DefaultStoreShards,
		queueSize:   256,
		stopTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.emit == nil {
		e.emit = func(string, *message.SummaryPayload) {}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	e.store = NewStore(e.shards)
	e.decoder = NewDecoder(e.reporter, e.metrics)
	e.reducer = NewReducer(e.reporter, e.metrics)

	poolOpts := []keyed.Option[message.EventPayload]{
		keyed.WithFatalHandler[message.EventPayload](errors.IsFatal, e.onFatal),
	}
	if e.registry != nil {
		poolOpts = append(poolOpts,
			keyed.WithMetricsRegistry[message.EventPayload](e.registry, "join_engine"))
	}
	e.pool = keyed.NewPool(e.shards, e.queueSize, ExtractKey, e.apply, poolOpts...)

	return e
}

// Start launches the shard workers.
func (e *Engine) Start(ctx context.Context) error {
	return e.pool.Start(ctx)
}

// Process handles one raw input line. Rejected lines are skipped after a
// diagnostic; accepted events block until their shard queue has room.
// Returns an error only when the engine has already failed fatally or the
// context is cancelled while waiting.
func (e *Engine) Process(ctx context.Context, line []byte) error {
	if err := e.Err(); err != nil {
		return err
	}

	event, ok := e.decoder.Decode(line)
	if !ok {
		return nil
	}

	if ExtractKey(event) == "" {
		e.reporter.Report(diag.New(diag.ReasonUnkeyableEvent, engineComponent,
			"no usable customer id").
			WithInput(line).
			WithKeys("", event.OrderID))
		if e.metrics != nil {
			e.metrics.RecordEventRejected(engineComponent, string(diag.ReasonUnkeyableEvent))
		}
		return nil
	}

	if e.metrics != nil {
		e.metrics.RecordEventReceived(engineComponent, string(event.Kind))
	}

	if err := e.pool.Submit(ctx, event); err != nil {
		if fatal := e.Err(); fatal != nil {
			return fatal
		}
		return err
	}
	return nil
}

// apply runs on a shard worker: reduce the event against its customer's
// state and forward the summary downstream.
func (e *Engine) apply(_ context.Context, event message.EventPayload) error {
	summary, err := e.store.Apply(event.CustomerID, func(state *CustomerState) (*CustomerState, *message.SummaryPayload, error) {
		return e.reducer.Reduce(state, event)
	})
	if err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.RecordEventProcessed(engineComponent, string(event.Kind), "success")
		e.metrics.RecordJoinState(e.store.Totals())
	}

	e.emit(event.CustomerID, summary)
	return nil
}

// onFatal records the first fatal reducer error. The pool stops accepting
// work, so no further summaries are emitted after this point.
func (e *Engine) onFatal(err error) {
	e.fatalMu.Lock()
	if e.fatalErr == nil {
		e.fatalErr = err
	}
	e.fatalMu.Unlock()
	e.logger.Error("reducer invariant violated, aborting", "error", err)
}

// Err returns the fatal error that stopped the engine, or nil.
func (e *Engine) Err() error {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()
	return e.fatalErr
}

// Store exposes the partition store for inspection.
func (e *Engine) Store() *Store {
	return e.store
}

// Stats returns shard pool statistics.
func (e *Engine) Stats() keyed.PoolStats {
	return e.pool.Stats()
}

// Stop drains in-flight per-key work and releases the shard workers. It
// returns the engine's fatal error if one occurred, or the drain timeout
// error.
func (e *Engine) Stop() error {
	if err := e.pool.Stop(e.stopTimeout); err != nil {
		return errors.WrapTransient(err, engineComponent, "Stop", "draining shard pool")
	}
	return e.Err()
}

// maxLineBytes bounds a single input line (1 MiB).
const maxLineBytes = 1024 * 1024

// Run consumes raw lines from r until end-of-input, then flushes in-flight
// work and returns. Blank lines are skipped. Returns nil on a clean
// end-of-input, the fatal reducer error if one occurred, or the read error
// from the source.
func (e *Engine) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		// Scanner reuses its buffer between reads
		lineCopy := make([]byte, len(line))
		copy(lineCopy, line)

		if err := e.Process(ctx, lineCopy); err != nil {
			_ = e.pool.Stop(e.stopTimeout)
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		_ = e.pool.Stop(e.stopTimeout)
		return errors.WrapTransient(err, engineComponent, "Run", "reading input")
	}

	return e.Stop()
}
