package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/config"
	"github.com/awmatheson/recoverable-cart-join/errors"
	"github.com/awmatheson/recoverable-cart-join/health"
	"github.com/awmatheson/recoverable-cart-join/types"
)

// DefaultHealthInterval is how often component health is polled.
const DefaultHealthInterval = 5 * time.Second

// DefaultStopTimeout bounds each component's shutdown.
const DefaultStopTimeout = 10 * time.Second

// FiniteSource is implemented by input components that read a bounded
// source. The returned channel closes when the source is exhausted.
type FiniteSource interface {
	Done() <-chan struct{}
}

// instance pairs a created component with its configured name.
type instance struct {
	name string
	typ  types.ComponentType
	comp component.Discoverable
}

// Runtime creates, starts, and stops the components of one pipeline.
type Runtime struct {
	cfg      *config.Config
	registry *component.Registry
	deps     component.Dependencies
	monitor  *health.Monitor
	logger   *slog.Logger
	metrics  *runtimeMetrics

	healthInterval time.Duration
	stopTimeout    time.Duration

	mu      sync.Mutex
	running bool
	started []instance // in start order

	done       chan struct{}
	healthQuit chan struct{}
	wg         sync.WaitGroup
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithHealthInterval overrides the health polling interval.
func WithHealthInterval(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.healthInterval = d
		}
	}
}

// WithStopTimeout overrides the per-component shutdown timeout.
func WithStopTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.stopTimeout = d
		}
	}
}

// NewRuntime creates a pipeline runtime. The registry must already have
// every factory the configuration references.
func NewRuntime(
	cfg *config.Config,
	registry *component.Registry,
	deps component.Dependencies,
	monitor *health.Monitor,
	opts ...Option,
) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Runtime", "NewRuntime", "config required")
	}
	if registry == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Runtime", "NewRuntime", "registry required")
	}
	if monitor == nil {
		monitor = health.NewMonitor()
	}

	metrics, err := newRuntimeMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize runtime metrics", "error", err)
		metrics = nil
	}

	r := &Runtime{
		cfg:            cfg,
		registry:       registry,
		deps:           deps,
		monitor:        monitor,
		logger:         deps.GetLoggerWithComponent("runtime"),
		metrics:        metrics,
		healthInterval: DefaultHealthInterval,
		stopTimeout:    DefaultStopTimeout,
		done:           make(chan struct{}),
		healthQuit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// startOrder returns enabled component configs sorted so that
// subscribers start before publishers: outputs, then processors, then
// inputs. Within a type, instance names sort alphabetically for
// deterministic startup.
func (r *Runtime) startOrder() ([]string, error) {
	rank := map[types.ComponentType]int{
		types.ComponentTypeOutput:    0,
		types.ComponentTypeProcessor: 1,
		types.ComponentTypeInput:     2,
	}

	var names []string
	for name, cc := range r.cfg.Components {
		if !cc.Enabled {
			continue
		}
		if err := cc.Validate(); err != nil {
			return nil, errors.WrapInvalid(err, "Runtime", "startOrder",
				fmt.Sprintf("component %q", name))
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Runtime", "startOrder",
			"no enabled components configured")
	}

	sort.Slice(names, func(i, j int) bool {
		ri := rank[r.cfg.Components[names[i]].Type]
		rj := rank[r.cfg.Components[names[j]].Type]
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	return names, nil
}

// Start creates and starts every enabled component. On any failure the
// components already started are stopped in reverse order and the
// error is returned.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Runtime", "Start", "check running state")
	}

	order, err := r.startOrder()
	if err != nil {
		return err
	}

	var finite []FiniteSource
	for _, name := range order {
		cc := r.cfg.Components[name]
		start := time.Now()

		comp, err := r.registry.CreateComponent(name, cc, r.deps)
		if err != nil {
			r.metrics.recordStart(name, false, time.Since(start))
			r.stopStartedLocked()
			return errors.Wrap(err, "Runtime", "Start", fmt.Sprintf("create %q", name))
		}

		if lc, ok := comp.(component.LifecycleComponent); ok {
			if err := lc.Initialize(); err != nil {
				r.metrics.recordStart(name, false, time.Since(start))
				r.registry.UnregisterInstance(name)
				r.stopStartedLocked()
				return errors.Wrap(err, "Runtime", "Start", fmt.Sprintf("initialize %q", name))
			}
			if err := lc.Start(ctx); err != nil {
				r.metrics.recordStart(name, false, time.Since(start))
				r.registry.UnregisterInstance(name)
				r.stopStartedLocked()
				return errors.Wrap(err, "Runtime", "Start", fmt.Sprintf("start %q", name))
			}
		}

		r.started = append(r.started, instance{name: name, typ: cc.Type, comp: comp})
		r.monitor.UpdateHealthy(name, "started")
		r.metrics.recordStart(name, true, time.Since(start))
		r.logger.Info("Component started",
			"instance", name,
			"factory", cc.Name,
			"type", cc.Type.String())

		if fs, ok := comp.(FiniteSource); ok {
			finite = append(finite, fs)
		}
	}

	for _, warning := range checkWiring(r.started) {
		r.logger.Warn("Pipeline wiring", "detail", warning)
	}

	r.running = true
	r.metrics.setRunning(len(r.started))

	r.wg.Add(1)
	go r.healthLoop()

	if len(finite) > 0 {
		r.wg.Add(1)
		go r.watchFiniteSources(finite)
	}

	r.logger.Info("Pipeline started",
		"pipeline", r.cfg.Pipeline.ID,
		"components", len(r.started))
	return nil
}

// stopStartedLocked unwinds partially started components. Callers hold r.mu.
func (r *Runtime) stopStartedLocked() {
	for i := len(r.started) - 1; i >= 0; i-- {
		inst := r.started[i]
		if lc, ok := inst.comp.(component.LifecycleComponent); ok {
			if err := lc.Stop(r.stopTimeout); err != nil {
				r.logger.Warn("Failed to stop component during unwind",
					"instance", inst.name, "error", err)
			}
		}
		r.registry.UnregisterInstance(inst.name)
	}
	r.started = nil
}

// watchFiniteSources closes r.done after every bounded input drains.
func (r *Runtime) watchFiniteSources(sources []FiniteSource) {
	defer r.wg.Done()
	for _, src := range sources {
		select {
		case <-src.Done():
		case <-r.healthQuit:
			return
		}
	}
	r.logger.Info("All bounded inputs drained")
	close(r.done)
}

// Done returns a channel that closes once every bounded input component
// has exhausted its source. Pipelines with only unbounded inputs never
// close it.
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

// healthLoop mirrors component health into the monitor.
func (r *Runtime) healthLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.pollHealth()
		case <-r.healthQuit:
			return
		}
	}
}

func (r *Runtime) pollHealth() {
	r.mu.Lock()
	snapshot := make([]instance, len(r.started))
	copy(snapshot, r.started)
	r.mu.Unlock()

	for _, inst := range snapshot {
		hs := inst.comp.Health()
		if hs.Healthy {
			r.monitor.UpdateHealthy(inst.name, "running")
		} else {
			r.monitor.UpdateUnhealthy(inst.name,
				fmt.Sprintf("unhealthy, %d errors", hs.ErrorCount))
		}
	}
}

// Components returns the names of started components in start order.
func (r *Runtime) Components() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.started))
	for i, inst := range r.started {
		names[i] = inst.name
	}
	return names
}

// Stop shuts the pipeline down in reverse start order, so inputs quiet
// down before the processor and outputs drain. The first error is
// returned after every component has been given a chance to stop.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}

	close(r.healthQuit)

	var firstErr error
	for i := len(r.started) - 1; i >= 0; i-- {
		inst := r.started[i]
		start := time.Now()

		var err error
		if lc, ok := inst.comp.(component.LifecycleComponent); ok {
			err = lc.Stop(r.stopTimeout)
		}
		r.metrics.recordStop(inst.name, err == nil, time.Since(start))
		if err != nil {
			r.logger.Error("Failed to stop component", "instance", inst.name, "error", err)
			if firstErr == nil {
				firstErr = errors.Wrap(err, "Runtime", "Stop", fmt.Sprintf("stop %q", inst.name))
			}
		} else {
			r.monitor.UpdateUnhealthy(inst.name, "stopped")
			r.logger.Info("Component stopped", "instance", inst.name)
		}
		r.registry.UnregisterInstance(inst.name)
	}

	r.started = nil
	r.running = false
	r.metrics.setRunning(0)

	// Health and finite-source watchers exit on healthQuit.
	r.wg.Wait()

	r.logger.Info("Pipeline stopped", "pipeline", r.cfg.Pipeline.ID)
	return firstErr
}
