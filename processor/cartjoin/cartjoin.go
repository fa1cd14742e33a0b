package cartjoin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/errors"
	"github.com/awmatheson/recoverable-cart-join/join"
	"github.com/awmatheson/recoverable-cart-join/message"
	"github.com/awmatheson/recoverable-cart-join/natsclient"
)

const componentName = "cart-join-processor"

// Config holds configuration for the cart join processor.
type Config struct {
	Ports     *component.PortConfig `json:"ports"`
	Shards    int                   `json:"shards"`     // Worker shards for cross-key parallelism
	QueueSize int                   `json:"queue_size"` // Per-shard queue depth
}

// Validate checks the configuration bounds.
func (c *Config) Validate() error {
	if c.Shards < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "CartJoinProcessor", "Validate", "shards must not be negative")
	}
	if c.QueueSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "CartJoinProcessor", "Validate", "queue_size must not be negative")
	}
	return nil
}

// DefaultConfig returns the default configuration for the cart join processor.
func DefaultConfig() Config {
	inputDefs := []component.PortDefinition{
		{
			Name:        "nats_input",
			Type:        "nats",
			Subject:     "raw.cart.events",
			Interface:   "cart.event.v1",
			Required:    true,
			Description: "NATS subject carrying raw cart event lines",
		},
	}

	outputDefs := []component.PortDefinition{
		{
			Name:        "nats_output",
			Type:        "nats",
			Subject:     "cart.summaries",
			Interface:   "cart.summary.v1",
			Required:    true,
			Description: "NATS subject for per-customer summaries",
		},
	}

	return Config{
		Ports: &component.PortConfig{
			Inputs:  inputDefs,
			Outputs: outputDefs,
		},
		Shards:    join.DefaultStoreShards,
		QueueSize: 256,
	}
}

// cartJoinSchema defines the configuration schema for the cart join processor.
var cartJoinSchema = component.ConfigSchema{
	Properties: map[string]component.PropertySchema{
		"ports": {
			Type:        "object",
			Description: "Input and output port configuration",
		},
		"shards": {
			Type:        "int",
			Description: "Number of worker shards (0 uses the default)",
			Default:     join.DefaultStoreShards,
		},
		"queue_size": {
			Type:        "int",
			Description: "Per-shard event queue depth (0 uses the default)",
			Default:     256,
		},
	},
}

// Processor joins order and payment events per customer and publishes a
// summary after every applied event.
type Processor struct {
	name        string
	subjects    []string
	outputSubjs []string
	engine      *join.Engine
	natsClient  natsclient.Conn
	logger      *slog.Logger

	// Lifecycle management
	running     bool
	startTime   time.Time
	runCtx      context.Context
	mu          sync.RWMutex
	lifecycleMu sync.Mutex

	// Metrics (atomic counters for DataFlow)
	messagesProcessed int64
	summariesEmitted  int64
	errorCount        int64
	lastActivity      atomic.Value // stores time.Time

	// Prometheus metrics
	metrics *joinMetrics
}

// NewProcessor creates a new cart join processor from configuration.
func NewProcessor(
	rawConfig json.RawMessage, deps component.Dependencies,
) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := component.SafeUnmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "CartJoinProcessor", "NewProcessor", "config unmarshal")
		}
	}
	if config.Ports == nil {
		defaults := DefaultConfig()
		config.Ports = defaults.Ports
	}

	var inputSubjects []string
	var outputSubjects []string
	for _, input := range config.Ports.Inputs {
		if input.Type == "nats" {
			inputSubjects = append(inputSubjects, input.Subject)
		}
	}
	for _, output := range config.Ports.Outputs {
		if output.Type == "nats" {
			outputSubjects = append(outputSubjects, output.Subject)
		}
	}

	if len(inputSubjects) == 0 {
		return nil, errors.WrapInvalid(
			errors.ErrInvalidConfig, "CartJoinProcessor", "NewProcessor",
			"no input subjects configured")
	}

	metrics, err := newJoinMetrics(deps.MetricsRegistry, componentName)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize cart join metrics", "error", err)
		metrics = nil // Continue without metrics
	}

	p := &Processor{
		name:        componentName,
		subjects:    inputSubjects,
		outputSubjs: outputSubjects,
		natsClient:  deps.NATSClient,
		logger:      deps.GetLoggerWithComponent(componentName),
		metrics:     metrics,
	}
	p.lastActivity.Store(time.Time{})

	engineOpts := []join.EngineOption{
		join.WithReporter(deps.GetReporter()),
		join.WithLogger(p.logger),
	}
	if config.Shards > 0 {
		engineOpts = append(engineOpts, join.WithShards(config.Shards))
	}
	if config.QueueSize > 0 {
		engineOpts = append(engineOpts, join.WithQueueSize(config.QueueSize))
	}
	if deps.MetricsRegistry != nil {
		engineOpts = append(engineOpts, join.WithMetricsRegistry(deps.MetricsRegistry))
	}
	p.engine = join.NewEngine(p.publishSummary, engineOpts...)

	return p, nil
}

// Initialize prepares the processor.
func (p *Processor) Initialize() error {
	return nil
}

// Start subscribes to raw event subjects and starts the join workers.
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "CartJoinProcessor", "Start", "check running state")
	}
	if p.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "CartJoinProcessor", "Start", "NATS client required")
	}

	if err := p.engine.Start(ctx); err != nil {
		return errors.WrapTransient(err, "CartJoinProcessor", "Start", "start join engine")
	}

	for _, subject := range p.subjects {
		if err := p.natsClient.Subscribe(ctx, subject, p.handleMessage); err != nil {
			p.logger.Error("Failed to subscribe to NATS subject",
				"subject", subject,
				"error", err)
			return errors.WrapTransient(err, "CartJoinProcessor", "Start", fmt.Sprintf("subscribe to %s", subject))
		}
	}

	p.mu.Lock()
	p.running = true
	p.startTime = time.Now()
	p.runCtx = ctx
	p.mu.Unlock()

	p.logger.Info("Cart join processor started",
		"input_subjects", p.subjects,
		"output_subjects", p.outputSubjs)

	return nil
}

// Stop drains the join workers. In-flight events finish before return.
func (p *Processor) Stop(_ time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.running {
		return nil
	}

	err := p.engine.Stop()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	if err != nil && !errors.IsFatal(err) {
		return errors.WrapTransient(err, "CartJoinProcessor", "Stop", "drain join engine")
	}
	return err
}

// handleMessage feeds one raw line into the join engine.
func (p *Processor) handleMessage(ctx context.Context, msgData []byte) {
	start := time.Now()
	atomic.AddInt64(&p.messagesProcessed, 1)
	p.lastActivity.Store(time.Now())

	if err := p.engine.Process(ctx, msgData); err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		if errors.IsFatal(err) {
			p.metrics.recordError(p.name, "fatal")
			p.logger.Error("Join engine stopped on fatal error", "error", err)
		} else {
			p.metrics.recordError(p.name, "process")
			p.logger.Warn("Failed to process event line", "error", err)
		}
		p.metrics.recordMessage(p.name, "error", time.Since(start))
		return
	}

	p.metrics.recordMessage(p.name, "applied", time.Since(start))
}

// publishSummary wraps a summary in a message envelope and publishes it to
// every output subject. Called from join workers, so per-customer ordering
// follows the worker's ordering guarantee.
func (p *Processor) publishSummary(customerID string, summary *message.SummaryPayload) {
	p.mu.RLock()
	ctx := p.runCtx
	p.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	msg := message.NewBaseMessage(message.SummaryType, summary, p.name)
	data, err := json.Marshal(msg)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		p.metrics.recordError(p.name, "marshal")
		p.logger.Error("Failed to marshal summary",
			"customer_id", customerID,
			"error", err)
		return
	}

	for _, subject := range p.outputSubjs {
		if subject == "" {
			continue
		}
		if err := p.natsClient.Publish(ctx, subject, data); err != nil {
			atomic.AddInt64(&p.errorCount, 1)
			p.metrics.recordError(p.name, "publish")
			p.logger.Error("Failed to publish summary",
				"subject", subject,
				"customer_id", customerID,
				"error", err)
			continue
		}
		atomic.AddInt64(&p.summariesEmitted, 1)
		p.metrics.recordSummary(p.name, subject)
	}
}

// Engine exposes the underlying join engine for direct feeding and state
// inspection.
func (p *Processor) Engine() *join.Engine {
	return p.engine
}

// Discoverable interface implementation

// Meta returns metadata describing this processor component.
func (p *Processor) Meta() component.Metadata {
	return component.Metadata{
		Name:        p.name,
		Type:        "processor",
		Description: "Per-customer order/payment join with summary emission",
		Version:     "0.1.0",
	}
}

// InputPorts returns the NATS input ports this processor subscribes to.
func (p *Processor) InputPorts() []component.Port {
	ports := make([]component.Port, len(p.subjects))
	for i, subj := range p.subjects {
		ports[i] = component.Port{
			Name:      fmt.Sprintf("input_%d", i),
			Direction: component.DirectionInput,
			Required:  true,
			Config: component.NATSPort{
				Subject: subj,
				Interface: &component.InterfaceContract{
					Type:    "cart.event.v1",
					Version: "v1",
				},
			},
		}
	}
	return ports
}

// OutputPorts returns the NATS output ports for summaries.
func (p *Processor) OutputPorts() []component.Port {
	ports := make([]component.Port, 0, len(p.outputSubjs))
	for i, subject := range p.outputSubjs {
		ports = append(ports, component.Port{
			Name:      fmt.Sprintf("output_%d", i),
			Direction: component.DirectionOutput,
			Required:  false,
			Config: component.NATSPort{
				Subject: subject,
				Interface: &component.InterfaceContract{
					Type:    "cart.summary.v1",
					Version: "v1",
				},
			},
		})
	}
	return ports
}

// ConfigSchema returns the configuration schema for this processor.
func (p *Processor) ConfigSchema() component.ConfigSchema {
	return cartJoinSchema
}

// Health returns the current health status of this processor. A fatal
// join error makes the processor unhealthy.
func (p *Processor) Health() component.HealthStatus {
	p.mu.RLock()
	running := p.running
	started := p.startTime
	p.mu.RUnlock()

	status := component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&p.errorCount)),
	}
	if running {
		status.Uptime = time.Since(started)
	}
	if err := p.engine.Err(); err != nil {
		status.Healthy = false
		status.LastError = err.Error()
	}
	return status
}

// DataFlow returns current data flow metrics for this processor.
func (p *Processor) DataFlow() component.FlowMetrics {
	processed := atomic.LoadInt64(&p.messagesProcessed)
	errorCount := atomic.LoadInt64(&p.errorCount)

	var errorRate float64
	if processed > 0 {
		errorRate = float64(errorCount) / float64(processed)
	}

	last, _ := p.lastActivity.Load().(time.Time)
	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: last,
	}
}

// Register registers the cart join processor with the given registry.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "cart_join",
		Factory:     NewProcessor,
		Schema:      cartJoinSchema,
		Type:        "processor",
		Protocol:    "cart_join",
		Domain:      "join",
		Description: "Keyed order/payment join emitting per-customer summaries",
		Version:     "0.1.0",
	})
}
