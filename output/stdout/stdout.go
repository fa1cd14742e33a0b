// Package stdout provides an output component that writes customer
// summaries to standard output, one JSON object per line.
package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/errors"
	"github.com/awmatheson/recoverable-cart-join/message"
	"github.com/awmatheson/recoverable-cart-join/natsclient"
)

// Config holds configuration for the stdout output component.
type Config struct {
	Ports *component.PortConfig `json:"ports"`

	// Format selects what is written per message: "payload" writes the
	// bare summary object, "envelope" writes the full message envelope.
	Format string `json:"format"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	switch c.Format {
	case "", "payload", "envelope":
		return nil
	}
	return errors.WrapInvalid(errors.ErrInvalidConfig, "StdoutOutput", "Validate",
		"format must be payload or envelope")
}

// DefaultConfig returns sensible defaults for the stdout output.
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "nats_input",
					Type:        "nats",
					Subject:     "cart.summaries",
					Required:    true,
					Description: "NATS subject carrying summary messages",
				},
			},
		},
		Format: "payload",
	}
}

var stdoutSchema = component.ConfigSchema{
	Properties: map[string]component.PropertySchema{
		"ports": {
			Type:        "object",
			Description: "Input port configuration",
		},
		"format": {
			Type:        "string",
			Description: "Output format per message",
			Default:     "payload",
			Enum:        []string{"payload", "envelope"},
		},
	},
}

// Output writes one summary JSON object per line. Writes are serialized
// so concurrent emissions never interleave within a line.
type Output struct {
	name       string
	subjects   []string
	format     string
	natsClient natsclient.Conn
	logger     *slog.Logger

	// writer defaults to os.Stdout. Tests substitute a buffer.
	writer  io.Writer
	writeMu sync.Mutex

	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex

	messagesWritten int64
	errorCount      int64
	lastActivity    atomic.Value // stores time.Time
}

var (
	_ component.Discoverable       = (*Output)(nil)
	_ component.LifecycleComponent = (*Output)(nil)
)

// NewOutput creates a new stdout output from configuration.
func NewOutput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := component.SafeUnmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "StdoutOutput", "NewOutput", "config unmarshal")
		}
	}
	if config.Ports == nil {
		config.Ports = DefaultConfig().Ports
	}
	if config.Format == "" {
		config.Format = "payload"
	}

	var inputSubjects []string
	for _, input := range config.Ports.Inputs {
		if input.Type == "nats" {
			inputSubjects = append(inputSubjects, input.Subject)
		}
	}
	if len(inputSubjects) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "StdoutOutput", "NewOutput", "no input subjects configured")
	}

	out := &Output{
		name:       "stdout-output",
		subjects:   inputSubjects,
		format:     config.Format,
		natsClient: deps.NATSClient,
		logger:     deps.GetLoggerWithComponent("stdout-output"),
		writer:     os.Stdout,
	}
	out.lastActivity.Store(time.Time{})
	return out, nil
}

// Initialize prepares the output.
func (o *Output) Initialize() error {
	return nil
}

// Start subscribes to the summary subjects.
func (o *Output) Start(ctx context.Context) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	if o.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "StdoutOutput", "Start", "check running state")
	}
	if o.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "StdoutOutput", "Start", "NATS client required")
	}

	for _, subject := range o.subjects {
		if err := o.natsClient.Subscribe(ctx, subject, o.handleMessage); err != nil {
			return errors.WrapTransient(err, "StdoutOutput", "Start", fmt.Sprintf("subscribe to %s", subject))
		}
	}

	o.mu.Lock()
	o.running = true
	o.startTime = time.Now()
	o.mu.Unlock()

	return nil
}

// Stop marks the output stopped. Writes are synchronous, so there is
// nothing to drain.
func (o *Output) Stop(_ time.Duration) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	return nil
}

// handleMessage writes one summary line.
func (o *Output) handleMessage(_ context.Context, msgData []byte) {
	o.lastActivity.Store(time.Now())

	line := msgData
	if o.format == "payload" {
		var msg message.BaseMessage
		if err := json.Unmarshal(msgData, &msg); err != nil {
			atomic.AddInt64(&o.errorCount, 1)
			o.logger.Debug("Failed to parse summary envelope", "error", err)
			return
		}
		payload, err := msg.Payload().MarshalJSON()
		if err != nil {
			atomic.AddInt64(&o.errorCount, 1)
			o.logger.Error("Failed to marshal summary payload", "error", err)
			return
		}
		line = payload
	}

	o.writeMu.Lock()
	_, err := o.writer.Write(append(line, '\n'))
	o.writeMu.Unlock()
	if err != nil {
		atomic.AddInt64(&o.errorCount, 1)
		o.logger.Error("Failed to write summary line", "error", err)
		return
	}
	atomic.AddInt64(&o.messagesWritten, 1)
}

// Meta returns component metadata.
func (o *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        o.name,
		Type:        "output",
		Description: "Summary writer emitting one JSON object per line on stdout",
		Version:     "0.1.0",
	}
}

// InputPorts returns the NATS input ports.
func (o *Output) InputPorts() []component.Port {
	ports := make([]component.Port, len(o.subjects))
	for i, subj := range o.subjects {
		ports[i] = component.Port{
			Name:      fmt.Sprintf("input_%d", i),
			Direction: component.DirectionInput,
			Required:  true,
			Config: component.NATSPort{
				Subject: subj,
				Interface: &component.InterfaceContract{
					Type:    "cart.summary.v1",
					Version: "v1",
				},
			},
		}
	}
	return ports
}

// OutputPorts returns no ports; stdout is the sink.
func (o *Output) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (o *Output) ConfigSchema() component.ConfigSchema {
	return stdoutSchema
}

// Health returns the current health status.
func (o *Output) Health() component.HealthStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    o.running,
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&o.errorCount)),
		Uptime:     time.Since(o.startTime),
	}
}

// DataFlow returns current data flow metrics.
func (o *Output) DataFlow() component.FlowMetrics {
	written := atomic.LoadInt64(&o.messagesWritten)
	errorCount := atomic.LoadInt64(&o.errorCount)

	var errorRate float64
	if written > 0 {
		errorRate = float64(errorCount) / float64(written)
	}

	last, _ := o.lastActivity.Load().(time.Time)
	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: last,
	}
}

// Register registers the stdout output with the given registry.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "stdout",
		Factory:     NewOutput,
		Schema:      stdoutSchema,
		Type:        "output",
		Protocol:    "stdout",
		Domain:      "delivery",
		Description: "Line-oriented summary writer for standard output",
		Version:     "0.1.0",
	})
}
