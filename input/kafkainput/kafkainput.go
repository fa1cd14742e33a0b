// Package kafkainput provides an input component that consumes cart event
// lines from a Kafka topic and republishes them to NATS.
package kafkainput

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/errors"
	"github.com/awmatheson/recoverable-cart-join/metric"
	"github.com/awmatheson/recoverable-cart-join/natsclient"
	"github.com/awmatheson/recoverable-cart-join/pkg/retry"
)

// messageReader abstracts kafka.Reader so tests can substitute a fake.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Metrics holds Prometheus metrics for the Kafka input component.
type Metrics struct {
	messagesConsumed prometheus.Counter
	bytesConsumed    prometheus.Counter
	readErrors       prometheus.Counter
	publishErrors    prometheus.Counter
}

func newMetrics(registry *metric.Registry, instance string) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		messagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "kafka_input",
			Name:      "messages_consumed_total",
			Help:      "Total messages consumed from Kafka",
		}),
		bytesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "kafka_input",
			Name:      "bytes_consumed_total",
			Help:      "Total bytes consumed from Kafka",
		}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "kafka_input",
			Name:      "read_errors_total",
			Help:      "Kafka read errors encountered",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "kafka_input",
			Name:      "publish_errors_total",
			Help:      "Messages that failed to publish after retries",
		}),
	}

	_ = registry.RegisterCounter(instance, "messages_consumed", m.messagesConsumed)
	_ = registry.RegisterCounter(instance, "bytes_consumed", m.bytesConsumed)
	_ = registry.RegisterCounter(instance, "read_errors", m.readErrors)
	_ = registry.RegisterCounter(instance, "publish_errors", m.publishErrors)
	return m
}

// Config holds configuration for the Kafka input component.
type Config struct {
	Ports   *component.PortConfig `json:"ports"`
	Brokers []string              `json:"brokers"`
	Topic   string                `json:"topic"`
	GroupID string                `json:"group_id"`

	// MinBytes and MaxBytes tune the reader's fetch sizes. Zero values
	// use the kafka-go defaults.
	MinBytes int `json:"min_bytes"`
	MaxBytes int `json:"max_bytes"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "KafkaInput", "Validate", "at least one broker is required")
	}
	if c.Topic == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "KafkaInput", "Validate", "topic is required")
	}
	if c.MinBytes < 0 || c.MaxBytes < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "KafkaInput", "Validate", "fetch sizes must not be negative")
	}
	return nil
}

// DefaultConfig returns sensible defaults for the Kafka input.
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Outputs: []component.PortDefinition{
				{
					Name:        "nats_output",
					Type:        "nats",
					Subject:     "raw.cart.events",
					Required:    true,
					Description: "NATS subject for raw event lines",
				},
			},
		},
		Brokers: []string{"localhost:9092"},
		Topic:   "cart-events",
		GroupID: "cartjoin",
	}
}

var kafkaInputSchema = component.ConfigSchema{
	Properties: map[string]component.PropertySchema{
		"ports": {
			Type:        "object",
			Description: "Output port configuration",
		},
		"brokers": {
			Type:        "array",
			Description: "Kafka bootstrap broker addresses",
		},
		"topic": {
			Type:        "string",
			Description: "Topic carrying raw cart event lines",
			Default:     "cart-events",
		},
		"group_id": {
			Type:        "string",
			Description: "Consumer group id",
			Default:     "cartjoin",
		},
		"min_bytes": {
			Type:        "int",
			Description: "Minimum fetch size in bytes (0 uses the client default)",
		},
		"max_bytes": {
			Type:        "int",
			Description: "Maximum fetch size in bytes (0 uses the client default)",
		},
	},
	Required: []string{"brokers", "topic"},
}

// Input consumes event lines from a Kafka topic and republishes each
// message value to a NATS subject.
type Input struct {
	name       string
	brokers    []string
	topic      string
	groupID    string
	subject    string
	natsClient natsclient.Conn
	logger     *slog.Logger

	retryConfig retry.Config

	// newReader builds the reader at Start. Tests replace it.
	newReader func() messageReader
	reader    messageReader

	shutdown  chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup

	messagesConsumed atomic.Int64
	bytesConsumed    atomic.Int64
	errorCount       atomic.Int64
	lastActivity     atomic.Value // stores time.Time

	metrics *Metrics
}

var _ component.Discoverable = (*Input)(nil)
var _ component.LifecycleComponent = (*Input)(nil)

// NewInput creates a new Kafka input component from configuration.
func NewInput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := component.SafeUnmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "KafkaInput", "NewInput", "config unmarshal")
		}
	}

	subject := ""
	if config.Ports != nil {
		for _, output := range config.Ports.Outputs {
			if output.Type == "nats" {
				subject = output.Subject
				break
			}
		}
	}
	if subject == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"KafkaInput", "NewInput", "no NATS output subject configured")
	}

	in := &Input{
		name:        "kafka-input",
		brokers:     config.Brokers,
		topic:       config.Topic,
		groupID:     config.GroupID,
		subject:     subject,
		natsClient:  deps.NATSClient,
		logger:      deps.GetLoggerWithComponent("kafka-input"),
		retryConfig: retry.DefaultConfig(),
		metrics:     newMetrics(deps.MetricsRegistry, "kafka_input"),
	}
	in.lastActivity.Store(time.Time{})
	in.newReader = func() messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  in.brokers,
			Topic:    in.topic,
			GroupID:  in.groupID,
			MinBytes: config.MinBytes,
			MaxBytes: config.MaxBytes,
		})
	}
	return in, nil
}

// Initialize validates the component is runnable.
func (in *Input) Initialize() error {
	if in.natsClient == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "KafkaInput", "Initialize", "NATS client required")
	}
	return nil
}

// Start creates the reader and begins the consume loop.
func (in *Input) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.running.Load() {
		return nil // Already running, idempotent
	}

	in.reader = in.newReader()
	in.shutdown = make(chan struct{})
	in.running.Store(true)
	in.startTime = time.Now()

	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		in.consumeLoop(ctx)
	}()

	in.logger.Info("Kafka input started",
		"brokers", in.brokers,
		"topic", in.topic,
		"group_id", in.groupID,
		"subject", in.subject)

	return nil
}

func (in *Input) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-in.shutdown:
			return
		default:
		}

		msg, err := in.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return
			}
			select {
			case <-in.shutdown:
				return
			default:
			}
			in.errorCount.Add(1)
			if in.metrics != nil {
				in.metrics.readErrors.Inc()
			}
			in.logger.Warn("Kafka read failed", "topic", in.topic, "error", err)
			time.Sleep(time.Second)
			continue
		}

		in.messagesConsumed.Add(1)
		in.bytesConsumed.Add(int64(len(msg.Value)))
		in.lastActivity.Store(time.Now())
		if in.metrics != nil {
			in.metrics.messagesConsumed.Inc()
			in.metrics.bytesConsumed.Add(float64(len(msg.Value)))
		}

		value := msg.Value
		err = retry.Do(ctx, in.retryConfig, func() error {
			return in.natsClient.Publish(ctx, in.subject, value)
		})
		if err != nil {
			in.errorCount.Add(1)
			if in.metrics != nil {
				in.metrics.publishErrors.Inc()
			}
			in.logger.Error("Failed to publish consumed message",
				"subject", in.subject,
				"error", err)
		}
	}
}

// Stop closes the reader and waits for the consume loop.
func (in *Input) Stop(timeout time.Duration) error {
	if !in.running.Load() {
		return nil
	}
	in.running.Store(false)

	in.mu.Lock()
	close(in.shutdown)
	reader := in.reader
	in.mu.Unlock()

	// Closing the reader unblocks a pending ReadMessage.
	if reader != nil {
		_ = reader.Close()
	}

	waitCh := make(chan struct{})
	go func() {
		in.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"KafkaInput", "Stop", "wait for consume loop")
	}
}

// Meta returns component metadata.
func (in *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        in.name,
		Type:        "input",
		Description: fmt.Sprintf("Kafka consumer on %s publishing to %s", in.topic, in.subject),
		Version:     "0.1.0",
	}
}

// InputPorts returns no ports; the Kafka topic is an external source,
// not a mesh port.
func (in *Input) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns the NATS output port.
func (in *Input) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:      "nats_output",
			Direction: component.DirectionOutput,
			Required:  true,
			Config: component.NATSPort{
				Subject: in.subject,
				Interface: &component.InterfaceContract{
					Type:    "cart.event.v1",
					Version: "v1",
				},
			},
		},
	}
}

// ConfigSchema returns the configuration schema.
func (in *Input) ConfigSchema() component.ConfigSchema {
	return kafkaInputSchema
}

// Health reports whether the consume loop is running.
func (in *Input) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:    in.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(in.errorCount.Load()),
		Uptime:     time.Since(in.startTime),
	}
}

// DataFlow returns current throughput metrics.
func (in *Input) DataFlow() component.FlowMetrics {
	messages := in.messagesConsumed.Load()
	bytes := in.bytesConsumed.Load()
	errorCount := in.errorCount.Load()
	lastActivity, _ := in.lastActivity.Load().(time.Time)

	var messagesPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(in.startTime).Seconds(); uptime > 0 && in.running.Load() {
		messagesPerSecond = float64(messages) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if messages > 0 {
		errorRate = float64(errorCount) / float64(messages)
	}

	return component.FlowMetrics{
		MessagesPerSecond: messagesPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Register registers the Kafka input with the given registry.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "kafka",
		Factory:     NewInput,
		Schema:      kafkaInputSchema,
		Type:        "input",
		Protocol:    "kafka",
		Domain:      "ingest",
		Description: "Kafka topic consumer for raw cart event lines",
		Version:     "0.1.0",
	})
}
