// Package redis provides an output component that keeps the latest
// summary per customer in Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/errors"
	"github.com/awmatheson/recoverable-cart-join/message"
	"github.com/awmatheson/recoverable-cart-join/natsclient"
)

// commander is the subset of the Redis client the output uses. Tests
// substitute a fake.
type commander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Config holds configuration for the Redis output component.
type Config struct {
	Ports      *component.PortConfig `json:"ports"`
	Addr       string                `json:"addr"`
	Password   string                `json:"password"`
	DB         int                   `json:"db"`
	KeyPrefix  string                `json:"key_prefix"`
	TTLSeconds int                   `json:"ttl_seconds"` // 0 keeps entries forever
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "RedisOutput", "Validate", "addr is required")
	}
	if c.DB < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RedisOutput", "Validate", "db must not be negative")
	}
	if c.TTLSeconds < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RedisOutput", "Validate", "ttl_seconds must not be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for the Redis output.
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
		Addr:      "localhost:6379",
		KeyPrefix: "cartjoin:summary:",
	}
}

var redisSchema = component.ConfigSchema{
	Properties: map[string]component.PropertySchema{
		"ports": {
			Type:        "object",
			Description: "Input port configuration",
		},
		"addr": {
			Type:        "string",
			Description: "Redis server address",
			Default:     "localhost:6379",
		},
		"password": {
			Type:        "string",
			Description: "Redis password",
		},
		"db": {
			Type:        "int",
			Description: "Redis database number",
		},
		"key_prefix": {
			Type:        "string",
			Description: "Prefix for per-customer keys",
			Default:     "cartjoin:summary:",
		},
		"ttl_seconds": {
			Type:        "int",
			Description: "Entry expiry in seconds (0 keeps forever)",
		},
	},
	Required: []string{"addr"},
}

// Output stores the latest summary per customer under a prefixed key.
// Per-customer NATS ordering makes the stored value the newest summary.
type Output struct {
	name       string
	subjects   []string
	addr       string
	keyPrefix  string
	ttl        time.Duration
	natsClient natsclient.Conn
	logger     *slog.Logger

	// newClient builds the Redis client at Start. Tests replace it.
	newClient func() commander
	client    commander
	clientMu  sync.Mutex

	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex

	summariesStored int64
	errorCount      int64
	lastActivity    atomic.Value // stores time.Time
}

var (
	_ component.Discoverable       = (*Output)(nil)
	_ component.LifecycleComponent = (*Output)(nil)
)

// NewOutput creates a new Redis output from configuration.
func NewOutput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := component.SafeUnmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "RedisOutput", "NewOutput", "config unmarshal")
		}
	}
	if config.Ports == nil {
		config.Ports = DefaultConfig().Ports
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "cartjoin:summary:"
	}

	var inputSubjects []string
	for _, input := range config.Ports.Inputs {
		if input.Type == "nats" {
			inputSubjects = append(inputSubjects, input.Subject)
		}
	}
	if len(inputSubjects) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "RedisOutput", "NewOutput", "no input subjects configured")
	}

	out := &Output{
		name:       "redis-output",
		subjects:   inputSubjects,
		addr:       config.Addr,
		keyPrefix:  config.KeyPrefix,
		ttl:        time.Duration(config.TTLSeconds) * time.Second,
		natsClient: deps.NATSClient,
		logger:     deps.GetLoggerWithComponent("redis-output"),
	}
	out.lastActivity.Store(time.Time{})
	out.newClient = func() commander {
		return redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		})
	}
	return out, nil
}

// Initialize prepares the output.
func (o *Output) Initialize() error {
	return nil
}

// Start connects to Redis and subscribes to the summary subjects.
func (o *Output) Start(ctx context.Context) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	if o.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "RedisOutput", "Start", "check running state")
	}
	if o.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "RedisOutput", "Start", "NATS client required")
	}

	client := o.newClient()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return errors.WrapTransient(err, "RedisOutput", "Start", fmt.Sprintf("ping %s", o.addr))
	}
	o.clientMu.Lock()
	o.client = client
	o.clientMu.Unlock()

	for _, subject := range o.subjects {
		if err := o.natsClient.Subscribe(ctx, subject, o.handleMessage); err != nil {
			return errors.WrapTransient(err, "RedisOutput", "Start", fmt.Sprintf("subscribe to %s", subject))
		}
	}

	o.mu.Lock()
	o.running = true
	o.startTime = time.Now()
	o.mu.Unlock()

	o.logger.Info("Redis output started",
		"addr", o.addr,
		"key_prefix", o.keyPrefix,
		"ttl", o.ttl)

	return nil
}

// Stop closes the Redis connection.
func (o *Output) Stop(_ time.Duration) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	if !o.running {
		return nil
	}

	o.clientMu.Lock()
	if o.client != nil {
		if err := o.client.Close(); err != nil {
			o.logger.Warn("Failed to close Redis client", "error", err)
		}
		o.client = nil
	}
	o.clientMu.Unlock()

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	return nil
}

// handleMessage stores one summary under the customer's key.
func (o *Output) handleMessage(ctx context.Context, msgData []byte) {
	o.lastActivity.Store(time.Now())

	var msg message.BaseMessage
	if err := json.Unmarshal(msgData, &msg); err != nil {
		atomic.AddInt64(&o.errorCount, 1)
		o.logger.Debug("Failed to parse summary envelope", "error", err)
		return
	}
	summary, ok := msg.Payload().(*message.SummaryPayload)
	if !ok {
		atomic.AddInt64(&o.errorCount, 1)
		o.logger.Debug("Payload is not a summary", "type", fmt.Sprintf("%T", msg.Payload()))
		return
	}

	value, err := json.Marshal(summary)
	if err != nil {
		atomic.AddInt64(&o.errorCount, 1)
		o.logger.Error("Failed to marshal summary", "error", err)
		return
	}

	o.clientMu.Lock()
	client := o.client
	o.clientMu.Unlock()
	if client == nil {
		atomic.AddInt64(&o.errorCount, 1)
		return
	}

	key := o.keyPrefix + summary.CustomerID
	if err := client.Set(ctx, key, value, o.ttl).Err(); err != nil {
		atomic.AddInt64(&o.errorCount, 1)
		o.logger.Error("Failed to store summary",
			"key", key,
			"error", err)
		return
	}
	atomic.AddInt64(&o.summariesStored, 1)
}

// Meta returns component metadata.
func (o *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        o.name,
		Type:        "output",
		Description: fmt.Sprintf("Latest-summary store in Redis at %s", o.addr),
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

// OutputPorts returns no ports; Redis is an external sink.
func (o *Output) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (o *Output) ConfigSchema() component.ConfigSchema {
	return redisSchema
}

// Health returns the current health status.
func (o *Output) Health() component.HealthStatus {
	o.mu.RLock()
	running := o.running
	started := o.startTime
	o.mu.RUnlock()

	o.clientMu.Lock()
	hasClient := o.client != nil
	o.clientMu.Unlock()

	return component.HealthStatus{
		Healthy:    running && hasClient,
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&o.errorCount)),
		Uptime:     time.Since(started),
	}
}

// DataFlow returns current data flow metrics.
func (o *Output) DataFlow() component.FlowMetrics {
	stored := atomic.LoadInt64(&o.summariesStored)
	errorCount := atomic.LoadInt64(&o.errorCount)

	var errorRate float64
	if total := stored + errorCount; total > 0 {
		errorRate = float64(errorCount) / float64(total)
	}

	last, _ := o.lastActivity.Load().(time.Time)
	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: last,
	}
}

// Register registers the Redis output with the given registry.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "redis",
		Factory:     NewOutput,
		Schema:      redisSchema,
		Type:        "output",
		Protocol:    "redis",
		Domain:      "delivery",
		Description: "Latest-summary store keyed by customer id in Redis",
		Version:     "0.1.0",
	})
}
