// Package websocket provides a WebSocket input component that receives raw
// cart event lines from a remote endpoint and republishes them to NATS.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/errors"
	"github.com/awmatheson/recoverable-cart-join/metric"
	"github.com/awmatheson/recoverable-cart-join/natsclient"
)

// Metrics holds Prometheus metrics for the WebSocket input component.
type Metrics struct {
	messagesReceived  prometheus.Counter
	messagesPublished prometheus.Counter
	reconnectAttempts prometheus.Counter
	errorsTotal       *prometheus.CounterVec
}

func newMetrics(registry *metric.Registry, componentName string) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "websocket_input",
			Name:      "messages_received_total",
			Help:      "Total messages received via WebSocket",
		}),
		messagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "websocket_input",
			Name:      "messages_published_total",
			Help:      "Total messages published to NATS",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "websocket_input",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnection attempts",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "websocket_input",
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"component", "type"}),
	}

	_ = registry.RegisterCounter(componentName, "messages_received", m.messagesReceived)
	_ = registry.RegisterCounter(componentName, "messages_published", m.messagesPublished)
	_ = registry.RegisterCounter(componentName, "reconnect_attempts", m.reconnectAttempts)
	_ = registry.RegisterCounterVec(componentName, "errors", m.errorsTotal)
	return m
}

// Config holds configuration for the WebSocket input component.
type Config struct {
	Ports *component.PortConfig `json:"ports"`
	URL   string                `json:"url"` // Remote endpoint, ws:// or wss://

	// ReconnectWaitSeconds is the base delay between reconnect attempts.
	// The delay doubles per failure up to MaxReconnectWaitSeconds.
	ReconnectWaitSeconds    int `json:"reconnect_wait_seconds"`
	MaxReconnectWaitSeconds int `json:"max_reconnect_wait_seconds"`

	// PingIntervalSeconds controls keepalive pings. Zero disables pings.
	PingIntervalSeconds int `json:"ping_interval_seconds"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "WebSocketInput", "Validate", "url is required")
	}
	if c.ReconnectWaitSeconds < 0 || c.MaxReconnectWaitSeconds < 0 || c.PingIntervalSeconds < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "WebSocketInput", "Validate", "intervals must not be negative")
	}
	return nil
}

// DefaultConfig returns sensible defaults for the WebSocket input.
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
		ReconnectWaitSeconds:    1,
		MaxReconnectWaitSeconds: 30,
		PingIntervalSeconds:     30,
	}
}

var wsInputSchema = component.ConfigSchema{
	Properties: map[string]component.PropertySchema{
		"ports": {
			Type:        "object",
			Description: "Output port configuration",
		},
		"url": {
			Type:        "string",
			Description: "WebSocket endpoint serving raw event lines",
		},
		"reconnect_wait_seconds": {
			Type:        "int",
			Description: "Base delay between reconnect attempts",
			Default:     1,
		},
		"max_reconnect_wait_seconds": {
			Type:        "int",
			Description: "Upper bound on the reconnect backoff",
			Default:     30,
		},
		"ping_interval_seconds": {
			Type:        "int",
			Description: "Keepalive ping interval (0 disables)",
			Default:     30,
		},
	},
	Required: []string{"url"},
}

// Input connects to a remote WebSocket endpoint and republishes every
// received message to a NATS subject. The connection is re-established
// with exponential backoff after failures.
type Input struct {
	name       string
	url        string
	subject    string
	natsClient natsclient.Conn
	logger     *slog.Logger

	reconnectWait    time.Duration
	maxReconnectWait time.Duration
	pingInterval     time.Duration

	conn   *websocket.Conn
	connMu sync.Mutex

	shutdown  chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup

	messagesReceived atomic.Int64
	bytesReceived    atomic.Int64
	errorCount       atomic.Int64
	lastActivity     atomic.Value // stores time.Time

	metrics *Metrics
}

var (
	_ component.Discoverable       = (*Input)(nil)
	_ component.LifecycleComponent = (*Input)(nil)
)

// NewInput creates a new WebSocket input component from configuration.
func NewInput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &config); err != nil {
		return nil, errors.WrapInvalid(err, "WebSocketInput", "NewInput", "config unmarshal")
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
			"WebSocketInput", "NewInput", "no NATS output subject configured")
	}

	in := &Input{
		name:             "websocket-input",
		url:              config.URL,
		subject:          subject,
		natsClient:       deps.NATSClient,
		logger:           deps.GetLoggerWithComponent("websocket-input"),
		reconnectWait:    time.Duration(config.ReconnectWaitSeconds) * time.Second,
		maxReconnectWait: time.Duration(config.MaxReconnectWaitSeconds) * time.Second,
		pingInterval:     time.Duration(config.PingIntervalSeconds) * time.Second,
		metrics:          newMetrics(deps.MetricsRegistry, "websocket_input"),
	}
	if in.reconnectWait <= 0 {
		in.reconnectWait = time.Second
	}
	if in.maxReconnectWait < in.reconnectWait {
		in.maxReconnectWait = in.reconnectWait
	}
	in.lastActivity.Store(time.Time{})
	return in, nil
}

// Initialize validates the component is runnable.
func (in *Input) Initialize() error {
	if in.natsClient == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "WebSocketInput", "Initialize", "NATS client required")
	}
	return nil
}

// Start begins the connect/read loop.
func (in *Input) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.running.Load() {
		return nil // Already running, idempotent
	}

	in.shutdown = make(chan struct{})
	in.running.Store(true)
	in.startTime = time.Now()

	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		in.connectLoop(ctx)
	}()

	return nil
}

// connectLoop maintains the connection, reconnecting with backoff.
func (in *Input) connectLoop(ctx context.Context) {
	backoff := in.reconnectWait

	for {
		select {
		case <-ctx.Done():
			return
		case <-in.shutdown:
			return
		default:
		}

		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, in.url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			in.errorCount.Add(1)
			if in.metrics != nil {
				in.metrics.reconnectAttempts.Inc()
				in.metrics.errorsTotal.WithLabelValues(in.name, "dial").Inc()
			}
			in.logger.Warn("WebSocket dial failed",
				"url", in.url,
				"retry_in", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return
			case <-in.shutdown:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > in.maxReconnectWait {
				backoff = in.maxReconnectWait
			}
			continue
		}

		backoff = in.reconnectWait
		in.connMu.Lock()
		in.conn = conn
		in.connMu.Unlock()

		in.logger.Info("WebSocket connected", "url", in.url)
		in.readLoop(ctx, conn)

		in.connMu.Lock()
		in.conn = nil
		in.connMu.Unlock()
		_ = conn.Close()
	}
}

// readLoop reads messages until the connection fails or shutdown.
func (in *Input) readLoop(ctx context.Context, conn *websocket.Conn) {
	if in.pingInterval > 0 {
		pingDone := make(chan struct{})
		defer close(pingDone)
		go func() {
			ticker := time.NewTicker(in.pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-pingDone:
					return
				case <-in.shutdown:
					return
				case <-ticker.C:
					deadline := time.Now().Add(10 * time.Second)
					if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
						return
					}
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-in.shutdown:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-in.shutdown:
			default:
				in.errorCount.Add(1)
				if in.metrics != nil {
					in.metrics.errorsTotal.WithLabelValues(in.name, "read").Inc()
				}
				in.logger.Warn("WebSocket read failed", "url", in.url, "error", err)
			}
			return
		}

		in.messagesReceived.Add(1)
		in.bytesReceived.Add(int64(len(data)))
		in.lastActivity.Store(time.Now())
		if in.metrics != nil {
			in.metrics.messagesReceived.Inc()
		}

		if err := in.natsClient.Publish(ctx, in.subject, data); err != nil {
			in.errorCount.Add(1)
			if in.metrics != nil {
				in.metrics.errorsTotal.WithLabelValues(in.name, "publish").Inc()
			}
			in.logger.Error("Failed to publish received message",
				"subject", in.subject,
				"error", err)
			continue
		}
		if in.metrics != nil {
			in.metrics.messagesPublished.Inc()
		}
	}
}

// Stop closes the connection and waits for the loops.
func (in *Input) Stop(timeout time.Duration) error {
	if !in.running.Load() {
		return nil
	}
	in.running.Store(false)

	in.mu.Lock()
	close(in.shutdown)
	in.mu.Unlock()

	in.connMu.Lock()
	if in.conn != nil {
		// Closing unblocks a pending ReadMessage.
		_ = in.conn.Close()
	}
	in.connMu.Unlock()

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
			"WebSocketInput", "Stop", "wait for read loop")
	}
}

// Meta returns component metadata.
func (in *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        in.name,
		Type:        "input",
		Description: fmt.Sprintf("WebSocket client on %s publishing to %s", in.url, in.subject),
		Version:     "0.1.0",
	}
}

// InputPorts returns no ports; the remote endpoint is an external source.
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
	return wsInputSchema
}

// Health reports whether the component is running and connected.
func (in *Input) Health() component.HealthStatus {
	in.connMu.Lock()
	connected := in.conn != nil
	in.connMu.Unlock()

	return component.HealthStatus{
		Healthy:    in.running.Load() && connected,
		LastCheck:  time.Now(),
		ErrorCount: int(in.errorCount.Load()),
		Uptime:     time.Since(in.startTime),
	}
}

// DataFlow returns current throughput metrics.
func (in *Input) DataFlow() component.FlowMetrics {
	messages := in.messagesReceived.Load()
	bytes := in.bytesReceived.Load()
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

// Register registers the WebSocket input with the given registry.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "websocket",
		Factory:     NewInput,
		Schema:      wsInputSchema,
		Type:        "input",
		Protocol:    "websocket",
		Domain:      "ingest",
		Description: "WebSocket client pulling raw cart event lines",
		Version:     "0.1.0",
	})
}
