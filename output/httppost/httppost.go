// Package httppost provides an output component that delivers customer
// summaries to an HTTP endpoint via POST.
package httppost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/errors"
	"github.com/awmatheson/recoverable-cart-join/message"
	"github.com/awmatheson/recoverable-cart-join/natsclient"
	"github.com/awmatheson/recoverable-cart-join/pkg/retry"
)

// Config holds configuration for the HTTP POST output component.
type Config struct {
	Ports       *component.PortConfig `json:"ports"`
	URL         string                `json:"url"`
	Headers     map[string]string     `json:"headers"`
	Timeout     int                   `json:"timeout"`     // Seconds per request
	RetryCount  int                   `json:"retry_count"` // Attempts beyond the first
	ContentType string                `json:"content_type"`

	// Format selects what is posted: "payload" posts the bare summary
	// object, "envelope" posts the full message envelope.
	Format string `json:"format"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "HTTPPostOutput", "Validate", "url is required")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return errors.WrapInvalid(err, "HTTPPostOutput", "Validate", "invalid URL format")
	}
	if c.Timeout < 0 || c.Timeout > 300 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "HTTPPostOutput", "Validate",
			"timeout must be between 0 and 300 seconds")
	}
	if c.RetryCount < 0 || c.RetryCount > 10 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "HTTPPostOutput", "Validate",
			"retry_count must be between 0 and 10")
	}
	switch c.Format {
	case "", "payload", "envelope":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "HTTPPostOutput", "Validate",
			"format must be payload or envelope")
	}
	return nil
}

// DefaultConfig returns default configuration for the HTTP POST output.
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
		URL:         "http://localhost:8080/webhook",
		Headers:     make(map[string]string),
		Timeout:     30,
		RetryCount:  3,
		ContentType: "application/json",
		Format:      "payload",
	}
}

var httpPostSchema = component.ConfigSchema{
	Properties: map[string]component.PropertySchema{
		"ports": {
			Type:        "object",
			Description: "Input port configuration",
		},
		"url": {
			Type:        "string",
			Description: "HTTP endpoint URL",
		},
		"headers": {
			Type:        "object",
			Description: "Extra request headers",
		},
		"timeout": {
			Type:        "int",
			Description: "Request timeout in seconds",
			Default:     30,
		},
		"retry_count": {
			Type:        "int",
			Description: "Retry attempts beyond the first",
			Default:     3,
		},
		"content_type": {
			Type:        "string",
			Description: "Content-Type header",
			Default:     "application/json",
		},
		"format": {
			Type:        "string",
			Description: "What is posted per message",
			Default:     "payload",
			Enum:        []string{"payload", "envelope"},
		},
	},
	Required: []string{"url"},
}

// Output posts each summary to an HTTP endpoint. Failed requests are
// retried with exponential backoff.
type Output struct {
	name        string
	subjects    []string
	url         string
	headers     map[string]string
	retryConfig retry.Config
	contentType string
	format      string
	natsClient  natsclient.Conn
	httpClient  *http.Client
	logger      *slog.Logger

	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex

	messagesSent int64
	errorCount   int64
	lastActivity atomic.Value // stores time.Time
}

var (
	_ component.Discoverable       = (*Output)(nil)
	_ component.LifecycleComponent = (*Output)(nil)
)

// NewOutput creates a new HTTP POST output from configuration.
func NewOutput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := component.SafeUnmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "HTTPPostOutput", "NewOutput", "config unmarshal")
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
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "HTTPPostOutput", "NewOutput", "no input subjects configured")
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	retryConfig := retry.DefaultConfig()
	retryConfig.MaxAttempts = config.RetryCount + 1

	return &Output{
		name:        "httppost-output",
		subjects:    inputSubjects,
		url:         config.URL,
		headers:     config.Headers,
		retryConfig: retryConfig,
		contentType: config.ContentType,
		format:      config.Format,
		natsClient:  deps.NATSClient,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      deps.GetLoggerWithComponent("httppost-output"),
	}, nil
}

// Initialize prepares the output.
func (h *Output) Initialize() error {
	return nil
}

// Start subscribes to the summary subjects.
func (h *Output) Start(ctx context.Context) error {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	if h.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "HTTPPostOutput", "Start", "check running state")
	}
	if h.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "HTTPPostOutput", "Start", "NATS client required")
	}

	for _, subject := range h.subjects {
		if err := h.natsClient.Subscribe(ctx, subject, h.handleMessage); err != nil {
			return errors.WrapTransient(err, "HTTPPostOutput", "Start", fmt.Sprintf("subscribe to %s", subject))
		}
	}

	h.mu.Lock()
	h.running = true
	h.startTime = time.Now()
	h.mu.Unlock()

	return nil
}

// Stop marks the output stopped. Requests in flight finish on their own
// timeout.
func (h *Output) Stop(_ time.Duration) error {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
	return nil
}

// handleMessage posts one summary.
func (h *Output) handleMessage(ctx context.Context, msgData []byte) {
	h.lastActivity.Store(time.Now())

	body := msgData
	if h.format == "payload" {
		var msg message.BaseMessage
		if err := json.Unmarshal(msgData, &msg); err != nil {
			atomic.AddInt64(&h.errorCount, 1)
			h.logger.Debug("Failed to parse summary envelope", "error", err)
			return
		}
		payload, err := msg.Payload().MarshalJSON()
		if err != nil {
			atomic.AddInt64(&h.errorCount, 1)
			h.logger.Error("Failed to marshal summary payload", "error", err)
			return
		}
		body = payload
	}

	err := retry.Do(ctx, h.retryConfig, func() error {
		return h.post(ctx, body)
	})
	if err != nil {
		atomic.AddInt64(&h.errorCount, 1)
		h.logger.Error("Failed to deliver summary",
			"url", h.url,
			"error", err)
		return
	}
	atomic.AddInt64(&h.messagesSent, 1)
}

// post sends a single HTTP POST request.
func (h *Output) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return retry.NonRetryable(err)
	}

	req.Header.Set("Content-Type", h.contentType)
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Read and discard body to reuse the connection
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err = fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.NonRetryable(err)
	}
	return err
}

// Meta returns component metadata.
func (h *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        h.name,
		Type:        "output",
		Description: fmt.Sprintf("HTTP POST delivery to %s", h.url),
		Version:     "0.1.0",
	}
}

// InputPorts returns the NATS input ports.
func (h *Output) InputPorts() []component.Port {
	ports := make([]component.Port, len(h.subjects))
	for i, subj := range h.subjects {
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

// OutputPorts returns no ports; the HTTP endpoint is an external sink.
func (h *Output) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (h *Output) ConfigSchema() component.ConfigSchema {
	return httpPostSchema
}

// Health returns the current health status.
func (h *Output) Health() component.HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    h.running,
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&h.errorCount)),
		Uptime:     time.Since(h.startTime),
	}
}

// DataFlow returns current data flow metrics.
func (h *Output) DataFlow() component.FlowMetrics {
	sent := atomic.LoadInt64(&h.messagesSent)
	errorCount := atomic.LoadInt64(&h.errorCount)

	var errorRate float64
	if total := sent + errorCount; total > 0 {
		errorRate = float64(errorCount) / float64(total)
	}

	last, _ := h.lastActivity.Load().(time.Time)
	return component.FlowMetrics{
		ErrorRate:    errorRate,
		LastActivity: last,
	}
}

// Register registers the HTTP POST output with the given registry.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "httppost",
		Factory:     NewOutput,
		Schema:      httpPostSchema,
		Type:        "output",
		Protocol:    "httppost",
		Domain:      "delivery",
		Description: "HTTP POST delivery of customer summaries with retries",
		Version:     "0.1.0",
	})
}
