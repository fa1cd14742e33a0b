// Package fileinput provides an input component that reads newline-delimited
// cart events from a file or stdin and publishes each line to NATS.
package fileinput

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/errors"
	"github.com/awmatheson/recoverable-cart-join/metric"
	"github.com/awmatheson/recoverable-cart-join/natsclient"
	"github.com/awmatheson/recoverable-cart-join/pkg/retry"
)

// maxLineBytes bounds a single event line.
const maxLineBytes = 1024 * 1024

// Metrics holds Prometheus metrics for the file input component.
type Metrics struct {
	linesRead     prometheus.Counter
	bytesRead     prometheus.Counter
	publishErrors prometheus.Counter
}

func newMetrics(registry *metric.Registry, instance string) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		linesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "file_input",
			Name:      "lines_read_total",
			Help:      "Total lines read from the source",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "file_input",
			Name:      "bytes_read_total",
			Help:      "Total bytes read from the source",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartjoin",
			Subsystem: "file_input",
			Name:      "publish_errors_total",
			Help:      "Lines that failed to publish after retries",
		}),
	}

	// Duplicate registration only happens when an instance name is reused.
	_ = registry.RegisterCounter(instance, "lines_read", m.linesRead)
	_ = registry.RegisterCounter(instance, "bytes_read", m.bytesRead)
	_ = registry.RegisterCounter(instance, "publish_errors", m.publishErrors)
	return m
}

// Config holds configuration for the file input component.
type Config struct {
	Ports *component.PortConfig `json:"ports"`
	Path  string                `json:"path"` // Source file path, "-" or "" reads stdin
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if c.Ports != nil {
		for _, output := range c.Ports.Outputs {
			if output.Type == "nats" && output.Subject == "" {
				return errors.WrapInvalid(errors.ErrInvalidConfig,
					"FileInput", "Validate", "NATS output subject is required")
			}
		}
	}
	return nil
}

// DefaultConfig returns sensible defaults for the file input.
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
		Path: "-",
	}
}

var fileInputSchema = component.ConfigSchema{
	Properties: map[string]component.PropertySchema{
		"ports": {
			Type:        "object",
			Description: "Output port configuration",
		},
		"path": {
			Type:        "string",
			Description: "Source file path, \"-\" reads stdin",
			Default:     "-",
		},
	},
}

// Input reads newline-delimited events and publishes them one line per
// NATS message. Blank lines are skipped. The component finishes on its
// own when the source reaches EOF; Done reports completion.
type Input struct {
	name       string
	path       string
	subject    string
	natsClient natsclient.Conn
	logger     *slog.Logger

	retryConfig retry.Config

	// source is the open reader, nil until Start. Tests may preset it.
	source io.ReadCloser

	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup

	linesRead    atomic.Int64
	bytesRead    atomic.Int64
	errorCount   atomic.Int64
	lastActivity atomic.Value // stores time.Time

	metrics *Metrics
}

var _ component.Discoverable = (*Input)(nil)
var _ component.LifecycleComponent = (*Input)(nil)

// NewInput creates a new file input component from configuration.
func NewInput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := component.SafeUnmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "FileInput", "NewInput", "config unmarshal")
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
			"FileInput", "NewInput", "no NATS output subject configured")
	}

	in := &Input{
		name:        "file-input",
		path:        config.Path,
		subject:     subject,
		natsClient:  deps.NATSClient,
		logger:      deps.GetLoggerWithComponent("file-input"),
		retryConfig: retry.DefaultConfig(),
		metrics:     newMetrics(deps.MetricsRegistry, "file_input"),
	}
	in.lastActivity.Store(time.Time{})
	return in, nil
}

// Initialize validates the component is runnable.
func (in *Input) Initialize() error {
	if in.natsClient == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "FileInput", "Initialize", "NATS client required")
	}
	return nil
}

// Start opens the source and begins the read loop.
func (in *Input) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.running.Load() {
		return nil // Already running, idempotent
	}

	if in.source == nil {
		if in.path == "" || in.path == "-" {
			in.source = os.Stdin
		} else {
			f, err := os.Open(in.path)
			if err != nil {
				return errors.WrapTransient(err, "FileInput", "Start", fmt.Sprintf("open %s", in.path))
			}
			in.source = f
		}
	}

	in.shutdown = make(chan struct{})
	in.done = make(chan struct{})
	in.running.Store(true)
	in.startTime = time.Now()

	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		defer close(in.done)
		in.readLoop(ctx)
	}()

	return nil
}

// Done is closed when the source reached EOF or the read loop stopped.
func (in *Input) Done() <-chan struct{} {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.done
}

func (in *Input) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(in.source)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-in.shutdown:
			return
		default:
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		in.linesRead.Add(1)
		in.bytesRead.Add(int64(len(line)))
		in.lastActivity.Store(time.Now())
		if in.metrics != nil {
			in.metrics.linesRead.Inc()
			in.metrics.bytesRead.Add(float64(len(line)))
		}

		data := []byte(line)
		err := retry.Do(ctx, in.retryConfig, func() error {
			return in.natsClient.Publish(ctx, in.subject, data)
		})
		if err != nil {
			in.errorCount.Add(1)
			if in.metrics != nil {
				in.metrics.publishErrors.Inc()
			}
			in.logger.Error("Failed to publish event line",
				"subject", in.subject,
				"error", err)
		}
	}

	if err := scanner.Err(); err != nil {
		in.errorCount.Add(1)
		in.logger.Error("Read loop terminated", "path", in.path, "error", err)
		return
	}

	in.logger.Info("Source exhausted",
		"path", in.path,
		"lines", in.linesRead.Load())
}

// Stop closes the source and waits for the read loop.
func (in *Input) Stop(timeout time.Duration) error {
	if !in.running.Load() {
		return nil
	}
	in.running.Store(false)

	in.mu.Lock()
	close(in.shutdown)
	source := in.source
	in.mu.Unlock()

	// Closing the source unblocks a pending Scan.
	if source != nil && source != os.Stdin {
		_ = source.Close()
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
			"FileInput", "Stop", "wait for read loop")
	}
}

// Meta returns component metadata.
func (in *Input) Meta() component.Metadata {
	source := in.path
	if source == "" || source == "-" {
		source = "stdin"
	}
	return component.Metadata{
		Name:        in.name,
		Type:        "input",
		Description: fmt.Sprintf("Line reader on %s publishing to %s", source, in.subject),
		Version:     "0.1.0",
	}
}

// InputPorts returns the file source port.
func (in *Input) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "source",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "Newline-delimited event source",
			Config: component.FilePort{
				Path: in.path,
			},
		},
	}
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
	return fileInputSchema
}

// Health reports whether the read loop is still running.
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
	lines := in.linesRead.Load()
	bytes := in.bytesRead.Load()
	errorCount := in.errorCount.Load()
	lastActivity, _ := in.lastActivity.Load().(time.Time)

	var linesPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(in.startTime).Seconds(); uptime > 0 && in.running.Load() {
		linesPerSecond = float64(lines) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if lines > 0 {
		errorRate = float64(errorCount) / float64(lines)
	}

	return component.FlowMetrics{
		MessagesPerSecond: linesPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Register registers the file input with the given registry.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "fileinput",
		Factory:     NewInput,
		Schema:      fileInputSchema,
		Type:        "input",
		Protocol:    "file",
		Domain:      "ingest",
		Description: "Newline-delimited event reader for files and stdin",
		Version:     "0.1.0",
	})
}
