// Package file provides an output component that appends customer
// summaries to a JSONL file.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/errors"
	"github.com/awmatheson/recoverable-cart-join/message"
	"github.com/awmatheson/recoverable-cart-join/natsclient"
)

// Config holds configuration for the file output component.
type Config struct {
	Ports      *component.PortConfig `json:"ports"`
	Directory  string                `json:"directory"`
	FilePrefix string                `json:"file_prefix"`
	Format     string                `json:"format"` // "payload" or "envelope"
	Append     bool                  `json:"append"`
	BufferSize int                   `json:"buffer_size"` // Lines buffered before a forced flush
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Directory == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "FileOutput", "Validate", "directory is required")
	}
	switch c.Format {
	case "", "payload", "envelope":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "FileOutput", "Validate",
			"format must be payload or envelope")
	}
	if c.BufferSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "FileOutput", "Validate",
			"buffer_size cannot be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for the file output.
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
		Directory:  "/tmp/cartjoin",
		FilePrefix: "summaries",
		Format:     "payload",
		Append:     true,
		BufferSize: 100,
	}
}

var fileSchema = component.ConfigSchema{
	Properties: map[string]component.PropertySchema{
		"ports": {
			Type:        "object",
			Description: "Input port configuration",
		},
		"directory": {
			Type:        "string",
			Description: "Output directory",
			Default:     "/tmp/cartjoin",
		},
		"file_prefix": {
			Type:        "string",
			Description: "Output file name prefix",
			Default:     "summaries",
		},
		"format": {
			Type:        "string",
			Description: "What is written per line",
			Default:     "payload",
			Enum:        []string{"payload", "envelope"},
		},
		"append": {
			Type:        "bool",
			Description: "Append to an existing file instead of truncating",
			Default:     true,
		},
		"buffer_size": {
			Type:        "int",
			Description: "Lines buffered before a forced flush",
			Default:     100,
		},
	},
	Required: []string{"directory"},
}

// Output appends summaries to a JSONL file. Lines are buffered and
// flushed on a one second tick, when the buffer fills, and on Stop.
type Output struct {
	name       string
	subjects   []string
	directory  string
	filePrefix string
	format     string
	append     bool
	bufferSize int
	natsClient natsclient.Conn
	logger     *slog.Logger

	file   *os.File
	fileMu sync.Mutex

	buffer   [][]byte
	bufferMu sync.Mutex

	shutdown    chan struct{}
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex
	wg          sync.WaitGroup

	messagesWritten int64
	bytesWritten    int64
	errorCount      int64
	lastActivity    atomic.Value // stores time.Time
}

var (
	_ component.Discoverable       = (*Output)(nil)
	_ component.LifecycleComponent = (*Output)(nil)
)

// NewOutput creates a new file output from configuration.
func NewOutput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := component.SafeUnmarshal(rawConfig, &config); err != nil {
			return nil, errors.WrapInvalid(err, "FileOutput", "NewOutput", "config unmarshal")
		}
	}
	if config.Ports == nil {
		config.Ports = DefaultConfig().Ports
	}
	if config.Format == "" {
		config.Format = "payload"
	}
	if config.BufferSize == 0 {
		config.BufferSize = 100
	}

	var inputSubjects []string
	for _, input := range config.Ports.Inputs {
		if input.Type == "nats" {
			inputSubjects = append(inputSubjects, input.Subject)
		}
	}
	if len(inputSubjects) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "FileOutput", "NewOutput", "no input subjects configured")
	}

	out := &Output{
		name:       "file-output",
		subjects:   inputSubjects,
		directory:  config.Directory,
		filePrefix: config.FilePrefix,
		format:     config.Format,
		append:     config.Append,
		bufferSize: config.BufferSize,
		natsClient: deps.NATSClient,
		logger:     deps.GetLoggerWithComponent("file-output"),
		buffer:     make([][]byte, 0, config.BufferSize),
	}
	out.lastActivity.Store(time.Time{})
	return out, nil
}

// Initialize creates the output directory.
func (o *Output) Initialize() error {
	if err := os.MkdirAll(o.directory, 0o755); err != nil {
		return errors.WrapFatal(err, "FileOutput", "Initialize", "create output directory")
	}
	return nil
}

// Path returns the output file path.
func (o *Output) Path() string {
	return filepath.Join(o.directory, o.filePrefix+".jsonl")
}

// Start opens the file and subscribes to the summary subjects.
func (o *Output) Start(ctx context.Context) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	if o.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "FileOutput", "Start", "check running state")
	}
	if o.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "FileOutput", "Start", "NATS client required")
	}

	flags := os.O_CREATE | os.O_WRONLY
	if o.append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(o.Path(), flags, 0o644)
	if err != nil {
		return errors.WrapFatal(err, "FileOutput", "Start", "open output file")
	}
	o.fileMu.Lock()
	o.file = file
	o.fileMu.Unlock()

	for _, subject := range o.subjects {
		if err := o.natsClient.Subscribe(ctx, subject, o.handleMessage); err != nil {
			return errors.WrapTransient(err, "FileOutput", "Start", fmt.Sprintf("subscribe to %s", subject))
		}
	}

	o.shutdown = make(chan struct{})
	o.wg.Add(1)
	go o.flushLoop()

	o.mu.Lock()
	o.running = true
	o.startTime = time.Now()
	o.mu.Unlock()

	o.logger.Info("File output started",
		"input_subjects", o.subjects,
		"output_file", o.Path(),
		"append", o.append)

	return nil
}

// Stop flushes remaining lines and closes the file.
func (o *Output) Stop(timeout time.Duration) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()

	if !o.running {
		return nil
	}

	close(o.shutdown)

	waitCh := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout), "FileOutput", "Stop", "shutdown")
	}

	o.flush()

	o.fileMu.Lock()
	if o.file != nil {
		if err := o.file.Close(); err != nil {
			o.logger.Warn("Failed to close output file", "path", o.file.Name(), "error", err)
		}
		o.file = nil
	}
	o.fileMu.Unlock()

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()

	return nil
}

// handleMessage buffers one summary line.
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

	o.bufferMu.Lock()
	o.buffer = append(o.buffer, line)
	shouldFlush := len(o.buffer) >= o.bufferSize
	o.bufferMu.Unlock()

	if shouldFlush {
		o.flush()
	}
}

// flushLoop periodically flushes the buffer.
func (o *Output) flushLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-o.shutdown:
			return
		case <-ticker.C:
			o.flush()
		}
	}
}

// flush writes buffered lines to the file.
func (o *Output) flush() {
	o.bufferMu.Lock()
	if len(o.buffer) == 0 {
		o.bufferMu.Unlock()
		return
	}
	lines := o.buffer
	o.buffer = make([][]byte, 0, o.bufferSize)
	o.bufferMu.Unlock()

	o.fileMu.Lock()
	defer o.fileMu.Unlock()

	if o.file == nil {
		atomic.AddInt64(&o.errorCount, int64(len(lines)))
		o.logger.Error("File handle is nil during flush", "lines_lost", len(lines))
		return
	}

	for _, line := range lines {
		n, err := o.file.Write(append(line, '\n'))
		if err != nil {
			atomic.AddInt64(&o.errorCount, 1)
			o.logger.Error("Failed to write summary line", "error", err)
			continue
		}
		atomic.AddInt64(&o.messagesWritten, 1)
		atomic.AddInt64(&o.bytesWritten, int64(n))
	}
}

// Meta returns component metadata.
func (o *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        o.name,
		Type:        "output",
		Description: "JSONL file writer for customer summaries",
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

// OutputPorts returns the file sink port.
func (o *Output) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:      "file_output",
			Direction: component.DirectionOutput,
			Required:  false,
			Config: component.FilePort{
				Path: o.Path(),
			},
		},
	}
}

// ConfigSchema returns the configuration schema.
func (o *Output) ConfigSchema() component.ConfigSchema {
	return fileSchema
}

// Health returns the current health status.
func (o *Output) Health() component.HealthStatus {
	o.mu.RLock()
	running := o.running
	started := o.startTime
	o.mu.RUnlock()

	o.fileMu.Lock()
	hasFile := o.file != nil
	o.fileMu.Unlock()

	return component.HealthStatus{
		Healthy:    running && hasFile,
		LastCheck:  time.Now(),
		ErrorCount: int(atomic.LoadInt64(&o.errorCount)),
		Uptime:     time.Since(started),
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

// Register registers the file output component with the given registry.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "file",
		Factory:     NewOutput,
		Schema:      fileSchema,
		Type:        "output",
		Protocol:    "file",
		Domain:      "delivery",
		Description: "JSONL file writer for customer summaries",
		Version:     "0.1.0",
	})
}
