// Package main implements the cartjoin command, a one-shot runner for
// the order/payment join. It reads newline-delimited cart events from a
// file or stdin, applies each one to the keyed join engine, and writes
// one summary line per applied event to stdout.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/awmatheson/recoverable-cart-join/diag"
	"github.com/awmatheson/recoverable-cart-join/join"
	"github.com/awmatheson/recoverable-cart-join/message"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "cartjoin"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	InputPath   string
	LogLevel    string
	LogFormat   string
	Shards      int
	QueueSize   int
	StopTimeout time.Duration
	ShowVersion bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.InputPath, "input",
		getEnv("CARTJOIN_INPUT", "-"),
		"Input file path, '-' for stdin (env: CARTJOIN_INPUT)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("CARTJOIN_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: CARTJOIN_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("CARTJOIN_LOG_FORMAT", "text"),
		"Log format: json, text (env: CARTJOIN_LOG_FORMAT)")

	flag.IntVar(&cfg.Shards, "shards", join.DefaultStoreShards,
		"Number of state shards and worker goroutines")

	flag.IntVar(&cfg.QueueSize, "queue-size", 256,
		"Per-shard event queue depth")

	flag.DurationVar(&cfg.StopTimeout, "stop-timeout", 30*time.Second,
		"Shutdown drain timeout")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, `%s - order/payment join over newline-delimited cart events

Usage: %s [options] [input-path]

Summaries are written to stdout as JSON lines; diagnostics go to stderr.

Options:
`, appName, os.Args[0])
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Join a capture file
  %s --input=events.jsonl

  # Stream from a pipe
  kafkacat -C -t cart-events | %s

Version: %s
`, os.Args[0], os.Args[0], Version)
	}

	flag.Parse()

	// A positional argument also names the input file.
	if flag.NArg() > 0 {
		cfg.InputPath = flag.Arg(0)
	}
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.Shards <= 0 {
		return fmt.Errorf("shards must be positive, got %d", cfg.Shards)
	}
	if cfg.QueueSize <= 0 {
		return fmt.Errorf("queue-size must be positive, got %d", cfg.QueueSize)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	return nil
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := parseFlags()
	if cfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if err := validateFlags(cfg); err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	source, err := openInput(cfg.InputPath)
	if err != nil {
		return err
	}
	defer source.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	var outMu sync.Mutex
	emit := func(_ string, summary *message.SummaryPayload) {
		data, err := json.Marshal(summary)
		if err != nil {
			logger.Error("Failed to marshal summary", "error", err)
			return
		}
		outMu.Lock()
		_, _ = out.Write(data)
		_ = out.WriteByte('\n')
		outMu.Unlock()
	}

	engine := join.NewEngine(emit,
		join.WithShards(cfg.Shards),
		join.WithQueueSize(cfg.QueueSize),
		join.WithStopTimeout(cfg.StopTimeout),
		join.WithLogger(logger),
		join.WithReporter(diag.NewLogReporter(logger)),
	)

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	logger.Info("Join started",
		"input", cfg.InputPath,
		"shards", cfg.Shards)

	if err := engine.Run(ctx, source); err != nil {
		return fmt.Errorf("join failed: %w", err)
	}

	keys, unpaid, paid := engine.Store().Totals()
	logger.Info("Join complete",
		"customers", keys,
		"unpaid_orders", unpaid,
		"paid_orders", paid)
	return nil
}

// openInput returns stdin for "-" or the named file.
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
