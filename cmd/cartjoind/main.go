// Package main implements the cartjoind daemon, the long-running
// pipeline runner. It loads a pipeline configuration, connects to NATS,
// registers the built-in component factories, and runs the configured
// components until a shutdown signal arrives or every bounded input
// drains.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/componentregistry"
	"github.com/awmatheson/recoverable-cart-join/config"
	"github.com/awmatheson/recoverable-cart-join/diag"
	"github.com/awmatheson/recoverable-cart-join/engine"
	"github.com/awmatheson/recoverable-cart-join/health"
	"github.com/awmatheson/recoverable-cart-join/metric"
	"github.com/awmatheson/recoverable-cart-join/natsclient"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "cartjoind"
)

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
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI flags override file and environment settings.
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid",
			"pipeline", cfg.Pipeline.ID,
			"components", len(cfg.Components))
		return nil
	}

	logger.Info("Starting cartjoind",
		"version", Version,
		"build_time", BuildTime,
		"pipeline", cfg.Pipeline.ID,
		"config_path", cliCfg.ConfigPath)

	ctx := context.Background()

	metricsRegistry := metric.NewRegistry()

	natsClient, err := createNATSClient(cfg, metricsRegistry)
	if err != nil {
		return err
	}
	if err := connectToNATS(ctx, natsClient); err != nil {
		return err
	}
	defer func() {
		if err := natsClient.Close(ctx); err != nil {
			logger.Warn("NATS close", "error", err)
		}
	}()

	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return fmt.Errorf("register components: %w", err)
	}

	deps := component.Dependencies{
		NATSClient:      natsClient,
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
		Reporter:        diag.NewLogReporter(logger),
	}

	monitor := health.NewMonitor()
	rt, err := engine.NewRuntime(cfg, registry, deps, monitor)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Warn("Metrics server stop", "error", err)
			}
		}()
		logger.Info("Metrics endpoint enabled",
			"port", cfg.Metrics.Port,
			"path", cfg.Metrics.Path)
	}

	var hs *healthServer
	if cliCfg.HealthPort > 0 {
		hs = newHealthServer(cliCfg.HealthPort, monitor, logger)
		hs.start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			hs.stop(shutdownCtx)
		}()
		logger.Info("Health endpoints enabled", "port", cliCfg.HealthPort)
	}

	return runWithSignalHandling(ctx, rt, logger)
}

// createNATSClient builds the NATS client from configuration.
func createNATSClient(cfg *config.Config, registry *metric.Registry) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithMetrics(registry),
	}
	if cfg.NATS.Name != "" {
		opts = append(opts, natsclient.WithName(cfg.NATS.Name))
	}
	if cfg.NATS.MaxReconnects != 0 {
		opts = append(opts, natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects))
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	client, err := natsclient.NewClient(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}
	return client, nil
}

// connectToNATS establishes the connection and waits for it to be ready.
func connectToNATS(ctx context.Context, client *natsclient.Client) error {
	slog.Info("Connecting to NATS", "url", client.URL())
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}
	return nil
}

// runWithSignalHandling starts the pipeline and blocks until a shutdown
// signal arrives or every bounded input drains.
func runWithSignalHandling(ctx context.Context, rt *engine.Runtime, logger *slog.Logger) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := rt.Start(signalCtx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	logger.Info("Pipeline running", "components", rt.Components())

	select {
	case <-signalCtx.Done():
		logger.Info("Received shutdown signal")
	case <-rt.Done():
		logger.Info("Bounded inputs drained, shutting down")
	}

	if err := rt.Stop(); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("Shutdown complete")
	return nil
}
