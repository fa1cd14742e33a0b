package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/awmatheson/recoverable-cart-join/health"
)

// healthServer exposes liveness and readiness endpoints backed by the
// pipeline's health monitor.
type healthServer struct {
	server  *http.Server
	monitor *health.Monitor
	logger  *slog.Logger
}

func newHealthServer(port int, monitor *health.Monitor, logger *slog.Logger) *healthServer {
	hs := &healthServer{
		monitor: monitor,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", hs.handleLiveness)
	mux.HandleFunc("/readyz", hs.handleReadiness)

	hs.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return hs
}

func (hs *healthServer) start() {
	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			hs.logger.Error("Health server failed", "error", err)
		}
	}()
}

func (hs *healthServer) stop(ctx context.Context) {
	if err := hs.server.Shutdown(ctx); err != nil {
		hs.logger.Warn("Health server shutdown", "error", err)
	}
}

func (hs *healthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (hs *healthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	status := hs.monitor.AggregateHealth(appName)

	w.Header().Set("Content-Type", "application/json")
	if !status.IsHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		hs.logger.Warn("Failed to encode readiness response", "error", err)
	}
}
