package component

import (
	"log/slog"

	"github.com/awmatheson/recoverable-cart-join/diag"
	"github.com/awmatheson/recoverable-cart-join/metric"
	"github.com/awmatheson/recoverable-cart-join/natsclient"
)

// Dependencies provides all external dependencies needed by components.
// Factories receive this structure rather than individual fields so the
// dependency surface can grow without touching every factory signature.
type Dependencies struct {
	NATSClient      natsclient.Conn  // Messaging connection (real client or test mock)
	MetricsRegistry *metric.Registry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger     // Structured logger (can be nil, defaults to slog.Default())
	Reporter        diag.Reporter    // Diagnostic sink (can be nil, defaults to a slog reporter)
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}

// GetReporter returns the configured diagnostic reporter or a slog-backed
// default if none is provided
func (d *Dependencies) GetReporter() diag.Reporter {
	if d.Reporter != nil {
		return d.Reporter
	}
	return diag.NewLogReporter(d.GetLogger())
}
