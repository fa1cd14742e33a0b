package diag

import (
	"log/slog"
)

// LogReporter writes one structured warning line per diagnostic using
// slog. This is the default reporter of the pipeline.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a reporter backed by the given logger.
// A nil logger falls back to slog.Default().
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

// Report logs the diagnostic at warn level with structured fields.
func (r *LogReporter) Report(d Diagnostic) {
	attrs := []any{
		"reason", string(d.Reason),
		"component", d.Component,
	}
	if d.CustomerID != "" {
		attrs = append(attrs, "customer_id", d.CustomerID)
	}
	if d.OrderID != "" {
		attrs = append(attrs, "order_id", d.OrderID)
	}
	if d.Input != "" {
		attrs = append(attrs, "input", d.Input)
	}
	r.logger.Warn(d.Detail, attrs...)
}
