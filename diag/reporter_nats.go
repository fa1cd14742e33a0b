package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/awmatheson/recoverable-cart-join/natsclient"
)

// DefaultSubjectPrefix is the subject prefix NATSReporter publishes
// under. The full subject is "<prefix>.<reason>".
const DefaultSubjectPrefix = "cart.diagnostics"

// NATSReporter publishes diagnostics to NATS for remote consumption.
// Publishing failures are logged locally and never propagate; losing a
// diagnostic must not disturb the pipeline.
type NATSReporter struct {
	conn          natsclient.Conn
	subjectPrefix string
	logger        *slog.Logger
}

// NewNATSReporter creates a reporter publishing under subjectPrefix.
// An empty prefix uses DefaultSubjectPrefix.
func NewNATSReporter(conn natsclient.Conn, subjectPrefix string, logger *slog.Logger) *NATSReporter {
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSReporter{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		logger:        logger,
	}
}

// Report publishes the diagnostic as JSON on "<prefix>.<reason>".
func (r *NATSReporter) Report(d Diagnostic) {
	if r.conn == nil {
		return
	}

	data, err := json.Marshal(d)
	if err != nil {
		r.logger.Error("failed to marshal diagnostic", "error", err)
		return
	}

	subject := fmt.Sprintf("%s.%s", r.subjectPrefix, d.Reason)
	if err := r.conn.Publish(context.Background(), subject, data); err != nil {
		r.logger.Error("failed to publish diagnostic", "error", err, "subject", subject)
	}
}
