package diag

import (
	"time"

	"github.com/awmatheson/recoverable-cart-join/pkg/timestamp"
)

// Reason identifies why an input was rejected or produced a no-op.
type Reason string

const (
	// ReasonMalformedInput marks a line that failed JSON decoding.
	ReasonMalformedInput Reason = "malformed_input"
	// ReasonMissingField marks an event missing a required field or
	// carrying an unrecognized type string.
	ReasonMissingField Reason = "missing_field"
	// ReasonUnkeyableEvent marks an event with no usable customer id.
	ReasonUnkeyableEvent Reason = "unkeyable_event"
	// ReasonOrphanPayment marks a payment that matched no unpaid order.
	ReasonOrphanPayment Reason = "orphan_payment"
)

// Diagnostic describes one recovered failure. Input carries the
// offending raw line (truncated to MaxInputBytes); CustomerID and
// OrderID are set when they were extractable.
type Diagnostic struct {
	Reason     Reason `json:"reason"`
	Component  string `json:"component"`
	Detail     string `json:"detail"`
	Input      string `json:"input,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	Time       int64  `json:"time"` // Unix milliseconds
}

// MaxInputBytes bounds how much of the offending input a diagnostic
// retains.
const MaxInputBytes = 512

// New creates a Diagnostic stamped with the current time.
func New(reason Reason, component, detail string) Diagnostic {
	return Diagnostic{
		Reason:    reason,
		Component: component,
		Detail:    detail,
		Time:      timestamp.Now(),
	}
}

// WithInput attaches the offending raw input, truncated to MaxInputBytes.
func (d Diagnostic) WithInput(raw []byte) Diagnostic {
	if len(raw) > MaxInputBytes {
		raw = raw[:MaxInputBytes]
	}
	d.Input = string(raw)
	return d
}

// WithKeys attaches the customer and order ids when known.
func (d Diagnostic) WithKeys(customerID, orderID string) Diagnostic {
	d.CustomerID = customerID
	d.OrderID = orderID
	return d
}

// Timestamp returns the diagnostic time as time.Time.
func (d Diagnostic) Timestamp() time.Time {
	return timestamp.ToTime(d.Time)
}

// Reporter receives diagnostics. Implementations must be safe for
// concurrent use; Report must never block for long or panic.
type Reporter interface {
	Report(d Diagnostic)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(d Diagnostic)

// Report calls the wrapped function.
func (f ReporterFunc) Report(d Diagnostic) {
	f(d)
}

// Discard is a Reporter that drops every diagnostic.
var Discard Reporter = ReporterFunc(func(Diagnostic) {})

// MultiReporter fans a diagnostic out to every wrapped reporter.
type MultiReporter []Reporter

// Report delivers d to each reporter in order.
func (m MultiReporter) Report(d Diagnostic) {
	for _, r := range m {
		if r != nil {
			r.Report(d)
		}
	}
}
