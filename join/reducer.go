package join

import (
	"fmt"

	"github.com/awmatheson/recoverable-cart-join/diag"
	"github.com/awmatheson/recoverable-cart-join/errors"
	"github.com/awmatheson/recoverable-cart-join/message"
	"github.com/awmatheson/recoverable-cart-join/metric"
)

const reducerComponent = "Reducer"

// Reducer is the state-transition function of the pipeline. It is pure
// computation with no I/O beyond reporting diagnostics; per-key atomicity
// is the Store's responsibility.
type Reducer struct {
	reporter diag.Reporter
	metrics  *metric.Metrics
}

// NewReducer creates a reducer. A nil reporter discards diagnostics; a nil
// metrics collector disables counters.
func NewReducer(reporter diag.Reporter, metrics *metric.Metrics) *Reducer {
	if reporter == nil {
		reporter = diag.Discard
	}
	return &Reducer{reporter: reporter, metrics: metrics}
}

// Reduce applies one event to a customer's state and returns the next
// state with a frozen summary of it. A nil state starts a fresh customer.
//
// An order event inserts its id into the unpaid set unless the id is
// already tracked (duplicate orders are idempotent). A payment event moves
// its id from unpaid to the tail of paid; a payment matching no unpaid
// order is a diagnosed no-op, never an error. A non-nil error is returned
// only for invariant violations, which are fatal.
func (r *Reducer) Reduce(state *CustomerState, event message.EventPayload) (*CustomerState, *message.SummaryPayload, error) {
	if state == nil {
		state = newCustomerState()
	}

	switch event.Kind {
	case message.KindOrder:
		if !state.HasUnpaid(event.OrderID) && !state.HasPaid(event.OrderID) {
			state.addUnpaid(event)
		}

	case message.KindPayment:
		if !state.markPaid(event.OrderID) {
			r.reporter.Report(diag.New(diag.ReasonOrphanPayment, reducerComponent,
				"payment matched no unpaid order").
				WithKeys(event.CustomerID, event.OrderID))
			if r.metrics != nil {
				r.metrics.RecordOrphanPayment()
			}
		}

	default:
		// The decoder rejects unknown kinds, so one arriving here means a
		// caller bypassed it.
		return state, nil, errors.WrapInvalid(errors.ErrInvalidData, reducerComponent, "Reduce",
			fmt.Sprintf("unreduceable event kind %q", event.Kind))
	}

	if state.inBothSets(event.OrderID) {
		return state, nil, errors.WrapFatal(errors.ErrStateInvariant, reducerComponent, "Reduce",
			fmt.Sprintf("order %s tracked as both unpaid and paid for customer %s",
				event.OrderID, event.CustomerID))
	}

	return state, r.Summarize(event.CustomerID, state), nil
}

// Summarize returns an immutable snapshot of the current state. The
// returned summary holds copies of both id sequences, so a caller may
// buffer it while the state keeps mutating.
func (r *Reducer) Summarize(customerID string, state *CustomerState) *message.SummaryPayload {
	return message.NewSummary(customerID, state.PaidOrderIDs(), state.UnpaidOrderIDs())
}
