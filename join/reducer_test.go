package join

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awmatheson/recoverable-cart-join/diag"
	"github.com/awmatheson/recoverable-cart-join/errors"
	"github.com/awmatheson/recoverable-cart-join/message"
)

func orderEvent(customer, order string) message.EventPayload {
	return message.EventPayload{Kind: message.KindOrder, CustomerID: customer, OrderID: order}
}

func paymentEvent(customer, order string) message.EventPayload {
	return message.EventPayload{Kind: message.KindPayment, CustomerID: customer, OrderID: order}
}

func TestReduceOrderThenPayment(t *testing.T) {
	reducer := NewReducer(diag.Discard, nil)

	state, summary, err := reducer.Reduce(nil, orderEvent("u1", "o1"))
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, []string{"o1"}, summary.UnpaidOrderIDs)
	assert.Empty(t, summary.PaidOrderIDs)

	state, summary, err = reducer.Reduce(state, paymentEvent("u1", "o1"))
	require.NoError(t, err)
	assert.Empty(t, summary.UnpaidOrderIDs)
	assert.Equal(t, []string{"o1"}, summary.PaidOrderIDs)
}

func TestReduceDuplicateOrderIsIdempotent(t *testing.T) {
	reducer := NewReducer(diag.Discard, nil)

	state, first, err := reducer.Reduce(nil, orderEvent("u1", "o1"))
	require.NoError(t, err)

	state, second, err := reducer.Reduce(state, orderEvent("u1", "o1"))
	require.NoError(t, err)

	assert.Equal(t, first.UnpaidOrderIDs, second.UnpaidOrderIDs)
	assert.Equal(t, 1, state.UnpaidCount())
}

func TestReduceOrphanPaymentIsNoOp(t *testing.T) {
	recorder := diag.NewRecorder(8)
	reducer := NewReducer(recorder, nil)

	state, summary, err := reducer.Reduce(nil, paymentEvent("u2", "o9"))
	require.NoError(t, err)
	assert.Empty(t, summary.UnpaidOrderIDs)
	assert.Empty(t, summary.PaidOrderIDs)
	assert.Equal(t, 0, state.UnpaidCount())
	assert.Equal(t, 0, state.PaidCount())

	require.Equal(t, 1, recorder.Len())
	d := recorder.Snapshot()[0]
	assert.Equal(t, diag.ReasonOrphanPayment, d.Reason)
	assert.Equal(t, "u2", d.CustomerID)
	assert.Equal(t, "o9", d.OrderID)
}

func TestReduceDuplicatePaymentDiagnosedNotReinserted(t *testing.T) {
	recorder := diag.NewRecorder(8)
	reducer := NewReducer(recorder, nil)

	state, _, err := reducer.Reduce(nil, orderEvent("u1", "o1"))
	require.NoError(t, err)
	state, _, err = reducer.Reduce(state, paymentEvent("u1", "o1"))
	require.NoError(t, err)

	// Second payment for the same order is an orphan: o1 is no longer unpaid
	state, summary, err := reducer.Reduce(state, paymentEvent("u1", "o1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, summary.PaidOrderIDs)
	assert.Equal(t, 1, state.PaidCount())
	assert.Equal(t, 1, recorder.Len())
}

func TestReduceConservation(t *testing.T) {
	reducer := NewReducer(diag.Discard, nil)

	events := []message.EventPayload{
		orderEvent("u1", "o1"),
		orderEvent("u1", "o2"),
		orderEvent("u1", "o2"), // duplicate
		paymentEvent("u1", "o1"),
		orderEvent("u1", "o3"),
		paymentEvent("u1", "o9"), // orphan
	}

	var state *CustomerState
	var err error
	for _, event := range events {
		state, _, err = reducer.Reduce(state, event)
		require.NoError(t, err)
	}

	// Distinct order ids that appeared as orders: o1, o2, o3
	assert.Equal(t, 3, state.UnpaidCount()+state.PaidCount())
	assert.Equal(t, []string{"o1"}, state.PaidOrderIDs())
	assert.Equal(t, []string{"o2", "o3"}, state.UnpaidOrderIDs())
}

func TestReducePaymentOrderIsConfirmationOrder(t *testing.T) {
	reducer := NewReducer(diag.Discard, nil)

	var state *CustomerState
	var err error
	for _, event := range []message.EventPayload{
		orderEvent("u1", "o1"),
		orderEvent("u1", "o2"),
		orderEvent("u1", "o3"),
		paymentEvent("u1", "o2"),
		paymentEvent("u1", "o1"),
	} {
		state, _, err = reducer.Reduce(state, event)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"o2", "o1"}, state.PaidOrderIDs())
	assert.Equal(t, []string{"o3"}, state.UnpaidOrderIDs())
}

func TestReduceInvariantViolationIsFatal(t *testing.T) {
	reducer := NewReducer(diag.Discard, nil)

	// Corrupt a state so an order id is tracked in both sets
	state := newCustomerState()
	state.unpaid["o1"] = orderEvent("u1", "o1")
	state.unpaidOrder = append(state.unpaidOrder, "o1")
	state.paid = append(state.paid, "o1")
	state.paidSet["o1"] = struct{}{}

	_, summary, err := reducer.Reduce(state, orderEvent("u1", "o1"))
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, errors.ErrStateInvariant)
}

func TestReduceUnknownKindRejected(t *testing.T) {
	reducer := NewReducer(diag.Discard, nil)

	event := message.EventPayload{Kind: message.KindUnknown, CustomerID: "u1", OrderID: "o1"}
	_, _, err := reducer.Reduce(nil, event)
	require.Error(t, err)
	assert.False(t, errors.IsFatal(err))
}

func TestSummarizeIsFrozenCopy(t *testing.T) {
	reducer := NewReducer(diag.Discard, nil)

	state, summary, err := reducer.Reduce(nil, orderEvent("u1", "o1"))
	require.NoError(t, err)

	// Mutating the state afterwards must not change the emitted summary
	state, _, err = reducer.Reduce(state, paymentEvent("u1", "o1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"o1"}, summary.UnpaidOrderIDs)
	assert.Empty(t, summary.PaidOrderIDs)
}
