package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awmatheson/recoverable-cart-join/errors"
)

func TestNewSummary(t *testing.T) {
	s := NewSummary("a", nil, nil)

	assert.Equal(t, "a", s.CustomerID)
	assert.NotNil(t, s.PaidOrderIDs)
	assert.NotNil(t, s.UnpaidOrderIDs)
	assert.NoError(t, s.Validate())
}

func TestSummaryPayload_MarshalEmptyArrays(t *testing.T) {
	s := &SummaryPayload{CustomerID: "a"}

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"a","paid_order_ids":[],"unpaid_order_ids":[]}`, string(out))
}

func TestSummaryPayload_RoundTrip(t *testing.T) {
	s := NewSummary("a", []string{"1", "3"}, []string{"2"})

	out, err := json.Marshal(s)
	require.NoError(t, err)

	var got SummaryPayload
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "a", got.CustomerID)
	assert.Equal(t, []string{"1", "3"}, got.PaidOrderIDs)
	assert.Equal(t, []string{"2"}, got.UnpaidOrderIDs)
}

func TestSummaryPayload_ValidateOverlap(t *testing.T) {
	s := NewSummary("a", []string{"1"}, []string{"1"})

	err := s.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStateInvariant)
}

func TestSummaryPayload_ValidateMissingCustomer(t *testing.T) {
	s := NewSummary("", nil, nil)

	err := s.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingField)
}

func TestSummaryPayload_Schema(t *testing.T) {
	s := SummaryPayload{}
	assert.Equal(t, "cart.summary.v1", s.Schema().Key())
}
