package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSummary() *SummaryPayload {
	return NewSummary("a", []string{"1"}, []string{"2"})
}

func TestNewBaseMessage(t *testing.T) {
	msg := NewBaseMessage(SummaryType, testSummary(), "cartjoin-processor")

	assert.NotEmpty(t, msg.ID())
	assert.Equal(t, SummaryType, msg.Type())
	assert.Equal(t, "cartjoin-processor", msg.Meta().Source())
	require.NoError(t, msg.Validate())
}

func TestNewBaseMessage_WithTime(t *testing.T) {
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := NewBaseMessage(SummaryType, testSummary(), "cartjoin-processor", WithTime(createdAt))

	assert.Equal(t, createdAt.UnixMilli(), msg.Meta().CreatedAt().UnixMilli())
}

func TestBaseMessage_UniqueIDs(t *testing.T) {
	a := NewBaseMessage(SummaryType, testSummary(), "cartjoin-processor")
	b := NewBaseMessage(SummaryType, testSummary(), "cartjoin-processor")

	assert.NotEqual(t, a.ID(), b.ID())
}

func TestBaseMessage_Hash(t *testing.T) {
	a := NewBaseMessage(SummaryType, testSummary(), "cartjoin-processor")
	b := NewBaseMessage(SummaryType, testSummary(), "cartjoin-processor")
	c := NewBaseMessage(SummaryType, NewSummary("b", nil, nil), "cartjoin-processor")

	assert.NotEmpty(t, a.Hash())
	assert.Equal(t, a.Hash(), b.Hash(), "same type and payload should hash equal")
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestBaseMessage_ValidateInvalidType(t *testing.T) {
	msg := NewBaseMessage(Type{Domain: "cart"}, testSummary(), "cartjoin-processor")
	require.Error(t, msg.Validate())
}

func TestBaseMessage_ValidateInvalidPayload(t *testing.T) {
	msg := NewBaseMessage(SummaryType, NewSummary("", nil, nil), "cartjoin-processor")
	require.Error(t, msg.Validate())
}

func TestBaseMessage_JSONRoundTrip(t *testing.T) {
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	original := NewBaseMessage(SummaryType, testSummary(), "cartjoin-processor", WithTime(createdAt))

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded BaseMessage
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.ID(), decoded.ID())
	assert.Equal(t, original.Type(), decoded.Type())
	assert.Equal(t, createdAt.UnixMilli(), decoded.Meta().CreatedAt().UnixMilli())
	assert.Equal(t, "cartjoin-processor", decoded.Meta().Source())

	summary, ok := decoded.Payload().(*SummaryPayload)
	require.True(t, ok, "decoded payload should be a SummaryPayload")
	assert.Equal(t, "a", summary.CustomerID)
	assert.Equal(t, []string{"1"}, summary.PaidOrderIDs)
	assert.Equal(t, []string{"2"}, summary.UnpaidOrderIDs)
}

func TestBaseMessage_EventRoundTrip(t *testing.T) {
	event := &EventPayload{Kind: KindOrder, CustomerID: "a", OrderID: "1"}
	original := NewBaseMessage(EventType, event, "file-input")

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded BaseMessage
	require.NoError(t, json.Unmarshal(data, &decoded))

	got, ok := decoded.Payload().(*EventPayload)
	require.True(t, ok, "decoded payload should be an EventPayload")
	assert.Equal(t, KindOrder, got.Kind)
	assert.Equal(t, "a", got.CustomerID)
	assert.Equal(t, "1", got.OrderID)
}

func TestBaseMessage_UnmarshalUnregisteredType(t *testing.T) {
	raw := `{"id":"x","type":{"Domain":"cart","Category":"nope","Version":"v1"},"payload":{},"meta":{}}`

	var decoded BaseMessage
	err := json.Unmarshal([]byte(raw), &decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unregistered payload type")
}
