package stdout

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/message"
	"github.com/awmatheson/recoverable-cart-join/testutil"
)

const testSubject = "cart.summaries"

// syncBuffer guards a bytes.Buffer for concurrent writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func summaryEnvelope(t *testing.T, customerID string, paid, unpaid []string) []byte {
	t.Helper()
	msg := message.NewBaseMessage(message.SummaryType,
		message.NewSummary(customerID, paid, unpaid), "test")
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func newTestOutput(t *testing.T, raw json.RawMessage) (*Output, *testutil.MockNATSClient, *syncBuffer) {
	t.Helper()

	client := testutil.NewMockNATSClient()
	deps := component.Dependencies{NATSClient: client}

	comp, err := NewOutput(raw, deps)
	require.NoError(t, err)

	out, ok := comp.(*Output)
	require.True(t, ok)

	buf := &syncBuffer{}
	out.writer = buf
	return out, client, buf
}

func TestOutputWritesPayloadLines(t *testing.T) {
	out, client, buf := newTestOutput(t, nil)

	ctx := context.Background()
	require.NoError(t, out.Start(ctx))
	t.Cleanup(func() { _ = out.Stop(time.Second) })

	require.NoError(t, client.Publish(ctx, testSubject,
		summaryEnvelope(t, "user-1", []string{"o1"}, []string{"o2"})))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "user-1", got["user_id"])
	assert.Equal(t, []any{"o1"}, got["paid_order_ids"])
	assert.Equal(t, []any{"o2"}, got["unpaid_order_ids"])
}

func TestOutputEnvelopeFormat(t *testing.T) {
	out, client, buf := newTestOutput(t, json.RawMessage(`{"format": "envelope"}`))

	ctx := context.Background()
	require.NoError(t, out.Start(ctx))
	t.Cleanup(func() { _ = out.Stop(time.Second) })

	envelope := summaryEnvelope(t, "user-1", nil, []string{"o1"})
	require.NoError(t, client.Publish(ctx, testSubject, envelope))

	assert.Equal(t, string(envelope)+"\n", buf.String())
}

func TestOutputSkipsGarbage(t *testing.T) {
	out, client, buf := newTestOutput(t, nil)

	ctx := context.Background()
	require.NoError(t, out.Start(ctx))
	t.Cleanup(func() { _ = out.Stop(time.Second) })

	require.NoError(t, client.Publish(ctx, testSubject, []byte("not json")))
	assert.Empty(t, buf.String())
	assert.Equal(t, int64(1), out.errorCount)
}

func TestOutputInvalidFormat(t *testing.T) {
	client := testutil.NewMockNATSClient()
	deps := component.Dependencies{NATSClient: client}

	_, err := NewOutput(json.RawMessage(`{"format": "xml"}`), deps)
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	_, ok := registry.GetFactory("stdout")
	assert.True(t, ok)
}
