package file

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/message"
	"github.com/awmatheson/recoverable-cart-join/testutil"
)

const testSubject = "cart.summaries"

func summaryEnvelope(t *testing.T, customerID string, paid, unpaid []string) []byte {
	t.Helper()
	msg := message.NewBaseMessage(message.SummaryType,
		message.NewSummary(customerID, paid, unpaid), "test")
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func newTestOutput(t *testing.T) (*Output, *testutil.MockNATSClient) {
	t.Helper()

	client := testutil.NewMockNATSClient()
	deps := component.Dependencies{NATSClient: client}

	cfg := DefaultConfig()
	cfg.Directory = t.TempDir()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	comp, err := NewOutput(raw, deps)
	require.NoError(t, err)

	out, ok := comp.(*Output)
	require.True(t, ok)
	require.NoError(t, out.Initialize())
	return out, client
}

func TestOutputWritesSummariesOnStop(t *testing.T) {
	out, client := newTestOutput(t)

	ctx := context.Background()
	require.NoError(t, out.Start(ctx))

	require.NoError(t, client.Publish(ctx, testSubject,
		summaryEnvelope(t, "user-1", nil, []string{"o1"})))
	require.NoError(t, client.Publish(ctx, testSubject,
		summaryEnvelope(t, "user-1", []string{"o1"}, nil)))

	require.NoError(t, out.Stop(time.Second))

	data, err := os.ReadFile(out.Path())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "user-1", first["user_id"])
	assert.Equal(t, []any{"o1"}, first["unpaid_order_ids"])
}

func TestOutputFlushesWhenBufferFills(t *testing.T) {
	client := testutil.NewMockNATSClient()
	deps := component.Dependencies{NATSClient: client}

	cfg := DefaultConfig()
	cfg.Directory = t.TempDir()
	cfg.BufferSize = 2
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	comp, err := NewOutput(raw, deps)
	require.NoError(t, err)
	out := comp.(*Output)
	require.NoError(t, out.Initialize())

	ctx := context.Background()
	require.NoError(t, out.Start(ctx))
	t.Cleanup(func() { _ = out.Stop(time.Second) })

	require.NoError(t, client.Publish(ctx, testSubject,
		summaryEnvelope(t, "u1", nil, []string{"o1"})))
	require.NoError(t, client.Publish(ctx, testSubject,
		summaryEnvelope(t, "u1", nil, []string{"o1", "o2"})))

	data, err := os.ReadFile(out.Path())
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)
}

func TestOutputAppendAcrossRestarts(t *testing.T) {
	client := testutil.NewMockNATSClient()
	deps := component.Dependencies{NATSClient: client}

	cfg := DefaultConfig()
	cfg.Directory = t.TempDir()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		comp, err := NewOutput(raw, deps)
		require.NoError(t, err)
		out := comp.(*Output)
		require.NoError(t, out.Initialize())
		require.NoError(t, out.Start(ctx))
		require.NoError(t, client.Publish(ctx, testSubject,
			summaryEnvelope(t, "u1", nil, []string{"o1"})))
		require.NoError(t, out.Stop(time.Second))
		client.ClearAll()

		data, readErr := os.ReadFile(out.Path())
		require.NoError(t, readErr)
		assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), i+1)
	}
}

func TestConfigValidation(t *testing.T) {
	client := testutil.NewMockNATSClient()
	deps := component.Dependencies{NATSClient: client}

	_, err := NewOutput(json.RawMessage(`{"directory": ""}`), deps)
	require.Error(t, err)

	_, err = NewOutput(json.RawMessage(`{"directory": "/tmp/x", "format": "xml"}`), deps)
	require.Error(t, err)

	_, err = NewOutput(json.RawMessage(`{"directory": "/tmp/x", "buffer_size": -1}`), deps)
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	_, ok := registry.GetFactory("file")
	assert.True(t, ok)
}
