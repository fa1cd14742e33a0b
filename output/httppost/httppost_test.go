package httppost

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
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

type capturingServer struct {
	mu       sync.Mutex
	bodies   [][]byte
	failNext int
	status   int
}

func newCapturingServer(t *testing.T) (*capturingServer, string) {
	t.Helper()

	cs := &capturingServer{status: http.StatusOK}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		cs.mu.Lock()
		defer cs.mu.Unlock()
		if cs.failNext > 0 {
			cs.failNext--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		cs.bodies = append(cs.bodies, body)
		w.WriteHeader(cs.status)
	}))
	t.Cleanup(server.Close)
	return cs, server.URL
}

func (cs *capturingServer) received() [][]byte {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([][]byte, len(cs.bodies))
	copy(out, cs.bodies)
	return out
}

func summaryEnvelope(t *testing.T, customerID string, paid, unpaid []string) []byte {
	t.Helper()
	msg := message.NewBaseMessage(message.SummaryType,
		message.NewSummary(customerID, paid, unpaid), "test")
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func newTestOutput(t *testing.T, url string) (*Output, *testutil.MockNATSClient) {
	t.Helper()

	client := testutil.NewMockNATSClient()
	deps := component.Dependencies{NATSClient: client}

	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Timeout = 5
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	comp, err := NewOutput(raw, deps)
	require.NoError(t, err)

	out, ok := comp.(*Output)
	require.True(t, ok)
	return out, client
}

func TestOutputPostsPayload(t *testing.T) {
	server, url := newCapturingServer(t)
	out, client := newTestOutput(t, url)

	ctx := context.Background()
	require.NoError(t, out.Start(ctx))
	t.Cleanup(func() { _ = out.Stop(time.Second) })

	require.NoError(t, client.Publish(ctx, testSubject,
		summaryEnvelope(t, "user-1", []string{"o1"}, nil)))

	bodies := server.received()
	require.Len(t, bodies, 1)

	var got map[string]any
	require.NoError(t, json.Unmarshal(bodies[0], &got))
	assert.Equal(t, "user-1", got["user_id"])
	assert.Equal(t, []any{"o1"}, got["paid_order_ids"])
}

func TestOutputRetriesTransientFailures(t *testing.T) {
	server, url := newCapturingServer(t)
	server.failNext = 2
	out, client := newTestOutput(t, url)

	ctx := context.Background()
	require.NoError(t, out.Start(ctx))
	t.Cleanup(func() { _ = out.Stop(time.Second) })

	require.NoError(t, client.Publish(ctx, testSubject,
		summaryEnvelope(t, "user-1", nil, []string{"o1"})))

	require.Len(t, server.received(), 1)
	assert.Equal(t, int64(1), out.messagesSent)
}

func TestOutputDoesNotRetryClientErrors(t *testing.T) {
	server, url := newCapturingServer(t)
	server.status = http.StatusBadRequest
	out, client := newTestOutput(t, url)

	ctx := context.Background()
	require.NoError(t, out.Start(ctx))
	t.Cleanup(func() { _ = out.Stop(time.Second) })

	require.NoError(t, client.Publish(ctx, testSubject,
		summaryEnvelope(t, "user-1", nil, []string{"o1"})))

	// The request reached the server once and was not retried.
	require.Len(t, server.received(), 1)
	assert.Equal(t, int64(1), out.errorCount)
}

func TestConfigValidation(t *testing.T) {
	client := testutil.NewMockNATSClient()
	deps := component.Dependencies{NATSClient: client}

	_, err := NewOutput(json.RawMessage(`{"url": ""}`), deps)
	require.Error(t, err)

	_, err = NewOutput(json.RawMessage(`{"url": "http://x", "retry_count": 99}`), deps)
	require.Error(t, err)

	_, err = NewOutput(json.RawMessage(`{"url": "http://x", "timeout": 301}`), deps)
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	_, ok := registry.GetFactory("httppost")
	assert.True(t, ok)
}
