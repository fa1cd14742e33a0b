package kafkainput

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/testutil"
)

const testSubject = "raw.cart.events"

// fakeReader serves queued messages and then blocks until closed.
type fakeReader struct {
	mu       sync.Mutex
	messages []kafka.Message
	closed   chan struct{}
	once     sync.Once
}

func newFakeReader(values ...string) *fakeReader {
	r := &fakeReader{closed: make(chan struct{})}
	for i, v := range values {
		r.messages = append(r.messages, kafka.Message{
			Topic:  "cart-events",
			Offset: int64(i),
			Value:  []byte(v),
		})
	}
	return r
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case <-r.closed:
		return kafka.Message{}, io.EOF
	}
}

func (r *fakeReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func newTestInput(t *testing.T, reader messageReader) (*Input, *testutil.MockNATSClient) {
	t.Helper()

	client := testutil.NewMockNATSClient()
	deps := component.Dependencies{NATSClient: client}

	comp, err := NewInput(nil, deps)
	require.NoError(t, err)

	in, ok := comp.(*Input)
	require.True(t, ok)
	in.newReader = func() messageReader { return reader }
	return in, client
}

func TestInputRepublishesMessages(t *testing.T) {
	reader := newFakeReader(testutil.CartEventLines...)
	in, client := newTestInput(t, reader)

	require.NoError(t, in.Initialize())
	require.NoError(t, in.Start(context.Background()))
	t.Cleanup(func() { _ = in.Stop(time.Second) })

	testutil.WaitForMessageCount(t, client, testSubject, len(testutil.CartEventLines), time.Second)

	messages := client.GetMessages(testSubject)
	assert.Equal(t, testutil.CartEventLines[0], string(messages[0]))
}

func TestInputStopUnblocksRead(t *testing.T) {
	reader := newFakeReader()
	in, _ := newTestInput(t, reader)

	require.NoError(t, in.Start(context.Background()))
	require.NoError(t, in.Stop(time.Second))
	assert.False(t, in.Health().Healthy)
}

func TestConfigValidation(t *testing.T) {
	client := testutil.NewMockNATSClient()
	deps := component.Dependencies{NATSClient: client}

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"defaults", ``, false},
		{"missing brokers", `{"brokers": [], "topic": "t"}`, true},
		{"missing topic", `{"brokers": ["localhost:9092"], "topic": ""}`, true},
		{"negative fetch", `{"brokers": ["localhost:9092"], "topic": "t", "min_bytes": -1}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw json.RawMessage
			if tt.raw != "" {
				raw = json.RawMessage(tt.raw)
			}
			_, err := NewInput(raw, deps)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestMetaAndPorts(t *testing.T) {
	in, _ := newTestInput(t, newFakeReader())

	meta := in.Meta()
	assert.Equal(t, "input", meta.Type)
	assert.Empty(t, in.InputPorts())
	require.Len(t, in.OutputPorts(), 1)
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	_, ok := registry.GetFactory("kafka")
	assert.True(t, ok)
}
