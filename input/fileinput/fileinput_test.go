package fileinput

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/testutil"
)

const testSubject = "raw.cart.events"

func writeTempFile(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func newTestInput(t *testing.T, path string) (*Input, *testutil.MockNATSClient) {
	t.Helper()

	client := testutil.NewMockNATSClient()
	deps := component.Dependencies{NATSClient: client}

	raw, err := json.Marshal(Config{Path: path, Ports: DefaultConfig().Ports})
	require.NoError(t, err)

	comp, err := NewInput(raw, deps)
	require.NoError(t, err)

	in, ok := comp.(*Input)
	require.True(t, ok)
	return in, client
}

func TestInputPublishesEveryLine(t *testing.T) {
	path := writeTempFile(t, testutil.CartEventLines)
	in, client := newTestInput(t, path)

	require.NoError(t, in.Initialize())
	require.NoError(t, in.Start(context.Background()))
	t.Cleanup(func() { _ = in.Stop(time.Second) })

	testutil.WaitForMessageCount(t, client, testSubject, len(testutil.CartEventLines), time.Second)

	messages := client.GetMessages(testSubject)
	require.Len(t, messages, len(testutil.CartEventLines))
	assert.Equal(t, testutil.CartEventLines[0], string(messages[0]))
}

func TestInputSkipsBlankLines(t *testing.T) {
	path := writeTempFile(t, []string{
		testutil.OrderLine("u1", "o1"),
		"",
		"   ",
		testutil.OrderLine("u1", "o2"),
	})
	in, client := newTestInput(t, path)

	require.NoError(t, in.Start(context.Background()))
	t.Cleanup(func() { _ = in.Stop(time.Second) })

	testutil.WaitForMessageCount(t, client, testSubject, 2, time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, client.GetMessageCount(testSubject))
}

func TestInputDoneOnEOF(t *testing.T) {
	path := writeTempFile(t, []string{testutil.OrderLine("u1", "o1")})
	in, _ := newTestInput(t, path)

	require.NoError(t, in.Start(context.Background()))
	t.Cleanup(func() { _ = in.Stop(time.Second) })

	select {
	case <-in.Done():
	case <-time.After(time.Second):
		t.Fatal("read loop did not finish after EOF")
	}
	assert.Equal(t, int64(1), in.linesRead.Load())
}

func TestInputMissingFile(t *testing.T) {
	in, _ := newTestInput(t, filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, in.Start(context.Background()))
}

func TestInputRequiresOutputSubject(t *testing.T) {
	client := testutil.NewMockNATSClient()
	deps := component.Dependencies{NATSClient: client}

	raw := json.RawMessage(`{"ports": {"outputs": [{"name": "nats_output", "type": "nats", "subject": ""}]}}`)
	_, err := NewInput(raw, deps)
	require.Error(t, err)
}

func TestInputStopBeforeEOF(t *testing.T) {
	lines := make([]string, 0, 1000)
	for i := 0; i < 1000; i++ {
		lines = append(lines, testutil.OrderLine("u1", "o"+string(rune('a'+i%26))))
	}
	path := writeTempFile(t, lines)
	in, _ := newTestInput(t, path)

	require.NoError(t, in.Start(context.Background()))
	require.NoError(t, in.Stop(time.Second))
	assert.False(t, in.Health().Healthy)
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	_, ok := registry.GetFactory("fileinput")
	assert.True(t, ok)
}
