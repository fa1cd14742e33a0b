package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/config"
	"github.com/awmatheson/recoverable-cart-join/health"
	"github.com/awmatheson/recoverable-cart-join/input/fileinput"
	"github.com/awmatheson/recoverable-cart-join/message"
	"github.com/awmatheson/recoverable-cart-join/output/stdout"
	"github.com/awmatheson/recoverable-cart-join/processor/cartjoin"
	"github.com/awmatheson/recoverable-cart-join/testutil"
	"github.com/awmatheson/recoverable-cart-join/types"
)

func newTestRegistry(t *testing.T) *component.Registry {
	t.Helper()

	registry := component.NewRegistry()
	require.NoError(t, fileinput.Register(registry))
	require.NoError(t, cartjoin.Register(registry))
	require.NoError(t, stdout.Register(registry))
	return registry
}

func pipelineConfig(components config.ComponentConfigs) *config.Config {
	cfg := config.Default()
	cfg.Pipeline.ID = "cartjoin-test"
	cfg.Components = components
	return cfg
}

func TestRuntimeRunsFileToSummaryPipeline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(path,
		[]byte(testutil.OrderLine("user-1", "order-1")+"\n"+
			testutil.PaymentLine("user-1", "order-1")+"\n"), 0o644))

	natsClient := testutil.NewMockNATSClient()
	deps := component.Dependencies{NATSClient: natsClient}
	monitor := health.NewMonitor()

	cfg := pipelineConfig(config.ComponentConfigs{
		"order-feed": {
			Type:    types.ComponentTypeInput,
			Name:    "fileinput",
			Enabled: true,
			Config:  json.RawMessage(fmt.Sprintf(`{"path": %q}`, path)),
		},
		"join": {
			Type:    types.ComponentTypeProcessor,
			Name:    "cart_join",
			Enabled: true,
		},
	})

	rt, err := NewRuntime(cfg, newTestRegistry(t), deps, monitor)
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop()

	// Outputs and processors start before inputs.
	assert.Equal(t, []string{"join", "order-feed"}, rt.Components())

	testutil.WaitForMessageCount(t, natsClient, "cart.summaries", 2, 2*time.Second)

	var msg message.BaseMessage
	require.NoError(t, json.Unmarshal(
		testutil.WaitForMessage(t, natsClient, "cart.summaries", time.Second), &msg))
	summary, ok := msg.Payload().(*message.SummaryPayload)
	require.True(t, ok)
	assert.Equal(t, "user-1", summary.CustomerID)
	assert.Equal(t, []string{"order-1"}, summary.PaidOrderIDs)
	assert.Empty(t, summary.UnpaidOrderIDs)

	select {
	case <-rt.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done channel did not close after the file drained")
	}

	require.NoError(t, rt.Stop())
}

func TestRuntimeStartsOutputsBeforeInputs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(testutil.OrderLine("u", "o")+"\n"), 0o644))

	cfg := pipelineConfig(config.ComponentConfigs{
		"feed": {
			Type:    types.ComponentTypeInput,
			Name:    "fileinput",
			Enabled: true,
			Config:  json.RawMessage(fmt.Sprintf(`{"path": %q}`, path)),
		},
		"join": {Type: types.ComponentTypeProcessor, Name: "cart_join", Enabled: true},
		"sink": {Type: types.ComponentTypeOutput, Name: "stdout", Enabled: true},
	})

	rt, err := NewRuntime(cfg, newTestRegistry(t),
		component.Dependencies{NATSClient: testutil.NewMockNATSClient()}, nil)
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop()

	assert.Equal(t, []string{"sink", "join", "feed"}, rt.Components())
}

func TestRuntimeSkipsDisabledComponents(t *testing.T) {
	cfg := pipelineConfig(config.ComponentConfigs{
		"join":     {Type: types.ComponentTypeProcessor, Name: "cart_join", Enabled: true},
		"disabled": {Type: types.ComponentTypeOutput, Name: "stdout", Enabled: false},
	})

	rt, err := NewRuntime(cfg, newTestRegistry(t),
		component.Dependencies{NATSClient: testutil.NewMockNATSClient()}, nil)
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop()

	assert.Equal(t, []string{"join"}, rt.Components())
}

func TestRuntimeUnwindsOnStartFailure(t *testing.T) {
	registry := newTestRegistry(t)
	cfg := pipelineConfig(config.ComponentConfigs{
		"join": {Type: types.ComponentTypeProcessor, Name: "cart_join", Enabled: true},
		"feed": {
			Type:    types.ComponentTypeInput,
			Name:    "fileinput",
			Enabled: true,
			Config:  json.RawMessage(`{"path": "/nonexistent/events.jsonl"}`),
		},
	})

	rt, err := NewRuntime(cfg, registry,
		component.Dependencies{NATSClient: testutil.NewMockNATSClient()}, nil)
	require.NoError(t, err)

	err = rt.Start(context.Background())
	require.Error(t, err)
	assert.Empty(t, rt.Components())

	// The unwind released instance names, so a corrected start succeeds.
	cfg.Components["feed"] = types.ComponentConfig{
		Type: types.ComponentTypeProcessor, Name: "cart_join", Enabled: false,
	}
	require.NoError(t, rt.Start(context.Background()))
	require.NoError(t, rt.Stop())
}

func TestRuntimeRejectsUnknownFactory(t *testing.T) {
	cfg := pipelineConfig(config.ComponentConfigs{
		"mystery": {Type: types.ComponentTypeInput, Name: "teleport", Enabled: true},
	})

	rt, err := NewRuntime(cfg, newTestRegistry(t),
		component.Dependencies{NATSClient: testutil.NewMockNATSClient()}, nil)
	require.NoError(t, err)
	require.Error(t, rt.Start(context.Background()))
}

func TestRuntimeRejectsEmptyPipeline(t *testing.T) {
	rt, err := NewRuntime(pipelineConfig(config.ComponentConfigs{}), newTestRegistry(t),
		component.Dependencies{NATSClient: testutil.NewMockNATSClient()}, nil)
	require.NoError(t, err)
	require.Error(t, rt.Start(context.Background()))
}

func TestRuntimeStopIsIdempotent(t *testing.T) {
	cfg := pipelineConfig(config.ComponentConfigs{
		"join": {Type: types.ComponentTypeProcessor, Name: "cart_join", Enabled: true},
	})

	rt, err := NewRuntime(cfg, newTestRegistry(t),
		component.Dependencies{NATSClient: testutil.NewMockNATSClient()}, nil)
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))
	require.NoError(t, rt.Stop())
	require.NoError(t, rt.Stop())
}

func TestRuntimeMirrorsHealth(t *testing.T) {
	monitor := health.NewMonitor()
	cfg := pipelineConfig(config.ComponentConfigs{
		"join": {Type: types.ComponentTypeProcessor, Name: "cart_join", Enabled: true},
	})

	rt, err := NewRuntime(cfg, newTestRegistry(t),
		component.Dependencies{NATSClient: testutil.NewMockNATSClient()}, monitor,
		WithHealthInterval(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop()

	require.Eventually(t, func() bool {
		status, ok := monitor.Get("join")
		return ok && status.Healthy
	}, time.Second, 10*time.Millisecond)
}

func TestSubjectMatches(t *testing.T) {
	tests := []struct {
		publish   string
		subscribe string
		want      bool
	}{
		{"cart.summaries", "cart.summaries", true},
		{"cart.summaries", "cart.*", true},
		{"cart.summaries", "cart.>", true},
		{"cart.summaries.eu", "cart.*", false},
		{"cart.summaries.eu", "cart.>", true},
		{"raw.cart.events", "cart.summaries", false},
		{"cart", "cart.*", false},
	}

	for _, tt := range tests {
		t.Run(tt.publish+"/"+tt.subscribe, func(t *testing.T) {
			assert.Equal(t, tt.want, subjectMatches(tt.publish, tt.subscribe))
		})
	}
}
