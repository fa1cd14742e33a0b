package component

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/awmatheson/recoverable-cart-join/natsclient"
	"github.com/awmatheson/recoverable-cart-join/types"
)

// MockComponent implements the Discoverable interface for testing
type MockComponent struct {
	name          string
	componentType string
	inputPorts    []Port
	outputPorts   []Port
	healthy       bool
}

func NewMockComponent(name, componentType string) *MockComponent {
	return &MockComponent{
		name:          name,
		componentType: componentType,
		healthy:       true,
		inputPorts: []Port{
			{
				Name:        "input",
				Direction:   DirectionInput,
				Required:    true,
				Description: "Test input port",
				Config:      NATSPort{Subject: "test.input"},
			},
		},
		outputPorts: []Port{
			{
				Name:        "output",
				Direction:   DirectionOutput,
				Required:    true,
				Description: "Test output port",
				Config:      NATSPort{Subject: "test.output"},
			},
		},
	}
}

func (m *MockComponent) Meta() Metadata {
	return Metadata{
		Name:        m.name,
		Type:        m.componentType,
		Description: "Mock component for testing",
		Version:     "1.0.0",
	}
}

func (m *MockComponent) InputPorts() []Port  { return m.inputPorts }
func (m *MockComponent) OutputPorts() []Port { return m.outputPorts }

func (m *MockComponent) ConfigSchema() ConfigSchema {
	return ConfigSchema{
		Properties: map[string]PropertySchema{
			"port": {Type: "int", Description: "Port number", Default: 8080},
		},
		Required: []string{"port"},
	}
}

func (m *MockComponent) Health() HealthStatus {
	return HealthStatus{
		Healthy:   m.healthy,
		LastCheck: time.Now(),
	}
}

func (m *MockComponent) DataFlow() FlowMetrics {
	return FlowMetrics{}
}

// stubConn satisfies natsclient.Conn for registry tests without a server.
type stubConn struct{}

func (stubConn) Connect(context.Context) error { return nil }
func (stubConn) Close(context.Context) error   { return nil }
func (stubConn) Subscribe(context.Context, string, func(context.Context, []byte)) error {
	return nil
}
func (stubConn) Publish(context.Context, string, []byte) error { return nil }
func (stubConn) IsHealthy() bool                               { return true }
func (stubConn) Status() natsclient.ConnectionStatus           { return natsclient.StatusDisconnected }

func mockFactory(name, componentType string) Factory {
	return func(_ json.RawMessage, _ Dependencies) (Discoverable, error) {
		return NewMockComponent(name, componentType), nil
	}
}

func TestRegisterFactory(t *testing.T) {
	registry := NewRegistry()

	registration := &Registration{
		Name:    "file",
		Type:    "input",
		Factory: mockFactory("file", "input"),
	}

	if err := registry.RegisterFactory("file", registration); err != nil {
		t.Fatalf("RegisterFactory failed: %v", err)
	}

	// Duplicate registration must fail
	if err := registry.RegisterFactory("file", registration); err == nil {
		t.Error("expected error for duplicate factory registration")
	}

	// Invalid registrations
	if err := registry.RegisterFactory("", registration); err == nil {
		t.Error("expected error for empty factory name")
	}
	if err := registry.RegisterFactory("nil-reg", nil); err == nil {
		t.Error("expected error for nil registration")
	}
	if err := registry.RegisterFactory("no-factory", &Registration{Type: "input"}); err == nil {
		t.Error("expected error for missing factory function")
	}
	if err := registry.RegisterFactory("no-type", &Registration{Factory: mockFactory("x", "input")}); err == nil {
		t.Error("expected error for missing component type")
	}
}

func TestCreateComponent(t *testing.T) {
	registry := NewRegistry()
	deps := Dependencies{NATSClient: stubConn{}}

	err := registry.RegisterFactory("cart-join", &Registration{
		Name:    "cart-join",
		Type:    "processor",
		Factory: mockFactory("cart-join", "processor"),
	})
	if err != nil {
		t.Fatalf("RegisterFactory failed: %v", err)
	}

	config := types.ComponentConfig{
		Type:   types.ComponentTypeProcessor,
		Name:   "cart-join",
		Config: json.RawMessage(`{"shards": 4}`),
	}

	comp, err := registry.CreateComponent("cart-join-main", config, deps)
	if err != nil {
		t.Fatalf("CreateComponent failed: %v", err)
	}
	if comp == nil {
		t.Fatal("CreateComponent returned nil component")
	}

	// The instance is now registered under its instance name
	if registry.Component("cart-join-main") == nil {
		t.Error("instance not registered after CreateComponent")
	}

	// Unknown factory
	badConfig := config
	badConfig.Name = "missing"
	if _, err := registry.CreateComponent("other", badConfig, deps); err == nil {
		t.Error("expected error for unknown factory")
	}

	// Type mismatch
	mismatch := config
	mismatch.Type = types.ComponentTypeInput
	if _, err := registry.CreateComponent("mismatch", mismatch, deps); err == nil {
		t.Error("expected error for component type mismatch")
	}

	// Missing NATS client
	if _, err := registry.CreateComponent("no-nats", config, Dependencies{}); err == nil {
		t.Error("expected error for missing NATS client")
	}

	// Invalid instance name
	if _, err := registry.CreateComponent("bad name!", config, deps); err == nil {
		t.Error("expected error for invalid instance name")
	}
}

func TestRegisterInstanceDuplicates(t *testing.T) {
	registry := NewRegistry()
	comp := NewMockComponent("a", "input")

	if err := registry.RegisterInstance("a", comp); err != nil {
		t.Fatalf("RegisterInstance failed: %v", err)
	}
	if err := registry.RegisterInstance("a", comp); err == nil {
		t.Error("expected error for duplicate instance")
	}
	if err := registry.RegisterInstance("", comp); err == nil {
		t.Error("expected error for empty instance name")
	}
	if err := registry.RegisterInstance("b", nil); err == nil {
		t.Error("expected error for nil component")
	}

	registry.UnregisterInstance("a")
	if registry.Component("a") != nil {
		t.Error("instance still present after UnregisterInstance")
	}
}

func TestResourceConflicts(t *testing.T) {
	registry := NewRegistry()

	portComponent := func(port int) *MockComponent {
		c := NewMockComponent("net", "input")
		c.inputPorts = []Port{{
			Name:      "listen",
			Direction: DirectionInput,
			Config:    NetworkPort{Protocol: "tcp", Host: "0.0.0.0", Port: port},
		}}
		return c
	}

	if err := registry.RegisterInstance("first", portComponent(9001)); err != nil {
		t.Fatalf("RegisterInstance failed: %v", err)
	}

	// Same exclusive port conflicts
	if err := registry.RegisterInstance("second", portComponent(9001)); err == nil {
		t.Error("expected resource conflict for duplicate network port")
	}

	// Different port is fine
	if err := registry.RegisterInstance("third", portComponent(9002)); err != nil {
		t.Errorf("unexpected error for distinct port: %v", err)
	}

	// Releasing the instance frees the resource
	registry.UnregisterInstance("first")
	if err := registry.RegisterInstance("fourth", portComponent(9001)); err != nil {
		t.Errorf("resource not released after unregister: %v", err)
	}
}

func TestGetComponentSchema(t *testing.T) {
	registry := NewRegistry()

	schema := ConfigSchema{
		Properties: map[string]PropertySchema{
			"path": {Type: "string", Description: "Input file path"},
		},
		Required: []string{"path"},
	}

	err := registry.RegisterWithConfig(RegistrationConfig{
		Name:    "file",
		Factory: mockFactory("file", "input"),
		Schema:  schema,
		Type:    "input",
	})
	if err != nil {
		t.Fatalf("RegisterWithConfig failed: %v", err)
	}

	got, err := registry.GetComponentSchema("file")
	if err != nil {
		t.Fatalf("GetComponentSchema failed: %v", err)
	}
	if _, ok := got.Properties["path"]; !ok {
		t.Error("schema missing expected property")
	}

	if _, err := registry.GetComponentSchema("missing"); err == nil {
		t.Error("expected error for unknown component type")
	}
}

func TestListFactoriesAndAvailable(t *testing.T) {
	registry := NewRegistry()

	for _, name := range []string{"file", "kafka", "stdout"} {
		compType := "input"
		if name == "stdout" {
			compType = "output"
		}
		err := registry.RegisterWithConfig(RegistrationConfig{
			Name:     name,
			Factory:  mockFactory(name, compType),
			Type:     compType,
			Protocol: name,
			Version:  "1.0.0",
		})
		if err != nil {
			t.Fatalf("RegisterWithConfig(%s) failed: %v", name, err)
		}
	}

	factories := registry.ListFactories()
	if len(factories) != 3 {
		t.Errorf("expected 3 factories, got %d", len(factories))
	}
	for name, reg := range factories {
		if reg.Factory != nil {
			t.Errorf("factory function leaked for %s", name)
		}
	}

	available := registry.ListAvailable()
	if available["stdout"].Type != "output" {
		t.Errorf("expected stdout to be output, got %s", available["stdout"].Type)
	}

	typeNames := registry.ListComponentTypes()
	if len(typeNames) != 3 {
		t.Errorf("expected 3 type names, got %d", len(typeNames))
	}

	if _, ok := registry.GetFactory("kafka"); !ok {
		t.Error("GetFactory did not find kafka")
	}
	if _, ok := registry.GetFactory("missing"); ok {
		t.Error("GetFactory found nonexistent factory")
	}
}

func TestValidateComponentName(t *testing.T) {
	valid := []string{"file", "cart-join", "order_feed.v1", "A1"}
	for _, name := range valid {
		if err := ValidateComponentName(name); err != nil {
			t.Errorf("ValidateComponentName(%q) unexpected error: %v", name, err)
		}
	}

	invalid := []string{"", "has space", "semi;colon", "slash/name", strings.Repeat("x", MaxStringLength+1)}
	for _, name := range invalid {
		if err := ValidateComponentName(name); err == nil {
			t.Errorf("ValidateComponentName(%q) expected error", name)
		}
	}
}

func TestConfigHelpers(t *testing.T) {
	config := map[string]any{
		"subject": "cart.events",
		"shards":  float64(8),
		"queue":   int64(1024),
		"enabled": true,
		"ratio":   0.5,
		"dirty":   "clean\x00me",
	}

	if got := GetString(config, "subject", "fallback"); got != "cart.events" {
		t.Errorf("GetString = %q", got)
	}
	if got := GetString(config, "missing", "fallback"); got != "fallback" {
		t.Errorf("GetString missing = %q", got)
	}
	if got := GetString(config, "dirty", ""); got != "cleanme" {
		t.Errorf("GetString did not strip null byte: %q", got)
	}
	if got := GetInt(config, "shards", 1); got != 8 {
		t.Errorf("GetInt float = %d", got)
	}
	if got := GetInt(config, "queue", 1); got != 1024 {
		t.Errorf("GetInt int64 = %d", got)
	}
	if got := GetInt(config, "missing", 64); got != 64 {
		t.Errorf("GetInt missing = %d", got)
	}
	if !GetBool(config, "enabled", false) {
		t.Error("GetBool = false")
	}
	if got := GetFloat64(config, "ratio", 1.0); got != 0.5 {
		t.Errorf("GetFloat64 = %f", got)
	}
}

func TestValidatePortNumber(t *testing.T) {
	if err := ValidatePortNumber(4222); err != nil {
		t.Errorf("unexpected error for valid port: %v", err)
	}
	for _, port := range []int{0, -1, 65536} {
		if err := ValidatePortNumber(port); err == nil {
			t.Errorf("expected error for port %d", port)
		}
	}
}
