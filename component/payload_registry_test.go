package component

import (
	"testing"
)

type testPayload struct {
	Value string `json:"value"`
}

func testRegistration(domain, category, version string) *PayloadRegistration {
	return &PayloadRegistration{
		Factory:     func() any { return &testPayload{} },
		Domain:      domain,
		Category:    category,
		Version:     version,
		Description: "test payload",
	}
}

func TestPayloadRegistryRegisterAndCreate(t *testing.T) {
	registry := NewPayloadRegistry()

	if err := registry.RegisterPayload(testRegistration("cart", "event", "v1")); err != nil {
		t.Fatalf("RegisterPayload failed: %v", err)
	}

	payload := registry.CreatePayload("cart", "event", "v1")
	if payload == nil {
		t.Fatal("CreatePayload returned nil for registered type")
	}
	if _, ok := payload.(*testPayload); !ok {
		t.Errorf("CreatePayload returned %T, want *testPayload", payload)
	}

	if registry.CreatePayload("cart", "unknown", "v1") != nil {
		t.Error("CreatePayload should return nil for unregistered type")
	}
}

func TestPayloadRegistryValidation(t *testing.T) {
	registry := NewPayloadRegistry()

	cases := []struct {
		name string
		reg  *PayloadRegistration
	}{
		{"nil registration", nil},
		{"nil factory", &PayloadRegistration{Domain: "cart", Category: "event", Version: "v1"}},
		{"missing domain", testRegistration("", "event", "v1")},
		{"missing category", testRegistration("cart", "", "v1")},
		{"missing version", testRegistration("cart", "event", "")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := registry.RegisterPayload(tc.reg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPayloadRegistryDuplicate(t *testing.T) {
	registry := NewPayloadRegistry()

	if err := registry.RegisterPayload(testRegistration("cart", "summary", "v1")); err != nil {
		t.Fatalf("RegisterPayload failed: %v", err)
	}
	if err := registry.RegisterPayload(testRegistration("cart", "summary", "v1")); err == nil {
		t.Error("expected error for duplicate payload type")
	}
}

func TestPayloadRegistryLookups(t *testing.T) {
	registry := NewPayloadRegistry()

	for _, category := range []string{"event", "summary"} {
		if err := registry.RegisterPayload(testRegistration("cart", category, "v1")); err != nil {
			t.Fatalf("RegisterPayload(%s) failed: %v", category, err)
		}
	}
	if err := registry.RegisterPayload(testRegistration("ops", "diagnostic", "v1")); err != nil {
		t.Fatalf("RegisterPayload failed: %v", err)
	}

	reg, found := registry.GetRegistration("cart.event.v1")
	if !found {
		t.Fatal("GetRegistration did not find cart.event.v1")
	}
	if reg.Factory != nil {
		t.Error("GetRegistration leaked the factory function")
	}
	if reg.MessageType() != "cart.event.v1" {
		t.Errorf("MessageType = %q", reg.MessageType())
	}

	if _, found := registry.GetRegistration("cart.missing.v1"); found {
		t.Error("GetRegistration found nonexistent type")
	}

	all := registry.ListPayloads()
	if len(all) != 3 {
		t.Errorf("ListPayloads returned %d entries, want 3", len(all))
	}

	cartOnly := registry.ListByDomain("cart")
	if len(cartOnly) != 2 {
		t.Errorf("ListByDomain(cart) returned %d entries, want 2", len(cartOnly))
	}
}

func TestGlobalPayloadRegistry(t *testing.T) {
	// The message package registers cart payloads via init; this registry is
	// package-global, so use a distinct type to avoid collisions.
	err := RegisterPayload(testRegistration("testdomain", "sample", "v1"))
	if err != nil {
		t.Fatalf("global RegisterPayload failed: %v", err)
	}

	if CreatePayload("testdomain", "sample", "v1") == nil {
		t.Error("global CreatePayload returned nil for registered type")
	}
}
