package componentregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awmatheson/recoverable-cart-join/component"
)

func TestRegisterRegistersAllFactories(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	expected := []string{
		"fileinput", "kafka", "websocket",
		"cart_join",
		"stdout", "file", "httppost", "redis",
	}
	for _, name := range expected {
		_, ok := registry.GetFactory(name)
		assert.True(t, ok, "factory %q should be registered", name)
	}
}

func TestRegisterRejectsNilRegistry(t *testing.T) {
	require.Error(t, Register(nil))
}
