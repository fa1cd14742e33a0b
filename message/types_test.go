package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypeKey(t *testing.T) {
	mt := Type{Domain: "cart", Category: "event", Version: "v1"}
	assert.Equal(t, "cart.event.v1", mt.Key())
	assert.Equal(t, mt.Key(), mt.String())
}

func TestTypeIsValid(t *testing.T) {
	assert.True(t, Type{Domain: "cart", Category: "event", Version: "v1"}.IsValid())
	assert.False(t, Type{Domain: "cart", Category: "event"}.IsValid())
	assert.False(t, Type{}.IsValid())
}

func TestTypeEqual(t *testing.T) {
	a := Type{Domain: "cart", Category: "event", Version: "v1"}
	b := Type{Domain: "cart", Category: "event", Version: "v1"}
	c := Type{Domain: "cart", Category: "event", Version: "v2"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestDefaultMeta(t *testing.T) {
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := NewDefaultMeta(createdAt, "file-input")

	assert.Equal(t, createdAt.UnixMilli(), meta.CreatedAt().UnixMilli())
	assert.Equal(t, "file-input", meta.Source())
	assert.False(t, meta.ReceivedAt().IsZero())
}

func TestDefaultMetaWithReceivedAt(t *testing.T) {
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	receivedAt := createdAt.Add(5 * time.Second)
	meta := NewDefaultMetaWithReceivedAt(createdAt, receivedAt, "kafka-input")

	assert.Equal(t, createdAt.UnixMilli(), meta.CreatedAt().UnixMilli())
	assert.Equal(t, receivedAt.UnixMilli(), meta.ReceivedAt().UnixMilli())
	assert.Equal(t, "kafka-input", meta.Source())
}
