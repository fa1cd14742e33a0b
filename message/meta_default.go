package message

import (
	"time"

	"github.com/awmatheson/recoverable-cart-join/pkg/timestamp"
)

// DefaultMeta is the standard Meta implementation carried by cart event
// and summary envelopes: when the event occurred upstream, when this
// pipeline received it, and which component or feed it came from.
type DefaultMeta struct {
	createdAt  int64 // Unix milliseconds
	receivedAt int64 // Unix milliseconds
	source     string
}

// NewDefaultMeta stamps a message with its upstream creation time and
// source; the received time is set to now.
func NewDefaultMeta(createdAt time.Time, source string) *DefaultMeta {
	return &DefaultMeta{
		createdAt:  timestamp.ToUnixMs(createdAt),
		receivedAt: timestamp.Now(),
		source:     source,
	}
}

// NewDefaultMetaWithReceivedAt sets both times explicitly, for tests and
// for replaying captured event files with their original timing.
func NewDefaultMetaWithReceivedAt(createdAt, receivedAt time.Time, source string) *DefaultMeta {
	return &DefaultMeta{
		createdAt:  timestamp.ToUnixMs(createdAt),
		receivedAt: timestamp.ToUnixMs(receivedAt),
		source:     source,
	}
}

// CreatedAt returns when the cart event occurred upstream.
func (m *DefaultMeta) CreatedAt() time.Time {
	return timestamp.ToTime(m.createdAt)
}

// ReceivedAt returns when this pipeline first saw the message.
func (m *DefaultMeta) ReceivedAt() time.Time {
	return timestamp.ToTime(m.receivedAt)
}

// Source names the component or feed the message came from.
func (m *DefaultMeta) Source() string {
	return m.source
}
