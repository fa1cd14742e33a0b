package natsclient

import "context"

// Conn is the messaging surface components depend on. *Client satisfies
// it against a real NATS server; testutil.MockNATSClient satisfies it
// in-memory for unit tests.
type Conn interface {
	// Connect establishes the connection. Respects the circuit breaker.
	Connect(ctx context.Context) error

	// Close drains subscriptions and closes the connection.
	Close(ctx context.Context) error

	// Subscribe registers a handler for a subject. The handler receives
	// a per-message context derived from ctx.
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error

	// Publish sends data on a subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// IsHealthy reports whether the connection is currently usable.
	IsHealthy() bool

	// Status returns the current connection status.
	Status() ConnectionStatus
}
