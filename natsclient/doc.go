// Package natsclient provides a NATS client with a circuit breaker.
//
// The Client wraps a core NATS connection with failure tracking, an
// exponential-backoff circuit breaker, health monitoring, and optional
// Prometheus metrics. Components depend on the narrow Conn interface
// rather than the concrete Client so tests can substitute an in-memory
// implementation (see testutil.MockNATSClient).
package natsclient
