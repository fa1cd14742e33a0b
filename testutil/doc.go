// Package testutil provides test doubles and sample data for pipeline
// component tests.
//
// MockNATSClient is an in-memory natsclient.Conn: publishes route
// synchronously to subscribers registered on the same subject, and every
// published message is retained for assertion helpers like WaitForMessage
// and AssertMessageReceived.
package testutil
