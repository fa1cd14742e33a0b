// Package cartjoin provides the processor component that correlates
// order-placed and payment-received events by customer id.
//
// The component subscribes to raw event lines on NATS, feeds them through
// a sharded join engine, and publishes a per-customer summary message
// after every successful state update. Malformed or unkeyable lines are
// diagnosed and skipped without stopping the stream; a state invariant
// violation stops the component and surfaces through Health.
package cartjoin
