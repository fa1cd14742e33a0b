// Package component defines the contracts shared by every cartjoin
// pipeline component: the Discoverable interface for inspection, the
// LifecycleComponent interface for Initialize/Start/Stop management,
// port descriptions, dependency injection, the component factory
// registry, and the payload registry used for message deserialization.
//
// Components follow one lifecycle pattern:
//
//	Initialize() error                  // setup only, no I/O
//	Start(ctx context.Context) error    // begin processing
//	Stop(timeout time.Duration) error   // graceful shutdown with deadline
//
// Factories receive raw JSON configuration plus Dependencies and return
// a Discoverable. All I/O belongs in Start, never in the factory.
package component
