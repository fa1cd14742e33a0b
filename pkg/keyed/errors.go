package keyed

import "errors"

// Pool lifecycle and submission errors
var (
	ErrNilProcessor       = errors.New("keyed: processor function cannot be nil")
	ErrNilKeyFunc         = errors.New("keyed: key function cannot be nil")
	ErrPoolNotStarted     = errors.New("keyed: pool not started")
	ErrPoolStopped        = errors.New("keyed: pool stopped")
	ErrPoolAlreadyStarted = errors.New("keyed: pool already started")
	ErrStopTimeout        = errors.New("keyed: timeout waiting for shards to drain")
)
