package join

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/awmatheson/recoverable-cart-join/message"
)

// DefaultStoreShards is the default lock shard count for a Store.
const DefaultStoreShards = 16

// ApplyFunc computes the next state and a derived summary from the current
// state for a key. A nil state means the key has not been seen.
type ApplyFunc func(state *CustomerState) (*CustomerState, *message.SummaryPayload, error)

// Store maps partition keys to customer state. Locking is partitioned by
// key hash rather than a single global mutex, so Apply calls on distinct
// keys proceed in parallel while calls on the same key are serialized.
type Store struct {
	shards []*storeShard

	// Aggregate counts maintained inside Apply (atomic)
	keyCount    int64
	unpaidCount int64
	paidCount   int64
}

type storeShard struct {
	mu     sync.Mutex
	states map[string]*CustomerState
}

// NewStore creates a store with the given lock shard count. Non-positive
// counts fall back to DefaultStoreShards.
func NewStore(shards int) *Store {
	if shards <= 0 {
		shards = DefaultStoreShards
	}
	s := &Store{shards: make([]*storeShard, shards)}
	for i := range s.shards {
		s.shards[i] = &storeShard{states: make(map[string]*CustomerState)}
	}
	return s
}

func (s *Store) shardFor(key string) *storeShard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// GetOrCreate returns the state for a key, creating an empty one on first
// access. The returned handle is for inspection; mutation must go through
// Apply.
func (s *Store) GetOrCreate(key string) *CustomerState {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.states[key]
	if !ok {
		state = newCustomerState()
		shard.states[key] = state
		atomic.AddInt64(&s.keyCount, 1)
	}
	return state
}

// Get returns the state for a key, or nil if the key has never been seen.
func (s *Store) Get(key string) *CustomerState {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return shard.states[key]
}

// Apply runs fn against the current state for key, holding the key's shard
// lock for the duration. Successive Apply calls on the same key observe
// the state left by the previous call; calls on the same key never
// overlap. fn receives nil when the key is new and its returned state is
// stored back.
func (s *Store) Apply(key string, fn ApplyFunc) (*message.SummaryPayload, error) {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state := shard.states[key]

	var beforeUnpaid, beforePaid int
	if state != nil {
		beforeUnpaid, beforePaid = state.UnpaidCount(), state.PaidCount()
	}

	next, summary, err := fn(state)
	if next != nil {
		if state == nil {
			atomic.AddInt64(&s.keyCount, 1)
		}
		shard.states[key] = next
		atomic.AddInt64(&s.unpaidCount, int64(next.UnpaidCount()-beforeUnpaid))
		atomic.AddInt64(&s.paidCount, int64(next.PaidCount()-beforePaid))
	}

	return summary, err
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	return int(atomic.LoadInt64(&s.keyCount))
}

// Totals returns the tracked key count and the aggregate unpaid and paid
// order counts across all keys.
func (s *Store) Totals() (keys, unpaid, paid int) {
	return int(atomic.LoadInt64(&s.keyCount)),
		int(atomic.LoadInt64(&s.unpaidCount)),
		int(atomic.LoadInt64(&s.paidCount))
}

// Keys returns all tracked partition keys in no particular order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, s.Len())
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key := range shard.states {
			keys = append(keys, key)
		}
		shard.mu.Unlock()
	}
	return keys
}
