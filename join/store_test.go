package join

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awmatheson/recoverable-cart-join/message"
)

func TestStoreGetOrCreate(t *testing.T) {
	store := NewStore(4)

	assert.Nil(t, store.Get("u1"))

	state := store.GetOrCreate("u1")
	require.NotNil(t, state)
	assert.Equal(t, 0, state.UnpaidCount())
	assert.Equal(t, 1, store.Len())

	// Second access returns the same instance
	assert.Same(t, state, store.GetOrCreate("u1"))
	assert.Equal(t, 1, store.Len())
}

func TestStoreApplyObservesPriorState(t *testing.T) {
	store := NewStore(4)
	reducer := NewReducer(nil, nil)

	apply := func(event message.EventPayload) *message.SummaryPayload {
		summary, err := store.Apply(event.CustomerID, func(state *CustomerState) (*CustomerState, *message.SummaryPayload, error) {
			return reducer.Reduce(state, event)
		})
		require.NoError(t, err)
		return summary
	}

	apply(orderEvent("u1", "o1"))
	apply(orderEvent("u1", "o2"))
	summary := apply(paymentEvent("u1", "o1"))

	assert.Equal(t, []string{"o1"}, summary.PaidOrderIDs)
	assert.Equal(t, []string{"o2"}, summary.UnpaidOrderIDs)
}

func TestStoreApplyCountsNewKeysOnce(t *testing.T) {
	store := NewStore(4)
	reducer := NewReducer(nil, nil)

	for i := 0; i < 3; i++ {
		_, err := store.Apply("u1", func(state *CustomerState) (*CustomerState, *message.SummaryPayload, error) {
			return reducer.Reduce(state, orderEvent("u1", fmt.Sprintf("o%d", i)))
		})
		require.NoError(t, err)
	}

	keys, unpaid, paid := store.Totals()
	assert.Equal(t, 1, keys)
	assert.Equal(t, 3, unpaid)
	assert.Equal(t, 0, paid)
}

func TestStoreKeysAreIndependent(t *testing.T) {
	store := NewStore(2)
	reducer := NewReducer(nil, nil)

	_, err := store.Apply("u1", func(state *CustomerState) (*CustomerState, *message.SummaryPayload, error) {
		return reducer.Reduce(state, orderEvent("u1", "o1"))
	})
	require.NoError(t, err)

	summary, err := store.Apply("u2", func(state *CustomerState) (*CustomerState, *message.SummaryPayload, error) {
		return reducer.Reduce(state, paymentEvent("u2", "o1"))
	})
	require.NoError(t, err)

	// u2's orphan payment sees nothing of u1's unpaid o1
	assert.Empty(t, summary.PaidOrderIDs)
	assert.Empty(t, summary.UnpaidOrderIDs)
	assert.Equal(t, 1, store.Get("u1").UnpaidCount())
}

func TestStoreApplySerializesPerKey(t *testing.T) {
	store := NewStore(8)

	// Hammer one key from many goroutines; each Apply increments a counter
	// stored in the state. Lost updates would show as a short final count.
	const goroutines = 16
	const iterations = 200

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				_, err := store.Apply("hot", func(state *CustomerState) (*CustomerState, *message.SummaryPayload, error) {
					if state == nil {
						state = newCustomerState()
					}
					state.paid = append(state.paid, "x")
					return state, nil, nil
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*iterations, store.Get("hot").PaidCount())
}

func TestStoreTotalsTrackPaidTransitions(t *testing.T) {
	store := NewStore(4)
	reducer := NewReducer(nil, nil)

	events := []message.EventPayload{
		orderEvent("u1", "o1"),
		orderEvent("u2", "o1"),
		paymentEvent("u1", "o1"),
	}
	for _, event := range events {
		ev := event
		_, err := store.Apply(ev.CustomerID, func(state *CustomerState) (*CustomerState, *message.SummaryPayload, error) {
			return reducer.Reduce(state, ev)
		})
		require.NoError(t, err)
	}

	keys, unpaid, paid := store.Totals()
	assert.Equal(t, 2, keys)
	assert.Equal(t, 1, unpaid)
	assert.Equal(t, 1, paid)

	assert.ElementsMatch(t, []string{"u1", "u2"}, store.Keys())
}

func TestStoreDefaultShardCount(t *testing.T) {
	store := NewStore(0)
	assert.Len(t, store.shards, DefaultStoreShards)
}
