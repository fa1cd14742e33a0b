package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	r := New[int](3)

	_, ok := r.Read()
	assert.False(t, ok)

	r.Write(1)
	r.Write(2)
	assert.Equal(t, 2, r.Len())

	v, ok := r.Read()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = r.Read()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 0, r.Len())
}

func TestOverflowDropsOldest(t *testing.T) {
	var dropped []int
	r := New(3, WithDropCallback(func(item int) {
		dropped = append(dropped, item)
	}))

	for i := 1; i <= 5; i++ {
		r.Write(i)
	}

	assert.Equal(t, []int{3, 4, 5}, r.Snapshot())
	assert.Equal(t, []int{1, 2}, dropped)
	assert.Equal(t, int64(2), r.Dropped())
	assert.Equal(t, int64(5), r.Written())
}

func TestSnapshotDoesNotConsume(t *testing.T) {
	r := New[string](2)
	r.Write("a")
	r.Write("b")

	assert.Equal(t, []string{"a", "b"}, r.Snapshot())
	assert.Equal(t, 2, r.Len())
}

func TestClear(t *testing.T) {
	r := New[int](2)
	r.Write(1)
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())
}

func TestMinimumCapacity(t *testing.T) {
	r := New[int](0)
	assert.Equal(t, 1, r.Cap())
	r.Write(1)
	r.Write(2)
	assert.Equal(t, []int{2}, r.Snapshot())
}

func TestConcurrentWrites(t *testing.T) {
	r := New[int](64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Write(base*100 + j)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 64, r.Len())
	assert.Equal(t, int64(800), r.Written())
	assert.Equal(t, int64(800-64), r.Dropped())
}
