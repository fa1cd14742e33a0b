// Package keyed provides a sharded worker pool that serializes work items
// sharing a partition key while processing distinct keys in parallel.
//
// Each shard owns an ordered queue and a dedicated worker goroutine. A work
// item's key selects its shard by hash, so all items for one key are applied
// strictly in submission order, and no two items for the same key are ever
// processed concurrently. Items for different keys that land on different
// shards proceed independently.
//
// Submission blocks when the target shard's queue is full, giving bounded,
// fair backpressure rather than dropping work. Stop drains every queue
// before returning, so no accepted item is lost on shutdown. Submit may
// race Stop freely: submitters caught mid-send are waited out before the
// queues close, and late arrivals get ErrPoolStopped. After a fatal
// processor error the pool stops without draining, so no further items
// are processed or emitted.
package keyed
