// Package join implements the stateful keyed reduction at the center of the
// pipeline: it partitions a stream of cart events by customer id, maintains
// per-customer unpaid and paid order sets, and emits a frozen summary after
// every state change.
//
// The package is usable standalone (see cmd/cartjoin) and is also wrapped by
// the processor/cartjoin stream component. Components:
//
//   - Decoder: raw line -> EventPayload or rejection diagnostic
//   - ExtractKey: EventPayload -> partition key
//   - Store: sharded key -> *CustomerState map with per-key serialized Apply
//   - Reducer: (state, event) -> (next state, summary)
//   - Engine: wires the above over a keyed shard pool for cross-key
//     parallelism with per-key ordering
package join
