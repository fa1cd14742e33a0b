// Package cartjoin provides a stateful keyed reduction engine for correlating
// order and payment events arriving unordered on a single stream.
//
// # Architecture
//
// The core is the join package: a partition store keyed by customer id, a
// deterministic reducer that moves order ids between unpaid and paid sets,
// and an engine that wires decoding, key extraction, and per-key serialized
// state application into one pipeline:
//
//	Decoder --> Extractor --> Store + Reducer --> Emitter
//	(line)      (key)         (serialized apply)  (key, summary)
//
// The engine guarantees that events sharing a key are applied in arrival
// order against the same state instance, while distinct keys may be processed
// in parallel across hash shards.
//
// # Component mesh
//
// Around the core, stream components communicate over NATS subjects, each
// with an Initialize/Start/Stop lifecycle:
//
//   - Inputs: file lines, Kafka topics, WebSocket connections
//   - Processor: cartjoin, wrapping the join engine
//   - Outputs: stdout, JSONL files, HTTP webhooks, Redis
//
// cmd/cartjoin runs the core pipeline directly against a file with no broker;
// cmd/cartjoind runs the full component mesh from a JSON configuration.
package cartjoin
