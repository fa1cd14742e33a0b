package message

import "encoding/json"

// Payload represents the data carried by a message.
// All message payloads must implement this interface to provide
// schema information, validation, and serialization capabilities.
//
// Example implementation:
//
//	type SummaryPayload struct {
//	    CustomerID     string   `json:"user_id"`
//	    PaidOrderIDs   []string `json:"paid_order_ids"`
//	    UnpaidOrderIDs []string `json:"unpaid_order_ids"`
//	}
//
//	func (p *SummaryPayload) Schema() Type {
//	    return Type{Domain: "cart", Category: "summary", Version: "v1"}
//	}
type Payload interface {
	// Schema returns the Type that defines this payload's structure.
	// This enables type-safe routing and processing throughout the system.
	Schema() Type

	// Validate checks the payload data for correctness.
	// Returns nil if valid, or an error describing the validation failure.
	Validate() error

	// JSON serialization using standard Go interfaces.
	// Payloads must implement json.Marshaler and json.Unmarshaler
	// for deterministic serialization. The same payload must always
	// produce the same JSON output.
	json.Marshaler
	json.Unmarshaler
}
