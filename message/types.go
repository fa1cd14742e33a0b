package message

import "fmt"

// Keyable represents types that can be converted to dotted-notation keys.
// Dotted keys map directly onto NATS subject tokens, which keeps routing
// and storage naming consistent across the pipeline.
type Keyable interface {
	// Key returns the dotted notation representation of this type.
	// Examples: "cart.event.v1", "cart.summary.v1"
	Key() string
}

// Type provides structured type information for messages.
// It enables type-safe routing and processing by clearly identifying
// the domain, category, and version of each message.
//
// Type constants are defined next to the payloads they describe:
//
//	var EventMessage = message.Type{
//	    Domain:   "cart",
//	    Category: "event",
//	    Version:  "v1",
//	}
type Type struct {
	// Domain identifies the business or system domain.
	// Examples: "cart", "core"
	Domain string

	// Category identifies the specific message type within the domain.
	// Examples: "event", "summary"
	Category string

	// Version identifies the schema version.
	// Format: "v1", "v2", etc. Enables schema evolution.
	Version string
}

// Key returns the dotted notation representation: "domain.category.version"
func (mt Type) Key() string {
	return fmt.Sprintf("%s.%s.%s", mt.Domain, mt.Category, mt.Version)
}

// String returns the same as Key()
func (mt Type) String() string {
	return mt.Key()
}

// IsValid checks if the Type has all required fields populated
// with non-empty values.
func (mt Type) IsValid() bool {
	return mt.Domain != "" && mt.Category != "" && mt.Version != ""
}

// Equal compares two Type instances for equality.
func (mt Type) Equal(other Type) bool {
	return mt.Domain == other.Domain &&
		mt.Category == other.Category &&
		mt.Version == other.Version
}
