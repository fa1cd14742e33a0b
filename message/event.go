package message

import (
	"encoding/json"
	"fmt"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/errors"
)

// EventType is the message type for cart events.
var EventType = Type{
	Domain:   "cart",
	Category: "event",
	Version:  "v1",
}

// EventKind tags the decoded variant of a cart event. The tag is decided
// once at decode time so downstream code switches on the tag instead of
// re-inspecting raw fields.
type EventKind string

const (
	// KindOrder is an order-placed event ("type": "order" on the wire).
	KindOrder EventKind = "order"
	// KindPayment is a payment-received event ("type": "payment" on the wire).
	KindPayment EventKind = "payment"
	// KindUnknown marks an event whose type string was missing or unrecognized.
	KindUnknown EventKind = "unknown"
)

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "cart",
		Category:    "event",
		Version:     "v1",
		Description: "Order-placed or payment-received event keyed by customer id",
		Factory: func() any {
			return &EventPayload{}
		},
		Example: map[string]any{
			"type":     "order",
			"user_id":  "a",
			"order_id": "1",
		},
	})
	if err != nil {
		panic("failed to register cart event payload: " + err.Error())
	}
}

// EventPayload is a single cart event. Events are immutable once decoded.
//
// The wire format keeps the original flat shape:
//
//	{"type": "order", "user_id": "a", "order_id": "1", "amount": 42}
//
// Fields beyond type, customer id, and order id are preserved in Extra and
// round-trip through serialization untouched.
type EventPayload struct {
	Kind       EventKind
	CustomerID string
	OrderID    string
	Extra      map[string]any
}

// Wire field names. The customer and order keys each have a snake_case and
// a camelCase spelling in the wild; both are accepted on decode, snake_case
// is written on encode.
const (
	fieldType            = "type"
	fieldCustomerID      = "user_id"
	fieldCustomerIDCamel = "customerId"
	fieldOrderID         = "order_id"
	fieldOrderIDCamel    = "orderId"
)

// Schema returns the payload type identifier for cart events.
func (p *EventPayload) Schema() Type {
	return EventType
}

// Validate checks that the event carries a recognized kind and the fields
// the reducer needs.
func (p *EventPayload) Validate() error {
	if p.Kind != KindOrder && p.Kind != KindPayment {
		return errors.WrapInvalid(errors.ErrInvalidData, "EventPayload", "Validate",
			fmt.Sprintf("unrecognized event kind: %q", p.Kind))
	}
	if p.CustomerID == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "EventPayload", "Validate",
			"customer id is required")
	}
	if p.OrderID == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "EventPayload", "Validate",
			"order id is required")
	}
	return nil
}

// MarshalJSON writes the flat wire shape: type, user_id, order_id, and any
// extra fields at the top level.
func (p *EventPayload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+3)
	for k, v := range p.Extra {
		out[k] = v
	}
	out[fieldType] = string(p.Kind)
	out[fieldCustomerID] = p.CustomerID
	out[fieldOrderID] = p.OrderID
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat wire shape. Both field spellings are
// accepted for the customer and order ids. An absent or non-string type
// field yields KindUnknown rather than an error so the caller can emit a
// precise rejection diagnostic.
func (p *EventPayload) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WrapInvalid(err, "EventPayload", "UnmarshalJSON", "failed to unmarshal event")
	}

	p.Kind = KindUnknown
	if t, ok := raw[fieldType].(string); ok {
		switch EventKind(t) {
		case KindOrder:
			p.Kind = KindOrder
		case KindPayment:
			p.Kind = KindPayment
		}
	}

	p.CustomerID = stringField(raw, fieldCustomerID, fieldCustomerIDCamel)
	p.OrderID = stringField(raw, fieldOrderID, fieldOrderIDCamel)

	delete(raw, fieldType)
	delete(raw, fieldCustomerID)
	delete(raw, fieldCustomerIDCamel)
	delete(raw, fieldOrderID)
	delete(raw, fieldOrderIDCamel)
	if len(raw) > 0 {
		p.Extra = raw
	} else {
		p.Extra = nil
	}

	return nil
}

// stringField returns the first of the named keys holding a non-empty
// string value.
func stringField(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := raw[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
