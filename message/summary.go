package message

import (
	"encoding/json"

	"github.com/awmatheson/recoverable-cart-join/component"
	"github.com/awmatheson/recoverable-cart-join/errors"
)

// SummaryType is the message type for per-customer join summaries.
var SummaryType = Type{
	Domain:   "cart",
	Category: "summary",
	Version:  "v1",
}

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "cart",
		Category:    "summary",
		Version:     "v1",
		Description: "Snapshot of a customer's unpaid and paid order ids after an event",
		Factory: func() any {
			return &SummaryPayload{}
		},
		Example: map[string]any{
			"user_id":          "a",
			"paid_order_ids":   []string{"1"},
			"unpaid_order_ids": []string{"2"},
		},
	})
	if err != nil {
		panic("failed to register cart summary payload: " + err.Error())
	}
}

// SummaryPayload is a frozen snapshot of one customer's order state,
// emitted after every successful state update. The slices are copies
// owned by the summary; later state changes never show through.
type SummaryPayload struct {
	CustomerID     string   `json:"user_id"`
	PaidOrderIDs   []string `json:"paid_order_ids"`
	UnpaidOrderIDs []string `json:"unpaid_order_ids"`
}

// NewSummary creates a summary with non-nil id slices so the wire format
// always carries arrays, never null.
func NewSummary(customerID string, paid, unpaid []string) *SummaryPayload {
	if paid == nil {
		paid = []string{}
	}
	if unpaid == nil {
		unpaid = []string{}
	}
	return &SummaryPayload{
		CustomerID:     customerID,
		PaidOrderIDs:   paid,
		UnpaidOrderIDs: unpaid,
	}
}

// Schema returns the payload type identifier for summaries.
func (p *SummaryPayload) Schema() Type {
	return SummaryType
}

// Validate checks the summary for internal consistency: a customer id is
// present and no order id appears in both sets.
func (p *SummaryPayload) Validate() error {
	if p.CustomerID == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "SummaryPayload", "Validate",
			"customer id is required")
	}
	paid := make(map[string]struct{}, len(p.PaidOrderIDs))
	for _, id := range p.PaidOrderIDs {
		paid[id] = struct{}{}
	}
	for _, id := range p.UnpaidOrderIDs {
		if _, ok := paid[id]; ok {
			return errors.WrapInvalid(errors.ErrStateInvariant, "SummaryPayload", "Validate",
				"order id "+id+" present in both paid and unpaid sets")
		}
	}
	return nil
}

// MarshalJSON serializes the summary, writing empty arrays for nil slices.
func (p *SummaryPayload) MarshalJSON() ([]byte, error) {
	type Alias SummaryPayload
	out := *(*Alias)(p)
	if out.PaidOrderIDs == nil {
		out.PaidOrderIDs = []string{}
	}
	if out.UnpaidOrderIDs == nil {
		out.UnpaidOrderIDs = []string{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON deserializes a summary.
func (p *SummaryPayload) UnmarshalJSON(data []byte) error {
	type Alias SummaryPayload
	return json.Unmarshal(data, (*Alias)(p))
}
