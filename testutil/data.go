package testutil

import "fmt"

// CartEventLines contains a mixed stream of order and payment events in
// the raw line format consumed by the join engine.
var CartEventLines = []string{
	`{"type": "order", "user_id": "user-1", "order_id": "order-1"}`,
	`{"type": "order", "user_id": "user-1", "order_id": "order-2"}`,
	`{"type": "payment", "user_id": "user-1", "order_id": "order-1"}`,
	`{"type": "order", "user_id": "user-2", "order_id": "order-3"}`,
	`{"type": "payment", "user_id": "user-2", "order_id": "order-3"}`,
}

// MalformedLines contains inputs that the decoder must reject without
// stopping the stream.
var MalformedLines = []string{
	`not json at all`,
	`{"type": "refund", "user_id": "user-1", "order_id": "order-9"}`,
	`{"type": "order", "user_id": "user-1"}`,
	`{"user_id": "user-1", "order_id": "order-9"}`,
}

// OrderLine builds a raw order-placed event line.
func OrderLine(userID, orderID string) string {
	return fmt.Sprintf(`{"type": "order", "user_id": %q, "order_id": %q}`, userID, orderID)
}

// PaymentLine builds a raw payment-received event line.
func PaymentLine(userID, orderID string) string {
	return fmt.Sprintf(`{"type": "payment", "user_id": %q, "order_id": %q}`, userID, orderID)
}
