package join

import (
	"github.com/awmatheson/recoverable-cart-join/message"
)

// CustomerState holds one customer's order tracking state. It is owned by
// the Store and must only be mutated through Store.Apply; the exported
// accessors return copies.
//
// Invariant: an order id appears in at most one of the unpaid and paid
// sets, and enters the paid sequence only by moving out of unpaid.
type CustomerState struct {
	unpaid      map[string]message.EventPayload // order id -> originating order event
	unpaidOrder []string                        // insertion order of unpaid order ids
	paid        []string                        // payment-confirmation order
	paidSet     map[string]struct{}             // O(1) membership for paid
}

func newCustomerState() *CustomerState {
	return &CustomerState{
		unpaid:  make(map[string]message.EventPayload),
		paidSet: make(map[string]struct{}),
	}
}

// HasUnpaid reports whether the order id is currently tracked as unpaid.
func (s *CustomerState) HasUnpaid(orderID string) bool {
	_, ok := s.unpaid[orderID]
	return ok
}

// HasPaid reports whether the order id has been confirmed paid.
func (s *CustomerState) HasPaid(orderID string) bool {
	_, ok := s.paidSet[orderID]
	return ok
}

// UnpaidOrder returns the originating order event for an unpaid order id.
func (s *CustomerState) UnpaidOrder(orderID string) (message.EventPayload, bool) {
	event, ok := s.unpaid[orderID]
	return event, ok
}

// UnpaidOrderIDs returns a copy of the unpaid order ids in insertion order.
func (s *CustomerState) UnpaidOrderIDs() []string {
	ids := make([]string, len(s.unpaidOrder))
	copy(ids, s.unpaidOrder)
	return ids
}

// PaidOrderIDs returns a copy of the paid order ids in payment order.
func (s *CustomerState) PaidOrderIDs() []string {
	ids := make([]string, len(s.paid))
	copy(ids, s.paid)
	return ids
}

// UnpaidCount returns the number of unpaid orders.
func (s *CustomerState) UnpaidCount() int {
	return len(s.unpaid)
}

// PaidCount returns the number of paid orders.
func (s *CustomerState) PaidCount() int {
	return len(s.paid)
}

// addUnpaid records a new unpaid order. The caller has already checked
// that the id is not tracked in either set.
func (s *CustomerState) addUnpaid(event message.EventPayload) {
	s.unpaid[event.OrderID] = event
	s.unpaidOrder = append(s.unpaidOrder, event.OrderID)
}

// markPaid moves an order id from the unpaid set to the tail of the paid
// sequence. Returns false if the id was not unpaid.
func (s *CustomerState) markPaid(orderID string) bool {
	if _, ok := s.unpaid[orderID]; !ok {
		return false
	}
	delete(s.unpaid, orderID)
	for i, id := range s.unpaidOrder {
		if id == orderID {
			s.unpaidOrder = append(s.unpaidOrder[:i], s.unpaidOrder[i+1:]...)
			break
		}
	}
	s.paid = append(s.paid, orderID)
	s.paidSet[orderID] = struct{}{}
	return true
}

// inBothSets reports whether an order id is tracked as both unpaid and
// paid, which must never happen.
func (s *CustomerState) inBothSets(orderID string) bool {
	return s.HasUnpaid(orderID) && s.HasPaid(orderID)
}
