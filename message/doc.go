// Package message defines the typed message envelope exchanged between
// cartjoin components, the Payload contract, and the concrete payload
// types of the join pipeline (cart.event.v1 and cart.summary.v1).
//
// Messages are immutable after construction and carry a structured Type
// (domain.category.version), a typed Payload, and lifecycle Meta. The
// wire format is JSON; deserialization recreates typed payloads through
// the payload registry in the component package.
package message
