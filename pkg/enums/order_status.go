package enums

import (
	"fmt"
	"strings"
)

// OrderStatus tracks the lifecycle of a customer order. The declaration order of
// orderStatusSequence is the only legal progression.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPlaced    OrderStatus = "placed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
)

var orderStatusSequence = []OrderStatus{
	OrderStatusPending,
	OrderStatusPlaced,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	return s.Index() >= 0
}

// Index returns the position of the status in the lifecycle, or -1 when unknown.
func (s OrderStatus) Index() int {
	for i, candidate := range orderStatusSequence {
		if candidate == s {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered
}

// Next returns the single status that may follow s.
func (s OrderStatus) Next() (OrderStatus, bool) {
	idx := s.Index()
	if idx < 0 || idx+1 >= len(orderStatusSequence) {
		return "", false
	}
	return orderStatusSequence[idx+1], true
}

// ParseOrderStatus converts raw input into an OrderStatus, ignoring case and
// surrounding whitespace.
func ParseOrderStatus(value string) (OrderStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range orderStatusSequence {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
