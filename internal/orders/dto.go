package orders

import (
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ordering values accepted by List.
const (
	OrderingOrderedAtAsc  = "ordered_at"
	OrderingOrderedAtDesc = "-ordered_at"
)

// LineInput is one requested product and quantity.
type LineInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateOrderInput carries a customer's order request.
type CreateOrderInput struct {
	CustomerID      uuid.UUID
	PickupAddressID uuid.UUID
	Lines           []LineInput
}

// PaymentIntentHandle is what the client needs to complete payment.
type PaymentIntentHandle struct {
	OrderID         uuid.UUID       `json:"order_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	ClientSecret    string          `json:"client_secret"`
	Amount          decimal.Decimal `json:"amount"`
	AmountMinor     int64           `json:"amount_minor"`
	Currency        string          `json:"currency"`
}

// UpdateStatusInput requests a manual status change.
type UpdateStatusInput struct {
	OrderID     uuid.UUID
	Status      string
	ActorUserID uuid.UUID
	ActorRole   enums.ActorRole
}

// ListOrdersInput filters and pages the order list. A nil CustomerID lists every order.
type ListOrdersInput struct {
	CustomerID *uuid.UUID
	Status     *enums.OrderStatus
	Ordering   string
	Pagination pagination.Params
}

type listQuery struct {
	CustomerID *uuid.UUID
	Status     *enums.OrderStatus
	Ascending  bool
	Cursor     *pagination.Cursor
	Limit      int
}

// OrderSummary is one row of an order list.
type OrderSummary struct {
	ID              uuid.UUID         `json:"id"`
	CustomerID      uuid.UUID         `json:"customer_id"`
	PickupAddressID uuid.UUID         `json:"pickup_address_id"`
	Status          enums.OrderStatus `json:"status"`
	PaymentIntentID *string           `json:"payment_intent_id,omitempty"`
	OrderedAt       time.Time         `json:"ordered_at"`
	TotalPrice      decimal.Decimal   `json:"total_price"`
	TotalItems      int               `json:"total_items"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// AllocationDetail is the quantity of a line reserved at one store.
type AllocationDetail struct {
	StoreID  uuid.UUID `json:"store_id"`
	Quantity int       `json:"quantity"`
}

// LineDetail describes an order line and where it is picked from.
type LineDetail struct {
	ID          uuid.UUID          `json:"id"`
	ProductID   uuid.UUID          `json:"product_id"`
	Quantity    int                `json:"quantity"`
	UnitPrice   decimal.Decimal    `json:"unit_price"`
	Subtotal    decimal.Decimal    `json:"subtotal"`
	Allocations []AllocationDetail `json:"allocations"`
}

// OrderDetail is a single order with lines and allocations.
type OrderDetail struct {
	OrderSummary
	UpdatedAt time.Time    `json:"updated_at"`
	Lines     []LineDetail `json:"lines"`
}
