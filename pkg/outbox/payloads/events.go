package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// OrderPlacedEvent is emitted once payment is confirmed and stock is allocated.
type OrderPlacedEvent struct {
	OrderID         uuid.UUID         `json:"order_id"`
	CustomerID      uuid.UUID         `json:"customer_id"`
	PickupAddressID uuid.UUID         `json:"pickup_address_id"`
	PaymentIntentID string            `json:"payment_intent_id,omitempty"`
	TotalPrice      decimal.Decimal   `json:"total_price"`
	Lines           []PlacedOrderLine `json:"lines"`
}

// PlacedOrderLine lists where each line's quantity will be picked from.
type PlacedOrderLine struct {
	OrderLineID uuid.UUID         `json:"order_line_id"`
	ProductID   uuid.UUID         `json:"product_id"`
	Quantity    int               `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unit_price"`
	Allocations []StoreAllocation `json:"allocations"`
}

type StoreAllocation struct {
	StoreID  uuid.UUID `json:"store_id"`
	Quantity int       `json:"quantity"`
}

// OrderStatusChangedEvent is emitted for manual status advancement.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	From       enums.OrderStatus `json:"from"`
	To         enums.OrderStatus `json:"to"`
}
