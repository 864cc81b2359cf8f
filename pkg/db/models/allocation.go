package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Allocation assigns part of an order line's quantity to one store's stock.
type Allocation struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderLineID      uuid.UUID `gorm:"column:order_line_id;type:uuid;not null;index"`
	StoreID          uuid.UUID `gorm:"column:store_id;type:uuid;not null"`
	ReservedQuantity int       `gorm:"column:reserved_quantity;not null;check:reserved_quantity >= 1"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (a *Allocation) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
