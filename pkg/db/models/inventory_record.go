package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryRecord tracks on-hand stock for one product at one store.
type InventoryRecord struct {
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	StoreID   uuid.UUID `gorm:"column:store_id;type:uuid;primaryKey"`
	Quantity  int       `gorm:"column:quantity;not null;default:0;check:quantity >= 0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
