package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PickupAddress is a customer-owned location where orders are collected.
type PickupAddress struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;not null;index"`
	Label      string    `gorm:"column:label;not null"`
	Address    string    `gorm:"column:address;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (p *PickupAddress) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
