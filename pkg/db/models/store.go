package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is a distributor-owned stocking location.
type Store struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DistributorID uuid.UUID `gorm:"column:distributor_id;type:uuid;not null"`
	Name          string    `gorm:"column:name;not null"`
	City          string    `gorm:"column:city;not null"`
	Address       string    `gorm:"column:address;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (s *Store) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}
