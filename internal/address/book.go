package address

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book answers ownership questions about customer pickup addresses.
type Book struct {
	db *gorm.DB
}

func NewBook(db *gorm.DB) *Book {
	return &Book{db: db}
}

// BelongsToCustomer reports whether the pickup address exists and is owned by the customer.
func (b *Book) BelongsToCustomer(ctx context.Context, addressID, customerID uuid.UUID) (bool, error) {
	if addressID == uuid.Nil || customerID == uuid.Nil {
		return false, nil
	}

	var count int64
	err := b.db.WithContext(ctx).
		Model(&models.PickupAddress{}).
		Where("id = ? AND customer_id = ?", addressID, customerID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check pickup address %s: %w", addressID, err)
	}
	return count > 0, nil
}
