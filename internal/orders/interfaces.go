package orders

import (
	"context"

	"github.com/angelmondragon/marketplace-backend/internal/inventory"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders, lines and allocations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateLines(ctx context.Context, lines []models.OrderLine) error
	CreateAllocations(ctx context.Context, allocations []models.Allocation) error
	SetPaymentIntent(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, query listQuery) ([]models.Order, error)
}

// ProductCatalog supplies prices and aggregate stock for products.
type ProductCatalog interface {
	GetPrice(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error)
	TotalStock(ctx context.Context, productID uuid.UUID) (int, error)
}

// AddressBook checks pickup address ownership.
type AddressBook interface {
	BelongsToCustomer(ctx context.Context, addressID, customerID uuid.UUID) (bool, error)
}

// Allocator reserves stock for one product and returns the per-store split.
type Allocator interface {
	Allocate(ctx context.Context, productID uuid.UUID, quantity int) ([]inventory.Allocation, error)
}

// AllocatorFactory binds an Allocator to the confirmation transaction.
type AllocatorFactory func(tx *gorm.DB) Allocator

// LedgerAllocator builds allocators over the inventory ledger.
func LedgerAllocator(ledger *inventory.Repository) AllocatorFactory {
	return func(tx *gorm.DB) Allocator {
		return inventory.NewAllocator(ledger.WithTx(tx))
	}
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}
