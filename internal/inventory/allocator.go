package inventory

import (
	"context"
	"errors"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/google/uuid"
)

// Allocation is the quantity taken from one store.
type Allocation struct {
	StoreID  uuid.UUID
	Quantity int
}

type stockLedger interface {
	AvailableRecords(ctx context.Context, productID uuid.UUID) ([]Record, error)
	Decrement(ctx context.Context, storeID, productID uuid.UUID, amount int) error
}

// Allocator splits a requested quantity across the stores holding a product.
type Allocator struct {
	ledger stockLedger
}

func NewAllocator(ledger stockLedger) *Allocator {
	return &Allocator{ledger: ledger}
}

// Allocate reserves quantity units of the product, largest stock first, and
// decrements each store as it is used. Callers run it inside the transaction
// that owns the order so a failure undoes every decrement.
func (a *Allocator) Allocate(ctx context.Context, productID uuid.UUID, quantity int) ([]Allocation, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "allocation quantity must be positive")
	}

	records, err := a.ledger.AvailableRecords(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load available stock")
	}

	plan, remaining := Plan(records, quantity)
	if remaining > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "allocation invariant violated: stock exhausted")
	}

	for _, alloc := range plan {
		if err := a.ledger.Decrement(ctx, alloc.StoreID, productID, alloc.Quantity); err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocation invariant violated")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
	}
	return plan, nil
}

// Plan computes the greedy split of quantity over records, which must already
// be ordered. It returns the quantity left uncovered.
func Plan(records []Record, quantity int) ([]Allocation, int) {
	remaining := quantity
	out := make([]Allocation, 0, len(records))
	for _, record := range records {
		if remaining == 0 {
			break
		}
		if record.Quantity <= 0 {
			continue
		}
		taken := min(remaining, record.Quantity)
		out = append(out, Allocation{StoreID: record.StoreID, Quantity: taken})
		remaining -= taken
	}
	return out, remaining
}
