package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientStock is returned by Decrement when the record holds less than
// the requested amount.
var ErrInsufficientStock = errors.New("insufficient stock")

// Record is the stock a single store holds for a product.
type Record struct {
	ProductID uuid.UUID
	StoreID   uuid.UUID
	Quantity  int
}

// Repository reads and mutates per-store stock.
type Repository struct {
	db   *gorm.DB
	inTx bool
}

// NewRepository builds a ledger bound to the provided connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a ledger bound to tx. Reads through it take row locks.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx, inTx: true}
}

// TotalStock sums quantity across every store stocking the product.
func (r *Repository) TotalStock(ctx context.Context, productID uuid.UUID) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum stock for product %s: %w", productID, err)
	}
	return int(total), nil
}

// AvailableRecords returns records with positive quantity, largest first and
// ties broken by store id.
func (r *Repository) AvailableRecords(ctx context.Context, productID uuid.UUID) ([]Record, error) {
	query := r.db.WithContext(ctx).Model(&models.InventoryRecord{})
	if r.inTx {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rows []models.InventoryRecord
	if err := query.
		Where("product_id = ? AND quantity > 0", productID).
		Order("quantity DESC").
		Order("store_id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load stock for product %s: %w", productID, err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, Record{
			ProductID: row.ProductID,
			StoreID:   row.StoreID,
			Quantity:  row.Quantity,
		})
	}
	SortRecords(records)
	return records, nil
}

// Decrement removes amount from the store's stock, failing with
// ErrInsufficientStock instead of going negative.
func (r *Repository) Decrement(ctx context.Context, storeID, productID uuid.UUID, amount int) error {
	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "decrement amount must be positive")
	}

	res := r.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Where("product_id = ? AND store_id = ? AND quantity >= ?", productID, storeID, amount).
		Update("quantity", gorm.Expr("quantity - ?", amount))
	if res.Error != nil {
		return fmt.Errorf("decrement stock for product %s at store %s: %w", productID, storeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// Increment adds stock, creating the record on first restock.
func (r *Repository) Increment(ctx context.Context, storeID, productID uuid.UUID, amount int) error {
	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "increment amount must be positive")
	}

	record := models.InventoryRecord{ProductID: productID, StoreID: storeID, Quantity: amount}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "product_id"}, {Name: "store_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity": gorm.Expr("inventory_records.quantity + ?", amount),
			}),
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("increment stock for product %s at store %s: %w", productID, storeID, err)
	}
	return nil
}

// SortRecords orders records by quantity descending, then store id ascending.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Quantity != records[j].Quantity {
			return records[i].Quantity > records[j].Quantity
		}
		return records[i].StoreID.String() < records[j].StoreID.String()
	})
}
