package orders

import (
	"context"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const paymentIntentIndex = "idx_orders_payment_intent_id"

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateLines(ctx context.Context, lines []models.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(&lines).Error
}

func (r *repository) CreateAllocations(ctx context.Context, allocations []models.Allocation) error {
	if len(allocations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&allocations).Error
}

func (r *repository) SetPaymentIntent(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("payment_intent_id", paymentIntentID).Error
	if db.IsUniqueViolation(err, paymentIntentIndex) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment intent already bound to another order")
	}
	return err
}

func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("status", status).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines", orderLines).
		Preload("Lines.Allocations", orderAllocations).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LockOrder loads the order with FOR UPDATE so concurrent confirmations and
// status updates serialize on the row.
func (r *repository) LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}

	var lines []models.OrderLine
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Scopes(orderLines).
		Find(&lines).Error; err != nil {
		return nil, err
	}
	order.Lines = lines
	return &order, nil
}

func (r *repository) ListOrders(ctx context.Context, query listQuery) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Lines", orderLines)
	if query.CustomerID != nil {
		q = q.Where("customer_id = ?", *query.CustomerID)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}

	direction := "DESC"
	comparator := "<"
	if query.Ascending {
		direction = "ASC"
		comparator = ">"
	}
	if query.Cursor != nil {
		q = q.Where(
			"(ordered_at "+comparator+" ?) OR (ordered_at = ? AND id "+comparator+" ?)",
			query.Cursor.At, query.Cursor.At, query.Cursor.ID,
		)
	}

	var out []models.Order
	err := q.
		Order("ordered_at " + direction).
		Order("id " + direction).
		Limit(query.Limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func orderLines(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}

func orderAllocations(db *gorm.DB) *gorm.DB {
	return db.Order("reserved_quantity DESC").Order("store_id ASC")
}
