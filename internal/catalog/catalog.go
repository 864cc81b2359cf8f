package catalog

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type stockReader interface {
	TotalStock(ctx context.Context, productID uuid.UUID) (int, error)
}

// Catalog is the read side of products used by order placement.
type Catalog struct {
	db    *gorm.DB
	stock stockReader
}

func NewCatalog(db *gorm.DB, stock stockReader) *Catalog {
	return &Catalog{db: db, stock: stock}
}

// GetProduct loads an active product. Missing and inactive products are both NotFound.
func (c *Catalog) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := c.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", productID, true).
		First(&product).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}

// GetPrice returns the current catalog price.
func (c *Catalog) GetPrice(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	product, err := c.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return product.Price, nil
}

// TotalStock is the sum of the product's stock over every store.
func (c *Catalog) TotalStock(ctx context.Context, productID uuid.UUID) (int, error) {
	total, err := c.stock.TotalStock(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("total stock: %w", err)
	}
	return total, nil
}
