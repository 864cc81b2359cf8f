package catalog

import (
	"context"
	"testing"

	"github.com/angelmondragon/marketplace-backend/internal/inventory"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:catalog_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.InventoryRecord{}))
	return db
}

func TestGetPriceAndStock(t *testing.T) {
	db := newTestDB(t)
	product := models.Product{Name: "Oat milk", Price: decimal.RequireFromString("3.25"), IsActive: true}
	require.NoError(t, db.Create(&product).Error)
	require.NoError(t, db.Create(&models.InventoryRecord{ProductID: product.ID, StoreID: uuid.New(), Quantity: 7}).Error)

	c := NewCatalog(db, inventory.NewRepository(db))
	ctx := context.Background()

	price, err := c.GetPrice(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("3.25")))

	total, err := c.TotalStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
}

func TestGetProductMissingOrInactive(t *testing.T) {
	db := newTestDB(t)
	inactive := models.Product{Name: "Retired", Price: decimal.NewFromInt(1), IsActive: true}
	require.NoError(t, db.Create(&inactive).Error)
	require.NoError(t, db.Model(&inactive).Update("is_active", false).Error)

	c := NewCatalog(db, inventory.NewRepository(db))

	_, err := c.GetProduct(context.Background(), inactive.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = c.GetPrice(context.Background(), uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}
