package inventory

import (
	"context"
	"testing"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.InventoryRecord{}))
	return db
}

func seedStock(t *testing.T, db *gorm.DB, productID, storeID uuid.UUID, qty int) {
	t.Helper()
	require.NoError(t, db.Create(&models.InventoryRecord{ProductID: productID, StoreID: storeID, Quantity: qty}).Error)
}

func quantityOf(t *testing.T, db *gorm.DB, productID, storeID uuid.UUID) int {
	t.Helper()
	var record models.InventoryRecord
	require.NoError(t, db.First(&record, "product_id = ? AND store_id = ?", productID, storeID).Error)
	return record.Quantity
}

func TestTotalStock(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	product := uuid.New()

	total, err := repo.TotalStock(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	seedStock(t, db, product, uuid.New(), 3)
	seedStock(t, db, product, uuid.New(), 5)
	seedStock(t, db, uuid.New(), uuid.New(), 40)

	total, err = repo.TotalStock(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, 8, total)
}

func TestAvailableRecordsOrdering(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	product := uuid.New()

	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000001")
	big := uuid.New()
	empty := uuid.New()

	seedStock(t, db, product, high, 2)
	seedStock(t, db, product, low, 2)
	seedStock(t, db, product, big, 9)
	seedStock(t, db, product, empty, 0)

	records, err := repo.AvailableRecords(context.Background(), product)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, big, records[0].StoreID)
	assert.Equal(t, low, records[1].StoreID)
	assert.Equal(t, high, records[2].StoreID)
}

func TestAvailableRecordsInsideTransaction(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	product := uuid.New()
	seedStock(t, db, product, uuid.New(), 4)

	err := db.Transaction(func(tx *gorm.DB) error {
		records, err := repo.WithTx(tx).AvailableRecords(context.Background(), product)
		if err != nil {
			return err
		}
		assert.Len(t, records, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestDecrement(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	product, store := uuid.New(), uuid.New()
	seedStock(t, db, product, store, 5)

	require.NoError(t, repo.Decrement(ctx, store, product, 2))
	assert.Equal(t, 3, quantityOf(t, db, product, store))

	err := repo.Decrement(ctx, store, product, 4)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 3, quantityOf(t, db, product, store))

	require.NoError(t, repo.Decrement(ctx, store, product, 3))
	assert.Equal(t, 0, quantityOf(t, db, product, store))

	assert.ErrorIs(t, repo.Decrement(ctx, uuid.New(), product, 1), ErrInsufficientStock)

	err = repo.Decrement(ctx, store, product, 0)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestIncrementUpserts(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	product, store := uuid.New(), uuid.New()

	require.NoError(t, repo.Increment(ctx, store, product, 4))
	require.NoError(t, repo.Increment(ctx, store, product, 6))
	assert.Equal(t, 10, quantityOf(t, db, product, store))

	assert.Error(t, repo.Increment(ctx, store, product, -1))
}

func TestSortRecords(t *testing.T) {
	a := uuid.MustParse("0a000000-0000-0000-0000-000000000000")
	b := uuid.MustParse("0b000000-0000-0000-0000-000000000000")
	c := uuid.MustParse("0c000000-0000-0000-0000-000000000000")

	records := []Record{
		{StoreID: c, Quantity: 1},
		{StoreID: b, Quantity: 5},
		{StoreID: a, Quantity: 5},
	}
	SortRecords(records)

	assert.Equal(t, []uuid.UUID{a, b, c}, []uuid.UUID{records[0].StoreID, records[1].StoreID, records[2].StoreID})
}
