package orders

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/marketplace-backend/internal/address"
	"github.com/angelmondragon/marketplace-backend/internal/catalog"
	"github.com/angelmondragon/marketplace-backend/internal/inventory"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type marketplace struct {
	db       *gorm.DB
	svc      Service
	ledger   *inventory.Repository
	customer uuid.UUID
	address  uuid.UUID
}

func newMarketplace(t *testing.T) *marketplace {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	customer := uuid.New()
	pickup := models.PickupAddress{CustomerID: customer, Label: "home", Address: "1 Main St"}
	require.NoError(t, conn.Create(&pickup).Error)

	ledger := inventory.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(conn),
		Catalog:           catalog.NewCatalog(conn, ledger),
		Addresses:         address.NewBook(conn),
		Allocators:        LedgerAllocator(ledger),
		Payments:          &stubGateway{},
		TransactionRunner: db.FromConn(conn),
		Outbox:            outbox.NewService(outbox.NewStore(conn), nil),
		MaxLines:          10,
	})
	require.NoError(t, err)

	return &marketplace{db: conn, svc: svc, ledger: ledger, customer: customer, address: pickup.ID}
}

func (m *marketplace) product(t *testing.T, price string) uuid.UUID {
	t.Helper()
	p := models.Product{DistributorID: uuid.New(), Name: "item", Price: decimal.RequireFromString(price), IsActive: true}
	require.NoError(t, m.db.Create(&p).Error)
	return p.ID
}

func (m *marketplace) store(t *testing.T, id uuid.UUID) uuid.UUID {
	t.Helper()
	if id == uuid.Nil {
		id = uuid.New()
	}
	s := models.Store{ID: id, DistributorID: uuid.New(), Name: "store", City: "Lagos", Address: "2 Side St"}
	require.NoError(t, m.db.Create(&s).Error)
	return s.ID
}

func (m *marketplace) stock(t *testing.T, productID, storeID uuid.UUID, qty int) {
	t.Helper()
	require.NoError(t, m.db.Create(&models.InventoryRecord{ProductID: productID, StoreID: storeID, Quantity: qty}).Error)
}

func (m *marketplace) quantity(t *testing.T, productID, storeID uuid.UUID) int {
	t.Helper()
	var record models.InventoryRecord
	require.NoError(t, m.db.First(&record, "product_id = ? AND store_id = ?", productID, storeID).Error)
	return record.Quantity
}

func (m *marketplace) total(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	total, err := m.ledger.TotalStock(context.Background(), productID)
	require.NoError(t, err)
	return total
}

func (m *marketplace) order(t *testing.T, lines ...LineInput) uuid.UUID {
	t.Helper()
	handle, err := m.svc.Create(context.Background(), CreateOrderInput{
		CustomerID:      m.customer,
		PickupAddressID: m.address,
		Lines:           lines,
	})
	require.NoError(t, err)
	return handle.OrderID
}

func TestUnpaidOrdersNeverChangeStock(t *testing.T) {
	m := newMarketplace(t)
	product := m.product(t, "3.00")
	m.stock(t, product, m.store(t, uuid.Nil), 4)
	m.stock(t, product, m.store(t, uuid.Nil), 6)

	for i := 0; i < 3; i++ {
		m.order(t, LineInput{ProductID: product, Quantity: 5})
	}

	assert.Equal(t, 10, m.total(t, product))
	var allocations int64
	require.NoError(t, m.db.Model(&models.Allocation{}).Count(&allocations).Error)
	assert.Zero(t, allocations)
}

func TestConfirmedOrderScenario(t *testing.T) {
	m := newMarketplace(t)
	product := m.product(t, "4.00")
	store := m.store(t, uuid.Nil)
	m.stock(t, product, store, 10)
	ctx := context.Background()

	orderID := m.order(t, LineInput{ProductID: product, Quantity: 2})

	detail, err := m.svc.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, detail.Status)
	assert.Equal(t, 10, m.total(t, product))
	assert.Empty(t, detail.Lines[0].Allocations)

	require.NoError(t, m.svc.HandlePaymentConfirmed(ctx, orderID))

	detail, err = m.svc.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPlaced, detail.Status)
	assert.Equal(t, 8, m.quantity(t, product, store))
	require.Len(t, detail.Lines[0].Allocations, 1)
	assert.Equal(t, AllocationDetail{StoreID: store, Quantity: 2}, detail.Lines[0].Allocations[0])
	assert.True(t, detail.TotalPrice.Equal(decimal.RequireFromString("8.00")))

	var events []models.OutboxEvent
	require.NoError(t, m.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderPlaced, events[0].EventType)
	assert.Equal(t, orderID, events[0].AggregateID)
}

func TestConfirmSplitsLargestStoreFirst(t *testing.T) {
	m := newMarketplace(t)
	product := m.product(t, "1.00")
	s1 := m.store(t, uuid.Nil)
	s2 := m.store(t, uuid.Nil)
	m.stock(t, product, s1, 3)
	m.stock(t, product, s2, 5)

	orderID := m.order(t, LineInput{ProductID: product, Quantity: 6})
	require.NoError(t, m.svc.HandlePaymentConfirmed(context.Background(), orderID))

	detail, err := m.svc.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, []AllocationDetail{{StoreID: s2, Quantity: 5}, {StoreID: s1, Quantity: 1}}, detail.Lines[0].Allocations)
	assert.Equal(t, 0, m.quantity(t, product, s2))
	assert.Equal(t, 2, m.quantity(t, product, s1))
}

func TestConfirmAllocatesEveryLineInFull(t *testing.T) {
	m := newMarketplace(t)
	a := m.product(t, "1.00")
	b := m.product(t, "2.00")
	for _, qty := range []int{1, 2, 3} {
		m.stock(t, a, m.store(t, uuid.Nil), qty)
	}
	m.stock(t, b, m.store(t, uuid.Nil), 9)

	orderID := m.order(t, LineInput{ProductID: a, Quantity: 5}, LineInput{ProductID: b, Quantity: 7})
	require.NoError(t, m.svc.HandlePaymentConfirmed(context.Background(), orderID))

	detail, err := m.svc.Get(context.Background(), orderID)
	require.NoError(t, err)
	for _, line := range detail.Lines {
		sum := 0
		for _, alloc := range line.Allocations {
			sum += alloc.Quantity
		}
		assert.Equal(t, line.Quantity, sum, "line %s", line.ProductID)
	}
	assert.Equal(t, 1, m.total(t, a))
	assert.Equal(t, 2, m.total(t, b))
}

func TestDoubleConfirmationDecrementsOnce(t *testing.T) {
	m := newMarketplace(t)
	product := m.product(t, "1.00")
	store := m.store(t, uuid.Nil)
	m.stock(t, product, store, 10)
	orderID := m.order(t, LineInput{ProductID: product, Quantity: 3})

	require.NoError(t, m.svc.HandlePaymentConfirmed(context.Background(), orderID))
	require.NoError(t, m.svc.HandlePaymentConfirmed(context.Background(), orderID))

	assert.Equal(t, 7, m.quantity(t, product, store))
	var allocations int64
	require.NoError(t, m.db.Model(&models.Allocation{}).Count(&allocations).Error)
	assert.EqualValues(t, 1, allocations)
}

func TestExactStoreQuantityLeavesZeroRecord(t *testing.T) {
	m := newMarketplace(t)
	product := m.product(t, "1.00")
	store := m.store(t, uuid.Nil)
	m.stock(t, product, store, 4)

	orderID := m.order(t, LineInput{ProductID: product, Quantity: 4})
	require.NoError(t, m.svc.HandlePaymentConfirmed(context.Background(), orderID))

	assert.Equal(t, 0, m.quantity(t, product, store))
}

func TestTooManyLinesCreatesNothing(t *testing.T) {
	m := newMarketplace(t)
	lines := make([]LineInput, 0, 11)
	for i := 0; i < 11; i++ {
		product := m.product(t, "1.00")
		m.stock(t, product, m.store(t, uuid.Nil), 5)
		lines = append(lines, LineInput{ProductID: product, Quantity: 1})
	}

	_, err := m.svc.Create(context.Background(), CreateOrderInput{
		CustomerID:      m.customer,
		PickupAddressID: m.address,
		Lines:           lines,
	})
	require.Error(t, err)
	assert.Equal(t, 400, pkgerrors.MetadataFor(pkgerrors.As(err).Code()).HTTPStatus)

	var orders int64
	require.NoError(t, m.db.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
}

func TestConfirmRollsBackWhenStockVanished(t *testing.T) {
	m := newMarketplace(t)
	a := m.product(t, "1.00")
	b := m.product(t, "1.00")
	storeA := m.store(t, uuid.Nil)
	storeB := m.store(t, uuid.Nil)
	m.stock(t, a, storeA, 5)
	m.stock(t, b, storeB, 5)

	orderID := m.order(t, LineInput{ProductID: a, Quantity: 2}, LineInput{ProductID: b, Quantity: 4})
	require.NoError(t, m.db.Model(&models.InventoryRecord{}).
		Where("product_id = ?", b).
		Update("quantity", 1).Error)

	err := m.svc.HandlePaymentConfirmed(context.Background(), orderID)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInternal))

	assert.Equal(t, 5, m.quantity(t, a, storeA))
	detail, err := m.svc.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, detail.Status)
	for _, line := range detail.Lines {
		assert.Empty(t, line.Allocations)
	}
}

func TestStatusLifecycle(t *testing.T) {
	m := newMarketplace(t)
	product := m.product(t, "1.00")
	m.stock(t, product, m.store(t, uuid.Nil), 5)
	orderID := m.order(t, LineInput{ProductID: product, Quantity: 1})
	ctx := context.Background()

	_, err := m.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: orderID, Status: "placed"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))

	require.NoError(t, m.svc.HandlePaymentConfirmed(ctx, orderID))

	_, err = m.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: orderID, Status: "delivered"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))

	order, err := m.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: orderID, Status: "Shipped"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, order.Status)

	order, err = m.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: orderID, Status: "DELIVERED"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, order.Status)

	for _, next := range []string{"pending", "placed", "shipped", "delivered"} {
		_, err = m.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: orderID, Status: next})
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict), "delivered -> %s", next)
	}

	var events int64
	require.NoError(t, m.db.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderStatusChanged).Count(&events).Error)
	assert.EqualValues(t, 2, events)
}

func TestListFiltersAndPages(t *testing.T) {
	m := newMarketplace(t)
	product := m.product(t, "2.00")
	m.stock(t, product, m.store(t, uuid.Nil), 50)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = m.order(t, LineInput{ProductID: product, Quantity: i + 1})
		require.NoError(t, m.db.Model(&models.Order{}).Where("id = ?", ids[i]).
			Update("ordered_at", base.Add(time.Duration(i)*time.Hour)).Error)
	}
	require.NoError(t, m.svc.HandlePaymentConfirmed(ctx, ids[1]))

	other := uuid.New()
	otherAddr := models.PickupAddress{CustomerID: other, Label: "work", Address: "9 Far Rd"}
	require.NoError(t, m.db.Create(&otherAddr).Error)
	_, err := m.svc.Create(ctx, CreateOrderInput{
		CustomerID:      other,
		PickupAddressID: otherAddr.ID,
		Lines:           []LineInput{{ProductID: product, Quantity: 1}},
	})
	require.NoError(t, err)

	mine, err := m.svc.List(ctx, ListOrdersInput{CustomerID: &m.customer})
	require.NoError(t, err)
	require.Len(t, mine.Orders, 3)
	assert.Equal(t, ids[2], mine.Orders[0].ID)
	assert.True(t, mine.Orders[0].TotalPrice.Equal(decimal.RequireFromString("6.00")))
	assert.Equal(t, 3, mine.Orders[0].TotalItems)

	asc, err := m.svc.List(ctx, ListOrdersInput{CustomerID: &m.customer, Ordering: OrderingOrderedAtAsc})
	require.NoError(t, err)
	assert.Equal(t, ids[0], asc.Orders[0].ID)

	placed := enums.OrderStatusPlaced
	filtered, err := m.svc.List(ctx, ListOrdersInput{Status: &placed})
	require.NoError(t, err)
	require.Len(t, filtered.Orders, 1)
	assert.Equal(t, ids[1], filtered.Orders[0].ID)

	all, err := m.svc.List(ctx, ListOrdersInput{})
	require.NoError(t, err)
	assert.Len(t, all.Orders, 4)

	first, err := m.svc.List(ctx, ListOrdersInput{
		CustomerID: &m.customer,
		Ordering:   OrderingOrderedAtAsc,
		Pagination: pagination.Params{Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := m.svc.List(ctx, ListOrdersInput{
		CustomerID: &m.customer,
		Ordering:   OrderingOrderedAtAsc,
		Pagination: pagination.Params{Limit: 2, Cursor: first.NextCursor},
	})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Equal(t, ids[2], second.Orders[0].ID)
	assert.Empty(t, second.NextCursor)
}

func TestGetMissingOrder(t *testing.T) {
	m := newMarketplace(t)
	_, err := m.svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}
