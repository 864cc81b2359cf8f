package orders

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-backend/internal/payments"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// DefaultMaxLines caps the number of lines a single order may carry.
	DefaultMaxLines = 10
	defaultCurrency = "usd"
)

// Rejection reasons recorded on the order metrics.
const (
	rejectEmpty        = "empty_order"
	rejectTooManyLines = "too_many_lines"
	rejectQuantity     = "invalid_quantity"
	rejectProduct      = "unknown_product"
	rejectStock        = "insufficient_stock"
	rejectAddress      = "invalid_pickup_address"
)

// Service places orders, reconciles payment confirmations and advances status.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*PaymentIntentHandle, error)
	HandlePaymentConfirmed(ctx context.Context, orderID uuid.UUID) error
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	List(ctx context.Context, input ListOrdersInput) (*OrderList, error)
	Get(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
}

// ServiceParams wires the order service dependencies.
type ServiceParams struct {
	Repo              Repository
	Catalog           ProductCatalog
	Addresses         AddressBook
	Allocators        AllocatorFactory
	Payments          payments.Gateway
	TransactionRunner txRunner
	Outbox            outboxPublisher
	Logger            *logger.Logger
	Metrics           *metrics.OrderMetrics
	MaxLines          int
	Currency          string
}

type service struct {
	repo       Repository
	catalog    ProductCatalog
	addresses  AddressBook
	allocators AllocatorFactory
	payments   payments.Gateway
	tx         txRunner
	outbox     outboxPublisher
	logg       *logger.Logger
	metrics    *metrics.OrderMetrics
	maxLines   int
	currency   string
}

// NewService validates the dependencies and builds the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product catalog required")
	}
	if params.Addresses == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "address book required")
	}
	if params.Allocators == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "allocator factory required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}

	maxLines := params.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	return &service{
		repo:       params.Repo,
		catalog:    params.Catalog,
		addresses:  params.Addresses,
		allocators: params.Allocators,
		payments:   params.Payments,
		tx:         params.TransactionRunner,
		outbox:     params.Outbox,
		logg:       params.Logger,
		metrics:    params.Metrics,
		maxLines:   maxLines,
		currency:   currency,
	}, nil
}

type pricedLine struct {
	productID uuid.UUID
	quantity  int
	unitPrice decimal.Decimal
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*PaymentIntentHandle, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	if len(input.Lines) == 0 {
		s.metrics.IncRejected(rejectEmpty)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one line")
	}
	if len(input.Lines) > s.maxLines {
		s.metrics.IncRejected(rejectTooManyLines)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max order lines exceeded").WithDetails(map[string]any{
			"max_lines": s.maxLines,
			"requested": len(input.Lines),
		})
	}

	for _, line := range input.Lines {
		if line.Quantity < 1 {
			s.metrics.IncRejected(rejectQuantity)
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").WithDetails(map[string]any{
				"product_id": line.ProductID,
				"quantity":   line.Quantity,
			})
		}
	}

	lines, err := s.priceLines(ctx, mergeLines(input.Lines))
	if err != nil {
		return nil, err
	}

	owned, err := s.addresses.BelongsToCustomer(ctx, input.PickupAddressID, input.CustomerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pickup address")
	}
	if !owned {
		s.metrics.IncRejected(rejectAddress)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid pickup address")
	}

	order := &models.Order{
		CustomerID:      input.CustomerID,
		PickupAddressID: input.PickupAddressID,
		Status:          enums.OrderStatusPending,
	}
	rows := make([]models.OrderLine, 0, len(lines))
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		for _, line := range lines {
			rows = append(rows, models.OrderLine{
				OrderID:   order.ID,
				ProductID: line.productID,
				Quantity:  line.quantity,
				UnitPrice: line.unitPrice,
			})
		}
		if err := repo.CreateLines(ctx, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order lines")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	total := TotalPrice(rows)
	intent, err := s.payments.CreateIntent(ctx, payments.IntentRequest{
		OrderID:  order.ID,
		Amount:   total,
		Currency: s.currency,
	})
	if err != nil {
		s.logError(ctx, order.ID, "payment intent creation failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "payment gateway failure")
	}

	if err := s.repo.SetPaymentIntent(ctx, order.ID, intent.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment intent")
	}

	s.metrics.IncCreated()
	s.logInfo(ctx, order.ID, "order created awaiting payment")

	return &PaymentIntentHandle{
		OrderID:         order.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          total,
		AmountMinor:     intent.AmountMinor,
		Currency:        intent.Currency,
	}, nil
}

// priceLines checks each line against the catalog and current stock. The stock
// check is advisory; allocation re-checks under row locks.
func (s *service) priceLines(ctx context.Context, lines []LineInput) ([]pricedLine, error) {
	out := make([]pricedLine, 0, len(lines))
	for _, line := range lines {
		price, err := s.catalog.GetPrice(ctx, line.ProductID)
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
				s.metrics.IncRejected(rejectProduct)
				return nil, unavailable(line.ProductID, 0, "product not available")
			}
			return nil, err
		}

		available, err := s.catalog.TotalStock(ctx, line.ProductID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product stock")
		}
		if available < line.Quantity {
			s.metrics.IncRejected(rejectStock)
			return nil, unavailable(line.ProductID, available, "insufficient inventory")
		}

		out = append(out, pricedLine{productID: line.ProductID, quantity: line.Quantity, unitPrice: price})
	}
	return out, nil
}

func unavailable(productID uuid.UUID, available int, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{
		"product_id":          productID,
		"available_inventory": available,
	})
}

// mergeLines sums quantities of repeated products, keeping first-seen order.
// Callers reject non-positive quantities first.
func mergeLines(lines []LineInput) []LineInput {
	index := make(map[uuid.UUID]int, len(lines))
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		if i, ok := index[line.ProductID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(out)
		out = append(out, line)
	}
	return out
}

func (s *service) HandlePaymentConfirmed(ctx context.Context, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	start := time.Now()
	placed := false
	units := 0

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return mapLoadError(err)
		}
		if order.Status != enums.OrderStatusPending {
			s.logInfo(ctx, order.ID, "payment confirmation ignored for non-pending order")
			return nil
		}

		next, err := Transition(order.Status, enums.OrderStatusPlaced, SourcePayment)
		if err != nil {
			return err
		}

		allocator := s.allocators(tx)
		eventLines := make([]payloads.PlacedOrderLine, 0, len(order.Lines))
		for _, line := range lockOrder(order.Lines) {
			split, err := allocator.Allocate(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}

			rows := make([]models.Allocation, 0, len(split))
			eventAllocs := make([]payloads.StoreAllocation, 0, len(split))
			for _, a := range split {
				rows = append(rows, models.Allocation{
					OrderLineID:      line.ID,
					StoreID:          a.StoreID,
					ReservedQuantity: a.Quantity,
				})
				eventAllocs = append(eventAllocs, payloads.StoreAllocation{StoreID: a.StoreID, Quantity: a.Quantity})
			}
			if err := repo.CreateAllocations(ctx, rows); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist allocations")
			}

			units += line.Quantity
			eventLines = append(eventLines, payloads.PlacedOrderLine{
				OrderLineID: line.ID,
				ProductID:   line.ProductID,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Allocations: eventAllocs,
			})
		}

		if err := repo.UpdateStatus(ctx, order.ID, next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.CustomerID, Role: enums.ActorRoleCustomer.String()},
			Data: payloads.OrderPlacedEvent{
				OrderID:         order.ID,
				CustomerID:      order.CustomerID,
				PickupAddressID: order.PickupAddressID,
				PaymentIntentID: derefString(order.PaymentIntentID),
				TotalPrice:      TotalPrice(order.Lines),
				Lines:           eventLines,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order placed event")
		}
		placed = true
		return nil
	})

	switch {
	case err != nil:
		s.metrics.IncConfirmation(metrics.ConfirmationFailed)
		s.logError(ctx, orderID, "payment confirmation failed", err)
		return err
	case placed:
		s.metrics.IncConfirmation(metrics.ConfirmationPlaced)
		s.metrics.ObserveAllocation(units, time.Since(start))
		s.metrics.IncTransition(enums.OrderStatusPlaced.String())
		s.logInfo(ctx, orderID, "order placed")
	default:
		s.metrics.IncConfirmation(metrics.ConfirmationDuplicate)
	}
	return nil
}

// lockOrder returns lines sorted by product id so concurrent confirmations
// take inventory row locks in the same sequence.
func lockOrder(lines []models.OrderLine) []models.OrderLine {
	sorted := slices.Clone(lines)
	slices.SortFunc(sorted, func(a, b models.OrderLine) int {
		return bytes.Compare(a.ProductID[:], b.ProductID[:])
	})
	return sorted
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	target, err := enums.ParseOrderStatus(input.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
	}

	var updated *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, input.OrderID)
		if err != nil {
			return mapLoadError(err)
		}

		from := order.Status
		next, err := Transition(from, target, SourceManual)
		if err != nil {
			return err
		}
		if err := repo.UpdateStatus(ctx, order.ID, next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = next

		var actor *outbox.ActorRef
		if input.ActorUserID != uuid.Nil {
			actor = &outbox.ActorRef{UserID: input.ActorUserID, Role: input.ActorRole.String()}
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				From:       from,
				To:         next,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit status changed event")
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(updated.Status.String())
	return updated, nil
}

func (s *service) List(ctx context.Context, input ListOrdersInput) (*OrderList, error) {
	ascending := false
	switch strings.TrimSpace(input.Ordering) {
	case "", OrderingOrderedAtDesc:
	case OrderingOrderedAtAsc:
		ascending = true
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ordering must be ordered_at or -ordered_at")
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}

	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(input.Pagination.Limit)
	rows, err := s.repo.ListOrders(ctx, listQuery{
		CustomerID: input.CustomerID,
		Status:     input.Status,
		Ascending:  ascending,
		Cursor:     cursor,
		Limit:      limit + 1,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	rows, next := pagination.Page(rows, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{At: o.OrderedAt, ID: o.ID}
	})
	list := &OrderList{Orders: make([]OrderSummary, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		list.Orders = append(list.Orders, summarize(row))
	}
	return list, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, mapLoadError(err)
	}

	detail := &OrderDetail{
		OrderSummary: summarize(*order),
		UpdatedAt:    order.UpdatedAt,
		Lines:        make([]LineDetail, 0, len(order.Lines)),
	}
	for _, line := range order.Lines {
		allocs := make([]AllocationDetail, 0, len(line.Allocations))
		for _, a := range line.Allocations {
			allocs = append(allocs, AllocationDetail{StoreID: a.StoreID, Quantity: a.ReservedQuantity})
		}
		detail.Lines = append(detail.Lines, LineDetail{
			ID:          line.ID,
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    line.Subtotal(),
			Allocations: allocs,
		})
	}
	return detail, nil
}

// TotalPrice sums quantity x unit price across lines.
func TotalPrice(lines []models.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

func summarize(order models.Order) OrderSummary {
	items := 0
	for _, line := range order.Lines {
		items += line.Quantity
	}
	return OrderSummary{
		ID:              order.ID,
		CustomerID:      order.CustomerID,
		PickupAddressID: order.PickupAddressID,
		Status:          order.Status,
		PaymentIntentID: order.PaymentIntentID,
		OrderedAt:       order.OrderedAt,
		TotalPrice:      TotalPrice(order.Lines),
		TotalItems:      items,
	}
}

func mapLoadError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func (s *service) logInfo(ctx context.Context, orderID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), msg)
}

func (s *service) logError(ctx context.Context, orderID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), msg, err)
}
