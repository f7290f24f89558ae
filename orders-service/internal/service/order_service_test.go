package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/partshop/orders-service/internal/domain"
	"github.com/fjod/partshop/orders-service/internal/payment"
	"github.com/fjod/partshop/orders-service/internal/repository"
	"github.com/fjod/partshop/pkg/apiclient"
	"github.com/fjod/partshop/pkg/logger"
	"github.com/fjod/partshop/pkg/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	m         sync.Mutex
	orders    map[string]*domain.Order
	events    []domain.OrderEvent
	createErr error
	updateErr error
	creates   int
}

func newMockRepository() *mockRepository {
	return &mockRepository{orders: make(map[string]*domain.Order)}
}

func (m *mockRepository) CreateOrder(_ context.Context, order *domain.Order, event domain.OrderEvent) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.creates++
	if m.createErr != nil {
		err := m.createErr
		if errors.Is(err, repository.ErrDuplicateOrder) {
			// only the first insert collides
			m.createErr = nil
		}
		return err
	}
	cp := *order
	m.orders[order.OrderNumber] = &cp
	m.events = append(m.events, event)
	return nil
}

func (m *mockRepository) GetOrderByNumber(_ context.Context, orderNumber string) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.orders[orderNumber]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepository) ListOrdersByUserID(_ context.Context, userID string) ([]domain.OrderSummary, error) {
	m.m.Lock()
	defer m.m.Unlock()
	var out []domain.OrderSummary
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, domain.OrderSummary{OrderNumber: o.OrderNumber, Status: o.Status, TotalAmount: o.TotalAmount, ItemCount: o.ItemCount()})
		}
	}
	return out, nil
}

func (m *mockRepository) UpdatePayment(_ context.Context, order *domain.Order, from domain.OrderStatus, event domain.OrderEvent) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.orders[order.OrderNumber]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if stored.Status != from {
		return repository.ErrStatusConflict
	}
	cp := *order
	m.orders[order.OrderNumber] = &cp
	m.events = append(m.events, event)
	return nil
}

func (m *mockRepository) Stats(_ context.Context, topN int) (*domain.Stats, error) {
	return &domain.Stats{TotalOrders: len(m.orders), TopProducts: make([]domain.TopProduct, 0, topN)}, nil
}

type mockCatalog struct {
	products map[int64]apiclient.Product
	err      error
	calls    atomic.Int32
}

func (m *mockCatalog) GetProduct(_ context.Context, id int64) (*apiclient.Product, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, &apiclient.Error{Status: http.StatusNotFound, Code: "product_not_found", Message: "product not found"}
	}
	return &p, nil
}

type countingCharger struct {
	payment.Charger
	calls atomic.Int32
}

func (c *countingCharger) Charge(ctx context.Context, orderNumber string, amount decimal.Decimal) (payment.Charge, error) {
	c.calls.Add(1)
	return c.Charger.Charge(ctx, orderNumber, amount)
}

func newCatalog() *mockCatalog {
	return &mockCatalog{products: map[int64]apiclient.Product{
		1: {ID: 1, SKU: "BRK-1001", Name: "Ceramic brake pads", Price: decimal.RequireFromString("300.00"), QuantityAvailable: 3},
		2: {ID: 2, SKU: "FLT-2001", Name: "Oil filter", Price: decimal.RequireFromString("100.00"), QuantityAvailable: 40},
	}}
}

func validInput() CreateOrderInput {
	items := []ItemInput{
		{ProductID: 1, SKU: "BRK-1001", Name: "Ceramic brake pads", UnitPrice: decimal.RequireFromString("300.00"), Quantity: 1},
		{ProductID: 2, SKU: "FLT-2001", Name: "Oil filter", UnitPrice: decimal.RequireFromString("100.00"), Quantity: 2},
	}
	return CreateOrderInput{
		UserID:        "user-1",
		CustomerEmail: "jane@example.com",
		CustomerName:  "Jane Doe",
		CustomerPhone: "555-0100",
		Billing: domain.Address{
			Line1: "1 Main St", City: "Springfield", State: "IL", Zip: "62701", Country: "US",
		},
		SameAsBilling: true,
		PaymentMethod: PaymentMethodCreditCard,
		Items:         items,
		Totals:        pricing.ForLines(items),
	}
}

func newTestService(repo *mockRepository, catalog Catalog, charger payment.Charger) *OrderService {
	return NewOrderService(repo, catalog, charger, logger.Discard())
}

func TestCreateOrder_Success(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, newCatalog(), payment.FixedCharger{Status: payment.StatusSucceeded})

	order, err := svc.CreateOrder(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{8}$`, order.OrderNumber)
	assert.Equal(t, "500.00", order.Subtotal.StringFixed(2))
	assert.True(t, order.ShippingFee.IsZero())
	assert.Equal(t, "40.00", order.Tax.StringFixed(2))
	assert.Equal(t, "540.00", order.TotalAmount.StringFixed(2))
	assert.Equal(t, order.BillingAddress, order.ShippingAddress)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "200.00", order.Items[1].Subtotal.StringFixed(2))

	require.Len(t, repo.events, 1)
	assert.Equal(t, domain.EventOrderCreated, repo.events[0].EventType)
	assert.Equal(t, "user-1", repo.events[0].UserID)
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CreateOrderInput)
		field  string
	}{
		{"missing email", func(in *CreateOrderInput) { in.CustomerEmail = " " }, "customer_email"},
		{"bad email", func(in *CreateOrderInput) { in.CustomerEmail = "jane" }, "customer_email"},
		{"missing billing city", func(in *CreateOrderInput) { in.Billing.City = "" }, "billing_city"},
		{"missing shipping", func(in *CreateOrderInput) { in.SameAsBilling = false }, "shipping_address_line1"},
		{"wrong payment method", func(in *CreateOrderInput) { in.PaymentMethod = "cash" }, "payment_method"},
		{"no items", func(in *CreateOrderInput) { in.Items = nil }, "items"},
		{"zero quantity", func(in *CreateOrderInput) { in.Items[0].Quantity = 0 }, "items"},
		{"duplicate product", func(in *CreateOrderInput) { in.Items[1].ProductID = 1 }, "items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := newCatalog()
			svc := newTestService(newMockRepository(), catalog, payment.FixedCharger{})
			in := validInput()
			tt.mutate(&in)

			_, err := svc.CreateOrder(context.Background(), in)
			require.ErrorIs(t, err, ErrValidation)
			var rej *RejectionError
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tt.field, rej.Field)
			assert.Zero(t, catalog.calls.Load())
		})
	}
}

func TestCreateOrder_RequiredMessage(t *testing.T) {
	svc := newTestService(newMockRepository(), newCatalog(), payment.FixedCharger{})
	in := validInput()
	in.CustomerName = ""

	_, err := svc.CreateOrder(context.Background(), in)
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "customer_name is required", rej.Message)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, newCatalog(), payment.FixedCharger{})
	in := validInput()
	in.Items[0].Quantity = 4
	in.Totals = pricing.ForLines(in.Items)

	_, err := svc.CreateOrder(context.Background(), in)
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Insufficient stock for Ceramic brake pads")
	assert.Empty(t, repo.orders)
}

func TestCreateOrder_PriceChanged(t *testing.T) {
	catalog := newCatalog()
	p := catalog.products[2]
	p.Price = decimal.RequireFromString("105.00")
	catalog.products[2] = p
	svc := newTestService(newMockRepository(), catalog, payment.FixedCharger{})

	_, err := svc.CreateOrder(context.Background(), validInput())
	require.ErrorIs(t, err, ErrPriceChanged)
	assert.Contains(t, err.Error(), "105.00")
}

func TestCreateOrder_ProductGone(t *testing.T) {
	catalog := newCatalog()
	delete(catalog.products, 2)
	svc := newTestService(newMockRepository(), catalog, payment.FixedCharger{})

	_, err := svc.CreateOrder(context.Background(), validInput())
	require.ErrorIs(t, err, ErrProductUnavailable)
	assert.Contains(t, err.Error(), "Oil filter")
}

func TestCreateOrder_CatalogDown(t *testing.T) {
	catalog := newCatalog()
	catalog.err = apiclient.ErrUnavailable
	svc := newTestService(newMockRepository(), catalog, payment.FixedCharger{})

	_, err := svc.CreateOrder(context.Background(), validInput())
	require.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestCreateOrder_TotalsMismatch(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, newCatalog(), payment.FixedCharger{})
	in := validInput()
	in.Totals.Total = in.Totals.Total.Add(decimal.RequireFromString("0.01"))

	_, err := svc.CreateOrder(context.Background(), in)
	require.ErrorIs(t, err, ErrTotalsMismatch)
	assert.Contains(t, err.Error(), "540.00")
	assert.Empty(t, repo.orders)
}

func TestCreateOrder_RetriesDuplicateNumber(t *testing.T) {
	repo := newMockRepository()
	repo.createErr = repository.ErrDuplicateOrder
	svc := newTestService(repo, newCatalog(), payment.FixedCharger{})

	order, err := svc.CreateOrder(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.creates)
	assert.Contains(t, repo.orders, order.OrderNumber)
}

func TestCreateOrder_StoreFailure(t *testing.T) {
	repo := newMockRepository()
	repo.createErr = errors.New("connection reset")
	svc := newTestService(repo, newCatalog(), payment.FixedCharger{})

	_, err := svc.CreateOrder(context.Background(), validInput())
	require.Error(t, err)
	var rej *RejectionError
	assert.False(t, errors.As(err, &rej))
}

func createdOrder(t *testing.T, svc *OrderService) *domain.Order {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), validInput())
	require.NoError(t, err)
	return order
}

func TestConfirmPayment_Succeeded(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, newCatalog(), payment.FixedCharger{Status: payment.StatusSucceeded})
	order := createdOrder(t, svc)

	paid, err := svc.ConfirmPayment(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, paid.Status)
	assert.NotEmpty(t, paid.PaymentID)
	assert.Empty(t, paid.FailureReason)

	require.Len(t, repo.events, 2)
	assert.Equal(t, domain.EventPaymentConfirmed, repo.events[1].EventType)
}

func TestConfirmPayment_FailedThenRetried(t *testing.T) {
	repo := newMockRepository()
	charger := &payment.FixedCharger{Status: payment.StatusFailed, Reason: payment.RefusalCardDeclined}
	svc := newTestService(repo, newCatalog(), charger)
	order := createdOrder(t, svc)

	failed, err := svc.ConfirmPayment(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaymentFailed, failed.Status)
	assert.Equal(t, payment.RefusalCardDeclined, failed.FailureReason)
	assert.Equal(t, domain.EventPaymentFailed, repo.events[1].EventType)

	charger.Status = payment.StatusSucceeded
	charger.Reason = ""
	paid, err := svc.ConfirmPayment(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, paid.Status)
	assert.Empty(t, paid.FailureReason)
}

func TestConfirmPayment_AlreadyConfirmed(t *testing.T) {
	repo := newMockRepository()
	charger := &countingCharger{Charger: payment.FixedCharger{Status: payment.StatusSucceeded}}
	svc := newTestService(repo, newCatalog(), charger)
	order := createdOrder(t, svc)

	first, err := svc.ConfirmPayment(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	second, err := svc.ConfirmPayment(context.Background(), order.OrderNumber)
	require.NoError(t, err)

	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.EqualValues(t, 1, charger.calls.Load())
	assert.Len(t, repo.events, 2)
}

func TestConfirmPayment_Concurrent(t *testing.T) {
	repo := newMockRepository()
	charger := &countingCharger{Charger: payment.FixedCharger{Status: payment.StatusSucceeded}}
	svc := newTestService(repo, newCatalog(), charger)
	order := createdOrder(t, svc)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paid, err := svc.ConfirmPayment(context.Background(), order.OrderNumber)
			assert.NoError(t, err)
			assert.Equal(t, domain.OrderStatusConfirmed, paid.Status)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, charger.calls.Load())
}

func (s *OrderService) paymentWaiters(orderNumber string) int {
	s.payMu.Lock()
	defer s.payMu.Unlock()
	if l, ok := s.payLocks[orderNumber]; ok {
		return l.refs
	}
	return 0
}

func TestLockPayment_HandOffKeepsOrderSerialized(t *testing.T) {
	svc := newTestService(newMockRepository(), newCatalog(), payment.FixedCharger{})
	const number = "ORD-20260101-0000CAFE"

	unlockA := svc.lockPayment(number)

	bHeld := make(chan struct{})
	releaseB := make(chan struct{})
	go func() {
		unlock := svc.lockPayment(number)
		close(bHeld)
		<-releaseB
		unlock()
	}()
	require.Eventually(t, func() bool { return svc.paymentWaiters(number) == 2 }, time.Second, time.Millisecond)

	unlockA()
	<-bHeld

	var cHeld atomic.Bool
	cDone := make(chan struct{})
	go func() {
		unlock := svc.lockPayment(number)
		cHeld.Store(true)
		unlock()
		close(cDone)
	}()
	assert.Never(t, cHeld.Load, 50*time.Millisecond, 5*time.Millisecond)

	close(releaseB)
	<-cDone
	assert.Zero(t, svc.paymentWaiters(number))
}

func TestConfirmPayment_ChargerError(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, newCatalog(), payment.FixedCharger{Err: errors.New("gateway timeout")})
	order := createdOrder(t, svc)

	_, err := svc.ConfirmPayment(context.Background(), order.OrderNumber)
	require.ErrorIs(t, err, ErrPaymentUnavailable)

	stored, err := repo.GetOrderByNumber(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
}

func TestConfirmPayment_StatusConflictReloads(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, newCatalog(), payment.FixedCharger{Status: payment.StatusSucceeded})
	order := createdOrder(t, svc)

	repo.updateErr = repository.ErrStatusConflict
	got, err := svc.ConfirmPayment(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
}

func TestConfirmPayment_NotFound(t *testing.T) {
	svc := newTestService(newMockRepository(), newCatalog(), payment.FixedCharger{})

	_, err := svc.ConfirmPayment(context.Background(), "ORD-20260101-DEADBEEF")
	require.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestListOrders_RequiresUser(t *testing.T) {
	svc := newTestService(newMockRepository(), newCatalog(), payment.FixedCharger{})

	_, err := svc.ListOrders(context.Background(), "")
	require.ErrorIs(t, err, ErrValidation)
}

func TestListOrders(t *testing.T) {
	svc := newTestService(newMockRepository(), newCatalog(), payment.FixedCharger{})
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	order := createdOrder(t, svc)

	orders, err := svc.ListOrders(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.OrderNumber, orders[0].OrderNumber)
	assert.Equal(t, 3, orders[0].ItemCount)
	assert.Contains(t, order.OrderNumber, "ORD-20260301-")
}
