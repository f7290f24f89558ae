package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fjod/partshop/orders-service/internal/domain"
	"github.com/fjod/partshop/orders-service/internal/payment"
	"github.com/fjod/partshop/orders-service/internal/repository"
	"github.com/fjod/partshop/pkg/apiclient"
	"github.com/fjod/partshop/pkg/logger"
	"github.com/fjod/partshop/pkg/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	PaymentMethodCreditCard = "credit_card"
	// TopProductsLimit bounds the dashboard's best sellers list.
	TopProductsLimit = 5
	// catalogConcurrency bounds parallel product lookups per order.
	catalogConcurrency = 4
)

// Catalog is the product-service lookup used for stock and price checks.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*apiclient.Product, error)
}

type ItemInput struct {
	ProductID int64
	SKU       string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

func (i ItemInput) LinePrice() decimal.Decimal { return i.UnitPrice }
func (i ItemInput) LineQuantity() int          { return i.Quantity }

// CreateOrderInput is an order as submitted by the storefront, totals included.
type CreateOrderInput struct {
	UserID        string
	CustomerEmail string
	CustomerName  string
	CustomerPhone string
	Billing       domain.Address
	Shipping      domain.Address
	SameAsBilling bool
	PaymentMethod string
	Notes         string
	Items         []ItemInput
	Totals        pricing.Totals
}

type OrderService struct {
	repo    repository.OrderRepository
	catalog Catalog
	charger payment.Charger
	log     *logrus.Entry
	now     func() time.Time

	// serializes payment attempts per order inside this process
	payMu    sync.Mutex
	payLocks map[string]*paymentLock
}

// paymentLock is dropped from the map once nobody holds or waits for it.
type paymentLock struct {
	mu   sync.Mutex
	refs int
}

func NewOrderService(repo repository.OrderRepository, catalog Catalog, charger payment.Charger, log *logrus.Entry) *OrderService {
	if log == nil {
		log = logger.Discard()
	}
	return &OrderService{
		repo:     repo,
		catalog:  catalog,
		charger:  charger,
		log:      log,
		now:      time.Now,
		payLocks: make(map[string]*paymentLock),
	}
}

// CreateOrder validates the submission, checks stock and prices against the
// catalog, recomputes the totals and stores the order as pending.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if in.SameAsBilling {
		in.Shipping = in.Billing
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	if err := s.checkCatalog(ctx, in.Items); err != nil {
		return nil, err
	}

	totals := pricing.ForLines(in.Items)
	if !totals.Equal(in.Totals) {
		logger.WithContext(ctx, s.log).WithFields(logrus.Fields{
			"submitted_total": in.Totals.Total.StringFixed(2),
			"computed_total":  totals.Total.StringFixed(2),
		}).Warn("submitted totals do not match")
		return nil, reject(ErrTotalsMismatch, "total_amount",
			"Order totals do not match the cart (expected %s). Please review your cart.", totals.Total.StringFixed(2))
	}

	order := &domain.Order{
		ID:              uuid.New(),
		OrderNumber:     domain.NewOrderNumber(s.now()),
		UserID:          in.UserID,
		Status:          domain.OrderStatusPending,
		CustomerEmail:   strings.TrimSpace(in.CustomerEmail),
		CustomerName:    strings.TrimSpace(in.CustomerName),
		CustomerPhone:   strings.TrimSpace(in.CustomerPhone),
		BillingAddress:  in.Billing,
		ShippingAddress: in.Shipping,
		PaymentMethod:   in.PaymentMethod,
		Notes:           in.Notes,
		Items:           make([]domain.OrderItem, 0, len(in.Items)),
		Subtotal:        totals.Subtotal,
		ShippingFee:     totals.ShippingFee,
		Tax:             totals.Tax,
		TotalAmount:     totals.Total,
	}
	for _, it := range in.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Subtotal:  pricing.LineSubtotal(it.UnitPrice, it.Quantity),
		})
	}

	err := s.repo.CreateOrder(ctx, order, domain.NewOrderEvent(domain.EventOrderCreated, order, s.now()))
	if errors.Is(err, repository.ErrDuplicateOrder) {
		// order numbers carry a random suffix; one retry is plenty
		order.OrderNumber = domain.NewOrderNumber(s.now())
		err = s.repo.CreateOrder(ctx, order, domain.NewOrderEvent(domain.EventOrderCreated, order, s.now()))
	}
	if err != nil {
		logger.WithContext(ctx, s.log).WithError(err).Error("failed to store order")
		return nil, fmt.Errorf("create order: %w", err)
	}

	logger.WithContext(ctx, s.log).WithFields(logrus.Fields{
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
		"total":        order.TotalAmount.StringFixed(2),
	}).Info("Order created")
	return order, nil
}

// ConfirmPayment charges a pending or previously failed order. Confirming an
// already confirmed order returns it unchanged.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderNumber string) (*domain.Order, error) {
	unlock := s.lockPayment(orderNumber)
	defer unlock()

	order, err := s.repo.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.OrderStatusConfirmed {
		return order, nil
	}
	if !order.Status.Payable() {
		return nil, reject(ErrNotPayable, "status", "Order %s cannot be paid in status %s", orderNumber, order.Status)
	}

	charge, err := s.charger.Charge(ctx, order.OrderNumber, order.TotalAmount)
	if err != nil {
		logger.WithContext(ctx, s.log).WithError(err).WithField("order_number", orderNumber).Error("charge failed")
		return nil, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}

	from := order.Status
	event := domain.EventPaymentConfirmed
	next := domain.OrderStatusConfirmed
	order.FailureReason = ""
	if !charge.Succeeded() {
		event = domain.EventPaymentFailed
		next = domain.OrderStatusPaymentFailed
		order.FailureReason = charge.Reason
	}
	if err := order.Transition(next); err != nil {
		return nil, err
	}
	order.PaymentID = charge.TransactionID

	err = s.repo.UpdatePayment(ctx, order, from, domain.NewOrderEvent(event, order, s.now()))
	if errors.Is(err, repository.ErrStatusConflict) {
		// another replica settled it first
		return s.repo.GetOrderByNumber(ctx, orderNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("store payment outcome: %w", err)
	}

	logger.WithContext(ctx, s.log).WithFields(logrus.Fields{
		"order_number": orderNumber,
		"status":       order.Status,
		"payment_id":   order.PaymentID,
	}).Info("Payment processed")
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return s.repo.GetOrderByNumber(ctx, orderNumber)
}

func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]domain.OrderSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, reject(ErrValidation, "user_id", "user_id is required")
	}
	return s.repo.ListOrdersByUserID(ctx, userID)
}

func (s *OrderService) Stats(ctx context.Context) (*domain.Stats, error) {
	return s.repo.Stats(ctx, TopProductsLimit)
}

func (s *OrderService) lockPayment(orderNumber string) func() {
	s.payMu.Lock()
	l, ok := s.payLocks[orderNumber]
	if !ok {
		l = &paymentLock{}
		s.payLocks[orderNumber] = l
	}
	l.refs++
	s.payMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.payMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.payLocks, orderNumber)
		}
		s.payMu.Unlock()
	}
}

// checkCatalog looks every line up in the catalog and refuses lines that are
// gone, short on stock, or priced differently than submitted.
func (s *OrderService) checkCatalog(ctx context.Context, items []ItemInput) error {
	products := make([]*apiclient.Product, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(catalogConcurrency)
	for i, it := range items {
		g.Go(func() error {
			p, err := s.catalog.GetProduct(gctx, it.ProductID)
			if err != nil {
				if apiclient.StatusOf(err) == http.StatusNotFound {
					return reject(ErrProductUnavailable, "items", "%s is no longer available", displayName(it))
				}
				return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
			}
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrCatalogUnavailable) {
			logger.WithContext(ctx, s.log).WithError(err).Warn("catalog lookup failed")
		}
		return err
	}

	for i, it := range items {
		p := products[i]
		if p.QuantityAvailable < it.Quantity {
			return reject(ErrInsufficientStock, "items", "Insufficient stock for %s", p.Name)
		}
		if !p.Price.Equal(it.UnitPrice) {
			return reject(ErrPriceChanged, "items",
				"The price of %s changed to %s. Please review your cart.", p.Name, p.Price.StringFixed(2))
		}
	}
	return nil
}

func displayName(it ItemInput) string {
	if it.Name != "" {
		return it.Name
	}
	return fmt.Sprintf("Product %d", it.ProductID)
}
