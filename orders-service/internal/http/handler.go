package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/partshop/orders-service/internal/domain"
	"github.com/fjod/partshop/orders-service/internal/repository"
	"github.com/fjod/partshop/orders-service/internal/service"
	"github.com/fjod/partshop/pkg/httputil"
	"github.com/fjod/partshop/pkg/logger"
	"github.com/fjod/partshop/pkg/pricing"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// OrderStore is the part of the order service the handlers need.
type OrderStore interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*domain.Order, error)
	ConfirmPayment(ctx context.Context, orderNumber string) (*domain.Order, error)
	GetOrder(ctx context.Context, orderNumber string) (*domain.Order, error)
	ListOrders(ctx context.Context, userID string) ([]domain.OrderSummary, error)
	Stats(ctx context.Context) (*domain.Stats, error)
}

type OrderHandler struct {
	orders  OrderStore
	timeout time.Duration
	log     *logrus.Entry
}

func NewOrderHandler(orders OrderStore, timeout time.Duration, log *logrus.Entry) *OrderHandler {
	return &OrderHandler{
		orders:  orders,
		timeout: timeout,
		log:     log,
	}
}

type OrderItemRequest struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// CreateOrderRequest mirrors the checkout form flattened next to the cart lines.
type CreateOrderRequest struct {
	UserID        string `json:"user_id"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`

	BillingAddressLine1 string `json:"billing_address_line1"`
	BillingAddressLine2 string `json:"billing_address_line2"`
	BillingCity         string `json:"billing_city"`
	BillingState        string `json:"billing_state"`
	BillingZip          string `json:"billing_zip"`
	BillingCountry      string `json:"billing_country"`

	ShippingAddressLine1 string `json:"shipping_address_line1"`
	ShippingAddressLine2 string `json:"shipping_address_line2"`
	ShippingCity         string `json:"shipping_city"`
	ShippingState        string `json:"shipping_state"`
	ShippingZip          string `json:"shipping_zip"`
	ShippingCountry      string `json:"shipping_country"`

	SameAsBilling bool   `json:"same_as_billing"`
	PaymentMethod string `json:"payment_method"`
	Notes         string `json:"notes"`

	Items       []OrderItemRequest `json:"items"`
	Subtotal    decimal.Decimal    `json:"subtotal"`
	ShippingFee decimal.Decimal    `json:"shipping_fee"`
	Tax         decimal.Decimal    `json:"tax"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
}

func (req *CreateOrderRequest) toInput() service.CreateOrderInput {
	in := service.CreateOrderInput{
		UserID:        req.UserID,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Billing: domain.Address{
			Line1:   req.BillingAddressLine1,
			Line2:   req.BillingAddressLine2,
			City:    req.BillingCity,
			State:   req.BillingState,
			Zip:     req.BillingZip,
			Country: req.BillingCountry,
		},
		Shipping: domain.Address{
			Line1:   req.ShippingAddressLine1,
			Line2:   req.ShippingAddressLine2,
			City:    req.ShippingCity,
			State:   req.ShippingState,
			Zip:     req.ShippingZip,
			Country: req.ShippingCountry,
		},
		SameAsBilling: req.SameAsBilling,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		Items:         make([]service.ItemInput, 0, len(req.Items)),
		Totals: pricing.Totals{
			Subtotal:    req.Subtotal,
			ShippingFee: req.ShippingFee,
			Tax:         req.Tax,
			Total:       req.TotalAmount,
		},
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, service.ItemInput{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	return in
}

type OrdersResponse struct {
	Orders []domain.OrderSummary `json:"orders"`
}

func NewRouter(h *OrderHandler, log *logrus.Entry) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestIDMiddleware)
	r.Use(httputil.RequestLogger(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/", h.ListOrders)
			r.Get("/{order_number}", h.GetOrder)
			r.Post("/{order_number}/confirm-payment", h.ConfirmPayment)
		})
		r.Get("/stats", h.Stats)
	})

	return r
}

// POST /api/v1/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateOrderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	order, err := h.orders.CreateOrder(ctx, req.toInput())
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.JSONResponse(w, http.StatusCreated, order)
}

// POST /api/v1/orders/{order_number}/confirm-payment
func (h *OrderHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderNumber, ok := orderNumberParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.ConfirmPayment(ctx, orderNumber)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.JSONResponse(w, http.StatusOK, order)
}

// GET /api/v1/orders?user_id=
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, r.URL.Query().Get("user_id"))
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}
	if orders == nil {
		orders = []domain.OrderSummary{}
	}

	httputil.JSONResponse(w, http.StatusOK, OrdersResponse{Orders: orders})
}

// GET /api/v1/orders/{order_number}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderNumber, ok := orderNumberParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderNumber)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.JSONResponse(w, http.StatusOK, order)
}

// GET /api/v1/stats
func (h *OrderHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.orders.Stats(ctx)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.JSONResponse(w, http.StatusOK, stats)
}

func orderNumberParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	orderNumber := strings.TrimSpace(chi.URLParam(r, "order_number"))
	if orderNumber == "" {
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid_argument", "order_number is required")
		return "", false
	}
	return orderNumber, true
}

func (h *OrderHandler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	var rej *service.RejectionError
	if errors.As(err, &rej) {
		status, code := rejectionStatus(rej.Kind)
		logger.WithContext(ctx, h.log).WithFields(logrus.Fields{
			"code":  code,
			"field": rej.Field,
		}).Info("order rejected")
		writeError(w, status, code, rej.Message, rej.Field)
		return
	}

	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		httputil.ErrorResponse(w, http.StatusNotFound, "not_found", "order not found")
	case errors.Is(err, service.ErrCatalogUnavailable):
		logger.WithContext(ctx, h.log).WithError(err).Warn("catalog unavailable")
		httputil.ErrorResponse(w, http.StatusServiceUnavailable, "catalog_unavailable",
			"The product catalog is unavailable. Please try again shortly.")
	case errors.Is(err, service.ErrPaymentUnavailable):
		logger.WithContext(ctx, h.log).WithError(err).Warn("payment provider unavailable")
		httputil.ErrorResponse(w, http.StatusServiceUnavailable, "payment_unavailable",
			"The payment provider is unavailable. Please try again shortly.")
	case errors.Is(err, context.DeadlineExceeded):
		httputil.ErrorResponse(w, http.StatusGatewayTimeout, "timeout", "order request timed out")
	default:
		logger.WithContext(ctx, h.log).WithError(err).Error("order request failed")
		httputil.ErrorResponse(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func rejectionStatus(kind error) (int, string) {
	switch {
	case errors.Is(kind, service.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(kind, service.ErrPriceChanged):
		return http.StatusConflict, "price_changed"
	case errors.Is(kind, service.ErrNotPayable):
		return http.StatusConflict, "not_payable"
	case errors.Is(kind, service.ErrProductUnavailable):
		return http.StatusUnprocessableEntity, "product_unavailable"
	case errors.Is(kind, service.ErrTotalsMismatch):
		return http.StatusUnprocessableEntity, "totals_mismatch"
	default:
		return http.StatusUnprocessableEntity, "validation_failed"
	}
}

func writeError(w http.ResponseWriter, status int, code, message, field string) {
	httputil.JSONResponse(w, status, httputil.ErrorBody{Error: message, Code: code, Details: field})
}
