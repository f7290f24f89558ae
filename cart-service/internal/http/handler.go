package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/partshop/cart-service/internal/domain"
	"github.com/fjod/partshop/cart-service/internal/repository"
	"github.com/fjod/partshop/pkg/httputil"
	"github.com/fjod/partshop/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CartStore is the part of the cart service the handlers need.
type CartStore interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID string, item domain.CartItem) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, userID string, productID int64, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID string, productID int64) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

type CartHandler struct {
	carts   CartStore
	timeout time.Duration
	log     *logrus.Entry
}

func NewCartHandler(carts CartStore, timeout time.Duration, log *logrus.Entry) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequest struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func NewRouter(h *CartHandler, log *logrus.Entry) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestIDMiddleware)
	r.Use(httputil.RequestLogger(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/carts/{user_id}", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddItem)
		r.Put("/items/{product_id}", h.UpdateQuantity)
		r.Delete("/items/{product_id}", h.RemoveItem)
	})

	return r
}

// GET /api/v1/carts/{user_id}
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.JSONResponse(w, http.StatusOK, cart)
}

// POST /api/v1/carts/{user_id}/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req AddItemRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	cart, err := h.carts.AddItem(ctx, userID, domain.CartItem{
		ProductID: req.ProductID,
		SKU:       req.SKU,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.JSONResponse(w, http.StatusOK, cart)
}

// PUT /api/v1/carts/{user_id}/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	cart, err := h.carts.UpdateQuantity(ctx, userID, productID, req.Quantity)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.JSONResponse(w, http.StatusOK, cart)
}

// DELETE /api/v1/carts/{user_id}/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveItem(ctx, userID, productID)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.JSONResponse(w, http.StatusOK, cart)
}

// DELETE /api/v1/carts/{user_id}
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(ctx, userID); err != nil {
		h.handleError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := chi.URLParam(r, "user_id")
	if userID == "" {
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid_argument", "user_id is required")
		return "", false
	}
	return userID, true
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid_argument", "product_id must be greater than 0")
		return 0, false
	}
	return id, true
}

func (h *CartHandler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidProduct):
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, repository.ErrItemNotFound):
		httputil.ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httputil.ErrorResponse(w, http.StatusGatewayTimeout, "timeout", "cart store timed out")
	default:
		logger.WithContext(ctx, h.log).WithError(err).Error("cart request failed")
		httputil.ErrorResponse(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
