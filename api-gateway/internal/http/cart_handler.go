package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/partshop/api-gateway/internal/cart"
	"github.com/fjod/partshop/api-gateway/internal/session"
	"github.com/fjod/partshop/pkg/apiclient"
	"github.com/fjod/partshop/pkg/logger"
	"github.com/fjod/partshop/pkg/pricing"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const maxQuantity = 99

// CartStore is the cart-service. Every mutation answers with the stored items.
type CartStore interface {
	GetCart(ctx context.Context, owner string) ([]cart.Item, error)
	AddItem(ctx context.Context, owner string, item cart.Item, quantity int) ([]cart.Item, error)
	UpdateQuantity(ctx context.Context, owner string, productID int64, quantity int) ([]cart.Item, error)
	RemoveItem(ctx context.Context, owner string, productID int64) ([]cart.Item, error)
	Clear(ctx context.Context, owner string) error
}

type CartHandler struct {
	store    CartStore
	catalog  Catalog
	sessions *session.Registry
	timeout  time.Duration
	log      *logrus.Entry
}

func NewCartHandler(store CartStore, catalog Catalog, sessions *session.Registry, timeout time.Duration, log *logrus.Entry) *CartHandler {
	return &CartHandler{
		store:    store,
		catalog:  catalog,
		sessions: sessions,
		timeout:  timeout,
		log:      log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartItemResponse struct {
	cart.Item
	Subtotal     decimal.Decimal `json:"subtotal"`
	CanIncrement bool            `json:"can_increment"`
}

type CartResponse struct {
	Items      []CartItemResponse `json:"items"`
	TotalItems int                `json:"total_items"`
	pricing.Totals
}

func newCartResponse(c *cart.Cart) CartResponse {
	items := c.Items()
	resp := CartResponse{
		Items:      make([]CartItemResponse, 0, len(items)),
		TotalItems: c.TotalItems(),
		Totals:     c.Totals(),
	}
	for _, it := range items {
		resp.Items = append(resp.Items, CartItemResponse{
			Item:         it,
			Subtotal:     it.Subtotal(),
			CanIncrement: c.CanIncrement(it.ProductID),
		})
	}
	return resp
}

func currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return nil, false
	}
	return s, true
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	ws := h.sessions.Workspace(s)
	ws.Lock()
	defer ws.Unlock()

	items, err := h.store.GetCart(ctx, s.Owner())
	if err != nil {
		handleError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	ws.Cart.Replace(items)

	respondJSON(w, http.StatusOK, newCartResponse(ws.Cart))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	log := logger.WithContext(ctx, h.log)

	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity <= 0 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	product, err := h.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		if apiclient.StatusOf(err) == http.StatusNotFound {
			respondError(w, http.StatusNotFound, "product_not_found", "product not found")
			return
		}
		handleError(w, log, err)
		return
	}
	if product.QuantityAvailable <= 0 {
		handleError(w, log, cart.ErrInsufficientStock)
		return
	}

	line := cart.Item{
		ProductID:         product.ID,
		SKU:               product.SKU,
		Name:              product.Name,
		UnitPrice:         product.Price,
		QuantityAvailable: product.QuantityAvailable,
	}

	ws := h.sessions.Workspace(s)
	ws.Lock()
	defer ws.Unlock()

	// the local cart only changes once the store accepted the mutation
	draft := ws.Cart.Clone()
	if err := draft.AddItem(line, req.Quantity); err != nil {
		handleError(w, log, err)
		return
	}
	items, err := h.store.AddItem(ctx, s.Owner(), line, req.Quantity)
	if err != nil {
		handleError(w, log, err)
		return
	}
	draft.Replace(items)
	ws.Cart = draft

	respondJSON(w, http.StatusCreated, newCartResponse(ws.Cart))
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	log := logger.WithContext(ctx, h.log)

	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	ws := h.sessions.Workspace(s)
	ws.Lock()
	defer ws.Unlock()

	draft := ws.Cart.Clone()
	if err := draft.UpdateQuantity(productID, req.Quantity); err != nil {
		handleError(w, log, err)
		return
	}

	var items []cart.Item
	var err error
	if req.Quantity == 0 {
		items, err = h.store.RemoveItem(ctx, s.Owner(), productID)
	} else {
		items, err = h.store.UpdateQuantity(ctx, s.Owner(), productID, req.Quantity)
	}
	if err != nil {
		handleError(w, log, err)
		return
	}
	draft.Replace(items)
	ws.Cart = draft

	respondJSON(w, http.StatusOK, newCartResponse(ws.Cart))
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	ws := h.sessions.Workspace(s)
	ws.Lock()
	defer ws.Unlock()

	items, err := h.store.RemoveItem(ctx, s.Owner(), productID)
	if err != nil {
		handleError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	draft := ws.Cart.Clone()
	draft.RemoveItem(productID)
	draft.Replace(items)
	ws.Cart = draft

	respondJSON(w, http.StatusOK, newCartResponse(ws.Cart))
}

var errConfirmationRequired = errors.New("clearing the cart requires confirm=true")

// DELETE /api/v1/cart?confirm=true
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	if confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !confirmed {
		respondError(w, http.StatusBadRequest, "confirmation_required", errConfirmationRequired.Error())
		return
	}

	ws := h.sessions.Workspace(s)
	ws.Lock()
	defer ws.Unlock()

	if err := h.store.Clear(ctx, s.Owner()); err != nil {
		handleError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	ws.Cart.Clear()

	w.WriteHeader(http.StatusNoContent)
}
