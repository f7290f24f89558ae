package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/partshop/api-gateway/internal/clients"
	"github.com/fjod/partshop/api-gateway/internal/session"
	"github.com/fjod/partshop/pkg/apiclient"
	"github.com/fjod/partshop/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// LowStockThreshold marks products the dashboard flags for restocking.
const LowStockThreshold = 5

// OrderReader is the read side of orders-service.
type OrderReader interface {
	ListOrders(ctx context.Context, userID string) ([]clients.OrderSummary, error)
	GetOrder(ctx context.Context, orderNumber string) (*clients.OrderDetail, error)
	Stats(ctx context.Context) (*clients.OrderStats, error)
}

type OrdersHandler struct {
	orders  OrderReader
	catalog Catalog
	timeout time.Duration
	log     *logrus.Entry
}

func NewOrdersHandler(orders OrderReader, catalog Catalog, timeout time.Duration, log *logrus.Entry) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		catalog: catalog,
		timeout: timeout,
		log:     log,
	}
}

type OrdersResponse struct {
	Orders []clients.OrderSummary `json:"orders"`
}

type LowStockProduct struct {
	ID                int64  `json:"id"`
	SKU               string `json:"sku"`
	Name              string `json:"name"`
	QuantityAvailable int    `json:"quantity_available"`
}

type DashboardResponse struct {
	*clients.OrderStats
	TotalProducts int               `json:"total_products"`
	LowStock      []LowStockProduct `json:"low_stock"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(ctx, s.Owner())
	if err != nil {
		handleError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	if orders == nil {
		orders = []clients.OrderSummary{}
	}

	respondJSON(w, http.StatusOK, OrdersResponse{Orders: orders})
}

// GET /api/v1/orders/{order_number}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := currentSession(w, r)
	if !ok {
		return
	}
	orderNumber := chi.URLParam(r, "order_number")
	if orderNumber == "" {
		respondError(w, http.StatusBadRequest, "invalid_order_number", "order_number is required")
		return
	}

	order, err := h.orders.GetOrder(ctx, orderNumber)
	if err != nil {
		handleError(w, logger.WithContext(ctx, h.log), err)
		return
	}
	// other customers' orders look the same as missing ones
	if order.UserID != s.Owner() && s.Role != session.RoleAdmin {
		respondError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// GET /api/v1/admin/stats
func (h *OrdersHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		stats    *clients.OrderStats
		products []apiclient.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = h.orders.Stats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		products, err = h.catalog.ListProducts(gctx, apiclient.ProductQuery{})
		return err
	})
	if err := g.Wait(); err != nil {
		handleError(w, logger.WithContext(ctx, h.log), err)
		return
	}

	resp := DashboardResponse{
		OrderStats:    stats,
		TotalProducts: len(products),
		LowStock:      []LowStockProduct{},
	}
	for _, p := range products {
		if p.QuantityAvailable < LowStockThreshold {
			resp.LowStock = append(resp.LowStock, LowStockProduct{
				ID:                p.ID,
				SKU:               p.SKU,
				Name:              p.Name,
				QuantityAvailable: p.QuantityAvailable,
			})
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
