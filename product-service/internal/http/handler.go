package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/partshop/pkg/httputil"
	"github.com/fjod/partshop/pkg/logger"
	"github.com/fjod/partshop/product-service/internal/domain"
	"github.com/fjod/partshop/product-service/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type Catalog interface {
	ListProducts(ctx context.Context, f repository.Filter) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

type ProductHandler struct {
	catalog Catalog
	timeout time.Duration
	log     *logrus.Entry
}

func NewProductHandler(catalog Catalog, timeout time.Duration, log *logrus.Entry) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		timeout: timeout,
		log:     log,
	}
}

type ProductsResponse struct {
	Products []*domain.Product `json:"products"`
}

func NewRouter(h *ProductHandler, log *logrus.Entry) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestIDMiddleware)
	r.Use(httputil.RequestLogger(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
	})

	return r
}

// GET /api/v1/products?q=&category=
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.catalog.ListProducts(ctx, repository.Filter{
		Search:   r.URL.Query().Get("q"),
		Category: r.URL.Query().Get("category"),
	})
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}

	httputil.JSONResponse(w, http.StatusOK, ProductsResponse{Products: products})
}

// GET /api/v1/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid_product_id", "invalid product id")
		return
	}

	product, err := h.catalog.GetProduct(ctx, id)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	httputil.JSONResponse(w, http.StatusOK, product)
}

func (h *ProductHandler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		httputil.ErrorResponse(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, context.DeadlineExceeded):
		httputil.ErrorResponse(w, http.StatusGatewayTimeout, "timeout", "catalog timed out")
	default:
		logger.WithContext(ctx, h.log).WithError(err).Error("catalog request failed")
		httputil.ErrorResponse(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
