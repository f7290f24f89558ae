package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/partshop/pkg/apiclient"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// Catalog is the product-service as the gateway uses it.
type Catalog interface {
	ListProducts(ctx context.Context, q apiclient.ProductQuery) ([]apiclient.Product, error)
	GetProduct(ctx context.Context, id int64) (*apiclient.Product, error)
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
	Products []apiclient.Product `json:"products"`
}

// GET /api/v1/products?q=&category=
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := apiclient.ProductQuery{
		Search:   r.URL.Query().Get("q"),
		Category: r.URL.Query().Get("category"),
	}
	products, err := h.catalog.ListProducts(ctx, q)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	if products == nil {
		products = []apiclient.Product{}
	}

	respondJSON(w, http.StatusOK, &ProductsResponse{Products: products})
}

// GET /api/v1/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product id must be a positive integer")
		return
	}

	product, err := h.catalog.GetProduct(ctx, id)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}
