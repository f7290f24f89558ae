package http

import (
	"net/http"
	"time"

	"github.com/fjod/partshop/api-gateway/internal/session"
	"github.com/fjod/partshop/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type RouterConfig struct {
	Catalog  Catalog
	Carts    CartStore
	Orders   OrderReader
	Auth     *session.Authenticator
	Sessions *session.Registry
	Log      *logrus.Entry

	// Bound on each collaborator call made by a handler.
	CallTimeout time.Duration
	// Bound on the whole request; must exceed the checkout submit timeout.
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) chi.Router {
	products := NewProductHandler(cfg.Catalog, cfg.CallTimeout, cfg.Log)
	carts := NewCartHandler(cfg.Carts, cfg.Catalog, cfg.Sessions, cfg.CallTimeout, cfg.Log)
	checkouts := NewCheckoutHandler(cfg.Carts, cfg.Sessions, cfg.CallTimeout, cfg.Log)
	orders := NewOrdersHandler(cfg.Orders, cfg.Catalog, cfg.CallTimeout, cfg.Log)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestIDMiddleware)
	r.Use(httputil.RequestLogger(cfg.Log))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", products.List)
			r.Get("/{id}", products.Get)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", carts.GetCart)
			r.Delete("/", carts.Clear)
			r.Post("/items", carts.AddItem)
			r.Put("/items/{product_id}", carts.UpdateQuantity)
			r.Delete("/items/{product_id}", carts.RemoveItem)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkouts.Get)
			r.Put("/form", checkouts.UpdateForm)
			r.Put("/same-as-billing", checkouts.SetSameAsBilling)
			r.Post("/next", checkouts.Next)
			r.Post("/back", checkouts.Back)
			r.Post("/place-order", checkouts.PlaceOrder)
			r.Post("/reset", checkouts.Reset)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orders.ListOrders)
			r.Get("/{order_number}", orders.GetOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(session.RequireRole(session.RoleAdmin))
			r.Get("/stats", orders.Dashboard)
		})
	})

	return r
}
