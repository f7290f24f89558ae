package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fjod/partshop/api-gateway/internal/cart"
	"github.com/fjod/partshop/api-gateway/internal/checkout"
	"github.com/fjod/partshop/api-gateway/internal/clients"
	"github.com/fjod/partshop/api-gateway/internal/session"
	"github.com/fjod/partshop/pkg/apiclient"
	"github.com/fjod/partshop/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type fakeCatalog struct {
	products []apiclient.Product
	err      error
}

func (f *fakeCatalog) ListProducts(_ context.Context, q apiclient.ProductQuery) ([]apiclient.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []apiclient.Product
	for _, p := range f.products {
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeCatalog) GetProduct(_ context.Context, id int64) (*apiclient.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, &apiclient.Error{Status: http.StatusNotFound, Message: "product not found"}
}

type fakeCartStore struct {
	mu    sync.Mutex
	carts map[string][]cart.Item
	err   error
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{carts: make(map[string][]cart.Item)}
}

func (f *fakeCartStore) snapshot(owner string) []cart.Item {
	out := make([]cart.Item, len(f.carts[owner]))
	copy(out, f.carts[owner])
	return out
}

func (f *fakeCartStore) GetCart(_ context.Context, owner string) ([]cart.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot(owner), nil
}

func (f *fakeCartStore) AddItem(_ context.Context, owner string, item cart.Item, quantity int) ([]cart.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	items := f.carts[owner]
	for i := range items {
		if items[i].ProductID == item.ProductID {
			items[i].Quantity += quantity
			return f.snapshot(owner), nil
		}
	}
	item.Quantity = quantity
	item.QuantityAvailable = 0
	f.carts[owner] = append(items, item)
	return f.snapshot(owner), nil
}

func (f *fakeCartStore) UpdateQuantity(_ context.Context, owner string, productID int64, quantity int) ([]cart.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.carts[owner] {
		if f.carts[owner][i].ProductID == productID {
			f.carts[owner][i].Quantity = quantity
			return f.snapshot(owner), nil
		}
	}
	return nil, &apiclient.Error{Status: http.StatusNotFound, Message: "item not found in cart"}
}

func (f *fakeCartStore) RemoveItem(_ context.Context, owner string, productID int64) ([]cart.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	items := f.carts[owner][:0]
	for _, it := range f.carts[owner] {
		if it.ProductID != productID {
			items = append(items, it)
		}
	}
	f.carts[owner] = items
	return f.snapshot(owner), nil
}

func (f *fakeCartStore) Clear(_ context.Context, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.carts, owner)
	return nil
}

type fakeOrders struct {
	mu        sync.Mutex
	created   []checkout.OrderRequest
	createErr error
	confirmed chan string
	orders    map[string]*clients.OrderDetail
	statsErr  error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{confirmed: make(chan string, 8), orders: make(map[string]*clients.OrderDetail)}
}

func (f *fakeOrders) CreateOrder(_ context.Context, req checkout.OrderRequest) (*checkout.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	number := fmt.Sprintf("ORD-%d", len(f.created))
	f.orders[number] = &clients.OrderDetail{OrderNumber: number, UserID: req.UserID, Status: "pending", TotalAmount: req.Totals.Total}
	return &checkout.Order{
		OrderNumber: number,
		Status:      "pending",
		Subtotal:    req.Totals.Subtotal,
		ShippingFee: req.Totals.ShippingFee,
		Tax:         req.Totals.Tax,
		TotalAmount: req.Totals.Total,
		CreatedAt:   time.Now(),
	}, nil
}

func (f *fakeOrders) ConfirmPayment(_ context.Context, orderNumber string) (*checkout.Order, error) {
	f.confirmed <- orderNumber
	return &checkout.Order{OrderNumber: orderNumber, Status: "confirmed"}, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, userID string) ([]clients.OrderSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []clients.OrderSummary
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, clients.OrderSummary{OrderNumber: o.OrderNumber, Status: o.Status, TotalAmount: o.TotalAmount})
		}
	}
	return out, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, orderNumber string) (*clients.OrderDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderNumber]
	if !ok {
		return nil, &apiclient.Error{Status: http.StatusNotFound, Code: "not_found", Message: "order not found"}
	}
	return o, nil
}

func (f *fakeOrders) Stats(context.Context) (*clients.OrderStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return &clients.OrderStats{TotalOrders: 2, OrdersByStatus: map[string]int{"confirmed": 2}, TotalRevenue: decimal.NewFromInt(781)}, nil
}

type testEnv struct {
	router   chi.Router
	catalog  *fakeCatalog
	carts    *fakeCartStore
	orders   *fakeOrders
	auth     *session.Authenticator
	sessions *session.Registry
}

const guestID = "5d0f6a8e-2b8c-4d7e-9f3a-1c2b3d4e5f60"

func newTestEnv() *testEnv {
	env := &testEnv{
		catalog: &fakeCatalog{products: []apiclient.Product{
			{ID: 1, SKU: "BRK-1001", Name: "Ceramic brake pads", Category: "brakes", Price: decimal.RequireFromString("300.00"), QuantityAvailable: 3},
			{ID: 2, SKU: "FLT-2001", Name: "Oil filter", Category: "filters", Price: decimal.RequireFromString("100.00"), QuantityAvailable: 40},
			{ID: 3, SKU: "SPK-3001", Name: "Spark plug", Category: "ignition", Price: decimal.RequireFromString("9.99"), QuantityAvailable: 0},
		}},
		carts:  newFakeCartStore(),
		orders: newFakeOrders(),
		auth:   session.NewAuthenticator("test-secret"),
	}
	log := logger.Discard()
	env.sessions = session.NewRegistry(func(s *session.Session) *checkout.Flow {
		return checkout.NewFlow(env.orders, checkout.WithUserID(s.Owner()), checkout.WithLogger(log))
	}, time.Hour, time.Hour, log)

	env.router = NewRouter(RouterConfig{
		Catalog:        env.catalog,
		Carts:          env.carts,
		Orders:         env.orders,
		Auth:           env.auth,
		Sessions:       env.sessions,
		Log:            log,
		CallTimeout:    time.Second,
		RequestTimeout: 5 * time.Second,
	})
	return env
}
