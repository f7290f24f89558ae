package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/partshop/orders-service/internal/domain"
	"github.com/fjod/partshop/orders-service/internal/repository"
	"github.com/fjod/partshop/orders-service/internal/service"
	"github.com/fjod/partshop/pkg/httputil"
	"github.com/fjod/partshop/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	created    []service.CreateOrderInput
	createErr  error
	confirmErr error
	orders     map[string]*domain.Order
	summaries  []domain.OrderSummary
	listUser   string
	stats      *domain.Stats
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]*domain.Order)}
}

func (f *fakeStore) CreateOrder(_ context.Context, in service.CreateOrderInput) (*domain.Order, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, in)
	o := &domain.Order{
		OrderNumber: fmt.Sprintf("ORD-20260301-%08X", len(f.created)),
		UserID:      in.UserID,
		Status:      domain.OrderStatusPending,
		Subtotal:    in.Totals.Subtotal,
		ShippingFee: in.Totals.ShippingFee,
		Tax:         in.Totals.Tax,
		TotalAmount: in.Totals.Total,
		CreatedAt:   time.Now(),
	}
	f.orders[o.OrderNumber] = o
	return o, nil
}

func (f *fakeStore) ConfirmPayment(_ context.Context, orderNumber string) (*domain.Order, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	o, ok := f.orders[orderNumber]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	o.Status = domain.OrderStatusConfirmed
	o.PaymentID = "txn_1"
	return o, nil
}

func (f *fakeStore) GetOrder(_ context.Context, orderNumber string) (*domain.Order, error) {
	o, ok := f.orders[orderNumber]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeStore) ListOrders(_ context.Context, userID string) ([]domain.OrderSummary, error) {
	f.listUser = userID
	return f.summaries, nil
}

func (f *fakeStore) Stats(context.Context) (*domain.Stats, error) {
	if f.stats == nil {
		return nil, errors.New("stats unavailable")
	}
	return f.stats, nil
}

func newTestServer(store OrderStore) *httptest.Server {
	h := NewOrderHandler(store, time.Second, logger.Discard())
	return httptest.NewServer(NewRouter(h, logger.Discard()))
}

const createBody = `{
	"user_id": "user-1",
	"customer_email": "jane@example.com",
	"customer_name": "Jane Doe",
	"customer_phone": "555-0100",
	"billing_address_line1": "1 Main St",
	"billing_address_line2": "",
	"billing_city": "Springfield",
	"billing_state": "IL",
	"billing_zip": "62701",
	"billing_country": "US",
	"shipping_address_line1": "",
	"shipping_address_line2": "",
	"shipping_city": "",
	"shipping_state": "",
	"shipping_zip": "",
	"shipping_country": "US",
	"same_as_billing": true,
	"payment_method": "credit_card",
	"notes": "leave at the door",
	"items": [{"product_id": 1, "sku": "BRK-1001", "name": "Ceramic brake pads", "unit_price": "300.00", "quantity": 1}],
	"subtotal": "300.00",
	"shipping_fee": "25.00",
	"tax": "24.00",
	"total_amount": "349.00"
}`

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) httputil.ErrorBody {
	t.Helper()
	var body httputil.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestCreateOrder(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(store)
	defer srv.Close()

	resp := post(t, srv.URL+"/api/v1/orders", createBody)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var order domain.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&order))
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "349.00", order.TotalAmount.StringFixed(2))

	require.Len(t, store.created, 1)
	in := store.created[0]
	assert.True(t, in.SameAsBilling)
	assert.Equal(t, "Springfield", in.Billing.City)
	assert.Equal(t, "leave at the door", in.Notes)
	require.Len(t, in.Items, 1)
	assert.True(t, in.Items[0].UnitPrice.Equal(decimal.RequireFromString("300")))
	assert.Equal(t, "25.00", in.Totals.ShippingFee.StringFixed(2))
}

func TestCreateOrder_InvalidJSON(t *testing.T) {
	srv := newTestServer(newFakeStore())
	defer srv.Close()

	resp := post(t, srv.URL+"/api/v1/orders", `{"user_id": "u", "coupon": "FREE"}`)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_json", decodeError(t, resp).Code)
}

func TestCreateOrder_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &service.RejectionError{Kind: service.ErrValidation, Field: "customer_email", Message: "customer_email is required"}, http.StatusUnprocessableEntity, "validation_failed"},
		{"stock", &service.RejectionError{Kind: service.ErrInsufficientStock, Field: "items", Message: "Insufficient stock for Oil filter"}, http.StatusConflict, "insufficient_stock"},
		{"price", &service.RejectionError{Kind: service.ErrPriceChanged, Field: "items", Message: "The price changed"}, http.StatusConflict, "price_changed"},
		{"totals", &service.RejectionError{Kind: service.ErrTotalsMismatch, Field: "total_amount", Message: "Order totals do not match"}, http.StatusUnprocessableEntity, "totals_mismatch"},
		{"gone", &service.RejectionError{Kind: service.ErrProductUnavailable, Field: "items", Message: "Oil filter is no longer available"}, http.StatusUnprocessableEntity, "product_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.createErr = tt.err
			srv := newTestServer(store)
			defer srv.Close()

			resp := post(t, srv.URL+"/api/v1/orders", createBody)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			body := decodeError(t, resp)
			assert.Equal(t, tt.code, body.Code)
			var rej *service.RejectionError
			require.ErrorAs(t, tt.err, &rej)
			assert.Equal(t, rej.Message, body.Error)
			assert.Equal(t, rej.Field, body.Details)
		})
	}
}

func TestCreateOrder_CatalogUnavailable(t *testing.T) {
	store := newFakeStore()
	store.createErr = fmt.Errorf("%w: breaker open", service.ErrCatalogUnavailable)
	srv := newTestServer(store)
	defer srv.Close()

	resp := post(t, srv.URL+"/api/v1/orders", createBody)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "catalog_unavailable", decodeError(t, resp).Code)
}

func TestCreateOrder_InternalErrorHidesCause(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("pq: connection refused")
	srv := newTestServer(store)
	defer srv.Close()

	resp := post(t, srv.URL+"/api/v1/orders", createBody)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeError(t, resp)
	assert.NotContains(t, body.Error, "pq")
}

func TestConfirmPayment(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(store)
	defer srv.Close()

	created := post(t, srv.URL+"/api/v1/orders", createBody)
	created.Body.Close()

	resp := post(t, srv.URL+"/api/v1/orders/ORD-20260301-00000001/confirm-payment", "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var order domain.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&order))
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
	assert.Equal(t, "txn_1", order.PaymentID)
}

func TestConfirmPayment_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"missing", nil, http.StatusNotFound},
		{"provider down", fmt.Errorf("%w: timeout", service.ErrPaymentUnavailable), http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.confirmErr = tt.err
			srv := newTestServer(store)
			defer srv.Close()

			resp := post(t, srv.URL+"/api/v1/orders/ORD-20260301-DEADBEEF/confirm-payment", "")
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestListOrders(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/orders?user_id=user-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body OrdersResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotNil(t, body.Orders)
	assert.Empty(t, body.Orders)
	assert.Equal(t, "user-1", store.listUser)
}

func TestGetOrder_NotFound(t *testing.T) {
	srv := newTestServer(newFakeStore())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/orders/ORD-20260301-DEADBEEF")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, resp).Code)
}

func TestStats(t *testing.T) {
	store := newFakeStore()
	store.stats = &domain.Stats{
		TotalOrders:    3,
		OrdersByStatus: map[string]int{"confirmed": 2, "pending": 1},
		TotalRevenue:   decimal.RequireFromString("699.97"),
	}
	srv := newTestServer(store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.EqualValues(t, 3, body["total_orders"])
	assert.Equal(t, "699.97", body["total_revenue"])
}

func TestHealth(t *testing.T) {
	srv := newTestServer(newFakeStore())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
