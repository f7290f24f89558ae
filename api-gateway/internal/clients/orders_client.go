package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fjod/partshop/api-gateway/internal/checkout"
	"github.com/fjod/partshop/pkg/apiclient"
	"github.com/shopspring/decimal"
)

type createOrderRequest struct {
	UserID string `json:"user_id"`
	checkout.Form
	Items       []checkout.OrderItem `json:"items"`
	Subtotal    decimal.Decimal      `json:"subtotal"`
	ShippingFee decimal.Decimal      `json:"shipping_fee"`
	Tax         decimal.Decimal      `json:"tax"`
	TotalAmount decimal.Decimal      `json:"total_amount"`
}

// OrderSummary is an order as listed on the customer's order page.
type OrderSummary struct {
	OrderNumber string          `json:"order_number"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ordersResponse struct {
	Orders []OrderSummary `json:"orders"`
}

type OrderLine struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// OrderDetail is a single order with its lines and addresses.
type OrderDetail struct {
	OrderNumber     string           `json:"order_number"`
	UserID          string           `json:"user_id"`
	Status          string           `json:"status"`
	CustomerEmail   string           `json:"customer_email"`
	CustomerName    string           `json:"customer_name"`
	BillingAddress  checkout.Address `json:"billing_address"`
	ShippingAddress checkout.Address `json:"shipping_address"`
	Items           []OrderLine      `json:"items"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	ShippingFee     decimal.Decimal  `json:"shipping_fee"`
	Tax             decimal.Decimal  `json:"tax"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	PaymentID       string           `json:"payment_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type TopProduct struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

// OrderStats is the order-side half of the admin dashboard.
type OrderStats struct {
	TotalOrders       int             `json:"total_orders"`
	OrdersByStatus    map[string]int  `json:"orders_by_status"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	TopProducts       []TopProduct    `json:"top_products"`
}

// OrdersClient talks to orders-service. It is the checkout's OrderPlacer.
type OrdersClient struct {
	c *apiclient.Client
}

var _ checkout.OrderPlacer = (*OrdersClient)(nil)

func NewOrdersClient(c *apiclient.Client) *OrdersClient {
	return &OrdersClient{c: c}
}

func (oc *OrdersClient) CreateOrder(ctx context.Context, req checkout.OrderRequest) (*checkout.Order, error) {
	in := createOrderRequest{
		UserID:      req.UserID,
		Form:        req.Form,
		Items:       req.Items,
		Subtotal:    req.Totals.Subtotal,
		ShippingFee: req.Totals.ShippingFee,
		Tax:         req.Totals.Tax,
		TotalAmount: req.Totals.Total,
	}
	var out checkout.Order
	if err := oc.c.Post(ctx, "/api/v1/orders", in, &out); err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (oc *OrdersClient) ConfirmPayment(ctx context.Context, orderNumber string) (*checkout.Order, error) {
	var out checkout.Order
	path := fmt.Sprintf("/api/v1/orders/%s/confirm-payment", url.PathEscape(orderNumber))
	if err := oc.c.Post(ctx, path, nil, &out); err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (oc *OrdersClient) ListOrders(ctx context.Context, userID string) ([]OrderSummary, error) {
	var out ordersResponse
	if err := oc.c.Get(ctx, "/api/v1/orders?user_id="+url.QueryEscape(userID), &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (oc *OrdersClient) GetOrder(ctx context.Context, orderNumber string) (*OrderDetail, error) {
	var out OrderDetail
	if err := oc.c.Get(ctx, "/api/v1/orders/"+url.PathEscape(orderNumber), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (oc *OrdersClient) Stats(ctx context.Context) (*OrderStats, error) {
	var out OrderStats
	if err := oc.c.Get(ctx, "/api/v1/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// translate maps transport errors onto the checkout error taxonomy.
func translate(err error) error {
	var apiErr *apiclient.Error
	switch {
	case errors.As(err, &apiErr):
		return &checkout.CollaboratorError{Status: apiErr.Status, Message: apiErr.Message, Err: err}
	case errors.Is(err, apiclient.ErrMalformedResponse):
		return fmt.Errorf("%w: %v", checkout.ErrMalformedResponse, err)
	case errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, apiclient.ErrUnavailable):
		return &checkout.CollaboratorError{
			Status:  http.StatusServiceUnavailable,
			Message: "The order service is unavailable. Please try again shortly.",
			Err:     err,
		}
	}
	return err
}
