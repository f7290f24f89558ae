package checkout

import (
	"context"
	"time"

	"github.com/fjod/partshop/pkg/pricing"
	"github.com/shopspring/decimal"
)

// OrderPlacer is the order service as seen from checkout.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	ConfirmPayment(ctx context.Context, orderNumber string) (*Order, error)
}

type OrderItem struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku,omitempty"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// OrderRequest is the immutable snapshot sent when the order is placed.
type OrderRequest struct {
	UserID string      `json:"user_id"`
	Form   Form        `json:"form"`
	Items  []OrderItem `json:"items"`
	// Totals as shown to the customer; the order service recomputes and compares.
	Totals pricing.Totals `json:"totals"`
}

type Order struct {
	OrderNumber string          `json:"order_number"`
	Status      string          `json:"status"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Tax         decimal.Decimal `json:"tax"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaymentID   string          `json:"payment_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
