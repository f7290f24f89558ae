package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity caps a single line.
const MaxQuantity = 99

var (
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 99")
	ErrInvalidPrice    = errors.New("unit_price must not be negative")
	ErrInvalidProduct  = errors.New("product_id must be greater than 0")
)

type Cart struct {
	ID        string     `json:"id,omitempty"`
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartItem keeps the price the shopper saw when adding the part; the
// gateway refreshes it from the catalog on every add.
type CartItem struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"added_at"`
}

func (i CartItem) Validate() error {
	if i.ProductID <= 0 {
		return ErrInvalidProduct
	}
	if i.Quantity < 1 || i.Quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	if i.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

func (c *Cart) TotalItems() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) Item(productID int64) (CartItem, bool) {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return CartItem{}, false
}

// Empty returns the cart a user has before adding anything.
func Empty(userID string) *Cart {
	now := time.Now()
	return &Cart{
		UserID:    userID,
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
