// Package cart is the storefront's view of a customer's cart. Totals are
// always derived from the item list; nothing aggregated is stored.
package cart

import (
	"errors"

	"github.com/fjod/partshop/pkg/pricing"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
	ErrInvalidPrice      = errors.New("unit price must not be negative")
	ErrItemNotFound      = errors.New("item not found in cart")
	ErrInsufficientStock = errors.New("requested quantity exceeds available stock")
)

// Item is a cart line. QuantityAvailable of 0 means the stock level is unknown
// and the quantity is not bounded locally.
type Item struct {
	ProductID         int64           `json:"product_id"`
	SKU               string          `json:"sku,omitempty"`
	Name              string          `json:"name"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Quantity          int             `json:"quantity"`
	QuantityAvailable int             `json:"quantity_available,omitempty"`
}

func (i Item) Subtotal() decimal.Decimal {
	return pricing.LineSubtotal(i.UnitPrice, i.Quantity)
}

func (i Item) LinePrice() decimal.Decimal { return i.UnitPrice }
func (i Item) LineQuantity() int          { return i.Quantity }

func (i Item) fits(quantity int) bool {
	return i.QuantityAvailable <= 0 || quantity <= i.QuantityAvailable
}

type Cart struct {
	items []Item
}

func New(items ...Item) *Cart {
	c := &Cart{}
	c.Replace(items)
	return c
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) Len() int {
	return len(c.items)
}

func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// Item returns the line for productID.
func (c *Cart) Item(productID int64) (Item, bool) {
	if i := c.index(productID); i >= 0 {
		return c.items[i], true
	}
	return Item{}, false
}

// AddItem appends line with the given quantity, or increments the quantity of
// the existing line for the same product. The existing line's price is
// refreshed from line. Stock is checked against the resulting quantity.
func (c *Cart) AddItem(line Item, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if line.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}

	if i := c.index(line.ProductID); i >= 0 {
		merged := c.items[i]
		merged.UnitPrice = line.UnitPrice
		if line.QuantityAvailable > 0 {
			merged.QuantityAvailable = line.QuantityAvailable
		}
		if line.Name != "" {
			merged.Name = line.Name
		}
		if line.SKU != "" {
			merged.SKU = line.SKU
		}
		merged.Quantity += quantity
		if !merged.fits(merged.Quantity) {
			return ErrInsufficientStock
		}
		c.items[i] = merged
		return nil
	}

	line.Quantity = quantity
	if !line.fits(line.Quantity) {
		return ErrInsufficientStock
	}
	c.items = append(c.items, line)
	return nil
}

// UpdateQuantity sets the quantity of a line. Zero removes the line; a
// negative value is rejected and leaves the cart unchanged.
func (c *Cart) UpdateQuantity(productID int64, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	i := c.index(productID)
	if i < 0 {
		return ErrItemNotFound
	}
	if quantity == 0 {
		c.RemoveItem(productID)
		return nil
	}
	if !c.items[i].fits(quantity) {
		return ErrInsufficientStock
	}
	c.items[i].Quantity = quantity
	return nil
}

// RemoveItem deletes the line for productID if there is one.
func (c *Cart) RemoveItem(productID int64) {
	i := c.index(productID)
	if i < 0 {
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
}

func (c *Cart) Clear() {
	c.items = nil
}

// CanIncrement reports whether one more unit of productID fits the known stock.
func (c *Cart) CanIncrement(productID int64) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	return c.items[i].fits(c.items[i].Quantity + 1)
}

// Replace swaps the item list, e.g. after reloading from the cart store.
// Stock levels already known for a product are kept when the new line has none.
// Lines with a non-positive quantity are dropped.
func (c *Cart) Replace(items []Item) {
	known := make(map[int64]int, len(c.items))
	for _, it := range c.items {
		known[it.ProductID] = it.QuantityAvailable
	}

	next := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			continue
		}
		if it.QuantityAvailable <= 0 {
			it.QuantityAvailable = known[it.ProductID]
		}
		next = append(next, it)
	}
	c.items = next
}

// Clone returns an independent copy, used to try a mutation before committing it.
func (c *Cart) Clone() *Cart {
	return &Cart{items: c.Items()}
}

// TotalItems is the sum of quantities.
func (c *Cart) TotalItems() int {
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// TotalAmount is the sum of line subtotals.
func (c *Cart) TotalAmount() decimal.Decimal {
	return pricing.Subtotal(c.items)
}

// Totals derives subtotal, shipping, tax and total from the current lines.
func (c *Cart) Totals() pricing.Totals {
	return pricing.ForLines(c.items)
}

func (c *Cart) index(productID int64) int {
	for i := range c.items {
		if c.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}
