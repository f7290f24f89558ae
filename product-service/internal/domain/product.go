package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                int64           `json:"id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Brand             string          `json:"brand"`
	Category          string          `json:"category"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	QuantityAvailable int             `json:"quantity_available"`
	ImageURL          string          `json:"image_url"`
	CreatedAt         time.Time       `json:"created_at"`
}
