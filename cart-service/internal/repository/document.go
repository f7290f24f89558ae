package repository

import (
	"fmt"
	"time"

	"github.com/fjod/partshop/cart-service/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Prices are stored as strings so no float ever touches money.
type cartDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	Items     []itemDocument     `bson:"items"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

type itemDocument struct {
	ProductID int64     `bson:"product_id"`
	SKU       string    `bson:"sku"`
	Name      string    `bson:"name"`
	UnitPrice string    `bson:"unit_price"`
	Quantity  int       `bson:"quantity"`
	AddedAt   time.Time `bson:"added_at"`
}

func toItemDocument(item domain.CartItem) itemDocument {
	return itemDocument{
		ProductID: item.ProductID,
		SKU:       item.SKU,
		Name:      item.Name,
		UnitPrice: item.UnitPrice.StringFixed(2),
		Quantity:  item.Quantity,
		AddedAt:   item.AddedAt,
	}
}

func (d cartDocument) toDomain() (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		Items:     make([]domain.CartItem, 0, len(d.Items)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, it := range d.Items {
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("product %d has bad unit_price %q: %w", it.ProductID, it.UnitPrice, err)
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Name:      it.Name,
			UnitPrice: price,
			Quantity:  it.Quantity,
			AddedAt:   it.AddedAt,
		})
	}
	return cart, nil
}
