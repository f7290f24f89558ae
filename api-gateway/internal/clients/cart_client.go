// Package clients adapts the collaborator REST APIs to the gateway's types.
package clients

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/fjod/partshop/api-gateway/internal/cart"
	"github.com/fjod/partshop/pkg/apiclient"
	"github.com/shopspring/decimal"
)

type cartItemDTO struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"added_at,omitempty"`
}

type cartDTO struct {
	UserID string        `json:"user_id"`
	Items  []cartItemDTO `json:"items"`
}

type addItemRequest struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// CartClient talks to cart-service. Every call returns the stored items so
// the local cart can be resynced from the answer.
type CartClient struct {
	c *apiclient.Client
}

func NewCartClient(c *apiclient.Client) *CartClient {
	return &CartClient{c: c}
}

func cartPath(owner string) string {
	return "/api/v1/carts/" + url.PathEscape(owner)
}

func (cc *CartClient) GetCart(ctx context.Context, owner string) ([]cart.Item, error) {
	var out cartDTO
	if err := cc.c.Get(ctx, cartPath(owner), &out); err != nil {
		return nil, err
	}
	return toItems(out), nil
}

func (cc *CartClient) AddItem(ctx context.Context, owner string, item cart.Item, quantity int) ([]cart.Item, error) {
	in := addItemRequest{
		ProductID: item.ProductID,
		SKU:       item.SKU,
		Name:      item.Name,
		UnitPrice: item.UnitPrice,
		Quantity:  quantity,
	}
	var out cartDTO
	if err := cc.c.Post(ctx, cartPath(owner)+"/items", in, &out); err != nil {
		return nil, err
	}
	return toItems(out), nil
}

func (cc *CartClient) UpdateQuantity(ctx context.Context, owner string, productID int64, quantity int) ([]cart.Item, error) {
	var out cartDTO
	path := fmt.Sprintf("%s/items/%d", cartPath(owner), productID)
	if err := cc.c.Put(ctx, path, updateQuantityRequest{Quantity: quantity}, &out); err != nil {
		return nil, err
	}
	return toItems(out), nil
}

func (cc *CartClient) RemoveItem(ctx context.Context, owner string, productID int64) ([]cart.Item, error) {
	var out cartDTO
	path := fmt.Sprintf("%s/items/%d", cartPath(owner), productID)
	if err := cc.c.Delete(ctx, path, &out); err != nil {
		return nil, err
	}
	return toItems(out), nil
}

func (cc *CartClient) Clear(ctx context.Context, owner string) error {
	return cc.c.Delete(ctx, cartPath(owner), nil)
}

func toItems(dto cartDTO) []cart.Item {
	items := make([]cart.Item, 0, len(dto.Items))
	for _, it := range dto.Items {
		items = append(items, cart.Item{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	return items
}
