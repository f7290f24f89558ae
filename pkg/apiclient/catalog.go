package apiclient

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
)

// Product is the catalog's view of a part.
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
}

type ProductQuery struct {
	Search   string
	Category string
}

type productsResponse struct {
	Products []Product `json:"products"`
}

// CatalogClient talks to product-service.
type CatalogClient struct {
	c *Client
}

func NewCatalogClient(c *Client) *CatalogClient {
	return &CatalogClient{c: c}
}

func (cc *CatalogClient) ListProducts(ctx context.Context, q ProductQuery) ([]Product, error) {
	params := url.Values{}
	if q.Search != "" {
		params.Set("q", q.Search)
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	path := "/api/v1/products"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp productsResponse
	if err := cc.c.Get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

func (cc *CatalogClient) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	if err := cc.c.Get(ctx, fmt.Sprintf("/api/v1/products/%d", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
