package cache

import (
	"context"
	"errors"

	"github.com/fjod/partshop/cart-service/internal/domain"
)

// CartCache is a read-through copy of carts keyed by user. Entries are
// dropped on every mutation, never updated in place.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")
