package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/partshop/cart-service/internal/cache"
	"github.com/fjod/partshop/cart-service/internal/domain"
	"github.com/fjod/partshop/cart-service/internal/repository"
	"github.com/fjod/partshop/pkg/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const cacheOpTimeout = time.Second

type CartService struct {
	repo  repository.CartRepository
	cache cache.CartCache
	sfg   singleflight.Group // Prevents cache stampede
	log   *logrus.Entry
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, log *logrus.Entry) *CartService {
	if log == nil {
		log = logger.Discard()
	}
	return &CartService{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// GetCart never reports a missing cart: a user without one gets an empty cart.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.WithContext(ctx, s.log).WithError(err).Warn("cache get failed")
		}

		cart, err = s.load(ctx, userID)
		if err != nil {
			return nil, err
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
		defer cancel()
		if err := s.cache.Set(setCtx, userID, cart); err != nil {
			logger.WithContext(ctx, s.log).WithError(err).Warn("cache set failed")
		}

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddItem merges the line into the cart and returns the stored cart.
func (s *CartService) AddItem(ctx context.Context, userID string, item domain.CartItem) (*domain.Cart, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.AddItem(ctx, userID, item); err != nil {
		logger.WithContext(ctx, s.log).WithError(err).WithField("product_id", item.ProductID).Error("repo add item failed")
		return nil, err
	}

	s.invalidateCache(ctx, userID)
	return s.load(ctx, userID)
}

// UpdateQuantity sets the line quantity; zero removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, userID string, productID int64, quantity int) (*domain.Cart, error) {
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, productID)
	}
	if quantity < 0 || quantity > domain.MaxQuantity {
		return nil, domain.ErrInvalidQuantity
	}

	if err := s.repo.UpdateItemQuantity(ctx, userID, productID, quantity); err != nil {
		if !errors.Is(err, repository.ErrItemNotFound) {
			logger.WithContext(ctx, s.log).WithError(err).Error("repo update item quantity failed")
		}
		return nil, err
	}

	s.invalidateCache(ctx, userID)
	return s.load(ctx, userID)
}

// RemoveItem succeeds whether or not the line was present.
func (s *CartService) RemoveItem(ctx context.Context, userID string, productID int64) (*domain.Cart, error) {
	err := s.repo.RemoveItem(ctx, userID, productID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		logger.WithContext(ctx, s.log).WithError(err).Error("repo remove item failed")
		return nil, err
	}

	s.invalidateCache(ctx, userID)
	return s.load(ctx, userID)
}

// ClearCart is idempotent.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		logger.WithContext(ctx, s.log).WithError(err).Error("repo delete cart failed")
		return err
	}

	s.invalidateCache(ctx, userID)
	return nil
}

func (s *CartService) load(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.Empty(userID), nil
	}
	if err != nil {
		return nil, err
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart, nil
}

func (s *CartService) invalidateCache(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		logger.WithContext(ctx, s.log).WithError(err).WithField("user_id", userID).Warn("cache invalidate failed")
	}
}
