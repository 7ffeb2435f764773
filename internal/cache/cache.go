package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
)

// CartCache is a read-through copy of stored carts keyed by user.
// It is never the source of truth. Set keeps the newer of the cached and the
// given cart, judged by UpdatedAt.
type CartCache interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Set(ctx context.Context, userID string, cart domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// NoopCache always misses. Used when Redis is disabled.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (domain.Cart, error) {
	return domain.Cart{}, ErrCacheMiss
}

func (NoopCache) Set(context.Context, string, domain.Cart) error { return nil }

func (NoopCache) Delete(context.Context, string) error { return nil }
