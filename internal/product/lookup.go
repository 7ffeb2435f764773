package product

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
)

var ErrProductNotFound = errors.New("product not found")

// Lookup returns the canonical catalog data for a product.
// A missing product is reported as ErrProductNotFound.
type Lookup interface {
	FindByID(ctx context.Context, id string) (domain.Product, error)
}

// BreakerLookup guards a Lookup with a circuit breaker. Not-found answers
// are healthy responses and never trip it.
type BreakerLookup struct {
	next Lookup
	cb   *gobreaker.CircuitBreaker[domain.Product]
}

func NewBreakerLookup(next Lookup, opts circuitbreaker.Options, log *slog.Logger) *BreakerLookup {
	// Missing products and abandoned calls do not count as catalog failures.
	opts.IsSuccessful = func(err error) bool {
		return err == nil ||
			errors.Is(err, ErrProductNotFound) ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded)
	}
	return &BreakerLookup{
		next: next,
		cb:   circuitbreaker.New[domain.Product](opts, log),
	}
}

func (b *BreakerLookup) FindByID(ctx context.Context, id string) (domain.Product, error) {
	p, err := b.cb.Execute(func() (domain.Product, error) {
		return b.next.FindByID(ctx, id)
	})
	if err != nil && circuitbreaker.IsOpen(err) {
		return domain.Product{}, fmt.Errorf("product lookup unavailable: %w", err)
	}
	return p, err
}
