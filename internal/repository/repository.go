package repository

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

// CartStore persists one cart per user and returns the full cart after every
// mutation.
//
// Concurrent mutations of the same cart are not serialized by callers. Each
// method must be a single atomic update of the user's cart, and the last
// writer wins. There is no version token or conditional update; add one here
// if stronger guarantees are ever needed.
//
// Retention: a store may expire carts left untouched for a while. MongoStore
// drops a cart 90 days after its last update. An expired cart reads as
// ErrCartNotFound, which the service already treats as an empty cart, so
// expiry is indistinguishable from a cart that was never used.
type CartStore interface {
	// GetByUser returns ErrCartNotFound if nothing was stored for userID.
	GetByUser(ctx context.Context, userID string) (domain.Cart, error)

	// UpsertItem adds item.Quantity to the existing line for the product,
	// keeping its original price snapshot, or appends item as a new line.
	// The cart is created if needed.
	UpsertItem(ctx context.Context, userID string, item domain.CartItem) (domain.Cart, error)

	// SetItemQuantity sets the absolute quantity of an existing line.
	// Quantity 0 removes the line. Returns ErrItemNotFound if a positive
	// quantity targets a line that is not in the cart.
	SetItemQuantity(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error)

	// RemoveItem deletes the line if present. Returns ErrCartNotFound if the
	// user has no cart.
	RemoveItem(ctx context.Context, userID, productID string) (domain.Cart, error)

	// Clear empties the cart but keeps the record. Returns ErrCartNotFound if
	// the user has no cart.
	Clear(ctx context.Context, userID string) (domain.Cart, error)
}
