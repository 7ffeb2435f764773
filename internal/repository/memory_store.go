package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore implements CartStore in process memory. Used for local runs
// without MongoDB and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart // userID -> cart
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		carts: make(map[string]domain.Cart),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetByUser(_ context.Context, userID string) (domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[userID]
	if !ok {
		return domain.Cart{}, ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (s *MemoryStore) UpsertItem(_ context.Context, userID string, item domain.CartItem) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cart, ok := s.carts[userID]
	if !ok {
		cart = domain.Cart{
			ID:        uuid.NewString(),
			UserID:    userID,
			CreatedAt: now,
		}
	}
	cart = cart.Clone()

	merged := false
	for i := range cart.Items {
		if cart.Items[i].Product.ID == item.Product.ID {
			cart.Items[i].Quantity += item.Quantity
			merged = true
			break
		}
	}
	if !merged {
		item.AddedAt = now
		cart.Items = append(cart.Items, item)
	}

	return s.save(cart, now), nil
}

func (s *MemoryStore) SetItemQuantity(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[userID]
	if !ok {
		return domain.Cart{}, ErrItemNotFound
	}
	cart = cart.Clone()

	for i := range cart.Items {
		if cart.Items[i].Product.ID == productID {
			cart.Items[i].Quantity = quantity
			return s.save(cart, s.now()), nil
		}
	}
	return domain.Cart{}, ErrItemNotFound
}

func (s *MemoryStore) RemoveItem(_ context.Context, userID, productID string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[userID]
	if !ok {
		return domain.Cart{}, ErrCartNotFound
	}

	kept := make([]domain.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.Product.ID != productID {
			kept = append(kept, item)
		}
	}
	cart.Items = kept

	return s.save(cart, s.now()), nil
}

func (s *MemoryStore) Clear(_ context.Context, userID string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[userID]
	if !ok {
		return domain.Cart{}, ErrCartNotFound
	}
	cart.Items = []domain.CartItem{}

	return s.save(cart, s.now()), nil
}

// save stores cart and hands back an independent copy. Callers hold s.mu.
func (s *MemoryStore) save(cart domain.Cart, now time.Time) domain.Cart {
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	cart.UpdatedAt = now
	s.carts[cart.UserID] = cart
	return cart.Clone()
}
