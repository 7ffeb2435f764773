package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/cache"
	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/product"
	"github.com/fjod/go_cart/cart-engine/internal/repository"
	"golang.org/x/sync/singleflight"
)

// CartService implements the cart use-cases. It validates against the
// product catalog and delegates every mutation to the CartStore. It does not
// lock a user's cart; see repository.CartStore for the consistency model.
type CartService struct {
	products product.Lookup
	store    repository.CartStore
	cache    cache.CartCache
	log      *slog.Logger
	sfg      singleflight.Group // Prevents cache stampede
	now      func() time.Time
}

func NewCartService(products product.Lookup, store repository.CartStore, c cache.CartCache, log *slog.Logger) *CartService {
	if c == nil {
		c = cache.NoopCache{}
	}
	return &CartService{
		products: products,
		store:    store,
		cache:    c,
		log:      log.With("component", "cart_service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

const (
	// loadTimeout bounds a shared cart load, which outlives any single caller.
	loadTimeout  = 5 * time.Second
	cacheTimeout = time.Second
)

// GetCart returns the user's cart, or an empty cart if none was stored.
func (s *CartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if err := validateUserID(userID); err != nil {
		return domain.Cart{}, err
	}

	// Use singleflight to prevent multiple concurrent cache misses for same key.
	// The shared load is detached from the first caller so its cancellation
	// does not fail the others.
	ch := s.sfg.DoChan(userID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.loadCart(loadCtx, userID)
	})

	select {
	case <-ctx.Done():
		return domain.Cart{}, domain.Wrap(ctx.Err(), "failed to get cart")
	case res := <-ch:
		if res.Err != nil {
			s.log.ErrorContext(ctx, "get cart failed", "user_id", userID, "error", res.Err)
			return domain.Cart{}, domain.Wrap(res.Err, "failed to get cart")
		}
		return res.Val.(domain.Cart).Clone(), nil
	}
}

func (s *CartService) loadCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.cache.Get(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.WarnContext(ctx, "cache get failed", "user_id", userID, "error", err)
	}

	cart, err = s.store.GetByUser(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.EmptyCart(userID, s.now()), nil
	}
	if err != nil {
		return domain.Cart{}, err
	}

	cacheCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := s.cache.Set(cacheCtx, userID, cart.Clone()); err != nil {
		s.log.WarnContext(ctx, "cache set failed", "user_id", userID, "error", err)
	}
	return cart, nil
}

// AddItem adds quantity of a product, merging into an existing line. The
// cart is created on first use.
func (s *CartService) AddItem(ctx context.Context, userID string, req AddItemRequest) (domain.Cart, error) {
	if err := validateUserID(userID); err != nil {
		return domain.Cart{}, err
	}
	if err := req.validate(); err != nil {
		return domain.Cart{}, err
	}

	p, err := s.findProduct(ctx, req.ProductID)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := checkAvailable(p); err != nil {
		return domain.Cart{}, err
	}

	current, err := s.storedCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := checkStockForAdd(p, current.QuantityOf(p.ID), req.Quantity); err != nil {
		return domain.Cart{}, err
	}

	cart, err := s.store.UpsertItem(ctx, userID, domain.NewCartItem(p, req.Quantity, s.now()))
	if err != nil {
		s.log.ErrorContext(ctx, "store upsert item failed", "user_id", userID, "product_id", p.ID, "error", err)
		return domain.Cart{}, domain.Wrap(err, "failed to add item to cart")
	}

	s.refreshCache(ctx, cart)
	return cart, nil
}

// UpdateItemQuantity sets the absolute quantity of a line; 0 removes it.
// A line whose product vanished from the catalog is removed instead and the
// resulting cart returned without an error.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID string, req UpdateItemRequest) (domain.Cart, error) {
	if err := validateUserID(userID); err != nil {
		return domain.Cart{}, err
	}
	if err := req.validate(); err != nil {
		return domain.Cart{}, err
	}

	p, err := s.products.FindByID(ctx, req.ProductID)
	if errors.Is(err, product.ErrProductNotFound) {
		return s.dropDanglingItem(ctx, userID, req.ProductID), nil
	}
	if err != nil {
		s.log.ErrorContext(ctx, "product lookup failed", "product_id", req.ProductID, "error", err)
		return domain.Cart{}, domain.Wrap(err, "failed to look up product")
	}
	if err := checkStockForUpdate(p, req.Quantity); err != nil {
		return domain.Cart{}, err
	}

	cart, err := s.store.SetItemQuantity(ctx, userID, req.ProductID, req.Quantity)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrItemNotFound):
		return domain.Cart{}, domain.NotFound("product %q is not in the cart", p.Name)
	case errors.Is(err, repository.ErrCartNotFound):
		return domain.EmptyCart(userID, s.now()), nil
	default:
		s.log.ErrorContext(ctx, "store set quantity failed", "user_id", userID, "product_id", req.ProductID, "error", err)
		return domain.Cart{}, domain.Wrap(err, "failed to update item quantity")
	}

	s.refreshCache(ctx, cart)
	return cart, nil
}

// RemoveItem deletes the line for productID. Removing an absent line is not
// an error.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (domain.Cart, error) {
	if err := validateUserID(userID); err != nil {
		return domain.Cart{}, err
	}
	if err := validateProductID(productID); err != nil {
		return domain.Cart{}, err
	}

	cart, err := s.store.RemoveItem(ctx, userID, productID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.EmptyCart(userID, s.now()), nil
	}
	if err != nil {
		s.log.ErrorContext(ctx, "store remove item failed", "user_id", userID, "product_id", productID, "error", err)
		return domain.Cart{}, domain.Wrap(err, "failed to remove item from cart")
	}

	s.refreshCache(ctx, cart)
	return cart, nil
}

// ClearCart empties the cart. Clearing an empty or missing cart succeeds.
func (s *CartService) ClearCart(ctx context.Context, userID string) (domain.Cart, error) {
	if err := validateUserID(userID); err != nil {
		return domain.Cart{}, err
	}

	cart, err := s.store.Clear(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		s.invalidateCache(ctx, userID)
		return domain.EmptyCart(userID, s.now()), nil
	}
	if err != nil {
		s.log.ErrorContext(ctx, "store clear failed", "user_id", userID, "error", err)
		return domain.Cart{}, domain.Wrap(err, "failed to clear cart")
	}

	s.refreshCache(ctx, cart)
	return cart, nil
}

func (s *CartService) findProduct(ctx context.Context, productID string) (domain.Product, error) {
	p, err := s.products.FindByID(ctx, productID)
	if errors.Is(err, product.ErrProductNotFound) {
		return domain.Product{}, domain.NotFound("product %s not found", productID)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "product lookup failed", "product_id", productID, "error", err)
		return domain.Product{}, domain.Wrap(err, "failed to look up product")
	}
	return p, nil
}

// storedCart reads the cart from the store, bypassing the cache, so stock
// checks see the latest quantities.
func (s *CartService) storedCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.store.GetByUser(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.EmptyCart(userID, s.now()), nil
	}
	if err != nil {
		s.log.ErrorContext(ctx, "store get cart failed", "user_id", userID, "error", err)
		return domain.Cart{}, domain.Wrap(err, "failed to get cart")
	}
	return cart, nil
}

// dropDanglingItem removes a line whose product no longer exists. It never
// fails: if the removal fails it falls back to the stored cart, and then to
// an empty cart.
func (s *CartService) dropDanglingItem(ctx context.Context, userID, productID string) domain.Cart {
	s.log.WarnContext(ctx, "product no longer in catalog, removing cart line",
		"user_id", userID, "product_id", productID)

	cart, err := s.store.RemoveItem(ctx, userID, productID)
	if err == nil {
		s.refreshCache(ctx, cart)
		return cart
	}
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.EmptyCart(userID, s.now())
	}
	s.log.ErrorContext(ctx, "removing dangling cart line failed", "user_id", userID, "product_id", productID, "error", err)

	cart, err = s.store.GetByUser(ctx, userID)
	if err == nil {
		return cart
	}
	return domain.EmptyCart(userID, s.now())
}

// refreshCache replaces the cached cart with the one a mutation returned. If
// that fails the entry is dropped so readers fall back to the store.
func (s *CartService) refreshCache(ctx context.Context, cart domain.Cart) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()
	err := s.cache.Set(ctx, cart.UserID, cart.Clone())
	if err == nil {
		return
	}
	s.log.WarnContext(ctx, "cache refresh failed", "user_id", cart.UserID, "error", err)
	if err := s.cache.Delete(ctx, cart.UserID); err != nil {
		s.log.WarnContext(ctx, "cache invalidate failed", "user_id", cart.UserID, "error", err)
	}
}

func (s *CartService) invalidateCache(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.WarnContext(ctx, "cache invalidate failed", "user_id", userID, "error", err)
	}
}
