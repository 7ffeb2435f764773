package repository

import (
	"context"
	"testing"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItem(productID string, quantity int) domain.CartItem {
	return domain.CartItem{
		Product:     domain.ProductSnapshot{ID: productID, Name: "product " + productID, Stock: 10, IsActive: true},
		Quantity:    quantity,
		PriceAtTime: 100,
		TaxRate:     21,
	}
}

// runStoreContract checks the behaviour every CartStore must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) CartStore) {
	t.Run("GetByUser_NotFound", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetByUser(context.Background(), "nonexistent")
		assert.ErrorIs(t, err, ErrCartNotFound)
	})

	t.Run("UpsertItem_CreatesCart", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		cart, err := store.UpsertItem(ctx, "user123", testItem("p1", 3))
		require.NoError(t, err)
		assert.NotEmpty(t, cart.ID)
		assert.Equal(t, "user123", cart.UserID)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, "p1", cart.Items[0].Product.ID)
		assert.Equal(t, 3, cart.Items[0].Quantity)
		assert.Equal(t, 100.0, cart.Items[0].PriceAtTime)
		assert.Equal(t, 21.0, cart.Items[0].TaxRate)
		assert.False(t, cart.CreatedAt.IsZero())

		stored, err := store.GetByUser(ctx, "user123")
		require.NoError(t, err)
		assert.Equal(t, cart.ID, stored.ID)
		assert.Len(t, stored.Items, 1)
	})

	t.Run("UpsertItem_MergesQuantityAndKeepsSnapshot", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.UpsertItem(ctx, "user123", testItem("p1", 2))
		require.NoError(t, err)

		repriced := testItem("p1", 5)
		repriced.PriceAtTime = 999
		cart, err := store.UpsertItem(ctx, "user123", repriced)
		require.NoError(t, err)

		require.Len(t, cart.Items, 1)
		assert.Equal(t, 7, cart.Items[0].Quantity)
		assert.Equal(t, 100.0, cart.Items[0].PriceAtTime)
	})

	t.Run("UpsertItem_AppendsNewLine", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.UpsertItem(ctx, "user123", testItem("p1", 2))
		require.NoError(t, err)
		cart, err := store.UpsertItem(ctx, "user123", testItem("p2", 1))
		require.NoError(t, err)

		require.Len(t, cart.Items, 2)
		assert.Equal(t, "p1", cart.Items[0].Product.ID)
		assert.Equal(t, "p2", cart.Items[1].Product.ID)
	})

	t.Run("SetItemQuantity_IsAbsolute", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.UpsertItem(ctx, "user123", testItem("p1", 2))
		require.NoError(t, err)

		cart, err := store.SetItemQuantity(ctx, "user123", "p1", 10)
		require.NoError(t, err)
		assert.Equal(t, 10, cart.Items[0].Quantity)
	})

	t.Run("SetItemQuantity_ZeroRemovesLine", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.UpsertItem(ctx, "user123", testItem("p1", 2))
		require.NoError(t, err)
		_, err = store.UpsertItem(ctx, "user123", testItem("p2", 1))
		require.NoError(t, err)

		cart, err := store.SetItemQuantity(ctx, "user123", "p1", 0)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, "p2", cart.Items[0].Product.ID)
	})

	t.Run("SetItemQuantity_MissingLine", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.SetItemQuantity(ctx, "user123", "p1", 3)
		assert.ErrorIs(t, err, ErrItemNotFound)

		_, err = store.UpsertItem(ctx, "user123", testItem("p2", 1))
		require.NoError(t, err)
		_, err = store.SetItemQuantity(ctx, "user123", "p1", 3)
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	t.Run("RemoveItem", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.UpsertItem(ctx, "user123", testItem("p1", 2))
		require.NoError(t, err)
		_, err = store.UpsertItem(ctx, "user123", testItem("p2", 3))
		require.NoError(t, err)

		cart, err := store.RemoveItem(ctx, "user123", "p1")
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, "p2", cart.Items[0].Product.ID)

		// absent line is a no-op
		cart, err = store.RemoveItem(ctx, "user123", "p1")
		require.NoError(t, err)
		assert.Len(t, cart.Items, 1)
	})

	t.Run("RemoveItem_NoCart", func(t *testing.T) {
		store := newStore(t)

		_, err := store.RemoveItem(context.Background(), "user123", "p1")
		assert.ErrorIs(t, err, ErrCartNotFound)
	})

	t.Run("Clear_KeepsRecord", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		created, err := store.UpsertItem(ctx, "user123", testItem("p1", 2))
		require.NoError(t, err)

		cart, err := store.Clear(ctx, "user123")
		require.NoError(t, err)
		assert.Empty(t, cart.Items)
		assert.NotNil(t, cart.Items)

		stored, err := store.GetByUser(ctx, "user123")
		require.NoError(t, err)
		assert.Equal(t, created.ID, stored.ID)
		assert.Empty(t, stored.Items)
	})

	t.Run("Clear_NoCart", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Clear(context.Background(), "user123")
		assert.ErrorIs(t, err, ErrCartNotFound)
	})

	t.Run("CartsAreIsolatedPerUser", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.UpsertItem(ctx, "alice", testItem("p1", 1))
		require.NoError(t, err)
		_, err = store.UpsertItem(ctx, "bob", testItem("p1", 4))
		require.NoError(t, err)

		alice, err := store.GetByUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 1, alice.QuantityOf("p1"))
	})
}
