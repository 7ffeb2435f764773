package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(*testing.T) CartStore {
		return NewMemoryStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	cart, err := store.UpsertItem(ctx, "user123", testItem("p1", 2))
	require.NoError(t, err)
	cart.Items[0].Quantity = 99

	stored, err := store.GetByUser(ctx, "user123")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Items[0].Quantity)
}

func TestMemoryStore_ConcurrentAddsMerge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpsertItem(ctx, "user123", testItem("p1", 1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cart, err := store.GetByUser(ctx, "user123")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 50, cart.Items[0].Quantity)
}
