package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client, 15*time.Minute), mr
}

func sampleCart(userID string) domain.Cart {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return domain.Cart{
		ID:     "cart-1",
		UserID: userID,
		Items: []domain.CartItem{
			{
				Product:     domain.ProductSnapshot{ID: "p1", Name: "Desk Lamp", Stock: 5, IsActive: true},
				Quantity:    2,
				PriceAtTime: 100,
				TaxRate:     21,
				AddedAt:     now,
			},
			{
				Product:     domain.ProductSnapshot{ID: "p2", Name: "Notebook", Stock: 40, IsActive: true},
				Quantity:    3,
				PriceAtTime: 19.99,
				TaxRate:     21,
				AddedAt:     now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestGet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)
	userID := "user123"

	cartJSON, err := json.Marshal(sampleCart(userID))
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey(userID), string(cartJSON)))

	result, err := cache.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, userID, result.UserID)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "p1", result.Items[0].Product.ID)
	assert.Equal(t, 19.99, result.Items[1].PriceAtTime)
	assert.Equal(t, 314.57, result.Total())
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	_, err := cache.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	userID := "user123"

	jsonCart, err := json.Marshal(sampleCart(userID))
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey(userID), string(jsonCart[0:10])))

	_, err = cache.Get(context.Background(), userID)
	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestGet_RedisDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), "user123")
	require.ErrorContains(t, err, "redis get failed")
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_RoundTrip(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	userID := "user456"
	want := sampleCart(userID)

	require.NoError(t, cache.Set(ctx, userID, want))
	assert.True(t, mr.Exists(cacheKey(userID)))

	got, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	require.Len(t, got.Items, len(want.Items))
	for i := range want.Items {
		assert.Equal(t, want.Items[i].Product, got.Items[i].Product)
		assert.Equal(t, want.Items[i].Quantity, got.Items[i].Quantity)
		assert.True(t, want.Items[i].AddedAt.Equal(got.Items[i].AddedAt))
	}
	assert.Equal(t, want.Total(), got.Total())
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
}

func TestSet_EmptyCartStaysNonNil(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user1", domain.Cart{UserID: "user1"}))

	got, err := cache.Get(ctx, "user1")
	require.NoError(t, err)
	assert.NotNil(t, got.Items)
	assert.Empty(t, got.Items)
}

func TestSet_WithTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)
	userID := "user789"

	err := cache.Set(context.Background(), userID, domain.Cart{UserID: userID, Items: []domain.CartItem{}})
	require.NoError(t, err)

	ttl := mr.TTL(cacheKey(userID))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute, "TTL should be at least base TTL")
	assert.LessOrEqual(t, ttl, 20*time.Minute, "TTL should be base + max jitter")
}

func TestSet_OlderCartDoesNotOverwriteNewer(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()
	userID := "user321"

	older := sampleCart(userID)
	newer := sampleCart(userID)
	newer.UpdatedAt = older.UpdatedAt.Add(time.Second)
	newer.Items = newer.Items[:1]

	require.NoError(t, cache.Set(ctx, userID, newer))
	require.NoError(t, cache.Set(ctx, userID, older))

	got, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1, "stale cart replaced the newer one")
	assert.True(t, newer.UpdatedAt.Equal(got.UpdatedAt))
}

func TestSet_NewerCartReplacesOlder(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()
	userID := "user654"

	older := sampleCart(userID)
	newer := sampleCart(userID)
	newer.UpdatedAt = older.UpdatedAt.Add(time.Second)
	newer.Items = []domain.CartItem{}

	require.NoError(t, cache.Set(ctx, userID, older))
	require.NoError(t, cache.Set(ctx, userID, newer))

	got, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestDelete_ResetsVersion(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	userID := "user987"

	newer := sampleCart(userID)
	newer.UpdatedAt = newer.UpdatedAt.Add(time.Hour)
	require.NoError(t, cache.Set(ctx, userID, newer))
	require.NoError(t, cache.Delete(ctx, userID))
	assert.False(t, mr.Exists(versionKey(userID)))

	older := sampleCart(userID)
	require.NoError(t, cache.Set(ctx, userID, older))
	got, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, older.UpdatedAt.Equal(got.UpdatedAt))
}

func TestDelete_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)
	userID := "user999"

	require.NoError(t, mr.Set(cacheKey(userID), `{"userId":"user999"}`))
	assert.True(t, mr.Exists(cacheKey(userID)))

	require.NoError(t, cache.Delete(context.Background(), userID))
	assert.False(t, mr.Exists(cacheKey(userID)))
}

func TestDelete_NonExistentKey(t *testing.T) {
	cache, _ := setupTestRedis(t)

	assert.NoError(t, cache.Delete(context.Background(), "nonexistent"))
}

func TestPing(t *testing.T) {
	cache, _ := setupTestRedis(t)

	assert.NoError(t, cache.Ping(context.Background()))
}

func TestCacheKey_Format(t *testing.T) {
	assert.Equal(t, "cart:test123", cacheKey("test123"))
}

func TestNoopCache(t *testing.T) {
	var c CartCache = NoopCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "u", domain.Cart{UserID: "u"}))
	_, err := c.Get(ctx, "u")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, c.Delete(ctx, "u"))
}
