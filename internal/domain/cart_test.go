package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCartItem_CopiesSnapshot(t *testing.T) {
	p := Product{ID: "p1", Name: "Lamp", Price: 100, Stock: 5, TaxRate: 21, IsActive: true}
	now := time.Now()

	it := NewCartItem(p, 2, now)

	// later catalog changes must not leak into the line
	p.Price = 500
	p.Name = "Renamed"

	assert.Equal(t, ProductSnapshot{ID: "p1", Name: "Lamp", Stock: 5, IsActive: true}, it.Product)
	assert.Equal(t, 100.0, it.PriceAtTime)
	assert.Equal(t, 21.0, it.TaxRate)
	assert.Equal(t, 2, it.Quantity)
	assert.Equal(t, now, it.AddedAt)
}

func TestCart_QuantityOf(t *testing.T) {
	c := Cart{Items: []CartItem{item("a", 1, 0, 3), item("b", 1, 0, 4)}}

	assert.Equal(t, 3, c.QuantityOf("a"))
	assert.Equal(t, 4, c.QuantityOf("b"))
	assert.Equal(t, 0, c.QuantityOf("missing"))

	_, ok := c.Item("missing")
	assert.False(t, ok)
}

func TestCart_Clone(t *testing.T) {
	c := Cart{UserID: "u", Items: []CartItem{item("a", 1, 0, 3)}}

	clone := c.Clone()
	clone.Items[0].Quantity = 99

	assert.Equal(t, 3, c.Items[0].Quantity)
}

func TestError_Wrap(t *testing.T) {
	typed := BadRequest("quantity must be positive, got %d", -1)
	assert.Same(t, typed, Wrap(typed, "ignored"))
	assert.Equal(t, KindBadRequest, KindOf(fmt.Errorf("context: %w", typed)))

	cause := errors.New("connection reset")
	wrapped := Wrap(cause, "failed to add item")
	require.Error(t, wrapped)
	assert.True(t, IsKind(wrapped, KindInternal))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "failed to add item", Message(wrapped))
	assert.Equal(t, "failed to add item: connection reset", wrapped.Error())

	assert.Nil(t, Wrap(nil, "nothing"))
	assert.False(t, IsKind(nil, KindInternal))
}

func TestError_KindStrings(t *testing.T) {
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "bad_request", KindBadRequest.String())
	assert.Equal(t, "internal_error", KindInternal.String())
	assert.Equal(t, "internal server error", Message(errors.New("boom")))
}
