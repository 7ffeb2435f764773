package domain

import "time"

// ProductSnapshot is the copy of catalog data a cart line keeps from the
// moment it was added. It is never re-read from the catalog.
type ProductSnapshot struct {
	ID       string `bson:"id" json:"id"`
	Name     string `bson:"name" json:"name"`
	Stock    int    `bson:"stock" json:"stock"`
	IsActive bool   `bson:"is_active" json:"isActive"`
}

type CartItem struct {
	Product     ProductSnapshot `bson:"product" json:"product"`
	Quantity    int             `bson:"quantity" json:"quantity"`
	PriceAtTime float64         `bson:"price_at_time" json:"priceAtTime"`
	TaxRate     float64         `bson:"tax_rate" json:"taxRate"`
	AddedAt     time.Time       `bson:"added_at" json:"addedAt"`
}

// NewCartItem snapshots p into a new cart line.
func NewCartItem(p Product, quantity int, now time.Time) CartItem {
	return CartItem{
		Product:     p.Snapshot(),
		Quantity:    quantity,
		PriceAtTime: p.Price,
		TaxRate:     p.TaxRate,
		AddedAt:     now,
	}
}

func (i CartItem) UnitPriceWithTax() float64 {
	return UnitPriceWithTax(i.PriceAtTime, i.TaxRate)
}

func (i CartItem) SubtotalWithTax() float64 {
	return LineSubtotalWithTax(i.Quantity, i.UnitPriceWithTax())
}

// Subtotal is an alias for SubtotalWithTax.
func (i CartItem) Subtotal() float64 {
	return i.SubtotalWithTax()
}

type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    string     `bson:"user_id" json:"userId"`
	Items     []CartItem `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updatedAt"`
}

// EmptyCart is what a user sees before anything was ever stored for them.
func EmptyCart(userID string, now time.Time) Cart {
	return Cart{
		UserID:    userID,
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// QuantityOf returns the quantity of productID in the cart, or 0.
func (c Cart) QuantityOf(productID string) int {
	if item, ok := c.Item(productID); ok {
		return item.Quantity
	}
	return 0
}

func (c Cart) Item(productID string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.Product.ID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

func (c Cart) TotalItems() int {
	return TotalItems(c.Items)
}

func (c Cart) SubtotalWithoutTax() float64 {
	return CartSubtotalWithoutTax(c.Items)
}

func (c Cart) TotalTaxAmount() float64 {
	return CartTaxAmount(c.Items)
}

func (c Cart) Total() float64 {
	return CartTotal(c.Items)
}

// Clone returns a copy that shares no item storage with c.
func (c Cart) Clone() Cart {
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)
	c.Items = items
	return c
}
