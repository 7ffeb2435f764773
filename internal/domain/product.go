package domain

// Product is the catalog view the cart engine reads. The engine never writes it.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       float64 // excluding tax
	Stock       int
	TaxRate     float64 // percent, 0-100
	IsActive    bool
}

func (p Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ID:       p.ID,
		Name:     p.Name,
		Stock:    p.Stock,
		IsActive: p.IsActive,
	}
}
