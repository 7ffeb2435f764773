package service

import (
	"strings"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/google/uuid"
)

type AddItemRequest struct {
	ProductID string
	Quantity  int
}

type UpdateItemRequest struct {
	ProductID string
	// Quantity is absolute; 0 removes the line.
	Quantity int
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.BadRequest("user id is required")
	}
	return nil
}

// validateProductID accepts catalog ids, which are UUIDs.
func validateProductID(productID string) error {
	if _, err := uuid.Parse(productID); err != nil {
		return domain.BadRequest("invalid product id %q", productID)
	}
	return nil
}

func (r AddItemRequest) validate() error {
	if err := validateProductID(r.ProductID); err != nil {
		return err
	}
	if r.Quantity <= 0 {
		return domain.BadRequest("quantity must be a positive integer, got %d", r.Quantity)
	}
	return nil
}

func (r UpdateItemRequest) validate() error {
	if err := validateProductID(r.ProductID); err != nil {
		return err
	}
	if r.Quantity < 0 {
		return domain.BadRequest("quantity must not be negative, got %d", r.Quantity)
	}
	return nil
}

func checkAvailable(p domain.Product) error {
	if !p.IsActive {
		return domain.BadRequest("product %q is not available", p.Name)
	}
	if p.Stock <= 0 {
		return domain.BadRequest("product %q is out of stock", p.Name)
	}
	return nil
}

func checkStockForAdd(p domain.Product, inCart, requested int) error {
	if inCart+requested > p.Stock {
		return domain.BadRequest(
			"insufficient stock for %q: available %d, already in cart %d, requested %d",
			p.Name, p.Stock, inCart, requested,
		)
	}
	return nil
}

func checkStockForUpdate(p domain.Product, quantity int) error {
	if quantity > 0 && quantity > p.Stock {
		return domain.BadRequest(
			"insufficient stock for %q: available %d, requested %d",
			p.Name, p.Stock, quantity,
		)
	}
	return nil
}
