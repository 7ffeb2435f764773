package domain

import "math"

// Round2 rounds to cents. Every monetary value is rounded where it is
// computed, not once at the end.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func UnitPriceWithTax(priceAtTime, taxRate float64) float64 {
	return Round2(priceAtTime * (1 + taxRate/100))
}

func LineSubtotalWithTax(quantity int, unitPriceWithTax float64) float64 {
	return Round2(float64(quantity) * unitPriceWithTax)
}

func CartTotal(items []CartItem) float64 {
	var sum float64
	for _, item := range items {
		sum += item.SubtotalWithTax()
	}
	return Round2(sum)
}

func CartSubtotalWithoutTax(items []CartItem) float64 {
	var sum float64
	for _, item := range items {
		sum += float64(item.Quantity) * item.PriceAtTime
	}
	return Round2(sum)
}

// CartTaxAmount is the difference of the two rounded aggregates, not a sum
// of per-line tax. The two can differ by a cent.
func CartTaxAmount(items []CartItem) float64 {
	return Round2(CartTotal(items) - CartSubtotalWithoutTax(items))
}

func TotalItems(items []CartItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}
