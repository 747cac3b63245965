package pricing

import "github.com/shopspring/decimal"

// Money represents a monetary value at full precision. Rounding happens only
// when a breakdown is rendered, see Display.
type Money = decimal.Decimal

// Line describes a line item used for pricing calculation.
type Line struct {
	Qty       int
	UnitPrice Money
}

// Policy holds the tax and shipping knobs chosen by the calling surface.
type Policy struct {
	TaxRate               Money
	FreeShippingThreshold Money
	FlatShippingFee       Money
}

// Breakdown aggregates computed pricing components.
type Breakdown struct {
	Subtotal Money `json:"subtotal"`
	Tax      Money `json:"tax"`
	Shipping Money `json:"shipping"`
	Discount Money `json:"discount"`
	Total    Money `json:"total"`
}

// Subtotal sums unit price times quantity over all lines. Lines with a
// non-positive quantity contribute nothing.
func Subtotal(lines []Line) Money {
	total := decimal.Zero
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty))))
	}
	return total
}

// Tax applies rate (a fraction, 0.18 for 18%) to the subtotal.
func Tax(subtotal, rate Money) Money {
	return subtotal.Mul(rate)
}

// Shipping is free once the subtotal reaches freeThreshold, otherwise flatFee.
func Shipping(subtotal, freeThreshold, flatFee Money) Money {
	if subtotal.GreaterThanOrEqual(freeThreshold) {
		return decimal.Zero
	}
	return flatFee
}

// ClampDiscount bounds discount to [0, subtotal].
func ClampDiscount(discount, subtotal Money) Money {
	switch {
	case discount.IsNegative(), !subtotal.IsPositive():
		return decimal.Zero
	case discount.GreaterThan(subtotal):
		return subtotal
	}
	return discount
}

// Total derives the grand total, floored at zero.
func Total(subtotal, tax, shipping, discount Money) Money {
	total := subtotal.Add(tax).Add(shipping).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// Compute calculates cart totals for the given lines, an already computed
// coupon discount and the pricing policy. The discount is clamped to
// [0, subtotal] whatever its source.
func Compute(lines []Line, discount Money, policy Policy) Breakdown {
	subtotal := Subtotal(lines)
	discount = ClampDiscount(discount, subtotal)
	tax := Tax(subtotal, policy.TaxRate)
	shipping := Shipping(subtotal, policy.FreeShippingThreshold, policy.FlatShippingFee)
	return Breakdown{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    Total(subtotal, tax, shipping, discount),
	}
}
