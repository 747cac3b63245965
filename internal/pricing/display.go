package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DisplayBreakdown is a breakdown rounded to the currency's standard scale.
type DisplayBreakdown struct {
	Currency string `json:"currency"`
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Shipping string `json:"shipping"`
	Discount string `json:"discount"`
	Total    string `json:"total"`
}

// ParseCurrency resolves an ISO 4217 code, defaulting to USD.
func ParseCurrency(code string) (currency.Unit, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return currency.USD, nil
	}
	return currency.ParseISO(code)
}

// Scale returns the number of fractional digits used for display.
func Scale(unit currency.Unit) int32 {
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// Round rounds m half away from zero to the currency scale.
func Round(m Money, unit currency.Unit) Money {
	return m.Round(Scale(unit))
}

// MinorUnits converts m into the smallest currency unit (cents for USD).
func MinorUnits(m Money, unit currency.Unit) int64 {
	return m.Shift(Scale(unit)).Round(0).IntPart()
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(v int64, unit currency.Unit) Money {
	return decimal.New(v, -Scale(unit))
}

// Rounded rounds each component to the currency scale and derives the total
// from the rounded parts, so the parts always add up to the total.
func Rounded(b Breakdown, unit currency.Unit) Breakdown {
	r := Breakdown{
		Subtotal: Round(b.Subtotal, unit),
		Tax:      Round(b.Tax, unit),
		Shipping: Round(b.Shipping, unit),
		Discount: Round(b.Discount, unit),
	}
	r.Total = Total(r.Subtotal, r.Tax, r.Shipping, r.Discount)
	return r
}

// Display renders every component rounded independently.
func Display(b Breakdown, unit currency.Unit) DisplayBreakdown {
	scale := Scale(unit)
	return DisplayBreakdown{
		Currency: unit.String(),
		Subtotal: b.Subtotal.StringFixed(scale),
		Tax:      b.Tax.StringFixed(scale),
		Shipping: b.Shipping.StringFixed(scale),
		Discount: b.Discount.StringFixed(scale),
		Total:    b.Total.StringFixed(scale),
	}
}
