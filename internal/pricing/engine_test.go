package pricing

import (
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

func d(s string) Money { return decimal.RequireFromString(s) }

func TestSubtotal(t *testing.T) {
	require.True(t, Subtotal(nil).IsZero())
	lines := []Line{
		{Qty: 2, UnitPrice: d("10")},
		{Qty: 3, UnitPrice: d("5")},
	}
	require.Equal(t, "35", Subtotal(lines).String())
}

func TestSubtotalSkipsNonPositiveQuantity(t *testing.T) {
	lines := []Line{{Qty: 0, UnitPrice: d("10")}, {Qty: -1, UnitPrice: d("3")}, {Qty: 1, UnitPrice: d("4.5")}}
	require.Equal(t, "4.5", Subtotal(lines).String())
}

func TestTax(t *testing.T) {
	require.True(t, Tax(d("100"), d("0.18")).Equal(d("18")))
}

func TestShippingThreshold(t *testing.T) {
	require.True(t, Shipping(d("49.99"), d("50"), d("2")).Equal(d("2")))
	require.True(t, Shipping(d("50"), d("50"), d("2")).IsZero())
}

func TestTotalFloorsAtZero(t *testing.T) {
	require.True(t, Total(d("100"), d("18"), d("0"), d("118")).IsZero())
	require.True(t, Total(d("100"), d("18"), d("0"), d("500")).IsZero())
	require.True(t, Total(d("100"), d("18"), d("2"), d("20")).Equal(d("100")))
}

func TestTotalNeverNegative(t *testing.T) {
	f := gofakeit.New(42)
	for i := 0; i < 500; i++ {
		subtotal := decimal.NewFromFloat(f.Float64Range(0, 1000)).Round(2)
		tax := subtotal.Mul(d("0.18"))
		shipping := decimal.NewFromInt(int64(f.IntRange(0, 10)))
		discount := decimal.NewFromFloat(f.Float64Range(0, 2000)).Round(2)
		total := Total(subtotal, tax, shipping, discount)
		require.False(t, total.IsNegative(), "subtotal=%s discount=%s", subtotal, discount)
	}
}

func TestComputeEndToEnd(t *testing.T) {
	// Three items summing to 76.27 under a 100 free-shipping threshold.
	lines := []Line{
		{Qty: 1, UnitPrice: d("29.99")},
		{Qty: 2, UnitPrice: d("15.64")},
		{Qty: 1, UnitPrice: d("15.00")},
	}
	policy := Policy{TaxRate: d("0.18"), FreeShippingThreshold: d("100"), FlatShippingFee: d("2")}

	b := Compute(lines, decimal.Zero, policy)
	require.True(t, b.Subtotal.Equal(d("76.27")))
	require.True(t, b.Tax.Equal(d("13.7286")), b.Tax.String())
	require.True(t, b.Shipping.Equal(d("2")))
	require.True(t, b.Discount.IsZero())
	require.True(t, b.Total.Equal(d("91.9986")), b.Total.String())

	view := Display(b, currency.USD)
	require.Equal(t, DisplayBreakdown{
		Currency: "USD",
		Subtotal: "76.27",
		Tax:      "13.73",
		Shipping: "2.00",
		Discount: "0.00",
		Total:    "92.00",
	}, view)
}

func TestComputeIgnoresNegativeDiscount(t *testing.T) {
	policy := Policy{TaxRate: d("0"), FreeShippingThreshold: d("50"), FlatShippingFee: d("2")}
	b := Compute([]Line{{Qty: 1, UnitPrice: d("60")}}, d("-5"), policy)
	require.True(t, b.Discount.IsZero())
	require.True(t, b.Total.Equal(d("60")))
}

func TestComputeCapsDiscountAtSubtotal(t *testing.T) {
	policy := Policy{TaxRate: d("0.18"), FreeShippingThreshold: d("50"), FlatShippingFee: d("2")}
	b := Compute([]Line{{Qty: 1, UnitPrice: d("30")}}, d("50"), policy)
	require.True(t, b.Subtotal.Equal(d("30")))
	require.True(t, b.Discount.Equal(d("30")), b.Discount.String())
	// Tax and shipping are still owed.
	require.True(t, b.Total.Equal(d("7.4")), b.Total.String())
}

func TestClampDiscount(t *testing.T) {
	cases := []struct {
		discount, subtotal, want string
	}{
		{"10", "100", "10"},
		{"100", "100", "100"},
		{"150", "100", "100"},
		{"-1", "100", "0"},
		{"5", "0", "0"},
	}
	for _, tc := range cases {
		got := ClampDiscount(d(tc.discount), d(tc.subtotal))
		require.True(t, got.Equal(d(tc.want)), "discount=%s subtotal=%s got=%s", tc.discount, tc.subtotal, got)
	}
}

func TestRoundedTotalAddsUp(t *testing.T) {
	b := Breakdown{
		Subtotal: d("10.25"),
		Tax:      d("1.845"),
		Shipping: d("2"),
		Discount: d("0.5125"),
		Total:    d("13.5825"),
	}
	require.Equal(t, "13.58", Round(b.Total, currency.USD).StringFixed(2))

	r := Rounded(b, currency.USD)
	require.True(t, r.Tax.Equal(d("1.85")))
	require.True(t, r.Discount.Equal(d("0.51")))
	require.True(t, r.Total.Equal(d("13.59")), r.Total.String())
	require.True(t, r.Total.Equal(r.Subtotal.Add(r.Tax).Add(r.Shipping).Sub(r.Discount)))
}

func TestMinorUnits(t *testing.T) {
	require.Equal(t, int64(9200), MinorUnits(d("91.9986"), currency.USD))
	require.Equal(t, int64(1), MinorUnits(d("0.005"), currency.USD))
	require.Equal(t, int64(1999), MinorUnits(d("19.99"), currency.USD))
	require.True(t, FromMinorUnits(1999, currency.USD).Equal(d("19.99")))
	require.Equal(t, int64(500), MinorUnits(d("500"), currency.JPY))
}

func TestParseCurrency(t *testing.T) {
	unit, err := ParseCurrency("")
	require.NoError(t, err)
	require.Equal(t, currency.USD, unit)

	unit, err = ParseCurrency("eur")
	require.NoError(t, err)
	require.Equal(t, "EUR", unit.String())

	_, err = ParseCurrency("XX1")
	require.Error(t, err)
}
