package coupon

import "github.com/noah-isme/toko-storefront/internal/storeapi"

// FromAPI converts the store API coupon document into an engine Coupon.
func FromAPI(in storeapi.Coupon) Coupon {
	out := Coupon{
		ID:                in.ID,
		Code:              NormalizeCode(in.Code),
		Description:       in.Description,
		DiscountType:      DiscountType(in.DiscountType).normalized(),
		DiscountValue:     in.DiscountValue,
		MinPurchaseAmount: in.MinPurchaseAmount,
		MaxDiscountAmount: in.MaxDiscountAmount,
		UsageLimit:        in.UsageLimit,
		UsedCount:         in.UsedCount,
		IsActive:          in.IsActive,
	}
	if in.ValidUntil != nil {
		out.ValidUntil = *in.ValidUntil
	}
	return out
}

// FromAPIList converts a list of store API coupons.
func FromAPIList(in []storeapi.Coupon) []Coupon {
	out := make([]Coupon, 0, len(in))
	for _, c := range in {
		out = append(out, FromAPI(c))
	}
	return out
}
