package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

const (
	PrefixCatalog   = "catalog:"
	PrefixProduct   = "catalog:product:"
	KeyCategories   = "catalog:categories"
	KeyCouponsAvail = "coupons:available"
)

// KeyProductList returns the cache key of a product listing for query.
// url.Values.Encode sorts keys so equivalent queries share an entry.
func KeyProductList(kind string, query url.Values) string {
	sum := sha256.Sum256([]byte(query.Encode()))
	return PrefixCatalog + kind + ":" + hex.EncodeToString(sum[:8])
}

// KeyProduct returns the cache key of a single product.
func KeyProduct(id string) string {
	return PrefixProduct + id
}
