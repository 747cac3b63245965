package cart

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

var (
	// ErrInvalidQuantity is returned when a requested quantity is not positive.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrOutOfStock is returned when the product has no stock left.
	ErrOutOfStock = errors.New("product out of stock")
	// ErrStockExceeded is returned when the resulting quantity exceeds stock.
	ErrStockExceeded = errors.New("quantity exceeds available stock")
	// ErrNotFound indicates the product is not in the cart.
	ErrNotFound = errors.New("cart item not found")
)

// Product is the snapshot of a store product taken when it was added.
type Product struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock"`
	Images []string        `json:"images,omitempty"`
}

// LineItem is one product in the cart.
type LineItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Cart is an ordered list of line items, unique by product id.
type Cart struct {
	Items []LineItem `json:"items"`
}

// ProductFromAPI converts a store API product into a cart snapshot.
func ProductFromAPI(p storeapi.Product) Product {
	images := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		if img.URL != "" {
			images = append(images, img.URL)
		}
	}
	return Product{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock, Images: images}
}

func (c *Cart) index(productID string) int {
	for i, it := range c.Items {
		if it.Product.ID == productID {
			return i
		}
	}
	return -1
}

// Add puts qty units of p in the cart. An existing line is incremented and its
// product snapshot refreshed.
func (c *Cart) Add(p Product, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if p.Stock <= 0 {
		return ErrOutOfStock
	}
	i := c.index(p.ID)
	total := qty
	if i >= 0 {
		total += c.Items[i].Quantity
	}
	if total > p.Stock {
		return ErrStockExceeded
	}
	if i >= 0 {
		c.Items[i] = LineItem{Product: p, Quantity: total}
		return nil
	}
	c.Items = append(c.Items, LineItem{Product: p, Quantity: total})
	return nil
}

// SetQuantity replaces the quantity of an existing line. A quantity of zero
// or less removes it.
func (c *Cart) SetQuantity(productID string, qty int) error {
	i := c.index(productID)
	if i < 0 {
		return ErrNotFound
	}
	if qty <= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	}
	if qty > c.Items[i].Product.Stock {
		return ErrStockExceeded
	}
	c.Items[i].Quantity = qty
	return nil
}

// Remove drops the line for productID. Removing an absent product is a no-op.
func (c *Cart) Remove(productID string) {
	if i := c.index(productID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
}

// Lines returns the cart as pricing input.
func (c Cart) Lines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, pricing.Line{Qty: it.Quantity, UnitPrice: it.Product.Price})
	}
	return lines
}

// Subtotal is the undiscounted sum of the cart lines.
func (c Cart) Subtotal() decimal.Decimal {
	return pricing.Subtotal(c.Lines())
}

// Count returns the total number of units in the cart.
func (c Cart) Count() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool { return len(c.Items) == 0 }
