package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-storefront/internal/cache"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

// API is the subset of the store API used by the catalog.
type API interface {
	Products(ctx context.Context, query url.Values) (storeapi.ProductPage, error)
	Product(ctx context.Context, id string) (storeapi.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Search(ctx context.Context, query url.Values) (storeapi.ProductPage, error)
	AISearch(ctx context.Context, body []byte) (storeapi.RawResponse, error)
	PostReview(ctx context.Context, token, productID string, in storeapi.ReviewInput) error
	DeleteReview(ctx context.Context, token, productID string) error
}

// Service serves catalog reads through a Redis cache.
type Service struct {
	API    API
	Cache  *cache.JSON
	Logger zerolog.Logger
}

// Review is the public review payload.
type Review struct {
	ID      string  `json:"id,omitempty"`
	User    string  `json:"user,omitempty"`
	Name    string  `json:"name,omitempty"`
	Rating  float64 `json:"rating"`
	Comment string  `json:"comment,omitempty"`
}

// Product is the canonical product shape served to the storefront.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	InStock      bool            `json:"inStock"`
	Category     string          `json:"category,omitempty"`
	Ratings      float64         `json:"ratings"`
	NumOfReviews int             `json:"numOfReviews"`
	Images       []string        `json:"images"`
	Reviews      []Review        `json:"reviews,omitempty"`
}

// ProductList is a page of products.
type ProductList struct {
	Items      []Product `json:"items"`
	Total      int       `json:"total"`
	Filtered   int       `json:"filtered"`
	PerPage    int       `json:"perPage"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
}

// listKeys are the query parameters relayed to the store API listing.
var listKeys = []string{"keyword", "category", "price[gte]", "price[lte]", "ratings[gte]", "page"}

// ParseListQuery keeps the supported listing filters and validates them.
func ParseListQuery(values url.Values) (url.Values, error) {
	out := url.Values{}
	for _, k := range listKeys {
		if v := strings.TrimSpace(values.Get(k)); v != "" {
			out.Set(k, v)
		}
	}
	if v := out.Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err != nil || page < 1 {
			return nil, badRequest("page", "page must be a positive integer", err)
		}
	}
	for _, k := range []string{"price[gte]", "price[lte]", "ratings[gte]"} {
		if v := out.Get(k); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil || d.IsNegative() {
				return nil, badRequest(k, k+" must be a non-negative number", err)
			}
		}
	}
	if lo, hi := out.Get("price[gte]"), out.Get("price[lte]"); lo != "" && hi != "" {
		if decimal.RequireFromString(lo).GreaterThan(decimal.RequireFromString(hi)) {
			return nil, badRequest("price", "price[gte] must not exceed price[lte]", nil)
		}
	}
	return out, nil
}

// ProductFromAPI maps a store API product.
func ProductFromAPI(p storeapi.Product) Product {
	out := Product{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Price:        p.Price,
		Stock:        p.Stock,
		InStock:      p.Stock > 0,
		Category:     p.Category,
		Ratings:      p.Ratings,
		NumOfReviews: p.NumOfReviews,
		Images:       make([]string, 0, len(p.Images)),
	}
	for _, img := range p.Images {
		out.Images = append(out.Images, img.URL)
	}
	for _, r := range p.Reviews {
		out.Reviews = append(out.Reviews, Review(r))
	}
	return out
}

func listFromAPI(page storeapi.ProductPage, query url.Values) ProductList {
	out := ProductList{
		Items:    make([]Product, 0, len(page.Products)),
		Total:    page.ProductsCount,
		Filtered: page.FilteredProductsCount,
		PerPage:  page.ResultPerPage,
		Page:     1,
	}
	if p, err := strconv.Atoi(query.Get("page")); err == nil && p > 0 {
		out.Page = p
	}
	for _, p := range page.Products {
		out.Items = append(out.Items, ProductFromAPI(p))
	}
	count := out.Filtered
	if count == 0 {
		count = out.Total
	}
	if out.PerPage > 0 {
		out.TotalPages = (count + out.PerPage - 1) / out.PerPage
	}
	return out
}

// cached loads key from the cache or computes it with load. Cache failures
// are logged and never fail the read.
func cached[T any](ctx context.Context, s *Service, key string, load func() (T, error)) (T, error) {
	var out T
	hit, err := s.Cache.Get(ctx, key, &out)
	if err != nil {
		obs.LoggerFrom(ctx, s.Logger).Warn().Err(err).Str("key", key).Msg("catalog_cache_read_failed")
	}
	if hit {
		return out, nil
	}
	out, err = load()
	if err != nil {
		return out, err
	}
	if err := s.Cache.Set(ctx, key, out); err != nil {
		obs.LoggerFrom(ctx, s.Logger).Warn().Err(err).Str("key", key).Msg("catalog_cache_write_failed")
	}
	return out, nil
}

// Products lists products matching query.
func (s *Service) Products(ctx context.Context, query url.Values) (ProductList, error) {
	return cached(ctx, s, cache.KeyProductList("list", query), func() (ProductList, error) {
		page, err := s.API.Products(ctx, query)
		if err != nil {
			return ProductList{}, err
		}
		return listFromAPI(page, query), nil
	})
}

// Search runs a keyword search.
func (s *Service) Search(ctx context.Context, query url.Values) (ProductList, error) {
	if strings.TrimSpace(query.Get("keyword")) == "" {
		return ProductList{}, badRequest("keyword", "keyword is required", nil)
	}
	return cached(ctx, s, cache.KeyProductList("search", query), func() (ProductList, error) {
		page, err := s.API.Search(ctx, query)
		if err != nil {
			return ProductList{}, err
		}
		return listFromAPI(page, query), nil
	})
}

// Product returns one product.
func (s *Service) Product(ctx context.Context, id string) (Product, error) {
	if strings.TrimSpace(id) == "" {
		return Product{}, badRequest("id", "product id is required", nil)
	}
	return cached(ctx, s, cache.KeyProduct(id), func() (Product, error) {
		p, err := s.API.Product(ctx, id)
		if err != nil {
			return Product{}, err
		}
		return ProductFromAPI(p), nil
	})
}

// Categories returns the category names.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return cached(ctx, s, cache.KeyCategories, func() ([]string, error) {
		list, err := s.API.Categories(ctx)
		if list == nil {
			list = []string{}
		}
		return list, err
	})
}

// AISearch relays a natural-language search without caching.
func (s *Service) AISearch(ctx context.Context, body []byte) (storeapi.RawResponse, error) {
	return s.API.AISearch(ctx, body)
}

// PutReview creates or replaces the caller's review and drops cached copies
// of the product.
func (s *Service) PutReview(ctx context.Context, token, productID string, in storeapi.ReviewInput) error {
	if err := s.API.PostReview(ctx, token, productID, in); err != nil {
		return err
	}
	s.Invalidate(ctx, productID)
	return nil
}

// DeleteReview removes the caller's review of productID.
func (s *Service) DeleteReview(ctx context.Context, token, productID string) error {
	if err := s.API.DeleteReview(ctx, token, productID); err != nil {
		return err
	}
	s.Invalidate(ctx, productID)
	return nil
}

// Invalidate drops the cached product and every cached listing, which embed
// ratings. An empty productID only drops listings.
func (s *Service) Invalidate(ctx context.Context, productID string) {
	logger := obs.LoggerFrom(ctx, s.Logger)
	if productID != "" {
		if err := s.Cache.Delete(ctx, cache.KeyProduct(productID)); err != nil {
			logger.Warn().Err(err).Str("product_id", productID).Msg("catalog_invalidate_failed")
		}
	}
	for _, kind := range []string{"list:", "search:"} {
		if err := s.Cache.DeletePrefix(ctx, cache.PrefixCatalog+kind); err != nil {
			logger.Warn().Err(err).Msg("catalog_invalidate_failed")
		}
	}
}

func badRequest(field, message string, err error) *common.AppError {
	if err == nil {
		err = errors.New(message)
	}
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        fmt.Errorf("catalog: %w", err),
		Details: map[string]any{
			"field": field,
		},
	}
}
