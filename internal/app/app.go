package app

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/text/currency"

	"github.com/noah-isme/toko-storefront/internal/cache"
	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/catalog"
	"github.com/noah-isme/toko-storefront/internal/checkout"
	"github.com/noah-isme/toko-storefront/internal/config"
	"github.com/noah-isme/toko-storefront/internal/coupon"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/order"
	"github.com/noah-isme/toko-storefront/internal/payment"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/resilience"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

const lockWait = 3 * time.Second

// Dependencies enumerates the infrastructure shared by the API and the worker.
// DB, Payments and Tasks are optional.
type Dependencies struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Redis     *redis.Client
	DB        *pgxpool.Pool
	StoreAPI  *storeapi.Client
	Payments  payment.Provider
	Tasks     checkout.Enqueuer
	Snapshots order.Store
}

// App holds the domain services built from Dependencies.
type App struct {
	Dependencies

	Currency   currency.Unit
	Policy     pricing.Policy
	Locker     lock.Locker
	Catalog    *catalog.Service
	Carts      *cart.Service
	Coupons    *coupon.Service
	Checkout   *checkout.Service
	Reconciler *order.Reconciler
	Cache      *cache.JSON
}

// New builds every service. Snapshots fall back to Postgres when DB is set and
// to an in-memory store otherwise.
func New(deps Dependencies) (*App, error) {
	if deps.Config == nil {
		return nil, errors.New("app: config is required")
	}
	if deps.Redis == nil {
		return nil, errors.New("app: redis is required")
	}
	if deps.StoreAPI == nil {
		return nil, errors.New("app: store api client is required")
	}
	cfg := deps.Config
	unit, err := pricing.ParseCurrency(cfg.CurrencyCode)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if deps.Snapshots == nil {
		if deps.DB != nil {
			deps.Snapshots = order.NewPostgresStore(deps.DB)
		} else {
			deps.Snapshots = order.NewMemoryStore()
		}
	}

	a := &App{
		Dependencies: deps,
		Currency:     unit,
		Policy:       PricingPolicy(cfg),
		Locker:       lock.Locker{R: deps.Redis, WaitTimeout: lockWait},
		Cache:        cache.New(deps.Redis, "catalog", cfg.CatalogCacheTTL),
	}
	store := cart.RedisStore{R: deps.Redis, TTL: cfg.CartTTL}

	a.Catalog = &catalog.Service{
		API:    deps.StoreAPI,
		Cache:  a.Cache,
		Logger: deps.Logger,
	}
	a.Carts = &cart.Service{
		Store:    store,
		Products: deps.StoreAPI,
		Locker:   a.Locker,
		LockTTL:  cfg.SessionLockTTL,
	}
	a.Coupons = &coupon.Service{
		API:     deps.StoreAPI,
		Carts:   a.Carts,
		State:   coupon.RedisState{R: deps.Redis, TTL: cfg.CouponStateTTL},
		Cache:   cache.New(deps.Redis, "coupons", cfg.CouponCacheTTL),
		Locker:  a.Locker,
		LockTTL: cfg.SessionLockTTL,
		Logger:  deps.Logger,
	}
	a.Checkout = &checkout.Service{
		Carts:     store,
		Coupons:   a.Coupons,
		API:       deps.StoreAPI,
		Snapshots: deps.Snapshots,
		Payments:  deps.Payments,
		Tasks:     deps.Tasks,
		Locker:    a.Locker,
		LockTTL:   cfg.SessionLockTTL,
		Policy:    a.Policy,
		Currency:  unit,
		Logger:    deps.Logger,
	}
	a.Reconciler = &order.Reconciler{
		Store:    deps.Snapshots,
		API:      deps.StoreAPI,
		Currency: unit,
		Logger:   deps.Logger,
	}
	return a, nil
}

// PricingPolicy maps the configured tax and shipping values.
func PricingPolicy(cfg *config.Config) pricing.Policy {
	return pricing.Policy{
		TaxRate:               cfg.PricingTaxRate,
		FreeShippingThreshold: cfg.PricingFreeShippingThreshold,
		FlatShippingFee:       cfg.PricingFlatShippingFee,
	}
}

// NewStoreAPI returns the store API client with retries, a circuit breaker and
// an instrumented transport.
func NewStoreAPI(cfg *config.Config, logger zerolog.Logger) *storeapi.Client {
	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithTarget("storeapi").
		WithLogger(logger)
	doer := resilience.HTTPClient{
		Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Breaker:     breaker,
		Target:      "storeapi",
		BaseBackoff: cfg.RetryBaseBackoff,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      0.2,
		Timeout:     cfg.StoreAPITimeout,
		Logger:      logger,
	}
	return storeapi.New(cfg.StoreAPIBaseURL, doer, logger)
}

// NewPayments returns the Stripe provider, or nil when payments are disabled.
func NewPayments(cfg *config.Config) payment.Provider {
	if !cfg.PaymentsEnabled() {
		return nil
	}
	return payment.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, nil)
}
