package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config is the storefront configuration. Every field maps to one environment
// variable; see Load for names and defaults.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	DatabaseURL        string
	CORSAllowedOrigins []string

	StoreAPIBaseURL      string
	StoreAPITimeout      time.Duration
	StoreAPIServiceToken string
	RetryMaxAttempts     int
	RetryBaseBackoff     time.Duration
	BreakerMinRequests   int
	BreakerFailureRatio  float64
	BreakerOpenFor       time.Duration

	SessionCookieName string
	TokenCookieName   string
	TokenCookieTTL    time.Duration
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite

	JWTVerifyKey string
	JWTAlgorithm string
	JWTIssuer    string
	JWTAudience  string

	CartTTL           time.Duration
	CouponStateTTL    time.Duration
	CouponCacheTTL    time.Duration
	CatalogCacheTTL   time.Duration
	IdempotencyTTL    time.Duration
	SessionLockTTL    time.Duration
	CouponApplyLimit  int
	CouponApplyWindow time.Duration
	GlobalRateLimit   string

	CurrencyCode                 string
	PricingTaxRate               decimal.Decimal
	PricingFreeShippingThreshold decimal.Decimal
	PricingFlatShippingFee       decimal.Decimal

	StripeSecretKey     string
	StripeWebhookSecret string

	WorkerConcurrency     int
	CouponRefreshInterval time.Duration
	ReconcileDelay        time.Duration

	Obs Observability
}

// Observability groups the OBS_* settings shared by both binaries.
type Observability struct {
	LogFormat         string
	LogLevel          string
	MetricsNamespace  string
	Metrics           bool
	LatencyBucketsMS  string
	Tracing           bool
	TracingExporter   string
	OTLPEndpoint      string
	SamplingRatio     float64
	SlowRequest       time.Duration
	Pprof             bool
	PprofUser         string
	PprofPass         string
	WorkerMetricsAddr string
	ReadyDBTimeout    time.Duration
	ReadyRedisTimeout time.Duration
	ReadyAPITimeout   time.Duration
	ShutdownTimeout   time.Duration
}

// Load reads the process environment, after merging an optional .env file,
// and validates the result. Malformed values are reported together rather
// than silently replaced by defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("config: read environment: %w", err)
	}
	return parse(&reader{k: k})
}

func parse(r *reader) (*Config, error) {
	cfg := &Config{
		AppEnv:             r.str("APP_ENV", "development"),
		Port:               r.str("PORT", "8080"),
		RedisURL:           r.str("REDIS_URL", ""),
		DatabaseURL:        r.str("DATABASE_URL", ""),
		CORSAllowedOrigins: r.list("CORS_ALLOWED_ORIGINS"),

		StoreAPIBaseURL:      strings.TrimRight(r.str("STORE_API_BASE_URL", ""), "/"),
		StoreAPITimeout:      r.duration("STORE_API_TIMEOUT", 5*time.Second),
		StoreAPIServiceToken: r.str("STORE_API_SERVICE_TOKEN", ""),
		RetryMaxAttempts:     r.integer("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseBackoff:     r.duration("RETRY_BASE_BACKOFF", 100*time.Millisecond),
		BreakerMinRequests:   r.integer("BREAKER_MIN_REQUESTS", 20),
		BreakerFailureRatio:  r.float("BREAKER_FAILURE_RATIO", 0.5),
		BreakerOpenFor:       r.duration("BREAKER_OPEN_FOR", 30*time.Second),

		SessionCookieName: r.str("SESSION_COOKIE_NAME", "sid"),
		TokenCookieName:   r.str("TOKEN_COOKIE_NAME", "token"),
		TokenCookieTTL:    r.duration("TOKEN_COOKIE_TTL", 7*24*time.Hour),
		CookieDomain:      r.str("COOKIE_DOMAIN", ""),
		CookieSecure:      r.boolean("COOKIE_SECURE", false),
		CookieSameSite:    r.sameSite("COOKIE_SAMESITE", http.SameSiteLaxMode),

		JWTVerifyKey: r.str("JWT_VERIFY_KEY", ""),
		JWTAlgorithm: r.str("JWT_ALGORITHM", "HS256"),
		JWTIssuer:    r.str("JWT_ISSUER", ""),
		JWTAudience:  r.str("JWT_AUDIENCE", ""),

		CartTTL:           r.duration("CART_TTL", 7*24*time.Hour),
		CouponStateTTL:    r.duration("COUPON_STATE_TTL", 30*time.Minute),
		CouponCacheTTL:    r.duration("COUPON_CACHE_TTL", 5*time.Minute),
		CatalogCacheTTL:   r.duration("CATALOG_CACHE_TTL", time.Minute),
		IdempotencyTTL:    r.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		SessionLockTTL:    r.duration("SESSION_LOCK_TTL", 10*time.Second),
		CouponApplyLimit:  r.integer("COUPON_APPLY_LIMIT", 10),
		CouponApplyWindow: r.duration("COUPON_APPLY_WINDOW", time.Minute),
		GlobalRateLimit:   r.str("RATE_LIMIT_GLOBAL", "300-M"),

		CurrencyCode:                 strings.ToUpper(r.str("CURRENCY_CODE", "USD")),
		PricingTaxRate:               r.decimal("PRICING_TAX_RATE", "0.18"),
		PricingFreeShippingThreshold: r.decimal("PRICING_FREE_SHIPPING_THRESHOLD", "50"),
		PricingFlatShippingFee:       r.decimal("PRICING_FLAT_SHIPPING_FEE", "2"),

		StripeSecretKey:     r.str("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: r.str("STRIPE_WEBHOOK_SECRET", ""),

		WorkerConcurrency:     r.integer("WORKER_CONCURRENCY", 10),
		CouponRefreshInterval: r.duration("COUPON_REFRESH_INTERVAL", 5*time.Minute),
		ReconcileDelay:        r.duration("RECONCILE_DELAY", 30*time.Second),

		Obs: Observability{
			LogFormat:         r.str("OBS_LOG_FORMAT", "json"),
			LogLevel:          r.str("OBS_LOG_LEVEL", "info"),
			MetricsNamespace:  r.str("OBS_METRICS_NAMESPACE", "storefront"),
			Metrics:           r.boolean("OBS_ENABLE_PROMETHEUS", true),
			LatencyBucketsMS:  r.str("OBS_METRICS_BUCKETS_MS", ""),
			Tracing:           r.boolean("OBS_ENABLE_TRACING", true),
			TracingExporter:   r.str("OBS_TRACING_EXPORTER", "otlp"),
			OTLPEndpoint:      r.str("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio:     r.float("OBS_TRACING_SAMPLING_RATIO", 1),
			SlowRequest:       r.duration("OBS_SLOW_REQUEST", 2*time.Second),
			Pprof:             r.boolean("OBS_ENABLE_PPROF", false),
			PprofUser:         r.str("SECURE_PPROF_BASIC_AUTH_USER", ""),
			PprofPass:         r.str("SECURE_PPROF_BASIC_AUTH_PASS", ""),
			WorkerMetricsAddr: r.str("OBS_WORKER_METRICS_ADDR", ""),
			ReadyDBTimeout:    r.duration("HEALTH_READY_DB_TIMEOUT", 500*time.Millisecond),
			ReadyRedisTimeout: r.duration("HEALTH_READY_REDIS_TIMEOUT", 300*time.Millisecond),
			ReadyAPITimeout:   r.duration("HEALTH_READY_UPSTREAM_TIMEOUT", time.Second),
			ShutdownTimeout:   r.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
	}
	if len(r.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(r.errs...))
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	switch u, err := url.Parse(c.StoreAPIBaseURL); {
	case c.StoreAPIBaseURL == "":
		errs = append(errs, errors.New("STORE_API_BASE_URL is required"))
	case err != nil || u.Scheme == "" || u.Host == "":
		errs = append(errs, fmt.Errorf("STORE_API_BASE_URL must be an absolute URL, got %q", c.StoreAPIBaseURL))
	}
	for name, v := range map[string]decimal.Decimal{
		"PRICING_TAX_RATE":                c.PricingTaxRate,
		"PRICING_FREE_SHIPPING_THRESHOLD": c.PricingFreeShippingThreshold,
		"PRICING_FLAT_SHIPPING_FEE":       c.PricingFlatShippingFee,
	} {
		if v.IsNegative() {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set"))
	}
	if c.CookieSameSite == http.SameSiteNoneMode && !c.CookieSecure {
		errs = append(errs, errors.New("COOKIE_SAMESITE=none requires COOKIE_SECURE"))
	}
	return errors.Join(errs...)
}

// HTTPAddr is the listen address derived from PORT.
func (c *Config) HTTPAddr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// PaymentsEnabled reports whether Stripe is configured.
func (c *Config) PaymentsEnabled() bool {
	return c.StripeSecretKey != ""
}
