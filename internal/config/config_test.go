package config

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var managedKeys = []string{
	"REDIS_URL", "STORE_API_BASE_URL", "DATABASE_URL", "PORT",
	"PRICING_TAX_RATE", "PRICING_FREE_SHIPPING_THRESHOLD", "PRICING_FLAT_SHIPPING_FEE",
	"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "CART_TTL", "WORKER_CONCURRENCY",
	"COOKIE_SAMESITE", "COOKIE_SECURE", "OBS_ENABLE_TRACING", "OBS_SLOW_REQUEST",
}

// setEnv clears every key the tests touch, then applies overrides.
func setEnv(t *testing.T, overrides map[string]string) {
	t.Helper()
	for _, k := range managedKeys {
		t.Setenv(k, "")
	}
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("STORE_API_BASE_URL", "https://store.example.com/api/v1/")
	for k, v := range overrides {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, nil)
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "https://store.example.com/api/v1", cfg.StoreAPIBaseURL)
	require.Equal(t, "0.18", cfg.PricingTaxRate.String())
	require.Equal(t, "50", cfg.PricingFreeShippingThreshold.String())
	require.Equal(t, "2", cfg.PricingFlatShippingFee.String())
	require.Equal(t, 7*24*time.Hour, cfg.CartTTL)
	require.Equal(t, 30*time.Minute, cfg.CouponStateTTL)
	require.Equal(t, http.SameSiteLaxMode, cfg.CookieSameSite)
	require.False(t, cfg.PaymentsEnabled())
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.True(t, cfg.Obs.Tracing)
	require.Equal(t, 2*time.Second, cfg.Obs.SlowRequest)
	require.Equal(t, "storefront", cfg.Obs.MetricsNamespace)
}

func TestLoadOverrides(t *testing.T) {
	setEnv(t, map[string]string{
		"PRICING_TAX_RATE":                "0.10",
		"PRICING_FREE_SHIPPING_THRESHOLD": "100",
		"PRICING_FLAT_SHIPPING_FEE":       "10",
		"CART_TTL":                        "48h",
		"PORT":                            ":9090",
		"OBS_ENABLE_TRACING":              "off",
	})
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.1", cfg.PricingTaxRate.String())
	require.Equal(t, "100", cfg.PricingFreeShippingThreshold.String())
	require.Equal(t, "10", cfg.PricingFlatShippingFee.String())
	require.Equal(t, 48*time.Hour, cfg.CartTTL)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.False(t, cfg.Obs.Tracing)
}

func TestLoadReportsEveryMalformedValue(t *testing.T) {
	setEnv(t, map[string]string{
		"CART_TTL":           "a week",
		"WORKER_CONCURRENCY": "many",
		"COOKIE_SAMESITE":    "sometimes",
	})
	_, err := Load()
	require.ErrorContains(t, err, "CART_TTL")
	require.ErrorContains(t, err, "WORKER_CONCURRENCY")
	require.ErrorContains(t, err, "COOKIE_SAMESITE")
}

func TestLoadRequiresStoreAPI(t *testing.T) {
	setEnv(t, map[string]string{"STORE_API_BASE_URL": ""})
	_, err := Load()
	require.ErrorContains(t, err, "STORE_API_BASE_URL is required")

	setEnv(t, map[string]string{"STORE_API_BASE_URL": "store.example.com"})
	_, err = Load()
	require.ErrorContains(t, err, "absolute URL")
}

func TestLoadRejectsNegativePolicy(t *testing.T) {
	setEnv(t, map[string]string{"PRICING_TAX_RATE": "-0.1"})
	_, err := Load()
	require.ErrorContains(t, err, "PRICING_TAX_RATE must not be negative")
}

func TestLoadSameSiteNoneNeedsSecureCookies(t *testing.T) {
	setEnv(t, map[string]string{"COOKIE_SAMESITE": "none"})
	_, err := Load()
	require.ErrorContains(t, err, "COOKIE_SECURE")

	setEnv(t, map[string]string{"COOKIE_SAMESITE": "none", "COOKIE_SECURE": "true"})
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, http.SameSiteNoneMode, cfg.CookieSameSite)
}

func TestLoadStripeNeedsWebhookSecret(t *testing.T) {
	setEnv(t, map[string]string{"STRIPE_SECRET_KEY": "sk_test_123"})
	_, err := Load()
	require.ErrorContains(t, err, "STRIPE_WEBHOOK_SECRET")

	setEnv(t, map[string]string{"STRIPE_SECRET_KEY": "sk_test_123", "STRIPE_WEBHOOK_SECRET": "whsec_123"})
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.PaymentsEnabled())
}
