package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/toko-storefront/internal/auth"
	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/catalog"
	"github.com/noah-isme/toko-storefront/internal/checkout"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/coupon"
	"github.com/noah-isme/toko-storefront/internal/forward"
	"github.com/noah-isme/toko-storefront/internal/health"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/order"
	"github.com/noah-isme/toko-storefront/internal/payment"
	"github.com/noah-isme/toko-storefront/internal/ratelimit"
	"github.com/noah-isme/toko-storefront/internal/security"
	"github.com/noah-isme/toko-storefront/internal/session"
)

const (
	maxBodyBytes     = 1 << 20
	webhookReplayTTL = 24 * time.Hour
)

// RouterOptions toggles the observability middleware. LimitStore defaults to
// a Redis store on the shared client.
type RouterOptions struct {
	HTTPMetrics     *obs.HTTPMetrics
	LimitStore      limiter.Store
	Tracing         bool
	SlowRequest     time.Duration
	DBTimeout       time.Duration
	RedisTimeout    time.Duration
	UpstreamTimeout time.Duration
}

// Router assembles the HTTP surface. Callers may mount extra handlers such as
// /metrics on the returned mux.
func (a *App) Router(opts RouterOptions) (*chi.Mux, error) {
	cfg := a.Config
	logger := a.Logger

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Key:       cfg.JWTVerifyKey,
		Algorithm: cfg.JWTAlgorithm,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt verifier: %w", err)
	}
	limitStore := opts.LimitStore
	if limitStore == nil {
		limitStore, err = ratelimit.NewRedisStore(a.Redis, "rl:global:")
		if err != nil {
			return nil, fmt.Errorf("rate limit store: %w", err)
		}
	}
	onLimitErr := func(err error) { logger.Warn().Err(err).Msg("rate_limit_store_error") }
	globalLimit, err := ratelimit.Global(cfg.GlobalRateLimit, limitStore, onLimitErr)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger, SlowThreshold: opts.SlowRequest}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Session-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Session-ID", "X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{HSTS: cfg.CookieSecure}.Middleware)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	healthHandler := health.Handler{
		Checker:         health.Probes{DB: a.DB, Redis: a.Redis, Upstream: a.StoreAPI},
		DBTimeout:       opts.DBTimeout,
		RedisTimeout:    opts.RedisTimeout,
		UpstreamTimeout: opts.UpstreamTimeout,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	webhook := payment.Webhook{
		Provider:  a.Payments,
		Orders:    a.Snapshots,
		Replay:    a.Redis,
		ReplayTTL: webhookReplayTTL,
		Logger:    logger,
	}
	r.Post("/webhooks/payment", webhook.Handle)

	authn := auth.Middleware{Verifier: verifier, TokenCookie: cfg.TokenCookieName, Logger: logger}
	sessions := session.Middleware{
		CookieName: cfg.SessionCookieName,
		Domain:     cfg.CookieDomain,
		Secure:     cfg.CookieSecure,
		SameSite:   cfg.CookieSameSite,
	}
	csrf := security.CSRF{
		AuthCookie: cfg.TokenCookieName,
		Secure:     cfg.CookieSecure,
		SameSite:   cfg.CookieSameSite,
		Domain:     cfg.CookieDomain,
	}
	couponLimit := ratelimit.Handler{
		Window:  ratelimit.Window{Client: a.Redis, Prefix: "rl:"},
		Key:     ratelimit.SessionKey("coupon_apply"),
		Limit:   cfg.CouponApplyLimit,
		Period:  cfg.CouponApplyWindow,
		OnError: onLimitErr,
	}
	idem := common.Idem{R: a.Redis, TTL: cfg.IdempotencyTTL}

	catalogHandler := &catalog.Handler{Svc: a.Catalog}
	cartHandler := &cart.Handler{Svc: a.Carts, Coupons: a.Coupons, Policy: a.Policy, Currency: a.Currency}
	couponHandler := &coupon.Handler{Svc: a.Coupons}
	checkoutHandler := &checkout.Handler{Svc: a.Checkout}
	orderHandler := &order.Handler{Store: a.Snapshots, API: a.StoreAPI}
	authHandler := &auth.Handler{
		API: a.StoreAPI,
		Cookie: auth.Cookie{
			Name:     cfg.TokenCookieName,
			TTL:      cfg.TokenCookieTTL,
			Domain:   cfg.CookieDomain,
			Secure:   cfg.CookieSecure,
			SameSite: cfg.CookieSameSite,
		},
		Logger: logger,
	}
	invalidator := forward.Invalidator{Cache: a.Cache, Logger: logger}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(globalLimit)
		v.Use(security.BodyLimit{Max: maxBodyBytes}.Middleware)
		v.Use(sessions.Handler)
		v.Use(authn.Authenticate)
		v.Use(csrf.Middleware)

		v.Get("/products", catalogHandler.Products)
		v.Post("/products/ai-search", catalogHandler.AISearch)
		v.Get("/products/{id}", catalogHandler.Product)
		v.Put("/products/{id}/reviews", catalogHandler.PutReview)
		v.Delete("/products/{id}/reviews", catalogHandler.DeleteReview)
		v.Get("/categories", catalogHandler.Categories)
		v.Get("/search", catalogHandler.Search)

		v.Route("/auth", func(ar chi.Router) {
			ar.Post("/register", authHandler.Register)
			ar.Post("/login", authHandler.Login)
			ar.Post("/logout", authHandler.Logout)
			ar.Get("/me", authHandler.Me)
		})

		v.Route("/cart", func(c chi.Router) {
			c.Get("/", cartHandler.Get)
			c.Delete("/", cartHandler.Clear)
			c.Post("/items", cartHandler.AddItem)
			c.Patch("/items/{productId}", cartHandler.UpdateItem)
			c.Delete("/items/{productId}", cartHandler.RemoveItem)
		})

		v.With(couponLimit.Middleware).Post("/coupon/apply", couponHandler.Apply)
		v.Get("/coupon", couponHandler.Current)
		v.Delete("/coupon", couponHandler.Remove)
		v.Get("/coupons/available", couponHandler.Available)

		v.Get("/checkout/quote", checkoutHandler.Quote)
		v.With(authn.RequireAuth, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)

		v.Get("/orders/local", orderHandler.ListLocal)
		v.With(authn.RequireAuth).Get("/orders", orderHandler.ListRemote)
		v.With(authn.RequireAuth).Get("/orders/{id}", orderHandler.GetRemote)

		wishlist := forward.Route{API: a.StoreAPI, Upstream: "/wishlist", Logger: logger}
		v.Handle("/wishlist", wishlist)
		v.Handle("/wishlist/*", wishlist)
		v.Handle("/admin/*", forward.Route{API: a.StoreAPI, Upstream: "/admin", AfterWrite: invalidator.AfterWrite, Logger: logger})
		v.Handle("/product-admin/*", forward.Route{API: a.StoreAPI, Upstream: "/product/admin", AfterWrite: invalidator.AfterWrite, Logger: logger})
	})

	return r, nil
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
