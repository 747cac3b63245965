package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/app"
	"github.com/noah-isme/toko-storefront/internal/config"
	"github.com/noah-isme/toko-storefront/internal/health"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/order"
	"github.com/noah-isme/toko-storefront/internal/resilience"
	"github.com/noah-isme/toko-storefront/internal/tasks"
)

const serviceName = "toko-storefront"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().
		Str("service", serviceName).
		Str("env", cfg.AppEnv).
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api exited")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	o := cfg.Obs
	obs.MustRegisterDomainMetrics(o.MetricsNamespace, nil)
	if o.Metrics {
		resilience.MustRegisterMetrics(nil)
	}

	tracing := o.Tracing
	if tracing {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   serviceName,
			Endpoint:      o.OTLPEndpoint,
			Exporter:      o.TracingExporter,
			SamplingRatio: o.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("tracing disabled")
			tracing = false
		} else {
			defer func() {
				if err := shutdown(context.WithoutCancel(ctx)); err != nil {
					logger.Warn().Err(err).Msg("tracer shutdown")
				}
			}()
		}
	}

	bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	deps := app.Dependencies{
		Config:   cfg,
		Logger:   logger,
		StoreAPI: app.NewStoreAPI(cfg, logger),
		Payments: app.NewPayments(cfg),
	}

	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, order snapshots kept in memory")
	} else {
		if err := order.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		pool, err := openPostgres(bootCtx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		deps.DB = pool
	}

	rdb, err := openRedis(bootCtx, cfg.RedisURL, o.Metrics)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "redis", rdb.Close)
	deps.Redis = rdb

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("asynq redis: %w", err)
	}
	taskClient := asynq.NewClient(redisOpt)
	defer closeLogged(logger, "task client", taskClient.Close)
	deps.Tasks = tasks.Enqueuer{Client: taskClient, ReconcileDelay: cfg.ReconcileDelay}

	storefront, err := app.New(deps)
	if err != nil {
		return err
	}

	opts := app.RouterOptions{
		Tracing:         tracing,
		SlowRequest:     o.SlowRequest,
		DBTimeout:       o.ReadyDBTimeout,
		RedisTimeout:    o.ReadyRedisTimeout,
		UpstreamTimeout: o.ReadyAPITimeout,
	}
	if o.Metrics {
		opts.HTTPMetrics = obs.NewHTTPMetrics(o.MetricsNamespace, obs.ParseBucketsCSV(o.LatencyBucketsMS), nil)
	}
	router, err := storefront.Router(opts)
	if err != nil {
		return err
	}
	if o.Metrics {
		router.Handle("/metrics", promhttp.Handler())
	}
	if o.Pprof {
		router.Mount("/debug/pprof", basicAuth(pprofHandler(), o.PprofUser, o.PprofPass))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Bool("payments", cfg.PaymentsEnabled()).
			Bool("snapshots_durable", deps.DB != nil).
			Msg("listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Dur("grace", o.ShutdownTimeout).Msg("draining")
	drainCtx, cancelDrain := context.WithTimeout(context.WithoutCancel(ctx), o.ShutdownTimeout)
	defer cancelDrain()
	return srv.Shutdown(drainCtx)
}

func openPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	pc.ConnConfig.Tracer = obs.PGXTracer{}
	pc.ConnConfig.RuntimeParams["application_name"] = serviceName
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func openRedis(ctx context.Context, url string, metrics bool) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		return nil, fmt.Errorf("redis tracing: %w", err)
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			return nil, fmt.Errorf("redis metrics: %w", err)
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func closeLogged(logger zerolog.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn().Err(err).Str("resource", what).Msg("close failed")
	}
}

func pprofHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

// basicAuth guards next when user is set.
func basicAuth(next http.Handler, user, pass string) http.Handler {
	if user == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(p), []byte(pass)) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="pprof"`)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
