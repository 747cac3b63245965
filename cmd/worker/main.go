package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
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
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/resilience"
	"github.com/noah-isme/toko-storefront/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("service", "toko-storefront-worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("worker exited")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(nil)

	deps := app.Dependencies{
		Config:   cfg,
		Logger:   logger,
		StoreAPI: app.NewStoreAPI(cfg, logger),
	}
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, reconcile tasks will find no snapshots")
	} else {
		pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres config: %w", err)
		}
		pc.ConnConfig.Tracer = obs.PGXTracer{}
		pc.MaxConns = 4
		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			return fmt.Errorf("postgres connect: %w", err)
		}
		defer pool.Close()
		deps.DB = pool
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	defer func() { _ = rdb.Close() }()
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Warn().Err(err).Msg("redis tracing disabled")
	}
	deps.Redis = rdb

	storefront, err := app.New(deps)
	if err != nil {
		return err
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("asynq redis: %w", err)
	}
	qlog := asynqLogger{logger: logger.With().Str("component", "asynq").Logger()}

	mux := asynq.NewServeMux()
	(&tasks.Handlers{
		Orders:       storefront.Reconciler,
		Coupons:      storefront.Coupons,
		ServiceToken: cfg.StoreAPIServiceToken,
		Logger:       logger,
	}).Register(mux)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		Logger:          qlog,
		ShutdownTimeout: 20 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, t *asynq.Task, err error) {
			logger.Warn().Err(err).Str("task", t.Type()).Msg("task_failed")
		}),
	})

	every := "@every " + cfg.CouponRefreshInterval.String()
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC, Logger: qlog})
	if _, err := scheduler.Register(every, tasks.NewCouponsRefreshTask(),
		asynq.TaskID(tasks.TypeCouponsRefresh), asynq.MaxRetry(1)); err != nil {
		return fmt.Errorf("schedule %s: %w", tasks.TypeCouponsRefresh, err)
	}

	if addr := cfg.Obs.WorkerMetricsAddr; addr != "" {
		metrics := &http.Server{Addr: addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics listener")
			}
		}()
		defer func() { _ = metrics.Close() }()
	}

	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer scheduler.Shutdown()
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("task server: %w", err)
	}
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Str("coupon_refresh", every).Msg("worker started")

	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker stopped")
	return nil
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
