package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"access-gateway/ingest"
	"access-gateway/middleware/authz"
	authzinfra "access-gateway/middleware/authz/infra"
	"access-gateway/middleware/ratelimit"
	"access-gateway/middleware/ratelimit/application"
	"access-gateway/middleware/ratelimit/domain"
	"access-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config error", slog.Any("error", err))
		os.Exit(1)
	}
	logger := newLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return errors.New("invalid UPSTREAM_URL: " + err.Error())
	}
	pol, err := loadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error", slog.Any("error", err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Redis é o store compartilhado do rate limit e a origem dos snapshots.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// não aborta: o limiter aplica a FailurePolicy enquanto o Redis estiver fora
		logger.Warn("redis ping failed", slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
	}
	pingCancel()

	var limiter ratelimit.Checker
	if cfg.RateEnabled {
		var store domain.WindowStore
		if cfg.RateStore == "memory" {
			mem := infra.NewMemoryWindowStore()
			mem.StartJanitor(ctx)
			store = mem
		} else {
			store = infra.NewRedisWindowStore(rdb,
				infra.WithWindowPrefix(cfg.RedisPrefix),
				infra.WithServerClock(cfg.RedisServerClock),
			)
		}

		rule := domain.Rule{Capacity: cfg.RateCapacity, Window: cfg.RateWindow}
		opts := []application.LimiterOption{
			application.WithFailurePolicy(cfg.RateFailurePolicy),
			application.WithStoreTimeout(cfg.RateStoreTimeout),
			application.WithLogger(logger),
		}
		if cfg.RateFailurePolicy == domain.FailOpen && cfg.RateFallbackShare > 0 {
			buckets, err := infra.NewLocalBuckets(rule, infra.WithBucketShare(cfg.RateFallbackShare))
			if err != nil {
				return err
			}
			buckets.StartJanitor(ctx)
			opts = append(opts, application.WithFallback(buckets))
		}
		lim, err := application.NewSlidingWindowLimiter(store, rule, opts...)
		if err != nil {
			return err
		}
		limiter = lim

		logger.Info("rate limit",
			slog.Int("capacity", lim.Rule().Capacity),
			slog.Duration("window", lim.Rule().Window),
			slog.String("store", cfg.RateStore),
			slog.String("failure_policy", string(lim.Policy())),
			slog.Float64("fallback_share", cfg.RateFallbackShare),
		)
	}

	var stats domain.StatsStore
	var metrics, statsView http.Handler
	switch cfg.StatsBackend {
	case "memory":
		mem := infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.StatsPerKey))
		stats = mem
		statsView = ratelimit.StatsHandler(mem, logger)
	case "redis":
		rs := infra.NewRedisStatsStore(rdb, infra.WithStatsPrefix(cfg.StatsPrefix), infra.WithStatsTTL(cfg.StatsTTL), infra.WithStatsTrackKeys(cfg.StatsPerKey))
		stats = rs
		statsView = ratelimit.StatsHandler(rs, logger)
	case "prometheus":
		reg := prometheus.NewRegistry()
		prom, err := infra.NewPromStatsStore(reg)
		if err != nil {
			return err
		}
		stats = prom
		metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	authzMW, err := authz.NewMiddleware(authz.Options{
		Loader:        authzinfra.NewRedisPrincipalLoader(rdb, authzinfra.WithPrincipalPrefix(cfg.PrincipalPrefix)),
		SubjectHeader: cfg.SubjectHeader,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	var ingestHandler http.Handler
	if cfg.IngestEnabled {
		f, err := os.OpenFile(cfg.IngestFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		ingestHandler = ingest.NewHandler(f, logger)
	}

	h := newRouter(routerDeps{
		cfg:       cfg,
		logger:    logger,
		limiter:   limiter,
		stats:     stats,
		authz:     authzMW,
		policy:    pol,
		upstream:  proxy,
		ingest:    ingestHandler,
		metrics:   metrics,
		statsView: statsView,
		secure:    target.Scheme == "https",
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		slog.String("addr", cfg.ListenAddr),
		slog.String("upstream", target.String()),
		slog.Int("routes", len(pol.Routes)),
		slog.Bool("rate_limit", cfg.RateEnabled),
		slog.String("stats", cfg.StatsBackend),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
