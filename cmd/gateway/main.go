package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sentinel-ops/sentinel-gateway/internal/backend"
	"github.com/sentinel-ops/sentinel-gateway/internal/clientid"
	"github.com/sentinel-ops/sentinel-gateway/internal/config"
	"github.com/sentinel-ops/sentinel-gateway/internal/gateway"
	"github.com/sentinel-ops/sentinel-gateway/internal/policy"
	"github.com/sentinel-ops/sentinel-gateway/internal/pricing"
	"github.com/sentinel-ops/sentinel-gateway/internal/ratelimit"
	"github.com/sentinel-ops/sentinel-gateway/internal/security"
	"github.com/sentinel-ops/sentinel-gateway/internal/telemetry"
	"github.com/sentinel-ops/sentinel-gateway/internal/usage"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()
	logger = slog.New(newLogHandler(cfg.Telemetry))
	slog.SetDefault(logger)

	// Tracing
	tp, err := telemetry.NewTracerProvider(context.Background(), cfg.Telemetry)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer tp.Shutdown(context.Background())

	// Metrics, scraped on a separate listener
	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	go serveMetrics(cfg.Telemetry.MetricsPort, registry, logger)

	recorder := telemetry.NewRecorder(tp, metrics, logger, cfg.Telemetry.ServiceName, cfg.Telemetry.Environment)

	// Redis backs the rate limiter and budget tracker; both fail open
	// without it.
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (rate limiting disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	// PostgreSQL backs the usage audit trail; requests proceed without it.
	var dbPool *pgxpool.Pool
	if cfg.Database.Host != "" {
		dbPool, err = pgxpool.New(context.Background(), cfg.Database.DSN())
		if err != nil {
			logger.Warn("failed to create database pool (usage accounting disabled)", "error", err)
			dbPool = nil
		} else if err := dbPool.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable (usage accounting disabled)", "error", err)
			dbPool.Close()
			dbPool = nil
		} else {
			logger.Info("database connected")
			defer dbPool.Close()
		}
	}

	// Security analyzer and pricing, both observing config reloads
	analyzer := security.NewAnalyzer(func() config.SecurityConfig {
		return loader.Config().Security
	})

	var pricingMu sync.RWMutex
	priceTable := pricing.NewTable(loader.Pricing())
	loader.OnReload(func() {
		t := pricing.NewTable(loader.Pricing())
		pricingMu.Lock()
		priceTable = t
		pricingMu.Unlock()
		logger.Info("pricing table reloaded")
	})
	getPricing := func() *pricing.Table {
		pricingMu.RLock()
		defer pricingMu.RUnlock()
		return priceTable
	}

	// Backend
	var client backend.Client
	if cfg.Backend.BaseURL != "" {
		client = backend.NewOpenAIClient(cfg.Backend, nil)
	} else {
		logger.Warn("no backend configured, requests will return uninitialized outcomes")
	}

	// Policy gate
	var evaluator *policy.Evaluator
	if cfg.Policy.Enabled {
		evaluator = policy.NewEvaluator(func() config.PolicyConfig {
			return loader.Config().Policy
		})
		if err := evaluator.Load(); err != nil {
			logger.Error("failed to load policies (gate fails closed)", "error", err)
		}
		loader.OnReload(func() {
			if err := evaluator.Load(); err != nil {
				logger.Error("failed to reload policies", "error", err)
			}
		})
	}

	// Usage accounting: Postgres keeps the audit trail, Redis keeps the
	// daily spend counter the budget middleware checks. Without Redis the
	// budget check falls back to summing the Postgres rows.
	var store *usage.Store
	if dbPool != nil {
		store = usage.NewStore(dbPool)
	}

	limiter := ratelimit.NewLimiter(rdb)
	var spendSource ratelimit.SpendSource
	if store != nil {
		spendSource = store
	}
	budget := ratelimit.NewBudgetTracker(rdb, spendSource)

	var sinks gateway.FanOutSink
	if store != nil {
		sinks = append(sinks, store)
	}
	if rdb != nil {
		sinks = append(sinks, budget)
	}
	var sink gateway.UsageSink
	if len(sinks) > 0 {
		sink = sinks
	}

	orchestrator := gateway.NewOrchestrator(client, analyzer, recorder,
		getPricing,
		func() config.GenerationConfig { return loader.Config().Generation },
		sink,
	)
	handler := gateway.NewHandler(orchestrator, evaluator)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(clientid.Middleware)

	r.Get("/health", handler.Health)

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter, metrics, func() config.RateLimitConfig {
			return loader.Config().RateLimit
		}))
		r.Use(ratelimit.BudgetMiddleware(budget, metrics, func() float64 {
			return loader.Config().RateLimit.DailyBudgetUSD
		}))
		r.Post("/v1/generate", handler.Generate)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func newLogHandler(cfg config.TelemetryConfig) slog.Handler {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

func serveMetrics(port int, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics listener starting", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener failed", "error", err)
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req-" + uuid.NewString()[:8]
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}
