// Command featurizer starts the featurizer HTTP and RPC service.
//
// The service parses example lines synchronously via POST /api/v1/parse and,
// when PostgreSQL and Kafka are reachable, accepts asynchronous batches via
// POST /api/v1/examples for the worker to process. Parsed lines are cached in
// Redis when configured. Metrics are served on a separate port.
//
// Usage:
//
//	go run ./cmd/featurizer [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/featurize"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/router"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/rpcapi"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/stats"
	statsstore "github.com/Adithya-Monish-Kumar-K/featurehash/internal/stats/store"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/handler"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/publisher"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/store"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/validator"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/rpc"
)

// main loads configuration, connects the optional backends, wires the HTTP
// router and RPC service, and serves until SIGINT/SIGTERM.
// canaryLine is parsed by the readiness check.
const canaryLine = "1 'canary |ready ok:1"

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting featurizer service",
		"port", cfg.Server.Port,
		"hash_seed", cfg.Parser.HashSeed,
		"hash_strategy", cfg.Parser.HashStrategy,
	)

	parserOpts, err := parser.OptionsFromConfig(cfg.Parser)
	if err != nil {
		slog.Error("invalid parser config", "error", err)
		os.Exit(1)
	}
	policy, err := featurize.ParsePolicy(cfg.Parser.ErrorPolicy)
	if err != nil {
		slog.Error("invalid parser config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	checker := health.NewChecker()
	agg := stats.NewAggregator()
	p := parser.New(parserOpts)
	checker.Register("parser", health.PingCheck(func(context.Context) error {
		_, err := p.Parse(canaryLine)
		return err
	}, true))

	// Redis parse cache (optional).
	var parseCache *cache.ParseCache
	var base featurize.LineParser
	rdb, err := pkgredis.NewClient(cfg.Redis)
	switch {
	case errors.Is(err, pkgredis.ErrDisabled):
		slog.Info("parse cache disabled")
	case err != nil:
		slog.Warn("redis unavailable, parse cache disabled", "error", err)
	default:
		defer rdb.Close()
		parseCache = cache.New(rdb, p, cfg.Redis.CacheTTL, m)
		base = parseCache
		checker.Register("redis", health.PingCheck(rdb.Ping, false))
		slog.Info("parse cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	// PostgreSQL + Kafka batch submission (optional).
	var submitter handler.Submitter
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, batch submission disabled", "error", err)
	} else {
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		checker.Register("postgres", health.PingCheck(db.Ping, true))

		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RawExamples)
		defer producer.Close()
		submitter = publisher.New(store.NewPostgresStore(db), producer, publisher.Options{
			HashSeed: parserOpts.HashSeed,
			Strategy: parserOpts.Strategy,
			Retry:    resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond},
		}, m)
		slog.Info("batch submission enabled", "topic", cfg.Kafka.Topics.RawExamples)

		if cfg.Stats.SnapshotInterval > 0 {
			statsstore.StartPeriodicSave(ctx, statsstore.New(db), "featurizer", agg, cfg.Stats.SnapshotInterval)
		}
	}

	limits := validator.Limits{MaxLines: cfg.Parser.MaxBatchLines, MaxLineLength: cfg.Parser.MaxLineLength}
	api := handler.New(handler.Config{
		Parser:   parserOpts,
		Workers:  cfg.Parser.Workers,
		Policy:   policy,
		Limits:   limits,
		Observer: agg,
	}, base, submitter, m)

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	go sweepLoop(ctx, limiter)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.New(router.Deps{
			API:            api,
			Stats:          stats.NewHandler(agg),
			Cache:          cache.NewHandler(parseCache),
			Health:         checker,
			Metrics:        m,
			Limiter:        limiter,
			CORSOrigins:    cfg.Server.CORSOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcServer = rpc.NewServer()
		rpcapi.New(rpcapi.Config{
			Parser:   parserOpts,
			Workers:  cfg.Parser.Workers,
			Limits:   limits,
			Observer: agg,
			Timeout:  cfg.Server.RequestTimeout,
		}, base, checker, m).Register(rpcServer)
		go func() {
			if err := rpcServer.Serve(fmt.Sprintf(":%d", cfg.RPC.Port)); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, nil, nil)
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if rpcServer != nil {
			rpcServer.Stop()
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("featurizer service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("featurizer service stopped")
}

func sweepLoop(ctx context.Context, rl *middleware.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Sweep(); n > 0 {
				slog.Debug("rate limiter swept idle clients", "removed", n)
			}
		}
	}
}
