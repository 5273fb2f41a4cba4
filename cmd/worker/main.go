// Command worker consumes raw example lines from Kafka, featurizes them with
// the seed and strategy of their batch, and publishes the results to the
// featurized or dead-letter topic while advancing batch progress in
// PostgreSQL.
//
// Usage:
//
//	go run ./cmd/worker [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/stats"
	statsstore "github.com/Adithya-Monish-Kumar-K/featurehash/internal/stats/store"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/store"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/worker"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting featurize worker",
		"topic", cfg.Kafka.Topics.RawExamples,
		"group", cfg.Kafka.ConsumerGroup,
	)

	parserOpts, err := parser.OptionsFromConfig(cfg.Parser)
	if err != nil {
		slog.Error("invalid parser config", "error", err)
		os.Exit(1)
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	featurized := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Featurized)
	defer featurized.Close()
	deadLetter := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DeadLetter)
	defer deadLetter.Close()

	m := metrics.New(nil)
	agg := stats.NewAggregator()
	w := worker.New(worker.Config{
		Parser:   parserOpts,
		Retry:    resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond},
		Observer: agg,
	}, featurized, deadLetter, store.NewPostgresStore(db), m)

	var snapshotsDone <-chan struct{}
	if cfg.Stats.SnapshotInterval > 0 {
		snapshotsDone = statsstore.StartPeriodicSave(ctx, statsstore.New(db), "worker", agg, cfg.Stats.SnapshotInterval)
	}

	// The worker has no API; its metrics port also carries the health checks.
	var shutdownProbes func(context.Context) error
	if cfg.Metrics.Enabled {
		checker := health.NewChecker()
		checker.Register("postgres", health.PingCheck(db.Ping, true))
		shutdownProbes = metrics.StartServer(cfg.Metrics.Port, nil, map[string]http.Handler{
			"GET /health": checker.Handler(),
			"GET /live":   checker.LiveHandler(),
			"GET /ready":  checker.ReadyHandler(),
		})
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RawExamples, w.HandleMessage)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	if snapshotsDone != nil {
		<-snapshotsDone
	}
	if shutdownProbes != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownProbes(shutdownCtx); err != nil {
			slog.Error("health server shutdown error", "error", err)
		}
	}
	slog.Info("featurize worker stopped")
}
