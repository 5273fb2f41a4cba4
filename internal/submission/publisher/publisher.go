// Package publisher records submitted batches and queues their lines on Kafka
// for the featurize workers. Writes are idempotent per idempotency key.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/hasher"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/resilience"
	"github.com/google/uuid"
)

// Options carries the hashing settings stamped on every batch.
type Options struct {
	HashSeed uint64
	Strategy hasher.Strategy
	Retry    resilience.RetryConfig
}

// Publisher coordinates batch persistence and Kafka event production.
type Publisher struct {
	store    store.BatchStore
	producer kafka.Publisher
	breaker  *resilience.CircuitBreaker
	opts     Options
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Publisher. m may be nil.
func New(st store.BatchStore, producer kafka.Publisher, opts Options, m *metrics.Metrics) *Publisher {
	cbCfg := resilience.CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
	if m != nil {
		cbCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &Publisher{
		store:    st,
		producer: producer,
		breaker:  resilience.NewCircuitBreaker("kafka-"+producer.Topic(), cbCfg),
		opts:     opts,
		metrics:  m,
		logger:   slog.Default().With("component", "publisher"),
		now:      time.Now,
	}
}

// Submit records the batch and publishes one RawLineEvent per line. A
// repeated idempotency key returns the original batch without publishing
// again. When Kafka cannot be reached the batch is marked FAILED.
func (p *Publisher) Submit(ctx context.Context, req *submission.SubmitRequest) (*submission.SubmitResponse, error) {
	batch := &submission.Batch{
		ID:             uuid.NewString(),
		IdempotencyKey: req.IdempotencyKey,
		Status:         submission.StatusPending,
		HashSeed:       p.opts.HashSeed,
		HashStrategy:   p.opts.Strategy.String(),
		TotalLines:     len(req.Lines),
	}
	stored, created, err := p.store.CreateBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	if !created {
		return &submission.SubmitResponse{
			BatchID:    stored.ID,
			Status:     stored.Status,
			TotalLines: stored.TotalLines,
		}, nil
	}

	events := make([]kafka.Event, len(req.Lines))
	submittedAt := p.now().UTC()
	for i, line := range req.Lines {
		events[i] = kafka.Event{
			Key: stored.ID,
			Value: submission.RawLineEvent{
				BatchID:      stored.ID,
				LineNo:       i + 1,
				Line:         line,
				HashSeed:     stored.HashSeed,
				HashStrategy: stored.HashStrategy,
				SubmittedAt:  submittedAt,
			},
		}
	}

	if err := p.publish(ctx, events); err != nil {
		p.logger.Error("failed to queue batch",
			"batch_id", stored.ID,
			"lines", len(events),
			"error", err,
		)
		if serr := p.store.SetStatus(ctx, stored.ID, submission.StatusFailed); serr != nil {
			p.logger.Error("failed to mark batch failed", "batch_id", stored.ID, "error", serr)
		}
		return nil, apperrors.New(apperrors.ErrInternal, http.StatusServiceUnavailable,
			fmt.Sprintf("queueing batch %s: %v", stored.ID, err))
	}

	p.logger.Info("batch queued", "batch_id", stored.ID, "lines", len(events))
	return &submission.SubmitResponse{
		BatchID:    stored.ID,
		Status:     stored.Status,
		TotalLines: stored.TotalLines,
	}, nil
}

// Batch returns the stored state of a batch.
func (p *Publisher) Batch(ctx context.Context, id string) (*submission.Batch, error) {
	return p.store.GetBatch(ctx, id)
}

func (p *Publisher) publish(ctx context.Context, events []kafka.Event) error {
	err := resilience.Retry(ctx, "publish-batch", p.opts.Retry, func() error {
		return p.breaker.Execute(func() error {
			return p.producer.PublishBatch(ctx, events)
		})
	})
	if p.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		p.metrics.EventsPublishedTotal.WithLabelValues(p.producer.Topic(), status).Add(float64(len(events)))
	}
	return err
}
