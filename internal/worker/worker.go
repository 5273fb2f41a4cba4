// Package worker consumes raw example lines queued by the submission API,
// featurizes them and publishes the result. Lines that fail to parse go to
// the dead-letter topic with their error kind; either way the batch row is
// advanced.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/featurize"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/hasher"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/resilience"
)

// KindHeader carries the error kind on dead-letter records.
const KindHeader = "kind"

const source = "worker"

// Config holds the parser limits applied to every line. HashSeed and
// Strategy are ignored: each event carries the settings of its batch.
type Config struct {
	Parser   parser.Options
	Retry    resilience.RetryConfig
	Observer featurize.Observer
}

// Worker is safe for concurrent use.
type Worker struct {
	cfg        Config
	featurized kafka.Publisher
	deadLetter kafka.Publisher
	store      store.BatchStore
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Worker. st and m may be nil.
func New(cfg Config, featurized, deadLetter kafka.Publisher, st store.BatchStore, m *metrics.Metrics) *Worker {
	return &Worker{
		cfg:        cfg,
		featurized: featurized,
		deadLetter: deadLetter,
		store:      st,
		metrics:    m,
		logger:     slog.Default().With("component", "featurize-worker"),
		now:        time.Now,
	}
}

// HandleMessage is a kafka.MessageHandler. Undecodable records are logged
// and dropped; publish and store failures are returned so the record is
// redelivered.
func (w *Worker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	event, err := kafka.DecodeJSON[submission.RawLineEvent](msg.Value)
	if err != nil {
		w.logger.Error("failed to decode raw line event",
			"error", err,
			"key", string(msg.Key),
			"offset", msg.Offset,
		)
		return nil
	}

	ex, perr := w.parse(event)
	if perr != nil {
		if err := w.publishDeadLetter(ctx, event, perr); err != nil {
			return err
		}
	} else {
		if err := w.publishFeaturized(ctx, event, ex); err != nil {
			return err
		}
	}

	if w.store != nil {
		if err := w.store.RecordLine(ctx, event.BatchID, perr != nil); err != nil {
			if errors.Is(err, apperrors.ErrBatchNotFound) {
				w.logger.Warn("line for unknown batch", "batch_id", event.BatchID, "line_no", event.LineNo)
				return nil
			}
			return fmt.Errorf("recording line %d of batch %s: %w", event.LineNo, event.BatchID, err)
		}
	}
	return nil
}

func (w *Worker) parse(event submission.RawLineEvent) (*parser.Example, error) {
	start := time.Now()
	p, err := w.parserFor(event.HashSeed, event.HashStrategy)
	var ex *parser.Example
	if err == nil {
		ex, err = p.Parse(event.Line)
	}
	elapsed := time.Since(start)

	if w.cfg.Observer != nil {
		w.cfg.Observer.Observe(ex, err, elapsed)
	}
	if w.metrics != nil {
		n, ns := 0, 0
		if ex != nil {
			n = ex.Features.NumFeatures()
			ns = len(ex.Features.NamespaceIndices)
		}
		w.metrics.ObserveParse(source, elapsed, n, ns, err)
	}
	return ex, err
}

// parserFor builds a parser with the batch's hash settings. Seeds come from
// clients, so parsers are not kept between records.
func (w *Worker) parserFor(seed uint64, strategyName string) (*parser.Parser, error) {
	strategy, err := hasher.ParseStrategy(strategyName)
	if err != nil {
		return nil, err
	}
	opts := w.cfg.Parser
	opts.HashSeed = seed
	opts.Strategy = strategy
	return parser.New(opts), nil
}

func (w *Worker) publishFeaturized(ctx context.Context, event submission.RawLineEvent, ex *parser.Example) error {
	out := kafka.Event{
		Key: event.BatchID,
		Value: submission.FeaturizedEvent{
			BatchID:     event.BatchID,
			LineNo:      event.LineNo,
			Example:     featurize.FromExample(ex),
			ProcessedAt: w.now().UTC(),
		},
	}
	return w.publish(ctx, w.featurized, out)
}

func (w *Worker) publishDeadLetter(ctx context.Context, event submission.RawLineEvent, perr error) error {
	kind := apperrors.Kind(perr)
	w.logger.Warn("line failed to parse",
		"batch_id", event.BatchID,
		"line_no", event.LineNo,
		"kind", kind,
		"error", perr,
	)
	out := kafka.Event{
		Key: event.BatchID,
		Value: submission.DeadLetterEvent{
			BatchID:  event.BatchID,
			LineNo:   event.LineNo,
			Line:     event.Line,
			Kind:     kind,
			Error:    perr.Error(),
			FailedAt: w.now().UTC(),
		},
		Headers: map[string]string{KindHeader: kind},
	}
	return w.publish(ctx, w.deadLetter, out)
}

func (w *Worker) publish(ctx context.Context, p kafka.Publisher, event kafka.Event) error {
	err := resilience.Retry(ctx, "publish-"+p.Topic(), w.cfg.Retry, func() error {
		return p.Publish(ctx, event)
	})
	if w.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		w.metrics.EventsPublishedTotal.WithLabelValues(p.Topic(), status).Inc()
	}
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", p.Topic(), err)
	}
	return nil
}
