// Package kafka moves featurizer events through segmentio/kafka-go: raw lines
// in, featurized examples and dead letters out. Values travel as JSON.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Message is a fetched record reduced to what handlers read.
type Message struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
}

// MessageHandler processes one record. A non-nil error leaves the record
// uncommitted so the group redelivers it after a restart or rebalance.
type MessageHandler func(ctx context.Context, msg Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds one topic, as part of a consumer group, to a handler.
// Delivery is at least once.
type Consumer struct {
	r            reader
	handle       MessageHandler
	logger       *slog.Logger
	fetchBackoff time.Duration

	processed atomic.Int64
	failed    atomic.Int64
}

// NewConsumer joins cfg.ConsumerGroup on topic. A new group starts at the
// oldest retained offset so lines submitted before the first worker came up
// are still featurized.
func NewConsumer(cfg config.KafkaConfig, topic string, handle MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(r, handle, slog.Default().With("component", "kafka-consumer", "topic", topic))
}

func newConsumer(r reader, handle MessageHandler, logger *slog.Logger) *Consumer {
	return &Consumer{r: r, handle: handle, logger: logger, fetchBackoff: time.Second}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		raw, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.stop()
			}
			c.logger.Warn("fetch failed", "error", err, "backoff", c.fetchBackoff)
			select {
			case <-time.After(c.fetchBackoff):
			case <-ctx.Done():
				return c.stop()
			}
			continue
		}

		msg := fromKafka(raw)
		if err := c.handle(ctx, msg); err != nil {
			c.failed.Add(1)
			c.logger.Error("handler failed, leaving uncommitted",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}
		c.processed.Add(1)
		if err := c.r.CommitMessages(ctx, raw); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// Counts returns how many records were handled successfully and how many
// the handler rejected.
func (c *Consumer) Counts() (processed, failed int64) {
	return c.processed.Load(), c.failed.Load()
}

func (c *Consumer) stop() error {
	processed, failed := c.Counts()
	c.logger.Info("consumer stopped", "processed", processed, "failed", failed)
	return c.r.Close()
}

func fromKafka(msg kafka.Message) Message {
	out := Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}
	if len(msg.Headers) > 0 {
		out.Headers = make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			out.Headers[h.Key] = string(h.Value)
		}
	}
	return out
}

// DecodeJSON unmarshals a record value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding kafka message: %w", err)
	}
	return v, nil
}
