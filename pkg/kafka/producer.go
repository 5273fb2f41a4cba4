package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Event is one record to publish. Key picks the partition, so every line of
// a batch keyed by batch id lands on the same partition in order.
type Event struct {
	Key     string
	Value   any
	Headers map[string]string
}

// Publisher is the write side used by batch submission and the worker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	PublishBatch(ctx context.Context, events []Event) error
	Topic() string
}

// Producer writes synchronously with acks from all in-sync replicas.
type Producer struct {
	w      *kafka.Writer
	topic  string
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    500,
			BatchTimeout: 5 * time.Millisecond,
			MaxAttempts:  3,
			RequiredAcks: kafka.RequireAll,
			Compression:  compressionCodec(cfg.Compression),
		},
		topic:  topic,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func (p *Producer) Topic() string { return p.topic }

func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes every event before writing any, so an unencodable
// value fails the whole call without a partial write.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		m, err := toKafka(ev)
		if err != nil {
			return fmt.Errorf("event %d (key %q): %w", i, ev.Key, err)
		}
		msgs[i] = m
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("write failed", "records", len(msgs), "error", err)
		return fmt.Errorf("writing %d records to %s: %w", len(msgs), p.topic, err)
	}
	p.logger.Debug("records written", "records", len(msgs))
	return nil
}

// Close flushes buffered records.
func (p *Producer) Close() error {
	return p.w.Close()
}

func toKafka(ev Event) (kafka.Message, error) {
	value, err := json.Marshal(ev.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding value: %w", err)
	}
	m := kafka.Message{Key: []byte(ev.Key), Value: value}
	if len(ev.Headers) > 0 {
		m.Headers = make([]kafka.Header, 0, len(ev.Headers))
		for k, v := range ev.Headers {
			m.Headers = append(m.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}
	return m, nil
}

// compressionCodec maps kafka.compression from config; anything unknown
// sends records uncompressed.
func compressionCodec(name string) kafka.Compression {
	switch strings.ToLower(name) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	}
	return 0
}
