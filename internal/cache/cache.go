// Package cache memoises parsed lines in Redis. Keys are derived from the
// line and the hashing options, so a seed or strategy change never serves a
// stale result.
package cache

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/features"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/featurize"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/redis"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "fh:parse:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Lookup(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// ParseCache wraps a parser with a Redis-backed result cache. Failed parses
// are not cached. It satisfies featurize.LineParser.
type ParseCache struct {
	store   Store
	parser  *parser.Parser
	ttl     time.Duration
	prefix  string
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache in front of p. m may be nil.
func New(store Store, p *parser.Parser, ttl time.Duration, m *metrics.Metrics) *ParseCache {
	opts := p.Options()
	return &ParseCache{
		store:   store,
		parser:  p,
		ttl:     ttl,
		prefix:  keyPrefix + opts.Strategy.String() + ":" + strconv.FormatUint(opts.HashSeed, 10) + ":",
		metrics: m,
		logger:  slog.Default().With("component", "parse-cache"),
	}
}

// Parse returns the cached example for line, parsing and storing it on a
// miss. Concurrent misses for the same line parse once. Cache failures are
// logged and fall back to parsing.
func (c *ParseCache) Parse(ctx context.Context, line string) (*parser.Example, error) {
	ex, _, err := c.GetOrCompute(ctx, line)
	return ex, err
}

// GetOrCompute is Parse that also reports whether the result came from the
// cache.
func (c *ParseCache) GetOrCompute(ctx context.Context, line string) (*parser.Example, bool, error) {
	key := c.buildKey(line)
	if ex, ok := c.get(ctx, key); ok {
		c.recordHit()
		return ex, true, nil
	}
	c.recordMiss()
	val, err, _ := c.group.Do(key, func() (any, error) {
		if ex, ok := c.get(ctx, key); ok {
			return ex, nil
		}
		ex, err := c.parser.Parse(line)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, ex)
		return ex, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*parser.Example), false, nil
}

func (c *ParseCache) get(ctx context.Context, key string) (*parser.Example, bool) {
	data, found, err := c.store.Lookup(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var entry cachedExample
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return entry.toExample(), true
}

func (c *ParseCache) set(ctx context.Context, key string, ex *parser.Example) {
	data, err := json.Marshal(newCachedExample(ex))
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// cachedExample is the stored form of a parse. Unlike the wire form it keeps
// every entry of NamespaceIndices, repeats included, so a hit is identical to
// a fresh parse.
type cachedExample struct {
	Label            *float32     `json:"label,omitempty"`
	Tag              *string      `json:"tag,omitempty"`
	NamespaceIndices []byte       `json:"namespace_indices"`
	Slots            []cachedSlot `json:"slots"`
}

type cachedSlot struct {
	Index    byte               `json:"index"`
	Features []features.Feature `json:"features"`
}

func newCachedExample(ex *parser.Example) cachedExample {
	entry := cachedExample{
		Label:            ex.Label,
		Tag:              ex.Tag,
		NamespaceIndices: ex.Features.NamespaceIndices,
	}
	for _, idx := range ex.Features.Populated() {
		entry.Slots = append(entry.Slots, cachedSlot{
			Index:    idx,
			Features: ex.Features.Slot(idx).Values,
		})
	}
	return entry
}

func (e cachedExample) toExample() *parser.Example {
	f := features.NewFeatures()
	f.NamespaceIndices = append(f.NamespaceIndices, e.NamespaceIndices...)
	for _, slot := range e.Slots {
		f.Slot(slot.Index).Values = slot.Features
	}
	return &parser.Example{Label: e.Label, Tag: e.Tag, Features: f}
}

// Invalidate drops every cached parse, for all seeds and strategies.
func (c *ParseCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns hit and miss counts since construction.
func (c *ParseCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ParseCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ParseCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// buildKey digests the line with xxhash. The line length is mixed in to make
// accidental collisions between long lines even less likely.
func (c *ParseCache) buildKey(line string) string {
	d := xxhash.New()
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(line)))
	d.Write(n[:])
	d.WriteString(line)
	return c.prefix + strconv.FormatUint(d.Sum64(), 16)
}

var _ featurize.LineParser = (*ParseCache)(nil)

var _ Store = (*pkgredis.Client)(nil)
