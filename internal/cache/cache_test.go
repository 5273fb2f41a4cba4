package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/hasher"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	gets    atomic.Int32
	failGet bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Lookup(_ context.Context, key string) ([]byte, bool, error) {
	m.gets.Add(1)
	if m.failGet {
		return nil, false, errors.New("connection reset")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func TestParseCachesResult(t *testing.T) {
	store := newMemStore()
	c := New(store, parser.New(parser.Options{HashSeed: 3}), time.Minute, nil)
	ctx := context.Background()

	first, hit, err := c.GetOrCompute(ctx, "1 'a |ns x:2 y")
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.GetOrCompute(ctx, "1 'a |ns x:2 y")
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Equal(t, *first.Label, *second.Label)
	assert.Equal(t, *first.Tag, *second.Tag)
	assert.Equal(t, first.Features.NamespaceIndices, second.Features.NamespaceIndices)
	assert.Equal(t, first.Features.Slot('n').Values, second.Features.Slot('n').Values)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCachedParseMatchesDirectParse(t *testing.T) {
	p := parser.New(parser.Options{HashSeed: 11})
	c := New(newMemStore(), p, time.Minute, nil)
	ctx := context.Background()

	for _, line := range []string{
		"|apple a:1 |banana b |avocado c:2",
		"-2.5 'tag |a 7 |b |a 0.25",
		"|",
	} {
		direct, err := p.Parse(line)
		require.NoError(t, err, line)

		miss, hit, err := c.GetOrCompute(ctx, line)
		require.NoError(t, err, line)
		assert.False(t, hit, line)
		assert.Equal(t, direct, miss, line)

		cached, hit, err := c.GetOrCompute(ctx, line)
		require.NoError(t, err, line)
		assert.True(t, hit, line)
		assert.Equal(t, direct, cached, line)
	}

	cached, _, err := c.GetOrCompute(ctx, "|apple a:1 |banana b |avocado c:2")
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b', 'a'}, cached.Features.NamespaceIndices)
}

func TestParseErrorsAreNotCached(t *testing.T) {
	store := newMemStore()
	c := New(store, parser.New(parser.Options{}), time.Minute, nil)

	_, err := c.Parse(context.Background(), "|a x:abc")
	assert.ErrorIs(t, err, apperrors.ErrMalformedNumber)
	assert.Zero(t, store.len())
}

func TestKeysDependOnSeedAndStrategy(t *testing.T) {
	store := newMemStore()
	a := New(store, parser.New(parser.Options{HashSeed: 1}), time.Minute, nil)
	b := New(store, parser.New(parser.Options{HashSeed: 2}), time.Minute, nil)
	s := New(store, parser.New(parser.Options{HashSeed: 1, Strategy: hasher.StrategyStrings}), time.Minute, nil)

	line := "|n f"
	assert.NotEqual(t, a.buildKey(line), b.buildKey(line))
	assert.NotEqual(t, a.buildKey(line), s.buildKey(line))
	assert.NotEqual(t, a.buildKey(line), a.buildKey(line+" "))

	exA, err := a.Parse(context.Background(), line)
	require.NoError(t, err)
	exB, err := b.Parse(context.Background(), line)
	require.NoError(t, err)
	assert.NotEqual(t, exA.Features.Slot('n').Values[0].ID, exB.Features.Slot('n').Values[0].ID)
}

func TestStoreFailureFallsBackToParsing(t *testing.T) {
	store := newMemStore()
	store.failGet = true
	c := New(store, parser.New(parser.Options{}), time.Minute, nil)

	ex, err := c.Parse(context.Background(), "|a x")
	require.NoError(t, err)
	assert.Equal(t, 1, ex.Features.NumFeatures())
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	store.data["other:key"] = []byte("x")
	c := New(store, parser.New(parser.Options{}), time.Minute, nil)
	_, err := c.Parse(context.Background(), "|a x")
	require.NoError(t, err)
	_, err = c.Parse(context.Background(), "|b y")
	require.NoError(t, err)

	n, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, store.len())
}

func TestConcurrentParseSameLine(t *testing.T) {
	store := newMemStore()
	c := New(store, parser.New(parser.Options{}), time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ex, err := c.Parse(context.Background(), "1 |ns a b c")
			if assert.NoError(t, err) {
				assert.Equal(t, 3, ex.Features.NumFeatures())
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, store.len())
}
