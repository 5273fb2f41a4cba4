package rpcapi

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/hasher"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialService(t *testing.T, svc *Service) *rpc.Client {
	t.Helper()
	srv := rpc.NewServer()
	svc.Register(srv)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ln) }()

	c, err := rpc.Dial(ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
		srv.Stop()
		<-done
	})
	return c
}

func newService(checker *health.Checker) (*Service, *stats.Aggregator) {
	agg := stats.NewAggregator()
	cfg := Config{
		Workers:  4,
		Limits:   validator.Limits{MaxLines: 100, MaxLineLength: 1024},
		Observer: agg,
	}
	return New(cfg, nil, checker, nil), agg
}

func TestParseOverRPC(t *testing.T) {
	svc, agg := newService(nil)
	c := dialService(t, svc)

	var resp proto.ParseResponse
	err := c.Call(context.Background(), proto.MethodParse,
		proto.ParseRequest{Lines: []string{"1 'a |n f:2", "|m 3 4"}}, &resp)
	require.NoError(t, err)
	require.Len(t, resp.Examples, 2)

	first := resp.Examples[0]
	require.NotNil(t, first.Label)
	assert.Equal(t, float32(1), *first.Label)
	assert.Equal(t, "a", *first.Tag)
	nsHash := hasher.HashString("n", 0)
	assert.Equal(t, []proto.Namespace{{Index: 'n', Features: []proto.Feature{{ID: hasher.HashString("f", nsHash), Value: 2}}}},
		first.Namespaces)

	mHash := hasher.HashString("m", 0)
	assert.Equal(t, []proto.Feature{{ID: mHash, Value: 3}, {ID: mHash + 1, Value: 4}}, resp.Examples[1].Namespaces[0].Features)
	assert.Equal(t, int64(2), agg.Stats().ParsedLines)
}

func TestParseFailFastOverRPC(t *testing.T) {
	svc, _ := newService(nil)
	c := dialService(t, svc)

	var resp proto.ParseResponse
	err := c.Call(context.Background(), proto.MethodParse,
		proto.ParseRequest{Lines: []string{"|n ok", "|n x:abc"}}, &resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedNumber)
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseSkipInvalidOverRPC(t *testing.T) {
	svc, _ := newService(nil)
	c := dialService(t, svc)

	var resp proto.ParseResponse
	err := c.Call(context.Background(), proto.MethodParse,
		proto.ParseRequest{Lines: []string{"|n x:abc", "|n ok"}, SkipInvalid: true}, &resp)
	require.NoError(t, err)
	require.Len(t, resp.Examples, 2)
	assert.Nil(t, resp.Examples[0])
	assert.NotNil(t, resp.Examples[1])
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, proto.LineError{Line: 1, Kind: "malformed_number", Error: resp.Errors[0].Error, Token: "abc"}, resp.Errors[0])
}

func TestParseSeedOverride(t *testing.T) {
	svc, _ := newService(nil)
	seed := uint64(99)
	resp, err := svc.Parse(context.Background(), &proto.ParseRequest{Lines: []string{"|n f"}, Seed: &seed})
	require.NoError(t, err)
	assert.Equal(t, hasher.HashString("f", hasher.HashString("n", 99)), resp.Examples[0].Namespaces[0].Features[0].ID)
}

func TestParseRejectsInvalidRequest(t *testing.T) {
	svc, _ := newService(nil)
	_, err := svc.Parse(context.Background(), &proto.ParseRequest{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.Parse(context.Background(), &proto.ParseRequest{Lines: []string{"|n f"}, Strategy: "md5"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestHashOverRPC(t *testing.T) {
	svc, _ := newService(nil)
	c := dialService(t, svc)

	var resp proto.HashResponse
	require.NoError(t, c.Call(context.Background(), proto.MethodHash, proto.HashRequest{Value: "hello", Seed: 3}, &resp))
	assert.Equal(t, hasher.HashString("hello", 3), resp.Hash)
}

func TestHealthOverRPC(t *testing.T) {
	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(func(context.Context) error { return assert.AnError }, true))
	svc, _ := newService(checker)
	c := dialService(t, svc)

	var resp proto.HealthCheckResponse
	require.NoError(t, c.Call(context.Background(), proto.MethodHealth, struct{}{}, &resp))
	assert.Equal(t, "NOT_SERVING", resp.Status)

	svc2, _ := newService(nil)
	c2 := dialService(t, svc2)
	require.NoError(t, c2.Call(context.Background(), proto.MethodHealth, struct{}{}, &resp))
	assert.Equal(t, "SERVING", resp.Status)
}

type blockingParser struct{}

func (blockingParser) Parse(ctx context.Context, _ string) (*parser.Example, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestParseTimeout(t *testing.T) {
	svc := New(Config{
		Workers: 1,
		Limits:  validator.Limits{MaxLines: 10, MaxLineLength: 1024},
		Timeout: 20 * time.Millisecond,
	}, blockingParser{}, nil, nil)

	_, err := svc.Parse(context.Background(), &proto.ParseRequest{Lines: []string{"|n f"}})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, "timeout", apperrors.Kind(err))
}
