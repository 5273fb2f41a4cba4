package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/featurize"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/hasher"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/publisher"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/store"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/validator"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopProducer struct{ n int }

func (p *nopProducer) Publish(context.Context, kafka.Event) error { p.n++; return nil }
func (p *nopProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.n += len(events)
	return nil
}
func (p *nopProducer) Topic() string { return "examples.raw" }

func newServer(t *testing.T, policy featurize.Policy, sub Submitter) *httptest.Server {
	t.Helper()
	h := New(Config{
		Parser:  parser.Options{},
		Workers: 4,
		Policy:  policy,
		Limits:  validator.Limits{MaxLines: 100, MaxLineLength: 1024},
	}, nil, sub, nil)
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestParseEndpoint(t *testing.T) {
	srv := newServer(t, featurize.FailFast, nil)
	resp := post(t, srv.URL+"/api/v1/parse", submission.ParseRequest{
		Lines: []string{"4 'tag |test test:-4.5 another -4.5", "0.3 | test:1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out submission.ParseResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Examples, 2)
	first := out.Examples[0]
	assert.Equal(t, float32(4), *first.Label)
	assert.Equal(t, "tag", *first.Tag)
	require.Len(t, first.Namespaces, 1)
	assert.Equal(t, uint8('t'), first.Namespaces[0].Index)
	assert.Len(t, first.Namespaces[0].Features, 3)

	second := out.Examples[1]
	require.Len(t, second.Namespaces, 1)
	assert.Equal(t, uint8(32), second.Namespaces[0].Index)
	assert.Empty(t, out.Errors)
}

func TestParseEndpointMalformedNumber(t *testing.T) {
	srv := newServer(t, featurize.FailFast, nil)
	resp := post(t, srv.URL+"/api/v1/parse", submission.ParseRequest{Lines: []string{"1 |a x", "|a x:abc"}})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body submission.LineError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Line)
	assert.Equal(t, "malformed_number", body.Kind)
	assert.Equal(t, "abc", body.Token)
	assert.NotEmpty(t, body.Error)
}

func TestParseEndpointSkipInvalid(t *testing.T) {
	srv := newServer(t, featurize.FailFast, nil)
	skip := true
	resp := post(t, srv.URL+"/api/v1/parse", submission.ParseRequest{
		Lines:       []string{"1 |a x", "x\ny", "|b z"},
		SkipInvalid: &skip,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out submission.ParseResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Examples, 3)
	assert.NotNil(t, out.Examples[0])
	assert.Nil(t, out.Examples[1])
	assert.NotNil(t, out.Examples[2])
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 2, out.Errors[0].Line)
	assert.Equal(t, "incomplete_parse", out.Errors[0].Kind)
}

func TestParseEndpointSeedOverride(t *testing.T) {
	srv := newServer(t, featurize.FailFast, nil)
	seed := uint64(99)
	resp := post(t, srv.URL+"/api/v1/parse", submission.ParseRequest{Lines: []string{"|n f"}, Seed: &seed})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out submission.ParseResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	want := hasher.HashString("f", hasher.HashString("n", 99))
	assert.Equal(t, want, out.Examples[0].Namespaces[0].Features[0].ID)
}

func TestParseEndpointValidation(t *testing.T) {
	srv := newServer(t, featurize.FailFast, nil)

	resp := post(t, srv.URL+"/api/v1/parse", submission.ParseRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv.URL+"/api/v1/parse", submission.ParseRequest{Lines: []string{"a"}, Strategy: "md5"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := http.Post(srv.URL+"/api/v1/parse", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestHashEndpoint(t *testing.T) {
	srv := newServer(t, featurize.FailFast, nil)
	resp := post(t, srv.URL+"/api/v1/hash", submission.HashRequest{Value: "Hello, world!", Seed: 0x9747b28c})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out submission.HashResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, uint64(0x24884CBA), out.Hash)
}

func TestSubmitAndGetBatch(t *testing.T) {
	prod := &nopProducer{}
	pub := publisher.New(store.NewMemoryStore(), prod, publisher.Options{
		Retry: resilience.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond},
	}, nil)
	srv := newServer(t, featurize.FailFast, pub)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/examples",
		bytes.NewReader([]byte(`{"lines":["1 |a x","0 |b y"]}`)))
	require.NoError(t, err)
	req.Header.Set("Idempotency-Key", "abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var sub submission.SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
	assert.Equal(t, 2, sub.TotalLines)
	assert.Equal(t, 2, prod.n)

	got, err := http.Get(srv.URL + "/api/v1/batches/" + sub.BatchID)
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)
	var batch submission.Batch
	require.NoError(t, json.NewDecoder(got.Body).Decode(&batch))
	assert.Equal(t, "abc", batch.IdempotencyKey)
	assert.Equal(t, submission.StatusPending, batch.Status)

	missing, err := http.Get(srv.URL + "/api/v1/batches/nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestSubmitWithoutSubmitter(t *testing.T) {
	srv := newServer(t, featurize.FailFast, nil)
	resp := post(t, srv.URL+"/api/v1/examples", submission.SubmitRequest{Lines: []string{"1"}})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
