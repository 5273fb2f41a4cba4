package featurize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFeaturizer(workers int, policy Policy) *Featurizer {
	return New(Direct(parser.New(parser.Options{})), Options{Workers: workers, Policy: policy})
}

func TestBatchPreservesOrder(t *testing.T) {
	lines := make([]string, 200)
	for i := range lines {
		lines[i] = fmt.Sprintf("%d |n f%d:%d", i, i, i)
	}
	results, err := newFeaturizer(8, FailFast).Batch(context.Background(), lines)
	require.NoError(t, err)
	require.Len(t, results, len(lines))
	for i, r := range results {
		assert.Equal(t, i+1, r.Line)
		require.NoError(t, r.Err)
		require.NotNil(t, r.Example.Label)
		assert.Equal(t, float32(i), *r.Example.Label)
		assert.Equal(t, float32(i), r.Example.Features.Slot('n').Values[0].Value)
	}
}

func TestBatchFailFastReturnsFirstBadLine(t *testing.T) {
	lines := []string{"1 |a x:1", "|a x:abc", "|a y:1", "|a z:nope"}
	results, err := newFeaturizer(1, FailFast).Batch(context.Background(), lines)
	require.Error(t, err)

	var lineErr *LineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, 2, lineErr.Line)
	assert.ErrorIs(t, err, apperrors.ErrMalformedNumber)

	var mn *parser.MalformedNumberError
	require.ErrorAs(t, err, &mn)
	assert.Equal(t, "abc", mn.Token)

	require.Len(t, results, len(lines))
	assert.NoError(t, results[0].Err)
}

func TestBatchFailFastManyWorkersStillReportsLowestLine(t *testing.T) {
	lines := make([]string, 64)
	for i := range lines {
		lines[i] = "|a ok"
	}
	lines[10] = "|a bad:x"
	lines[40] = "|a bad:y"

	_, err := newFeaturizer(16, FailFast).Batch(context.Background(), lines)
	var lineErr *LineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, 11, lineErr.Line)
}

func TestBatchSkipInvalid(t *testing.T) {
	lines := []string{"1 |a x", "|a x:abc", "x\ny", "0 |b y"}
	results, err := newFeaturizer(4, SkipInvalid).Batch(context.Background(), lines)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, apperrors.ErrMalformedNumber)
	assert.ErrorIs(t, results[2].Err, apperrors.ErrIncompleteParse)
	assert.NoError(t, results[3].Err)

	assert.Len(t, Valid(results), 2)
	failed := Failed(results)
	require.Len(t, failed, 2)
	assert.Equal(t, 2, failed[0].Line)
	assert.Equal(t, 3, failed[1].Line)
}

func TestBatchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newFeaturizer(2, SkipInvalid).Batch(ctx, []string{"|a x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchEmpty(t *testing.T) {
	results, err := newFeaturizer(2, FailFast).Batch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBatchRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	f := New(Direct(parser.New(parser.Options{})), Options{Workers: 2, Policy: SkipInvalid, Source: "test", Metrics: m})

	_, err := f.Batch(context.Background(), []string{"|a x", "|a x:bad"})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "featurehash_lines_parsed_total" {
			found = true
			assert.Len(t, mf.GetMetric(), 2)
		}
	}
	assert.True(t, found)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, FailFast, p)

	p, err = ParsePolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, SkipInvalid, p)

	_, err = ParsePolicy("ignore")
	assert.Error(t, err)
}

func TestFeaturizedJSON(t *testing.T) {
	ex, err := parser.Parse("4 'tag |test test:-4.5", 0)
	require.NoError(t, err)

	data, err := json.Marshal(FromExample(ex))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(4), decoded["label"])
	assert.Equal(t, "tag", decoded["tag"])
	nss := decoded["namespaces"].([]any)
	require.Len(t, nss, 1)
	assert.Equal(t, float64('t'), nss[0].(map[string]any)["index"])
}

func TestFeaturizedOmitsMissingLabel(t *testing.T) {
	ex, err := parser.Parse("|", 0)
	require.NoError(t, err)
	data, err := json.Marshal(FromExample(ex))
	require.NoError(t, err)
	assert.JSONEq(t, `{"namespaces":[{"index":32,"features":[]}]}`, string(data))
}

func TestFeaturizedToExample(t *testing.T) {
	ex, err := parser.Parse("1 |a x y:2 |b 3", 9)
	require.NoError(t, err)

	wire := FromExample(ex)
	assert.Equal(t, 3, wire.NumFeatures())

	back := wire.ToExample()
	assert.Equal(t, ex.Features.NamespaceIndices, back.Features.NamespaceIndices)
	assert.Equal(t, ex.Features.Slot('a').Values, back.Features.Slot('a').Values)
	assert.Equal(t, ex.Features.Slot('b').Values, back.Features.Slot('b').Values)
	assert.Equal(t, *ex.Label, *back.Label)
}

func TestLineErrorUnwrap(t *testing.T) {
	err := &LineError{Line: 3, Err: apperrors.ErrHashFailure}
	assert.True(t, errors.Is(err, apperrors.ErrHashFailure))
	assert.Equal(t, "line 3: hash failure", err.Error())
}
