// Package featurize parses batches of example lines concurrently.
package featurize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Policy decides what a batch does when a line fails to parse.
type Policy int

const (
	// FailFast stops the batch at the first failing line.
	FailFast Policy = iota
	// SkipInvalid records the error on the line's result and keeps going.
	SkipInvalid
)

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(name) {
	case "", "failfast":
		return FailFast, nil
	case "skip", "skipinvalid":
		return SkipInvalid, nil
	default:
		return FailFast, fmt.Errorf("unknown error policy %q", name)
	}
}

// LineParser parses one line. *parser.Parser satisfies it through Direct; the
// parse cache satisfies it directly.
type LineParser interface {
	Parse(ctx context.Context, line string) (*parser.Example, error)
}

type direct struct {
	p *parser.Parser
}

// Direct adapts a parser to LineParser without caching.
func Direct(p *parser.Parser) LineParser {
	return direct{p: p}
}

func (d direct) Parse(_ context.Context, line string) (*parser.Example, error) {
	return d.p.Parse(line)
}

// Result is the outcome for one input line. Line is 1-based.
type Result struct {
	Line    int
	Example *parser.Example
	Err     error
}

// LineError ties a parse failure to its 1-based line number.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Observer receives every parse outcome, e.g. a stats aggregator.
type Observer interface {
	Observe(ex *parser.Example, err error, elapsed time.Duration)
}

// Options configures a Featurizer.
type Options struct {
	Workers int
	Policy  Policy
	// Source labels parse metrics, e.g. "http" or "cli".
	Source   string
	Metrics  *metrics.Metrics
	Observer Observer
}

// Featurizer fans lines out over a bounded set of goroutines.
type Featurizer struct {
	parser LineParser
	opts   Options
	logger *slog.Logger
}

// New creates a Featurizer. Workers below 1 means one worker.
func New(lp LineParser, opts Options) *Featurizer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Source == "" {
		opts.Source = "batch"
	}
	return &Featurizer{
		parser: lp,
		opts:   opts,
		logger: slog.Default().With("component", "featurizer"),
	}
}

// Batch parses lines and returns one Result per line in input order.
//
// Under FailFast the first failing line (by position) is returned as a
// *LineError and lines not yet started are skipped. Under SkipInvalid the
// returned error is nil unless ctx is cancelled; per-line failures are on the
// results.
func (f *Featurizer) Batch(ctx context.Context, lines []string) ([]Result, error) {
	results := make([]Result, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Workers)

	for i, line := range lines {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			start := time.Now()
			ex, err := f.parser.Parse(gctx, line)
			f.observe(time.Since(start), ex, err)
			results[i] = Result{Line: i + 1, Example: ex, Err: err}
			if err != nil && f.opts.Policy == FailFast {
				return &LineError{Line: i + 1, Err: err}
			}
			return nil
		})
	}
	waitErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if waitErr == nil {
		return results, nil
	}
	for _, r := range results {
		if r.Err != nil {
			f.logger.Debug("batch aborted", "line", r.Line, "error", r.Err)
			return results, &LineError{Line: r.Line, Err: r.Err}
		}
	}
	return results, waitErr
}

// Valid returns the examples of successful results, in order.
func Valid(results []Result) []*parser.Example {
	out := make([]*parser.Example, 0, len(results))
	for _, r := range results {
		if r.Err == nil && r.Example != nil {
			out = append(out, r.Example)
		}
	}
	return out
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

func (f *Featurizer) observe(elapsed time.Duration, ex *parser.Example, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if f.opts.Observer != nil {
		f.opts.Observer.Observe(ex, err, elapsed)
	}
	if f.opts.Metrics == nil {
		return
	}
	var nFeatures, nNamespaces int
	if ex != nil && ex.Features != nil {
		nFeatures = ex.Features.NumFeatures()
		nNamespaces = len(ex.Features.NamespaceIndices)
	}
	f.opts.Metrics.ObserveParse(f.opts.Source, elapsed, nFeatures, nNamespaces, err)
}
