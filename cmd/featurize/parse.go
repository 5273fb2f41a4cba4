package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/featurize"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/hasher"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/parser"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/source"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/stats"
	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
)

// chunkLines bounds how many lines are held in memory per batch.
const chunkLines = 4096

type parseFlags struct {
	seed          uint64
	strategy      string
	workers       int
	skipInvalid   bool
	strictUTF8    bool
	maxLineLength int
	output        string
	printStats    bool
}

func newParseCmd() *cobra.Command {
	var f parseFlags
	cmd := &cobra.Command{
		Use:   "parse [file ...]",
		Short: "Featurize example lines into JSON lines",
		Long: "Reads example lines from the given files (or stdin when none or \"-\") " +
			"and writes one JSON object per line. Files ending in .gz, .zst or .lz4 " +
			"are decompressed; the output is compressed the same way by extension.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{source.Stdio}
			}
			return runParse(cmd.Context(), afero.NewOsFs(), f, args, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "hash seed")
	cmd.Flags().StringVar(&f.strategy, "strategy", "all", "feature hashing strategy (all, strings)")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 4, "parallel parse workers")
	cmd.Flags().BoolVar(&f.skipInvalid, "skip-invalid", false, "report bad lines on stderr and continue")
	cmd.Flags().BoolVar(&f.strictUTF8, "strict-utf8", false, "reject names that are not valid UTF-8")
	cmd.Flags().IntVar(&f.maxLineLength, "max-line-length", 1<<20, "maximum line length in bytes")
	cmd.Flags().StringVarP(&f.output, "output", "o", source.Stdio, "output file (\"-\" for stdout)")
	cmd.Flags().BoolVar(&f.printStats, "stats", false, "print parse statistics to stderr when done")
	return cmd
}

func runParse(ctx context.Context, fs afero.Fs, f parseFlags, inputs []string, stdin io.Reader, stdout, stderr io.Writer) error {
	strategy, err := hasher.ParseStrategy(f.strategy)
	if err != nil {
		return err
	}
	policy := featurize.FailFast
	if f.skipInvalid {
		policy = featurize.SkipInvalid
	}
	agg := stats.NewAggregator()
	fz := featurize.New(featurize.Direct(parser.New(parser.Options{
		HashSeed:      f.seed,
		Strategy:      strategy,
		StrictUTF8:    f.strictUTF8,
		MaxLineLength: f.maxLineLength,
	})), featurize.Options{Workers: f.workers, Policy: policy, Source: "cli", Observer: agg})

	var out io.WriteCloser
	if f.output == source.Stdio {
		out = nopCloser{stdout}
	} else if out, err = source.Create(fs, f.output); err != nil {
		return err
	}
	enc := json.NewEncoder(out)

	runErr := func() error {
		for _, in := range inputs {
			if err := parseFile(ctx, fs, fz, in, f.maxLineLength, stdin, enc, stderr); err != nil {
				return err
			}
		}
		return nil
	}()
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("closing %s: %w", f.output, err)
	}
	if f.printStats {
		e := json.NewEncoder(stderr)
		e.SetIndent("", "  ")
		if err := e.Encode(agg.Stats()); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func parseFile(ctx context.Context, fs afero.Fs, fz *featurize.Featurizer, path string, maxLineLength int, stdin io.Reader, enc *json.Encoder, stderr io.Writer) error {
	var r io.ReadCloser
	var err error
	if path == source.Stdio {
		r = io.NopCloser(stdin)
	} else if r, err = source.Open(fs, path); err != nil {
		return err
	}
	defer r.Close()

	chunk := make([]string, 0, chunkLines)
	offset := 0
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		results, err := fz.Batch(ctx, chunk)
		if err != nil {
			var lineErr *featurize.LineError
			if errors.As(err, &lineErr) {
				return fmt.Errorf("%s:%d: %s: %w", path, offset+lineErr.Line, apperrors.Kind(lineErr.Err), lineErr.Err)
			}
			return err
		}
		for _, res := range results {
			if res.Err != nil {
				fmt.Fprintf(stderr, "%s:%d: %s: %v\n", path, offset+res.Line, apperrors.Kind(res.Err), res.Err)
				continue
			}
			if err := enc.Encode(featurize.FromExample(res.Example)); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
		}
		offset += len(chunk)
		chunk = chunk[:0]
		return nil
	}

	err = source.Scan(r, maxLineLength, func(_ int, line string) error {
		chunk = append(chunk, line)
		if len(chunk) == chunkLines {
			return flush()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return flush()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
