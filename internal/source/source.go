// Package source opens example files for the CLI. Compressed inputs are
// recognised by extension: .gz, .zst/.zstd and .lz4. The path "-" means
// standard input or output.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/spf13/afero"

	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
)

// Stdio is the path naming stdin for Open and stdout for Create.
const Stdio = "-"

// Codec identifies a compression format.
type Codec string

const (
	CodecNone Codec = ""
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
	CodecLZ4  Codec = "lz4"
)

// CodecFor picks the codec from the file extension.
func CodecFor(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return CodecGzip
	case ".zst", ".zstd":
		return CodecZstd
	case ".lz4":
		return CodecLZ4
	default:
		return CodecNone
	}
}

// Open returns a reader over the decompressed contents of path.
func Open(fs afero.Fs, path string) (io.ReadCloser, error) {
	if path == Stdio {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	rc, err := Decompress(f, CodecFor(path))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &stackCloser{Reader: rc, closers: []io.Closer{rc, f}}, nil
}

// Decompress wraps r in a decoder for codec.
func Decompress(r io.Reader, codec Codec) (io.ReadCloser, error) {
	switch codec {
	case CodecGzip:
		return gzip.NewReader(r)
	case CodecZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case CodecLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return io.NopCloser(r), nil
	}
}

// Create opens path for writing, compressing by extension. Closing the
// returned writer flushes the encoder and then closes the file.
func Create(fs afero.Fs, path string) (io.WriteCloser, error) {
	if path == Stdio {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	wc, err := Compress(f, CodecFor(path))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &stackWriteCloser{Writer: wc, closers: []io.Closer{wc, f}}, nil
}

// Compress wraps w in an encoder for codec.
func Compress(w io.Writer, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case CodecGzip:
		return gzip.NewWriter(w), nil
	case CodecZstd:
		return zstd.NewWriter(w)
	case CodecLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nopWriteCloser{w}, nil
	}
}

// Scan calls fn for every line of r with its 1-based number. Line
// terminators are stripped. A line longer than maxLineLength bytes is an
// invalid-input error; zero means the 1MiB default.
func Scan(r io.Reader, maxLineLength int, fn func(lineNo int, line string) error) error {
	if maxLineLength <= 0 {
		maxLineLength = 1 << 20
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength+2)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSuffix(sc.Text(), "\r")
		if len(line) > maxLineLength {
			return fmt.Errorf("%w: line %d exceeds %d bytes", apperrors.ErrInvalidInput, lineNo, maxLineLength)
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("%w: line %d exceeds %d bytes", apperrors.ErrInvalidInput, lineNo+1, maxLineLength)
		}
		return fmt.Errorf("reading lines: %w", err)
	}
	return nil
}

// ReadLines collects every line of r.
func ReadLines(r io.Reader, maxLineLength int) ([]string, error) {
	var lines []string
	err := Scan(r, maxLineLength, func(_ int, line string) error {
		lines = append(lines, line)
		return nil
	})
	return lines, err
}

type stackCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

type stackWriteCloser struct {
	io.Writer
	closers []io.Closer
}

func (s *stackWriteCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
