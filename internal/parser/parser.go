// Package parser turns one line of the text example format into hashed
// features.
//
// Grammar:
//
//	line      = [label ws] [["'"] tag] { "|" namespace }
//	namespace = [name] { ws feature }
//	feature   = name ":" value | name | value
//
// A bare numeric token is an anonymous feature; a bare non-numeric token is a
// named feature with value 1. Anonymous features get ids namespace_hash+n for
// n = 0, 1, ... within their section.
package parser

import (
	"fmt"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/features"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/hasher"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
)

// defaultValue is the value of a named feature written without ":value".
const defaultValue float32 = 1.0

// Options configures a Parser. The zero value hashes with seed 0 and
// StrategyAll.
type Options struct {
	HashSeed      uint64
	Strategy      hasher.Strategy
	StrictUTF8    bool
	MaxLineLength int
}

// Example is a fully parsed line.
type Example struct {
	Label    *float32
	Tag      *string
	Features *features.Features
}

// Parser is immutable after construction and safe for concurrent use.
type Parser struct {
	opts Options
}

// New creates a Parser.
func New(opts Options) *Parser {
	return &Parser{opts: opts}
}

// Options returns the parser's configuration.
func (p *Parser) Options() Options {
	return p.opts
}

// Parse parses line with a default parser seeded by seed.
func Parse(line string, seed uint64) (*Example, error) {
	return New(Options{HashSeed: seed}).Parse(line)
}

// Parse parses a single line. On error no partial result is returned.
func (p *Parser) Parse(line string) (*Example, error) {
	if p.opts.MaxLineLength > 0 && len(line) > p.opts.MaxLineLength {
		return nil, fmt.Errorf("%w: line length %d exceeds limit %d",
			apperrors.ErrInvalidInput, len(line), p.opts.MaxLineLength)
	}
	raw, err := Tokenize(line)
	if err != nil {
		return nil, err
	}
	f, err := p.materialize(raw.Namespaces)
	if err != nil {
		return nil, err
	}
	return &Example{Label: raw.Label, Tag: raw.Tag, Features: f}, nil
}

func (p *Parser) materialize(namespaces []RawNamespace) (*features.Features, error) {
	f := features.NewFeatures()
	for i, raw := range namespaces {
		section := i + 1
		if err := p.checkName(raw.Name, section); err != nil {
			return nil, err
		}
		ns := features.NewNamespaceInfo(raw.Name, p.opts.HashSeed)
		f.Touch(ns.Index)

		tokenBase := 0
		if raw.Name != "" {
			tokenBase = 1
		}
		var anonymous uint64
		for j, rf := range raw.Features {
			if rf.HasValue {
				v, err := parseFloat(rf.Value)
				if err != nil {
					return nil, &MalformedNumberError{
						Token:      rf.Value,
						Section:    section,
						TokenIndex: tokenBase + j,
						Err:        err,
					}
				}
				if rf.Name == "" {
					f.Push(ns, ns.Hash+anonymous, v)
					anonymous++
					continue
				}
				if err := p.checkName(rf.Name, section); err != nil {
					return nil, err
				}
				f.Push(ns, p.opts.Strategy.HashFeature(rf.Name, ns.Hash), v)
				continue
			}

			if v, err := parseFloat(rf.Name); err == nil {
				f.Push(ns, ns.Hash+anonymous, v)
				anonymous++
				continue
			}
			if err := p.checkName(rf.Name, section); err != nil {
				return nil, err
			}
			f.Push(ns, p.opts.Strategy.HashFeature(rf.Name, ns.Hash), defaultValue)
		}
	}
	return f, nil
}

func (p *Parser) checkName(name string, section int) error {
	if p.opts.StrictUTF8 && !utf8.ValidString(name) {
		return &HashFailureError{Name: name, Section: section}
	}
	return nil
}

// OptionsFromConfig builds parser options from the service configuration.
func OptionsFromConfig(c config.ParserConfig) (Options, error) {
	strategy, err := hasher.ParseStrategy(c.HashStrategy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		HashSeed:      c.HashSeed,
		Strategy:      strategy,
		StrictUTF8:    c.StrictUTF8,
		MaxLineLength: c.MaxLineLength,
	}, nil
}
