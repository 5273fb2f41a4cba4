package hasher

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
)

// Strategy selects how feature names are turned into ids.
type Strategy int

const (
	// StrategyAll hashes every name, numeric or not.
	StrategyAll Strategy = iota
	// StrategyStrings treats names made only of ASCII digits as integers and
	// offsets them by the seed instead of hashing. This mirrors the native
	// engine's "--hash strings" mode.
	StrategyStrings
)

func (s Strategy) String() string {
	switch s {
	case StrategyAll:
		return "all"
	case StrategyStrings:
		return "strings"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a config value to a Strategy. The empty string selects
// StrategyAll.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "all":
		return StrategyAll, nil
	case "strings":
		return StrategyStrings, nil
	default:
		return StrategyAll, fmt.Errorf("%w: unknown hash strategy %q", apperrors.ErrInvalidInput, name)
	}
}

// HashFeature computes the id for a feature name inside a namespace whose hash
// is seed.
func (s Strategy) HashFeature(name string, seed uint64) uint64 {
	if s == StrategyStrings {
		if v, ok := parseDigits(name); ok {
			return v + seed
		}
	}
	return HashString(name, seed)
}

// parseDigits accepts a non-empty run of ASCII digits. Overflow wraps, which
// matches the unsigned arithmetic of the native engine.
func parseDigits(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	return v, true
}
