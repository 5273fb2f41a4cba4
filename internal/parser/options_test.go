package parser

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/hasher"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(config.ParserConfig{
		HashSeed:      9,
		HashStrategy:  "strings",
		StrictUTF8:    true,
		MaxLineLength: 64,
	})
	require.NoError(t, err)
	assert.Equal(t, Options{HashSeed: 9, Strategy: hasher.StrategyStrings, StrictUTF8: true, MaxLineLength: 64}, opts)

	_, err = OptionsFromConfig(config.ParserConfig{HashStrategy: "md5"})
	assert.Error(t, err)
}
