package parser

import (
	"errors"
	"strings"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32(v float32) *float32 { return &v }
func str(s string) *string   { return &s }

func TestParseLabelSection(t *testing.T) {
	tests := []struct {
		in    string
		label *float32
		tag   *string
	}{
		{"0.3 ", f32(0.3), nil},
		{"  0.6 ", f32(0.6), nil},
		{"  0.6  tag", f32(0.6), str("tag")},
		{"  0.6  'tag", f32(0.6), str("tag")},
		{"tag", nil, str("tag")},
		{"'tag", nil, str("tag")},
		{"4 'tag ", f32(4), str("tag")},
		{"-1 my example ", f32(-1), str("my example")},
		{"0.3", nil, str("0.3")},
		{"   ", nil, nil},
		{"", nil, nil},
		{"-foo bar", nil, str("-foo bar")},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			label, tag := ParseLabelSection(tc.in)
			assert.Equal(t, tc.label, label)
			assert.Equal(t, tc.tag, tag)
		})
	}
}

func TestParseLabelSectionNonFloatStartsTag(t *testing.T) {
	for _, in := range []string{"1x tag", ".5e tag", "-3..1 ", "1st", "2024-01-01 ", "0x10 tag", "nan tag"} {
		label, tag := ParseLabelSection(in)
		assert.Nil(t, label, in)
		require.NotNil(t, tag, in)
		assert.Equal(t, strings.TrimSpace(in), *tag)
	}
}

func TestParseNamespaceWhitespaceInsensitive(t *testing.T) {
	want := []RawFeature{
		{Name: "test", Value: "one", HasValue: true},
		{Name: "test", Value: "two", HasValue: true},
	}
	for _, in := range []string{
		" test:one test:two",
		"             test:one   test:two          ",
		"\ttest:one \t test:two\t",
	} {
		ns := ParseNamespace(in)
		assert.Equal(t, "", ns.Name, in)
		assert.Equal(t, want, ns.Features, in)
	}
}

func TestParseNamespaceName(t *testing.T) {
	ns := ParseNamespace("user age:31 premium 42")
	assert.Equal(t, "user", ns.Name)
	assert.Equal(t, []RawFeature{
		{Name: "age", Value: "31", HasValue: true},
		{Name: "premium"},
		{Name: "42"},
	}, ns.Features)

	empty := ParseNamespace("")
	assert.Equal(t, RawNamespace{}, empty)

	onlyName := ParseNamespace("solo")
	assert.Equal(t, "solo", onlyName.Name)
	assert.Empty(t, onlyName.Features)
}

func TestSplitFeatureFirstColon(t *testing.T) {
	assert.Equal(t, RawFeature{Name: "a", Value: "b:c", HasValue: true}, splitFeature("a:b:c"))
	assert.Equal(t, RawFeature{Name: "", Value: "5", HasValue: true}, splitFeature(":5"))
	assert.Equal(t, RawFeature{Name: "x", Value: "", HasValue: true}, splitFeature("x:"))
}

func TestSplitSections(t *testing.T) {
	got := SplitSections(" |             test:one   test:two     |    test:one   test:two  ")
	assert.Equal(t, []string{
		" ",
		"             test:one   test:two     ",
		"    test:one   test:two  ",
	}, got)

	assert.Equal(t, []string{"1 tag"}, SplitSections("1 tag"))
	assert.Equal(t, []string{"", ""}, SplitSections("|"))
}

func TestTokenizeTerminators(t *testing.T) {
	for _, in := range []string{"1 |a b\n", "1 |a b\r\n", "1 |a b"} {
		ex, err := Tokenize(in)
		require.NoError(t, err, "%q", in)
		require.Len(t, ex.Namespaces, 1)
		assert.Equal(t, []RawFeature{{Name: "b"}}, ex.Namespaces[0].Features)
	}
}

func TestTokenizeIncomplete(t *testing.T) {
	_, err := Tokenize("1 |a b\n2 |a c")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrIncompleteParse))

	var ip *IncompleteParseError
	require.True(t, errors.As(err, &ip))
	assert.Equal(t, "\n2 |a c", ip.Remainder)
	assert.Equal(t, 6, ip.Offset)
}
