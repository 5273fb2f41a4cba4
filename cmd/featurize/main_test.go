package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/featurize"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/hasher"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/source"
)

func defaultFlags() parseFlags {
	return parseFlags{strategy: "all", workers: 2, maxLineLength: 1 << 20, output: source.Stdio}
}

func decodeLines(t *testing.T, data string) []featurize.Featurized {
	t.Helper()
	var out []featurize.Featurized
	dec := json.NewDecoder(strings.NewReader(data))
	for {
		var f featurize.Featurized
		err := dec.Decode(&f)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, f)
	}
}

func TestParseFromStdin(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := runParse(context.Background(), afero.NewMemMapFs(), defaultFlags(), []string{source.Stdio},
		strings.NewReader("1 |a x\n0 'b |c 2 3\n"), &stdout, &stderr)
	require.NoError(t, err)

	got := decodeLines(t, stdout.String())
	require.Len(t, got, 2)
	assert.Equal(t, float32(1), *got[0].Label)
	assert.Equal(t, "b", *got[1].Tag)
	cHash := hasher.HashString("c", 0)
	assert.Equal(t, cHash+1, got[1].Namespaces[0].Features[1].ID)
	assert.Empty(t, stderr.String())
}

func TestParseCompressedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	w, err := source.Create(fs, "in.txt.zst")
	require.NoError(t, err)
	_, err = io.WriteString(w, "|n a\n|n b\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f := defaultFlags()
	f.output = "out.jsonl.gz"
	var stdout, stderr bytes.Buffer
	require.NoError(t, runParse(context.Background(), fs, f, []string{"in.txt.zst"}, nil, &stdout, &stderr))
	assert.Zero(t, stdout.Len())

	r, err := source.Open(fs, "out.jsonl.gz")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, decodeLines(t, string(data)), 2)
}

func TestParseFailFastReportsLine(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "bad.txt", []byte("|n a\n|n x:abc\n"), 0o644))

	var stdout, stderr bytes.Buffer
	err := runParse(context.Background(), fs, defaultFlags(), []string{"bad.txt"}, nil, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.txt:2: malformed_number")
}

func TestParseSkipInvalid(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "bad.txt", []byte("|n x:abc\n|n a\n"), 0o644))

	f := defaultFlags()
	f.skipInvalid = true
	f.printStats = true
	var stdout, stderr bytes.Buffer
	require.NoError(t, runParse(context.Background(), fs, f, []string{"bad.txt"}, nil, &stdout, &stderr))

	assert.Len(t, decodeLines(t, stdout.String()), 1)
	assert.Contains(t, stderr.String(), "bad.txt:1: malformed_number")
	assert.Contains(t, stderr.String(), `"failed_lines": 1`)
}

func TestParseUnknownStrategy(t *testing.T) {
	f := defaultFlags()
	f.strategy = "md5"
	err := runParse(context.Background(), afero.NewMemMapFs(), f, nil, nil, io.Discard, io.Discard)
	assert.Error(t, err)
}

func TestHashCommand(t *testing.T) {
	for _, tc := range []struct {
		args []string
		want string
	}{
		{[]string{"hash", "--seed", "2538058380", "Hello, world!"}, "612912314\n"},
		{[]string{"hash", "--hex", "--seed", "2538058380", "Hello, world!"}, "0x24884CBA\n"},
		{[]string{"hash", ""}, "0\n"},
	} {
		var out bytes.Buffer
		root := newRootCmd()
		root.SetOut(&out)
		root.SetErr(io.Discard)
		root.SetArgs(tc.args)
		require.NoError(t, root.Execute(), tc.args)
		assert.Equal(t, tc.want, out.String(), tc.args)
	}
}

func TestParseCommandWiring(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetIn(strings.NewReader("|a x\n"))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"parse", "--seed", "3"})
	require.NoError(t, root.Execute())

	got := decodeLines(t, out.String())
	require.Len(t, got, 1)
	assert.Equal(t, hasher.HashString("x", hasher.HashString("a", 3)), got[0].Namespaces[0].Features[0].ID)
}
