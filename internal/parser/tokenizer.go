package parser

import (
	"math"
	"strconv"
	"strings"
)

// RawFeature is a feature token split on its first colon. Value is only
// meaningful when HasValue is set.
type RawFeature struct {
	Name     string
	Value    string
	HasValue bool
}

// RawNamespace is one namespace section before hashing.
type RawNamespace struct {
	Name     string
	Features []RawFeature
}

// RawExample is a tokenized line.
type RawExample struct {
	Label      *float32
	Tag        *string
	Namespaces []RawNamespace
}

// Tokenize splits a line into its label, tag and raw namespace sections. Only
// the label is converted to a number here.
func Tokenize(line string) (*RawExample, error) {
	body, err := trimTerminator(line)
	if err != nil {
		return nil, err
	}
	sections := SplitSections(body)
	label, tag := ParseLabelSection(sections[0])
	ex := &RawExample{
		Label:      label,
		Tag:        tag,
		Namespaces: make([]RawNamespace, 0, len(sections)-1),
	}
	for _, section := range sections[1:] {
		ex.Namespaces = append(ex.Namespaces, ParseNamespace(section))
	}
	return ex, nil
}

// SplitSections splits a line on '|'. The first element is the label/tag
// section and is always present; every further element is a namespace section.
func SplitSections(line string) []string {
	return strings.Split(line, "|")
}

// ParseLabelSection extracts the optional label and tag from the text before
// the first '|'. A label is a whole float token followed by whitespace. Any
// other leading token, "1st" or "2024-01-01" included, starts the tag.
func ParseLabelSection(section string) (*float32, *string) {
	sc := scanner{s: section}
	sc.skipSpace()

	var label *float32
	start := sc.pos
	tok := sc.token()
	if v, err := parseFloat(tok); err == nil && tok != "" && !sc.done() {
		label = &v
	} else {
		sc.pos = start
	}

	rest := strings.TrimSpace(sc.rest())
	rest = strings.TrimPrefix(rest, "'")
	if rest == "" {
		return label, nil
	}
	return label, &rest
}

// ParseNamespace tokenizes a namespace section. The name is present only when
// the section starts with a non-whitespace character.
func ParseNamespace(section string) RawNamespace {
	sc := scanner{s: section}
	var ns RawNamespace
	if !sc.done() && !isSpace(section[0]) {
		ns.Name = sc.token()
	}
	for {
		sc.skipSpace()
		if sc.done() {
			break
		}
		ns.Features = append(ns.Features, splitFeature(sc.token()))
	}
	return ns
}

func splitFeature(tok string) RawFeature {
	name, value, found := strings.Cut(tok, ":")
	if !found {
		return RawFeature{Name: tok}
	}
	return RawFeature{Name: name, Value: value, HasValue: true}
}

// trimTerminator strips one trailing "\n" or "\r\n". Any other line break
// means the input holds more than one example.
func trimTerminator(line string) (string, error) {
	if strings.HasSuffix(line, "\n") {
		line = line[:len(line)-1]
		line = strings.TrimSuffix(line, "\r")
	}
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		return "", &IncompleteParseError{Remainder: line[i:], Offset: i}
	}
	return line, nil
}

// parseFloat accepts finite 32-bit decimal floating-point literals. Hex
// floats such as "0x1p-2" are rejected, so a token like "0x10" hashes as a
// name.
func parseFloat(s string) (float32, error) {
	if digits := strings.TrimLeft(s, "+-"); len(digits) > 1 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		return 0, strconv.ErrSyntax
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrSyntax
	}
	return float32(v), nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\v' || c == '\f'
}

type scanner struct {
	s   string
	pos int
}

func (sc *scanner) done() bool { return sc.pos >= len(sc.s) }

func (sc *scanner) rest() string { return sc.s[sc.pos:] }

func (sc *scanner) skipSpace() {
	for sc.pos < len(sc.s) && isSpace(sc.s[sc.pos]) {
		sc.pos++
	}
}

func (sc *scanner) token() string {
	start := sc.pos
	for sc.pos < len(sc.s) && !isSpace(sc.s[sc.pos]) {
		sc.pos++
	}
	return sc.s[start:sc.pos]
}
