// Package validator checks submission requests before any parsing or
// persistence happens, returning per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission"
	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
)

const maxIdempotencyKeyLength = 255

// Limits bounds request sizes. Zero values disable a limit.
type Limits struct {
	MaxLines      int
	MaxLineLength int
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// ValidateParseRequest checks a synchronous parse request.
func ValidateParseRequest(req *submission.ParseRequest, limits Limits) error {
	errs := make(map[string]string)
	checkLines(req.Lines, limits, errs)
	switch strings.ToLower(req.Strategy) {
	case "", "all", "strings":
	default:
		errs["strategy"] = fmt.Sprintf("unknown strategy %q", req.Strategy)
	}
	return result(errs)
}

// ValidateSubmitRequest checks an asynchronous batch submission.
func ValidateSubmitRequest(req *submission.SubmitRequest, limits Limits) error {
	errs := make(map[string]string)
	checkLines(req.Lines, limits, errs)
	if len(req.IdempotencyKey) > maxIdempotencyKeyLength {
		errs["idempotency_key"] = fmt.Sprintf("idempotency key must be at most %d characters", maxIdempotencyKeyLength)
	}
	return result(errs)
}

// ValidateHashRequest checks a hash request.
func ValidateHashRequest(req *submission.HashRequest, limits Limits) error {
	errs := make(map[string]string)
	if limits.MaxLineLength > 0 && len(req.Value) > limits.MaxLineLength {
		errs["value"] = fmt.Sprintf("value must be at most %d bytes", limits.MaxLineLength)
	}
	return result(errs)
}

func checkLines(lines []string, limits Limits, errs map[string]string) {
	if len(lines) == 0 {
		errs["lines"] = "at least one line is required"
		return
	}
	if limits.MaxLines > 0 && len(lines) > limits.MaxLines {
		errs["lines"] = fmt.Sprintf("at most %d lines per request, got %d", limits.MaxLines, len(lines))
		return
	}
	if limits.MaxLineLength <= 0 {
		return
	}
	for i, line := range lines {
		if len(line) > limits.MaxLineLength {
			errs[fmt.Sprintf("lines[%d]", i)] = fmt.Sprintf("line must be at most %d bytes", limits.MaxLineLength)
		}
	}
}

func result(errs map[string]string) error {
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
