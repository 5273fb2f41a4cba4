package parser

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
)

// MalformedNumberError reports a label or feature value that is not a finite
// floating-point literal. Section 0 is the label section; namespace sections
// are numbered from 1. TokenIndex counts whitespace-separated tokens within
// the section, the namespace name included.
type MalformedNumberError struct {
	Token      string
	Section    int
	TokenIndex int
	Err        error
}

func (e *MalformedNumberError) Error() string {
	return fmt.Sprintf("malformed number %q in section %d, token %d", e.Token, e.Section, e.TokenIndex)
}

func (e *MalformedNumberError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperrors.ErrMalformedNumber}
	}
	return []error{apperrors.ErrMalformedNumber, e.Err}
}

// IncompleteParseError reports input left over after one complete example,
// typically a second line glued to the first.
type IncompleteParseError struct {
	Remainder string
	Offset    int
}

func (e *IncompleteParseError) Error() string {
	rem := e.Remainder
	if len(rem) > 32 {
		rem = rem[:32] + "..."
	}
	return fmt.Sprintf("unconsumed input at offset %d: %q", e.Offset, rem)
}

func (e *IncompleteParseError) Unwrap() error {
	return apperrors.ErrIncompleteParse
}

// HashFailureError reports a name that could not be hashed, currently only
// invalid UTF-8 when strict mode is on.
type HashFailureError struct {
	Name    string
	Section int
}

func (e *HashFailureError) Error() string {
	return fmt.Sprintf("cannot hash %q in section %d: invalid UTF-8", e.Name, e.Section)
}

func (e *HashFailureError) Unwrap() error {
	return apperrors.ErrHashFailure
}
