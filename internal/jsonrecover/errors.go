package jsonrecover

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxExcerptBytes bounds the diagnostic excerpt carried by a ParseError.
const MaxExcerptBytes = 200

// ErrUnparseable is matched by every ParseError.
var ErrUnparseable = errors.New("completion is not recoverable JSON")

// ParseError is returned when no direct, repaired or truncated candidate
// parses. The excerpt is meant for server-side logs only.
type ParseError struct {
	Excerpt string
	Length  int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %d bytes, starts with %q", ErrUnparseable, e.Length, e.Excerpt)
}

func (e *ParseError) Unwrap() error { return ErrUnparseable }

func newParseError(text string) *ParseError {
	return &ParseError{Excerpt: excerpt(text, MaxExcerptBytes), Length: len(text)}
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
