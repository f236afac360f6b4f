// Package sanitize cleans text that enters a council from outside callers.
package sanitize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxContentSize bounds a single agent message (64 KiB).
const DefaultMaxContentSize = 64 << 10

var (
	ErrTooLarge    = errors.New("content exceeds maximum allowed size")
	ErrInvalidUTF8 = errors.New("content contains invalid UTF-8 sequences")
)

// Content enforces limit, validates UTF-8 and strips control characters other
// than newline, tab and carriage return. Oversized content is rejected, never
// truncated. A limit <= 0 uses DefaultMaxContentSize.
func Content(input string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxContentSize
	}
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	// Fast path: nothing to strip.
	if strings.IndexFunc(input, unsafeControl) < 0 {
		return input, nil
	}
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unsafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}
