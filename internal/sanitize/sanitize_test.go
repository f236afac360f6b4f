package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContent_SizeLimit(t *testing.T) {
	tests := []struct {
		name      string
		inputSize int
		limit     int
		wantErr   bool
	}{
		{"Under Limit", 9, 10, false},
		{"Exact Limit", 10, 10, false},
		{"Over Limit", 11, 10, true},
		{"Default Limit", DefaultMaxContentSize, 0, false},
		{"Over Default Limit", DefaultMaxContentSize + 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Content(strings.Repeat("a", tt.inputSize), tt.limit)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTooLarge)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestContent_ControlChars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Normal Text", "Hello World", "Hello World"},
		{"Safe Controls", "Line1\r\nLine2\tTabbed", "Line1\r\nLine2\tTabbed"},
		{"ANSI Code", "\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		{"Null Byte", "Null\x00Byte", "NullByte"},
		{"Bell", "Ding\x07", "Ding"},
		{"Unicode", "ação ✓", "ação ✓"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Content(tt.input, 0)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestContent_InvalidUTF8(t *testing.T) {
	_, err := Content("bad \xff byte", 0)
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}
