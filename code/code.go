// Package code implements the 4-character share code (spec §3, §4.1).
package code

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// Alphabet is the 32-symbol set codes are drawn from: digits 2-9 and
// uppercase letters A-Z excluding the confusable 0, 1, I, L, O.
const Alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// Length is the fixed length of a share code.
const Length = 4

// Code is a validated 4-character share code.
type Code struct {
	value string
}

// String returns the code's canonical (uppercase) form.
func (c Code) String() string { return c.value }

// IsZero reports whether c is the zero value (never produced by Parse or
// Generate, useful for "not yet assigned" fields).
func (c Code) IsZero() bool { return c.value == "" }

// Parse trims, uppercases, and validates input as a share code.
func Parse(input string) (Code, error) {
	normalized := strings.ToUpper(strings.TrimSpace(input))
	if len(normalized) != Length {
		return Code{}, yerr.WithFields(yerr.KindInvalidCodeFormat,
			fmt.Sprintf("code must be %d characters, got %d", Length, len(normalized)),
			map[string]any{"input": input})
	}
	for _, r := range normalized {
		if !strings.ContainsRune(Alphabet, r) {
			return Code{}, yerr.WithFields(yerr.KindInvalidCodeFormat,
				fmt.Sprintf("invalid character %q in code", r),
				map[string]any{"input": input})
		}
	}
	return Code{value: normalized}, nil
}

// Generate draws a new uniformly random 4-character code.
func Generate() (Code, error) {
	var b strings.Builder
	b.Grow(Length)
	n := big.NewInt(int64(len(Alphabet)))
	for i := 0; i < Length; i++ {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return Code{}, yerr.Wrap(yerr.KindInternal, "code generation failed", err)
		}
		b.WriteByte(Alphabet[idx.Int64()])
	}
	return Parse(b.String())
}

// Equal compares two codes case-insensitively (both are already
// normalized to uppercase by Parse/Generate, so this is a plain compare).
func (c Code) Equal(other Code) bool { return c.value == other.value }
