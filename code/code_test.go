package code

import (
	"strings"
	"testing"

	"github.com/sanchxt/yoop-sub002/yerr"
)

func TestGenerateThenParseRoundTrips(t *testing.T) {
	for i := 0; i < 200; i++ {
		c, err := Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(c.String()) != Length {
			t.Fatalf("generated code wrong length: %q", c.String())
		}
		for _, r := range c.String() {
			if !strings.ContainsRune(Alphabet, r) {
				t.Fatalf("generated code has out-of-alphabet char: %q", c.String())
			}
		}
		parsed, err := Parse(c.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.String(), err)
		}
		if !parsed.Equal(c) {
			t.Fatalf("parse(format(c)) != c: %q != %q", parsed.String(), c.String())
		}
	}
}

func TestParseNormalizes(t *testing.T) {
	c, err := Parse("  a7k9 ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.String() != "A7K9" {
		t.Fatalf("expected A7K9, got %q", c.String())
	}
}

func TestParseRejectsWrongLength(t *testing.T) {
	for _, in := range []string{"", "A", "A7K", "A7K99"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("expected error for %q", in)
		} else if !yerr.Is(err, yerr.InvalidCodeFormat) {
			t.Fatalf("expected InvalidCodeFormat kind for %q, got %v", in, err)
		}
	}
}

func TestParseRejectsConfusables(t *testing.T) {
	for _, in := range []string{"0ABC", "1ABC", "IABC", "LABC", "OABC"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestAlphabetExcludesConfusables(t *testing.T) {
	for _, c := range []byte{'0', '1', 'I', 'L', 'O'} {
		if strings.ContainsRune(Alphabet, rune(c)) {
			t.Fatalf("alphabet must not contain confusable %q", c)
		}
	}
	if len(Alphabet) != 32 {
		t.Fatalf("alphabet must have 32 symbols, got %d", len(Alphabet))
	}
}
