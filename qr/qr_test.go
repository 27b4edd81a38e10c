package qr

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestDeepLinkUppercasesCode(t *testing.T) {
	if got := DeepLink("a7k9", DefaultConfig()); got != "yoop://A7K9" {
		t.Fatalf("expected yoop://A7K9, got %q", got)
	}
}

func TestDeepLinkCustomScheme(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scheme = "localdrop"
	if got := DeepLink("A7K9", cfg); got != "localdrop://A7K9" {
		t.Fatalf("expected localdrop://A7K9, got %q", got)
	}
}

func TestASCIINotEmptyAndMultiline(t *testing.T) {
	art, err := ASCII("A7K9")
	if err != nil {
		t.Fatalf("ASCII: %v", err)
	}
	if art == "" {
		t.Fatalf("expected non-empty ASCII art")
	}
	if strings.Count(art, "\n") < 5 {
		t.Fatalf("expected several lines of ASCII art, got %q", art)
	}
}

func TestSVGHasExpectedShape(t *testing.T) {
	svg, err := SVG("A7K9")
	if err != nil {
		t.Fatalf("SVG: %v", err)
	}
	if !strings.HasPrefix(svg, "<?xml") {
		t.Fatalf("expected svg to start with an xml declaration")
	}
	if !strings.Contains(svg, "</svg>") {
		t.Fatalf("expected svg to have a closing tag")
	}
	if !strings.Contains(svg, "width") || !strings.Contains(svg, "height") {
		t.Fatalf("expected svg to declare width and height")
	}
}

func TestPNGBase64DecodesToNonTrivialImage(t *testing.T) {
	png, err := PNGBase64("A7K9", 256)
	if err != nil {
		t.Fatalf("PNGBase64: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(png)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) < 100 {
		t.Fatalf("expected a non-trivial PNG, got %d bytes", len(decoded))
	}
}

func TestDifferentCodesProduceDifferentQRs(t *testing.T) {
	a, err := ASCII("A7K9")
	if err != nil {
		t.Fatalf("ASCII: %v", err)
	}
	b, err := ASCII("B8M3")
	if err != nil {
		t.Fatalf("ASCII: %v", err)
	}
	if a == b {
		t.Fatalf("expected different codes to produce different QR art")
	}
}
