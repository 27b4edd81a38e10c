package yerr

import (
	"errors"
	"testing"
)

func TestKindOfReadsKindAndFallsBackForPlainErrors(t *testing.T) {
	base := New(KindChecksumMismatch, "bad chunk")
	plain := errors.New("context: " + base.Error())
	if got := KindOf(base); got != KindChecksumMismatch {
		t.Fatalf("expected KindChecksumMismatch, got %v", got)
	}
	if got := KindOf(plain); got != KindUnknown {
		t.Fatalf("expected KindUnknown for a plain error, got %v", got)
	}
}

func TestKindStringIsStable(t *testing.T) {
	if got := KindConnectionLost.String(); got != "connection_lost" {
		t.Fatalf("expected connection_lost, got %q", got)
	}
	if got := Kind(9999).String(); got != "unknown" {
		t.Fatalf("expected unknown for an out-of-range kind, got %q", got)
	}
}

func TestErrorIsMatchesByKindNotMessage(t *testing.T) {
	err := Wrap(KindRateLimited, "slow down", errors.New("upstream"))
	if !errors.Is(err, RateLimited) {
		t.Fatalf("expected errors.Is to match on Kind")
	}
	if errors.Is(err, Timeout) {
		t.Fatalf("did not expect a different Kind to match")
	}
}
