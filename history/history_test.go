package history

import (
	"path/filepath"
	"testing"
)

func TestAppendPrependsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := s.Append(Entry{Code: "ABCD", Direction: DirectionSent, State: StateCompleted}, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(Entry{Code: "WXYZ", Direction: DirectionReceived, State: StateCompleted}, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}

	list := s.List(0)
	if len(list) != 2 || list[0].Code != "WXYZ" || list[1].Code != "ABCD" {
		t.Fatalf("expected most-recent-first order, got %+v", list)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload Load: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("expected 2 persisted entries, got %d", reloaded.Len())
	}
}

func TestAppendTrimsToMaxEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := s.Append(Entry{Code: "CODE"}, 3); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if s.Len() != 3 {
		t.Fatalf("expected retention to cap at 3, got %d", s.Len())
	}
}

func TestGetOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := s.Get(0); ok {
		t.Fatalf("expected Get on empty store to miss")
	}
	_ = s.Append(Entry{Code: "ABCD"}, 0)
	if _, ok := s.Get(5); ok {
		t.Fatalf("expected out-of-range Get to miss")
	}
	e, ok := s.Get(0)
	if !ok || e.Code != "ABCD" {
		t.Fatalf("expected Get(0) to return the single entry, got %+v ok=%v", e, ok)
	}
}

func TestClearRemovesAllEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_ = s.Append(Entry{Code: "ABCD"}, 0)
	_ = s.Append(Entry{Code: "WXYZ"}, 0)

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store after Clear, got %d", s.Len())
	}
}

func TestLoadFromMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store for a missing file, got %d entries", s.Len())
	}
}
