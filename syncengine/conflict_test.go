package syncengine

import (
	"testing"
	"time"
)

func TestResolveNewerWinsByModTime(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	c := Conflict{
		Local:  ConflictVersion{ModTime: &newer},
		Remote: ConflictVersion{ModTime: &older},
	}
	if got := Resolve(c, ResolutionNewerWins); got != WinnerLocal {
		t.Fatalf("expected local (newer) to win, got %v", got)
	}
}

func TestResolveNewerWinsFallsBackToKeepBothWithoutMtime(t *testing.T) {
	c := Conflict{Local: ConflictVersion{}, Remote: ConflictVersion{}}
	if got := Resolve(c, ResolutionNewerWins); got != WinnerBoth {
		t.Fatalf("expected KeepBoth fallback when neither side has mtime, got %v", got)
	}
}

func TestResolveLargerWins(t *testing.T) {
	c := Conflict{
		Local:  ConflictVersion{Size: 100},
		Remote: ConflictVersion{Size: 200},
	}
	if got := Resolve(c, ResolutionLargerWins); got != WinnerRemote {
		t.Fatalf("expected remote (larger) to win, got %v", got)
	}
}

func TestResolveLocalAndRemoteWinsAreUnconditional(t *testing.T) {
	c := Conflict{Local: ConflictVersion{Size: 1}, Remote: ConflictVersion{Size: 1000}}
	if got := Resolve(c, ResolutionLocalWins); got != WinnerLocal {
		t.Fatalf("expected LocalWins to always pick local, got %v", got)
	}
	if got := Resolve(c, ResolutionRemoteWins); got != WinnerRemote {
		t.Fatalf("expected RemoteWins to always pick remote, got %v", got)
	}
}

func TestResolveKeepBoth(t *testing.T) {
	c := Conflict{}
	if got := Resolve(c, ResolutionKeepBoth); got != WinnerBoth {
		t.Fatalf("expected KeepBoth strategy to always return WinnerBoth, got %v", got)
	}
}

func TestLoserRenamePathFormat(t *testing.T) {
	at := time.Date(2026, 7, 29, 12, 30, 0, 0, time.UTC)
	got := LoserRenamePath("docs/readme.txt", "laptop-2", at)
	want := "docs/readme.txt.conflict-laptop-2-20260729T123000"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
