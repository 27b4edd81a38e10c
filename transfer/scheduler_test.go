package transfer

import (
	"testing"
	"time"
)

func TestSchedulerWindowFillsAndDrains(t *testing.T) {
	s := NewScheduler(2, time.Minute, 3)
	if !s.HasRoom() {
		t.Fatalf("expected room in an empty window")
	}

	ref1 := ChunkRef{FileIndex: 0, ChunkIndex: 0}
	ref2 := ChunkRef{FileIndex: 0, ChunkIndex: 1}
	now := time.Now()
	s.Track(ref1, now)
	s.Track(ref2, now)

	if s.HasRoom() {
		t.Fatalf("expected window of size 2 to be full after tracking 2 chunks")
	}
	if s.Outstanding() != 2 {
		t.Fatalf("expected 2 outstanding, got %d", s.Outstanding())
	}

	s.Ack(ref1)
	if !s.HasRoom() {
		t.Fatalf("expected room to free up after an ack")
	}
	if s.Outstanding() != 1 {
		t.Fatalf("expected 1 outstanding after ack, got %d", s.Outstanding())
	}
}

func TestSchedulerAckOfUntrackedRefIsNoop(t *testing.T) {
	s := NewScheduler(2, time.Minute, 3)
	s.Ack(ChunkRef{FileIndex: 0, ChunkIndex: 99})
	if s.Outstanding() != 0 {
		t.Fatalf("expected no-op ack to leave window empty")
	}
}

func TestSchedulerCheckTimeoutsRetransmitsThenFails(t *testing.T) {
	s := NewScheduler(1, 10*time.Millisecond, 2)
	ref := ChunkRef{FileIndex: 0, ChunkIndex: 0}
	start := time.Now()
	s.Track(ref, start)

	retransmit, failed := s.CheckTimeouts(start.Add(20 * time.Millisecond))
	if len(failed) != 0 || len(retransmit) != 1 {
		t.Fatalf("expected first timeout to retransmit, got retransmit=%v failed=%v", retransmit, failed)
	}

	retransmit, failed = s.CheckTimeouts(start.Add(40 * time.Millisecond))
	if len(failed) != 0 || len(retransmit) != 1 {
		t.Fatalf("expected second timeout to retransmit (retries=1 < max=2), got retransmit=%v failed=%v", retransmit, failed)
	}

	retransmit, failed = s.CheckTimeouts(start.Add(60 * time.Millisecond))
	if len(retransmit) != 0 || len(failed) != 1 {
		t.Fatalf("expected third timeout to exhaust retries and fail, got retransmit=%v failed=%v", retransmit, failed)
	}
	if s.Outstanding() != 0 {
		t.Fatalf("expected failed chunk to be removed from the window")
	}
}

func TestSchedulerCheckTimeoutsIgnoresFreshChunks(t *testing.T) {
	s := NewScheduler(4, time.Minute, 3)
	ref := ChunkRef{FileIndex: 0, ChunkIndex: 0}
	now := time.Now()
	s.Track(ref, now)

	retransmit, failed := s.CheckTimeouts(now.Add(time.Millisecond))
	if len(retransmit) != 0 || len(failed) != 0 {
		t.Fatalf("expected a chunk well within its timeout to be left alone")
	}
}

func TestSchedulerResetClearsWindow(t *testing.T) {
	s := NewScheduler(2, time.Minute, 3)
	now := time.Now()
	s.Track(ChunkRef{FileIndex: 0, ChunkIndex: 0}, now)
	s.Track(ChunkRef{FileIndex: 0, ChunkIndex: 1}, now)
	s.Reset()
	if s.Outstanding() != 0 || !s.HasRoom() {
		t.Fatalf("expected Reset to empty the window")
	}
}

func TestSchedulerDefaultsAppliedForInvalidConfig(t *testing.T) {
	s := NewScheduler(0, 0, 0)
	if s.window != DefaultParallelStreams {
		t.Fatalf("expected default window, got %d", s.window)
	}
	if s.timeout != DefaultChunkTimeout {
		t.Fatalf("expected default timeout, got %v", s.timeout)
	}
	if s.maxRetries != DefaultMaxChunkRetries {
		t.Fatalf("expected default max retries, got %d", s.maxRetries)
	}
}
