package transfer

import (
	"sync"
	"time"
)

// ChunkRef identifies one chunk within the overall (file_index,
// chunk_index) dispatch order.
type ChunkRef struct {
	FileIndex  int
	ChunkIndex uint32
}

const (
	// DefaultParallelStreams is the sender's default outstanding-chunk
	// window size.
	DefaultParallelStreams = 4
	// DefaultChunkTimeout is T_chunk: how long the sender waits for a
	// ChunkAck before retransmitting.
	DefaultChunkTimeout = 30 * time.Second
	// DefaultMaxChunkRetries is how many times a chunk is retransmitted
	// before the session fails.
	DefaultMaxChunkRetries = 3
)

type outstandingChunk struct {
	sentAt  time.Time
	retries int
}

// Scheduler tracks the sender's sliding window of outstanding,
// unacknowledged chunks. It has no knowledge of the network or of file
// content: callers dispatch a ChunkRef through Track once the chunk has
// actually been written to the wire, and report Ack/timeout outcomes
// back in.
type Scheduler struct {
	mu          sync.Mutex
	window      int
	timeout     time.Duration
	maxRetries  int
	outstanding map[ChunkRef]*outstandingChunk
}

func NewScheduler(window int, timeout time.Duration, maxRetries int) *Scheduler {
	if window <= 0 {
		window = DefaultParallelStreams
	}
	if timeout <= 0 {
		timeout = DefaultChunkTimeout
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxChunkRetries
	}
	return &Scheduler{
		window:      window,
		timeout:     timeout,
		maxRetries:  maxRetries,
		outstanding: make(map[ChunkRef]*outstandingChunk),
	}
}

// HasRoom reports whether the window has a free slot for another
// in-flight chunk.
func (s *Scheduler) HasRoom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding) < s.window
}

// Track marks ref as just dispatched (or redispatched, if it was
// already outstanding).
func (s *Scheduler) Track(ref ChunkRef, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if oc, ok := s.outstanding[ref]; ok {
		oc.sentAt = now
		return
	}
	s.outstanding[ref] = &outstandingChunk{sentAt: now}
}

// Ack removes ref from the window; it is a no-op if ref was not
// outstanding (a duplicate or late ack).
func (s *Scheduler) Ack(ref ChunkRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outstanding, ref)
}

// Outstanding returns the current window size.
func (s *Scheduler) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding)
}

// CheckTimeouts scans the window for chunks that have been outstanding
// longer than the configured timeout. retransmit holds chunks that
// should be resent (their retry counter is bumped and sentAt reset as
// if just tracked); failed holds chunks that have exhausted
// max_chunk_retries and should fail the session.
func (s *Scheduler) CheckTimeouts(now time.Time) (retransmit, failed []ChunkRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ref, oc := range s.outstanding {
		if now.Sub(oc.sentAt) < s.timeout {
			continue
		}
		if oc.retries >= s.maxRetries {
			failed = append(failed, ref)
			delete(s.outstanding, ref)
			continue
		}
		oc.retries++
		oc.sentAt = now
		retransmit = append(retransmit, ref)
	}
	return retransmit, failed
}

// Reset clears all tracked state, e.g. after a Cancel.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outstanding = make(map[ChunkRef]*outstandingChunk)
}
