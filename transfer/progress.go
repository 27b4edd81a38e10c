// Package transfer implements the sender/receiver transfer session state
// machines (spec §4.7): chunk scheduling over a bounded parallel-stream
// window, cancellation, keepalive timeouts, and progress publication.
package transfer

import (
	"sync"
	"time"
)

// State is a transfer session's lifecycle stage.
type State int

const (
	StatePreparing State = iota
	StateWaiting
	StateConnected
	StateAccepting
	StateResuming
	StateTransferring
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateWaiting:
		return "waiting"
	case StateConnected:
		return "connected"
	case StateAccepting:
		return "accepting"
	case StateResuming:
		return "resuming"
	case StateTransferring:
		return "transferring"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress is a point-in-time snapshot of a transfer's status.
type Progress struct {
	State                 State
	CurrentFileIndex      int
	TotalFiles            int
	CurrentFileName       string
	FileBytesTransferred  uint64
	FileTotalBytes        uint64
	TotalBytesTransferred uint64
	TotalBytes            uint64
	SpeedBps              float64
	ETA                   *time.Duration
	StartedAt             time.Time
}

// ewmaAlpha weights the most recent 1-second sample against history; 0.3
// tracks bursts without being too jittery for a progress bar.
const ewmaAlpha = 0.3

// ProgressWatch is a single-writer, many-reader broadcast slot: the
// transfer loop is the only writer, and UI/CLI consumers always observe
// the latest value rather than queueing every intermediate update.
type ProgressWatch struct {
	mu          sync.RWMutex
	latest      Progress
	lastSample  time.Time
	lastBytes   uint64
	speedBps    float64
	subscribers []chan Progress
}

func NewProgressWatch(total Progress) *ProgressWatch {
	return &ProgressWatch{latest: total, lastSample: time.Now(), lastBytes: total.TotalBytesTransferred}
}

// Update records new totals and recomputes the EWMA speed/ETA at most
// once per second; more frequent calls are coalesced into the next tick.
func (p *ProgressWatch) Update(fn func(*Progress)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn(&p.latest)

	now := time.Now()
	elapsed := now.Sub(p.lastSample).Seconds()
	if elapsed >= 1 {
		instant := float64(p.latest.TotalBytesTransferred-p.lastBytes) / elapsed
		if p.speedBps == 0 {
			p.speedBps = instant
		} else {
			p.speedBps = ewmaAlpha*instant + (1-ewmaAlpha)*p.speedBps
		}
		p.lastSample = now
		p.lastBytes = p.latest.TotalBytesTransferred
	}
	p.latest.SpeedBps = p.speedBps

	if p.speedBps > 0 && p.latest.TotalBytes > p.latest.TotalBytesTransferred {
		remaining := p.latest.TotalBytes - p.latest.TotalBytesTransferred
		eta := time.Duration(float64(remaining) / p.speedBps * float64(time.Second))
		p.latest.ETA = &eta
	} else {
		p.latest.ETA = nil
	}

	snapshot := p.latest
	for _, sub := range p.subscribers {
		select {
		case sub <- snapshot:
		default:
			// Slow consumer: drop the stale value sitting in the channel
			// and push the fresh one so it never falls more than one
			// update behind.
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- snapshot:
			default:
			}
		}
	}
}

// Latest returns the most recently published snapshot.
func (p *ProgressWatch) Latest() Progress {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Subscribe returns a buffered channel that always holds the latest
// Progress (never more than one update behind).
func (p *ProgressWatch) Subscribe() <-chan Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Progress, 1)
	ch <- p.latest
	p.subscribers = append(p.subscribers, ch)
	return ch
}
