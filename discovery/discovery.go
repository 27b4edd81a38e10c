package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sanchxt/yoop-sub002/code"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// Scanner fuses the broadcast and mDNS channels into one deduplicated
// stream of Peers, so callers never have to care which transport found
// a given device (spec §4.4's "hybrid discovery").
type Scanner struct {
	log *slog.Logger
}

func NewScanner(log *slog.Logger) *Scanner { return &Scanner{log: log} }

// Scan streams every Peer seen on either transport to out, deduplicated
// by device_id: a repeat sighting of a device within one second of its
// last forward is dropped, later sightings are forwarded again. It runs
// until ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, out chan<- Peer) error {
	return s.scanTransports(ctx, []Transport{TransportBroadcast, TransportMDNS}, out)
}

// scanTransports runs only the listed transports and fuses their
// output, deduplicating repeat sightings of the same device within a
// short window so a caller reading out isn't flooded by both channels
// re-announcing the same peer every beacon interval.
func (s *Scanner) scanTransports(ctx context.Context, transports []Transport, out chan<- Peer) error {
	raw := make(chan Peer, 32)

	var wg sync.WaitGroup
	for _, t := range transports {
		switch t {
		case TransportBroadcast:
			listener, err := NewListener(s.log)
			if err != nil {
				return err
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := listener.Listen(ctx, raw); err != nil {
					s.log.Debug("broadcast listen ended", "error", err)
				}
			}()
		case TransportMDNS:
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := Browse(ctx, s.log, raw); err != nil {
					s.log.Debug("mdns browse ended", "error", err)
				}
			}()
		}
	}

	go func() {
		wg.Wait()
		close(raw)
	}()

	fuseDeduped(ctx, raw, out)
	return nil
}

// fuseDeduped forwards every Peer read from raw to out, suppressing a
// repeat sighting of the same device_id within one second of its last
// forward. It returns once raw closes or ctx is done.
func fuseDeduped(ctx context.Context, raw <-chan Peer, out chan<- Peer) {
	seen := make(map[string]time.Time)
	for {
		select {
		case p, ok := <-raw:
			if !ok {
				return
			}
			id := p.DeviceID.String()
			if last, dup := seen[id]; dup && time.Since(last) < time.Second {
				continue // already forwarded this device very recently
			}
			seen[id] = time.Now()
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Find scans until a Peer advertising the given code is seen, or ctx
// is cancelled / timeout elapses.
func (s *Scanner) Find(ctx context.Context, want code.Code, timeout time.Duration) (Peer, error) {
	findCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.findVia(findCtx, want, []Transport{TransportBroadcast, TransportMDNS})
}

// FindSequential tries the preferred transport alone for half of
// timeout; if the code hasn't surfaced by then, it tries the other
// transport alone for the remainder. Unlike Find (which races both
// channels at once), this gives callers a deterministic probe order —
// useful when one channel is known to be unreliable on the current
// network and racing it would just waste the other channel's early
// window.
func (s *Scanner) FindSequential(ctx context.Context, want code.Code, timeout time.Duration, preferMDNS bool) (Peer, error) {
	first, second := TransportBroadcast, TransportMDNS
	if preferMDNS {
		first, second = TransportMDNS, TransportBroadcast
	}
	probe := func(probeCtx context.Context, t Transport) (Peer, error) {
		return s.findVia(probeCtx, want, []Transport{t})
	}
	return sequentialProbe(ctx, timeout, first, second, probe)
}

// sequentialProbe runs probe against first for half of timeout, falling
// back to second for the remainder only if first comes back
// code-not-found; any other error from first (a real transport failure)
// is returned immediately rather than masked by a second attempt.
func sequentialProbe(ctx context.Context, timeout time.Duration, first, second Transport, probe func(context.Context, Transport) (Peer, error)) (Peer, error) {
	half := timeout / 2
	firstCtx, cancel := context.WithTimeout(ctx, half)
	p, err := probe(firstCtx, first)
	cancel()
	if err == nil {
		return p, nil
	}
	if !yerr.Is(err, yerr.CodeNotFound) {
		return Peer{}, err
	}

	remaining := timeout - half
	secondCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()
	return probe(secondCtx, second)
}

func (s *Scanner) findVia(ctx context.Context, want code.Code, transports []Transport) (Peer, error) {
	out := make(chan Peer, 32)
	errCh := make(chan error, 1)
	go func() { errCh <- s.scanTransports(ctx, transports, out) }()
	return matchCode(ctx, want, out, errCh)
}

// matchCode reads Peers from out until one advertises want, ctx is
// done, or the underlying scan reports an error.
func matchCode(ctx context.Context, want code.Code, out <-chan Peer, errCh <-chan error) (Peer, error) {
	for {
		select {
		case p := <-out:
			parsed, err := code.Parse(p.Code)
			if err == nil && parsed.Equal(want) {
				return p, nil
			}
		case <-ctx.Done():
			return Peer{}, yerr.WithFields(yerr.KindCodeNotFound,
				"no device advertising this code was found on the network",
				map[string]any{"code": want.String()})
		case err := <-errCh:
			if err != nil {
				return Peer{}, err
			}
		}
	}
}

// discoveredKey dedups ScanFor results by (code, device_id): the same
// device can legitimately re-offer under a new code, and two devices
// colliding on a code is exactly the scenario callers need to see both
// entries for.
type discoveredKey struct {
	code     string
	deviceID uuid.UUID
}

// ScanFor runs a bounded scan for duration and returns every distinct
// (code, device_id) pair seen in that window (spec §4.4's scan), for
// callers that want a complete snapshot to display rather than a live
// stream to race against.
func (s *Scanner) ScanFor(ctx context.Context, duration time.Duration) ([]Peer, error) {
	scanCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	out := make(chan Peer, 32)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Scan(scanCtx, out) }()
	return collectUnique(scanCtx, out, errCh)
}

// collectUnique accumulates Peers from out, deduplicated by (code,
// device_id), until ctx is done or the scan reports an error.
func collectUnique(ctx context.Context, out <-chan Peer, errCh <-chan error) ([]Peer, error) {
	seen := make(map[discoveredKey]bool)
	var results []Peer
	for {
		select {
		case p := <-out:
			k := discoveredKey{code: p.Code, deviceID: p.DeviceID}
			if seen[k] {
				continue
			}
			seen[k] = true
			results = append(results, p)
		case <-ctx.Done():
			return results, nil
		case err := <-errCh:
			if err != nil {
				return results, err
			}
		}
	}
}
