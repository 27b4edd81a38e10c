package discovery

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// BroadcastPort is the well-known UDP port devices listen on for LAN
// announcements.
const BroadcastPort = 47851

var magic = [4]byte{'Y', 'O', 'O', 'P'}

// packet framing mirrors the length-prefixed, checksummed discipline of
// the wire protocol's stream frames (see wire.WriteFrame), but over a
// single UDP datagram: magic || payload || checksum4. checksum4 is the
// first 4 bytes of SHA-256(magic||payload), enough to reject a
// corrupted or foreign broadcast packet without a full HMAC.
func encodePacket(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.Write(payload)
	sum := checksum4(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes()
}

func decodePacket(raw []byte) ([]byte, error) {
	if len(raw) < len(magic)+4 {
		return nil, yerr.New(yerr.KindProtocolError, "broadcast packet too short")
	}
	if !bytes.Equal(raw[:len(magic)], magic[:]) {
		return nil, yerr.New(yerr.KindProtocolError, "broadcast packet has wrong magic")
	}
	body := raw[:len(raw)-4]
	got := raw[len(raw)-4:]
	want := checksum4(body)
	if !bytes.Equal(got, want[:]) {
		return nil, yerr.New(yerr.KindProtocolError, "broadcast packet checksum mismatch")
	}
	return raw[len(magic) : len(raw)-4], nil
}

func checksum4(b []byte) [4]byte {
	sum := sha256.Sum256(b)
	var out [4]byte
	copy(out[:], sum[:4])
	return out
}

// Announcer periodically broadcasts an Announcement on the LAN
// broadcast address until its context is cancelled.
type Announcer struct {
	log      *slog.Logger
	conn     *net.UDPConn
	interval time.Duration
}

// NewAnnouncer opens a UDP broadcast socket with SO_REUSEADDR/
// SO_REUSEPORT set (so multiple yoopd instances, or a quick
// restart, can share the port), matching how the teacher's listener
// sockets are configured for fast rebinding.
func NewAnnouncer(log *slog.Logger, interval time.Duration) (*Announcer, error) {
	conn, err := listenReusable("udp4", fmt.Sprintf(":%d", BroadcastPort))
	if err != nil {
		return nil, yerr.Wrap(yerr.KindNoNetwork, "failed to open broadcast socket", err)
	}
	return &Announcer{log: log, conn: conn, interval: interval}, nil
}

// Run broadcasts a on every interval tick until ctx is done.
func (a *Announcer) Run(ctx context.Context, a2 func() Announcement) error {
	defer a.conn.Close()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: BroadcastPort}
	for {
		ann := a2()
		payload, err := ann.encode()
		if err != nil {
			return err
		}
		if _, err := a.conn.WriteToUDP(encodePacket(payload), broadcastAddr); err != nil {
			a.log.Warn("broadcast send failed", "error", err)
		} else {
			a.log.Debug("announced code on LAN", "code", ann.Code, "device_id", ann.DeviceID)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Listener receives Announcements broadcast by other devices.
type Listener struct {
	conn *net.UDPConn
	log  *slog.Logger
}

func NewListener(log *slog.Logger) (*Listener, error) {
	conn, err := listenReusable("udp4", fmt.Sprintf(":%d", BroadcastPort))
	if err != nil {
		return nil, yerr.Wrap(yerr.KindNoNetwork, "failed to open discovery listen socket", err)
	}
	return &Listener{conn: conn, log: log}, nil
}

// Listen streams discovered Peers to out until ctx is cancelled.
func (l *Listener) Listen(ctx context.Context, out chan<- Peer) error {
	defer l.conn.Close()
	go func() {
		<-ctx.Done()
		l.conn.SetReadDeadline(time.Now()) // unblock ReadFromUDP below
	}()

	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.Debug("broadcast read error", "error", err)
			continue
		}
		payload, err := decodePacket(buf[:n])
		if err != nil {
			l.log.Debug("dropped malformed broadcast packet", "from", addr, "error", err)
			continue
		}
		ann, err := decodeAnnouncement(payload)
		if err != nil {
			l.log.Debug("dropped invalid announcement", "from", addr, "error", err)
			continue
		}
		if ann.expired(time.Now()) {
			continue
		}
		select {
		case out <- Peer{
			DeviceID:   ann.DeviceID,
			DeviceName: ann.DeviceName,
			Code:       ann.Code,
			Addr:       net.JoinHostPort(addr.IP.String(), fmt.Sprintf("%d", ann.Port)),
			Via:        TransportBroadcast,
			ExpiresAt:  ann.ExpiresAt,
		}:
		case <-ctx.Done():
			return nil
		}
	}
}

func listenReusable(network, addr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
					sockErr = e
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	laddr, err := net.ResolveUDPAddr(network, addr)
	if err != nil {
		return nil, err
	}
	pc, err := lc.ListenPacket(context.Background(), network, laddr.String())
	if err != nil {
		return nil, err
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, yerr.New(yerr.KindInternal, "expected *net.UDPConn from ListenPacket")
	}
	if network == "udp4" {
		conn.SetWriteBuffer(1 << 16)
	}
	return conn, nil
}
