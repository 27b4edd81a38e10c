package session

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sanchxt/yoop-sub002/clipboard"
	"github.com/sanchxt/yoop-sub002/code"
	"github.com/sanchxt/yoop-sub002/discovery"
	"github.com/sanchxt/yoop-sub002/resume"
	"github.com/sanchxt/yoop-sub002/transfer"
	"github.com/sanchxt/yoop-sub002/wire"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// clipboardSyntheticName is the manifest path every clipboard update
// travels under (spec §4.10: "transported as single-file transfer
// sessions with a synthetic manifest"); it never touches a real
// directory tree, so any stable name works.
const clipboardSyntheticName = "clipboard.json"

// ClipboardConfig configures one bidirectional live clipboard link.
type ClipboardConfig struct {
	PortRange         TransferPortRange
	KeepAliveInterval time.Duration
	FindTimeout       time.Duration
	DirectAddr        string
	Expire            time.Duration
	PollInterval      time.Duration // 0 uses clipboard.DefaultPollInterval
	HoldTimeout       time.Duration
}

// ClipboardSession mirrors SyncSession's shape (code -> discovery ->
// wire handshake -> persistent control connection + listener) but
// reconciles nothing up front: it just relays whichever side's OS
// clipboard changes first, each change as its own manifest-of-one push.
type ClipboardSession struct {
	node      *Node
	cfg       ClipboardConfig
	bridge    *clipboard.Bridge
	resumeMgr *resume.Manager

	code code.Code
	ln   net.Listener
	port int
	cert tls.Certificate

	control  net.Conn
	peerHost string
	peerPort int
	peerID   uuid.UUID
	peerName string
}

// NewClipboardHostSession mints a code and binds the listener a peer
// will join. resumeMgr is only there because transfer.Receiver requires
// one; clipboard pushes are small and never resumed across restarts.
func NewClipboardHostSession(node *Node, cfg ClipboardConfig, access clipboard.Access, resumeMgr *resume.Manager) (*ClipboardSession, error) {
	c, err := code.Generate()
	if err != nil {
		return nil, err
	}
	s, err := newClipboardSession(node, cfg, access, resumeMgr)
	if err != nil {
		return nil, err
	}
	s.code = c
	return s, nil
}

// NewClipboardJoinSession binds the listener a join-side session needs
// without minting a code of its own.
func NewClipboardJoinSession(node *Node, cfg ClipboardConfig, access clipboard.Access, resumeMgr *resume.Manager) (*ClipboardSession, error) {
	return newClipboardSession(node, cfg, access, resumeMgr)
}

func newClipboardSession(node *Node, cfg ClipboardConfig, access clipboard.Access, resumeMgr *resume.Manager) (*ClipboardSession, error) {
	cert, err := node.Identity.SelfSignedCert()
	if err != nil {
		return nil, err
	}
	ln, port, err := listenFirstFree(cfg.PortRange, cert)
	if err != nil {
		return nil, err
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = clipboard.DefaultPollInterval
	}
	bridge := clipboard.NewBridgeWithInterval(access, interval)
	return &ClipboardSession{node: node, cfg: cfg, bridge: bridge, resumeMgr: resumeMgr, ln: ln, port: port, cert: cert}, nil
}

func (s *ClipboardSession) Code() code.Code { return s.code }

// RunHost announces the code on the LAN until a peer joins, then relays
// clipboard changes both ways until ctx is cancelled.
func (s *ClipboardSession) RunHost(ctx context.Context) error {
	defer s.ln.Close()

	expiresAt := time.Time{}
	if s.cfg.Expire > 0 {
		expiresAt = time.Now().Add(s.cfg.Expire)
	}
	ann := discovery.Announcement{
		ProtocolVersion: discovery.ProtocolVersion,
		Code:            s.code.String(),
		DeviceID:        s.node.Identity.DeviceID,
		DeviceName:      s.node.Identity.DeviceName,
		Port:            s.port,
		ExpiresAt:       expiresAt,
	}

	broadcastAnnouncer, err := discovery.NewAnnouncer(s.node.Log, 2*time.Second)
	if err != nil {
		return err
	}
	mdnsAnnouncer, err := discovery.Start(s.node.Log, ann)
	if err != nil {
		return err
	}
	defer mdnsAnnouncer.Stop()

	annCtx, cancelAnn := context.WithCancel(ctx)
	defer cancelAnn()
	go func() {
		_ = broadcastAnnouncer.Run(annCtx, func() discovery.Announcement { return ann })
	}()

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		conn, err := s.ln.Accept()
		accepted <- acceptResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-accepted:
		if res.err != nil {
			return yerr.Wrap(yerr.KindConnectionLost, "failed to accept inbound connection", res.err)
		}
		cancelAnn()
		hs, err := wire.Accept(res.conn, s.node.local())
		if err != nil {
			res.conn.Close()
			return err
		}
		s.setControl(res.conn, hs)
		return s.run(ctx)
	}
}

// RunJoin parses rawCode, locates the host, and relays clipboard changes
// both ways until ctx is cancelled.
func (s *ClipboardSession) RunJoin(ctx context.Context, rawCode string) error {
	defer s.ln.Close()

	c, err := code.Parse(rawCode)
	if err != nil {
		return err
	}

	addr := s.cfg.DirectAddr
	if addr == "" {
		timeout := s.cfg.FindTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		peer, err := discovery.NewScanner(s.node.Log).Find(ctx, c, timeout)
		if err != nil {
			return err
		}
		addr = peer.Addr
	}

	conn, err := dialPinned(addr, s.cert, nil, s.node.Identity)
	if err != nil {
		return err
	}
	hs, err := wire.Initiate(conn, s.node.local(), "clipboard")
	if err != nil {
		conn.Close()
		return err
	}
	s.setControl(conn, hs)
	return s.run(ctx)
}

func (s *ClipboardSession) setControl(conn net.Conn, hs *wire.HandshakeResult) {
	s.control = conn
	s.peerID = hs.PeerDeviceID
	s.peerName = hs.PeerDeviceName
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err == nil {
		s.peerHost = host
	}
}

// run reads the peer's listening port off the control connection (the
// one piece of rendezvous information the wire handshake doesn't carry),
// then watches the local clipboard and serves incoming pushes until ctx
// is cancelled.
func (s *ClipboardSession) run(ctx context.Context) error {
	defer s.control.Close()

	if err := s.exchangePort(); err != nil {
		return err
	}

	changes := make(chan clipboard.Change, 16)
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	watcher := s.bridge.Watcher()
	go func() { _ = watcher.Run(watchCtx, changes) }()

	go s.acceptIncomingPushes(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change := <-changes:
			if err := s.pushContent(change.Content); err != nil {
				s.node.Log.Warn("failed to push clipboard change to peer", "error", err)
			}
		}
	}
}

// clipboardPortEnvelope carries each side's listening port across the
// control connection, the same opaque-JSON-inside-IndexExchange trick
// SyncSession uses for its syncIndexEnvelope — wire never looks inside
// IndexJSON, so reusing the frame type here costs no protocol change
// even though a clipboard session has no index of its own to exchange.
type clipboardPortEnvelope struct {
	Port int `json:"port"`
}

func (s *ClipboardSession) exchangePort() error {
	self, err := json.Marshal(clipboardPortEnvelope{Port: s.port})
	if err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to encode clipboard port envelope", err)
	}
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- wire.WriteFrame(s.control, wire.TypeSyncIndex, wire.IndexExchange{IndexJSON: self}.Encode())
	}()

	frame, rerr := wire.ReadFrame(s.control)
	if rerr != nil {
		return yerr.Wrap(yerr.KindConnectionLost, "failed to read peer clipboard port envelope", rerr)
	}
	if err := <-writeErr; err != nil {
		return yerr.Wrap(yerr.KindConnectionLost, "failed to send clipboard port envelope", err)
	}
	if frame.Type != wire.TypeSyncIndex {
		return yerr.New(yerr.KindProtocolError, "expected a sync index frame")
	}
	ix, err := wire.DecodeIndexExchange(frame.Payload)
	if err != nil {
		return err
	}
	var peerEnvelope clipboardPortEnvelope
	if err := json.Unmarshal(ix.IndexJSON, &peerEnvelope); err != nil {
		return yerr.Wrap(yerr.KindProtocolError, "failed to decode peer clipboard port envelope", err)
	}
	s.peerPort = peerEnvelope.Port
	return nil
}

// pushContent serializes content to a temp file and sends it as a
// manifest-of-one transfer over a fresh connection to the peer's
// listener, exactly the way a sync session pushes a changed file.
func (s *ClipboardSession) pushContent(content clipboard.Content) error {
	path, err := writeContentTemp(content)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	conn, err := s.dialFile()
	if err != nil {
		return err
	}
	defer conn.Close()

	sender := transfer.NewSender(conn, transfer.SenderConfig{
		TransferID:        uuid.New(),
		Files:             []transfer.SendFile{{AbsPath: path, RelPath: clipboardSyntheticName}},
		KeepAliveInterval: s.cfg.KeepAliveInterval,
	})
	return sender.Run(context.Background())
}

func (s *ClipboardSession) dialFile() (net.Conn, error) {
	addr := net.JoinHostPort(s.peerHost, strconv.Itoa(s.peerPort))
	return dialPinned(addr, s.cert, nil, s.node.Identity)
}

// acceptIncomingPushes serves every connection accepted on the listener
// as one incoming clipboard update: receive it into a temp directory,
// decode it, and apply it to the OS clipboard through the bridge (which
// seeds the watcher first, so this write is never echoed back out).
func (s *ClipboardSession) acceptIncomingPushes(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()

			dir, err := os.MkdirTemp("", "yoop-clip-*")
			if err != nil {
				s.node.Log.Warn("failed to create clipboard staging directory", "error", err)
				return
			}
			defer os.RemoveAll(dir)

			receiver := transfer.NewReceiver(conn, transfer.ReceiverConfig{
				OutputDir:        dir,
				SenderDeviceName: s.peerName,
				SenderDeviceID:   s.peerID,
			}, s.resumeMgr)
			if err := receiver.Run(ctx, func(wire.Manifest) transfer.AcceptDecision {
				return transfer.AcceptDecision{Accept: true}
			}); err != nil {
				s.node.Log.Warn("failed to receive clipboard push", "error", err)
				return
			}

			content, err := readContentTemp(filepath.Join(dir, clipboardSyntheticName))
			if err != nil {
				s.node.Log.Warn("failed to decode received clipboard content", "error", err)
				return
			}
			hold := s.cfg.HoldTimeout
			if hold <= 0 {
				hold = time.Second
			}
			if err := s.bridge.ApplyRemote(content, hold); err != nil {
				s.node.Log.Warn("failed to apply remote clipboard update", "error", err)
			}
		}()
	}
}

func writeContentTemp(content clipboard.Content) (string, error) {
	b, err := json.Marshal(content)
	if err != nil {
		return "", yerr.Wrap(yerr.KindInternal, "failed to encode clipboard content", err)
	}
	f, err := os.CreateTemp("", "yoop-clip-*.json")
	if err != nil {
		return "", yerr.Wrap(yerr.KindInternal, "failed to create clipboard temp file", err)
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return "", yerr.Wrap(yerr.KindInternal, "failed to write clipboard temp file", err)
	}
	return f.Name(), nil
}

func readContentTemp(path string) (clipboard.Content, error) {
	b, err := os.ReadFile(path) // #nosec G304 -- receiver-chosen staging path
	if err != nil {
		return clipboard.Content{}, yerr.Wrap(yerr.KindInternal, "failed to read received clipboard file", err)
	}
	var content clipboard.Content
	if err := json.Unmarshal(b, &content); err != nil {
		return clipboard.Content{}, yerr.Wrap(yerr.KindProtocolError, "failed to decode received clipboard content", err)
	}
	return content, nil
}
