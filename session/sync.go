package session

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sanchxt/yoop-sub002/code"
	"github.com/sanchxt/yoop-sub002/discovery"
	"github.com/sanchxt/yoop-sub002/resume"
	"github.com/sanchxt/yoop-sub002/syncengine"
	"github.com/sanchxt/yoop-sub002/transfer"
	"github.com/sanchxt/yoop-sub002/wire"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// SyncConfig configures one bidirectional directory sync session (spec
// §4.9, "sync-session" in §2 Composition).
type SyncConfig struct {
	SyncRoot        string
	ExcludePatterns []string
	SyncDeletions   bool
	Resolution      syncengine.ResolutionStrategy
	CachePath       string // empty disables persisted "previous index" across restarts

	PortRange         TransferPortRange
	KeepAliveInterval time.Duration
	FindTimeout       time.Duration
	DirectAddr        string
	Expire            time.Duration
}

// syncIndexEnvelope is the JSON blob carried opaquely inside a
// wire.IndexExchange: the engine's own index plus the listening port the
// sender needs dialed back for its own Create/Modify pushes. wire never
// looks inside this, so adding the port here costs no protocol change.
type syncIndexEnvelope struct {
	Port  int             `json:"port"`
	Index json.RawMessage `json:"index"`
}

// SyncSession is a code mint/parse -> discovery -> wire handshake ->
// long-lived bidirectional reconciliation loop. Both sides bind a
// transfer listener: the first connection accepted on it (or the one
// dialed out) becomes the control channel carrying IndexExchange and
// SyncControl frames; every later connection on that same listener is a
// peer-initiated file push, served by a plain transfer.Receiver.
type SyncSession struct {
	node      *Node
	cfg       SyncConfig
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

	engine *syncengine.Engine
}

// NewSyncHostSession mints a code and binds the transfer listener, ready
// for its Code to be shown (or QR-encoded) before RunHost is called.
func NewSyncHostSession(node *Node, cfg SyncConfig, resumeMgr *resume.Manager) (*SyncSession, error) {
	c, err := code.Generate()
	if err != nil {
		return nil, err
	}
	s, err := newSyncSession(node, cfg, resumeMgr)
	if err != nil {
		return nil, err
	}
	s.code = c
	return s, nil
}

// NewSyncJoinSession binds the transfer listener a join-side session
// needs to receive the host's pushes, without minting a code of its own.
func NewSyncJoinSession(node *Node, cfg SyncConfig, resumeMgr *resume.Manager) (*SyncSession, error) {
	return newSyncSession(node, cfg, resumeMgr)
}

func newSyncSession(node *Node, cfg SyncConfig, resumeMgr *resume.Manager) (*SyncSession, error) {
	cert, err := node.Identity.SelfSignedCert()
	if err != nil {
		return nil, err
	}
	ln, port, err := listenFirstFree(cfg.PortRange, cert)
	if err != nil {
		return nil, err
	}
	return &SyncSession{node: node, cfg: cfg, resumeMgr: resumeMgr, ln: ln, port: port, cert: cert}, nil
}

func (s *SyncSession) Code() code.Code { return s.code }

// RunHost announces the code on the LAN until a peer connects, then runs
// the sync loop until ctx is cancelled.
func (s *SyncSession) RunHost(ctx context.Context) error {
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

// RunJoin parses rawCode, locates the host (directly via cfg.DirectAddr
// or by scanning the LAN), and runs the sync loop until ctx is
// cancelled.
func (s *SyncSession) RunJoin(ctx context.Context, rawCode string) error {
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
	hs, err := wire.Initiate(conn, s.node.local(), "sync")
	if err != nil {
		conn.Close()
		return err
	}
	s.setControl(conn, hs)
	return s.run(ctx)
}

func (s *SyncSession) setControl(conn net.Conn, hs *wire.HandshakeResult) {
	s.control = conn
	s.peerID = hs.PeerDeviceID
	s.peerName = hs.PeerDeviceName
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err == nil {
		s.peerHost = host
	}
}

// run exchanges indices over the control connection, reconciles once,
// then keeps the watcher/peer-push loop alive until ctx is cancelled.
func (s *SyncSession) run(ctx context.Context) error {
	defer s.control.Close()

	cfg := syncengine.DefaultConfig(s.cfg.SyncRoot)
	cfg.ExcludePatterns = append(cfg.ExcludePatterns, s.cfg.ExcludePatterns...)
	cfg.SyncDeletions = s.cfg.SyncDeletions
	if s.cfg.Resolution != 0 {
		cfg.Resolution = s.cfg.Resolution
	}

	transport := &wireTransport{session: s}

	var engine *syncengine.Engine
	if s.cfg.CachePath != "" {
		cache, err := syncengine.OpenIndexCache(s.cfg.CachePath)
		if err != nil {
			return err
		}
		defer cache.Close()
		engine, err = syncengine.NewEngineWithCache(cfg, transport, cache)
		if err != nil {
			return err
		}
	} else {
		engine = syncengine.NewEngine(cfg, transport)
	}
	s.engine = engine

	local, err := engine.BuildLocalIndex()
	if err != nil {
		return err
	}
	remote, err := s.exchangeIndex(local)
	if err != nil {
		return err
	}

	go s.acceptIncomingPushes(ctx)

	if _, err := engine.Reconcile(ctx, local, remote); err != nil {
		return err
	}
	return engine.RunLive(ctx)
}

// exchangeIndex writes our own index (wrapped with our listener port)
// onto the control connection and reads the peer's back. The write runs
// concurrently with the read, so two sides exchanging at once never wait
// on each other's write, whatever buffering the transport has.
func (s *SyncSession) exchangeIndex(local syncengine.Index) (syncengine.Index, error) {
	localJSON, err := json.Marshal(local)
	if err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to encode local sync index", err)
	}
	envelope := syncIndexEnvelope{Port: s.port, Index: localJSON}
	envelopeJSON, err := json.Marshal(envelope)
	if err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to encode index envelope", err)
	}
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- wire.WriteFrame(s.control, wire.TypeSyncIndex, wire.IndexExchange{IndexJSON: envelopeJSON}.Encode())
	}()

	frame, rerr := wire.ReadFrame(s.control)
	if rerr != nil {
		return nil, yerr.Wrap(yerr.KindConnectionLost, "failed to read peer index exchange", rerr)
	}
	if err := <-writeErr; err != nil {
		return nil, yerr.Wrap(yerr.KindConnectionLost, "failed to send index exchange", err)
	}
	if frame.Type != wire.TypeSyncIndex {
		return nil, yerr.New(yerr.KindProtocolError, "expected a sync index frame")
	}
	ix, err := wire.DecodeIndexExchange(frame.Payload)
	if err != nil {
		return nil, err
	}
	var peerEnvelope syncIndexEnvelope
	if err := json.Unmarshal(ix.IndexJSON, &peerEnvelope); err != nil {
		return nil, yerr.Wrap(yerr.KindProtocolError, "failed to decode peer index envelope", err)
	}
	s.peerPort = peerEnvelope.Port

	var remote syncengine.Index
	if err := json.Unmarshal(peerEnvelope.Index, &remote); err != nil {
		return nil, yerr.Wrap(yerr.KindProtocolError, "failed to decode peer sync index", err)
	}
	return remote, nil
}

// acceptIncomingPushes serves every connection after the control one as
// a manifest-of-one inbound file transfer until ctx is cancelled.
func (s *SyncSession) acceptIncomingPushes(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return // listener closed on session teardown
		}
		go func() {
			defer conn.Close()
			receiver := transfer.NewReceiver(conn, transfer.ReceiverConfig{
				OutputDir:         s.cfg.SyncRoot,
				SenderDeviceName:  s.peerName,
				SenderDeviceID:    s.peerID,
				KeepAliveInterval: s.cfg.KeepAliveInterval,
			}, s.resumeMgr)
			_ = receiver.Run(ctx, func(wire.Manifest) transfer.AcceptDecision {
				return transfer.AcceptDecision{Accept: true}
			})
		}()
	}
}

// dialFile opens a fresh connection to the peer's transfer listener for
// one manifest-of-one push. No wire handshake runs on it: identity was
// already proven once on the control connection, and every connection
// this session's own listener accepts past the first is implicitly
// trusted as coming from that same peer.
func (s *SyncSession) dialFile() (net.Conn, error) {
	addr := net.JoinHostPort(s.peerHost, strconv.Itoa(s.peerPort))
	return dialPinned(addr, s.cert, nil, s.node.Identity)
}

// wireTransport implements syncengine.Transport on top of a SyncSession:
// Create/Modify each get their own short-lived transfer.Sender run,
// Delete/Rename are single lightweight SyncControl frames on the
// persistent control connection.
type wireTransport struct {
	session *SyncSession
}

func (t *wireTransport) SendCreate(path, absPath string) error {
	return t.sendFile(path, absPath)
}

func (t *wireTransport) SendModify(path, absPath string) error {
	return t.sendFile(path, absPath)
}

func (t *wireTransport) sendFile(path, absPath string) error {
	conn, err := t.session.dialFile()
	if err != nil {
		return err
	}
	defer conn.Close()

	sender := transfer.NewSender(conn, transfer.SenderConfig{
		TransferID:        uuid.New(),
		Files:             []transfer.SendFile{{AbsPath: absPath, RelPath: path}},
		KeepAliveInterval: t.session.cfg.KeepAliveInterval,
	})
	return sender.Run(context.Background())
}

func (t *wireTransport) SendDelete(path string) error {
	sc := wire.SyncControl{Kind: wire.SyncOpDelete, Path: path}
	return wire.WriteFrame(t.session.control, wire.TypeSyncControl, sc.Encode())
}

func (t *wireTransport) SendRename(fromPath, toPath string) error {
	sc := wire.SyncControl{Kind: wire.SyncOpRename, Path: fromPath, ToPath: toPath}
	return wire.WriteFrame(t.session.control, wire.TypeSyncControl, sc.Encode())
}

