package session

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sanchxt/yoop-sub002/code"
	"github.com/sanchxt/yoop-sub002/discovery"
	"github.com/sanchxt/yoop-sub002/fileio"
	"github.com/sanchxt/yoop-sub002/transfer"
	"github.com/sanchxt/yoop-sub002/trust"
	"github.com/sanchxt/yoop-sub002/wire"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// ShareConfig configures one outbound offer.
type ShareConfig struct {
	Files             []transfer.SendFile
	Expire            time.Duration
	PortRange         TransferPortRange
	Compression       fileio.CompressionMode
	ParallelStreams   uint32
	KeepAliveInterval time.Duration
}

// ShareSession is a code mint -> discovery announce -> wire handshake ->
// transfer sender pipeline (spec §2 Composition, "share-session").
type ShareSession struct {
	node *Node
	cfg  ShareConfig

	code     code.Code
	ln       net.Listener
	port     int
	announce *discovery.Announcer
	mdns     *discovery.MDNSAnnouncer
	cert     tls.Certificate

	mu     sync.Mutex
	sender *transfer.Sender
}

// Progress returns the active transfer's progress watch, or nil before a
// peer has connected. Safe to call concurrently with Run.
func (s *ShareSession) Progress() *transfer.ProgressWatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sender == nil {
		return nil
	}
	return s.sender.Progress()
}

// NewShareSession mints a code and binds the first free transfer port in
// cfg.PortRange. The returned session is ready to Run once its Code is
// shown to the user.
func NewShareSession(node *Node, cfg ShareConfig) (*ShareSession, error) {
	c, err := code.Generate()
	if err != nil {
		return nil, err
	}
	cert, err := node.Identity.SelfSignedCert()
	if err != nil {
		return nil, err
	}
	ln, port, err := listenFirstFree(cfg.PortRange, cert)
	if err != nil {
		return nil, err
	}
	return &ShareSession{node: node, cfg: cfg, code: c, ln: ln, port: port, cert: cert}, nil
}

// Code returns the 4-character code to show (or QR-encode) to the
// receiving side.
func (s *ShareSession) Code() code.Code { return s.code }

// Run announces the code on the LAN (UDP broadcast and mDNS) until a
// peer connects or ctx is cancelled, then drives exactly one transfer
// session to completion. Only one inbound connection is ever served: a
// share code is single-use per the code mint's invariant.
func (s *ShareSession) Run(ctx context.Context) error {
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
		return s.serve(ctx, res.conn)
	}
}

func (s *ShareSession) serve(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	hs, err := wire.Accept(conn, s.node.local())
	if err != nil {
		return err
	}

	if !s.allowPeer(hs.PeerDeviceID, hs.PeerPublicKey) {
		_ = wire.WriteFrame(conn, wire.TypeReject, wire.Reject{
			Code:    "E_DEVICE_NOT_TRUSTED",
			Message: "peer key does not match trust store record",
		}.Encode())
		return yerr.DeviceNotTrusted
	}

	transferID := uuid.New()
	sender := transfer.NewSender(conn, transfer.SenderConfig{
		TransferID:        transferID,
		Code:              s.code.String(),
		Files:             s.cfg.Files,
		Compression:       s.cfg.Compression,
		ParallelStreams:   s.cfg.ParallelStreams,
		KeepAliveInterval: s.cfg.KeepAliveInterval,
	})
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
	if err := sender.Run(ctx); err != nil {
		return err
	}
	if _, known := s.node.Trust.FindByID(hs.PeerDeviceID.String()); !known {
		return s.node.Trust.Add(trust.Device{
			DeviceID:   hs.PeerDeviceID.String(),
			DeviceName: hs.PeerDeviceName,
			PublicKey:  base64.StdEncoding.EncodeToString(hs.PeerPublicKey),
			TrustLevel: trust.LevelNormal,
		})
	}
	return nil
}

// allowPeer applies TOFU: a device never seen before is allowed (and
// recorded by serve after a successful transfer); a device already
// in the trust store must match its recorded public key and not be
// blocked.
func (s *ShareSession) allowPeer(deviceID uuid.UUID, pub []byte) bool {
	d, known := s.node.Trust.FindByID(deviceID.String())
	if !known {
		return true
	}
	if d.TrustLevel == trust.LevelBlocked {
		return false
	}
	return s.node.Trust.VerifyKey(deviceID.String(), base64.StdEncoding.EncodeToString(pub))
}
