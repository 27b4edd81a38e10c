package session

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/sanchxt/yoop-sub002/code"
	"github.com/sanchxt/yoop-sub002/discovery"
	"github.com/sanchxt/yoop-sub002/resume"
	"github.com/sanchxt/yoop-sub002/transfer"
	"github.com/sanchxt/yoop-sub002/trust"
	"github.com/sanchxt/yoop-sub002/wire"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// ReceiveConfig configures one inbound pull. PIN and approval prompts
// are collected by the caller (CLI or UI layer) before Run is called;
// this session only enforces the resulting verdicts.
type ReceiveConfig struct {
	OutputDir         string
	FindTimeout       time.Duration
	DirectAddr        string // non-empty skips LAN discovery (spec §4.4 direct-connect fallback)
	Sequential        bool   // probe one discovery channel at a time instead of racing both
	PreferMDNS        bool   // with Sequential, try mDNS before falling back to broadcast
	KeepAliveInterval time.Duration
	RequirePIN        bool
	PIN               string
	VerifyPIN         func(pin string) bool
	RequireApproval   bool
	Approve           func(manifest wire.Manifest, peerName string) bool
}

// ReceiveSession is a code mint (parse) -> discovery (find) -> wire
// handshake (client role) -> transfer receiver pipeline (spec §2
// Composition, "receive-session").
type ReceiveSession struct {
	node      *Node
	cfg       ReceiveConfig
	resumeMgr *resume.Manager

	mu       sync.Mutex
	receiver *transfer.Receiver
}

// Progress returns the active transfer's progress watch, or nil before a
// peer connection has been established. Safe to call concurrently with
// Run.
func (r *ReceiveSession) Progress() *transfer.ProgressWatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.receiver == nil {
		return nil
	}
	return r.receiver.Progress()
}

func NewReceiveSession(node *Node, cfg ReceiveConfig, resumeMgr *resume.Manager) *ReceiveSession {
	return &ReceiveSession{node: node, cfg: cfg, resumeMgr: resumeMgr}
}

// Run parses rawCode, locates the offering peer (directly if
// cfg.DirectAddr is set, otherwise by scanning the LAN), and drives the
// transfer to completion.
func (r *ReceiveSession) Run(ctx context.Context, rawCode string) error {
	if r.cfg.RequirePIN {
		if r.cfg.VerifyPIN == nil || !r.cfg.VerifyPIN(r.cfg.PIN) {
			return yerr.New(yerr.KindPermissionDenied, "pin verification failed")
		}
	}

	c, err := code.Parse(rawCode)
	if err != nil {
		return err
	}

	addr, peerName := r.cfg.DirectAddr, ""
	if addr == "" {
		peer, err := r.locate(ctx, c)
		if err != nil {
			return err
		}
		addr, peerName = peer.Addr, peer.DeviceName
	}

	cert, err := r.node.Identity.SelfSignedCert()
	if err != nil {
		return err
	}
	conn, err := dialPinned(addr, cert, nil, r.node.Identity)
	if err != nil {
		return err
	}
	defer conn.Close()

	hs, err := wire.Initiate(conn, r.node.local(), "receive")
	if err != nil {
		return err
	}
	if peerName == "" {
		peerName = hs.PeerDeviceName
	}
	if err := r.recordFirstSeen(hs.PeerDeviceID.String(), hs.PeerDeviceName, hs.PeerPublicKey); err != nil {
		return err
	}

	decide := func(manifest wire.Manifest) transfer.AcceptDecision {
		if d, known := r.node.Trust.FindByID(hs.PeerDeviceID.String()); known && d.TrustLevel == trust.LevelBlocked {
			return transfer.AcceptDecision{Accept: false, Reason: "device is blocked"}
		}
		if r.cfg.RequireApproval && r.cfg.Approve != nil && !r.cfg.Approve(manifest, peerName) {
			return transfer.AcceptDecision{Accept: false, Reason: "rejected by user"}
		}
		return transfer.AcceptDecision{Accept: true}
	}

	receiver := transfer.NewReceiver(conn, transfer.ReceiverConfig{
		OutputDir:         r.cfg.OutputDir,
		SenderDeviceName:  peerName,
		SenderDeviceID:    hs.PeerDeviceID,
		Code:              c.String(),
		KeepAliveInterval: r.cfg.KeepAliveInterval,
	}, r.resumeMgr)
	r.mu.Lock()
	r.receiver = receiver
	r.mu.Unlock()

	if err := receiver.Run(ctx, decide); err != nil {
		return err
	}

	return r.node.Trust.UpdateLastSeen(hs.PeerDeviceID.String())
}

func (r *ReceiveSession) locate(ctx context.Context, c code.Code) (discovery.Peer, error) {
	timeout := r.cfg.FindTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	scanner := discovery.NewScanner(r.node.Log)
	if r.cfg.Sequential {
		return scanner.FindSequential(ctx, c, timeout, r.cfg.PreferMDNS)
	}
	return scanner.Find(ctx, c, timeout)
}

// recordFirstSeen adds peerID to the trust store at LevelNormal the
// first time this device is ever seen, implementing TOFU (spec §4.3):
// key pinning happens the moment a key is first observed, not on some
// separate "pair" step.
func (r *ReceiveSession) recordFirstSeen(peerID, peerName string, pub []byte) error {
	if _, known := r.node.Trust.FindByID(peerID); known {
		return nil
	}
	return r.node.Trust.Add(trust.Device{
		DeviceID:   peerID,
		DeviceName: peerName,
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		TrustLevel: trust.LevelNormal,
	})
}
