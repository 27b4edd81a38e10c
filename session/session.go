// Package session composes the leaf packages (code, discovery, wire,
// transfer, trust, resume, syncengine, clipboard) into the
// three end-to-end flows described by spec §2 "Composition": a
// share-session (offer files, wait for one inbound connection), a
// receive-session (find a code on the LAN, pull the files), and a
// sync-session (a long-lived bidirectional directory sync).
package session

import (
	"crypto/tls"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/sanchxt/yoop-sub002/identity"
	"github.com/sanchxt/yoop-sub002/trust"
	"github.com/sanchxt/yoop-sub002/wire"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// Node bundles the long-lived, process-wide state every session kind
// needs: this device's identity, its trust store, and a logger. It has
// no network state of its own — each session owns its own connections.
type Node struct {
	Identity *identity.Identity
	Trust    *trust.Store
	Log      *slog.Logger
}

// TransferPortRange is the inclusive TCP port range a share-session
// binds to (spec §6), trying each in turn until one is free.
type TransferPortRange struct {
	Start, End int
}

// listenFirstFree opens a TLS listener — presenting cert, accepting any
// client certificate (the wire handshake's signed nonce is what actually
// proves peer identity) — on the first free port in r, mirroring the
// discovery announcer's "first free port in range" rule.
func listenFirstFree(r TransferPortRange, cert tls.Certificate) (net.Listener, int, error) {
	conf := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		ClientAuth:         tls.NoClientCert,
	}
	for port := r.Start; port <= r.End; port++ {
		ln, err := tls.Listen("tcp", netAddr("", port), conf)
		if err == nil {
			return ln, port, nil
		}
	}
	return nil, 0, yerr.New(yerr.KindNoNetwork, "no free transfer port in configured range")
}

func netAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// local builds the wire.Local descriptor this node presents during every
// handshake.
func (n *Node) local() wire.Local {
	return wire.Local{
		DeviceID:   n.Identity.DeviceID,
		DeviceName: n.Identity.DeviceName,
		PublicKey:  n.Identity.PublicKey,
		Sign:       n.Identity.Sign,
	}
}

// dialTimeout bounds how long a connect (or TLS handshake) is allowed to
// take before a peer is considered unreachable.
const dialTimeout = 5 * time.Second

// dialPinned opens a TLS connection to addr, presenting cert and, when
// verifyPeerKey is set, rejecting any peer whose certificate key doesn't
// match what the trust store expects for this code/device.
func dialPinned(addr string, cert tls.Certificate, verifyPeerKey func(peerPub []byte) error, id *identity.Identity) (net.Conn, error) {
	conf := id.PinnedTLSConfig(cert, verifyPeerKey)
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: dialTimeout}, "tcp", addr, conf)
	if err != nil {
		return nil, yerr.Wrap(yerr.KindConnectionLost, "failed to connect to peer", err)
	}
	return conn, nil
}
