// Package discovery implements share-code announcement and peer
// discovery (spec §4.4): a UDP broadcast channel for same-subnet LAN
// discovery, an mDNS/DNS-SD channel for switched/VLAN'd networks, a
// fused `Find`/`Scan` API combining both, and direct-connect-by-IP as a
// discovery-free fallback.
package discovery

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sanchxt/yoop-sub002/code"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// ProtocolVersion is bumped whenever the announcement wire format
// changes incompatibly.
const ProtocolVersion = 1

// ServiceName is the DNS-SD / mDNS service type advertised on the LAN.
const ServiceName = "_yoop._udp"

// Announcement is broadcast (UDP) or advertised (mDNS TXT record) by a
// device offering a share code.
type Announcement struct {
	ProtocolVersion int       `json:"v"`
	Code            string    `json:"code"`
	DeviceID        uuid.UUID `json:"device_id"`
	DeviceName      string    `json:"device_name"`
	Port            int       `json:"port"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Peer is a discovered offer, normalized across transports (UDP
// broadcast vs. mDNS) so callers of Find/Scan don't care which one
// surfaced it.
type Peer struct {
	DeviceID   uuid.UUID
	DeviceName string
	Code       string
	Addr       string // host:port, ready to dial
	Via        Transport
	ExpiresAt  time.Time
}

// Transport identifies which discovery channel produced a Peer.
type Transport string

const (
	TransportBroadcast Transport = "broadcast"
	TransportMDNS      Transport = "mdns"
	TransportDirect    Transport = "direct"
)

func (a Announcement) encode() ([]byte, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to encode announcement", err)
	}
	return b, nil
}

func decodeAnnouncement(b []byte) (Announcement, error) {
	var a Announcement
	if err := json.Unmarshal(b, &a); err != nil {
		return Announcement{}, yerr.Wrap(yerr.KindProtocolError, "failed to decode announcement", err)
	}
	if a.ProtocolVersion != ProtocolVersion {
		return Announcement{}, yerr.WithFields(yerr.KindUnsupportedVersion,
			"announcement protocol version mismatch",
			map[string]any{"got": a.ProtocolVersion, "want": ProtocolVersion})
	}
	if _, err := code.Parse(a.Code); err != nil {
		return Announcement{}, err
	}
	return a, nil
}

func (a Announcement) expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}
