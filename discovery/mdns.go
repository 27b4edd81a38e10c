package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// MDNSAnnouncer advertises an Announcement via mDNS/DNS-SD, for
// networks (VLANs, some Wi-Fi APs with client isolation off but
// broadcast-suppression on) where UDP broadcast doesn't reach.
type MDNSAnnouncer struct {
	log    *slog.Logger
	server *zeroconf.Server
}

// Start registers the service and keeps it alive until Stop is called.
func Start(log *slog.Logger, ann Announcement) (*MDNSAnnouncer, error) {
	txt := []string{
		"v=" + strconv.Itoa(ann.ProtocolVersion),
		"code=" + ann.Code,
		"device_id=" + ann.DeviceID.String(),
		"device_name=" + ann.DeviceName,
	}
	server, err := zeroconf.Register(
		"yoop-"+ann.DeviceID.String(),
		ServiceName,
		"local.",
		ann.Port,
		txt,
		nil,
	)
	if err != nil {
		return nil, yerr.Wrap(yerr.KindNoNetwork, "failed to register mDNS service", err)
	}
	return &MDNSAnnouncer{log: log, server: server}, nil
}

func (m *MDNSAnnouncer) Stop() {
	m.server.Shutdown()
}

// Browse streams Peers discovered via mDNS browsing to out until ctx is
// cancelled.
func Browse(ctx context.Context, log *slog.Logger, out chan<- Peer) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return yerr.Wrap(yerr.KindNoNetwork, "failed to create mDNS resolver", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	go func() {
		for entry := range entries {
			peer, err := peerFromEntry(entry)
			if err != nil {
				log.Debug("dropped unparseable mDNS entry", "instance", entry.Instance, "error", err)
				continue
			}
			select {
			case out <- peer:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceName, "local.", entries); err != nil {
		return yerr.Wrap(yerr.KindNoNetwork, "mDNS browse failed", err)
	}
	<-ctx.Done()
	return nil
}

func peerFromEntry(entry *zeroconf.ServiceEntry) (Peer, error) {
	txt := map[string]string{}
	for _, kv := range entry.Text {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				txt[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	deviceID, err := uuid.Parse(txt["device_id"])
	if err != nil {
		return Peer{}, yerr.Wrap(yerr.KindProtocolError, "mDNS entry has invalid device_id", err)
	}
	if len(entry.AddrIPv4) == 0 {
		return Peer{}, yerr.New(yerr.KindProtocolError, "mDNS entry has no IPv4 address")
	}
	return Peer{
		DeviceID:   deviceID,
		DeviceName: txt["device_name"],
		Code:       txt["code"],
		Addr:       fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port),
		Via:        TransportMDNS,
		ExpiresAt:  time.Time{}, // mDNS entries are live, not TTL-stamped like broadcast
	}, nil
}
