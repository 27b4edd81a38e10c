package discovery

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPacketRoundTrip(t *testing.T) {
	ann := Announcement{
		ProtocolVersion: ProtocolVersion,
		Code:            "A7K9",
		DeviceID:        uuid.New(),
		DeviceName:      "kitchen-mac",
		Port:            47852,
		ExpiresAt:       time.Now().Add(time.Minute),
	}
	payload, err := ann.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	packet := encodePacket(payload)

	got, err := decodePacket(packet)
	if err != nil {
		t.Fatalf("decodePacket: %v", err)
	}
	decoded, err := decodeAnnouncement(got)
	if err != nil {
		t.Fatalf("decodeAnnouncement: %v", err)
	}
	if decoded.Code != ann.Code || decoded.DeviceID != ann.DeviceID {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, ann)
	}
}

func TestDecodePacketRejectsCorruption(t *testing.T) {
	ann := Announcement{ProtocolVersion: ProtocolVersion, Code: "A7K9", DeviceID: uuid.New(), Port: 1}
	payload, _ := ann.encode()
	packet := encodePacket(payload)
	packet[len(packet)-1] ^= 0xFF // flip a checksum bit

	if _, err := decodePacket(packet); err == nil {
		t.Fatalf("expected checksum mismatch to be rejected")
	}
}

func TestDecodePacketRejectsShortInput(t *testing.T) {
	if _, err := decodePacket([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected short packet to be rejected")
	}
}

func TestDecodeAnnouncementRejectsVersionMismatch(t *testing.T) {
	ann := Announcement{ProtocolVersion: ProtocolVersion + 1, Code: "A7K9", DeviceID: uuid.New()}
	payload, _ := ann.encode()
	if _, err := decodeAnnouncement(payload); err == nil {
		t.Fatalf("expected version mismatch to be rejected")
	}
}
