package session

import (
	"net"
	"testing"

	"github.com/sanchxt/yoop-sub002/clipboard"
)

func TestExchangePortRoundTripsBothDirections(t *testing.T) {
	hostNode := newTestNode(t, "host")
	joinNode := newTestNode(t, "join")

	hostConn, joinConn := net.Pipe()
	defer hostConn.Close()
	defer joinConn.Close()

	host := &ClipboardSession{node: hostNode, control: hostConn, port: 9101}
	join := &ClipboardSession{node: joinNode, control: joinConn, port: 9102}

	type result struct{ err error }
	hostResult := make(chan result, 1)
	joinResult := make(chan result, 1)

	go func() { hostResult <- result{host.exchangePort()} }()
	go func() { joinResult <- result{join.exchangePort()} }()

	if hr := <-hostResult; hr.err != nil {
		t.Fatalf("host exchangePort: %v", hr.err)
	}
	if jr := <-joinResult; jr.err != nil {
		t.Fatalf("join exchangePort: %v", jr.err)
	}

	if host.peerPort != 9102 {
		t.Fatalf("host.peerPort = %d, want 9102", host.peerPort)
	}
	if join.peerPort != 9101 {
		t.Fatalf("join.peerPort = %d, want 9101", join.peerPort)
	}
}

func TestWriteContentTempRoundTripsThroughReadContentTemp(t *testing.T) {
	original := clipboard.NewText("hello from the other side")

	path, err := writeContentTemp(original)
	if err != nil {
		t.Fatalf("writeContentTemp: %v", err)
	}

	got, err := readContentTemp(path)
	if err != nil {
		t.Fatalf("readContentTemp: %v", err)
	}
	if got.Text != original.Text || got.Type != original.Type {
		t.Fatalf("round-tripped content = %+v, want %+v", got, original)
	}
}

func TestReadContentTempFailsOnMissingFile(t *testing.T) {
	if _, err := readContentTemp("/nonexistent/path/clipboard.json"); err == nil {
		t.Fatalf("expected an error reading a nonexistent clipboard temp file")
	}
}
