package session

import (
	"net"
	"testing"

	"github.com/sanchxt/yoop-sub002/syncengine"
)

func TestExchangeIndexRoundTripsBothDirections(t *testing.T) {
	hostNode := newTestNode(t, "host")
	joinNode := newTestNode(t, "join")

	hostConn, joinConn := net.Pipe()
	defer hostConn.Close()
	defer joinConn.Close()

	host := &SyncSession{node: hostNode, control: hostConn, port: 9001}
	join := &SyncSession{node: joinNode, control: joinConn, port: 9002}

	hostLocal := syncengine.Index{"a.txt": {Path: "a.txt", Size: 10}}
	joinLocal := syncengine.Index{"b.txt": {Path: "b.txt", Size: 20}}

	type result struct {
		remote syncengine.Index
		err    error
	}
	hostResult := make(chan result, 1)
	joinResult := make(chan result, 1)

	go func() {
		remote, err := host.exchangeIndex(hostLocal)
		hostResult <- result{remote, err}
	}()
	go func() {
		remote, err := join.exchangeIndex(joinLocal)
		joinResult <- result{remote, err}
	}()

	hr := <-hostResult
	jr := <-joinResult

	if hr.err != nil {
		t.Fatalf("host exchangeIndex: %v", hr.err)
	}
	if jr.err != nil {
		t.Fatalf("join exchangeIndex: %v", jr.err)
	}

	if _, ok := hr.remote["b.txt"]; !ok {
		t.Fatalf("host did not receive join's index entry")
	}
	if _, ok := jr.remote["a.txt"]; !ok {
		t.Fatalf("join did not receive host's index entry")
	}
	if host.peerPort != 9002 {
		t.Fatalf("host.peerPort = %d, want 9002", host.peerPort)
	}
	if join.peerPort != 9001 {
		t.Fatalf("join.peerPort = %d, want 9001", join.peerPort)
	}
}
