package transfer

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sanchxt/yoop-sub002/fileio"
	"github.com/sanchxt/yoop-sub002/resume"
	"github.com/sanchxt/yoop-sub002/wire"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// tamperManifestHash sits between a sender and a receiver and corrupts
// the first file's declared hash in the outgoing Manifest frame, leaving
// every chunk (and its per-chunk checksum) untouched. This simulates a
// manifest that disagrees with the bytes actually received, independent
// of any chunk corruption.
func tamperManifestHash(t *testing.T, senderSide, receiverSide net.Conn) {
	t.Helper()
	go func() {
		for {
			frame, rerr := wire.ReadFrame(senderSide)
			if rerr != nil {
				return
			}
			payload := frame.Payload
			if frame.Type == wire.TypeManifest {
				m, err := wire.DecodeManifest(payload)
				if err == nil && len(m.Entries) > 0 {
					corrupted := m.Entries[0].Hash
					corrupted = strings.Repeat("0", len(corrupted))
					if corrupted == m.Entries[0].Hash {
						corrupted = "f" + corrupted[1:]
					}
					m.Entries[0].Hash = corrupted
					payload = m.Encode()
				}
			}
			if err := wire.WriteFrame(receiverSide, frame.Type, payload); err != nil {
				return
			}
		}
	}()
	go func() {
		_, _ = io.Copy(senderSide, receiverSide)
	}()
}

func TestReceiverFailsWithChecksumMismatchWhenManifestHashDisagrees(t *testing.T) {
	srcDir := t.TempDir()
	outputDir := t.TempDir()
	content := []byte(strings.Repeat("payload past one chunk boundary ", 40000))
	abs := writeTempFile(t, srcDir, "big.bin", content)

	senderConn, midSender := net.Pipe()
	midReceiver, receiverConn := net.Pipe()
	defer senderConn.Close()
	defer midSender.Close()
	defer midReceiver.Close()
	defer receiverConn.Close()

	tamperManifestHash(t, midSender, midReceiver)

	sender := NewSender(senderConn, SenderConfig{
		TransferID:        uuid.New(),
		Code:              "TAMPER-CODE",
		Files:             []SendFile{{AbsPath: abs, RelPath: "big.bin"}},
		Compression:       fileio.CompressionNever,
		KeepAliveInterval: 50 * time.Millisecond,
	})

	mgr, err := resume.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	receiver := NewReceiver(receiverConn, ReceiverConfig{
		OutputDir:         outputDir,
		SenderDeviceID:    uuid.New(),
		Code:              "TAMPER-CODE",
		KeepAliveInterval: 50 * time.Millisecond,
	}, mgr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	receiverDone := make(chan error, 1)
	go func() {
		receiverDone <- receiver.Run(ctx, func(wire.Manifest) AcceptDecision {
			return AcceptDecision{Accept: true}
		})
	}()
	go func() { _ = sender.Run(ctx) }()

	err = <-receiverDone
	if err == nil {
		t.Fatalf("expected receiver to fail on checksum mismatch")
	}
	if !errors.Is(err, yerr.ChecksumMismatch) {
		t.Fatalf("expected a ChecksumMismatch error, got %v", err)
	}

	if _, statErr := os.Stat(filepath.Join(outputDir, "big.bin")); statErr != nil {
		t.Fatalf("expected the partially-written file to still exist for inspection: %v", statErr)
	}
}
