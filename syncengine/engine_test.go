package syncengine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

var errBoom = errors.New("transport send failed")

type recordingTransport struct {
	created []string
	modified []string
	deleted  []string
	renamed  [][2]string
	failNext error
}

func (r *recordingTransport) SendCreate(path, absPath string) error {
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	r.created = append(r.created, path)
	return nil
}

func (r *recordingTransport) SendModify(path, absPath string) error {
	r.modified = append(r.modified, path)
	return nil
}

func (r *recordingTransport) SendDelete(path string) error {
	r.deleted = append(r.deleted, path)
	return nil
}

func (r *recordingTransport) SendRename(from, to string) error {
	r.renamed = append(r.renamed, [2]string{from, to})
	return nil
}

func TestEngineReconcileSendsCreatesAndEmitsEvents(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello")

	cfg := DefaultConfig(root)
	transport := &recordingTransport{}
	eng := NewEngine(cfg, transport)

	local, err := eng.BuildLocalIndex()
	if err != nil {
		t.Fatalf("BuildLocalIndex: %v", err)
	}

	if _, err := eng.Reconcile(context.Background(), local, Index{}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(transport.created) != 1 || transport.created[0] != "a.txt" {
		t.Fatalf("expected a.txt to be sent as a Create, got %v", transport.created)
	}

	stats := eng.Stats()
	if stats.FilesSent != 1 {
		t.Fatalf("expected FilesSent=1, got %d", stats.FilesSent)
	}

	var gotIndexExchanged, gotFileSent bool
	for i := 0; i < 10; i++ {
		select {
		case ev := <-eng.Events():
			switch ev.Kind {
			case EventIndexExchanged:
				gotIndexExchanged = true
			case EventFileSent:
				gotFileSent = true
			}
		default:
		}
	}
	if !gotIndexExchanged || !gotFileSent {
		t.Fatalf("expected both IndexExchanged and FileSent events, got exchanged=%v sent=%v", gotIndexExchanged, gotFileSent)
	}
}

func TestEngineReconcileSendsDeleteForLocallyRemovedFile(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig(root)
	transport := &recordingTransport{}
	eng := NewEngine(cfg, transport)
	eng.previous = Index{"old.txt": {Path: "old.txt", Kind: EntryFile, ContentHash: 5}}

	remote := Index{"old.txt": {Path: "old.txt", Kind: EntryFile, ContentHash: 5}}
	if _, err := eng.Reconcile(context.Background(), Index{}, remote); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(transport.deleted) != 1 || transport.deleted[0] != "old.txt" {
		t.Fatalf("expected old.txt to be sent as a Delete, got %v", transport.deleted)
	}
}

func TestEngineConflictKeepBothRenamesLocalFileAside(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shared.txt"), "local version")

	cfg := DefaultConfig(root)
	cfg.Resolution = ResolutionKeepBoth
	transport := &recordingTransport{}
	eng := NewEngine(cfg, transport)

	local, err := eng.BuildLocalIndex()
	if err != nil {
		t.Fatalf("BuildLocalIndex: %v", err)
	}
	remote := Index{"shared.txt": {Path: "shared.txt", Kind: EntryFile, ContentHash: local["shared.txt"].ContentHash + 1}}

	if _, err := eng.Reconcile(context.Background(), local, remote); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(transport.created) != 1 {
		t.Fatalf("expected the renamed-aside file to be sent as a Create, got %v", transport.created)
	}
	stats := eng.Stats()
	if stats.Conflicts != 1 {
		t.Fatalf("expected 1 recorded conflict, got %d", stats.Conflicts)
	}
}

func TestEngineRecordsErrorOnTransportFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "fails.txt"), "data")

	cfg := DefaultConfig(root)
	transport := &recordingTransport{failNext: errBoom}
	eng := NewEngine(cfg, transport)

	local, err := eng.BuildLocalIndex()
	if err != nil {
		t.Fatalf("BuildLocalIndex: %v", err)
	}
	if _, err := eng.Reconcile(context.Background(), local, Index{}); err != nil {
		t.Fatalf("Reconcile itself should not fail on a per-op send error: %v", err)
	}
	if eng.Stats().Errors != 1 {
		t.Fatalf("expected 1 recorded error, got %d", eng.Stats().Errors)
	}
}
