package syncengine

import "testing"

func cfgSyncDeletions(on bool) Config {
	cfg := DefaultConfig("/tmp/sync-root")
	cfg.SyncDeletions = on
	return cfg
}

func findOp(ops []Op, path string) (Op, bool) {
	for _, o := range ops {
		if o.Path == path {
			return o, true
		}
	}
	return Op{}, false
}

func TestReconcileCreatesPathPresentOnlyLocally(t *testing.T) {
	local := Index{"new.txt": {Path: "new.txt", Kind: EntryFile, ContentHash: 1}}
	remote := Index{}
	ops, conflicts := Reconcile(local, remote, Index{}, cfgSyncDeletions(true))

	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %v", conflicts)
	}
	op, ok := findOp(ops, "new.txt")
	if !ok || op.Kind != OpCreate {
		t.Fatalf("expected a Create op for new.txt, got %+v ok=%v", op, ok)
	}
}

func TestReconcileSameHashIsNoop(t *testing.T) {
	local := Index{"same.txt": {Path: "same.txt", Kind: EntryFile, ContentHash: 42}}
	remote := Index{"same.txt": {Path: "same.txt", Kind: EntryFile, ContentHash: 42}}
	ops, conflicts := Reconcile(local, remote, Index{}, cfgSyncDeletions(true))

	if len(ops) != 0 || len(conflicts) != 0 {
		t.Fatalf("expected no ops or conflicts for identical hashes, got ops=%v conflicts=%v", ops, conflicts)
	}
}

func TestReconcileDifferentHashIsConflict(t *testing.T) {
	local := Index{"diverged.txt": {Path: "diverged.txt", Kind: EntryFile, ContentHash: 1}}
	remote := Index{"diverged.txt": {Path: "diverged.txt", Kind: EntryFile, ContentHash: 2}}
	ops, conflicts := Reconcile(local, remote, Index{}, cfgSyncDeletions(true))

	if len(ops) != 0 {
		t.Fatalf("expected no direct ops for a diverged path, got %v", ops)
	}
	if len(conflicts) != 1 || conflicts[0].Path != "diverged.txt" {
		t.Fatalf("expected one conflict for diverged.txt, got %v", conflicts)
	}
}

func TestReconcileDirectoriesNeverConflict(t *testing.T) {
	local := Index{"dir": {Path: "dir", Kind: EntryDirectory}}
	remote := Index{"dir": {Path: "dir", Kind: EntryDirectory}}
	ops, conflicts := Reconcile(local, remote, Index{}, cfgSyncDeletions(true))
	if len(ops) != 0 || len(conflicts) != 0 {
		t.Fatalf("expected directories to never produce ops or conflicts")
	}
}

func TestReconcilePropagatesLocalDeletionWhenSyncDeletionsOn(t *testing.T) {
	previous := Index{"gone.txt": {Path: "gone.txt", Kind: EntryFile, ContentHash: 9}}
	local := Index{} // deleted locally since previous
	remote := Index{"gone.txt": {Path: "gone.txt", Kind: EntryFile, ContentHash: 9}}

	ops, _ := Reconcile(local, remote, previous, cfgSyncDeletions(true))
	op, ok := findOp(ops, "gone.txt")
	if !ok || op.Kind != OpDelete {
		t.Fatalf("expected a Delete op for gone.txt, got %+v ok=%v", op, ok)
	}
}

func TestReconcileSkipsDeletionWhenSyncDeletionsOff(t *testing.T) {
	previous := Index{"gone.txt": {Path: "gone.txt", Kind: EntryFile, ContentHash: 9}}
	local := Index{}
	remote := Index{"gone.txt": {Path: "gone.txt", Kind: EntryFile, ContentHash: 9}}

	ops, _ := Reconcile(local, remote, previous, cfgSyncDeletions(false))
	if _, ok := findOp(ops, "gone.txt"); ok {
		t.Fatalf("expected no Delete op when sync_deletions is off")
	}
}

func TestReconcileDoesNotDeleteAPathThePeerJustCreated(t *testing.T) {
	// previous had no knowledge of created.txt; it's missing locally only
	// because the peer made it after our last index, not because we
	// deleted it — the peer's own reconcile will propagate the Create.
	local := Index{}
	remote := Index{"created.txt": {Path: "created.txt", Kind: EntryFile, ContentHash: 1}}
	ops, _ := Reconcile(local, remote, Index{}, cfgSyncDeletions(true))

	if _, ok := findOp(ops, "created.txt"); ok {
		t.Fatalf("expected no Delete op for a path previous never had")
	}
}
