package audit

import (
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

// appendWithTime writes an entry directly through the same bucket layout
// Append uses, but with a caller-chosen RecordedAt, so PruneOlderThan can
// be exercised without depending on wall-clock timing between test steps.
func appendWithTime(t *testing.T, d *DB, e Entry) uint64 {
	t.Helper()
	e.ParentHash = d.lastHash
	var seq uint64
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketResponses))
		n, err := b.NextSequence()
		if err != nil {
			return err
		}
		seq = n
		e.Sequence = seq
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), data)
	})
	if err != nil {
		t.Fatalf("appendWithTime: %v", err)
	}
	d.lastHash = e.Response.ContextHash
	return seq
}

func openTestLedger(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	d, err := Open(path, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestOpenInitializesEmptyLedger(t *testing.T) {
	d := openTestLedger(t)

	n, err := d.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty ledger, got %d entries", n)
	}

	entries, err := d.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestAppendAssignsSequentialSequenceAndChainsHash(t *testing.T) {
	d := openTestLedger(t)

	seq1, err := d.Append(resp("h1"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	seq2, err := d.Append(resp("h2"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if seq1 != 1 || seq2 != 2 {
		t.Fatalf("expected sequences 1, 2; got %d, %d", seq1, seq2)
	}

	entries, err := d.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ParentHash != "" {
		t.Errorf("expected first entry to chain from empty parent hash, got %q", entries[0].ParentHash)
	}
	if entries[1].ParentHash != "h1" {
		t.Errorf("expected second entry's parent hash to be h1, got %q", entries[1].ParentHash)
	}

	if v := Verify(entries); len(v) != 0 {
		t.Errorf("expected a clean chain, got violations: %+v", v)
	}
}

func TestAppendNeverMutatesTheReturnedResponse(t *testing.T) {
	d := openTestLedger(t)
	r := resp("h1")
	original := r

	if _, err := d.Append(r); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !reflect.DeepEqual(r, original) {
		t.Errorf("Append must not mutate its argument: got %+v, want %+v", r, original)
	}
}

func TestLoadLastHashResumesChainAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	d1, err := Open(path, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := d1.Append(resp("h1")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := d1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	d2, err := Open(path, 30)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer d2.Close()

	if _, err := d2.Append(resp("h2")); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}

	entries, err := d2.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries across the reopen, got %d", len(entries))
	}
	if entries[1].ParentHash != "h1" {
		t.Errorf("expected chain to resume from h1 across reopen, got %q", entries[1].ParentHash)
	}
	if v := Verify(entries); len(v) != 0 {
		t.Errorf("expected a clean chain across reopen, got violations: %+v", v)
	}
}

func TestPruneOlderThanDeletesOnlyStaleEntries(t *testing.T) {
	d := openTestLedger(t)

	now := time.Now().UTC()
	appendWithTime(t, d, Entry{RecordedAt: now.AddDate(0, 0, -40), Response: resp("old")})
	appendWithTime(t, d, Entry{RecordedAt: now, Response: resp("fresh")})

	cutoff := now.AddDate(0, 0, -30)
	deleted, err := d.PruneOlderThan(cutoff)
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted entry, got %d", deleted)
	}

	n, err := d.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", n)
	}

	entries, err := d.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 1 || entries[0].Response.ContextHash != "fresh" {
		t.Errorf("expected only the fresh entry to survive pruning, got %+v", entries)
	}
}

func TestRetentionCutoffReflectsConfiguredWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	d, err := Open(path, 7)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	want := time.Now().UTC().AddDate(0, 0, -7)
	got := d.RetentionCutoff()
	if got.Sub(want).Abs() > time.Minute {
		t.Errorf("RetentionCutoff() = %v, want close to %v", got, want)
	}
}

func TestOpenRejectsIncompatibleSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	d, err := Open(path, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketMeta)).Put([]byte("schema_version"), []byte("99"))
	}); err != nil {
		t.Fatalf("corrupt schema_version: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := Open(path, 30); err == nil {
		t.Error("expected Open to reject a mismatched schema_version")
	}
}
