package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/notifile/notifile/common"
)

func createTestStore(t *testing.T, history int, snapshots bool) (*Store, func()) {
	tmpDir, err := os.MkdirTemp("", "journal_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	journalPath := filepath.Join(tmpDir, "test_journal.db")
	store, err := Open(journalPath, history, snapshots)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to open journal: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func testRecord(target string, outcome common.Outcome) common.SyncRecord {
	return common.SyncRecord{
		Target:    target,
		Outcome:   outcome,
		Reason:    common.ReasonNotify,
		Checksum:  0xdeadbeef,
		Bytes:     42,
		Duration:  15 * time.Millisecond,
		Reloaded:  outcome == common.OutcomeWritten,
		StartedAt: time.Now(),
	}
}

func TestJournalRecordAndLatest(t *testing.T) {
	store, cleanup := createTestStore(t, 10, false)
	defer cleanup()

	rec := testRecord("zones", common.OutcomeWritten)
	if err := store.Record(rec, []byte("zone data")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entry, err := store.Latest("zones")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if entry == nil {
		t.Fatal("expected an entry, got nil")
	}
	if entry.Target != "zones" {
		t.Errorf("expected target 'zones', got '%s'", entry.Target)
	}
	if entry.Outcome != common.OutcomeWritten {
		t.Errorf("expected outcome written, got %s", entry.Outcome)
	}
	if entry.Reason != common.ReasonNotify {
		t.Errorf("expected reason notify, got %s", entry.Reason)
	}
	if entry.Checksum != "00000000deadbeef" {
		t.Errorf("unexpected checksum %s", entry.Checksum)
	}
	if entry.Bytes != 42 {
		t.Errorf("expected 42 bytes, got %d", entry.Bytes)
	}
	if entry.Duration != 15*time.Millisecond {
		t.Errorf("unexpected duration %v", entry.Duration)
	}
	if !entry.Reloaded {
		t.Error("expected reloaded flag set")
	}
	if entry.Snapshot {
		t.Error("expected no snapshot when snapshots disabled")
	}
}

func TestJournalLatestUnknownTarget(t *testing.T) {
	store, cleanup := createTestStore(t, 10, false)
	defer cleanup()

	entry, err := store.Latest("missing")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if entry != nil {
		t.Errorf("expected nil entry for unknown target, got %+v", entry)
	}
}

func TestJournalHistoryNewestFirst(t *testing.T) {
	store, cleanup := createTestStore(t, 10, false)
	defer cleanup()

	outcomes := []common.Outcome{common.OutcomeWritten, common.OutcomeUnchanged, common.OutcomeFailed}
	for _, outcome := range outcomes {
		rec := testRecord("zones", outcome)
		if outcome == common.OutcomeFailed {
			rec.Error = "query failed"
		}
		if err := store.Record(rec, nil); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	entries, err := store.History("zones", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Outcome != common.OutcomeFailed {
		t.Errorf("expected newest entry first, got %s", entries[0].Outcome)
	}
	if entries[0].Error != "query failed" {
		t.Errorf("expected error carried through, got '%s'", entries[0].Error)
	}
	if entries[2].Outcome != common.OutcomeWritten {
		t.Errorf("expected oldest entry last, got %s", entries[2].Outcome)
	}
}

func TestJournalPruneKeepsHistoryLimit(t *testing.T) {
	store, cleanup := createTestStore(t, 2, false)
	defer cleanup()

	for i := 0; i < 5; i++ {
		rec := testRecord("zones", common.OutcomeWritten)
		rec.Bytes = i
		if err := store.Record(rec, nil); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	// Other targets keep their own history
	if err := store.Record(testRecord("users", common.OutcomeUnchanged), nil); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := store.History("zones", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected history pruned to 2 entries, got %d", len(entries))
	}
	if entries[0].Bytes != 4 || entries[1].Bytes != 3 {
		t.Errorf("expected the two newest entries, got bytes %d and %d", entries[0].Bytes, entries[1].Bytes)
	}

	users, err := store.History("users", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("expected untouched history for other target, got %d entries", len(users))
	}
}

func TestJournalSnapshotRoundTrip(t *testing.T) {
	store, cleanup := createTestStore(t, 10, true)
	defer cleanup()

	content := []byte("zone \"example.com\" { type master; };\n")
	if err := store.Record(testRecord("zones", common.OutcomeWritten), content); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entry, err := store.Latest("zones")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if entry == nil || !entry.Snapshot {
		t.Fatal("expected entry with snapshot flag set")
	}

	got, ok, err := store.LastContent("zones")
	if err != nil {
		t.Fatalf("LastContent failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a stored snapshot")
	}
	if string(got) != string(content) {
		t.Errorf("snapshot round trip mismatch: got %q", got)
	}
}

func TestJournalNoSnapshotForUnchanged(t *testing.T) {
	store, cleanup := createTestStore(t, 10, true)
	defer cleanup()

	if err := store.Record(testRecord("zones", common.OutcomeUnchanged), []byte("same")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	_, ok, err := store.LastContent("zones")
	if err != nil {
		t.Fatalf("LastContent failed: %v", err)
	}
	if ok {
		t.Error("expected no snapshot for an unchanged sync")
	}
}

func TestJournalSnapshotsDisabled(t *testing.T) {
	store, cleanup := createTestStore(t, 10, false)
	defer cleanup()

	if err := store.Record(testRecord("zones", common.OutcomeWritten), []byte("data")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	_, ok, err := store.LastContent("zones")
	if err != nil {
		t.Fatalf("LastContent failed: %v", err)
	}
	if ok {
		t.Error("expected no snapshot when snapshots disabled")
	}
}

func TestJournalNilStore(t *testing.T) {
	var store *Store

	if err := store.Record(testRecord("zones", common.OutcomeWritten), []byte("data")); err != nil {
		t.Errorf("nil store Record returned error: %v", err)
	}
	if entry, err := store.Latest("zones"); err != nil || entry != nil {
		t.Errorf("nil store Latest returned %+v, %v", entry, err)
	}
	if entries, err := store.History("zones", 5); err != nil || entries != nil {
		t.Errorf("nil store History returned %+v, %v", entries, err)
	}
	if _, ok, err := store.LastContent("zones"); err != nil || ok {
		t.Errorf("nil store LastContent returned ok=%v, %v", ok, err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("nil store Close returned error: %v", err)
	}
}
