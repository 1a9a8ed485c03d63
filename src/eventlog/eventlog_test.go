package eventlog

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("opening event log: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetUnknownEvent(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get("evt-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutRecordsOnce(t *testing.T) {
	store := newTestStore(t)

	first, recorded, err := store.Put(&Record{
		EventID:       "evt-001",
		EventType:     "TRANSACTION_COMPLETED",
		TransactionID: "9988776655",
		Outcome:       "applied",
	})
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	if !recorded {
		t.Fatal("first put must report recorded")
	}
	if first.ReceivedAt.IsZero() {
		t.Fatal("first put must stamp ReceivedAt")
	}

	// Replaying the same event id with a different outcome must not overwrite.
	second, recorded, err := store.Put(&Record{
		EventID: "evt-001",
		Outcome: "rejected",
	})
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if recorded {
		t.Fatal("replay must not report recorded")
	}
	if second.Outcome != "applied" {
		t.Fatalf("replay must observe the original outcome, got %q", second.Outcome)
	}

	stored, err := store.Get("evt-001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Outcome != "applied" || stored.TransactionID != "9988776655" {
		t.Fatalf("stored record mutated: %+v", stored)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.db")

	store, err := New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := store.Put(&Record{EventID: "evt-002", Outcome: "applied"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	store.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	rec, err := reopened.Get("evt-002")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if rec.Outcome != "applied" {
		t.Fatalf("record lost across reopen: %+v", rec)
	}
}
