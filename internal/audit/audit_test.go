package audit

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "audit.db"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	store.Record(ctx, Entry{SenderID: "+111", Command: "status", Reply: "ok", Timestamp: base})
	store.Record(ctx, Entry{SenderID: "+222", GroupID: "g1", Command: "locks", Reply: "🔒", Timestamp: base.Add(time.Second)})

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	// Newest first.
	if entries[0].SenderID != "+222" || entries[0].GroupID != "g1" {
		t.Errorf("unexpected newest entry %+v", entries[0])
	}
	if entries[1].Command != "status" {
		t.Errorf("unexpected oldest entry %+v", entries[1])
	}
	if entries[0].ID == "" {
		t.Error("entries should get generated ids")
	}
}

func TestStore_RecentLimit(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		store.Record(ctx, Entry{SenderID: "+111", Command: "help", Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	entries, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("expected limit of 3, got %d", len(entries))
	}
}
