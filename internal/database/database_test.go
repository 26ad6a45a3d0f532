package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iabetor/podnotify/internal/podcast"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "podnotify.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func TestOpenCreatesFile(t *testing.T) {
	db := newTestDB(t)
	if _, err := os.Stat(db.Path()); os.IsNotExist(err) {
		t.Errorf("database file not created at %s", db.Path())
	}
	// 迁移可重复执行
	if err := db.Migrate(); err != nil {
		t.Errorf("second Migrate failed: %v", err)
	}
	v, err := db.Version()
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if v != len(schema) {
		t.Errorf("expected schema version %d, got %d", len(schema), v)
	}
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version failed: %v", err)
	}
	if err := db.Migrate(); err == nil {
		t.Error("expected error for newer schema version")
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRecordAndListDeliveries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	records := []Delivery{
		{FeedURL: "https://a", Kind: "new_episode", Message: "first", DeliveryID: "log:1", CreatedAt: base},
		{FeedURL: "https://a", Kind: "live_status_changed", Message: "second", Error: "webhook: HTTP 500", CreatedAt: base.Add(time.Minute)},
		{FeedURL: "https://b", Kind: "new_episode", Message: "third", DeliveryID: "log:3", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range records {
		if err := db.RecordDelivery(ctx, r); err != nil {
			t.Fatalf("RecordDelivery failed: %v", err)
		}
	}

	got, err := db.RecentDeliveries(ctx, 2)
	if err != nil {
		t.Fatalf("RecentDeliveries failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[0].Message != "third" || got[1].Message != "second" {
		t.Errorf("unexpected order: %q, %q", got[0].Message, got[1].Message)
	}
	if got[1].Error != "webhook: HTTP 500" {
		t.Errorf("Error not stored: %q", got[1].Error)
	}
	if !got[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("CreatedAt mismatch: %v", got[0].CreatedAt)
	}
}

func TestBaselineRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.LoadBaseline(ctx, "https://a"); err != nil || ok {
		t.Fatalf("expected no baseline, got ok=%v err=%v", ok, err)
	}

	snap := podcast.Snapshot{
		SourceID:  "https://a",
		Title:     "My Show",
		Episodes:  []podcast.Episode{{Title: "Ep 1", Link: "https://a/1"}},
		LiveItems: []podcast.LiveItem{{Status: podcast.LivePending, StartTime: "10:00", Link: "https://a/live"}},
	}
	if err := db.SaveBaseline(ctx, snap); err != nil {
		t.Fatalf("SaveBaseline failed: %v", err)
	}

	// 覆盖写入
	snap.Episodes = append([]podcast.Episode{{Title: "Ep 2"}}, snap.Episodes...)
	if err := db.SaveBaseline(ctx, snap); err != nil {
		t.Fatalf("SaveBaseline (update) failed: %v", err)
	}

	got, ok, err := db.LoadBaseline(ctx, "https://a")
	if err != nil || !ok {
		t.Fatalf("LoadBaseline failed: ok=%v err=%v", ok, err)
	}
	if !got.Equal(snap) {
		t.Errorf("baseline mismatch: got %+v, want %+v", got, snap)
	}
}
