package db

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/marcus/riverwalk/internal/models"
)

func TestQueueOrderedByTimestamp(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	// Inserted out of order; drain must follow timestamps, then ids.
	items := []models.QueueItem{
		{Op: models.OpUpdate, Kind: models.KindSite, LocalID: "local_c", Timestamp: base.Add(2 * time.Second)},
		{Op: models.OpCreate, Kind: models.KindRiverWalk, LocalID: "local_a", Timestamp: base},
		{Op: models.OpCreate, Kind: models.KindSite, LocalID: "local_b", Timestamp: base.Add(time.Second)},
		{Op: models.OpDelete, Kind: models.KindSite, LocalID: "local_d", Timestamp: base.Add(time.Second)},
	}
	for i := range items {
		if _, err := db.EnqueueMutation(&items[i]); err != nil {
			t.Fatalf("EnqueueMutation failed: %v", err)
		}
	}

	got, err := db.QueueItems()
	if err != nil {
		t.Fatalf("QueueItems failed: %v", err)
	}
	want := []string{"local_a", "local_b", "local_d", "local_c"}
	if len(got) != len(want) {
		t.Fatalf("got %d items, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].LocalID != id {
			t.Errorf("item %d = %s, want %s", i, got[i].LocalID, id)
		}
	}
}

func TestQueueItemLifecycle(t *testing.T) {
	db := newTestDB(t)
	payload, _ := json.Marshal(map[string]any{"name": "Test"})
	item := &models.QueueItem{Op: models.OpCreate, Kind: models.KindRiverWalk, LocalID: "local_x", Data: payload, Attempts: 7}
	id, err := db.EnqueueMutation(item)
	if err != nil {
		t.Fatal(err)
	}
	if item.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}

	if err := db.UpdateQueueItem(id, 2, "backend rejected"); err != nil {
		t.Fatalf("UpdateQueueItem failed: %v", err)
	}
	items, _ := db.QueueItems()
	if items[0].Attempts != 2 || items[0].LastError != "backend rejected" {
		t.Errorf("item = %+v", items[0])
	}
	if string(items[0].Data) != string(payload) {
		t.Errorf("data = %s", items[0].Data)
	}

	if err := db.DeleteQueueItem(id); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.CountQueueItems(); n != 0 {
		t.Errorf("count = %d after delete", n)
	}
}

func TestEnqueueResetsAttempts(t *testing.T) {
	db := newTestDB(t)
	item := &models.QueueItem{Op: models.OpCreate, Kind: models.KindRiverWalk, LocalID: "local_x", Attempts: 5}
	db.EnqueueMutation(item)
	items, _ := db.QueueItems()
	if items[0].Attempts != 0 {
		t.Errorf("attempts = %d, want 0", items[0].Attempts)
	}
}

func TestEnqueueRejectsUnknownOpOrKind(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.EnqueueMutation(&models.QueueItem{Op: "upsert", Kind: models.KindSite, LocalID: "local_x"}); err == nil {
		t.Error("expected error for unknown op")
	}
	if _, err := db.EnqueueMutation(&models.QueueItem{Op: models.OpCreate, Kind: "rivers", LocalID: "local_x"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestDeleteQueueItemsFor(t *testing.T) {
	db := newTestDB(t)
	db.EnqueueMutation(&models.QueueItem{Op: models.OpCreate, Kind: models.KindSite, LocalID: "local_s"})
	db.EnqueueMutation(&models.QueueItem{Op: models.OpUpdate, Kind: models.KindSite, LocalID: "local_s"})
	db.EnqueueMutation(&models.QueueItem{Op: models.OpCreate, Kind: models.KindSite, LocalID: "local_other"})

	n, err := db.DeleteQueueItemsFor(models.KindSite, "local_s")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("purged %d, want 2", n)
	}
	if c, _ := db.CountQueueItems(); c != 1 {
		t.Errorf("count = %d, want 1", c)
	}
}

func TestMarkSyncedWaitsForQueuedMutations(t *testing.T) {
	db := newTestDB(t)
	w := newWalk("Pending")
	db.Put(w)
	db.EnqueueMutation(&models.QueueItem{Op: models.OpUpdate, Kind: models.KindRiverWalk, LocalID: w.LocalID})

	db.MarkSynced(models.KindRiverWalk, w.LocalID)
	rec, _ := db.Get(models.KindRiverWalk, w.LocalID)
	if rec.Ident().Synced {
		t.Error("record marked synced while a mutation is still queued")
	}

	db.DeleteQueueItemsFor(models.KindRiverWalk, w.LocalID)
	db.MarkSynced(models.KindRiverWalk, w.LocalID)
	rec, _ = db.Get(models.KindRiverWalk, w.LocalID)
	if !rec.Ident().Synced {
		t.Error("record not marked synced")
	}
}

func TestSyncState(t *testing.T) {
	db := newTestDB(t)
	s, err := db.GetSyncState()
	if err != nil {
		t.Fatalf("GetSyncState failed: %v", err)
	}
	if s.LastSyncAt != nil || s.LastError != "" {
		t.Errorf("fresh state = %+v", s)
	}

	db.RecordSyncError("backend unreachable")
	s, _ = db.GetSyncState()
	if s.LastError != "backend unreachable" {
		t.Errorf("LastError = %q", s.LastError)
	}

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	db.RecordSyncSuccess(at)
	s, _ = db.GetSyncState()
	if s.LastSyncAt == nil || !s.LastSyncAt.Equal(at) {
		t.Errorf("LastSyncAt = %v", s.LastSyncAt)
	}
	if s.LastError != "" {
		t.Errorf("LastError not cleared: %q", s.LastError)
	}
}
