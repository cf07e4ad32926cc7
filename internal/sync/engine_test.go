package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marcus/riverwalk/internal/backend"
	"github.com/marcus/riverwalk/internal/backend/backendtest"
	"github.com/marcus/riverwalk/internal/connectivity"
	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/events"
	"github.com/marcus/riverwalk/internal/models"
)

const testUser = "user-1"

type staticUser string

func (u staticUser) UserID(context.Context) (string, error) { return string(u), nil }

type noUser struct{}

func (noUser) UserID(context.Context) (string, error) { return "", errors.New("not logged in") }

type fixture struct {
	store   *db.DB
	remote  *backendtest.Fake
	monitor *connectivity.Manual
	engine  *Engine

	mu     sync.Mutex
	events []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   db.Open(t.TempDir()),
		remote:  backendtest.New(),
		monitor: connectivity.NewManual(true),
	}
	t.Cleanup(func() { f.store.Close() })
	bus := events.NewBus(nil)
	bus.Subscribe(func(e events.Event) {
		f.mu.Lock()
		f.events = append(f.events, e)
		f.mu.Unlock()
	})
	f.engine = NewEngine(f.store, f.remote, f.monitor, staticUser(testUser), Options{Bus: bus})
	return f
}

func (f *fixture) eventTypes() []events.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Type
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

// createOffline stores rec unsynced and queues its create, the way the data
// layer does while offline.
func (f *fixture) createOffline(t *testing.T, rec models.Record) {
	t.Helper()
	ident := rec.Ident()
	if ident.LocalID == "" {
		ident.LocalID = db.GenerateLocalID()
		ident.ID = ident.LocalID
	}
	ident.UserID = testUser
	if err := f.store.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := f.engine.Queue().Enqueue(models.OpCreate, rec.Kind(), rec, ident.LocalID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func (f *fixture) get(t *testing.T, kind models.Kind, localID string) models.Record {
	t.Helper()
	rec, err := f.store.Get(kind, localID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil {
		t.Fatalf("%s %s not in store", kind, localID)
	}
	return rec
}

func pending(t *testing.T, f *fixture) int {
	t.Helper()
	n, err := f.engine.Queue().Len()
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestOfflineWalkSyncsOnReconnect(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetOnline(false)

	walk := &models.RiverWalk{Name: "Test", Date: "2026-05-01"}
	f.createOffline(t, walk)

	got := f.get(t, models.KindRiverWalk, walk.LocalID)
	if !db.IsLocalOnly(got.Ident().ID) || got.Ident().Synced {
		t.Fatalf("offline record = %+v", got.Ident())
	}

	f.monitor.SetOnline(true)
	res, err := f.engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Pushed != 1 {
		t.Errorf("Pushed = %d, want 1", res.Pushed)
	}

	got = f.get(t, models.KindRiverWalk, walk.LocalID)
	if db.IsLocalOnly(got.Ident().ID) || !got.Ident().Synced {
		t.Errorf("after sync = %+v", got.Ident())
	}
	if got.Ident().LocalID != walk.LocalID {
		t.Errorf("local id changed")
	}
	if n := pending(t, f); n != 0 {
		t.Errorf("pending = %d", n)
	}
	if len(f.remote.Rows(models.KindRiverWalk)) != 1 {
		t.Errorf("server rows = %d, want 1", len(f.remote.Rows(models.KindRiverWalk)))
	}
}

func TestChainCreatedOfflineRelinksInOneCycle(t *testing.T) {
	f := newFixture(t)
	walk := &models.RiverWalk{Name: "Chain", Date: "2026-05-01"}
	f.createOffline(t, walk)
	site := &models.Site{RiverWalkLocalID: walk.LocalID, SiteNumber: 1, RiverWidth: 4}
	f.createOffline(t, site)
	point := &models.MeasurementPoint{SiteLocalID: site.LocalID, PointNumber: 1, DistanceFromBank: 0, Depth: 0.3}
	f.createOffline(t, point)

	res, err := f.engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Pushed != 3 || res.Deferred != 0 {
		t.Fatalf("result = %+v", res)
	}

	w := f.get(t, models.KindRiverWalk, walk.LocalID)
	s := f.get(t, models.KindSite, site.LocalID).(*models.Site)
	p := f.get(t, models.KindMeasurementPoint, point.LocalID).(*models.MeasurementPoint)

	for _, r := range []models.Record{w, s, p} {
		if !r.Ident().Synced || db.IsLocalOnly(r.Ident().ID) {
			t.Errorf("%s not synced: %+v", r.Kind(), r.Ident())
		}
	}
	if s.RiverWalkID != w.Ident().ID {
		t.Errorf("site.river_walk_id = %q, want %q", s.RiverWalkID, w.Ident().ID)
	}
	if p.SiteID != s.ID {
		t.Errorf("point.site_id = %q, want %q", p.SiteID, s.ID)
	}

	// The server never saw a local token as a parent reference.
	row := f.remote.Row(models.KindMeasurementPoint, p.ID)
	if row["site_id"] != s.ID {
		t.Errorf("server point site_id = %v", row["site_id"])
	}
	if _, ok := row["site_local_id"]; ok {
		t.Error("local parent column leaked to the server")
	}
}

func TestChildDeferredWhileParentFails(t *testing.T) {
	f := newFixture(t)
	walk := &models.RiverWalk{Name: "Parent fails"}
	f.createOffline(t, walk)
	site := &models.Site{RiverWalkLocalID: walk.LocalID, SiteNumber: 1}
	f.createOffline(t, site)

	f.remote.FailNext("Insert", models.KindRiverWalk, 1, backend.ErrRejected)
	res, err := f.engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Deferred != 2 {
		t.Errorf("Deferred = %d, want 2", res.Deferred)
	}
	if f.remote.CallCount("Insert", models.KindSite) != 0 {
		t.Error("site insert attempted before its parent had a server id")
	}
	items, _ := f.store.QueueItems()
	for _, it := range items {
		if it.Kind == models.KindSite && it.LastError != "parent unresolved" {
			t.Errorf("site item last_error = %q", it.LastError)
		}
	}

	// Next cycle resolves both.
	res, err = f.engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Pushed != 2 {
		t.Errorf("second cycle Pushed = %d", res.Pushed)
	}
	s := f.get(t, models.KindSite, site.LocalID).(*models.Site)
	if db.IsLocalOnly(s.RiverWalkID) || s.RiverWalkID == "" {
		t.Errorf("site parent = %q", s.RiverWalkID)
	}
}

func TestItemDroppedAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	walk := &models.RiverWalk{Name: "Doomed"}
	f.createOffline(t, walk)
	f.remote.FailNext("Insert", models.KindRiverWalk, 3, backend.ErrRejected)

	before := pending(t, f)
	for i := 0; i < 3; i++ {
		if _, err := f.engine.Sync(context.Background()); err != nil {
			t.Fatalf("Sync %d: %v", i, err)
		}
	}
	if after := pending(t, f); after != before-1 {
		t.Errorf("pending = %d, want %d", after, before-1)
	}
	if f.get(t, models.KindRiverWalk, walk.LocalID).Ident().Synced {
		t.Error("dropped record reached synced")
	}

	// No fourth attempt.
	f.engine.Sync(context.Background())
	if n := f.remote.CallCount("Insert", models.KindRiverWalk); n != 3 {
		t.Errorf("insert calls = %d, want 3", n)
	}
}

func TestMaxAttemptsIsConfigurable(t *testing.T) {
	store := db.Open(t.TempDir())
	defer store.Close()
	q := NewQueue(store, 5, nil)
	if q.MaxAttempts() != 5 {
		t.Fatalf("MaxAttempts = %d", q.MaxAttempts())
	}
	q.Enqueue(models.OpCreate, models.KindRiverWalk, nil, "local_x")
	for i := 1; i <= 5; i++ {
		items, _ := q.Drain()
		dropped, err := q.Fail(items[0], errors.New("nope"))
		if err != nil {
			t.Fatal(err)
		}
		if dropped != (i == 5) {
			t.Fatalf("attempt %d dropped = %v", i, dropped)
		}
	}
	if n, _ := q.Len(); n != 0 {
		t.Errorf("Len = %d", n)
	}

	if NewQueue(store, 0, nil).MaxAttempts() != DefaultMaxAttempts {
		t.Error("zero should use the default")
	}
}

func TestUnreachableCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	f.createOffline(t, &models.RiverWalk{Name: "Flaky"})
	f.remote.SetDown(true)

	res, err := f.engine.Sync(context.Background())
	// Drain failures are swallowed; the download then fails the cycle.
	if err == nil || !errors.Is(err, backend.ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if res.Deferred != 1 {
		t.Errorf("Deferred = %d", res.Deferred)
	}
	types := f.eventTypes()
	if types[0] != events.SyncStarted {
		t.Errorf("first event = %s", types[0])
	}
	found := false
	for _, ty := range types {
		if ty == events.SyncFailed {
			found = true
		}
	}
	if !found {
		t.Errorf("no sync-failed event in %v", types)
	}
	st, _ := f.engine.Status()
	if st.LastError == "" || st.PendingItems != 1 {
		t.Errorf("status = %+v", st)
	}
	if f.engine.State() != StateIdle {
		t.Errorf("state = %s after failure", f.engine.State())
	}
}

func TestForceSyncOffline(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetOnline(false)
	if _, err := f.engine.ForceSync(context.Background()); !errors.Is(err, ErrOffline) {
		t.Fatalf("err = %v, want ErrOffline", err)
	}
	if len(f.remote.Calls()) != 0 {
		t.Error("backend called while offline")
	}
}

func TestSyncFailsWithoutUser(t *testing.T) {
	f := newFixture(t)
	f.engine.ident = noUser{}
	if _, err := f.engine.Sync(context.Background()); err == nil {
		t.Fatal("expected error without a user")
	}
}

type blockingBackend struct {
	*backendtest.Fake
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) Select(ctx context.Context, table models.Kind, q backend.Query) ([]backend.Row, error) {
	if table == models.KindRiverWalk {
		b.entered <- struct{}{}
		<-b.release
	}
	return b.Fake.Select(ctx, table, q)
}

func TestConcurrentSyncRejected(t *testing.T) {
	f := newFixture(t)
	bb := &blockingBackend{Fake: f.remote, entered: make(chan struct{}), release: make(chan struct{})}
	f.engine.remote = bb

	done := make(chan error)
	go func() {
		_, err := f.engine.Sync(context.Background())
		done <- err
	}()
	<-bb.entered
	if f.engine.State() != StateDownloading {
		t.Errorf("state = %s, want downloading", f.engine.State())
	}
	if _, err := f.engine.Sync(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("err = %v, want ErrSyncInProgress", err)
	}
	close(bb.release)
	if err := <-done; err != nil {
		t.Fatalf("first Sync: %v", err)
	}
}

func TestUpdateAndDeleteDrain(t *testing.T) {
	f := newFixture(t)
	walk := &models.RiverWalk{Name: "Before"}
	f.createOffline(t, walk)
	if _, err := f.engine.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	serverID := f.get(t, models.KindRiverWalk, walk.LocalID).Ident().ID

	// Offline edit
	rec := f.get(t, models.KindRiverWalk, walk.LocalID).(*models.RiverWalk)
	rec.Name = "After"
	rec.Synced = false
	f.store.Put(rec)
	f.engine.Queue().Enqueue(models.OpUpdate, models.KindRiverWalk, rec, rec.LocalID)

	if _, err := f.engine.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if name := f.remote.Row(models.KindRiverWalk, serverID)["name"]; name != "After" {
		t.Errorf("server name = %v", name)
	}
	if !f.get(t, models.KindRiverWalk, walk.LocalID).Ident().Synced {
		t.Error("updated record not marked synced")
	}

	// Offline delete, then someone else deletes it first: not-found is success.
	f.store.Delete(models.KindRiverWalk, walk.LocalID)
	f.engine.Queue().Enqueue(models.OpDelete, models.KindRiverWalk, DeletePayload{ID: serverID}, walk.LocalID)
	f.remote.Delete(context.Background(), models.KindRiverWalk, serverID)

	res, err := f.engine.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Pushed != 1 || pending(t, f) != 0 {
		t.Errorf("result = %+v, pending = %d", res, pending(t, f))
	}
}

func TestDownloadAppliesServerRows(t *testing.T) {
	f := newFixture(t)
	walkID := f.remote.Seed(models.KindRiverWalk, backend.Row{"user_id": testUser, "name": "From tablet", "date": "2026-04-02"})
	siteID := f.remote.Seed(models.KindSite, backend.Row{"user_id": testUser, "river_walk_id": walkID, "site_number": float64(1)})
	f.remote.Seed(models.KindRiverWalk, backend.Row{"user_id": "someone-else", "name": "Not mine"})

	res, err := f.engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Downloaded != 2 {
		t.Errorf("Downloaded = %d, want 2", res.Downloaded)
	}

	walk := f.get(t, models.KindRiverWalk, walkID)
	if !walk.Ident().Synced || walk.(*models.RiverWalk).Name != "From tablet" {
		t.Errorf("walk = %+v", walk)
	}
	site := f.get(t, models.KindSite, siteID).(*models.Site)
	if site.RiverWalkLocalID != walkID || site.RiverWalkID != walkID {
		t.Errorf("site parent refs = %q / %q", site.RiverWalkLocalID, site.RiverWalkID)
	}
}

func TestDownloadKeepsUnsyncedLocalEdits(t *testing.T) {
	f := newFixture(t)
	walk := &models.RiverWalk{Name: "Mine"}
	f.createOffline(t, walk)
	f.engine.Sync(context.Background())
	serverID := f.get(t, models.KindRiverWalk, walk.LocalID).Ident().ID

	// Local edit whose update keeps failing; the server copy must not
	// overwrite it.
	rec := f.get(t, models.KindRiverWalk, walk.LocalID).(*models.RiverWalk)
	rec.Name = "Local edit"
	rec.Synced = false
	f.store.Put(rec)
	f.engine.Queue().Enqueue(models.OpUpdate, models.KindRiverWalk, rec, rec.LocalID)
	f.remote.FailNext("Update", models.KindRiverWalk, 1, backend.ErrRejected)

	res, err := f.engine.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d", res.Skipped)
	}
	got := f.get(t, models.KindRiverWalk, walk.LocalID).(*models.RiverWalk)
	if got.Name != "Local edit" {
		t.Errorf("Name = %q", got.Name)
	}
	if f.remote.Row(models.KindRiverWalk, serverID)["name"] != "Mine" {
		t.Error("server changed unexpectedly")
	}
}

func TestPhotoCreateUploadsFirst(t *testing.T) {
	f := newFixture(t)
	walk := &models.RiverWalk{Name: "Photos"}
	f.createOffline(t, walk)
	site := &models.Site{RiverWalkLocalID: walk.LocalID, SiteNumber: 1}
	f.createOffline(t, site)
	photo := &models.Photo{SiteLocalID: site.LocalID, Type: models.PhotoSite, Data: []byte("jpeg bytes")}
	f.createOffline(t, photo)

	if _, err := f.engine.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := f.get(t, models.KindPhoto, photo.LocalID).(*models.Photo)
	if got.URL == "" || !got.Synced {
		t.Fatalf("photo = %+v", got.Identity)
	}
	data, ok := f.remote.Photo(got.URL)
	if !ok || string(data) != "jpeg bytes" {
		t.Errorf("uploaded payload = %q, %v", data, ok)
	}
	row := f.remote.Row(models.KindPhoto, got.ID)
	if row["url"] != got.URL {
		t.Errorf("server url = %v", row["url"])
	}
}

func TestPhotoUploadNotRepeatedAfterInsertFailure(t *testing.T) {
	f := newFixture(t)
	walk := &models.RiverWalk{Name: "Retry"}
	f.createOffline(t, walk)
	site := &models.Site{RiverWalkLocalID: walk.LocalID, SiteNumber: 1}
	f.createOffline(t, site)
	f.engine.Sync(context.Background())

	photo := &models.Photo{SiteLocalID: site.LocalID, Type: models.PhotoSediment, Data: []byte("x")}
	f.createOffline(t, photo)
	f.remote.FailNext("Insert", models.KindPhoto, 1, backend.ErrRejected)
	f.engine.Sync(context.Background())
	f.engine.Sync(context.Background())

	if n := f.remote.CallCount("UploadPhoto", models.KindPhoto); n != 1 {
		t.Errorf("uploads = %d, want 1", n)
	}
}

func TestStartDrainsOnReconnect(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetOnline(false)
	f.createOffline(t, &models.RiverWalk{Name: "Auto"})

	stop := f.engine.Start(context.Background())
	defer stop()

	f.monitor.SetOnline(true)

	deadline := time.Now().Add(5 * time.Second)
	for pending(t, f) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("queue not drained after reconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCompletedEventCarriesCounts(t *testing.T) {
	f := newFixture(t)
	f.createOffline(t, &models.RiverWalk{Name: "Counted"})
	if _, err := f.engine.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.Type == events.SyncCompleted {
			if e.Pushed != 1 || e.Downloaded != 1 {
				t.Errorf("completed event = %+v", e)
			}
			return
		}
	}
	t.Error("no sync-completed event")
}

func TestDownloadDoesNotRestoreLocalDeletes(t *testing.T) {
	f := newFixture(t)
	walk := &models.RiverWalk{Name: "Removed offline"}
	f.createOffline(t, walk)
	f.createOffline(t, &models.Site{RiverWalkLocalID: walk.LocalID, SiteNumber: 1})
	if _, err := f.engine.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	serverID := f.get(t, models.KindRiverWalk, walk.LocalID).Ident().ID

	if _, err := f.store.DeleteTree(models.KindRiverWalk, walk.LocalID); err != nil {
		t.Fatal(err)
	}
	f.engine.Queue().Enqueue(models.OpDelete, models.KindRiverWalk, DeletePayload{ID: serverID}, walk.LocalID)
	f.remote.FailNext("Delete", models.KindRiverWalk, 1, backend.ErrRejected)

	localCounts := func() (walks, sites int) {
		w, _ := f.store.GetAll(models.KindRiverWalk)
		s, _ := f.store.GetAll(models.KindSite)
		return len(w), len(s)
	}

	if _, err := f.engine.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w, s := localCounts(); w != 0 || s != 0 {
		t.Fatalf("after failed delete: %d walks, %d sites stored", w, s)
	}
	if pending(t, f) != 1 {
		t.Fatalf("pending = %d, want the delete still queued", pending(t, f))
	}

	if _, err := f.engine.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w, s := localCounts(); w != 0 || s != 0 {
		t.Errorf("after drain: %d walks, %d sites stored", w, s)
	}
	if f.remote.Row(models.KindRiverWalk, serverID) != nil {
		t.Error("walk still on server")
	}
}

func TestDownloadPrunesServerDeletes(t *testing.T) {
	f := newFixture(t)
	walk := &models.RiverWalk{Name: "Deleted elsewhere"}
	f.createOffline(t, walk)
	site := &models.Site{RiverWalkLocalID: walk.LocalID, SiteNumber: 1}
	f.createOffline(t, site)
	other := &models.RiverWalk{Name: "Still there"}
	f.createOffline(t, other)
	if _, err := f.engine.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Another device deletes the walk; the server cascades to the site.
	serverID := f.get(t, models.KindRiverWalk, walk.LocalID).Ident().ID
	if err := f.remote.Delete(context.Background(), models.KindRiverWalk, serverID); err != nil {
		t.Fatal(err)
	}

	res, err := f.engine.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Pruned != 2 {
		t.Errorf("Pruned = %d, want 2", res.Pruned)
	}
	if rec, _ := f.store.Get(models.KindRiverWalk, walk.LocalID); rec != nil {
		t.Error("walk deleted on the server is still stored")
	}
	if rec, _ := f.store.Get(models.KindSite, site.LocalID); rec != nil {
		t.Error("site of the deleted walk is still stored")
	}
	f.get(t, models.KindRiverWalk, other.LocalID)
}

func TestRefreshPrunesOnlyCompleteResults(t *testing.T) {
	tests := []struct {
		name   string
		query  backend.Query
		pruned bool
	}{
		{"all of the user", backend.Query{Filters: []backend.Filter{backend.Eq("user_id", testUser)}}, true},
		{"limited", backend.Query{Filters: []backend.Filter{backend.Eq("user_id", testUser)}, Limit: 1}, false},
		{"single id", backend.Query{Filters: []backend.Filter{backend.Eq("id", "x")}}, false},
		{"other filter", backend.Query{Filters: []backend.Filter{backend.Eq("user_id", testUser), backend.Eq("county", "Powys")}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			walk := &models.RiverWalk{Name: "Gone"}
			f.createOffline(t, walk)
			if _, err := f.engine.Sync(context.Background()); err != nil {
				t.Fatal(err)
			}
			serverID := f.get(t, models.KindRiverWalk, walk.LocalID).Ident().ID
			f.remote.Delete(context.Background(), models.KindRiverWalk, serverID)

			if _, err := f.engine.Refresh(context.Background(), models.KindRiverWalk, tt.query); err != nil {
				t.Fatalf("Refresh: %v", err)
			}
			rec, _ := f.store.Get(models.KindRiverWalk, walk.LocalID)
			if (rec == nil) != tt.pruned {
				t.Errorf("pruned = %v, want %v", rec == nil, tt.pruned)
			}
		})
	}
}

// callbackMonitor hands its subscriber to the test so callbacks can arrive
// at any time, including after unsubscribe.
type callbackMonitor struct {
	mu sync.Mutex
	fn func(bool)
}

func (m *callbackMonitor) IsOnline() bool { return true }

func (m *callbackMonitor) Subscribe(fn func(bool)) func() {
	m.mu.Lock()
	m.fn = fn
	m.mu.Unlock()
	return func() {}
}

func (m *callbackMonitor) fire() {
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	fn(true)
}

func TestStopWithConcurrentReconnect(t *testing.T) {
	store := db.Open(t.TempDir())
	t.Cleanup(func() { store.Close() })
	monitor := &callbackMonitor{}
	engine := NewEngine(store, backendtest.New(), monitor, staticUser(testUser), Options{})

	for i := 0; i < 50; i++ {
		stop := engine.Start(context.Background())
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			monitor.fire()
		}()
		go func() {
			defer wg.Done()
			stop()
		}()
		wg.Wait()
		// A reconnect delivered after stop returned must not start a cycle.
		monitor.fire()
	}
}
