package syncharness

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/marcus/riverwalk/internal/connectivity"
	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/events"
	"github.com/marcus/riverwalk/internal/models"
)

var jpeg = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00fake-jpeg-body")

// recordWalk creates a walk with one site, three points and a photo.
func recordWalk(t *testing.T, d *Device) (*models.RiverWalk, *models.Site) {
	t.Helper()
	ctx := context.Background()

	walk, err := d.Data.CreateRiverWalk(ctx, &models.RiverWalk{Name: "Afon Glaslyn", Date: "2026-05-01", County: "Gwynedd"})
	if err != nil {
		t.Fatalf("create walk: %v", err)
	}
	site, err := d.Data.CreateSite(ctx, walk.ID, &models.Site{SiteName: "Footbridge", RiverWidth: 4})
	if err != nil {
		t.Fatalf("create site: %v", err)
	}
	if _, err := d.Data.CreatePoints(ctx, site.ID, site.RiverWidth, []float64{0.1, 0.4, 0.2}); err != nil {
		t.Fatalf("create points: %v", err)
	}
	if _, err := d.Data.AddPhoto(ctx, site.ID, models.PhotoSite, jpeg, ""); err != nil {
		t.Fatalf("add photo: %v", err)
	}
	return walk, site
}

func assertCounts(t *testing.T, h *Harness, want map[models.Kind]int64) {
	t.Helper()
	got := h.ServerCounts()
	for kind, n := range want {
		if got[kind] != n {
			t.Errorf("server %s = %d, want %d", kind, got[kind], n)
		}
	}
}

func TestOfflineRecordingReachesServer(t *testing.T) {
	h := New(t, Options{})
	userID, key := h.NewUser("field@example.com")
	dev := h.NewDevice("tablet", userID, key)
	ctx := context.Background()

	walk, _ := recordWalk(t, dev)
	if !db.IsLocalOnly(walk.ID) {
		t.Fatalf("offline walk id = %q, want a local id", walk.ID)
	}
	if n := dev.Pending(); n != 6 {
		t.Fatalf("pending = %d, want 6", n)
	}
	assertCounts(t, h, map[models.Kind]int64{models.KindRiverWalk: 0})

	dev.SetOnline(true)
	res := dev.Sync(ctx)
	if res.Pushed != 6 || res.Dropped != 0 || res.Deferred != 0 {
		t.Fatalf("sync result = %+v", res)
	}
	if n := dev.Pending(); n != 0 {
		t.Fatalf("pending after sync = %d", n)
	}
	assertCounts(t, h, map[models.Kind]int64{
		models.KindRiverWalk:        1,
		models.KindSite:             1,
		models.KindMeasurementPoint: 3,
		models.KindPhoto:            1,
	})

	got, err := dev.Data.GetRiverWalk(ctx, walk.LocalID)
	if err != nil {
		t.Fatalf("get walk: %v", err)
	}
	if db.IsLocalOnly(got.ID) || !got.Synced || got.LocalID != walk.LocalID {
		t.Errorf("synced walk identity = %+v", got.Identity)
	}

	sites, err := dev.Data.SitesFor(ctx, got.ID)
	if err != nil || len(sites) != 1 {
		t.Fatalf("sites = %v, %v", sites, err)
	}
	if sites[0].RiverWalkID != got.ID {
		t.Errorf("site parent = %q, want %q", sites[0].RiverWalkID, got.ID)
	}

	photos, err := dev.Data.PhotosFor(ctx, sites[0].ID)
	if err != nil || len(photos) != 1 {
		t.Fatalf("photos = %v, %v", photos, err)
	}
	if photos[0].URL == "" {
		t.Fatal("photo has no url after sync")
	}
	body, err := dev.Remote.FetchPhoto(ctx, photos[0].URL)
	if err != nil {
		t.Fatalf("fetch photo: %v", err)
	}
	if !bytes.Equal(body, jpeg) {
		t.Errorf("fetched %d bytes, want %d", len(body), len(jpeg))
	}

	var completed bool
	for _, e := range dev.Events() {
		if e.Type == events.SyncCompleted && e.Pushed == 6 {
			completed = true
		}
	}
	if !completed {
		t.Error("no sync-completed event with 6 pushes")
	}
}

func TestOnlineWritesGoStraightThrough(t *testing.T) {
	h := New(t, Options{})
	userID, key := h.NewUser("field@example.com")
	dev := h.NewDevice("tablet", userID, key)
	dev.SetOnline(true)

	walk, _ := recordWalk(t, dev)
	stored, err := dev.Data.GetRiverWalk(context.Background(), walk.LocalID)
	if err != nil {
		t.Fatalf("get walk: %v", err)
	}
	if db.IsLocalOnly(stored.ID) || !stored.Synced {
		t.Errorf("online walk identity = %+v, want a synced server id", stored.Identity)
	}
	if n := dev.Pending(); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
	assertCounts(t, h, map[models.Kind]int64{
		models.KindRiverWalk:        1,
		models.KindSite:             1,
		models.KindMeasurementPoint: 3,
		models.KindPhoto:            1,
	})
}

func TestSecondDeviceDownloads(t *testing.T) {
	h := New(t, Options{})
	userID, key := h.NewUser("field@example.com")
	a := h.NewDevice("tablet-a", userID, key)
	b := h.NewDevice("tablet-b", userID, key)
	ctx := context.Background()

	a.SetOnline(true)
	recordWalk(t, a)

	b.SetOnline(true)
	res := b.Sync(ctx)
	if res.Downloaded != 6 {
		t.Errorf("downloaded = %d, want 6", res.Downloaded)
	}

	walks, err := b.Data.LocalRiverWalks()
	if err != nil || len(walks) != 1 {
		t.Fatalf("walks on b = %v, %v", walks, err)
	}
	w := walks[0]
	if w.Name != "Afon Glaslyn" || w.County != "Gwynedd" || !w.Synced {
		t.Errorf("downloaded walk = %+v", w)
	}
	if w.LocalID != w.ID {
		t.Errorf("downloaded walk local id = %q, want server id %q", w.LocalID, w.ID)
	}

	sites, err := b.Data.SitesFor(ctx, w.ID)
	if err != nil || len(sites) != 1 {
		t.Fatalf("sites on b = %v, %v", sites, err)
	}
	points, err := b.Data.PointsFor(ctx, sites[0].ID)
	if err != nil || len(points) != 3 {
		t.Fatalf("points on b = %v, %v", points, err)
	}
	if points[2].DistanceFromBank != 4 || points[1].Depth != 0.4 {
		t.Errorf("points on b = %+v %+v", points[1], points[2])
	}
}

func TestOtherUsersDataStaysPrivate(t *testing.T) {
	h := New(t, Options{})
	aliceID, aliceKey := h.NewUser("alice@example.com")
	bobID, bobKey := h.NewUser("bob@example.com")
	alice := h.NewDevice("alice", aliceID, aliceKey)
	bob := h.NewDevice("bob", bobID, bobKey)

	alice.SetOnline(true)
	recordWalk(t, alice)

	bob.SetOnline(true)
	if res := bob.Sync(context.Background()); res.Downloaded != 0 {
		t.Errorf("bob downloaded %d rows", res.Downloaded)
	}
	if walks, _ := bob.Data.LocalRiverWalks(); len(walks) != 0 {
		t.Errorf("bob sees %d walks", len(walks))
	}
}

func TestOfflineDeleteCascadesOnServer(t *testing.T) {
	h := New(t, Options{})
	userID, key := h.NewUser("field@example.com")
	dev := h.NewDevice("tablet", userID, key)
	ctx := context.Background()

	dev.SetOnline(true)
	walk, _ := recordWalk(t, dev)

	dev.SetOnline(false)
	if err := dev.Data.DeleteRiverWalk(ctx, walk.ID); err != nil {
		t.Fatalf("delete walk: %v", err)
	}
	if n := dev.Pending(); n != 1 {
		t.Fatalf("pending = %d, want one delete", n)
	}
	assertCounts(t, h, map[models.Kind]int64{models.KindRiverWalk: 1})

	dev.SetOnline(true)
	dev.Sync(ctx)
	assertCounts(t, h, map[models.Kind]int64{
		models.KindRiverWalk:        0,
		models.KindSite:             0,
		models.KindMeasurementPoint: 0,
		models.KindPhoto:            0,
	})
}

func TestDeleteOnOneDeviceReachesTheOther(t *testing.T) {
	h := New(t, Options{})
	userID, key := h.NewUser("field@example.com")
	a := h.NewDevice("tablet-a", userID, key)
	b := h.NewDevice("tablet-b", userID, key)
	ctx := context.Background()

	a.SetOnline(true)
	walk, _ := recordWalk(t, a)
	b.SetOnline(true)
	b.Sync(ctx)
	if walks, _ := b.Data.LocalRiverWalks(); len(walks) != 1 {
		t.Fatalf("walks on b = %d, want 1", len(walks))
	}

	if err := a.Data.DeleteRiverWalk(ctx, walk.ID); err != nil {
		t.Fatalf("delete walk: %v", err)
	}
	if res := b.Sync(ctx); res.Pruned != 6 {
		t.Errorf("pruned on b = %d, want 6", res.Pruned)
	}
	for _, kind := range models.Kinds() {
		if recs, _ := b.Store.GetAll(kind); len(recs) != 0 {
			t.Errorf("b still stores %d %s", len(recs), kind)
		}
	}
}

func TestQueueSurvivesRestart(t *testing.T) {
	h := New(t, Options{})
	userID, key := h.NewUser("field@example.com")
	dev := h.NewDevice("tablet", userID, key)

	recordWalk(t, dev)
	dev.Restart()

	if n := dev.Pending(); n != 6 {
		t.Fatalf("pending after restart = %d, want 6", n)
	}
	photos, err := dev.Store.GetAll(models.KindPhoto)
	if err != nil || len(photos) != 1 {
		t.Fatalf("photos after restart = %v, %v", photos, err)
	}
	if p := photos[0].(*models.Photo); !bytes.Equal(p.Data, jpeg) {
		t.Fatalf("photo bytes lost on restart (%d bytes)", len(p.Data))
	}

	dev.SetOnline(true)
	if res := dev.Sync(context.Background()); res.Pushed != 6 {
		t.Errorf("pushed = %d, want 6", res.Pushed)
	}
	assertCounts(t, h, map[models.Kind]int64{models.KindPhoto: 1})
}

func TestEditWhileOfflineSyncsLatest(t *testing.T) {
	h := New(t, Options{})
	userID, key := h.NewUser("field@example.com")
	a := h.NewDevice("tablet-a", userID, key)
	b := h.NewDevice("tablet-b", userID, key)
	ctx := context.Background()

	a.SetOnline(true)
	walk, _ := recordWalk(t, a)

	a.SetOnline(false)
	walk.Notes = "Gauge board at 0.6m"
	if err := a.Data.UpdateRiverWalk(ctx, walk); err != nil {
		t.Fatalf("update: %v", err)
	}
	walk.Notes = "Gauge board at 0.7m"
	if err := a.Data.UpdateRiverWalk(ctx, walk); err != nil {
		t.Fatalf("update: %v", err)
	}

	a.SetOnline(true)
	a.Sync(ctx)

	onA, err := a.Data.GetRiverWalk(ctx, walk.LocalID)
	if err != nil {
		t.Fatalf("get on a: %v", err)
	}

	b.SetOnline(true)
	b.Sync(ctx)
	got, err := b.Data.GetRiverWalk(ctx, onA.ID)
	if err != nil {
		t.Fatalf("get on b: %v", err)
	}
	if got.Notes != "Gauge board at 0.7m" {
		t.Errorf("notes on b = %q", got.Notes)
	}
}

func TestPresenceSocketTracksServer(t *testing.T) {
	h := New(t, Options{})
	_, key := h.NewUser("field@example.com")

	sock := connectivity.NewSocket(h.URL, key, nil)
	changes := make(chan bool, 8)
	sock.Subscribe(func(online bool) { changes <- online })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sock.Run(ctx)

	waitFor(t, changes, true)
	if !sock.IsOnline() {
		t.Fatal("socket not online after connect")
	}

	h.Stop()
	waitFor(t, changes, false)
}

func waitFor(t *testing.T, changes <-chan bool, want bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-changes:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for online=%v", want)
		}
	}
}
