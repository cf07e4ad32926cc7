package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/marcus/riverwalk/internal/data"
	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/models"
	"github.com/marcus/riverwalk/internal/output"
	rwsync "github.com/marcus/riverwalk/internal/sync"
)

func TestParseFloats(t *testing.T) {
	got, err := parseFloats(" 12.1, 11.8,,12.6 ")
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{12.1, 11.8, 12.6}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %g, want %g", i, got[i], want[i])
		}
	}

	if _, err := parseFloats("1,two"); err == nil {
		t.Error("expected error for non-number")
	}
}

func TestParseSediment(t *testing.T) {
	got, err := parseSediment("42:3, 17.5:5")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Size != 42 || got[0].Roundness != 3 || got[1].Size != 17.5 || got[1].Roundness != 5 {
		t.Errorf("got %+v", got)
	}

	for _, bad := range []string{"42", "0:3", "x:3", "42:0", "42:7", "42:x"} {
		if _, err := parseSediment(bad); err == nil {
			t.Errorf("parseSediment(%q) should fail", bad)
		}
	}
}

func TestParsePhotoType(t *testing.T) {
	tests := []struct {
		in   string
		want models.PhotoType
	}{
		{"site_photo", models.PhotoSite},
		{"sediment_photo", models.PhotoSediment},
		{"site", models.PhotoSite},
		{"pebble", models.PhotoSediment},
	}
	for _, tt := range tests {
		got, err := parsePhotoType(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parsePhotoType(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}

	_, err := parsePhotoType("sediment_phot")
	if err == nil || !strings.Contains(err.Error(), "did you mean sediment_photo") {
		t.Errorf("err = %v, want suggestion", err)
	}
}

func TestCheckConfigKey(t *testing.T) {
	if k, err := checkConfigKey("server.url"); err != nil || k != "server.url" {
		t.Errorf("exact key = %q, %v", k, err)
	}
	if k, err := checkConfigKey("retries"); err != nil || k != "sync.max_attempts" {
		t.Errorf("alias = %q, %v", k, err)
	}
	if _, err := checkConfigKey("server.ulr"); err == nil || !strings.Contains(err.Error(), "did you mean") {
		t.Errorf("typo err = %v", err)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{data.ErrNotFound, output.ErrCodeNotFound},
		{data.ErrUnauthenticated, output.ErrCodeNotLoggedIn},
		{rwsync.ErrOffline, output.ErrCodeOffline},
		{rwsync.ErrSyncInProgress, output.ErrCodeSyncInProgress},
		{errors.New("bad width"), output.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Errorf("errorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func newTestStore(t *testing.T, dir string) *db.DB {
	t.Helper()
	store := db.Open(dir)
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestResolveID(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	a := &app{store: store}

	put := func(id, localID string) {
		w := &models.RiverWalk{Identity: models.Identity{ID: id, LocalID: localID}, Name: id, Date: "2026-05-01"}
		if err := store.Put(w); err != nil {
			t.Fatal(err)
		}
	}
	put("abc111", "abc111")
	put("abd222", "abd222")
	put("srv-9", "local_9")

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{"abc111", "abc111", false},
		{"abc", "abc111", false},
		{"ab", "", true},
		{"local_9", "local_9", false},
		{"srv", "srv-9", false},
		{"zzz", "zzz", false},
		{"  ", "", true},
	}
	for _, tt := range tests {
		got, err := resolveID(a, models.KindRiverWalk, tt.ref)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("resolveID(%q) = %q, %v; want %q (err %v)", tt.ref, got, err, tt.want, tt.wantErr)
		}
	}
}

// run executes rwalk with args against an isolated config and store.
func run(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RWALK_CONFIG_DIR", t.TempDir())
	t.Setenv("RWALK_DATA_DIR", dir)
	t.Setenv("RWALK_API_KEY", "")
	t.Setenv("RWALK_USER_ID", "user-1")
	return dir
}

func TestOfflineRecordingQueuesChanges(t *testing.T) {
	dir := isolate(t)

	if err := run(t, "--offline", "walk", "create", "Afon Glaslyn", "--date", "2026-05-01", "--county", "Gwynedd"); err != nil {
		t.Fatalf("walk create: %v", err)
	}

	store := newTestStore(t, dir)
	walks, err := store.RiverWalks()
	if err != nil || len(walks) != 1 {
		t.Fatalf("walks = %d, %v", len(walks), err)
	}
	w := walks[0]
	if w.Name != "Afon Glaslyn" || w.County != "Gwynedd" || w.Date != "2026-05-01" || w.UserID != "user-1" {
		t.Errorf("walk = %+v", w)
	}
	if w.Synced {
		t.Error("offline walk marked synced")
	}
	store.Close()

	if err := run(t, "--offline", "site", "add", w.LocalID, "--width", "4.2", "--sediment", "42:3,17:5"); err != nil {
		t.Fatalf("site add: %v", err)
	}

	store = newTestStore(t, dir)
	sites, err := store.SitesForWalk(w.LocalID)
	if err != nil || len(sites) != 1 {
		t.Fatalf("sites = %d, %v", len(sites), err)
	}
	if s := sites[0]; s.SiteNumber != 1 || s.RiverWidth != 4.2 || len(s.Sediment) != 2 {
		t.Errorf("site = %+v", s)
	}
	items, err := store.QueueItems()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Errorf("queued %d changes, want 2", len(items))
	}
}

func TestCommandsRequireLogin(t *testing.T) {
	isolate(t)
	t.Setenv("RWALK_USER_ID", "")

	err := run(t, "--offline", "walk", "create", "Nobody's walk")
	if !errors.Is(err, data.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}
