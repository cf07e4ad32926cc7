package version

import (
	"net/http"
	"testing"
	"time"
)

func TestCheckAsyncUsesValidCache(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	hits := fakeReleases(t, http.StatusOK, "v2.0.0")

	if err := SaveCache(&CacheEntry{
		LatestVersion:  "v1.5.0",
		CurrentVersion: "v1.0.0",
		CheckedAt:      time.Now(),
		HasUpdate:      true,
	}); err != nil {
		t.Fatal(err)
	}

	msg, ok := CheckAsync("v1.0.0")().(UpdateAvailableMsg)
	if !ok {
		t.Fatal("expected UpdateAvailableMsg")
	}
	if msg.LatestVersion != "v1.5.0" || msg.UpdateCommand == "" {
		t.Errorf("msg = %+v", msg)
	}
	if *hits != 0 {
		t.Error("valid cache still hit the release API")
	}
}

func TestCheckAsyncRefreshesExpiredCache(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	fakeReleases(t, http.StatusOK, "v2.0.0")

	if err := SaveCache(&CacheEntry{
		LatestVersion:  "v1.5.0",
		CurrentVersion: "v1.0.0",
		CheckedAt:      time.Now().Add(-7 * time.Hour),
		HasUpdate:      true,
	}); err != nil {
		t.Fatal(err)
	}

	msg, ok := CheckAsync("v1.0.0")().(UpdateAvailableMsg)
	if !ok || msg.LatestVersion != "v2.0.0" {
		t.Fatalf("msg = %#v", msg)
	}
	cached, err := LoadCache()
	if err != nil || cached.LatestVersion != "v2.0.0" {
		t.Errorf("cache not refreshed: %+v, %v", cached, err)
	}
}

func TestCheckAsyncUpToDate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	fakeReleases(t, http.StatusOK, "v1.0.0")

	if msg := CheckAsync("v1.0.0")(); msg != nil {
		t.Errorf("expected nil, got %T", msg)
	}
}

func TestCheckAsyncDoesNotCacheFailures(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	fakeReleases(t, http.StatusInternalServerError, "")

	if msg := CheckAsync("v1.0.0")(); msg != nil {
		t.Errorf("expected nil, got %T", msg)
	}
	if _, err := LoadCache(); err == nil {
		t.Error("failed check was cached")
	}
}

func TestCheckAsyncDevelopmentVersion(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if msg := CheckAsync("devel")(); msg != nil {
		t.Errorf("expected nil for development version, got %T", msg)
	}
}
