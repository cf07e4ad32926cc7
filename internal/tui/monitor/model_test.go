package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/riverwalk/internal/events"
	"github.com/marcus/riverwalk/internal/models"
	rwsync "github.com/marcus/riverwalk/internal/sync"
	"github.com/marcus/riverwalk/internal/version"
)

type fakeSource struct {
	status  rwsync.Status
	queue   []models.QueueItem
	walks   []*models.RiverWalk
	err     error
	synced  int
	syncErr error
}

func (f *fakeSource) SyncStatus() (rwsync.Status, error)          { return f.status, f.err }
func (f *fakeSource) PendingChanges() ([]models.QueueItem, error) { return f.queue, nil }
func (f *fakeSource) LocalRiverWalks() ([]*models.RiverWalk, error) {
	return f.walks, nil
}
func (f *fakeSource) Sync(context.Context) (rwsync.Result, error) {
	f.synced++
	return rwsync.Result{}, f.syncErr
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestFetchData(t *testing.T) {
	walk := &models.RiverWalk{Name: "Test"}
	src := &fakeSource{
		status: rwsync.Status{Online: true, PendingItems: 1},
		queue:  []models.QueueItem{{ID: 1, Op: models.OpCreate, Kind: models.KindSite, LocalID: "local_a"}},
		walks:  []*models.RiverWalk{walk},
	}

	msg := FetchData(src)
	if msg.Err != nil || !msg.Status.Online || len(msg.Queue) != 1 || len(msg.Walks) != 1 {
		t.Fatalf("FetchData = %+v", msg)
	}

	src.err = errors.New("store closed")
	if msg := FetchData(src); msg.Err == nil {
		t.Error("expected error from SyncStatus")
	}
}

func TestPanelNavigation(t *testing.T) {
	m, stop := NewModel(&fakeSource{}, nil, time.Second)
	defer stop()

	tests := []struct {
		key  string
		want Panel
	}{
		{"tab", PanelWalks},
		{"tab", PanelActivity},
		{"tab", PanelQueue},
		{"shift+tab", PanelActivity},
		{"1", PanelQueue},
		{"2", PanelWalks},
		{"3", PanelActivity},
	}
	for _, tc := range tests {
		m, _ = update(t, m, key(tc.key))
		if m.ActivePanel != tc.want {
			t.Errorf("after %q panel = %d, want %d", tc.key, m.ActivePanel, tc.want)
		}
	}
}

func TestScrollClamped(t *testing.T) {
	m, _ := NewModel(&fakeSource{}, nil, time.Second)
	m.Queue = []models.QueueItem{{ID: 1}, {ID: 2}}

	for range 5 {
		m, _ = update(t, m, key("j"))
	}
	if got := m.ScrollOffset[PanelQueue]; got != 1 {
		t.Errorf("scroll offset = %d, want 1", got)
	}
	for range 5 {
		m, _ = update(t, m, key("k"))
	}
	if got := m.ScrollOffset[PanelQueue]; got != 0 {
		t.Errorf("scroll offset = %d, want 0", got)
	}
}

func TestRefreshKeepsDataOnError(t *testing.T) {
	m, _ := NewModel(&fakeSource{}, nil, time.Second)
	m, _ = update(t, m, RefreshDataMsg{Walks: []*models.RiverWalk{{Name: "a"}}, Timestamp: time.Now()})
	if len(m.Walks) != 1 {
		t.Fatal("walks not applied")
	}

	m, _ = update(t, m, RefreshDataMsg{Err: errors.New("boom"), Timestamp: time.Now()})
	if m.Err == nil || len(m.Walks) != 1 {
		t.Errorf("error refresh: err=%v walks=%d", m.Err, len(m.Walks))
	}
}

func TestEventsUpdateSyncingAndLog(t *testing.T) {
	m, _ := NewModel(&fakeSource{}, nil, time.Second)

	m, cmd := update(t, m, EventMsg{Type: events.SyncStarted, At: time.Now()})
	if !m.Syncing || cmd == nil {
		t.Fatalf("syncing=%v cmd=%v", m.Syncing, cmd)
	}
	m, _ = update(t, m, EventMsg{Type: events.SyncCompleted, At: time.Now(), Pushed: 2, Downloaded: 1})
	if m.Syncing {
		t.Error("still syncing after completion")
	}
	if len(m.Activity) != 2 {
		t.Fatalf("activity = %d items", len(m.Activity))
	}
	if got := m.Activity[0].Message; got != "sync completed: 2 pushes, 1 download" {
		t.Errorf("newest activity = %q", got)
	}
}

func TestBusSubscription(t *testing.T) {
	bus := events.NewBus(nil)
	m, stop := NewModel(&fakeSource{}, bus, time.Second)

	bus.Publish(events.Event{Type: events.DataChanged, Kind: models.KindSite, LocalID: "local_x", Op: models.OpCreate})
	msg := m.waitForEvent()()
	ev, ok := msg.(EventMsg)
	if !ok || ev.LocalID != "local_x" {
		t.Fatalf("waitForEvent = %#v", msg)
	}

	stop()
	bus.Publish(events.Event{Type: events.DataChanged})
	select {
	case e := <-m.events:
		t.Errorf("received %v after unsubscribe", e)
	default:
	}
}

func TestSyncKey(t *testing.T) {
	src := &fakeSource{}
	m, _ := NewModel(src, nil, time.Second)

	// Offline: nothing happens.
	if m2, cmd := update(t, m, key("s")); cmd != nil || m2.Syncing {
		t.Fatal("sync started while offline")
	}

	m.Status.Online = true
	m, cmd := update(t, m, key("s"))
	if cmd == nil || !m.Syncing {
		t.Fatal("sync not started while online")
	}
	msg := cmd()
	if _, ok := msg.(SyncDoneMsg); !ok || src.synced != 1 {
		t.Fatalf("sync cmd = %#v, synced %d", msg, src.synced)
	}

	// A second press while syncing is ignored.
	if _, cmd := update(t, m, key("s")); cmd != nil {
		t.Error("second sync started while syncing")
	}

	m, _ = update(t, m, SyncDoneMsg{Err: errors.New("offline")})
	if m.Syncing || len(m.Activity) != 1 || !strings.Contains(m.Activity[0].Message, "offline") {
		t.Errorf("after failed sync: syncing=%v activity=%v", m.Syncing, m.Activity)
	}
}

func TestDescribeEvent(t *testing.T) {
	tests := []struct {
		event events.Event
		want  string
	}{
		{events.Event{Type: events.DataChanged, Op: models.OpDelete, Kind: models.KindPhoto, LocalID: "p1"}, "delete photos p1"},
		{events.Event{Type: events.SyncStarted}, "sync started"},
		{events.Event{Type: events.SyncCompleted, Pushed: 1, Deferred: 2, Dropped: 1}, "sync completed: 1 push, 0 downloads, 2 deferrals, 1 drop"},
		{events.Event{Type: events.SyncFailed, Err: errors.New("unreachable")}, "sync failed: unreachable"},
		{events.Event{Type: events.SyncStatusChanged, Online: true, Pending: 1}, "online, 1 change pending"},
	}
	for _, tc := range tests {
		if got := describeEvent(tc.event).Message; got != tc.want {
			t.Errorf("describeEvent(%s) = %q, want %q", tc.event.Type, got, tc.want)
		}
	}
}

func TestRenderView(t *testing.T) {
	last := time.Now()
	m, _ := NewModel(&fakeSource{}, nil, time.Second)
	if m.View() != "Loading..." {
		t.Errorf("zero-size view = %q", m.View())
	}

	m.Width, m.Height = 100, 30
	m.Status = rwsync.Status{Online: true, PendingItems: 1, LastSyncAt: &last}
	m.Queue = []models.QueueItem{{Op: models.OpUpdate, Kind: models.KindSite, LocalID: "local_site", Attempts: 2, LastError: "server rejected"}}
	m.Walks = []*models.RiverWalk{{Name: "Glaslyn", Date: "2026-05-01"}}

	view := m.View()
	for _, want := range []string{"ONLINE", "1 pending", "SYNC QUEUE (1)", "local_site", "attempt 2", "RIVER WALKS (1)", "Glaslyn", "EVENTS"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m.Width, m.Height = 30, 10
	if view := m.View(); !strings.Contains(view, "resize for full view") {
		t.Errorf("compact view = %q", view)
	}

	m.Width, m.Height = 100, 30
	m.ShowHelp = true
	if view := m.View(); !strings.Contains(view, "Key Bindings") {
		t.Error("help not rendered")
	}
}

func TestUpdateNotice(t *testing.T) {
	m, _ := NewModel(&fakeSource{}, nil, time.Second)
	m.Width, m.Height = 100, 30

	m, _ = update(t, m, version.UpdateAvailableMsg{CurrentVersion: "v0.3.0", LatestVersion: "v0.4.0"})
	if m.UpdateNotice == nil {
		t.Fatal("update notice not stored")
	}
	if view := m.View(); !strings.Contains(view, "v0.4.0 available") {
		t.Error("status bar missing update notice")
	}
}
