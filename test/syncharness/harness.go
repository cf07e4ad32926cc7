// Package syncharness runs field devices against a real sync server over
// HTTP: the API server on an httptest listener, a server database and photo
// store in temp directories, and per-device local stores with their own
// engine and data facade.
package syncharness

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marcus/riverwalk/internal/api"
	"github.com/marcus/riverwalk/internal/connectivity"
	"github.com/marcus/riverwalk/internal/data"
	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/events"
	"github.com/marcus/riverwalk/internal/models"
	"github.com/marcus/riverwalk/internal/photostore"
	"github.com/marcus/riverwalk/internal/serverdb"
	rwsync "github.com/marcus/riverwalk/internal/sync"
	"github.com/marcus/riverwalk/internal/syncclient"
)

// Harness is one sync server plus the devices talking to it.
type Harness struct {
	t      *testing.T
	URL    string
	Store  *serverdb.ServerDB
	API    *api.Server
	server *httptest.Server
}

// Options configures a harness.
type Options struct {
	// Driver is the database/sql driver for the server database.
	// Empty means serverdb.DefaultDriver.
	Driver string
}

// New starts a sync server for the duration of the test.
func New(t *testing.T, opts Options) *Harness {
	t.Helper()
	dir := t.TempDir()

	driver := opts.Driver
	if driver == "" {
		driver = serverdb.DefaultDriver
	}
	dbPath := filepath.Join(dir, "server.db")
	store, err := serverdb.OpenDriver(driver, dbPath)
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	photos, err := photostore.NewFS(filepath.Join(dir, "photos"))
	if err != nil {
		t.Fatalf("open photo store: %v", err)
	}

	ts := httptest.NewUnstartedServer(nil)
	url := "http://" + ts.Listener.Addr().String()

	srv, err := api.NewServer(api.Config{
		ListenAddr:     ":0",
		ServerDBPath:   dbPath,
		BaseURL:        url,
		AllowSignup:    true,
		RateLimitAuth:  100000,
		RateLimitWrite: 100000,
		RateLimitRead:  100000,
		RateLimitOther: 100000,
	}, store, photos)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	ts.Config.Handler = srv.Handler()
	ts.Start()

	h := &Harness{t: t, URL: url, Store: store, API: srv, server: ts}
	t.Cleanup(h.Stop)
	return h
}

// Stop shuts the server down. Devices see it as unreachable afterwards.
func (h *Harness) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.API.Shutdown(ctx)
	h.server.CloseClientConnections()
	h.server.Close()
}

// NewUser creates an account and a sync key, returning the user id and key.
func (h *Harness) NewUser(email string) (string, string) {
	h.t.Helper()
	user, err := h.Store.CreateUser(email)
	if err != nil {
		h.t.Fatalf("create user: %v", err)
	}
	key, _, err := h.Store.GenerateAPIKey(user.ID, "field-tablet", "sync", nil)
	if err != nil {
		h.t.Fatalf("generate api key: %v", err)
	}
	return user.ID, key
}

// ServerCounts returns the server's row count per table.
func (h *Harness) ServerCounts() map[models.Kind]int64 {
	h.t.Helper()
	counts, err := h.Store.CountRows()
	if err != nil {
		h.t.Fatalf("count rows: %v", err)
	}
	return counts
}

type fixedUser string

func (u fixedUser) UserID(context.Context) (string, error) { return string(u), nil }

// Device is one field tablet: a local store and the services over it.
type Device struct {
	Name    string
	Dir     string
	UserID  string
	Key     string
	Monitor *connectivity.Manual
	Remote  *syncclient.Client
	Store   *db.DB
	Engine  *rwsync.Engine
	Data    *data.Service
	Bus     *events.Bus

	h      *Harness
	mu     sync.Mutex
	events []events.Event
}

// NewDevice opens a device signed in as userID with key. It starts offline.
func (h *Harness) NewDevice(name, userID, key string) *Device {
	h.t.Helper()
	d := &Device{
		Name:    name,
		Dir:     h.t.TempDir(),
		UserID:  userID,
		Key:     key,
		Monitor: connectivity.NewManual(false),
		Remote:  syncclient.New(h.URL, key, 10*time.Second),
		h:       h,
	}
	d.open()
	return d
}

func (d *Device) open() {
	d.Store = db.Open(d.Dir)
	store := d.Store
	d.h.t.Cleanup(func() { store.Close() })

	d.Bus = events.NewBus(nil)
	d.Bus.Subscribe(func(e events.Event) {
		d.mu.Lock()
		d.events = append(d.events, e)
		d.mu.Unlock()
	})
	ident := fixedUser(d.UserID)
	d.Engine = rwsync.NewEngine(d.Store, d.Remote, d.Monitor, ident, rwsync.Options{Bus: d.Bus})
	d.Data = data.New(d.Store, d.Monitor, ident, d.Engine, data.Options{Bus: d.Bus})
}

// Restart closes the local store and opens a fresh set of services over the
// same directory, as when the app is relaunched.
func (d *Device) Restart() {
	d.h.t.Helper()
	if err := d.Store.Close(); err != nil {
		d.h.t.Fatalf("%s: close store: %v", d.Name, err)
	}
	d.open()
}

// SetOnline flips the device's connectivity.
func (d *Device) SetOnline(online bool) { d.Monitor.SetOnline(online) }

// Sync runs a cycle and fails the test on error.
func (d *Device) Sync(ctx context.Context) rwsync.Result {
	d.h.t.Helper()
	res, err := d.Data.Sync(ctx)
	if err != nil {
		d.h.t.Fatalf("%s: sync: %v", d.Name, err)
	}
	return res
}

// Pending returns the number of queued mutations.
func (d *Device) Pending() int {
	d.h.t.Helper()
	items, err := d.Data.PendingChanges()
	if err != nil {
		d.h.t.Fatalf("%s: pending: %v", d.Name, err)
	}
	return len(items)
}

// Events returns a copy of the events published so far.
func (d *Device) Events() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]events.Event(nil), d.events...)
}
