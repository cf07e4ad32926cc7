package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/riverwalk/internal/backend"
	"github.com/marcus/riverwalk/internal/connectivity"
	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/events"
	"github.com/marcus/riverwalk/internal/models"
)

var (
	// ErrOffline is returned by ForceSync when the monitor reports offline.
	ErrOffline = errors.New("offline")
	// ErrSyncInProgress is returned when a cycle is already running.
	ErrSyncInProgress = errors.New("sync already in progress")

	errParentUnresolved = errors.New("parent unresolved")
	errParentMissing    = errors.New("parent missing from local store")
	errNotCreated       = errors.New("record not yet created on server")
)

// State is the engine's position in a sync cycle.
type State string

const (
	StateIdle        State = "idle"
	StateDraining    State = "draining"
	StateDownloading State = "downloading"
)

// Identity supplies the signed-in user.
type Identity interface {
	UserID(ctx context.Context) (string, error)
}

// DeletePayload is the queue payload of a delete: the server id captured at
// delete time.
type DeletePayload struct {
	ID string `json:"id"`
}

// Result counts what one cycle did.
type Result struct {
	Pushed     int // queue items that reached the backend
	Deferred   int // items left queued for the next cycle
	Dropped    int // items removed after the retry ceiling
	Downloaded int // server rows written to the store
	Skipped    int // server rows held back by local edits or deletes
	Pruned     int // synced local records the server no longer has
}

// Status is a snapshot for sync indicators.
type Status struct {
	Online       bool
	State        State
	PendingItems int
	LastSyncAt   *time.Time
	LastError    string
}

// Options configures an Engine.
type Options struct {
	// MaxAttempts is the per-item retry ceiling (default 3).
	MaxAttempts int
	// Interval enables a periodic cycle while online. Zero disables it.
	Interval time.Duration
	Bus      *events.Bus
	Logger   *slog.Logger
}

// Engine drains the mutation queue against the backend and refreshes the
// store from it. One cycle runs at a time.
type Engine struct {
	store    *db.DB
	queue    *Queue
	remote   backend.Backend
	monitor  connectivity.Monitor
	ident    Identity
	bus      *events.Bus
	logger   *slog.Logger
	interval time.Duration

	mu    sync.Mutex
	state State
}

// NewEngine wires an engine. A nil bus drops events.
func NewEngine(store *db.DB, remote backend.Backend, monitor connectivity.Monitor, ident Identity, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		queue:    NewQueue(store, opts.MaxAttempts, logger),
		remote:   remote,
		monitor:  monitor,
		ident:    ident,
		bus:      opts.Bus,
		logger:   logger,
		interval: opts.Interval,
		state:    StateIdle,
	}
}

// Queue returns the engine's mutation queue.
func (e *Engine) Queue() *Queue { return e.queue }

// State returns the current cycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Status returns the indicator snapshot.
func (e *Engine) Status() (Status, error) {
	st := Status{Online: e.monitor.IsOnline(), State: e.State()}
	n, err := e.queue.Len()
	if err != nil {
		return st, err
	}
	st.PendingItems = n
	saved, err := e.store.GetSyncState()
	if err != nil {
		return st, err
	}
	st.LastSyncAt = saved.LastSyncAt
	st.LastError = saved.LastError
	return st, nil
}

// PublishStatus announces the current status to subscribers.
func (e *Engine) PublishStatus() {
	st, err := e.Status()
	if err != nil {
		e.logger.Warn("read sync status", "err", err)
	}
	e.bus.Publish(events.Event{Type: events.SyncStatusChanged, Online: st.Online, Pending: st.PendingItems})
}

// ForceSync runs a cycle now, failing fast when offline.
func (e *Engine) ForceSync(ctx context.Context) (Result, error) {
	if !e.monitor.IsOnline() {
		return Result{}, ErrOffline
	}
	return e.Sync(ctx)
}

// Sync runs one cycle: drain the queue, then download server state. Item
// failures are retried on later cycles; only engine-level failures are
// returned, after a sync-failed event.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return Result{}, ErrSyncInProgress
	}
	e.state = StateDraining
	e.mu.Unlock()

	start := time.Now()
	e.bus.Publish(events.Event{Type: events.SyncStarted})
	e.logger.Debug("sync started")

	res, err := e.cycle(ctx)
	e.setState(StateIdle)

	if err != nil {
		e.logger.Warn("sync failed", "err", err, "pushed", res.Pushed, "dropped", res.Dropped)
		if rerr := e.store.RecordSyncError(err.Error()); rerr != nil {
			e.logger.Warn("record sync error", "err", rerr)
		}
		e.bus.Publish(events.Event{Type: events.SyncFailed, Err: err})
		e.PublishStatus()
		return res, err
	}

	if rerr := e.store.RecordSyncSuccess(time.Now()); rerr != nil {
		e.logger.Warn("record sync time", "err", rerr)
	}
	e.logger.Info("sync completed",
		"pushed", res.Pushed, "deferred", res.Deferred, "dropped", res.Dropped,
		"downloaded", res.Downloaded, "skipped", res.Skipped, "pruned", res.Pruned,
		"duration", time.Since(start).Round(time.Millisecond))
	e.bus.Publish(events.Event{
		Type:       events.SyncCompleted,
		Pushed:     res.Pushed,
		Deferred:   res.Deferred,
		Dropped:    res.Dropped,
		Downloaded: res.Downloaded,
	})
	e.PublishStatus()
	return res, nil
}

func (e *Engine) cycle(ctx context.Context) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panic: %v", r)
		}
	}()

	userID, err := e.ident.UserID(ctx)
	if err != nil {
		return res, fmt.Errorf("resolve user: %w", err)
	}

	if err := e.drain(ctx, userID, &res); err != nil {
		return res, err
	}

	e.setState(StateDownloading)
	if err := e.download(ctx, userID, &res); err != nil {
		return res, err
	}
	return res, nil
}

// drain pushes queue items oldest first. One item failing does not stop the
// rest; store errors do.
func (e *Engine) drain(ctx context.Context, userID string, res *Result) error {
	items, err := e.queue.Drain()
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}

		pushErr := e.push(ctx, item, userID)
		if pushErr == nil {
			if err := e.queue.Remove(item.ID); err != nil {
				return fmt.Errorf("remove queue item %d: %w", item.ID, err)
			}
			if item.Op == models.OpUpdate {
				if err := e.store.MarkSynced(item.Kind, item.LocalID); err != nil {
					return err
				}
			}
			res.Pushed++
			continue
		}
		if errors.Is(pushErr, db.ErrStoreUnavailable) {
			return pushErr
		}

		e.logger.Debug("queued mutation failed",
			"op", item.Op, "kind", item.Kind, "local_id", item.LocalID, "err", pushErr)
		dropped, err := e.queue.Fail(item, pushErr)
		if err != nil {
			return fmt.Errorf("record failure for queue item %d: %w", item.ID, err)
		}
		if dropped {
			res.Dropped++
		} else {
			res.Deferred++
		}
	}
	return nil
}

// Push sends one mutation straight to the backend without queueing it. The
// data layer uses it for online writes; on error the caller queues the item.
func (e *Engine) Push(ctx context.Context, item models.QueueItem) error {
	userID, err := e.ident.UserID(ctx)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}
	if err := e.push(ctx, item, userID); err != nil {
		return err
	}
	if item.Op == models.OpUpdate {
		return e.store.MarkSynced(item.Kind, item.LocalID)
	}
	return nil
}

func (e *Engine) push(ctx context.Context, item models.QueueItem, userID string) error {
	switch item.Op {
	case models.OpCreate:
		return e.pushCreate(ctx, item, userID)
	case models.OpUpdate:
		return e.pushUpdate(ctx, item, userID)
	case models.OpDelete:
		return e.pushDelete(ctx, item)
	default:
		return fmt.Errorf("unknown op %q", item.Op)
	}
}

// resolveParent points rec at its parent's server id. It fails while the
// parent only has a local token, so children never reach the server with
// one.
func (e *Engine) resolveParent(rec models.Record) error {
	parent := rec.Kind().Parent()
	if parent == "" {
		return nil
	}
	p, err := e.store.Get(parent, rec.ParentLocalID())
	if err != nil {
		return err
	}
	if p == nil {
		// Downloaded children may reference a parent by server id only.
		if id := rec.ParentID(); id != "" && !db.IsLocalOnly(id) {
			return nil
		}
		return errParentMissing
	}
	if db.IsLocalOnly(p.Ident().ID) {
		return errParentUnresolved
	}
	rec.SetParentID(p.Ident().ID)
	return nil
}

func (e *Engine) pushCreate(ctx context.Context, item models.QueueItem, userID string) error {
	rec, err := e.store.Get(item.Kind, item.LocalID)
	if err != nil {
		return err
	}
	if rec == nil || !db.IsLocalOnly(rec.Ident().ID) {
		// Deleted locally, or created by an earlier call.
		return nil
	}
	if err := e.resolveParent(rec); err != nil {
		return err
	}

	if p, ok := rec.(*models.Photo); ok && p.URL == "" {
		url, err := e.remote.UploadPhoto(ctx, p.SiteID, p.Data, userID, p.Type)
		if err != nil {
			return fmt.Errorf("upload photo: %w", err)
		}
		p.URL = url
		// Keep the url so a failed insert does not upload again.
		if err := e.store.Put(p); err != nil {
			return err
		}
	}

	row, err := models.Row(rec, db.IsLocalOnly)
	if err != nil {
		return err
	}
	if _, ok := row["user_id"]; !ok {
		row["user_id"] = userID
	}
	inserted, err := e.remote.Insert(ctx, item.Kind, row)
	if err != nil {
		return fmt.Errorf("insert %s: %w", item.Kind, err)
	}
	serverID := backend.RowID(inserted)
	if serverID == "" {
		return fmt.Errorf("insert %s: %w: response has no id", item.Kind, backend.ErrRejected)
	}
	return e.store.AssignServerID(item.Kind, item.LocalID, serverID)
}

func (e *Engine) pushUpdate(ctx context.Context, item models.QueueItem, userID string) error {
	rec, err := e.store.Get(item.Kind, item.LocalID)
	if err != nil {
		return err
	}
	if rec == nil {
		// Vanished locally; the delete path covers the server.
		return nil
	}
	if db.IsLocalOnly(rec.Ident().ID) {
		return errNotCreated
	}
	if err := e.resolveParent(rec); err != nil {
		return err
	}
	row, err := models.Row(rec, db.IsLocalOnly)
	if err != nil {
		return err
	}
	if _, ok := row["user_id"]; !ok {
		row["user_id"] = userID
	}
	if _, err := e.remote.Update(ctx, item.Kind, rec.Ident().ID, row); err != nil {
		return fmt.Errorf("update %s %s: %w", item.Kind, rec.Ident().ID, err)
	}
	return nil
}

func (e *Engine) pushDelete(ctx context.Context, item models.QueueItem) error {
	var p DeletePayload
	if err := json.Unmarshal(item.Data, &p); err != nil {
		return fmt.Errorf("decode delete payload: %w", err)
	}
	if p.ID == "" || db.IsLocalOnly(p.ID) {
		return nil
	}
	err := e.remote.Delete(ctx, item.Kind, p.ID)
	if errors.Is(err, backend.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", item.Kind, p.ID, err)
	}
	return nil
}

// download refreshes the store from the server, parents first so child rows
// can find their parent's local id.
func (e *Engine) download(ctx context.Context, userID string, res *Result) error {
	for _, kind := range models.Kinds() {
		n, err := e.refresh(ctx, kind, backend.Query{
			Filters: []backend.Filter{backend.Eq("user_id", userID)},
		})
		res.Downloaded += n.applied
		res.Skipped += n.skipped
		res.Pruned += n.pruned
		if err != nil {
			return err
		}
	}
	return nil
}

// Refresh downloads the rows of kind matching q into the store and returns
// how many were written. Local records with unsynced changes are kept. When
// q asks for everything the user owns, or every child of one parent, synced
// records missing from the result are removed.
func (e *Engine) Refresh(ctx context.Context, kind models.Kind, q backend.Query) (int, error) {
	n, err := e.refresh(ctx, kind, q)
	return n.applied, err
}

type refreshCounts struct {
	applied, skipped, pruned int
}

func (e *Engine) refresh(ctx context.Context, kind models.Kind, q backend.Query) (refreshCounts, error) {
	var n refreshCounts
	fetchedAt := e.store.Now()
	rows, err := e.remote.Select(ctx, kind, q)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", kind, err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, backend.RowID(row))
		rec, err := e.recordFromRow(kind, row)
		if err != nil {
			e.logger.Warn("skipping malformed server row", "kind", kind, "id", backend.RowID(row), "err", err)
			continue
		}
		ok, err := e.store.ApplyRemote(rec)
		if err != nil {
			return n, fmt.Errorf("apply %s %s: %w", kind, rec.Ident().ID, err)
		}
		if ok {
			n.applied++
		} else {
			n.skipped++
		}
	}

	if parentID, ok := pruneScope(kind, q); ok {
		n.pruned, err = e.store.PruneSynced(kind, parentID, ids, fetchedAt)
		if err != nil {
			return n, fmt.Errorf("prune %s: %w", kind, err)
		}
		if n.pruned > 0 {
			e.logger.Debug("removed records deleted on the server", "kind", kind, "count", n.pruned)
		}
	}
	return n, nil
}

// pruneScope reports whether q returns every row of kind the user owns,
// optionally narrowed to one parent whose server id is returned.
func pruneScope(kind models.Kind, q backend.Query) (parentID string, ok bool) {
	if q.Limit > 0 {
		return "", false
	}
	_, parentCol := kind.ParentColumns()
	for _, f := range q.Filters {
		switch {
		case f.Column == "user_id":
			ok = true
		case parentCol != "" && f.Column == parentCol && parentID == "":
			parentID = f.Value
		default:
			return "", false
		}
	}
	return parentID, ok
}

// recordFromRow converts a server row into a record, filling in the parent's
// local id from the store.
func (e *Engine) recordFromRow(kind models.Kind, row backend.Row) (models.Record, error) {
	if backend.RowID(row) == "" {
		return nil, errors.New("row has no id")
	}
	data, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	rec, err := models.DecodeRecord(kind, data)
	if err != nil {
		return nil, err
	}
	if parent := kind.Parent(); parent != "" {
		pid := rec.ParentID()
		if pid == "" {
			return nil, errors.New("row has no parent id")
		}
		local, err := e.store.ResolveParentLocalID(parent, pid)
		if err != nil {
			return nil, err
		}
		rec.SetParentLocalID(local)
	}
	return rec, nil
}

// Start runs a cycle whenever the monitor goes online, on the configured
// interval while online, and once at startup if work is pending. The
// returned function stops it and waits for running cycles.
func (e *Engine) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		stopped bool
	)

	// Monitors may deliver a callback after unsubscribe returns, so stop
	// closes the gate before waiting.
	trigger := func(reason string) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.autoSync(ctx, reason)
		}()
	}

	unsub := e.monitor.Subscribe(func(online bool) {
		e.PublishStatus()
		if online && ctx.Err() == nil {
			trigger("reconnect")
		}
	})

	if e.interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(e.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if e.monitor.IsOnline() {
						e.autoSync(ctx, "interval")
					}
				}
			}
		}()
	}

	if e.monitor.IsOnline() {
		if n, err := e.queue.Len(); err == nil && n > 0 {
			trigger("startup")
		}
	}

	return func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
		unsub()
		cancel()
		wg.Wait()
	}
}

func (e *Engine) autoSync(ctx context.Context, reason string) {
	_, err := e.Sync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress):
		e.logger.Debug("sync skipped", "reason", reason, "err", err)
	case ctx.Err() != nil:
	default:
		e.logger.Warn("automatic sync failed", "reason", reason, "err", err)
	}
}
