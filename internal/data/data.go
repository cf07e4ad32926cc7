// Package data is the entry point application code uses to read and write
// fieldwork records. Every write lands in the local store first and reaches
// the backend immediately when online, or through the sync queue otherwise.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marcus/riverwalk/internal/backend"
	"github.com/marcus/riverwalk/internal/connectivity"
	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/events"
	"github.com/marcus/riverwalk/internal/models"
	rwsync "github.com/marcus/riverwalk/internal/sync"
)

var (
	// ErrNotFound means neither the store nor the backend has the record.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated means no user is signed in.
	ErrUnauthenticated = errors.New("not signed in")
)

// Identity supplies the signed-in user.
type Identity = rwsync.Identity

// Options configures a Service.
type Options struct {
	Bus    *events.Bus
	Logger *slog.Logger
}

// Service is the data access facade.
type Service struct {
	store   *db.DB
	monitor connectivity.Monitor
	ident   Identity
	engine  *rwsync.Engine
	queue   *rwsync.Queue
	bus     *events.Bus
	logger  *slog.Logger
}

// New returns a facade over store that mirrors writes through engine.
func New(store *db.DB, monitor connectivity.Monitor, ident Identity, engine *rwsync.Engine, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		monitor: monitor,
		ident:   ident,
		engine:  engine,
		queue:   engine.Queue(),
		bus:     opts.Bus,
		logger:  logger,
	}
}

// user returns the signed-in user id or ErrUnauthenticated.
func (s *Service) user(ctx context.Context) (string, error) {
	id, err := s.ident.UserID(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// save commits rec to the store unsynced, then mirrors op to the backend.
func (s *Service) save(ctx context.Context, op models.Op, rec models.Record) error {
	ident := rec.Ident()
	ident.Synced = false
	ident.LastModified = s.store.Now()
	if err := s.store.Put(rec); err != nil {
		return err
	}
	if err := s.mirror(ctx, op, rec.Kind(), ident.LocalID, rec); err != nil {
		return err
	}
	// Pick up the server id and synced flag an immediate push assigned.
	stored, err := s.store.Get(rec.Kind(), ident.LocalID)
	if err != nil {
		return err
	}
	if stored != nil {
		ident.ID = stored.Ident().ID
		ident.Synced = stored.Ident().Synced
		if pid := stored.ParentID(); pid != "" {
			rec.SetParentID(pid)
		}
	}
	s.notify(rec.Kind(), ident.LocalID, op)
	return nil
}

// mirror sends a mutation to the backend when online and queues it when
// offline or when the immediate call fails. Only store errors are returned.
func (s *Service) mirror(ctx context.Context, op models.Op, kind models.Kind, localID string, payload any) error {
	if s.monitor.IsOnline() {
		item := models.QueueItem{Op: op, Kind: kind, LocalID: localID}
		if op == models.OpDelete {
			data, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("marshal delete payload: %w", err)
			}
			item.Data = data
		}
		err := s.engine.Push(ctx, item)
		if err == nil {
			return nil
		}
		if errors.Is(err, db.ErrStoreUnavailable) {
			return err
		}
		s.logger.Debug("remote write failed, queueing", "op", op, "kind", kind, "local_id", localID, "err", err)
	}
	_, err := s.queue.Enqueue(op, kind, payload, localID)
	return err
}

func (s *Service) notify(kind models.Kind, localID string, op models.Op) {
	s.bus.Publish(events.Event{Type: events.DataChanged, Kind: kind, LocalID: localID, Op: op})
	s.engine.PublishStatus()
}

// find resolves id (local or server) to a stored record, asking the backend
// when online and the store has no match.
func (s *Service) find(ctx context.Context, kind models.Kind, id string) (models.Record, error) {
	rec, err := s.store.FindRecord(kind, id)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}
	if s.monitor.IsOnline() && !db.IsLocalOnly(id) {
		if _, err := s.engine.Refresh(ctx, kind, backend.Query{Filters: []backend.Filter{backend.Eq("id", id)}}); err != nil {
			s.logger.Debug("remote lookup failed", "kind", kind, "id", id, "err", err)
		} else if rec, err = s.store.FindRecord(kind, id); err != nil {
			return nil, err
		}
	}
	if rec == nil {
		return nil, fmt.Errorf("%s %s: %w", kind.Singular(), id, ErrNotFound)
	}
	return rec, nil
}

// refresh pulls fresh rows for a listing when online. Failures leave the
// store as it is.
func (s *Service) refresh(ctx context.Context, kind models.Kind, filters ...backend.Filter) {
	if !s.monitor.IsOnline() {
		return
	}
	userID, err := s.ident.UserID(ctx)
	if err != nil || userID == "" {
		return
	}
	q := backend.Query{Filters: append([]backend.Filter{backend.Eq("user_id", userID)}, filters...)}
	if _, err := s.engine.Refresh(ctx, kind, q); err != nil {
		s.logger.Debug("refresh failed, using local data", "kind", kind, "err", err)
	}
}

// remove deletes a record and its local descendants, then deletes it on the
// server when the server knows it. Local-only records only lose their
// queued mutations.
func (s *Service) remove(ctx context.Context, kind models.Kind, id string) (models.Record, error) {
	if _, err := s.user(ctx); err != nil {
		return nil, err
	}
	rec, err := s.store.FindRecord(kind, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%s %s: %w", kind.Singular(), id, ErrNotFound)
	}
	ident := rec.Ident()

	if _, err := s.store.DeleteTree(kind, ident.LocalID); err != nil {
		return nil, err
	}
	// Pending creates and updates are moot once the record is gone.
	if _, err := s.queue.RemoveFor(kind, ident.LocalID); err != nil {
		return nil, err
	}
	if !db.IsLocalOnly(ident.ID) {
		if err := s.mirror(ctx, models.OpDelete, kind, ident.LocalID, rwsync.DeletePayload{ID: ident.ID}); err != nil {
			return nil, err
		}
	}
	s.notify(kind, ident.LocalID, models.OpDelete)
	return rec, nil
}

// update replaces a stored record's fields with rec's, keeping the identity
// and parent references the store already has.
func (s *Service) update(ctx context.Context, rec models.Record) error {
	if _, err := s.user(ctx); err != nil {
		return err
	}
	ident := rec.Ident()
	key := ident.LocalID
	if key == "" {
		key = ident.ID
	}
	stored, err := s.store.FindRecord(rec.Kind(), key)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("%s %s: %w", rec.Kind().Singular(), key, ErrNotFound)
	}
	cur := stored.Ident()
	ident.ID = cur.ID
	ident.LocalID = cur.LocalID
	ident.UserID = cur.UserID
	rec.SetParentLocalID(stored.ParentLocalID())
	rec.SetParentID(stored.ParentID())
	return s.save(ctx, models.OpUpdate, rec)
}

// SyncStatus returns the sync indicator snapshot.
func (s *Service) SyncStatus() (rwsync.Status, error) {
	return s.engine.Status()
}

// Sync runs a sync cycle now. It fails with rwsync.ErrOffline when offline.
func (s *Service) Sync(ctx context.Context) (rwsync.Result, error) {
	return s.engine.ForceSync(ctx)
}

// PendingChanges lists queued mutations oldest first.
func (s *Service) PendingChanges() ([]models.QueueItem, error) {
	return s.queue.Drain()
}

// LocalRiverWalks lists walks from the store without contacting the backend.
func (s *Service) LocalRiverWalks() ([]*models.RiverWalk, error) {
	return s.store.RiverWalks()
}
