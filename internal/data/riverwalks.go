package data

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/models"
)

// CreateRiverWalk stores a new walk. A blank date defaults to today.
func (s *Service) CreateRiverWalk(ctx context.Context, w *models.RiverWalk) (*models.RiverWalk, error) {
	userID, err := s.user(ctx)
	if err != nil {
		return nil, err
	}
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		return nil, errors.New("river walk name is required")
	}
	if w.Date == "" {
		w.Date = time.Now().Format("2006-01-02")
	}
	w.LocalID = db.GenerateLocalID()
	w.ID = w.LocalID
	w.UserID = userID
	if err := s.save(ctx, models.OpCreate, w); err != nil {
		return nil, err
	}
	return w, nil
}

// UpdateRiverWalk saves changed fields of an existing walk.
func (s *Service) UpdateRiverWalk(ctx context.Context, w *models.RiverWalk) error {
	return s.update(ctx, w)
}

// ArchiveRiverWalk sets or clears the archived flag.
func (s *Service) ArchiveRiverWalk(ctx context.Context, id string, archived bool) (*models.RiverWalk, error) {
	w, err := s.GetRiverWalk(ctx, id)
	if err != nil {
		return nil, err
	}
	w.Archived = archived
	if err := s.update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// DeleteRiverWalk removes a walk with its sites, points and photos.
func (s *Service) DeleteRiverWalk(ctx context.Context, id string) error {
	_, err := s.remove(ctx, models.KindRiverWalk, id)
	return err
}

// GetRiverWalk returns one walk by local or server id.
func (s *Service) GetRiverWalk(ctx context.Context, id string) (*models.RiverWalk, error) {
	rec, err := s.find(ctx, models.KindRiverWalk, id)
	if err != nil {
		return nil, err
	}
	return rec.(*models.RiverWalk), nil
}

// RiverWalks lists the user's walks, newest first.
func (s *Service) RiverWalks(ctx context.Context) ([]*models.RiverWalk, error) {
	s.refresh(ctx, models.KindRiverWalk)
	return s.store.RiverWalks()
}
