package data

import (
	"context"
	"fmt"

	"github.com/marcus/riverwalk/internal/backend"
	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/models"
)

// CreateSite adds a site to a walk. A zero site number appends the site
// after the walk's last one.
func (s *Service) CreateSite(ctx context.Context, walkID string, site *models.Site) (*models.Site, error) {
	userID, err := s.user(ctx)
	if err != nil {
		return nil, err
	}
	walk, err := s.find(ctx, models.KindRiverWalk, walkID)
	if err != nil {
		return nil, err
	}
	siblings, err := s.store.SitesForWalk(walk.Ident().LocalID)
	if err != nil {
		return nil, err
	}
	if site.SiteNumber == 0 {
		site.SiteNumber = len(siblings) + 1
	}
	if site.SiteNumber < 1 {
		return nil, fmt.Errorf("invalid site number %d", site.SiteNumber)
	}
	if site.RiverWidth < 0 {
		return nil, fmt.Errorf("invalid river width %g", site.RiverWidth)
	}

	site.LocalID = db.GenerateLocalID()
	site.ID = site.LocalID
	site.UserID = userID
	site.RiverWalkLocalID = walk.Ident().LocalID
	site.RiverWalkID = ""
	if id := walk.Ident().ID; !db.IsLocalOnly(id) {
		site.RiverWalkID = id
	}
	if err := s.save(ctx, models.OpCreate, site); err != nil {
		return nil, err
	}
	return site, nil
}

// UpdateSite saves changed fields of an existing site.
func (s *Service) UpdateSite(ctx context.Context, site *models.Site) error {
	return s.update(ctx, site)
}

// DeleteSite removes a site with its points and photos, then renumbers the
// walk's later sites so numbers stay contiguous. Each renumbered site is
// written like any other update.
func (s *Service) DeleteSite(ctx context.Context, id string) error {
	rec, err := s.remove(ctx, models.KindSite, id)
	if err != nil {
		return err
	}
	deleted := rec.(*models.Site)

	siblings, err := s.store.SitesForWalk(deleted.RiverWalkLocalID)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if sib.SiteNumber <= deleted.SiteNumber {
			continue
		}
		sib.SiteNumber--
		if err := s.save(ctx, models.OpUpdate, sib); err != nil {
			return fmt.Errorf("renumber site %s: %w", sib.LocalID, err)
		}
	}
	return nil
}

// GetSite returns one site by local or server id.
func (s *Service) GetSite(ctx context.Context, id string) (*models.Site, error) {
	rec, err := s.find(ctx, models.KindSite, id)
	if err != nil {
		return nil, err
	}
	return rec.(*models.Site), nil
}

// SitesFor lists a walk's sites ordered by site number.
func (s *Service) SitesFor(ctx context.Context, walkID string) ([]*models.Site, error) {
	walk, err := s.find(ctx, models.KindRiverWalk, walkID)
	if err != nil {
		return nil, err
	}
	if id := walk.Ident().ID; !db.IsLocalOnly(id) {
		s.refresh(ctx, models.KindSite, backend.Eq("river_walk_id", id))
	}
	return s.store.SitesForWalk(walk.Ident().LocalID)
}
