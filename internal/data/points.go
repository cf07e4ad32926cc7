package data

import (
	"context"
	"fmt"

	"github.com/marcus/riverwalk/internal/backend"
	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/models"
)

// siteParent returns the parent references a child of siteID should carry.
// serverID is empty while the site is local-only.
func (s *Service) siteParent(ctx context.Context, siteID string) (localID, serverID string, err error) {
	site, err := s.find(ctx, models.KindSite, siteID)
	if err != nil {
		return "", "", err
	}
	localID = site.Ident().LocalID
	if id := site.Ident().ID; !db.IsLocalOnly(id) {
		serverID = id
	}
	return localID, serverID, nil
}

// CreateMeasurementPoint adds a depth reading to a site. A zero point number
// appends it after the site's last point.
func (s *Service) CreateMeasurementPoint(ctx context.Context, siteID string, p *models.MeasurementPoint) (*models.MeasurementPoint, error) {
	userID, err := s.user(ctx)
	if err != nil {
		return nil, err
	}
	localID, serverID, err := s.siteParent(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if p.PointNumber == 0 {
		existing, err := s.store.PointsForSite(localID)
		if err != nil {
			return nil, err
		}
		p.PointNumber = len(existing) + 1
	}
	if err := validatePoint(p); err != nil {
		return nil, err
	}
	p.LocalID = db.GenerateLocalID()
	p.ID = p.LocalID
	p.UserID = userID
	p.SiteLocalID = localID
	p.SiteID = serverID
	if err := s.save(ctx, models.OpCreate, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CreatePoints adds one point per depth, spaced evenly from bank to bank
// across width. A single depth sits at the near bank.
func (s *Service) CreatePoints(ctx context.Context, siteID string, width float64, depths []float64) ([]*models.MeasurementPoint, error) {
	if width < 0 {
		return nil, fmt.Errorf("invalid river width %g", width)
	}
	n := len(depths)
	points := make([]*models.MeasurementPoint, 0, n)
	for i, depth := range depths {
		var dist float64
		if n > 1 {
			dist = width * float64(i) / float64(n-1)
		}
		p, err := s.CreateMeasurementPoint(ctx, siteID, &models.MeasurementPoint{
			DistanceFromBank: dist,
			Depth:            depth,
		})
		if err != nil {
			return points, err
		}
		points = append(points, p)
	}
	return points, nil
}

func validatePoint(p *models.MeasurementPoint) error {
	switch {
	case p.PointNumber < 1:
		return fmt.Errorf("invalid point number %d", p.PointNumber)
	case p.Depth < 0:
		return fmt.Errorf("invalid depth %g", p.Depth)
	case p.DistanceFromBank < 0:
		return fmt.Errorf("invalid distance from bank %g", p.DistanceFromBank)
	}
	return nil
}

// UpdateMeasurementPoint saves changed fields of an existing point.
func (s *Service) UpdateMeasurementPoint(ctx context.Context, p *models.MeasurementPoint) error {
	if err := validatePoint(p); err != nil {
		return err
	}
	return s.update(ctx, p)
}

// DeleteMeasurementPoint removes a point.
func (s *Service) DeleteMeasurementPoint(ctx context.Context, id string) error {
	_, err := s.remove(ctx, models.KindMeasurementPoint, id)
	return err
}

// GetMeasurementPoint returns one point by local or server id.
func (s *Service) GetMeasurementPoint(ctx context.Context, id string) (*models.MeasurementPoint, error) {
	rec, err := s.find(ctx, models.KindMeasurementPoint, id)
	if err != nil {
		return nil, err
	}
	return rec.(*models.MeasurementPoint), nil
}

// PointsFor lists a site's points ordered by point number.
func (s *Service) PointsFor(ctx context.Context, siteID string) ([]*models.MeasurementPoint, error) {
	localID, serverID, err := s.siteParent(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if serverID != "" {
		s.refresh(ctx, models.KindMeasurementPoint, backend.Eq("site_id", serverID))
	}
	return s.store.PointsForSite(localID)
}
