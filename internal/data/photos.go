package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/marcus/riverwalk/internal/backend"
	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/models"
)

// AddPhoto attaches an image to a site. The bytes stay in the local store
// until the photo is uploaded. An empty content type is sniffed from data.
func (s *Service) AddPhoto(ctx context.Context, siteID string, typ models.PhotoType, data []byte, contentType string) (*models.Photo, error) {
	userID, err := s.user(ctx)
	if err != nil {
		return nil, err
	}
	if !models.IsValidPhotoType(typ) {
		return nil, fmt.Errorf("invalid photo type %q", typ)
	}
	if len(data) == 0 {
		return nil, errors.New("photo has no data")
	}
	localID, serverID, err := s.siteParent(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	p := &models.Photo{
		SiteLocalID: localID,
		SiteID:      serverID,
		Type:        typ,
		ContentType: contentType,
		Data:        data,
	}
	p.LocalID = db.GenerateLocalID()
	p.ID = p.LocalID
	p.UserID = userID
	if err := s.save(ctx, models.OpCreate, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePhoto saves changed metadata of an existing photo. Nil Data keeps the
// stored bytes.
func (s *Service) UpdatePhoto(ctx context.Context, p *models.Photo) error {
	if !models.IsValidPhotoType(p.Type) {
		return fmt.Errorf("invalid photo type %q", p.Type)
	}
	return s.update(ctx, p)
}

// DeletePhoto removes a photo.
func (s *Service) DeletePhoto(ctx context.Context, id string) error {
	_, err := s.remove(ctx, models.KindPhoto, id)
	return err
}

// GetPhoto returns one photo by local or server id.
func (s *Service) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	rec, err := s.find(ctx, models.KindPhoto, id)
	if err != nil {
		return nil, err
	}
	return rec.(*models.Photo), nil
}

// PhotosFor lists a site's photos.
func (s *Service) PhotosFor(ctx context.Context, siteID string) ([]*models.Photo, error) {
	localID, serverID, err := s.siteParent(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if serverID != "" {
		s.refresh(ctx, models.KindPhoto, backend.Eq("site_id", serverID))
	}
	return s.store.PhotosForSite(localID)
}
