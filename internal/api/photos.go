package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/marcus/riverwalk/internal/models"
	"github.com/marcus/riverwalk/internal/photostore"
	"github.com/marcus/riverwalk/internal/serverdb"
)

// uploadPhotoRequest is the JSON body for POST /v1/photos.
type uploadPhotoRequest struct {
	RelatedID   string `json:"related_id"`
	Kind        string `json:"kind"`
	Data        string `json:"data"` // base64
	ContentType string `json:"content_type,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
}

// uploadPhotoResponse is the JSON response for POST /v1/photos.
type uploadPhotoResponse struct {
	URL  string `json:"url"`
	Key  string `json:"key"`
	Size int    `json:"size"`
}

// handleUploadPhoto handles POST /v1/photos. The related id must be a site
// the caller owns.
func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	var req uploadPhotoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user := getUserFromContext(r.Context())

	if !models.IsValidPhotoType(models.PhotoType(req.Kind)) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "kind must be site_photo or sediment_photo")
		return
	}
	if req.RelatedID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "related_id is required")
		return
	}
	if req.OwnerID != "" && req.OwnerID != user.UserID {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "owner_id does not match api key")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "data must be base64")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "data is empty")
		return
	}
	if len(data) > s.config.MaxPhotoBytes {
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "photo exceeds "+strconv.Itoa(s.config.MaxPhotoBytes)+" bytes")
		return
	}
	if _, err := s.store.GetRow(user.UserID, models.KindSite, req.RelatedID); err != nil {
		writeStoreError(w, r, "check photo site", err)
		return
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	key := photostore.NewKey(user.UserID, req.Kind, contentType)
	if err := s.photos.Put(r.Context(), key, data, contentType); err != nil {
		logFor(r.Context()).Error("store photo", "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to store photo")
		return
	}
	obj := &serverdb.PhotoObject{
		Key:         key,
		UserID:      user.UserID,
		RelatedID:   req.RelatedID,
		Kind:        req.Kind,
		ContentType: contentType,
		Size:        int64(len(data)),
	}
	if err := s.store.CreatePhotoObject(obj); err != nil {
		logFor(r.Context()).Error("record photo", "key", key, "err", err)
		if derr := s.photos.Delete(r.Context(), key); derr != nil {
			logFor(r.Context()).Warn("remove orphaned photo", "key", key, "err", derr)
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to record photo")
		return
	}
	s.metrics.RecordPhoto(obj.Size)

	writeJSON(w, http.StatusCreated, uploadPhotoResponse{
		URL:  s.config.BaseURL + "/v1/photos/" + key,
		Key:  key,
		Size: len(data),
	})
}

// handleGetPhoto handles GET /v1/photos/{key...}. Only the uploader can read
// the object.
func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !photostore.ValidKey(key) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid photo key")
		return
	}
	user := getUserFromContext(r.Context())
	obj, err := s.store.GetPhotoObject(key)
	if err != nil {
		logFor(r.Context()).Error("get photo object", "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to look up photo")
		return
	}
	if obj == nil || obj.UserID != user.UserID {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "photo not found")
		return
	}
	data, err := s.photos.Get(r.Context(), key)
	if errors.Is(err, photostore.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "photo not found")
		return
	}
	if err != nil {
		logFor(r.Context()).Error("read photo", "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to read photo")
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
