package serverdb

import (
	"database/sql"
	"fmt"
	"time"
)

// PhotoObject describes an uploaded photo payload. The bytes live in the
// photo store under Key.
type PhotoObject struct {
	Key         string
	UserID      string
	RelatedID   string
	Kind        string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// CreatePhotoObject records an uploaded payload.
func (db *ServerDB) CreatePhotoObject(o *PhotoObject) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.ContentType == "" {
		o.ContentType = "application/octet-stream"
	}
	_, err := db.conn.Exec(
		`INSERT INTO photo_objects (key, user_id, related_id, kind, content_type, size, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.Key, o.UserID, o.RelatedID, o.Kind, o.ContentType, o.Size, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert photo object: %w", err)
	}
	return nil
}

// GetPhotoObject returns the object stored under key, or nil if not found.
func (db *ServerDB) GetPhotoObject(key string) (*PhotoObject, error) {
	o := &PhotoObject{}
	err := db.conn.QueryRow(
		`SELECT key, user_id, related_id, kind, content_type, size, created_at FROM photo_objects WHERE key = ?`, key,
	).Scan(&o.Key, &o.UserID, &o.RelatedID, &o.Kind, &o.ContentType, &o.Size, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get photo object: %w", err)
	}
	return o, nil
}

// PhotoObjectStats returns the number and total size of stored payloads.
func (db *ServerDB) PhotoObjectStats() (count, bytes int64, err error) {
	err = db.conn.QueryRow(`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM photo_objects`).Scan(&count, &bytes)
	if err != nil {
		return 0, 0, fmt.Errorf("photo object stats: %w", err)
	}
	return count, bytes, nil
}
