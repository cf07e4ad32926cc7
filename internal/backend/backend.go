// Package backend defines the contract the sync layer needs from the remote
// relational store: per-table CRUD plus photo upload.
package backend

import (
	"context"
	"errors"
	"strings"

	"github.com/marcus/riverwalk/internal/models"
)

// Sentinel errors. Implementations wrap them with %w so callers can match
// with errors.Is.
var (
	// ErrRejected means the backend answered but refused the call.
	ErrRejected = errors.New("backend rejected request")
	// ErrUnreachable means the call never got an answer.
	ErrUnreachable = errors.New("backend unreachable")
	// ErrNotFound means the addressed row does not exist remotely.
	ErrNotFound = errors.New("remote record not found")
	// ErrUnauthorized means the credentials were missing or not accepted.
	ErrUnauthorized = errors.New("unauthorized")
)

// Row is one table row as exchanged with the backend.
type Row = map[string]any

// Filter is an equality condition on one column.
type Filter struct {
	Column string
	Value  string
}

// Eq builds an equality filter.
func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

// Query selects rows from one table.
type Query struct {
	Filters []Filter
	// Order is a column name, optionally suffixed with ".desc".
	Order string
	Limit int
}

// OrderColumn splits Order into the column and direction.
func (q Query) OrderColumn() (column string, desc bool) {
	if col, ok := strings.CutSuffix(q.Order, ".desc"); ok {
		return col, true
	}
	return strings.TrimSuffix(q.Order, ".asc"), false
}

// Backend is the remote store. Table names are the record kinds.
type Backend interface {
	// Insert creates a row and returns it with its server-issued id.
	Insert(ctx context.Context, table models.Kind, row Row) (Row, error)
	// Update patches the row with the given server id.
	Update(ctx context.Context, table models.Kind, id string, row Row) (Row, error)
	// Delete removes the row with the given server id. Children cascade.
	Delete(ctx context.Context, table models.Kind, id string) error
	Select(ctx context.Context, table models.Kind, q Query) ([]Row, error)
	// UploadPhoto stores a photo payload for the related record and returns
	// the URL it can be fetched from.
	UploadPhoto(ctx context.Context, relatedID string, data []byte, ownerID string, kind models.PhotoType) (string, error)
}

// RowID returns the id column of a row.
func RowID(row Row) string {
	id, _ := row["id"].(string)
	return id
}
