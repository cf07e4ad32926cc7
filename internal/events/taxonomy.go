package events

import (
	"time"

	"github.com/marcus/riverwalk/internal/models"
)

// Type names a notification published by the sync layer.
type Type string

// Canonical notification types
const (
	DataChanged       Type = "data-changed"
	SyncStarted       Type = "sync-started"
	SyncCompleted     Type = "sync-completed"
	SyncFailed        Type = "sync-failed"
	SyncStatusChanged Type = "sync-status-changed"
)

// AllTypes returns all valid notification types.
func AllTypes() map[Type]bool {
	return map[Type]bool{
		DataChanged:       true,
		SyncStarted:       true,
		SyncCompleted:     true,
		SyncFailed:        true,
		SyncStatusChanged: true,
	}
}

// IsValidType checks if the given type string is valid.
func IsValidType(t string) bool {
	return AllTypes()[Type(t)]
}

// Event is one notification. Only the fields relevant to Type are set.
type Event struct {
	Type Type
	At   time.Time

	// DataChanged
	Kind    models.Kind
	LocalID string
	Op      models.Op

	// SyncCompleted
	Pushed     int
	Dropped    int
	Deferred   int
	Downloaded int

	// SyncFailed
	Err error

	// SyncStatusChanged
	Online  bool
	Pending int
}
