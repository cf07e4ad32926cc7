package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	stateLastSyncAt = "last_sync_at"
	stateLastError  = "last_error"
)

// SyncState is the persisted outcome of the most recent sync cycle.
type SyncState struct {
	LastSyncAt *time.Time
	LastError  string
}

// GetSyncState returns the persisted sync state. A store that never synced
// returns a zero state.
func (db *DB) GetSyncState() (*SyncState, error) {
	conn, err := db.ready()
	if err != nil {
		return nil, err
	}
	var s SyncState

	at, err := stateValue(conn, stateLastSyncAt)
	if err != nil {
		return nil, err
	}
	if at != "" {
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", stateLastSyncAt, err)
		}
		s.LastSyncAt = &t
	}

	if s.LastError, err = stateValue(conn, stateLastError); err != nil {
		return nil, err
	}
	return &s, nil
}

func stateValue(conn *sql.DB, key string) (string, error) {
	var v string
	err := conn.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read sync state %s: %w", key, err)
	}
	return v, nil
}

// RecordSyncSuccess stores the completion time and clears the last error.
func (db *DB) RecordSyncSuccess(at time.Time) error {
	return db.withWriteLock(func(conn *sql.DB) error {
		if _, err := conn.Exec(`INSERT OR REPLACE INTO sync_state (key, value) VALUES (?, ?)`,
			stateLastSyncAt, at.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("record sync time: %w", err)
		}
		if _, err := conn.Exec(`DELETE FROM sync_state WHERE key = ?`, stateLastError); err != nil {
			return fmt.Errorf("clear sync error: %w", err)
		}
		return nil
	})
}

// RecordSyncError stores the error of a failed cycle.
func (db *DB) RecordSyncError(msg string) error {
	return db.withWriteLock(func(conn *sql.DB) error {
		if _, err := conn.Exec(`INSERT OR REPLACE INTO sync_state (key, value) VALUES (?, ?)`,
			stateLastError, msg); err != nil {
			return fmt.Errorf("record sync error: %w", err)
		}
		return nil
	})
}
