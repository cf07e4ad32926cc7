package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/marcus/riverwalk/internal/models"
)

// EnqueueMutation appends a queue item and returns its id. A zero timestamp
// is stamped with the store clock and attempts always start at zero.
func (db *DB) EnqueueMutation(item *models.QueueItem) (int64, error) {
	if !models.IsValidOp(item.Op) {
		return 0, fmt.Errorf("enqueue: unknown op %q", item.Op)
	}
	if err := checkKind(item.Kind); err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = db.Now()
	}
	item.Attempts = 0
	data := string(item.Data)
	if data == "" {
		data = "{}"
	}

	err := db.withWriteLock(func(conn *sql.DB) error {
		res, err := conn.Exec(`
			INSERT INTO sync_queue (op, kind, data, local_id, timestamp, attempts, last_error)
			VALUES (?, ?, ?, ?, ?, 0, '')
		`, string(item.Op), string(item.Kind), data, item.LocalID, item.Timestamp.UnixNano())
		if err != nil {
			return err
		}
		item.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue %s %s: %w", item.Op, item.Kind, err)
	}
	return item.ID, nil
}

// QueueItems returns pending mutations ordered by timestamp, then id.
func (db *DB) QueueItems() ([]models.QueueItem, error) {
	conn, err := db.ready()
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(`
		SELECT id, op, kind, data, local_id, timestamp, attempts, last_error
		FROM sync_queue
		ORDER BY timestamp ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sync queue: %w", err)
	}
	defer rows.Close()

	var items []models.QueueItem
	for rows.Next() {
		var it models.QueueItem
		var op, kind, data string
		var ts int64
		if err := rows.Scan(&it.ID, &op, &kind, &data, &it.LocalID, &ts, &it.Attempts, &it.LastError); err != nil {
			return nil, err
		}
		it.Op = models.Op(op)
		it.Kind = models.Kind(kind)
		it.Data = []byte(data)
		it.Timestamp = time.Unix(0, ts).UTC()
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeleteQueueItem removes one queue item.
func (db *DB) DeleteQueueItem(id int64) error {
	return db.withWriteLock(func(conn *sql.DB) error {
		if _, err := conn.Exec(`DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete queue item %d: %w", id, err)
		}
		return nil
	})
}

// UpdateQueueItem records a failed attempt.
func (db *DB) UpdateQueueItem(id int64, attempts int, lastError string) error {
	return db.withWriteLock(func(conn *sql.DB) error {
		_, err := conn.Exec(`UPDATE sync_queue SET attempts = ?, last_error = ? WHERE id = ?`, attempts, lastError, id)
		if err != nil {
			return fmt.Errorf("update queue item %d: %w", id, err)
		}
		return nil
	})
}

// DeleteQueueItemsFor purges every queued mutation for one record.
func (db *DB) DeleteQueueItemsFor(kind models.Kind, localID string) (int64, error) {
	var n int64
	err := db.withWriteLock(func(conn *sql.DB) error {
		res, err := conn.Exec(`DELETE FROM sync_queue WHERE kind = ? AND local_id = ?`, string(kind), localID)
		if err != nil {
			return fmt.Errorf("purge queue for %s %s: %w", kind, localID, err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

// CountQueueItems returns the number of pending mutations.
func (db *DB) CountQueueItems() (int, error) {
	conn, err := db.ready()
	if err != nil {
		return 0, err
	}
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sync queue: %w", err)
	}
	return n, nil
}
