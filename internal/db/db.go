package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	storeDir  = ".rwalk"
	storeFile = "store.db"
)

// ErrStoreUnavailable is returned when the local store cannot be opened or
// initialized. Callers must not continue with partial writes.
var ErrStoreUnavailable = errors.New("local store unavailable")

// DB wraps the local store connection. The connection is opened and the
// schema applied lazily on first access.
type DB struct {
	baseDir string
	path    string

	mu   sync.Mutex
	conn *sql.DB

	clock monoClock
}

// Open returns a store rooted at baseDir. Nothing touches the disk until the
// first read or write.
func Open(baseDir string) *DB {
	return &DB{
		baseDir: baseDir,
		path:    filepath.Join(baseDir, storeDir, storeFile),
	}
}

// Init forces initialization. It is safe to call repeatedly.
func (db *DB) Init() error {
	_, err := db.ready()
	return err
}

// ready returns the open connection, opening the database and running the
// schema and migrations on first use. Failures are not cached.
func (db *DB) ready() (*sql.DB, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn != nil {
		return db.conn, nil
	}

	if err := os.MkdirAll(filepath.Dir(db.path), 0755); err != nil {
		return nil, fmt.Errorf("%w: create store dir: %w", ErrStoreUnavailable, err)
	}

	conn, err := sql.Open("sqlite", db.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", ErrStoreUnavailable, err)
	}

	// One connection keeps transactions and plain queries from racing for
	// the sqlite write lock inside this process.
	conn.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads while writes are serialized
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: enable WAL mode: %w", ErrStoreUnavailable, err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: set busy timeout: %w", ErrStoreUnavailable, err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: create schema: %w", ErrStoreUnavailable, err)
	}

	db.conn = conn
	if _, err := db.runMigrations(conn); err != nil {
		db.conn = nil
		conn.Close()
		return nil, fmt.Errorf("%w: run migrations: %w", ErrStoreUnavailable, err)
	}

	return conn, nil
}

// Close closes the database if it was opened.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn = nil
	return err
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Now returns a strictly increasing timestamp for lastModified and queue
// ordering.
func (db *DB) Now() time.Time {
	return db.clock.now()
}

// withWriteLock executes fn while holding an exclusive write lock.
// This prevents concurrent writes from multiple processes.
func (db *DB) withWriteLock(fn func(conn *sql.DB) error) error {
	conn, err := db.ready()
	if err != nil {
		return err
	}
	return withFileLock(db.lockDir(), func() error {
		return fn(conn)
	})
}

func (db *DB) lockDir() string {
	return filepath.Dir(db.path)
}

// withTx runs fn inside a transaction under the write lock.
func (db *DB) withTx(fn func(tx *sql.Tx) error) error {
	return db.withWriteLock(func(conn *sql.DB) error {
		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// monoClock hands out strictly increasing wall-clock timestamps.
type monoClock struct {
	mu   sync.Mutex
	last int64
}

func (c *monoClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := time.Now().UnixNano()
	if n <= c.last {
		n = c.last + 1
	}
	c.last = n
	return time.Unix(0, n).UTC()
}
