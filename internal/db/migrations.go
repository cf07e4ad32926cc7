package db

import (
	"database/sql"
	"fmt"
)

// columnExists checks whether a column exists on a table
func columnExists(conn *sql.DB, table, column string) (bool, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s);", table)
	rows, err := conn.Query(query)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}

	return false, rows.Err()
}

// GetSchemaVersion returns the current schema version from the database
func (db *DB) GetSchemaVersion() (int, error) {
	conn, err := db.ready()
	if err != nil {
		return 0, err
	}
	return schemaVersion(conn), nil
}

func schemaVersion(conn *sql.DB) int {
	var version string
	err := conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err != nil {
		// No version set (or table missing), assume version 0 (pre-migration)
		return 0
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v
}

func setSchemaVersion(conn *sql.DB, version int) error {
	_, err := conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// runMigrations applies pending migrations. Every migration is additive so
// re-running on an initialized store never loses data.
func (db *DB) runMigrations(conn *sql.DB) (int, error) {
	// Quick check - if already at current version, skip
	currentVersion := schemaVersion(conn)
	if currentVersion >= SchemaVersion {
		return 0, nil
	}

	var migrationsRun int
	err := withFileLock(db.lockDir(), func() error {
		// Re-read under the lock; another process may have migrated.
		currentVersion = schemaVersion(conn)
		for _, m := range Migrations {
			if m.Version <= currentVersion {
				continue
			}
			if m.AddsColumn != nil {
				exists, err := columnExists(conn, m.AddsColumn.Table, m.AddsColumn.Column)
				if err != nil {
					return fmt.Errorf("check column %s: %w", m.AddsColumn.Column, err)
				}
				if exists {
					if err := setSchemaVersion(conn, m.Version); err != nil {
						return fmt.Errorf("set version %d: %w", m.Version, err)
					}
					migrationsRun++
					continue
				}
			}
			if _, err := conn.Exec(m.SQL); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}
			if err := setSchemaVersion(conn, m.Version); err != nil {
				return fmt.Errorf("set version %d: %w", m.Version, err)
			}
			migrationsRun++
		}
		return setSchemaVersion(conn, SchemaVersion)
	})
	return migrationsRun, err
}
