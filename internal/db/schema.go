package db

// SchemaVersion is the current database schema version
const SchemaVersion = 3

// Each record table keeps the full record as a JSON document plus the
// columns it is looked up by. local_id is the upsert key.
const schema = `
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS river_walks (
    local_id TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    parent_local_id TEXT NOT NULL DEFAULT '',
    parent_id TEXT NOT NULL DEFAULT '',
    synced INTEGER NOT NULL DEFAULT 0,
    last_modified INTEGER NOT NULL DEFAULT 0,
    data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_river_walks_id ON river_walks(id);

CREATE TABLE IF NOT EXISTS sites (
    local_id TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    parent_local_id TEXT NOT NULL DEFAULT '',
    parent_id TEXT NOT NULL DEFAULT '',
    synced INTEGER NOT NULL DEFAULT 0,
    last_modified INTEGER NOT NULL DEFAULT 0,
    data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sites_id ON sites(id);
CREATE INDEX IF NOT EXISTS idx_sites_parent_local ON sites(parent_local_id);
CREATE INDEX IF NOT EXISTS idx_sites_parent ON sites(parent_id);

CREATE TABLE IF NOT EXISTS measurement_points (
    local_id TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    parent_local_id TEXT NOT NULL DEFAULT '',
    parent_id TEXT NOT NULL DEFAULT '',
    synced INTEGER NOT NULL DEFAULT 0,
    last_modified INTEGER NOT NULL DEFAULT 0,
    data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_measurement_points_id ON measurement_points(id);
CREATE INDEX IF NOT EXISTS idx_measurement_points_parent_local ON measurement_points(parent_local_id);
CREATE INDEX IF NOT EXISTS idx_measurement_points_parent ON measurement_points(parent_id);

CREATE TABLE IF NOT EXISTS photos (
    local_id TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    parent_local_id TEXT NOT NULL DEFAULT '',
    parent_id TEXT NOT NULL DEFAULT '',
    synced INTEGER NOT NULL DEFAULT 0,
    last_modified INTEGER NOT NULL DEFAULT 0,
    data TEXT NOT NULL,
    blob BLOB
);
CREATE INDEX IF NOT EXISTS idx_photos_id ON photos(id);
CREATE INDEX IF NOT EXISTS idx_photos_parent_local ON photos(parent_local_id);
CREATE INDEX IF NOT EXISTS idx_photos_parent ON photos(parent_id);

-- Pending mutations, drained in timestamp order
CREATE TABLE IF NOT EXISTS sync_queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    op TEXT NOT NULL,
    kind TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '{}',
    local_id TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_timestamp ON sync_queue(timestamp);
`

// Migration is one additive schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
	// AddsColumn, when set, makes the migration a no-op if the column is
	// already present (ALTER TABLE ADD COLUMN is not idempotent).
	AddsColumn *ColumnRef
}

// ColumnRef names a table column.
type ColumnRef struct {
	Table  string
	Column string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add last_error to sync_queue",
		SQL:         `ALTER TABLE sync_queue ADD COLUMN last_error TEXT NOT NULL DEFAULT ''`,
		AddsColumn:  &ColumnRef{Table: "sync_queue", Column: "last_error"},
	},
	{
		Version:     3,
		Description: "Add sync_state table and queue entity index",
		SQL: `
CREATE TABLE IF NOT EXISTS sync_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON sync_queue(kind, local_id);
`,
	},
}
