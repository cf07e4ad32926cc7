package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/marcus/riverwalk/internal/models"
)

// Index names a secondary lookup column.
type Index string

const (
	IndexID            Index = "id"
	IndexParentLocalID Index = "parent_local_id"
	IndexParentID      Index = "parent_id"
)

func validIndex(idx Index) bool {
	switch idx {
	case IndexID, IndexParentLocalID, IndexParentID:
		return true
	}
	return false
}

func checkKind(kind models.Kind) error {
	if !models.IsValidKind(kind) {
		return fmt.Errorf("unknown kind: %q", kind)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Put upserts rec keyed by its local id. The id defaults to the local id and
// a zero last-modified time is stamped with the store clock. For photos a nil
// payload keeps the stored payload.
func (db *DB) Put(rec models.Record) error {
	ident := rec.Ident()
	if ident.LocalID == "" {
		return fmt.Errorf("put %s: missing local id", rec.Kind())
	}
	if ident.ID == "" {
		ident.ID = ident.LocalID
	}
	if ident.LastModified.IsZero() {
		ident.LastModified = db.Now()
	}
	return db.withWriteLock(func(conn *sql.DB) error {
		return putRecord(conn, rec)
	})
}

func putRecord(ex execer, rec models.Record) error {
	ident := rec.Ident()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", rec.Kind(), err)
	}

	if p, ok := rec.(*models.Photo); ok {
		var blob []byte
		if len(p.Data) > 0 {
			blob = snappy.Encode(nil, p.Data)
		}
		_, err = ex.Exec(`
			INSERT INTO photos (local_id, id, parent_local_id, parent_id, synced, last_modified, data, blob)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(local_id) DO UPDATE SET `+conflictSet("photos")+`,
				blob = COALESCE(excluded.blob, photos.blob)
		`, ident.LocalID, ident.ID, rec.ParentLocalID(), rec.ParentID(), boolInt(ident.Synced),
			ident.LastModified.UnixNano(), string(data), blob)
	} else {
		_, err = ex.Exec(fmt.Sprintf(`
			INSERT INTO %s (local_id, id, parent_local_id, parent_id, synced, last_modified, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(local_id) DO UPDATE SET `, rec.Kind())+conflictSet(string(rec.Kind())),
			ident.LocalID, ident.ID, rec.ParentLocalID(), rec.ParentID(), boolInt(ident.Synced),
			ident.LastModified.UnixNano(), string(data))
	}
	if err != nil {
		return fmt.Errorf("put %s %s: %w", rec.Kind(), ident.LocalID, err)
	}
	return nil
}

// conflictSet is the upsert assignment list for table. A server id already
// in the row wins over a local token carried by a stale copy, for both the
// record's own id and its parent reference.
func conflictSet(table string) string {
	return fmt.Sprintf(`
				id = CASE WHEN %[1]s.id NOT LIKE '%[2]s' ESCAPE '\' THEN %[1]s.id ELSE excluded.id END,
				parent_local_id = excluded.parent_local_id,
				parent_id = CASE
					WHEN %[1]s.parent_id != '' AND %[1]s.parent_id NOT LIKE '%[2]s' ESCAPE '\'
						AND (excluded.parent_id = '' OR excluded.parent_id LIKE '%[2]s' ESCAPE '\')
					THEN %[1]s.parent_id
					ELSE excluded.parent_id
				END,
				synced = excluded.synced,
				last_modified = excluded.last_modified,
				data = excluded.data`, table, localIDPattern)
}

// localIDPattern matches LocalIDPrefix in a LIKE with '\' as the escape.
var localIDPattern = strings.ReplaceAll(LocalIDPrefix, "_", `\_`) + "%"

func selectColumns(kind models.Kind) string {
	if kind == models.KindPhoto {
		return "local_id, id, parent_id, synced, last_modified, data, blob"
	}
	return "local_id, id, parent_id, synced, last_modified, data, NULL"
}

// scanRecord decodes a row. The id, synced, last_modified and parent_id
// columns are authoritative over the JSON document, since server id
// assignment only rewrites columns.
func scanRecord(kind models.Kind, scan func(dest ...any) error) (models.Record, error) {
	var (
		localID, id, parentID, data string
		synced                      int
		lastModified                int64
		blob                        []byte
	)
	if err := scan(&localID, &id, &parentID, &synced, &lastModified, &data, &blob); err != nil {
		return nil, err
	}
	rec, err := models.DecodeRecord(kind, []byte(data))
	if err != nil {
		return nil, err
	}
	ident := rec.Ident()
	ident.LocalID = localID
	ident.ID = id
	ident.Synced = synced != 0
	ident.LastModified = time.Unix(0, lastModified).UTC()
	if parentID != "" {
		rec.SetParentID(parentID)
	}
	if p, ok := rec.(*models.Photo); ok && len(blob) > 0 {
		raw, err := snappy.Decode(nil, blob)
		if err != nil {
			return nil, fmt.Errorf("decode photo %s: %w", localID, err)
		}
		p.Data = raw
	}
	return rec, nil
}

func queryRecords(ex execer, kind models.Kind, where string, args ...any) ([]models.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", selectColumns(kind), kind)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY rowid"
	rows, err := ex.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		rec, err := scanRecord(kind, rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns the record with the given local id, or nil if absent.
func (db *DB) Get(kind models.Kind, localID string) (models.Record, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	conn, err := db.ready()
	if err != nil {
		return nil, err
	}
	return getRecord(conn, kind, localID)
}

func getRecord(ex execer, kind models.Kind, localID string) (models.Record, error) {
	row := ex.QueryRow(fmt.Sprintf("SELECT %s FROM %s WHERE local_id = ?", selectColumns(kind), kind), localID)
	rec, err := scanRecord(kind, row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, localID, err)
	}
	return rec, nil
}

// FindRecord returns the record whose local id or server id is id, or nil.
func (db *DB) FindRecord(kind models.Kind, id string) (models.Record, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	conn, err := db.ready()
	if err != nil {
		return nil, err
	}
	return findRecord(conn, kind, id)
}

func findRecord(ex execer, kind models.Kind, id string) (models.Record, error) {
	recs, err := queryRecords(ex, kind, "local_id = ? OR id = ?", id, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	// A local id match wins over a server id match.
	for _, r := range recs {
		if r.Ident().LocalID == id {
			return r, nil
		}
	}
	return recs[0], nil
}

// GetAll returns every record of kind.
func (db *DB) GetAll(kind models.Kind) ([]models.Record, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	conn, err := db.ready()
	if err != nil {
		return nil, err
	}
	return queryRecords(conn, kind, "")
}

// GetByIndex returns the records of kind whose indexed column equals value.
func (db *DB) GetByIndex(kind models.Kind, idx Index, value string) ([]models.Record, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if !validIndex(idx) {
		return nil, fmt.Errorf("unknown index: %q", idx)
	}
	conn, err := db.ready()
	if err != nil {
		return nil, err
	}
	return queryRecords(conn, kind, string(idx)+" = ?", value)
}

// Delete removes the record with the given local id. Deleting a missing
// record is not an error.
func (db *DB) Delete(kind models.Kind, localID string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	return db.withWriteLock(func(conn *sql.DB) error {
		if _, err := conn.Exec(fmt.Sprintf("DELETE FROM %s WHERE local_id = ?", kind), localID); err != nil {
			return fmt.Errorf("delete %s %s: %w", kind, localID, err)
		}
		return nil
	})
}

// DeleteTree removes a record, all of its descendants, and any queued
// mutations for the descendants. Queue items for the root record itself are
// left to the caller. It returns the number of descendants removed.
func (db *DB) DeleteTree(kind models.Kind, localID string) (int, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	var removed int
	err := db.withTx(func(tx *sql.Tx) error {
		n, err := deleteChildren(tx, kind, localID)
		if err != nil {
			return err
		}
		removed = n
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE local_id = ?", kind), localID); err != nil {
			return fmt.Errorf("delete %s %s: %w", kind, localID, err)
		}
		return nil
	})
	return removed, err
}

func deleteChildren(tx *sql.Tx, kind models.Kind, localID string) (int, error) {
	var removed int
	for _, child := range kind.Children() {
		rows, err := tx.Query(fmt.Sprintf("SELECT local_id FROM %s WHERE parent_local_id = ?", child), localID)
		if err != nil {
			return removed, fmt.Errorf("list %s: %w", child, err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return removed, err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return removed, err
		}

		for _, id := range ids {
			n, err := deleteChildren(tx, child, id)
			if err != nil {
				return removed, err
			}
			removed += n
			if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE local_id = ?", child), id); err != nil {
				return removed, fmt.Errorf("delete %s %s: %w", child, id, err)
			}
			if _, err := tx.Exec(`DELETE FROM sync_queue WHERE kind = ? AND local_id = ?`, string(child), id); err != nil {
				return removed, fmt.Errorf("purge queue for %s %s: %w", child, id, err)
			}
			removed++
		}
	}
	return removed, nil
}

// AssignServerID replaces a record's local token with the id the server
// issued, marks it synced and points its children at the new id, all in one
// transaction. A record that already carries a server id is left alone.
func (db *DB) AssignServerID(kind models.Kind, localID, serverID string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if serverID == "" || IsLocalOnly(serverID) {
		return fmt.Errorf("assign %s %s: invalid server id %q", kind, localID, serverID)
	}
	return db.withTx(func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRow(fmt.Sprintf("SELECT id FROM %s WHERE local_id = ?", kind), localID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			// Deleted locally while the create was in flight.
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s %s: %w", kind, localID, err)
		}
		if !IsLocalOnly(current) && current != serverID {
			return nil
		}

		if _, err := tx.Exec(fmt.Sprintf("UPDATE %s SET id = ?, synced = 1, last_modified = ? WHERE local_id = ?", kind),
			serverID, db.Now().UnixNano(), localID); err != nil {
			return fmt.Errorf("assign %s %s: %w", kind, localID, err)
		}
		for _, child := range kind.Children() {
			if _, err := tx.Exec(fmt.Sprintf("UPDATE %s SET parent_id = ? WHERE parent_local_id = ?", child), serverID, localID); err != nil {
				return fmt.Errorf("relink %s under %s: %w", child, localID, err)
			}
		}
		return nil
	})
}

// MarkSynced sets synced on a record unless newer mutations for it are still
// queued.
func (db *DB) MarkSynced(kind models.Kind, localID string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	return db.withWriteLock(func(conn *sql.DB) error {
		_, err := conn.Exec(fmt.Sprintf(`
			UPDATE %s SET synced = 1
			WHERE local_id = ?
			AND NOT EXISTS (SELECT 1 FROM sync_queue WHERE kind = ? AND local_id = ?)
		`, kind), localID, string(kind), localID)
		if err != nil {
			return fmt.Errorf("mark synced %s %s: %w", kind, localID, err)
		}
		return nil
	})
}

// ApplyRemote stores a record downloaded from the server, matched by its
// server id. A matching local record that is not synced is left untouched and
// false is returned. New records take the server id as their local id.
// Records with a queued delete, and children whose parent is not stored,
// are skipped so local deletes are not undone by a download.
func (db *DB) ApplyRemote(rec models.Record) (bool, error) {
	ident := rec.Ident()
	if ident.ID == "" {
		return false, fmt.Errorf("apply %s: missing server id", rec.Kind())
	}
	applied := false
	err := db.withTx(func(tx *sql.Tx) error {
		var pending int
		if err := tx.QueryRow(`
			SELECT COUNT(*) FROM sync_queue
			WHERE kind = ? AND op = ? AND json_extract(data, '$.id') = ?
		`, string(rec.Kind()), string(models.OpDelete), ident.ID).Scan(&pending); err != nil {
			return fmt.Errorf("check pending delete %s %s: %w", rec.Kind(), ident.ID, err)
		}
		if pending > 0 {
			return nil
		}
		if parent := rec.Kind().Parent(); parent != "" {
			var n int
			if err := tx.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE local_id = ?", parent), rec.ParentLocalID()).
				Scan(&n); err != nil {
				return fmt.Errorf("check parent of %s %s: %w", rec.Kind(), ident.ID, err)
			}
			if n == 0 {
				return nil
			}
		}

		var localID string
		var synced int
		err := tx.QueryRow(fmt.Sprintf("SELECT local_id, synced FROM %s WHERE id = ? LIMIT 1", rec.Kind()), ident.ID).
			Scan(&localID, &synced)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			localID = ident.ID
		case err != nil:
			return fmt.Errorf("match %s %s: %w", rec.Kind(), ident.ID, err)
		case synced == 0:
			return nil
		}
		ident.LocalID = localID
		ident.Synced = true
		ident.LastModified = db.Now()
		if err := putRecord(tx, rec); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// PruneSynced removes synced records of kind that the server no longer
// returns, together with their descendants. keep holds the server ids of a
// complete result fetched at before; records synced after that are kept.
// When parentID is set only that parent's children are considered. Records
// with unsynced changes or a local token are kept. It returns the number of
// records removed, descendants included.
func (db *DB) PruneSynced(kind models.Kind, parentID string, keep []string, before time.Time) (int, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var removed int
	err := db.withTx(func(tx *sql.Tx) error {
		where := fmt.Sprintf("synced = 1 AND last_modified < ? AND id NOT LIKE '%s' ESCAPE '\\'", localIDPattern)
		args := []any{before.UnixNano()}
		if parentID != "" {
			where += " AND parent_id = ?"
			args = append(args, parentID)
		}
		rows, err := tx.Query(fmt.Sprintf("SELECT local_id, id FROM %s WHERE %s", kind, where), args...)
		if err != nil {
			return fmt.Errorf("list synced %s: %w", kind, err)
		}
		var stale []string
		for rows.Next() {
			var localID, id string
			if err := rows.Scan(&localID, &id); err != nil {
				rows.Close()
				return err
			}
			if !kept[id] {
				stale = append(stale, localID)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, localID := range stale {
			n, err := deleteChildren(tx, kind, localID)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE local_id = ?", kind), localID); err != nil {
				return fmt.Errorf("prune %s %s: %w", kind, localID, err)
			}
			if _, err := tx.Exec(`DELETE FROM sync_queue WHERE kind = ? AND local_id = ?`, string(kind), localID); err != nil {
				return fmt.Errorf("purge queue for %s %s: %w", kind, localID, err)
			}
			removed += n + 1
		}
		return nil
	})
	return removed, err
}

// ResolveParentLocalID maps a parent server id to the parent's local id.
// Parents not in the store map to the server id itself, which is the local
// id they receive when downloaded.
func (db *DB) ResolveParentLocalID(parent models.Kind, serverID string) (string, error) {
	recs, err := db.GetByIndex(parent, IndexID, serverID)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return serverID, nil
	}
	return recs[0].Ident().LocalID, nil
}

// RiverWalks returns every river walk, newest date first.
func (db *DB) RiverWalks() ([]*models.RiverWalk, error) {
	recs, err := db.GetAll(models.KindRiverWalk)
	if err != nil {
		return nil, err
	}
	walks := make([]*models.RiverWalk, 0, len(recs))
	for _, r := range recs {
		walks = append(walks, r.(*models.RiverWalk))
	}
	sort.SliceStable(walks, func(i, j int) bool { return walks[i].Date > walks[j].Date })
	return walks, nil
}

// SitesForWalk returns a walk's sites ordered by site number.
func (db *DB) SitesForWalk(walkLocalID string) ([]*models.Site, error) {
	recs, err := db.GetByIndex(models.KindSite, IndexParentLocalID, walkLocalID)
	if err != nil {
		return nil, err
	}
	sites := make([]*models.Site, 0, len(recs))
	for _, r := range recs {
		sites = append(sites, r.(*models.Site))
	}
	sort.SliceStable(sites, func(i, j int) bool { return sites[i].SiteNumber < sites[j].SiteNumber })
	return sites, nil
}

// PointsForSite returns a site's measurement points ordered by point number.
func (db *DB) PointsForSite(siteLocalID string) ([]*models.MeasurementPoint, error) {
	recs, err := db.GetByIndex(models.KindMeasurementPoint, IndexParentLocalID, siteLocalID)
	if err != nil {
		return nil, err
	}
	points := make([]*models.MeasurementPoint, 0, len(recs))
	for _, r := range recs {
		points = append(points, r.(*models.MeasurementPoint))
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].PointNumber < points[j].PointNumber })
	return points, nil
}

// PhotosForSite returns a site's photos.
func (db *DB) PhotosForSite(siteLocalID string) ([]*models.Photo, error) {
	recs, err := db.GetByIndex(models.KindPhoto, IndexParentLocalID, siteLocalID)
	if err != nil {
		return nil, err
	}
	photos := make([]*models.Photo, 0, len(recs))
	for _, r := range recs {
		photos = append(photos, r.(*models.Photo))
	}
	return photos, nil
}

// KindStats counts stored records of one kind.
type KindStats struct {
	Kind     models.Kind
	Total    int
	Unsynced int
}

// Stats returns record counts per kind, parents first.
func (db *DB) Stats() ([]KindStats, error) {
	conn, err := db.ready()
	if err != nil {
		return nil, err
	}
	var out []KindStats
	for _, kind := range models.Kinds() {
		s := KindStats{Kind: kind}
		err := conn.QueryRow(fmt.Sprintf("SELECT COUNT(*), COALESCE(SUM(synced = 0), 0) FROM %s", kind)).
			Scan(&s.Total, &s.Unsynced)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", kind, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
