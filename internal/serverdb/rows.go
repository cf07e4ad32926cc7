package serverdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/riverwalk/internal/models"
)

var (
	// ErrUnknownTable means the table is not a record table.
	ErrUnknownTable = errors.New("unknown table")
	// ErrRowNotFound means no row with that id belongs to the user.
	ErrRowNotFound = errors.New("row not found")
	// ErrInvalidRow means the row failed validation.
	ErrInvalidRow = errors.New("invalid row")
)

// MaxSelectLimit caps the rows a single select returns.
const MaxSelectLimit = 10000

// Row is one record row as exchanged with clients.
type Row = map[string]any

// Filter is an equality condition on one column.
type Filter struct {
	Column string
	Value  string
}

// Query selects rows of one table.
type Query struct {
	Filters []Filter
	Order   string
	Desc    bool
	Limit   int
}

// reservedColumns are managed by the server and never stored in data.
var reservedColumns = map[string]bool{
	"id":         true,
	"user_id":    true,
	"created_at": true,
	"updated_at": true,
}

var columnNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// validColumnName reports whether name is safe to interpolate as a column or
// JSON path.
func validColumnName(name string) bool {
	return columnNameRe.MatchString(name)
}

func checkTable(table models.Kind) error {
	if !models.IsValidKind(table) {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return nil
}

// parentColumn returns the parent reference column of table, or "".
func parentColumn(table models.Kind) string {
	_, col := table.ParentColumns()
	return col
}

// columnExpr maps a client column to SQL. Real columns are used directly,
// anything else is read from the data document.
func columnExpr(table models.Kind, col string) string {
	if reservedColumns[col] || col == parentColumn(table) {
		return col
	}
	return fmt.Sprintf("json_extract(data, '$.%s')", col)
}

// filterExpr is like columnExpr but renders JSON values as the text a client
// would send, so booleans compare as "true"/"false".
func filterExpr(table models.Kind, col string) string {
	if reservedColumns[col] || col == parentColumn(table) {
		return col
	}
	return fmt.Sprintf(
		"(CASE json_type(data, '$.%[1]s') WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' ELSE CAST(json_extract(data, '$.%[1]s') AS TEXT) END)",
		col)
}

// splitRow separates the parent reference from the fields kept in data.
func splitRow(table models.Kind, row Row) (parentID string, doc Row, err error) {
	doc = make(Row, len(row))
	pcol := parentColumn(table)
	for k, v := range row {
		if !validColumnName(k) {
			return "", nil, fmt.Errorf("%w: invalid column %q", ErrInvalidRow, k)
		}
		switch {
		case reservedColumns[k]:
		case k == pcol:
			s, ok := v.(string)
			if !ok {
				return "", nil, fmt.Errorf("%w: %s must be a string", ErrInvalidRow, k)
			}
			parentID = s
		default:
			doc[k] = v
		}
	}
	return parentID, doc, nil
}

// checkParent verifies that parentID names a row of the parent table owned
// by userID.
func (db *ServerDB) checkParent(userID string, table models.Kind, parentID string) error {
	parent := table.Parent()
	if parent == "" {
		return nil
	}
	col := parentColumn(table)
	if parentID == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidRow, col)
	}
	var one int
	err := db.conn.QueryRow(
		fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ? AND user_id = ?`, parent), parentID, userID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s references unknown %s %q", ErrInvalidRow, col, parent.Singular(), parentID)
	}
	if err != nil {
		return fmt.Errorf("check parent: %w", err)
	}
	return nil
}

// InsertRow stores a new row for userID and returns it with its server id.
// A client-supplied id is kept only if it is a UUID.
func (db *ServerDB) InsertRow(userID string, table models.Kind, row Row) (Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	id, _ := row["id"].(string)
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: id %q is not a server id", ErrInvalidRow, id)
	}
	parentID, doc, err := splitRow(table, row)
	if err != nil {
		return nil, err
	}
	if err := db.checkParent(userID, table, parentID); err != nil {
		return nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}

	now := time.Now().UTC()
	if pcol := parentColumn(table); pcol != "" {
		_, err = db.conn.Exec(
			fmt.Sprintf(`INSERT INTO %s (id, user_id, %s, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`, table, pcol),
			id, userID, parentID, string(data), now, now,
		)
	} else {
		_, err = db.conn.Exec(
			fmt.Sprintf(`INSERT INTO %s (id, user_id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`, table),
			id, userID, string(data), now, now,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return db.GetRow(userID, table, id)
}

// UpdateRow merges patch into the row's fields. Fields absent from patch are
// kept.
func (db *ServerDB) UpdateRow(userID string, table models.Kind, id string, patch Row) (Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	current, err := db.GetRow(userID, table, id)
	if err != nil {
		return nil, err
	}
	pcol := parentColumn(table)
	parentID, doc, err := splitRow(table, patch)
	if err != nil {
		return nil, err
	}
	if pcol != "" {
		if parentID == "" {
			parentID, _ = current[pcol].(string)
		} else if err := db.checkParent(userID, table, parentID); err != nil {
			return nil, err
		}
	}
	_, merged, err := splitRow(table, current)
	if err != nil {
		return nil, err
	}
	for k, v := range doc {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}

	now := time.Now().UTC()
	if pcol != "" {
		_, err = db.conn.Exec(
			fmt.Sprintf(`UPDATE %s SET %s = ?, data = ?, updated_at = ? WHERE id = ? AND user_id = ?`, table, pcol),
			parentID, string(data), now, id, userID,
		)
	} else {
		_, err = db.conn.Exec(
			fmt.Sprintf(`UPDATE %s SET data = ?, updated_at = ? WHERE id = ? AND user_id = ?`, table),
			string(data), now, id, userID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	return db.GetRow(userID, table, id)
}

// DeleteRow removes a row. Child rows are removed by the foreign key
// cascade.
func (db *ServerDB) DeleteRow(userID string, table models.Kind, id string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	res, err := db.conn.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND user_id = ?`, table), id, userID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrRowNotFound, table, id)
	}
	return nil
}

// GetRow returns one row owned by userID.
func (db *ServerDB) GetRow(userID string, table models.Kind, id string) (Row, error) {
	rows, err := db.SelectRows(userID, table, Query{Filters: []Filter{{Column: "id", Value: id}}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrRowNotFound, table, id)
	}
	return rows[0], nil
}

// SelectRows returns userID's rows of table matching q. Without an order,
// rows come back in insertion order.
func (db *ServerDB) SelectRows(userID string, table models.Kind, q Query) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	pcol := parentColumn(table)
	cols := "id, user_id, data, created_at, updated_at"
	if pcol != "" {
		cols += ", " + pcol
	}

	where := []string{"user_id = ?"}
	args := []any{userID}
	for _, f := range q.Filters {
		if !validColumnName(f.Column) {
			return nil, fmt.Errorf("%w: invalid filter column %q", ErrInvalidRow, f.Column)
		}
		where = append(where, filterExpr(table, f.Column)+" = ?")
		args = append(args, f.Value)
	}

	order := "created_at, rowid"
	if q.Order != "" {
		if !validColumnName(q.Order) {
			return nil, fmt.Errorf("%w: invalid order column %q", ErrInvalidRow, q.Order)
		}
		order = columnExpr(table, q.Order)
		if q.Desc {
			order += " DESC"
		}
		order += ", rowid"
	}
	limit := q.Limit
	if limit <= 0 || limit > MaxSelectLimit {
		limit = MaxSelectLimit
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT %d`,
		cols, table, strings.Join(where, " AND "), order, limit)
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			id, owner, data      string
			createdAt, updatedAt time.Time
			parentID             sql.NullString
		)
		dest := []any{&id, &owner, &data, &createdAt, &updatedAt}
		if pcol != "" {
			dest = append(dest, &parentID)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := Row{}
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", table, id, err)
		}
		row["id"] = id
		row["user_id"] = owner
		row["created_at"] = createdAt.UTC().Format(time.RFC3339Nano)
		row["updated_at"] = updatedAt.UTC().Format(time.RFC3339Nano)
		if pcol != "" {
			row[pcol] = parentID.String
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: iterate: %w", table, err)
	}
	return out, nil
}

// CountRows returns the number of rows per table, across all users.
func (db *ServerDB) CountRows() (map[models.Kind]int64, error) {
	counts := make(map[models.Kind]int64)
	for _, k := range models.Kinds() {
		var n int64
		if err := db.conn.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, k)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", k, err)
		}
		counts[k] = n
	}
	return counts, nil
}
