// Package backendtest provides an in-memory backend.Backend with failure
// injection for tests.
package backendtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/marcus/riverwalk/internal/backend"
	"github.com/marcus/riverwalk/internal/models"
)

// Call records one backend invocation.
type Call struct {
	Method string
	Table  models.Kind
	ID     string
}

// Fake is an in-memory backend. Parent references are checked like foreign
// keys, so a row pointing at an unknown or local-only parent is rejected.
type Fake struct {
	mu     sync.Mutex
	tables map[models.Kind]map[string]backend.Row
	order  map[models.Kind][]string
	photos map[string][]byte

	down     bool
	failures map[string][]error
	calls    []Call
}

// New returns an empty fake backend.
func New() *Fake {
	return &Fake{
		tables:   make(map[models.Kind]map[string]backend.Row),
		order:    make(map[models.Kind][]string),
		photos:   make(map[string][]byte),
		failures: make(map[string][]error),
	}
}

// SetDown makes every call fail with backend.ErrUnreachable.
func (f *Fake) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// FailNext makes the next n calls of method ("Insert", "Update", "Delete",
// "Select", "UploadPhoto") on table fail with err. An empty table matches
// any table.
func (f *Fake) FailNext(method string, table models.Kind, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := failureKey(method, table)
	for i := 0; i < n; i++ {
		f.failures[key] = append(f.failures[key], err)
	}
}

func failureKey(method string, table models.Kind) string {
	return method + "/" + string(table)
}

// Calls returns the calls made so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount counts calls of method on table.
func (f *Fake) CallCount(method string, table models.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.Table == table {
			n++
		}
	}
	return n
}

// Rows returns a copy of every row in table, in insertion order.
func (f *Fake) Rows(table models.Kind) []backend.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []backend.Row
	for _, id := range f.order[table] {
		if row, ok := f.tables[table][id]; ok {
			out = append(out, copyRow(row))
		}
	}
	return out
}

// Row returns a copy of one row, or nil.
func (f *Fake) Row(table models.Kind, id string) backend.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.tables[table][id]; ok {
		return copyRow(row)
	}
	return nil
}

// Seed inserts a row as if another device had created it.
func (f *Fake) Seed(table models.Kind, row backend.Row) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	row = copyRow(row)
	id := backend.RowID(row)
	if id == "" {
		id = uuid.NewString()
		row["id"] = id
	}
	f.put(table, id, row)
	return id
}

// Photo returns an uploaded payload by URL.
func (f *Fake) Photo(url string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.photos[url]
	return data, ok
}

func (f *Fake) put(table models.Kind, id string, row backend.Row) {
	if f.tables[table] == nil {
		f.tables[table] = make(map[string]backend.Row)
	}
	if _, exists := f.tables[table][id]; !exists {
		f.order[table] = append(f.order[table], id)
	}
	f.tables[table][id] = row
}

// begin records the call and returns an injected failure, if any.
func (f *Fake) begin(method string, table models.Kind, id string) error {
	f.calls = append(f.calls, Call{Method: method, Table: table, ID: id})
	if f.down {
		return fmt.Errorf("%w: connection refused", backend.ErrUnreachable)
	}
	for _, key := range []string{failureKey(method, table), failureKey(method, "")} {
		if q := f.failures[key]; len(q) > 0 {
			f.failures[key] = q[1:]
			return q[0]
		}
	}
	return nil
}

func (f *Fake) checkParent(table models.Kind, row backend.Row) error {
	parent := table.Parent()
	if parent == "" {
		return nil
	}
	_, col := table.ParentColumns()
	pid, _ := row[col].(string)
	if pid == "" {
		return fmt.Errorf("%w: %s.%s is required", backend.ErrRejected, table, col)
	}
	if _, ok := f.tables[parent][pid]; !ok {
		return fmt.Errorf("%w: %s.%s references unknown %s %q", backend.ErrRejected, table, col, parent, pid)
	}
	return nil
}

func (f *Fake) Insert(ctx context.Context, table models.Kind, row backend.Row) (backend.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Insert", table, ""); err != nil {
		return nil, err
	}
	if err := f.checkParent(table, row); err != nil {
		return nil, err
	}
	if id := backend.RowID(row); strings.HasPrefix(id, "local_") {
		return nil, fmt.Errorf("%w: client id %q sent as server id", backend.ErrRejected, id)
	}
	stored := copyRow(row)
	id := uuid.NewString()
	stored["id"] = id
	f.put(table, id, stored)
	return copyRow(stored), nil
}

func (f *Fake) Update(ctx context.Context, table models.Kind, id string, row backend.Row) (backend.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Update", table, id); err != nil {
		return nil, err
	}
	existing, ok := f.tables[table][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", backend.ErrNotFound, table, id)
	}
	merged := copyRow(existing)
	for k, v := range row {
		merged[k] = v
	}
	merged["id"] = id
	if err := f.checkParent(table, merged); err != nil {
		return nil, err
	}
	f.tables[table][id] = merged
	return copyRow(merged), nil
}

func (f *Fake) Delete(ctx context.Context, table models.Kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Delete", table, id); err != nil {
		return err
	}
	if _, ok := f.tables[table][id]; !ok {
		return fmt.Errorf("%w: %s %s", backend.ErrNotFound, table, id)
	}
	f.cascade(table, id)
	return nil
}

func (f *Fake) cascade(table models.Kind, id string) {
	delete(f.tables[table], id)
	for _, child := range table.Children() {
		_, col := child.ParentColumns()
		for cid, row := range f.tables[child] {
			if pid, _ := row[col].(string); pid == id {
				f.cascade(child, cid)
			}
		}
	}
}

func (f *Fake) Select(ctx context.Context, table models.Kind, q backend.Query) ([]backend.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Select", table, ""); err != nil {
		return nil, err
	}
	var out []backend.Row
	for _, id := range f.order[table] {
		row, ok := f.tables[table][id]
		if !ok || !matches(row, q.Filters) {
			continue
		}
		out = append(out, copyRow(row))
	}
	if col, desc := q.OrderColumn(); col != "" {
		sort.SliceStable(out, func(i, j int) bool {
			less := fmt.Sprint(out[i][col]) < fmt.Sprint(out[j][col])
			if a, ok := out[i][col].(float64); ok {
				if b, ok := out[j][col].(float64); ok {
					less = a < b
				}
			}
			if desc {
				return !less
			}
			return less
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *Fake) UploadPhoto(ctx context.Context, relatedID string, data []byte, ownerID string, kind models.PhotoType) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UploadPhoto", models.KindPhoto, relatedID); err != nil {
		return "", err
	}
	if strings.HasPrefix(relatedID, "local_") {
		return "", fmt.Errorf("%w: photo owner %q is not a server id", backend.ErrRejected, relatedID)
	}
	url := fmt.Sprintf("mem://photos/%s/%s/%s", ownerID, kind, uuid.NewString())
	f.photos[url] = append([]byte(nil), data...)
	return url, nil
}

func matches(row backend.Row, filters []backend.Filter) bool {
	for _, flt := range filters {
		if fmt.Sprint(row[flt.Column]) != flt.Value {
			return false
		}
	}
	return true
}

func copyRow(row backend.Row) backend.Row {
	out := make(backend.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

var _ backend.Backend = (*Fake)(nil)
