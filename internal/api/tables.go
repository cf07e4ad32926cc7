package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/marcus/riverwalk/internal/models"
	"github.com/marcus/riverwalk/internal/serverdb"
)

// tableFromPath resolves the {table} path value, writing a 404 when it does
// not name a record table.
func tableFromPath(w http.ResponseWriter, r *http.Request) (models.Kind, bool) {
	table := models.Kind(r.PathValue("table"))
	if !models.IsValidKind(table) {
		writeError(w, http.StatusNotFound, ErrCodeUnknownTable, "unknown table "+string(table))
		return "", false
	}
	return table, true
}

func decodeRow(w http.ResponseWriter, r *http.Request) (serverdb.Row, bool) {
	var row serverdb.Row
	if !decodeBody(w, r, &row) {
		return nil, false
	}
	if row == nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "row must be a json object")
		return nil, false
	}
	return row, true
}

// handleInsertRow handles POST /v1/tables/{table}.
func (s *Server) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	table, ok := tableFromPath(w, r)
	if !ok {
		return
	}
	row, ok := decodeRow(w, r)
	if !ok {
		return
	}
	user := getUserFromContext(r.Context())
	out, err := s.store.InsertRow(user.UserID, table, row)
	if err != nil {
		writeStoreError(w, r, "insert row", err)
		return
	}
	s.metrics.RecordRowsWritten(1)
	logFor(r.Context()).Debug("row inserted", "table", table, "id", out["id"])
	writeJSON(w, http.StatusCreated, out)
}

// handleUpdateRow handles PATCH /v1/tables/{table}/{id}.
func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	table, ok := tableFromPath(w, r)
	if !ok {
		return
	}
	row, ok := decodeRow(w, r)
	if !ok {
		return
	}
	user := getUserFromContext(r.Context())
	out, err := s.store.UpdateRow(user.UserID, table, r.PathValue("id"), row)
	if err != nil {
		writeStoreError(w, r, "update row", err)
		return
	}
	s.metrics.RecordRowsWritten(1)
	writeJSON(w, http.StatusOK, out)
}

// handleDeleteRow handles DELETE /v1/tables/{table}/{id}.
func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	table, ok := tableFromPath(w, r)
	if !ok {
		return
	}
	user := getUserFromContext(r.Context())
	if err := s.store.DeleteRow(user.UserID, table, r.PathValue("id")); err != nil {
		writeStoreError(w, r, "delete row", err)
		return
	}
	s.metrics.RecordRowsWritten(1)
	w.WriteHeader(http.StatusNoContent)
}

// handleSelectRows handles GET /v1/tables/{table}. Filters are passed as
// eq.<column>=<value>; order=<column>[.desc]; limit=<n>.
func (s *Server) handleSelectRows(w http.ResponseWriter, r *http.Request) {
	table, ok := tableFromPath(w, r)
	if !ok {
		return
	}
	q, err := parseSelectQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	user := getUserFromContext(r.Context())
	rows, err := s.store.SelectRows(user.UserID, table, q)
	if err != nil {
		writeStoreError(w, r, "select rows", err)
		return
	}
	if rows == nil {
		rows = []serverdb.Row{}
	}
	s.metrics.RecordRowsRead(int64(len(rows)))
	writeJSON(w, http.StatusOK, rows)
}

func parseSelectQuery(r *http.Request) (serverdb.Query, error) {
	var q serverdb.Query
	values := r.URL.Query()
	for key, vals := range values {
		col, ok := strings.CutPrefix(key, "eq.")
		if !ok {
			continue
		}
		for _, v := range vals {
			q.Filters = append(q.Filters, serverdb.Filter{Column: col, Value: v})
		}
	}
	if order := values.Get("order"); order != "" {
		col, desc := strings.CutSuffix(order, ".desc")
		q.Order = strings.TrimSuffix(col, ".asc")
		q.Desc = desc
	}
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, errors.New("limit must be a non-negative integer")
		}
		q.Limit = n
	}
	return q, nil
}
