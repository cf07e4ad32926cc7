package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/marcus/riverwalk/internal/serverdb"
)

func TestWriteStoreError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"missing row", fmt.Errorf("site srv-1: %w", serverdb.ErrRowNotFound), http.StatusNotFound, ErrCodeNotFound, "site srv-1"},
		{"invalid row", fmt.Errorf("%w: site_number must be a number", serverdb.ErrInvalidRow), http.StatusBadRequest, ErrCodeInvalidRow, "site_number"},
		{"unknown table", serverdb.ErrUnknownTable, http.StatusNotFound, ErrCodeUnknownTable, ""},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal, "insert row failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeStoreError(w, httptest.NewRequest("POST", "/v1/tables/sites", nil), "insert row", tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error.Code != tt.wantCode || !strings.Contains(resp.Error.Message, tt.wantMsg) {
				t.Errorf("error = %+v", resp.Error)
			}
			if strings.Contains(resp.Error.Message, "disk on fire") {
				t.Error("internal error text leaked to the client")
			}
		})
	}
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		limit      int64
		wantOK     bool
		wantStatus int
	}{
		{"valid", `{"name":"Afon Glaslyn"}`, 1 << 10, true, http.StatusOK},
		{"malformed", `{"name":`, 1 << 10, false, http.StatusBadRequest},
		{"too large", `{"name":"` + strings.Repeat("x", 64) + `"}`, 16, false, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest("POST", "/v1/tables/river_walks", strings.NewReader(tt.body))
			r.Body = http.MaxBytesReader(w, r.Body, tt.limit)

			var v map[string]any
			if ok := decodeBody(w, r, &v); ok != tt.wantOK {
				t.Fatalf("decodeBody = %v, want %v", ok, tt.wantOK)
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
