package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/marcus/riverwalk/internal/serverdb"
)

// Error codes sent in error.code. The sync client keys off the HTTP status,
// so codes are for people and logs.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeInternal       = "internal"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeForbidden      = "forbidden"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeSignupDisabled = "signup_disabled"
	ErrCodeConflict       = "conflict"
	ErrCodeInvalidRow     = "invalid_row"
	ErrCodeUnknownTable   = "unknown_table"
	ErrCodeTooLarge       = "too_large"
)

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError as {"error": {...}}.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// storeErrors maps serverdb sentinels to a status and code. Anything else is
// an internal error.
var storeErrors = []struct {
	err    error
	status int
	code   string
}{
	{serverdb.ErrRowNotFound, http.StatusNotFound, ErrCodeNotFound},
	{serverdb.ErrInvalidRow, http.StatusBadRequest, ErrCodeInvalidRow},
	{serverdb.ErrUnknownTable, http.StatusNotFound, ErrCodeUnknownTable},
}

// writeStoreError reports a failed record operation. Unexpected errors are
// logged and only op is shown to the client.
func writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	for _, m := range storeErrors {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	logFor(r.Context()).Error(op, "err", err)
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, op+" failed")
}

// decodeBody reads a JSON request body into v, writing a 413 or 400 when it
// cannot.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
	} else {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
	}
	return false
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "status", status, "err", err)
	}
}
