package api

import (
	"net/http"
	"net/mail"
	"strings"
)

// signupRequest is the JSON body for POST /v1/auth/signup.
type signupRequest struct {
	Email   string `json:"email"`
	KeyName string `json:"key_name"`
}

// signupResponse is the JSON response for POST /v1/auth/signup.
type signupResponse struct {
	APIKey string `json:"api_key"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// meResponse is the JSON response for GET /v1/me.
type meResponse struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	KeyID  string   `json:"key_id"`
	Scopes []string `json:"scopes"`
}

// handleSignup handles POST /v1/auth/signup. It creates the account and
// returns its first API key; the plaintext key is only ever shown here.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.config.AllowSignup {
		writeError(w, http.StatusForbidden, ErrCodeSignupDisabled, "signups are disabled")
		return
	}

	var req signupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "valid email is required")
		return
	}

	existing, err := s.store.GetUserByEmail(req.Email)
	if err != nil {
		logFor(r.Context()).Error("check user for signup", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to check user")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, "account already exists")
		return
	}

	user, err := s.store.CreateUser(req.Email)
	if err != nil {
		logFor(r.Context()).Error("create user", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create user")
		return
	}

	name := req.KeyName
	if name == "" {
		name = "rwalk"
	}
	key, _, err := s.store.GenerateAPIKey(user.ID, name, "sync", nil)
	if err != nil {
		logFor(r.Context()).Error("generate api key", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to generate api key")
		return
	}

	logFor(r.Context()).Info("signup", "uid", user.ID, "ip", clientIP(r))
	writeJSON(w, http.StatusCreated, signupResponse{
		APIKey: key,
		UserID: user.ID,
		Email:  user.Email,
	})
}

// handleMe handles GET /v1/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		UserID: user.UserID,
		Email:  user.Email,
		KeyID:  user.KeyID,
		Scopes: user.Scopes,
	})
}
