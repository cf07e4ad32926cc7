// Package syncclient is the HTTP client for rwalk-server. Client implements
// backend.Backend so the sync engine can drive it directly.
package syncclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/riverwalk/internal/backend"
	"github.com/marcus/riverwalk/internal/models"
)

// DefaultTimeout bounds each request when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

// Client is an HTTP client for the rwalk-server API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// New creates a new sync client.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

var _ backend.Backend = (*Client)(nil)

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// SignupResponse is the response from POST /v1/auth/signup.
type SignupResponse struct {
	APIKey string `json:"api_key"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// MeResponse is the response from GET /v1/me.
type MeResponse struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	KeyID  string   `json:"key_id"`
	Scopes []string `json:"scopes"`
}

type uploadPhotoRequest struct {
	RelatedID   string `json:"related_id"`
	Kind        string `json:"kind"`
	Data        string `json:"data"`
	ContentType string `json:"content_type,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
}

type uploadPhotoResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// HealthCheck checks server health.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doNoAuth(ctx, "GET", "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Signup creates an account and returns its first API key.
func (c *Client) Signup(ctx context.Context, email string) (*SignupResponse, error) {
	var resp SignupResponse
	if err := c.doNoAuth(ctx, "POST", "/v1/auth/signup", map[string]string{"email": email}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the account behind the client's API key.
func (c *Client) Me(ctx context.Context) (*MeResponse, error) {
	var resp MeResponse
	if err := c.do(ctx, "GET", "/v1/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func tablePath(table models.Kind) string {
	return "/v1/tables/" + url.PathEscape(string(table))
}

// Insert implements backend.Backend.
func (c *Client) Insert(ctx context.Context, table models.Kind, row backend.Row) (backend.Row, error) {
	var out backend.Row
	if err := c.do(ctx, "POST", tablePath(table), row, &out); err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return out, nil
}

// Update implements backend.Backend.
func (c *Client) Update(ctx context.Context, table models.Kind, id string, row backend.Row) (backend.Row, error) {
	var out backend.Row
	if err := c.do(ctx, "PATCH", tablePath(table)+"/"+url.PathEscape(id), row, &out); err != nil {
		return nil, fmt.Errorf("update %s %s: %w", table, id, err)
	}
	return out, nil
}

// Delete implements backend.Backend.
func (c *Client) Delete(ctx context.Context, table models.Kind, id string) error {
	if err := c.do(ctx, "DELETE", tablePath(table)+"/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	return nil
}

// Select implements backend.Backend.
func (c *Client) Select(ctx context.Context, table models.Kind, q backend.Query) ([]backend.Row, error) {
	params := url.Values{}
	for _, f := range q.Filters {
		params.Add("eq."+f.Column, f.Value)
	}
	if col, desc := q.OrderColumn(); col != "" {
		if desc {
			col += ".desc"
		}
		params.Set("order", col)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	path := tablePath(table)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var rows []backend.Row
	if err := c.do(ctx, "GET", path, nil, &rows); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return rows, nil
}

// UploadPhoto implements backend.Backend.
func (c *Client) UploadPhoto(ctx context.Context, relatedID string, data []byte, ownerID string, kind models.PhotoType) (string, error) {
	req := uploadPhotoRequest{
		RelatedID:   relatedID,
		Kind:        string(kind),
		Data:        base64.StdEncoding.EncodeToString(data),
		ContentType: http.DetectContentType(data),
		OwnerID:     ownerID,
	}
	var resp uploadPhotoResponse
	if err := c.do(ctx, "POST", "/v1/photos", req, &resp); err != nil {
		return "", fmt.Errorf("upload photo for %s: %w", relatedID, err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("upload photo for %s: %w: empty url", relatedID, backend.ErrRejected)
	}
	return resp.URL, nil
}

// FetchPhoto downloads a photo by the URL UploadPhoto returned.
func (c *Client) FetchPhoto(ctx context.Context, photoURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", photoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrUnreachable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", backend.ErrUnreachable, err)
	}
	if resp.StatusCode >= 400 {
		return nil, statusError(resp.StatusCode, body)
	}
	return body, nil
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// statusError maps an HTTP error status onto the backend sentinels.
func statusError(status int, body []byte) error {
	var wrapped struct {
		Error apiError `json:"error"`
	}
	detail := fmt.Sprintf("HTTP %d", status)
	if json.Unmarshal(body, &wrapped) == nil && wrapped.Error.Code != "" {
		detail = wrapped.Error.Error()
	} else if len(body) > 0 {
		detail = fmt.Sprintf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
	}

	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", backend.ErrUnauthorized, detail)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", backend.ErrNotFound, detail)
	default:
		return fmt.Errorf("%w: %s", backend.ErrRejected, detail)
	}
}

// do executes an authenticated HTTP request.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	return c.doRequest(ctx, method, path, body, result, true)
}

// doNoAuth executes an unauthenticated HTTP request.
func (c *Client) doNoAuth(ctx context.Context, method, path string, body, result any) error {
	return c.doRequest(ctx, method, path, body, result, false)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, auth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", backend.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", backend.ErrUnreachable, err)
	}

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: unmarshal response: %v", backend.ErrRejected, err)
		}
	}

	return nil
}
