package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowDeny(t *testing.T) {
	rl := &RateLimiter{buckets: make(map[string]*bucket)}

	// Should allow up to the limit
	for i := 0; i < 5; i++ {
		if !rl.Allow("k1", 5) {
			t.Fatalf("expected allow on request %d", i+1)
		}
	}

	// Should deny at the limit
	if rl.Allow("k1", 5) {
		t.Fatal("expected deny after limit reached")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := &RateLimiter{buckets: make(map[string]*bucket)}

	// Exhaust the limit
	for i := 0; i < 3; i++ {
		rl.Allow("k1", 3)
	}
	if rl.Allow("k1", 3) {
		t.Fatal("expected deny after limit")
	}

	// Simulate window expiry by backdating the bucket
	rl.mu.Lock()
	rl.buckets["k1"].windowAt = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()

	// Should allow again after window reset
	if !rl.Allow("k1", 3) {
		t.Fatal("expected allow after window reset")
	}
}

func TestRateLimiterKeyIsolation(t *testing.T) {
	rl := &RateLimiter{buckets: make(map[string]*bucket)}

	// Exhaust key1
	for i := 0; i < 2; i++ {
		rl.Allow("key1", 2)
	}
	if rl.Allow("key1", 2) {
		t.Fatal("expected key1 denied")
	}

	// key2 should still be allowed
	if !rl.Allow("key2", 2) {
		t.Fatal("expected key2 allowed")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := &RateLimiter{buckets: make(map[string]*bucket)}

	rl.Allow("stale", 10)
	rl.Allow("fresh", 10)

	// Backdate the stale entry
	rl.mu.Lock()
	rl.buckets["stale"].windowAt = time.Now().Add(-5 * time.Minute)
	rl.mu.Unlock()

	rl.cleanup()

	rl.mu.Lock()
	_, hasStale := rl.buckets["stale"]
	_, hasFresh := rl.buckets["fresh"]
	rl.mu.Unlock()

	if hasStale {
		t.Fatal("expected stale entry to be cleaned up")
	}
	if !hasFresh {
		t.Fatal("expected fresh entry to remain")
	}
}

func TestAuthRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter()
	const limit = 3

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := authRateLimitMiddleware(rl, limit)(inner)

	send := func(path, addr string) int {
		req := httptest.NewRequest("POST", path, nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < limit; i++ {
		if code := send("/v1/auth/signup", "1.2.3.4:1234"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, code)
		}
	}
	if code := send("/v1/auth/signup", "1.2.3.4:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	// Other IPs and non-auth paths are unaffected.
	if code := send("/v1/auth/signup", "10.0.0.2:5000"); code != http.StatusOK {
		t.Fatalf("different IP: expected 200, got %d", code)
	}
	if code := send("/healthz", "1.2.3.4:1234"); code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", code)
	}
}

func TestWithRateLimitIntegration(t *testing.T) {
	const limit = 5
	srv, store := newTestServerWithConfig(t, func(cfg *Config) {
		cfg.RateLimitWrite = limit
	})
	_, token := createTestUser(t, store, "ratelimit@test.com")

	for i := 0; i < limit; i++ {
		w := doRequest(srv, "POST", "/v1/tables/river_walks", token, map[string]any{"name": fmt.Sprintf("walk %d", i)})
		if w.Code != http.StatusCreated {
			t.Fatalf("insert %d: expected 201, got %d: %s", i+1, w.Code, w.Body.String())
		}
	}

	w := doRequest(srv, "POST", "/v1/tables/river_walks", token, map[string]any{"name": "overflow"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", w.Code, w.Body.String())
	}
	var resp ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error.Code != ErrCodeRateLimited {
		t.Errorf("error code = %q", resp.Error.Code)
	}

	// Reads have their own budget.
	w = doRequest(srv, "GET", "/v1/tables/river_walks", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("read after write limit: expected 200, got %d", w.Code)
	}
}

func TestClassifyEndpoint(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{"POST", "/v1/auth/signup", "auth"},
		{"GET", "/v1/tables/sites", "read"},
		{"POST", "/v1/tables/sites", "write"},
		{"DELETE", "/v1/tables/sites/abc", "write"},
		{"POST", "/v1/photos", "write"},
		{"GET", "/v1/photos/u/site_photo/a.jpg", "other"},
		{"GET", "/v1/me", "other"},
	}
	for _, tc := range tests {
		if got := classifyEndpoint(tc.method, tc.path); got != tc.want {
			t.Errorf("classifyEndpoint(%s %s) = %q, want %q", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Errorf("clientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("clientIP with XFF = %q", got)
	}
}
