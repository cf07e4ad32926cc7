package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// stubHandler is a simple handler that returns 200 OK.
var stubHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantOrigin string
		wantCode   int
	}{
		{"none configured", nil, "GET", "https://field.example.com", "", http.StatusOK},
		{"no origin header", []string{"https://field.example.com"}, "GET", "", "", http.StatusOK},
		{"allowed", []string{"https://field.example.com"}, "GET", "https://field.example.com", "https://field.example.com", http.StatusOK},
		{"disallowed", []string{"https://field.example.com"}, "GET", "https://evil.com", "", http.StatusOK},
		{"preflight", []string{"https://field.example.com"}, "OPTIONS", "https://field.example.com", "https://field.example.com", http.StatusNoContent},
		{"wildcard", []string{"*"}, "PATCH", "https://any.example.com", "https://any.example.com", http.StatusOK},
		{"second of many", []string{"https://one.example.com", "https://two.example.com"}, "GET", "https://two.example.com", "https://two.example.com", http.StatusOK},
		{"not in many", []string{"https://one.example.com", "https://two.example.com"}, "GET", "https://three.example.com", "", http.StatusOK},
		{"subdomain", []string{"https://*.rivers.example.org"}, "GET", "https://wye.rivers.example.org", "https://wye.rivers.example.org", http.StatusOK},
		{"subdomain wrong scheme", []string{"https://*.rivers.example.org"}, "GET", "http://wye.rivers.example.org", "", http.StatusOK},
		{"subdomain bare host", []string{"https://*.rivers.example.org"}, "GET", "https://rivers.example.org", "", http.StatusOK},
		{"subdomain lookalike", []string{"https://*.rivers.example.org"}, "GET", "https://evilrivers.example.org", "", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &Server{config: Config{CORSAllowedOrigins: tc.origins}}
			handler := s.CORSMiddleware(stubHandler)

			req := httptest.NewRequest(tc.method, "/v1/tables/sites", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tc.wantOrigin)
			}
			if tc.wantOrigin != "" {
				if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PATCH, DELETE, OPTIONS" {
					t.Errorf("Allow-Methods = %q", got)
				}
				if got := w.Header().Get("Vary"); got != "Origin" {
					t.Errorf("Vary = %q", got)
				}
				if got := w.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
					t.Errorf("Expose-Headers = %q", got)
				}
			}
		})
	}
}
