package syncclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marcus/riverwalk/internal/backend"
	"github.com/marcus/riverwalk/internal/models"
)

func TestSelectBuildsQuery(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]map[string]any{{"id": "s1", "site_number": 2}})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "rw_live_key", time.Second)
	rows, err := c.Select(context.Background(), models.KindSite, backend.Query{
		Filters: []backend.Filter{backend.Eq("river_walk_id", "w1")},
		Order:   "site_number.desc",
		Limit:   10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || backend.RowID(rows[0]) != "s1" {
		t.Fatalf("rows = %v", rows)
	}
	if gotPath != "/v1/tables/sites" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "eq.river_walk_id=w1&limit=10&order=site_number.desc" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotAuth != "Bearer rw_live_key" {
		t.Errorf("auth = %q", gotAuth)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, backend.ErrUnauthorized},
		{http.StatusNotFound, backend.ErrNotFound},
		{http.StatusBadRequest, backend.ErrRejected},
		{http.StatusForbidden, backend.ErrRejected},
		{http.StatusTooManyRequests, backend.ErrRejected},
		{http.StatusInternalServerError, backend.ErrRejected},
	}
	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"error":{"code":"x","message":"nope"}}`))
		}))
		c := New(srv.URL, "k", time.Second)
		_, err := c.Insert(context.Background(), models.KindRiverWalk, backend.Row{"name": "w"})
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.want)
		}
		srv.Close()
	}
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, "k", time.Second)
	err := c.Delete(context.Background(), models.KindSite, "abc")
	if !errors.Is(err, backend.ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if _, err := c.HealthCheck(context.Background()); !errors.Is(err, backend.ErrUnreachable) {
		t.Fatalf("health err = %v", err)
	}
}

func TestUploadPhoto(t *testing.T) {
	payload := []byte("\xff\xd8\xff\xe0jpeg")
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/v1/photos" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"url": "http://x/v1/photos/k.jpg", "key": "k.jpg"})
	}))
	defer srv.Close()

	c := New(srv.URL, "k", time.Second)
	url, err := c.UploadPhoto(context.Background(), "site-1", payload, "u_1", models.PhotoSediment)
	if err != nil {
		t.Fatal(err)
	}
	if url != "http://x/v1/photos/k.jpg" {
		t.Errorf("url = %q", url)
	}
	if got["related_id"] != "site-1" || got["kind"] != "sediment_photo" || got["owner_id"] != "u_1" {
		t.Errorf("request = %v", got)
	}
	if got["content_type"] != "image/jpeg" {
		t.Errorf("content_type = %q", got["content_type"])
	}
	if dec, _ := base64.StdEncoding.DecodeString(got["data"]); string(dec) != string(payload) {
		t.Errorf("data round trip = %q", dec)
	}
}

func TestMeAndSignup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth/signup":
			if r.Header.Get("Authorization") != "" {
				t.Error("signup sent an api key")
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(SignupResponse{APIKey: "rw_live_new", UserID: "u_9", Email: "a@b.c"})
		case "/v1/me":
			json.NewEncoder(w).Encode(MeResponse{UserID: "u_9", Email: "a@b.c", Scopes: []string{"sync"}})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	su, err := c.Signup(context.Background(), "a@b.c")
	if err != nil || su.APIKey != "rw_live_new" {
		t.Fatalf("signup = %+v, %v", su, err)
	}
	c.APIKey = su.APIKey
	me, err := c.Me(context.Background())
	if err != nil || me.UserID != "u_9" {
		t.Fatalf("me = %+v, %v", me, err)
	}
}
