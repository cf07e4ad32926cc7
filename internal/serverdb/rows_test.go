package serverdb

import (
	"errors"
	"testing"

	"github.com/marcus/riverwalk/internal/models"
)

func newUser(t *testing.T, db *ServerDB, email string) string {
	t.Helper()
	u, err := db.CreateUser(email)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func mustInsert(t *testing.T, db *ServerDB, userID string, table models.Kind, row Row) Row {
	t.Helper()
	out, err := db.InsertRow(userID, table, row)
	if err != nil {
		t.Fatalf("insert %s: %v", table, err)
	}
	return out
}

func TestInsertRowAssignsID(t *testing.T) {
	db := newTestDB(t)
	uid := newUser(t, db, "a@test.com")

	walk := mustInsert(t, db, uid, models.KindRiverWalk, Row{"name": "Test", "date": "2026-05-01", "user_id": "someone-else"})
	id, _ := walk["id"].(string)
	if id == "" {
		t.Fatal("no id assigned")
	}
	if walk["user_id"] != uid {
		t.Errorf("user_id = %v, want %s", walk["user_id"], uid)
	}
	if walk["name"] != "Test" {
		t.Errorf("name = %v", walk["name"])
	}
	if walk["created_at"] == "" || walk["updated_at"] == "" {
		t.Error("timestamps missing")
	}
}

func TestInsertRowRejectsLocalID(t *testing.T) {
	db := newTestDB(t)
	uid := newUser(t, db, "a@test.com")
	_, err := db.InsertRow(uid, models.KindRiverWalk, Row{"id": "local_abc_12345678", "name": "x"})
	if !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("err = %v, want ErrInvalidRow", err)
	}
}

func TestInsertRowChecksParent(t *testing.T) {
	db := newTestDB(t)
	alice := newUser(t, db, "alice@test.com")
	bob := newUser(t, db, "bob@test.com")
	walk := mustInsert(t, db, alice, models.KindRiverWalk, Row{"name": "Walk"})

	tests := []struct {
		name string
		user string
		row  Row
		ok   bool
	}{
		{"valid parent", alice, Row{"river_walk_id": walk["id"], "site_number": 1}, true},
		{"missing parent", alice, Row{"site_number": 1}, false},
		{"unknown parent", alice, Row{"river_walk_id": "nope", "site_number": 1}, false},
		{"other user's parent", bob, Row{"river_walk_id": walk["id"], "site_number": 1}, false},
		{"non-string parent", alice, Row{"river_walk_id": 7}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.InsertRow(tt.user, models.KindSite, tt.row)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidRow) {
				t.Fatalf("err = %v, want ErrInvalidRow", err)
			}
		})
	}
}

func TestUpdateRowMerges(t *testing.T) {
	db := newTestDB(t)
	uid := newUser(t, db, "a@test.com")
	walk := mustInsert(t, db, uid, models.KindRiverWalk, Row{"name": "Walk"})
	site := mustInsert(t, db, uid, models.KindSite, Row{
		"river_walk_id": walk["id"], "site_number": 3, "site_name": "Bridge",
	})
	id := site["id"].(string)

	got, err := db.UpdateRow(uid, models.KindSite, id, Row{"site_number": 2})
	if err != nil {
		t.Fatal(err)
	}
	if got["site_number"] != float64(2) || got["site_name"] != "Bridge" || got["river_walk_id"] != walk["id"] {
		t.Errorf("updated row = %v", got)
	}

	if _, err := db.UpdateRow(uid, models.KindSite, "missing", Row{}); !errors.Is(err, ErrRowNotFound) {
		t.Errorf("update missing = %v", err)
	}
	other := newUser(t, db, "b@test.com")
	if _, err := db.UpdateRow(other, models.KindSite, id, Row{"site_number": 9}); !errors.Is(err, ErrRowNotFound) {
		t.Errorf("update by other user = %v", err)
	}
}

func TestDeleteRowCascades(t *testing.T) {
	db := newTestDB(t)
	uid := newUser(t, db, "a@test.com")
	walk := mustInsert(t, db, uid, models.KindRiverWalk, Row{"name": "Walk"})
	site := mustInsert(t, db, uid, models.KindSite, Row{"river_walk_id": walk["id"]})
	mustInsert(t, db, uid, models.KindMeasurementPoint, Row{"site_id": site["id"], "depth": 0.4})
	mustInsert(t, db, uid, models.KindPhoto, Row{"site_id": site["id"], "type": "site_photo"})

	if err := db.DeleteRow(uid, models.KindRiverWalk, walk["id"].(string)); err != nil {
		t.Fatal(err)
	}
	counts, err := db.CountRows()
	if err != nil {
		t.Fatal(err)
	}
	for k, n := range counts {
		if n != 0 {
			t.Errorf("%s rows after cascade = %d", k, n)
		}
	}
	if err := db.DeleteRow(uid, models.KindRiverWalk, walk["id"].(string)); !errors.Is(err, ErrRowNotFound) {
		t.Errorf("second delete = %v", err)
	}
}

func TestSelectRows(t *testing.T) {
	db := newTestDB(t)
	alice := newUser(t, db, "alice@test.com")
	bob := newUser(t, db, "bob@test.com")
	walk := mustInsert(t, db, alice, models.KindRiverWalk, Row{"name": "Walk", "archived": false})
	mustInsert(t, db, alice, models.KindRiverWalk, Row{"name": "Old", "archived": true})
	mustInsert(t, db, bob, models.KindRiverWalk, Row{"name": "Bob's"})
	for _, n := range []int{2, 10, 1} {
		mustInsert(t, db, alice, models.KindSite, Row{"river_walk_id": walk["id"], "site_number": n})
	}

	walks, err := db.SelectRows(alice, models.KindRiverWalk, Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(walks) != 2 {
		t.Fatalf("alice walks = %d, want 2", len(walks))
	}

	archived, err := db.SelectRows(alice, models.KindRiverWalk, Query{Filters: []Filter{{Column: "archived", Value: "true"}}})
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) != 1 || archived[0]["name"] != "Old" {
		t.Errorf("archived = %v", archived)
	}

	sites, err := db.SelectRows(alice, models.KindSite, Query{
		Filters: []Filter{{Column: "river_walk_id", Value: walk["id"].(string)}},
		Order:   "site_number",
		Desc:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	var got []float64
	for _, s := range sites {
		got = append(got, s["site_number"].(float64))
	}
	if len(got) != 3 || got[0] != 10 || got[1] != 2 || got[2] != 1 {
		t.Errorf("site order = %v, want [10 2 1]", got)
	}

	numbered, err := db.SelectRows(alice, models.KindSite, Query{Filters: []Filter{{Column: "site_number", Value: "10"}}})
	if err != nil || len(numbered) != 1 {
		t.Errorf("filter by number = %d, %v", len(numbered), err)
	}

	limited, err := db.SelectRows(alice, models.KindSite, Query{Limit: 2})
	if err != nil || len(limited) != 2 {
		t.Errorf("limited = %d, %v", len(limited), err)
	}
}

func TestSelectRowsRejectsBadColumns(t *testing.T) {
	db := newTestDB(t)
	uid := newUser(t, db, "a@test.com")

	if _, err := db.SelectRows(uid, models.KindRiverWalk, Query{Order: "name; DROP TABLE users"}); !errors.Is(err, ErrInvalidRow) {
		t.Errorf("bad order = %v", err)
	}
	if _, err := db.SelectRows(uid, models.KindRiverWalk, Query{Filters: []Filter{{Column: "a') OR 1=1 --", Value: "x"}}}); !errors.Is(err, ErrInvalidRow) {
		t.Errorf("bad filter = %v", err)
	}
	if _, err := db.SelectRows(uid, "users", Query{}); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("unknown table = %v", err)
	}
	if _, err := db.InsertRow(uid, models.KindRiverWalk, Row{"Bad-Column": 1}); !errors.Is(err, ErrInvalidRow) {
		t.Errorf("bad insert column = %v", err)
	}
}

func TestPhotoObjects(t *testing.T) {
	db := newTestDB(t)
	uid := newUser(t, db, "a@test.com")

	if err := db.CreatePhotoObject(&PhotoObject{Key: "u/site_photo/1", UserID: uid, RelatedID: "s1", Kind: "site_photo", Size: 42}); err != nil {
		t.Fatal(err)
	}
	o, err := db.GetPhotoObject("u/site_photo/1")
	if err != nil || o == nil {
		t.Fatalf("GetPhotoObject = %v, %v", o, err)
	}
	if o.ContentType != "application/octet-stream" || o.Size != 42 || o.UserID != uid {
		t.Errorf("object = %+v", o)
	}
	missing, err := db.GetPhotoObject("nope")
	if err != nil || missing != nil {
		t.Errorf("missing object = %v, %v", missing, err)
	}
	n, size, err := db.PhotoObjectStats()
	if err != nil || n != 1 || size != 42 {
		t.Errorf("stats = %d, %d, %v", n, size, err)
	}
}
