package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Identity is the identity block shared by every synced record.
// ID starts out equal to LocalID and is replaced by the server id once,
// at the moment the record is marked synced.
type Identity struct {
	ID           string    `json:"id"`
	LocalID      string    `json:"local_id"`
	UserID       string    `json:"user_id,omitempty"`
	Synced       bool      `json:"synced"`
	LastModified time.Time `json:"last_modified"`
}

// Ident returns the identity block itself.
func (i *Identity) Ident() *Identity { return i }

// Record is implemented by every entity stored in the local store.
type Record interface {
	Kind() Kind
	Ident() *Identity
	// ParentLocalID and ParentID return the parent reference by local and
	// server id. Both are empty for river walks.
	ParentLocalID() string
	ParentID() string
	SetParentLocalID(localID string)
	SetParentID(id string)
}

// RiverWalk is a single fieldwork outing.
type RiverWalk struct {
	Identity
	Name     string `json:"name"`
	Date     string `json:"date"` // YYYY-MM-DD
	Country  string `json:"country,omitempty"`
	County   string `json:"county,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Archived bool   `json:"archived"`
}

func (*RiverWalk) Kind() Kind              { return KindRiverWalk }
func (*RiverWalk) ParentLocalID() string   { return "" }
func (*RiverWalk) ParentID() string        { return "" }
func (*RiverWalk) SetParentLocalID(string) {}
func (*RiverWalk) SetParentID(string)      {}

// Velocity holds float timings over a measured distance.
type Velocity struct {
	FloatDistance float64   `json:"float_distance"` // metres
	Times         []float64 `json:"times"`          // seconds per run
}

// Mean returns the mean surface velocity in m/s, or 0 without usable runs.
func (v *Velocity) Mean() float64 {
	if v == nil || v.FloatDistance <= 0 {
		return 0
	}
	var sum float64
	var n int
	for _, t := range v.Times {
		if t > 0 {
			sum += v.FloatDistance / t
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// SedimentSample is one pebble measurement.
type SedimentSample struct {
	Size      float64 `json:"size"`      // mm along the long axis
	Roundness int     `json:"roundness"` // Powers scale 1 (very angular) .. 6 (well rounded)
}

// Site is a measurement location along a river walk.
type Site struct {
	Identity
	RiverWalkLocalID string           `json:"river_walk_local_id"`
	RiverWalkID      string           `json:"river_walk_id,omitempty"`
	SiteNumber       int              `json:"site_number"`
	SiteName         string           `json:"site_name,omitempty"`
	RiverWidth       float64          `json:"river_width,omitempty"`
	Latitude         *float64         `json:"latitude,omitempty"`
	Longitude        *float64         `json:"longitude,omitempty"`
	Weather          string           `json:"weather,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	Velocity         *Velocity        `json:"velocity,omitempty"`
	Sediment         []SedimentSample `json:"sediment,omitempty"`
}

func (*Site) Kind() Kind                        { return KindSite }
func (s *Site) ParentLocalID() string           { return s.RiverWalkLocalID }
func (s *Site) ParentID() string                { return s.RiverWalkID }
func (s *Site) SetParentLocalID(localID string) { s.RiverWalkLocalID = localID }
func (s *Site) SetParentID(id string)           { s.RiverWalkID = id }

// MeasurementPoint is one depth reading across a site's cross-section.
type MeasurementPoint struct {
	Identity
	SiteLocalID      string  `json:"site_local_id"`
	SiteID           string  `json:"site_id,omitempty"`
	PointNumber      int     `json:"point_number"`
	DistanceFromBank float64 `json:"distance_from_bank"`
	Depth            float64 `json:"depth"`
}

func (*MeasurementPoint) Kind() Kind                        { return KindMeasurementPoint }
func (p *MeasurementPoint) ParentLocalID() string           { return p.SiteLocalID }
func (p *MeasurementPoint) ParentID() string                { return p.SiteID }
func (p *MeasurementPoint) SetParentLocalID(localID string) { p.SiteLocalID = localID }
func (p *MeasurementPoint) SetParentID(id string)           { p.SiteID = id }

// PhotoType tags what a photo shows.
type PhotoType string

const (
	PhotoSite     PhotoType = "site_photo"
	PhotoSediment PhotoType = "sediment_photo"
)

// IsValidPhotoType reports whether t is a known photo type.
func IsValidPhotoType(t PhotoType) bool {
	return t == PhotoSite || t == PhotoSediment
}

// Photo is an image attached to a site. Data is persisted outside the JSON
// document and is never sent as a table row.
type Photo struct {
	Identity
	SiteLocalID string    `json:"site_local_id"`
	SiteID      string    `json:"site_id,omitempty"`
	Type        PhotoType `json:"type"`
	URL         string    `json:"url,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Data        []byte    `json:"-"`
}

func (*Photo) Kind() Kind                        { return KindPhoto }
func (p *Photo) ParentLocalID() string           { return p.SiteLocalID }
func (p *Photo) ParentID() string                { return p.SiteID }
func (p *Photo) SetParentLocalID(localID string) { p.SiteLocalID = localID }
func (p *Photo) SetParentID(id string)           { p.SiteID = id }

// NewRecord returns an empty record of the given kind.
func NewRecord(kind Kind) (Record, error) {
	switch kind {
	case KindRiverWalk:
		return &RiverWalk{}, nil
	case KindSite:
		return &Site{}, nil
	case KindMeasurementPoint:
		return &MeasurementPoint{}, nil
	case KindPhoto:
		return &Photo{}, nil
	default:
		return nil, fmt.Errorf("unknown kind: %q", kind)
	}
}

// DecodeRecord unmarshals a JSON document into a record of the given kind.
func DecodeRecord(kind Kind, data []byte) (Record, error) {
	rec, err := NewRecord(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return rec, nil
}

// clientOnlyFields never leave the device.
var clientOnlyFields = []string{"local_id", "synced", "last_modified"}

// Row converts a record into the column map sent to the backend.
// Client-only fields and local parent references are stripped; the id is
// kept only when it is a server id.
func Row(rec Record, isLocalOnly func(string) bool) (map[string]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", rec.Kind(), err)
	}
	var row map[string]any
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", rec.Kind(), err)
	}
	for _, f := range clientOnlyFields {
		delete(row, f)
	}
	if local, _ := rec.Kind().ParentColumns(); local != "" {
		delete(row, local)
	}
	if id, _ := row["id"].(string); id == "" || isLocalOnly(id) {
		delete(row, "id")
	}
	return row, nil
}

// Op is a queued mutation type.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// IsValidOp reports whether o is a known mutation type.
func IsValidOp(o Op) bool {
	return o == OpCreate || o == OpUpdate || o == OpDelete
}

// QueueItem is one pending mutation in the durable sync queue.
type QueueItem struct {
	ID        int64
	Op        Op
	Kind      Kind
	Data      json.RawMessage
	LocalID   string
	Timestamp time.Time
	Attempts  int
	LastError string
}
