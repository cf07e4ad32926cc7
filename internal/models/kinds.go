package models

import "strings"

// Kind names a synced record collection. The value doubles as the local and
// server table name.
type Kind string

const (
	KindRiverWalk        Kind = "river_walks"
	KindSite             Kind = "sites"
	KindMeasurementPoint Kind = "measurement_points"
	KindPhoto            Kind = "photos"
)

// Kinds returns every kind, parents before children.
func Kinds() []Kind {
	return []Kind{KindRiverWalk, KindSite, KindMeasurementPoint, KindPhoto}
}

// IsValidKind checks if k is a known kind.
func IsValidKind(k Kind) bool {
	switch k {
	case KindRiverWalk, KindSite, KindMeasurementPoint, KindPhoto:
		return true
	}
	return false
}

// ParseKind normalizes a kind string to its canonical form.
// Handles singular, plural and dashed forms.
func ParseKind(s string) (Kind, bool) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "river_walk", "river_walks", "walk", "walks":
		return KindRiverWalk, true
	case "site", "sites":
		return KindSite, true
	case "measurement_point", "measurement_points", "point", "points":
		return KindMeasurementPoint, true
	case "photo", "photos":
		return KindPhoto, true
	default:
		return "", false
	}
}

// Parent returns the parent kind, or "" for river walks.
func (k Kind) Parent() Kind {
	switch k {
	case KindSite:
		return KindRiverWalk
	case KindMeasurementPoint, KindPhoto:
		return KindSite
	}
	return ""
}

// Children returns the kinds whose parent is k.
func (k Kind) Children() []Kind {
	switch k {
	case KindRiverWalk:
		return []Kind{KindSite}
	case KindSite:
		return []Kind{KindMeasurementPoint, KindPhoto}
	}
	return nil
}

// ParentColumns returns the JSON field names that reference the parent by
// local id and by server id.
func (k Kind) ParentColumns() (localCol, idCol string) {
	switch k {
	case KindSite:
		return "river_walk_local_id", "river_walk_id"
	case KindMeasurementPoint, KindPhoto:
		return "site_local_id", "site_id"
	}
	return "", ""
}

// Singular returns a human label for log and CLI output.
func (k Kind) Singular() string {
	switch k {
	case KindRiverWalk:
		return "river walk"
	case KindSite:
		return "site"
	case KindMeasurementPoint:
		return "measurement point"
	case KindPhoto:
		return "photo"
	}
	return string(k)
}
