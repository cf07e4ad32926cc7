// Package output provides styled terminal output helpers (success, error,
// warning, record formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/models"
	rwsync "github.com/marcus/riverwalk/internal/sync"
)

var (
	// Styles
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	syncedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	archivedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message to stderr
func Error(format string, args ...any) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// JSON outputs data as JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound        = "not_found"
	ErrCodeInvalidInput    = "invalid_input"
	ErrCodeDatabaseError   = "database_error"
	ErrCodeNotLoggedIn     = "not_logged_in"
	ErrCodeOffline         = "offline"
	ErrCodeSyncFailed      = "sync_failed"
	ErrCodeSyncInProgress  = "sync_in_progress"
	ErrCodeServerRejection = "server_rejected"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// ShortID shortens server UUIDs and local ids for tables. Full ids are
// accepted everywhere an id is read.
func ShortID(id string) string {
	if rest, ok := strings.CutPrefix(id, db.LocalIDPrefix); ok {
		if len(rest) > 6 {
			rest = rest[:6]
		}
		return db.LocalIDPrefix + rest
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// SyncBadge returns "✓" for synced records and "●" for records with local
// changes waiting to be pushed.
func SyncBadge(synced bool) string {
	if synced {
		return syncedStyle.Render("✓")
	}
	return pendingStyle.Render("●")
}

// WalkLine formats a river walk as one table line.
func WalkLine(w *models.RiverWalk) string {
	name := titleStyle.Render(w.Name)
	if w.Archived {
		name = archivedStyle.Render(w.Name + " (archived)")
	}
	place := strings.Trim(strings.Join([]string{w.County, w.Country}, ", "), ", ")
	if place != "" {
		place = "  " + subtleStyle.Render(place)
	}
	return fmt.Sprintf("%s %-14s %s  %s%s", SyncBadge(w.Synced), ShortID(w.ID), w.Date, name, place)
}

// SiteLine formats a site as one table line.
func SiteLine(s *models.Site) string {
	name := s.SiteName
	if name == "" {
		name = fmt.Sprintf("Site %d", s.SiteNumber)
	}
	width := ""
	if s.RiverWidth > 0 {
		width = subtleStyle.Render(fmt.Sprintf("  width %.2fm", s.RiverWidth))
	}
	return fmt.Sprintf("%s %-14s #%-3d %s%s", SyncBadge(s.Synced), ShortID(s.ID), s.SiteNumber, name, width)
}

// PointLine formats a measurement point as one table line.
func PointLine(p *models.MeasurementPoint) string {
	return fmt.Sprintf("%s %-14s #%-3d %6.2fm from bank  depth %.2fm",
		SyncBadge(p.Synced), ShortID(p.ID), p.PointNumber, p.DistanceFromBank, p.Depth)
}

// PhotoLine formats a photo as one table line.
func PhotoLine(p *models.Photo) string {
	where := subtleStyle.Render("not uploaded")
	if p.URL != "" {
		where = p.URL
	}
	return fmt.Sprintf("%s %-14s %-15s %s", SyncBadge(p.Synced), ShortID(p.ID), p.Type, where)
}

// SyncStatusLine summarises the engine status in one line.
func SyncStatusLine(st rwsync.Status) string {
	var parts []string
	if st.Online {
		parts = append(parts, syncedStyle.Render("online"))
	} else {
		parts = append(parts, warningStyle.Render("offline"))
	}
	if st.State != "" && st.State != rwsync.StateIdle {
		parts = append(parts, string(st.State))
	}
	switch st.PendingItems {
	case 0:
		parts = append(parts, "nothing pending")
	case 1:
		parts = append(parts, pendingStyle.Render("1 change pending"))
	default:
		parts = append(parts, pendingStyle.Render(fmt.Sprintf("%d changes pending", st.PendingItems)))
	}
	if st.LastSyncAt != nil {
		parts = append(parts, "last sync "+FormatTimeAgo(*st.LastSyncAt))
	} else {
		parts = append(parts, "never synced")
	}
	line := strings.Join(parts, " · ")
	if st.LastError != "" {
		line += "\n" + errorStyle.Render("last error: "+st.LastError)
	}
	return line
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nSITES:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}
