package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/marcus/riverwalk/internal/models"
	rwsync "github.com/marcus/riverwalk/internal/sync"
)

// renderView renders the complete TUI view
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}

	// Handle small terminal sizes gracefully
	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}

	if m.ShowHelp {
		return m.renderHelp()
	}

	header := m.renderStatusBar()

	// Status bar and footer take a line each; the rest is split between panels.
	availableHeight := m.Height - 2
	panelHeight := availableHeight / 3

	panels := lipgloss.JoinVertical(lipgloss.Left,
		m.renderQueuePanel(panelHeight),
		m.renderWalksPanel(panelHeight),
		m.renderActivityPanel(availableHeight-2*panelHeight),
	)

	return lipgloss.JoinVertical(lipgloss.Left, header, panels, m.renderFooter())
}

// renderCompact renders a minimal view for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder

	s.WriteString("rwalk monitor (resize for full view)\n\n")
	s.WriteString(m.connectivityBadge() + "\n")
	s.WriteString(fmt.Sprintf("Pending: %d\n", len(m.Queue)))
	s.WriteString(fmt.Sprintf("Walks: %d\n", len(m.Walks)))
	if m.Err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.Err)) + "\n")
	}

	s.WriteString("\nq:quit r:refresh s:sync ?:help")

	return s.String()
}

func (m Model) connectivityBadge() string {
	if m.Status.Online {
		return onlineBadge.Render("ONLINE")
	}
	return offlineBadge.Render("OFFLINE")
}

// renderStatusBar renders connectivity, engine state and the last sync.
func (m Model) renderStatusBar() string {
	parts := []string{m.connectivityBadge()}

	switch {
	case m.Syncing || m.Status.State == rwsync.StateDraining || m.Status.State == rwsync.StateDownloading:
		state := string(m.Status.State)
		if state == "" || m.Status.State == rwsync.StateIdle {
			state = "syncing"
		}
		parts = append(parts, m.spinner.View()+" "+state)
	default:
		parts = append(parts, subtleStyle.Render("idle"))
	}

	if n := m.Status.PendingItems; n > 0 {
		parts = append(parts, pendingStyle.Render(fmt.Sprintf("%d pending", n)))
	} else {
		parts = append(parts, syncedStyle.Render("all synced"))
	}

	if m.Status.LastSyncAt != nil {
		parts = append(parts, timestampStyle.Render("last sync "+m.Status.LastSyncAt.Format("15:04:05")))
	} else {
		parts = append(parts, timestampStyle.Render("never synced"))
	}

	if u := m.UpdateNotice; u != nil {
		parts = append(parts, pendingStyle.Render(fmt.Sprintf("%s available", u.LatestVersion)))
	}

	line := " " + strings.Join(parts, "  ")
	if m.Err != nil {
		line += "  " + errorStyle.Render(m.Err.Error())
	} else if m.Status.LastError != "" {
		line += "  " + errorStyle.Render("last error: "+m.Status.LastError)
	}
	return ansi.Truncate(line, m.Width, "…")
}

// renderQueuePanel renders the pending mutation queue (Panel 1)
func (m Model) renderQueuePanel(height int) string {
	title := fmt.Sprintf("SYNC QUEUE (%d)", len(m.Queue))
	if len(m.Queue) == 0 {
		return m.wrapPanel(title, subtleStyle.Render("Nothing waiting to sync"), height, PanelQueue)
	}

	lines := make([]string, 0, len(m.Queue))
	for _, item := range m.Queue {
		lines = append(lines, m.formatQueueItem(item))
	}
	return m.wrapPanel(title, m.scrolled(lines, PanelQueue, height), height, PanelQueue)
}

// renderWalksPanel renders the local river walks (Panel 2)
func (m Model) renderWalksPanel(height int) string {
	title := fmt.Sprintf("RIVER WALKS (%d)", len(m.Walks))
	if len(m.Walks) == 0 {
		return m.wrapPanel(title, subtleStyle.Render("No river walks stored locally"), height, PanelWalks)
	}

	lines := make([]string, 0, len(m.Walks))
	for _, w := range m.Walks {
		lines = append(lines, m.formatWalk(w))
	}
	return m.wrapPanel(title, m.scrolled(lines, PanelWalks, height), height, PanelWalks)
}

// renderActivityPanel renders the event log (Panel 3)
func (m Model) renderActivityPanel(height int) string {
	if len(m.Activity) == 0 {
		return m.wrapPanel("EVENTS", subtleStyle.Render("No events yet"), height, PanelActivity)
	}

	lines := make([]string, 0, len(m.Activity))
	for _, item := range m.Activity {
		lines = append(lines, m.formatActivityItem(item))
	}
	return m.wrapPanel("EVENTS", m.scrolled(lines, PanelActivity, height), height, PanelActivity)
}

// scrolled returns the visible window of lines for a panel, highlighting
// the row at the scroll offset when the panel is active.
func (m Model) scrolled(lines []string, panel Panel, height int) string {
	offset := m.ScrollOffset[panel]
	if offset >= len(lines) {
		offset = len(lines) - 1
	}
	if offset < 0 {
		offset = 0
	}
	visible := m.visibleItems(len(lines), offset, height-3)

	var content strings.Builder
	for i := offset; i < offset+visible; i++ {
		line := "  " + lines[i]
		if m.ActivePanel == panel && i == offset {
			line = selectedRowStyle.Render("> " + lines[i])
		}
		content.WriteString(line)
		content.WriteString("\n")
	}
	return content.String()
}

// renderFooter renders the footer with key bindings and refresh time
func (m Model) renderFooter() string {
	keys := helpStyle.Render("q:quit  tab:switch  ↑↓:scroll  s:sync  r:refresh  ?:help")
	refresh := timestampStyle.Render(fmt.Sprintf("Last: %s", m.LastRefresh.Format("15:04:05")))

	padding := m.Width - lipgloss.Width(keys) - lipgloss.Width(refresh) - 2
	if padding < 0 {
		padding = 0
	}

	return fmt.Sprintf(" %s%s%s", keys, strings.Repeat(" ", padding), refresh)
}

// renderHelp renders the help overlay
func (m Model) renderHelp() string {
	help := `
RWALK MONITOR - Key Bindings

NAVIGATION:
  Tab / Shift+Tab   Switch between panels
  1 / 2 / 3         Jump to panel
  ↑ / ↓ / j / k     Scroll active panel

ACTIONS:
  s                 Sync now (when online)
  r                 Force refresh
  q / Ctrl+C        Quit

Press ? to close help
`
	return helpStyle.Render(help)
}

// wrapPanel wraps content in a panel with title and border
func (m Model) wrapPanel(title, content string, height int, panel Panel) string {
	style := panelStyle
	if m.ActivePanel == panel {
		style = activePanelStyle
	}

	titleStr := panelTitleStyle.Render(title)

	contentWidth := m.Width - 4 // Account for border and padding

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	contentHeight := height - 3 // Title + border
	if contentHeight < 1 {
		contentHeight = 1
	}

	for len(lines) < contentHeight {
		lines = append(lines, "")
	}
	if len(lines) > contentHeight {
		lines = lines[:contentHeight]
	}

	for i, line := range lines {
		if lipgloss.Width(line) > contentWidth {
			lines[i] = ansi.Truncate(line, contentWidth, "…")
		}
	}

	inner := lipgloss.JoinVertical(lipgloss.Left, titleStr, strings.Join(lines, "\n"))

	return style.Width(m.Width - 2).Render(inner)
}

// formatQueueItem formats one pending mutation
func (m Model) formatQueueItem(item models.QueueItem) string {
	line := fmt.Sprintf("%s %-6s %-18s %s",
		timestampStyle.Render(item.Timestamp.Format("15:04:05")),
		formatOp(item.Op),
		string(item.Kind),
		titleStyle.Render(item.LocalID))
	if item.Attempts > 0 {
		line += pendingStyle.Render(fmt.Sprintf("  attempt %d", item.Attempts))
	}
	if item.LastError != "" {
		line += "  " + errorStyle.Render(item.LastError)
	}
	return line
}

// formatWalk formats a river walk row
func (m Model) formatWalk(w *models.RiverWalk) string {
	badge := syncedStyle.Render("✓")
	if !w.Synced {
		badge = pendingStyle.Render("●")
	}
	name := w.Name
	if w.Archived {
		name = subtleStyle.Render(name + " (archived)")
	}
	return fmt.Sprintf("%s %s  %s  %s", badge, w.Date, name, subtleStyle.Render(w.ID))
}

// formatActivityItem formats a single event log line
func (m Model) formatActivityItem(item ActivityItem) string {
	timestamp := timestampStyle.Render(item.Timestamp.Format("15:04:05"))
	return fmt.Sprintf("%s %s %s", timestamp, formatEventBadge(item.Type), item.Message)
}

// visibleItems calculates how many items can be shown given scroll offset and height
func (m Model) visibleItems(total, offset, height int) int {
	if height < 1 {
		height = 1
	}
	remaining := total - offset
	if remaining > height {
		return height
	}
	return remaining
}
