package monitor

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/riverwalk/internal/events"
	"github.com/marcus/riverwalk/internal/models"
)

var (
	// Base colors
	primaryColor   = lipgloss.Color("212")
	secondaryColor = lipgloss.Color("141")
	mutedColor     = lipgloss.Color("241")
	successColor   = lipgloss.Color("42")
	warningColor   = lipgloss.Color("214")
	errorColor     = lipgloss.Color("196")

	// Panel styles
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	// Text styles
	titleStyle     = lipgloss.NewStyle().Bold(true)
	subtleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle     = lipgloss.NewStyle().Foreground(errorColor)
	spinnerStyle   = lipgloss.NewStyle().Foreground(secondaryColor)

	// Connectivity badges
	onlineBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(successColor).
			Padding(0, 1)

	offlineBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(warningColor).
			Padding(0, 1)

	syncedStyle  = lipgloss.NewStyle().Foreground(successColor)
	pendingStyle = lipgloss.NewStyle().Foreground(warningColor)

	// Queue op styles
	opStyles = map[models.Op]lipgloss.Style{
		models.OpCreate: lipgloss.NewStyle().Foreground(successColor),
		models.OpUpdate: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.OpDelete: lipgloss.NewStyle().Foreground(errorColor),
	}

	// Event badges
	eventBadges = map[events.Type]lipgloss.Style{
		events.DataChanged:       lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		events.SyncStarted:       lipgloss.NewStyle().Foreground(secondaryColor),
		events.SyncCompleted:     lipgloss.NewStyle().Foreground(successColor),
		events.SyncFailed:        lipgloss.NewStyle().Foreground(errorColor),
		events.SyncStatusChanged: lipgloss.NewStyle().Foreground(warningColor),
	}

	// Selected row style - inverted colors for visibility
	selectedRowStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("237")).
				Foreground(lipgloss.Color("255"))
)

// formatOp renders a queue operation with its color
func formatOp(op models.Op) string {
	style, ok := opStyles[op]
	if !ok {
		return string(op)
	}
	return style.Render(string(op))
}

// formatEventBadge renders an event type badge
func formatEventBadge(t events.Type) string {
	label := map[events.Type]string{
		events.DataChanged:       "[DATA]",
		events.SyncStarted:       "[SYNC]",
		events.SyncCompleted:     "[DONE]",
		events.SyncFailed:        "[FAIL]",
		events.SyncStatusChanged: "[STAT]",
	}[t]
	if label == "" {
		return subtleStyle.Render("[???]")
	}
	return eventBadges[t].Render(label)
}
