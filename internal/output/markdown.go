package output

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Walk reports carry per-site measurement tables, so they wrap wider than
// prose and never narrower than a table row.
const (
	reportWidth    = 100
	minReportWidth = 60
	maxReportWidth = 140
)

// ReportStyleEnv names a glamour style for walk reports, such as "dark",
// "light" or "notty". Unset lets the terminal background decide.
const ReportStyleEnv = "RWALK_REPORT_STYLE"

// reportWidthFor clamps a terminal width to the range reports render in.
// Zero or negative means the width is unknown.
func reportWidthFor(cols int) int {
	switch {
	case cols <= 0:
		return reportWidth
	case cols < minReportWidth:
		return minReportWidth
	case cols > maxReportWidth:
		return maxReportWidth
	}
	return cols
}

// terminalColumns reports the width of stdout, then $COLUMNS, or 0.
func terminalColumns() int {
	if cols, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && cols > 0 {
		return cols
	}
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols > 0 {
		return cols
	}
	return 0
}

// RenderReport renders a walk report for the current terminal.
func RenderReport(md string) (string, error) {
	return RenderReportWidth(md, terminalColumns())
}

// RenderReportWidth renders a walk report for a terminal cols wide.
func RenderReportWidth(md string, cols int) (string, error) {
	if strings.TrimSpace(md) == "" {
		return "", nil
	}
	style := glamour.WithAutoStyle()
	if name := os.Getenv(ReportStyleEnv); name != "" {
		style = glamour.WithStandardStyle(name)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(reportWidthFor(cols)))
	if err != nil {
		return "", fmt.Errorf("report renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return strings.TrimRight(out, "\n"), nil
}
