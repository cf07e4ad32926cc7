package output

import (
	"fmt"
	"strings"

	"github.com/marcus/riverwalk/internal/analysis"
	"github.com/marcus/riverwalk/internal/models"
)

// WalkMarkdown builds a markdown summary of a walk and its analysed sites,
// for rendering with RenderReport.
func WalkMarkdown(w *models.RiverWalk, r *analysis.WalkReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", w.Name)
	fmt.Fprintf(&b, "**Date:** %s", w.Date)
	if place := strings.Trim(strings.Join([]string{w.County, w.Country}, ", "), ", "); place != "" {
		fmt.Fprintf(&b, "  \n**Location:** %s", place)
	}
	b.WriteString("\n\n")
	if w.Notes != "" {
		b.WriteString(w.Notes + "\n\n")
	}

	if r == nil || len(r.Sites) == 0 {
		b.WriteString("_No sites recorded._\n")
		return b.String()
	}

	b.WriteString("## Sites\n\n")
	b.WriteString("| # | Site | Width (m) | Area (m²) | Mean depth (m) | Velocity (m/s) | Discharge (m³/s) |\n")
	b.WriteString("|---|------|-----------|-----------|----------------|----------------|------------------|\n")
	for _, sr := range r.Sites {
		name := sr.Site.SiteName
		if name == "" {
			name = "-"
		}
		if sr.Section == nil {
			fmt.Fprintf(&b, "| %d | %s | %.2f | - | - | - | - |\n", sr.Site.SiteNumber, name, sr.Site.RiverWidth)
			continue
		}
		cs := sr.Section
		fmt.Fprintf(&b, "| %d | %s | %.2f | %.3f | %.3f | %.3f | %.3f |\n",
			sr.Site.SiteNumber, name, cs.Width, cs.Area, cs.MeanDepth, cs.Velocity, cs.Discharge)
	}

	var sediment []string
	for _, sr := range r.Sites {
		if sr.Sediment == nil {
			continue
		}
		sediment = append(sediment, fmt.Sprintf("- Site %d: %d samples, mean %.1f mm, median %.1f mm, roundness %.1f",
			sr.Site.SiteNumber, sr.Sediment.Samples, sr.Sediment.MeanSize, sr.Sediment.MedianSize, sr.Sediment.MeanRoundness))
	}
	if len(sediment) > 0 {
		b.WriteString("\n## Sediment\n\n")
		b.WriteString(strings.Join(sediment, "\n") + "\n")
	}

	if r.WidthTrend != 0 || r.DepthTrend != 0 || r.DischargeTrend != 0 {
		b.WriteString("\n## Downstream trend\n\n")
		fmt.Fprintf(&b, "- Width: %+.2f m\n", r.WidthTrend)
		fmt.Fprintf(&b, "- Mean depth: %+.3f m\n", r.DepthTrend)
		fmt.Fprintf(&b, "- Discharge: %+.3f m³/s\n", r.DischargeTrend)
	}
	return b.String()
}

// SectionLines formats one cross-section as indented key/value lines.
func SectionLines(cs *analysis.CrossSection) string {
	if cs == nil {
		return subtleStyle.Render("no measurement points")
	}
	lines := []string{
		fmt.Sprintf("Width:            %.2f m", cs.Width),
		fmt.Sprintf("Area:             %.3f m²", cs.Area),
		fmt.Sprintf("Wetted perimeter: %.3f m", cs.WettedPerimeter),
		fmt.Sprintf("Hydraulic radius: %.3f m", cs.HydraulicRadius),
		fmt.Sprintf("Mean depth:       %.3f m (max %.3f m)", cs.MeanDepth, cs.MaxDepth),
	}
	if cs.Velocity > 0 {
		lines = append(lines,
			fmt.Sprintf("Velocity:         %.3f m/s", cs.Velocity),
			fmt.Sprintf("Discharge:        %.3f m³/s", cs.Discharge))
	}
	return strings.Join(lines, "\n")
}
