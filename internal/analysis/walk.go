package analysis

import (
	"math"
	"sort"

	"github.com/marcus/riverwalk/internal/models"
)

// Sediment summarises a site's pebble samples.
type Sediment struct {
	Samples       int
	MeanSize      float64 // mm
	MedianSize    float64 // mm
	MeanRoundness float64 // Powers scale
}

// SummarizeSediment returns nil when there are no samples.
func SummarizeSediment(samples []models.SedimentSample) *Sediment {
	if len(samples) == 0 {
		return nil
	}
	sizes := make([]float64, len(samples))
	var sumSize, sumRound float64
	for i, s := range samples {
		sizes[i] = s.Size
		sumSize += s.Size
		sumRound += float64(s.Roundness)
	}
	sort.Float64s(sizes)
	n := len(sizes)
	median := sizes[n/2]
	if n%2 == 0 {
		median = (sizes[n/2-1] + sizes[n/2]) / 2
	}
	return &Sediment{
		Samples:       n,
		MeanSize:      sumSize / float64(n),
		MedianSize:    median,
		MeanRoundness: sumRound / float64(n),
	}
}

// SiteReport pairs a site with its derived figures. Section is nil when
// the site has no measurement points.
type SiteReport struct {
	Site     *models.Site
	Section  *CrossSection
	Sediment *Sediment
}

// WalkReport is the downstream view of a river walk.
type WalkReport struct {
	Sites []SiteReport
	// Trends compare the last analysed site with the first; positive means
	// the figure grows downstream.
	WidthTrend     float64
	DepthTrend     float64
	DischargeTrend float64
}

// AnalyzeWalk builds a report over sites in site-number order. pointsFor
// returns the measurement points of a site.
func AnalyzeWalk(sites []*models.Site, pointsFor func(*models.Site) []*models.MeasurementPoint) *WalkReport {
	ordered := append([]*models.Site(nil), sites...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SiteNumber < ordered[j].SiteNumber })

	r := &WalkReport{Sites: make([]SiteReport, 0, len(ordered))}
	var first, last *CrossSection
	for _, s := range ordered {
		sr := SiteReport{Site: s, Sediment: SummarizeSediment(s.Sediment)}
		if cs, err := Analyze(s, pointsFor(s)); err == nil {
			sr.Section = cs
			if first == nil {
				first = cs
			}
			last = cs
		}
		r.Sites = append(r.Sites, sr)
	}
	if first != nil && last != first {
		r.WidthTrend = round(last.Width - first.Width)
		r.DepthTrend = round(last.MeanDepth - first.MeanDepth)
		r.DischargeTrend = round(last.Discharge - first.Discharge)
	}
	return r
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
