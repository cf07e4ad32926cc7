// Package analysis derives hydrology figures from the fieldwork records:
// channel cross-sections per site and downstream summaries per walk.
package analysis

import (
	"errors"
	"math"
	"sort"

	"github.com/marcus/riverwalk/internal/models"
)

// ErrTooFewPoints means a cross-section needs at least one depth reading.
var ErrTooFewPoints = errors.New("no measurement points")

// Vertex is one point of the channel bed profile.
type Vertex struct {
	Distance float64 // metres from the left bank
	Depth    float64 // metres below the water surface
}

// CrossSection holds the channel geometry of one site.
type CrossSection struct {
	Width           float64 // metres, bank to bank
	Area            float64 // square metres
	WettedPerimeter float64 // metres
	HydraulicRadius float64 // metres, area / wetted perimeter
	MeanDepth       float64 // metres, mean of the measured depths
	MaxDepth        float64 // metres
	Velocity        float64 // m/s, mean surface float velocity; 0 if not measured
	Discharge       float64 // cubic metres per second, area * velocity
	Profile         []Vertex
}

// Analyze computes the cross-section of site from its measurement points.
// The bed profile runs from the left bank to the right bank; when the
// outermost readings are inside the banks, zero-depth bank vertices are
// added at 0 and at the site width.
func Analyze(site *models.Site, points []*models.MeasurementPoint) (*CrossSection, error) {
	if len(points) == 0 {
		return nil, ErrTooFewPoints
	}

	profile := make([]Vertex, 0, len(points)+2)
	var sumDepth float64
	cs := &CrossSection{}
	for _, p := range points {
		profile = append(profile, Vertex{Distance: p.DistanceFromBank, Depth: p.Depth})
		sumDepth += p.Depth
		cs.MaxDepth = math.Max(cs.MaxDepth, p.Depth)
	}
	sort.SliceStable(profile, func(i, j int) bool { return profile[i].Distance < profile[j].Distance })
	cs.MeanDepth = sumDepth / float64(len(points))

	width := site.RiverWidth
	if last := profile[len(profile)-1].Distance; width < last {
		width = last
	}
	if profile[0].Distance > 0 {
		profile = append([]Vertex{{Distance: 0}}, profile...)
	}
	if profile[len(profile)-1].Distance < width {
		profile = append(profile, Vertex{Distance: width})
	}
	cs.Width = width - profile[0].Distance
	cs.Profile = profile

	for i := 1; i < len(profile); i++ {
		a, b := profile[i-1], profile[i]
		dx := b.Distance - a.Distance
		cs.Area += dx * (a.Depth + b.Depth) / 2
		cs.WettedPerimeter += math.Hypot(dx, b.Depth-a.Depth)
	}
	if cs.WettedPerimeter > 0 {
		cs.HydraulicRadius = cs.Area / cs.WettedPerimeter
	}

	cs.Velocity = site.Velocity.Mean()
	cs.Discharge = cs.Area * cs.Velocity
	return cs, nil
}
