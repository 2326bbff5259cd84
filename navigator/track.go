package navigator

import (
	"math"

	"github.com/signalsfoundry/globe-navigator/core"
	"github.com/signalsfoundry/globe-navigator/numeric"
)

// Track is the altitude profile of a flight: height as a quadratic of the
// great-circle distance x still to go,
//
//	h(x) = a·x² + b·x + c
//
// so that h(0) is the end height and h(dist) the start height. The
// curvature 2a is tuned by OptimizeCurve to shorten the estimated travel
// time under the speed model.
type Track struct {
	globe    core.GlobeModel
	speed    SpeedModel
	settings Settings

	endLat, endLon   float64
	startH, endH     float64
	dist, az12, az21 float64

	curvature float64
	step      float64
	a, b, c   float64

	t          float64
	iterations int
	capped     bool
}

// NewTrack creates a track with the seed curvature and no estimate yet.
func NewTrack(globe core.GlobeModel, s Settings) *Track {
	s = s.withDefaults()
	return &Track{
		globe:     globe,
		speed:     s.Speed,
		settings:  s,
		curvature: s.CurveSeed,
		step:      s.CurveStep,
		t:         math.Inf(1),
	}
}

// SetValues re-derives the geometry between start and end and resets the
// travel-time estimate. The current curvature is kept.
func (t *Track) SetValues(startLon, startLat, startH, endLon, endLat, endH float64) {
	t.endLat, t.endLon = endLat, endLon
	t.startH, t.endH = startH, endH
	daz := t.globe.Ellipsoid().Inverse(startLat, startLon, endLat, endLon)
	t.dist, t.az12, t.az21 = daz.Dist, daz.Az12, daz.Az21
	t.t = math.Inf(1)
	t.SetCurve(t.curvature)
}

// SetCurve sets the curvature and the coefficients that keep both ends
// of the profile fixed.
func (t *Track) SetCurve(curvature float64) {
	t.curvature = curvature
	t.a = curvature / 2
	t.c = t.endH
	if t.dist <= 0 {
		t.b = 0
		return
	}
	t.b = (t.startH-t.endH)/t.dist - curvature*t.dist/2
}

// H returns the profile height with x metres left to go.
func (t *Track) H(x float64) float64 { return (t.a*x+t.b)*x + t.c }

// H1 returns dh/dx at x.
func (t *Track) H1(x float64) float64 { return 2*t.a*x + t.b }

// TravelTimeIntegrand returns the time per metre of ground track at x,
// or +Inf where the profile is too close to the terrain to move.
func (t *Track) TravelTimeIntegrand(x float64) float64 {
	p := t.globe.Ellipsoid().Forward(t.endLat, t.endLon, x, t.az21)
	terrain := t.globe.Elevation(p.Lon, p.Lat) * t.globe.ElevationScale()
	speed := t.speed.MaxSpeed(t.H(x) - terrain)
	if speed <= 0 {
		return math.Inf(1)
	}
	h1 := t.H1(x)
	return math.Sqrt(1+h1*h1) / speed
}

// OptimizeCurve walks the curvature by the step multiplier while the
// estimated travel time keeps improving by more than the slack. On the
// first failure the step is inverted, so the next call searches the other
// way, and the best curvature found is restored. It returns the best
// estimate, which is +Inf when no passable profile was found.
func (t *Track) OptimizeCurve() float64 {
	best := t.curvature
	t.iterations = 0
	t.capped = true
	for t.iterations < t.settings.MaxCurveIterations {
		t.iterations++
		t.SetCurve(t.curvature)
		newT := numeric.AdaptiveSimpson(t.TravelTimeIntegrand, 0, t.dist,
			t.settings.IntegrationTolerance, t.settings.IntegrationDepth)
		if newT > t.t-t.settings.CurveSlack || newT < 0 || math.IsInf(newT, 0) || math.IsNaN(newT) {
			t.step = 1 / t.step
			t.capped = false
			break
		}
		t.t = newT
		best = t.curvature
		t.curvature *= t.step
	}
	t.SetCurve(best)
	return t.t
}

// Distance is the ground distance between the ends.
func (t *Track) Distance() float64 { return t.dist }

// Azimuth is the initial bearing from start to end.
func (t *Track) Azimuth() float64 { return t.az12 }

// Curvature returns the current curvature.
func (t *Track) Curvature() float64 { return t.curvature }

// Estimate returns the best travel-time estimate of the last search.
func (t *Track) Estimate() float64 { return t.t }

// Iterations returns how many trial curvatures the last search evaluated.
func (t *Track) Iterations() int { return t.iterations }

// HitIterationCap reports whether the last search stopped on the
// iteration limit instead of on a non-improving step.
func (t *Track) HitIterationCap() bool { return t.capped }
