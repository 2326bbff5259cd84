package core

// GlobeModel is everything the navigator needs to know about the globe it
// moves over.
type GlobeModel interface {
	Ellipsoid() Geodesy
	// Elevation returns raw terrain height; callers multiply by
	// ElevationScale.
	Elevation(lon, lat float64) float64
	ElevationScale() float64
}

// Globe combines an ellipsoid with a terrain source.
type Globe struct {
	ellps   *Ellipsoid
	terrain ElevationProvider
	scale   float64
}

// NewGlobe builds a globe with vertical exaggeration 1. A nil terrain is a
// smooth ellipsoid.
func NewGlobe(ellps *Ellipsoid, terrain ElevationProvider) *Globe {
	if ellps == nil {
		ellps = WGS84
	}
	return &Globe{ellps: ellps, terrain: terrain, scale: 1}
}

// Ellipsoid returns the reference ellipsoid.
func (g *Globe) Ellipsoid() Geodesy { return g.ellps }

// Elevation returns the unscaled terrain height.
func (g *Globe) Elevation(lon, lat float64) float64 {
	if g.terrain == nil {
		return 0
	}
	return g.terrain.Elevation(lon, lat)
}

// ElevationScale returns the vertical exaggeration factor.
func (g *Globe) ElevationScale() float64 { return g.scale }

// SetElevationScale sets the vertical exaggeration factor.
func (g *Globe) SetElevationScale(s float64) { g.scale = s }
