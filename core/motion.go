package core

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	satellite "github.com/joshuaferrara/go-satellite"
)

// TargetSource yields a moving lookat target.
type TargetSource interface {
	Position(t time.Time) (lon, lat, h float64)
}

// StaticTarget is a target that never moves.
type StaticTarget struct {
	Lon, Lat, Height float64
}

// Position returns the fixed position.
func (s StaticTarget) Position(time.Time) (float64, float64, float64) {
	return s.Lon, s.Lat, s.Height
}

// SatelliteTrack follows the sub-satellite point of an SGP4-propagated TLE.
type SatelliteTrack struct {
	sat   satellite.Satellite
	ellps *Ellipsoid
}

// NewSatelliteTrack constructs a track from TLE lines.
func NewSatelliteTrack(line1, line2 string, ellps *Ellipsoid) *SatelliteTrack {
	if ellps == nil {
		ellps = WGS84
	}
	return &SatelliteTrack{
		sat:   satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
		ellps: ellps,
	}
}

// Position propagates the satellite to t and returns its geodetic position.
// go-satellite works in kilometres; the result is in metres.
func (s *SatelliteTrack) Position(t time.Time) (lon, lat, h float64) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(s.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	const kmToM = 1000.0
	lat, lon, h = s.ellps.FromCartesian(mgl64.Vec3{posECEF.X * kmToM, posECEF.Y * kmToM, posECEF.Z * kmToM})
	return lon, lat, h
}
