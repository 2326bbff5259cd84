package model

import (
	"math"
	"time"
)

// ChangeFlags records which parts of the navigator state changed since the
// last notification tick.
type ChangeFlags uint32

const (
	LatChanged ChangeFlags = 1 << iota
	LonChanged
	ElevationChanged
	AzimuthChanged
	HeightAngleChanged
	PointerChanged

	PositionChanged = LatChanged | LonChanged | ElevationChanged
	AllChanged      = PositionChanged | AzimuthChanged | HeightAngleChanged | PointerChanged
)

// Has reports whether all bits of f are set.
func (c ChangeFlags) Has(f ChangeFlags) bool { return c&f == f }

// Pose is the camera's geographic placement. Angles are radians, heights
// metres above the reference ellipsoid.
type Pose struct {
	Lat          float64
	Lon          float64
	EllipsHeight float64
	Azimuth      float64 // clockwise from north, [0, 2π)
	HeightAngle  float64 // pitch above the local horizontal, [-π/2, π/2]
}

// PointerTarget is a picked ground point used as the pivot for orbiting.
type PointerTarget struct {
	Lon    float64
	Lat    float64
	Height float64
	Dist   float64
}

// Viewpoint is a complete camera target: where to be and where to look.
type Viewpoint struct {
	Lon         float64
	Lat         float64
	Height      float64
	Azimuth     float64
	HeightAngle float64
}

// Pose converts the viewpoint to a Pose with the same values.
func (v Viewpoint) Pose() Pose {
	return Pose{Lat: v.Lat, Lon: v.Lon, EllipsHeight: v.Height, Azimuth: v.Azimuth, HeightAngle: v.HeightAngle}
}

// ViewpointFromPose is the inverse of Viewpoint.Pose.
func ViewpointFromPose(p Pose) Viewpoint {
	return Viewpoint{Lon: p.Lon, Lat: p.Lat, Height: p.EllipsHeight, Azimuth: p.Azimuth, HeightAngle: p.HeightAngle}
}

// ViewpointFromDegrees builds a viewpoint from the degree-based layout
// used by stored bookmarks: lon, lat, height (m), azimuth, height angle.
func ViewpointFromDegrees(lon, lat, height, az, ha float64) Viewpoint {
	return Viewpoint{
		Lon:         lon * math.Pi / 180,
		Lat:         lat * math.Pi / 180,
		Height:      height,
		Azimuth:     az * math.Pi / 180,
		HeightAngle: ha * math.Pi / 180,
	}
}

// Degrees returns lon, lat, height, azimuth and height angle with the
// angles in degrees.
func (v Viewpoint) Degrees() [5]float64 {
	const d = 180 / math.Pi
	return [5]float64{v.Lon * d, v.Lat * d, v.Height, v.Azimuth * d, v.HeightAngle * d}
}

// PathPoint is a waypoint of a fly path together with the time allotted to
// reach it from the previous waypoint.
type PathPoint struct {
	Viewpoint
	Duration time.Duration
}

// Snapshot is the navigator state published once per frame for
// listeners running on other goroutines.
type Snapshot struct {
	Pose
	Pointer       PointerTarget
	TerrainHeight float64
}
