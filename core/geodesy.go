package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tidwall/geodesic"
)

const twoPi = 2 * math.Pi

// DistAz is the solution of the inverse geodesic problem. Az12 is the
// bearing at the first point toward the second, Az21 the bearing at the
// second point back toward the first.
type DistAz struct {
	Dist float64
	Az12 float64
	Az21 float64
}

// LatLonAz is the solution of the forward geodesic problem. Az is the
// back azimuth at the destination: it points toward the start, so the
// heading of the geodesic at the destination is Az+π.
type LatLonAz struct {
	Lat float64
	Lon float64
	Az  float64
}

// Geodesy is the set of ellipsoid operations the navigator depends on.
// All angles are radians and distances metres.
type Geodesy interface {
	Inverse(lat1, lon1, lat2, lon2 float64) DistAz
	Forward(lat, lon, dist, az float64) LatLonAz
	ToCartesian(lat, lon, h float64) mgl64.Vec3
	SurfaceTransform(lat, lon, h, az, ha float64, origin mgl64.Vec3) mgl64.Mat4
	Radius() float64
}

// Ellipsoid adapts github.com/tidwall/geodesic to radians and adds the
// cartesian conversions used for rendering.
type Ellipsoid struct {
	g          *geodesic.Ellipsoid
	radius     float64
	flattening float64
	e2         float64
}

// WGS84 is the reference ellipsoid used by default.
var WGS84 = NewEllipsoid(6378137, 1/298.257223563)

// NewEllipsoid builds an ellipsoid from its equatorial radius (m) and
// flattening.
func NewEllipsoid(radius, flattening float64) *Ellipsoid {
	return &Ellipsoid{
		g:          geodesic.NewEllipsoid(radius, flattening),
		radius:     radius,
		flattening: flattening,
		e2:         flattening * (2 - flattening),
	}
}

// NewSphere builds a spherical globe, mostly useful in tests where the
// expected geometry is easy to write down.
func NewSphere(radius float64) *Ellipsoid {
	return &Ellipsoid{g: geodesic.NewSpherical(radius), radius: radius}
}

// Radius returns the equatorial radius in metres.
func (e *Ellipsoid) Radius() float64 { return e.radius }

// Flattening returns the ellipsoid flattening.
func (e *Ellipsoid) Flattening() float64 { return e.flattening }

// Inverse solves the inverse geodesic problem. Coincident points yield a
// zero distance and zero bearings.
func (e *Ellipsoid) Inverse(lat1, lon1, lat2, lon2 float64) DistAz {
	if lat1 == lat2 && lon1 == lon2 {
		return DistAz{}
	}
	var s12, azi1, azi2 float64
	e.g.Inverse(toDeg(lat1), toDeg(lon1), toDeg(lat2), toDeg(lon2), &s12, &azi1, &azi2)
	return DistAz{
		Dist: s12,
		Az12: AdjLonPos(toRad(azi1)),
		Az21: AdjLonPos(toRad(azi2) + math.Pi),
	}
}

// Forward solves the forward geodesic problem. A negative distance walks
// backwards along the bearing; a zero distance returns the start point.
func (e *Ellipsoid) Forward(lat, lon, dist, az float64) LatLonAz {
	if dist == 0 {
		return LatLonAz{Lat: lat, Lon: lon, Az: AdjLonPos(az + math.Pi)}
	}
	var lat2, lon2, azi2 float64
	if dist < 0 {
		// walk the reversed bearing; the heading there points away from
		// the start, which is the back azimuth of the requested bearing
		e.g.Direct(toDeg(lat), toDeg(lon), toDeg(az+math.Pi), -dist, &lat2, &lon2, &azi2)
		return LatLonAz{Lat: toRad(lat2), Lon: toRad(lon2), Az: AdjLonPos(toRad(azi2))}
	}
	e.g.Direct(toDeg(lat), toDeg(lon), toDeg(az), dist, &lat2, &lon2, &azi2)
	return LatLonAz{
		Lat: toRad(lat2),
		Lon: toRad(lon2),
		Az:  AdjLonPos(toRad(azi2) + math.Pi),
	}
}

// ToCartesian converts geodetic coordinates to earth-centred cartesian
// coordinates.
func (e *Ellipsoid) ToCartesian(lat, lon, h float64) mgl64.Vec3 {
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	n := e.radius / math.Sqrt(1-e.e2*sinLat*sinLat)
	return mgl64.Vec3{
		(n + h) * cosLat * cosLon,
		(n + h) * cosLat * sinLon,
		(n*(1-e.e2) + h) * sinLat,
	}
}

// FromCartesian converts earth-centred cartesian coordinates back to
// latitude, longitude and ellipsoid height.
func (e *Ellipsoid) FromCartesian(p mgl64.Vec3) (lat, lon, h float64) {
	x, y, z := p[0], p[1], p[2]
	lon = math.Atan2(y, x)
	r := math.Hypot(x, y)
	if r == 0 {
		b := e.radius * (1 - e.flattening)
		if z < 0 {
			return -math.Pi / 2, lon, -z - b
		}
		return math.Pi / 2, lon, z - b
	}

	lat = math.Atan2(z, r*(1-e.e2))
	for i := 0; i < 8; i++ {
		sinLat, cosLat := math.Sincos(lat)
		n := e.radius / math.Sqrt(1-e.e2*sinLat*sinLat)
		h = r*cosLat + z*sinLat - e.radius*e.radius/n
		next := math.Atan2(z, r*(1-e.e2*n/(n+h)))
		if math.Abs(next-lat) < 1e-14 {
			lat = next
			break
		}
		lat = next
	}
	sinLat, cosLat := math.Sincos(lat)
	n := e.radius / math.Sqrt(1-e.e2*sinLat*sinLat)
	h = r*cosLat + z*sinLat - e.radius*e.radius/n
	return lat, lon, h
}

// SurfaceNormal returns the unit ellipsoid normal at lat/lon.
func SurfaceNormal(lat, lon float64) mgl64.Vec3 {
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	return mgl64.Vec3{cosLat * cosLon, cosLat * sinLon, sinLat}
}

// SurfaceTransform builds the camera frame at the given pose, expressed
// relative to origin. The local frame is east/north/up rotated clockwise
// by az about up, then pitched by ha; the camera looks down its -z axis.
func (e *Ellipsoid) SurfaceTransform(lat, lon, h, az, ha float64, origin mgl64.Vec3) mgl64.Mat4 {
	eye := e.ToCartesian(lat, lon, h).Sub(origin)
	return mgl64.Translate3D(eye[0], eye[1], eye[2]).
		Mul4(mgl64.HomogRotate3DZ(math.Pi/2 + lon)).
		Mul4(mgl64.HomogRotate3DX(math.Pi/2 - lat)).
		Mul4(mgl64.HomogRotate3DZ(-az)).
		Mul4(mgl64.HomogRotate3DX(math.Pi/2 + ha))
}

// AdjLonPos normalizes an angle to [0, 2π).
func AdjLonPos(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	if a >= twoPi {
		a = 0
	}
	return a
}

// AdjLon normalizes an angle to [-π, π). It is used for shortest signed
// differences between bearings.
func AdjLon(a float64) float64 {
	return AdjLonPos(a+math.Pi) - math.Pi
}

func toDeg(r float64) float64 { return r * 180 / math.Pi }
func toRad(d float64) float64 { return d * math.Pi / 180 }
