package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// HorizonDistance returns the distance along the surface of a sphere of the
// given radius from a viewer `clearance` metres up to its visible horizon.
func HorizonDistance(clearance, radius float64) float64 {
	if clearance <= 0 || radius <= 0 {
		return 0
	}
	return radius * math.Acos(radius/(radius+clearance))
}

// HorizonAngle returns the (negative) height angle under which a viewer
// `clearance` metres up sees the horizon of a sphere of the given radius.
func HorizonAngle(clearance, radius float64) float64 {
	if clearance <= 0 || radius <= 0 {
		return 0
	}
	return -math.Acos(radius / (radius + clearance))
}

// HasLineOfSight checks whether the straight segment between p1 and p2
// stays outside a sphere of the given radius centred at the origin.
func HasLineOfSight(p1, p2 mgl64.Vec3, radius float64) bool {
	v := p2.Sub(p1)
	a := v.Dot(v)
	r2 := radius * radius
	if a == 0 {
		return p1.Dot(p1) > r2
	}

	// Closest point on the segment to the centre.
	t := -p1.Dot(v) / a
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	closest := p1.Add(v.Mul(t))
	return closest.Dot(closest) > r2
}

// ElevationAngle returns the angle (radians) of target above the plane
// through observer normal to up. up must be a unit vector.
func ElevationAngle(observer, target, up mgl64.Vec3) float64 {
	v := target.Sub(observer)
	n := v.Len()
	if n == 0 {
		return 0
	}
	s := v.Dot(up) / n
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return math.Asin(s)
}
