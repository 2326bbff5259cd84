package core

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

const earthRadius = 6371000.0

func TestHasLineOfSight_NoObstruction(t *testing.T) {
	// Two points high and on the same side of the sphere.
	posA := mgl64.Vec3{8000e3, 0, 0}
	posB := mgl64.Vec3{8000e3, 1000e3, 0}

	if !HasLineOfSight(posA, posB, earthRadius) {
		t.Errorf("expected line of sight between two high points on same side")
	}
}

func TestHasLineOfSight_Obstructed(t *testing.T) {
	// Opposite sides: the chord passes through the sphere.
	posA := mgl64.Vec3{7000e3, 0, 0}
	posB := mgl64.Vec3{-7000e3, 0, 0}

	if HasLineOfSight(posA, posB, earthRadius) {
		t.Errorf("expected line of sight to be blocked")
	}
}

func TestHasLineOfSight_DegenerateSegment(t *testing.T) {
	p := mgl64.Vec3{7000e3, 0, 0}
	if !HasLineOfSight(p, p, earthRadius) {
		t.Errorf("point outside the sphere should see itself")
	}
	q := mgl64.Vec3{1000, 0, 0}
	if HasLineOfSight(q, q, earthRadius) {
		t.Errorf("point inside the sphere should be blocked")
	}
}

func TestHorizon(t *testing.T) {
	if HorizonDistance(0, earthRadius) != 0 || HorizonAngle(-5, earthRadius) != 0 {
		t.Fatalf("horizon at or below the surface should be zero")
	}
	// From 1000 m the horizon is about 113 km away.
	d := HorizonDistance(1000, earthRadius)
	if math.Abs(d-112.9e3) > 500 {
		t.Fatalf("HorizonDistance(1000) = %v, want ~112.9 km", d)
	}
	a := HorizonAngle(1000, earthRadius)
	if a >= 0 || math.Abs(a*earthRadius+d) > 10 {
		t.Fatalf("HorizonAngle(1000) = %v, want -%v", a, d/earthRadius)
	}
}

func TestElevationAngle(t *testing.T) {
	up := mgl64.Vec3{0, 0, 1}
	obs := mgl64.Vec3{0, 0, 0}
	if got := ElevationAngle(obs, mgl64.Vec3{1, 0, 1}, up); math.Abs(got-math.Pi/4) > 1e-12 {
		t.Fatalf("ElevationAngle = %v, want π/4", got)
	}
	if got := ElevationAngle(obs, mgl64.Vec3{0, 0, -3}, up); math.Abs(got+math.Pi/2) > 1e-12 {
		t.Fatalf("ElevationAngle straight down = %v, want -π/2", got)
	}
	if got := ElevationAngle(obs, obs, up); got != 0 {
		t.Fatalf("ElevationAngle of coincident points = %v, want 0", got)
	}
}
