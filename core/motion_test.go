package core

import (
	"math"
	"testing"
	"time"
)

func TestStaticTarget(t *testing.T) {
	s := StaticTarget{Lon: 1, Lat: 0.5, Height: 10}
	lon, lat, h := s.Position(time.Now())
	if lon != 1 || lat != 0.5 || h != 10 {
		t.Fatalf("Position = (%v,%v,%v), want (1,0.5,10)", lon, lat, h)
	}
}

// Exact orbital values belong to go-satellite; this only checks that the
// sub-satellite point is plausible and moves.
func TestSatelliteTrack_MovesAtOrbitalAltitude(t *testing.T) {
	// ISS sample TLE
	tle1 := "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	tle2 := "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"

	s := NewSatelliteTrack(tle1, tle2, nil)
	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)

	lon1, lat1, h1 := s.Position(t1)
	lon2, lat2, _ := s.Position(t1.Add(5 * time.Minute))

	if h1 < 300e3 || h1 > 500e3 {
		t.Fatalf("altitude = %v m, want LEO (300-500 km)", h1)
	}
	if math.Abs(lat1) > 52*math.Pi/180 {
		t.Fatalf("latitude %v exceeds the orbit inclination", lat1)
	}
	if lon1 == lon2 && lat1 == lat2 {
		t.Fatalf("expected sub-satellite point to move, got (%v,%v) twice", lon1, lat1)
	}
}
