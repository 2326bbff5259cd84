package core

import (
	"math"
	"testing"
)

func TestFlatTerrain(t *testing.T) {
	f := FlatTerrain{Height: 42}
	if got := f.Elevation(1, 2); got != 42 {
		t.Fatalf("Elevation = %v, want 42", got)
	}
}

func TestGridTerrainBilinear(t *testing.T) {
	// 2x2 grid over [0,1]x[0,1]: SW=0, SE=10, NW=20, NE=30.
	g, err := NewGridTerrain(0, 0, 1, 1, 2, 2, []float64{0, 10, 20, 30})
	if err != nil {
		t.Fatalf("NewGridTerrain: %v", err)
	}
	cases := []struct{ lon, lat, want float64 }{
		{0, 0, 0},
		{1, 0, 10},
		{0, 1, 20},
		{1, 1, 30},
		{0.5, 0.5, 15},
		{0.25, 0, 2.5},
		{-5, -5, 0},  // clamped to SW
		{5, 5, 30},   // clamped to NE
		{0.5, 9, 25}, // clamped to north edge
	}
	for _, c := range cases {
		if got := g.Elevation(c.lon, c.lat); math.Abs(got-c.want) > 1e-12 {
			t.Fatalf("Elevation(%v,%v) = %v, want %v", c.lon, c.lat, got, c.want)
		}
	}
}

func TestGridTerrainValidation(t *testing.T) {
	if _, err := NewGridTerrain(0, 0, 1, 1, 1, 2, []float64{0, 1}); err == nil {
		t.Fatalf("expected error for 1-column grid")
	}
	if _, err := NewGridTerrain(0, 0, 1, 1, 2, 2, []float64{0, 1, 2}); err == nil {
		t.Fatalf("expected error for sample count mismatch")
	}
	if _, err := NewGridTerrain(1, 0, 1, 1, 2, 2, []float64{0, 1, 2, 3}); err == nil {
		t.Fatalf("expected error for empty extent")
	}
}

func TestGridTerrainFromFunc(t *testing.T) {
	g, err := GridTerrainFromFunc(0, 0, 1, 1, 3, 3, func(lon, lat float64) float64 { return 100*lon + lat })
	if err != nil {
		t.Fatalf("GridTerrainFromFunc: %v", err)
	}
	// Planar functions are reproduced exactly by bilinear interpolation.
	if got := g.Elevation(0.3, 0.7); math.Abs(got-30.7) > 1e-9 {
		t.Fatalf("Elevation = %v, want 30.7", got)
	}
}

type countingTerrain struct{ calls int }

func (c *countingTerrain) Elevation(lon, lat float64) float64 {
	c.calls++
	return lon + lat
}

func TestCachedTerrainMemoizes(t *testing.T) {
	src := &countingTerrain{}
	c, err := NewCachedTerrain(src, 16, 0.5)
	if err != nil {
		t.Fatalf("NewCachedTerrain: %v", err)
	}

	first := c.Elevation(1.1, 2.1)
	second := c.Elevation(0.9, 1.9) // same 0.5-cell: (1, 2)
	if first != second {
		t.Fatalf("cached values differ: %v vs %v", first, second)
	}
	if first != 3 {
		t.Fatalf("Elevation sampled at %v, want 3 (quantized 1+2)", first)
	}
	if src.calls != 1 {
		t.Fatalf("source called %d times, want 1", src.calls)
	}
	if got := c.HitRatio(); got != 0.5 {
		t.Fatalf("HitRatio = %v, want 0.5", got)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestCachedTerrainRejectsNilSource(t *testing.T) {
	if _, err := NewCachedTerrain(nil, 16, 0); err == nil {
		t.Fatalf("expected error for nil source")
	}
}

func TestGlobeElevation(t *testing.T) {
	g := NewGlobe(nil, FlatTerrain{Height: 12})
	if g.Ellipsoid() == nil {
		t.Fatalf("Ellipsoid() = nil, want WGS84 default")
	}
	if got := g.Elevation(0, 0); got != 12 {
		t.Fatalf("Elevation = %v, want 12", got)
	}
	g.SetElevationScale(2)
	if got := g.ElevationScale(); got != 2 {
		t.Fatalf("ElevationScale = %v, want 2", got)
	}
	if got := NewGlobe(WGS84, nil).Elevation(1, 1); got != 0 {
		t.Fatalf("Elevation without terrain = %v, want 0", got)
	}
}
