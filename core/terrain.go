package core

import (
	"fmt"
	"math"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ElevationProvider returns terrain height (m above the ellipsoid) at a
// longitude/latitude in radians.
type ElevationProvider interface {
	Elevation(lon, lat float64) float64
}

// FlatTerrain is a constant-height terrain.
type FlatTerrain struct {
	Height float64
}

// Elevation returns the constant height.
func (f FlatTerrain) Elevation(lon, lat float64) float64 { return f.Height }

// GridTerrain samples a regular lon/lat grid with bilinear interpolation.
// Queries outside the grid are clamped to its border.
type GridTerrain struct {
	west, south float64
	dLon, dLat  float64
	cols, rows  int
	samples     []float64 // row-major, south to north
}

// NewGridTerrain builds a grid covering [west, east] × [south, north]
// (radians) from cols×rows samples stored row by row from the south edge.
func NewGridTerrain(west, south, east, north float64, cols, rows int, samples []float64) (*GridTerrain, error) {
	if cols < 2 || rows < 2 {
		return nil, fmt.Errorf("grid terrain needs at least 2x2 samples, got %dx%d", cols, rows)
	}
	if len(samples) != cols*rows {
		return nil, fmt.Errorf("grid terrain: got %d samples, want %d", len(samples), cols*rows)
	}
	if !(east > west) || !(north > south) {
		return nil, fmt.Errorf("grid terrain: empty extent [%v,%v]x[%v,%v]", west, east, south, north)
	}
	return &GridTerrain{
		west:    west,
		south:   south,
		dLon:    (east - west) / float64(cols-1),
		dLat:    (north - south) / float64(rows-1),
		cols:    cols,
		rows:    rows,
		samples: append([]float64(nil), samples...),
	}, nil
}

// GridTerrainFromFunc samples fn on a cols×rows grid.
func GridTerrainFromFunc(west, south, east, north float64, cols, rows int, fn func(lon, lat float64) float64) (*GridTerrain, error) {
	if cols < 2 || rows < 2 {
		return nil, fmt.Errorf("grid terrain needs at least 2x2 samples, got %dx%d", cols, rows)
	}
	samples := make([]float64, 0, cols*rows)
	for r := 0; r < rows; r++ {
		lat := south + (north-south)*float64(r)/float64(rows-1)
		for c := 0; c < cols; c++ {
			lon := west + (east-west)*float64(c)/float64(cols-1)
			samples = append(samples, fn(lon, lat))
		}
	}
	return NewGridTerrain(west, south, east, north, cols, rows, samples)
}

// Elevation interpolates the grid at lon/lat.
func (g *GridTerrain) Elevation(lon, lat float64) float64 {
	fx := clamp((lon-g.west)/g.dLon, 0, float64(g.cols-1))
	fy := clamp((lat-g.south)/g.dLat, 0, float64(g.rows-1))
	x0, y0 := int(fx), int(fy)
	if x0 == g.cols-1 {
		x0--
	}
	if y0 == g.rows-1 {
		y0--
	}
	tx, ty := fx-float64(x0), fy-float64(y0)

	at := func(x, y int) float64 { return g.samples[y*g.cols+x] }
	south := at(x0, y0)*(1-tx) + at(x0+1, y0)*tx
	north := at(x0, y0+1)*(1-tx) + at(x0+1, y0+1)*tx
	return south*(1-ty) + north*ty
}

// CachedTerrain memoizes an expensive provider. Positions are quantized to
// a fixed angular step before lookup, and the wrapped provider is sampled
// at the quantized position so results do not depend on query order.
type CachedTerrain struct {
	src     ElevationProvider
	quantum float64
	cache   *lru.Cache[cellKey, float64]

	hits   atomic.Uint64
	misses atomic.Uint64
}

type cellKey struct{ x, y int64 }

// DefaultQuantum is roughly 0.6 m on the ground.
const DefaultQuantum = 1e-7

// NewCachedTerrain wraps src with an LRU of the given size.
func NewCachedTerrain(src ElevationProvider, size int, quantum float64) (*CachedTerrain, error) {
	if src == nil {
		return nil, fmt.Errorf("cached terrain: nil source")
	}
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	c, err := lru.New[cellKey, float64](size)
	if err != nil {
		return nil, fmt.Errorf("cached terrain: %w", err)
	}
	return &CachedTerrain{src: src, quantum: quantum, cache: c}, nil
}

// Elevation returns the cached sample for the cell containing lon/lat.
func (c *CachedTerrain) Elevation(lon, lat float64) float64 {
	k := cellKey{int64(math.Round(lon / c.quantum)), int64(math.Round(lat / c.quantum))}
	if h, ok := c.cache.Get(k); ok {
		c.hits.Add(1)
		return h
	}
	c.misses.Add(1)
	h := c.src.Elevation(float64(k.x)*c.quantum, float64(k.y)*c.quantum)
	c.cache.Add(k, h)
	return h
}

// HitRatio returns the fraction of lookups served from the cache.
func (c *CachedTerrain) HitRatio() float64 {
	h, m := c.hits.Load(), c.misses.Load()
	if h+m == 0 {
		return 0
	}
	return float64(h) / float64(h+m)
}

// Len returns the number of cached cells.
func (c *CachedTerrain) Len() int { return c.cache.Len() }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
