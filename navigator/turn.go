package navigator

import (
	"math"

	"github.com/signalsfoundry/globe-navigator/core"
)

// limitAzimuth turns current toward desired along the shorter way by at
// most maxStep radians. The result is normalized to [0, 2π).
func limitAzimuth(current, desired, maxStep float64) float64 {
	diff := core.AdjLon(desired - current)
	if math.Abs(diff) <= maxStep {
		return core.AdjLonPos(desired)
	}
	return core.AdjLonPos(current + math.Copysign(maxStep, diff))
}

// limitPitch moves a height angle toward desired by at most maxStep.
func limitPitch(current, desired, maxStep float64) float64 {
	diff := desired - current
	if math.Abs(diff) <= maxStep {
		return clampPitch(desired)
	}
	return clampPitch(current + math.Copysign(maxStep, diff))
}

// blendAzimuth covers frac of the signed distance to desired.
func blendAzimuth(current, desired, frac float64) float64 {
	if frac >= 1 {
		return core.AdjLonPos(desired)
	}
	return core.AdjLonPos(current + core.AdjLon(desired-current)*frac)
}

func blendPitch(current, desired, frac float64) float64 {
	if frac >= 1 {
		return clampPitch(desired)
	}
	return clampPitch(current + (desired-current)*frac)
}

func clampPitch(ha float64) float64 {
	switch {
	case ha > math.Pi/2:
		return math.Pi / 2
	case ha < -math.Pi/2:
		return -math.Pi / 2
	}
	return ha
}

// bearingTracker measures how fast the bearing to a goal swings, so the
// turn limit can keep up with it near the goal.
type bearingTracker struct {
	prev  float64
	valid bool
}

// rate returns |Δbearing|/dt since the previous sample.
func (b *bearingTracker) rate(bearing, dt float64) float64 {
	defer func() { b.prev, b.valid = bearing, true }()
	if !b.valid || dt <= 0 {
		return 0
	}
	return math.Abs(core.AdjLon(bearing-b.prev)) / dt
}
