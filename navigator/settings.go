package navigator

import (
	"math"
	"time"

	"github.com/signalsfoundry/globe-navigator/numeric"
)

// SpeedModel is the rational speed-vs-clearance curve shared by every
// motion state: the camera slows down near terrain and speeds up with
// altitude. Build it with NewSpeedModel so the derived constant is folded.
type SpeedModel struct {
	BaseSpeed       float64
	Slope           float64
	ReferenceHeight float64
	CappedSpeed     float64

	d      float64
	folded bool
}

// NewSpeedModel builds a speed model from its four parameters.
func NewSpeedModel(baseSpeed, slope, refHeight, cappedSpeed float64) SpeedModel {
	m := SpeedModel{
		BaseSpeed:       baseSpeed,
		Slope:           slope,
		ReferenceHeight: refHeight,
		CappedSpeed:     cappedSpeed,
	}
	m.d = m.fold()
	m.folded = true
	return m
}

// DefaultSpeedModel returns the model used by the globe viewer.
func DefaultSpeedModel() SpeedModel { return NewSpeedModel(50, 1, 100, 60) }

func (m SpeedModel) fold() float64 {
	v0, dvdh, h1, v1 := m.BaseSpeed, m.Slope, m.ReferenceHeight, m.CappedSpeed
	return (v1 - v0*(h1+1)) / (dvdh*h1 - v1) * h1
}

// MaxSpeed returns the speed limit (m/s) at clearance h above terrain. The
// result is not positive very close to or below the terrain.
func (m SpeedModel) MaxSpeed(h float64) float64 {
	d := m.d
	if !m.folded {
		d = m.fold()
	}
	return (m.Slope*d*h*h - (h+1)*m.BaseSpeed) / (d*h + 1)
}

// Settings holds every tunable of the navigator and its motion states.
type Settings struct {
	// MinTerrainHeight is the lowest clearance the camera is allowed.
	MinTerrainHeight float64
	// MinPointerDist bounds the orbit radius around the pointer target.
	MinPointerDist float64
	// NotifyInterval is the period of change notifications.
	NotifyInterval time.Duration

	Speed SpeedModel

	// TurnRate is the base rate limit (rad/s) for azimuth and height
	// angle changes during flights.
	TurnRate float64
	// StopTime is the final window in which orientation is blended
	// linearly toward the target.
	StopTime time.Duration
	// RecomputeInterval is how often flights re-fit their altitude
	// profile.
	RecomputeInterval time.Duration
	// MaxStep caps a single integration step of a motion state.
	MaxStep time.Duration
	// ArrivalEpsilon is the angular tolerance (rad) for lookat arrival.
	ArrivalEpsilon float64
	// LookatHeightAngle is used by GotoLookat when no angle is given. Zero
	// is a valid, horizontal view and is kept as is.
	LookatHeightAngle float64

	CurveSeed            float64
	CurveStep            float64
	CurveSlack           float64
	MaxCurveIterations   int
	IntegrationTolerance float64
	IntegrationDepth     int
}

// DefaultSettings returns the settings of the globe viewer.
func DefaultSettings() Settings {
	return Settings{
		MinTerrainHeight:     2,
		MinPointerDist:       2,
		NotifyInterval:       200 * time.Millisecond,
		Speed:                DefaultSpeedModel(),
		TurnRate:             0.5,
		StopTime:             3 * time.Second,
		RecomputeInterval:    500 * time.Millisecond,
		MaxStep:              100 * time.Millisecond,
		ArrivalEpsilon:       1e-4,
		LookatHeightAngle:    -math.Pi / 4,
		CurveSeed:            -0.001,
		CurveStep:            0.9,
		CurveSlack:           0.1,
		MaxCurveIterations:   64,
		IntegrationTolerance: numeric.DefaultTolerance,
		IntegrationDepth:     7,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MinTerrainHeight <= 0 {
		s.MinTerrainHeight = d.MinTerrainHeight
	}
	if s.MinPointerDist <= 0 {
		s.MinPointerDist = d.MinPointerDist
	}
	if s.NotifyInterval <= 0 {
		s.NotifyInterval = d.NotifyInterval
	}
	if s.Speed == (SpeedModel{}) {
		s.Speed = d.Speed
	}
	if s.TurnRate <= 0 {
		s.TurnRate = d.TurnRate
	}
	if s.StopTime < 0 {
		s.StopTime = d.StopTime
	}
	if s.RecomputeInterval <= 0 {
		s.RecomputeInterval = d.RecomputeInterval
	}
	if s.MaxStep <= 0 {
		s.MaxStep = d.MaxStep
	}
	if s.ArrivalEpsilon <= 0 {
		s.ArrivalEpsilon = d.ArrivalEpsilon
	}
	if s.CurveSeed == 0 {
		s.CurveSeed = d.CurveSeed
	}
	if s.CurveStep <= 0 || s.CurveStep == 1 {
		s.CurveStep = d.CurveStep
	}
	if s.CurveSlack < 0 {
		s.CurveSlack = d.CurveSlack
	}
	if s.MaxCurveIterations <= 0 {
		s.MaxCurveIterations = d.MaxCurveIterations
	}
	if s.IntegrationTolerance <= 0 {
		s.IntegrationTolerance = d.IntegrationTolerance
	}
	if s.IntegrationDepth <= 0 {
		s.IntegrationDepth = d.IntegrationDepth
	}
	return s
}
