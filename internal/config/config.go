package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/globe-navigator/bookmarks"
	"github.com/signalsfoundry/globe-navigator/core"
	"github.com/signalsfoundry/globe-navigator/internal/observability"
	"github.com/signalsfoundry/globe-navigator/model"
	"github.com/signalsfoundry/globe-navigator/navigator"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the on-disk configuration of a navigator session. Angles are
// in degrees, heights in metres.
type Config struct {
	Navigator  NavigatorConfig   `yaml:"navigator"`
	Terrain    TerrainConfig     `yaml:"terrain"`
	Viewpoints []ViewpointConfig `yaml:"viewpoints"`
	// Start names the viewpoint the camera is placed at on startup.
	Start   string                      `yaml:"start,omitempty"`
	Tour    TourConfig                  `yaml:"tour"`
	Tracing observability.TracingConfig `yaml:"tracing"`
}

type NavigatorConfig struct {
	MinTerrainHeight  float64       `yaml:"min_terrain_height"`
	MinPointerDist    float64       `yaml:"min_pointer_dist"`
	NotifyInterval    time.Duration `yaml:"notify_interval"`
	TurnRate          float64       `yaml:"turn_rate"`
	StopTime          time.Duration `yaml:"stop_time"`
	RecomputeInterval time.Duration `yaml:"recompute_interval"`
	MaxStep           time.Duration `yaml:"max_step"`
	ArrivalEpsilon    float64       `yaml:"arrival_epsilon"`
	LookatHeightAngle float64       `yaml:"lookat_height_angle"`

	Speed       SpeedConfig       `yaml:"speed"`
	Curve       CurveConfig       `yaml:"curve"`
	Integration IntegrationConfig `yaml:"integration"`
}

type SpeedConfig struct {
	BaseSpeed       float64 `yaml:"base_speed"`
	Slope           float64 `yaml:"slope"`
	ReferenceHeight float64 `yaml:"reference_height"`
	CappedSpeed     float64 `yaml:"capped_speed"`
}

// CurveConfig tunes the altitude profile search.
type CurveConfig struct {
	Seed          float64 `yaml:"seed"`
	Step          float64 `yaml:"step"`
	Slack         float64 `yaml:"slack"`
	MaxIterations int     `yaml:"max_iterations"`
}

type IntegrationConfig struct {
	Tolerance float64 `yaml:"tolerance"`
	Depth     int     `yaml:"depth"`
}

// TerrainConfig controls the elevation cache in front of the terrain
// source.
type TerrainConfig struct {
	CacheSize int `yaml:"cache_size"`
	// Quantum is the cache cell size in degrees.
	Quantum float64 `yaml:"quantum"`
	Scale   float64 `yaml:"scale"`
}

// ViewpointConfig is a named viewpoint. Azimuth and height angle default
// to north and straight down.
type ViewpointConfig struct {
	Name        string  `yaml:"name"`
	Lon         float64 `yaml:"lon"`
	Lat         float64 `yaml:"lat"`
	Height      float64 `yaml:"height"`
	Azimuth     float64 `yaml:"azimuth"`
	HeightAngle float64 `yaml:"height_angle"`
}

// TourConfig lists viewpoints flown in order by FlyPath.
type TourConfig struct {
	Stops []string      `yaml:"stops"`
	Leg   time.Duration `yaml:"leg"`
	Loop  bool          `yaml:"loop"`
}

// Default returns a configuration matching navigator.DefaultSettings.
func Default() Config {
	s := navigator.DefaultSettings()
	return Config{
		Navigator: NavigatorConfig{
			MinTerrainHeight:  s.MinTerrainHeight,
			MinPointerDist:    s.MinPointerDist,
			NotifyInterval:    s.NotifyInterval,
			TurnRate:          s.TurnRate,
			StopTime:          s.StopTime,
			RecomputeInterval: s.RecomputeInterval,
			MaxStep:           s.MaxStep,
			ArrivalEpsilon:    s.ArrivalEpsilon,
			LookatHeightAngle: s.LookatHeightAngle * 180 / math.Pi,
			Speed: SpeedConfig{
				BaseSpeed:       s.Speed.BaseSpeed,
				Slope:           s.Speed.Slope,
				ReferenceHeight: s.Speed.ReferenceHeight,
				CappedSpeed:     s.Speed.CappedSpeed,
			},
			Curve: CurveConfig{
				Seed:          s.CurveSeed,
				Step:          s.CurveStep,
				Slack:         s.CurveSlack,
				MaxIterations: s.MaxCurveIterations,
			},
			Integration: IntegrationConfig{
				Tolerance: s.IntegrationTolerance,
				Depth:     s.IntegrationDepth,
			},
		},
		Terrain: TerrainConfig{
			CacheSize: 4096,
			Quantum:   core.DefaultQuantum * 180 / math.Pi,
			Scale:     1,
		},
		Tour:    TourConfig{Leg: 10 * time.Second},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by NAV_CONFIG, or the defaults when it
// is unset, and applies the NAV_ environment overrides on top.
func LoadFromEnv() (Config, error) {
	cfg := Default()
	if path := os.Getenv("NAV_CONFIG"); path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from environment variables read through
// getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if raw := strings.TrimSpace(getenv("NAV_NOTIFY_INTERVAL")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("NAV_NOTIFY_INTERVAL %q: %w", raw, ErrInvalid)
		}
		c.Navigator.NotifyInterval = d
	}
	if raw := strings.TrimSpace(getenv("NAV_TURN_RATE")); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("NAV_TURN_RATE %q: %w", raw, ErrInvalid)
		}
		c.Navigator.TurnRate = r
	}
	if err := c.Tracing.ApplyEnv(getenv); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	return nil
}

// Validate reports the first out-of-range value.
func (c Config) Validate() error {
	n := c.Navigator
	switch {
	case n.MinTerrainHeight <= 0:
		return invalid("navigator.min_terrain_height must be positive, got %v", n.MinTerrainHeight)
	case n.MinPointerDist <= 0:
		return invalid("navigator.min_pointer_dist must be positive, got %v", n.MinPointerDist)
	case n.NotifyInterval <= 0:
		return invalid("navigator.notify_interval must be positive, got %v", n.NotifyInterval)
	case n.TurnRate <= 0:
		return invalid("navigator.turn_rate must be positive, got %v", n.TurnRate)
	case n.StopTime < 0:
		return invalid("navigator.stop_time must not be negative, got %v", n.StopTime)
	case n.RecomputeInterval <= 0:
		return invalid("navigator.recompute_interval must be positive, got %v", n.RecomputeInterval)
	case n.MaxStep <= 0:
		return invalid("navigator.max_step must be positive, got %v", n.MaxStep)
	case n.ArrivalEpsilon <= 0:
		return invalid("navigator.arrival_epsilon must be positive, got %v", n.ArrivalEpsilon)
	case n.LookatHeightAngle < -90 || n.LookatHeightAngle > 90:
		return invalid("navigator.lookat_height_angle must be within [-90, 90], got %v", n.LookatHeightAngle)
	case n.Speed.Slope*n.Speed.ReferenceHeight == n.Speed.CappedSpeed:
		return invalid("navigator.speed: slope*reference_height equals capped_speed")
	case n.Curve.Step <= 0 || n.Curve.Step == 1:
		return invalid("navigator.curve.step must be positive and not 1, got %v", n.Curve.Step)
	case n.Curve.Slack < 0:
		return invalid("navigator.curve.slack must not be negative, got %v", n.Curve.Slack)
	case n.Curve.MaxIterations <= 0:
		return invalid("navigator.curve.max_iterations must be positive, got %d", n.Curve.MaxIterations)
	case n.Integration.Tolerance <= 0:
		return invalid("navigator.integration.tolerance must be positive, got %v", n.Integration.Tolerance)
	case n.Integration.Depth <= 0:
		return invalid("navigator.integration.depth must be positive, got %d", n.Integration.Depth)
	case c.Terrain.CacheSize <= 0:
		return invalid("terrain.cache_size must be positive, got %d", c.Terrain.CacheSize)
	case c.Terrain.Quantum < 0:
		return invalid("terrain.quantum must not be negative, got %v", c.Terrain.Quantum)
	case c.Tour.Leg < 0:
		return invalid("tour.leg must not be negative, got %v", c.Tour.Leg)
	}

	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}

	seen := make(map[string]struct{}, len(c.Viewpoints))
	for i, vp := range c.Viewpoints {
		if vp.Name == "" {
			return invalid("viewpoints[%d]: empty name", i)
		}
		if _, dup := seen[vp.Name]; dup {
			return invalid("viewpoints[%d]: duplicate name %q", i, vp.Name)
		}
		seen[vp.Name] = struct{}{}
		if vp.Lat < -90 || vp.Lat > 90 {
			return invalid("viewpoint %q: lat %v out of range", vp.Name, vp.Lat)
		}
		if vp.HeightAngle < -90 || vp.HeightAngle > 90 {
			return invalid("viewpoint %q: height_angle %v out of range", vp.Name, vp.HeightAngle)
		}
	}
	if _, ok := seen[c.Start]; c.Start != "" && !ok {
		return invalid("start: unknown viewpoint %q", c.Start)
	}
	for _, stop := range c.Tour.Stops {
		if _, ok := seen[stop]; !ok {
			return invalid("tour: unknown viewpoint %q", stop)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalid)
}

// Settings converts the navigator section to navigator.Settings.
func (c Config) Settings() navigator.Settings {
	n := c.Navigator
	return navigator.Settings{
		MinTerrainHeight:     n.MinTerrainHeight,
		MinPointerDist:       n.MinPointerDist,
		NotifyInterval:       n.NotifyInterval,
		Speed:                navigator.NewSpeedModel(n.Speed.BaseSpeed, n.Speed.Slope, n.Speed.ReferenceHeight, n.Speed.CappedSpeed),
		TurnRate:             n.TurnRate,
		StopTime:             n.StopTime,
		RecomputeInterval:    n.RecomputeInterval,
		MaxStep:              n.MaxStep,
		ArrivalEpsilon:       n.ArrivalEpsilon,
		LookatHeightAngle:    n.LookatHeightAngle * math.Pi / 180,
		CurveSeed:            n.Curve.Seed,
		CurveStep:            n.Curve.Step,
		CurveSlack:           n.Curve.Slack,
		MaxCurveIterations:   n.Curve.MaxIterations,
		IntegrationTolerance: n.Integration.Tolerance,
		IntegrationDepth:     n.Integration.Depth,
	}
}

// Viewpoint converts a configured viewpoint to radians.
func (v ViewpointConfig) Viewpoint() model.Viewpoint {
	return model.ViewpointFromDegrees(v.Lon, v.Lat, v.Height, v.Azimuth, v.HeightAngle)
}

// Bookmarks fills a new store with the configured viewpoints.
func (c Config) Bookmarks() (*bookmarks.Store, error) {
	store := bookmarks.NewStore()
	for _, vp := range c.Viewpoints {
		if err := store.Add(vp.Name, vp.Viewpoint()); err != nil {
			return nil, fmt.Errorf("config bookmarks: %w", err)
		}
	}
	return store, nil
}

// QuantumRadians returns the terrain cache cell size in radians.
func (t TerrainConfig) QuantumRadians() float64 {
	return t.Quantum * math.Pi / 180
}
