package navigator

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/globe-navigator/core"
	"github.com/signalsfoundry/globe-navigator/internal/logging"
	"github.com/signalsfoundry/globe-navigator/model"
	"github.com/signalsfoundry/globe-navigator/timectrl"
)

const (
	initialHeightAngle = -math.Pi / 2
	initialEllipsH     = 12_000_000
)

// GlobeNavigator owns the camera pose over a globe and the active motion
// state. Pose mutators and ViewMatrix must be called from a single
// goroutine (the render loop). Change notifications and the published
// Snapshot are safe to consume from any goroutine.
type GlobeNavigator struct {
	globe    core.GlobeModel
	clock    timectrl.Clock
	log      logging.Logger
	metrics  MetricsRecorder
	tracer   trace.Tracer
	settings Settings

	origin mgl64.Vec3

	lat, lon float64
	hEllps   float64
	hTerrain float64
	az, ha   float64
	pointer  model.PointerTarget

	// elevation is the cached terrain elevation below the camera; it is
	// resampled after any position change.
	elevation      float64
	elevationStale bool

	changes   atomic.Uint32
	published atomic.Pointer[model.Snapshot]

	updater Updater
	walkFly *WalkFlyUpdater
	span    trace.Span

	updateListeners registry[UpdateListener]
	drawListeners   registry[DrawNowListener]
}

// Option configures a GlobeNavigator.
type Option func(*GlobeNavigator)

// WithLogger sets the structured logger.
func WithLogger(l logging.Logger) Option {
	return func(n *GlobeNavigator) {
		if l != nil {
			n.log = l
		}
	}
}

// WithClock sets the time source read by the motion states.
func WithClock(c timectrl.Clock) Option {
	return func(n *GlobeNavigator) {
		if c != nil {
			n.clock = c
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m MetricsRecorder) Option {
	return func(n *GlobeNavigator) {
		if m != nil {
			n.metrics = m
		}
	}
}

// WithSettings overrides the tunables. Zero fields keep their defaults.
func WithSettings(s Settings) Option {
	return func(n *GlobeNavigator) { n.settings = s.withDefaults() }
}

// WithTracer sets the tracer used for maneuver spans. The global otel
// tracer provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(n *GlobeNavigator) {
		if t != nil {
			n.tracer = t
		}
	}
}

// New creates a navigator over globe, which may be nil. Without a globe the
// navigator keeps its pose but motion operations do nothing and the view
// matrix is the identity.
func New(globe core.GlobeModel, opts ...Option) *GlobeNavigator {
	n := &GlobeNavigator{
		globe:          globe,
		clock:          timectrl.WallClock{},
		log:            logging.Noop(),
		metrics:        noopMetrics{},
		tracer:         otel.Tracer("github.com/signalsfoundry/globe-navigator/navigator"),
		settings:       DefaultSettings(),
		ha:             initialHeightAngle,
		hEllps:         initialEllipsH,
		elevationStale: true,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.With(logging.String("component", "navigator"))
	n.changes.Store(uint32(model.AllChanged))
	n.publish()
	return n
}

// Globe returns the globe model, or nil.
func (n *GlobeNavigator) Globe() core.GlobeModel { return n.globe }

// SetGlobe replaces the globe model. The terrain below the camera is
// resampled on the next access.
func (n *GlobeNavigator) SetGlobe(g core.GlobeModel) {
	n.globe = g
	n.invalidateElevation()
	n.markChanged(model.ElevationChanged)
}

// Settings returns the effective tunables.
func (n *GlobeNavigator) Settings() Settings { return n.settings }

// Clock returns the navigator's time source.
func (n *GlobeNavigator) Clock() timectrl.Clock { return n.clock }

func (n *GlobeNavigator) markChanged(f model.ChangeFlags) {
	for {
		old := n.changes.Load()
		if n.changes.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

func (n *GlobeNavigator) invalidateElevation() { n.elevationStale = true }

// Changed returns the pending change flags without consuming them.
func (n *GlobeNavigator) Changed() model.ChangeFlags { return model.ChangeFlags(n.changes.Load()) }

func (n *GlobeNavigator) IsLatChanged() bool       { return n.Changed().Has(model.LatChanged) }
func (n *GlobeNavigator) IsLonChanged() bool       { return n.Changed().Has(model.LonChanged) }
func (n *GlobeNavigator) IsElevationChanged() bool { return n.Changed().Has(model.ElevationChanged) }
func (n *GlobeNavigator) IsAzimutChanged() bool    { return n.Changed().Has(model.AzimuthChanged) }
func (n *GlobeNavigator) IsHaChanged() bool        { return n.Changed().Has(model.HeightAngleChanged) }
func (n *GlobeNavigator) IsPointerChanged() bool   { return n.Changed().Has(model.PointerChanged) }

// Lat returns the latitude in radians.
func (n *GlobeNavigator) Lat() float64 { return n.lat }

// Lon returns the longitude in radians.
func (n *GlobeNavigator) Lon() float64 { return n.lon }

// EllipsHeight returns the height above the ellipsoid in metres.
func (n *GlobeNavigator) EllipsHeight() float64 { return n.hEllps }

// Azimut returns the azimuth in [0, 2π).
func (n *GlobeNavigator) Azimut() float64 { return n.az }

// HeightAngle returns the pitch in [-π/2, π/2].
func (n *GlobeNavigator) HeightAngle() float64 { return n.ha }

// Pointer returns the current pointer target.
func (n *GlobeNavigator) Pointer() model.PointerTarget { return n.pointer }

// Pose returns the current pose.
func (n *GlobeNavigator) Pose() model.Pose {
	return model.Pose{Lat: n.lat, Lon: n.lon, EllipsHeight: n.hEllps, Azimuth: n.az, HeightAngle: n.ha}
}

// Snapshot returns the state published by the last frame.
func (n *GlobeNavigator) Snapshot() model.Snapshot { return *n.published.Load() }

func (n *GlobeNavigator) publish() {
	n.published.Store(&model.Snapshot{
		Pose:          n.Pose(),
		Pointer:       n.pointer,
		TerrainHeight: n.hTerrain,
	})
}

// TerrainHeight returns the camera's clearance above the terrain. The
// terrain is resampled only when the position changed.
func (n *GlobeNavigator) TerrainHeight() float64 {
	n.updateElevation()
	return n.hTerrain
}

// updateElevation reconciles the terrain clearance with the ellipsoid
// height and lifts the camera when it would sink below the minimum
// clearance.
func (n *GlobeNavigator) updateElevation() {
	if n.elevationStale {
		n.elevation = n.elevationAt(n.lon, n.lat)
		n.elevationStale = false
	}
	if math.Abs(n.hTerrain+n.elevation-n.hEllps) > 0.01 {
		n.hTerrain = n.hEllps - n.elevation
		n.markChanged(model.ElevationChanged)
	}
	if n.hTerrain < n.settings.MinTerrainHeight {
		n.hTerrain = n.settings.MinTerrainHeight
		n.hEllps = n.hTerrain + n.elevation
		n.markChanged(model.ElevationChanged)
	}
}

// elevationAt samples the scaled terrain elevation.
func (n *GlobeNavigator) elevationAt(lon, lat float64) float64 {
	if n.globe == nil {
		return 0
	}
	return n.globe.Elevation(lon, lat) * n.globe.ElevationScale()
}

// SetLat sets the latitude.
func (n *GlobeNavigator) SetLat(lat float64) {
	if n.lat != lat {
		n.lat = lat
		n.invalidateElevation()
		n.markChanged(model.LatChanged)
	}
}

// SetLon sets the longitude.
func (n *GlobeNavigator) SetLon(lon float64) {
	if n.lon != lon {
		n.lon = lon
		n.invalidateElevation()
		n.markChanged(model.LonChanged)
	}
}

// SetPosition moves the camera keeping its ellipsoid height.
func (n *GlobeNavigator) SetPosition(lat, lon float64) {
	n.SetLat(lat)
	n.SetLon(lon)
}

// SetPositionHeight moves the camera and sets its ellipsoid height.
func (n *GlobeNavigator) SetPositionHeight(lat, lon, h float64) {
	n.SetPosition(lat, lon)
	n.SetEllipsHeight(h)
}

// SetEllipsHeight sets the height above the ellipsoid.
func (n *GlobeNavigator) SetEllipsHeight(h float64) {
	if n.hEllps != h {
		n.hEllps = h
		n.markChanged(model.ElevationChanged)
	}
}

// SetTerrainHeight sets the clearance above the terrain by moving the
// camera vertically.
func (n *GlobeNavigator) SetTerrainHeight(h float64) {
	d := h - n.TerrainHeight()
	if d != 0 {
		n.hEllps += d
		n.markChanged(model.ElevationChanged)
	}
}

// SetAzimut sets the azimuth, normalized to [0, 2π).
func (n *GlobeNavigator) SetAzimut(az float64) {
	az = core.AdjLonPos(az)
	if n.az != az {
		n.az = az
		n.markChanged(model.AzimuthChanged)
	}
}

// SetHeightAngle sets the pitch, clamped to [-π/2, π/2].
func (n *GlobeNavigator) SetHeightAngle(ha float64) {
	ha = clampPitch(ha)
	if n.ha != ha {
		n.ha = ha
		n.markChanged(model.HeightAngleChanged)
	}
}

// SetPointer records the picked ground point used by RotateAroundPointer.
func (n *GlobeNavigator) SetPointer(lon, lat, h, dist float64) {
	dist = math.Max(dist, n.settings.MinPointerDist)
	p := model.PointerTarget{Lon: lon, Lat: lat, Height: h, Dist: dist}
	if p != n.pointer {
		n.pointer = p
		n.markChanged(model.PointerChanged)
	}
}

// Translate moves the camera dist metres along the absolute azimuth tAz
// and height angle tHa. With correctAz the view azimuth is carried along
// the geodesic so it keeps its heading relative to the direction of travel.
func (n *GlobeNavigator) Translate(dist, tAz, tHa float64, correctAz bool) {
	if n.globe == nil || dist == 0 {
		return
	}
	hDist := dist * math.Cos(tHa)
	vDist := dist * math.Sin(tHa)
	p := n.globe.Ellipsoid().Forward(n.lat, n.lon, hDist, tAz)
	n.SetPosition(p.Lat, p.Lon)
	n.SetEllipsHeight(n.hEllps + vDist)
	if correctAz {
		n.SetAzimut(n.az + p.Az + math.Pi - tAz)
	}
}

// TranslateForward moves along the view direction, keeping the geodesic
// heading.
func (n *GlobeNavigator) TranslateForward(dist float64) {
	if n.globe == nil || dist == 0 {
		return
	}
	hDist := dist * math.Cos(n.ha)
	vDist := dist * math.Sin(n.ha)
	p := n.globe.Ellipsoid().Forward(n.lat, n.lon, hDist, n.az)
	n.SetPosition(p.Lat, p.Lon)
	n.SetAzimut(p.Az + math.Pi)
	n.SetEllipsHeight(n.hEllps + vDist)
}

// TranslateUpDown moves along the camera's up vector.
func (n *GlobeNavigator) TranslateUpDown(dist float64) {
	if n.globe == nil || dist == 0 {
		return
	}
	hDist := dist * math.Cos(math.Pi/2+n.ha)
	vDist := dist * math.Sin(math.Pi/2+n.ha)
	n.SetEllipsHeight(n.hEllps + vDist)
	if hDist != 0 {
		p := n.globe.Ellipsoid().Forward(n.lat, n.lon, hDist, n.az)
		n.SetPosition(p.Lat, p.Lon)
		n.SetAzimut(p.Az + math.Pi)
	}
}

// TranslateSideway moves to the left for positive dist.
func (n *GlobeNavigator) TranslateSideway(dist float64) {
	if n.globe == nil || dist == 0 {
		return
	}
	p := n.globe.Ellipsoid().Forward(n.lat, n.lon, -dist, n.az+math.Pi/2)
	n.SetPosition(p.Lat, p.Lon)
	n.SetAzimut(p.Az + math.Pi/2)
}

// RotateAz turns the view by d radians.
func (n *GlobeNavigator) RotateAz(d float64) { n.SetAzimut(n.az + d) }

// RotateAroundPointer orbits the camera around the pointer target by
// xRot (horizontal) and yRot (vertical) radians. Rotation steps are bounded
// so the camera never sweeps more than a tenth of its clearance per call.
func (n *GlobeNavigator) RotateAroundPointer(xRot, yRot float64) {
	if n.globe == nil || n.pointer.Dist <= 0 {
		return
	}
	ellps := n.globe.Ellipsoid()
	pd := n.pointer.Dist
	hT := math.Max(n.TerrainHeight(), 0)

	if math.Abs(pd*math.Sin(xRot)) > hT/10 {
		xRot = math.Copysign(math.Asin(hT/pd/10), xRot)
	}
	if math.Abs(pd*math.Sin(yRot)) > hT/10 {
		yRot = math.Copysign(math.Asin(hT/pd/10), yRot)
	}

	// sideways
	dx := pd * math.Sin(xRot)
	p := ellps.Forward(n.lat, n.lon, -dx*math.Cos(n.ha), n.az+math.Pi/2)
	n.SetPosition(p.Lat, p.Lon)
	n.SetAzimut(p.Az + math.Pi/2)

	// along the camera's up vector
	dy := pd * math.Sin(yRot)
	n.SetEllipsHeight(n.hEllps + dy*math.Sin(math.Pi/2+n.ha))
	p = ellps.Forward(n.lat, n.lon, dy*math.Cos(math.Pi/2+n.ha), n.az)
	n.SetPosition(p.Lat, p.Lon)
	n.SetAzimut(p.Az + math.Pi)

	// toward the pivot, keeping the orbit radius
	dxy := pd * (1 - math.Cos(xRot)) * (1 - math.Cos(yRot))
	n.SetEllipsHeight(n.hEllps + dxy*math.Sin(n.ha))
	p = ellps.Forward(n.lat, n.lon, dxy*math.Cos(n.ha), n.az)
	n.SetPosition(p.Lat, p.Lon)
	n.SetAzimut(p.Az + math.Pi + xRot)

	n.SetHeightAngle(n.ha - yRot)
	n.markChanged(model.PositionChanged | model.AzimuthChanged | model.HeightAngleChanged)
}

// MaxSpeed returns the speed limit at the camera's current clearance.
func (n *GlobeNavigator) MaxSpeed() float64 {
	return n.settings.Speed.MaxSpeed(n.TerrainHeight())
}

// Origin returns the floating origin the view matrix is relative to.
func (n *GlobeNavigator) Origin() mgl64.Vec3 { return n.origin }

// UpdateOrigin moves the floating origin.
func (n *GlobeNavigator) UpdateOrigin(o mgl64.Vec3) { n.origin = o }

// RequestUpdateOrigin asks the navigator to move the floating origin and
// reports whether it did. The navigator always accepts.
func (n *GlobeNavigator) RequestUpdateOrigin(o mgl64.Vec3) bool {
	n.UpdateOrigin(o)
	return true
}

// Eye returns the camera position in earth-centred coordinates.
func (n *GlobeNavigator) Eye() mgl64.Vec3 {
	if n.globe == nil {
		return mgl64.Vec3{}
	}
	return n.globe.Ellipsoid().ToCartesian(n.lat, n.lon, n.hEllps)
}

// ViewMatrix advances the active motion state by one frame, reconciles
// the terrain clearance and returns the world-to-camera transform
// relative to the floating origin.
func (n *GlobeNavigator) ViewMatrix() mgl32.Mat4 {
	start := time.Now()
	if n.updater != nil {
		n.updater.Update()
	}
	n.updateElevation()
	m := n.ComputeViewMatrix(n.lat, n.lon, n.hEllps, n.az, n.ha)
	n.publish()
	n.metrics.ObserveFrame(time.Since(start))
	return m
}

// ComputeViewMatrix returns the world-to-camera transform for an arbitrary
// pose without touching the navigator state.
func (n *GlobeNavigator) ComputeViewMatrix(lat, lon, h, az, ha float64) mgl32.Mat4 {
	if n.globe == nil {
		return mgl32.Ident4()
	}
	cam := n.globe.Ellipsoid().SurfaceTransform(lat, lon, h, az, ha, n.origin)
	view := cam.Inv()
	var out mgl32.Mat4
	for i := range view {
		out[i] = float32(view[i])
	}
	return out
}

// Updater returns the active motion state, or nil when idle.
func (n *GlobeNavigator) Updater() Updater { return n.updater }

// SetUpdater makes u the active motion state. It is the only way states
// replace each other: a new request simply supersedes the running one.
func (n *GlobeNavigator) SetUpdater(u Updater) {
	prev := n.updater
	if prev == u {
		return
	}
	n.updater = u
	from, to := kindOf(prev), kindOf(u)
	n.metrics.IncTransition(from, to)
	n.log.Debug(context.Background(), "updater transition",
		logging.String("from", from),
		logging.String("to", to),
	)

	if n.span != nil {
		n.span.SetAttributes(attribute.Bool("navigator.completed", prev != nil && prev.Next() == u))
		n.span.End()
		n.span = nil
	}
	if u != nil && u.Kind() != KindWalkFly {
		_, n.span = n.tracer.Start(context.Background(), "navigator."+u.Kind(),
			trace.WithAttributes(
				attribute.Float64("navigator.start.lat", n.lat),
				attribute.Float64("navigator.start.lon", n.lon),
				attribute.Float64("navigator.start.height", n.hEllps),
			))
	}
}

// WalkFly activates the interactive walk/fly state and returns it. When
// it was not already active its speed is reset to zero.
func (n *GlobeNavigator) WalkFly() *WalkFlyUpdater {
	if n.walkFly == nil {
		n.walkFly = NewWalkFly(n)
	}
	if n.updater != Updater(n.walkFly) {
		n.walkFly.StopSpeed()
		n.walkFly.rearm()
		n.SetUpdater(n.walkFly)
	}
	return n.walkFly
}

// GotoViewpoint starts a flight that ends exactly at vp.
func (n *GlobeNavigator) GotoViewpoint(vp model.Viewpoint) {
	if n.globe == nil {
		return
	}
	n.log.Info(context.Background(), "flying to viewpoint",
		logging.Float64("lat", vp.Lat),
		logging.Float64("lon", vp.Lon),
		logging.Float64("height", vp.Height),
	)
	n.SetUpdater(NewFlyToViewpoint(n, vp, nil))
}

// GotoLookat flies to a point stopDist metres from the target, looking at
// it along the current bearing with the default height angle.
func (n *GlobeNavigator) GotoLookat(lon, lat, stopDist float64) {
	n.GotoLookatOriented(lon, lat, stopDist, false, n.settings.LookatHeightAngle)
}

// GotoLookatOriented is GotoLookat with an explicit height angle. With
// northUp the camera ends up north-facing; otherwise its final azimuth
// follows the approach bearing.
func (n *GlobeNavigator) GotoLookatOriented(lon, lat, stopDist float64, northUp bool, ha float64) {
	if n.globe == nil {
		return
	}
	n.log.Info(context.Background(), "flying to lookat",
		logging.Float64("lat", lat),
		logging.Float64("lon", lon),
		logging.Float64("stop_dist", stopDist),
		logging.Bool("north_up", northUp),
	)
	u := NewFlyToLookat(n, lon, lat, stopDist, ha, nil)
	if northUp {
		u.FixAzimuth(0)
	}
	n.SetUpdater(u)
}

// FlyPath flies to the first waypoint and then follows the rest of the
// path, each waypoint reached after its own duration.
func (n *GlobeNavigator) FlyPath(path []model.PathPoint) {
	if n.globe == nil || len(path) == 0 {
		return
	}
	n.log.Info(context.Background(), "flying path", logging.Int("waypoints", len(path)))
	follow := NewPathUpdater(n, path[1:], nil)
	n.SetUpdater(NewFlyToViewpoint(n, path[0].Viewpoint, follow))
}
