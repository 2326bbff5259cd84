package navigator

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/globe-navigator/core"
	"github.com/signalsfoundry/globe-navigator/model"
)

const frame = 16 * time.Millisecond

type recordingMetrics struct {
	noopMetrics
	transitions []string
	searches    int
	estimates   []float64
}

func (m *recordingMetrics) IncTransition(from, to string) {
	m.transitions = append(m.transitions, from+">"+to)
}
func (m *recordingMetrics) ObserveCurveSearch(int)              { m.searches++ }
func (m *recordingMetrics) ObserveTravelTimeEstimate(s float64) { m.estimates = append(m.estimates, s) }

func groundPoint(nav *GlobeNavigator, lon, lat float64) mgl64.Vec3 {
	return nav.Globe().Ellipsoid().ToCartesian(lat, lon, 0)
}

type stubUpdater struct{ updates int }

func (s *stubUpdater) Update()        { s.updates++ }
func (s *stubUpdater) IsActive() bool { return true }
func (s *stubUpdater) Next() Updater  { return nil }
func (s *stubUpdater) Kind() string   { return "stub" }

// runUntilIdle renders frames until no motion state is active.
func runUntilIdle(t *testing.T, nav *GlobeNavigator, advance func(), maxFrames int) int {
	t.Helper()
	for i := 0; i < maxFrames; i++ {
		if nav.Updater() == nil {
			return i
		}
		advance()
		nav.ViewMatrix()
	}
	t.Fatalf("still %s after %d frames", kindOf(nav.Updater()), maxFrames)
	return maxFrames
}

func TestFlyToCurrentPoseFinishesOnFirstFrame(t *testing.T) {
	metrics := &recordingMetrics{}
	nav, clock := newTestNavigator(t, core.FlatTerrain{}, WithMetrics(metrics))
	nav.SetPositionHeight(0.1, 0.2, 1500)
	nav.SetAzimut(1)
	nav.SetHeightAngle(-0.3)
	pose := nav.Pose()

	nav.GotoViewpoint(model.ViewpointFromPose(pose))
	clock.Advance(frame)
	nav.ViewMatrix()

	if nav.Updater() != nil {
		t.Fatalf("Updater() = %s, want nil after the first frame", nav.Updater().Kind())
	}
	if nav.Pose() != pose {
		t.Fatalf("Pose() = %+v, want unchanged %+v", nav.Pose(), pose)
	}
	want := []string{"none>" + KindFlyToView, KindFlyToView + ">none"}
	if len(metrics.transitions) != 2 || metrics.transitions[0] != want[0] || metrics.transitions[1] != want[1] {
		t.Fatalf("transitions = %v, want %v", metrics.transitions, want)
	}
}

func TestFlyToViewpointHandsOverToNext(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, 0, 1000)
	next := &stubUpdater{}

	u := NewFlyToViewpoint(nav, model.ViewpointFromPose(nav.Pose()), next)
	nav.SetUpdater(u)
	clock.Advance(frame)
	nav.ViewMatrix()
	if nav.Updater() != Updater(next) {
		t.Fatalf("Updater() = %v, want the chained state", nav.Updater())
	}
	if u.Next() != Updater(next) || u.IsActive() {
		t.Fatalf("finished flight should be inactive and point at its successor")
	}

	clock.Advance(frame)
	nav.ViewMatrix()
	if next.updates != 1 {
		t.Fatalf("chained state updated %d times, want 1", next.updates)
	}
}

func TestFlyToViewpointStraightFlight(t *testing.T) {
	metrics := &recordingMetrics{}
	nav, clock := newTestNavigator(t, core.FlatTerrain{}, WithMetrics(metrics))
	nav.SetPositionHeight(0, 0, 1000)
	nav.SetAzimut(0)
	nav.SetHeightAngle(0)

	target := model.Viewpoint{Lon: 0.01, Lat: 0, Height: 1000, Azimuth: 0, HeightAngle: 0}
	nav.GotoViewpoint(target)
	u, ok := nav.Updater().(*FlyToViewpointUpdater)
	if !ok {
		t.Fatalf("Updater() = %T, want *FlyToViewpointUpdater", nav.Updater())
	}

	ellps := nav.Globe().Ellipsoid()
	settings := nav.Settings()
	dt := frame.Seconds()
	prevBearing, haveBearing := 0.0, false

	frames := 0
	for ; frames < 40000 && nav.Updater() != nil; frames++ {
		before := nav.Pose()
		bearing := ellps.Inverse(before.Lat, before.Lon, target.Lat, target.Lon).Az12
		bearingDelta := 0.0
		if haveBearing {
			bearingDelta = math.Abs(core.AdjLon(bearing - prevBearing))
		}
		prevBearing, haveBearing = bearing, true

		clock.Advance(frame)
		nav.ViewMatrix()

		if nav.Updater() == Updater(u) && u.timeleft > settings.StopTime.Seconds() {
			turned := math.Abs(core.AdjLon(nav.Azimut() - before.Azimuth))
			if limit := settings.TurnRate*dt + bearingDelta + 1e-9; turned > limit {
				t.Fatalf("frame %d: azimuth moved %v rad, limit %v", frames, turned, limit)
			}
			pitched := math.Abs(nav.HeightAngle() - before.HeightAngle)
			if limit := (settings.TurnRate+bearingDelta/dt)*dt + 1e-9; pitched > limit {
				t.Fatalf("frame %d: height angle moved %v rad, limit %v", frames, pitched, limit)
			}
		}
	}

	if nav.Updater() != nil {
		t.Fatalf("flight did not finish after %d frames", frames)
	}
	got := nav.Pose()
	if got != target.Pose() {
		t.Fatalf("final pose = %+v, want exactly %+v", got, target.Pose())
	}
	if metrics.searches == 0 || len(metrics.estimates) == 0 {
		t.Fatalf("curve searches = %d, estimates = %d, want both recorded", metrics.searches, len(metrics.estimates))
	}
	for _, e := range metrics.estimates {
		if math.IsInf(e, 0) || math.IsNaN(e) || e < 0 {
			t.Fatalf("travel time estimate %v is not usable", e)
		}
	}
}

func TestFlyToViewpointSubdividesLongFrames(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, 0, 1000)
	nav.SetAzimut(math.Pi / 2)
	nav.SetHeightAngle(0)
	target := model.Viewpoint{Lon: 0.002, Height: 1000, Azimuth: math.Pi / 2}
	nav.GotoViewpoint(target)

	// a stalled renderer catches up in bounded steps and still lands exactly
	runUntilIdle(t, nav, func() { clock.Advance(2 * time.Second) }, 500)
	if nav.Pose() != target.Pose() {
		t.Fatalf("final pose = %+v, want %+v", nav.Pose(), target.Pose())
	}
}

func TestGotoReplacesActiveManeuver(t *testing.T) {
	metrics := &recordingMetrics{}
	nav, clock := newTestNavigator(t, core.FlatTerrain{}, WithMetrics(metrics))
	nav.SetPositionHeight(0, 0, 1000)

	nav.GotoViewpoint(model.Viewpoint{Lon: 0.01, Height: 1000})
	clock.Advance(frame)
	nav.ViewMatrix()
	nav.GotoLookat(0.02, 0, 500)

	if nav.Updater().Kind() != KindFlyToLookat {
		t.Fatalf("Updater().Kind() = %s, want %s", nav.Updater().Kind(), KindFlyToLookat)
	}
	last := metrics.transitions[len(metrics.transitions)-1]
	if last != KindFlyToView+">"+KindFlyToLookat {
		t.Fatalf("last transition = %s", last)
	}
}

func TestWalkFly(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, 0, 1000)
	nav.SetAzimut(math.Pi / 2)
	nav.SetHeightAngle(0)

	w := nav.WalkFly()
	if nav.Updater() != Updater(w) || w.IsActive() {
		t.Fatalf("WalkFly() should activate an idle walk/fly state")
	}
	w.SetSpeed(2)
	if w.Speed() != 1 {
		t.Fatalf("Speed() = %v, want clamped to 1", w.Speed())
	}
	if nav.WalkFly() != w || w.Speed() != 1 {
		t.Fatalf("re-arming an active walk/fly state must keep its speed")
	}

	nav.ViewMatrix()
	speed := nav.MaxSpeed()
	clock.Advance(time.Second)
	nav.ViewMatrix()

	want := speed / earthRadius
	if !almostEqual(nav.Lon(), want, want*1e-9) {
		t.Fatalf("Lon() = %v, want %v after one second", nav.Lon(), want)
	}
	if nav.EllipsHeight() != 1000 {
		t.Fatalf("EllipsHeight() = %v, want level flight at 1000", nav.EllipsHeight())
	}

	w.SetSpeed(-5)
	if w.Speed() != -1 {
		t.Fatalf("Speed() = %v, want clamped to -1", w.Speed())
	}
	w.StopSpeed()
	if w.IsActive() {
		t.Fatalf("IsActive() = true after StopSpeed")
	}

	nav.SetUpdater(nil)
	w.SetSpeed(1)
	nav.WalkFly()
	if w.Speed() != 0 {
		t.Fatalf("re-activating walk/fly should reset its speed, got %v", w.Speed())
	}
}

func TestWalkFlyBackwardsKeepsHeading(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, 0, 1000)
	nav.SetAzimut(1)
	nav.SetHeightAngle(0)

	w := nav.WalkFly()
	w.SetSpeed(-1)
	nav.ViewMatrix()
	for i := 0; i < 4; i++ {
		clock.Advance(frame)
		nav.ViewMatrix()
		if !almostEqual(nav.Azimut(), 1, 1e-6) {
			t.Fatalf("frame %d: Azimut() = %v, want 1 while reversing", i, nav.Azimut())
		}
	}
	if nav.Lon() >= 0 || nav.Lat() >= 0 {
		t.Fatalf("position (%v,%v), want south-west of the start", nav.Lat(), nav.Lon())
	}
}

func TestWalkFlyRearmStartsFreshInterval(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, 0, 1000)
	nav.SetAzimut(math.Pi / 2)
	nav.SetHeightAngle(0)

	w := nav.WalkFly()
	w.SetSpeed(1)
	for i := 0; i < 3; i++ {
		clock.Advance(frame)
		nav.ViewMatrix()
	}

	nav.GotoViewpoint(model.ViewpointFromPose(nav.Pose()))
	runUntilIdle(t, nav, func() { clock.Advance(frame) }, 10)
	clock.Advance(time.Minute)

	nav.WalkFly().SetSpeed(1)
	nav.ViewMatrix()
	start := nav.Lon()
	speed := nav.MaxSpeed()
	clock.Advance(frame)
	nav.ViewMatrix()

	moved := (nav.Lon() - start) * earthRadius
	want := speed * frame.Seconds()
	if !almostEqual(moved, want, want*1e-6) {
		t.Fatalf("first frame after re-arming moved %v m, want %v m", moved, want)
	}
}

func TestFlyToViewpointInflatesPitchLimit(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, 0, 1000)
	nav.SetAzimut(math.Pi / 2)
	nav.SetHeightAngle(-math.Pi / 2)

	vp := model.Viewpoint{Lon: 0.01, Height: 1000, Azimuth: math.Pi / 2}
	u := NewFlyToViewpoint(nav, vp, nil)
	u.started = true
	u.last = clock.Now()
	u.recompute(clock.Now())
	if u.timeleft <= nav.settings.StopTime.Seconds() {
		t.Fatalf("timeleft = %v, want a cruise longer than the stop window", u.timeleft)
	}

	// the bearing to the goal swung by 0.5 rad since the previous step
	bearing := nav.globe.Ellipsoid().Inverse(nav.lat, nav.lon, vp.Lat, vp.Lon).Az12
	u.bearing = bearingTracker{prev: bearing - 0.5, valid: true}

	const dt = 0.1
	ha := nav.HeightAngle()
	u.step(dt)

	base := nav.settings.TurnRate * dt
	if got := nav.HeightAngle() - ha; got <= base+1e-9 {
		t.Fatalf("pitch changed by %v, want more than the base limit %v", got, base)
	}
}

func TestFlyToLookatNorthUp(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, 0, 5000)
	nav.SetAzimut(math.Pi)
	nav.SetHeightAngle(-math.Pi / 2)

	const tLon, tLat, stop = 0.001, 0.0, 1000.0
	nav.GotoLookatOriented(tLon, tLat, stop, true, -math.Pi/4)
	u := nav.Updater().(*FlyToLookatUpdater)

	runUntilIdle(t, nav, func() { clock.Advance(frame) }, 20000)

	if !almostEqual(core.AdjLon(nav.Azimut()), 0, 1e-3) {
		t.Fatalf("Azimut() = %v, want north", nav.Azimut())
	}
	lat, lon, h := u.Destination()
	if nav.Lat() != lat || nav.Lon() != lon || nav.EllipsHeight() != h {
		t.Fatalf("camera at (%v, %v, %v), want destination (%v, %v, %v)", nav.Lat(), nav.Lon(), nav.EllipsHeight(), lat, lon, h)
	}
	toTarget := nav.Globe().Ellipsoid().Inverse(nav.Lat(), nav.Lon(), tLat, tLon)
	if !almostEqual(toTarget.Dist, stop*math.Cos(math.Pi/4), 1) {
		t.Fatalf("horizontal distance to target = %v, want %v", toTarget.Dist, stop*math.Cos(math.Pi/4))
	}
	if !almostEqual(h, stop*math.Sin(math.Pi/4), 1e-6) {
		t.Fatalf("destination height = %v, want %v", h, stop*math.Sin(math.Pi/4))
	}
	if !almostEqual(nav.HeightAngle(), -math.Pi/4, 1e-2) {
		t.Fatalf("HeightAngle() = %v, want about %v", nav.HeightAngle(), -math.Pi/4)
	}
}

func TestFlyToLookatKeepsApproachBearing(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, -0.002, 3000)
	nav.SetAzimut(0)

	nav.GotoLookat(0, 0, 800)
	runUntilIdle(t, nav, func() { clock.Advance(frame) }, 20000)

	if !almostEqual(nav.Azimut(), math.Pi/2, 1e-3) {
		t.Fatalf("Azimut() = %v, want east toward the target", nav.Azimut())
	}
	if nav.Lon() >= 0 {
		t.Fatalf("camera should stop west of the target, lon = %v", nav.Lon())
	}
}

func TestFlyToLookatAimsAtHorizonWhenTargetIsHidden(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, 0, 100)
	nav.SetAzimut(math.Pi / 2)
	nav.SetHeightAngle(0)

	// 100 km away the target is well beyond the horizon seen from 100 m
	target := groundPoint(nav, 0.0157, 0)
	nav.SetUpdater(NewFlyToLookat(nav, 0.0157, 0, 1000, -math.Pi/4, nil))
	clock.Advance(frame)
	nav.ViewMatrix()
	clock.Advance(frame)
	nav.ViewMatrix()

	ellps := nav.Globe().Ellipsoid()
	horizon := core.HorizonAngle(nav.TerrainHeight(), ellps.Radius())
	if !almostEqual(nav.HeightAngle(), horizon, 1e-9) {
		t.Fatalf("HeightAngle() = %v, want the horizon angle %v", nav.HeightAngle(), horizon)
	}
	direct := core.ElevationAngle(nav.Eye(), target, core.SurfaceNormal(nav.Lat(), nav.Lon()))
	if almostEqual(nav.HeightAngle(), direct, 1e-3) {
		t.Fatalf("camera aimed through the globe at %v", direct)
	}
}

func TestPathUpdaterZeroDurationWaypoint(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, 0, 1000)

	a := model.Viewpoint{Lon: 0.001, Lat: 0.001, Height: 2000, Azimuth: 1, HeightAngle: -0.5}
	b := model.Viewpoint{Lon: 0.002, Lat: 0.001, Height: 3000, Azimuth: 2, HeightAngle: -0.3}
	u := NewPathUpdater(nav, []model.PathPoint{
		{Viewpoint: a},
		{Viewpoint: b, Duration: time.Second},
	}, nil)
	nav.SetUpdater(u)

	nav.ViewMatrix()
	if nav.Pose() != a.Pose() {
		t.Fatalf("Pose() = %+v, want zero-duration waypoint %+v applied at once", nav.Pose(), a.Pose())
	}
	if u.Index() != 1 || !u.IsActive() {
		t.Fatalf("Index() = %d, IsActive() = %v, want 1 and true", u.Index(), u.IsActive())
	}

	clock.Advance(500 * time.Millisecond)
	nav.ViewMatrix()
	if !almostEqual(nav.EllipsHeight(), 2500, 1e-9) || !almostEqual(nav.Azimut(), 1.5, 1e-12) || !almostEqual(nav.HeightAngle(), -0.4, 1e-12) {
		t.Fatalf("half-way pose = %+v", nav.Pose())
	}
	if !almostEqual(nav.Lon(), 0.0015, 1e-7) {
		t.Fatalf("half-way Lon() = %v, want about 0.0015", nav.Lon())
	}

	clock.Advance(600 * time.Millisecond)
	nav.ViewMatrix()
	if nav.Pose() != b.Pose() {
		t.Fatalf("Pose() = %+v, want %+v", nav.Pose(), b.Pose())
	}
	if nav.Updater() != nil {
		t.Fatalf("path should be finished")
	}
}

func TestPathUpdaterCoincidentWaypoints(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0.1, 0.1, 1000)
	nav.SetAzimut(0.5)

	// same place, new orientation: no geodesic step is taken
	to := model.Viewpoint{Lat: 0.1, Lon: 0.1, Height: 1000, Azimuth: 1.5}
	nav.SetUpdater(NewPathUpdater(nav, []model.PathPoint{{Viewpoint: to, Duration: time.Second}}, nil))
	nav.ViewMatrix()
	clock.Advance(250 * time.Millisecond)
	nav.ViewMatrix()

	if nav.Lat() != 0.1 || nav.Lon() != 0.1 {
		t.Fatalf("position moved to (%v, %v)", nav.Lat(), nav.Lon())
	}
	if !almostEqual(nav.Azimut(), 0.75, 1e-12) {
		t.Fatalf("Azimut() = %v, want 0.75", nav.Azimut())
	}
}

func TestPathUpdaterAzimuthTakesShortWay(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, 0, 1000)
	nav.SetAzimut(0.1)

	to := model.Viewpoint{Height: 1000, Azimuth: 2*math.Pi - 0.1}
	nav.SetUpdater(NewPathUpdater(nav, []model.PathPoint{{Viewpoint: to, Duration: time.Second}}, nil))
	nav.ViewMatrix()
	clock.Advance(500 * time.Millisecond)
	nav.ViewMatrix()

	if !almostEqual(core.AdjLon(nav.Azimut()), 0, 1e-12) {
		t.Fatalf("Azimut() = %v, want the short way through north", nav.Azimut())
	}
}

func TestPathUpdaterLoops(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, 0, 1000)

	a := model.Viewpoint{Height: 1000}
	b := model.Viewpoint{Height: 2000}
	u := NewPathUpdater(nav, []model.PathPoint{
		{Viewpoint: a, Duration: time.Second},
		{Viewpoint: b, Duration: time.Second},
	}, nil)
	u.SetLoop(true)
	nav.SetUpdater(u)
	nav.ViewMatrix()

	clock.Advance(2500 * time.Millisecond)
	nav.ViewMatrix()
	if nav.Updater() != Updater(u) || !u.IsActive() || !u.Loop() {
		t.Fatalf("looping path stopped")
	}
	if u.Index() != 0 || !almostEqual(nav.EllipsHeight(), 1500, 1e-9) {
		t.Fatalf("Index() = %d, height = %v, want 0 and 1500 half-way back to the start", u.Index(), nav.EllipsHeight())
	}
}

func TestPathUpdaterZeroDurationLoopDoesNotSpin(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, 0, 1000)
	u := NewPathUpdater(nav, []model.PathPoint{
		{Viewpoint: model.Viewpoint{Height: 1000}},
		{Viewpoint: model.Viewpoint{Height: 2000}},
	}, nil)
	u.SetLoop(true)
	nav.SetUpdater(u)

	clock.Advance(frame)
	nav.ViewMatrix()
	if nav.EllipsHeight() != 2000 {
		t.Fatalf("EllipsHeight() = %v, want last waypoint 2000", nav.EllipsHeight())
	}
}

func TestFlyPath(t *testing.T) {
	nav, clock := newTestNavigator(t, core.FlatTerrain{})
	nav.SetPositionHeight(0, 0, 1000)

	start := model.ViewpointFromPose(nav.Pose())
	end := model.Viewpoint{Lon: 0.0005, Height: 1200, Azimuth: 0.2, HeightAngle: -0.2}
	nav.FlyPath([]model.PathPoint{
		{Viewpoint: start},
		{Viewpoint: end, Duration: 2 * time.Second},
	})
	if nav.Updater().Kind() != KindFlyToView {
		t.Fatalf("FlyPath should start by flying to the first waypoint")
	}

	clock.Advance(frame)
	nav.ViewMatrix()
	if nav.Updater() == nil || nav.Updater().Kind() != KindPath {
		t.Fatalf("Updater() = %v, want the path follower", nav.Updater())
	}

	runUntilIdle(t, nav, func() { clock.Advance(frame) }, 1000)
	if nav.Pose() != end.Pose() {
		t.Fatalf("Pose() = %+v, want %+v", nav.Pose(), end.Pose())
	}
}
