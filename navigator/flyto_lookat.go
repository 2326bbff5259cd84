package navigator

import (
	"context"
	"math"
	"time"

	"github.com/signalsfoundry/globe-navigator/core"
	"github.com/signalsfoundry/globe-navigator/internal/logging"
)

// FlyToLookatUpdater flies to a point stopDist metres from a ground target
// and ends up looking at it. The approach bearing is either fixed (for
// example north-up) or taken from the camera's position relative to the
// target. While flying, the camera keeps turning toward the target at a
// bounded rate; if terrain hides the target it levels toward the horizon.
type FlyToLookatUpdater struct {
	nav  *GlobeNavigator
	next Updater

	lon, lat float64
	stopDist float64
	ha       float64
	fixedAz  float64
	hasAz    bool

	destLat, destLon, destH float64
	targetH                 float64

	track   *Track
	bearing bearingTracker

	started       bool
	done          bool
	last          time.Time
	lastRecompute time.Time
}

// NewFlyToLookat creates a flight that stops stopDist metres from the
// ground point lon/lat, viewing it under height angle ha.
func NewFlyToLookat(nav *GlobeNavigator, lon, lat, stopDist, ha float64, next Updater) *FlyToLookatUpdater {
	return &FlyToLookatUpdater{
		nav:      nav,
		next:     next,
		lon:      lon,
		lat:      lat,
		stopDist: math.Max(stopDist, 0),
		ha:       clampPitch(ha),
	}
}

// FixAzimuth makes the camera end up facing az instead of keeping its
// approach bearing. It must be called before the first Update.
func (u *FlyToLookatUpdater) FixAzimuth(az float64) {
	u.fixedAz = core.AdjLonPos(az)
	u.hasAz = true
}

// Destination returns where the camera will stop. It is known after the
// first Update.
func (u *FlyToLookatUpdater) Destination() (lat, lon, h float64) {
	return u.destLat, u.destLon, u.destH
}

func (u *FlyToLookatUpdater) placeDestination() {
	nav := u.nav
	ellps := nav.globe.Ellipsoid()
	u.targetH = nav.elevationAt(u.lon, u.lat)

	var bearing float64
	if u.hasAz {
		bearing = u.fixedAz + math.Pi
	} else {
		bearing = ellps.Inverse(u.lat, u.lon, nav.lat, nav.lon).Az12
	}
	p := ellps.Forward(u.lat, u.lon, u.stopDist*math.Cos(u.ha), bearing)
	u.destLat, u.destLon = p.Lat, p.Lon
	u.destH = u.targetH - u.stopDist*math.Sin(u.ha)
}

// Update implements Updater.
func (u *FlyToLookatUpdater) Update() {
	nav := u.nav
	if nav.globe == nil || u.done {
		return
	}
	now := nav.clock.Now()
	if !u.started {
		u.started = true
		u.last = now
		u.placeDestination()
		u.recompute(now)
	}
	elapsed := now.Sub(u.last).Seconds()
	u.last = now
	if now.Sub(u.lastRecompute) >= nav.settings.RecomputeInterval {
		u.recompute(now)
	}

	maxStep := nav.settings.MaxStep.Seconds()
	for elapsed > 0 {
		dt := math.Min(elapsed, maxStep)
		elapsed -= dt
		if u.step(dt) {
			u.done = true
			nav.SetUpdater(u.next)
			return
		}
	}
}

func (u *FlyToLookatUpdater) recompute(now time.Time) {
	nav := u.nav
	u.lastRecompute = now
	if u.track == nil {
		u.track = NewTrack(nav.globe, nav.settings)
	}
	u.track.SetValues(nav.lon, nav.lat, nav.hEllps, u.destLon, u.destLat, u.destH)
	est := u.track.OptimizeCurve()
	nav.metrics.ObserveCurveSearch(u.track.Iterations())
	if !math.IsInf(est, 0) {
		nav.metrics.ObserveTravelTimeEstimate(est)
	}
	if u.track.HitIterationCap() {
		nav.log.Warn(context.Background(), "curve search hit iteration cap",
			logging.Int("iterations", u.track.Iterations()),
			logging.Float64("curvature", u.track.Curvature()),
		)
	}
}

// step advances by dt seconds and reports whether the camera arrived and
// is aimed at the target.
func (u *FlyToLookatUpdater) step(dt float64) bool {
	nav := u.nav
	ellps := nav.globe.Ellipsoid()
	settings := nav.settings

	speed := math.Max(nav.MaxSpeed(), 0)
	daz := ellps.Inverse(nav.lat, nav.lon, u.destLat, u.destLon)
	x := daz.Dist
	slope := u.track.H1(x)
	stepLen := speed * dt / math.Sqrt(1+slope*slope)

	arrived := x <= stepLen
	if arrived {
		nav.SetPositionHeight(u.destLat, u.destLon, u.destH)
	} else {
		p := ellps.Forward(nav.lat, nav.lon, stepLen, daz.Az12)
		nav.SetPosition(p.Lat, p.Lon)
		nav.SetEllipsHeight(u.track.H(x - stepLen))
	}

	eye := ellps.ToCartesian(nav.lat, nav.lon, nav.hEllps)
	target := ellps.ToCartesian(u.lat, u.lon, u.targetH)
	up := core.SurfaceNormal(nav.lat, nav.lon)

	desiredAz := nav.az
	toTarget := ellps.Inverse(nav.lat, nav.lon, u.lat, u.lon)
	if toTarget.Dist > 0 {
		desiredAz = toTarget.Az12
	} else if u.hasAz {
		desiredAz = u.fixedAz
	}
	desiredHa := core.ElevationAngle(eye, target, up)
	if !core.HasLineOfSight(eye, target, target.Len()-1) {
		desiredHa = core.HorizonAngle(nav.TerrainHeight(), ellps.Radius())
	}

	maxTurn := (settings.TurnRate + u.bearing.rate(desiredAz, dt)) * dt
	nav.SetAzimut(limitAzimuth(nav.az, desiredAz, maxTurn))
	nav.SetHeightAngle(limitPitch(nav.ha, desiredHa, maxTurn))

	if !arrived {
		return false
	}
	eps := settings.ArrivalEpsilon
	return math.Abs(core.AdjLon(desiredAz-nav.az)) < eps && math.Abs(desiredHa-nav.ha) < eps
}

// IsActive reports whether the camera is still on its way.
func (u *FlyToLookatUpdater) IsActive() bool { return !u.done }

// Next implements Updater.
func (u *FlyToLookatUpdater) Next() Updater { return u.next }

// Kind implements Updater.
func (u *FlyToLookatUpdater) Kind() string { return KindFlyToLookat }
