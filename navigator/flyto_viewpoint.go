package navigator

import (
	"context"
	"math"
	"time"

	"github.com/signalsfoundry/globe-navigator/core"
	"github.com/signalsfoundry/globe-navigator/internal/logging"
	"github.com/signalsfoundry/globe-navigator/model"
)

// FlyToViewpointUpdater flies the camera along an optimized altitude
// profile and ends exactly at a target viewpoint.
//
// Every RecomputeInterval the profile is re-fitted from the current
// position and the remaining time is re-estimated. Between recomputes the
// remaining time counts down with the clock. The camera moves at the speed
// limit along the profile while turning toward the target bearing at a
// bounded rate; during the last StopTime the remaining position and
// orientation error is closed linearly so that the pose reaches the target
// when the time runs out.
type FlyToViewpointUpdater struct {
	nav  *GlobeNavigator
	to   model.Viewpoint
	next Updater

	track    *Track
	timeleft float64
	bearing  bearingTracker

	started       bool
	last          time.Time
	lastRecompute time.Time
}

// NewFlyToViewpoint creates a flight to vp that hands over to next when
// it arrives.
func NewFlyToViewpoint(nav *GlobeNavigator, vp model.Viewpoint, next Updater) *FlyToViewpointUpdater {
	vp.Azimuth = core.AdjLonPos(vp.Azimuth)
	vp.HeightAngle = clampPitch(vp.HeightAngle)
	return &FlyToViewpointUpdater{
		nav:  nav,
		to:   vp,
		next: next,
	}
}

// Target returns the viewpoint the flight ends at.
func (u *FlyToViewpointUpdater) Target() model.Viewpoint { return u.to }

// TimeLeft returns the remaining flight time estimate.
func (u *FlyToViewpointUpdater) TimeLeft() time.Duration {
	return time.Duration(u.timeleft * float64(time.Second))
}

// Update implements Updater.
func (u *FlyToViewpointUpdater) Update() {
	nav := u.nav
	if nav.globe == nil {
		return
	}
	now := nav.clock.Now()
	if !u.started {
		u.started = true
		u.last = now
		u.recompute(now)
	}
	elapsed := now.Sub(u.last).Seconds()
	u.last = now
	if now.Sub(u.lastRecompute) >= nav.settings.RecomputeInterval {
		u.recompute(now)
	}

	maxStep := nav.settings.MaxStep.Seconds()
	for {
		if u.timeleft <= 0 {
			u.finish()
			return
		}
		if elapsed <= 0 {
			return
		}
		dt := math.Min(elapsed, maxStep)
		elapsed -= dt
		u.step(dt)
	}
}

func (u *FlyToViewpointUpdater) recompute(now time.Time) {
	nav := u.nav
	u.lastRecompute = now
	if u.track == nil {
		u.track = NewTrack(nav.globe, nav.settings)
	}
	u.track.SetValues(nav.lon, nav.lat, nav.hEllps, u.to.Lon, u.to.Lat, u.to.Height)
	est := u.track.OptimizeCurve()
	nav.metrics.ObserveCurveSearch(u.track.Iterations())
	if u.track.HitIterationCap() {
		nav.log.Warn(context.Background(), "curve search hit iteration cap",
			logging.Int("iterations", u.track.Iterations()),
			logging.Float64("curvature", u.track.Curvature()),
		)
	}

	speed := math.Max(nav.MaxSpeed(), 1)
	if math.IsInf(est, 0) || math.IsNaN(est) {
		est = u.track.Distance() / speed
	}
	vertical := math.Abs(u.to.Height-nav.hEllps) / speed
	turn := math.Max(
		math.Abs(core.AdjLon(u.to.Azimuth-nav.az)),
		math.Abs(u.to.HeightAngle-nav.ha),
	) / nav.settings.TurnRate
	u.timeleft = math.Max(est, math.Max(vertical, turn))
	nav.metrics.ObserveTravelTimeEstimate(u.timeleft)
}

func (u *FlyToViewpointUpdater) step(dt float64) {
	nav := u.nav
	ellps := nav.globe.Ellipsoid()
	daz := ellps.Inverse(nav.lat, nav.lon, u.to.Lat, u.to.Lon)
	x := daz.Dist
	bearingRate := u.bearing.rate(daz.Az12, dt)

	if u.timeleft <= nav.settings.StopTime.Seconds() {
		frac := math.Min(dt/u.timeleft, 1)
		if x > 0 {
			p := ellps.Forward(nav.lat, nav.lon, x*frac, daz.Az12)
			nav.SetPosition(p.Lat, p.Lon)
		}
		nav.SetEllipsHeight(nav.hEllps + (u.to.Height-nav.hEllps)*frac)
		nav.SetAzimut(blendAzimuth(nav.az, u.to.Azimuth, frac))
		nav.SetHeightAngle(blendPitch(nav.ha, u.to.HeightAngle, frac))
		u.timeleft -= dt
		return
	}

	speed := math.Max(nav.MaxSpeed(), 0)
	if x > 0 {
		slope := u.track.H1(x)
		dx := math.Min(speed*dt/math.Sqrt(1+slope*slope), x)
		p := ellps.Forward(nav.lat, nav.lon, dx, daz.Az12)
		nav.SetPosition(p.Lat, p.Lon)
		nav.SetEllipsHeight(u.track.H(x - dx))
	} else {
		dh := u.to.Height - nav.hEllps
		nav.SetEllipsHeight(nav.hEllps + math.Copysign(math.Min(math.Abs(dh), speed*dt), dh))
	}

	desiredAz := u.to.Azimuth
	if x > 0 {
		desiredAz = daz.Az12
	}
	maxTurn := (nav.settings.TurnRate + bearingRate) * dt
	nav.SetAzimut(limitAzimuth(nav.az, desiredAz, maxTurn))
	nav.SetHeightAngle(limitPitch(nav.ha, u.to.HeightAngle, maxTurn))
	u.timeleft -= dt
}

// finish places the camera exactly on the target and hands over.
func (u *FlyToViewpointUpdater) finish() {
	nav := u.nav
	nav.SetPositionHeight(u.to.Lat, u.to.Lon, u.to.Height)
	nav.SetAzimut(u.to.Azimuth)
	nav.SetHeightAngle(u.to.HeightAngle)
	u.timeleft = 0
	nav.SetUpdater(u.next)
}

// IsActive reports whether the flight has time left.
func (u *FlyToViewpointUpdater) IsActive() bool { return !u.started || u.timeleft > 0 }

// Next implements Updater.
func (u *FlyToViewpointUpdater) Next() Updater { return u.next }

// Kind implements Updater.
func (u *FlyToViewpointUpdater) Kind() string { return KindFlyToView }
