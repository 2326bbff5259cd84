package navigator

import (
	"time"

	"github.com/signalsfoundry/globe-navigator/core"
	"github.com/signalsfoundry/globe-navigator/model"
)

// PathUpdater moves the camera through a list of waypoints, interpolating
// linearly from one to the next over each waypoint's duration. Position
// follows the geodesic between waypoints; angles take the shorter way.
type PathUpdater struct {
	nav    *GlobeNavigator
	points []model.PathPoint
	next   Updater
	loop   bool

	index   int
	from    model.Viewpoint
	elapsed time.Duration
	started bool
	last    time.Time
}

// NewPathUpdater creates a path follower that starts from the camera pose
// at its first Update.
func NewPathUpdater(nav *GlobeNavigator, points []model.PathPoint, next Updater) *PathUpdater {
	return &PathUpdater{
		nav:    nav,
		points: append([]model.PathPoint(nil), points...),
		next:   next,
	}
}

// SetLoop makes the path restart from its first waypoint after the last.
func (u *PathUpdater) SetLoop(loop bool) { u.loop = loop }

// Loop reports whether the path repeats.
func (u *PathUpdater) Loop() bool { return u.loop }

// Index returns the waypoint currently being approached.
func (u *PathUpdater) Index() int { return u.index }

// Update implements Updater.
func (u *PathUpdater) Update() {
	nav := u.nav
	if nav.globe == nil {
		return
	}
	now := nav.clock.Now()
	if !u.started {
		u.started = true
		u.last = now
		u.from = model.ViewpointFromPose(nav.Pose())
	}
	u.elapsed += now.Sub(u.last)
	u.last = now

	wrapped := false
	for {
		if u.index >= len(u.points) {
			if !u.loop || len(u.points) == 0 {
				nav.SetUpdater(u.next)
				return
			}
			if wrapped {
				// a loop with no duration at all cannot make progress
				return
			}
			wrapped = true
			u.index = 0
		}
		p := u.points[u.index]
		if u.elapsed < p.Duration {
			u.apply(p.Viewpoint, float64(u.elapsed)/float64(p.Duration))
			return
		}
		u.apply(p.Viewpoint, 1)
		u.elapsed -= p.Duration
		u.from = p.Viewpoint
		u.index++
		if p.Duration > 0 {
			wrapped = false
		}
	}
}

// apply places the camera frac of the way from u.from to to.
func (u *PathUpdater) apply(to model.Viewpoint, frac float64) {
	nav := u.nav
	if frac >= 1 {
		nav.SetPositionHeight(to.Lat, to.Lon, to.Height)
		nav.SetAzimut(to.Azimuth)
		nav.SetHeightAngle(to.HeightAngle)
		return
	}
	from := u.from
	ellps := nav.globe.Ellipsoid()
	daz := ellps.Inverse(from.Lat, from.Lon, to.Lat, to.Lon)
	if daz.Dist > 0 {
		p := ellps.Forward(from.Lat, from.Lon, daz.Dist*frac, daz.Az12)
		nav.SetPosition(p.Lat, p.Lon)
	} else {
		nav.SetPosition(to.Lat, to.Lon)
	}
	nav.SetEllipsHeight(from.Height + (to.Height-from.Height)*frac)
	nav.SetAzimut(from.Azimuth + core.AdjLon(to.Azimuth-from.Azimuth)*frac)
	nav.SetHeightAngle(from.HeightAngle + core.AdjLon(to.HeightAngle-from.HeightAngle)*frac)
}

// IsActive reports whether waypoints remain or the path loops.
func (u *PathUpdater) IsActive() bool { return u.loop || u.index < len(u.points) }

// Next implements Updater.
func (u *PathUpdater) Next() Updater { return u.next }

// Kind implements Updater.
func (u *PathUpdater) Kind() string { return KindPath }
