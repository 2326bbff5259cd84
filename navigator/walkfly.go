package navigator

import (
	"math"
	"time"
)

// WalkFlyUpdater moves the camera forward at a fraction of the speed
// limit for its current clearance. The fraction is driven by user input.
type WalkFlyUpdater struct {
	nav   *GlobeNavigator
	speed float64
	last  time.Time
}

// NewWalkFly creates a walk/fly state for nav with zero speed. Most
// callers want GlobeNavigator.WalkFly instead.
func NewWalkFly(nav *GlobeNavigator) *WalkFlyUpdater {
	return &WalkFlyUpdater{nav: nav}
}

// SetSpeed sets the speed scale, clamped to [-1, 1].
func (u *WalkFlyUpdater) SetSpeed(scale float64) {
	u.speed = math.Max(-1, math.Min(1, scale))
}

// Speed returns the speed scale.
func (u *WalkFlyUpdater) Speed() float64 { return u.speed }

// StopSpeed sets the speed scale to zero.
func (u *WalkFlyUpdater) StopSpeed() { u.speed = 0 }

// rearm forgets the previous frame time so the next Update starts a
// fresh interval.
func (u *WalkFlyUpdater) rearm() { u.last = time.Time{} }

// Update advances the camera by the time elapsed since the last frame.
func (u *WalkFlyUpdater) Update() {
	now := u.nav.clock.Now()
	if u.last.IsZero() {
		u.last = now
		return
	}
	elapsed := now.Sub(u.last)
	u.last = now
	if u.speed == 0 || u.nav.globe == nil {
		return
	}
	maxStep := u.nav.settings.MaxStep
	for elapsed > 0 {
		dt := min(elapsed, maxStep)
		elapsed -= dt
		u.nav.TranslateForward(u.speed * u.nav.MaxSpeed() * dt.Seconds())
	}
}

// IsActive reports whether the camera is moving.
func (u *WalkFlyUpdater) IsActive() bool { return u.speed != 0 }

// Next is always nil: walk/fly runs until replaced.
func (u *WalkFlyUpdater) Next() Updater { return nil }

// Kind implements Updater.
func (u *WalkFlyUpdater) Kind() string { return KindWalkFly }
