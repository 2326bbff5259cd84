package navigator

// Updater is a motion state of the navigator. The navigator calls Update
// once per rendered frame on the active state; a state that has finished
// hands control to its successor with GlobeNavigator.SetUpdater(Next()).
type Updater interface {
	Update()
	IsActive() bool
	// Next is the state to activate once this one finishes; nil stops.
	Next() Updater
	// Kind names the state for logs, metrics and traces.
	Kind() string
}

// Updater kinds.
const (
	KindWalkFly     = "walkfly"
	KindFlyToView   = "flyto_viewpoint"
	KindFlyToLookat = "flyto_lookat"
	KindPath        = "path"
	kindNone        = "none"
)

func kindOf(u Updater) string {
	if u == nil {
		return kindNone
	}
	return u.Kind()
}
