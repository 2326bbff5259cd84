package navigator

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/globe-navigator/model"
	"github.com/signalsfoundry/globe-navigator/timectrl"
)

// UpdateListener receives the last published state and the set of
// changes drained since the previous notification.
type UpdateListener func(s model.Snapshot, changed model.ChangeFlags)

// DrawNowListener is asked to redraw immediately; originator identifies
// who requested it.
type DrawNowListener func(originator any)

// MetricsRecorder receives navigator measurements. The observability
// package provides a Prometheus implementation.
type MetricsRecorder interface {
	ObserveFrame(d time.Duration)
	IncTransition(from, to string)
	ObserveTravelTimeEstimate(seconds float64)
	ObserveCurveSearch(iterations int)
	IncDrawNow()
	IncChangeNotifications()
}

type noopMetrics struct{}

func (noopMetrics) ObserveFrame(time.Duration)        {}
func (noopMetrics) IncTransition(string, string)      {}
func (noopMetrics) ObserveTravelTimeEstimate(float64) {}
func (noopMetrics) ObserveCurveSearch(int)            {}
func (noopMetrics) IncDrawNow()                       {}
func (noopMetrics) IncChangeNotifications()           {}

// Subscription is returned by the Add*Listener methods. Cancel removes the
// listener; it is safe to call more than once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel unregisters the listener.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

type registry[F any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []registryEntry[F]
}

type registryEntry[F any] struct {
	id uint64
	fn F
}

func (r *registry[F]) add(fn F) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, registryEntry[F]{id: id, fn: fn})
	return &Subscription{cancel: func() { r.remove(id) }}
}

func (r *registry[F]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *registry[F]) snapshot() []F {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]F, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.fn
	}
	return out
}

func (r *registry[F]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// AddUpdateListener registers fn for change notifications.
func (n *GlobeNavigator) AddUpdateListener(fn UpdateListener) *Subscription {
	return n.updateListeners.add(fn)
}

// AddDrawNowListener registers fn for immediate redraw requests.
func (n *GlobeNavigator) AddDrawNowListener(fn DrawNowListener) *Subscription {
	return n.drawListeners.add(fn)
}

// FireDrawNow asks every draw-now listener to redraw.
func (n *GlobeNavigator) FireDrawNow(originator any) {
	n.metrics.IncDrawNow()
	for _, fn := range n.drawListeners.snapshot() {
		fn(originator)
	}
}

// NotifyChanges drains the pending change flags and, when any were set,
// hands them to every update listener together with the last published
// snapshot. It reports whether listeners were called.
func (n *GlobeNavigator) NotifyChanges() bool {
	changed := model.ChangeFlags(n.changes.Swap(0))
	if changed == 0 {
		return false
	}
	n.metrics.IncChangeNotifications()
	snap := n.Snapshot()
	for _, fn := range n.updateListeners.snapshot() {
		fn(snap, changed)
	}
	return true
}

// StartNotifier runs NotifyChanges every NotifyInterval on its own
// goroutine until ctx is cancelled. The returned channel is closed when
// the notifier has stopped.
func (n *GlobeNavigator) StartNotifier(ctx context.Context) <-chan struct{} {
	tk := timectrl.NewTicker(n.settings.NotifyInterval)
	tk.AddListener(func(time.Time) { n.NotifyChanges() })
	return tk.Start(ctx, 0)
}
