package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NavigatorCollector bundles Prometheus metrics for the globe navigator
// and the terrain cache behind it. It satisfies navigator.MetricsRecorder.
type NavigatorCollector struct {
	gatherer prometheus.Gatherer

	Frames              prometheus.Counter
	FrameDuration       prometheus.Histogram
	Transitions         *prometheus.CounterVec
	TravelTimeEstimate  prometheus.Histogram
	CurveSearch         prometheus.Histogram
	DrawNow             prometheus.Counter
	ChangeNotifications prometheus.Counter
	TerrainCacheRatio   prometheus.Gauge
}

// NewNavigatorCollector registers navigator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Registering twice against the same registry reuses the existing
// collectors.
func NewNavigatorCollector(reg prometheus.Registerer) (*NavigatorCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	frames, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navigator_frames_total",
		Help: "Number of view matrices computed.",
	}), "navigator_frames_total")
	if err != nil {
		return nil, err
	}

	frameDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "navigator_frame_duration_seconds",
		Help:    "Time spent advancing the motion state and building the view matrix.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "navigator_frame_duration_seconds")
	if err != nil {
		return nil, err
	}

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "navigator_updater_transitions_total",
		Help: "Motion state changes, labeled by the state left and the state entered.",
	}, []string{"from", "to"})
	transitions, err = registerCounterVec(reg, transitions, "navigator_updater_transitions_total")
	if err != nil {
		return nil, err
	}

	travel, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "navigator_travel_time_estimate_seconds",
		Help:    "Remaining flight time estimated at each profile recompute.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}), "navigator_travel_time_estimate_seconds")
	if err != nil {
		return nil, err
	}

	search, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "navigator_curve_search_iterations",
		Help:    "Trial curvatures evaluated per altitude profile search.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
	}), "navigator_curve_search_iterations")
	if err != nil {
		return nil, err
	}

	drawNow, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navigator_draw_now_total",
		Help: "Immediate redraw requests fired to listeners.",
	}), "navigator_draw_now_total")
	if err != nil {
		return nil, err
	}

	notifications, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navigator_change_notifications_total",
		Help: "Change notifications delivered to update listeners.",
	}), "navigator_change_notifications_total")
	if err != nil {
		return nil, err
	}

	cacheRatio, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "terrain_cache_hit_ratio",
		Help: "Hit ratio of the terrain elevation cache.",
	}), "terrain_cache_hit_ratio")
	if err != nil {
		return nil, err
	}

	return &NavigatorCollector{
		gatherer:            gatherer,
		Frames:              frames,
		FrameDuration:       frameDuration,
		Transitions:         transitions,
		TravelTimeEstimate:  travel,
		CurveSearch:         search,
		DrawNow:             drawNow,
		ChangeNotifications: notifications,
		TerrainCacheRatio:   cacheRatio,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *NavigatorCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *NavigatorCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveFrame counts a frame and records how long it took.
func (c *NavigatorCollector) ObserveFrame(d time.Duration) {
	if c == nil {
		return
	}
	c.Frames.Inc()
	c.FrameDuration.Observe(d.Seconds())
}

// IncTransition counts a motion state change.
func (c *NavigatorCollector) IncTransition(from, to string) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(from, to).Inc()
}

// ObserveTravelTimeEstimate records a flight time estimate.
func (c *NavigatorCollector) ObserveTravelTimeEstimate(seconds float64) {
	if c == nil {
		return
	}
	c.TravelTimeEstimate.Observe(seconds)
}

// ObserveCurveSearch records the length of a curvature search.
func (c *NavigatorCollector) ObserveCurveSearch(iterations int) {
	if c == nil {
		return
	}
	c.CurveSearch.Observe(float64(iterations))
}

func (c *NavigatorCollector) IncDrawNow() {
	if c == nil {
		return
	}
	c.DrawNow.Inc()
}

func (c *NavigatorCollector) IncChangeNotifications() {
	if c == nil {
		return
	}
	c.ChangeNotifications.Inc()
}

// SetTerrainCacheHitRatio sets the terrain cache hit ratio, clamped to
// [0, 1].
func (c *NavigatorCollector) SetTerrainCacheHitRatio(ratio float64) {
	if c == nil {
		return
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	c.TerrainCacheRatio.Set(ratio)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
