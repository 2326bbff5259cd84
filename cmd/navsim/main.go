package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/globe-navigator/bookmarks"
	"github.com/signalsfoundry/globe-navigator/core"
	"github.com/signalsfoundry/globe-navigator/internal/config"
	"github.com/signalsfoundry/globe-navigator/internal/logging"
	"github.com/signalsfoundry/globe-navigator/internal/observability"
	"github.com/signalsfoundry/globe-navigator/model"
	"github.com/signalsfoundry/globe-navigator/navigator"
	"github.com/signalsfoundry/globe-navigator/timectrl"
)

// options are the command line settings of one run.
type options struct {
	configPath  string
	fps         int
	duration    time.Duration
	metricsAddr string
	scenario    string
	followTLE   string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "YAML configuration file (defaults to $NAV_CONFIG)")
	flag.IntVar(&opts.fps, "fps", 60, "frames per second of the render loop")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "how long to run; 0 runs until interrupted")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics; empty disables it")
	flag.StringVar(&opts.scenario, "scenario", "flyto", "maneuver to run: flyto, lookat, path or walk")
	flag.StringVar(&opts.followTLE, "follow-tle", "", "TLE file of a satellite whose ground track the camera follows")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	collector, err := observability.NewNavigatorCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr, collector, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := run(ctx, opts, log, collector); err != nil {
		log.Error(ctx, "navsim failed", logging.Err(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.Validate()
}

// run builds the globe and the navigator, starts the requested maneuver and
// drives frames until the duration elapses or ctx is cancelled.
func run(ctx context.Context, opts options, log logging.Logger, collector *observability.NavigatorCollector) error {
	if opts.fps <= 0 {
		return fmt.Errorf("fps must be positive, got %d", opts.fps)
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	terrain, err := newTerrain(cfg.Terrain)
	if err != nil {
		return err
	}
	globe := core.NewGlobe(core.WGS84, terrain)
	globe.SetElevationScale(cfg.Terrain.Scale)

	tracing, err := observability.InitTracing(ctx, cfg.Tracing, log,
		attribute.String("navigator.scenario", opts.scenario),
		attribute.Int("navigator.fps", opts.fps),
		attribute.Bool("navigator.follow_tle", opts.followTLE != ""),
	)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tracing.Shutdown(context.Background())

	nav := navigator.New(globe,
		navigator.WithLogger(log),
		navigator.WithMetrics(collector),
		navigator.WithSettings(cfg.Settings()),
		navigator.WithTracer(tracing.Tracer()),
	)

	store, err := cfg.Bookmarks()
	if err != nil {
		return err
	}
	if store.Len() == 0 {
		seedBookmarks(store)
	}
	unsubscribe := store.Subscribe(func(ev bookmarks.Event) {
		log.Debug(ctx, "bookmark changed", logging.String("name", ev.Name), logging.String("event", ev.Type.String()))
	})
	defer unsubscribe()

	start := cfg.Start
	if start == "" {
		start = store.List()[0].Name
	}
	if err := placeAt(nav, store, start); err != nil {
		return err
	}

	sub := nav.AddUpdateListener(func(s model.Snapshot, changed model.ChangeFlags) {
		log.Debug(ctx, "camera moved",
			logging.Float64("lat_deg", s.Lat*180/math.Pi),
			logging.Float64("lon_deg", s.Lon*180/math.Pi),
			logging.Float64("height", s.EllipsHeight),
			logging.Float64("terrain_height", s.TerrainHeight),
			logging.Float64("azimuth_deg", s.Azimuth*180/math.Pi),
			logging.Bool("position_changed", changed&model.PositionChanged != 0),
		)
	})
	defer sub.Cancel()

	var follow core.TargetSource
	if opts.followTLE != "" {
		track, err := loadTLE(opts.followTLE)
		if err != nil {
			return err
		}
		follow = track
	} else if err := startScenario(nav, store, cfg, opts.scenario); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-nav.StartNotifier(gctx)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		frames := timectrl.NewTicker(time.Second / time.Duration(opts.fps))
		lastKind := ""
		var lastRetarget time.Time
		frames.AddListener(func(now time.Time) {
			if follow != nil && now.Sub(lastRetarget) >= 5*time.Second {
				lastRetarget = now
				lon, lat, _ := follow.Position(now)
				nav.GotoLookat(lon, lat, 20000)
			}
			nav.ViewMatrix()
			if cached, ok := terrain.(*core.CachedTerrain); ok {
				collector.SetTerrainCacheHitRatio(cached.HitRatio())
			}
			kind := "idle"
			if u := nav.Updater(); u != nil {
				kind = u.Kind()
			}
			if kind != lastKind {
				log.Info(gctx, "motion state", logging.String("kind", kind))
				lastKind = kind
			}
		})
		frames.Run(gctx, opts.duration)
		log.Info(gctx, "frame loop finished", logging.Int("frames", int(frames.Ticks())))
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	p := nav.Pose()
	log.Info(context.Background(), "final pose",
		logging.Float64("lat_deg", p.Lat*180/math.Pi),
		logging.Float64("lon_deg", p.Lon*180/math.Pi),
		logging.Float64("height", p.EllipsHeight),
		logging.Float64("azimuth_deg", p.Azimuth*180/math.Pi),
		logging.Float64("height_angle_deg", p.HeightAngle*180/math.Pi),
	)
	return nil
}

// newTerrain samples a synthetic alpine relief around the default
// bookmarks and puts an LRU in front of it.
func newTerrain(tc config.TerrainConfig) (core.ElevationProvider, error) {
	const deg = math.Pi / 180
	grid, err := core.GridTerrainFromFunc(5*deg, 45*deg, 11*deg, 48.5*deg, 241, 141, func(lon, lat float64) float64 {
		ridge := math.Exp(-math.Pow((lat-46*deg)/(0.4*deg), 2))
		return 400 + 3500*ridge*(0.6+0.4*math.Sin(lon/(0.15*deg)))
	})
	if err != nil {
		return nil, fmt.Errorf("build terrain: %w", err)
	}
	cached, err := core.NewCachedTerrain(grid, tc.CacheSize, tc.QuantumRadians())
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func seedBookmarks(store *bookmarks.Store) {
	_ = store.Add("zurich", model.ViewpointFromDegrees(8.54, 47.37, 3000, 180, -30))
	_ = store.Add("bernese-alps", model.ViewpointFromDegrees(7.96, 46.54, 6000, 150, -20))
	_ = store.Add("matterhorn", model.ViewpointFromDegrees(7.66, 45.98, 5500, 200, -15))
	_ = store.Add("geneva", model.ViewpointFromDegrees(6.14, 46.2, 8000, 60, -45))
}

func placeAt(nav *navigator.GlobeNavigator, store *bookmarks.Store, name string) error {
	vp, err := store.Get(name)
	if err != nil {
		return err
	}
	nav.SetPositionHeight(vp.Lat, vp.Lon, vp.Height)
	nav.SetAzimut(vp.Azimuth)
	nav.SetHeightAngle(vp.HeightAngle)
	return nil
}

func startScenario(nav *navigator.GlobeNavigator, store *bookmarks.Store, cfg config.Config, scenario string) error {
	list := store.List()
	last := list[len(list)-1].Viewpoint

	switch scenario {
	case "flyto":
		nav.GotoViewpoint(last)
	case "lookat":
		nav.GotoLookat(last.Lon, last.Lat, 5000)
	case "path":
		stops := cfg.Tour.Stops
		if len(stops) == 0 {
			stops = store.Names()
		}
		path, err := store.Path(stops, cfg.Tour.Leg)
		if err != nil {
			return err
		}
		if !cfg.Tour.Loop {
			nav.FlyPath(path)
			return nil
		}
		rest := append(append([]model.PathPoint(nil), path[1:]...), path[0])
		follow := navigator.NewPathUpdater(nav, rest, nil)
		follow.SetLoop(true)
		nav.SetUpdater(navigator.NewFlyToViewpoint(nav, path[0].Viewpoint, follow))
	case "walk":
		nav.WalkFly().SetSpeed(0.5)
	default:
		return fmt.Errorf("unknown scenario %q", scenario)
	}
	return nil
}

// loadTLE reads a two or three line element set.
func loadTLE(path string) (*core.SatelliteTrack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open TLE: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read TLE: %w", err)
	}
	if len(lines) == 3 {
		lines = lines[1:]
	}
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "1 ") || !strings.HasPrefix(lines[1], "2 ") {
		return nil, fmt.Errorf("TLE %s: want two element lines, got %d lines", path, len(lines))
	}
	return core.NewSatelliteTrack(lines[0], lines[1], core.WGS84), nil
}

func serveMetrics(addr string, collector *observability.NavigatorCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
