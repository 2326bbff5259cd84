package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/globe-navigator/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Maneuver span exporters.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// ManeuverTracerName is the instrumentation scope of flight, lookat and
// path spans.
const ManeuverTracerName = "github.com/signalsfoundry/globe-navigator/navigator"

const defaultOTLPEndpoint = "localhost:4317"

// TracingConfig is the tracing section of the navigator configuration.
// Every flight, lookat and path run becomes one root span; walk/fly is
// never traced.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// DefaultTracingConfig keeps tracing off. Once enabled every maneuver is
// sampled and written to stderr.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "globe-navigator",
		Exporter:    ExporterStdout,
		SampleRatio: 1,
	}
}

// ApplyEnv overrides fields from NAV_TRACING_ENABLED, NAV_TRACING_EXPORTER,
// NAV_TRACING_SERVICE_NAME, NAV_TRACING_SAMPLE_RATIO and NAV_OTLP_ENDPOINT.
func (c *TracingConfig) ApplyEnv(getenv func(string) string) error {
	if raw := strings.TrimSpace(getenv("NAV_TRACING_ENABLED")); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("NAV_TRACING_ENABLED %q: %w", raw, err)
		}
		c.Enabled = enabled
	}
	if raw := strings.TrimSpace(getenv("NAV_TRACING_EXPORTER")); raw != "" {
		c.Exporter = strings.ToLower(raw)
	}
	if raw := strings.TrimSpace(getenv("NAV_TRACING_SERVICE_NAME")); raw != "" {
		c.ServiceName = raw
	}
	if raw := strings.TrimSpace(getenv("NAV_TRACING_SAMPLE_RATIO")); raw != "" {
		ratio, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("NAV_TRACING_SAMPLE_RATIO %q: %w", raw, err)
		}
		c.SampleRatio = ratio
	}
	if raw := strings.TrimSpace(getenv("NAV_OTLP_ENDPOINT")); raw != "" {
		c.Endpoint = raw
	}
	return nil
}

// Validate checks the exporter, sample ratio and service name.
func (c TracingConfig) Validate() error {
	if c.Exporter != ExporterStdout && c.Exporter != ExporterOTLP {
		return fmt.Errorf("tracing.exporter %q: want %s or %s", c.Exporter, ExporterStdout, ExporterOTLP)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", c.SampleRatio)
	}
	if c.Enabled && c.ServiceName == "" {
		return fmt.Errorf("tracing.service_name must not be empty")
	}
	return nil
}

// Tracing owns the tracer provider of one navigator session.
type Tracing struct {
	provider trace.TracerProvider
	shutdown func(context.Context) error
	log      logging.Logger
}

// InitTracing builds the provider for maneuver spans. The session
// attributes (scenario, frame rate) go on the resource so every span of
// the run carries them. A disabled config yields a noop provider. The
// global otel provider is left alone; hand Tracer to the navigator.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger, session ...attribute.KeyValue) (*Tracing, error) {
	return initTracing(ctx, cfg, log, os.Stderr, session...)
}

func initTracing(ctx context.Context, cfg TracingConfig, log logging.Logger, out io.Writer, session ...attribute.KeyValue) (*Tracing, error) {
	if log == nil {
		log = logging.Noop()
	}
	if !cfg.Enabled {
		log.Debug(ctx, "maneuver tracing disabled")
		return &Tracing{provider: noop.NewTracerProvider(), log: log}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	exp, err := newSpanExporter(ctx, cfg, out)
	if err != nil {
		return nil, err
	}

	attrs := append([]attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "globe-navigator"),
	}, session...)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	// maneuver spans are roots, the ratio applies to each one
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	log.Info(ctx, "maneuver tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float64("sample_ratio", cfg.SampleRatio),
	)
	return &Tracing{provider: tp, shutdown: tp.Shutdown, log: log}, nil
}

func newSpanExporter(ctx context.Context, cfg TracingConfig, out io.Writer) (sdktrace.SpanExporter, error) {
	if cfg.Exporter == ExporterOTLP {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		return otlptrace.New(ctx, client)
	}
	// stdout carries navsim's log lines
	return stdouttrace.New(
		stdouttrace.WithWriter(out),
		stdouttrace.WithoutTimestamps(),
	)
}

// Tracer returns the tracer maneuver spans are started from.
func (t *Tracing) Tracer() trace.Tracer {
	return t.provider.Tracer(ManeuverTracerName)
}

// Shutdown flushes pending maneuver spans, giving up after five seconds.
// Failures are logged.
func (t *Tracing) Shutdown(ctx context.Context) {
	if t == nil || t.shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := t.shutdown(ctx); err != nil {
		t.log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
