package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/geoscan/internal/logging"
)

// Span exporters understood by StartTracing. An empty exporter disables
// tracing.
const (
	ExporterNone   = ""
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"

	defaultOTLPEndpoint = "localhost:4317"
	shutdownTimeout     = 5 * time.Second
)

// TracingConfig is the tracing section of the scanner configuration.
type TracingConfig struct {
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// DefaultTracingConfig has tracing off and samples every pass once enabled.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{ServiceName: "geoscan", SampleRatio: 1}
}

// Validate reports an unknown exporter or a ratio outside [0, 1].
func (c TracingConfig) Validate() error {
	switch strings.ToLower(c.Exporter) {
	case ExporterNone, ExporterStdout, ExporterOTLP:
	default:
		return fmt.Errorf("tracing exporter %q: want %s or %s", c.Exporter, ExporterStdout, ExporterOTLP)
	}
	if !(c.SampleRatio >= 0 && c.SampleRatio <= 1) {
		return fmt.Errorf("tracing sample_ratio %v: want a value in [0, 1]", c.SampleRatio)
	}
	return nil
}

// Tracing owns the process tracer provider.
type Tracing struct {
	provider *sdktrace.TracerProvider
	log      logging.Logger
}

// StartTracing installs the global tracer provider described by cfg. Pass
// and probe spans go to the configured exporter; with no exporter a no-op
// provider is installed. W3C trace context is propagated either way so
// gateway requests carry the probe span.
func StartTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (*Tracing, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if cfg.Exporter == ExporterNone {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Tracing{log: log}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	exp, err := newSpanExporter(ctx, cfg, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("geoscan.exporter", cfg.Exporter),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float64("sample_ratio", cfg.SampleRatio),
	)
	return &Tracing{provider: tp, log: log}, nil
}

func newSpanExporter(ctx context.Context, cfg TracingConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterOTLP:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	}
	return nil, fmt.Errorf("unsupported exporter %q", cfg.Exporter)
}

// Enabled reports whether spans are exported.
func (t *Tracing) Enabled() bool {
	return t != nil && t.provider != nil
}

// Shutdown flushes buffered spans, waiting at most a few seconds. Errors are
// logged, not returned, since this only runs on the way out.
func (t *Tracing) Shutdown(ctx context.Context) {
	if !t.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := t.provider.Shutdown(ctx); err != nil {
		t.log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
