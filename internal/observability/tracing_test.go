package observability

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/signalsfoundry/geoscan/internal/logging"
)

func TestTracingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TracingConfig
		wantErr bool
	}{
		{name: "defaults", cfg: DefaultTracingConfig()},
		{name: "stdout", cfg: TracingConfig{Exporter: "stdout", SampleRatio: 0.5}},
		{name: "otlp upper case", cfg: TracingConfig{Exporter: "OTLP", SampleRatio: 1}},
		{name: "zipkin", cfg: TracingConfig{Exporter: "zipkin", SampleRatio: 1}, wantErr: true},
		{name: "ratio above one", cfg: TracingConfig{Exporter: "stdout", SampleRatio: 2}, wantErr: true},
		{name: "negative ratio", cfg: TracingConfig{SampleRatio: -0.1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStartTracingDisabledIsNoop(t *testing.T) {
	tr, err := StartTracing(context.Background(), DefaultTracingConfig(), logging.Noop())
	if err != nil {
		t.Fatalf("StartTracing: %v", err)
	}
	if tr.Enabled() {
		t.Fatalf("tracing enabled without an exporter")
	}
	tr.Shutdown(context.Background())

	_, span := Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatalf("noop provider produced a sampled span")
	}
	span.End()
}

func TestStartTracingRejectsUnknownExporter(t *testing.T) {
	if _, err := StartTracing(context.Background(), TracingConfig{Exporter: "zipkin", SampleRatio: 1}, nil); err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}

func TestNewSpanExporterChoosesBackend(t *testing.T) {
	var buf bytes.Buffer
	exp, err := newSpanExporter(context.Background(), TracingConfig{Exporter: ExporterStdout}, &buf)
	if err != nil {
		t.Fatalf("newSpanExporter: %v", err)
	}
	if exp == nil {
		t.Fatalf("nil exporter")
	}
	if _, err := newSpanExporter(context.Background(), TracingConfig{Exporter: "jaeger"}, &buf); err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}

func TestStartTracingPropagatesSpans(t *testing.T) {
	tr, err := StartTracing(context.Background(), TracingConfig{Exporter: ExporterStdout, ServiceName: "geoscan-test", SampleRatio: 1}, nil)
	if err != nil {
		t.Fatalf("StartTracing: %v", err)
	}
	defer tr.Shutdown(context.Background())
	if !tr.Enabled() {
		t.Fatalf("tracing not enabled for stdout exporter")
	}

	ctx, span := Tracer("test").Start(context.Background(), "scan.pass")
	defer span.End()
	if !span.SpanContext().IsSampled() {
		t.Fatalf("span not sampled at ratio 1")
	}

	header := http.Header{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
	if tp := header.Get("traceparent"); !strings.Contains(tp, span.SpanContext().TraceID().String()) {
		t.Fatalf("traceparent = %q, want trace id %s", tp, span.SpanContext().TraceID())
	}
}
