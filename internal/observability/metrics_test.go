package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveProbeRecordsResultAndLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewScanCollector(reg)
	if err != nil {
		t.Fatalf("NewScanCollector: %v", err)
	}

	collector.ObserveProbe(false, 20*time.Millisecond)
	collector.ObserveProbe(true, 30*time.Millisecond)
	collector.ObserveProbe(true, 40*time.Millisecond)

	if got := testutil.ToFloat64(collector.Probes.WithLabelValues(ResultSuccess)); got != 2 {
		t.Fatalf("scan_probes_total{result=success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Probes.WithLabelValues(ResultFailure)); got != 1 {
		t.Fatalf("scan_probes_total{result=failure} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "scan_probe_duration_seconds"); count != 3 {
		t.Fatalf("scan_probe_duration_seconds sample_count = %d, want 3", count)
	}
}

func TestRegistrationIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewScanCollector(reg)
	if err != nil {
		t.Fatalf("first NewScanCollector: %v", err)
	}
	second, err := NewScanCollector(reg)
	if err != nil {
		t.Fatalf("second NewScanCollector: %v", err)
	}

	first.IncPasses(PassCompleted)
	second.IncPasses(PassCompleted)
	if got := testutil.ToFloat64(first.Passes.WithLabelValues(PassCompleted)); got != 2 {
		t.Fatalf("scan_passes_total shared counter = %v, want 2", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *ScanCollector
	c.ObserveProbe(true, time.Second)
	c.ObserveLogin(false)
	c.IncParseErrors(ParseErrorOther)
	c.IncPasses(PassInterrupted)
	c.SetCoveragePoints(7)
	c.SetLastSuccessfulRequest(time.Now())
	c.SetPointsOfInterest(3)
}

func TestMetricsHandlerExposesScanGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewScanCollector(reg)
	if err != nil {
		t.Fatalf("NewScanCollector: %v", err)
	}
	collector.SetCoveragePoints(37)
	collector.SetPointsOfInterest(12)
	collector.SetLastSuccessfulRequest(time.Unix(1700000000, 0))
	collector.ObserveLogin(true)
	collector.IncParseErrors(ParseErrorMissingField)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"scan_coverage_points 37",
		"scan_points_of_interest 12",
		"scan_last_successful_request_timestamp_seconds 1.7e+09",
		`scan_login_attempts_total{result="success"} 1`,
		`scan_parse_errors_total{kind="missing_field"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in /metrics output:\n%s", want, body)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if h := histogramOf(m); h != nil {
				return h.GetSampleCount()
			}
		}
	}
	return 0
}

func histogramOf(m *dto.Metric) *dto.Histogram {
	if m == nil {
		return nil
	}
	return m.GetHistogram()
}
