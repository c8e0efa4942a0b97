package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values shared by the scan metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	ParseErrorMissingField = "missing_field"
	ParseErrorOther        = "other"

	PassCompleted   = "completed"
	PassInterrupted = "interrupted"
)

// ScanCollector bundles Prometheus metrics for the scan loop. All methods are
// safe to call on a nil collector.
type ScanCollector struct {
	gatherer prometheus.Gatherer

	Probes         *prometheus.CounterVec
	ProbeDurations prometheus.Histogram
	LoginAttempts  *prometheus.CounterVec
	ParseErrors    *prometheus.CounterVec
	Passes         *prometheus.CounterVec

	CoveragePoints      prometheus.Gauge
	LastSuccessfulProbe prometheus.Gauge
	PointsOfInterest    prometheus.Gauge
}

// NewScanCollector registers scan metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewScanCollector(reg prometheus.Registerer) (*ScanCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	probes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_probes_total",
		Help: "Location probes issued against the remote service, labeled by result.",
	}, []string{"result"}), "scan_probes_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scan_probe_duration_seconds",
		Help:    "Latency of single location probes, session checks included.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}), "scan_probe_duration_seconds")
	if err != nil {
		return nil, err
	}

	logins, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_login_attempts_total",
		Help: "Authentication attempts against the remote service, labeled by result.",
	}, []string{"result"}), "scan_login_attempts_total")
	if err != nil {
		return nil, err
	}

	parseErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_parse_errors_total",
		Help: "Probe responses the parser rejected, labeled by error kind.",
	}, []string{"kind"}), "scan_parse_errors_total")
	if err != nil {
		return nil, err
	}

	passes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_passes_total",
		Help: "Finished passes over the coverage set, labeled by outcome.",
	}, []string{"outcome"}), "scan_passes_total")
	if err != nil {
		return nil, err
	}

	coverage, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scan_coverage_points",
		Help: "Number of probe locations in the current coverage set.",
	}), "scan_coverage_points")
	if err != nil {
		return nil, err
	}

	lastSuccess, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scan_last_successful_request_timestamp_seconds",
		Help: "Unix time of the last probe that returned a response.",
	}), "scan_last_successful_request_timestamp_seconds")
	if err != nil {
		return nil, err
	}

	pois, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scan_points_of_interest",
		Help: "Points of interest currently held by the store.",
	}), "scan_points_of_interest")
	if err != nil {
		return nil, err
	}

	return &ScanCollector{
		gatherer:            gatherer,
		Probes:              probes,
		ProbeDurations:      durations,
		LoginAttempts:       logins,
		ParseErrors:         parseErrors,
		Passes:              passes,
		CoveragePoints:      coverage,
		LastSuccessfulProbe: lastSuccess,
		PointsOfInterest:    pois,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ScanCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveProbe records one probe attempt and its latency.
func (c *ScanCollector) ObserveProbe(ok bool, d time.Duration) {
	if c == nil {
		return
	}
	if c.Probes != nil {
		c.Probes.WithLabelValues(resultLabel(ok)).Inc()
	}
	if c.ProbeDurations != nil {
		c.ProbeDurations.Observe(d.Seconds())
	}
}

// ObserveLogin records one authentication attempt.
func (c *ScanCollector) ObserveLogin(ok bool) {
	if c == nil || c.LoginAttempts == nil {
		return
	}
	c.LoginAttempts.WithLabelValues(resultLabel(ok)).Inc()
}

// IncParseErrors counts a rejected response of the given kind.
func (c *ScanCollector) IncParseErrors(kind string) {
	if c == nil || c.ParseErrors == nil {
		return
	}
	c.ParseErrors.WithLabelValues(kind).Inc()
}

// IncPasses counts a finished pass with the given outcome.
func (c *ScanCollector) IncPasses(outcome string) {
	if c == nil || c.Passes == nil {
		return
	}
	c.Passes.WithLabelValues(outcome).Inc()
}

// SetCoveragePoints updates the coverage size gauge.
func (c *ScanCollector) SetCoveragePoints(n int) {
	if c == nil || c.CoveragePoints == nil {
		return
	}
	c.CoveragePoints.Set(float64(n))
}

// SetLastSuccessfulRequest updates the forward-progress gauge.
func (c *ScanCollector) SetLastSuccessfulRequest(t time.Time) {
	if c == nil || c.LastSuccessfulProbe == nil {
		return
	}
	c.LastSuccessfulProbe.Set(float64(t.UnixNano()) / 1e9)
}

// SetPointsOfInterest updates the store size gauge.
func (c *ScanCollector) SetPointsOfInterest(n int) {
	if c == nil || c.PointsOfInterest == nil {
		return
	}
	c.PointsOfInterest.Set(float64(n))
}

func resultLabel(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
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
