// Package scan drives the endless sequence of passes over the coverage set.
package scan

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/geoscan/internal/logging"
	"github.com/signalsfoundry/geoscan/internal/observability"
	"github.com/signalsfoundry/geoscan/internal/probe"
	"github.com/signalsfoundry/geoscan/internal/retry"
	"github.com/signalsfoundry/geoscan/model"
	"github.com/signalsfoundry/geoscan/timectrl"
)

// DefaultRetryDelay is the fixed wait before re-probing a failed point.
const DefaultRetryDelay = time.Second

// Prober issues one probe. Failures should wrap probe.ErrProbeFailed; any
// error is retried while the context is live.
type Prober interface {
	Probe(ctx context.Context, pos model.ScanPoint) (*structpb.Struct, error)
}

// Parser consumes a probe response. Errors wrapping model.ErrMissingField
// are reported as structured parse failures; all errors are non-fatal.
type Parser interface {
	Parse(ctx context.Context, resp *structpb.Struct) error
}

// PassResult summarises one pass over the coverage set.
type PassResult struct {
	PassID      string
	Total       int
	Completed   int
	Interrupted bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock used for retry waits and timestamps.
func WithClock(c timectrl.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithRetryDelay overrides the wait between probe attempts on one point.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryDelay = d }
}

// WithMetrics records pass and parse outcomes on c.
func WithMetrics(c *observability.ScanCollector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// Orchestrator walks the coverage set point by point, forever.
type Orchestrator struct {
	control    *Control
	prober     Prober
	parser     Parser
	log        logging.Logger
	clock      timectrl.Clock
	metrics    *observability.ScanCollector
	retryDelay time.Duration
}

// NewOrchestrator wires an orchestrator over control.
func NewOrchestrator(control *Control, prober Prober, parser Parser, log logging.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logging.Noop()
	}
	o := &Orchestrator{
		control:    control,
		prober:     prober,
		parser:     parser,
		log:        log,
		clock:      timectrl.RealClock{},
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes passes back to back until ctx ends.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		res, err := o.RunPass(ctx)
		if err != nil {
			return err
		}
		if res.Interrupted {
			o.log.Info(ctx, "scan interrupted, restarting", logging.String("pass_id", res.PassID))
			continue
		}
		o.log.Info(ctx, "finished scan", logging.String("pass_id", res.PassID))
	}
}

// RunPass visits every point of the current coverage set once, in order. A
// point is re-probed until it succeeds. After each point the interrupt flag
// is consumed; if it was set the pass stops early. The only error returned
// is ctx's.
func (o *Orchestrator) RunPass(ctx context.Context) (PassResult, error) {
	ctx, log := logging.WithPassLogger(ctx, o.log)
	passID := logging.PassIDFromContext(ctx)

	coverage := o.control.Coverage()
	total := coverage.Len()
	o.metrics.SetCoveragePoints(total)

	ctx, span := observability.Tracer("geoscan/scan").Start(ctx, "scan.pass")
	span.SetAttributes(
		attribute.String("scan.pass_id", passID),
		attribute.Int("scan.points", total),
		attribute.Float64("scan.radius_m", coverage.Radius),
	)
	defer span.End()

	res := PassResult{PassID: passID, Total: total}
	for i, point := range coverage.Points {
		if err := ctx.Err(); err != nil {
			span.SetAttributes(attribute.Int("scan.completed", res.Completed))
			return res, err
		}
		step := i + 1
		log.Info(ctx, "scanning step", logging.Int("step", step), logging.Int("of", total))
		log.Debug(ctx, "scan location", logging.String("position", point.String()))

		resp, err := o.probeUntilSuccess(ctx, log, point)
		if err != nil {
			span.SetAttributes(attribute.Int("scan.completed", res.Completed))
			return res, err
		}

		o.parse(ctx, log, resp)

		now := o.clock.Now()
		o.control.MarkSuccess(now)
		o.metrics.SetLastSuccessfulRequest(now)
		res.Completed = step

		log.Info(ctx, "scan progress", logging.Float64("percent", float64(step)/float64(total)*100))

		if o.control.ConsumeInterrupt() {
			res.Interrupted = true
			break
		}
	}

	outcome := observability.PassCompleted
	if res.Interrupted {
		outcome = observability.PassInterrupted
	}
	o.metrics.IncPasses(outcome)
	span.SetAttributes(
		attribute.Int("scan.completed", res.Completed),
		attribute.Bool("scan.interrupted", res.Interrupted),
	)
	return res, nil
}

func (o *Orchestrator) probeUntilSuccess(ctx context.Context, log logging.Logger, point model.ScanPoint) (*structpb.Struct, error) {
	resp, err := retry.Do(ctx, o.clock, func(ctx context.Context) (*structpb.Struct, error) {
		return o.prober.Probe(ctx, point)
	},
		retry.WithBackOff(backoff.NewConstantBackOff(o.retryDelay)),
		retry.WithRetryIf(func(error) bool { return ctx.Err() == nil }),
		retry.WithNotify(func(err error, _ time.Duration) {
			if !errors.Is(err, probe.ErrProbeFailed) {
				log.Warn(ctx, "prober returned an unclassified error", logging.Err(err))
			}
			log.Info(ctx, "map download failed, trying again")
		}),
	)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return resp, err
}

func (o *Orchestrator) parse(ctx context.Context, log logging.Logger, resp *structpb.Struct) {
	err := o.parser.Parse(ctx, resp)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrMissingField):
		o.metrics.IncParseErrors(observability.ParseErrorMissingField)
		log.Error(ctx, "failed to parse response", logging.Err(err))
	default:
		o.metrics.IncParseErrors(observability.ParseErrorOther)
		log.Error(ctx, "unexpected error parsing response", logging.Err(err))
	}
}
