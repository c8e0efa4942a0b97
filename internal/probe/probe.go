// Package probe issues single location probes against the remote service.
package probe

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/geoscan/core"
	"github.com/signalsfoundry/geoscan/internal/logging"
	"github.com/signalsfoundry/geoscan/internal/observability"
	"github.com/signalsfoundry/geoscan/internal/remote"
	"github.com/signalsfoundry/geoscan/model"
	"github.com/signalsfoundry/geoscan/timectrl"
)

// ErrProbeFailed is the uniform failure every probe error is wrapped in.
var ErrProbeFailed = errors.New("probe failed")

// SessionKeeper makes sure a valid session exists before a request.
type SessionKeeper interface {
	EnsureSession(ctx context.Context, creds model.Credentials, pos model.ScanPoint) error
}

// Client issues one map-objects request per call.
type Client struct {
	remote   remote.Client
	sessions SessionKeeper
	creds    model.Credentials
	log      logging.Logger
	clock    timectrl.Clock
	metrics  *observability.ScanCollector
}

// Option configures a Client.
type Option func(*Client)

// WithClock replaces the wall clock used to time probes.
func WithClock(c timectrl.Clock) Option {
	return func(p *Client) { p.clock = c }
}

// WithMetrics records probe outcomes on c.
func WithMetrics(c *observability.ScanCollector) Option {
	return func(p *Client) { p.metrics = c }
}

// NewClient constructs a probe client.
func NewClient(rc remote.Client, sessions SessionKeeper, creds model.Credentials, log logging.Logger, opts ...Option) *Client {
	if log == nil {
		log = logging.Noop()
	}
	c := &Client{
		remote:   rc,
		sessions: sessions,
		creds:    creds,
		log:      log,
		clock:    timectrl.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewMapRequest builds the map-objects request for pos: fixed-point
// coordinates, the surrounding level-15 cells and a zero "since" timestamp
// for each of them.
func NewMapRequest(pos model.ScanPoint) model.MapRequest {
	cells := core.CellIDs(pos.Latitude, pos.Longitude)
	return model.MapRequest{
		Position:         pos,
		LatitudeFixed:    core.FixedPoint(pos.Latitude),
		LongitudeFixed:   core.FixedPoint(pos.Longitude),
		SinceTimestampMs: make([]int64, len(cells)),
		CellIDs:          cells,
	}
}

// Probe ensures a session, moves the remote position to pos and fetches the
// map objects around it. Every failure is logged and returned wrapped in
// ErrProbeFailed.
func (c *Client) Probe(ctx context.Context, pos model.ScanPoint) (*structpb.Struct, error) {
	ctx, span := observability.Tracer("geoscan/probe").Start(ctx, "probe")
	span.SetAttributes(
		attribute.Float64("scan.latitude", pos.Latitude),
		attribute.Float64("scan.longitude", pos.Longitude),
	)
	defer span.End()

	start := c.clock.Now()
	resp, err := c.probe(ctx, pos)
	c.metrics.ObserveProbe(err == nil, c.clock.Now().Sub(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Error(ctx, "map download failed",
			logging.String("position", pos.String()),
			logging.Err(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	return resp, nil
}

func (c *Client) probe(ctx context.Context, pos model.ScanPoint) (*structpb.Struct, error) {
	if err := c.sessions.EnsureSession(ctx, c.creds, pos); err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}

	c.remote.SetPosition(pos.Latitude, pos.Longitude, pos.Altitude)
	resp, err := c.remote.GetMapObjects(ctx, NewMapRequest(pos))
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("empty response")
	}
	return resp, nil
}
