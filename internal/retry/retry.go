// Package retry runs an operation until it succeeds, waiting between
// attempts according to a backoff policy on an injectable clock.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/signalsfoundry/geoscan/timectrl"
)

// DefaultDelay is the wait between attempts when no policy is given.
const DefaultDelay = time.Second

type options struct {
	policy  backoff.BackOff
	retryIf func(error) bool
	notify  func(err error, wait time.Duration)
}

// Option configures Do.
type Option func(*options)

// WithBackOff sets the policy deciding how long to wait after each failure.
// A policy returning backoff.Stop ends the loop with the last error.
func WithBackOff(b backoff.BackOff) Option {
	return func(o *options) { o.policy = b }
}

// WithRetryIf restricts retries to errors for which fn returns true. Other
// errors are returned immediately.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) { o.retryIf = fn }
}

// WithNotify registers a callback invoked before every wait.
func WithNotify(fn func(err error, wait time.Duration)) Option {
	return func(o *options) { o.notify = fn }
}

// Do calls op until it returns a nil error. There is no attempt limit: it
// only gives up when the policy says backoff.Stop, when an error is not
// retryable, or when ctx ends while waiting. The policy is reset before the
// first attempt, so counters never leak between calls.
func Do[T any](ctx context.Context, clock timectrl.Clock, op func(context.Context) (T, error), opts ...Option) (T, error) {
	o := options{
		policy:  backoff.NewConstantBackOff(DefaultDelay),
		retryIf: func(error) bool { return true },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if clock == nil {
		clock = timectrl.RealClock{}
	}
	o.policy.Reset()

	for {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if !o.retryIf(err) {
			return res, err
		}

		wait := o.policy.NextBackOff()
		if wait == backoff.Stop {
			return res, err
		}
		if o.notify != nil {
			o.notify(err, wait)
		}
		if serr := timectrl.Sleep(ctx, clock, wait); serr != nil {
			var zero T
			return zero, serr
		}
	}
}
