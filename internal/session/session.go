// Package session keeps an authenticated session with the remote service
// alive: blocking login with capped exponential backoff and proactive
// renewal before the auth ticket expires.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/signalsfoundry/geoscan/internal/logging"
	"github.com/signalsfoundry/geoscan/internal/observability"
	"github.com/signalsfoundry/geoscan/internal/remote"
	"github.com/signalsfoundry/geoscan/internal/retry"
	"github.com/signalsfoundry/geoscan/model"
	"github.com/signalsfoundry/geoscan/timectrl"
)

// DefaultRefreshMargin is how close to ticket expiry a session is renewed.
const DefaultRefreshMargin = 60 * time.Second

// ErrLoginRejected is returned by a single login attempt the service refused.
var ErrLoginRejected = errors.New("login rejected")

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for sleeping and timestamps.
func WithClock(c timectrl.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithBackoffCap overrides the upper bound of the login backoff.
func WithBackoffCap(d time.Duration) Option {
	return func(m *Manager) { m.backoffCap = d }
}

// WithRefreshMargin overrides how early a ticket is renewed.
func WithRefreshMargin(d time.Duration) Option {
	return func(m *Manager) { m.refreshMargin = d }
}

// WithMetrics records login attempts on c.
func WithMetrics(c *observability.ScanCollector) Option {
	return func(m *Manager) { m.metrics = c }
}

// Manager owns the remote session lifecycle.
type Manager struct {
	client        remote.Client
	log           logging.Logger
	clock         timectrl.Clock
	metrics       *observability.ScanCollector
	backoffCap    time.Duration
	refreshMargin time.Duration

	mu    sync.RWMutex
	state model.SessionState
}

// NewManager constructs a Manager around client.
func NewManager(client remote.Client, log logging.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logging.Noop()
	}
	m := &Manager{
		client:        client,
		log:           log,
		clock:         timectrl.RealClock{},
		backoffCap:    DefaultBackoffCap,
		refreshMargin: DefaultRefreshMargin,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a copy of the session state.
func (m *Manager) State() model.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Login moves the remote position to pos and authenticates, retrying every
// failure with capped exponential backoff until it succeeds. It only returns
// an error when ctx ends.
func (m *Manager) Login(ctx context.Context, creds model.Credentials, pos model.ScanPoint) error {
	m.log.Info(ctx, "attempting login", logging.String("auth_service", creds.AuthService))
	m.client.SetPosition(pos.Latitude, pos.Longitude, pos.Altitude)

	policy := &LoginBackOff{Cap: m.backoffCap}
	_, err := retry.Do(ctx, m.clock, func(ctx context.Context) (struct{}, error) {
		ok, err := m.client.Login(ctx, creds.AuthService, creds.Username, creds.Password)
		m.metrics.ObserveLogin(err == nil && ok)
		if err != nil {
			return struct{}{}, err
		}
		if !ok {
			return struct{}{}, ErrLoginRejected
		}
		return struct{}{}, nil
	},
		retry.WithBackOff(policy),
		retry.WithNotify(func(err error, wait time.Duration) {
			m.log.Warn(ctx, "login failed, retrying",
				logging.Err(err),
				logging.Duration("retry_in", wait),
			)
		}),
	)
	if err != nil {
		return err
	}

	now := m.clock.Now()
	expiry, _ := m.client.TicketExpiry()

	m.mu.Lock()
	m.state = model.SessionState{LoggedInAt: now, TicketExpiresAt: expiry}
	m.mu.Unlock()

	m.log.Info(ctx, "login successful", logging.Time("ticket_expires_at", expiry))
	return nil
}

// NeedsLogin reports whether the session must be renewed: no ticket expiry
// is known, or less than the refresh margin remains before it.
func (m *Manager) NeedsLogin() bool {
	expiry, ok := m.client.TicketExpiry()
	if !ok || expiry.IsZero() {
		return true
	}
	return expiry.Sub(m.clock.Now()) < m.refreshMargin
}

// EnsureSession logs in when NeedsLogin says so. It runs before every probe.
func (m *Manager) EnsureSession(ctx context.Context, creds model.Credentials, pos model.ScanPoint) error {
	if !m.NeedsLogin() {
		return nil
	}
	if m.State().LoggedIn() {
		m.log.Info(ctx, "login has or is about to expire")
	}
	return m.Login(ctx, creds, pos)
}
