// Package config loads scanner settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/geoscan/internal/logging"
	"github.com/signalsfoundry/geoscan/internal/observability"
	"github.com/signalsfoundry/geoscan/internal/scan"
	"github.com/signalsfoundry/geoscan/internal/session"
	"github.com/signalsfoundry/geoscan/model"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GEOSCAN_"

// Defaults.
const (
	DefaultRadius        = 500.0
	DefaultAuthService   = "ptc"
	DefaultMetricsAddr   = ":9090"
	DefaultPruneInterval = time.Minute
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds scanner configuration.
type Config struct {
	Location    string  `yaml:"location"`
	Radius      float64 `yaml:"radius"`
	AuthService string  `yaml:"auth_service"`
	Username    string  `yaml:"username"`
	Password    string  `yaml:"password"`

	RemoteURL   string `yaml:"remote_url"`
	GeocodeURL  string `yaml:"geocode_url"`
	MetricsAddr string `yaml:"metrics_addr"`

	ProbeRetryDelay     time.Duration `yaml:"probe_retry_delay"`
	LoginBackoffCap     time.Duration `yaml:"login_backoff_cap"`
	TicketRefreshMargin time.Duration `yaml:"ticket_refresh_margin"`
	PruneInterval       time.Duration `yaml:"prune_interval"`

	LogLevel  string                      `yaml:"log_level"`
	LogFormat string                      `yaml:"log_format"`
	Tracing   observability.TracingConfig `yaml:"tracing"`
}

// Default returns a Config with every optional field filled.
func Default() Config {
	return Config{
		Radius:              DefaultRadius,
		AuthService:         DefaultAuthService,
		MetricsAddr:         DefaultMetricsAddr,
		ProbeRetryDelay:     scan.DefaultRetryDelay,
		LoginBackoffCap:     session.DefaultBackoffCap,
		TicketRefreshMargin: session.DefaultRefreshMargin,
		PruneInterval:       DefaultPruneInterval,
		Tracing:             observability.DefaultTracingConfig(),
	}
}

// Load reads path (skipped when empty) over the defaults and then applies
// GEOSCAN_* environment overrides.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LOCATION":     &c.Location,
		"AUTH_SERVICE": &c.AuthService,
		"USERNAME":     &c.Username,
		"PASSWORD":     &c.Password,
		"REMOTE_URL":   &c.RemoteURL,
		"GEOCODE_URL":  &c.GeocodeURL,
		"METRICS_ADDR": &c.MetricsAddr,
		"LOG_LEVEL":    &c.LogLevel,
		"LOG_FORMAT":   &c.LogFormat,

		"TRACING_EXPORTER":     &c.Tracing.Exporter,
		"TRACING_ENDPOINT":     &c.Tracing.Endpoint,
		"TRACING_SERVICE_NAME": &c.Tracing.ServiceName,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"RADIUS":               &c.Radius,
		"TRACING_SAMPLE_RATIO": &c.Tracing.SampleRatio,
	}
	for key, dst := range floats {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidConfig, EnvPrefix, key, v, err)
		}
		*dst = f
	}

	durations := map[string]*time.Duration{
		"PROBE_RETRY_DELAY":     &c.ProbeRetryDelay,
		"LOGIN_BACKOFF_CAP":     &c.LoginBackoffCap,
		"TICKET_REFRESH_MARGIN": &c.TicketRefreshMargin,
		"PRUNE_INTERVAL":        &c.PruneInterval,
	}
	for key, dst := range durations {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidConfig, EnvPrefix, key, v, err)
		}
		*dst = d
	}
	return nil
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Location) == "":
		return fmt.Errorf("%w: location is required", ErrInvalidConfig)
	case math.IsNaN(c.Radius) || c.Radius < 0:
		return fmt.Errorf("%w: radius must be a non-negative number of metres, got %v", ErrInvalidConfig, c.Radius)
	case c.Username == "":
		return fmt.Errorf("%w: username is required", ErrInvalidConfig)
	case c.Password == "":
		return fmt.Errorf("%w: password is required", ErrInvalidConfig)
	case c.AuthService == "":
		return fmt.Errorf("%w: auth_service is required", ErrInvalidConfig)
	case c.RemoteURL == "":
		return fmt.Errorf("%w: remote_url is required", ErrInvalidConfig)
	case c.ProbeRetryDelay <= 0:
		return fmt.Errorf("%w: probe_retry_delay must be positive", ErrInvalidConfig)
	case c.LoginBackoffCap <= 0:
		return fmt.Errorf("%w: login_backoff_cap must be positive", ErrInvalidConfig)
	case c.TicketRefreshMargin < 0:
		return fmt.Errorf("%w: ticket_refresh_margin must not be negative", ErrInvalidConfig)
	case c.PruneInterval <= 0:
		return fmt.Errorf("%w: prune_interval must be positive", ErrInvalidConfig)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Logger builds the process logger writing to w.
func (c Config) Logger(w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	asJSON, err := logging.ParseFormat(c.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return logging.New(w, logging.Options{Level: level, JSON: asJSON}), nil
}

// Credentials returns the login triple.
func (c Config) Credentials() model.Credentials {
	return model.Credentials{
		AuthService: c.AuthService,
		Username:    c.Username,
		Password:    c.Password,
	}
}
