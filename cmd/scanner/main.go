package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/geoscan/core"
	"github.com/signalsfoundry/geoscan/internal/config"
	"github.com/signalsfoundry/geoscan/internal/geocode"
	"github.com/signalsfoundry/geoscan/internal/logging"
	"github.com/signalsfoundry/geoscan/internal/observability"
	"github.com/signalsfoundry/geoscan/internal/probe"
	"github.com/signalsfoundry/geoscan/internal/remote"
	"github.com/signalsfoundry/geoscan/internal/scan"
	"github.com/signalsfoundry/geoscan/internal/session"
	"github.com/signalsfoundry/geoscan/kb"
	"github.com/signalsfoundry/geoscan/model"
	"github.com/signalsfoundry/geoscan/timectrl"
)

type flagValues struct {
	configPath  string
	location    string
	radius      float64
	authService string
	username    string
	password    string
	remoteURL   string
	geocodeURL  string
	metricsAddr string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var fv flagValues

	rootCmd := &cobra.Command{
		Use:   "scanner",
		Short: "Geoscan - scans a disc around a location for points of interest",
		Long: `Geoscan tiles a disc around a configured location with hexagonal rings of
probe points and queries the map service at each of them, forever.

Send SIGHUP to re-read the config file and restart the scan at the new location.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScanner(cmd, &fv)
		},
	}
	rootCmd.SetOut(out)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&fv.configPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&fv.location, "location", "", `Location to scan: a place name or "lat,lng[,alt]"`)
	pf.Float64Var(&fv.radius, "radius", config.DefaultRadius, "Scan radius in metres")
	pf.StringVar(&fv.authService, "auth-service", config.DefaultAuthService, "Auth provider used to log in")
	pf.StringVar(&fv.username, "username", "", "Account username")
	pf.StringVar(&fv.password, "password", "", "Account password")
	pf.StringVar(&fv.remoteURL, "remote-url", "", "Base URL of the map service gateway")
	pf.StringVar(&fv.geocodeURL, "geocode-url", "", "Base URL of the geocoding service")
	pf.StringVar(&fv.metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "HTTP address for Prometheus /metrics")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Scan the configured location until interrupted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runScanner(cmd, &fv)
			},
		},
		&cobra.Command{
			Use:   "coverage",
			Short: "Print the probe points for the configured location as JSON",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return printCoverage(cmd, &fv)
			},
		},
	)
	return rootCmd
}

// loadConfig layers explicitly set flags over file and environment values.
func loadConfig(cmd *cobra.Command, fv *flagValues) (config.Config, error) {
	cfg, err := config.Load(fv.configPath)
	if err != nil {
		return config.Config{}, err
	}
	applyFlags(cmd, fv, &cfg)
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, fv *flagValues, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("location", func() { cfg.Location = fv.location })
	set("radius", func() { cfg.Radius = fv.radius })
	set("auth-service", func() { cfg.AuthService = fv.authService })
	set("username", func() { cfg.Username = fv.username })
	set("password", func() { cfg.Password = fv.password })
	set("remote-url", func() { cfg.RemoteURL = fv.remoteURL })
	set("geocode-url", func() { cfg.GeocodeURL = fv.geocodeURL })
	set("metrics-addr", func() { cfg.MetricsAddr = fv.metricsAddr })
}

type coverageOutput struct {
	Origin pointOutput   `json:"origin"`
	Radius float64       `json:"radius_m"`
	Rings  int           `json:"rings"`
	Points []pointOutput `json:"points"`
}

type pointOutput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

func toPointOutput(p model.ScanPoint) pointOutput {
	return pointOutput{Latitude: p.Latitude, Longitude: p.Longitude, Altitude: p.Altitude}
}

func printCoverage(cmd *cobra.Command, fv *flagValues) error {
	cfg, err := loadConfig(cmd, fv)
	if err != nil {
		return err
	}
	if cfg.Location == "" {
		return fmt.Errorf("%w: location is required", config.ErrInvalidConfig)
	}

	origin, err := geocode.NewResolver(cfg.GeocodeURL).Resolve(cmd.Context(), cfg.Location)
	if err != nil {
		return err
	}
	set := core.GenerateCoverage(origin, cfg.Radius)

	out := coverageOutput{
		Origin: toPointOutput(set.Origin),
		Radius: set.Radius,
		Rings:  set.Rings,
		Points: make([]pointOutput, 0, set.Len()),
	}
	for _, p := range set.Points {
		out.Points = append(out.Points, toPointOutput(p))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runScanner(cmd *cobra.Command, fv *flagValues) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd, fv)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := cfg.Logger(os.Stdout)
	if err != nil {
		return err
	}

	tracing, err := observability.StartTracing(ctx, cfg.Tracing, log)
	if err != nil {
		log.Warn(ctx, "tracing disabled after init failure", logging.Err(err))
	}
	defer tracing.Shutdown(context.Background())

	collector, err := observability.NewScanCollector(nil)
	if err != nil {
		return fmt.Errorf("initialise metrics collector: %w", err)
	}
	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	resolver := geocode.NewResolver(cfg.GeocodeURL, geocode.WithLogger(log))
	origin, err := resolver.Resolve(ctx, cfg.Location)
	if err != nil {
		return fmt.Errorf("resolve location %q: %w", cfg.Location, err)
	}

	control := scan.NewControl(origin, cfg.Radius)
	log.Info(ctx, "coverage generated",
		logging.String("origin", origin.String()),
		logging.Float64("radius_m", cfg.Radius),
		logging.Int("points", control.Coverage().Len()),
	)

	rc := remote.NewHTTPClient(cfg.RemoteURL)
	sessions := session.NewManager(rc, log,
		session.WithBackoffCap(cfg.LoginBackoffCap),
		session.WithRefreshMargin(cfg.TicketRefreshMargin),
		session.WithMetrics(collector),
	)
	prober := probe.NewClient(rc, sessions, cfg.Credentials(), log, probe.WithMetrics(collector))

	store := kb.NewStore(collector)
	unsubscribe := store.Subscribe(func(ev kb.Event) {
		if ev.Type == kb.EventPointUpserted {
			log.Debug(ctx, "point of interest",
				logging.String("id", ev.Point.ID),
				logging.String("kind", string(ev.Point.Kind)),
			)
		}
	})
	defer unsubscribe()

	pruner := timectrl.NewTimeController(timectrl.RealClock{}, cfg.PruneInterval)
	pruner.AddListener(func(now time.Time) {
		if n := store.PruneExpired(now); n > 0 {
			log.Debug(ctx, "pruned expired points of interest", logging.Int("count", n))
		}
	})
	prunerDone := pruner.Start(ctx)

	go watchReload(ctx, cmd, fv, resolver, control, log)

	orchestrator := scan.NewOrchestrator(control, prober, store, log,
		scan.WithRetryDelay(cfg.ProbeRetryDelay),
		scan.WithMetrics(collector),
	)
	log.Info(ctx, "starting scan", logging.String("location", cfg.Location))
	err = orchestrator.Run(ctx)

	log.Info(context.Background(), "shutting down scanner")
	<-prunerDone
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchReload re-reads configuration on SIGHUP and moves the scan when the
// location or radius changed.
func watchReload(ctx context.Context, cmd *cobra.Command, fv *flagValues, resolver *geocode.Resolver, control *scan.Control, log logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		cfg, err := loadConfig(cmd, fv)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			log.Error(ctx, "config reload failed, keeping current location", logging.Err(err))
			continue
		}
		if err := applyLocation(ctx, cfg, resolver, control, log); err != nil {
			log.Error(ctx, "location reload failed, keeping current location", logging.Err(err))
		}
	}
}

func applyLocation(ctx context.Context, cfg config.Config, resolver *geocode.Resolver, control *scan.Control, log logging.Logger) error {
	origin, err := resolver.Resolve(ctx, cfg.Location)
	if err != nil {
		return err
	}
	if origin.Surface() == control.Origin() && cfg.Radius == control.Radius() {
		log.Info(ctx, "location unchanged")
		return nil
	}
	set := control.SetLocation(origin, cfg.Radius)
	log.Info(ctx, "location changed, restarting scan",
		logging.String("origin", origin.String()),
		logging.Float64("radius_m", cfg.Radius),
		logging.Int("points", set.Len()),
	)
	return nil
}

func serveMetrics(addr string, collector *observability.ScanCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
