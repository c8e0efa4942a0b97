// Package geocode turns a configured location string into a scan origin.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalsfoundry/geoscan/internal/logging"
	"github.com/signalsfoundry/geoscan/model"
)

// DefaultBaseURL is the public Nominatim endpoint.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

const (
	requestTimeout = 15 * time.Second
	userAgent      = "geoscan/1.0"
	maxBody        = 1 << 20
)

// ErrLocationNotFound is returned when a name resolves to no place.
var ErrLocationNotFound = errors.New("location not found")

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Resolver) { r.httpClient = hc }
}

// WithRateLimit overrides the search request rate. Public Nominatim allows
// one request per second.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(res *Resolver) { res.limiter = rate.NewLimiter(r, burst) }
}

// WithLogger sets the resolver's logger.
func WithLogger(log logging.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// Resolver resolves location strings against a Nominatim-compatible search API.
type Resolver struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        logging.Logger
}

// NewResolver returns a Resolver for baseURL, or DefaultBaseURL when empty.
func NewResolver(baseURL string, opts ...Option) *Resolver {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	r := &Resolver{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		log:        logging.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Resolve returns the position named by location. "lat,lng" and
// "lat,lng,alt" literals are parsed without a network call.
func (r *Resolver) Resolve(ctx context.Context, location string) (model.ScanPoint, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return model.ScanPoint{}, fmt.Errorf("%w: empty location", ErrLocationNotFound)
	}
	if p, ok, err := ParseCoordinates(location); ok {
		return p, err
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return model.ScanPoint{}, fmt.Errorf("geocode: rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("q", location)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return model.ScanPoint{}, fmt.Errorf("geocode: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return model.ScanPoint{}, fmt.Errorf("geocode: search %q: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.ScanPoint{}, fmt.Errorf("geocode: search %q: status %d", location, resp.StatusCode)
	}

	var results []searchResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&results); err != nil {
		return model.ScanPoint{}, fmt.Errorf("geocode: decode response: %w", err)
	}
	if len(results) == 0 {
		return model.ScanPoint{}, fmt.Errorf("%w: %q", ErrLocationNotFound, location)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return model.ScanPoint{}, fmt.Errorf("geocode: bad latitude %q: %w", results[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return model.ScanPoint{}, fmt.Errorf("geocode: bad longitude %q: %w", results[0].Lon, err)
	}
	p := model.ScanPoint{Latitude: lat, Longitude: lng}
	if err := checkRange(p, results[0].Lat+","+results[0].Lon); err != nil {
		return model.ScanPoint{}, err
	}
	r.log.Info(ctx, "resolved location",
		logging.String("query", location),
		logging.String("place", results[0].DisplayName),
		logging.String("position", p.String()),
	)
	return p, nil
}

// ParseCoordinates parses a "lat,lng[,alt]" literal. ok is false when s does
// not look like a coordinate literal at all; err reports a literal that is
// out of range.
func ParseCoordinates(s string) (p model.ScanPoint, ok bool, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 && len(parts) != 3 {
		return model.ScanPoint{}, false, nil
	}
	vals := make([]float64, len(parts))
	for i, part := range parts {
		v, perr := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if perr != nil {
			return model.ScanPoint{}, false, nil
		}
		vals[i] = v
	}
	p = model.ScanPoint{Latitude: vals[0], Longitude: vals[1]}
	if len(vals) == 3 {
		p.Altitude = vals[2]
	}
	if err := checkRange(p, s); err != nil {
		return model.ScanPoint{}, true, err
	}
	return p, true, nil
}

func checkRange(p model.ScanPoint, s string) error {
	for _, v := range []float64{p.Latitude, p.Longitude, p.Altitude} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: coordinates %q are not finite", ErrLocationNotFound, s)
		}
	}
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: coordinates %q out of range", ErrLocationNotFound, s)
	}
	return nil
}
