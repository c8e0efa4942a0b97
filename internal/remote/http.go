package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/geoscan/model"
)

const (
	maxIdleConns        = 10
	maxConnsPerHost     = 5
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
	requestTimeout      = 30 * time.Second

	maxErrorBody = 4 << 10
)

// ErrUnexpectedStatus is returned when the gateway answers with a non-200 status.
var ErrUnexpectedStatus = errors.New("unexpected status")

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// HTTPClient talks JSON to a gateway in front of the game service.
//
//	POST {base}/login        {"provider","username","password"} -> {"ok","ticket","ticket_expire_ms"}
//	POST {base}/map_objects  MapRequest as JSON, bearer ticket    -> arbitrary JSON object
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	position  model.ScanPoint
	ticket    string
	expiresAt time.Time
}

// NewHTTPClient creates a gateway client with connection pooling.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxConnsPerHost:     maxConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}

	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   requestTimeout,
			Transport: transport,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginRequest struct {
	Provider string          `json:"provider"`
	Username string          `json:"username"`
	Password string          `json:"password"`
	Position positionPayload `json:"position"`
}

type loginResponse struct {
	OK             bool   `json:"ok"`
	Ticket         string `json:"ticket"`
	TicketExpireMs int64  `json:"ticket_expire_ms"`
}

type positionPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

type mapObjectsRequest struct {
	Position         positionPayload `json:"position"`
	Latitude         uint64          `json:"latitude"`
	Longitude        uint64          `json:"longitude"`
	SinceTimestampMs []int64         `json:"since_timestamp_ms"`
	CellID           []uint64        `json:"cell_id"`
}

// Login implements Client. A rejected login clears any held ticket.
func (c *HTTPClient) Login(ctx context.Context, authService, username, password string) (bool, error) {
	c.mu.Lock()
	pos := c.position
	c.ticket = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()

	var resp loginResponse
	body := loginRequest{
		Provider: authService,
		Username: username,
		Password: password,
		Position: toPayload(pos),
	}
	if err := c.postJSON(ctx, "/login", "", body, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&resp)
	}); err != nil {
		return false, fmt.Errorf("login: %w", err)
	}
	if !resp.OK || resp.Ticket == "" {
		return false, nil
	}

	c.mu.Lock()
	c.ticket = resp.Ticket
	if resp.TicketExpireMs > 0 {
		c.expiresAt = time.UnixMilli(resp.TicketExpireMs)
	}
	c.mu.Unlock()
	return true, nil
}

// SetPosition implements Client.
func (c *HTTPClient) SetPosition(lat, lng, alt float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = model.ScanPoint{Latitude: lat, Longitude: lng, Altitude: alt}
}

// Position returns the last position set on the session.
func (c *HTTPClient) Position() model.ScanPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// TicketExpiry implements Client.
func (c *HTTPClient) TicketExpiry() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticket == "" || c.expiresAt.IsZero() {
		return time.Time{}, false
	}
	return c.expiresAt, true
}

// GetMapObjects implements Client.
func (c *HTTPClient) GetMapObjects(ctx context.Context, req model.MapRequest) (*structpb.Struct, error) {
	c.mu.Lock()
	ticket := c.ticket
	pos := c.position
	c.mu.Unlock()

	body := mapObjectsRequest{
		Position:         toPayload(pos),
		Latitude:         req.LatitudeFixed,
		Longitude:        req.LongitudeFixed,
		SinceTimestampMs: req.SinceTimestampMs,
		CellID:           req.CellIDs,
	}

	var out *structpb.Struct
	if err := c.postJSON(ctx, "/map_objects", ticket, body, func(r io.Reader) error {
		var err error
		out, err = DecodeStruct(r)
		return err
	}); err != nil {
		return nil, fmt.Errorf("get map objects: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path, ticket string, body any, decode func(io.Reader) error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ticket != "" {
		req.Header.Set("Authorization", "Bearer "+ticket)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := decode(resp.Body); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func toPayload(p model.ScanPoint) positionPayload {
	return positionPayload{Latitude: p.Latitude, Longitude: p.Longitude, Altitude: p.Altitude}
}
