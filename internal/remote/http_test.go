package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/geoscan/model"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", WithHTTPClient(srv.Client()))
}

func TestHTTPClientLoginStoresTicket(t *testing.T) {
	expire := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode login body: %v", err)
		}
		if req.Provider != "ptc" || req.Username != "ash" || req.Password != "pikachu" {
			t.Errorf("login body = %+v", req)
		}
		if req.Position.Latitude != 1.5 || req.Position.Longitude != 2.5 {
			t.Errorf("login position = %+v, want 1.5/2.5", req.Position)
		}
		_ = json.NewEncoder(w).Encode(loginResponse{OK: true, Ticket: "t-1", TicketExpireMs: expire.UnixMilli()})
	})

	if _, ok := c.TicketExpiry(); ok {
		t.Fatalf("fresh client reports a ticket")
	}
	c.SetPosition(1.5, 2.5, 0)

	ok, err := c.Login(context.Background(), "ptc", "ash", "pikachu")
	if err != nil || !ok {
		t.Fatalf("Login() = %v, %v; want true, nil", ok, err)
	}
	got, ok := c.TicketExpiry()
	if !ok || !got.Equal(expire) {
		t.Fatalf("TicketExpiry() = %v, %v; want %v, true", got, ok, expire)
	}
}

func TestHTTPClientRejectedLogin(t *testing.T) {
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(loginResponse{OK: false})
	})

	ok, err := c.Login(context.Background(), "ptc", "ash", "wrong")
	if err != nil || ok {
		t.Fatalf("Login() = %v, %v; want false, nil", ok, err)
	}
	if _, held := c.TicketExpiry(); held {
		t.Fatalf("rejected login left a ticket behind")
	}
}

func TestHTTPClientGetMapObjects(t *testing.T) {
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			_ = json.NewEncoder(w).Encode(loginResponse{OK: true, Ticket: "t-2", TicketExpireMs: time.Now().Add(time.Hour).UnixMilli()})
		case "/map_objects":
			if got := r.Header.Get("Authorization"); got != "Bearer t-2" {
				t.Errorf("Authorization = %q", got)
			}
			var req mapObjectsRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode map body: %v", err)
			}
			if req.Latitude != 42 || len(req.CellID) != 2 || len(req.SinceTimestampMs) != 2 {
				t.Errorf("map body = %+v", req)
			}
			_, _ = w.Write([]byte(`{"responses":{"GET_MAP_OBJECTS":{"status":1,"map_cells":[]}}}`))
		default:
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()
	if _, err := c.Login(ctx, "ptc", "ash", "pikachu"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	resp, err := c.GetMapObjects(ctx, model.MapRequest{
		LatitudeFixed:    42,
		CellIDs:          []uint64{1, 2},
		SinceTimestampMs: []int64{0, 0},
	})
	if err != nil {
		t.Fatalf("GetMapObjects: %v", err)
	}
	status := resp.GetFields()["responses"].GetStructValue().GetFields()["GET_MAP_OBJECTS"].GetStructValue().GetFields()["status"].GetNumberValue()
	if status != 1 {
		t.Fatalf("status = %v, want 1", status)
	}
}

func TestHTTPClientStatusError(t *testing.T) {
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	})

	_, err := c.GetMapObjects(context.Background(), model.MapRequest{})
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("GetMapObjects() error = %v, want ErrUnexpectedStatus", err)
	}
}

func TestHTTPClientMalformedResponse(t *testing.T) {
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1,2,3]`))
	})

	if _, err := c.GetMapObjects(context.Background(), model.MapRequest{}); err == nil {
		t.Fatalf("expected error decoding a non-object payload")
	}
}

func TestHTTPClientCarriesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	var got string
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("traceparent")
		_, _ = w.Write([]byte(`{}`))
	})
	if _, err := c.GetMapObjects(ctx, model.MapRequest{}); err != nil {
		t.Fatalf("GetMapObjects: %v", err)
	}
	if want := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"; got != want {
		t.Fatalf("traceparent = %q, want %q", got, want)
	}
}

func TestHTTPClientKeepsWideIDsFromGateway(t *testing.T) {
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"wild_pokemons":[{"encounter_id":12345678901234567001},{"encounter_id":12345678901234567002}]}`))
	})
	resp, err := c.GetMapObjects(context.Background(), model.MapRequest{})
	if err != nil {
		t.Fatalf("GetMapObjects: %v", err)
	}
	list := resp.GetFields()["wild_pokemons"].GetListValue().GetValues()
	a := list[0].GetStructValue().GetFields()["encounter_id"].GetStringValue()
	b := list[1].GetStructValue().GetFields()["encounter_id"].GetStringValue()
	if a != "12345678901234567001" || b != "12345678901234567002" {
		t.Fatalf("encounter ids = %q, %q", a, b)
	}
}
