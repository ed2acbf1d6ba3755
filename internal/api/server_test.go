package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidemark/mqttbridge/internal/infrastructure/config"
	"github.com/tidemark/mqttbridge/internal/infrastructure/logging"
)

// fakeBridge provides canned status values.
type fakeBridge struct {
	connected bool
	buffered  int
}

func (b *fakeBridge) IsConnected() bool         { return b.connected }
func (b *fakeBridge) ServerURI() string         { return "tcp://broker.example:1883" }
func (b *fakeBridge) ClientID() string          { return "edge-1" }
func (b *fakeBridge) BufferedMessageCount() int { return b.buffered }

func testServer(t *testing.T, bridge Bridge) *Server {
	t.Helper()

	s, err := New(Deps{
		Config:  config.Default().API,
		Logger:  logging.Default(),
		Bridge:  bridge,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{Logger: logging.Default()}); err == nil {
		t.Error("New() without bridge error = nil, want error")
	}
	if _, err := New(Deps{Bridge: &fakeBridge{}}); err == nil {
		t.Error("New() without logger error = nil, want error")
	}
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t, &fakeBridge{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health body = %v, want status ok version test", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestHandleStatus(t *testing.T) {
	s := testServer(t, &fakeBridge{connected: true, buffered: 4})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint status = %d, want 200", rec.Code)
	}

	var body statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding status response: %v", err)
	}
	if body.Connected != "connected" {
		t.Errorf("connection = %q, want connected", body.Connected)
	}
	if body.ServerURI != "tcp://broker.example:1883" || body.ClientID != "edge-1" {
		t.Errorf("identity = %q/%q, want broker URI and client id", body.ServerURI, body.ClientID)
	}
	if body.BufferedMessages != 4 {
		t.Errorf("buffered_messages = %d, want 4", body.BufferedMessages)
	}
}

func TestRequestID_ClientProvidedPreserved(t *testing.T) {
	s := testServer(t, &fakeBridge{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "caller-42")
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "caller-42" {
		t.Errorf("X-Request-ID = %q, want caller-42", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := testServer(t, &fakeBridge{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route status = %d, want 404", rec.Code)
	}

	var body Error
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if body.Code != ErrCodeNotFound || body.Status != http.StatusNotFound {
		t.Errorf("error body = %+v, want code %q status 404", body, ErrCodeNotFound)
	}
}

func TestHealthCheck(t *testing.T) {
	s := testServer(t, &fakeBridge{})

	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start error = nil, want error")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() before Start error = %v, want nil", err)
	}
}
