package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/fleetrelay/internal/clock"
	"github.com/example/fleetrelay/internal/registry"
)

type fakeUpgrader struct {
	called bool
}

func (f *fakeUpgrader) Upgrade(w http.ResponseWriter, r *http.Request) {
	f.called = true
	w.WriteHeader(http.StatusOK)
}

func newTestServer() (*Server, *fakeUpgrader) {
	reg := registry.New(clock.NewFake(time.Now()), false)
	up := &fakeUpgrader{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(reg, up, logger, time.Now()), up
}

func TestHandleStatusReportsDriverCount(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "running" {
		t.Fatalf("expected status=running, got %+v", body)
	}
	if body["drivers"] != float64(0) {
		t.Fatalf("expected drivers=0 for an empty registry, got %+v", body)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleWSDelegatesToUpgrader(t *testing.T) {
	srv, up := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if !up.called {
		t.Fatal("expected the upgrader to be invoked for /ws")
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "# HELP ") {
		t.Fatalf("expected Prometheus exposition text, got %q", rec.Body.String())
	}
}
