package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDMiddlewarePropagatesHeader(t *testing.T) {
	srv, _ := newTestServer()
	var seen string
	srv.router.HandleFunc("/rid", func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen != "abc-123" {
		t.Fatalf("expected request id abc-123 in the handler context, got %q", seen)
	}
}

func TestRecoverMiddlewareCatchesPanics(t *testing.T) {
	srv, _ := newTestServer()
	srv.router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after recovering a panic, got %d", rec.Code)
	}
}

func TestNewRequestIDIsNonEmptyAndVaries(t *testing.T) {
	a := newRequestID()
	b := newRequestID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty request ids")
	}
	if a == b {
		t.Fatal("expected distinct request ids across calls")
	}
}
