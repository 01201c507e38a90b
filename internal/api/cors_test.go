package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsServer(origins []string) *Server {
	return &Server{config: Config{CORSAllowedOrigins: origins}}
}

func TestCORSDisabledPassesThrough(t *testing.T) {
	s := corsServer(nil)
	h := s.CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "https://app.harper.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("CORS headers set with no configured origins")
	}
}

func TestCORSAllowedOrigin(t *testing.T) {
	s := corsServer([]string{"https://app.harper.test"})
	h := s.CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "https://app.harper.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.harper.test" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestCORSDisallowedOriginGetsNoHeaders(t *testing.T) {
	s := corsServer([]string{"https://app.harper.test"})
	h := s.CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("CORS headers set for disallowed origin")
	}
}

func TestCORSPreflight(t *testing.T) {
	s := corsServer([]string{"*"})
	called := false
	h := s.CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("OPTIONS", "/v1/teams/tm-1/sync/push", nil)
	req.Header.Set("Origin", "https://app.harper.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if called {
		t.Error("preflight reached the inner handler")
	}
}
