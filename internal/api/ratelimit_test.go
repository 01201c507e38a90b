package api

import (
	"net/http"
	"testing"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 3; i++ {
		if !rl.Allow("k", 3) {
			t.Fatalf("request %d denied within limit", i+1)
		}
	}
	if rl.Allow("k", 3) {
		t.Error("request over limit allowed")
	}

	// Separate keys have separate budgets.
	if !rl.Allow("other", 3) {
		t.Error("unrelated key denied")
	}
}

func TestClassifyEndpoint(t *testing.T) {
	cases := map[string]string{
		"/v1/teams/tm-1/sync/push":          "push",
		"/v1/teams/tm-1/sync/pull":          "pull",
		"/v1/teams/tm-1/sync/stream":        "stream",
		"/v1/teams/tm-1/storage/avatars/u1": "storage",
		"/v1/teams/tm-1/sync/status":        "other",
		"/healthz":                          "other",
	}
	for path, want := range cases {
		if got := classifyEndpoint(path); got != want {
			t.Errorf("classifyEndpoint(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r, _ := http.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:4242"
	if got := clientIP(r); got != "10.0.0.1" {
		t.Errorf("clientIP = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.9" {
		t.Errorf("clientIP with XFF = %q", got)
	}
}
