package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func TestRateLimiterRefills(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(ctx, 2)
	rl.now = func() time.Time { return now }
	h := rl.Limit(ok)

	codes := func() int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if codes() != 200 || codes() != 200 {
		t.Fatal("burst rejected")
	}
	if got := codes(); got != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", got)
	}
	now = now.Add(30 * time.Second)
	if got := codes(); got != 200 {
		t.Fatalf("after refill = %d", got)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://console.example.com"})(ok)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tools", nil)
	req.Header.Set("Origin", "https://console.example.com")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://console.example.com" {
		t.Fatalf("preflight = %d %v", rec.Code, rec.Header())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("foreign origin allowed")
	}
}
