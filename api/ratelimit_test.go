package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRateLimitHandlerFunc_AllowsWithinLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimitHandlerFunc(NewIPRateLimiter(ctx, 60, 5), "search", okHandler)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/x/search", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()
		handler(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestRateLimitHandlerFunc_BlocksExcessRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimitHandlerFunc(NewIPRateLimiter(ctx, 1, 2), "search", okHandler)

	// Exhaust burst
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/x/search", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		rec := httptest.NewRecorder()
		handler(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/x/search", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After header, got %q", rec.Header().Get("Retry-After"))
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "too many requests" {
		t.Fatalf("unexpected error body %v", body)
	}

	// Another client keeps its own budget.
	other := httptest.NewRequest(http.MethodPost, "/api/sessions/x/search", nil)
	other.RemoteAddr = "10.0.0.2:12345"
	rec = httptest.NewRecorder()
	handler(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other client to pass, got %d", rec.Code)
	}

	// Preflight is never limited.
	preflight := httptest.NewRequest(http.MethodOptions, "/api/sessions/x/search", nil)
	preflight.RemoteAddr = "10.0.0.1:12345"
	rec = httptest.NewRecorder()
	handler(rec, preflight)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected preflight to pass, got %d", rec.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "9.9.9.9:1", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": " 5.6.7.8 "}, "9.9.9.9:1", "5.6.7.8"},
		{"remote v4", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"remote v6", nil, "[::1]:1234", "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEvictIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewIPRateLimiter(ctx, 10, 1)
	rl.getLimiter("1.1.1.1")

	rl.evictIdle(time.Now().Add(limiterIdleTTL / 2))
	if len(rl.limiters) != 1 {
		t.Fatal("recently seen entry must survive")
	}
	rl.evictIdle(time.Now().Add(2 * limiterIdleTTL))
	if len(rl.limiters) != 0 {
		t.Fatal("idle entry must be evicted")
	}
}
