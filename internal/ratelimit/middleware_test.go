package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fixedLimiter struct {
	allow bool
	err   error
}

func (f fixedLimiter) Allow(context.Context, string) (bool, error) { return f.allow, f.err }
func (f fixedLimiter) Close() error                                { return nil }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/implementations", nil)
	req.RemoteAddr = "192.0.2.1:51234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareAllows(t *testing.T) {
	h := Middleware(fixedLimiter{allow: true}, IPKeyFunc, nil)(okHandler())
	rec := doRequest(t, h)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsWithRetryAfter(t *testing.T) {
	h := Middleware(fixedLimiter{allow: false}, IPKeyFunc, nil)(okHandler())
	rec := doRequest(t, h)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header")
	}
}

func TestMiddlewareFailsOpenOnLimiterError(t *testing.T) {
	h := Middleware(fixedLimiter{err: errors.New("down")}, IPKeyFunc, nil)(okHandler())
	rec := doRequest(t, h)
	if rec.Code != http.StatusOK {
		t.Fatalf("limiter errors must fail open, got %d", rec.Code)
	}
}

func TestMiddlewareSkipsEmptyKey(t *testing.T) {
	h := Middleware(fixedLimiter{allow: false}, func(*http.Request) string { return "" }, nil)(okHandler())
	rec := doRequest(t, h)
	if rec.Code != http.StatusOK {
		t.Fatalf("empty key must skip limiting, got %d", rec.Code)
	}
}

func TestMiddlewareNilLimiterPassesThrough(t *testing.T) {
	h := Middleware(nil, IPKeyFunc, nil)(okHandler())
	rec := doRequest(t, h)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4321"
	if got := IPKeyFunc(req); got != "203.0.113.9" {
		t.Fatalf("expected bare IP, got %q", got)
	}
}
