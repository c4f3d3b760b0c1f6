// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/sentinel/internal/config"
)

func TestNewChiMiddleware_DefaultConfig(t *testing.T) {
	m := NewChiMiddleware(nil)

	if m.config == nil {
		t.Fatal("config is nil")
	}
	if len(m.config.CORSAllowedOrigins) != 0 {
		t.Errorf("CORSAllowedOrigins = %v, want none by default", m.config.CORSAllowedOrigins)
	}
	if m.config.RateLimitRequests != 120 || m.config.RateLimitWindow != time.Minute {
		t.Errorf("rate limit = %d/%v, want 120/1m", m.config.RateLimitRequests, m.config.RateLimitWindow)
	}
}

func TestNewChiMiddlewareFromServer(t *testing.T) {
	tests := []struct {
		name         string
		reqs         int
		wantDisabled bool
	}{
		{"limited", 50, false},
		{"zero disables", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewChiMiddlewareFromServer(config.ServerConfig{
				CORSOrigins:     []string{"http://localhost:5173"},
				RateLimitReqs:   tt.reqs,
				RateLimitWindow: 30 * time.Second,
			})

			if got := m.CORSOrigins(); len(got) != 1 || got[0] != "http://localhost:5173" {
				t.Errorf("CORSOrigins() = %v", got)
			}
			if m.config.RateLimitDisabled != tt.wantDisabled {
				t.Errorf("RateLimitDisabled = %v, want %v", m.config.RateLimitDisabled, tt.wantDisabled)
			}
			if m.config.RateLimitWindow != 30*time.Second {
				t.Errorf("RateLimitWindow = %v, want 30s", m.config.RateLimitWindow)
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	router := newTestRouter(&fakeQueue{}, &fakeSyncer{})

	tests := []struct {
		name       string
		origin     string
		wantHeader string
	}{
		{"allowed origin", "http://localhost:5173", "http://localhost:5173"},
		{"foreign origin", "http://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/checkins", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

func TestRateLimit_RejectsOverBudget(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Minute
	h := NewHandler(&fakeQueue{}, &fakeSyncer{}, nil, HandlerConfig{})
	router := NewRouter(h, NewChiMiddleware(cfg)).Setup()

	var codes []int
	for i := 0; i < 3; i++ {
		rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/queue/size", "")
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("first two requests = %v, want 200s", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", codes[2])
	}

	_, env := doRequest(t, router, http.MethodGet, "/api/v1/queue/size", "")
	if env.Error == nil || env.Error.Code != "RATE_LIMITED" {
		t.Errorf("error = %+v, want RATE_LIMITED", env.Error)
	}

	// Health probes sit outside the limited group.
	rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/health/live", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health/live = %d, want 200", rec.Code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	router := newTestRouter(&fakeQueue{}, &fakeSyncer{})

	for i := 0; i < 200; i++ {
		rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/queue/size", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i, rec.Code)
		}
	}
}

func TestRequestID(t *testing.T) {
	router := newTestRouter(&fakeQueue{}, &fakeSyncer{})

	t.Run("generated", func(t *testing.T) {
		rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/sync/status", "")
		if rec.Header().Get("X-Request-Id") == "" {
			t.Error("X-Request-Id header missing")
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
		req.Header.Set("X-Request-Id", "ui-req-7")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Request-Id"); got != "ui-req-7" {
			t.Errorf("X-Request-Id = %q, want ui-req-7", got)
		}
	})
}

func TestAPISecurityHeaders(t *testing.T) {
	router := newTestRouter(&fakeQueue{}, &fakeSyncer{})

	rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/queue/size", "")
	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	router := newTestRouter(&fakeQueue{}, &fakeSyncer{})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"unknown path", http.MethodGet, "/api/v1/nope", http.StatusNotFound, "NOT_FOUND"},
		{"wrong method", http.MethodGet, "/api/v1/checkins", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := doRequest(t, router, tt.method, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want %s", env.Error, tt.wantCode)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(&fakeQueue{}, &fakeSyncer{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("exposition missing default Go collectors")
	}
}

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BADGE-1", "BADGE-1"},
		{"line\nforged", `line\x0aforged`},
		{"tab\there", `tab\x09here`},
		{"del\x7f", `del\x7f`},
	}

	for _, tt := range tests {
		if got := sanitizeLogValue(tt.in); got != tt.want {
			t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeJSON_OversizedBody(t *testing.T) {
	body := `{"serialNumber":"` + strings.Repeat("A", maxRequestBody) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkins", strings.NewReader(body))

	var v CheckinRequest
	err := decodeJSON(req, &v)
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("decodeJSON() error = %v, want size error", err)
	}
}
