package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func okPing(context.Context) error { return nil }

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("kv", NewPingChecker("kv", okPing))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", response.Version)
	}
	if len(response.Checks) != 1 {
		t.Errorf("expected 1 check, got %d", len(response.Checks))
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("kv", NewPingChecker("kv", func(context.Context) error {
		return errors.New("redis: connection refused")
	}))
	handler.RegisterChecker("other", NewPingChecker("other", okPing))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", response.Status)
	}
	if response.Checks["kv"].Message != "redis: connection refused" {
		t.Errorf("unexpected kv check: %+v", response.Checks["kv"])
	}
}

func TestHealthHandler_CheckTimeout(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.timeout = 20 * time.Millisecond
	handler.RegisterChecker("slow", NewPingChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 for timed out check, got %d", w.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	LivenessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %s", w.Body.String())
	}
}

type staticBacklog struct {
	stats domain.OutboxStats
	err   error
}

func (s staticBacklog) Stats() (domain.OutboxStats, error) { return s.stats, s.err }

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name     string
		checker  Checker
		wantCode int
		wantBody string
	}{
		{
			name:     "healthy",
			checker:  NewPingChecker("kv", okPing),
			wantCode: http.StatusOK,
			wantBody: "ready",
		},
		{
			name:     "degraded is still ready",
			checker:  NewBacklogChecker(staticBacklog{stats: domain.OutboxStats{PendingCount: 50}}, 10, 0),
			wantCode: http.StatusOK,
			wantBody: "ready",
		},
		{
			name: "unhealthy",
			checker: NewPingChecker("kv", func(context.Context) error {
				return errors.New("not ready")
			}),
			wantCode: http.StatusServiceUnavailable,
			wantBody: "not ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler("v1.0.0")
			handler.RegisterChecker("c", tt.checker)

			w := httptest.NewRecorder()
			handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestBacklogChecker(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		source staticBacklog
		want   Status
	}{
		{name: "empty", source: staticBacklog{}, want: StatusHealthy},
		{name: "too many pending", source: staticBacklog{stats: domain.OutboxStats{PendingCount: 11, OldestPendingAt: now}}, want: StatusDegraded},
		{name: "stale", source: staticBacklog{stats: domain.OutboxStats{PendingCount: 1, OldestPendingAt: now.Add(-time.Hour)}}, want: StatusDegraded},
		{name: "stats error", source: staticBacklog{err: errors.New("db down")}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewBacklogChecker(tt.source, 10, 5*time.Minute)
			checker.now = func() time.Time { return now }

			if got := checker.Check(context.Background()); got.Status != tt.want {
				t.Fatalf("expected %s, got %s (%s)", tt.want, got.Status, got.Message)
			}
		})
	}
}
