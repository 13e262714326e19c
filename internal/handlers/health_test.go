package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shoplane/api/internal/repositories"
)

type stubSystemService struct {
	healthFunc  func(ctx context.Context) (repositories.HealthReport, error)
	counterFunc func(ctx context.Context, name string) (int64, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (repositories.HealthReport, error) {
	if s.healthFunc == nil {
		return repositories.HealthReport{}, fmt.Errorf("unexpected HealthReport call")
	}
	return s.healthFunc(ctx)
}

func (s *stubSystemService) NextCounterValue(ctx context.Context, name string) (int64, error) {
	if s.counterFunc == nil {
		return 0, fmt.Errorf("unexpected NextCounterValue call")
	}
	return s.counterFunc(ctx, name)
}

func TestHealthzReportsUptime(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	handler := NewHealthHandlers(nil, WithHealthClock(func() time.Time { return current }))
	current = current.Add(90 * time.Second)

	rr := httptest.NewRecorder()
	handler.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected ok status, got %q", resp.Status)
	}
	if resp.Uptime != "1m30s" {
		t.Fatalf("unexpected uptime %q", resp.Uptime)
	}
}

func TestReadyzHealthy(t *testing.T) {
	system := &stubSystemService{
		healthFunc: func(ctx context.Context) (repositories.HealthReport, error) {
			return repositories.HealthReport{
				Status: repositories.HealthStatusOK,
				Checks: map[string]repositories.HealthCheckResult{
					"firestore": {Status: repositories.HealthStatusOK, Latency: 12 * time.Millisecond},
				},
				GeneratedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	handler := NewHealthHandlers(system)

	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != string(repositories.HealthStatusOK) {
		t.Fatalf("unexpected status %q", resp.Status)
	}
	if _, ok := resp.Checks["firestore"]; !ok {
		t.Fatalf("expected firestore check, got %+v", resp.Checks)
	}
}

func TestReadyzDegradedAnswers503(t *testing.T) {
	system := &stubSystemService{
		healthFunc: func(ctx context.Context) (repositories.HealthReport, error) {
			return repositories.HealthReport{
				Status: repositories.HealthStatusDegraded,
				Checks: map[string]repositories.HealthCheckResult{
					"pubsub": {Status: repositories.HealthStatusError, Detail: "publish timeout"},
				},
			}, nil
		},
	}
	handler := NewHealthHandlers(system)

	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestReadyzProbeFailureAnswers503(t *testing.T) {
	system := &stubSystemService{
		healthFunc: func(ctx context.Context) (repositories.HealthReport, error) {
			return repositories.HealthReport{}, errors.New("deadline exceeded")
		},
	}
	handler := NewHealthHandlers(system)

	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestReadyzWithoutSystemService(t *testing.T) {
	handler := NewHealthHandlers(nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
