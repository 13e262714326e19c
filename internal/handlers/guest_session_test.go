package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shoplane/api/internal/platform/auth"
)

func TestGuestSessionHandlersCreateSession(t *testing.T) {
	clock := func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	guests, err := auth.NewGuestSessionManager([]byte("test-signing-key"),
		auth.WithGuestClock(clock),
		auth.WithGuestIDGenerator(func() string { return "guest-session-1" }),
	)
	if err != nil {
		t.Fatalf("failed to build session manager: %v", err)
	}

	handler := NewGuestSessionHandlers(guests)
	router := chi.NewRouter()
	router.Route("/guest", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/guest/session", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Token     string `json:"token"`
		SessionID string `json:"sessionId"`
		ExpiresAt string `json:"expiresAt"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected non-empty token")
	}
	if resp.SessionID != "guest-session-1" {
		t.Fatalf("unexpected session id %q", resp.SessionID)
	}
	if resp.ExpiresAt != "2025-07-01T12:00:00Z" {
		t.Fatalf("unexpected expiry %q", resp.ExpiresAt)
	}

	session, err := guests.Verify(resp.Token)
	if err != nil {
		t.Fatalf("minted token failed verification: %v", err)
	}
	if session.ID != "guest-session-1" {
		t.Fatalf("unexpected verified session id %q", session.ID)
	}
}

func TestGuestSessionHandlersUnavailableWithoutManager(t *testing.T) {
	handler := NewGuestSessionHandlers(nil)
	router := chi.NewRouter()
	router.Route("/guest", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/guest/session", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
