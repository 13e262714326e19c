package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shoplane/api/internal/platform/auth"
	"github.com/shoplane/api/internal/platform/httpx"
)

// GuestSessionHandlers mints anonymous browsing sessions. The returned token
// goes into the X-Session-Id header on subsequent cart and order requests.
type GuestSessionHandlers struct {
	guests *auth.GuestSessionManager
}

// NewGuestSessionHandlers constructs handlers over the given session manager.
func NewGuestSessionHandlers(guests *auth.GuestSessionManager) *GuestSessionHandlers {
	return &GuestSessionHandlers{guests: guests}
}

// Routes wires the guest session endpoints onto the provided router.
func (h *GuestSessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/session", h.createSession)
}

func (h *GuestSessionHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.guests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("SERVICE_UNAVAILABLE", "guest sessions are unavailable", http.StatusServiceUnavailable))
		return
	}

	token, session, err := h.guests.Mint()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("INTERNAL", "failed to create guest session", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"token":     token,
		"sessionId": session.ID,
		"expiresAt": formatTime(session.ExpiresAt),
	})
}
