package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/shoplane/api/internal/domain"
)

func newOwnerTestHandler(t *testing.T, wantOwner domain.OwnerRef, wantGuest *domain.OwnerRef) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, ok := OwnerFromContext(r.Context())
		if !ok {
			t.Fatalf("expected owner in context")
		}
		if owner != wantOwner {
			t.Fatalf("expected owner %v, got %v", wantOwner, owner)
		}

		guest, ok := GuestRefFromContext(r.Context())
		if wantGuest == nil {
			if ok {
				t.Fatalf("expected no guest ref, got %v", guest)
			}
		} else {
			if !ok {
				t.Fatalf("expected guest ref in context")
			}
			if guest != *wantGuest {
				t.Fatalf("expected guest %v, got %v", *wantGuest, guest)
			}
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func TestResolveOwner_UserToken(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "user-1", Claims: map[string]interface{}{}}}
	resolver := NewOwnerResolver(verifier, newTestGuestManager(t))

	handler := resolver.ResolveOwner()(newOwnerTestHandler(t, domain.UserOwner("user-1"), nil))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestResolveOwner_GuestToken(t *testing.T) {
	manager := newTestGuestManager(t)
	token, session, err := manager.Mint()
	if err != nil {
		t.Fatalf("unexpected mint error: %v", err)
	}

	resolver := NewOwnerResolver(&stubTokenVerifier{}, manager)
	guest := domain.GuestOwner(session.ID)
	handler := resolver.ResolveOwner()(newOwnerTestHandler(t, guest, &guest))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(GuestSessionHeader, token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestResolveOwner_UserWinsOverGuest(t *testing.T) {
	manager := newTestGuestManager(t)
	token, session, err := manager.Mint()
	if err != nil {
		t.Fatalf("unexpected mint error: %v", err)
	}

	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "user-1", Claims: map[string]interface{}{}}}
	resolver := NewOwnerResolver(verifier, manager)

	guest := domain.GuestOwner(session.ID)
	handler := resolver.ResolveOwner()(newOwnerTestHandler(t, domain.UserOwner("user-1"), &guest))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	req.Header.Set(GuestSessionHeader, token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestResolveOwner_InvalidGuestTokenIgnored(t *testing.T) {
	resolver := NewOwnerResolver(&stubTokenVerifier{}, newTestGuestManager(t))

	// A stale or garbled guest token reads as no credential at all: the
	// request continues unowned instead of being rejected outright.
	reached := false
	handler := resolver.ResolveOwner()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		if owner, ok := OwnerFromContext(r.Context()); ok {
			t.Fatalf("expected no owner, got %v", owner)
		}
		if guest, ok := GuestRefFromContext(r.Context()); ok {
			t.Fatalf("expected no guest ref, got %v", guest)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(GuestSessionHeader, "not-a-token")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if !reached || rr.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, code %d reached %v", rr.Code, reached)
	}
}

func TestResolveOwner_InvalidGuestTokenStillRequiresOwner(t *testing.T) {
	resolver := NewOwnerResolver(&stubTokenVerifier{}, newTestGuestManager(t))

	handler := resolver.ResolveOwner()(RequireOwner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute without a valid identity")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(GuestSessionHeader, "not-a-token")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 from the identity requirement, got %d", rr.Code)
	}
}

func TestResolveOwner_InvalidUserTokenRejected(t *testing.T) {
	verifier := &stubTokenVerifier{err: ErrTokenInvalid}
	resolver := NewOwnerResolver(verifier, newTestGuestManager(t))

	handler := resolver.ResolveOwner()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute on invalid bearer token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireOwner_UnownedRequestRejected(t *testing.T) {
	handler := RequireOwner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute without an owner")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireOwner_PassesOwnedRequest(t *testing.T) {
	called := false
	handler := RequireOwner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithOwner(req.Context(), domain.GuestOwner("guest-1")))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent || !called {
		t.Fatalf("expected handler to run, code %d", rr.Code)
	}
}
