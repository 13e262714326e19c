package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/shoplane/api/internal/domain"
)

// GuestSessionHeader carries the guest session token on storefront requests.
const GuestSessionHeader = "X-Session-Id"

type ownerContextKey struct{}

type guestContextKey struct{}

// WithOwner stores the resolved owner reference on the context.
func WithOwner(ctx context.Context, owner domain.OwnerRef) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, owner)
}

// OwnerFromContext retrieves the owner reference resolved by the middleware.
func OwnerFromContext(ctx context.Context) (domain.OwnerRef, bool) {
	owner, ok := ctx.Value(ownerContextKey{}).(domain.OwnerRef)
	if !ok || owner.IsZero() {
		return domain.OwnerRef{}, false
	}
	return owner, true
}

// WithGuestRef stores the verified guest session reference on the context.
func WithGuestRef(ctx context.Context, guest domain.OwnerRef) context.Context {
	return context.WithValue(ctx, guestContextKey{}, guest)
}

// GuestRefFromContext retrieves the guest session reference, when one was
// presented. It is populated even when an authenticated user owns the
// request, so sign-in flows can merge the guest's carts.
func GuestRefFromContext(ctx context.Context) (domain.OwnerRef, bool) {
	guest, ok := ctx.Value(guestContextKey{}).(domain.OwnerRef)
	if !ok || !guest.IsGuest() {
		return domain.OwnerRef{}, false
	}
	return guest, true
}

// OwnerResolver turns request credentials into an owner reference. A verified
// Firebase bearer token yields a user owner; a guest session token yields a
// guest owner. When both are presented the user wins and the guest session is
// kept alongside as a merge candidate.
type OwnerResolver struct {
	verifier TokenVerifier
	guests   *GuestSessionManager
}

// NewOwnerResolver constructs a resolver from the given verifiers. Either may
// be nil, disabling that credential kind.
func NewOwnerResolver(verifier TokenVerifier, guests *GuestSessionManager) *OwnerResolver {
	return &OwnerResolver{verifier: verifier, guests: guests}
}

// ResolveOwner inspects both credential channels and stores whatever identity
// the request carries. Requests with no credentials pass through unowned;
// combine with RequireOwner on routes that need an identity.
func (r *OwnerResolver) ResolveOwner() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()

			if tokenStr, ok := extractBearerToken(req.Header.Get("Authorization")); ok {
				if r == nil || r.verifier == nil {
					respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
					return
				}
				token, err := r.verifier.VerifyIDToken(ctx, tokenStr)
				if err != nil {
					respondVerificationError(w, err)
					return
				}
				identity := &Identity{
					UID:   token.UID,
					Email: claimAsString(token.Claims, defaultEmailClaim),
					Roles: rolesFromClaims(token.Claims, defaultRoleClaim),
				}
				if len(identity.Roles) == 0 {
					identity.Roles = []string{defaultFallbackRole}
				}
				ctx = WithIdentity(ctx, identity)
				ctx = WithOwner(ctx, domain.UserOwner(token.UID))
			}

			// An invalid or expired guest token is treated as absent rather
			// than rejected: the browser may hold a long-dead session cookie
			// and the request should fall through to RequireOwner (or to an
			// anonymous read) instead of failing outright.
			if guestToken := strings.TrimSpace(req.Header.Get(GuestSessionHeader)); guestToken != "" && r != nil && r.guests != nil {
				if session, err := r.guests.Verify(guestToken); err == nil {
					guest := domain.GuestOwner(session.ID)
					ctx = WithGuestRef(ctx, guest)
					if _, owned := OwnerFromContext(ctx); !owned {
						ctx = WithOwner(ctx, guest)
					}
				}
			}

			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

// RequireOwner rejects requests that resolved no identity at all.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := OwnerFromContext(r.Context()); !ok {
			respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "a user token or guest session is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
