package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultGuestIssuer = "shoplane-api"
	defaultGuestTTL    = 30 * 24 * time.Hour
)

var (
	// ErrGuestTokenInvalid signals that the guest session token failed verification.
	ErrGuestTokenInvalid = errors.New("auth: guest session token invalid")
	// ErrGuestTokenExpired signals that the guest session token has expired.
	ErrGuestTokenExpired = errors.New("auth: guest session token expired")
)

// GuestSession describes a minted or verified anonymous shopping session.
type GuestSession struct {
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// GuestSessionManager mints and verifies signed guest session tokens. Guests
// carry no account; the session id in the token is the owner identity their
// carts are keyed by until they sign in and the carts are merged.
type GuestSessionManager struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration

	now   func() time.Time
	newID func() string
}

// GuestOption customises GuestSessionManager instances.
type GuestOption func(*GuestSessionManager)

// WithGuestTTL overrides the session lifetime.
func WithGuestTTL(d time.Duration) GuestOption {
	return func(m *GuestSessionManager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithGuestIssuer overrides the issuer claim stamped on minted tokens.
func WithGuestIssuer(issuer string) GuestOption {
	return func(m *GuestSessionManager) {
		issuer = strings.TrimSpace(issuer)
		if issuer != "" {
			m.issuer = issuer
		}
	}
}

// WithGuestClock injects a custom clock, primarily for tests.
func WithGuestClock(now func() time.Time) GuestOption {
	return func(m *GuestSessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithGuestIDGenerator overrides session id generation, primarily for tests.
func WithGuestIDGenerator(gen func() string) GuestOption {
	return func(m *GuestSessionManager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// NewGuestSessionManager constructs a manager signing tokens with the given key.
func NewGuestSessionManager(signingKey []byte, opts ...GuestOption) (*GuestSessionManager, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("auth: guest signing key is required")
	}

	manager := &GuestSessionManager{
		signingKey: signingKey,
		issuer:     defaultGuestIssuer,
		ttl:        defaultGuestTTL,
		now:        time.Now,
		newID:      uuid.NewString,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}

	return manager, nil
}

// Mint issues a fresh guest session token signed with HS256.
func (m *GuestSessionManager) Mint() (string, GuestSession, error) {
	if m == nil || len(m.signingKey) == 0 {
		return "", GuestSession{}, errors.New("auth: guest session manager not initialised")
	}

	now := m.now().UTC()
	session := GuestSession{
		ID:        m.newID(),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	claims := jwt.RegisteredClaims{
		ID:        session.ID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", GuestSession{}, fmt.Errorf("sign guest session token: %w", err)
	}

	return signed, session, nil
}

// Verify parses and validates a guest session token, returning the session it names.
func (m *GuestSessionManager) Verify(tokenStr string) (GuestSession, error) {
	if m == nil || len(m.signingKey) == 0 {
		return GuestSession{}, errors.New("auth: guest session manager not initialised")
	}

	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return GuestSession{}, fmt.Errorf("%w: empty token", ErrGuestTokenInvalid)
	}

	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithIssuer(m.issuer),
	)

	_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return m.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return GuestSession{}, fmt.Errorf("%w: %v", ErrGuestTokenExpired, err)
		}
		return GuestSession{}, fmt.Errorf("%w: %v", ErrGuestTokenInvalid, err)
	}

	if claims.ID == "" {
		return GuestSession{}, fmt.Errorf("%w: missing session id", ErrGuestTokenInvalid)
	}

	session := GuestSession{ID: claims.ID}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}

	return session, nil
}
