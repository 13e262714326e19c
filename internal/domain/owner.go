package domain

import (
	"errors"
	"fmt"
	"strings"
)

// OwnerKind distinguishes authenticated users from guest sessions.
type OwnerKind string

const (
	// OwnerKindUser marks ownership by an authenticated user id.
	OwnerKindUser OwnerKind = "user"
	// OwnerKindGuest marks ownership by a guest session token id.
	OwnerKindGuest OwnerKind = "guest"
)

// ErrInvalidOwnerRef indicates an owner reference could not be parsed or is incomplete.
var ErrInvalidOwnerRef = errors.New("domain: invalid owner ref")

// OwnerRef is the tagged identity a cart or order belongs to: exactly one of
// an authenticated user id or a guest session id, never both.
type OwnerRef struct {
	Kind OwnerKind
	ID   string
}

// UserOwner builds an owner ref for an authenticated user.
func UserOwner(userID string) OwnerRef {
	return OwnerRef{Kind: OwnerKindUser, ID: strings.TrimSpace(userID)}
}

// GuestOwner builds an owner ref for a guest session.
func GuestOwner(sessionID string) OwnerRef {
	return OwnerRef{Kind: OwnerKindGuest, ID: strings.TrimSpace(sessionID)}
}

// IsZero reports whether the ref carries no identity.
func (o OwnerRef) IsZero() bool { return o.ID == "" }

// IsUser reports whether the ref identifies an authenticated user.
func (o OwnerRef) IsUser() bool { return o.Kind == OwnerKindUser && o.ID != "" }

// IsGuest reports whether the ref identifies a guest session.
func (o OwnerRef) IsGuest() bool { return o.Kind == OwnerKindGuest && o.ID != "" }

// Key returns the canonical string form used for storage keys and logs,
// e.g. "user:u_123" or "guest:9f2…".
func (o OwnerRef) Key() string {
	return fmt.Sprintf("%s:%s", o.Kind, o.ID)
}

// Validate checks the ref names a known kind and a non-empty id.
func (o OwnerRef) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidOwnerRef)
	}
	switch o.Kind {
	case OwnerKindUser, OwnerKindGuest:
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOwnerRef, o.Kind)
	}
}

// ParseOwnerKey parses the canonical "kind:id" form produced by Key.
func ParseOwnerKey(key string) (OwnerRef, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(key), ":")
	if !ok || id == "" {
		return OwnerRef{}, fmt.Errorf("%w: %q", ErrInvalidOwnerRef, key)
	}
	ref := OwnerRef{Kind: OwnerKind(kind), ID: id}
	if err := ref.Validate(); err != nil {
		return OwnerRef{}, err
	}
	return ref, nil
}
