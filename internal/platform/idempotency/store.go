// Package idempotency guards mutating storefront endpoints against client
// retries. A request carrying an Idempotency-Key claims the key on first
// arrival; the stored response is replayed verbatim to any retry with the
// same key and payload, and a retry with a different payload is rejected.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long completed entries are kept before a key may be reused.
const DefaultTTL = 24 * time.Hour

// EntryState tracks whether the guarded request has finished.
type EntryState string

const (
	// EntryStateOpen marks a key claimed by an in-flight request.
	EntryStateOpen EntryState = "open"
	// EntryStateDone marks a key whose response has been captured for replay.
	EntryStateDone EntryState = "done"
)

// ClaimState is the verdict for an incoming request's key.
type ClaimState int

const (
	// ClaimFresh: the key was unclaimed, the request may proceed.
	ClaimFresh ClaimState = iota
	// ClaimReplay: a finished response exists and should be replayed.
	ClaimReplay
	// ClaimInFlight: another request holds the key right now.
	ClaimInFlight
)

// Claim is the outcome of claiming a key, with the stored entry when present.
type Claim struct {
	State ClaimState
	Entry Entry
}

// Entry is the persisted record behind one idempotency key.
type Entry struct {
	Key         string
	Fingerprint string
	State       EntryState
	StatusCode  int
	Headers     map[string][]string
	Body        []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
}

// Response is the captured HTTP response stored for future replays.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists key claims and their captured responses.
type Store interface {
	// Begin claims the key for the given request fingerprint.
	Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error)
	// Complete stores the response so retries can replay it.
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	// Abandon drops the claim so the client may retry after a failure.
	Abandon(ctx context.Context, key, fingerprint string) error
	// PruneExpired removes entries past their TTL, up to limit.
	PruneExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused with a different
// method, path, owner or payload than the request that claimed it.
var ErrFingerprintMismatch = errors.New("idempotency: key reused with a different request")

func docID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// storableHeaders copies the response headers worth replaying, dropping
// hop-by-hop and derived ones.
func storableHeaders(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}

	kept := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if skipHeader(canonical) {
			continue
		}
		copied := make([]string, len(values))
		copy(copied, values)
		kept[canonical] = copied
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func skipHeader(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "date", "connection", "keep-alive", "proxy-authenticate",
		"proxy-authorization", "te", "trailers", "transfer-encoding", "upgrade":
		return true
	}
	return false
}

func headersFromEntry(values map[string][]string) http.Header {
	header := make(http.Header, len(values))
	for name, vals := range values {
		copied := make([]string, len(vals))
		copy(copied, vals)
		header[name] = copied
	}
	return header
}
