package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. It backs tests and local
// development where no Firestore emulator is running.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Begin implements Store.
func (s *MemoryStore) Begin(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	entry, ok := s.entries[id]
	if !ok || expired(entry, now) {
		entry = Entry{
			Key:         key,
			Fingerprint: fingerprint,
			State:       EntryStateOpen,
			CreatedAt:   now,
			UpdatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}
		s.entries[id] = entry
		return Claim{State: ClaimFresh, Entry: entry}, nil
	}

	if entry.Fingerprint != fingerprint {
		return Claim{}, ErrFingerprintMismatch
	}
	if entry.State == EntryStateDone {
		return Claim{State: ClaimReplay, Entry: entry}, nil
	}
	return Claim{State: ClaimInFlight, Entry: entry}, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	entry, ok := s.entries[id]
	if ok && entry.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		entry = Entry{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	entry.State = EntryStateDone
	entry.StatusCode = resp.Status
	entry.Headers = storableHeaders(resp.Headers)
	entry.Body = nil
	if len(resp.Body) > 0 {
		entry.Body = append([]byte(nil), resp.Body...)
	}
	entry.UpdatedAt = now
	entry.ExpiresAt = now.Add(ttl)
	s.entries[id] = entry
	return nil
}

// Abandon implements Store.
func (s *MemoryStore) Abandon(_ context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, docID(key))
	return nil
}

// PruneExpired implements Store.
func (s *MemoryStore) PruneExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}

	removed := 0
	for id, entry := range s.entries {
		if !expired(entry, now) {
			continue
		}
		delete(s.entries, id)
		removed++
		if removed >= limit {
			break
		}
	}
	return removed, nil
}

func expired(entry Entry, now time.Time) bool {
	return !entry.ExpiresAt.IsZero() && !now.Before(entry.ExpiresAt)
}
