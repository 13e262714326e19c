package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection  = "idempotency_keys"
	defaultMaxAttempts = 5
	defaultPruneLimit  = 100
)

// FirestoreOption customises the FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding the entries.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// WithMaxAttempts configures the transaction retry attempts.
func WithMaxAttempts(attempts int) FirestoreOption {
	return func(store *FirestoreStore) {
		if attempts > 0 {
			store.maxAttempts = attempts
		}
	}
}

// FirestoreStore implements Store on Google Cloud Firestore. Claims are made
// inside transactions so two concurrent requests with the same key cannot
// both win.
type FirestoreStore struct {
	client      *firestore.Client
	collection  string
	maxAttempts int
}

// NewFirestoreStore constructs a Firestore-backed store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		client:      client,
		collection:  defaultCollection,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Begin implements Store.
func (s *FirestoreStore) Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.docRef(key)

	var claim Claim
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			doc := newOpenDocument(key, fingerprint, now, ttl)
			if err := tx.Set(ref, doc); err != nil {
				return err
			}
			claim = Claim{State: ClaimFresh, Entry: doc.toEntry()}
			return nil
		}

		var doc entryDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if doc.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}

		// A lapsed entry is claimed anew; the key has aged out of its
		// replay window.
		if !doc.ExpiresAt.IsZero() && !now.Before(doc.ExpiresAt) {
			doc = newOpenDocument(key, fingerprint, now, ttl)
			if err := tx.Set(ref, doc); err != nil {
				return err
			}
			claim = Claim{State: ClaimFresh, Entry: doc.toEntry()}
			return nil
		}

		if doc.State == string(EntryStateDone) {
			claim = Claim{State: ClaimReplay, Entry: doc.toEntry()}
			return nil
		}
		claim = Claim{State: ClaimInFlight, Entry: doc.toEntry()}
		return nil
	}, firestore.MaxAttempts(s.attempts()))

	return claim, err
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.docRef(key)

	headers := storableHeaders(resp.Headers)
	var body []byte
	if len(resp.Body) > 0 {
		body = append([]byte(nil), resp.Body...)
	}

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		var doc entryDocument
		switch {
		case err == nil:
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
			if doc.CreatedAt.IsZero() {
				doc.CreatedAt = now
			}
		case status.Code(err) == codes.NotFound:
			doc = entryDocument{Key: key, Fingerprint: fingerprint, CreatedAt: now}
		default:
			return err
		}

		doc.State = string(EntryStateDone)
		doc.StatusCode = resp.Status
		doc.Headers = headers
		doc.Body = body
		doc.UpdatedAt = now
		doc.ExpiresAt = now.Add(ttl)
		return tx.Set(ref, doc)
	}, firestore.MaxAttempts(s.attempts()))
}

// Abandon implements Store.
func (s *FirestoreStore) Abandon(ctx context.Context, key, _ string) error {
	_, err := s.docRef(key).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// PruneExpired implements Store.
func (s *FirestoreStore) PruneExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	if limit <= 0 {
		limit = defaultPruneLimit
	}

	query := s.client.Collection(s.collection).Where("expiresAt", "<=", now).Limit(limit)
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	batch := s.client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (s *FirestoreStore) docRef(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(docID(key))
}

func (s *FirestoreStore) attempts() int {
	if s.maxAttempts > 0 {
		return s.maxAttempts
	}
	return 1
}

type entryDocument struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	State       string              `firestore:"state"`
	StatusCode  int                 `firestore:"statusCode"`
	Headers     map[string][]string `firestore:"headers"`
	Body        []byte              `firestore:"body"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func newOpenDocument(key, fingerprint string, now time.Time, ttl time.Duration) entryDocument {
	return entryDocument{
		Key:         key,
		Fingerprint: fingerprint,
		State:       string(EntryStateOpen),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func (d entryDocument) toEntry() Entry {
	return Entry{
		Key:         d.Key,
		Fingerprint: d.Fingerprint,
		State:       EntryState(d.State),
		StatusCode:  d.StatusCode,
		Headers:     d.Headers,
		Body:        d.Body,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}
