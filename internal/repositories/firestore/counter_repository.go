package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/shoplane/api/internal/platform/firestore"
	"github.com/shoplane/api/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	MaxValue     *int64    `firestore:"maxValue,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository backed by Firestore transactions.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
	}, nil
}

// Next atomically increments the named counter and returns the new value.
// Absent counters start at 1.
func (r *CounterRepository) Next(ctx context.Context, name string) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(name)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter name is required")
	}

	var nextValue int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		nextValue, err = r.advance(tx, ref, id)
		return err
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return nextValue, nil
}

// advance performs the read-increment-write inside the transaction, creating
// the counter document on first use.
func (r *CounterRepository) advance(tx *firestore.Transaction, ref *firestore.DocumentRef, id string) (int64, error) {
	now := time.Now().UTC()

	snapshot, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		doc := counterDocument{CurrentValue: 1, UpdatedAt: now}
		if err := tx.Create(ref, doc); err != nil {
			return 0, err
		}
		return doc.CurrentValue, nil
	}
	if err != nil {
		return 0, err
	}

	var doc counterDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return 0, fmt.Errorf("firestore counters decode %s: %w", id, err)
	}

	doc.CurrentValue++
	if doc.MaxValue != nil && doc.CurrentValue > *doc.MaxValue {
		return 0, repositories.NewCounterError(repositories.CounterErrorExhausted,
			fmt.Sprintf("counter %s exceeded max value %d", id, *doc.MaxValue))
	}
	doc.UpdatedAt = now
	if err := tx.Set(ref, doc, firestore.MergeAll); err != nil {
		return 0, err
	}
	return doc.CurrentValue, nil
}
