package repositories

import (
	"context"
	"time"

	domain "github.com/shoplane/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Orders() OrderRepository
	Products() ProductRepository
	Shops() ShopRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns cart persistence. A cart's identity is derived from its
// (owner, shopID) pair; GetOrCreate must be atomic so concurrent first-adds
// converge on a single cart.
type CartRepository interface {
	GetOrCreate(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Get(ctx context.Context, owner domain.OwnerRef, shopID string) (domain.Cart, error)
	ListByOwner(ctx context.Context, owner domain.OwnerRef) ([]domain.Cart, error)
	// ReplaceItems swaps the cart's item set. A non-zero expectedUpdatedAt
	// makes the swap conditional on the cart not having changed since that
	// timestamp; a mismatch surfaces as a conflict.
	ReplaceItems(ctx context.Context, owner domain.OwnerRef, shopID string, items []domain.CartItem, expectedUpdatedAt time.Time) (domain.Cart, error)
	Delete(ctx context.Context, owner domain.OwnerRef, shopID string) error
	// Move re-homes a guest cart under the user owner in one transaction. When
	// the destination cart already exists the guest items are appended to it;
	// either way the guest cart document is removed.
	Move(ctx context.Context, from domain.OwnerRef, to domain.OwnerRef, shopID string) (domain.Cart, error)
	DeleteExpired(ctx context.Context, limit int) (int, error)
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Owner    domain.OwnerRef
	ShopID   string
	Statuses []domain.OrderStatus
	Limit    int
	Offset   int
}

// OrderStatusUpdate carries the fields written together during a transition.
type OrderStatusUpdate struct {
	Status         domain.OrderStatus
	ExpectedStatus domain.OrderStatus
	History        domain.OrderStatusHistoryEntry
	PaymentRef     string
	InternalNotes  *string
}

// OrderRepository persists order aggregates and their append-only history.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order, history domain.OrderStatusHistoryEntry) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByPaymentRef(ctx context.Context, paymentRef string) (domain.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
	// UpdateStatus applies the transition and appends the history entry in one
	// transaction; it fails with a conflict error when the stored status no
	// longer matches ExpectedStatus.
	UpdateStatus(ctx context.Context, orderID string, update OrderStatusUpdate) (domain.Order, error)
	ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error)
	SetPaymentRef(ctx context.Context, orderID string, paymentRef string) error
}

// ProductQuery captures the structural filters pushed down to the store.
// Text matching and price-range refinement happen above the repository.
type ProductQuery struct {
	ShopID     string
	CategoryID string
	IsFeatured *bool
	ActiveOnly bool
}

// ProductRepository reads catalog products.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	ListActive(ctx context.Context, query ProductQuery) ([]domain.Product, error)
}

// ShopRepository reads shop records.
type ShopRepository interface {
	FindByID(ctx context.Context, shopID string) (domain.Shop, error)
	FindByIDs(ctx context.Context, shopIDs []string) (map[string]domain.Shop, error)
}

// CounterRepository allocates monotonically increasing sequence values used
// for human-readable order numbers.
type CounterRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}
