package services

import (
	"context"

	domain "github.com/shoplane/api/internal/domain"
	"github.com/shoplane/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart                    = domain.Cart
	CartItem                = domain.CartItem
	CartSummary             = domain.CartSummary
	Shop                    = domain.Shop
	Product                 = domain.Product
	Order                   = domain.Order
	OrderStatus             = domain.OrderStatus
	OrderStatusHistoryEntry = domain.OrderStatusHistoryEntry
	OwnerRef                = domain.OwnerRef
	ActorKind               = domain.ActorKind
)

// CartService manages cart identity, line mutations, and guest-to-user merging.
type CartService interface {
	GetOrCreateCart(ctx context.Context, owner OwnerRef, shopID string) (Cart, error)
	GetCart(ctx context.Context, owner OwnerRef, shopID string) (Cart, error)
	ListCarts(ctx context.Context, owner OwnerRef) ([]CartSummary, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, CartItem, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, CartItem, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, owner OwnerRef, shopID string) error
	ClearAllCarts(ctx context.Context, owner OwnerRef) (int, error)
	MergeGuestCart(ctx context.Context, guest OwnerRef, user OwnerRef) ([]Cart, error)
	PurgeExpiredCarts(ctx context.Context, limit int) (int, error)
}

// OrderService encapsulates order creation, the status machine, and payment callbacks.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (OrderCreation, error)
	GetOrder(ctx context.Context, orderID string) (Order, []OrderStatusHistoryEntry, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) ([]Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	HandlePaymentEvent(ctx context.Context, intentID string, succeeded bool) (Order, error)
}

// CatalogService is the read path over shops and products, including search.
type CatalogService interface {
	SearchProducts(ctx context.Context, query SearchProductsQuery) (domain.OffsetPage[Product], error)
	SearchSuggestions(ctx context.Context, prefix string, limit int) ([]string, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	GetShop(ctx context.Context, shopID string) (Shop, error)
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (repositories.HealthReport, error)
	NextCounterValue(ctx context.Context, name string) (int64, error)
}

// Command and DTO definitions ------------------------------------------------

type AddCartItemCommand struct {
	Owner     OwnerRef
	ShopID    string
	ProductID string
	VariantID string
	Addons    []domain.SelectedAddon
	Modifiers []domain.SelectedModifier
	Quantity  int
	Notes     string
}

type UpdateCartItemCommand struct {
	Owner    OwnerRef
	ItemID   string
	Quantity *int
	Notes    *string
}

type RemoveCartItemCommand struct {
	Owner  OwnerRef
	ItemID string
}

type CreateOrderCommand struct {
	Owner           OwnerRef
	ShopID          string
	Type            domain.OrderType
	PaymentMethod   domain.PaymentMethod
	Customer        domain.Customer
	DeliveryAddress *domain.DeliveryAddress
	Notes           string
}

// PaymentInstructions tells the client how to finish collecting payment.
type PaymentInstructions struct {
	Provider     string `json:"provider"`
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
}

// OrderCreation pairs a freshly created order with optional payment instructions.
type OrderCreation struct {
	Order   Order
	Payment *PaymentInstructions
}

type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorKind    ActorKind
	ActorID      string
	Notes        string
}

type CancelOrderCommand struct {
	OrderID   string
	ActorKind ActorKind
	ActorID   string
	Reason    string
}

type ListOrdersQuery struct {
	Owner    OwnerRef
	ShopID   string
	Statuses []OrderStatus
	Limit    int
	Offset   int
}

// ProductSort enumerates the supported catalog orderings.
type ProductSort string

const (
	ProductSortRelevance ProductSort = "relevance"
	ProductSortPriceAsc  ProductSort = "price_asc"
	ProductSortPriceDesc ProductSort = "price_desc"
	ProductSortName      ProductSort = "name"
	ProductSortNewest    ProductSort = "newest"
)

type SearchProductsQuery struct {
	Query      string
	ShopID     string
	CategoryID string
	MinPrice   *string
	MaxPrice   *string
	IsFeatured *bool
	SortBy     ProductSort
	Limit      int
	Offset     int
}
