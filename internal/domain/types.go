package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// OffsetPage wraps a page of results for offset-based pagination.
type OffsetPage[T any] struct {
	Items   []T
	Total   int
	Offset  int
	HasMore bool
}

// OrderType enumerates supported fulfilment channels.
type OrderType string

const (
	// OrderTypeDelivery indicates the order is delivered to the customer.
	OrderTypeDelivery OrderType = "delivery"
	// OrderTypePickup indicates the customer collects the order at the shop.
	OrderTypePickup OrderType = "pickup"
)

// PaymentMethod enumerates supported payment instruments.
type PaymentMethod string

const (
	// PaymentMethodCard routes the order through the card payment gateway.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodCash settles the order in cash on handover.
	PaymentMethodCash PaymentMethod = "cash"
)

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	// OrderStatusCreated is the initial state of every order.
	OrderStatusCreated OrderStatus = "CREATED"
	// OrderStatusPendingPayment indicates payment collection has started.
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	// OrderStatusPaid indicates the payment gateway confirmed the charge.
	OrderStatusPaid OrderStatus = "PAID"
	// OrderStatusPreparing indicates the shop is assembling the order.
	OrderStatusPreparing OrderStatus = "PREPARING"
	// OrderStatusReady indicates the order awaits handover or courier pickup.
	OrderStatusReady OrderStatus = "READY"
	// OrderStatusDelivering indicates a courier is en route (delivery orders only).
	OrderStatusDelivering OrderStatus = "DELIVERING"
	// OrderStatusScanned is the terminal success state, recorded at handover.
	OrderStatusScanned OrderStatus = "SCANNED"
	// OrderStatusCancelled is the terminal failure state.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// ActorKind identifies the class of principal acting on an order.
type ActorKind string

const (
	// ActorKindCustomer marks actions performed by the purchasing shopper.
	ActorKindCustomer ActorKind = "customer"
	// ActorKindStaff marks actions performed by shop staff or admins.
	ActorKindStaff ActorKind = "staff"
	// ActorKindSystem marks actions performed by webhooks or background jobs.
	ActorKindSystem ActorKind = "system"
)

// Shop describes a single tenant storefront.
type Shop struct {
	ID                  string
	Name                string
	Slug                string
	Description         string
	ImageURL            string
	DeliveryEnabled     bool
	PickupEnabled       bool
	ReservationEnabled  bool
	DeliveryFee         decimal.Decimal
	MinimumOrder        decimal.Decimal
	CashDiscountPercent decimal.Decimal
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Product is a catalog entry owned by a shop.
type Product struct {
	ID             string
	ShopID         string
	CategoryID     string
	Name           string
	Description    string
	Price          decimal.Decimal
	Stock          int
	IsActive       bool
	IsFeatured     bool
	Tags           []string
	Images         []string
	SortOrder      int
	Variants       []ProductVariant
	Addons         []ProductAddon
	ModifierGroups []ModifierGroup
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProductVariant is a mutually exclusive product variation with an optional surcharge.
type ProductVariant struct {
	ID         string
	Name       string
	ExtraPrice decimal.Decimal
}

// ProductAddon is a legacy flat extra attached to a product.
type ProductAddon struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	IsActive bool
}

// ModifierGroup bundles related options with selection-count bounds.
type ModifierGroup struct {
	ID           string
	Name         string
	MinSelection int
	MaxSelection int
	IsActive     bool
	Options      []ModifierOption
}

// ModifierOption is a selectable entry within a modifier group.
type ModifierOption struct {
	ID              string
	Name            string
	PriceAdjustment decimal.Decimal
	IsDefault       bool
	IsActive        bool
}

// Cart holds a shopper's in-progress selections for one shop.
type Cart struct {
	ID        string
	Owner     OwnerRef
	ShopID    string
	Items     []CartItem
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsEmpty reports whether the cart carries no items.
func (c Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Subtotal sums the line totals of every item in the cart.
func (c Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		sum = sum.Add(item.LineTotal)
	}
	return sum
}

// CartItem is a single line in a cart. Each add produces a new line; notes and
// modifier selections differentiate lines that reference the same product.
type CartItem struct {
	ID          string
	ProductID   string
	ProductName string
	VariantID   string
	VariantName string
	Quantity    int
	Notes       string
	Addons      []CartItemAddon
	Modifiers   []CartItemModifier
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CartItemAddon records one selected legacy addon on a cart line.
type CartItemAddon struct {
	AddonID  string
	Name     string
	Price    decimal.Decimal
	Quantity int
}

// CartItemModifier records one selected modifier option on a cart line.
type CartItemModifier struct {
	GroupID         string
	OptionID        string
	Name            string
	PriceAdjustment decimal.Decimal
	Quantity        int
}

// CartSummary pairs a cart with metadata about its shop for multi-shop views.
type CartSummary struct {
	Cart Cart
	Shop Shop
}

// Customer captures the contact details recorded on an order.
type Customer struct {
	Name  string
	Phone string
	Email string
}

// DeliveryAddress is the destination for delivery orders.
type DeliveryAddress struct {
	Line1      string
	Line2      string
	City       string
	PostalCode string
	Notes      string
}

// Order is the immutable purchase record produced from a cart. Price fields
// are frozen at creation and never recomputed from the live catalog.
type Order struct {
	ID              string
	Number          string
	ShopID          string
	Owner           OwnerRef
	Type            OrderType
	PaymentMethod   PaymentMethod
	Status          OrderStatus
	Subtotal        decimal.Decimal
	DeliveryFee     decimal.Decimal
	DiscountAmount  decimal.Decimal
	Total           decimal.Decimal
	Customer        Customer
	DeliveryAddress *DeliveryAddress
	Notes           string
	InternalNotes   string
	PaymentRef      string
	Items           []OrderItem
	PaidAt          *time.Time
	ReadyAt         *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is a frozen snapshot of a cart line at order-creation time.
type OrderItem struct {
	ID          string
	ProductID   string
	ProductName string
	VariantName string
	Quantity    int
	Notes       string
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	Addons      []OrderItemAddon
	Modifiers   []OrderItemModifier
}

// OrderItemAddon snapshots a selected addon's name and price.
type OrderItemAddon struct {
	Name     string
	Price    decimal.Decimal
	Quantity int
}

// OrderItemModifier snapshots a selected modifier option's name and adjustment.
type OrderItemModifier struct {
	GroupName       string
	Name            string
	PriceAdjustment decimal.Decimal
	Quantity        int
}

// OrderStatusHistoryEntry is one row of the append-only status audit trail.
type OrderStatusHistoryEntry struct {
	ID        string
	OrderID   string
	Status    OrderStatus
	Notes     string
	ActorKind ActorKind
	ActorID   string
	CreatedAt time.Time
}
