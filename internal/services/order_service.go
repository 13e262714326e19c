package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shoplane/api/internal/domain"
	"github.com/shoplane/api/internal/payments"
	"github.com/shoplane/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix       = "ord_"
	orderNumberPrefix   = "SL"
	orderNumberCounter  = "orders"
	defaultOrderLimit   = 20
	maxOrderLimit       = 100
	maxOrderNotesLength = 500
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a concurrent transition won the race.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderEmptyCart indicates the cart holds no items to order.
	ErrOrderEmptyCart = errors.New("order: cart is empty")
	// ErrOrderPaymentUnavailable indicates the payment gateway rejected or failed intent creation.
	ErrOrderPaymentUnavailable = errors.New("order: payment unavailable")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusCreated:        {domain.OrderStatusPendingPayment, domain.OrderStatusCancelled},
	domain.OrderStatusPendingPayment: {domain.OrderStatusPaid, domain.OrderStatusCancelled},
	domain.OrderStatusPaid:           {domain.OrderStatusPreparing, domain.OrderStatusCancelled},
	domain.OrderStatusPreparing:      {domain.OrderStatusReady, domain.OrderStatusCancelled},
	domain.OrderStatusReady:          {domain.OrderStatusDelivering, domain.OrderStatusScanned, domain.OrderStatusCancelled},
	domain.OrderStatusDelivering:     {domain.OrderStatusScanned, domain.OrderStatusCancelled},
}

func canTransition(from, to domain.OrderStatus) bool {
	for _, next := range orderStateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func isTerminalStatus(status domain.OrderStatus) bool {
	return status == domain.OrderStatusScanned || status == domain.OrderStatusCancelled
}

func isKnownStatus(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusCreated, domain.OrderStatusPendingPayment, domain.OrderStatusPaid,
		domain.OrderStatusPreparing, domain.OrderStatusReady, domain.OrderStatusDelivering,
		domain.OrderStatusScanned, domain.OrderStatusCancelled:
		return true
	}
	return false
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Shops       repositories.ShopRepository
	Counters    repositories.CounterRepository
	UnitOfWork  repositories.UnitOfWork
	Payments    payments.Provider
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	carts      repositories.CartRepository
	products   repositories.ProductRepository
	shops      repositories.ShopRepository
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	payments   payments.Provider
	currency   string
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Shops == nil {
		return nil, errors.New("order service: shop repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "eur"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		carts:      deps.Carts,
		products:   deps.Products,
		shops:      deps.Shops,
		counters:   deps.Counters,
		unitOfWork: unit,
		payments:   deps.Payments,
		currency:   currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// CreateFromCart turns the owner's cart for the shop into an order. Every line
// is repriced against the current catalog and the resulting names and prices
// are frozen onto the order; later catalog edits never change it.
func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (OrderCreation, error) {
	if err := s.validateCreateCommand(&cmd); err != nil {
		return OrderCreation{}, err
	}

	shop, err := s.shops.FindByID(ctx, cmd.ShopID)
	if err != nil {
		if isRepoNotFound(err) {
			return OrderCreation{}, fmt.Errorf("%w: shop %q", ErrOrderNotFound, cmd.ShopID)
		}
		return OrderCreation{}, s.mapRepositoryError(err)
	}
	if cmd.Type == domain.OrderTypeDelivery && !shop.DeliveryEnabled {
		return OrderCreation{}, fmt.Errorf("%w: shop does not offer delivery", ErrOrderInvalidInput)
	}
	if cmd.Type == domain.OrderTypePickup && !shop.PickupEnabled {
		return OrderCreation{}, fmt.Errorf("%w: shop does not offer pickup", ErrOrderInvalidInput)
	}

	// Everything from the cart read to the cart clear runs in one
	// transaction: the snapshot the order is priced from is the same
	// snapshot the clear commits against, so a line added concurrently
	// either lands on the order or aborts the commit, and a failed clear
	// never leaves a stranded order behind. Transactional reads (cart,
	// then the order-number counter) come before the first write; the
	// catalog lookups during repricing are plain reads.
	var (
		order domain.Order
		now   time.Time
	)
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		cart, err := s.carts.Get(txCtx, cmd.Owner, cmd.ShopID)
		if err != nil {
			if isRepoNotFound(err) {
				return ErrOrderEmptyCart
			}
			return s.mapRepositoryError(err)
		}
		if cart.IsEmpty() {
			return ErrOrderEmptyCart
		}

		items, lines, err := s.repriceCart(txCtx, cart)
		if err != nil {
			return err
		}

		totals := domain.ComputeOrderTotals(lines, shop, cmd.Type, cmd.PaymentMethod)
		if cmd.Type == domain.OrderTypeDelivery && shop.MinimumOrder.IsPositive() && totals.Subtotal.LessThan(shop.MinimumOrder) {
			return fmt.Errorf("%w: subtotal is below the shop minimum of %s", ErrOrderInvalidInput, shop.MinimumOrder.StringFixed(2))
		}

		now = s.now()
		number, err := s.generateOrderNumber(txCtx, now)
		if err != nil {
			return err
		}

		draft := domain.Order{
			ID:             orderIDPrefix + s.newID(),
			Number:         number,
			ShopID:         cmd.ShopID,
			Owner:          cmd.Owner,
			Type:           cmd.Type,
			PaymentMethod:  cmd.PaymentMethod,
			Status:         domain.OrderStatusCreated,
			Subtotal:       totals.Subtotal,
			DeliveryFee:    totals.DeliveryFee,
			DiscountAmount: totals.DiscountAmount,
			Total:          totals.Total,
			Customer:       cmd.Customer,
			Notes:          cmd.Notes,
			Items:          items,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if cmd.Type == domain.OrderTypeDelivery {
			addr := *cmd.DeliveryAddress
			draft.DeliveryAddress = &addr
		}

		history := domain.OrderStatusHistoryEntry{
			ID:        s.newID(),
			OrderID:   draft.ID,
			Status:    domain.OrderStatusCreated,
			ActorKind: domain.ActorKindCustomer,
			ActorID:   cmd.Owner.ID,
			CreatedAt: now,
		}

		saved, err := s.orders.Insert(txCtx, draft, history)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		order = saved
		if _, err := s.carts.ReplaceItems(txCtx, cmd.Owner, cmd.ShopID, []domain.CartItem{}, time.Time{}); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return OrderCreation{}, err
	}

	s.publishEvent(ctx, orderEventCreated, order, now)

	creation := OrderCreation{Order: order}
	if cmd.PaymentMethod == domain.PaymentMethodCard {
		instructions, err := s.beginCardPayment(ctx, &order)
		if err != nil {
			return OrderCreation{}, err
		}
		creation.Order = order
		creation.Payment = instructions
	}

	return creation, nil
}

// beginCardPayment opens a gateway intent for the order and moves it into
// PENDING_PAYMENT.
func (s *orderService) beginCardPayment(ctx context.Context, order *domain.Order) (*PaymentInstructions, error) {
	if s.payments == nil {
		return nil, ErrOrderPaymentUnavailable
	}

	intent, err := s.payments.CreateIntent(ctx, payments.IntentRequest{
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		Amount:         order.Total.Shift(2).IntPart(),
		Currency:       s.currency,
		CustomerEmail:  order.Customer.Email,
		IdempotencyKey: "order-intent-" + order.ID,
	})
	if err != nil {
		s.logger(ctx, "order.payment_intent.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrOrderPaymentUnavailable, err)
	}

	now := s.now()
	updated, err := s.orders.UpdateStatus(ctx, order.ID, repositories.OrderStatusUpdate{
		Status:         domain.OrderStatusPendingPayment,
		ExpectedStatus: domain.OrderStatusCreated,
		PaymentRef:     intent.ID,
		History: domain.OrderStatusHistoryEntry{
			ID:        s.newID(),
			OrderID:   order.ID,
			Status:    domain.OrderStatusPendingPayment,
			Notes:     "payment intent opened",
			ActorKind: domain.ActorKindSystem,
			CreatedAt: now,
		},
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	*order = updated

	s.publishEvent(ctx, orderEventStatusChanged, updated, now)

	return &PaymentInstructions{
		Provider:     "stripe",
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, []OrderStatusHistoryEntry, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, nil, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, nil, s.mapRepositoryError(err)
	}
	history, err := s.orders.ListHistory(ctx, orderID)
	if err != nil {
		return Order{}, nil, s.mapRepositoryError(err)
	}
	return order, history, nil
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) ([]Order, error) {
	if query.Owner.IsZero() && strings.TrimSpace(query.ShopID) == "" {
		return nil, fmt.Errorf("%w: owner or shop filter is required", ErrOrderInvalidInput)
	}
	for _, status := range query.Statuses {
		if !isKnownStatus(status) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultOrderLimit
	}
	if limit > maxOrderLimit {
		limit = maxOrderLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	orders, err := s.orders.List(ctx, repositories.OrderFilter{
		Owner:    query.Owner,
		ShopID:   strings.TrimSpace(query.ShopID),
		Statuses: query.Statuses,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

// TransitionStatus moves the order one step through the lifecycle and records
// the acting principal. The status write and the history append are atomic.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !isKnownStatus(cmd.TargetStatus) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	// A status is never its own successor, so repeating the current status
	// is rejected like any other invalid move. SCANNED and CANCELLED have
	// no successors at all. Gateway webhook retries are the one sanctioned
	// repeat and are absorbed by HandlePaymentEvent, not here.
	if !canTransition(order.Status, cmd.TargetStatus) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, cmd.TargetStatus)
	}
	if cmd.TargetStatus == domain.OrderStatusDelivering && order.Type == domain.OrderTypePickup {
		return Order{}, fmt.Errorf("%w: pickup orders are handed over without delivery", ErrOrderInvalidState)
	}

	now := s.now()
	updated, err := s.orders.UpdateStatus(ctx, orderID, repositories.OrderStatusUpdate{
		Status:         cmd.TargetStatus,
		ExpectedStatus: order.Status,
		History: domain.OrderStatusHistoryEntry{
			ID:        s.newID(),
			OrderID:   orderID,
			Status:    cmd.TargetStatus,
			Notes:     strings.TrimSpace(cmd.Notes),
			ActorKind: cmd.ActorKind,
			ActorID:   strings.TrimSpace(cmd.ActorID),
			CreatedAt: now,
		},
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, orderEventStatusChanged, updated, now)
	return updated, nil
}

// Cancel moves any non-terminal order to CANCELLED.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if isTerminalStatus(order.Status) {
		return Order{}, fmt.Errorf("%w: %s is terminal", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	updated, err := s.orders.UpdateStatus(ctx, orderID, repositories.OrderStatusUpdate{
		Status:         domain.OrderStatusCancelled,
		ExpectedStatus: order.Status,
		History: domain.OrderStatusHistoryEntry{
			ID:        s.newID(),
			OrderID:   orderID,
			Status:    domain.OrderStatusCancelled,
			Notes:     strings.TrimSpace(cmd.Reason),
			ActorKind: cmd.ActorKind,
			ActorID:   strings.TrimSpace(cmd.ActorID),
			CreatedAt: now,
		},
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, orderEventStatusChanged, updated, now)
	return updated, nil
}

// HandlePaymentEvent applies a verified gateway notification. A succeeded
// intent moves the order into PAID; repeated deliveries are idempotent.
func (s *orderService) HandlePaymentEvent(ctx context.Context, intentID string, succeeded bool) (Order, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Order{}, fmt.Errorf("%w: payment intent id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByPaymentRef(ctx, intentID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !succeeded {
		s.logger(ctx, "order.payment.failed", map[string]any{
			"order":  order.ID,
			"intent": intentID,
			"status": string(order.Status),
		})
		return order, nil
	}

	if order.Status == domain.OrderStatusPaid {
		return order, nil
	}
	if order.Status != domain.OrderStatusPendingPayment {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, domain.OrderStatusPaid)
	}

	now := s.now()
	updated, err := s.orders.UpdateStatus(ctx, order.ID, repositories.OrderStatusUpdate{
		Status:         domain.OrderStatusPaid,
		ExpectedStatus: domain.OrderStatusPendingPayment,
		History: domain.OrderStatusHistoryEntry{
			ID:        s.newID(),
			OrderID:   order.ID,
			Status:    domain.OrderStatusPaid,
			Notes:     "payment confirmed by gateway",
			ActorKind: domain.ActorKindSystem,
			CreatedAt: now,
		},
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, orderEventStatusChanged, updated, now)
	return updated, nil
}

func (s *orderService) validateCreateCommand(cmd *CreateOrderCommand) error {
	if err := cmd.Owner.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	cmd.ShopID = strings.TrimSpace(cmd.ShopID)
	if cmd.ShopID == "" {
		return fmt.Errorf("%w: shop_id is required", ErrOrderInvalidInput)
	}
	if cmd.Type != domain.OrderTypeDelivery && cmd.Type != domain.OrderTypePickup {
		return fmt.Errorf("%w: type must be delivery or pickup", ErrOrderInvalidInput)
	}
	if cmd.PaymentMethod != domain.PaymentMethodCard && cmd.PaymentMethod != domain.PaymentMethodCash {
		return fmt.Errorf("%w: payment_method must be card or cash", ErrOrderInvalidInput)
	}

	cmd.Customer.Name = strings.TrimSpace(cmd.Customer.Name)
	cmd.Customer.Phone = strings.TrimSpace(cmd.Customer.Phone)
	cmd.Customer.Email = strings.TrimSpace(cmd.Customer.Email)
	if cmd.Customer.Name == "" {
		return fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if cmd.Customer.Phone == "" {
		return fmt.Errorf("%w: customer phone is required", ErrOrderInvalidInput)
	}

	if cmd.Type == domain.OrderTypeDelivery {
		if cmd.DeliveryAddress == nil || strings.TrimSpace(cmd.DeliveryAddress.Line1) == "" {
			return fmt.Errorf("%w: delivery address is required for delivery orders", ErrOrderInvalidInput)
		}
	}

	notes, err := sanitizeNotes(cmd.Notes)
	if err != nil {
		return fmt.Errorf("%w: notes must be %d characters or fewer", ErrOrderInvalidInput, maxOrderNotesLength)
	}
	cmd.Notes = notes
	return nil
}

// repriceCart prices every cart line against the live catalog and returns the
// frozen order items next to the priced lines used for totals.
func (s *orderService) repriceCart(ctx context.Context, cart domain.Cart) ([]domain.OrderItem, []domain.PricedLine, error) {
	items := make([]domain.OrderItem, 0, len(cart.Items))
	lines := make([]domain.PricedLine, 0, len(cart.Items))

	for _, item := range cart.Items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if isRepoNotFound(err) {
				return nil, nil, fmt.Errorf("%w: product %q is no longer available", ErrOrderInvalidInput, item.ProductID)
			}
			return nil, nil, s.mapRepositoryError(err)
		}
		if !product.IsActive {
			return nil, nil, fmt.Errorf("%w: product %q is no longer available", ErrOrderInvalidInput, item.ProductID)
		}

		addons := make([]domain.SelectedAddon, 0, len(item.Addons))
		for _, addon := range item.Addons {
			addons = append(addons, domain.SelectedAddon{AddonID: addon.AddonID, Quantity: addon.Quantity})
		}
		modifiers := make([]domain.SelectedModifier, 0, len(item.Modifiers))
		for _, modifier := range item.Modifiers {
			modifiers = append(modifiers, domain.SelectedModifier{
				GroupID:  modifier.GroupID,
				OptionID: modifier.OptionID,
				Quantity: modifier.Quantity,
			})
		}

		priced, err := domain.PriceLine(product, item.VariantID, addons, modifiers, item.Quantity)
		if err != nil {
			return nil, nil, translatePricingError(err)
		}
		lines = append(lines, priced)

		orderItem := domain.OrderItem{
			ID:          s.newID(),
			ProductID:   product.ID,
			ProductName: priced.ProductName,
			VariantName: priced.VariantName,
			Quantity:    item.Quantity,
			Notes:       item.Notes,
			UnitPrice:   priced.UnitPrice,
			LineTotal:   priced.LineTotal,
		}
		for _, addon := range priced.Addons {
			orderItem.Addons = append(orderItem.Addons, domain.OrderItemAddon{
				Name:     addon.Name,
				Price:    addon.Price,
				Quantity: addon.Quantity,
			})
		}
		for _, modifier := range priced.Modifiers {
			groupName := modifier.GroupID
			if group, ok := findGroupName(product, modifier.GroupID); ok {
				groupName = group
			}
			orderItem.Modifiers = append(orderItem.Modifiers, domain.OrderItemModifier{
				GroupName:       groupName,
				Name:            modifier.Name,
				PriceAdjustment: modifier.PriceAdjustment,
				Quantity:        modifier.Quantity,
			})
		}
		items = append(items, orderItem)
	}

	return items, lines, nil
}

func findGroupName(product domain.Product, groupID string) (string, bool) {
	for _, group := range product.ModifierGroups {
		if group.ID == groupID {
			return group.Name, true
		}
	}
	return "", false
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d-%06d", orderNumberPrefix, now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event string, order domain.Order, occurredAt time.Time) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, OrderEventMessage{
		Event:       event,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		ShopID:      order.ShopID,
		OwnerKey:    order.Owner.Key(),
		Status:      order.Status,
		Total:       order.Total.StringFixed(2),
		OccurredAt:  occurredAt.Format(time.RFC3339),
	}); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event,
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// OrderEventPublisher publishes order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// OrderEventMessage is the payload emitted when an order is created or changes
// status.
type OrderEventMessage struct {
	Event       string             `json:"event"`
	OrderID     string             `json:"orderId"`
	OrderNumber string             `json:"orderNumber"`
	ShopID      string             `json:"shopId"`
	OwnerKey    string             `json:"ownerKey"`
	Status      domain.OrderStatus `json:"status"`
	Total       string             `json:"total"`
	OccurredAt  string             `json:"occurredAt"`
}
