package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/shoplane/api/internal/domain"
	"github.com/shoplane/api/internal/payments"
	"github.com/shoplane/api/internal/repositories"
)

type stubOrderRepo struct {
	insertFn       func(context.Context, domain.Order, domain.OrderStatusHistoryEntry) (domain.Order, error)
	findFn         func(context.Context, string) (domain.Order, error)
	findByRefFn    func(context.Context, string) (domain.Order, error)
	listFn         func(context.Context, repositories.OrderFilter) ([]domain.Order, error)
	updateStatusFn func(context.Context, string, repositories.OrderStatusUpdate) (domain.Order, error)
	historyFn      func(context.Context, string) ([]domain.OrderStatusHistoryEntry, error)
	setRefFn       func(context.Context, string, string) error
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order, history domain.OrderStatusHistoryEntry) (domain.Order, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, order, history)
	}
	return order, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, repoNotFound()
}

func (s *stubOrderRepo) FindByPaymentRef(ctx context.Context, paymentRef string) (domain.Order, error) {
	if s.findByRefFn != nil {
		return s.findByRefFn(ctx, paymentRef)
	}
	return domain.Order{}, repoNotFound()
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderFilter) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, orderID, update)
	}
	return domain.Order{ID: orderID, Status: update.Status}, nil
}

func (s *stubOrderRepo) ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, orderID)
	}
	return nil, nil
}

func (s *stubOrderRepo) SetPaymentRef(ctx context.Context, orderID string, paymentRef string) error {
	if s.setRefFn != nil {
		return s.setRefFn(ctx, orderID, paymentRef)
	}
	return nil
}

type stubCounterRepo struct {
	nextFn func(context.Context, string) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, name string) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, name)
	}
	return 1, nil
}

type capturePublisher struct {
	messages []OrderEventMessage
}

func (c *capturePublisher) PublishOrderEvent(_ context.Context, message OrderEventMessage) (string, error) {
	c.messages = append(c.messages, message)
	return fmt.Sprintf("msg-%d", len(c.messages)), nil
}

type stubPaymentsProvider struct {
	createFn func(context.Context, payments.IntentRequest) (payments.Intent, error)
}

func (s *stubPaymentsProvider) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return payments.Intent{ID: "pi_stub", ClientSecret: "cs_stub", Status: payments.StatusPending}, nil
}

func (s *stubPaymentsProvider) LookupIntent(context.Context, string) (payments.Intent, error) {
	return payments.Intent{}, errors.New("not implemented")
}

func (s *stubPaymentsProvider) ParseWebhook([]byte, string) (payments.WebhookEvent, error) {
	return payments.WebhookEvent{}, errors.New("not implemented")
}

type testOrderEnv struct {
	orders   *stubOrderRepo
	carts    *stubCartRepo
	products *stubProductRepo
	shops    *stubShopRepo
	counters *stubCounterRepo
	provider *stubPaymentsProvider
	events   *capturePublisher
	tx       repositories.UnitOfWork
}

func newTestOrderService(t *testing.T, env testOrderEnv) OrderService {
	t.Helper()
	if env.orders == nil {
		env.orders = &stubOrderRepo{}
	}
	if env.carts == nil {
		env.carts = &stubCartRepo{}
	}
	if env.products == nil {
		env.products = &stubProductRepo{}
	}
	if env.shops == nil {
		env.shops = &stubShopRepo{}
	}
	if env.counters == nil {
		env.counters = &stubCounterRepo{}
	}
	if env.events == nil {
		env.events = &capturePublisher{}
	}

	ids := 0
	deps := OrderServiceDeps{
		Orders:   env.orders,
		Carts:    env.carts,
		Products: env.products,
		Shops:    env.shops,
		Counters: env.counters,
		Events:   env.events,
		Clock:    func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	}
	if env.provider != nil {
		deps.Payments = env.provider
	}
	if env.tx != nil {
		deps.UnitOfWork = env.tx
	}

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func deliveryShop(t *testing.T) domain.Shop {
	t.Helper()
	return domain.Shop{
		ID:                  "shop-1",
		Name:                "Corner Deli",
		DeliveryEnabled:     true,
		PickupEnabled:       true,
		DeliveryFee:         d(t, "5.00"),
		CashDiscountPercent: d(t, "10"),
	}
}

func cartWithSandwiches(t *testing.T, owner domain.OwnerRef) domain.Cart {
	t.Helper()
	return domain.Cart{
		Owner:  owner,
		ShopID: "shop-1",
		Items: []domain.CartItem{
			{ID: "line-1", ProductID: "prod-sandwich", Quantity: 2, UnitPrice: d(t, "12.00"), LineTotal: d(t, "24.00")},
		},
	}
}

func sandwichProduct(t *testing.T) domain.Product {
	t.Helper()
	return domain.Product{
		ID:       "prod-sandwich",
		ShopID:   "shop-1",
		Name:     "Pastrami Sandwich",
		Price:    d(t, "12.00"),
		IsActive: true,
	}
}

func TestOrderServiceCreateFromCartDeliveryCard(t *testing.T) {
	ctx := context.Background()
	owner := domain.UserOwner("user-1")

	var inserted domain.Order
	var insertedHistory domain.OrderStatusHistoryEntry
	var clearedItems []domain.CartItem
	cleared := false
	var statusUpdate repositories.OrderStatusUpdate

	env := testOrderEnv{
		orders: &stubOrderRepo{
			insertFn: func(_ context.Context, order domain.Order, history domain.OrderStatusHistoryEntry) (domain.Order, error) {
				inserted = order
				insertedHistory = history
				return order, nil
			},
			updateStatusFn: func(_ context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
				statusUpdate = update
				order := inserted
				order.ID = orderID
				order.Status = update.Status
				order.PaymentRef = update.PaymentRef
				return order, nil
			},
		},
		carts: &stubCartRepo{
			getFn: func(_ context.Context, o domain.OwnerRef, _ string) (domain.Cart, error) {
				return cartWithSandwiches(t, o), nil
			},
			replaceItemsFn: func(_ context.Context, o domain.OwnerRef, shopID string, items []domain.CartItem, _ time.Time) (domain.Cart, error) {
				cleared = true
				clearedItems = items
				return domain.Cart{Owner: o, ShopID: shopID, Items: items}, nil
			},
		},
		products: &stubProductRepo{
			findFn: func(context.Context, string) (domain.Product, error) { return sandwichProduct(t), nil },
		},
		shops: &stubShopRepo{
			findFn: func(context.Context, string) (domain.Shop, error) { return deliveryShop(t), nil },
		},
		counters: &stubCounterRepo{
			nextFn: func(_ context.Context, name string) (int64, error) {
				if name != "orders" {
					t.Fatalf("unexpected counter %q", name)
				}
				return 42, nil
			},
		},
		provider: &stubPaymentsProvider{
			createFn: func(_ context.Context, req payments.IntentRequest) (payments.Intent, error) {
				if req.Amount != 2900 {
					t.Fatalf("intent amount = %d, want 2900", req.Amount)
				}
				return payments.Intent{ID: "pi_123", ClientSecret: "cs_123", Status: payments.StatusPending}, nil
			},
		},
		events: &capturePublisher{},
	}
	svc := newTestOrderService(t, env)

	creation, err := svc.CreateFromCart(ctx, CreateOrderCommand{
		Owner:           owner,
		ShopID:          "shop-1",
		Type:            domain.OrderTypeDelivery,
		PaymentMethod:   domain.PaymentMethodCard,
		Customer:        domain.Customer{Name: "Ada", Phone: "+3550000000"},
		DeliveryAddress: &domain.DeliveryAddress{Line1: "1 Main St", City: "Tirana"},
	})
	if err != nil {
		t.Fatalf("CreateFromCart: %v", err)
	}

	if got := inserted.Subtotal.StringFixed(2); got != "24.00" {
		t.Fatalf("subtotal = %s, want 24.00", got)
	}
	if got := inserted.DeliveryFee.StringFixed(2); got != "5.00" {
		t.Fatalf("delivery fee = %s, want 5.00", got)
	}
	if !inserted.DiscountAmount.IsZero() {
		t.Fatalf("discount = %s, want 0", inserted.DiscountAmount)
	}
	if got := inserted.Total.StringFixed(2); got != "29.00" {
		t.Fatalf("total = %s, want 29.00", got)
	}
	if inserted.Number != "SL-2025-000042" {
		t.Fatalf("order number = %q", inserted.Number)
	}
	if inserted.Status != domain.OrderStatusCreated {
		t.Fatalf("inserted status = %s, want CREATED", inserted.Status)
	}
	if insertedHistory.Status != domain.OrderStatusCreated || insertedHistory.ActorKind != domain.ActorKindCustomer {
		t.Fatalf("initial history = %+v", insertedHistory)
	}

	if !cleared || len(clearedItems) != 0 {
		t.Fatalf("cart should have been emptied, cleared=%v items=%d", cleared, len(clearedItems))
	}

	if creation.Payment == nil || creation.Payment.ClientSecret != "cs_123" {
		t.Fatalf("payment instructions = %+v", creation.Payment)
	}
	if creation.Order.Status != domain.OrderStatusPendingPayment {
		t.Fatalf("order status = %s, want PENDING_PAYMENT", creation.Order.Status)
	}
	if statusUpdate.PaymentRef != "pi_123" || statusUpdate.ExpectedStatus != domain.OrderStatusCreated {
		t.Fatalf("status update = %+v", statusUpdate)
	}

	if len(env.events.messages) != 2 {
		t.Fatalf("expected created + status events, got %d", len(env.events.messages))
	}
	if env.events.messages[0].Event != "order.created" || env.events.messages[1].Event != "order.status.changed" {
		t.Fatalf("event order = %q, %q", env.events.messages[0].Event, env.events.messages[1].Event)
	}
}

func TestOrderServiceCreateFromCartPickupCashDiscount(t *testing.T) {
	owner := domain.UserOwner("user-1")
	var inserted domain.Order

	env := testOrderEnv{
		orders: &stubOrderRepo{
			insertFn: func(_ context.Context, order domain.Order, _ domain.OrderStatusHistoryEntry) (domain.Order, error) {
				inserted = order
				return order, nil
			},
		},
		carts: &stubCartRepo{
			getFn: func(_ context.Context, o domain.OwnerRef, _ string) (domain.Cart, error) {
				return cartWithSandwiches(t, o), nil
			},
		},
		products: &stubProductRepo{
			findFn: func(context.Context, string) (domain.Product, error) { return sandwichProduct(t), nil },
		},
		shops: &stubShopRepo{
			findFn: func(context.Context, string) (domain.Shop, error) { return deliveryShop(t), nil },
		},
	}
	svc := newTestOrderService(t, env)

	creation, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{
		Owner:         owner,
		ShopID:        "shop-1",
		Type:          domain.OrderTypePickup,
		PaymentMethod: domain.PaymentMethodCash,
		Customer:      domain.Customer{Name: "Ada", Phone: "+3550000000"},
	})
	if err != nil {
		t.Fatalf("CreateFromCart: %v", err)
	}

	if !inserted.DeliveryFee.IsZero() {
		t.Fatalf("pickup order must not carry a delivery fee, got %s", inserted.DeliveryFee)
	}
	if got := inserted.DiscountAmount.StringFixed(2); got != "2.40" {
		t.Fatalf("discount = %s, want 2.40", got)
	}
	if got := inserted.Total.StringFixed(2); got != "21.60" {
		t.Fatalf("total = %s, want 21.60", got)
	}
	if creation.Payment != nil {
		t.Fatalf("cash orders need no payment instructions, got %+v", creation.Payment)
	}
	if creation.Order.Status != domain.OrderStatusCreated {
		t.Fatalf("order status = %s, want CREATED", creation.Order.Status)
	}
}

func TestOrderServiceCreateFromCartEmptyCart(t *testing.T) {
	env := testOrderEnv{
		carts: &stubCartRepo{
			getFn: func(_ context.Context, o domain.OwnerRef, shopID string) (domain.Cart, error) {
				return domain.Cart{Owner: o, ShopID: shopID}, nil
			},
		},
		shops: &stubShopRepo{
			findFn: func(context.Context, string) (domain.Shop, error) { return deliveryShop(t), nil },
		},
	}
	svc := newTestOrderService(t, env)

	_, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{
		Owner:         domain.UserOwner("user-1"),
		ShopID:        "shop-1",
		Type:          domain.OrderTypePickup,
		PaymentMethod: domain.PaymentMethodCash,
		Customer:      domain.Customer{Name: "Ada", Phone: "+3550000000"},
	})
	if !errors.Is(err, ErrOrderEmptyCart) {
		t.Fatalf("expected ErrOrderEmptyCart, got %v", err)
	}
}

func TestOrderServiceCreateFromCartRepricesFromCatalog(t *testing.T) {
	owner := domain.UserOwner("user-1")
	var inserted domain.Order

	product := sandwichProduct(t)
	product.Price = d(t, "13.00")

	env := testOrderEnv{
		orders: &stubOrderRepo{
			insertFn: func(_ context.Context, order domain.Order, _ domain.OrderStatusHistoryEntry) (domain.Order, error) {
				inserted = order
				return order, nil
			},
		},
		carts: &stubCartRepo{
			getFn: func(_ context.Context, o domain.OwnerRef, _ string) (domain.Cart, error) {
				// Stale cart prices must not survive into the order.
				return cartWithSandwiches(t, o), nil
			},
		},
		products: &stubProductRepo{
			findFn: func(context.Context, string) (domain.Product, error) { return product, nil },
		},
		shops: &stubShopRepo{
			findFn: func(context.Context, string) (domain.Shop, error) { return deliveryShop(t), nil },
		},
	}
	svc := newTestOrderService(t, env)

	if _, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{
		Owner:         owner,
		ShopID:        "shop-1",
		Type:          domain.OrderTypePickup,
		PaymentMethod: domain.PaymentMethodCard,
		Customer:      domain.Customer{Name: "Ada", Phone: "+3550000000"},
	}); err != nil {
		t.Fatalf("CreateFromCart: %v", err)
	}

	if len(inserted.Items) != 1 {
		t.Fatalf("expected 1 order item, got %d", len(inserted.Items))
	}
	if got := inserted.Items[0].UnitPrice.StringFixed(2); got != "13.00" {
		t.Fatalf("unit price = %s, want repriced 13.00", got)
	}
	if got := inserted.Subtotal.StringFixed(2); got != "26.00" {
		t.Fatalf("subtotal = %s, want 26.00", got)
	}
}

type txScopeKey struct{}

// trackingUnitOfWork marks the context handed to fn so the stubs can verify
// which repository calls run inside the transactional scope.
type trackingUnitOfWork struct {
	began    int
	finished int
	failed   int
}

func (u *trackingUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	u.began++
	err := fn(context.WithValue(ctx, txScopeKey{}, true))
	if err != nil {
		u.failed++
		return err
	}
	u.finished++
	return nil
}

func inTxScope(ctx context.Context) bool {
	v, _ := ctx.Value(txScopeKey{}).(bool)
	return v
}

func TestOrderServiceCreateFromCartIsOneUnitOfWork(t *testing.T) {
	owner := domain.UserOwner("user-1")
	uow := &trackingUnitOfWork{}

	var cartReadInTx, counterInTx, insertInTx, clearInTx bool
	inserted := false

	env := testOrderEnv{
		tx: uow,
		orders: &stubOrderRepo{
			insertFn: func(ctx context.Context, order domain.Order, _ domain.OrderStatusHistoryEntry) (domain.Order, error) {
				insertInTx = inTxScope(ctx)
				inserted = true
				return order, nil
			},
		},
		carts: &stubCartRepo{
			getFn: func(ctx context.Context, o domain.OwnerRef, _ string) (domain.Cart, error) {
				cartReadInTx = inTxScope(ctx)
				return cartWithSandwiches(t, o), nil
			},
			replaceItemsFn: func(ctx context.Context, o domain.OwnerRef, shopID string, items []domain.CartItem, _ time.Time) (domain.Cart, error) {
				clearInTx = inTxScope(ctx)
				return domain.Cart{Owner: o, ShopID: shopID, Items: items}, nil
			},
		},
		products: &stubProductRepo{
			findFn: func(context.Context, string) (domain.Product, error) { return sandwichProduct(t), nil },
		},
		shops: &stubShopRepo{
			findFn: func(context.Context, string) (domain.Shop, error) { return deliveryShop(t), nil },
		},
		counters: &stubCounterRepo{
			nextFn: func(ctx context.Context, _ string) (int64, error) {
				counterInTx = inTxScope(ctx)
				return 7, nil
			},
		},
	}
	svc := newTestOrderService(t, env)

	if _, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{
		Owner:         owner,
		ShopID:        "shop-1",
		Type:          domain.OrderTypePickup,
		PaymentMethod: domain.PaymentMethodCash,
		Customer:      domain.Customer{Name: "Ada", Phone: "+3550000000"},
	}); err != nil {
		t.Fatalf("CreateFromCart: %v", err)
	}

	if uow.began != 1 || uow.finished != 1 {
		t.Fatalf("unit of work began=%d finished=%d, want 1/1", uow.began, uow.finished)
	}
	if !cartReadInTx || !counterInTx || !insertInTx || !clearInTx {
		t.Fatalf("expected cart read, counter, insert and clear inside the transaction; got %v/%v/%v/%v",
			cartReadInTx, counterInTx, insertInTx, clearInTx)
	}
	if !inserted {
		t.Fatal("order was never inserted")
	}
}

func TestOrderServiceCreateFromCartFailedClearAbortsOrder(t *testing.T) {
	owner := domain.UserOwner("user-1")
	uow := &trackingUnitOfWork{}

	env := testOrderEnv{
		tx: uow,
		orders: &stubOrderRepo{
			insertFn: func(_ context.Context, order domain.Order, _ domain.OrderStatusHistoryEntry) (domain.Order, error) {
				return order, nil
			},
		},
		carts: &stubCartRepo{
			getFn: func(_ context.Context, o domain.OwnerRef, _ string) (domain.Cart, error) {
				return cartWithSandwiches(t, o), nil
			},
			replaceItemsFn: func(context.Context, domain.OwnerRef, string, []domain.CartItem, time.Time) (domain.Cart, error) {
				return domain.Cart{}, stubRepoError{unavailable: true}
			},
		},
		products: &stubProductRepo{
			findFn: func(context.Context, string) (domain.Product, error) { return sandwichProduct(t), nil },
		},
		shops: &stubShopRepo{
			findFn: func(context.Context, string) (domain.Shop, error) { return deliveryShop(t), nil },
		},
		events: &capturePublisher{},
	}
	svc := newTestOrderService(t, env)

	_, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{
		Owner:         owner,
		ShopID:        "shop-1",
		Type:          domain.OrderTypePickup,
		PaymentMethod: domain.PaymentMethodCash,
		Customer:      domain.Customer{Name: "Ada", Phone: "+3550000000"},
	})
	if err == nil {
		t.Fatal("expected error when the cart clear fails")
	}

	// The insert and the failed clear share one transaction, so the order
	// write aborts with it instead of surviving the error.
	if uow.failed != 1 || uow.finished != 0 {
		t.Fatalf("unit of work failed=%d finished=%d, want the whole unit aborted", uow.failed, uow.finished)
	}
	if len(env.events.messages) != 0 {
		t.Fatalf("no events expected for an aborted order, got %d", len(env.events.messages))
	}
}

func TestOrderServiceTransitionMatrix(t *testing.T) {
	cases := []struct {
		from    domain.OrderStatus
		to      domain.OrderStatus
		orderTy domain.OrderType
		allowed bool
	}{
		{domain.OrderStatusCreated, domain.OrderStatusPendingPayment, domain.OrderTypeDelivery, true},
		{domain.OrderStatusCreated, domain.OrderStatusPaid, domain.OrderTypeDelivery, false},
		{domain.OrderStatusPendingPayment, domain.OrderStatusPaid, domain.OrderTypeDelivery, true},
		{domain.OrderStatusPaid, domain.OrderStatusPreparing, domain.OrderTypeDelivery, true},
		{domain.OrderStatusPaid, domain.OrderStatusReady, domain.OrderTypeDelivery, false},
		{domain.OrderStatusPreparing, domain.OrderStatusReady, domain.OrderTypeDelivery, true},
		{domain.OrderStatusReady, domain.OrderStatusDelivering, domain.OrderTypeDelivery, true},
		{domain.OrderStatusReady, domain.OrderStatusDelivering, domain.OrderTypePickup, false},
		{domain.OrderStatusReady, domain.OrderStatusScanned, domain.OrderTypePickup, true},
		{domain.OrderStatusDelivering, domain.OrderStatusScanned, domain.OrderTypeDelivery, true},
		{domain.OrderStatusScanned, domain.OrderStatusCancelled, domain.OrderTypeDelivery, false},
		{domain.OrderStatusCancelled, domain.OrderStatusPreparing, domain.OrderTypeDelivery, false},
		{domain.OrderStatusPreparing, domain.OrderStatusCancelled, domain.OrderTypeDelivery, true},
		// Repeating the current status is not a transition, terminal states
		// least of all.
		{domain.OrderStatusScanned, domain.OrderStatusScanned, domain.OrderTypeDelivery, false},
		{domain.OrderStatusCancelled, domain.OrderStatusCancelled, domain.OrderTypeDelivery, false},
		{domain.OrderStatusPreparing, domain.OrderStatusPreparing, domain.OrderTypeDelivery, false},
	}

	for _, tc := range cases {
		name := fmt.Sprintf("%s->%s/%s", tc.from, tc.to, tc.orderTy)
		env := testOrderEnv{
			orders: &stubOrderRepo{
				findFn: func(_ context.Context, orderID string) (domain.Order, error) {
					return domain.Order{ID: orderID, Status: tc.from, Type: tc.orderTy}, nil
				},
			},
		}
		svc := newTestOrderService(t, env)

		_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
			OrderID:      "ord-1",
			TargetStatus: tc.to,
			ActorKind:    domain.ActorKindStaff,
			ActorID:      "staff-1",
		})
		if tc.allowed && err != nil {
			t.Fatalf("%s: expected success, got %v", name, err)
		}
		if !tc.allowed && !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("%s: expected ErrOrderInvalidState, got %v", name, err)
		}
	}
}

func TestOrderServiceTransitionRecordsActor(t *testing.T) {
	var update repositories.OrderStatusUpdate
	env := testOrderEnv{
		orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, Status: domain.OrderStatusPaid, Type: domain.OrderTypeDelivery}, nil
			},
			updateStatusFn: func(_ context.Context, orderID string, u repositories.OrderStatusUpdate) (domain.Order, error) {
				update = u
				return domain.Order{ID: orderID, Status: u.Status}, nil
			},
		},
	}
	svc := newTestOrderService(t, env)

	if _, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord-1",
		TargetStatus: domain.OrderStatusPreparing,
		ActorKind:    domain.ActorKindStaff,
		ActorID:      "staff-7",
		Notes:        "started on the grill",
	}); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}

	if update.ExpectedStatus != domain.OrderStatusPaid {
		t.Fatalf("expected status guard = %s", update.ExpectedStatus)
	}
	if update.History.ActorKind != domain.ActorKindStaff || update.History.ActorID != "staff-7" {
		t.Fatalf("history actor = %s/%s", update.History.ActorKind, update.History.ActorID)
	}
	if update.History.Notes != "started on the grill" {
		t.Fatalf("history notes = %q", update.History.Notes)
	}
}

func TestOrderServiceCancel(t *testing.T) {
	env := testOrderEnv{
		orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, Status: domain.OrderStatusScanned}, nil
			},
		},
	}
	svc := newTestOrderService(t, env)

	_, err := svc.Cancel(context.Background(), CancelOrderCommand{
		OrderID:   "ord-1",
		ActorKind: domain.ActorKindStaff,
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState for terminal order, got %v", err)
	}

	// Cancelling an already cancelled order is rejected too, not absorbed.
	env = testOrderEnv{
		orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, Status: domain.OrderStatusCancelled}, nil
			},
		},
	}
	svc = newTestOrderService(t, env)
	if _, err := svc.Cancel(context.Background(), CancelOrderCommand{
		OrderID:   "ord-1",
		ActorKind: domain.ActorKindCustomer,
	}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState for repeated cancel, got %v", err)
	}

	env = testOrderEnv{
		orders: &stubOrderRepo{
			findFn: func(_ context.Context, orderID string) (domain.Order, error) {
				return domain.Order{ID: orderID, Status: domain.OrderStatusPreparing}, nil
			},
		},
	}
	svc = newTestOrderService(t, env)

	order, err := svc.Cancel(context.Background(), CancelOrderCommand{
		OrderID:   "ord-1",
		ActorKind: domain.ActorKindCustomer,
		Reason:    "changed my mind",
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", order.Status)
	}
}

func TestOrderServiceHandlePaymentEvent(t *testing.T) {
	env := testOrderEnv{
		orders: &stubOrderRepo{
			findByRefFn: func(_ context.Context, ref string) (domain.Order, error) {
				return domain.Order{ID: "ord-1", Status: domain.OrderStatusPendingPayment, PaymentRef: ref}, nil
			},
		},
	}
	svc := newTestOrderService(t, env)

	order, err := svc.HandlePaymentEvent(context.Background(), "pi_123", true)
	if err != nil {
		t.Fatalf("HandlePaymentEvent: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("status = %s, want PAID", order.Status)
	}

	// A second delivery of the same event is a no-op.
	env = testOrderEnv{
		orders: &stubOrderRepo{
			findByRefFn: func(_ context.Context, ref string) (domain.Order, error) {
				return domain.Order{ID: "ord-1", Status: domain.OrderStatusPaid, PaymentRef: ref}, nil
			},
			updateStatusFn: func(context.Context, string, repositories.OrderStatusUpdate) (domain.Order, error) {
				t.Fatal("no status update expected for an already paid order")
				return domain.Order{}, nil
			},
		},
	}
	svc = newTestOrderService(t, env)

	order, err = svc.HandlePaymentEvent(context.Background(), "pi_123", true)
	if err != nil {
		t.Fatalf("HandlePaymentEvent repeat: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("status = %s, want PAID", order.Status)
	}
}
