package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shoplane/api/internal/domain"
	pfirestore "github.com/shoplane/api/internal/platform/firestore"
	"github.com/shoplane/api/internal/repositories"
)

const (
	orderCollection        = "orders"
	orderHistoryCollection = "history"
)

type orderItemAddonDocument struct {
	Name     string `firestore:"name"`
	Price    string `firestore:"price"`
	Quantity int    `firestore:"quantity"`
}

type orderItemModifierDocument struct {
	GroupName       string `firestore:"groupName,omitempty"`
	Name            string `firestore:"name"`
	PriceAdjustment string `firestore:"priceAdjustment"`
	Quantity        int    `firestore:"quantity"`
}

type orderItemDocument struct {
	ID          string                      `firestore:"id"`
	ProductID   string                      `firestore:"productId"`
	ProductName string                      `firestore:"productName"`
	VariantName string                      `firestore:"variantName,omitempty"`
	Quantity    int                         `firestore:"quantity"`
	Notes       string                      `firestore:"notes,omitempty"`
	UnitPrice   string                      `firestore:"unitPrice"`
	LineTotal   string                      `firestore:"lineTotal"`
	Addons      []orderItemAddonDocument    `firestore:"addons,omitempty"`
	Modifiers   []orderItemModifierDocument `firestore:"modifiers,omitempty"`
}

type deliveryAddressDocument struct {
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Notes      string `firestore:"notes,omitempty"`
}

type orderDocument struct {
	Number          string                   `firestore:"number"`
	ShopID          string                   `firestore:"shopId"`
	OwnerKey        string                   `firestore:"ownerKey"`
	Type            string                   `firestore:"type"`
	PaymentMethod   string                   `firestore:"paymentMethod"`
	Status          string                   `firestore:"status"`
	Subtotal        string                   `firestore:"subtotal"`
	DeliveryFee     string                   `firestore:"deliveryFee"`
	DiscountAmount  string                   `firestore:"discountAmount"`
	Total           string                   `firestore:"total"`
	CustomerName    string                   `firestore:"customerName"`
	CustomerPhone   string                   `firestore:"customerPhone,omitempty"`
	CustomerEmail   string                   `firestore:"customerEmail,omitempty"`
	DeliveryAddress *deliveryAddressDocument `firestore:"deliveryAddress,omitempty"`
	Notes           string                   `firestore:"notes,omitempty"`
	InternalNotes   string                   `firestore:"internalNotes,omitempty"`
	PaymentRef      string                   `firestore:"paymentRef,omitempty"`
	Items           []orderItemDocument      `firestore:"items"`
	PaidAt          *time.Time               `firestore:"paidAt,omitempty"`
	ReadyAt         *time.Time               `firestore:"readyAt,omitempty"`
	DeliveredAt     *time.Time               `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time               `firestore:"cancelledAt,omitempty"`
	CreatedAt       time.Time                `firestore:"createdAt"`
	UpdatedAt       time.Time                `firestore:"updatedAt"`
}

type orderHistoryDocument struct {
	OrderID   string    `firestore:"orderId"`
	Status    string    `firestore:"status"`
	Notes     string    `firestore:"notes,omitempty"`
	ActorKind string    `firestore:"actorKind"`
	ActorID   string    `firestore:"actorId,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// OrderRepository persists order aggregates with their append-only status
// history as a subcollection.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
	clock    func() time.Time
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection),
		provider: provider,
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Insert writes the order document and its first history entry in one
// transaction. The order id must not already exist.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order, history domain.OrderStatusHistoryEntry) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc := orderToDocument(order)
	historyDoc := historyToDocument(orderID, history)

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.Create(ref, doc); err != nil {
			return err
		}
		historyRef := ref.Collection(orderHistoryCollection).Doc(history.ID)
		return tx.Create(historyRef, historyDoc)
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.insert", err)
	}
	return orderFromDocument(orderID, doc)
}

// FindByID loads a single order with its embedded items.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return orderFromDocument(doc.ID, doc.Data)
}

// FindByPaymentRef resolves the order holding the given payment reference.
func (r *OrderRepository) FindByPaymentRef(ctx context.Context, paymentRef string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	ref := strings.TrimSpace(paymentRef)
	if ref == "" {
		return domain.Order{}, errors.New("order repository: payment ref is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("paymentRef", "==", ref).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByPaymentRef", status.Error(codes.NotFound, "order not found"))
	}
	return orderFromDocument(docs[0].ID, docs[0].Data)
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderFilter) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if !filter.Owner.IsZero() {
			q = q.Where("ownerKey", "==", filter.Owner.Key())
		}
		if shopID := strings.TrimSpace(filter.ShopID); shopID != "" {
			q = q.Where("shopId", "==", shopID)
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, s := range filter.Statuses {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := orderFromDocument(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// UpdateStatus applies the transition and appends the history entry in one
// transaction. When the stored status no longer matches ExpectedStatus the
// update fails with an aborted (conflict) error.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	now := r.clock()
	var result domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}

		if update.ExpectedStatus != "" && doc.Status != string(update.ExpectedStatus) {
			return status.Errorf(codes.Aborted, "order status changed concurrently: have %s, expected %s", doc.Status, update.ExpectedStatus)
		}

		doc.Status = string(update.Status)
		doc.UpdatedAt = now
		if update.PaymentRef != "" {
			doc.PaymentRef = update.PaymentRef
		}
		if update.InternalNotes != nil {
			doc.InternalNotes = *update.InternalNotes
		}
		switch update.Status {
		case domain.OrderStatusPaid:
			doc.PaidAt = &now
		case domain.OrderStatusReady:
			doc.ReadyAt = &now
		case domain.OrderStatusScanned:
			doc.DeliveredAt = &now
		case domain.OrderStatusCancelled:
			doc.CancelledAt = &now
		}

		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		historyRef := ref.Collection(orderHistoryCollection).Doc(update.History.ID)
		if err := tx.Create(historyRef, historyToDocument(orderID, update.History)); err != nil {
			return err
		}

		updated, decodeErr := orderFromDocument(orderID, doc)
		if decodeErr != nil {
			return decodeErr
		}
		result = updated
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.updateStatus", err)
	}
	return result, nil
}

// ListHistory returns the status history entries oldest first.
func (r *OrderRepository) ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return nil, err
	}

	iter := ref.Collection(orderHistoryCollection).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var entries []domain.OrderStatusHistoryEntry
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.listHistory", err)
		}
		var doc orderHistoryDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		entries = append(entries, domain.OrderStatusHistoryEntry{
			ID:        snap.Ref.ID,
			OrderID:   doc.OrderID,
			Status:    domain.OrderStatus(doc.Status),
			Notes:     doc.Notes,
			ActorKind: domain.ActorKind(doc.ActorKind),
			ActorID:   doc.ActorID,
			CreatedAt: doc.CreatedAt,
		})
	}
	return entries, nil
}

// SetPaymentRef records the external payment reference on the order.
func (r *OrderRepository) SetPaymentRef(ctx context.Context, orderID string, paymentRef string) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	_, err := r.base.Update(ctx, strings.TrimSpace(orderID), []firestore.Update{
		{Path: "paymentRef", Value: strings.TrimSpace(paymentRef)},
		{Path: "updatedAt", Value: r.clock()},
	})
	return err
}

func orderToDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		Number:         order.Number,
		ShopID:         order.ShopID,
		OwnerKey:       order.Owner.Key(),
		Type:           string(order.Type),
		PaymentMethod:  string(order.PaymentMethod),
		Status:         string(order.Status),
		Subtotal:       decimalString(order.Subtotal),
		DeliveryFee:    decimalString(order.DeliveryFee),
		DiscountAmount: decimalString(order.DiscountAmount),
		Total:          decimalString(order.Total),
		CustomerName:   order.Customer.Name,
		CustomerPhone:  order.Customer.Phone,
		CustomerEmail:  order.Customer.Email,
		Notes:          order.Notes,
		InternalNotes:  order.InternalNotes,
		PaymentRef:     order.PaymentRef,
		PaidAt:         order.PaidAt,
		ReadyAt:        order.ReadyAt,
		DeliveredAt:    order.DeliveredAt,
		CancelledAt:    order.CancelledAt,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
	}
	if order.DeliveryAddress != nil {
		doc.DeliveryAddress = &deliveryAddressDocument{
			Line1:      order.DeliveryAddress.Line1,
			Line2:      order.DeliveryAddress.Line2,
			City:       order.DeliveryAddress.City,
			PostalCode: order.DeliveryAddress.PostalCode,
			Notes:      order.DeliveryAddress.Notes,
		}
	}
	for _, item := range order.Items {
		itemDoc := orderItemDocument{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			Quantity:    item.Quantity,
			Notes:       item.Notes,
			UnitPrice:   decimalString(item.UnitPrice),
			LineTotal:   decimalString(item.LineTotal),
		}
		for _, addon := range item.Addons {
			itemDoc.Addons = append(itemDoc.Addons, orderItemAddonDocument{
				Name:     addon.Name,
				Price:    decimalString(addon.Price),
				Quantity: addon.Quantity,
			})
		}
		for _, mod := range item.Modifiers {
			itemDoc.Modifiers = append(itemDoc.Modifiers, orderItemModifierDocument{
				GroupName:       mod.GroupName,
				Name:            mod.Name,
				PriceAdjustment: decimalString(mod.PriceAdjustment),
				Quantity:        mod.Quantity,
			})
		}
		doc.Items = append(doc.Items, itemDoc)
	}
	return doc
}

func orderFromDocument(id string, doc orderDocument) (domain.Order, error) {
	owner, err := domain.ParseOwnerKey(doc.OwnerKey)
	if err != nil {
		return domain.Order{}, err
	}
	subtotal, err := parseDecimal("orders", doc.Subtotal)
	if err != nil {
		return domain.Order{}, err
	}
	fee, err := parseDecimal("orders", doc.DeliveryFee)
	if err != nil {
		return domain.Order{}, err
	}
	discount, err := parseDecimal("orders", doc.DiscountAmount)
	if err != nil {
		return domain.Order{}, err
	}
	total, err := parseDecimal("orders", doc.Total)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:             id,
		Number:         doc.Number,
		ShopID:         doc.ShopID,
		Owner:          owner,
		Type:           domain.OrderType(doc.Type),
		PaymentMethod:  domain.PaymentMethod(doc.PaymentMethod),
		Status:         domain.OrderStatus(doc.Status),
		Subtotal:       subtotal,
		DeliveryFee:    fee,
		DiscountAmount: discount,
		Total:          total,
		Customer: domain.Customer{
			Name:  doc.CustomerName,
			Phone: doc.CustomerPhone,
			Email: doc.CustomerEmail,
		},
		Notes:         doc.Notes,
		InternalNotes: doc.InternalNotes,
		PaymentRef:    doc.PaymentRef,
		PaidAt:        doc.PaidAt,
		ReadyAt:       doc.ReadyAt,
		DeliveredAt:   doc.DeliveredAt,
		CancelledAt:   doc.CancelledAt,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if doc.DeliveryAddress != nil {
		order.DeliveryAddress = &domain.DeliveryAddress{
			Line1:      doc.DeliveryAddress.Line1,
			Line2:      doc.DeliveryAddress.Line2,
			City:       doc.DeliveryAddress.City,
			PostalCode: doc.DeliveryAddress.PostalCode,
			Notes:      doc.DeliveryAddress.Notes,
		}
	}
	for _, itemDoc := range doc.Items {
		unit, err := parseDecimal("orders.item", itemDoc.UnitPrice)
		if err != nil {
			return domain.Order{}, err
		}
		lineTotal, err := parseDecimal("orders.item", itemDoc.LineTotal)
		if err != nil {
			return domain.Order{}, err
		}
		item := domain.OrderItem{
			ID:          itemDoc.ID,
			ProductID:   itemDoc.ProductID,
			ProductName: itemDoc.ProductName,
			VariantName: itemDoc.VariantName,
			Quantity:    itemDoc.Quantity,
			Notes:       itemDoc.Notes,
			UnitPrice:   unit,
			LineTotal:   lineTotal,
		}
		for _, addonDoc := range itemDoc.Addons {
			price, err := parseDecimal("orders.item.addon", addonDoc.Price)
			if err != nil {
				return domain.Order{}, err
			}
			item.Addons = append(item.Addons, domain.OrderItemAddon{
				Name:     addonDoc.Name,
				Price:    price,
				Quantity: addonDoc.Quantity,
			})
		}
		for _, modDoc := range itemDoc.Modifiers {
			adjustment, err := parseDecimal("orders.item.modifier", modDoc.PriceAdjustment)
			if err != nil {
				return domain.Order{}, err
			}
			item.Modifiers = append(item.Modifiers, domain.OrderItemModifier{
				GroupName:       modDoc.GroupName,
				Name:            modDoc.Name,
				PriceAdjustment: adjustment,
				Quantity:        modDoc.Quantity,
			})
		}
		order.Items = append(order.Items, item)
	}
	return order, nil
}

func historyToDocument(orderID string, entry domain.OrderStatusHistoryEntry) orderHistoryDocument {
	return orderHistoryDocument{
		OrderID:   orderID,
		Status:    string(entry.Status),
		Notes:     entry.Notes,
		ActorKind: string(entry.ActorKind),
		ActorID:   entry.ActorID,
		CreatedAt: entry.CreatedAt.UTC(),
	}
}
