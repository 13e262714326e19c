package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shoplane/api/internal/domain"
	pfirestore "github.com/shoplane/api/internal/platform/firestore"
	"github.com/shoplane/api/internal/repositories"
)

const cartCollection = "carts"

type cartItemDocument struct {
	ID          string                     `firestore:"id"`
	ProductID   string                     `firestore:"productId"`
	ProductName string                     `firestore:"productName"`
	VariantID   string                     `firestore:"variantId,omitempty"`
	VariantName string                     `firestore:"variantName,omitempty"`
	Quantity    int                        `firestore:"quantity"`
	Notes       string                     `firestore:"notes,omitempty"`
	UnitPrice   string                     `firestore:"unitPrice"`
	LineTotal   string                     `firestore:"lineTotal"`
	Addons      []cartItemAddonDocument    `firestore:"addons,omitempty"`
	Modifiers   []cartItemModifierDocument `firestore:"modifiers,omitempty"`
	CreatedAt   time.Time                  `firestore:"createdAt"`
	UpdatedAt   time.Time                  `firestore:"updatedAt"`
}

type cartItemAddonDocument struct {
	AddonID  string `firestore:"addonId"`
	Name     string `firestore:"name"`
	Price    string `firestore:"price"`
	Quantity int    `firestore:"quantity"`
}

type cartItemModifierDocument struct {
	GroupID         string `firestore:"groupId"`
	OptionID        string `firestore:"optionId"`
	Name            string `firestore:"name"`
	PriceAdjustment string `firestore:"priceAdjustment"`
	Quantity        int    `firestore:"quantity"`
}

type cartDocument struct {
	OwnerKey  string             `firestore:"ownerKey"`
	ShopID    string             `firestore:"shopId"`
	Items     []cartItemDocument `firestore:"items"`
	ExpiresAt time.Time          `firestore:"expiresAt"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

// CartRepository persists carts in Firestore. One document per (owner, shop)
// pair; the document id is derived from the pair, so duplicate carts cannot
// exist regardless of caller interleaving.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
	clock    func() time.Time
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base:     pfirestore.NewBaseRepository[cartDocument](provider, cartCollection),
		provider: provider,
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// GetOrCreate returns the cart stored under the deterministic (owner, shop)
// document id, creating it inside a transaction when absent or expired.
func (r *CartRepository) GetOrCreate(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	if err := cart.Owner.Validate(); err != nil {
		return domain.Cart{}, err
	}
	shopID := strings.TrimSpace(cart.ShopID)
	if shopID == "" {
		return domain.Cart{}, errors.New("cart repository: shop id is required")
	}

	id := cartDocID(cart.Owner, shopID)
	now := r.clock()
	var result domain.Cart

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		snap, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.OK:
			var doc cartDocument
			if decodeErr := snap.DataTo(&doc); decodeErr != nil {
				return decodeErr
			}
			if doc.ExpiresAt.After(now) {
				existing, decodeErr := cartFromDocument(id, doc)
				if decodeErr != nil {
					return decodeErr
				}
				result = existing
				return nil
			}
			// Expired cart under the same key: recreate in place.
		case codes.NotFound:
			// fall through to create
		default:
			return err
		}

		doc := cartDocument{
			OwnerKey:  cart.Owner.Key(),
			ShopID:    shopID,
			Items:     []cartItemDocument{},
			ExpiresAt: cart.ExpiresAt.UTC(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		created, decodeErr := cartFromDocument(id, doc)
		if decodeErr != nil {
			return decodeErr
		}
		result = created
		return nil
	})
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.getOrCreate", err)
	}
	return result, nil
}

// Get loads the cart for the (owner, shop) pair. Expired carts read as absent.
func (r *CartRepository) Get(ctx context.Context, owner domain.OwnerRef, shopID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	if err := owner.Validate(); err != nil {
		return domain.Cart{}, err
	}

	id := cartDocID(owner, strings.TrimSpace(shopID))
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}
	if !doc.Data.ExpiresAt.After(r.clock()) {
		return domain.Cart{}, pfirestore.WrapError("carts.get", status.Error(codes.NotFound, "cart expired"))
	}
	return cartFromDocument(id, doc.Data)
}

// ListByOwner returns every live cart belonging to the owner, across shops.
func (r *CartRepository) ListByOwner(ctx context.Context, owner domain.OwnerRef) ([]domain.Cart, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("cart repository not initialised")
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("ownerKey", "==", owner.Key())
	})
	if err != nil {
		return nil, err
	}

	now := r.clock()
	carts := make([]domain.Cart, 0, len(docs))
	for _, doc := range docs {
		if !doc.Data.ExpiresAt.After(now) {
			continue
		}
		cart, err := cartFromDocument(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		carts = append(carts, cart)
	}
	return carts, nil
}

// ReplaceItems swaps the cart's item set in one write and bumps updatedAt.
// A non-zero expectedUpdatedAt makes the swap conditional: when the stored
// document has moved past that timestamp the swap aborts with a conflict, so
// read-modify-write callers never clobber a concurrent mutation. When the
// context carries an open transaction the cart document was already read
// inside it, so the swap is issued as a blind write and Firestore's
// transaction serialisation supplies the concurrency guarantee instead.
func (r *CartRepository) ReplaceItems(ctx context.Context, owner domain.OwnerRef, shopID string, items []domain.CartItem, expectedUpdatedAt time.Time) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	if err := owner.Validate(); err != nil {
		return domain.Cart{}, err
	}

	id := cartDocID(owner, strings.TrimSpace(shopID))
	now := r.clock()

	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return domain.Cart{}, err
		}
		err = tx.Update(ref, []firestore.Update{
			{Path: "items", Value: cartItemsToDocuments(items)},
			{Path: "updatedAt", Value: now},
		})
		if err != nil {
			return domain.Cart{}, pfirestore.WrapError("carts.replaceItems", err)
		}
		return domain.Cart{
			ID:        id,
			Owner:     owner,
			ShopID:    strings.TrimSpace(shopID),
			Items:     cloneDomainItems(items),
			UpdatedAt: now,
		}, nil
	}

	var result domain.Cart
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc cartDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if !expectedUpdatedAt.IsZero() && !doc.UpdatedAt.Equal(expectedUpdatedAt) {
			return status.Error(codes.Aborted, "cart modified concurrently")
		}
		doc.Items = cartItemsToDocuments(items)
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated, decodeErr := cartFromDocument(id, doc)
		if decodeErr != nil {
			return decodeErr
		}
		result = updated
		return nil
	})
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.replaceItems", err)
	}
	return result, nil
}

// Delete removes the cart document for the (owner, shop) pair. Deleting an
// absent cart is not an error.
func (r *CartRepository) Delete(ctx context.Context, owner domain.OwnerRef, shopID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	if err := owner.Validate(); err != nil {
		return err
	}

	ref, err := r.base.DocumentRef(ctx, cartDocID(owner, strings.TrimSpace(shopID)))
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.delete", err)
	}
	return nil
}

// Move re-homes the guest cart under the user owner in one transaction. When
// the destination already exists the guest items are appended to it; the
// guest document is removed either way.
func (r *CartRepository) Move(ctx context.Context, from domain.OwnerRef, to domain.OwnerRef, shopID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	if err := from.Validate(); err != nil {
		return domain.Cart{}, err
	}
	if err := to.Validate(); err != nil {
		return domain.Cart{}, err
	}
	shopID = strings.TrimSpace(shopID)

	fromID := cartDocID(from, shopID)
	toID := cartDocID(to, shopID)
	now := r.clock()
	var result domain.Cart

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		fromRef, err := r.base.DocumentRef(ctx, fromID)
		if err != nil {
			return err
		}
		toRef, err := r.base.DocumentRef(ctx, toID)
		if err != nil {
			return err
		}

		fromSnap, err := tx.Get(fromRef)
		if err != nil {
			return err
		}
		var fromDoc cartDocument
		if err := fromSnap.DataTo(&fromDoc); err != nil {
			return err
		}

		toDoc := cartDocument{
			OwnerKey:  to.Key(),
			ShopID:    shopID,
			Items:     fromDoc.Items,
			ExpiresAt: fromDoc.ExpiresAt,
			CreatedAt: now,
			UpdatedAt: now,
		}

		toSnap, err := tx.Get(toRef)
		switch status.Code(err) {
		case codes.OK:
			var existing cartDocument
			if decodeErr := toSnap.DataTo(&existing); decodeErr != nil {
				return decodeErr
			}
			toDoc.Items = append(existing.Items, fromDoc.Items...)
			toDoc.ExpiresAt = existing.ExpiresAt
			toDoc.CreatedAt = existing.CreatedAt
		case codes.NotFound:
			// plain re-home
		default:
			return err
		}

		if err := tx.Set(toRef, toDoc); err != nil {
			return err
		}
		if err := tx.Delete(fromRef); err != nil {
			return err
		}
		moved, decodeErr := cartFromDocument(toID, toDoc)
		if decodeErr != nil {
			return decodeErr
		}
		result = moved
		return nil
	})
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.move", err)
	}
	return result, nil
}

// DeleteExpired removes up to limit expired cart documents and reports how
// many were deleted.
func (r *CartRepository) DeleteExpired(ctx context.Context, limit int) (int, error) {
	if r == nil || r.base == nil {
		return 0, errors.New("cart repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}

	now := r.clock()
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now).Limit(limit)
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, doc := range docs {
		ref, err := r.base.DocumentRef(ctx, doc.ID)
		if err != nil {
			return removed, err
		}
		if _, err := ref.Delete(ctx); err != nil {
			return removed, pfirestore.WrapError("carts.deleteExpired", err)
		}
		removed++
	}
	return removed, nil
}

func cloneDomainItems(items []domain.CartItem) []domain.CartItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]domain.CartItem, len(items))
	copy(out, items)
	return out
}

func cartItemsToDocuments(items []domain.CartItem) []cartItemDocument {
	docs := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		doc := cartItemDocument{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			VariantName: item.VariantName,
			Quantity:    item.Quantity,
			Notes:       item.Notes,
			UnitPrice:   decimalString(item.UnitPrice),
			LineTotal:   decimalString(item.LineTotal),
			CreatedAt:   item.CreatedAt.UTC(),
			UpdatedAt:   item.UpdatedAt.UTC(),
		}
		for _, addon := range item.Addons {
			doc.Addons = append(doc.Addons, cartItemAddonDocument{
				AddonID:  addon.AddonID,
				Name:     addon.Name,
				Price:    decimalString(addon.Price),
				Quantity: addon.Quantity,
			})
		}
		for _, mod := range item.Modifiers {
			doc.Modifiers = append(doc.Modifiers, cartItemModifierDocument{
				GroupID:         mod.GroupID,
				OptionID:        mod.OptionID,
				Name:            mod.Name,
				PriceAdjustment: decimalString(mod.PriceAdjustment),
				Quantity:        mod.Quantity,
			})
		}
		docs = append(docs, doc)
	}
	return docs
}

func cartFromDocument(id string, doc cartDocument) (domain.Cart, error) {
	owner, err := domain.ParseOwnerKey(doc.OwnerKey)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		ID:        id,
		Owner:     owner,
		ShopID:    doc.ShopID,
		Items:     make([]domain.CartItem, 0, len(doc.Items)),
		ExpiresAt: doc.ExpiresAt,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, itemDoc := range doc.Items {
		item, err := cartItemFromDocument(itemDoc)
		if err != nil {
			return domain.Cart{}, err
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, nil
}

func cartItemFromDocument(doc cartItemDocument) (domain.CartItem, error) {
	unit, err := parseDecimal("carts.item", doc.UnitPrice)
	if err != nil {
		return domain.CartItem{}, err
	}
	total, err := parseDecimal("carts.item", doc.LineTotal)
	if err != nil {
		return domain.CartItem{}, err
	}

	item := domain.CartItem{
		ID:          doc.ID,
		ProductID:   doc.ProductID,
		ProductName: doc.ProductName,
		VariantID:   doc.VariantID,
		VariantName: doc.VariantName,
		Quantity:    doc.Quantity,
		Notes:       doc.Notes,
		UnitPrice:   unit,
		LineTotal:   total,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	for _, addonDoc := range doc.Addons {
		price, err := parseDecimal("carts.item.addon", addonDoc.Price)
		if err != nil {
			return domain.CartItem{}, err
		}
		item.Addons = append(item.Addons, domain.CartItemAddon{
			AddonID:  addonDoc.AddonID,
			Name:     addonDoc.Name,
			Price:    price,
			Quantity: addonDoc.Quantity,
		})
	}
	for _, modDoc := range doc.Modifiers {
		adjustment, err := parseDecimal("carts.item.modifier", modDoc.PriceAdjustment)
		if err != nil {
			return domain.CartItem{}, err
		}
		item.Modifiers = append(item.Modifiers, domain.CartItemModifier{
			GroupID:         modDoc.GroupID,
			OptionID:        modDoc.OptionID,
			Name:            modDoc.Name,
			PriceAdjustment: adjustment,
			Quantity:        modDoc.Quantity,
		})
	}
	return item, nil
}
