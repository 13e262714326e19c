package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/shoplane/api/internal/domain"
	"github.com/shoplane/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: cart repository is required")
	errCartProductsRequired   = errors.New("cart service: product repository is required")
	errCartShopsRequired      = errors.New("cart service: shop repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const (
	minCartItemQuantity = 1
	maxCartItemQuantity = 99
	maxCartNotesLength  = 500
	defaultCartTTL      = 7 * 24 * time.Hour
	defaultPurgeLimit   = 200
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart or cart item does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// notesPolicy strips every HTML element from free-text item notes.
var notesPolicy = bluemonday.StrictPolicy()

// CartServiceDeps wires the repository and catalog dependencies for cart operations.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Shops       repositories.ShopRepository
	Clock       func() time.Time
	TTL         time.Duration
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	shops    repositories.ShopRepository
	newID    func() string
	now      func() time.Time
	ttl      time.Duration
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	if deps.Shops == nil {
		return nil, errCartShopsRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultCartTTL
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	service := &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		shops:    deps.Shops,
		newID:    idGen,
		now:      func() time.Time { return deps.Clock().UTC() },
		ttl:      ttl,
		logger:   logger,
	}
	return service, nil
}

// GetOrCreateCart loads the owner's cart for the shop, creating an empty cart
// when absent. Concurrent callers converge on a single cart per (owner, shop).
func (s *cartService) GetOrCreateCart(ctx context.Context, owner OwnerRef, shopID string) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}

	shopID = strings.TrimSpace(shopID)
	if err := validateOwner(owner); err != nil {
		return Cart{}, err
	}
	if shopID == "" {
		return Cart{}, fmt.Errorf("%w: shop_id is required", ErrCartInvalidInput)
	}

	if _, err := s.shops.FindByID(ctx, shopID); err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: shop %q", ErrCartNotFound, shopID)
		}
		return Cart{}, s.translateRepoError(err)
	}

	now := s.now()
	cart, err := s.carts.GetOrCreate(ctx, domain.Cart{
		Owner:     owner,
		ShopID:    shopID,
		Items:     []domain.CartItem{},
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

// GetCart loads an existing cart without creating one.
func (s *cartService) GetCart(ctx context.Context, owner OwnerRef, shopID string) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}

	shopID = strings.TrimSpace(shopID)
	if err := validateOwner(owner); err != nil {
		return Cart{}, err
	}
	if shopID == "" {
		return Cart{}, fmt.Errorf("%w: shop_id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, owner, shopID)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

// ListCarts returns every cart the owner holds, one per shop, with shop
// metadata attached.
func (s *cartService) ListCarts(ctx context.Context, owner OwnerRef) ([]CartSummary, error) {
	if s == nil || s.carts == nil {
		return nil, ErrCartUnavailable
	}
	if err := validateOwner(owner); err != nil {
		return nil, err
	}

	carts, err := s.carts.ListByOwner(ctx, owner)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	if len(carts) == 0 {
		return []CartSummary{}, nil
	}

	shopIDs := make([]string, 0, len(carts))
	for _, cart := range carts {
		shopIDs = append(shopIDs, cart.ShopID)
	}
	shops, err := s.shops.FindByIDs(ctx, shopIDs)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	summaries := make([]CartSummary, 0, len(carts))
	for _, cart := range carts {
		summaries = append(summaries, CartSummary{Cart: cart, Shop: shops[cart.ShopID]})
	}
	return summaries, nil
}

// AddItem prices the selection against the current catalog and appends it as a
// new line. Repeated adds of the same product produce separate lines.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, CartItem, error) {
	if s == nil || s.carts == nil {
		return Cart{}, CartItem{}, ErrCartUnavailable
	}

	if err := validateOwner(cmd.Owner); err != nil {
		return Cart{}, CartItem{}, err
	}

	shopID := strings.TrimSpace(cmd.ShopID)
	if shopID == "" {
		return Cart{}, CartItem{}, fmt.Errorf("%w: shop_id is required", ErrCartInvalidInput)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, CartItem{}, fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < minCartItemQuantity || cmd.Quantity > maxCartItemQuantity {
		return Cart{}, CartItem{}, fmt.Errorf("%w: quantity must be between %d and %d", ErrCartInvalidInput, minCartItemQuantity, maxCartItemQuantity)
	}

	notes, err := sanitizeNotes(cmd.Notes)
	if err != nil {
		return Cart{}, CartItem{}, err
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, CartItem{}, fmt.Errorf("%w: product %q", ErrCartNotFound, productID)
		}
		return Cart{}, CartItem{}, s.translateRepoError(err)
	}
	if product.ShopID != shopID {
		return Cart{}, CartItem{}, fmt.Errorf("%w: product does not belong to shop", ErrCartInvalidInput)
	}
	if !product.IsActive {
		return Cart{}, CartItem{}, fmt.Errorf("%w: product is not available", ErrCartInvalidInput)
	}

	priced, err := domain.PriceLine(product, strings.TrimSpace(cmd.VariantID), cmd.Addons, cmd.Modifiers, cmd.Quantity)
	if err != nil {
		return Cart{}, CartItem{}, translatePricingError(err)
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.Owner, shopID)
	if err != nil {
		return Cart{}, CartItem{}, err
	}

	now := s.now()
	item := domain.CartItem{
		ID:          s.nextID(now),
		ProductID:   product.ID,
		ProductName: priced.ProductName,
		VariantID:   strings.TrimSpace(cmd.VariantID),
		VariantName: priced.VariantName,
		Quantity:    cmd.Quantity,
		Notes:       notes,
		Addons:      priced.Addons,
		Modifiers:   priced.Modifiers,
		UnitPrice:   priced.UnitPrice,
		LineTotal:   priced.LineTotal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The swap is guarded by the updatedAt observed when the cart was
	// fetched, so a line added by a concurrent request surfaces as a
	// conflict instead of being silently dropped.
	items := append(cloneCartItems(cart.Items), item)
	saved, err := s.carts.ReplaceItems(ctx, cmd.Owner, shopID, items, cart.UpdatedAt)
	if err != nil {
		return Cart{}, CartItem{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.item_added", map[string]any{
		"owner":     cmd.Owner.Key(),
		"shopID":    shopID,
		"productID": product.ID,
		"quantity":  cmd.Quantity,
	})
	return saved, item, nil
}

// UpdateItem patches quantity and/or notes on an existing line. The line total
// is recomputed from the frozen unit price; the catalog is not consulted.
func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, CartItem, error) {
	if s == nil || s.carts == nil {
		return Cart{}, CartItem{}, ErrCartUnavailable
	}

	if err := validateOwner(cmd.Owner); err != nil {
		return Cart{}, CartItem{}, err
	}
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return Cart{}, CartItem{}, fmt.Errorf("%w: item_id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity == nil && cmd.Notes == nil {
		return Cart{}, CartItem{}, fmt.Errorf("%w: nothing to update", ErrCartInvalidInput)
	}
	if cmd.Quantity != nil && (*cmd.Quantity < minCartItemQuantity || *cmd.Quantity > maxCartItemQuantity) {
		return Cart{}, CartItem{}, fmt.Errorf("%w: quantity must be between %d and %d", ErrCartInvalidInput, minCartItemQuantity, maxCartItemQuantity)
	}

	var notes string
	if cmd.Notes != nil {
		sanitized, err := sanitizeNotes(*cmd.Notes)
		if err != nil {
			return Cart{}, CartItem{}, err
		}
		notes = sanitized
	}

	cart, idx, err := s.locateItem(ctx, cmd.Owner, itemID)
	if err != nil {
		return Cart{}, CartItem{}, err
	}

	items := cloneCartItems(cart.Items)
	now := s.now()
	if cmd.Quantity != nil {
		items[idx].Quantity = *cmd.Quantity
		items[idx].LineTotal = items[idx].UnitPrice.Mul(decimal.NewFromInt(int64(*cmd.Quantity))).Round(2)
	}
	if cmd.Notes != nil {
		items[idx].Notes = notes
	}
	items[idx].UpdatedAt = now

	saved, err := s.carts.ReplaceItems(ctx, cmd.Owner, cart.ShopID, items, cart.UpdatedAt)
	if err != nil {
		return Cart{}, CartItem{}, s.translateRepoError(err)
	}
	return saved, items[idx], nil
}

// RemoveItem removes one line from whichever of the owner's carts contains it.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}

	if err := validateOwner(cmd.Owner); err != nil {
		return Cart{}, err
	}
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return Cart{}, fmt.Errorf("%w: item_id is required", ErrCartInvalidInput)
	}

	cart, idx, err := s.locateItem(ctx, cmd.Owner, itemID)
	if err != nil {
		return Cart{}, err
	}

	items := cloneCartItems(cart.Items)
	items = append(items[:idx], items[idx+1:]...)

	saved, err := s.carts.ReplaceItems(ctx, cmd.Owner, cart.ShopID, items, cart.UpdatedAt)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

// ClearCart empties the cart's items. The cart row survives so the client can
// keep rendering the shop context.
func (s *cartService) ClearCart(ctx context.Context, owner OwnerRef, shopID string) error {
	if s == nil || s.carts == nil {
		return ErrCartUnavailable
	}

	shopID = strings.TrimSpace(shopID)
	if err := validateOwner(owner); err != nil {
		return err
	}
	if shopID == "" {
		return fmt.Errorf("%w: shop_id is required", ErrCartInvalidInput)
	}

	if _, err := s.carts.ReplaceItems(ctx, owner, shopID, []domain.CartItem{}, time.Time{}); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// ClearAllCarts empties every cart the owner holds and reports how many were
// touched.
func (s *cartService) ClearAllCarts(ctx context.Context, owner OwnerRef) (int, error) {
	if s == nil || s.carts == nil {
		return 0, ErrCartUnavailable
	}
	if err := validateOwner(owner); err != nil {
		return 0, err
	}

	carts, err := s.carts.ListByOwner(ctx, owner)
	if err != nil {
		return 0, s.translateRepoError(err)
	}

	cleared := 0
	for _, cart := range carts {
		if cart.IsEmpty() {
			continue
		}
		if _, err := s.carts.ReplaceItems(ctx, owner, cart.ShopID, []domain.CartItem{}, time.Time{}); err != nil {
			return cleared, s.translateRepoError(err)
		}
		cleared++
	}
	return cleared, nil
}

// MergeGuestCart re-homes every guest cart under the user owner, shop by shop.
// When the user already holds a cart for a shop the guest items are appended
// after the user's existing lines.
func (s *cartService) MergeGuestCart(ctx context.Context, guest OwnerRef, user OwnerRef) ([]Cart, error) {
	if s == nil || s.carts == nil {
		return nil, ErrCartUnavailable
	}
	if !guest.IsGuest() {
		return nil, fmt.Errorf("%w: merge source must be a guest identity", ErrCartInvalidInput)
	}
	if !user.IsUser() {
		return nil, fmt.Errorf("%w: merge target must be a user identity", ErrCartInvalidInput)
	}

	guestCarts, err := s.carts.ListByOwner(ctx, guest)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	merged := make([]Cart, 0, len(guestCarts))
	for _, cart := range guestCarts {
		moved, err := s.carts.Move(ctx, guest, user, cart.ShopID)
		if err != nil {
			if isRepoNotFound(err) {
				continue
			}
			return merged, s.translateRepoError(err)
		}
		merged = append(merged, moved)
	}

	s.logger(ctx, "cart.guest_merged", map[string]any{
		"guest": guest.Key(),
		"user":  user.Key(),
		"shops": len(merged),
	})
	return merged, nil
}

// PurgeExpiredCarts removes carts past their expiry timestamp, up to limit.
func (s *cartService) PurgeExpiredCarts(ctx context.Context, limit int) (int, error) {
	if s == nil || s.carts == nil {
		return 0, ErrCartUnavailable
	}
	if limit <= 0 {
		limit = defaultPurgeLimit
	}

	purged, err := s.carts.DeleteExpired(ctx, limit)
	if err != nil {
		return 0, s.translateRepoError(err)
	}
	if purged > 0 {
		s.logger(ctx, "cart.expired_purged", map[string]any{"count": purged})
	}
	return purged, nil
}

// locateItem scans the owner's carts for the line carrying itemID.
func (s *cartService) locateItem(ctx context.Context, owner OwnerRef, itemID string) (Cart, int, error) {
	carts, err := s.carts.ListByOwner(ctx, owner)
	if err != nil {
		return Cart{}, -1, s.translateRepoError(err)
	}
	for _, cart := range carts {
		for i, item := range cart.Items {
			if item.ID == itemID {
				return cart, i, nil
			}
		}
	}
	return Cart{}, -1, fmt.Errorf("%w: cart item %q", ErrCartNotFound, itemID)
}

func (s *cartService) nextID(now time.Time) string {
	id := strings.TrimSpace(s.newID())
	if id == "" {
		id = fmt.Sprintf("item-%d", now.UnixNano())
	}
	return id
}

func validateOwner(owner OwnerRef) error {
	if err := owner.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	}
	return nil
}

func sanitizeNotes(raw string) (string, error) {
	notes := strings.TrimSpace(notesPolicy.Sanitize(raw))
	if len(notes) > maxCartNotesLength {
		return "", fmt.Errorf("%w: notes must be %d characters or fewer", ErrCartInvalidInput, maxCartNotesLength)
	}
	return notes, nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
		return ErrCartUnavailable
	}
	return ErrCartUnavailable
}

func translatePricingError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrModifierSelection) {
		return fmt.Errorf("%w: %v", ErrModifierSelectionInvalid, err)
	}
	if errors.Is(err, domain.ErrPricingInput) {
		return fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	}
	return ErrCartUnavailable
}

// ErrModifierSelectionInvalid indicates a modifier selection violates its
// group's selection bounds.
var ErrModifierSelectionInvalid = errors.New("cart service: modifier selection invalid")

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func cloneCartItems(items []domain.CartItem) []domain.CartItem {
	if len(items) == 0 {
		return []domain.CartItem{}
	}
	dup := make([]domain.CartItem, len(items))
	copy(dup, items)
	return dup
}
