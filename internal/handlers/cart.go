package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/shoplane/api/internal/domain"
	"github.com/shoplane/api/internal/platform/auth"
	"github.com/shoplane/api/internal/platform/httpx"
	"github.com/shoplane/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the cart endpoints for the resolved owner (user or guest).
type CartHandlers struct {
	carts  services.CartService
	guests *auth.GuestSessionManager
}

// NewCartHandlers constructs handlers invoking the cart service for the request owner.
func NewCartHandlers(carts services.CartService, guests *auth.GuestSessionManager) *CartHandlers {
	return &CartHandlers{
		carts:  carts,
		guests: guests,
	}
}

// Routes wires the /cart endpoints onto the provided router. The router group
// is expected to run behind owner resolution middleware.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(auth.RequireOwner)
	r.Get("/", h.getCart)
	r.Get("/all", h.listCarts)
	r.Delete("/", h.clearCarts)
	r.Post("/items", h.addItem)
	r.Put("/items/{itemID}", h.updateItem)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Post("/merge", h.mergeGuestCart)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shopId"))
	if shopID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", "shopId query parameter is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.GetCart(ctx, owner, shopID)
	if err != nil {
		if errors.Is(err, services.ErrCartNotFound) {
			writeJSONResponse(w, http.StatusOK, map[string]any{"cart": nil, "items": []cartItemPayload{}})
			return
		}
		h.writeCartError(ctx, w, err)
		return
	}

	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
		if match := strings.TrimSpace(r.Header.Get("If-None-Match")); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")

	payload := buildCartPayload(cart)
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": payload, "items": payload.Items})
}

func (h *CartHandlers) listCarts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}

	summaries, err := h.carts.ListCarts(ctx, owner)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	carts := make([]cartSummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		carts = append(carts, cartSummaryPayload{
			Cart: buildCartPayload(summary.Cart),
			Shop: shopSummaryPayload{
				ID:       summary.Shop.ID,
				Name:     summary.Shop.Name,
				Slug:     summary.Shop.Slug,
				ImageURL: summary.Shop.ImageURL,
			},
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"carts": carts})
}

func (h *CartHandlers) clearCarts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}

	if shopID := strings.TrimSpace(r.URL.Query().Get("shopId")); shopID != "" {
		if err := h.carts.ClearCart(ctx, owner, shopID); err != nil {
			h.writeCartError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, map[string]any{"cleared": true})
		return
	}

	cleared, err := h.carts.ClearAllCarts(ctx, owner)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"clearedCarts": cleared})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	req, err := parseAddItemRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest))
		return
	}

	cart, item, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		Owner:     owner,
		ShopID:    req.shopID,
		ProductID: req.productID,
		VariantID: req.variantID,
		Addons:    req.addons,
		Modifiers: req.modifiers,
		Quantity:  req.quantity,
		Notes:     req.notes,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"itemId": item.ID,
		"cart":   buildCartPayload(cart),
	})
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	req, err := parseUpdateItemRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest))
		return
	}

	cart, item, err := h.carts.UpdateItem(ctx, services.UpdateCartItemCommand{
		Owner:    owner,
		ItemID:   itemID,
		Quantity: req.quantity,
		Notes:    req.notes,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"cart": buildCartPayload(cart),
		"item": buildCartItems([]domain.CartItem{item})[0],
	})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{Owner: owner, ItemID: itemID})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(cart)})
}

func (h *CartHandlers) mergeGuestCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := auth.OwnerFromContext(ctx)
	if !ok || !owner.IsUser() {
		httpx.WriteError(ctx, w, httpx.NewError("IDENTITY_REQUIRED", "merging carts requires an authenticated user", http.StatusUnauthorized))
		return
	}

	guest, ok := h.resolveMergeGuest(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", "a valid guest session token is required", http.StatusBadRequest))
		return
	}

	merged, err := h.carts.MergeGuestCart(ctx, guest, owner)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	carts := make([]cartPayload, 0, len(merged))
	for _, cart := range merged {
		carts = append(carts, buildCartPayload(cart))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"mergedCarts": carts})
}

// resolveMergeGuest prefers the guest token in the request body, falling back
// to a guest session already resolved from headers.
func (h *CartHandlers) resolveMergeGuest(r *http.Request) (domain.OwnerRef, bool) {
	body, err := readLimitedBody(r, maxCartBodySize)
	if err == nil {
		var req struct {
			GuestSessionToken string `json:"guestSessionToken"`
		}
		if json.Unmarshal(body, &req) == nil && strings.TrimSpace(req.GuestSessionToken) != "" {
			if h.guests == nil {
				return domain.OwnerRef{}, false
			}
			session, verifyErr := h.guests.Verify(req.GuestSessionToken)
			if verifyErr != nil {
				return domain.OwnerRef{}, false
			}
			return domain.GuestOwner(session.ID), true
		}
	}

	if guest, ok := auth.GuestRefFromContext(r.Context()); ok {
		return guest, true
	}
	return domain.OwnerRef{}, false
}

func (h *CartHandlers) requireOwner(ctx context.Context, w http.ResponseWriter) (domain.OwnerRef, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("SERVICE_UNAVAILABLE", "cart service is unavailable", http.StatusServiceUnavailable))
		return domain.OwnerRef{}, false
	}
	owner, ok := auth.OwnerFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("IDENTITY_REQUIRED", "a user token or guest session is required", http.StatusUnauthorized))
		return domain.OwnerRef{}, false
	}
	return owner, true
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrModifierSelectionInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("MODIFIER_SELECTION_INVALID", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("NOT_FOUND", "cart or item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("CONFLICT", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("SERVICE_UNAVAILABLE", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("INTERNAL", "cart operation failed", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest))
	}
}

func buildCartETag(cart domain.Cart) string {
	if strings.TrimSpace(cart.ID) == "" || cart.UpdatedAt.IsZero() {
		return ""
	}
	input := fmt.Sprintf("%s:%d", strings.TrimSpace(cart.ID), cart.UpdatedAt.UTC().UnixNano())
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf(`W/"%s"`, hex.EncodeToString(sum[:8]))
}

type cartSummaryPayload struct {
	Cart cartPayload        `json:"cart"`
	Shop shopSummaryPayload `json:"shop"`
}

type shopSummaryPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type addItemRequest struct {
	shopID    string
	productID string
	variantID string
	addons    []domain.SelectedAddon
	modifiers []domain.SelectedModifier
	quantity  int
	notes     string
}

func parseAddItemRequest(body []byte) (addItemRequest, error) {
	var raw struct {
		ShopID    string          `json:"shopId"`
		ProductID string          `json:"productId"`
		VariantID string          `json:"variantId"`
		Quantity  *int            `json:"quantity"`
		Notes     string          `json:"notes"`
		Addons    json.RawMessage `json:"addons"`
		Modifiers json.RawMessage `json:"modifiers"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return addItemRequest{}, errors.New("invalid JSON payload")
	}

	req := addItemRequest{
		shopID:    strings.TrimSpace(raw.ShopID),
		productID: strings.TrimSpace(raw.ProductID),
		variantID: strings.TrimSpace(raw.VariantID),
		notes:     raw.Notes,
		quantity:  1,
	}
	if req.shopID == "" {
		return addItemRequest{}, errors.New("shopId is required")
	}
	if req.productID == "" {
		return addItemRequest{}, errors.New("productId is required")
	}
	if raw.Quantity != nil {
		req.quantity = *raw.Quantity
	}

	if len(raw.Addons) > 0 && !isJSONNull(raw.Addons) {
		var addons []struct {
			AddonID  string `json:"addonId"`
			Quantity int    `json:"quantity"`
		}
		if err := json.Unmarshal(raw.Addons, &addons); err != nil {
			return addItemRequest{}, errors.New("addons must be an array of {addonId, quantity}")
		}
		for _, addon := range addons {
			qty := addon.Quantity
			if qty <= 0 {
				qty = 1
			}
			req.addons = append(req.addons, domain.SelectedAddon{AddonID: strings.TrimSpace(addon.AddonID), Quantity: qty})
		}
	}

	if len(raw.Modifiers) > 0 && !isJSONNull(raw.Modifiers) {
		var modifiers []struct {
			GroupID  string `json:"groupId"`
			OptionID string `json:"optionId"`
			Quantity int    `json:"quantity"`
		}
		if err := json.Unmarshal(raw.Modifiers, &modifiers); err != nil {
			return addItemRequest{}, errors.New("modifiers must be an array of {groupId, optionId, quantity}")
		}
		for _, modifier := range modifiers {
			qty := modifier.Quantity
			if qty <= 0 {
				qty = 1
			}
			req.modifiers = append(req.modifiers, domain.SelectedModifier{
				GroupID:  strings.TrimSpace(modifier.GroupID),
				OptionID: strings.TrimSpace(modifier.OptionID),
				Quantity: qty,
			})
		}
	}

	return req, nil
}

type updateItemRequest struct {
	quantity *int
	notes    *string
}

func parseUpdateItemRequest(body []byte) (updateItemRequest, error) {
	var req updateItemRequest

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return req, errors.New("invalid JSON payload")
	}

	for key, value := range raw {
		switch key {
		case "quantity":
			if isJSONNull(value) {
				return req, errors.New("quantity must be a number")
			}
			var qty int
			if err := json.Unmarshal(value, &qty); err != nil {
				return req, errors.New("quantity must be a number")
			}
			req.quantity = &qty
		case "notes":
			if isJSONNull(value) {
				empty := ""
				req.notes = &empty
				continue
			}
			var notes string
			if err := json.Unmarshal(value, &notes); err != nil {
				return req, errors.New("notes must be a string or null")
			}
			req.notes = &notes
		default:
			return req, fmt.Errorf("field %q is not editable", key)
		}
	}

	if req.quantity == nil && req.notes == nil {
		return req, errors.New("no editable fields provided")
	}

	return req, nil
}
