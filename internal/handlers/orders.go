package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/shoplane/api/internal/domain"
	"github.com/shoplane/api/internal/platform/auth"
	"github.com/shoplane/api/internal/platform/httpx"
	"github.com/shoplane/api/internal/platform/pagination"
	"github.com/shoplane/api/internal/services"
)

const maxOrderBodySize = 32 * 1024

// OrderHandlers exposes order creation, history, and status endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs handlers backed by the order service.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes wires the order endpoints onto the provided router. The group is
// expected to run behind owner resolution middleware.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(auth.RequireOwner)
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Put("/{orderID}/status", h.updateStatus)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	req, err := parseCreateOrderRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest))
		return
	}

	creation, err := h.orders.CreateFromCart(ctx, services.CreateOrderCommand{
		Owner:           owner,
		ShopID:          req.shopID,
		Type:            req.orderType,
		PaymentMethod:   req.paymentMethod,
		Customer:        req.customer,
		DeliveryAddress: req.deliveryAddress,
		Notes:           req.notes,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payload := map[string]any{"order": buildOrderPayload(creation.Order)}
	if creation.Payment != nil {
		payload["payment"] = creation.Payment
	}
	writeJSONResponse(w, http.StatusCreated, payload)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{DefaultLimit: 20, MaxLimit: 100})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.ListOrdersQuery{
		Owner:  owner,
		ShopID: strings.TrimSpace(r.URL.Query().Get("shopId")),
		Limit:  params.Limit,
		Offset: params.Offset,
	}
	if rawStatuses := strings.TrimSpace(r.URL.Query().Get("status")); rawStatuses != "" {
		for _, part := range strings.Split(rawStatuses, ",") {
			status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(part)))
			if status == "" {
				continue
			}
			query.Statuses = append(query.Statuses, status)
		}
	}

	orders, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payloads := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payloads = append(payloads, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": payloads})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, history, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	if !canViewOrder(ctx, owner, order) {
		// Hide the order's existence from strangers.
		httpx.WriteError(ctx, w, httpx.NewError("NOT_FOUND", "order not found", http.StatusNotFound))
		return
	}

	entries := make([]orderHistoryPayload, 0, len(history))
	for _, entry := range history {
		entries = append(entries, orderHistoryPayload{
			Status:    string(entry.Status),
			Notes:     entry.Notes,
			ActorKind: string(entry.ActorKind),
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"order":   buildOrderPayload(order),
		"history": entries,
	})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	target := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if target == "" {
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", "status is required", http.StatusBadRequest))
		return
	}

	staff := isStaff(ctx)

	if target == domain.OrderStatusCancelled {
		actorKind := domain.ActorKindCustomer
		if staff {
			actorKind = domain.ActorKindStaff
		} else {
			owned, err := h.ownsOrder(ctx, owner, orderID)
			if err != nil {
				h.writeOrderError(ctx, w, err)
				return
			}
			if !owned {
				httpx.WriteError(ctx, w, httpx.NewError("NOT_FOUND", "order not found", http.StatusNotFound))
				return
			}
		}
		order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
			OrderID:   orderID,
			ActorKind: actorKind,
			ActorID:   owner.ID,
			Reason:    strings.TrimSpace(req.Reason),
		})
		if err != nil {
			h.writeOrderError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
		return
	}

	// Forward lifecycle moves are reserved for shop staff; customers may
	// only cancel.
	if !staff {
		httpx.WriteError(ctx, w, httpx.NewError("IDENTITY_REQUIRED", "status changes require staff access", http.StatusUnauthorized))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: target,
		ActorKind:    domain.ActorKindStaff,
		ActorID:      owner.ID,
		Notes:        strings.TrimSpace(req.Notes),
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) ownsOrder(ctx context.Context, owner domain.OwnerRef, orderID string) (bool, error) {
	order, _, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	return order.Owner == owner, nil
}

func (h *OrderHandlers) requireOwner(ctx context.Context, w http.ResponseWriter) (domain.OwnerRef, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("SERVICE_UNAVAILABLE", "order service is unavailable", http.StatusServiceUnavailable))
		return domain.OwnerRef{}, false
	}
	owner, ok := auth.OwnerFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("IDENTITY_REQUIRED", "a user token or guest session is required", http.StatusUnauthorized))
		return domain.OwnerRef{}, false
	}
	return owner, true
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("EMPTY_CART", "cart is empty", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("INVALID_TRANSITION", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("NOT_FOUND", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("CONFLICT", "order was modified concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("SERVICE_UNAVAILABLE", "payment gateway is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("INTERNAL", "order operation failed", http.StatusInternalServerError))
	}
}

func canViewOrder(ctx context.Context, owner domain.OwnerRef, order domain.Order) bool {
	if order.Owner == owner {
		return true
	}
	return isStaff(ctx)
}

func isStaff(ctx context.Context) bool {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		return false
	}
	return identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin)
}

type orderHistoryPayload struct {
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
	ActorKind string `json:"actorKind"`
	CreatedAt string `json:"createdAt"`
}

type createOrderRequest struct {
	shopID          string
	orderType       domain.OrderType
	paymentMethod   domain.PaymentMethod
	customer        domain.Customer
	deliveryAddress *domain.DeliveryAddress
	notes           string
}

func parseCreateOrderRequest(body []byte) (createOrderRequest, error) {
	var raw struct {
		ShopID        string `json:"shopId"`
		Type          string `json:"type"`
		PaymentMethod string `json:"paymentMethod"`
		Customer      struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
			Email string `json:"email"`
		} `json:"customer"`
		DeliveryAddress *struct {
			Line1      string `json:"line1"`
			Line2      string `json:"line2"`
			City       string `json:"city"`
			PostalCode string `json:"postalCode"`
			Notes      string `json:"notes"`
		} `json:"deliveryAddress"`
		Notes string `json:"notes"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return createOrderRequest{}, errors.New("invalid JSON payload")
	}

	req := createOrderRequest{
		shopID: strings.TrimSpace(raw.ShopID),
		notes:  raw.Notes,
		customer: domain.Customer{
			Name:  strings.TrimSpace(raw.Customer.Name),
			Phone: strings.TrimSpace(raw.Customer.Phone),
			Email: strings.TrimSpace(raw.Customer.Email),
		},
	}
	if req.shopID == "" {
		return createOrderRequest{}, errors.New("shopId is required")
	}

	switch domain.OrderType(strings.ToLower(strings.TrimSpace(raw.Type))) {
	case domain.OrderTypeDelivery:
		req.orderType = domain.OrderTypeDelivery
	case domain.OrderTypePickup:
		req.orderType = domain.OrderTypePickup
	default:
		return createOrderRequest{}, fmt.Errorf("type must be %q or %q", domain.OrderTypeDelivery, domain.OrderTypePickup)
	}

	switch domain.PaymentMethod(strings.ToLower(strings.TrimSpace(raw.PaymentMethod))) {
	case domain.PaymentMethodCard:
		req.paymentMethod = domain.PaymentMethodCard
	case domain.PaymentMethodCash:
		req.paymentMethod = domain.PaymentMethodCash
	default:
		return createOrderRequest{}, fmt.Errorf("paymentMethod must be %q or %q", domain.PaymentMethodCard, domain.PaymentMethodCash)
	}

	if raw.DeliveryAddress != nil {
		req.deliveryAddress = &domain.DeliveryAddress{
			Line1:      strings.TrimSpace(raw.DeliveryAddress.Line1),
			Line2:      strings.TrimSpace(raw.DeliveryAddress.Line2),
			City:       strings.TrimSpace(raw.DeliveryAddress.City),
			PostalCode: strings.TrimSpace(raw.DeliveryAddress.PostalCode),
			Notes:      strings.TrimSpace(raw.DeliveryAddress.Notes),
		}
	}

	return req, nil
}
