package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shoplane/api/internal/payments"
	"github.com/shoplane/api/internal/platform/httpx"
	"github.com/shoplane/api/internal/services"
)

const maxWebhookBodySize = 64 * 1024

// WebhookHandlers receives payment gateway notifications and applies them to
// orders. Authenticity comes from the gateway signature, not bearer tokens,
// so these routes sit outside the owner-resolution middleware.
type WebhookHandlers struct {
	payments payments.Provider
	orders   services.OrderService
	logger   *zap.Logger
}

// NewWebhookHandlers constructs webhook handlers for the given provider.
func NewWebhookHandlers(provider payments.Provider, orders services.OrderService, logger *zap.Logger) *WebhookHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandlers{payments: provider, orders: orders, logger: logger}
}

// Routes wires the webhook endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil || h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("SERVICE_UNAVAILABLE", "webhook processing is unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", "failed to read webhook payload", http.StatusBadRequest))
		return
	}
	if len(payload) > maxWebhookBodySize {
		httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", "webhook payload too large", http.StatusBadRequest))
		return
	}

	event, err := h.payments.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidWebhook) {
			httpx.WriteError(ctx, w, httpx.NewError("VALIDATION_ERROR", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		h.logger.Error("stripe webhook parse failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("INTERNAL", "webhook processing failed", http.StatusInternalServerError))
		return
	}

	// Unhandled event types are acknowledged so the gateway stops retrying.
	if event.Type == "" {
		writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	var succeeded bool
	switch event.Status {
	case payments.StatusSucceeded:
		succeeded = true
	case payments.StatusFailed, payments.StatusCancelled:
		succeeded = false
	default:
		writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	order, err := h.orders.HandlePaymentEvent(ctx, event.IntentID, succeeded)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			// No order references this intent; acknowledge rather than
			// force the gateway into a retry loop.
			h.logger.Warn("payment event for unknown intent",
				zap.String("intent_id", event.IntentID),
				zap.String("event_type", event.Type))
			writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
			return
		}
		h.logger.Error("payment event handling failed",
			zap.String("intent_id", event.IntentID),
			zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("INTERNAL", "webhook processing failed", http.StatusInternalServerError))
		return
	}

	h.logger.Info("payment event applied",
		zap.String("order_id", order.ID),
		zap.String("status", string(order.Status)),
		zap.Bool("succeeded", succeeded))
	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true, "orderId": order.ID})
}
