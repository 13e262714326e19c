package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/shoplane/api/internal/domain"
	"github.com/shoplane/api/internal/payments"
	"github.com/shoplane/api/internal/services"
)

type stubPaymentProvider struct {
	createIntentFunc func(ctx context.Context, req payments.IntentRequest) (payments.Intent, error)
	lookupIntentFunc func(ctx context.Context, intentID string) (payments.Intent, error)
	parseWebhookFunc func(payload []byte, signature string) (payments.WebhookEvent, error)
}

func (s *stubPaymentProvider) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	if s.createIntentFunc == nil {
		return payments.Intent{}, fmt.Errorf("unexpected CreateIntent call")
	}
	return s.createIntentFunc(ctx, req)
}

func (s *stubPaymentProvider) LookupIntent(ctx context.Context, intentID string) (payments.Intent, error) {
	if s.lookupIntentFunc == nil {
		return payments.Intent{}, fmt.Errorf("unexpected LookupIntent call")
	}
	return s.lookupIntentFunc(ctx, intentID)
}

func (s *stubPaymentProvider) ParseWebhook(payload []byte, signature string) (payments.WebhookEvent, error) {
	if s.parseWebhookFunc == nil {
		return payments.WebhookEvent{}, fmt.Errorf("unexpected ParseWebhook call")
	}
	return s.parseWebhookFunc(payload, signature)
}

func newWebhookRouter(provider payments.Provider, orders services.OrderService) chi.Router {
	handler := NewWebhookHandlers(provider, orders, nil)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)
	return router
}

func TestWebhookHandlersPaymentSucceeded(t *testing.T) {
	provider := &stubPaymentProvider{
		parseWebhookFunc: func(payload []byte, signature string) (payments.WebhookEvent, error) {
			if signature != "sig-1" {
				t.Fatalf("unexpected signature %q", signature)
			}
			return payments.WebhookEvent{
				Type:     "payment_intent.succeeded",
				IntentID: "pi_123",
				Status:   payments.StatusSucceeded,
			}, nil
		},
	}
	var capturedIntent string
	var capturedSucceeded bool
	orders := &stubOrderService{
		paymentEventFunc: func(ctx context.Context, intentID string, succeeded bool) (services.Order, error) {
			capturedIntent = intentID
			capturedSucceeded = succeeded
			order := sampleOrder(domain.UserOwner("user-1"))
			order.Status = domain.OrderStatusPaid
			return order, nil
		},
	}

	router := newWebhookRouter(provider, orders)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "sig-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedIntent != "pi_123" || !capturedSucceeded {
		t.Fatalf("unexpected payment event: %q succeeded=%v", capturedIntent, capturedSucceeded)
	}
}

func TestWebhookHandlersPaymentFailed(t *testing.T) {
	provider := &stubPaymentProvider{
		parseWebhookFunc: func([]byte, string) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{
				Type:     "payment_intent.payment_failed",
				IntentID: "pi_456",
				Status:   payments.StatusFailed,
			}, nil
		},
	}
	var capturedSucceeded = true
	orders := &stubOrderService{
		paymentEventFunc: func(ctx context.Context, intentID string, succeeded bool) (services.Order, error) {
			capturedSucceeded = succeeded
			order := sampleOrder(domain.UserOwner("user-1"))
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}

	router := newWebhookRouter(provider, orders)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedSucceeded {
		t.Fatalf("expected failure event to map to succeeded=false")
	}
}

func TestWebhookHandlersInvalidSignature(t *testing.T) {
	provider := &stubPaymentProvider{
		parseWebhookFunc: func([]byte, string) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{}, payments.ErrInvalidWebhook
		},
	}
	router := newWebhookRouter(provider, &stubOrderService{})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr.Body.Bytes()); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %q", code)
	}
}

func TestWebhookHandlersIgnoresUnhandledEventTypes(t *testing.T) {
	provider := &stubPaymentProvider{
		parseWebhookFunc: func([]byte, string) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{}, nil
		},
	}
	router := newWebhookRouter(provider, &stubOrderService{})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestWebhookHandlersUnknownIntentAcknowledged(t *testing.T) {
	provider := &stubPaymentProvider{
		parseWebhookFunc: func([]byte, string) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{
				Type:     "payment_intent.succeeded",
				IntentID: "pi_unknown",
				Status:   payments.StatusSucceeded,
			}, nil
		},
	}
	orders := &stubOrderService{
		paymentEventFunc: func(context.Context, string, bool) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	router := newWebhookRouter(provider, orders)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for unknown intent, got %d", rr.Code)
	}
}
