package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentAPI struct {
	newFunc func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getFunc func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if s.newFunc == nil {
		return nil, errors.New("unexpected New call")
	}
	return s.newFunc(params)
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if s.getFunc == nil {
		return nil, errors.New("unexpected Get call")
	}
	return s.getFunc(id, params)
}

func TestStripeProviderCreateIntent(t *testing.T) {
	var captured *stripe.PaymentIntentParams
	stub := &stubIntentAPI{
		newFunc: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			captured = params
			return &stripe.PaymentIntent{
				ID:           "pi_123",
				ClientSecret: "pi_123_secret",
				Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
				Amount:       2900,
				Currency:     stripe.CurrencyEUR,
				Created:      time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC).Unix(),
			}, nil
		},
	}

	provider, err := NewStripeProvider(StripeProviderConfig{Intents: stub})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	intent, err := provider.CreateIntent(context.Background(), IntentRequest{
		OrderID:        "ord_1",
		OrderNumber:    "SL-2025-000042",
		Amount:         2900,
		Currency:       "EUR",
		CustomerEmail:  "shopper@example.com",
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}

	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if intent.Status != StatusPending {
		t.Fatalf("status = %s, want pending", intent.Status)
	}
	if captured == nil {
		t.Fatal("expected params to be captured")
	}
	if got := *captured.Amount; got != 2900 {
		t.Fatalf("amount = %d, want 2900", got)
	}
	if got := *captured.Currency; got != "eur" {
		t.Fatalf("currency = %q, want eur", got)
	}
	if captured.Metadata["orderId"] != "ord_1" {
		t.Fatalf("metadata orderId = %q", captured.Metadata["orderId"])
	}
	if captured.Metadata["orderNumber"] != "SL-2025-000042" {
		t.Fatalf("metadata orderNumber = %q", captured.Metadata["orderNumber"])
	}
}

func TestStripeProviderCreateIntentRejectsBadInput(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{Intents: &stubIntentAPI{}})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	if _, err := provider.CreateIntent(context.Background(), IntentRequest{Amount: 0, Currency: "eur"}); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, err := provider.CreateIntent(context.Background(), IntentRequest{Amount: 100}); err == nil {
		t.Fatal("expected error for missing currency")
	}
}

func TestMapStripeIntentStatus(t *testing.T) {
	cases := map[stripe.PaymentIntentStatus]Status{
		stripe.PaymentIntentStatusSucceeded:             StatusSucceeded,
		stripe.PaymentIntentStatusCanceled:              StatusCancelled,
		stripe.PaymentIntentStatusProcessing:            StatusPending,
		stripe.PaymentIntentStatusRequiresAction:        StatusPending,
		stripe.PaymentIntentStatusRequiresPaymentMethod: StatusPending,
	}
	for input, want := range cases {
		if got := mapStripeIntentStatus(input); got != want {
			t.Fatalf("mapStripeIntentStatus(%s) = %s, want %s", input, got, want)
		}
	}
}

func TestParseWebhookRequiresSecret(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{Intents: &stubIntentAPI{}})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	if _, err := provider.ParseWebhook([]byte("{}"), "sig"); err == nil {
		t.Fatal("expected error when webhook secret is missing")
	}
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		Intents:       &stubIntentAPI{},
		WebhookSecret: "whsec_test",
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	if _, err := provider.ParseWebhook([]byte(`{"type":"payment_intent.succeeded"}`), "t=1,v1=bad"); !errors.Is(err, ErrInvalidWebhook) {
		t.Fatalf("expected ErrInvalidWebhook, got %v", err)
	}
}
