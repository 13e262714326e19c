package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clock         func() time.Time
	Intents       stripePaymentIntentAPI
}

// StripeProvider implements the Provider interface using Stripe PaymentIntents.
type StripeProvider struct {
	intents       stripePaymentIntentAPI
	webhookSecret string
	clock         func() time.Time
	logger        StripeLogger
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents:       intents,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		clock:         func() time.Time { return clock().UTC() },
		logger:        logger,
	}, nil
}

// CreateIntent creates a PaymentIntent for the order total.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil || p.intents == nil {
		return Intent{}, errors.New("stripe: provider not initialised")
	}
	if req.Amount <= 0 {
		return Intent{}, fmt.Errorf("stripe: amount must be positive, got %d", req.Amount)
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return Intent{}, errors.New("stripe: currency is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}

	metadata := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if req.OrderID != "" {
		metadata["orderId"] = req.OrderID
	}
	if req.OrderNumber != "" {
		metadata["orderNumber"] = req.OrderNumber
	}
	if len(metadata) > 0 {
		params.Metadata = metadata
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       req.OrderID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})

	return stripeIntent(intent), nil
}

// LookupIntent fetches the current state of a PaymentIntent.
func (p *StripeProvider) LookupIntent(ctx context.Context, intentID string) (Intent, error) {
	if p == nil || p.intents == nil {
		return Intent{}, errors.New("stripe: provider not initialised")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Intent{}, errors.New("stripe: intent id is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := p.intents.Get(intentID, params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	return stripeIntent(intent), nil
}

// ParseWebhook verifies the Stripe-Signature header and normalises the event.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	if p == nil {
		return WebhookEvent{}, errors.New("stripe: provider not initialised")
	}
	if p.webhookSecret == "" {
		return WebhookEvent{}, errors.New("stripe: webhook secret is not configured")
	}

	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: decode payment intent: %v", ErrInvalidWebhook, err)
		}
		return WebhookEvent{
			Type:     string(event.Type),
			IntentID: intent.ID,
			OrderID:  intent.Metadata["orderId"],
			Status:   mapStripeIntentStatus(intent.Status),
		}, nil
	default:
		// Unhandled event types are acknowledged without action.
		return WebhookEvent{}, nil
	}
}

func stripeIntent(intent *stripe.PaymentIntent) Intent {
	created := time.Time{}
	if intent.Created != 0 {
		created = time.Unix(intent.Created, 0).UTC()
	}
	return Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       mapStripeIntentStatus(intent.Status),
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
		CreatedAt:    created,
	}
}

func mapStripeIntentStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusCancelled
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresCapture:
		return StatusPending
	default:
		return StatusFailed
	}
}
