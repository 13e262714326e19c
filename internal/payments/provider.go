package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the intent was cancelled before capture.
	StatusCancelled Status = "cancelled"
)

// ErrInvalidWebhook is returned when a webhook payload fails signature verification.
var ErrInvalidWebhook = errors.New("payments: invalid webhook payload")

// IntentRequest captures the payload required to start collecting a payment.
// Amount is in the currency's minor units.
type IntentRequest struct {
	OrderID        string
	OrderNumber    string
	Amount         int64
	Currency       string
	CustomerEmail  string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent represents the PSP-side payment attempt handed back to the client.
type Intent struct {
	ID           string
	ClientSecret string
	Status       Status
	Amount       int64
	Currency     string
	CreatedAt    time.Time
}

// WebhookEvent is the normalised form of a PSP webhook notification.
type WebhookEvent struct {
	Type     string
	IntentID string
	OrderID  string
	Status   Status
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	LookupIntent(ctx context.Context, intentID string) (Intent, error)
	// ParseWebhook verifies the signature and normalises the event. Unhandled
	// event types return a WebhookEvent with an empty Type and no error.
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
