package payment

import (
	"context"
	"net/http"
)

// Payment statuses recorded on order snapshots.
const (
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// IntentRequest captures the information required to open a payment intent with a provider.
type IntentRequest struct {
	OrderID        string
	Amount         int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// IntentResponse is what the storefront hands back to the client to confirm payment.
type IntentResponse struct {
	Provider     string `json:"provider"`
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// WebhookVerifyResult contains the normalised data extracted from a webhook notification after signature verification.
// Status is empty for events the storefront does not act on.
type WebhookVerifyResult struct {
	Valid     bool
	EventID   string
	EventType string
	OrderID   string
	IntentID  string
	Amount    int64
	Status    string
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error)
}
