package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

// Stripe implements Provider on Stripe PaymentIntents.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

// NewStripe builds a Stripe provider. backends may be nil to use the
// default Stripe endpoints.
func NewStripe(secretKey, webhookSecret string, backends *stripe.Backends) *Stripe {
	return &Stripe{api: client.New(secretKey, backends), webhookSecret: webhookSecret}
}

func (s *Stripe) Name() string { return "stripe" }

// CreateIntent opens a PaymentIntent for req.Amount minor units. The order id
// travels in metadata so webhooks can find the order again.
func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return IntentResponse{}, errors.New("order id is required")
	}
	if req.Amount <= 0 {
		return IntentResponse{}, fmt.Errorf("amount must be positive, got %d", req.Amount)
	}
	cur := strings.ToLower(req.Currency)
	if cur == "" {
		cur = string(stripe.CurrencyUSD)
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(cur),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return IntentResponse{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return IntentResponse{
		Provider:     s.Name(),
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// VerifyWebhook checks the Stripe-Signature header and extracts the payment
// intent outcome.
func (s *Stripe) VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error) {
	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return WebhookVerifyResult{Valid: false}, nil
	}
	result := WebhookVerifyResult{Valid: true, EventID: event.ID, EventType: string(event.Type)}
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		result.Status = StatusSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		result.Status = StatusFailed
	case stripe.EventTypePaymentIntentCanceled:
		result.Status = StatusCanceled
	case stripe.EventTypePaymentIntentProcessing:
		result.Status = StatusProcessing
	default:
		return result, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return WebhookVerifyResult{}, fmt.Errorf("decode payment intent: %w", err)
	}
	result.IntentID = pi.ID
	result.Amount = pi.Amount
	result.OrderID = pi.Metadata["order_id"]
	return result, nil
}
