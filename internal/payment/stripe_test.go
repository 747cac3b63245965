package payment

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

const testWebhookSecret = "whsec_test"

func newTestStripe(t *testing.T, h http.HandlerFunc) *Stripe {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		MaxNetworkRetries: stripe.Int64(0),
	})
	return NewStripe("sk_test_123", testWebhookSecret, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
}

func TestStripeCreateIntent(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "checkout:o1", r.Header.Get("Idempotency-Key"))
		raw, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(raw))
		assert.NoError(t, err)
		assert.Equal(t, "9200", form.Get("amount"))
		assert.Equal(t, "usd", form.Get("currency"))
		assert.Equal(t, "o1", form.Get("metadata[order_id]"))
		assert.Equal(t, "s1", form.Get("metadata[session_id]"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret","status":"requires_payment_method","amount":9200,"currency":"usd"}`)
	})

	res, err := s.CreateIntent(context.Background(), IntentRequest{
		OrderID:        "o1",
		Amount:         9200,
		Currency:       "USD",
		IdempotencyKey: "checkout:o1",
		Metadata:       map[string]string{"session_id": "s1"},
	})
	require.NoError(t, err)
	require.Equal(t, "stripe", res.Provider)
	require.Equal(t, "pi_1", res.IntentID)
	require.Equal(t, "pi_1_secret", res.ClientSecret)
	require.Equal(t, int64(9200), res.Amount)
}

func TestStripeCreateIntentValidates(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := s.CreateIntent(context.Background(), IntentRequest{Amount: 100})
	require.Error(t, err)
	_, err = s.CreateIntent(context.Background(), IntentRequest{OrderID: "o1"})
	require.Error(t, err)
}

func TestStripeCreateIntentSurfacesAPIError(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, `{"error":{"type":"card_error","message":"Your card was declined."}}`)
	})
	_, err := s.CreateIntent(context.Background(), IntentRequest{OrderID: "o1", Amount: 100})
	require.ErrorContains(t, err, "declined")
}

func signedRequest(t *testing.T, payload string, secret string) (*http.Request, []byte) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: []byte(payload), Secret: secret})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", nil)
	req.Header.Set("Stripe-Signature", signed.Header)
	return req, signed.Payload
}

const succeededEvent = `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","api_version":"2020-08-27","data":{"object":{"id":"pi_1","object":"payment_intent","amount":9200,"metadata":{"order_id":"o1"}}}}`

func TestStripeVerifyWebhook(t *testing.T) {
	s := NewStripe("sk_test_123", testWebhookSecret, nil)

	req, body := signedRequest(t, succeededEvent, testWebhookSecret)
	res, err := s.VerifyWebhook(req, body)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, "evt_1", res.EventID)
	require.Equal(t, StatusSucceeded, res.Status)
	require.Equal(t, "o1", res.OrderID)
	require.Equal(t, "pi_1", res.IntentID)
	require.Equal(t, int64(9200), res.Amount)

	req, body = signedRequest(t, succeededEvent, "whsec_other")
	res, err = s.VerifyWebhook(req, body)
	require.NoError(t, err)
	require.False(t, res.Valid)

	req, body = signedRequest(t, `{"id":"evt_2","object":"event","type":"customer.created","api_version":"2020-08-27","data":{"object":{"id":"cus_1"}}}`, testWebhookSecret)
	res, err = s.VerifyWebhook(req, body)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Empty(t, res.Status)
}
