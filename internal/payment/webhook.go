package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/order"
)

const maxWebhookBody = 64 << 10

// PaymentRecorder stores a payment outcome against the remote order id.
type PaymentRecorder interface {
	UpdatePayment(ctx context.Context, remoteOrderID, status, ref string) error
}

// Webhook handles payment provider callbacks, including signature verification and replay protection.
type Webhook struct {
	Provider  Provider
	Orders    PaymentRecorder
	Replay    *redis.Client
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

// Handle processes a webhook callback from the configured provider.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil || h.Orders == nil {
		common.JSONError(w, http.StatusNotFound, "PAYMENT_NOT_CONFIGURED", "payments are disabled", nil)
		return
	}
	provider := h.Provider.Name()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		obs.IncCounter(obs.PaymentWebhookTotal, provider, "invalid")
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	result, err := h.Provider.VerifyWebhook(r, body)
	if err != nil {
		obs.IncCounter(obs.PaymentWebhookTotal, provider, "invalid")
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if !result.Valid {
		obs.IncCounter(obs.PaymentWebhookTotal, provider, "bad_signature")
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	if h.Replay != nil && h.ReplayTTL > 0 && result.EventID != "" {
		ok, err := h.Replay.SetNX(r.Context(), "wh:"+provider+":"+result.EventID, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "unable to record webhook", nil)
			return
		}
		if !ok {
			obs.IncCounter(obs.PaymentWebhookTotal, provider, "duplicate")
			common.Data(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
			return
		}
	}
	if result.Status == "" || result.OrderID == "" {
		obs.IncCounter(obs.PaymentWebhookTotal, provider, "ignored")
		common.Data(w, http.StatusOK, map[string]any{"received": true})
		return
	}
	logger := obs.LoggerFrom(r.Context(), h.Logger)
	err = h.Orders.UpdatePayment(r.Context(), result.OrderID, result.Status, result.IntentID)
	switch {
	case errors.Is(err, order.ErrNotFound):
		logger.Warn().Str("order_id", result.OrderID).Str("event", result.EventType).Msg("payment_webhook_unknown_order")
		obs.IncCounter(obs.PaymentWebhookTotal, provider, "unknown_order")
	case err != nil:
		if h.Replay != nil && result.EventID != "" {
			_ = h.Replay.Del(r.Context(), "wh:"+provider+":"+result.EventID).Err()
		}
		obs.IncCounter(obs.PaymentWebhookTotal, provider, "error")
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_UPDATE_ERROR", "unable to record payment", nil)
		return
	default:
		logger.Info().Str("order_id", result.OrderID).Str("status", result.Status).Msg("payment_recorded")
		obs.IncCounter(obs.PaymentWebhookTotal, provider, result.Status)
	}
	common.Data(w, http.StatusOK, map[string]any{"received": true})
}
