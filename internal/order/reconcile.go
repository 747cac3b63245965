package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/currency"

	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

// OrderFetcher reads an order from the store API.
type OrderFetcher interface {
	Order(ctx context.Context, token, id string) (storeapi.Order, error)
}

// Reconciler compares a snapshot with the order the store API recorded.
type Reconciler struct {
	Store    Store
	API      OrderFetcher
	Currency currency.Unit
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Reconcile fetches the remote order behind snapshotID, records its status
// and total, and counts a drift when the totals differ by more than one minor
// currency unit.
func (r *Reconciler) Reconcile(ctx context.Context, snapshotID, token string) (Snapshot, error) {
	if r == nil || r.Store == nil || r.API == nil {
		return Snapshot{}, errors.New("order reconciler not configured")
	}
	snap, err := r.Store.Get(ctx, snapshotID)
	if err != nil {
		return Snapshot{}, err
	}
	remote, err := r.API.Order(ctx, token, snap.RemoteOrderID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch order %s: %w", snap.RemoteOrderID, err)
	}
	status := remote.OrderStatus
	if status == "" {
		status = snap.Status
	}
	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now().UTC()
	}
	update := StatusUpdate{Status: status, ServerTotal: remote.TotalPrice, At: now}
	if err := r.Store.UpdateStatus(ctx, snap.ID, update); err != nil {
		return Snapshot{}, err
	}

	tolerance := pricing.FromMinorUnits(1, r.Currency)
	if diff := remote.TotalPrice.Sub(snap.Breakdown.Total).Abs(); diff.GreaterThan(tolerance) {
		r.Logger.Warn().
			Str("snapshot_id", snap.ID).
			Str("order_id", snap.RemoteOrderID).
			Str("client_total", snap.Breakdown.Total.String()).
			Str("server_total", remote.TotalPrice.String()).
			Msg("order_total_drift")
		obs.IncCounter(obs.PricingDriftTotal, "order")
	}

	snap.Status = status
	snap.ServerTotal = &update.ServerTotal
	snap.ReconciledAt = &now
	snap.UpdatedAt = now
	return snap, nil
}
