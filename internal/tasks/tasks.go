// Package tasks defines the background jobs run by the worker.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/coupon"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/order"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

const (
	TypeOrderReconcile = "order:reconcile"
	TypeCouponsRefresh = "coupons:refresh"
)

// ReconcilePayload identifies the snapshot to reconcile.
type ReconcilePayload struct {
	SnapshotID string `json:"snapshot_id"`
}

// NewReconcileTask builds an order:reconcile task.
func NewReconcileTask(snapshotID string) (*asynq.Task, error) {
	if snapshotID == "" {
		return nil, errors.New("tasks: snapshot id is required")
	}
	payload, err := json.Marshal(ReconcilePayload{SnapshotID: snapshotID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOrderReconcile, payload), nil
}

// NewCouponsRefreshTask builds a coupons:refresh task.
func NewCouponsRefreshTask() *asynq.Task {
	return asynq.NewTask(TypeCouponsRefresh, nil)
}

// TaskEnqueuer is the subset of *asynq.Client used by Enqueuer.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer schedules tasks on the asynq queue.
type Enqueuer struct {
	Client         TaskEnqueuer
	ReconcileDelay time.Duration
	MaxRetry       int
}

// EnqueueReconcile schedules a delayed reconcile of snapshotID. Enqueuing the
// same snapshot twice is a no-op.
func (e Enqueuer) EnqueueReconcile(ctx context.Context, snapshotID string) error {
	if e.Client == nil {
		return errors.New("tasks: client not configured")
	}
	task, err := NewReconcileTask(snapshotID)
	if err != nil {
		return err
	}
	maxRetry := e.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 5
	}
	_, err = e.Client.EnqueueContext(ctx, task,
		asynq.TaskID("reconcile:"+snapshotID),
		asynq.MaxRetry(maxRetry),
		asynq.ProcessIn(e.ReconcileDelay),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue reconcile: %w", err)
	}
	return nil
}

// Reconciler is satisfied by *order.Reconciler.
type Reconciler interface {
	Reconcile(ctx context.Context, snapshotID, token string) (order.Snapshot, error)
}

// CouponRefresher is satisfied by *coupon.Service.
type CouponRefresher interface {
	RefreshAvailable(ctx context.Context) ([]coupon.Coupon, error)
}

// Handlers processes storefront tasks.
type Handlers struct {
	Orders       Reconciler
	Coupons      CouponRefresher
	ServiceToken string
	Logger       zerolog.Logger
}

// Register mounts every handler on mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeOrderReconcile, h.HandleReconcile)
	mux.HandleFunc(TypeCouponsRefresh, h.HandleCouponsRefresh)
}

// HandleReconcile reconciles one order snapshot. Missing snapshots and store
// API refusals are not retried.
func (h *Handlers) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	var p ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		obs.IncCounter(obs.TaskTotal, TypeOrderReconcile, "invalid")
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if h.Orders == nil {
		return fmt.Errorf("reconciler not configured: %w", asynq.SkipRetry)
	}
	snap, err := h.Orders.Reconcile(ctx, p.SnapshotID, h.ServiceToken)
	if err != nil {
		if permanent(err) {
			obs.IncCounter(obs.TaskTotal, TypeOrderReconcile, "skipped")
			h.Logger.Warn().Err(err).Str("snapshot_id", p.SnapshotID).Msg("reconcile_skipped")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		obs.IncCounter(obs.TaskTotal, TypeOrderReconcile, "retry")
		return err
	}
	obs.IncCounter(obs.TaskTotal, TypeOrderReconcile, "ok")
	h.Logger.Info().
		Str("snapshot_id", snap.ID).
		Str("status", snap.Status).
		Msg("order_reconciled")
	return nil
}

// HandleCouponsRefresh reloads the available coupon cache.
func (h *Handlers) HandleCouponsRefresh(ctx context.Context, _ *asynq.Task) error {
	if h.Coupons == nil {
		return fmt.Errorf("coupon service not configured: %w", asynq.SkipRetry)
	}
	list, err := h.Coupons.RefreshAvailable(ctx)
	if err != nil {
		obs.IncCounter(obs.TaskTotal, TypeCouponsRefresh, "error")
		return err
	}
	obs.IncCounter(obs.TaskTotal, TypeCouponsRefresh, "ok")
	h.Logger.Debug().Int("count", len(list)).Msg("coupons_refreshed")
	return nil
}

func permanent(err error) bool {
	if errors.Is(err, order.ErrNotFound) {
		return true
	}
	status := storeapi.StatusOf(err)
	return status >= 400 && status < 500 && status != 429
}
