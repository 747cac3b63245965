package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore keeps snapshots in the order_snapshots table. Amounts travel
// as text so NUMERIC values round-trip exactly.
type PostgresStore struct {
	Pool *pgxpool.Pool
	Now  func() time.Time
}

// NewPostgresStore wraps pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

const snapshotColumns = `id::text, owner, remote_order_id, items, subtotal::text, tax::text, shipping::text,
	discount::text, total::text, coupon_code, currency, status, payment_status, payment_ref,
	server_total::text, reconciled_at, created_at, updated_at`

func (s *PostgresStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Save inserts snap, assigning its id and timestamps.
func (s *PostgresStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return errors.New("order: nil snapshot")
	}
	if snap.Owner == "" {
		return errors.New("order: owner is empty")
	}
	items, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.Status == "" {
		snap.Status = StatusPlaced
	}
	now := s.now()
	snap.CreatedAt, snap.UpdatedAt = now, now
	b := snap.Breakdown
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO order_snapshots (id, owner, remote_order_id, items, subtotal, tax, shipping, discount, total,
			coupon_code, currency, status, payment_status, payment_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric,
			$10, $11, $12, $13, $14, $15, $15)`,
		snap.ID, snap.Owner, snap.RemoteOrderID, items,
		b.Subtotal.String(), b.Tax.String(), b.Shipping.String(), b.Discount.String(), b.Total.String(),
		snap.CouponCode, snap.Currency, snap.Status, snap.PaymentStatus, snap.PaymentRef, now)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Get loads one snapshot by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Snapshot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Snapshot{}, ErrNotFound
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM order_snapshots WHERE id = $1`, id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	return snap, err
}

// ListByOwner returns a page of the owner's snapshots, newest first, and the
// owner's total count.
func (s *PostgresStore) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]Snapshot, int, error) {
	var total int
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM order_snapshots WHERE owner = $1`, owner).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count snapshots: %w", err)
	}
	rows, err := s.Pool.Query(ctx, `SELECT `+snapshotColumns+` FROM order_snapshots
		WHERE owner = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, owner, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	out := make([]Snapshot, 0, limit)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list snapshots: %w", err)
	}
	return out, total, nil
}

// UpdateStatus records the outcome of a reconcile.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, u StatusUpdate) error {
	at := u.At
	if at.IsZero() {
		at = s.now()
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE order_snapshots
		SET status = $2, server_total = $3::numeric, reconciled_at = $4, updated_at = $4
		WHERE id = $1`, id, u.Status, u.ServerTotal.String(), at)
	if err != nil {
		return fmt.Errorf("update snapshot status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePayment records a payment processor outcome for the remote order.
func (s *PostgresStore) UpdatePayment(ctx context.Context, remoteOrderID, status, ref string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE order_snapshots
		SET payment_status = $2, payment_ref = COALESCE(NULLIF($3, ''), payment_ref), updated_at = $4
		WHERE remote_order_id = $1`, remoteOrderID, status, ref, s.now())
	if err != nil {
		return fmt.Errorf("update snapshot payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var (
		snap                                         Snapshot
		items                                        []byte
		subtotal, tax, shipping, discount, totalText string
		serverTotal                                  *string
	)
	err := row.Scan(&snap.ID, &snap.Owner, &snap.RemoteOrderID, &items,
		&subtotal, &tax, &shipping, &discount, &totalText,
		&snap.CouponCode, &snap.Currency, &snap.Status, &snap.PaymentStatus, &snap.PaymentRef,
		&serverTotal, &snap.ReconciledAt, &snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		return Snapshot{}, err
	}
	if err := json.Unmarshal(items, &snap.Items); err != nil {
		return Snapshot{}, fmt.Errorf("decode items: %w", err)
	}
	amounts := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&snap.Breakdown.Subtotal, subtotal},
		{&snap.Breakdown.Tax, tax},
		{&snap.Breakdown.Shipping, shipping},
		{&snap.Breakdown.Discount, discount},
		{&snap.Breakdown.Total, totalText},
	}
	for _, a := range amounts {
		if *a.dst, err = decimal.NewFromString(a.src); err != nil {
			return Snapshot{}, fmt.Errorf("decode amount %q: %w", a.src, err)
		}
	}
	if serverTotal != nil {
		v, err := decimal.NewFromString(*serverTotal)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decode server total: %w", err)
		}
		snap.ServerTotal = &v
	}
	return snap, nil
}
