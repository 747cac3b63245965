package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// ErrNotFound is returned when no snapshot matches.
var ErrNotFound = errors.New("order snapshot not found")

// StatusPlaced is the status of a snapshot before the first reconcile.
const StatusPlaced = "placed"

// Item is one line of a placed order as the storefront priced it.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// Snapshot is the storefront's record of an order it submitted.
type Snapshot struct {
	ID            string            `json:"id"`
	Owner         string            `json:"owner"`
	RemoteOrderID string            `json:"remoteOrderId"`
	Items         []Item            `json:"items"`
	Breakdown     pricing.Breakdown `json:"breakdown"`
	CouponCode    string            `json:"couponCode,omitempty"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"paymentStatus,omitempty"`
	PaymentRef    string            `json:"paymentRef,omitempty"`
	ServerTotal   *decimal.Decimal  `json:"serverTotal,omitempty"`
	ReconciledAt  *time.Time        `json:"reconciledAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// StatusUpdate carries what a reconcile learned from the store API.
type StatusUpdate struct {
	Status      string
	ServerTotal decimal.Decimal
	At          time.Time
}

// Store persists order snapshots.
type Store interface {
	Save(ctx context.Context, s *Snapshot) error
	Get(ctx context.Context, id string) (Snapshot, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]Snapshot, int, error)
	UpdateStatus(ctx context.Context, id string, u StatusUpdate) error
	UpdatePayment(ctx context.Context, remoteOrderID, status, ref string) error
}
