package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps snapshots in process. It backs deployments without a
// database and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Snapshot
	Now  func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Snapshot)}
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *MemoryStore) Save(_ context.Context, snap *Snapshot) error {
	if snap == nil {
		return errors.New("order: nil snapshot")
	}
	if snap.Owner == "" {
		return errors.New("order: owner is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.RemoteOrderID == snap.RemoteOrderID {
			return errors.New("order: duplicate remote order id")
		}
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.Status == "" {
		snap.Status = StatusPlaced
	}
	now := m.now()
	snap.CreatedAt, snap.UpdatedAt = now, now
	m.byID[snap.ID] = *snap
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.byID[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (m *MemoryStore) ListByOwner(_ context.Context, owner string, limit, offset int) ([]Snapshot, int, error) {
	m.mu.RLock()
	matched := make([]Snapshot, 0)
	for _, snap := range m.byID {
		if snap.Owner == owner {
			matched = append(matched, snap)
		}
	}
	m.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if offset >= total {
		return []Snapshot{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, u StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	at := u.At
	if at.IsZero() {
		at = m.now()
	}
	total := u.ServerTotal
	snap.Status = u.Status
	snap.ServerTotal = &total
	snap.ReconciledAt = &at
	snap.UpdatedAt = at
	m.byID[id] = snap
	return nil
}

func (m *MemoryStore) UpdatePayment(_ context.Context, remoteOrderID, status, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, snap := range m.byID {
		if snap.RemoteOrderID != remoteOrderID {
			continue
		}
		snap.PaymentStatus = status
		if ref != "" {
			snap.PaymentRef = ref
		}
		snap.UpdatedAt = m.now()
		m.byID[id] = snap
		return nil
	}
	return ErrNotFound
}
