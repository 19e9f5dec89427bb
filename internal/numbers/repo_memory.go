package numbers

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.

type MemoryRepo struct {
	mu   sync.RWMutex
	rows map[string]PhoneNumber // id -> row
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[string]PhoneNumber)}
}

func (r *MemoryRepo) Create(ctx context.Context, n PhoneNumber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[n.ID] = n
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, orgID, id string) (PhoneNumber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.rows[id]
	if !ok || n.OrgID != orgID {
		return PhoneNumber{}, ErrNotFound
	}
	return n, nil
}

func (r *MemoryRepo) GetByNumber(ctx context.Context, number string) (PhoneNumber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.rows {
		if n.Number == number && n.Active {
			return n, nil
		}
	}
	return PhoneNumber{}, ErrNotFound
}

func (r *MemoryRepo) ListByOrg(ctx context.Context, orgID string) ([]PhoneNumber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []PhoneNumber
	for _, n := range r.rows {
		if n.OrgID == orgID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *MemoryRepo) UpdateRouting(ctx context.Context, orgID, id string, cfg RoutingConfig, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok || n.OrgID != orgID {
		return ErrNotFound
	}
	n.Routing = cfg
	n.UpdatedAt = now
	r.rows[id] = n
	return nil
}

func (r *MemoryRepo) UpdateSMSConfig(ctx context.Context, orgID, id string, cfg SMSConfig, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok || n.OrgID != orgID {
		return ErrNotFound
	}
	n.SMS = cfg
	n.UpdatedAt = now
	r.rows[id] = n
	return nil
}

func (r *MemoryRepo) Release(ctx context.Context, orgID, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok || n.OrgID != orgID {
		return ErrNotFound
	}
	released := now
	n.Active = false
	n.ReleasedAt = &released
	n.UpdatedAt = now
	r.rows[id] = n
	return nil
}
