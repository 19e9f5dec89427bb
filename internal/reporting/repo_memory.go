package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"cloudcall-platform/internal/calls"
	"cloudcall-platform/internal/messaging"
)

// MemoryRepo is a simple in-memory reporting repository for tests and early
// development. It enforces org isolation on reads.

type MemoryRepo struct {
	mu sync.Mutex

	Calls    []calls.Call
	Messages []messaging.Message
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCalls(ctx context.Context, orgID string, from, to time.Time, numberID string) ([]calls.Call, error) {
	if orgID == "" {
		return nil, errors.New("org_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Call, 0)
	for _, c := range r.Calls {
		if c.OrgID != orgID {
			continue
		}
		if !c.CreatedAt.IsZero() {
			if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
				continue
			}
		}
		if numberID != "" && c.NumberID != numberID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *MemoryRepo) ListMessages(ctx context.Context, orgID string, from, to time.Time, numberID string) ([]messaging.Message, error) {
	if orgID == "" {
		return nil, errors.New("org_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]messaging.Message, 0)
	for _, m := range r.Messages {
		if m.OrgID != orgID {
			continue
		}
		if !m.CreatedAt.IsZero() {
			if m.CreatedAt.Before(from) || !m.CreatedAt.Before(to) {
				continue
			}
		}
		if numberID != "" && m.NumberID != numberID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
