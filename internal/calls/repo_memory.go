package calls

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.

type MemoryRepo struct {
	mu   sync.RWMutex
	rows map[string]Call // id -> row

	// FailCreates makes Create fail while > 0, decrementing each time.
	// Used to exercise the orphan path.
	FailCreates int
	CreateErr   error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[string]Call)}
}

func (r *MemoryRepo) Create(ctx context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreates > 0 {
		r.FailCreates--
		return r.CreateErr
	}
	r.rows[c.ID] = c
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, orgID, id string) (Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.rows[id]
	if !ok || c.OrgID != orgID {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) GetByProviderID(ctx context.Context, providerCallID string) (Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.rows {
		if c.ProviderCallID == providerCallID {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (r *MemoryRepo) Update(ctx context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[c.ID]; !ok {
		return ErrNotFound
	}
	r.rows[c.ID] = c
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, q ListQuery) ([]Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Call
	for _, c := range r.rows {
		if c.OrgID != q.OrgID {
			continue
		}
		if !q.From.IsZero() && c.StartedAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !c.StartedAt.Before(q.To) {
			continue
		}
		if q.UserID != "" && c.UserID != q.UserID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

// MemoryOrphanQueue is an in-process OrphanQueue for tests and single-node use.
type MemoryOrphanQueue struct {
	mu      sync.Mutex
	orphans []Orphan
}

func NewMemoryOrphanQueue() *MemoryOrphanQueue { return &MemoryOrphanQueue{} }

func (q *MemoryOrphanQueue) Enqueue(ctx context.Context, o Orphan) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.orphans = append(q.orphans, o)
	return nil
}

func (q *MemoryOrphanQueue) DequeueBatch(ctx context.Context, n int) ([]Orphan, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.orphans) == 0 {
		return nil, nil
	}
	if n > len(q.orphans) {
		n = len(q.orphans)
	}
	out := make([]Orphan, n)
	copy(out, q.orphans[:n])
	q.orphans = q.orphans[n:]
	return out, nil
}

// Len reports queued orphans, for test assertions.
func (q *MemoryOrphanQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.orphans)
}
