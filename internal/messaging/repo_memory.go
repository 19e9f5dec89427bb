package messaging

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.

type MemoryRepo struct {
	mu   sync.RWMutex
	rows map[string]Message // id -> row

	// FailCreates makes Create fail while > 0, decrementing each time.
	FailCreates int
	CreateErr   error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[string]Message)}
}

func (r *MemoryRepo) Create(ctx context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreates > 0 {
		r.FailCreates--
		return r.CreateErr
	}
	r.rows[m.ID] = m
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, orgID, id string) (Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.rows[id]
	if !ok || m.OrgID != orgID {
		return Message{}, ErrNotFound
	}
	return m, nil
}

func (r *MemoryRepo) GetByProviderID(ctx context.Context, providerMessageID string) (Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if providerMessageID == "" {
		return Message{}, ErrNotFound
	}
	for _, m := range r.rows {
		if m.ProviderMessageID == providerMessageID {
			return m, nil
		}
	}
	return Message{}, ErrNotFound
}

func (r *MemoryRepo) Update(ctx context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[m.ID]; !ok {
		return ErrNotFound
	}
	r.rows[m.ID] = m
	return nil
}

func (r *MemoryRepo) ListPair(ctx context.Context, orgID, numberA, numberB string, limit, offset int) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := PairKey(numberA, numberB)
	var out []Message
	for _, m := range r.rows {
		if m.OrgID == orgID && PairKey(m.From, m.To) == key {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) Conversations(ctx context.Context, orgID string) ([]Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byPair := make(map[string]*Conversation)
	for _, m := range r.rows {
		if m.OrgID != orgID {
			continue
		}
		key := PairKey(m.From, m.To)
		conv, ok := byPair[key]
		if !ok {
			conv = &Conversation{OrgID: orgID}
			byPair[key] = conv
		}
		conv.TotalCount++
		if m.Direction == DirectionInbound && !m.IsRead() {
			conv.UnreadCount++
		}
		if conv.LastMessage.ID == "" || m.CreatedAt.After(conv.LastMessage.CreatedAt) {
			conv.LastMessage = m
		}
		// The platform side of the pair is the message's own number.
		if m.Direction == DirectionInbound {
			conv.OwnNumber, conv.ExternalNumber = m.To, m.From
		} else {
			conv.OwnNumber, conv.ExternalNumber = m.From, m.To
		}
	}

	out := make([]Conversation, 0, len(byPair))
	for _, conv := range byPair {
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) MarkPairRead(ctx context.Context, orgID, numberA, numberB, userID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := PairKey(numberA, numberB)
	n := 0
	for id, m := range r.rows {
		if m.OrgID != orgID || m.Direction != DirectionInbound || m.IsRead() {
			continue
		}
		if PairKey(m.From, m.To) != key {
			continue
		}
		ts := at
		m.ReadBy = userID
		m.ReadAt = &ts
		m.UpdatedAt = at
		r.rows[id] = m
		n++
	}
	return n, nil
}
