package directory

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Directory useful for tests and local bring-up.
// It is not intended for production use.

type MemoryRepo struct {
	mu       sync.RWMutex
	users    map[string]User // user id -> user
	contacts []Contact
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: make(map[string]User)}
}

func (r *MemoryRepo) PutUser(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *MemoryRepo) PutContact(c Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts = append(r.contacts, c)
}

func (r *MemoryRepo) GetUser(ctx context.Context, orgID, userID string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok || u.OrgID != orgID {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryRepo) ListTeamMembers(ctx context.Context, orgID, teamID string) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []User
	for _, u := range r.users {
		if u.OrgID == orgID && u.IsActive() && u.InTeam(teamID) {
			out = append(out, u)
		}
	}
	// Stable ordering matters: rotation indexes map onto this slice.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) FindContactByNumber(ctx context.Context, orgID, number string) (Contact, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.contacts {
		if c.OrgID != orgID {
			continue
		}
		for _, n := range c.PhoneNumbers {
			if n == number {
				return c, true, nil
			}
		}
	}
	return Contact{}, false, nil
}
