package calls

import (
	"context"
	"time"
)

// Repository is the persistence contract for call records.
//
// GetByProviderID is not org-scoped: webhook status events identify a call by
// the provider's id only.
type Repository interface {
	Create(ctx context.Context, c Call) error
	GetByID(ctx context.Context, orgID, id string) (Call, error)
	GetByProviderID(ctx context.Context, providerCallID string) (Call, error)
	Update(ctx context.Context, c Call) error

	List(ctx context.Context, q ListQuery) ([]Call, error)
}

type ListQuery struct {
	OrgID string

	// From/To bound StartedAt; zero values mean unbounded.
	From time.Time
	To   time.Time

	// UserID filters to calls involving one user when set.
	UserID string

	Limit  int
	Offset int
}

// Orphan is a gateway-accepted call whose local record failed to persist.
// Orphans are queued, never dropped; the reconciler rebuilds the Call row
// from the provider's status stream.
type Orphan struct {
	ProviderCallID string    `json:"provider_call_id"`
	OrgID          string    `json:"org_id"`
	NumberID       string    `json:"number_id"`
	UserID         string    `json:"user_id,omitempty"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Direction      Direction `json:"direction"`
	QueuedAt       time.Time `json:"queued_at"`
}

type OrphanQueue interface {
	Enqueue(ctx context.Context, o Orphan) error
	// DequeueBatch removes and returns up to n orphans.
	DequeueBatch(ctx context.Context, n int) ([]Orphan, error)
}
