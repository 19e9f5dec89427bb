package numbers

import (
	"context"
	"time"
)

// Repository is the persistence contract for phone numbers.
//
// GetByNumber is intentionally not org-scoped: webhook traffic identifies the
// tenant by the dialed number, so the number itself is the lookup key.
type Repository interface {
	Create(ctx context.Context, n PhoneNumber) error
	GetByID(ctx context.Context, orgID, id string) (PhoneNumber, error)
	GetByNumber(ctx context.Context, number string) (PhoneNumber, error)
	ListByOrg(ctx context.Context, orgID string) ([]PhoneNumber, error)

	UpdateRouting(ctx context.Context, orgID, id string, cfg RoutingConfig, now time.Time) error
	UpdateSMSConfig(ctx context.Context, orgID, id string, cfg SMSConfig, now time.Time) error

	// Release soft-retires the number (active=false, released_at stamped).
	Release(ctx context.Context, orgID, id string, now time.Time) error
}
