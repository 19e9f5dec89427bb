package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.OrgID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogInboundRejected records traffic addressed to an unregistered number.
// The org is unknown in that case, so events land under the platform org.
func (s *Service) LogInboundRejected(ctx context.Context, orgID, ip, number, from, kind string) error {
	if orgID == "" {
		orgID = PlatformOrgID
	}
	return s.Append(ctx, Event{
		OrgID:     orgID,
		Type:      EventTypeInboundRejected,
		IPAddress: ip,
		Number:    number,
		Message:   kind + " to unregistered number from " + from,
	})
}

// LogConfigError records a stored config the resolver rejected.
func (s *Service) LogConfigError(ctx context.Context, orgID, numberID, detail string) error {
	return s.Append(ctx, Event{
		OrgID:    orgID,
		Type:     EventTypeConfigError,
		NumberID: numberID,
		Message:  detail,
	})
}

// LogAnomaly records an impossible lifecycle event.
func (s *Service) LogAnomaly(ctx context.Context, orgID, callID, detail string) error {
	return s.Append(ctx, Event{
		OrgID:   orgID,
		Type:    EventTypeAnomaly,
		CallID:  callID,
		Message: detail,
	})
}

// PlatformOrgID groups events that cannot be attributed to a tenant.
const PlatformOrgID = "platform"
