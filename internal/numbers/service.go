package numbers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service manages the phone number inventory and its routing configuration.
//
// Tenancy invariant: every operation is scoped by orgID and never crosses it.
//
// Configuration invariant: a RoutingConfig or SMSConfig is validated before it
// is persisted, so webhook-path readers may assume stored configs are shaped
// correctly (they still guard against unknown variants defensively, because
// rows written by older software versions may predate a given check).
type Service struct {
	repo Repository
	// clock and newID are injectable for deterministic tests.
	clock func() time.Time
	newID func() string
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		clock: time.Now,
		newID: uuid.NewString,
	}
}

// PurchaseRequest describes a number being added to an org's inventory.
type PurchaseRequest struct {
	Number     string `json:"number"`
	Label      string `json:"label,omitempty"`
	Country    string `json:"country"`
	NumberType string `json:"number_type"`

	AssignedUserID string `json:"assigned_user_id,omitempty"`
	AssignedTeamID string `json:"assigned_team_id,omitempty"`

	VoiceEnabled     bool `json:"voice_enabled"`
	SMSEnabled       bool `json:"sms_enabled"`
	VoicemailEnabled bool `json:"voicemail_enabled"`
	RecordingEnabled bool `json:"recording_enabled"`

	Routing RoutingConfig `json:"routing"`
	SMS     SMSConfig     `json:"sms"`
}

func (s *Service) Purchase(ctx context.Context, orgID, purchasedBy string, req PurchaseRequest) (PhoneNumber, error) {
	if orgID == "" {
		return PhoneNumber{}, fmt.Errorf("%w: org_id required", ErrInvalidConfig)
	}
	if req.Number == "" {
		return PhoneNumber{}, fmt.Errorf("%w: number required", ErrInvalidConfig)
	}
	if err := req.Routing.Validate(); err != nil {
		return PhoneNumber{}, err
	}
	if err := req.SMS.Validate(); err != nil {
		return PhoneNumber{}, err
	}

	now := s.clock().UTC()
	n := PhoneNumber{
		ID:               s.newID(),
		OrgID:            orgID,
		Number:           req.Number,
		Label:            req.Label,
		Country:          req.Country,
		NumberType:       req.NumberType,
		AssignedUserID:   req.AssignedUserID,
		AssignedTeamID:   req.AssignedTeamID,
		VoiceEnabled:     req.VoiceEnabled,
		SMSEnabled:       req.SMSEnabled,
		VoicemailEnabled: req.VoicemailEnabled,
		RecordingEnabled: req.RecordingEnabled,
		Routing:          req.Routing,
		SMS:              req.SMS,
		Active:           true,
		PurchasedAt:      now,
		PurchasedBy:      purchasedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return PhoneNumber{}, err
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, orgID, id string) (PhoneNumber, error) {
	return s.repo.GetByID(ctx, orgID, id)
}

// Lookup resolves an inbound dialed/texted number to its owning row.
// Released numbers do not match.
func (s *Service) Lookup(ctx context.Context, number string) (PhoneNumber, error) {
	return s.repo.GetByNumber(ctx, number)
}

func (s *Service) List(ctx context.Context, orgID string) ([]PhoneNumber, error) {
	return s.repo.ListByOrg(ctx, orgID)
}

// UpdateRouting replaces the voice routing config wholesale. Partial updates
// are not supported: callers send the complete desired config and it is
// validated as a unit.
func (s *Service) UpdateRouting(ctx context.Context, orgID, id string, cfg RoutingConfig) (PhoneNumber, error) {
	if err := cfg.Validate(); err != nil {
		return PhoneNumber{}, err
	}
	now := s.clock().UTC()
	if err := s.repo.UpdateRouting(ctx, orgID, id, cfg, now); err != nil {
		return PhoneNumber{}, err
	}
	return s.repo.GetByID(ctx, orgID, id)
}

func (s *Service) UpdateSMSConfig(ctx context.Context, orgID, id string, cfg SMSConfig) (PhoneNumber, error) {
	if err := cfg.Validate(); err != nil {
		return PhoneNumber{}, err
	}
	now := s.clock().UTC()
	if err := s.repo.UpdateSMSConfig(ctx, orgID, id, cfg, now); err != nil {
		return PhoneNumber{}, err
	}
	return s.repo.GetByID(ctx, orgID, id)
}

// Release soft-retires a number. The row survives so historical calls and
// messages keep a valid reference; inbound lookups stop matching immediately.
func (s *Service) Release(ctx context.Context, orgID, id string) error {
	now := s.clock().UTC()
	return s.repo.Release(ctx, orgID, id, now)
}
