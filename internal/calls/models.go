package calls

import (
	"errors"
	"time"
)

// Call is a tenant-scoped phone call record.
//
// Multi-tenant invariant: OrgID is required on every row.
//
// Provider-specific identifiers live in ProviderCallID; the core model stays
// provider-agnostic.

type Call struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id" db:"org_id"`

	// NumberID is the platform number this call ran through.
	NumberID string `json:"number_id,omitempty" db:"number_id"`

	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`

	Direction Direction `json:"direction" db:"direction"`

	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	Status Status `json:"status" db:"status"`

	// UserID is the initiating user for outbound calls, or the assigned user
	// once an inbound call is answered.
	UserID string `json:"user_id,omitempty" db:"user_id"`

	// ContactID is a best-effort match of the external party.
	ContactID string `json:"contact_id,omitempty" db:"contact_id"`

	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	// Recording is whether recording was requested when the call was placed
	// or answered; fixed at creation.
	Recording bool `json:"recording" db:"recording"`

	// RecordingURL points at the captured audio. Voicemail callbacks store it
	// directly; for recorded completed calls without one it is derived on read.
	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRejected   Status = "rejected"
)

var (
	ErrNotFound = errors.New("calls: not found")
	// ErrAlreadyTerminal is returned when a caller asks for a state change on
	// a call that has already reached a terminal status.
	ErrAlreadyTerminal = errors.New("calls: call already terminal")
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRejected:
		return true
	}
	return false
}

// transitions is the forward edge set of the lifecycle graph. failed and
// rejected are reachable from every non-terminal state and therefore not
// listed here.
var transitions = map[Status][]Status{
	StatusInitiated:  {StatusRinging, StatusInProgress, StatusCompleted},
	StatusRinging:    {StatusInProgress, StatusCompleted},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Same-status "transitions" are not legal steps; callers treat a repeated
// terminal status as an idempotent no-op before consulting this table.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed || to == StatusRejected {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusFromProvider maps a provider status string onto the internal
// lifecycle. Provider vocabularies are wider than ours; everything that means
// "the call ended without completing" folds into failed.
func StatusFromProvider(s string) (Status, bool) {
	switch s {
	case "queued", "initiated":
		return StatusInitiated, true
	case "ringing":
		return StatusRinging, true
	case "answered", "in-progress", "in_progress":
		return StatusInProgress, true
	case "completed":
		return StatusCompleted, true
	case "busy", "no-answer", "failed", "canceled":
		return StatusFailed, true
	}
	return "", false
}
