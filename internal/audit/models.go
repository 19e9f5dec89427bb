package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - org_id is required for tenancy isolation.
// - actor and ip capture are best-effort; do not block critical flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id" db:"org_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`

	// IPAddress should capture the original client IP when available.
	// Prefer X-Forwarded-For processing at the edge; store the resolved client IP here.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers (optional, depending on the event type).
	NumberID  string `json:"number_id,omitempty" db:"number_id"`
	CallID    string `json:"call_id,omitempty" db:"call_id"`
	MessageID string `json:"message_id,omitempty" db:"message_id"`

	// Number is the external or platform E.164 involved, when relevant.
	Number string `json:"number,omitempty" db:"number"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	// EventTypeInboundRejected records traffic to a number the platform does
	// not recognize (or no longer owns).
	EventTypeInboundRejected EventType = "inbound_rejected"

	// EventTypeConfigError records a stored routing config the resolver could
	// not interpret.
	EventTypeConfigError EventType = "config_error"

	// EventTypeOrphanDetected records a gateway-accepted call or message whose
	// local record failed to persist.
	EventTypeOrphanDetected   EventType = "orphan_detected"
	EventTypeOrphanReconciled EventType = "orphan_reconciled"

	// EventTypeAnomaly records impossible lifecycle transitions, such as a
	// status event arriving for an already-terminal call.
	EventTypeAnomaly EventType = "anomaly"
)
