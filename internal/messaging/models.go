package messaging

import (
	"errors"
	"time"
)

// Message is a tenant-scoped SMS record.
//
// Multi-tenant invariant: OrgID is required on every row.
//
// Unlike calls, message delivery status has no transition graph: providers
// report queued/sent/delivered/failed in whatever order their pipeline emits
// them, and the latest report wins.

type Message struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id" db:"org_id"`

	NumberID string `json:"number_id,omitempty" db:"number_id"`

	ProviderMessageID string `json:"provider_message_id,omitempty" db:"provider_message_id"`

	Direction Direction `json:"direction" db:"direction"`

	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	Body string `json:"body" db:"body"`

	// MediaURLs holds MMS attachment locations, empty for plain SMS.
	MediaURLs []string `json:"media_urls,omitempty" db:"media_urls"`

	SegmentCount int `json:"segment_count,omitempty" db:"segment_count"`

	Status Status `json:"status" db:"status"`

	// Assignment routes the message into a user's or team's inbox.
	AssignedUserID string `json:"assigned_user_id,omitempty" db:"assigned_user_id"`
	AssignedTeamID string `json:"assigned_team_id,omitempty" db:"assigned_team_id"`

	// ContactID is a best-effort match of the external party.
	ContactID string `json:"contact_id,omitempty" db:"contact_id"`

	// IsAutoReply marks outbound messages generated by the auto-responder.
	IsAutoReply bool `json:"is_auto_reply,omitempty" db:"is_auto_reply"`

	// Read tracking applies to inbound messages only.
	ReadBy string     `json:"read_by,omitempty" db:"read_by"`
	ReadAt *time.Time `json:"read_at,omitempty" db:"read_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (m Message) IsRead() bool { return m.ReadAt != nil }

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Status string

const (
	StatusQueued      Status = "queued"
	StatusSending     Status = "sending"
	StatusSent        Status = "sent"
	StatusDelivered   Status = "delivered"
	StatusUndelivered Status = "undelivered"
	StatusFailed      Status = "failed"
	StatusReceived    Status = "received"
)

// StatusFromProvider maps a provider status string. Unknown strings are
// dropped by the caller rather than stored.
func StatusFromProvider(s string) (Status, bool) {
	switch s {
	case "accepted", "queued":
		return StatusQueued, true
	case "sending":
		return StatusSending, true
	case "sent":
		return StatusSent, true
	case "delivered":
		return StatusDelivered, true
	case "undelivered":
		return StatusUndelivered, true
	case "failed":
		return StatusFailed, true
	case "receiving", "received":
		return StatusReceived, true
	}
	return "", false
}

var ErrNotFound = errors.New("messaging: not found")

// Conversation is a derived read-side view: all messages between one platform
// number and one external number, in either direction. It is never persisted.
type Conversation struct {
	OrgID string `json:"org_id"`

	// OwnNumber is the platform side of the pair; ExternalNumber the other.
	OwnNumber      string `json:"own_number"`
	ExternalNumber string `json:"external_number"`

	LastMessage Message `json:"last_message"`
	TotalCount  int     `json:"total_count"`

	// UnreadCount counts inbound, unread messages.
	UnreadCount int `json:"unread_count"`
}

// PairKey returns a direction-independent key for a number pair.
func PairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}
