package messaging

import (
	"context"
	"time"
)

// Repository is the persistence contract for messages.
//
// Conversations and MarkPairRead operate on the unordered number pair: a
// conversation is a view over messages, not a stored entity.
type Repository interface {
	Create(ctx context.Context, m Message) error
	GetByID(ctx context.Context, orgID, id string) (Message, error)
	GetByProviderID(ctx context.Context, providerMessageID string) (Message, error)
	Update(ctx context.Context, m Message) error

	// ListPair returns the chronological page of messages between two numbers.
	ListPair(ctx context.Context, orgID, numberA, numberB string, limit, offset int) ([]Message, error)

	// Conversations groups an org's messages by number pair.
	Conversations(ctx context.Context, orgID string) ([]Conversation, error)

	// MarkPairRead stamps every unread inbound message in the pair and
	// returns how many rows it touched.
	MarkPairRead(ctx context.Context, orgID, numberA, numberB, userID string, at time.Time) (int, error)
}
