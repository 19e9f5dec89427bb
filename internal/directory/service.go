package directory

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("directory: not found")

// Directory is the identity boundary consumed by routing and lifecycle code.
//
// Implementations must scope every lookup to the caller's org. Callers should
// treat a missing user as a routing condition (unreachable target), not as a
// system failure.
type Directory interface {
	// GetUser returns a user by id within an org.
	GetUser(ctx context.Context, orgID, userID string) (User, error)

	// ListTeamMembers returns the active members of a team.
	// An empty result is valid (team exists but has nobody on shift).
	ListTeamMembers(ctx context.Context, orgID, teamID string) ([]User, error)

	// FindContactByNumber looks up a contact owning the given E.164 number.
	// Returns (Contact{}, false, nil) when no contact matches; absence is not an error.
	FindContactByNumber(ctx context.Context, orgID, number string) (Contact, bool, error)
}
