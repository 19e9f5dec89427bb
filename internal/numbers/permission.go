package numbers

import "cloudcall-platform/internal/directory"

// CanUseNumber is the permission gate: may this user place calls or send
// messages from this number. Pure predicate, no lookups.
//
// A user may operate a number when any of the following holds:
//  1. the number is assigned directly to the user
//  2. the number is assigned to a team the user belongs to
//  3. the number is unassigned and belongs to the user's org
func CanUseNumber(u directory.User, n PhoneNumber) bool {
	if n.AssignedUserID != "" && n.AssignedUserID == u.ID {
		return true
	}
	if n.AssignedTeamID != "" && u.InTeam(n.AssignedTeamID) {
		return true
	}
	if n.AssignedUserID == "" && n.AssignedTeamID == "" && n.OrgID == u.OrgID {
		return true
	}
	return false
}
