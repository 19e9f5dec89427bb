package directory

// The directory is a read-only boundary: the routing core looks up users,
// teams, and contacts but never mutates them. Writes belong to an identity
// service outside this codebase.

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

type User struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id" db:"org_id"`

	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`

	Status  UserStatus `json:"status" db:"status"`
	TeamIDs []string   `json:"team_ids"`

	// ClientName is the softphone client identity dialed to reach this user.
	ClientName string `json:"client_name" db:"client_name"`
}

func (u User) IsActive() bool { return u.Status == UserStatusActive }

func (u User) InTeam(teamID string) bool {
	for _, id := range u.TeamIDs {
		if id == teamID {
			return true
		}
	}
	return false
}

type Team struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id" db:"org_id"`
	Name  string `json:"name" db:"name"`
}

type Contact struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id" db:"org_id"`

	Name    string `json:"name" db:"name"`
	Company string `json:"company,omitempty" db:"company"`

	// PhoneNumbers are E.164 strings this contact is reachable at.
	PhoneNumbers []string `json:"phone_numbers"`
}
