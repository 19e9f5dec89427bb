package directory

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo reads the identity tables maintained by the directory service.
//
// Assumed tables:
// - users (id, org_id, name, email, status, client_name)
// - team_members (team_id, user_id)
// - contacts (id, org_id, name, company)
// - contact_numbers (contact_id, number)
//
// This repo is strictly read-only by contract.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) GetUser(ctx context.Context, orgID, userID string) (User, error) {
	const q = `
SELECT id, org_id, name, email, status, client_name
FROM users
WHERE org_id = $1 AND id = $2
`
	var u User
	if err := r.db.QueryRowContext(ctx, q, orgID, userID).Scan(
		&u.ID,
		&u.OrgID,
		&u.Name,
		&u.Email,
		&u.Status,
		&u.ClientName,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}

	teamIDs, err := r.listUserTeams(ctx, userID)
	if err != nil {
		return User{}, err
	}
	u.TeamIDs = teamIDs
	return u, nil
}

func (r *PostgresRepo) ListTeamMembers(ctx context.Context, orgID, teamID string) ([]User, error) {
	// Stable ordering matters: rotation indexes map onto this slice.
	const q = `
SELECT u.id, u.org_id, u.name, u.email, u.status, u.client_name
FROM users u
JOIN team_members tm ON tm.user_id = u.id
WHERE u.org_id = $1 AND tm.team_id = $2 AND u.status = 'active'
ORDER BY u.id
`
	rows, err := r.db.QueryContext(ctx, q, orgID, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.OrgID, &u.Name, &u.Email, &u.Status, &u.ClientName); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) FindContactByNumber(ctx context.Context, orgID, number string) (Contact, bool, error) {
	const q = `
SELECT c.id, c.org_id, c.name, c.company
FROM contacts c
JOIN contact_numbers cn ON cn.contact_id = c.id
WHERE c.org_id = $1 AND cn.number = $2
LIMIT 1
`
	var c Contact
	if err := r.db.QueryRowContext(ctx, q, orgID, number).Scan(&c.ID, &c.OrgID, &c.Name, &c.Company); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, false, nil
		}
		return Contact{}, false, err
	}
	return c, true, nil
}

func (r *PostgresRepo) listUserTeams(ctx context.Context, userID string) ([]string, error) {
	const q = `SELECT team_id FROM team_members WHERE user_id = $1 ORDER BY team_id`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
