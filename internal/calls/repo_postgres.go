package calls

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
)

// PostgresRepo persists call records.
//
// Assumed table:
// calls (id, org_id, number_id, provider_call_id UNIQUE, direction,
//   from_number, to_number, status, user_id, contact_id, duration_seconds,
//   recording, recording_url, started_at, ended_at, created_at, updated_at)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `
id, org_id, number_id, provider_call_id, direction, from_number, to_number,
status, user_id, contact_id, duration_seconds, recording, recording_url,
started_at, ended_at, created_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, c Call) error {
	const q = `
INSERT INTO calls (` + callColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.OrgID, nullStr(c.NumberID), c.ProviderCallID, c.Direction,
		c.From, c.To, c.Status, nullStr(c.UserID), nullStr(c.ContactID),
		c.DurationSeconds, c.Recording, nullStr(c.RecordingURL),
		c.StartedAt, c.EndedAt, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) GetByID(ctx context.Context, orgID, id string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE org_id = $1 AND id = $2`
	return scanCall(r.db.QueryRowContext(ctx, q, orgID, id))
}

func (r *PostgresRepo) GetByProviderID(ctx context.Context, providerCallID string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE provider_call_id = $1`
	return scanCall(r.db.QueryRowContext(ctx, q, providerCallID))
}

func (r *PostgresRepo) Update(ctx context.Context, c Call) error {
	const q = `
UPDATE calls
SET status = $3, user_id = $4, contact_id = $5, duration_seconds = $6,
    recording_url = $7, ended_at = $8, updated_at = $9
WHERE org_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q,
		c.OrgID, c.ID, c.Status, nullStr(c.UserID), nullStr(c.ContactID),
		c.DurationSeconds, nullStr(c.RecordingURL), c.EndedAt, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, q ListQuery) ([]Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE org_id = $1`
	args := []any{q.OrgID}

	if !q.From.IsZero() {
		args = append(args, q.From)
		query += ` AND started_at >= $` + itoa(len(args))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		query += ` AND started_at < $` + itoa(len(args))
	}
	if q.UserID != "" {
		args = append(args, q.UserID)
		query += ` AND user_id = $` + itoa(len(args))
	}
	query += ` ORDER BY started_at DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += ` LIMIT $` + itoa(len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var c Call
	var numberID, userID, contactID, recordingURL sql.NullString
	var endedAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.OrgID, &numberID, &c.ProviderCallID, &c.Direction,
		&c.From, &c.To, &c.Status, &userID, &contactID,
		&c.DurationSeconds, &c.Recording, &recordingURL,
		&c.StartedAt, &endedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}

	c.NumberID = numberID.String
	c.UserID = userID.String
	c.ContactID = contactID.String
	c.RecordingURL = recordingURL.String
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	return c, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func itoa(n int) string { return strconv.Itoa(n) }
