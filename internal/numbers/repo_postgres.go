package numbers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PostgresRepo persists phone numbers.
//
// Assumed table:
// phone_numbers (id, org_id, number UNIQUE, label, country, number_type,
//   assigned_user_id, assigned_team_id, voice_enabled, sms_enabled,
//   voicemail_enabled, recording_enabled, routing_config JSONB,
//   sms_config JSONB, active, purchased_at, purchased_by, released_at,
//   created_at, updated_at)
//
// Routing and SMS configs are stored as JSONB: the variant shape maps poorly
// onto columns and is always read/written whole.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const numberColumns = `
id, org_id, number, label, country, number_type,
assigned_user_id, assigned_team_id,
voice_enabled, sms_enabled, voicemail_enabled, recording_enabled,
routing_config, sms_config,
active, purchased_at, purchased_by, released_at, created_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, n PhoneNumber) error {
	routingJSON, err := json.Marshal(n.Routing)
	if err != nil {
		return err
	}
	smsJSON, err := json.Marshal(n.SMS)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO phone_numbers (` + numberColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
`
	_, err = r.db.ExecContext(ctx, q,
		n.ID, n.OrgID, n.Number, n.Label, n.Country, n.NumberType,
		nullIfEmpty(n.AssignedUserID), nullIfEmpty(n.AssignedTeamID),
		n.VoiceEnabled, n.SMSEnabled, n.VoicemailEnabled, n.RecordingEnabled,
		routingJSON, smsJSON,
		n.Active, n.PurchasedAt, nullIfEmpty(n.PurchasedBy), n.ReleasedAt, n.CreatedAt, n.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) GetByID(ctx context.Context, orgID, id string) (PhoneNumber, error) {
	const q = `SELECT ` + numberColumns + ` FROM phone_numbers WHERE org_id = $1 AND id = $2`
	return scanNumber(r.db.QueryRowContext(ctx, q, orgID, id))
}

func (r *PostgresRepo) GetByNumber(ctx context.Context, number string) (PhoneNumber, error) {
	const q = `SELECT ` + numberColumns + ` FROM phone_numbers WHERE number = $1 AND active = TRUE`
	return scanNumber(r.db.QueryRowContext(ctx, q, number))
}

func (r *PostgresRepo) ListByOrg(ctx context.Context, orgID string) ([]PhoneNumber, error) {
	const q = `SELECT ` + numberColumns + ` FROM phone_numbers WHERE org_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PhoneNumber
	for rows.Next() {
		n, err := scanNumber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateRouting(ctx context.Context, orgID, id string, cfg RoutingConfig, now time.Time) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	const q = `UPDATE phone_numbers SET routing_config = $3, updated_at = $4 WHERE org_id = $1 AND id = $2`
	return execExpectingRow(ctx, r.db, q, orgID, id, data, now)
}

func (r *PostgresRepo) UpdateSMSConfig(ctx context.Context, orgID, id string, cfg SMSConfig, now time.Time) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	const q = `UPDATE phone_numbers SET sms_config = $3, updated_at = $4 WHERE org_id = $1 AND id = $2`
	return execExpectingRow(ctx, r.db, q, orgID, id, data, now)
}

func (r *PostgresRepo) Release(ctx context.Context, orgID, id string, now time.Time) error {
	const q = `
UPDATE phone_numbers
SET active = FALSE, released_at = $3, updated_at = $3
WHERE org_id = $1 AND id = $2 AND active = TRUE
`
	return execExpectingRow(ctx, r.db, q, orgID, id, now)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNumber(row rowScanner) (PhoneNumber, error) {
	var n PhoneNumber
	var routingJSON, smsJSON []byte
	var assignedUser, assignedTeam, purchasedBy sql.NullString
	var releasedAt sql.NullTime

	err := row.Scan(
		&n.ID, &n.OrgID, &n.Number, &n.Label, &n.Country, &n.NumberType,
		&assignedUser, &assignedTeam,
		&n.VoiceEnabled, &n.SMSEnabled, &n.VoicemailEnabled, &n.RecordingEnabled,
		&routingJSON, &smsJSON,
		&n.Active, &n.PurchasedAt, &purchasedBy, &releasedAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PhoneNumber{}, ErrNotFound
		}
		return PhoneNumber{}, err
	}

	n.AssignedUserID = assignedUser.String
	n.AssignedTeamID = assignedTeam.String
	n.PurchasedBy = purchasedBy.String
	if releasedAt.Valid {
		t := releasedAt.Time
		n.ReleasedAt = &t
	}
	if err := json.Unmarshal(routingJSON, &n.Routing); err != nil {
		return PhoneNumber{}, err
	}
	if err := json.Unmarshal(smsJSON, &n.SMS); err != nil {
		return PhoneNumber{}, err
	}
	return n, nil
}

func execExpectingRow(ctx context.Context, db *sql.DB, q string, args ...any) error {
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
