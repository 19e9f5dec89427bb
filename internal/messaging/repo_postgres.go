package messaging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// PostgresRepo persists messages.
//
// Assumed table:
// messages (id, org_id, number_id, provider_message_id, direction,
//   from_number, to_number, body, media_urls, segment_count, status,
//   assigned_user_id, assigned_team_id, contact_id, is_auto_reply,
//   read_by, read_at, created_at, updated_at)
//
// The pair predicate (from_number, to_number) IN ((a,b),(b,a)) appears in
// several queries; an index on LEAST/GREATEST of the two columns serves it.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const messageColumns = `
id, org_id, number_id, provider_message_id, direction, from_number, to_number,
body, media_urls, segment_count, status, assigned_user_id, assigned_team_id,
contact_id, is_auto_reply, read_by, read_at, created_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, m Message) error {
	const q = `
INSERT INTO messages (` + messageColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
`
	media, err := mediaJSON(m.MediaURLs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q,
		m.ID, m.OrgID, nullStr(m.NumberID), nullStr(m.ProviderMessageID), m.Direction,
		m.From, m.To, m.Body, media, m.SegmentCount, m.Status,
		nullStr(m.AssignedUserID), nullStr(m.AssignedTeamID), nullStr(m.ContactID),
		m.IsAutoReply, nullStr(m.ReadBy), m.ReadAt, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) GetByID(ctx context.Context, orgID, id string) (Message, error) {
	const q = `SELECT ` + messageColumns + ` FROM messages WHERE org_id = $1 AND id = $2`
	return scanMessage(r.db.QueryRowContext(ctx, q, orgID, id))
}

func (r *PostgresRepo) GetByProviderID(ctx context.Context, providerMessageID string) (Message, error) {
	if providerMessageID == "" {
		return Message{}, ErrNotFound
	}
	const q = `SELECT ` + messageColumns + ` FROM messages WHERE provider_message_id = $1`
	return scanMessage(r.db.QueryRowContext(ctx, q, providerMessageID))
}

func (r *PostgresRepo) Update(ctx context.Context, m Message) error {
	const q = `
UPDATE messages
SET status = $3, assigned_user_id = $4, assigned_team_id = $5,
    read_by = $6, read_at = $7, updated_at = $8
WHERE org_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q,
		m.OrgID, m.ID, m.Status,
		nullStr(m.AssignedUserID), nullStr(m.AssignedTeamID),
		nullStr(m.ReadBy), m.ReadAt, m.UpdatedAt,
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

func (r *PostgresRepo) ListPair(ctx context.Context, orgID, numberA, numberB string, limit, offset int) ([]Message, error) {
	q := `
SELECT ` + messageColumns + `
FROM messages
WHERE org_id = $1
  AND ((from_number = $2 AND to_number = $3) OR (from_number = $3 AND to_number = $2))
ORDER BY created_at
`
	args := []any{orgID, numberA, numberB}
	if limit > 0 {
		args = append(args, limit)
		q += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		q += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Conversations(ctx context.Context, orgID string) ([]Conversation, error) {
	// One row per pair: counts from an aggregate, the latest message joined
	// back in via DISTINCT ON.
	q := `
WITH pairs AS (
  SELECT LEAST(from_number, to_number) AS low,
         GREATEST(from_number, to_number) AS high,
         COUNT(*) AS total,
         COUNT(*) FILTER (WHERE direction = 'inbound' AND read_at IS NULL) AS unread
  FROM messages
  WHERE org_id = $1
  GROUP BY 1, 2
),
latest AS (
  SELECT DISTINCT ON (LEAST(from_number, to_number), GREATEST(from_number, to_number))
         ` + messageColumns + `
  FROM messages
  WHERE org_id = $1
  ORDER BY LEAST(from_number, to_number), GREATEST(from_number, to_number), created_at DESC
)
SELECT p.total, p.unread, ` + prefixed("l", messageColumns) + `
FROM pairs p
JOIN latest l
  ON LEAST(l.from_number, l.to_number) = p.low
 AND GREATEST(l.from_number, l.to_number) = p.high
ORDER BY l.created_at DESC
`
	rows, err := r.db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var conv Conversation
		var m Message
		var numberID, providerID, assignedUser, assignedTeam, contactID, readBy sql.NullString
		var media []byte
		var readAt sql.NullTime
		err := rows.Scan(
			&conv.TotalCount, &conv.UnreadCount,
			&m.ID, &m.OrgID, &numberID, &providerID, &m.Direction, &m.From, &m.To,
			&m.Body, &media, &m.SegmentCount, &m.Status, &assignedUser, &assignedTeam,
			&contactID, &m.IsAutoReply, &readBy, &readAt, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		m.NumberID = numberID.String
		m.ProviderMessageID = providerID.String
		m.AssignedUserID = assignedUser.String
		m.AssignedTeamID = assignedTeam.String
		m.ContactID = contactID.String
		m.ReadBy = readBy.String
		if err := mediaFromJSON(media, &m.MediaURLs); err != nil {
			return nil, err
		}
		if readAt.Valid {
			t := readAt.Time
			m.ReadAt = &t
		}

		conv.OrgID = orgID
		conv.LastMessage = m
		if m.Direction == DirectionInbound {
			conv.OwnNumber, conv.ExternalNumber = m.To, m.From
		} else {
			conv.OwnNumber, conv.ExternalNumber = m.From, m.To
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) MarkPairRead(ctx context.Context, orgID, numberA, numberB, userID string, at time.Time) (int, error) {
	const q = `
UPDATE messages
SET read_by = $4, read_at = $5, updated_at = $5
WHERE org_id = $1
  AND direction = 'inbound'
  AND read_at IS NULL
  AND ((from_number = $2 AND to_number = $3) OR (from_number = $3 AND to_number = $2))
`
	res, err := r.db.ExecContext(ctx, q, orgID, numberA, numberB, userID, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	var numberID, providerID, assignedUser, assignedTeam, contactID, readBy sql.NullString
	var media []byte
	var readAt sql.NullTime

	err := row.Scan(
		&m.ID, &m.OrgID, &numberID, &providerID, &m.Direction, &m.From, &m.To,
		&m.Body, &media, &m.SegmentCount, &m.Status, &assignedUser, &assignedTeam,
		&contactID, &m.IsAutoReply, &readBy, &readAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}

	m.NumberID = numberID.String
	m.ProviderMessageID = providerID.String
	m.AssignedUserID = assignedUser.String
	m.AssignedTeamID = assignedTeam.String
	m.ContactID = contactID.String
	m.ReadBy = readBy.String
	if err := mediaFromJSON(media, &m.MediaURLs); err != nil {
		return Message{}, err
	}
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	return m, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// media_urls is a JSONB array; empty slices are stored as NULL.
func mediaJSON(urls []string) (any, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	return json.Marshal(urls)
}

func mediaFromJSON(raw []byte, out *[]string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// prefixed qualifies each column in list with an alias for use in joins.
func prefixed(alias, list string) string {
	cols := strings.Split(list, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
