package reporting

import (
	"context"
	"database/sql"
	"time"

	"cloudcall-platform/internal/calls"
	"cloudcall-platform/internal/messaging"
)

// PostgresRepo reads the call and message tables owned by the lifecycle
// services. Reporting only needs the columns the aggregations touch.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) ListCalls(ctx context.Context, orgID string, from, to time.Time, numberID string) ([]calls.Call, error) {
	q := `
SELECT id, org_id, number_id, direction, status, duration_seconds, created_at
FROM calls
WHERE org_id = $1 AND created_at >= $2 AND created_at < $3`
	args := []any{orgID, from, to}
	if numberID != "" {
		q += ` AND number_id = $4`
		args = append(args, numberID)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.Call
	for rows.Next() {
		var c calls.Call
		var numID sql.NullString
		if err := rows.Scan(&c.ID, &c.OrgID, &numID, &c.Direction, &c.Status, &c.DurationSeconds, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.NumberID = numID.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListMessages(ctx context.Context, orgID string, from, to time.Time, numberID string) ([]messaging.Message, error) {
	q := `
SELECT id, org_id, number_id, direction, status, segment_count, is_auto_reply, created_at
FROM messages
WHERE org_id = $1 AND created_at >= $2 AND created_at < $3`
	args := []any{orgID, from, to}
	if numberID != "" {
		q += ` AND number_id = $4`
		args = append(args, numberID)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []messaging.Message
	for rows.Next() {
		var m messaging.Message
		var numID sql.NullString
		if err := rows.Scan(&m.ID, &m.OrgID, &numID, &m.Direction, &m.Status, &m.SegmentCount, &m.IsAutoReply, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.NumberID = numID.String
		out = append(out, m)
	}
	return out, rows.Err()
}
