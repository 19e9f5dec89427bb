package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to the audit_events table. There are deliberately no
// update or delete statements in this file.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events
  (id, org_id, type, actor_user_id, ip_address, number_id, call_id, message_id, number, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.OrgID, e.Type, e.ActorUserID, e.IPAddress,
		e.NumberID, e.CallID, e.MessageID, e.Number, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
