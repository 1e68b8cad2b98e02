package audit

import (
	"context"
	"database/sql"
)

// SQLRepo writes to audit_events. It has no update or delete path.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, organization_id, type, actor_user_id, actor_role, ip_address, call_id, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.OrganizationID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.IPAddress,
		e.CallID,
		e.Message,
		e.Metadata,
		e.CreatedAt.UTC(),
	)
	return err
}
