package agents

import (
	"context"
	"database/sql"
	"errors"

	"lead-response/internal/calls"
)

var (
	ErrNotFound        = errors.New("agent setting not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

type Repository interface {
	// FindByAgentID resolves the owner of a provider agent.
	FindByAgentID(ctx context.Context, provider calls.Provider, agentID string) (Setting, error)
	// DefaultFor returns the organization's default agent for provider.
	DefaultFor(ctx context.Context, organizationID string, provider calls.Provider) (Setting, error)
	Upsert(ctx context.Context, s Setting) (Setting, error)
}

type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

const settingColumns = `id, organization_id, provider, agent_id, from_number, phone_number_id, is_default, created_at, updated_at`

func scanSetting(row *sql.Row) (Setting, error) {
	var s Setting
	err := row.Scan(
		&s.ID,
		&s.OrganizationID,
		&s.Provider,
		&s.AgentID,
		&s.FromNumber,
		&s.PhoneNumberID,
		&s.IsDefault,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Setting{}, ErrNotFound
	}
	return s, err
}

func (r *SQLRepo) FindByAgentID(ctx context.Context, provider calls.Provider, agentID string) (Setting, error) {
	if agentID == "" {
		return Setting{}, ErrNotFound
	}
	const q = `SELECT ` + settingColumns + ` FROM agent_settings WHERE provider = $1 AND agent_id = $2`
	return scanSetting(r.db.QueryRowContext(ctx, q, provider, agentID))
}

func (r *SQLRepo) DefaultFor(ctx context.Context, organizationID string, provider calls.Provider) (Setting, error) {
	const q = `
SELECT ` + settingColumns + `
FROM agent_settings
WHERE organization_id = $1 AND provider = $2
ORDER BY is_default DESC, created_at
LIMIT 1`
	return scanSetting(r.db.QueryRowContext(ctx, q, organizationID, provider))
}

func (r *SQLRepo) Upsert(ctx context.Context, s Setting) (Setting, error) {
	if s.ID == "" || s.OrganizationID == "" || s.AgentID == "" || !s.Provider.Valid() {
		return Setting{}, ErrInvalidArgument
	}
	const q = `
INSERT INTO agent_settings (id, organization_id, provider, agent_id, from_number, phone_number_id, is_default, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (provider, agent_id)
DO UPDATE SET organization_id = EXCLUDED.organization_id,
              from_number = EXCLUDED.from_number,
              phone_number_id = EXCLUDED.phone_number_id,
              is_default = EXCLUDED.is_default,
              updated_at = EXCLUDED.updated_at
RETURNING ` + settingColumns

	return scanSetting(r.db.QueryRowContext(ctx, q,
		s.ID,
		s.OrganizationID,
		s.Provider,
		s.AgentID,
		s.FromNumber,
		s.PhoneNumberID,
		s.IsDefault,
		s.CreatedAt.UTC(),
		s.UpdatedAt.UTC(),
	))
}
