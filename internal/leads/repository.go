package leads

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("lead not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

type Repository interface {
	Create(ctx context.Context, l Lead) (Lead, error)
	Get(ctx context.Context, id string) (Lead, error)
	// FindByPhone returns the newest lead in the organization whose phone matches key.
	// normalized selects the phone_normalized column instead of the raw one.
	FindByPhone(ctx context.Context, organizationID, key string, normalized bool) (Lead, error)
	Update(ctx context.Context, id string, p Patch) (Lead, error)
	// AdvanceStatus moves the lead to next only when its current status precedes next.
	// advanced=false means the lead was already at or beyond next. A non-empty
	// organizationID restricts the update to that tenant's lead; a lead owned by
	// another tenant reports ErrNotFound.
	AdvanceStatus(ctx context.Context, organizationID, id string, next Status, now time.Time) (advanced bool, err error)
}

type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

const leadColumns = `id, organization_id, campaign_id, name, email, phone, phone_normalized, source, lead_status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(s rowScanner) (Lead, error) {
	var (
		l        Lead
		campaign sql.NullString
	)
	if err := s.Scan(
		&l.ID,
		&l.OrganizationID,
		&campaign,
		&l.Name,
		&l.Email,
		&l.Phone,
		&l.PhoneNormalized,
		&l.Source,
		&l.Status,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	l.CampaignID = campaign.String
	return l, nil
}

func (r *SQLRepo) Create(ctx context.Context, l Lead) (Lead, error) {
	if l.ID == "" || l.OrganizationID == "" {
		return Lead{}, ErrInvalidArgument
	}
	if l.Status == "" {
		l.Status = StatusNew
	}
	const q = `
INSERT INTO leads (id, organization_id, campaign_id, name, email, phone, phone_normalized, source, lead_status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING ` + leadColumns

	return scanLead(r.db.QueryRowContext(ctx, q,
		l.ID,
		l.OrganizationID,
		nullIfEmpty(l.CampaignID),
		l.Name,
		l.Email,
		l.Phone,
		l.PhoneNormalized,
		l.Source,
		l.Status,
		l.CreatedAt.UTC(),
		l.UpdatedAt.UTC(),
	))
}

func (r *SQLRepo) Get(ctx context.Context, id string) (Lead, error) {
	const q = `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	return scanLead(r.db.QueryRowContext(ctx, q, id))
}

func (r *SQLRepo) FindByPhone(ctx context.Context, organizationID, key string, normalized bool) (Lead, error) {
	if organizationID == "" || key == "" {
		return Lead{}, ErrNotFound
	}
	column := "phone"
	if normalized {
		column = "phone_normalized"
	}
	q := `
SELECT ` + leadColumns + `
FROM leads
WHERE organization_id = $1 AND ` + column + ` = $2
ORDER BY created_at DESC
LIMIT 1`
	return scanLead(r.db.QueryRowContext(ctx, q, organizationID, key))
}

func (r *SQLRepo) Update(ctx context.Context, id string, p Patch) (Lead, error) {
	if id == "" {
		return Lead{}, ErrInvalidArgument
	}
	var status any
	if p.Status != nil {
		status = string(*p.Status)
	}
	const q = `
UPDATE leads
SET name = COALESCE($1, name),
    email = COALESCE($2, email),
    phone = COALESCE($3, phone),
    phone_normalized = COALESCE($4, phone_normalized),
    campaign_id = COALESCE($5, campaign_id),
    lead_status = COALESCE($6, lead_status),
    updated_at = $7
WHERE id = $8
RETURNING ` + leadColumns

	return scanLead(r.db.QueryRowContext(ctx, q,
		strPtr(p.Name),
		strPtr(p.Email),
		strPtr(p.Phone),
		strPtr(p.PhoneNormalized),
		strPtr(p.CampaignID),
		status,
		p.UpdatedAt.UTC(),
		id,
	))
}

func (r *SQLRepo) AdvanceStatus(ctx context.Context, organizationID, id string, next Status, now time.Time) (bool, error) {
	if id == "" || !next.Valid() {
		return false, ErrInvalidArgument
	}
	below := next.Below()
	if len(below) == 0 {
		return false, nil
	}

	// The guard lives in the WHERE clause so concurrent outcomes can only move forward.
	args := []any{string(next), now.UTC(), id}
	q := `
UPDATE leads
SET lead_status = $1, updated_at = $2
WHERE id = $3`
	if organizationID != "" {
		args = append(args, organizationID)
		q += ` AND organization_id = $4`
	}
	placeholders := make([]string, 0, len(below))
	for _, s := range below {
		args = append(args, string(s))
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
	}
	q += ` AND lead_status IN (` + strings.Join(placeholders, ", ") + `)`

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		cur, err := r.Get(ctx, id)
		if err != nil {
			return false, err
		}
		if organizationID != "" && cur.OrganizationID != organizationID {
			return false, ErrNotFound
		}
	}
	return n > 0, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func strPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
