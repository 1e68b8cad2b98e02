package usage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lead-response/pkg/utils"
)

var ErrInvalidArgument = errors.New("invalid argument")

type Repository interface {
	// Add increments the day row by r's counters, creating it when absent.
	// The increment is a single statement so concurrent deliveries never lose an update.
	Add(ctx context.Context, r Record) (Record, error)
	// ListRange returns rows for the organization with usage_date in [from, to).
	ListRange(ctx context.Context, organizationID string, from, to time.Time) ([]Record, error)
	// MinutesBetween sums minutes_used over [from, to).
	MinutesBetween(ctx context.Context, organizationID string, from, to time.Time) (float64, error)
	// ReplaceDay rewrites every row of day with rows, atomically.
	ReplaceDay(ctx context.Context, day time.Time, rows []Record) error
}

type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

const usageColumns = `organization_id, usage_date, provider, minutes_used, calls_made, calls_answered, cost_amount, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (Record, error) {
	var r Record
	if err := s.Scan(
		&r.OrganizationID,
		&r.UsageDate,
		&r.Provider,
		&r.MinutesUsed,
		&r.CallsMade,
		&r.CallsAnswered,
		&r.CostAmount,
		&r.UpdatedAt,
	); err != nil {
		return Record{}, err
	}
	r.UsageDate = r.UsageDate.UTC()
	return r, nil
}

const insertUsage = `
INSERT INTO billing_usage (` + usageColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

func (s *SQLRepo) Add(ctx context.Context, r Record) (Record, error) {
	if r.OrganizationID == "" || !r.Provider.Valid() {
		return Record{}, ErrInvalidArgument
	}
	const q = insertUsage + `
ON CONFLICT (organization_id, usage_date, provider)
DO UPDATE SET minutes_used = billing_usage.minutes_used + EXCLUDED.minutes_used,
              calls_made = billing_usage.calls_made + EXCLUDED.calls_made,
              calls_answered = billing_usage.calls_answered + EXCLUDED.calls_answered,
              cost_amount = billing_usage.cost_amount + EXCLUDED.cost_amount,
              updated_at = EXCLUDED.updated_at
RETURNING ` + usageColumns

	return scanRecord(s.db.QueryRowContext(ctx, q,
		r.OrganizationID,
		r.UsageDate.UTC(),
		r.Provider,
		r.MinutesUsed,
		r.CallsMade,
		r.CallsAnswered,
		r.CostAmount,
		r.UpdatedAt.UTC(),
	))
}

func (s *SQLRepo) ListRange(ctx context.Context, organizationID string, from, to time.Time) ([]Record, error) {
	const q = `
SELECT ` + usageColumns + `
FROM billing_usage
WHERE organization_id = $1 AND usage_date >= $2 AND usage_date < $3
ORDER BY usage_date, provider`

	rows, err := s.db.QueryContext(ctx, q, organizationID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLRepo) MinutesBetween(ctx context.Context, organizationID string, from, to time.Time) (float64, error) {
	const q = `
SELECT COALESCE(SUM(minutes_used), 0)
FROM billing_usage
WHERE organization_id = $1 AND usage_date >= $2 AND usage_date < $3`

	var total float64
	if err := s.db.QueryRowContext(ctx, q, organizationID, from.UTC(), to.UTC()).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *SQLRepo) ReplaceDay(ctx context.Context, day time.Time, rows []Record) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM billing_usage WHERE usage_date = $1`, day.UTC()); err != nil {
			return err
		}
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx, insertUsage,
				r.OrganizationID,
				day.UTC(),
				r.Provider,
				r.MinutesUsed,
				r.CallsMade,
				r.CallsAnswered,
				r.CostAmount,
				r.UpdatedAt.UTC(),
			); err != nil {
				return err
			}
		}
		return nil
	})
}
