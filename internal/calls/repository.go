package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Repository is the durable store for call logs.
// Every update is matched by provider_call_id and is partial.
type Repository interface {
	// UpsertStarted creates the row or overwrites the started-phase fields of an existing one.
	UpsertStarted(ctx context.Context, c CallLog) (CallLog, error)
	// InsertInitiated creates the row for an outbound placement; an existing row is returned untouched.
	InsertInitiated(ctx context.Context, c CallLog) (CallLog, error)
	// UpdateEnded reports found=false when no row matched.
	UpdateEnded(ctx context.Context, providerCallID string, u EndedUpdate) (CallLog, bool, error)
	UpdateAnalysis(ctx context.Context, providerCallID string, u AnalysisUpdate) (CallLog, bool, error)

	Get(ctx context.Context, providerCallID string) (CallLog, error)
	ListByOrganization(ctx context.Context, organizationID string, from, to time.Time, campaignID string) ([]CallLog, error)
	// ListBillable returns terminal calls with a positive duration and a resolved organization,
	// dated by ended_at (created_at when ended_at is unknown) within [from, to).
	ListBillable(ctx context.Context, from, to time.Time) ([]CallLog, error)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLRepo implements Repository on database/sql with portable SQL ($N placeholders,
// ON CONFLICT and RETURNING).
type SQLRepo struct {
	db querier
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

const callLogColumns = `id, provider, provider_call_id, organization_id, campaign_id, lead_id, agent_id, direction,
       phone_number, from_number, call_status, duration_seconds, recording_url, transcript, transcript_segments,
       summary, sentiment, appointment_set, key_topics, cost_amount, metadata, started_at, ended_at,
       created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCallLog(s rowScanner) (CallLog, error) {
	var (
		c                          CallLog
		org, campaign, lead        sql.NullString
		segments, topics, metadata []byte
		startedAt, endedAt         sql.NullTime
	)
	if err := s.Scan(
		&c.ID,
		&c.Provider,
		&c.ProviderCallID,
		&org,
		&campaign,
		&lead,
		&c.AgentID,
		&c.Direction,
		&c.PhoneNumber,
		&c.FromNumber,
		&c.Status,
		&c.DurationSeconds,
		&c.RecordingURL,
		&c.Transcript,
		&segments,
		&c.Summary,
		&c.Sentiment,
		&c.AppointmentSet,
		&topics,
		&c.CostAmount,
		&metadata,
		&startedAt,
		&endedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return CallLog{}, err
	}
	c.OrganizationID = org.String
	c.CampaignID = campaign.String
	c.LeadID = lead.String
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		c.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		c.EndedAt = &t
	}
	if err := decodeJSON(segments, &c.TranscriptSegments); err != nil {
		return CallLog{}, fmt.Errorf("transcript_segments: %w", err)
	}
	if err := decodeJSON(topics, &c.KeyTopics); err != nil {
		return CallLog{}, fmt.Errorf("key_topics: %w", err)
	}
	if err := decodeJSON(metadata, &c.Metadata); err != nil {
		return CallLog{}, fmt.Errorf("metadata: %w", err)
	}
	return c, nil
}

func (r *SQLRepo) UpsertStarted(ctx context.Context, c CallLog) (CallLog, error) {
	if c.ID == "" || c.ProviderCallID == "" {
		return CallLog{}, ErrInvalidArgument
	}
	meta, err := encodeJSON(c.Metadata, "{}")
	if err != nil {
		return CallLog{}, err
	}
	// Identity and started_at never regress to NULL; a late duplicate started
	// delivery cannot move a finished call back to in_progress.
	const q = `
INSERT INTO call_logs (
  id, provider, provider_call_id, organization_id, campaign_id, lead_id, agent_id, direction,
  phone_number, from_number, call_status, metadata, started_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
ON CONFLICT (provider_call_id)
DO UPDATE SET organization_id = COALESCE(EXCLUDED.organization_id, call_logs.organization_id),
              campaign_id = COALESCE(EXCLUDED.campaign_id, call_logs.campaign_id),
              lead_id = COALESCE(EXCLUDED.lead_id, call_logs.lead_id),
              agent_id = EXCLUDED.agent_id,
              direction = EXCLUDED.direction,
              phone_number = EXCLUDED.phone_number,
              from_number = EXCLUDED.from_number,
              call_status = CASE WHEN call_logs.call_status IN ('initiated', 'in_progress')
                                 THEN EXCLUDED.call_status ELSE call_logs.call_status END,
              metadata = EXCLUDED.metadata,
              started_at = COALESCE(EXCLUDED.started_at, call_logs.started_at),
              updated_at = EXCLUDED.updated_at
RETURNING ` + callLogColumns

	return scanCallLog(r.db.QueryRowContext(ctx, q,
		c.ID,
		c.Provider,
		c.ProviderCallID,
		nullIfEmpty(c.OrganizationID),
		nullIfEmpty(c.CampaignID),
		nullIfEmpty(c.LeadID),
		c.AgentID,
		c.Direction,
		c.PhoneNumber,
		c.FromNumber,
		c.Status,
		meta,
		nullTime(c.StartedAt),
		c.CreatedAt.UTC(),
		c.UpdatedAt.UTC(),
	))
}

func (r *SQLRepo) InsertInitiated(ctx context.Context, c CallLog) (CallLog, error) {
	if c.ID == "" || c.ProviderCallID == "" {
		return CallLog{}, ErrInvalidArgument
	}
	meta, err := encodeJSON(c.Metadata, "{}")
	if err != nil {
		return CallLog{}, err
	}
	const q = `
INSERT INTO call_logs (
  id, provider, provider_call_id, organization_id, campaign_id, lead_id, agent_id, direction,
  phone_number, from_number, call_status, metadata, started_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
ON CONFLICT (provider_call_id) DO NOTHING
`
	if _, err := r.db.ExecContext(ctx, q,
		c.ID,
		c.Provider,
		c.ProviderCallID,
		nullIfEmpty(c.OrganizationID),
		nullIfEmpty(c.CampaignID),
		nullIfEmpty(c.LeadID),
		c.AgentID,
		c.Direction,
		c.PhoneNumber,
		c.FromNumber,
		c.Status,
		meta,
		nullTime(c.StartedAt),
		c.CreatedAt.UTC(),
		c.UpdatedAt.UTC(),
	); err != nil {
		return CallLog{}, err
	}
	return r.Get(ctx, c.ProviderCallID)
}

func (r *SQLRepo) UpdateEnded(ctx context.Context, providerCallID string, u EndedUpdate) (CallLog, bool, error) {
	if providerCallID == "" {
		return CallLog{}, false, ErrInvalidArgument
	}
	const q = `
UPDATE call_logs
SET call_status = $1,
    duration_seconds = CASE WHEN $2 > 0 THEN $2 ELSE duration_seconds END,
    recording_url = COALESCE($3, recording_url),
    started_at = COALESCE(started_at, $4),
    ended_at = COALESCE($5, ended_at),
    cost_amount = COALESCE($6, cost_amount),
    updated_at = $7
WHERE provider_call_id = $8
RETURNING ` + callLogColumns

	c, err := scanCallLog(r.db.QueryRowContext(ctx, q,
		u.Status,
		u.DurationSeconds,
		nullIfEmpty(u.RecordingURL),
		nullTime(u.StartedAt),
		nullTime(u.EndedAt),
		nullFloat(u.CostAmount),
		u.UpdatedAt.UTC(),
		providerCallID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallLog{}, false, nil
		}
		return CallLog{}, false, err
	}
	return c, true, nil
}

func (r *SQLRepo) UpdateAnalysis(ctx context.Context, providerCallID string, u AnalysisUpdate) (CallLog, bool, error) {
	if providerCallID == "" {
		return CallLog{}, false, ErrInvalidArgument
	}
	var segments, topics any
	if len(u.TranscriptSegments) > 0 {
		s, err := encodeJSON(u.TranscriptSegments, "[]")
		if err != nil {
			return CallLog{}, false, err
		}
		segments = s
	}
	if len(u.KeyTopics) > 0 {
		s, err := encodeJSON(u.KeyTopics, "[]")
		if err != nil {
			return CallLog{}, false, err
		}
		topics = s
	}

	const q = `
UPDATE call_logs
SET transcript = COALESCE($1, transcript),
    transcript_segments = COALESCE($2, transcript_segments),
    summary = COALESCE($3, summary),
    sentiment = COALESCE($4, sentiment),
    appointment_set = (appointment_set OR $5),
    key_topics = COALESCE($6, key_topics),
    updated_at = $7
WHERE provider_call_id = $8
RETURNING ` + callLogColumns

	c, err := scanCallLog(r.db.QueryRowContext(ctx, q,
		nullIfEmpty(u.Transcript),
		segments,
		nullIfEmpty(u.Summary),
		nullIfEmpty(u.Sentiment),
		u.AppointmentSet,
		topics,
		u.UpdatedAt.UTC(),
		providerCallID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallLog{}, false, nil
		}
		return CallLog{}, false, err
	}
	return c, true, nil
}

func (r *SQLRepo) Get(ctx context.Context, providerCallID string) (CallLog, error) {
	const q = `
SELECT ` + callLogColumns + `
FROM call_logs
WHERE provider_call_id = $1
`
	c, err := scanCallLog(r.db.QueryRowContext(ctx, q, providerCallID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallLog{}, ErrNotFound
		}
		return CallLog{}, err
	}
	return c, nil
}

func (r *SQLRepo) ListByOrganization(ctx context.Context, organizationID string, from, to time.Time, campaignID string) ([]CallLog, error) {
	if organizationID == "" {
		return nil, ErrInvalidArgument
	}
	q := `
SELECT ` + callLogColumns + `
FROM call_logs
WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3`
	args := []any{organizationID, from.UTC(), to.UTC()}
	if campaignID != "" {
		q += ` AND campaign_id = $4`
		args = append(args, campaignID)
	}
	q += `
ORDER BY created_at`
	return r.list(ctx, q, args...)
}

func (r *SQLRepo) ListBillable(ctx context.Context, from, to time.Time) ([]CallLog, error) {
	const q = `
SELECT ` + callLogColumns + `
FROM call_logs
WHERE organization_id IS NOT NULL
  AND duration_seconds > 0
  AND call_status IN ('completed', 'failed', 'busy', 'no_answer', 'voicemail')
  AND COALESCE(ended_at, created_at) >= $1
  AND COALESCE(ended_at, created_at) < $2
ORDER BY organization_id, provider
`
	return r.list(ctx, q, from.UTC(), to.UTC())
}

func (r *SQLRepo) list(ctx context.Context, q string, args ...any) ([]CallLog, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallLog, 0)
	for rows.Next() {
		c, err := scanCallLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func encodeJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func decodeJSON(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
