package usage

import (
	"time"

	"lead-response/internal/calls"
)

// Record is one billing_usage row: a day of calls for one organization and provider.
//
// Invariants:
//   - One row per (organization_id, usage_date, provider).
//   - Within a day every counter only grows, except when reconciliation rewrites the day.
type Record struct {
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	UsageDate      time.Time      `json:"usage_date" db:"usage_date"`
	Provider       calls.Provider `json:"provider" db:"provider"`

	MinutesUsed   float64 `json:"minutes_used" db:"minutes_used"`
	CallsMade     int     `json:"calls_made" db:"calls_made"`
	CallsAnswered int     `json:"calls_answered" db:"calls_answered"`
	CostAmount    float64 `json:"cost_amount" db:"cost_amount"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Day truncates t to its calendar date in loc, returned as midnight UTC.
// usage_date is a DATE; keeping it at UTC midnight makes the stored value the calendar date itself.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Bounds returns the instants [start, end) covering the calendar date day in loc.
func Bounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

// Minutes converts a call duration to billable minutes.
func Minutes(durationSeconds int) float64 {
	return float64(durationSeconds) / 60
}
