package reporting

import (
	"time"

	"lead-response/internal/calls"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

// CallsSummaryRequest requests aggregated call metrics.
// Organization isolation: OrganizationID is required.
type CallsSummaryRequest struct {
	OrganizationID string    `json:"organization_id"`
	Range          TimeRange `json:"range"`
	CampaignID     string    `json:"campaign_id,omitempty"`
}

type CallsSummary struct {
	OrganizationID string    `json:"organization_id"`
	CampaignID     string    `json:"campaign_id,omitempty"`
	Range          TimeRange `json:"range"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	NoAnswerCalls   int `json:"no_answer_calls"`
	BusyCalls       int `json:"busy_calls"`
	VoicemailCalls  int `json:"voicemail_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	InitiatedCalls  int `json:"initiated_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls   int     `json:"recorded_calls"`
	AppointmentsSet int     `json:"appointments_set"`
	CostAmount      float64 `json:"cost_amount"`

	// Rates are over finished calls; 0 when none finished.
	AnswerRate      float64 `json:"answer_rate"`
	AppointmentRate float64 `json:"appointment_rate"`

	ByProvider map[calls.Provider]int `json:"by_provider"`
}

// UsageSummaryRequest requests the daily usage rows of an organization.
type UsageSummaryRequest struct {
	OrganizationID string    `json:"organization_id"`
	Range          TimeRange `json:"range"`
}

type UsageDay struct {
	Date          string         `json:"date"`
	Provider      calls.Provider `json:"provider"`
	MinutesUsed   float64        `json:"minutes_used"`
	CallsMade     int            `json:"calls_made"`
	CallsAnswered int            `json:"calls_answered"`
	CostAmount    float64        `json:"cost_amount"`
}

type UsageSummary struct {
	OrganizationID string    `json:"organization_id"`
	Range          TimeRange `json:"range"`

	Days []UsageDay `json:"days"`

	TotalMinutes       float64 `json:"total_minutes"`
	TotalCalls         int     `json:"total_calls"`
	TotalCallsAnswered int     `json:"total_calls_answered"`
	TotalCost          float64 `json:"total_cost"`
}

// ConversionMetricsRequest captures campaign conversion: calls that ended with an appointment.
type ConversionMetricsRequest struct {
	OrganizationID string    `json:"organization_id"`
	Range          TimeRange `json:"range"`
	CampaignID     string    `json:"campaign_id"`
}

type ConversionMetrics struct {
	OrganizationID string `json:"organization_id"`
	CampaignID     string `json:"campaign_id"`

	CallsAttempted int `json:"calls_attempted"`
	CallsConnected int `json:"calls_connected"`
	Conversions    int `json:"conversions"`

	ConnectionRate float64 `json:"connection_rate"`
	ConversionRate float64 `json:"conversion_rate"`
}
