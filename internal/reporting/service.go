package reporting

import (
	"context"
	"errors"
	"time"

	"lead-response/internal/calls"
	"lead-response/internal/usage"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// CallLister and UsageLister must enforce organization filtering.
type CallLister interface {
	ListByOrganization(ctx context.Context, organizationID string, from, to time.Time, campaignID string) ([]calls.CallLog, error)
}

type UsageLister interface {
	ListRange(ctx context.Context, organizationID string, from, to time.Time) ([]usage.Record, error)
}

type Service struct {
	calls CallLister
	usage UsageLister
}

func NewService(c CallLister, u UsageLister) *Service { return &Service{calls: c, usage: u} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.OrganizationID == "" || !req.Range.valid() {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.calls == nil {
		return CallsSummary{}, errors.New("reporting: call store not configured")
	}

	rows, err := s.calls.ListByOrganization(ctx, req.OrganizationID, req.Range.From, req.Range.To, req.CampaignID)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{
		OrganizationID: req.OrganizationID,
		CampaignID:     req.CampaignID,
		Range:          req.Range,
		ByProvider:     map[calls.Provider]int{},
	}
	finished := 0
	for _, c := range rows {
		out.TotalCalls++
		out.ByProvider[c.Provider]++
		out.TotalDurationSeconds += c.DurationSeconds
		out.CostAmount += c.CostAmount
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		if c.AppointmentSet {
			out.AppointmentsSet++
		}
		if c.Status.IsTerminal() {
			finished++
		}
		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusNoAnswer:
			out.NoAnswerCalls++
		case calls.CallStatusBusy:
			out.BusyCalls++
		case calls.CallStatusVoicemail:
			out.VoicemailCalls++
		case calls.CallStatusInProgress:
			out.InProgressCalls++
		case calls.CallStatusInitiated:
			out.InitiatedCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	if finished > 0 {
		out.AnswerRate = float64(out.CompletedCalls) / float64(finished)
		out.AppointmentRate = float64(out.AppointmentsSet) / float64(finished)
	}
	return out, nil
}

func (s *Service) UsageSummary(ctx context.Context, req UsageSummaryRequest) (UsageSummary, error) {
	if req.OrganizationID == "" || !req.Range.valid() {
		return UsageSummary{}, ErrInvalidRequest
	}
	if s.usage == nil {
		return UsageSummary{}, errors.New("reporting: usage store not configured")
	}

	rows, err := s.usage.ListRange(ctx, req.OrganizationID, req.Range.From, req.Range.To)
	if err != nil {
		return UsageSummary{}, err
	}

	out := UsageSummary{OrganizationID: req.OrganizationID, Range: req.Range, Days: make([]UsageDay, 0, len(rows))}
	for _, r := range rows {
		out.Days = append(out.Days, UsageDay{
			Date:          r.UsageDate.Format(time.DateOnly),
			Provider:      r.Provider,
			MinutesUsed:   r.MinutesUsed,
			CallsMade:     r.CallsMade,
			CallsAnswered: r.CallsAnswered,
			CostAmount:    r.CostAmount,
		})
		out.TotalMinutes += r.MinutesUsed
		out.TotalCalls += r.CallsMade
		out.TotalCallsAnswered += r.CallsAnswered
		out.TotalCost += r.CostAmount
	}
	return out, nil
}

func (s *Service) ConversionMetrics(ctx context.Context, req ConversionMetricsRequest) (ConversionMetrics, error) {
	if req.OrganizationID == "" || req.CampaignID == "" || !req.Range.valid() {
		return ConversionMetrics{}, ErrInvalidRequest
	}
	if s.calls == nil {
		return ConversionMetrics{}, errors.New("reporting: call store not configured")
	}

	rows, err := s.calls.ListByOrganization(ctx, req.OrganizationID, req.Range.From, req.Range.To, req.CampaignID)
	if err != nil {
		return ConversionMetrics{}, err
	}

	out := ConversionMetrics{OrganizationID: req.OrganizationID, CampaignID: req.CampaignID}
	out.CallsAttempted = len(rows)
	for _, c := range rows {
		if c.Status.Answered() {
			out.CallsConnected++
		}
		if c.AppointmentSet {
			out.Conversions++
		}
	}
	if out.CallsAttempted > 0 {
		out.ConnectionRate = float64(out.CallsConnected) / float64(out.CallsAttempted)
		out.ConversionRate = float64(out.Conversions) / float64(out.CallsAttempted)
	}
	return out, nil
}
