package reporting

import (
	"context"
	"testing"
	"time"

	"lead-response/internal/calls"
	"lead-response/internal/usage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, repo *calls.MemoryRepo, rows ...calls.CallLog) {
	t.Helper()
	for i, c := range rows {
		if c.ID == "" {
			c.ID = c.ProviderCallID
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now.Add(time.Duration(i) * time.Minute)
		}
		if c.Provider == "" {
			c.Provider = calls.ProviderRetell
		}
		_, err := repo.UpsertStarted(context.Background(), c)
		require.NoError(t, err)
	}
}

func dayRange() TimeRange { return TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)} }

func TestReporting_OrganizationIsolation(t *testing.T) {
	repo := calls.NewMemoryRepo()
	seed(t, repo,
		calls.CallLog{ProviderCallID: "c1", OrganizationID: "o1", CampaignID: "camp", Status: calls.CallStatusCompleted, DurationSeconds: 30},
		calls.CallLog{ProviderCallID: "c2", OrganizationID: "o2", CampaignID: "camp", Status: calls.CallStatusCompleted, DurationSeconds: 50},
	)
	svc := NewService(repo, nil)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{OrganizationID: "o1", Range: dayRange()})
	require.NoError(t, err)
	assert.Equal(t, 1, out.TotalCalls)
	assert.Equal(t, 30, out.TotalDurationSeconds)
}

func TestReporting_CallsSummaryRates(t *testing.T) {
	repo := calls.NewMemoryRepo()
	seed(t, repo,
		calls.CallLog{ProviderCallID: "c1", OrganizationID: "o", Status: calls.CallStatusCompleted, DurationSeconds: 120, AppointmentSet: true, RecordingURL: "r1", CostAmount: 0.3},
		calls.CallLog{ProviderCallID: "c2", OrganizationID: "o", Status: calls.CallStatusCompleted, DurationSeconds: 60, CostAmount: 0.1},
		calls.CallLog{ProviderCallID: "c3", OrganizationID: "o", Status: calls.CallStatusNoAnswer},
		calls.CallLog{ProviderCallID: "c4", OrganizationID: "o", Status: calls.CallStatusVoicemail, DurationSeconds: 30, Provider: calls.ProviderVapi},
		calls.CallLog{ProviderCallID: "c5", OrganizationID: "o", Status: calls.CallStatusInProgress},
		calls.CallLog{ProviderCallID: "c6", OrganizationID: "o", Status: calls.CallStatusInitiated, Provider: calls.ProviderVapi},
	)
	svc := NewService(repo, nil)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{OrganizationID: "o", Range: dayRange()})
	require.NoError(t, err)
	assert.Equal(t, 6, out.TotalCalls)
	assert.Equal(t, 2, out.CompletedCalls)
	assert.Equal(t, 1, out.NoAnswerCalls)
	assert.Equal(t, 1, out.VoicemailCalls)
	assert.Equal(t, 1, out.InProgressCalls)
	assert.Equal(t, 1, out.InitiatedCalls)
	assert.Equal(t, 210, out.TotalDurationSeconds)
	assert.Equal(t, 35, out.AverageDurationSeconds)
	assert.Equal(t, 1, out.RecordedCalls)
	assert.Equal(t, 1, out.AppointmentsSet)
	assert.InDelta(t, 0.4, out.CostAmount, 1e-9)
	assert.InDelta(t, 0.5, out.AnswerRate, 1e-9)
	assert.InDelta(t, 0.25, out.AppointmentRate, 1e-9)
	assert.Equal(t, map[calls.Provider]int{calls.ProviderRetell: 4, calls.ProviderVapi: 2}, out.ByProvider)
}

func TestReporting_RejectsBadRanges(t *testing.T) {
	svc := NewService(calls.NewMemoryRepo(), usage.NewMemoryRepo())
	ctx := context.Background()

	_, err := svc.CallsSummary(ctx, CallsSummaryRequest{Range: dayRange()})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.CallsSummary(ctx, CallsSummaryRequest{OrganizationID: "o", Range: TimeRange{From: now, To: now}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.UsageSummary(ctx, UsageSummaryRequest{OrganizationID: "o"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.ConversionMetrics(ctx, ConversionMetricsRequest{OrganizationID: "o", Range: dayRange()})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestReporting_UsageSummary(t *testing.T) {
	u := usage.NewMemoryRepo()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, r := range []usage.Record{
		{OrganizationID: "o", UsageDate: day, Provider: calls.ProviderRetell, MinutesUsed: 2, CallsMade: 2, CallsAnswered: 1, CostAmount: 0.2},
		{OrganizationID: "o", UsageDate: day, Provider: calls.ProviderVapi, MinutesUsed: 1.5, CallsMade: 1, CallsAnswered: 1, CostAmount: 0.4},
		{OrganizationID: "other", UsageDate: day, Provider: calls.ProviderVapi, MinutesUsed: 9, CallsMade: 9},
	} {
		_, err := u.Add(context.Background(), r)
		require.NoError(t, err)
	}
	svc := NewService(nil, u)

	out, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{
		OrganizationID: "o",
		Range:          TimeRange{From: day, To: day.AddDate(0, 0, 1)},
	})
	require.NoError(t, err)
	require.Len(t, out.Days, 2)
	assert.Equal(t, "2026-03-10", out.Days[0].Date)
	assert.Equal(t, calls.ProviderRetell, out.Days[0].Provider)
	assert.InDelta(t, 3.5, out.TotalMinutes, 1e-9)
	assert.Equal(t, 3, out.TotalCalls)
	assert.Equal(t, 2, out.TotalCallsAnswered)
	assert.InDelta(t, 0.6, out.TotalCost, 1e-9)
}

func TestReporting_ConversionMetrics(t *testing.T) {
	repo := calls.NewMemoryRepo()
	seed(t, repo,
		calls.CallLog{ProviderCallID: "c1", OrganizationID: "o", CampaignID: "camp", Status: calls.CallStatusCompleted, AppointmentSet: true},
		calls.CallLog{ProviderCallID: "c2", OrganizationID: "o", CampaignID: "camp", Status: calls.CallStatusFailed},
		calls.CallLog{ProviderCallID: "c3", OrganizationID: "o", CampaignID: "other", Status: calls.CallStatusCompleted},
	)
	svc := NewService(repo, nil)

	m, err := svc.ConversionMetrics(context.Background(), ConversionMetricsRequest{OrganizationID: "o", CampaignID: "camp", Range: dayRange()})
	require.NoError(t, err)
	assert.Equal(t, 2, m.CallsAttempted)
	assert.Equal(t, 1, m.CallsConnected)
	assert.Equal(t, 1, m.Conversions)
	assert.InDelta(t, 0.5, m.ConnectionRate, 1e-9)
	assert.InDelta(t, 0.5, m.ConversionRate, 1e-9)
}
