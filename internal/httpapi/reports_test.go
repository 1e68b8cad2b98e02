package httpapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"lead-response/internal/audit"
	"lead-response/internal/calls"
	"lead-response/internal/rbac"
	"lead-response/internal/usage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEndedCall(t *testing.T, h *apiHarness, id, campaign string, status calls.CallStatus, seconds int, appointment bool, at time.Time) {
	t.Helper()
	ctx := context.Background()
	_, err := h.calls.UpsertStarted(ctx, calls.CallLog{
		ID: "row-" + id, Provider: calls.ProviderRetell, ProviderCallID: id,
		OrganizationID: "org1", CampaignID: campaign, Status: calls.CallStatusInProgress,
		CreatedAt: at, UpdatedAt: at,
	})
	require.NoError(t, err)
	ended := at.Add(time.Duration(seconds) * time.Second)
	_, found, err := h.calls.UpdateEnded(ctx, id, calls.EndedUpdate{Status: status, DurationSeconds: seconds, EndedAt: &ended, UpdatedAt: ended})
	require.NoError(t, err)
	require.True(t, found)
	if appointment {
		_, _, err = h.calls.UpdateAnalysis(ctx, id, calls.AnalysisUpdate{AppointmentSet: true, UpdatedAt: ended})
		require.NoError(t, err)
	}
}

func TestGetUsage_MonthToDateWithAllowance(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{usageMinutes: 12.5})
	_, err := h.usage.Add(context.Background(), usage.Record{
		OrganizationID: "org1", UsageDate: time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		Provider: calls.ProviderVapi, MinutesUsed: 4, CallsMade: 2,
	})
	require.NoError(t, err)
	tok := h.token(t, "org1", rbac.RoleFinance)

	w := h.do(http.MethodGet, "/v1/usage", tok, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	u, _ := body["usage"].(map[string]any)
	assert.InDelta(t, 12.5, u["total_minutes"], 1e-9)
	days, _ := u["days"].([]any)
	require.Len(t, days, 1)
	assert.Equal(t, "2026-03-02", days[0].(map[string]any)["date"])

	a, _ := body["allowance"].(map[string]any)
	assert.Equal(t, "growth", a["plan"])
	assert.InDelta(t, 12.5, a["used_minutes"], 1e-9)

	w = h.do(http.MethodGet, "/v1/usage?from=2026-02-01&to=2026-02-28", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	u, _ = decode(t, w)["usage"].(map[string]any)
	assert.InDelta(t, 4, u["total_minutes"], 1e-9)
	assert.EqualValues(t, 2, u["total_calls"])
}

func TestGetUsage_RejectsBadDates(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	tok := h.token(t, "org1", rbac.RoleOwner)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/usage?from=03/01/2026", tok, "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/usage?from=2026-03-05&to=2026-03-01", tok, "").Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/v1/usage", h.token(t, "org1", rbac.RoleAgent), "").Code)
}

func TestGetCallsReport(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	day := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	seedEndedCall(t, h, "c1", "camp1", calls.CallStatusCompleted, 120, true, day)
	seedEndedCall(t, h, "c2", "camp1", calls.CallStatusNoAnswer, 0, false, day.Add(time.Hour))
	seedEndedCall(t, h, "c3", "camp2", calls.CallStatusCompleted, 60, false, day.Add(2*time.Hour))
	seedEndedCall(t, h, "old", "camp1", calls.CallStatusCompleted, 60, false, day.AddDate(0, -2, 0))
	tok := h.token(t, "org1", rbac.RoleAnalyst)

	w := h.do(http.MethodGet, "/v1/reports/calls", tok, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sum, _ := decode(t, w)["summary"].(map[string]any)
	assert.EqualValues(t, 3, sum["total_calls"])
	assert.EqualValues(t, 2, sum["completed_calls"])
	assert.EqualValues(t, 1, sum["appointments_set"])

	w = h.do(http.MethodGet, "/v1/reports/calls?from=2026-03-09&to=2026-03-09&campaign_id=camp1", tok, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	sum, _ = body["summary"].(map[string]any)
	assert.EqualValues(t, 2, sum["total_calls"])
	conv, _ := body["conversion"].(map[string]any)
	assert.EqualValues(t, 2, conv["calls_attempted"])
	assert.EqualValues(t, 1, conv["calls_connected"])
	assert.EqualValues(t, 1, conv["conversions"])

	w = h.do(http.MethodGet, "/v1/reports/calls?from=2026-03-09T11:30:00Z&to=2026-03-09T13:00:00Z", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	sum, _ = decode(t, w)["summary"].(map[string]any)
	assert.EqualValues(t, 1, sum["total_calls"])

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/reports/calls?from=yesterday", tok, "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/reports/calls?from=2026-03-09T13:00:00Z&to=2026-03-09T11:00:00Z", tok, "").Code)
}

func TestAggregateUsage(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	seedEndedCall(t, h, "c1", "", calls.CallStatusCompleted, 90, false, time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC))
	seedEndedCall(t, h, "c2", "", calls.CallStatusBusy, 30, false, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	w := h.do(http.MethodPost, "/usage/aggregate", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := func(body string) int {
		r := h.do(http.MethodPost, "/usage/aggregate?token="+automationToken, "", body)
		return r.Code
	}

	w = h.do(http.MethodPost, "/usage/aggregate?token="+automationToken, "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec, _ := decode(t, w)["reconciled"].(map[string]any)
	assert.Equal(t, "2026-03-09", rec["date"], "defaults to yesterday")
	assert.EqualValues(t, 1, rec["rows"])

	rows, err := h.usage.ListRange(context.Background(), "org1", time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 1.5, rows[0].MinutesUsed, 1e-9)
	assert.Equal(t, 1, rows[0].CallsAnswered)

	assert.Equal(t, http.StatusOK, req(`{"date":"2026-03-10"}`))
	rows, err = h.usage.ListRange(context.Background(), "org1", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].CallsAnswered)

	assert.Equal(t, http.StatusBadRequest, req(`{"date":"10/03/2026"}`))
	assert.Equal(t, http.StatusBadRequest, req(`{"date":`))

	events := h.audit.OfType(audit.EventTypeUsageReconciled)
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventTypeUsageReconciled, events[0].Type)
	assert.Equal(t, audit.SystemOrganization, events[0].OrganizationID)
}
