package calls_test

import (
	"context"
	"testing"
	"time"

	"lead-response/internal/calls"
	"lead-response/internal/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLRepo_StartedEndedAnalyzed(t *testing.T) {
	db := testdb.Open(t)
	repo := calls.NewSQLRepo(db)
	rec := calls.NewRecorder(repo)
	ctx := context.Background()

	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	ev := calls.CallEvent{
		Provider:       calls.ProviderRetell,
		ProviderCallID: "c1",
		Phase:          calls.PhaseStarted,
		Direction:      calls.DirectionOutbound,
		PhoneNumber:    "+15551230000",
		FromNumber:     "+15559990000",
		StartedAt:      &started,
		Metadata:       map[string]any{"organization_id": "org1", "lead_id": "lead1"},
	}
	id := calls.Identity{OrganizationID: "org1", LeadID: "lead1"}

	_, err := rec.Apply(ctx, ev, id)
	require.NoError(t, err)
	_, err = rec.Apply(ctx, ev, id)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM call_logs WHERE provider_call_id = 'c1'`).Scan(&n))
	assert.Equal(t, 1, n)

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, calls.CallStatusInProgress, got.Status)
	assert.Equal(t, "org1", got.OrganizationID)
	assert.Equal(t, "lead1", got.LeadID)
	assert.Empty(t, got.CampaignID)
	assert.Equal(t, "org1", got.Metadata["organization_id"])
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(started))

	ended := started.Add(125 * time.Second)
	out, found, err := repo.UpdateEnded(ctx, "c1", calls.EndedUpdate{
		Status:          calls.CallStatusCompleted,
		DurationSeconds: 125,
		RecordingURL:    "https://rec/c1.wav",
		EndedAt:         &ended,
		UpdatedAt:       ended,
	})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, calls.CallStatusCompleted, out.Status)
	assert.Equal(t, 125, out.DurationSeconds)
	assert.Equal(t, "https://rec/c1.wav", out.RecordingURL)
	require.NotNil(t, out.StartedAt)

	out, found, err = repo.UpdateAnalysis(ctx, "c1", calls.AnalysisUpdate{
		Transcript:         "Agent: hi\nUser: hello",
		TranscriptSegments: []calls.TranscriptSegment{{Speaker: calls.SpeakerAgent, Text: "hi", StartTime: 0.5, EndTime: 0.9}},
		Sentiment:          "Positive",
		AppointmentSet:     true,
		KeyTopics:          []string{"pricing", "demo"},
		UpdatedAt:          ended,
	})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "https://rec/c1.wav", out.RecordingURL)
	assert.Equal(t, "Positive", out.Sentiment)
	assert.True(t, out.AppointmentSet)
	assert.Equal(t, []string{"pricing", "demo"}, out.KeyTopics)
	require.Len(t, out.TranscriptSegments, 1)
	assert.Equal(t, calls.SpeakerAgent, out.TranscriptSegments[0].Speaker)

	// A later analysis without the flag never clears it.
	out, _, err = repo.UpdateAnalysis(ctx, "c1", calls.AnalysisUpdate{Summary: "follow up", UpdatedAt: ended})
	require.NoError(t, err)
	assert.True(t, out.AppointmentSet)
	assert.Equal(t, "Positive", out.Sentiment)
}

func TestSQLRepo_UpdatesWithoutRowAreNoops(t *testing.T) {
	repo := calls.NewSQLRepo(testdb.Open(t))
	ctx := context.Background()
	now := time.Now().UTC()

	_, found, err := repo.UpdateEnded(ctx, "missing", calls.EndedUpdate{Status: calls.CallStatusCompleted, UpdatedAt: now})
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = repo.UpdateAnalysis(ctx, "missing", calls.AnalysisUpdate{Summary: "x", UpdatedAt: now})
	require.NoError(t, err)
	assert.False(t, found)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, calls.ErrNotFound)
}

func TestSQLRepo_InitiatedThenStartedKeepsCampaign(t *testing.T) {
	repo := calls.NewSQLRepo(testdb.Open(t))
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	_, err := repo.InsertInitiated(ctx, calls.CallLog{
		ID:             "row-1",
		Provider:       calls.ProviderVapi,
		ProviderCallID: "v1",
		OrganizationID: "org1",
		CampaignID:     "camp1",
		LeadID:         "lead1",
		Direction:      calls.DirectionOutbound,
		PhoneNumber:    "+15551230000",
		Status:         calls.CallStatusInitiated,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	require.NoError(t, err)

	got, err := repo.UpsertStarted(ctx, calls.CallLog{
		ID:             "row-2",
		Provider:       calls.ProviderVapi,
		ProviderCallID: "v1",
		OrganizationID: "org1",
		Direction:      calls.DirectionOutbound,
		PhoneNumber:    "+15551230000",
		Status:         calls.CallStatusInProgress,
		CreatedAt:      now.Add(time.Second),
		UpdatedAt:      now.Add(time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, "row-1", got.ID)
	assert.Equal(t, "camp1", got.CampaignID)
	assert.Equal(t, "lead1", got.LeadID)
	assert.Equal(t, calls.CallStatusInProgress, got.Status)
}

func TestSQLRepo_ListBillable(t *testing.T) {
	repo := calls.NewSQLRepo(testdb.Open(t))
	ctx := context.Background()
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	insert := func(callID, org string, status calls.CallStatus, dur int, endedAt time.Time) {
		t.Helper()
		_, err := repo.UpsertStarted(ctx, calls.CallLog{
			ID: callID, Provider: calls.ProviderRetell, ProviderCallID: callID, OrganizationID: org,
			Direction: calls.DirectionOutbound, Status: calls.CallStatusInProgress,
			CreatedAt: endedAt, UpdatedAt: endedAt,
		})
		require.NoError(t, err)
		_, _, err = repo.UpdateEnded(ctx, callID, calls.EndedUpdate{Status: status, DurationSeconds: dur, EndedAt: &endedAt, UpdatedAt: endedAt})
		require.NoError(t, err)
	}
	insert("a", "org1", calls.CallStatusCompleted, 60, day.Add(2*time.Hour))
	insert("b", "org1", calls.CallStatusNoAnswer, 5, day.Add(3*time.Hour))
	insert("c", "org1", calls.CallStatusCompleted, 0, day.Add(4*time.Hour))
	insert("d", "", calls.CallStatusCompleted, 30, day.Add(5*time.Hour))
	insert("e", "org2", calls.CallStatusCompleted, 30, day.Add(26*time.Hour))

	rows, err := repo.ListBillable(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProviderCallID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestSQLRepo_ListByOrganization(t *testing.T) {
	repo := calls.NewSQLRepo(testdb.Open(t))
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, org := range []string{"org1", "org1", "org2"} {
		_, err := repo.UpsertStarted(ctx, calls.CallLog{
			ID: string(rune('a' + i)), Provider: calls.ProviderRetell, ProviderCallID: string(rune('a' + i)),
			OrganizationID: org, CampaignID: "camp", Direction: calls.DirectionInbound,
			Status: calls.CallStatusInProgress, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
	}

	rows, err := repo.ListByOrganization(ctx, "org1", now.Add(-time.Hour), now.Add(time.Hour), "camp")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = repo.ListByOrganization(ctx, "org1", now.Add(-time.Hour), now.Add(time.Hour), "other")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
