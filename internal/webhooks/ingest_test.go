package webhooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lead-response/internal/calls"
	"lead-response/internal/leads"
	"lead-response/internal/usage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver struct {
	id  calls.Identity
	err error
}

func (r staticResolver) Resolve(context.Context, calls.CallEvent) (calls.Identity, error) {
	return r.id, r.err
}

type failingRecorder struct{ err error }

func (r failingRecorder) Apply(context.Context, calls.CallEvent, calls.Identity) (calls.Result, error) {
	return calls.Result{}, r.err
}

type failingLeads struct{ calls int }

func (l *failingLeads) ApplyCallOutcome(context.Context, string, string, calls.CallStatus, bool) (leads.Status, bool, error) {
	l.calls++
	return "", false, errors.New("leads table locked")
}

func endedEvent() calls.CallEvent {
	return calls.CallEvent{
		Provider:        calls.ProviderRetell,
		ProviderCallID:  "c1",
		Phase:           calls.PhaseEnded,
		Status:          calls.CallStatusCompleted,
		DurationSeconds: 60,
	}
}

func TestIngest_StoreFailureIsReturned(t *testing.T) {
	boom := errors.New("db down")
	ing := NewIngestor(staticResolver{id: calls.Identity{OrganizationID: "org1"}}, failingRecorder{err: boom}, nil, nil, nil)

	_, err := ing.Ingest(context.Background(), endedEvent())
	assert.ErrorIs(t, err, boom)

	_, err = NewIngestor(staticResolver{err: boom}, failingRecorder{}, nil, nil, nil).Ingest(context.Background(), endedEvent())
	assert.ErrorIs(t, err, boom)
}

func TestIngest_LeadFailureIsBestEffort(t *testing.T) {
	repo := calls.NewMemoryRepo()
	rec := calls.NewRecorder(repo)
	_, err := repo.UpsertStarted(context.Background(), calls.CallLog{
		ID: "row1", Provider: calls.ProviderRetell, ProviderCallID: "c1",
		OrganizationID: "org1", LeadID: "lead1", Status: calls.CallStatusInProgress,
	})
	require.NoError(t, err)

	lf := &failingLeads{}
	u := usage.NewMemoryRepo()
	ing := NewIngestor(staticResolver{id: calls.Identity{OrganizationID: "org1"}}, rec,
		usage.NewAccumulator(u, nil, time.UTC), lf, nil)

	out, err := ing.Ingest(context.Background(), endedEvent())
	require.NoError(t, err)
	assert.Equal(t, 1, lf.calls)
	assert.True(t, out.UsageCounted)
	assert.False(t, out.LeadAdvanced)
}

func TestIngest_UsageFailureFailsTheDelivery(t *testing.T) {
	repo := calls.NewMemoryRepo()
	_, err := repo.UpsertStarted(context.Background(), calls.CallLog{
		ID: "row1", Provider: calls.ProviderRetell, ProviderCallID: "c1", OrganizationID: "org1", Status: calls.CallStatusInProgress,
	})
	require.NoError(t, err)

	u := usage.NewMemoryRepo()
	u.FailAdd = errors.New("usage write failed")
	claims := usage.NewMemoryClaims()
	ing := NewIngestor(staticResolver{id: calls.Identity{OrganizationID: "org1"}}, calls.NewRecorder(repo),
		usage.NewAccumulator(u, claims, time.UTC), nil, nil)

	_, err = ing.Ingest(context.Background(), endedEvent())
	require.Error(t, err)

	// the retry succeeds once the store recovers
	u.FailAdd = nil
	out, err := ing.Ingest(context.Background(), endedEvent())
	require.NoError(t, err)
	assert.True(t, out.UsageCounted)
}

func TestProviderHandler_StoreFailureIs500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ing := NewIngestor(staticResolver{id: calls.Identity{OrganizationID: "org1"}}, failingRecorder{err: errors.New("db down")}, nil, nil, nil)
	h := ProviderHandler{Ingestor: ing}
	r := gin.New()
	r.POST("/webhooks/retell", h.HandleRetell)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/retell", strings.NewReader(retellStarted))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"failed to process event"}`, w.Body.String())
}

type recordingSlots struct{ released []string }

func (s *recordingSlots) Release(_ context.Context, org string, _ calls.Provider, callID string) (bool, error) {
	s.released = append(s.released, org+"/"+callID)
	return true, nil
}

func TestIngest_TerminalEventReleasesSlot(t *testing.T) {
	repo := calls.NewMemoryRepo()
	_, err := repo.UpsertStarted(context.Background(), calls.CallLog{
		ID: "row1", Provider: calls.ProviderRetell, ProviderCallID: "c1",
		OrganizationID: "org1", Status: calls.CallStatusInProgress,
	})
	require.NoError(t, err)

	slots := &recordingSlots{}
	ing := NewIngestor(staticResolver{id: calls.Identity{OrganizationID: "org1"}}, calls.NewRecorder(repo), nil, nil, nil).WithSlots(slots)

	started := endedEvent()
	started.Phase = calls.PhaseStarted
	started.Status = calls.CallStatusInProgress
	_, err = ing.Ingest(context.Background(), started)
	require.NoError(t, err)
	assert.Empty(t, slots.released)

	_, err = ing.Ingest(context.Background(), endedEvent())
	require.NoError(t, err)
	assert.Equal(t, []string{"org1/c1"}, slots.released)
}
