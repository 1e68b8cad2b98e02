package calls

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder applies normalized events to call_logs.
//
// Phase rules:
//   - started upserts by provider call id (create in_progress, or overwrite the same fields).
//   - ended and analyzed are partial updates; when no row exists they are a no-op.
//     An ended event alone lacks the fields needed to create a well-formed row.
type Recorder struct {
	repo  Repository
	clock func() time.Time
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, clock: time.Now}
}

// WithClock overrides the time source; intended for tests.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.clock = clock
	return r
}

// Result describes what Apply did.
type Result struct {
	// Log is the row after the update. Zero when Found is false.
	Log   CallLog
	Found bool
}

func (r *Recorder) Apply(ctx context.Context, ev CallEvent, id Identity) (Result, error) {
	if ev.ProviderCallID == "" {
		return Result{}, ErrInvalidArgument
	}
	now := r.clock().UTC()

	switch ev.Phase {
	case PhaseStarted:
		row := CallLog{
			ID:             uuid.NewString(),
			Provider:       ev.Provider,
			ProviderCallID: ev.ProviderCallID,
			OrganizationID: id.OrganizationID,
			CampaignID:     id.CampaignID,
			LeadID:         id.LeadID,
			AgentID:        ev.AgentID,
			Direction:      ev.Direction,
			PhoneNumber:    ev.PhoneNumber,
			FromNumber:     ev.FromNumber,
			Status:         CallStatusInProgress,
			Metadata:       ev.Metadata,
			StartedAt:      ev.StartedAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		out, err := r.repo.UpsertStarted(ctx, row)
		if err != nil {
			return Result{}, fmt.Errorf("upsert started call: %w", err)
		}
		return Result{Log: out, Found: true}, nil

	case PhaseEnded:
		out, found, err := r.repo.UpdateEnded(ctx, ev.ProviderCallID, EndedUpdate{
			Status:          ev.Status,
			DurationSeconds: ev.DurationSeconds,
			RecordingURL:    ev.RecordingURL,
			StartedAt:       ev.StartedAt,
			EndedAt:         ev.EndedAt,
			CostAmount:      ev.CostAmount,
			UpdatedAt:       now,
		})
		if err != nil {
			return Result{}, fmt.Errorf("update ended call: %w", err)
		}
		if !found || !ev.HasAnalysis {
			return Result{Log: out, Found: found}, nil
		}
		return r.applyAnalysis(ctx, ev, now)

	case PhaseAnalyzed:
		return r.applyAnalysis(ctx, ev, now)

	default:
		return Result{}, fmt.Errorf("%w: unknown phase %q", ErrInvalidArgument, ev.Phase)
	}
}

func (r *Recorder) applyAnalysis(ctx context.Context, ev CallEvent, now time.Time) (Result, error) {
	out, found, err := r.repo.UpdateAnalysis(ctx, ev.ProviderCallID, AnalysisUpdate{
		Transcript:         ev.Transcript,
		TranscriptSegments: ev.TranscriptSegments,
		Summary:            ev.Summary,
		Sentiment:          ev.Sentiment,
		AppointmentSet:     ev.AppointmentSet,
		KeyTopics:          ev.KeyTopics,
		UpdatedAt:          now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("update call analysis: %w", err)
	}
	return Result{Log: out, Found: found}, nil
}
