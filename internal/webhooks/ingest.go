// Package webhooks receives provider call events and internal automation events
// and drives them through the call pipeline.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lead-response/internal/calls"
	"lead-response/internal/identity"
	"lead-response/internal/leads"
	"lead-response/internal/usage"
	"lead-response/pkg/logger"
	"lead-response/pkg/metrics"
)

type IdentityResolver interface {
	Resolve(ctx context.Context, ev calls.CallEvent) (calls.Identity, error)
}

type CallRecorder interface {
	Apply(ctx context.Context, ev calls.CallEvent, id calls.Identity) (calls.Result, error)
}

type UsageAccumulator interface {
	Accumulate(ctx context.Context, in usage.Input) (usage.Record, bool, error)
}

type LeadAdvancer interface {
	ApplyCallOutcome(ctx context.Context, organizationID, leadID string, status calls.CallStatus, appointmentSet bool) (leads.Status, bool, error)
}

// SlotReleaser frees the concurrency slot an outbound call held.
type SlotReleaser interface {
	Release(ctx context.Context, organizationID string, provider calls.Provider, providerCallID string) (bool, error)
}

// Ingestor runs one normalized event through resolve, record, usage and lead steps.
//
// Rules:
//   - Orphan events (no organization) write nothing.
//   - Usage counts only ended events whose stored row is terminal with a positive duration.
//   - The lead side effect is best effort: its failure is logged, never returned.
type Ingestor struct {
	resolver IdentityResolver
	recorder CallRecorder
	usage    UsageAccumulator
	leads    LeadAdvancer
	slots    SlotReleaser
	metrics  *metrics.Metrics
}

func NewIngestor(r IdentityResolver, rec CallRecorder, u UsageAccumulator, l LeadAdvancer, m *metrics.Metrics) *Ingestor {
	return &Ingestor{resolver: r, recorder: rec, usage: u, leads: l, metrics: m}
}

func (i *Ingestor) WithSlots(s SlotReleaser) *Ingestor {
	i.slots = s
	return i
}

// Outcome describes what one event changed.
type Outcome struct {
	Identity calls.Identity
	Orphan   bool

	// Call is the stored row after the update; Found is false when no row existed.
	Call  calls.CallLog
	Found bool

	UsageCounted bool
	Usage        usage.Record

	LeadStatus   leads.Status
	LeadAdvanced bool
}

func (i *Ingestor) Ingest(ctx context.Context, ev calls.CallEvent) (Outcome, error) {
	id, err := i.resolver.Resolve(ctx, ev)
	if errors.Is(err, identity.ErrUnresolvedTenant) {
		return Outcome{Orphan: true}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve identity: %w", err)
	}
	return i.Apply(ctx, ev, id)
}

// Apply records ev under an already known identity.
func (i *Ingestor) Apply(ctx context.Context, ev calls.CallEvent, id calls.Identity) (Outcome, error) {
	log := logger.From(ctx)
	out := Outcome{Identity: id}

	res, err := i.recorder.Apply(ctx, ev, id)
	if err != nil {
		return out, err
	}
	out.Call, out.Found = res.Log, res.Found
	if !res.Found {
		log.Info("call event matched no call log", slog.String("phase", string(ev.Phase)))
		return out, nil
	}

	c := res.Log
	if ev.Phase == calls.PhaseEnded && c.Status.IsTerminal() && i.slots != nil {
		if _, err := i.slots.Release(ctx, c.OrganizationID, c.Provider, c.ProviderCallID); err != nil {
			log.Warn("call slot release failed", slog.String("call_id", c.ProviderCallID), slog.Any("err", err))
		}
	}

	if ev.Phase == calls.PhaseEnded && c.Status.IsTerminal() && c.DurationSeconds > 0 && i.usage != nil {
		rec, counted, err := i.usage.Accumulate(ctx, usage.InputFromCall(c))
		if err != nil {
			return out, err
		}
		out.UsageCounted, out.Usage = counted, rec
		if counted {
			i.metrics.RecordUsage(string(c.Provider), usage.Minutes(c.DurationSeconds))
		}
	}

	if ev.Phase != calls.PhaseStarted && c.Status.IsTerminal() && i.leads != nil {
		leadID := c.LeadID
		if leadID == "" {
			leadID = id.LeadID
		}
		next, advanced, err := i.leads.ApplyCallOutcome(ctx, c.OrganizationID, leadID, c.Status, c.AppointmentSet)
		switch {
		case errors.Is(err, leads.ErrNotFound):
			log.Warn("lead for call not found", slog.String("lead_id", leadID))
		case err != nil:
			log.Error("lead status update failed", slog.String("lead_id", leadID), slog.Any("err", err))
		default:
			out.LeadStatus, out.LeadAdvanced = next, advanced
			if advanced {
				i.metrics.RecordLeadAdvanced(string(next))
			}
		}
	}
	return out, nil
}

