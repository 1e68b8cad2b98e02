package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local development.
// It mirrors the SQL repository's merge rules.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]CallLog // key: provider_call_id
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]CallLog{}} }

func (r *MemoryRepo) UpsertStarted(ctx context.Context, c CallLog) (CallLog, error) {
	if c.ID == "" || c.ProviderCallID == "" {
		return CallLog{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.rows[c.ProviderCallID]
	if !ok {
		r.rows[c.ProviderCallID] = clone(c)
		return clone(c), nil
	}

	existing.OrganizationID = coalesce(c.OrganizationID, existing.OrganizationID)
	existing.CampaignID = coalesce(c.CampaignID, existing.CampaignID)
	existing.LeadID = coalesce(c.LeadID, existing.LeadID)
	existing.AgentID = c.AgentID
	existing.Direction = c.Direction
	existing.PhoneNumber = c.PhoneNumber
	existing.FromNumber = c.FromNumber
	if existing.Status == CallStatusInitiated || existing.Status == CallStatusInProgress {
		existing.Status = c.Status
	}
	existing.Metadata = c.Metadata
	if c.StartedAt != nil {
		existing.StartedAt = c.StartedAt
	}
	existing.UpdatedAt = c.UpdatedAt
	r.rows[c.ProviderCallID] = existing
	return clone(existing), nil
}

func (r *MemoryRepo) InsertInitiated(ctx context.Context, c CallLog) (CallLog, error) {
	if c.ID == "" || c.ProviderCallID == "" {
		return CallLog{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rows[c.ProviderCallID]; ok {
		return clone(existing), nil
	}
	r.rows[c.ProviderCallID] = clone(c)
	return clone(c), nil
}

func (r *MemoryRepo) UpdateEnded(ctx context.Context, providerCallID string, u EndedUpdate) (CallLog, bool, error) {
	if providerCallID == "" {
		return CallLog{}, false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[providerCallID]
	if !ok {
		return CallLog{}, false, nil
	}
	c.Status = u.Status
	if u.DurationSeconds > 0 {
		c.DurationSeconds = u.DurationSeconds
	}
	c.RecordingURL = coalesce(u.RecordingURL, c.RecordingURL)
	if c.StartedAt == nil && u.StartedAt != nil {
		c.StartedAt = u.StartedAt
	}
	if u.EndedAt != nil {
		c.EndedAt = u.EndedAt
	}
	if u.CostAmount != nil {
		c.CostAmount = *u.CostAmount
	}
	c.UpdatedAt = u.UpdatedAt
	r.rows[providerCallID] = c
	return clone(c), true, nil
}

func (r *MemoryRepo) UpdateAnalysis(ctx context.Context, providerCallID string, u AnalysisUpdate) (CallLog, bool, error) {
	if providerCallID == "" {
		return CallLog{}, false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[providerCallID]
	if !ok {
		return CallLog{}, false, nil
	}
	c.Transcript = coalesce(u.Transcript, c.Transcript)
	if len(u.TranscriptSegments) > 0 {
		c.TranscriptSegments = u.TranscriptSegments
	}
	c.Summary = coalesce(u.Summary, c.Summary)
	c.Sentiment = coalesce(u.Sentiment, c.Sentiment)
	c.AppointmentSet = c.AppointmentSet || u.AppointmentSet
	if len(u.KeyTopics) > 0 {
		c.KeyTopics = u.KeyTopics
	}
	c.UpdatedAt = u.UpdatedAt
	r.rows[providerCallID] = c
	return clone(c), true, nil
}

func (r *MemoryRepo) Get(ctx context.Context, providerCallID string) (CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[providerCallID]
	if !ok {
		return CallLog{}, ErrNotFound
	}
	return clone(c), nil
}

func (r *MemoryRepo) ListByOrganization(ctx context.Context, organizationID string, from, to time.Time, campaignID string) ([]CallLog, error) {
	if organizationID == "" {
		return nil, ErrInvalidArgument
	}
	return r.filter(func(c CallLog) bool {
		if c.OrganizationID != organizationID {
			return false
		}
		if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			return false
		}
		return campaignID == "" || c.CampaignID == campaignID
	}), nil
}

func (r *MemoryRepo) ListBillable(ctx context.Context, from, to time.Time) ([]CallLog, error) {
	return r.filter(func(c CallLog) bool {
		if c.OrganizationID == "" || c.DurationSeconds <= 0 || !c.Status.IsTerminal() {
			return false
		}
		at := c.CreatedAt
		if c.EndedAt != nil {
			at = *c.EndedAt
		}
		return !at.Before(from) && at.Before(to)
	}), nil
}

// Len returns the number of stored rows.
func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *MemoryRepo) filter(keep func(CallLog) bool) []CallLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallLog, 0)
	for _, c := range r.rows {
		if keep(c) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ProviderCallID < out[j].ProviderCallID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func clone(c CallLog) CallLog {
	if c.TranscriptSegments != nil {
		c.TranscriptSegments = append([]TranscriptSegment(nil), c.TranscriptSegments...)
	}
	if c.KeyTopics != nil {
		c.KeyTopics = append([]string(nil), c.KeyTopics...)
	}
	return c
}

func coalesce(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
