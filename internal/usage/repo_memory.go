package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"lead-response/internal/calls"
)

type memoryKey struct {
	org      string
	day      string
	provider calls.Provider
}

type MemoryRepo struct {
	mu   sync.Mutex
	rows map[memoryKey]Record

	// FailAdd makes Add fail; tests use it to exercise claim release.
	FailAdd error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[memoryKey]Record{}}
}

func keyOf(org string, day time.Time, p calls.Provider) memoryKey {
	return memoryKey{org: org, day: day.UTC().Format(time.DateOnly), provider: p}
}

func (m *MemoryRepo) Add(_ context.Context, r Record) (Record, error) {
	if r.OrganizationID == "" || !r.Provider.Valid() {
		return Record{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAdd != nil {
		return Record{}, m.FailAdd
	}
	k := keyOf(r.OrganizationID, r.UsageDate, r.Provider)
	cur, ok := m.rows[k]
	if !ok {
		cur = Record{OrganizationID: r.OrganizationID, UsageDate: r.UsageDate.UTC(), Provider: r.Provider}
	}
	cur.MinutesUsed += r.MinutesUsed
	cur.CallsMade += r.CallsMade
	cur.CallsAnswered += r.CallsAnswered
	cur.CostAmount += r.CostAmount
	cur.UpdatedAt = r.UpdatedAt.UTC()
	m.rows[k] = cur
	return cur, nil
}

func (m *MemoryRepo) ListRange(_ context.Context, organizationID string, from, to time.Time) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0)
	for _, r := range m.rows {
		if r.OrganizationID != organizationID || r.UsageDate.Before(from) || !r.UsageDate.Before(to) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UsageDate.Equal(out[j].UsageDate) {
			return out[i].UsageDate.Before(out[j].UsageDate)
		}
		return out[i].Provider < out[j].Provider
	})
	return out, nil
}

func (m *MemoryRepo) MinutesBetween(ctx context.Context, organizationID string, from, to time.Time) (float64, error) {
	rows, err := m.ListRange(ctx, organizationID, from, to)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, r := range rows {
		total += r.MinutesUsed
	}
	return total, nil
}

func (m *MemoryRepo) ReplaceDay(_ context.Context, day time.Time, rows []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := day.UTC().Format(time.DateOnly)
	for k := range m.rows {
		if k.day == d {
			delete(m.rows, k)
		}
	}
	for _, r := range rows {
		r.UsageDate = day.UTC()
		m.rows[keyOf(r.OrganizationID, day, r.Provider)] = r
	}
	return nil
}
