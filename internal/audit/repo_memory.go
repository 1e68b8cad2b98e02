package audit

import (
	"context"
	"errors"
	"sync"
)

// ErrDuplicateEvent mirrors the primary key on audit_events.
var ErrDuplicateEvent = errors.New("audit: duplicate event id")

// MemoryRepo keeps events in insertion order. Used by tests and by local runs without Postgres.
type MemoryRepo struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{seen: map[string]struct{}{}} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[e.ID]; dup {
		return ErrDuplicateEvent
	}
	r.seen[e.ID] = struct{}{}
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything appended so far.
func (r *MemoryRepo) Events() []Event {
	return r.filter(func(Event) bool { return true })
}

// ForOrganization returns the events recorded under organizationID, oldest first.
func (r *MemoryRepo) ForOrganization(organizationID string) []Event {
	return r.filter(func(e Event) bool { return e.OrganizationID == organizationID })
}

// OfType returns the events of one type, oldest first.
func (r *MemoryRepo) OfType(t EventType) []Event {
	return r.filter(func(e Event) bool { return e.Type == t })
}

func (r *MemoryRepo) filter(keep func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
