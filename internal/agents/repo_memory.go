package agents

import (
	"context"
	"sync"

	"lead-response/internal/calls"
)

type MemoryRepo struct {
	mu       sync.Mutex
	settings []Setting
}

func NewMemoryRepo(seed ...Setting) *MemoryRepo {
	return &MemoryRepo{settings: append([]Setting(nil), seed...)}
}

func (r *MemoryRepo) FindByAgentID(_ context.Context, provider calls.Provider, agentID string) (Setting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.settings {
		if s.Provider == provider && s.AgentID == agentID && agentID != "" {
			return s, nil
		}
	}
	return Setting{}, ErrNotFound
}

func (r *MemoryRepo) DefaultFor(_ context.Context, organizationID string, provider calls.Provider) (Setting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		best  Setting
		found bool
	)
	for _, s := range r.settings {
		if s.OrganizationID != organizationID || s.Provider != provider {
			continue
		}
		switch {
		case !found:
			best, found = s, true
		case s.IsDefault && !best.IsDefault:
			best = s
		case s.IsDefault == best.IsDefault && s.CreatedAt.Before(best.CreatedAt):
			best = s
		}
	}
	if !found {
		return Setting{}, ErrNotFound
	}
	return best, nil
}

func (r *MemoryRepo) Upsert(_ context.Context, s Setting) (Setting, error) {
	if s.ID == "" || s.OrganizationID == "" || s.AgentID == "" || !s.Provider.Valid() {
		return Setting{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.settings {
		if cur.Provider == s.Provider && cur.AgentID == s.AgentID {
			s.ID = cur.ID
			s.CreatedAt = cur.CreatedAt
			r.settings[i] = s
			return s, nil
		}
	}
	r.settings = append(r.settings, s)
	return s, nil
}
