package leads

import (
	"context"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu    sync.Mutex
	leads map[string]Lead
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{leads: map[string]Lead{}}
}

func (r *MemoryRepo) Create(_ context.Context, l Lead) (Lead, error) {
	if l.ID == "" || l.OrganizationID == "" {
		return Lead{}, ErrInvalidArgument
	}
	if l.Status == "" {
		l.Status = StatusNew
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads[l.ID] = l
	return l, nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (r *MemoryRepo) FindByPhone(_ context.Context, organizationID, key string, normalized bool) (Lead, error) {
	if organizationID == "" || key == "" {
		return Lead{}, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		best  Lead
		found bool
	)
	for _, l := range r.leads {
		if l.OrganizationID != organizationID {
			continue
		}
		v := l.Phone
		if normalized {
			v = l.PhoneNormalized
		}
		if v != key {
			continue
		}
		if !found || l.CreatedAt.After(best.CreatedAt) {
			best, found = l, true
		}
	}
	if !found {
		return Lead{}, ErrNotFound
	}
	return best, nil
}

func (r *MemoryRepo) Update(_ context.Context, id string, p Patch) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&l.Name, p.Name)
	set(&l.Email, p.Email)
	set(&l.Phone, p.Phone)
	set(&l.PhoneNormalized, p.PhoneNormalized)
	set(&l.CampaignID, p.CampaignID)
	if p.Status != nil {
		l.Status = *p.Status
	}
	l.UpdatedAt = p.UpdatedAt.UTC()
	r.leads[id] = l
	return l, nil
}

func (r *MemoryRepo) AdvanceStatus(_ context.Context, organizationID, id string, next Status, now time.Time) (bool, error) {
	if id == "" || !next.Valid() {
		return false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok || (organizationID != "" && l.OrganizationID != organizationID) {
		return false, ErrNotFound
	}
	if !CanAdvance(l.Status, next) {
		return false, nil
	}
	l.Status = next
	l.UpdatedAt = now.UTC()
	r.leads[id] = l
	return true, nil
}
