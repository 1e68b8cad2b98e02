package billing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrMinutesExhausted = errors.New("plan minute limit reached")

type MinuteCounter interface {
	MinutesBetween(ctx context.Context, organizationID string, from, to time.Time) (float64, error)
}

// Allowance is an organization's month-to-date position against its plan.
type Allowance struct {
	OrganizationID   string  `json:"organization_id"`
	Plan             Plan    `json:"plan"`
	Limits           Limits  `json:"limits"`
	UsedMinutes      float64 `json:"used_minutes"`
	RemainingMinutes float64 `json:"remaining_minutes"`
}

// Limiter reads usage rows, so it sees whatever the accumulator has counted so far.
type Limiter struct {
	orgs  OrganizationRepository
	usage MinuteCounter
	loc   *time.Location
	clock func() time.Time
}

func NewLimiter(orgs OrganizationRepository, usage MinuteCounter, loc *time.Location) *Limiter {
	if loc == nil {
		loc = time.UTC
	}
	return &Limiter{orgs: orgs, usage: usage, loc: loc, clock: time.Now}
}

func (l *Limiter) WithClock(clock func() time.Time) *Limiter {
	l.clock = clock
	return l
}

func (l *Limiter) Allowance(ctx context.Context, organizationID string) (Allowance, error) {
	org, err := l.orgs.Get(ctx, organizationID)
	if err != nil {
		return Allowance{}, err
	}
	y, m, _ := l.clock().In(l.loc).Date()
	from := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	used, err := l.usage.MinutesBetween(ctx, organizationID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return Allowance{}, fmt.Errorf("month-to-date minutes: %w", err)
	}

	limits := LimitsFor(org.Plan)
	remaining := limits.MonthlyMinutes - used
	if remaining < 0 {
		remaining = 0
	}
	return Allowance{
		OrganizationID:   organizationID,
		Plan:             org.Plan,
		Limits:           limits,
		UsedMinutes:      used,
		RemainingMinutes: remaining,
	}, nil
}

// CheckCanPlaceCall returns ErrMinutesExhausted once the plan's minutes are used up.
func (l *Limiter) CheckCanPlaceCall(ctx context.Context, organizationID string) (Allowance, error) {
	a, err := l.Allowance(ctx, organizationID)
	if err != nil {
		return Allowance{}, err
	}
	if a.RemainingMinutes <= 0 {
		return a, ErrMinutesExhausted
	}
	return a, nil
}
