package usage

import (
	"context"
	"fmt"
	"time"

	"lead-response/internal/calls"
)

// Accumulator adds finished calls to the daily rollup.
//
// Rules:
//   - Only terminal calls with a positive duration and a resolved organization count.
//   - The usage date is the accumulator's own "today" in its configured location,
//     not the call's timestamp. Calls ending near midnight can land on the neighbouring day.
type Accumulator struct {
	repo   Repository
	claims ClaimStore
	loc    *time.Location
	clock  func() time.Time
}

func NewAccumulator(repo Repository, claims ClaimStore, loc *time.Location) *Accumulator {
	if loc == nil {
		loc = time.UTC
	}
	return &Accumulator{repo: repo, claims: claims, loc: loc, clock: time.Now}
}

func (a *Accumulator) WithClock(clock func() time.Time) *Accumulator {
	a.clock = clock
	return a
}

type Input struct {
	OrganizationID  string
	Provider        calls.Provider
	ProviderCallID  string
	DurationSeconds int
	CostAmount      float64
	Answered        bool
}

// InputFromCall builds the accumulator input for a stored call log.
func InputFromCall(c calls.CallLog) Input {
	return Input{
		OrganizationID:  c.OrganizationID,
		Provider:        c.Provider,
		ProviderCallID:  c.ProviderCallID,
		DurationSeconds: c.DurationSeconds,
		CostAmount:      c.CostAmount,
		Answered:        c.Status.Answered(),
	}
}

// Accumulate reports counted=false when the input does not qualify or the call was counted before.
func (a *Accumulator) Accumulate(ctx context.Context, in Input) (rec Record, counted bool, err error) {
	if in.OrganizationID == "" || in.DurationSeconds <= 0 {
		return Record{}, false, nil
	}

	var key string
	if a.claims != nil && in.ProviderCallID != "" {
		key = claimKey(in.Provider, in.ProviderCallID)
		ok, err := a.claims.Claim(ctx, key)
		if err != nil {
			return Record{}, false, fmt.Errorf("claim usage delivery: %w", err)
		}
		if !ok {
			return Record{}, false, nil
		}
	}

	now := a.clock()
	answered := 0
	if in.Answered {
		answered = 1
	}
	rec, err = a.repo.Add(ctx, Record{
		OrganizationID: in.OrganizationID,
		UsageDate:      Day(now, a.loc),
		Provider:       in.Provider,
		MinutesUsed:    Minutes(in.DurationSeconds),
		CallsMade:      1,
		CallsAnswered:  answered,
		CostAmount:     in.CostAmount,
		UpdatedAt:      now.UTC(),
	})
	if err != nil {
		if key != "" {
			// Let the provider's retry count it.
			_ = a.claims.Release(context.WithoutCancel(ctx), key)
		}
		return Record{}, false, fmt.Errorf("add usage: %w", err)
	}
	return rec, true, nil
}
