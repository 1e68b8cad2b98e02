package usage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"lead-response/internal/calls"
)

type BillableLister interface {
	ListBillable(ctx context.Context, from, to time.Time) ([]calls.CallLog, error)
}

// Aggregator rebuilds a day of billing_usage from call_logs.
//
// Reconciliation dates calls by ended_at (created_at when unknown) in the configured location,
// so it also repairs rows the accumulator attributed to a neighbouring day.
type Aggregator struct {
	calls BillableLister
	repo  Repository
	loc   *time.Location
	clock func() time.Time
}

func NewAggregator(c BillableLister, repo Repository, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{calls: c, repo: repo, loc: loc, clock: time.Now}
}

func (a *Aggregator) WithClock(clock func() time.Time) *Aggregator {
	a.clock = clock
	return a
}

type Summary struct {
	Date  string `json:"date"`
	Rows  int    `json:"rows"`
	Calls int    `json:"calls"`
}

// Reconcile recomputes the calendar date of day. Only the year, month and day of day are used.
func (a *Aggregator) Reconcile(ctx context.Context, day time.Time) (Summary, error) {
	y, m, d := day.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	from, to := Bounds(date, a.loc)

	billable, err := a.calls.ListBillable(ctx, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("list billable calls: %w", err)
	}

	now := a.clock().UTC()
	type key struct {
		org      string
		provider calls.Provider
	}
	byKey := map[key]*Record{}
	for _, c := range billable {
		k := key{c.OrganizationID, c.Provider}
		r, ok := byKey[k]
		if !ok {
			r = &Record{OrganizationID: c.OrganizationID, UsageDate: date, Provider: c.Provider, UpdatedAt: now}
			byKey[k] = r
		}
		r.MinutesUsed += Minutes(c.DurationSeconds)
		r.CallsMade++
		if c.Status.Answered() {
			r.CallsAnswered++
		}
		r.CostAmount += c.CostAmount
	}

	rows := make([]Record, 0, len(byKey))
	for _, r := range byKey {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].OrganizationID != rows[j].OrganizationID {
			return rows[i].OrganizationID < rows[j].OrganizationID
		}
		return rows[i].Provider < rows[j].Provider
	})

	if err := a.repo.ReplaceDay(ctx, date, rows); err != nil {
		return Summary{}, fmt.Errorf("replace usage day: %w", err)
	}
	return Summary{Date: date.Format(time.DateOnly), Rows: len(rows), Calls: len(billable)}, nil
}

// Yesterday is the calendar date before today in the aggregator's location.
func (a *Aggregator) Yesterday() time.Time {
	return Day(a.clock(), a.loc).AddDate(0, 0, -1)
}
