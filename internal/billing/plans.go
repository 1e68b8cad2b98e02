package billing

import (
	"strings"

	"lead-response/internal/config"
)

type Plan string

const (
	PlanTrial   Plan = "trial"
	PlanStarter Plan = "starter"
	PlanGrowth  Plan = "growth"
	PlanScale   Plan = "scale"
)

// Limits are what a plan allows per calendar month.
type Limits struct {
	MonthlyMinutes     float64 `json:"monthly_minutes"`
	MaxConcurrentCalls int     `json:"max_concurrent_calls"`
}

var planLimits = map[Plan]Limits{
	PlanTrial:   {MonthlyMinutes: 60, MaxConcurrentCalls: 1},
	PlanStarter: {MonthlyMinutes: 500, MaxConcurrentCalls: 2},
	PlanGrowth:  {MonthlyMinutes: 2000, MaxConcurrentCalls: 5},
	PlanScale:   {MonthlyMinutes: 10000, MaxConcurrentCalls: 20},
}

// LimitsFor returns the plan's limits. Unknown plans get trial limits.
func LimitsFor(p Plan) Limits {
	if l, ok := planLimits[p]; ok {
		return l
	}
	return planLimits[PlanTrial]
}

func ParsePlan(s string) (Plan, bool) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	_, ok := planLimits[p]
	return p, ok
}

// PriceMap resolves a Stripe price id to the plan it sells.
type PriceMap map[string]Plan

func NewPriceMap(cfg config.StripeConfig) PriceMap {
	m := PriceMap{}
	for id, p := range map[string]Plan{
		cfg.PriceStarter: PlanStarter,
		cfg.PriceGrowth:  PlanGrowth,
		cfg.PriceScale:   PlanScale,
	} {
		if id != "" {
			m[id] = p
		}
	}
	return m
}

func (m PriceMap) Plan(priceID string) (Plan, bool) {
	p, ok := m[priceID]
	return p, ok
}
