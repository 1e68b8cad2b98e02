// Package phone holds the phone-number matching strategies used to link calls to leads.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Strategy names accepted by PHONE_MATCH_STRATEGY.
const (
	StrategyExact = "exact"
	StrategyE164  = "e164"
)

// Matcher turns a raw number into the key used for lead lookups.
//
// Normalized reports which lead column the key is compared against:
// false means the raw phone column, true the phone_normalized column.
type Matcher interface {
	Key(raw string) string
	Normalized() bool
}

// NewMatcher returns the strategy by name. Unknown names fall back to exact.
func NewMatcher(strategy, defaultRegion string) Matcher {
	if strings.EqualFold(strategy, StrategyE164) {
		return E164Matcher{Region: defaultRegion}
	}
	return ExactMatcher{}
}

// ExactMatcher compares numbers exactly as the provider sent them.
// Formatting differences ("(555) 123-4567" vs "+15551234567") do not match.
type ExactMatcher struct{}

func (ExactMatcher) Key(raw string) string { return raw }
func (ExactMatcher) Normalized() bool      { return false }

// E164Matcher canonicalizes to E.164 before comparing.
// Numbers that cannot be parsed are compared trimmed, as given.
type E164Matcher struct {
	Region string
}

func (m E164Matcher) Key(raw string) string {
	n, err := NormalizeE164(raw, m.Region)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return n
}

func (E164Matcher) Normalized() bool { return true }

// NormalizeE164 parses raw in the context of region (ISO 3166 alpha-2, default US)
// and formats it as E.164.
func NormalizeE164(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("phone number cannot be empty")
	}
	if region == "" {
		region = "US"
	}
	parsed, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("invalid phone number: %s", raw)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
