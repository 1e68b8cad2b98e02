package telephony

import (
	"context"
	"errors"
	"fmt"

	"lead-response/internal/calls"
)

// Provider places outbound calls through a voice-AI platform.
//
// Rules:
//   - No provider HTTP calls outside telephony adapters.
//   - Requests are organization-scoped; the organization travels in call metadata so
//     later webhooks resolve the tenant without a lookup.
type Provider interface {
	Name() calls.Provider
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
}

type PlaceCallRequest struct {
	OrganizationID string
	CampaignID     string
	LeadID         string

	// AgentID is the Retell agent id or Vapi assistant id.
	AgentID string
	// FromNumber is used by Retell; PhoneNumberID by Vapi.
	FromNumber    string
	PhoneNumberID string

	ToNumber string
}

// Metadata is what the provider echoes back on every webhook for this call.
func (r PlaceCallRequest) Metadata() map[string]any {
	m := map[string]any{"organization_id": r.OrganizationID}
	if r.CampaignID != "" {
		m["campaign_id"] = r.CampaignID
	}
	if r.LeadID != "" {
		m["lead_id"] = r.LeadID
	}
	return m
}

type PlaceCallResult struct {
	ProviderCallID string
	// Status is the provider's own status string, informational only.
	Status string
}

var (
	// ErrProviderRejected wraps 4xx answers: the request itself was refused.
	ErrProviderRejected = errors.New("telephony: provider rejected request")
	// ErrProviderUnavailable wraps transport failures and 5xx answers.
	ErrProviderUnavailable = errors.New("telephony: provider unavailable")
	ErrNotConfigured       = errors.New("telephony: provider not configured")
)

// ProviderError carries the provider's own message so callers can surface it.
type ProviderError struct {
	Provider   calls.Provider
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %d %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return ErrProviderRejected
	}
	return ErrProviderUnavailable
}

// Registry holds the providers that have credentials configured.
type Registry map[calls.Provider]Provider

func NewRegistry(providers ...Provider) Registry {
	r := Registry{}
	for _, p := range providers {
		if p != nil {
			r[p.Name()] = p
		}
	}
	return r
}

func (r Registry) Get(name calls.Provider) (Provider, error) {
	p, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	return p, nil
}
