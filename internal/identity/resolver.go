// Package identity links a provider call event to the organization, campaign and lead it belongs to.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lead-response/internal/agents"
	"lead-response/internal/calls"
	"lead-response/internal/leads"
	"lead-response/pkg/phone"
)

// ErrUnresolvedTenant marks an orphan event: no organization could be determined.
// Callers acknowledge such events and write nothing.
var ErrUnresolvedTenant = errors.New("identity: organization could not be resolved")

// Metadata keys, in lookup order.
var (
	organizationKeys = []string{"organization_id", "organizationId", "org_id"}
	campaignKeys     = []string{"campaign_id", "campaignId"}
	leadKeys         = []string{"lead_id", "leadId"}
)

type AgentLookup interface {
	FindByAgentID(ctx context.Context, provider calls.Provider, agentID string) (agents.Setting, error)
}

type LeadLookup interface {
	Get(ctx context.Context, id string) (leads.Lead, error)
	FindByPhone(ctx context.Context, organizationID, key string, normalized bool) (leads.Lead, error)
}

// Resolver applies a fixed order; the first source that answers wins.
//
// Organization: event metadata, then the agent-settings owner of the agent/assistant id.
// Campaign and lead: event metadata, then the lead matching the event's phone number.
// A metadata lead owned by another organization is ignored.
type Resolver struct {
	agents  AgentLookup
	leads   LeadLookup
	matcher phone.Matcher
}

func NewResolver(a AgentLookup, l LeadLookup, m phone.Matcher) *Resolver {
	if m == nil {
		m = phone.ExactMatcher{}
	}
	return &Resolver{agents: a, leads: l, matcher: m}
}

func (r *Resolver) Resolve(ctx context.Context, ev calls.CallEvent) (calls.Identity, error) {
	var id calls.Identity

	id.OrganizationID = metaString(ev.Metadata, organizationKeys...)
	if id.OrganizationID == "" && ev.AgentID != "" && r.agents != nil {
		s, err := r.agents.FindByAgentID(ctx, ev.Provider, ev.AgentID)
		switch {
		case err == nil:
			id.OrganizationID = s.OrganizationID
		case !errors.Is(err, agents.ErrNotFound):
			return calls.Identity{}, fmt.Errorf("lookup agent %s: %w", ev.AgentID, err)
		}
	}
	if id.OrganizationID == "" {
		return calls.Identity{}, ErrUnresolvedTenant
	}

	id.CampaignID = metaString(ev.Metadata, campaignKeys...)
	id.LeadID = metaString(ev.Metadata, leadKeys...)
	if r.leads == nil {
		return id, nil
	}

	if id.LeadID != "" {
		lead, err := r.leads.Get(ctx, id.LeadID)
		switch {
		case errors.Is(err, leads.ErrNotFound):
			return id, nil
		case err != nil:
			return calls.Identity{}, fmt.Errorf("lookup lead %s: %w", id.LeadID, err)
		case lead.OrganizationID != id.OrganizationID:
			// Another tenant's lead is never linked; fall back to the phone match.
			id.LeadID = ""
		default:
			if id.CampaignID == "" {
				id.CampaignID = lead.CampaignID
			}
			return id, nil
		}
	}

	key := r.matcher.Key(ev.PhoneNumber)
	if key == "" {
		return id, nil
	}
	lead, err := r.leads.FindByPhone(ctx, id.OrganizationID, key, r.matcher.Normalized())
	if errors.Is(err, leads.ErrNotFound) {
		return id, nil
	}
	if err != nil {
		return calls.Identity{}, fmt.Errorf("lookup lead: %w", err)
	}
	id.LeadID = lead.ID
	if id.CampaignID == "" {
		id.CampaignID = lead.CampaignID
	}
	return id, nil
}

// metaString reads the first non-empty value among keys. Non-string values
// (numeric ids from some CRMs) are formatted.
func metaString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = fmt.Sprintf("%.0f", t)
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
