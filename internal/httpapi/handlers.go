package httpapi

import (
	"context"
	"net/http"
	"time"

	"lead-response/internal/agents"
	"lead-response/internal/audit"
	"lead-response/internal/auth"
	"lead-response/internal/billing"
	"lead-response/internal/calls"
	"lead-response/internal/leads"
	"lead-response/internal/reporting"
	"lead-response/internal/telephony"
	"lead-response/internal/usage"
	"lead-response/pkg/metrics"
	"lead-response/pkg/utils"

	"github.com/gin-gonic/gin"
)

type LeadReader interface {
	Get(ctx context.Context, id string) (leads.Lead, error)
}

type AgentDirectory interface {
	FindByAgentID(ctx context.Context, provider calls.Provider, agentID string) (agents.Setting, error)
	DefaultFor(ctx context.Context, organizationID string, provider calls.Provider) (agents.Setting, error)
}

type InitiatedCallStore interface {
	InsertInitiated(ctx context.Context, c calls.CallLog) (calls.CallLog, error)
}

type CallSlotter interface {
	Acquire(ctx context.Context, organizationID string, limit int) (bool, error)
	Bind(ctx context.Context, organizationID string, provider calls.Provider, providerCallID string) error
	Abandon(ctx context.Context, organizationID string) error
}

type AllowanceReader interface {
	Allowance(ctx context.Context, organizationID string) (billing.Allowance, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, day time.Time) (usage.Summary, error)
	Yesterday() time.Time
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Leads      LeadReader
	Agents     AgentDirectory
	Calls      InitiatedCallStore
	Providers  telephony.Registry
	Slots      CallSlotter
	Allowance  AllowanceReader
	Reports    *reporting.Service
	Aggregator Reconciler
	Audit      *audit.Service
	Metrics    *metrics.Metrics

	// Location interprets calendar dates in query strings; DefaultRegion parses local phone numbers.
	Location      *time.Location
	DefaultRegion string

	Now func() time.Time
}

var validate = utils.NewValidator()

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h Handlers) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// OrganizationKey keys per-tenant limits by the caller's organization.
func OrganizationKey(c *gin.Context) string {
	id, _ := auth.OrganizationID(c.Request.Context())
	return id
}
