package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"lead-response/internal/agents"
	"lead-response/internal/auth"
	"lead-response/internal/billing"
	"lead-response/internal/calls"
	"lead-response/internal/leads"
	"lead-response/internal/telephony"
	"lead-response/pkg/errreport"
	"lead-response/pkg/logger"
	"lead-response/pkg/phone"
	"lead-response/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type initiateCallRequest struct {
	LeadID      string `json:"lead_id" validate:"omitempty,max=64"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,max=32"`
	CampaignID  string `json:"campaign_id" validate:"omitempty,max=64"`
	Provider    string `json:"provider" validate:"omitempty,oneof=retell vapi"`
	AgentID     string `json:"agent_id" validate:"omitempty,max=128"`
}

var errInvalidPhone = errors.New("invalid phone number")

type callTarget struct {
	LeadID     string
	CampaignID string
	ToNumber   string
}

// InitiateCall places an outbound call through the requested provider and records it as initiated.
//
// RBAC: owner, agent or super_admin. Plan minutes are checked by billing.RequireMinutesRemaining
// before this runs; the concurrency cap comes from the allowance it stores.
func (h Handlers) InitiateCall(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromGin(c)

	orgID, err := auth.OrganizationID(ctx)
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "organization_id required"})
		return
	}
	userID, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)

	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if err := validate.Struct(req); err != nil {
		badRequest(c, utils.ValidationMessage(err))
		return
	}
	if req.LeadID == "" && req.PhoneNumber == "" {
		badRequest(c, "lead_id or phone_number is required")
		return
	}

	provider := calls.ProviderRetell
	if req.Provider != "" {
		provider = calls.Provider(req.Provider)
	}
	p, err := h.Providers.Get(provider)
	if err != nil {
		badRequest(c, "provider not configured: "+string(provider))
		return
	}

	target, err := h.callTarget(ctx, orgID, req)
	switch {
	case errors.Is(err, leads.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lead not found"})
		return
	case errors.Is(err, errInvalidPhone):
		badRequest(c, "phone_number is not a valid phone number")
		return
	case err != nil:
		log.Error("lead lookup failed", slog.String("lead_id", req.LeadID), slog.Any("err", err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lead lookup failed"})
		return
	}

	setting, err := h.agentFor(ctx, orgID, provider, req.AgentID)
	switch {
	case errors.Is(err, agents.ErrNotFound):
		badRequest(c, "no agent configured for "+string(provider))
		return
	case err != nil:
		log.Error("agent lookup failed", slog.Any("err", err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "agent lookup failed"})
		return
	}

	slotHeld := false
	if a, ok := billing.AllowanceFrom(c); ok && h.Slots != nil {
		acquired, err := h.Slots.Acquire(ctx, orgID, a.Limits.MaxConcurrentCalls)
		if err != nil {
			log.Error("concurrency check failed", slog.Any("err", err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "concurrency check failed"})
			return
		}
		if !acquired {
			h.Metrics.RecordCallInitiated(string(provider), "concurrency_limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "concurrent call limit reached",
				"limit": a.Limits.MaxConcurrentCalls,
			})
			return
		}
		slotHeld = true
	}

	placeReq := telephony.PlaceCallRequest{
		OrganizationID: orgID,
		CampaignID:     target.CampaignID,
		LeadID:         target.LeadID,
		AgentID:        setting.AgentID,
		FromNumber:     setting.FromNumber,
		PhoneNumberID:  setting.PhoneNumberID,
		ToNumber:       target.ToNumber,
	}
	res, err := p.PlaceCall(ctx, placeReq)
	if err != nil {
		if slotHeld {
			if aerr := h.Slots.Abandon(ctx, orgID); aerr != nil {
				log.Warn("call slot abandon failed", slog.Any("err", aerr))
			}
		}
		msg := err.Error()
		var pe *telephony.ProviderError
		if errors.As(err, &pe) {
			msg = pe.Message
		}
		if errors.Is(err, telephony.ErrProviderRejected) {
			h.Metrics.RecordCallInitiated(string(provider), "rejected")
			log.Warn("provider rejected call", slog.String("provider", string(provider)), slog.String("reason", msg))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "provider": provider})
			return
		}
		h.Metrics.RecordCallInitiated(string(provider), "failed")
		log.Error("provider call failed", slog.String("provider", string(provider)), slog.Any("err", err))
		errreport.CaptureGin(c, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "provider request failed: " + msg, "provider": provider})
		return
	}
	log = log.With(slog.String("provider", string(provider)), slog.String("call_id", res.ProviderCallID))

	if slotHeld {
		if err := h.Slots.Bind(ctx, orgID, provider, res.ProviderCallID); err != nil {
			log.Warn("call slot bind failed", slog.Any("err", err))
		}
	}

	now := h.now().UTC()
	resp := gin.H{
		"call_id":         res.ProviderCallID,
		"provider":        provider,
		"provider_status": res.Status,
		"call_status":     calls.CallStatusInitiated,
		"lead_id":         target.LeadID,
		"campaign_id":     target.CampaignID,
		"to_number":       target.ToNumber,
	}
	stored, err := h.Calls.InsertInitiated(ctx, calls.CallLog{
		ID:             uuid.NewString(),
		Provider:       provider,
		ProviderCallID: res.ProviderCallID,
		OrganizationID: orgID,
		CampaignID:     target.CampaignID,
		LeadID:         target.LeadID,
		AgentID:        setting.AgentID,
		Direction:      calls.DirectionOutbound,
		PhoneNumber:    target.ToNumber,
		FromNumber:     setting.FromNumber,
		Status:         calls.CallStatusInitiated,
		Metadata:       placeReq.Metadata(),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		// The provider already dialed; a retry would place a second call.
		log.Error("initiated call not recorded", slog.Any("err", err))
		errreport.CaptureGin(c, err)
		resp["warning"] = "call placed but not recorded; it will be recorded from the provider's webhooks"
	} else {
		resp["id"] = stored.ID
	}

	if h.Audit != nil {
		if err := h.Audit.LogCallInitiated(ctx, orgID, userID, role, c.ClientIP(), res.ProviderCallID, gin.H{
			"provider":    provider,
			"lead_id":     target.LeadID,
			"campaign_id": target.CampaignID,
		}); err != nil {
			log.Warn("audit call initiation failed", slog.Any("err", err))
		}
	}
	h.Metrics.RecordCallInitiated(string(provider), "placed")
	log.Info("outbound call placed", slog.String("organization_id", orgID))

	c.JSON(http.StatusOK, resp)
}

// callTarget resolves who to dial. A lead must belong to the caller's organization;
// an explicit phone_number overrides the lead's number.
func (h Handlers) callTarget(ctx context.Context, orgID string, req initiateCallRequest) (callTarget, error) {
	t := callTarget{CampaignID: req.CampaignID}
	raw := req.PhoneNumber

	if req.LeadID != "" {
		l, err := h.Leads.Get(ctx, req.LeadID)
		if err != nil {
			return callTarget{}, err
		}
		if l.OrganizationID != orgID {
			return callTarget{}, leads.ErrNotFound
		}
		t.LeadID = l.ID
		if t.CampaignID == "" {
			t.CampaignID = l.CampaignID
		}
		if raw == "" {
			raw = l.PhoneNormalized
		}
		if raw == "" {
			raw = l.Phone
		}
	}

	to, err := phone.NormalizeE164(raw, h.DefaultRegion)
	if err != nil {
		return callTarget{}, errInvalidPhone
	}
	t.ToNumber = to
	return t, nil
}

// agentFor picks the organization's default agent, or the requested one when it belongs to
// the organization.
func (h Handlers) agentFor(ctx context.Context, orgID string, provider calls.Provider, agentID string) (agents.Setting, error) {
	if agentID == "" {
		return h.Agents.DefaultFor(ctx, orgID, provider)
	}
	s, err := h.Agents.FindByAgentID(ctx, provider, agentID)
	if err != nil {
		return agents.Setting{}, err
	}
	if s.OrganizationID != orgID {
		return agents.Setting{}, agents.ErrNotFound
	}
	return s, nil
}
