package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"lead-response/internal/calls"
	"lead-response/internal/leads"
	"lead-response/pkg/errreport"
	"lead-response/pkg/logger"
	"lead-response/pkg/metrics"
	"lead-response/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Automation event names.
const (
	EventLeadCreated    = "lead.created"
	EventLeadUpdated    = "lead.updated"
	EventCallCompleted  = "call.completed"
	EventAppointmentSet = "appointment.set"
	EventCustom         = "custom"
)

type LeadWriter interface {
	Create(ctx context.Context, in leads.CreateInput) (leads.Lead, error)
	Update(ctx context.Context, organizationID, id string, p leads.Patch) (leads.Lead, error)
	MarkAppointmentSet(ctx context.Context, organizationID, leadID string) (bool, error)
}

type CallReader interface {
	Get(ctx context.Context, providerCallID string) (calls.CallLog, error)
}

// AutomationEvent is the envelope posted by internal workflow tools.
type AutomationEvent struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data"`
}

type LeadCreatedData struct {
	OrganizationID string `json:"organization_id" validate:"required"`
	CampaignID     string `json:"campaign_id"`
	Name           string `json:"name"`
	Email          string `json:"email" validate:"omitempty,email"`
	Phone          string `json:"phone" validate:"required"`
	Source         string `json:"source"`
}

type LeadUpdatedData struct {
	OrganizationID string  `json:"organization_id"`
	LeadID         string  `json:"lead_id" validate:"required"`
	CampaignID     *string `json:"campaign_id"`
	Name           *string `json:"name"`
	Email          *string `json:"email" validate:"omitempty,email"`
	Phone          *string `json:"phone"`
	Status         *string `json:"lead_status" validate:"omitempty,oneof=new attempted contacted appointment_set"`
}

type CallCompletedData struct {
	CallID          string   `json:"call_id" validate:"required"`
	Status          string   `json:"call_status" validate:"omitempty,oneof=completed failed busy no_answer voicemail"`
	DurationSeconds int      `json:"duration_seconds" validate:"gte=0"`
	RecordingURL    string   `json:"recording_url"`
	Transcript      string   `json:"transcript"`
	Summary         string   `json:"summary"`
	Sentiment       string   `json:"sentiment"`
	AppointmentSet  bool     `json:"appointment_set"`
	KeyTopics       []string `json:"key_topics"`
	CostAmount      *float64 `json:"cost_amount" validate:"omitempty,gte=0"`
}

type AppointmentSetData struct {
	OrganizationID string `json:"organization_id"`
	LeadID         string `json:"lead_id" validate:"required"`
	CallID         string `json:"call_id"`
}

// AutomationHandler serves POST /webhooks/automation. Callers authenticate with
// the shared automation token (see RequireToken).
type AutomationHandler struct {
	Leads    LeadWriter
	Calls    CallReader
	Ingestor *Ingestor
	Metrics  *metrics.Metrics

	validate *validator.Validate
}

func NewAutomationHandler(l LeadWriter, c CallReader, ing *Ingestor, m *metrics.Metrics) *AutomationHandler {
	return &AutomationHandler{Leads: l, Calls: c, Ingestor: ing, Metrics: m, validate: utils.NewValidator()}
}

// errBadRequest carries a client-facing validation message.
type errBadRequest struct{ msg string }

func (e errBadRequest) Error() string { return e.msg }

var errUnknownEvent = errors.New("unknown event")

func (h *AutomationHandler) Handle(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	var env AutomationEvent
	if err := json.Unmarshal(raw, &env); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	env.Event = strings.TrimSpace(env.Event)
	if err := h.validate.Struct(env); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": utils.ValidationMessage(err)})
		return
	}

	log := logger.FromGin(c).With(slog.String("provider", "automation"), slog.String("event", env.Event))
	logger.Enrich(c, log)
	ctx := c.Request.Context()

	var result gin.H
	switch env.Event {
	case EventLeadCreated:
		result, err = h.leadCreated(ctx, env.Data)
	case EventLeadUpdated:
		result, err = h.leadUpdated(ctx, env.Data)
	case EventCallCompleted:
		result, err = h.callCompleted(ctx, env.Data)
	case EventAppointmentSet:
		result, err = h.appointmentSet(ctx, env.Data)
	case EventCustom:
		log.Info("custom automation event", slog.Int("data_bytes", len(env.Data)))
		result = gin.H{}
	default:
		err = errUnknownEvent
	}

	var bad errBadRequest
	switch {
	case err == nil:
		h.Metrics.RecordWebhook("automation", env.Event, "processed")
		result["received"] = true
		result["event"] = env.Event
		c.JSON(http.StatusOK, result)
	case errors.As(err, &bad):
		h.Metrics.RecordWebhook("automation", env.Event, "invalid")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bad.msg})
	case errors.Is(err, errUnknownEvent):
		h.Metrics.RecordWebhook("automation", "", "invalid")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown event: " + env.Event})
	case errors.Is(err, leads.ErrNotFound):
		h.Metrics.RecordWebhook("automation", env.Event, "not_found")
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lead not found"})
	case errors.Is(err, calls.ErrNotFound):
		h.Metrics.RecordWebhook("automation", env.Event, "not_found")
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	default:
		log.Error("automation event failed", slog.Any("err", err))
		errreport.CaptureGin(c, err)
		h.Metrics.RecordWebhook("automation", env.Event, "error")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
	}
}

// decode unmarshals and validates the event data.
func (h *AutomationHandler) decode(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return errBadRequest{msg: "data is required"}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errBadRequest{msg: "invalid data"}
	}
	if err := h.validate.Struct(dst); err != nil {
		return errBadRequest{msg: utils.ValidationMessage(err)}
	}
	return nil
}

func (h *AutomationHandler) leadCreated(ctx context.Context, data json.RawMessage) (gin.H, error) {
	var in LeadCreatedData
	if err := h.decode(data, &in); err != nil {
		return nil, err
	}
	source := in.Source
	if source == "" {
		source = "automation"
	}
	l, err := h.Leads.Create(ctx, leads.CreateInput{
		OrganizationID: in.OrganizationID,
		CampaignID:     in.CampaignID,
		Name:           in.Name,
		Email:          in.Email,
		Phone:          in.Phone,
		Source:         source,
	})
	if errors.Is(err, leads.ErrPhoneRequired) {
		return nil, errBadRequest{msg: "phone is required"}
	}
	if err != nil {
		return nil, err
	}
	logger.From(ctx).Info("lead created", slog.String("lead_id", l.ID), slog.String("organization_id", l.OrganizationID))
	return gin.H{"lead_id": l.ID}, nil
}

func (h *AutomationHandler) leadUpdated(ctx context.Context, data json.RawMessage) (gin.H, error) {
	var in LeadUpdatedData
	if err := h.decode(data, &in); err != nil {
		return nil, err
	}
	p := leads.Patch{
		Name:       in.Name,
		Email:      in.Email,
		Phone:      in.Phone,
		CampaignID: in.CampaignID,
	}
	if in.Status != nil {
		s := leads.Status(*in.Status)
		p.Status = &s
	}
	l, err := h.Leads.Update(ctx, in.OrganizationID, in.LeadID, p)
	if err != nil {
		return nil, err
	}
	return gin.H{"lead_id": l.ID, "lead_status": l.Status}, nil
}

func (h *AutomationHandler) callCompleted(ctx context.Context, data json.RawMessage) (gin.H, error) {
	var in CallCompletedData
	if err := h.decode(data, &in); err != nil {
		return nil, err
	}
	cur, err := h.Calls.Get(ctx, in.CallID)
	if err != nil {
		return nil, err
	}
	status := calls.CallStatus(in.Status)
	if status == "" {
		status = calls.CallStatusCompleted
	}
	ev := calls.CallEvent{
		Provider:        cur.Provider,
		ProviderCallID:  cur.ProviderCallID,
		Phase:           calls.PhaseEnded,
		Status:          status,
		DurationSeconds: in.DurationSeconds,
		RecordingURL:    in.RecordingURL,
		CostAmount:      in.CostAmount,
		Transcript:      in.Transcript,
		Summary:         in.Summary,
		Sentiment:       in.Sentiment,
		AppointmentSet:  in.AppointmentSet,
		KeyTopics:       in.KeyTopics,
	}
	ev.HasAnalysis = in.Transcript != "" || in.Summary != "" || in.Sentiment != "" || in.AppointmentSet || len(in.KeyTopics) > 0

	out, err := h.Ingestor.Apply(ctx, ev, cur.Identity())
	if err != nil {
		return nil, err
	}
	return gin.H{
		"call_id":       out.Call.ProviderCallID,
		"call_status":   out.Call.Status,
		"usage_counted": out.UsageCounted,
		"lead_advanced": out.LeadAdvanced,
	}, nil
}

func (h *AutomationHandler) appointmentSet(ctx context.Context, data json.RawMessage) (gin.H, error) {
	var in AppointmentSetData
	if err := h.decode(data, &in); err != nil {
		return nil, err
	}
	viaCall := false
	if in.CallID != "" {
		cur, err := h.Calls.Get(ctx, in.CallID)
		if err != nil {
			return nil, err
		}
		ev := calls.CallEvent{
			Provider:       cur.Provider,
			ProviderCallID: cur.ProviderCallID,
			Phase:          calls.PhaseAnalyzed,
			AppointmentSet: true,
		}
		out, err := h.Ingestor.Apply(ctx, ev, cur.Identity())
		if err != nil {
			return nil, err
		}
		viaCall = out.LeadAdvanced && out.Call.LeadID == in.LeadID
	}
	advanced, err := h.Leads.MarkAppointmentSet(ctx, in.OrganizationID, in.LeadID)
	if err != nil {
		return nil, err
	}
	return gin.H{"lead_id": in.LeadID, "lead_advanced": advanced || viaCall}, nil
}
