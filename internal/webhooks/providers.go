package webhooks

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"lead-response/internal/calls"
	"lead-response/internal/telephony"
	"lead-response/pkg/errreport"
	"lead-response/pkg/logger"
	"lead-response/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// maxBodyBytes bounds a webhook body; end-of-call reports carry full transcripts.
const maxBodyBytes = 5 << 20

const orphanWarning = "organization could not be resolved; event not stored"

// ProviderHandler serves the Retell and Vapi webhook endpoints.
// An empty secret skips signature verification for that provider.
type ProviderHandler struct {
	Ingestor     *Ingestor
	RetellSecret string
	VapiSecret   string
	Metrics      *metrics.Metrics
}

func (h ProviderHandler) HandleRetell(c *gin.Context) {
	raw, ok := h.readVerified(c, calls.ProviderRetell, RetellSignature, h.RetellSecret)
	if !ok {
		return
	}
	var body telephony.RetellWebhook
	if err := json.Unmarshal(raw, &body); err != nil {
		h.Metrics.RecordWebhook(string(calls.ProviderRetell), "", "invalid_json")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	ev, err := telephony.NormalizeRetell(body)
	h.process(c, calls.ProviderRetell, ev, err, slog.String("event", body.Event))
}

func (h ProviderHandler) HandleVapi(c *gin.Context) {
	raw, ok := h.readVerified(c, calls.ProviderVapi, VapiSignature, h.VapiSecret)
	if !ok {
		return
	}
	var body telephony.VapiWebhook
	if err := json.Unmarshal(raw, &body); err != nil {
		h.Metrics.RecordWebhook(string(calls.ProviderVapi), "", "invalid_json")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	ev, err := telephony.NormalizeVapi(body)
	msgType := ""
	if body.Message != nil {
		msgType = body.Message.Type
	}
	h.process(c, calls.ProviderVapi, ev, err, slog.String("event", msgType))
}

// readVerified reads the raw body and checks its signature before anything parses it.
func (h ProviderHandler) readVerified(c *gin.Context, p calls.Provider, scheme SignatureScheme, secret string) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.FromGin(c).Warn("webhook body too large", slog.String("provider", string(p)), slog.Int64("limit", tooLarge.Limit))
			h.Metrics.RecordWebhook(string(p), "", "too_large")
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return nil, false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return nil, false
	}
	if !scheme.Verify(raw, c.GetHeader(scheme.Header), secret) {
		logger.FromGin(c).Warn("webhook signature rejected", slog.String("provider", string(p)))
		h.Metrics.RecordWebhook(string(p), "", "unauthorized")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return nil, false
	}
	return raw, true
}

func (h ProviderHandler) process(c *gin.Context, p calls.Provider, ev calls.CallEvent, normErr error, event slog.Attr) {
	log := logger.FromGin(c).With(slog.String("provider", string(p)), event)

	if errors.Is(normErr, telephony.ErrNoCall) || errors.Is(normErr, telephony.ErrIgnoredEvent) {
		log.Debug("webhook acknowledged without processing", slog.Any("reason", normErr))
		h.Metrics.RecordWebhook(string(p), "", "ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if normErr != nil {
		h.Metrics.RecordWebhook(string(p), "", "invalid")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": normErr.Error()})
		return
	}

	log = log.With(slog.String("call_id", ev.ProviderCallID), slog.String("phase", string(ev.Phase)))
	logger.Enrich(c, log)
	ctx := c.Request.Context()

	out, err := h.Ingestor.Ingest(ctx, ev)
	if err != nil {
		log.Error("webhook processing failed", slog.Any("err", err))
		errreport.CaptureGin(c, err)
		h.Metrics.RecordWebhook(string(p), string(ev.Phase), "error")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}
	if out.Orphan {
		log.Warn("orphan call event", slog.String("agent_id", ev.AgentID))
		h.Metrics.RecordWebhook(string(p), string(ev.Phase), "orphan")
		c.JSON(http.StatusOK, gin.H{"received": true, "warning": orphanWarning})
		return
	}

	log.Info("call event processed",
		slog.String("organization_id", out.Identity.OrganizationID),
		slog.Bool("found", out.Found),
		slog.Bool("usage_counted", out.UsageCounted),
		slog.Bool("lead_advanced", out.LeadAdvanced),
	)
	outcome := "processed"
	if !out.Found {
		outcome = "no_call_log"
	}
	h.Metrics.RecordWebhook(string(p), string(ev.Phase), outcome)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
