package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"lead-response/pkg/errreport"
	"lead-response/pkg/logger"
	"lead-response/pkg/utils"

	"github.com/gin-gonic/gin"
)

type aggregateUsageRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// AggregateUsage rebuilds billing_usage for one calendar date from call_logs.
// The body is optional; without a date it reconciles yesterday.
// Auth: automation token (webhooks.RequireToken).
func (h Handlers) AggregateUsage(c *gin.Context) {
	log := logger.FromGin(c)

	var req aggregateUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid json")
		return
	}
	if req.Date == "" {
		req.Date = c.Query("date")
	}
	if err := validate.Struct(req); err != nil {
		badRequest(c, utils.ValidationMessage(err))
		return
	}

	day := h.Aggregator.Yesterday()
	if req.Date != "" {
		day, _ = time.Parse(time.DateOnly, req.Date)
	}

	sum, err := h.Aggregator.Reconcile(c.Request.Context(), day)
	h.Metrics.RecordReconciliation(err)
	if err != nil {
		log.Error("usage reconciliation failed", slog.String("date", day.Format(time.DateOnly)), slog.Any("err", err))
		errreport.CaptureGin(c, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "usage reconciliation failed"})
		return
	}

	if h.Audit != nil {
		if err := h.Audit.LogUsageReconciled(c.Request.Context(), "", c.ClientIP(), sum); err != nil {
			log.Warn("audit usage reconciliation failed", slog.Any("err", err))
		}
	}
	log.Info("usage reconciled", slog.String("date", sum.Date), slog.Int("rows", sum.Rows), slog.Int("calls", sum.Calls))
	c.JSON(http.StatusOK, gin.H{"reconciled": sum})
}
