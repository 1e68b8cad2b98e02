package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"lead-response/internal/auth"
	"lead-response/internal/reporting"
	"lead-response/internal/usage"
	"lead-response/pkg/logger"

	"github.com/gin-gonic/gin"
)

const defaultReportWindow = 30 * 24 * time.Hour

// GetUsage returns the organization's daily usage rows and its month-to-date allowance.
// from and to are inclusive calendar dates (YYYY-MM-DD); the default is month to date.
func (h Handlers) GetUsage(c *gin.Context) {
	ctx := c.Request.Context()
	orgID, err := auth.OrganizationID(ctx)
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "organization_id required"})
		return
	}

	today := usage.Day(h.now(), h.location())
	from := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := today
	if v := strings.TrimSpace(c.Query("from")); v != "" {
		if from, err = time.Parse(time.DateOnly, v); err != nil {
			badRequest(c, "from must be formatted as YYYY-MM-DD")
			return
		}
	}
	if v := strings.TrimSpace(c.Query("to")); v != "" {
		if to, err = time.Parse(time.DateOnly, v); err != nil {
			badRequest(c, "to must be formatted as YYYY-MM-DD")
			return
		}
	}
	if to.Before(from) {
		badRequest(c, "to must not be before from")
		return
	}

	sum, err := h.Reports.UsageSummary(ctx, reporting.UsageSummaryRequest{
		OrganizationID: orgID,
		Range:          reporting.TimeRange{From: from, To: to.AddDate(0, 0, 1)},
	})
	if err != nil {
		logger.FromGin(c).Error("usage summary failed", slog.Any("err", err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "usage lookup failed"})
		return
	}

	resp := gin.H{"usage": sum}
	if h.Allowance != nil {
		a, err := h.Allowance.Allowance(ctx, orgID)
		if err != nil {
			logger.FromGin(c).Warn("allowance lookup failed", slog.Any("err", err))
		} else {
			resp["allowance"] = a
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetCallsReport summarizes the organization's calls over [from, to).
// Values are RFC 3339 instants or calendar dates; a date used as "to" includes that whole day.
// With campaign_id the campaign's conversion metrics are included.
func (h Handlers) GetCallsReport(c *gin.Context) {
	ctx := c.Request.Context()
	orgID, err := auth.OrganizationID(ctx)
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "organization_id required"})
		return
	}

	to := h.now().UTC()
	from := to.Add(-defaultReportWindow)
	if v := strings.TrimSpace(c.Query("from")); v != "" {
		t, _, err := parseInstant(v, h.location())
		if err != nil {
			badRequest(c, "from must be an RFC 3339 time or YYYY-MM-DD")
			return
		}
		from = t
	}
	if v := strings.TrimSpace(c.Query("to")); v != "" {
		t, dateOnly, err := parseInstant(v, h.location())
		if err != nil {
			badRequest(c, "to must be an RFC 3339 time or YYYY-MM-DD")
			return
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		to = t
	}
	if !to.After(from) {
		badRequest(c, "to must be after from")
		return
	}

	rng := reporting.TimeRange{From: from, To: to}
	campaignID := strings.TrimSpace(c.Query("campaign_id"))
	sum, err := h.Reports.CallsSummary(ctx, reporting.CallsSummaryRequest{OrganizationID: orgID, Range: rng, CampaignID: campaignID})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		badRequest(c, "invalid report range")
		return
	}
	if err != nil {
		logger.FromGin(c).Error("calls summary failed", slog.Any("err", err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}

	resp := gin.H{"summary": sum}
	if campaignID != "" {
		conv, err := h.Reports.ConversionMetrics(ctx, reporting.ConversionMetricsRequest{OrganizationID: orgID, Range: rng, CampaignID: campaignID})
		if err != nil {
			logger.FromGin(c).Error("conversion metrics failed", slog.Any("err", err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
			return
		}
		resp["conversion"] = conv
	}
	c.JSON(http.StatusOK, resp)
}

// parseInstant accepts RFC 3339 or a calendar date, which is read as midnight in loc.
func parseInstant(v string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, loc)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), true, nil
}
