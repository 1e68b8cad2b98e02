package billing

import (
	"context"
	"errors"
	"net/http"

	"lead-response/internal/auth"
	"lead-response/internal/rbac"

	"github.com/gin-gonic/gin"
)

// AllowanceKey is the gin context key RequireMinutesRemaining stores the Allowance under.
const AllowanceKey = "billing.allowance"

type AllowanceChecker interface {
	CheckCanPlaceCall(ctx context.Context, organizationID string) (Allowance, error)
}

// RequireMinutesRemaining blocks call placement once the organization's plan minutes are used up.
//
// - Uses auth context for organization_id and role.
// - super_admin bypasses; the allowance is not loaded for it.
// - On success the Allowance is stored on the gin context for later limits (concurrency).
func RequireMinutesRemaining(svc AllowanceChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := auth.Role(c.Request.Context())
		if rbac.IsSuperAdmin(role) {
			c.Next()
			return
		}

		orgID, err := auth.OrganizationID(c.Request.Context())
		if err != nil || orgID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "organization_id required"})
			return
		}

		a, err := svc.CheckCanPlaceCall(c.Request.Context(), orgID)
		switch {
		case errors.Is(err, ErrMinutesExhausted):
			// 402 Payment Required is semantically appropriate.
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":         "plan minute limit reached",
				"plan":          a.Plan,
				"used_minutes":  a.UsedMinutes,
				"limit_minutes": a.Limits.MonthlyMinutes,
			})
			return
		case errors.Is(err, ErrOrganizationNotFound):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unknown organization"})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "allowance lookup failed"})
			return
		}

		c.Set(AllowanceKey, a)
		c.Next()
	}
}

// AllowanceFrom returns the allowance RequireMinutesRemaining stored, if any.
func AllowanceFrom(c *gin.Context) (Allowance, bool) {
	v, ok := c.Get(AllowanceKey)
	if !ok {
		return Allowance{}, false
	}
	a, ok := v.(Allowance)
	return a, ok
}
