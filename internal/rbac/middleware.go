package rbac

import (
	"net/http"
	"slices"

	"lead-response/internal/auth"
	"lead-response/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireOrganization rejects requests whose identity carries no organization.
// Every /v1 handler scopes its queries by that organization.
func RequireOrganization() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := auth.OrganizationID(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "organization_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole admits callers holding one of allowed. super_admin is always admitted;
// hidden roles only when listed explicitly.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowed = slices.Clone(allowed)
	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !Permits(role, allowed) {
			logger.FromGin(c).Debug("role denied", "role", role, "allowed", allowed)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// Permits reports whether role may use a route open to allowed.
func Permits(role string, allowed []string) bool {
	if IsSuperAdmin(role) {
		return true
	}
	return slices.Contains(allowed, role)
}
