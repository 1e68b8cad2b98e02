package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"lead-response/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Health serves liveness and readiness. A nil dependency is reported as skipped.
type Health struct {
	DB      *sql.DB
	Redis   *redis.Client
	Timeout time.Duration
}

func (h Health) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports 503 when Postgres or Redis does not answer within Timeout.
func (h Health) Ready(c *gin.Context) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	checks := gin.H{"postgres": "skipped", "redis": "skipped"}
	ready := true

	if h.DB != nil {
		if err := utils.HealthCheck(c.Request.Context(), h.DB, timeout); err != nil {
			checks["postgres"] = err.Error()
			ready = false
		} else {
			checks["postgres"] = "ok"
		}
	}
	if h.Redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		err := h.Redis.Ping(ctx).Err()
		cancel()
		if err != nil {
			checks["redis"] = err.Error()
			ready = false
		} else {
			checks["redis"] = "ok"
		}
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}
