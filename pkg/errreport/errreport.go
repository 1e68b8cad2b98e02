// Package errreport forwards unexpected errors and panics to Sentry.
// Every function is a no-op until Init succeeds with a DSN.
package errreport

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"

	"lead-response/pkg/logger"
)

var enabled atomic.Bool

// Init configures the global Sentry client. An empty dsn leaves reporting off.
func Init(dsn, env string) (bool, error) {
	if dsn == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			// request bodies may carry transcripts and phone numbers
			if event.Request != nil {
				event.Request.Data = ""
			}
			return event
		},
	})
	if err != nil {
		return false, fmt.Errorf("sentry init: %w", err)
	}
	enabled.Store(true)
	return true, nil
}

func Enabled() bool { return enabled.Load() }

// Capture reports err with optional string tags.
func Capture(err error, tags map[string]string) {
	if err == nil || !enabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// CaptureGin reports err tagged with the request route.
func CaptureGin(c *gin.Context, err error) {
	if err == nil || !enabled.Load() {
		return
	}
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	Capture(err, map[string]string{
		"route":      route,
		"method":     c.Request.Method,
		"request_id": c.Writer.Header().Get("X-Request-Id"),
	})
}

func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentry.Flush(timeout)
	}
}

// Recovery turns a panic into a JSON 500, logging and reporting it first.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			err := fmt.Errorf("panic: %v", p)
			logger.FromGin(c).Error("panic recovered", slog.Any("err", err))
			CaptureGin(c, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}()
		c.Next()
	}
}
