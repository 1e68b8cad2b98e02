// Package metrics holds the service's Prometheus collectors.
// Every Record method is safe on a nil *Metrics so callers can run without metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	WebhookEvents      *prometheus.CounterVec
	UsageCalls         *prometheus.CounterVec
	UsageMinutes       *prometheus.CounterVec
	LeadStatusAdvanced *prometheus.CounterVec
	CallsInitiated     *prometheus.CounterVec
	Reconciliations    *prometheus.CounterVec
}

// New registers every collector on reg. Pass prometheus.DefaultRegisterer in main
// and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		WebhookEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_events_total",
				Help: "Provider webhook deliveries by outcome",
			},
			[]string{"provider", "phase", "outcome"},
		),
		UsageCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usage_calls_accumulated_total",
				Help: "Finished calls added to daily usage",
			},
			[]string{"provider"},
		),
		UsageMinutes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usage_minutes_accumulated_total",
				Help: "Call minutes added to daily usage",
			},
			[]string{"provider"},
		),
		LeadStatusAdvanced: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_status_advanced_total",
				Help: "Lead status transitions caused by call outcomes",
			},
			[]string{"status"},
		),
		CallsInitiated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calls_initiated_total",
				Help: "Outbound call placement attempts",
			},
			[]string{"provider", "outcome"},
		),
		Reconciliations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usage_reconciliations_total",
				Help: "Usage reconciliation runs",
			},
			[]string{"outcome"}, // success, failed
		),
	}
}

// Middleware records request count and latency by route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordWebhook(provider, phase, outcome string) {
	if m == nil {
		return
	}
	if phase == "" {
		phase = "none"
	}
	m.WebhookEvents.WithLabelValues(provider, phase, outcome).Inc()
}

func (m *Metrics) RecordUsage(provider string, minutes float64) {
	if m == nil {
		return
	}
	m.UsageCalls.WithLabelValues(provider).Inc()
	m.UsageMinutes.WithLabelValues(provider).Add(minutes)
}

func (m *Metrics) RecordLeadAdvanced(status string) {
	if m == nil {
		return
	}
	m.LeadStatusAdvanced.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordCallInitiated(provider, outcome string) {
	if m == nil {
		return
	}
	m.CallsInitiated.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordReconciliation(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	m.Reconciliations.WithLabelValues(outcome).Inc()
}
