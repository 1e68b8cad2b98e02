package main

import (
	"lead-response/internal/auth"
	"lead-response/internal/billing"
	"lead-response/internal/httpapi"
	"lead-response/internal/rbac"
	"lead-response/internal/webhooks"
	"lead-response/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	auth            *auth.Manager
	handlers        httpapi.Handlers
	health          httpapi.Health
	providers       webhooks.ProviderHandler
	automation      *webhooks.AutomationHandler
	stripe          *billing.StripeWebhook
	limiter         *billing.Limiter
	initiateLimit   *utils.KeyedLimiter
	automationToken string
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", d.health.Live)
	r.GET("/readyz", d.health.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Webhooks authenticate with provider signatures or the shared automation token, never JWTs.
	wh := r.Group("/webhooks")
	{
		wh.POST("/retell", d.providers.HandleRetell)
		wh.POST("/vapi", d.providers.HandleVapi)
		wh.POST("/automation", webhooks.RequireToken(d.automationToken), d.automation.Handle)
		wh.POST("/stripe", d.stripe.Handle)
	}
	r.POST("/usage/aggregate", webhooks.RequireToken(d.automationToken), d.handlers.AggregateUsage)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	v1.Use(rbac.RequireOrganization())
	{
		v1.POST("/calls/initiate",
			rbac.RequireAnyRole(rbac.CallPlacers...),
			utils.RateLimit(d.initiateLimit, httpapi.OrganizationKey),
			billing.RequireMinutesRemaining(d.limiter),
			d.handlers.InitiateCall,
		)

		v1.GET("/usage", rbac.RequireAnyRole(rbac.UsageReaders...), d.handlers.GetUsage)
		v1.GET("/reports/calls", rbac.RequireAnyRole(rbac.UsageReaders...), d.handlers.GetCallsReport)
	}
}
