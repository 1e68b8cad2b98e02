package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"lead-response/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const maxStripePayload = 1 << 16

type PlanAuditor interface {
	LogPlanChanged(ctx context.Context, organizationID, from, to string, details any) error
}

// StripeWebhook maps subscription lifecycle events onto the organization's plan.
// It does not manage customers, invoices or checkout.
type StripeWebhook struct {
	secret string
	prices PriceMap
	orgs   OrganizationRepository
	audit  PlanAuditor
	clock  func() time.Time
}

func NewStripeWebhook(secret string, prices PriceMap, orgs OrganizationRepository, audit PlanAuditor) *StripeWebhook {
	return &StripeWebhook{secret: secret, prices: prices, orgs: orgs, audit: audit, clock: time.Now}
}

var ErrStripeNotConfigured = errors.New("stripe webhook secret not configured")

func (h *StripeWebhook) Handle(c *gin.Context) {
	log := logger.FromGin(c)
	if h.secret == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": ErrStripeNotConfigured.Error()})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxStripePayload))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Warn("stripe signature rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	org, changed, err := h.Apply(c.Request.Context(), event)
	switch {
	case errors.Is(err, ErrOrganizationNotFound):
		log.Warn("stripe event for unknown organization", "type", event.Type, "event_id", event.ID)
		c.JSON(http.StatusOK, gin.H{"received": true, "warning": "organization not found"})
		return
	case err != nil:
		log.Error("stripe event failed", "type", event.Type, "event_id", event.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stripe event failed"})
		return
	}
	if changed {
		log.Info("organization plan updated", "organization_id", org.ID, "plan", org.Plan, "status", org.SubscriptionStatus)
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// Apply handles customer.subscription.{created,updated,deleted}. Other types are ignored.
// changed reports whether the organization was written.
func (h *StripeWebhook) Apply(ctx context.Context, event stripe.Event) (Organization, bool, error) {
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
	default:
		return Organization{}, false, nil
	}
	if event.Data == nil {
		return Organization{}, false, fmt.Errorf("stripe event %s has no data", event.ID)
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return Organization{}, false, fmt.Errorf("decode subscription: %w", err)
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	org, err := h.organizationFor(ctx, sub.Metadata["organization_id"], customerID)
	if err != nil {
		return Organization{}, false, err
	}

	plan := h.planFor(event.Type, sub)
	updated, err := h.orgs.UpdateSubscription(ctx, org.ID, SubscriptionUpdate{
		Plan:                 plan,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: sub.ID,
		Status:               string(sub.Status),
		UpdatedAt:            h.clock(),
	})
	if err != nil {
		return Organization{}, false, fmt.Errorf("update organization subscription: %w", err)
	}

	if org.Plan != plan && h.audit != nil {
		// Best effort.
		_ = h.audit.LogPlanChanged(ctx, org.ID, string(org.Plan), string(plan), map[string]string{
			"stripe_event_id":        event.ID,
			"stripe_subscription_id": sub.ID,
			"status":                 string(sub.Status),
		})
	}
	return updated, true, nil
}

func (h *StripeWebhook) organizationFor(ctx context.Context, organizationID, customerID string) (Organization, error) {
	if organizationID != "" {
		return h.orgs.Get(ctx, organizationID)
	}
	return h.orgs.FindByStripeCustomer(ctx, customerID)
}

// planFor downgrades to trial when the subscription is gone or no longer paying.
func (h *StripeWebhook) planFor(eventType stripe.EventType, sub stripe.Subscription) Plan {
	if eventType == "customer.subscription.deleted" {
		return PlanTrial
	}
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue:
	default:
		return PlanTrial
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			if p, ok := h.prices.Plan(item.Price.ID); ok {
				return p
			}
		}
	}
	return PlanTrial
}
