package billing

import (
	"context"
	"fmt"
	"time"

	"lead-response/internal/calls"
	"lead-response/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const defaultSlotTTL = time.Hour

// CallSlots caps the calls an organization has in flight.
//
// A slot is taken before the provider is asked to dial, bound to the provider call id once the
// provider accepts, and freed by the call's terminal webhook. Slots that are never freed expire
// with the TTL.
type CallSlots struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCallSlots(rdb *redis.Client, ttl time.Duration) *CallSlots {
	if ttl <= 0 {
		ttl = defaultSlotTTL
	}
	return &CallSlots{rdb: rdb, ttl: ttl}
}

func counterKey(organizationID string) string {
	return "calls:inflight:" + organizationID
}

func slotKey(provider calls.Provider, providerCallID string) string {
	return fmt.Sprintf("calls:slot:%s:%s", provider, providerCallID)
}

// Acquire reports false when the organization already has limit calls in flight.
// A limit of zero or less means unlimited.
func (s *CallSlots) Acquire(ctx context.Context, organizationID string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	return utils.TakeSlot(ctx, s.rdb, counterKey(organizationID), limit, s.ttl)
}

// Bind ties an acquired slot to the provider call so the terminal webhook can free it.
func (s *CallSlots) Bind(ctx context.Context, organizationID string, provider calls.Provider, providerCallID string) error {
	return utils.BindSlot(ctx, s.rdb, slotKey(provider, providerCallID), organizationID, s.ttl)
}

// Abandon gives back a slot whose call was never placed.
func (s *CallSlots) Abandon(ctx context.Context, organizationID string) error {
	return utils.GiveBackSlot(ctx, s.rdb, counterKey(organizationID))
}

// Release frees the slot bound to a call. Redelivered terminal events release nothing.
func (s *CallSlots) Release(ctx context.Context, organizationID string, provider calls.Provider, providerCallID string) (bool, error) {
	return utils.FreeBoundSlot(ctx, s.rdb, counterKey(organizationID), slotKey(provider, providerCallID))
}
