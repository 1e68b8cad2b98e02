package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.OrganizationID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogCallInitiated records an outbound call placed on behalf of a user.
func (s *Service) LogCallInitiated(ctx context.Context, organizationID, actorUserID, actorRole, ip, providerCallID string, details any) error {
	return s.Append(ctx, Event{
		OrganizationID: organizationID,
		Type:           EventTypeCallInitiated,
		ActorUserID:    actorUserID,
		ActorRole:      actorRole,
		IPAddress:      ip,
		CallID:         providerCallID,
		Message:        "outbound call initiated",
		Metadata:       metadataJSON(details),
	})
}

// LogPlanChanged records a plan transition driven by the billing provider.
func (s *Service) LogPlanChanged(ctx context.Context, organizationID, from, to string, details any) error {
	return s.Append(ctx, Event{
		OrganizationID: organizationID,
		Type:           EventTypePlanChanged,
		Message:        "plan changed from " + from + " to " + to,
		Metadata:       metadataJSON(details),
	})
}

// LogUsageReconciled records a reconciliation run. actorUserID is empty for scheduled runs.
func (s *Service) LogUsageReconciled(ctx context.Context, actorUserID, ip string, details any) error {
	return s.Append(ctx, Event{
		OrganizationID: SystemOrganization,
		Type:           EventTypeUsageReconciled,
		ActorUserID:    actorUserID,
		IPAddress:      ip,
		Message:        "usage reconciled",
		Metadata:       metadataJSON(details),
	})
}

func metadataJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
