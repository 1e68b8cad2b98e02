package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - organization_id is required for tenancy isolation; jobs that span tenants use SystemOrganization.
// - actor and ip capture are best-effort; do not block critical flows on audit failures.
type Event struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`

	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event, empty for webhooks and jobs.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	CallID string `json:"call_id,omitempty" db:"call_id"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallInitiated   EventType = "call_initiated"
	EventTypeUsageReconciled EventType = "usage_reconciled"
	EventTypePlanChanged     EventType = "plan_changed"
)

// SystemOrganization owns events produced by cross-tenant jobs.
const SystemOrganization = "system"
