package agents

import (
	"time"

	"lead-response/internal/calls"
)

// Setting binds a provider agent (Retell agent, Vapi assistant) to the organization
// that owns it, plus the caller id used when placing calls through it.
type Setting struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	Provider       calls.Provider `json:"provider" db:"provider"`
	AgentID        string         `json:"agent_id" db:"agent_id"`

	// FromNumber is the Retell caller id; PhoneNumberID the Vapi phone number resource.
	FromNumber    string `json:"from_number,omitempty" db:"from_number"`
	PhoneNumberID string `json:"phone_number_id,omitempty" db:"phone_number_id"`

	IsDefault bool `json:"is_default" db:"is_default"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
