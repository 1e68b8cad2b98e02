package leads

import (
	"time"

	"lead-response/internal/calls"
)

// Lead is a tenant-scoped prospect the platform calls.
type Lead struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	CampaignID     string `json:"campaign_id,omitempty" db:"campaign_id"`

	Name  string `json:"name,omitempty" db:"name"`
	Email string `json:"email,omitempty" db:"email"`

	// Phone is stored as entered. PhoneNormalized is its E.164 form, empty when unparseable.
	Phone           string `json:"phone" db:"phone"`
	PhoneNormalized string `json:"phone_normalized,omitempty" db:"phone_normalized"`

	Source string `json:"source,omitempty" db:"source"`
	Status Status `json:"lead_status" db:"lead_status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusNew            Status = "new"
	StatusAttempted      Status = "attempted"
	StatusContacted      Status = "contacted"
	StatusAppointmentSet Status = "appointment_set"
)

// progression orders statuses; a lead only ever moves forward through it.
var progression = []Status{StatusNew, StatusAttempted, StatusContacted, StatusAppointmentSet}

func (s Status) rank() int {
	for i, p := range progression {
		if p == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool { return s.rank() >= 0 }

// Below returns every status that precedes s.
func (s Status) Below() []Status {
	r := s.rank()
	if r <= 0 {
		return nil
	}
	return append([]Status(nil), progression[:r]...)
}

// CanAdvance reports whether moving from current to next is a forward move.
// Statuses outside the progression (set manually by a CRM) are never advanced.
func CanAdvance(current, next Status) bool {
	if !current.Valid() || !next.Valid() {
		return false
	}
	return next.rank() > current.rank()
}

// StatusForCall derives the lead status a terminal call implies.
// ok is false for non-terminal statuses.
func StatusForCall(status calls.CallStatus, appointmentSet bool) (Status, bool) {
	if !status.IsTerminal() {
		return "", false
	}
	switch {
	case appointmentSet:
		return StatusAppointmentSet, true
	case status == calls.CallStatusCompleted:
		return StatusContacted, true
	default:
		return StatusAttempted, true
	}
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Name            *string
	Email           *string
	Phone           *string
	PhoneNormalized *string
	CampaignID      *string
	Status          *Status
	UpdatedAt       time.Time
}
