package calls

import "time"

// Provider identifies the voice-AI platform that placed or received a call.
type Provider string

const (
	ProviderRetell Provider = "retell"
	ProviderVapi   Provider = "vapi"
)

func (p Provider) Valid() bool {
	return p == ProviderRetell || p == ProviderVapi
}

// Phase is the lifecycle stage a provider event reports.
// Phases may arrive out of order or be skipped entirely.
type Phase string

const (
	PhaseStarted  Phase = "started"
	PhaseEnded    Phase = "ended"
	PhaseAnalyzed Phase = "analyzed"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// CallStatus is the canonical status every provider vocabulary maps into.
type CallStatus string

const (
	// CallStatusInitiated is only written by outbound placement, before the provider reports anything.
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusBusy       CallStatus = "busy"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusVoicemail  CallStatus = "voicemail"
)

// TerminalStatuses are the statuses an ended event can produce.
var TerminalStatuses = []CallStatus{
	CallStatusCompleted,
	CallStatusFailed,
	CallStatusBusy,
	CallStatusNoAnswer,
	CallStatusVoicemail,
}

func (s CallStatus) IsTerminal() bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// Answered reports whether a terminal status counts as a connected conversation for usage.
func (s CallStatus) Answered() bool { return s == CallStatusCompleted }

// Speaker is the normalized side of a transcript turn.
type Speaker string

const (
	SpeakerAgent  Speaker = "agent"
	SpeakerCaller Speaker = "caller"
)

// TranscriptSegment is one speaker turn. Times are seconds from call start; 0 when unknown.
type TranscriptSegment struct {
	Speaker   Speaker `json:"speaker"`
	Text      string  `json:"text"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

// CallEvent is the provider-independent view of one webhook delivery.
// It is never persisted as such.
type CallEvent struct {
	Provider       Provider
	ProviderCallID string
	Phase          Phase
	Direction      Direction

	// PhoneNumber is the lead-side number: the callee on outbound calls, the caller on inbound.
	// Both are kept as the provider sent them.
	PhoneNumber string
	FromNumber  string

	StartedAt *time.Time
	EndedAt   *time.Time

	DurationSeconds int
	Status          CallStatus

	RecordingURL       string
	Transcript         string
	TranscriptSegments []TranscriptSegment
	Summary            string
	Sentiment          string
	AppointmentSet     bool
	KeyTopics          []string
	CostAmount         *float64

	// HasAnalysis is set when an ended event also carries analysis fields.
	HasAnalysis bool

	Metadata map[string]any
	AgentID  string
}

// Identity links a call to its tenant. Empty strings mean unresolved.
type Identity struct {
	OrganizationID string `json:"organization_id"`
	CampaignID     string `json:"campaign_id,omitempty"`
	LeadID         string `json:"lead_id,omitempty"`
}

// CallLog is the durable record of one provider call.
//
// Invariant: exactly one row per ProviderCallID. Later events update, never duplicate, it.
type CallLog struct {
	ID             string   `json:"id" db:"id"`
	Provider       Provider `json:"provider" db:"provider"`
	ProviderCallID string   `json:"provider_call_id" db:"provider_call_id"`

	OrganizationID string `json:"organization_id,omitempty" db:"organization_id"`
	CampaignID     string `json:"campaign_id,omitempty" db:"campaign_id"`
	LeadID         string `json:"lead_id,omitempty" db:"lead_id"`

	AgentID     string    `json:"agent_id,omitempty" db:"agent_id"`
	Direction   Direction `json:"direction" db:"direction"`
	PhoneNumber string    `json:"phone_number" db:"phone_number"`
	FromNumber  string    `json:"from_number" db:"from_number"`

	Status          CallStatus `json:"call_status" db:"call_status"`
	DurationSeconds int        `json:"duration_seconds" db:"duration_seconds"`

	RecordingURL       string              `json:"recording_url,omitempty" db:"recording_url"`
	Transcript         string              `json:"transcript,omitempty" db:"transcript"`
	TranscriptSegments []TranscriptSegment `json:"transcript_segments,omitempty" db:"transcript_segments"`
	Summary            string              `json:"summary,omitempty" db:"summary"`
	Sentiment          string              `json:"sentiment,omitempty" db:"sentiment"`
	AppointmentSet     bool                `json:"appointment_set" db:"appointment_set"`
	KeyTopics          []string            `json:"key_topics,omitempty" db:"key_topics"`
	CostAmount         float64             `json:"cost_amount" db:"cost_amount"`

	Metadata map[string]any `json:"metadata,omitempty" db:"metadata"`

	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

func (c CallLog) Identity() Identity {
	return Identity{OrganizationID: c.OrganizationID, CampaignID: c.CampaignID, LeadID: c.LeadID}
}

// EndedUpdate holds the fields an ended event may change.
type EndedUpdate struct {
	Status          CallStatus
	DurationSeconds int
	RecordingURL    string
	StartedAt       *time.Time
	EndedAt         *time.Time
	CostAmount      *float64
	UpdatedAt       time.Time
}

// AnalysisUpdate holds the fields an analyzed event may change.
// Empty values leave the stored column untouched; AppointmentSet only ever turns the flag on.
type AnalysisUpdate struct {
	Transcript         string
	TranscriptSegments []TranscriptSegment
	Summary            string
	Sentiment          string
	AppointmentSet     bool
	KeyTopics          []string
	UpdatedAt          time.Time
}
