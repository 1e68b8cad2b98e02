package telephony

import (
	"strings"

	"lead-response/internal/calls"
)

// VapiWebhook is the server-message envelope Vapi posts.
type VapiWebhook struct {
	Message *VapiMessage `json:"message"`
}

type VapiMessage struct {
	Type        string `json:"type"`
	Status      string `json:"status"`
	EndedReason string `json:"endedReason"`

	Call        *VapiCall      `json:"call"`
	Assistant   *VapiAssistant `json:"assistant"`
	Customer    *VapiCustomer  `json:"customer"`
	PhoneNumber *VapiNumber    `json:"phoneNumber"`

	// RFC 3339 timestamps.
	StartedAt string `json:"startedAt"`
	EndedAt   string `json:"endedAt"`

	DurationSeconds *float64 `json:"durationSeconds"`
	DurationMs      *float64 `json:"durationMs"`
	Cost            *float64 `json:"cost"`

	RecordingURL string `json:"recordingUrl"`
	Transcript   string `json:"transcript"`
	Summary      string `json:"summary"`

	Analysis *VapiAnalysis `json:"analysis"`
	Artifact *VapiArtifact `json:"artifact"`
	// Messages is the pre-artifact location of the conversation turns.
	Messages []VapiTurn `json:"messages"`
}

type VapiCall struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	AssistantID   string         `json:"assistantId"`
	PhoneNumberID string         `json:"phoneNumberId"`
	Customer      *VapiCustomer  `json:"customer"`
	Metadata      map[string]any `json:"metadata"`
	Status        string         `json:"status"`
	EndedReason   string         `json:"endedReason"`
	StartedAt     string         `json:"startedAt"`
	EndedAt       string         `json:"endedAt"`
	Cost          *float64       `json:"cost"`
}

type VapiAssistant struct {
	ID string `json:"id"`
}

type VapiCustomer struct {
	Number string `json:"number"`
}

type VapiNumber struct {
	Number string `json:"number"`
}

type VapiAnalysis struct {
	Summary           string         `json:"summary"`
	StructuredData    map[string]any `json:"structuredData"`
	SuccessEvaluation any            `json:"successEvaluation"`
}

type VapiArtifact struct {
	Messages     []VapiTurn `json:"messages"`
	Transcript   string     `json:"transcript"`
	RecordingURL string     `json:"recordingUrl"`
}

// VapiTurn carries segment-level timing: SecondsFromStart and Duration (milliseconds).
type VapiTurn struct {
	Role             string   `json:"role"`
	Message          string   `json:"message"`
	SecondsFromStart *float64 `json:"secondsFromStart"`
	Duration         *float64 `json:"duration"`
}

// VapiStartedStatuses are the status-update values that open a call.
// status-update "ended" is ignored; the end-of-call-report carries the final state.
var VapiStartedStatuses = map[string]bool{
	"in-progress": true,
	"ringing":     true,
	"queued":      true,
}

// NormalizeVapi maps a Vapi server message to a CallEvent.
// It returns ErrNoCall when message or message.call is missing and ErrIgnoredEvent for
// message types that do not map to a lifecycle phase.
func NormalizeVapi(w VapiWebhook) (calls.CallEvent, error) {
	m := w.Message
	if m == nil {
		return calls.CallEvent{}, ErrNoCall
	}

	var phase calls.Phase
	switch m.Type {
	case "status-update":
		if !VapiStartedStatuses[m.Status] {
			return calls.CallEvent{}, ErrIgnoredEvent
		}
		phase = calls.PhaseStarted
	case "end-of-call-report":
		phase = calls.PhaseEnded
	default:
		return calls.CallEvent{}, ErrIgnoredEvent
	}
	if m.Call == nil || strings.TrimSpace(m.Call.ID) == "" {
		return calls.CallEvent{}, ErrNoCall
	}
	c := m.Call

	ev := calls.CallEvent{
		Provider:       calls.ProviderVapi,
		ProviderCallID: strings.TrimSpace(c.ID),
		Phase:          phase,
		Direction:      vapiDirection(c.Type),
		StartedAt:      parseTime(firstNonEmpty(m.StartedAt, c.StartedAt)),
		EndedAt:        parseTime(firstNonEmpty(m.EndedAt, c.EndedAt)),
		Metadata:       c.Metadata,
		AgentID:        c.AssistantID,
	}
	if ev.AgentID == "" && m.Assistant != nil {
		ev.AgentID = m.Assistant.ID
	}

	customer := ""
	if m.Customer != nil {
		customer = m.Customer.Number
	}
	if customer == "" && c.Customer != nil {
		customer = c.Customer.Number
	}
	ev.PhoneNumber = customer
	if m.PhoneNumber != nil {
		ev.FromNumber = m.PhoneNumber.Number
	}

	if phase == calls.PhaseStarted {
		ev.Status = calls.CallStatusInProgress
		return ev, nil
	}

	ev.Status = VapiStatus(firstNonEmpty(m.EndedReason, c.EndedReason))
	explicit := msToSeconds(m.DurationMs)
	if explicit == nil {
		explicit = m.DurationSeconds
	}
	ev.DurationSeconds = deriveDuration(explicit, ev.StartedAt, ev.EndedAt)
	if m.Cost != nil {
		ev.CostAmount = m.Cost
	} else if c.Cost != nil {
		ev.CostAmount = c.Cost
	}

	turns := m.Messages
	if m.Artifact != nil {
		ev.RecordingURL = m.Artifact.RecordingURL
		ev.Transcript = m.Artifact.Transcript
		if len(m.Artifact.Messages) > 0 {
			turns = m.Artifact.Messages
		}
	}
	ev.RecordingURL = firstNonEmpty(m.RecordingURL, ev.RecordingURL)
	ev.Transcript = firstNonEmpty(m.Transcript, ev.Transcript)
	ev.TranscriptSegments = vapiSegments(turns)
	ev.Summary = strings.TrimSpace(m.Summary)

	if a := m.Analysis; a != nil {
		ev.Summary = firstNonEmpty(strings.TrimSpace(a.Summary), ev.Summary)
		ev.Sentiment = stringField(a.StructuredData, "sentiment", "user_sentiment", "userSentiment")
		ev.AppointmentSet = boolField(a.StructuredData, "appointment_set", "appointment_booked", "appointmentSet", "appointmentBooked")
		ev.KeyTopics = stringsField(a.StructuredData, "key_topics", "keyTopics", "topics")
	}
	ev.HasAnalysis = true
	return ev, nil
}

func vapiDirection(callType string) calls.Direction {
	if strings.HasPrefix(strings.ToLower(callType), "inbound") {
		return calls.DirectionInbound
	}
	return calls.DirectionOutbound
}

func vapiSegments(in []VapiTurn) []calls.TranscriptSegment {
	if len(in) == 0 {
		return nil
	}
	out := make([]calls.TranscriptSegment, 0, len(in))
	for _, t := range in {
		speaker, ok := speakerFor(t.Role)
		if !ok {
			continue
		}
		seg := calls.TranscriptSegment{Speaker: speaker, Text: strings.TrimSpace(t.Message)}
		if t.SecondsFromStart != nil {
			seg.StartTime = *t.SecondsFromStart
			seg.EndTime = seg.StartTime
			if t.Duration != nil && *t.Duration > 0 {
				seg.EndTime = seg.StartTime + *t.Duration/1000
			}
		}
		out = append(out, seg)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
