package telephony

import (
	"strings"

	"lead-response/internal/calls"
)

// RetellWebhook is the body Retell posts for call lifecycle events.
type RetellWebhook struct {
	Event string      `json:"event"`
	Call  *RetellCall `json:"call"`
}

type RetellCall struct {
	CallID     string `json:"call_id"`
	AgentID    string `json:"agent_id"`
	CallType   string `json:"call_type"`
	Direction  string `json:"direction"`
	FromNumber string `json:"from_number"`
	ToNumber   string `json:"to_number"`
	CallStatus string `json:"call_status"`

	Metadata map[string]any `json:"metadata"`

	// Epoch milliseconds.
	StartTimestamp *int64   `json:"start_timestamp"`
	EndTimestamp   *int64   `json:"end_timestamp"`
	DurationMs     *float64 `json:"duration_ms"`

	Transcript          string              `json:"transcript"`
	TranscriptObject    []RetellUtterance   `json:"transcript_object"`
	RecordingURL        string              `json:"recording_url"`
	DisconnectionReason string              `json:"disconnection_reason"`
	CallAnalysis        *RetellCallAnalysis `json:"call_analysis"`
	CallCost            *RetellCallCost     `json:"call_cost"`
}

type RetellUtterance struct {
	Role    string       `json:"role"`
	Content string       `json:"content"`
	Words   []RetellWord `json:"words"`
}

// RetellWord timings are seconds from call start.
type RetellWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type RetellCallAnalysis struct {
	CallSummary        string         `json:"call_summary"`
	UserSentiment      string         `json:"user_sentiment"`
	CallSuccessful     *bool          `json:"call_successful"`
	InVoicemail        *bool          `json:"in_voicemail"`
	CustomAnalysisData map[string]any `json:"custom_analysis_data"`
}

type RetellCallCost struct {
	// CombinedCost is in cents.
	CombinedCost *float64 `json:"combined_cost"`
}

var retellPhases = map[string]calls.Phase{
	"call_started":  calls.PhaseStarted,
	"call_ended":    calls.PhaseEnded,
	"call_analyzed": calls.PhaseAnalyzed,
}

// NormalizeRetell maps a Retell webhook to a CallEvent.
// It returns ErrNoCall when the call object is missing and ErrIgnoredEvent for other event types.
func NormalizeRetell(w RetellWebhook) (calls.CallEvent, error) {
	phase, ok := retellPhases[w.Event]
	if !ok {
		return calls.CallEvent{}, ErrIgnoredEvent
	}
	if w.Call == nil || strings.TrimSpace(w.Call.CallID) == "" {
		return calls.CallEvent{}, ErrNoCall
	}
	c := w.Call

	ev := calls.CallEvent{
		Provider:       calls.ProviderRetell,
		ProviderCallID: strings.TrimSpace(c.CallID),
		Phase:          phase,
		Direction:      retellDirection(c),
		StartedAt:      unixMillis(c.StartTimestamp),
		EndedAt:        unixMillis(c.EndTimestamp),
		Metadata:       c.Metadata,
		AgentID:        c.AgentID,
		RecordingURL:   c.RecordingURL,
		Transcript:     c.Transcript,
	}
	if ev.Direction == calls.DirectionInbound {
		ev.PhoneNumber, ev.FromNumber = c.FromNumber, c.ToNumber
	} else {
		ev.PhoneNumber, ev.FromNumber = c.ToNumber, c.FromNumber
	}
	ev.TranscriptSegments = retellSegments(c.TranscriptObject)

	switch phase {
	case calls.PhaseStarted:
		ev.Status = calls.CallStatusInProgress
	case calls.PhaseEnded:
		ev.Status = RetellStatus(c.CallStatus)
		ev.DurationSeconds = deriveDuration(msToSeconds(c.DurationMs), ev.StartedAt, ev.EndedAt)
		if c.CallCost != nil && c.CallCost.CombinedCost != nil {
			cost := *c.CallCost.CombinedCost / 100
			ev.CostAmount = &cost
		}
		ev.HasAnalysis = c.Transcript != "" || len(ev.TranscriptSegments) > 0 || c.CallAnalysis != nil
	case calls.PhaseAnalyzed:
		ev.Status = RetellStatus(c.CallStatus)
		ev.DurationSeconds = deriveDuration(msToSeconds(c.DurationMs), ev.StartedAt, ev.EndedAt)
	}

	if a := c.CallAnalysis; a != nil {
		ev.Summary = strings.TrimSpace(a.CallSummary)
		ev.Sentiment = strings.TrimSpace(a.UserSentiment)
		ev.AppointmentSet = boolField(a.CustomAnalysisData, "appointment_set", "appointment_booked", "appointmentSet", "appointmentBooked")
		ev.KeyTopics = stringsField(a.CustomAnalysisData, "key_topics", "keyTopics", "topics")
	}
	return ev, nil
}

func retellDirection(c *RetellCall) calls.Direction {
	for _, v := range []string{c.Direction, c.CallType} {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "inbound":
			return calls.DirectionInbound
		case "outbound":
			return calls.DirectionOutbound
		}
	}
	return calls.DirectionOutbound
}

func retellSegments(in []RetellUtterance) []calls.TranscriptSegment {
	if len(in) == 0 {
		return nil
	}
	out := make([]calls.TranscriptSegment, 0, len(in))
	for _, u := range in {
		speaker, ok := speakerFor(u.Role)
		if !ok {
			continue
		}
		seg := calls.TranscriptSegment{Speaker: speaker, Text: strings.TrimSpace(u.Content)}
		if n := len(u.Words); n > 0 {
			seg.StartTime = u.Words[0].Start
			seg.EndTime = u.Words[n-1].End
		}
		out = append(out, seg)
	}
	return out
}
