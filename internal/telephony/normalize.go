package telephony

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"lead-response/internal/calls"
)

var (
	// ErrNoCall means the payload carried no call object. Acknowledge and do nothing.
	ErrNoCall = errors.New("telephony: payload has no call")
	// ErrIgnoredEvent means the event type does not map to a lifecycle phase.
	ErrIgnoredEvent = errors.New("telephony: event ignored")
)

// Status tables. These encode business meaning; unrecognized values map to completed.
var (
	retellStatuses = map[string]calls.CallStatus{
		"ended":     calls.CallStatusCompleted,
		"error":     calls.CallStatusFailed,
		"busy":      calls.CallStatusBusy,
		"no-answer": calls.CallStatusNoAnswer,
		"voicemail": calls.CallStatusVoicemail,
	}

	vapiEndedReasons = map[string]calls.CallStatus{
		"customer-ended-call":     calls.CallStatusCompleted,
		"assistant-ended-call":    calls.CallStatusCompleted,
		"customer-did-not-answer": calls.CallStatusNoAnswer,
		"customer-busy":           calls.CallStatusBusy,
		"voicemail":               calls.CallStatusVoicemail,
		"error":                   calls.CallStatusFailed,
		"silence-timeout":         calls.CallStatusCompleted,
		"max-duration-reached":    calls.CallStatusCompleted,
	}
)

// RetellStatus maps a Retell call_status to the canonical status.
func RetellStatus(v string) calls.CallStatus {
	if s, ok := retellStatuses[v]; ok {
		return s
	}
	return calls.CallStatusCompleted
}

// VapiStatus maps a Vapi endedReason to the canonical status.
func VapiStatus(v string) calls.CallStatus {
	if s, ok := vapiEndedReasons[v]; ok {
		return s
	}
	return calls.CallStatusCompleted
}

// deriveDuration prefers an explicit provider duration, then end minus start.
// Negative or missing results are 0.
func deriveDuration(explicitSeconds *float64, startedAt, endedAt *time.Time) int {
	if explicitSeconds != nil {
		return nonNegative(math.Round(*explicitSeconds))
	}
	if startedAt == nil || endedAt == nil {
		return 0
	}
	return nonNegative(math.Round(endedAt.Sub(*startedAt).Seconds()))
}

func nonNegative(v float64) int {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return int(v)
}

func msToSeconds(ms *float64) *float64 {
	if ms == nil {
		return nil
	}
	s := *ms / 1000
	return &s
}

func speakerFor(role string) (calls.Speaker, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "agent", "assistant", "bot":
		return calls.SpeakerAgent, true
	case "user", "customer":
		return calls.SpeakerCaller, true
	default:
		return "", false
	}
}

func unixMillis(ms *int64) *time.Time {
	if ms == nil || *ms <= 0 {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// Analysis blocks are tenant-defined; these helpers probe the common keys.

func boolField(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch v := m[k].(type) {
		case bool:
			if v {
				return true
			}
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "yes", "1":
				return true
			}
		}
	}
	return false
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func stringsField(m map[string]any, keys ...string) []string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if item == nil {
					continue
				}
				if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		case []string:
			if len(v) > 0 {
				return v
			}
		case string:
			parts := strings.Split(v, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}
