package interview

import (
	"fmt"
	"strings"
	"time"
)

// VisaCategory is the visa class the candidate is interviewing for.
type VisaCategory string

const (
	CategoryF1   VisaCategory = "F1"
	CategoryB1B2 VisaCategory = "B1B2"
)

// ParseVisaCategory accepts the spellings used on forms ("F-1", "B1/B2", ...).
func ParseVisaCategory(s string) (VisaCategory, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "", "/", "", " ", "").Replace(norm)
	switch norm {
	case "F1":
		return CategoryF1, nil
	case "B1B2":
		return CategoryB1B2, nil
	}
	return "", fmt.Errorf("unknown visa category %q", s)
}

// OfficerStyle selects the officer's demeanour.
type OfficerStyle string

const (
	StyleStrict    OfficerStyle = "strict"
	StyleSkeptical OfficerStyle = "skeptical"
	StyleFriendly  OfficerStyle = "friendly"
)

// ParseOfficerStyle normalizes case and whitespace.
func ParseOfficerStyle(s string) (OfficerStyle, error) {
	switch st := OfficerStyle(strings.ToLower(strings.TrimSpace(s))); st {
	case StyleStrict, StyleSkeptical, StyleFriendly:
		return st, nil
	}
	return "", fmt.Errorf("unknown officer style %q", s)
}

// Flag marks a notable condition on a recorded turn.
type Flag string

const (
	FlagRecognitionTimeout Flag = "recognition-timeout"
	FlagLowConfidence      Flag = "low-confidence"
	FlagAudioUnavailable   Flag = "audio-unavailable"
)

// AudioRef identifies officer audio rendered for a turn. The bytes stay with the
// gateway's handle; the transcript keeps only the reference.
type AudioRef struct {
	ID          string        `json:"id"`
	ContentType string        `json:"content_type"`
	Duration    time.Duration `json:"duration"`
}

// Turn is one officer utterance and the candidate's response to it.
type Turn struct {
	Index         int           `json:"index"`
	QuestionIndex int           `json:"question_index"`
	FollowUpDepth int           `json:"follow_up_depth"`
	Topic         string        `json:"topic,omitempty"`
	OfficerText   string        `json:"officer_text"`
	OfficerAudio  *AudioRef     `json:"officer_audio,omitempty"`
	CandidateText string        `json:"candidate_text"`
	Confidence    float64       `json:"confidence"`
	Latency       time.Duration `json:"latency"`
	AskedAt       time.Time     `json:"asked_at"`
	Flags         []Flag        `json:"flags,omitempty"`
}

// HasFlag reports whether f is set on the turn.
func (t Turn) HasFlag(f Flag) bool {
	for _, x := range t.Flags {
		if x == f {
			return true
		}
	}
	return false
}

// IsFollowUp reports whether the turn was a discretionary follow-up.
func (t Turn) IsFollowUp() bool { return t.FollowUpDepth > 0 }

func (t Turn) clone() Turn {
	if t.Flags != nil {
		t.Flags = append([]Flag(nil), t.Flags...)
	}
	if t.OfficerAudio != nil {
		a := *t.OfficerAudio
		t.OfficerAudio = &a
	}
	return t
}

// TerminationReason tags why a session ended.
type TerminationReason string

const (
	ReasonOfficerSatisfied      TerminationReason = "officer-satisfied"
	ReasonSequenceExhausted     TerminationReason = "sequence-exhausted"
	ReasonBudgetExhausted       TerminationReason = "question-budget-exhausted"
	ReasonCandidateDisconnected TerminationReason = "candidate-disconnected"
	ReasonFatalServiceError     TerminationReason = "fatal-service-error"
)

// TerminationSignal is attached to a session when it closes.
type TerminationSignal struct {
	Reason TerminationReason `json:"reason"`
	Detail string            `json:"detail,omitempty"`
	At     time.Time         `json:"at"`
}

// Session identifies one interview run.
type Session struct {
	ID          string             `json:"id"`
	Category    VisaCategory       `json:"category"`
	Style       OfficerStyle       `json:"style"`
	Embassy     string             `json:"embassy"`
	TurnIndex   int                `json:"turn_index"`
	State       State              `json:"state"`
	StartedAt   time.Time          `json:"started_at"`
	EndedAt     time.Time          `json:"ended_at,omitempty"`
	Termination *TerminationSignal `json:"termination,omitempty"`
}
