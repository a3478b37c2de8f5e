package agent

import (
	"context"
	"strings"
	"time"

	"github.com/PROX-GOD/mockdeu/internal/dialogue"
	"github.com/PROX-GOD/mockdeu/internal/interview"
	"github.com/PROX-GOD/mockdeu/internal/persona"
	"github.com/PROX-GOD/mockdeu/internal/speech"
)

// Resolver resolves the persona for a session.
type Resolver interface {
	Resolve(category interview.VisaCategory, style interview.OfficerStyle, embassy string) (persona.Profile, error)
}

// Policy selects officer utterances and decides termination.
type Policy interface {
	NextUtterance(ctx context.Context, profile persona.Profile, tr interview.Transcript) (dialogue.Utterance, error)
	Decide(profile persona.Profile, tr interview.Transcript) dialogue.Decision
}

// Observer is notified of controller progress. Calls happen on the session goroutine.
type Observer interface {
	StateChanged(sessionID string, from, to interview.State)
	TurnRecorded(sessionID string, turn interview.Turn)
	SessionEnded(sessionID string, sig interview.TerminationSignal, turns int)
}

// Request identifies the persona a session runs with.
type Request struct {
	Category interview.VisaCategory
	Style    interview.OfficerStyle
	Embassy  string
}

// Input is one candidate response: typed text or recorded audio.
type Input struct {
	Text  string
	Audio *speech.AudioStream
	// turn is the index of the turn in progress when the input was submitted.
	turn int
	at   time.Time
}

// TextInput builds a typed response.
func TextInput(text string) Input { return Input{Text: text} }

// AudioInput builds a spoken response.
func AudioInput(a speech.AudioStream) Input { return Input{Audio: &a} }

func (in Input) empty() bool {
	if in.Audio != nil {
		return in.Audio.Empty()
	}
	return strings.TrimSpace(in.Text) == ""
}

// Snapshot is a read-only view of a running session.
type Snapshot struct {
	SessionID            string                       `json:"session_id"`
	Category             interview.VisaCategory       `json:"category"`
	Style                interview.OfficerStyle       `json:"style"`
	Embassy              string                       `json:"embassy"`
	State                interview.State              `json:"state"`
	TurnIndex            int                          `json:"turn_index"`
	LastOfficerUtterance string                       `json:"last_officer_utterance"`
	LastOfficerAudio     *interview.AudioRef          `json:"last_officer_audio,omitempty"`
	StartedAt            time.Time                    `json:"started_at"`
	EndedAt              time.Time                    `json:"ended_at,omitempty"`
	Termination          *interview.TerminationSignal `json:"termination,omitempty"`
}

// Options tunes a controller.
type Options struct {
	// RecognitionTimeout bounds the wait for the candidate plus recognition.
	RecognitionTimeout time.Duration
	// SynthesisTimeout bounds officer audio rendering.
	SynthesisTimeout time.Duration
	// Voice overrides the persona's voice.
	Voice string
	// InputBuffer is how many candidate inputs may queue.
	InputBuffer int
	Observer    Observer
}

const (
	DefaultRecognitionTimeout = 12 * time.Second
	DefaultSynthesisTimeout   = 15 * time.Second
)

func (o Options) withDefaults() Options {
	if o.RecognitionTimeout <= 0 {
		o.RecognitionTimeout = DefaultRecognitionTimeout
	}
	if o.SynthesisTimeout <= 0 {
		o.SynthesisTimeout = DefaultSynthesisTimeout
	}
	if o.InputBuffer <= 0 {
		o.InputBuffer = 4
	}
	return o
}
