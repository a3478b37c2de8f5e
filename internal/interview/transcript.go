package interview

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Transcript is the ordered record of a session's turns plus its metadata. It is a
// value: the turn slice is private and accessors hand out copies, so a transcript
// handed to scoring cannot be altered by the recorder or by the consumer.
type Transcript struct {
	session Session
	turns   []Turn
}

// NewTranscript copies turns into a transcript snapshot.
func NewTranscript(session Session, turns []Turn) Transcript {
	cp := make([]Turn, len(turns))
	for i, t := range turns {
		cp[i] = t.clone()
	}
	if session.Termination != nil {
		sig := *session.Termination
		session.Termination = &sig
	}
	return Transcript{session: session, turns: cp}
}

func (t Transcript) Session() Session {
	s := t.session
	if s.Termination != nil {
		sig := *s.Termination
		s.Termination = &sig
	}
	return s
}

func (t Transcript) Len() int { return len(t.turns) }

// Turn returns a copy of the i-th turn.
func (t Transcript) Turn(i int) Turn { return t.turns[i].clone() }

// Turns returns a copy of all turns in recorded order.
func (t Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	for i, turn := range t.turns {
		out[i] = turn.clone()
	}
	return out
}

// Last returns the most recent turn, if any.
func (t Transcript) Last() (Turn, bool) {
	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1].clone(), true
}

// Termination returns the closing signal; ok is false for a live snapshot.
func (t Transcript) Termination() (TerminationSignal, bool) {
	if t.session.Termination == nil {
		return TerminationSignal{}, false
	}
	return *t.session.Termination, true
}

// Text renders the transcript as OFFICER/APPLICANT lines.
func (t Transcript) Text() string {
	var b strings.Builder
	for _, turn := range t.turns {
		fmt.Fprintf(&b, "OFFICER: %s\n", turn.OfficerText)
		answer := turn.CandidateText
		if turn.HasFlag(FlagRecognitionTimeout) {
			answer = "(no response)"
		}
		fmt.Fprintf(&b, "APPLICANT: %s\n", answer)
	}
	if sig, ok := t.Termination(); ok {
		fmt.Fprintf(&b, "-- ended: %s", sig.Reason)
		if sig.Detail != "" {
			fmt.Fprintf(&b, " (%s)", sig.Detail)
		}
		b.WriteString("\n")
	}
	return b.String()
}

type transcriptJSON struct {
	Session Session `json:"session"`
	Turns   []Turn  `json:"turns"`
}

func (t Transcript) MarshalJSON() ([]byte, error) {
	turns := t.turns
	if turns == nil {
		turns = []Turn{}
	}
	return json.Marshal(transcriptJSON{Session: t.session, Turns: turns})
}

func (t *Transcript) UnmarshalJSON(b []byte) error {
	var raw transcriptJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for i, turn := range raw.Turns {
		if turn.Index != i {
			return fmt.Errorf("transcript: turn at position %d has index %d", i, turn.Index)
		}
	}
	*t = NewTranscript(raw.Session, raw.Turns)
	return nil
}

// Duration is the wall-clock length of the session, zero while it is running.
func (t Transcript) Duration() time.Duration {
	if t.session.EndedAt.IsZero() {
		return 0
	}
	return t.session.EndedAt.Sub(t.session.StartedAt)
}
