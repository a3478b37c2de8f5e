package interview

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseVisaCategory(t *testing.T) {
	for in, want := range map[string]VisaCategory{"F1": CategoryF1, "f-1": CategoryF1, "B1/B2": CategoryB1B2, " b1-b2 ": CategoryB1B2} {
		got, err := ParseVisaCategory(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}
	_, err := ParseVisaCategory("H1B")
	require.Error(t, err)
}

func TestParseOfficerStyle(t *testing.T) {
	got, err := ParseOfficerStyle(" Skeptical ")
	require.NoError(t, err)
	require.Equal(t, StyleSkeptical, got)
	_, err = ParseOfficerStyle("thorough")
	require.Error(t, err)
}

func TestTranscript_AccessorsReturnCopies(t *testing.T) {
	turns := []Turn{{Index: 0, OfficerText: "Why this university?", Flags: []Flag{FlagLowConfidence}}}
	tr := NewTranscript(Session{ID: "s1"}, turns)

	turns[0].OfficerText = "mutated"
	require.Equal(t, "Why this university?", tr.Turn(0).OfficerText)

	got := tr.Turns()
	got[0].Flags[0] = FlagRecognitionTimeout
	require.True(t, tr.Turn(0).HasFlag(FlagLowConfidence))
	require.False(t, tr.Turn(0).HasFlag(FlagRecognitionTimeout))
}

func TestTranscript_JSONRoundTripKeepsOrder(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sig := &TerminationSignal{Reason: ReasonSequenceExhausted, At: now}
	tr := NewTranscript(Session{ID: "s1", Category: CategoryF1, State: StateTerminated, Termination: sig},
		[]Turn{{Index: 0, OfficerText: "a"}, {Index: 1, OfficerText: "b"}})

	b, err := json.Marshal(tr)
	require.NoError(t, err)
	require.Contains(t, string(b), `"state":"terminated"`)

	var back Transcript
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, 2, back.Len())
	require.Equal(t, "b", back.Turn(1).OfficerText)
	got, ok := back.Termination()
	require.True(t, ok)
	require.Equal(t, ReasonSequenceExhausted, got.Reason)
}

func TestTranscript_UnmarshalRejectsGaps(t *testing.T) {
	var tr Transcript
	err := json.Unmarshal([]byte(`{"session":{"id":"x","state":"terminated"},"turns":[{"index":1}]}`), &tr)
	require.Error(t, err)
}

func TestTranscript_Text(t *testing.T) {
	tr := NewTranscript(Session{Termination: &TerminationSignal{Reason: ReasonFatalServiceError, Detail: "stt down"}},
		[]Turn{{Index: 0, OfficerText: "Purpose?", Flags: []Flag{FlagRecognitionTimeout}}})
	txt := tr.Text()
	require.True(t, strings.HasPrefix(txt, "OFFICER: Purpose?\nAPPLICANT: (no response)\n"))
	require.Contains(t, txt, "fatal-service-error (stt down)")
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StateEvaluating, StateAwaitingOfficerUtterance))
	require.True(t, CanTransition(StateAwaitingCandidateResponse, StateTerminating))
	require.False(t, CanTransition(StateTerminated, StateAwaitingOfficerUtterance))
	require.False(t, CanTransition(StateTerminating, StateEvaluating))
	require.False(t, CanTransition(StateAwaitingOfficerUtterance, StateEvaluating))
}

func TestSessionClosedError_Is(t *testing.T) {
	var err error = &SessionClosedError{SessionID: "s1", Op: "append"}
	require.True(t, errors.Is(err, ErrSessionClosed))
	setup := &SessionSetupError{SessionID: "s1", Err: &UnknownPersonaError{Category: "H1B", Style: StyleStrict}}
	var upe *UnknownPersonaError
	require.True(t, errors.As(setup, &upe))
}
