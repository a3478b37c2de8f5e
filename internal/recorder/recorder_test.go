package recorder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PROX-GOD/mockdeu/internal/interview"
)

func TestAppend_IndicesMatchPositions(t *testing.T) {
	r := New(interview.Session{ID: "s1"})
	for i := 0; i < 20; i++ {
		require.NoError(t, r.Append(interview.Turn{Index: i, OfficerText: "q"}))
	}
	tr := r.Snapshot()
	require.Equal(t, 20, tr.Len())
	for i, turn := range tr.Turns() {
		require.Equal(t, i, turn.Index)
	}
	require.Equal(t, 20, tr.Session().TurnIndex)
}

func TestAppend_RejectsGapsAndReorders(t *testing.T) {
	r := New(interview.Session{ID: "s1"})
	require.Error(t, r.Append(interview.Turn{Index: 1}))
	require.NoError(t, r.Append(interview.Turn{Index: 0}))
	require.Error(t, r.Append(interview.Turn{Index: 0}))
	require.Equal(t, 1, r.Len())
}

func TestAppend_CopiesCallerSlices(t *testing.T) {
	r := New(interview.Session{ID: "s1"})
	flags := []interview.Flag{interview.FlagLowConfidence}
	require.NoError(t, r.Append(interview.Turn{Index: 0, Flags: flags}))
	flags[0] = interview.FlagAudioUnavailable
	require.True(t, r.Snapshot().Turn(0).HasFlag(interview.FlagLowConfidence))
}

func TestFinalize_ClosesRecorder(t *testing.T) {
	r := New(interview.Session{ID: "s1"})
	require.NoError(t, r.Append(interview.Turn{Index: 0, OfficerText: "purpose?"}))

	tr, err := r.Finalize(interview.TerminationSignal{Reason: interview.ReasonSequenceExhausted})
	require.NoError(t, err)
	require.Equal(t, 1, tr.Len())
	sig, ok := tr.Termination()
	require.True(t, ok)
	require.False(t, sig.At.IsZero())
	require.Equal(t, interview.StateTerminated, tr.Session().State)

	err = r.Append(interview.Turn{Index: 1})
	require.True(t, errors.Is(err, interview.ErrSessionClosed))
	var sce *interview.SessionClosedError
	require.True(t, errors.As(err, &sce))
	require.Equal(t, "s1", sce.SessionID)

	again, err := r.Finalize(interview.TerminationSignal{Reason: interview.ReasonFatalServiceError})
	require.ErrorIs(t, err, interview.ErrSessionClosed)
	sig2, _ := again.Termination()
	require.Equal(t, interview.ReasonSequenceExhausted, sig2.Reason)
	require.Equal(t, 1, r.Snapshot().Len())
}

func TestSnapshot_IsDetachedFromLaterAppends(t *testing.T) {
	r := New(interview.Session{ID: "s1"})
	require.NoError(t, r.Append(interview.Turn{Index: 0}))
	snap := r.Snapshot()
	require.NoError(t, r.Append(interview.Turn{Index: 1}))
	require.Equal(t, 1, snap.Len())
	_, ok := snap.Termination()
	require.False(t, ok)
}
