package recorder

import (
	"fmt"
	"sync"
	"time"

	"github.com/PROX-GOD/mockdeu/internal/interview"
)

// Recorder accumulates the turns of one session. Append is amortised O(1) and
// rejects out-of-order turns; once finalized the recorder is read-only.
type Recorder struct {
	mu        sync.RWMutex
	session   interview.Session
	turns     []interview.Turn
	finalized bool
	final     interview.Transcript
	now       func() time.Time
}

// New creates a recorder for the given session metadata.
func New(session interview.Session) *Recorder {
	return &Recorder{session: session, turns: make([]interview.Turn, 0, 16), now: time.Now}
}

// Append records the next turn. Its Index must equal the number of turns already held.
func (r *Recorder) Append(turn interview.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return &interview.SessionClosedError{SessionID: r.session.ID, Op: "append"}
	}
	if turn.Index != len(r.turns) {
		return fmt.Errorf("recorder: turn index %d, expected %d", turn.Index, len(r.turns))
	}
	if turn.Flags != nil {
		turn.Flags = append([]interview.Flag(nil), turn.Flags...)
	}
	if turn.OfficerAudio != nil {
		a := *turn.OfficerAudio
		turn.OfficerAudio = &a
	}
	r.turns = append(r.turns, turn)
	r.session.TurnIndex = len(r.turns)
	return nil
}

// Len reports how many turns have been recorded.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.turns)
}

// Snapshot returns the transcript so far. After Finalize it returns the final transcript.
func (r *Recorder) Snapshot() interview.Transcript {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.finalized {
		return r.final
	}
	return interview.NewTranscript(r.session, r.turns)
}

// Finalize closes the recorder and returns the immutable transcript. A second call
// returns the same transcript and a SessionClosedError.
func (r *Recorder) Finalize(sig interview.TerminationSignal) (interview.Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return r.final, &interview.SessionClosedError{SessionID: r.session.ID, Op: "finalize"}
	}
	if sig.At.IsZero() {
		sig.At = r.now()
	}
	r.session.Termination = &sig
	r.session.EndedAt = sig.At
	r.session.State = interview.StateTerminated
	r.final = interview.NewTranscript(r.session, r.turns)
	r.finalized = true
	return r.final, nil
}
