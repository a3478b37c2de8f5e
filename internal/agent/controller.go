package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/PROX-GOD/mockdeu/internal/dialogue"
	"github.com/PROX-GOD/mockdeu/internal/interview"
	"github.com/PROX-GOD/mockdeu/internal/persona"
	"github.com/PROX-GOD/mockdeu/internal/recorder"
	"github.com/PROX-GOD/mockdeu/internal/speech"
)

var (
	errCancelled = errors.New("session cancelled")
	errTimedOut  = errors.New("timed out")
)

// Controller runs one interview session as a state machine on its own goroutine.
// All exported methods are safe for concurrent use.
type Controller struct {
	id      string
	req     Request
	catalog Resolver
	policy  Policy
	gateway speech.Gateway
	opts    Options
	rec     *recorder.Recorder
	inputs  chan Input

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.RWMutex
	state       interview.State
	profile     persona.Profile
	startedAt   time.Time
	endedAt     time.Time
	lastText    string
	lastAudio   *speech.AudioHandle
	termination *interview.TerminationSignal
	current     int
	started     bool
	closing     bool
}

// New builds a controller; call Initialize then Start.
func New(id string, req Request, catalog Resolver, policy Policy, gateway speech.Gateway, opts Options) *Controller {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &Controller{
		id:      id,
		req:     req,
		catalog: catalog,
		policy:  policy,
		gateway: gateway,
		opts:    opts,
		rec: recorder.New(interview.Session{
			ID: id, Category: req.Category, Style: req.Style, Embassy: req.Embassy, StartedAt: now,
		}),
		inputs:    make(chan Input, opts.InputBuffer),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     interview.StateInitializing,
		startedAt: now,
	}
}

func (c *Controller) ID() string { return c.id }

// Initialize resolves the persona. On failure the session is terminated and the
// error is a SessionSetupError wrapping the catalog error.
func (c *Controller) Initialize() error {
	profile, err := c.catalog.Resolve(c.req.Category, c.req.Style, c.req.Embassy)
	if err != nil {
		c.finish(c.signal(interview.ReasonFatalServiceError, err.Error()))
		close(c.done)
		return &interview.SessionSetupError{SessionID: c.id, Err: err}
	}
	c.mu.Lock()
	c.profile = profile
	c.req.Embassy = profile.Embassy
	c.mu.Unlock()
	return nil
}

// Start runs the session until it terminates. Cancelling ctx disconnects the candidate.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.state != interview.StateInitializing {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, c.cancel)
	go func() {
		defer close(c.done)
		defer stop()
		c.finish(c.runSafely())
	}()
}

// Cancel aborts the session; it ends with candidate-disconnected.
func (c *Controller) Cancel() { c.cancel() }

// Done is closed once the session reached Terminated.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Profile returns the resolved persona.
func (c *Controller) Profile() persona.Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

// Transcript returns the turns recorded so far, or the final transcript once terminated.
func (c *Controller) Transcript() interview.Transcript { return c.rec.Snapshot() }

// LastAudio returns the officer audio of the latest utterance, if any was rendered.
func (c *Controller) LastAudio() (speech.AudioHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastAudio == nil {
		return speech.AudioHandle{}, false
	}
	return *c.lastAudio, true
}

// Snapshot reports the current state without changing it.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{
		SessionID:            c.id,
		Category:             c.req.Category,
		Style:                c.req.Style,
		Embassy:              c.req.Embassy,
		State:                c.state,
		TurnIndex:            c.rec.Len(),
		LastOfficerUtterance: c.lastText,
		StartedAt:            c.startedAt,
		EndedAt:              c.endedAt,
	}
	if c.lastAudio != nil {
		s.LastOfficerAudio = audioRef(*c.lastAudio)
	}
	if c.termination != nil {
		sig := *c.termination
		s.Termination = &sig
	}
	return s
}

// Submit queues a candidate response for the turn in progress. Inputs that arrive
// after their turn was closed are discarded by the session loop.
func (c *Controller) Submit(in Input) error {
	if in.empty() {
		return fmt.Errorf("submit: empty input")
	}
	c.mu.RLock()
	closed := c.closing || c.state == interview.StateTerminating || c.state.Final()
	in.turn = c.current
	c.mu.RUnlock()
	if closed {
		return &interview.SessionClosedError{SessionID: c.id, Op: "submit"}
	}
	in.at = time.Now()
	select {
	case c.inputs <- in:
		return nil
	default:
		return fmt.Errorf("submit: session %s input queue full", c.id)
	}
}

func (c *Controller) signal(reason interview.TerminationReason, detail string) interview.TerminationSignal {
	return interview.TerminationSignal{Reason: reason, Detail: detail, At: time.Now()}
}

func (c *Controller) transition(to interview.State) error {
	c.mu.Lock()
	from := c.state
	if !interview.CanTransition(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	c.state = to
	c.mu.Unlock()
	if c.opts.Observer != nil {
		c.opts.Observer.StateChanged(c.id, from, to)
	}
	return nil
}

// runSafely turns a panic in any collaborator into a fatal termination.
func (c *Controller) runSafely() (sig interview.TerminationSignal) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] recovered panic: %v\n%s", c.id, r, debug.Stack())
			sig = c.signal(interview.ReasonFatalServiceError, fmt.Sprintf("panic: %v", r))
		}
	}()
	return c.run()
}

func (c *Controller) run() interview.TerminationSignal {
	c.mu.RLock()
	profile := c.profile
	c.mu.RUnlock()
	log.Printf("[%s] interview started: %s/%s@%s, %d questions", c.id, profile.Category, profile.Style, profile.Embassy, len(profile.Questions))

	for {
		if c.ctx.Err() != nil {
			return c.signal(interview.ReasonCandidateDisconnected, "cancelled")
		}
		if err := c.transition(interview.StateAwaitingOfficerUtterance); err != nil {
			return c.signal(interview.ReasonFatalServiceError, err.Error())
		}

		tr := c.rec.Snapshot()
		c.mu.Lock()
		c.current = tr.Len()
		c.mu.Unlock()
		u, err := c.policy.NextUtterance(c.ctx, profile, tr)
		if err != nil {
			switch {
			case c.ctx.Err() != nil:
				return c.signal(interview.ReasonCandidateDisconnected, "cancelled")
			case errors.Is(err, dialogue.ErrSequenceExhausted):
				return c.signal(interview.ReasonSequenceExhausted, "")
			default:
				return c.signal(interview.ReasonFatalServiceError, fmt.Sprintf("dialogue: %v", err))
			}
		}

		turn := interview.Turn{
			Index:         tr.Len(),
			QuestionIndex: u.QuestionIndex,
			FollowUpDepth: u.FollowUpDepth,
			Topic:         u.Topic,
			OfficerText:   u.Text,
			AskedAt:       time.Now(),
		}
		audio, err := c.synthesize(profile, u.Text)
		if err != nil {
			if c.ctx.Err() != nil {
				return c.signal(interview.ReasonCandidateDisconnected, "cancelled")
			}
			log.Printf("[%s] turn %d: officer audio unavailable: %v", c.id, turn.Index, err)
			turn.Flags = append(turn.Flags, interview.FlagAudioUnavailable)
		} else {
			turn.OfficerAudio = audioRef(audio)
		}
		c.mu.Lock()
		c.lastText = u.Text
		if err == nil {
			c.lastAudio = &audio
		} else {
			c.lastAudio = nil
		}
		c.mu.Unlock()
		log.Printf("[%s] OFFICER(%d): %s", c.id, turn.Index, u.Text)

		if err := c.transition(interview.StateAwaitingCandidateResponse); err != nil {
			return c.signal(interview.ReasonFatalServiceError, err.Error())
		}
		askedAt := time.Now()
		rec, receivedAt, err := c.awaitResponse(turn.Index)
		switch {
		case errors.Is(err, errCancelled):
			return c.signal(interview.ReasonCandidateDisconnected, "cancelled while awaiting response")
		case errors.Is(err, errTimedOut):
			log.Printf("[%s] turn %d: no recognition within %s", c.id, turn.Index, c.opts.RecognitionTimeout)
			turn.Flags = append(turn.Flags, interview.FlagRecognitionTimeout)
			turn.Latency = c.opts.RecognitionTimeout
		case err != nil:
			return c.signal(interview.ReasonFatalServiceError, fmt.Sprintf("speech: %v", err))
		default:
			turn.CandidateText = rec.Text
			turn.Confidence = rec.Confidence
			turn.Latency = receivedAt.Sub(askedAt)
			if turn.Latency < 0 {
				turn.Latency = 0
			}
			if rec.Confidence < profile.MinConfidence {
				turn.Flags = append(turn.Flags, interview.FlagLowConfidence)
			}
			log.Printf("[%s] CANDIDATE(%d, conf=%.2f): %s", c.id, turn.Index, rec.Confidence, rec.Text)
		}

		if err := c.transition(interview.StateEvaluating); err != nil {
			return c.signal(interview.ReasonFatalServiceError, err.Error())
		}
		if err := c.rec.Append(turn); err != nil {
			return c.signal(interview.ReasonFatalServiceError, fmt.Sprintf("recorder: %v", err))
		}
		if c.opts.Observer != nil {
			c.opts.Observer.TurnRecorded(c.id, turn)
		}
		if d := c.policy.Decide(profile, c.rec.Snapshot()); !d.Continue {
			return c.signal(d.Reason, d.Detail)
		}
	}
}

func (c *Controller) synthesize(profile persona.Profile, text string) (speech.AudioHandle, error) {
	voice := speech.VoiceProfile{Voice: profile.Voice}
	if c.opts.Voice != "" {
		voice.Voice = c.opts.Voice
	}
	return bounded(c.ctx, c.opts.SynthesisTimeout, func(ctx context.Context) (speech.AudioHandle, error) {
		return c.gateway.Synthesize(ctx, text, voice)
	})
}

// awaitResponse waits for the candidate's input for turn idx and recognizes it.
// A single deadline covers both the wait and recognition.
func (c *Controller) awaitResponse(idx int) (speech.Recognition, time.Time, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.RecognitionTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			if c.ctx.Err() != nil {
				return speech.Recognition{}, time.Time{}, errCancelled
			}
			return speech.Recognition{}, time.Time{}, errTimedOut
		case in := <-c.inputs:
			if in.turn != idx {
				log.Printf("[%s] discarding stale input for turn %d (awaiting %d)", c.id, in.turn, idx)
				continue
			}
			if in.Audio == nil {
				return speech.Recognition{Text: strings.TrimSpace(in.Text), Confidence: 1}, in.at, nil
			}
			remaining := c.opts.RecognitionTimeout
			if dl, ok := ctx.Deadline(); ok {
				remaining = time.Until(dl)
			}
			audio := *in.Audio
			rec, err := bounded(ctx, 0, func(ctx context.Context) (speech.Recognition, error) {
				return c.gateway.Transcribe(ctx, audio, remaining)
			})
			switch {
			case err == nil:
				return rec, in.at, nil
			case c.ctx.Err() != nil:
				return speech.Recognition{}, time.Time{}, errCancelled
			case errors.Is(err, speech.ErrRecognitionTimeout), errors.Is(err, context.DeadlineExceeded):
				return speech.Recognition{}, time.Time{}, errTimedOut
			default:
				return speech.Recognition{}, time.Time{}, err
			}
		}
	}
}

// bounded runs fn under timeout (if positive) and returns as soon as ctx is done,
// whether or not fn honours its context.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// finish moves the session through Terminating into Terminated and finalizes the transcript.
func (c *Controller) finish(sig interview.TerminationSignal) {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	if err := c.transition(interview.StateTerminating); err != nil {
		log.Printf("[%s] %v", c.id, err)
	}
	final, err := c.rec.Finalize(sig)
	if err != nil {
		log.Printf("[%s] finalize: %v", c.id, err)
	}
	// the reason is visible before any observer can see the final state
	c.mu.Lock()
	c.termination = &sig
	c.endedAt = sig.At
	c.lastAudio = nil
	c.mu.Unlock()
	if err := c.transition(interview.StateTerminated); err != nil {
		log.Printf("[%s] %v", c.id, err)
	}
	c.cancel()
	log.Printf("[%s] interview ended: %s %s (%d turns)", c.id, sig.Reason, sig.Detail, final.Len())
	if c.opts.Observer != nil {
		c.opts.Observer.SessionEnded(c.id, sig, final.Len())
	}
}

func audioRef(h speech.AudioHandle) *interview.AudioRef {
	return &interview.AudioRef{ID: h.ID, ContentType: h.ContentType, Duration: h.Duration}
}
