package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PROX-GOD/mockdeu/internal/agent"
	"github.com/PROX-GOD/mockdeu/internal/interview"
	"github.com/PROX-GOD/mockdeu/internal/metrics"
	"github.com/PROX-GOD/mockdeu/internal/scoring"
	"github.com/PROX-GOD/mockdeu/internal/speech"
)

// ErrNoAudio is returned when the latest officer utterance has no rendered audio.
var ErrNoAudio = errors.New("no officer audio available")

// Scorer evaluates finished transcripts.
type Scorer interface {
	Evaluate(ctx context.Context, tr interview.Transcript) (scoring.Report, error)
}

// Archiver persists finished cases.
type Archiver interface {
	Save(tr interview.Transcript, report scoring.Report) ([]string, error)
}

// Result is the outcome of a finished session.
type Result struct {
	Transcript interview.Transcript `json:"transcript"`
	Report     *scoring.Report      `json:"report,omitempty"`
	Archived   []string             `json:"archived,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// InterviewService is the inbound API shells drive sessions through.
type InterviewService interface {
	StartSession(ctx context.Context, req agent.Request) (string, error)
	SubmitCandidateInput(sessionID string, in agent.Input) error
	GetSessionState(sessionID string) (agent.Snapshot, error)
	CancelSession(sessionID string) error
	OfficerAudio(sessionID string) (speech.AudioHandle, error)
	// Result returns the outcome; ready is false while the session is still running.
	Result(sessionID string) (res Result, ready bool, err error)
	Wait(ctx context.Context, sessionID string) (Result, error)
	Close()
}

// Deps wires the service's collaborators. Archive and Metrics are optional.
type Deps struct {
	Catalog    agent.Resolver
	Policy     agent.Policy
	Gateway    speech.Gateway
	Scorer     Scorer
	Archive    Archiver
	Metrics    *metrics.Metrics
	Controller agent.Options
	// ScoreTimeout bounds scoring, including coach feedback.
	ScoreTimeout time.Duration
	// Retention is how long a finished session stays queryable.
	Retention time.Duration
	NewID     func() string
}

type session struct {
	ctrl   *agent.Controller
	done   chan struct{}
	result Result
	evict  *time.Timer
}

type interviewService struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

func NewInterviewService(deps Deps) InterviewService {
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.ScoreTimeout <= 0 {
		deps.ScoreTimeout = 90 * time.Second
	}
	if deps.Retention <= 0 {
		deps.Retention = time.Hour
	}
	if deps.Controller.Observer == nil && deps.Metrics != nil {
		deps.Controller.Observer = deps.Metrics
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &interviewService{
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		sessions: map[string]*session{},
	}
}

// StartSession resolves the persona and starts the interview. Sessions outlive ctx;
// only CancelSession or Close stops them.
func (s *interviewService) StartSession(ctx context.Context, req agent.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.ctx.Err(); err != nil {
		return "", fmt.Errorf("interview service closed")
	}
	id := s.deps.NewID()
	s.deps.Metrics.SessionStarted()
	ctrl := agent.New(id, req, s.deps.Catalog, s.deps.Policy, s.deps.Gateway, s.deps.Controller)
	if err := ctrl.Initialize(); err != nil {
		log.Printf("[%s] session setup failed: %v", id, err)
		return "", err
	}

	sess := &session{ctrl: ctrl, done: make(chan struct{})}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	ctrl.Start(s.ctx)
	s.wg.Add(1)
	go s.complete(id, sess)
	log.Printf("[%s] session started (%s/%s@%s)", id, req.Category, req.Style, ctrl.Profile().Embassy)
	return id, nil
}

// complete scores and archives a session once its controller terminates.
func (s *interviewService) complete(id string, sess *session) {
	defer s.wg.Done()
	defer close(sess.done)
	<-sess.ctrl.Done()

	tr := sess.ctrl.Transcript()
	res := Result{Transcript: tr}
	if s.deps.Scorer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.deps.ScoreTimeout)
		report, err := s.deps.Scorer.Evaluate(ctx, tr)
		cancel()
		if err != nil {
			log.Printf("[%s] scoring failed: %v", id, err)
			res.Error = fmt.Sprintf("scoring: %v", err)
		} else {
			res.Report = &report
			s.deps.Metrics.Decision(string(report.Decision))
			log.Printf("[%s] decision %s, score %d", id, report.Decision, report.Score)
		}
	}
	if s.deps.Archive != nil && res.Report != nil {
		keys, err := s.deps.Archive.Save(tr, *res.Report)
		res.Archived = keys
		if err != nil {
			s.deps.Metrics.ArchiveFailed()
			log.Printf("[%s] archive failed: %v", id, err)
			res.Error = fmt.Sprintf("archive: %v", err)
		}
	}

	s.mu.Lock()
	sess.result = res
	if s.ctx.Err() == nil {
		sess.evict = time.AfterFunc(s.deps.Retention, func() { s.forget(id, sess) })
	}
	s.mu.Unlock()
}

// forget drops a finished session once its retention window has passed.
func (s *interviewService) forget(id string, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[id] == sess {
		delete(s.sessions, id)
		log.Printf("[%s] session evicted", id)
	}
}

func (s *interviewService) lookup(id string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, interview.ErrSessionNotFound)
	}
	return sess, nil
}

func (s *interviewService) SubmitCandidateInput(sessionID string, in agent.Input) error {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	return sess.ctrl.Submit(in)
}

func (s *interviewService) GetSessionState(sessionID string) (agent.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return agent.Snapshot{}, err
	}
	return sess.ctrl.Snapshot(), nil
}

func (s *interviewService) CancelSession(sessionID string) error {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.ctrl.Cancel()
	return nil
}

func (s *interviewService) OfficerAudio(sessionID string) (speech.AudioHandle, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return speech.AudioHandle{}, err
	}
	h, ok := sess.ctrl.LastAudio()
	if !ok {
		return speech.AudioHandle{}, ErrNoAudio
	}
	return h, nil
}

func (s *interviewService) Result(sessionID string) (Result, bool, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return Result{}, false, err
	}
	select {
	case <-sess.done:
	default:
		return Result{Transcript: sess.ctrl.Transcript()}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sess.result, true, nil
}

func (s *interviewService) Wait(ctx context.Context, sessionID string) (Result, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return Result{}, err
	}
	select {
	case <-sess.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sess.result, nil
}

// Close cancels every running session and waits for their results to be recorded.
func (s *interviewService) Close() {
	s.cancel()
	s.wg.Wait()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.evict != nil {
			sess.evict.Stop()
		}
	}
}
