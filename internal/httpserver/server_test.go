package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/PROX-GOD/mockdeu/internal/agent"
	"github.com/PROX-GOD/mockdeu/internal/interview"
	"github.com/PROX-GOD/mockdeu/internal/persona"
	"github.com/PROX-GOD/mockdeu/internal/speech"
	"github.com/PROX-GOD/mockdeu/internal/usecase"
)

type fakeService struct {
	mu        sync.Mutex
	final     bool
	started   []agent.Request
	inputs    []agent.Input
	cancelled []string
	ready     bool
	startErr  error
	submitErr error
}

func (f *fakeService) StartSession(_ context.Context, req agent.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, req)
	return "s1", nil
}

func (f *fakeService) check(id string) error {
	if id != "s1" {
		return fmt.Errorf("session %s: %w", id, interview.ErrSessionNotFound)
	}
	return nil
}

func (f *fakeService) SubmitCandidateInput(id string, in agent.Input) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(id); err != nil {
		return err
	}
	if f.submitErr != nil {
		return f.submitErr
	}
	f.inputs = append(f.inputs, in)
	return nil
}

func (f *fakeService) GetSessionState(id string) (agent.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(id); err != nil {
		return agent.Snapshot{}, err
	}
	state := interview.StateAwaitingCandidateResponse
	if f.final {
		state = interview.StateTerminated
	}
	return agent.Snapshot{SessionID: id, State: state, LastOfficerUtterance: "Why this university?"}, nil
}

func (f *fakeService) CancelSession(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(id); err != nil {
		return err
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeService) OfficerAudio(id string) (speech.AudioHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(id); err != nil {
		return speech.AudioHandle{}, err
	}
	if !f.ready {
		return speech.AudioHandle{ID: "a1", ContentType: "audio/wav", Data: []byte("RIFF")}, nil
	}
	return speech.AudioHandle{}, usecase.ErrNoAudio
}

func (f *fakeService) Result(id string) (usecase.Result, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(id); err != nil {
		return usecase.Result{}, false, err
	}
	return usecase.Result{Transcript: interview.NewTranscript(interview.Session{ID: id}, nil)}, f.ready, nil
}

func (f *fakeService) Wait(context.Context, string) (usecase.Result, error) {
	return usecase.Result{}, nil
}

func (f *fakeService) Close() {}

func (f *fakeService) inputCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func (f *fakeService) finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.final = true
	f.ready = true
}

func newTestServer(t *testing.T, svc *fakeService, token string) *Server {
	t.Helper()
	catalog, err := persona.Default()
	if err != nil {
		t.Fatal(err)
	}
	return New(svc, Options{APIToken: token, Gatherer: prometheus.NewRegistry(), Catalog: catalog})
}

func do(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)
	return w
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, "secret")
	if w := do(srv, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := do(srv, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Fatalf("expected open metrics, got %d", w.Code)
	}
}

func TestServer_Unauthorized(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, "secret")
	if w := do(srv, http.MethodGet, "/sessions/s1", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := do(srv, http.MethodGet, "/sessions/s1?token=wrong", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := do(srv, http.MethodGet, "/sessions/s1?token=secret", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestStartSession(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc, "")
	w := do(srv, http.MethodPost, "/sessions", `{"category":"F-1","style":"Strict","embassy":"kathmandu"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var snap map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap["session_id"] != "s1" || snap["state"] != "awaiting-candidate-response" {
		t.Fatalf("unexpected snapshot: %v", snap)
	}
	if len(svc.started) != 1 || svc.started[0].Category != interview.CategoryF1 || svc.started[0].Style != interview.StyleStrict {
		t.Fatalf("unexpected request: %+v", svc.started)
	}
}

func TestStartSession_BadInput(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, "")
	cases := map[string]string{
		"bad json":     `not-json`,
		"bad category": `{"category":"H1B","style":"strict"}`,
		"bad style":    `{"category":"F1","style":"grumpy"}`,
	}
	for name, body := range cases {
		if w := do(srv, http.MethodPost, "/sessions", body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, w.Code)
		}
	}
}

func TestStartSession_UnknownPersona(t *testing.T) {
	svc := &fakeService{startErr: &interview.SessionSetupError{SessionID: "s9", Err: &interview.UnknownPersonaError{Embassy: "narnia", Reason: "unknown embassy"}}}
	srv := newTestServer(t, svc, "")
	if w := do(srv, http.MethodPost, "/sessions", `{"category":"F1","style":"strict","embassy":"narnia"}`); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestSubmitInput(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc, "")
	if w := do(srv, http.MethodPost, "/sessions/s1/input", `{"text":"I will study biology."}`); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	// "AAE=" is two bytes of PCM.
	if w := do(srv, http.MethodPost, "/sessions/s1/input", `{"encoding":"opus","sample_rate":48000,"frames":["AAE="]}`); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if len(svc.inputs) != 2 || svc.inputs[0].Text != "I will study biology." {
		t.Fatalf("unexpected inputs: %+v", svc.inputs)
	}
	a := svc.inputs[1].Audio
	if a == nil || a.Encoding != speech.EncodingOpus || a.SampleRate != 48000 || len(a.Frames[0]) != 2 {
		t.Fatalf("unexpected audio: %+v", a)
	}
	if w := do(srv, http.MethodPost, "/sessions/s1/input", `{"encoding":"mp3","frames":["AAE="]}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for mp3, got %d", w.Code)
	}
	for _, rate := range []string{"-16000", "5"} {
		if w := do(srv, http.MethodPost, "/sessions/s1/input", `{"sample_rate":`+rate+`,"frames":["AAE="]}`); w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for sample_rate %s, got %d", rate, w.Code)
		}
	}
	if len(svc.inputs) != 2 {
		t.Fatalf("rejected audio was forwarded: %+v", svc.inputs)
	}
	if w := do(srv, http.MethodPost, "/sessions/zz/input", `{"text":"hi"}`); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSubmitInput_Closed(t *testing.T) {
	svc := &fakeService{submitErr: &interview.SessionClosedError{SessionID: "s1", Op: "submit"}}
	srv := newTestServer(t, svc, "")
	if w := do(srv, http.MethodPost, "/sessions/s1/input", `{"text":"hello"}`); w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestCancelAndResult(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc, "")
	if w := do(srv, http.MethodGet, "/sessions/s1/result", ""); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 while running, got %d", w.Code)
	}
	if w := do(srv, http.MethodDelete, "/sessions/s1", ""); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if len(svc.cancelled) != 1 {
		t.Fatalf("cancel not forwarded")
	}
	svc.ready = true
	w := do(srv, http.MethodGet, "/sessions/s1/result", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"transcript"`) {
		t.Fatalf("expected result, got %d: %s", w.Code, w.Body.String())
	}
	if w := do(srv, http.MethodDelete, "/sessions/zz", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAudio(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc, "")
	w := do(srv, http.MethodGet, "/sessions/s1/audio", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "audio/wav" || w.Body.String() != "RIFF" {
		t.Fatalf("unexpected audio response %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	svc.ready = true
	if w := do(srv, http.MethodGet, "/sessions/s1/audio", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without audio, got %d", w.Code)
	}
}

func TestPersonas(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, "")
	w := do(srv, http.MethodGet, "/personas", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"kathmandu"`) {
		t.Fatalf("unexpected personas response %d: %s", w.Code, w.Body.String())
	}
}
