package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PROX-GOD/mockdeu/internal/interview"
	"github.com/PROX-GOD/mockdeu/internal/scoring"
)

func sampleTranscript() interview.Transcript {
	return interview.NewTranscript(interview.Session{
		ID:       "case-42",
		Category: interview.CategoryF1,
		Style:    interview.StyleFriendly,
		Embassy:  "generic",
		Termination: &interview.TerminationSignal{
			Reason: interview.ReasonOfficerSatisfied,
			At:     time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC),
		},
	}, []interview.Turn{
		{Index: 0, Topic: "purpose", OfficerText: "Why are you going to the United States?", CandidateText: "To study.", Confidence: 1},
		{Index: 1, Topic: "funding", OfficerText: "Who pays?", Flags: []interview.Flag{interview.FlagRecognitionTimeout}},
	})
}

func TestCaseArchiveFilesystem(t *testing.T) {
	dir := t.TempDir()
	archive := NewCaseArchive(NewFilesystemStorage(dir))
	report := scoring.Report{CaseID: "case-42", Score: 55, Decision: scoring.DecisionDenied, Feedback: "# Interview Feedback"}

	keys, err := archive.Save(sampleTranscript(), report)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(keys) != 4 {
		t.Fatalf("expected 4 artifacts, got %v", keys)
	}

	text, err := os.ReadFile(filepath.Join(dir, "case-42_transcript.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(text), "APPLICANT: (no response)") || !strings.Contains(string(text), "-- ended: officer-satisfied") {
		t.Fatalf("unexpected transcript text:\n%s", text)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "case-42_transcript.json"))
	if err != nil {
		t.Fatal(err)
	}
	var back interview.Transcript
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("transcript json: %v", err)
	}
	if back.Len() != 2 || back.Session().ID != "case-42" {
		t.Fatalf("round trip lost data: %d turns, id %q", back.Len(), back.Session().ID)
	}

	raw, err = os.ReadFile(filepath.Join(dir, "case-42_report.json"))
	if err != nil {
		t.Fatal(err)
	}
	var rep map[string]any
	if err := json.Unmarshal(raw, &rep); err != nil {
		t.Fatal(err)
	}
	if rep["decision"] != "DENIED" || rep["score"].(float64) != 55 {
		t.Fatalf("unexpected report: %v", rep)
	}

	md, err := os.ReadFile(filepath.Join(dir, "case-42_feedback.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(md) != "# Interview Feedback\n" {
		t.Fatalf("feedback = %q", md)
	}
}

func TestCaseArchiveSkipsEmptyFeedback(t *testing.T) {
	dir := t.TempDir()
	keys, err := NewCaseArchive(NewFilesystemStorage(dir)).Save(sampleTranscript(), scoring.Report{})
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 3 {
		t.Fatalf("keys = %v", keys)
	}
	if _, err := os.Stat(filepath.Join(dir, "case-42_feedback.md")); !os.IsNotExist(err) {
		t.Fatalf("feedback file should not exist: %v", err)
	}
}

type flakyStore struct {
	mu      sync.Mutex
	fail    string
	uploads map[string]string
}

func (f *flakyStore) Upload(key, contentType string, _ []byte) error {
	if strings.HasSuffix(key, f.fail) {
		return errors.New("bucket unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[key] = contentType
	return nil
}

func TestCaseArchiveReportsPartialFailure(t *testing.T) {
	store := &flakyStore{fail: "_report.json", uploads: map[string]string{}}
	keys, err := NewCaseArchive(store).Save(sampleTranscript(), scoring.Report{})
	if err == nil || !strings.Contains(err.Error(), "bucket unavailable") {
		t.Fatalf("expected upload error, got %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected the other artifacts written, got %v", keys)
	}
	if store.uploads["case-42_transcript.json"] != "application/json" {
		t.Fatalf("content types: %v", store.uploads)
	}
}

func TestCaseArchiveRequiresID(t *testing.T) {
	tr := interview.NewTranscript(interview.Session{}, nil)
	if _, err := NewCaseArchive(&flakyStore{uploads: map[string]string{}}).Save(tr, scoring.Report{}); err == nil {
		t.Fatal("expected error for missing case id")
	}
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	fs := NewFilesystemStorage(t.TempDir())
	for _, key := range []string{"../escape.txt", "a/../../b", ""} {
		if err := fs.Upload(key, "text/plain", []byte("x")); err == nil {
			t.Fatalf("expected rejection of %q", key)
		}
	}
	if err := fs.Upload("nested/ok.txt", "text/plain", []byte("x")); err != nil {
		t.Fatalf("nested key: %v", err)
	}
}

func TestNewSupabaseStorageRequiresConfig(t *testing.T) {
	if _, err := NewSupabaseStorage(SupabaseConfig{URL: "https://example.supabase.co"}); err == nil {
		t.Fatal("expected error without service role key")
	}
}
