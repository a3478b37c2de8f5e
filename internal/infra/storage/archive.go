package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/PROX-GOD/mockdeu/internal/interview"
	"github.com/PROX-GOD/mockdeu/internal/scoring"
)

// maxParallelUploads bounds concurrent artifact uploads per case.
const maxParallelUploads = 2

// CaseArchive persists the artifacts of a finished interview.
type CaseArchive struct {
	store Storage
}

func NewCaseArchive(store Storage) *CaseArchive {
	return &CaseArchive{store: store}
}

type artifact struct {
	key         string
	contentType string
	body        []byte
}

// Save writes <caseID>_transcript.txt, _transcript.json, _report.json and, when the
// report carries coach feedback, _feedback.md. Every artifact is attempted; the
// returned keys are the ones written.
func (a *CaseArchive) Save(tr interview.Transcript, report scoring.Report) ([]string, error) {
	caseID := tr.Session().ID
	if caseID == "" {
		return nil, fmt.Errorf("archive: transcript has no session id")
	}
	trJSON, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive: encode transcript: %w", err)
	}
	repJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive: encode report: %w", err)
	}

	items := []artifact{
		{caseID + "_transcript.txt", "text/plain; charset=utf-8", []byte(tr.Text())},
		{caseID + "_transcript.json", "application/json", trJSON},
		{caseID + "_report.json", "application/json", repJSON},
	}
	if report.Feedback != "" {
		items = append(items, artifact{caseID + "_feedback.md", "text/markdown; charset=utf-8", []byte(report.Feedback + "\n")})
	}

	// Each upload reports into its own slot so every artifact is attempted.
	results := make([]error, len(items))
	var g errgroup.Group
	g.SetLimit(maxParallelUploads)
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			results[i] = a.store.Upload(it.key, it.contentType, it.body)
			return nil
		})
	}
	_ = g.Wait()

	var written []string
	var errs []error
	for i, it := range items {
		if results[i] != nil {
			errs = append(errs, results[i])
			continue
		}
		written = append(written, it.key)
	}
	if len(errs) > 0 {
		return written, fmt.Errorf("archive %s: %w", caseID, errors.Join(errs...))
	}
	log.Printf("[%s] archived %d artifacts", caseID, len(written))
	return written, nil
}
