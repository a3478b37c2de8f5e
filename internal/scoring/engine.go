package scoring

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/PROX-GOD/mockdeu/internal/interview"
)

// Decision is the simulated officer's verdict.
type Decision string

const (
	DecisionApproved                 Decision = "APPROVED"
	DecisionDenied                   Decision = "DENIED"
	DecisionAdministrativeProcessing Decision = "ADMINISTRATIVE PROCESSING"
)

const (
	DefaultApprovalThreshold = 70
	DefaultAPThreshold       = 2
)

// Config holds the rubric's tunables.
type Config struct {
	Weights map[Category]float64
	// ApprovalThreshold is the minimum score for approval.
	ApprovalThreshold int
	// APThreshold is how many verification triggers send a case to administrative processing.
	APThreshold int
}

func (c Config) withDefaults() Config {
	if c.Weights == nil {
		c.Weights = DefaultWeights
	}
	if c.ApprovalThreshold <= 0 {
		c.ApprovalThreshold = DefaultApprovalThreshold
	}
	if c.APThreshold <= 0 {
		c.APThreshold = DefaultAPThreshold
	}
	return c
}

// AP trigger kinds.
const (
	TriggerFinancial   = "financial verification"
	TriggerAcademic    = "academic background review"
	TriggerConsistency = "information consistency check"
	TriggerCredibility = "applicant credibility assessment"
)

// Contradiction records a fact the candidate stated two incompatible ways.
type Contradiction struct {
	Fact    string   `json:"fact"`
	Earlier []string `json:"earlier"`
	Later   []string `json:"later"`
	Turn    int      `json:"turn"`
}

// TurnNote explains how one turn was scored.
type TurnNote struct {
	Index       int      `json:"index"`
	Topic       string   `json:"topic"`
	Category    Category `json:"category"`
	Answered    bool     `json:"answered"`
	Points      int      `json:"points"`
	Evidence    []string `json:"evidence,omitempty"`
	Specificity float64  `json:"specificity"`
	Notes       []string `json:"notes,omitempty"`
	Triggers    []string `json:"triggers,omitempty"`
}

// Report is the scored outcome of one interview.
type Report struct {
	CaseID         string                       `json:"case_id"`
	Category       interview.VisaCategory       `json:"category"`
	Style          interview.OfficerStyle       `json:"style"`
	Embassy        string                       `json:"embassy"`
	Termination    *interview.TerminationSignal `json:"termination,omitempty"`
	Turns          int                          `json:"turns"`
	DurationSecs   float64                      `json:"duration_seconds"`
	Score          int                          `json:"score"`
	Decision       Decision                     `json:"decision"`
	Reason         string                       `json:"reason"`
	Evidence       map[Category]int             `json:"evidence_count"`
	Covered        []Category                   `json:"categories_covered"`
	Evasiveness    int                          `json:"evasiveness"`
	Contradictions []Contradiction              `json:"contradictions,omitempty"`
	FraudFlags     []string                     `json:"fraud_flags,omitempty"`
	APTriggers     map[string]int               `json:"ap_triggers,omitempty"`
	Notes          []TurnNote                   `json:"turn_notes"`
	Feedback       string                       `json:"feedback,omitempty"`
	GeneratedAt    time.Time                    `json:"generated_at"`
}

// Coach writes a narrative critique of a transcript.
type Coach interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// Engine scores finished transcripts. It is stateless and safe for concurrent use.
type Engine struct {
	cfg   Config
	coach Coach
}

type Option func(*Engine)

// WithCoach adds an LLM-written markdown critique to each report.
func WithCoach(c Coach) Option {
	return func(e *Engine) { e.coach = c }
}

func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg.withDefaults()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// tally accumulates rubric state across turns.
type tally struct {
	points, maxPossible float64
	evidence            map[Category]int
	asked               map[Category]bool
	quality             []float64
	evasiveness         int
	claims              map[string][]string
	contradictions      []Contradiction
	fraud               []string
	triggers            map[string]int
	answered            int
}

// Evaluate scores a transcript. Only a cancelled context fails it; a failing coach
// leaves the report without feedback.
func (e *Engine) Evaluate(ctx context.Context, tr interview.Transcript) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	sess := tr.Session()
	r := Report{
		CaseID:       sess.ID,
		Category:     sess.Category,
		Style:        sess.Style,
		Embassy:      sess.Embassy,
		Turns:        tr.Len(),
		DurationSecs: tr.Duration().Seconds(),
		GeneratedAt:  time.Now(),
	}
	if sig, ok := tr.Termination(); ok {
		r.Termination = &sig
	}

	t := &tally{
		evidence: map[Category]int{},
		asked:    map[Category]bool{},
		claims:   map[string][]string{},
		triggers: map[string]int{},
	}
	for _, turn := range tr.Turns() {
		r.Notes = append(r.Notes, e.scoreTurn(t, turn))
	}

	r.Score = t.score()
	r.Evidence = t.evidence
	for c := range t.evidence {
		r.Covered = append(r.Covered, c)
	}
	sort.Slice(r.Covered, func(i, j int) bool { return r.Covered[i] < r.Covered[j] })
	r.Evasiveness = t.evasiveness
	r.Contradictions = t.contradictions
	r.FraudFlags = t.fraud
	if len(t.triggers) > 0 {
		r.APTriggers = t.triggers
	}
	r.Decision, r.Reason = e.decide(t, r.Score)

	if e.coach != nil && t.answered > 0 {
		fb, err := e.coach.Chat(ctx, coachSystem, coachPrompt(tr, r))
		if err != nil {
			log.Printf("scoring: coach feedback for %s failed: %v", sess.ID, err)
		} else {
			r.Feedback = strings.TrimSpace(fb)
		}
	}
	return r, nil
}

func (e *Engine) scoreTurn(t *tally, turn interview.Turn) TurnNote {
	cat := CategoryForTopic(turn.Topic)
	t.asked[cat] = true
	note := TurnNote{Index: turn.Index, Topic: turn.Topic, Category: cat}
	if turn.HasFlag(interview.FlagLowConfidence) {
		note.Notes = append(note.Notes, "answer was hard to understand")
	}
	if strings.TrimSpace(turn.CandidateText) == "" {
		t.evasiveness++
		note.Notes = append(note.Notes, "no answer")
		return note
	}
	t.answered++
	note.Answered = true

	a := analyze(turn.CandidateText)
	note.Specificity = a.specificity
	note.Evidence = matches(a.lower, evidenceKeywords[cat])
	if cat == CategoryFunds && a.hasDigit() {
		note.Evidence = append(note.Evidence, "amount")
	}

	pts := min(len(note.Evidence), 2)
	if a.specificity >= 1.0/3 {
		pts++
	}
	w := e.weight(cat)
	t.maxPossible += 3 * w
	if len(note.Evidence) > 0 {
		note.Points = pts
		t.points += float64(pts) * w
		t.evidence[cat]++
		t.quality = append(t.quality, math.Min(10, float64(a.words)/4))
	} else {
		t.quality = append(t.quality, 4)
		note.Notes = append(note.Notes, fmt.Sprintf("no %s evidence", cat))
	}

	if len(matches(a.lower, evasivePhrases)) > 0 {
		t.evasiveness++
		note.Notes = append(note.Notes, "evasive")
	}
	if m := matches(a.lower, fraudPhrases); len(m) > 0 {
		t.fraud = append(t.fraud, fmt.Sprintf("turn %d: possible misrepresentation (%s)", turn.Index, strings.Join(m, ", ")))
		note.Notes = append(note.Notes, "misrepresentation language")
	}

	contradicted := false
	claims := a.claims(cat)
	facts := make([]string, 0, len(claims))
	for f := range claims {
		facts = append(facts, f)
	}
	sort.Strings(facts)
	for _, fact := range facts {
		vals := claims[fact]
		if prev, ok := t.claims[fact]; ok && disjoint(prev, vals) {
			t.contradictions = append(t.contradictions, Contradiction{Fact: fact, Earlier: prev, Later: vals, Turn: turn.Index})
			note.Notes = append(note.Notes, fmt.Sprintf("%s changed from %s to %s", fact, strings.Join(prev, "/"), strings.Join(vals, "/")))
			contradicted = true
		}
		t.claims[fact] = vals
	}

	if cat == CategoryFunds {
		vague := len(matches(a.lower, uncertaintyPhrases)) > 0
		specific := len(matches(a.lower, financialSpecifics)) > 0 || a.hasDigit()
		if vague || !specific {
			note.Triggers = append(note.Triggers, TriggerFinancial)
		}
	}
	if cat == CategoryAcademics && (a.specificity == 0 || a.words < 8) {
		note.Triggers = append(note.Triggers, TriggerAcademic)
	}
	if contradicted {
		note.Triggers = append(note.Triggers, TriggerConsistency)
	}
	if a.fillers > 3 {
		note.Triggers = append(note.Triggers, TriggerCredibility)
	}
	for _, k := range note.Triggers {
		t.triggers[k]++
	}
	return note
}

func (e *Engine) weight(c Category) float64 {
	if w, ok := e.cfg.Weights[c]; ok {
		return w
	}
	return 1
}

// score is the weighted evidence ratio minus penalties, adjusted by answer length.
func (t *tally) score() int {
	if t.maxPossible == 0 {
		return 0
	}
	base := 100 * t.points / t.maxPossible
	missing := 0
	for c := range t.asked {
		if t.evidence[c] == 0 {
			missing++
		}
	}
	penalty := float64(t.evasiveness*3 + len(t.contradictions)*8 + missing*8)
	var q float64
	for _, v := range t.quality {
		q += v
	}
	quality := q/float64(max(1, len(t.quality))) - 5
	final := math.Round(base - penalty + quality*2)
	return int(math.Max(0, math.Min(100, final)))
}

func (e *Engine) decide(t *tally, score int) (Decision, string) {
	if t.answered == 0 {
		return DecisionDenied, "Unable to provide clear responses during interview."
	}
	total := 0
	var reasons []string
	for _, k := range []string{TriggerFinancial, TriggerAcademic, TriggerConsistency, TriggerCredibility} {
		total += t.triggers[k]
		if t.triggers[k] >= e.cfg.APThreshold {
			reasons = append(reasons, k)
		}
	}
	if total >= e.cfg.APThreshold {
		reason := "standard administrative review"
		if len(reasons) > 0 {
			reason = strings.Join(reasons, " & ")
		}
		return DecisionAdministrativeProcessing, "Case requires verification: " + reason
	}
	if score >= e.cfg.ApprovalThreshold && len(t.fraud) == 0 && len(t.contradictions) == 0 {
		return DecisionApproved, "Credible non-immigrant intent demonstrated."
	}
	var why []string
	if len(t.contradictions) > 0 {
		why = append(why, "inconsistent information")
	}
	if len(t.fraud) > 0 {
		why = append(why, "credibility concerns")
	}
	if score < e.cfg.ApprovalThreshold {
		why = append(why, "insufficient ties demonstration")
	}
	return DecisionDenied, strings.Join(why, "; ") + " under INA 214(b)."
}
