package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/PROX-GOD/mockdeu/internal/interview"
	"github.com/PROX-GOD/mockdeu/internal/persona"
)

// DefaultContradictionKeywords trigger a clarifying follow-up when an answer
// carries more of them than the persona tolerates.
var DefaultContradictionKeywords = []string{
	"actually", "not sure", "maybe", "probably", "i think", "i guess", "don't know", "arranged",
}

// ErrSequenceExhausted is returned by NextUtterance when nothing is left to ask.
var ErrSequenceExhausted = errors.New("dialogue: question sequence exhausted")

// Config holds the tuning values of the policy.
type Config struct {
	ContradictionKeywords []string
	// MaxQuestionWords caps rephrased questions; longer output falls back to the script.
	MaxQuestionWords int
}

// Utterance is the officer's next line.
type Utterance struct {
	Text          string
	Scripted      string
	QuestionID    string
	QuestionIndex int
	FollowUpDepth int
	Topic         string
	Rephrased     bool
}

// FollowUp reports whether the utterance is a discretionary follow-up.
func (u Utterance) FollowUp() bool { return u.FollowUpDepth > 0 }

// Decision is the termination verdict after a turn.
type Decision struct {
	Continue bool
	Reason   interview.TerminationReason
	Detail   string
}

// Policy chooses officer utterances and decides when an interview ends. Plan and
// Decide are pure functions of (profile, transcript); only phrasing may vary.
type Policy struct {
	cfg      Config
	keywords []*regexp.Regexp
	phraser  Phraser
}

// Option configures a Policy.
type Option func(*Policy)

// WithPhraser lets a language model reword scripted questions.
func WithPhraser(ph Phraser) Option {
	return func(p *Policy) { p.phraser = ph }
}

func New(cfg Config, opts ...Option) *Policy {
	if cfg.ContradictionKeywords == nil {
		cfg.ContradictionKeywords = DefaultContradictionKeywords
	}
	if cfg.MaxQuestionWords <= 0 {
		cfg.MaxQuestionWords = 15
	}
	p := &Policy{cfg: cfg}
	for _, kw := range cfg.ContradictionKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		p.keywords = append(p.keywords, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// step identifies the next question slot.
type step struct {
	question int
	depth    int
}

// plan picks the next slot. A follow-up on the last question is taken only while
// the remaining budget still covers every scripted question not yet asked.
func (p *Policy) plan(profile persona.Profile, tr interview.Transcript) (step, bool) {
	n := len(profile.Questions)
	last, ok := tr.Last()
	if !ok {
		return step{0, 0}, n > 0
	}
	remaining := n - (last.QuestionIndex + 1)
	if p.needsFollowUp(profile, last) &&
		last.FollowUpDepth < profile.MaxFollowUpDepth &&
		profile.Budget()-tr.Len() > remaining {
		return step{last.QuestionIndex, last.FollowUpDepth + 1}, true
	}
	if remaining > 0 {
		return step{last.QuestionIndex + 1, 0}, true
	}
	return step{}, false
}

func (p *Policy) needsFollowUp(profile persona.Profile, t interview.Turn) bool {
	if t.HasFlag(interview.FlagLowConfidence) || t.HasFlag(interview.FlagRecognitionTimeout) {
		return true
	}
	return p.ContradictionCount(t.CandidateText) > profile.ContradictionTolerance
}

// ContradictionCount counts trigger keyword occurrences in an answer.
func (p *Policy) ContradictionCount(text string) int {
	text = strings.ToLower(text)
	n := 0
	for _, re := range p.keywords {
		n += len(re.FindAllStringIndex(text, -1))
	}
	return n
}

// Decide reports whether the interview continues after the latest turn.
func (p *Policy) Decide(profile persona.Profile, tr interview.Transcript) Decision {
	if _, ok := p.plan(profile, tr); !ok {
		return Decision{Reason: interview.ReasonSequenceExhausted}
	}
	if budget := profile.Budget(); tr.Len() >= budget {
		return Decision{Reason: interview.ReasonBudgetExhausted, Detail: fmt.Sprintf("%d turns", budget)}
	}
	if score, ok := satisfied(profile, tr); ok {
		return Decision{Reason: interview.ReasonOfficerSatisfied, Detail: fmt.Sprintf("score %.2f", score)}
	}
	return Decision{Continue: true}
}

// ShouldTerminate is Decide reduced to a predicate.
func (p *Policy) ShouldTerminate(profile persona.Profile, tr interview.Transcript) bool {
	return !p.Decide(profile, tr).Continue
}

// satisfied applies the strictness-weighted confidence test over the last k turns.
func satisfied(profile persona.Profile, tr interview.Transcript) (float64, bool) {
	k := profile.SatisfiedWindow
	if k <= 0 || tr.Len() < k {
		return 0, false
	}
	var sum float64
	for i := tr.Len() - k; i < tr.Len(); i++ {
		t := tr.Turn(i)
		if len(t.Flags) > 0 {
			return 0, false
		}
		sum += t.Confidence
	}
	score := sum / float64(k) * (1 - profile.Strictness/2)
	return score, score >= profile.SatisfiedThreshold
}

// NextUtterance returns the officer's next line. Phrasing failures never fail the call.
func (p *Policy) NextUtterance(ctx context.Context, profile persona.Profile, tr interview.Transcript) (Utterance, error) {
	s, ok := p.plan(profile, tr)
	if !ok {
		return Utterance{}, ErrSequenceExhausted
	}
	q := profile.Questions[s.question]
	u := Utterance{
		QuestionID:    q.ID,
		QuestionIndex: s.question,
		FollowUpDepth: s.depth,
		Topic:         q.Topic,
	}
	u.Scripted = p.scripted(profile, q, s, tr)
	u.Text = u.Scripted

	if p.phraser != nil {
		last, _ := tr.Last()
		text, err := p.phraser.Phrase(ctx, PhraseRequest{
			Profile:    profile,
			Scripted:   u.Scripted,
			Topic:      q.Topic,
			FollowUp:   s.depth > 0,
			LastAnswer: last.CandidateText,
			History:    tr,
		})
		switch {
		case err != nil:
			log.Printf("dialogue: phraser failed, using script: %v", err)
		default:
			if clean, ok := p.acceptPhrase(text, tr); ok {
				u.Text = clean
				u.Rephrased = true
			}
		}
	}
	return u, nil
}

func (p *Policy) scripted(profile persona.Profile, q persona.Question, s step, tr interview.Transcript) string {
	if s.depth == 0 {
		return q.Text
	}
	last, _ := tr.Last()
	if last.HasFlag(interview.FlagRecognitionTimeout) {
		return "I did not hear an answer. " + q.Text
	}
	if i := s.depth - 1; i < len(q.FollowUps) {
		return q.FollowUps[i]
	}
	if len(profile.FollowUpPrompts) > 0 {
		tmpl := profile.FollowUpPrompts[(s.depth-1)%len(profile.FollowUpPrompts)]
		return strings.ReplaceAll(tmpl, "{question}", q.Text)
	}
	return "Could you clarify that? " + q.Text
}

var questionPrefix = regexp.MustCompile(`(?i)^\s*(officer|question)\s*:\s*`)

// acceptPhrase sanitizes model output and rejects lines that are overlong, ask
// for documents, or repeat an earlier question.
func (p *Policy) acceptPhrase(text string, tr interview.Transcript) (string, bool) {
	text = strings.TrimSpace(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0])
	text = questionPrefix.ReplaceAllString(text, "")
	text = strings.Trim(text, `"' `)
	words := strings.Fields(text)
	if len(words) == 0 || len(words) > p.cfg.MaxQuestionWords {
		return "", false
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "show me") || strings.Contains(lower, "provide document") {
		return "", false
	}
	for _, t := range tr.Turns() {
		if jaccard(normalizeWords(t.OfficerText), normalizeWords(text)) >= 0.8 {
			return "", false
		}
	}
	return text, true
}

var nonWord = regexp.MustCompile(`[^a-z0-9\s]`)

func normalizeWords(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.Fields(nonWord.ReplaceAllString(strings.ToLower(s), " ")) {
		out[w] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
