package persona

import "github.com/PROX-GOD/mockdeu/internal/interview"

// Question is one scripted step of an interview template.
type Question struct {
	ID        string   `yaml:"id" json:"id"`
	Topic     string   `yaml:"topic" json:"topic"`
	Text      string   `yaml:"text" json:"text"`
	FollowUps []string `yaml:"follow_ups" json:"follow_ups,omitempty"`
}

// Profile is the behaviour resolved once per session for a
// (category, style, embassy) triple. Callers get their own copy.
type Profile struct {
	Category         interview.VisaCategory `json:"category"`
	Style            interview.OfficerStyle `json:"style"`
	Embassy          string                 `json:"embassy"`
	EmbassyNote      string                 `json:"embassy_note,omitempty"`
	StyleDescription string                 `json:"style_description,omitempty"`
	Voice            string                 `json:"voice,omitempty"`
	Questions        []Question             `json:"questions"`

	// Strictness in [0,1] scales down confidence when judging "satisfied".
	Strictness float64 `json:"strictness"`
	// MaxFollowUpDepth bounds follow-ups per scripted question.
	MaxFollowUpDepth int `json:"max_follow_up_depth"`
	// MinConfidence is the vague-answer tolerance; lower recognitions are flagged.
	MinConfidence float64 `json:"min_confidence"`
	// ContradictionTolerance is how many trigger keywords an answer may carry
	// before a follow-up is warranted.
	ContradictionTolerance int `json:"contradiction_tolerance"`
	// SatisfiedThreshold and SatisfiedWindow enable the early stop. A zero window disables it.
	SatisfiedThreshold float64  `json:"satisfied_threshold"`
	SatisfiedWindow    int      `json:"satisfied_window"`
	FollowUpPrompts    []string `json:"follow_up_prompts,omitempty"`
	// QuestionBudget caps total turns; zero means the structural bound.
	QuestionBudget int `json:"question_budget"`
}

// MaxTurns is the structural bound n + n*d on turns for this profile.
func (p Profile) MaxTurns() int {
	n := len(p.Questions)
	return n + n*p.MaxFollowUpDepth
}

// Budget is the effective turn limit, never above MaxTurns.
func (p Profile) Budget() int {
	max := p.MaxTurns()
	if p.QuestionBudget > 0 && p.QuestionBudget < max {
		return p.QuestionBudget
	}
	return max
}

func (p Profile) clone() Profile {
	qs := make([]Question, len(p.Questions))
	for i, q := range p.Questions {
		q.FollowUps = append([]string(nil), q.FollowUps...)
		qs[i] = q
	}
	p.Questions = qs
	p.FollowUpPrompts = append([]string(nil), p.FollowUpPrompts...)
	return p
}
