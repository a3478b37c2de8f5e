package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/PROX-GOD/mockdeu/internal/interview"
	"github.com/PROX-GOD/mockdeu/internal/persona"
)

// PhraseRequest carries what a phraser may use to reword a question.
type PhraseRequest struct {
	Profile    persona.Profile
	Scripted   string
	Topic      string
	FollowUp   bool
	LastAnswer string
	History    interview.Transcript
}

// Phraser rewords a scripted question in the officer's voice.
type Phraser interface {
	Phrase(ctx context.Context, req PhraseRequest) (string, error)
}

// ChatModel is the slice of an LLM client the phraser needs.
type ChatModel interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// LLMPhraser asks a chat model to voice the scripted question.
type LLMPhraser struct {
	Model    ChatModel
	MaxWords int
	// HistoryTurns bounds how much of the transcript goes into the prompt.
	HistoryTurns int
}

func (l *LLMPhraser) Phrase(ctx context.Context, req PhraseRequest) (string, error) {
	if l.Model == nil {
		return "", fmt.Errorf("phraser: no model")
	}
	return l.Model.Chat(ctx, l.system(req.Profile), l.user(req))
}

func (l *LLMPhraser) system(p persona.Profile) string {
	maxWords := l.MaxWords
	if maxWords <= 0 {
		maxWords = 15
	}
	visa := "F-1 student"
	if p.Category == interview.CategoryB1B2 {
		visa = "B1/B2 business and tourism"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a U.S. consular officer conducting %s visa interviews at the %s embassy.\n", visa, p.Embassy)
	fmt.Fprintf(&b, "STYLE: %s\n", p.StyleDescription)
	if p.EmbassyNote != "" {
		fmt.Fprintf(&b, "EMBASSY CONTEXT: %s\n", p.EmbassyNote)
	}
	fmt.Fprintf(&b, "Reword the officer's next question in your style. Keep its meaning. At most %d words. ", maxWords)
	b.WriteString("Never ask for documents. Reply with exactly one line: QUESTION: <text>")
	return b.String()
}

func (l *LLMPhraser) user(req PhraseRequest) string {
	keep := l.HistoryTurns
	if keep <= 0 {
		keep = 4
	}
	turns := req.History.Turns()
	if len(turns) > keep {
		turns = turns[len(turns)-keep:]
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "OFFICER: %s\nAPPLICANT: %s\n", t.OfficerText, t.CandidateText)
	}
	kind := "next scripted question"
	if req.FollowUp {
		kind = "follow-up because the last answer was unclear"
	}
	fmt.Fprintf(&b, "\nTopic: %s (%s)\nQuestion to ask: %s\n", req.Topic, kind, req.Scripted)
	return b.String()
}
