package scoring

import (
	"fmt"
	"strings"

	"github.com/PROX-GOD/mockdeu/internal/interview"
)

const coachSystem = "You are a helpful and strict visa interview coach."

func coachPrompt(tr interview.Transcript, r Report) string {
	var b strings.Builder
	b.WriteString("You are an expert F-1 and B1/B2 visa interview coach. Analyze the interview transcript below and give detailed feedback.\n\n")
	fmt.Fprintf(&b, "VISA: %s  OFFICER STYLE: %s  EMBASSY: %s\n", r.Category, r.Style, r.Embassy)
	fmt.Fprintf(&b, "SIMULATED DECISION: %s (%s), score %d/100\n\n", r.Decision, r.Reason, r.Score)
	b.WriteString("TRANSCRIPT:\n")
	for _, t := range tr.Turns() {
		answer := t.CandidateText
		if answer == "" {
			answer = "(no response)"
		}
		fmt.Fprintf(&b, "OFFICER: %s\nAPPLICANT: %s\n", t.OfficerText, answer)
	}
	b.WriteString(`
OUTPUT FORMAT (Markdown):
# Interview Feedback

## Overall Assessment
<brief summary of performance>

## Question-by-Question Analysis
### Turn N
**Officer**: <question>
**You**: <answer>
**Critique**: <what was weak>
**Better Answer**: <an example answer>

## Final Tips
- <tip>
`)
	return b.String()
}
