package scoring

import (
	"regexp"
	"sort"
	"strings"
)

// Category is an evidence bucket of the rubric.
type Category string

const (
	CategoryTies      Category = "ties"
	CategoryFunds     Category = "funds"
	CategoryAcademics Category = "academics"
	CategoryIntent    Category = "intent"
	CategoryPurpose   Category = "purpose"
)

// DefaultWeights rank how much each category's evidence counts.
var DefaultWeights = map[Category]float64{
	CategoryTies:      1.5,
	CategoryFunds:     1.2,
	CategoryAcademics: 1.0,
	CategoryIntent:    1.3,
	CategoryPurpose:   1.4,
}

// topicCategories maps persona question topics onto rubric categories.
var topicCategories = map[string]Category{
	"purpose":        CategoryPurpose,
	"university":     CategoryAcademics,
	"academics":      CategoryAcademics,
	"field":          CategoryAcademics,
	"english":        CategoryAcademics,
	"funding":        CategoryFunds,
	"sponsor-docs":   CategoryFunds,
	"employment":     CategoryTies,
	"travel-history": CategoryTies,
	"return":         CategoryIntent,
	"duration":       CategoryIntent,
}

// CategoryForTopic returns the rubric bucket of a question topic; unknown topics count as intent.
func CategoryForTopic(topic string) Category {
	if c, ok := topicCategories[strings.ToLower(topic)]; ok {
		return c
	}
	return CategoryIntent
}

var evidenceKeywords = map[Category][]string{
	CategoryTies:      {"family", "parents", "spouse", "children", "property", "house", "land", "job", "return", "home"},
	CategoryFunds:     {"sponsor", "father", "mother", "bank", "loan", "savings", "salary", "tuition", "fees", "rs", "usd", "scholarship"},
	CategoryAcademics: {"gpa", "grade", "research", "project", "course", "professor", "university", "computer science", "biology", "thesis"},
	CategoryIntent:    {"return", "temporary", "after graduation", "career", "plan", "goal", "role", "come back"},
	CategoryPurpose:   {"tourism", "visit", "conference", "meeting", "business", "medical", "sightseeing", "study", "master's", "degree"},
}

var (
	evasivePhrases     = []string{"don't know", "not sure", "maybe", "can't say"}
	fraudPhrases       = []string{"fake", "arranged"}
	uncertaintyPhrases = []string{"not sure", "don't know", "maybe", "probably", "i think", "my father will arrange", "we have enough", "sufficient funds"}
	financialSpecifics = []string{"salary", "savings", "bank", "amount", "figure", "usd", "dollars", "rupees"}
	fillers            = []string{"um", "uh"}
)

// claimVocabulary lists the values a candidate can claim per fact. A later answer
// naming only values absent from the earlier claim is a contradiction.
var claimVocabulary = map[string][]string{
	"sponsor": {"father", "mother", "parents", "uncle", "self", "scholarship", "loan", "employer", "company"},
	"major":   {"computer science", "biology", "engineering", "business", "data science", "nursing", "economics", "finance"},
}

// claimCategories restricts where a fact is read from, so an employer named in an
// employment answer is not taken as a sponsor claim.
var claimCategories = map[string][]Category{
	"sponsor": {CategoryFunds},
	"major":   {CategoryAcademics, CategoryPurpose},
}

var specificityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\d+`),
	regexp.MustCompile(`\b\d+\b`),
	regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`),
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\b`),
	regexp.MustCompile(`(?i)\b(salary|tuition|fee|cost|amount|price)\s+\$?\d+`),
	regexp.MustCompile(`\b(?:[Cc]ompany|[Cc]orporation|[Oo]rganization|[Uu]niversity|[Cc]ollege)\s+(?:of\s+)?[A-Z]`),
	regexp.MustCompile(`(?i)\b(position|role|job|career)\s+as\s+[a-z]+`),
}

var phraseCache = map[string]*regexp.Regexp{}

func init() {
	lists := [][]string{evasivePhrases, fraudPhrases, uncertaintyPhrases, financialSpecifics, fillers}
	for _, kws := range evidenceKeywords {
		lists = append(lists, kws)
	}
	for _, vals := range claimVocabulary {
		lists = append(lists, vals)
	}
	for _, l := range lists {
		for _, p := range l {
			phraseCache[p] = regexp.MustCompile(`\b` + regexp.QuoteMeta(p) + `\b`)
		}
	}
}

// matches returns the phrases of list present in lower as whole words.
func matches(lower string, list []string) []string {
	var out []string
	for _, p := range list {
		if re, ok := phraseCache[p]; ok && re.MatchString(lower) {
			out = append(out, p)
		}
	}
	return out
}

func count(lower string, list []string) int {
	n := 0
	for _, p := range list {
		re, ok := phraseCache[p]
		if !ok {
			continue
		}
		n += len(re.FindAllStringIndex(lower, -1))
	}
	return n
}

// answer is the lexical analysis of one candidate response.
type answer struct {
	raw         string
	lower       string
	words       int
	specificity float64
	fillers     int
}

func analyze(text string) answer {
	a := answer{raw: text, lower: strings.ToLower(text), words: len(strings.Fields(text))}
	hits := 0
	for _, re := range specificityPatterns {
		if re.MatchString(text) {
			hits++
		}
	}
	a.specificity = float64(hits) / 3
	if a.specificity > 1 {
		a.specificity = 1
	}
	a.fillers = count(a.lower, fillers)
	return a
}

func (a answer) hasDigit() bool {
	return strings.ContainsAny(a.lower, "0123456789")
}

// claims extracts the claimed values per fact readable in cat, sorted.
func (a answer) claims(cat Category) map[string][]string {
	out := map[string][]string{}
	for fact, vocab := range claimVocabulary {
		readable := false
		for _, c := range claimCategories[fact] {
			readable = readable || c == cat
		}
		if !readable {
			continue
		}
		if m := matches(a.lower, vocab); len(m) > 0 {
			sort.Strings(m)
			out[fact] = m
		}
	}
	return out
}

func disjoint(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return false
			}
		}
	}
	return true
}
