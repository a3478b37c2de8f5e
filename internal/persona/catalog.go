package persona

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PROX-GOD/mockdeu/internal/interview"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// GenericEmbassy is used when no embassy is given.
const GenericEmbassy = "generic"

type styleDoc struct {
	Description     string   `yaml:"description"`
	Voice           string   `yaml:"voice"`
	FollowUpPrompts []string `yaml:"follow_up_prompts"`
}

type templateDoc struct {
	Category               string     `yaml:"category"`
	Style                  string     `yaml:"style"`
	Bank                   string     `yaml:"bank"`
	Questions              []Question `yaml:"questions"`
	Strictness             float64    `yaml:"strictness"`
	MaxFollowUpDepth       int        `yaml:"max_follow_up_depth"`
	MinConfidence          float64    `yaml:"min_confidence"`
	ContradictionTolerance int        `yaml:"contradiction_tolerance"`
	SatisfiedThreshold     float64    `yaml:"satisfied_threshold"`
	SatisfiedWindow        int        `yaml:"satisfied_window"`
	QuestionBudget         int        `yaml:"question_budget"`
	Voice                  string     `yaml:"voice"`
}

type embassyDoc struct {
	Note           string                `yaml:"note"`
	StrictnessBias float64               `yaml:"strictness_bias"`
	ExtraQuestions map[string][]Question `yaml:"extra_questions"`
}

type catalogDoc struct {
	Styles    map[string]styleDoc   `yaml:"styles"`
	Banks     map[string][]Question `yaml:"banks"`
	Embassies map[string]embassyDoc `yaml:"embassies"`
	Templates []templateDoc         `yaml:"templates"`
}

type key struct {
	category interview.VisaCategory
	style    interview.OfficerStyle
}

type embassy struct {
	note  string
	bias  float64
	extra map[interview.VisaCategory][]Question
}

// Catalog maps (category, style, embassy) to profiles. It is never mutated after
// Load, so concurrent Resolve calls need no locking.
type Catalog struct {
	templates map[key]Profile
	embassies map[string]embassy
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persona: open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a YAML catalog.
func Load(r io.Reader) (*Catalog, error) {
	var doc catalogDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("persona: decode catalog: %w", err)
	}
	return build(doc)
}

func build(doc catalogDoc) (*Catalog, error) {
	c := &Catalog{templates: map[key]Profile{}, embassies: map[string]embassy{}}

	for id, e := range doc.Embassies {
		id = normalizeEmbassy(id)
		if e.StrictnessBias < -1 || e.StrictnessBias > 1 {
			return nil, fmt.Errorf("persona: embassy %q: strictness_bias out of range", id)
		}
		extra := map[interview.VisaCategory][]Question{}
		for cat, qs := range e.ExtraQuestions {
			vc, err := interview.ParseVisaCategory(cat)
			if err != nil {
				return nil, fmt.Errorf("persona: embassy %q: %w", id, err)
			}
			if err := validateQuestions(qs); err != nil {
				return nil, fmt.Errorf("persona: embassy %q %s: %w", id, vc, err)
			}
			extra[vc] = qs
		}
		c.embassies[id] = embassy{note: e.Note, bias: e.StrictnessBias, extra: extra}
	}
	if _, ok := c.embassies[GenericEmbassy]; !ok {
		return nil, fmt.Errorf("persona: catalog has no %q embassy", GenericEmbassy)
	}

	for i, t := range doc.Templates {
		cat, err := interview.ParseVisaCategory(t.Category)
		if err != nil {
			return nil, fmt.Errorf("persona: template %d: %w", i, err)
		}
		style, err := interview.ParseOfficerStyle(t.Style)
		if err != nil {
			return nil, fmt.Errorf("persona: template %d: %w", i, err)
		}
		k := key{cat, style}
		if _, dup := c.templates[k]; dup {
			return nil, fmt.Errorf("persona: duplicate template %s/%s", cat, style)
		}
		sd, ok := doc.Styles[string(style)]
		if !ok {
			return nil, fmt.Errorf("persona: template %s/%s: style not described", cat, style)
		}
		questions := t.Questions
		if len(questions) == 0 && t.Bank != "" {
			bank, ok := doc.Banks[t.Bank]
			if !ok {
				return nil, fmt.Errorf("persona: template %s/%s: unknown bank %q", cat, style, t.Bank)
			}
			questions = bank
		}
		p := Profile{
			Category:               cat,
			Style:                  style,
			StyleDescription:       sd.Description,
			Voice:                  firstNonEmpty(t.Voice, sd.Voice),
			Questions:              questions,
			Strictness:             t.Strictness,
			MaxFollowUpDepth:       t.MaxFollowUpDepth,
			MinConfidence:          t.MinConfidence,
			ContradictionTolerance: t.ContradictionTolerance,
			SatisfiedThreshold:     t.SatisfiedThreshold,
			SatisfiedWindow:        t.SatisfiedWindow,
			FollowUpPrompts:        sd.FollowUpPrompts,
			QuestionBudget:         t.QuestionBudget,
		}
		if err := validateProfile(p); err != nil {
			return nil, fmt.Errorf("persona: template %s/%s: %w", cat, style, err)
		}
		c.templates[k] = p.clone()
	}
	if len(c.templates) == 0 {
		return nil, fmt.Errorf("persona: catalog defines no templates")
	}
	return c, nil
}

func validateProfile(p Profile) error {
	if err := validateQuestions(p.Questions); err != nil {
		return err
	}
	for name, v := range map[string]float64{
		"strictness":          p.Strictness,
		"min_confidence":      p.MinConfidence,
		"satisfied_threshold": p.SatisfiedThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s %.2f outside [0,1]", name, v)
		}
	}
	if p.MaxFollowUpDepth < 0 || p.ContradictionTolerance < 0 || p.SatisfiedWindow < 0 || p.QuestionBudget < 0 {
		return fmt.Errorf("negative depth, tolerance, window or budget")
	}
	if p.SatisfiedWindow > 0 && p.SatisfiedThreshold == 0 {
		return fmt.Errorf("satisfied_window set without satisfied_threshold")
	}
	return nil
}

func validateQuestions(qs []Question) error {
	if len(qs) == 0 {
		return fmt.Errorf("no questions")
	}
	seen := map[string]bool{}
	for i, q := range qs {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("question %d has no text", i)
		}
		if q.ID != "" {
			if seen[q.ID] {
				return fmt.Errorf("duplicate question id %q", q.ID)
			}
			seen[q.ID] = true
		}
	}
	return nil
}

// Resolve returns the profile for a persona triple. An empty embassy means generic.
func (c *Catalog) Resolve(category interview.VisaCategory, style interview.OfficerStyle, embassyID string) (Profile, error) {
	embassyID = normalizeEmbassy(embassyID)
	tmpl, ok := c.templates[key{category, style}]
	if !ok {
		return Profile{}, &interview.UnknownPersonaError{Category: category, Style: style, Embassy: embassyID, Reason: "no template"}
	}
	emb, ok := c.embassies[embassyID]
	if !ok {
		return Profile{}, &interview.UnknownPersonaError{Category: category, Style: style, Embassy: embassyID, Reason: "unknown embassy"}
	}

	p := tmpl.clone()
	p.Embassy = embassyID
	p.EmbassyNote = emb.note
	p.Strictness = clamp01(p.Strictness + emb.bias)
	// embassy extras go before the closing question so the interview still ends on intent.
	if extra := emb.extra[category]; len(extra) > 0 {
		n := len(p.Questions)
		merged := make([]Question, 0, n+len(extra))
		merged = append(merged, p.Questions[:n-1]...)
		for _, q := range extra {
			q.FollowUps = append([]string(nil), q.FollowUps...)
			merged = append(merged, q)
		}
		merged = append(merged, p.Questions[n-1])
		p.Questions = merged
	}
	return p, nil
}

// Entry describes one resolvable template.
type Entry struct {
	Category  interview.VisaCategory `json:"category"`
	Style     interview.OfficerStyle `json:"style"`
	Questions int                    `json:"questions"`
	MaxDepth  int                    `json:"max_follow_up_depth"`
}

// Entries lists the templates in a stable order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.templates))
	for k, p := range c.templates {
		out = append(out, Entry{Category: k.category, Style: k.style, Questions: len(p.Questions), MaxDepth: p.MaxFollowUpDepth})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Style < out[j].Style
	})
	return out
}

// Embassies lists known embassy ids, sorted.
func (c *Catalog) Embassies() []string {
	out := make([]string, 0, len(c.embassies))
	for id := range c.embassies {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func normalizeEmbassy(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return GenericEmbassy
	}
	return id
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
