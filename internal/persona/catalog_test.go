package persona

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PROX-GOD/mockdeu/internal/interview"
)

func defaultCatalogT(t *testing.T) *Catalog {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return c
}

func TestResolve_AllDefinedTriplesDeterministic(t *testing.T) {
	c := defaultCatalogT(t)
	for _, e := range c.Entries() {
		for _, emb := range c.Embassies() {
			a, err := c.Resolve(e.Category, e.Style, emb)
			require.NoError(t, err)
			b, err := c.Resolve(e.Category, e.Style, emb)
			require.NoError(t, err)
			require.Equal(t, a, b, "%s/%s@%s", e.Category, e.Style, emb)
			require.NotEmpty(t, a.Questions)
		}
	}
}

func TestResolve_UnknownTriples(t *testing.T) {
	c := defaultCatalogT(t)
	cases := []struct {
		cat   interview.VisaCategory
		style interview.OfficerStyle
		emb   string
	}{
		{"H1B", interview.StyleStrict, ""},
		{interview.CategoryF1, "thorough", ""},
		{interview.CategoryF1, interview.StyleStrict, "atlantis"},
	}
	for _, tc := range cases {
		_, err := c.Resolve(tc.cat, tc.style, tc.emb)
		var upe *interview.UnknownPersonaError
		require.True(t, errors.As(err, &upe), "%v", tc)
	}
}

func TestResolve_EmptyEmbassyIsGeneric(t *testing.T) {
	c := defaultCatalogT(t)
	p, err := c.Resolve(interview.CategoryF1, interview.StyleStrict, "")
	require.NoError(t, err)
	require.Equal(t, GenericEmbassy, p.Embassy)
	require.Len(t, p.Questions, 5)
	require.Equal(t, 10, p.MaxTurns())
}

func TestResolve_EmbassyMergesExtraQuestions(t *testing.T) {
	c := defaultCatalogT(t)
	p, err := c.Resolve(interview.CategoryF1, interview.StyleStrict, "Kathmandu")
	require.NoError(t, err)
	require.Len(t, p.Questions, 6)
	require.Equal(t, "sponsor-docs", p.Questions[4].ID)
	require.Equal(t, "return", p.Questions[5].ID)
	require.InDelta(t, 0.9, p.Strictness, 1e-9)
	require.Contains(t, p.EmbassyNote, "funding")
}

func TestResolve_ReturnsIndependentCopies(t *testing.T) {
	c := defaultCatalogT(t)
	p, err := c.Resolve(interview.CategoryB1B2, interview.StyleSkeptical, "")
	require.NoError(t, err)
	p.Questions[0].Text = "changed"
	p.Questions[0].FollowUps[0] = "changed"

	again, err := c.Resolve(interview.CategoryB1B2, interview.StyleSkeptical, "")
	require.NoError(t, err)
	require.NotEqual(t, "changed", again.Questions[0].Text)
	require.NotEqual(t, "changed", again.Questions[0].FollowUps[0])
	require.Equal(t, 1, again.MaxFollowUpDepth)
}

func TestResolve_ConcurrentReads(t *testing.T) {
	c := defaultCatalogT(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := c.Resolve(interview.CategoryF1, interview.StyleFriendly, "mumbai")
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestProfile_Budget(t *testing.T) {
	p := Profile{Questions: make([]Question, 4), MaxFollowUpDepth: 2}
	require.Equal(t, 12, p.Budget())
	p.QuestionBudget = 7
	require.Equal(t, 7, p.Budget())
	p.QuestionBudget = 50
	require.Equal(t, 12, p.Budget())
}

func TestLoad_Validation(t *testing.T) {
	base := `
styles:
  strict: {description: x}
embassies:
  generic: {note: n}
templates:
  - category: F1
    style: strict
    strictness: %s
    max_follow_up_depth: 1
    questions: %s
`
	cases := map[string][2]string{
		"strictness out of range": {"1.5", `[{id: a, text: "q"}]`},
		"no questions":            {"0.5", `[]`},
		"blank text":              {"0.5", `[{id: a, text: " "}]`},
		"duplicate ids":           {"0.5", `[{id: a, text: "q"}, {id: a, text: "r"}]`},
	}
	for name, args := range cases {
		doc := strings.Replace(strings.Replace(base, "%s", args[0], 1), "%s", args[1], 1)
		_, err := Load(strings.NewReader(doc))
		require.Error(t, err, name)
	}

	ok := strings.Replace(strings.Replace(base, "%s", "0.5", 1), "%s", `[{id: a, text: "q"}]`, 1)
	c, err := Load(strings.NewReader(ok))
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)
}

func TestLoad_RequiresGenericEmbassy(t *testing.T) {
	_, err := Load(strings.NewReader(`
styles: {strict: {description: x}}
embassies: {mumbai: {note: n}}
templates: [{category: F1, style: strict, questions: [{text: q}]}]
`))
	require.Error(t, err)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader(`
styles: {strict: {description: x}}
embassies: {generic: {note: n}}
templates: [{category: F1, style: strict, questions: [{text: q}], temperature: 2}]
`))
	require.Error(t, err)
}
