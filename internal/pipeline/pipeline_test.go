package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() Spec {
	return Spec{
		Name:        "cashback_test",
		BenefitType: "cashback",
		URLPatterns: []string{"cashback", "rewards-cashback"},
		Keywords:    []string{"cashback", "rebate", "grocery", "fuel", "dining"},
		NegativeKeywords: []string{
			"no cashback",
		},
		Patterns: map[string]string{
			"rate": `(?P<value>\d+)\s*%\s*cashback`,
		},
	}
}

func TestCompile_RequiresName(t *testing.T) {
	_, err := Compile(Spec{BenefitType: "cashback"})
	require.Error(t, err)
}

func TestCompile_RejectsBadPattern(t *testing.T) {
	s := testSpec()
	s.Patterns["broken"] = "(unclosed"
	_, err := Compile(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestNewRegistry_RejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(testSpec(), testSpec())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRegistry_NamesKeepRegistrationOrder(t *testing.T) {
	a, b := testSpec(), testSpec()
	a.Name = "alpha"
	b.Name = "beta"
	reg, err := NewRegistry(a, b)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, reg.Names())

	got, ok := reg.Get("beta")
	require.True(t, ok)
	assert.Equal(t, "beta", got.Name)

	_, ok = reg.Get("gamma")
	assert.False(t, ok)
}

func TestRelevance_Scoring(t *testing.T) {
	p, err := Compile(testSpec())
	require.NoError(t, err)

	tests := []struct {
		name    string
		content string
		url     string
		score   float64
		matches int
	}{
		{
			name:    "no keywords",
			content: "Board of directors governance report for shareholders.",
			url:     "https://bank.example/about",
			score:   0,
			matches: 0,
		},
		{
			name:    "single keyword",
			content: "Earn cashback every month on this card.",
			url:     "https://bank.example/cards/platinum",
			score:   0.2,
			matches: 1,
		},
		{
			name:    "two keywords",
			content: "Earn cashbacks and rebates with every purchase you make today.",
			url:     "https://bank.example/cards/platinum",
			score:   0.5,
			matches: 2,
		},
		{
			name:    "three keyword matches",
			content: "Our cashbacks, rebates and grocery-related perks are described elsewhere.",
			url:     "https://bank.example/cards/platinum",
			score:   0.8,
			matches: 3,
		},
		{
			name:    "three exact words score full",
			content: "cashback rebate grocery",
			url:     "https://bank.example/cards/platinum",
			score:   1.0,
			matches: 3,
		},
		{
			name:    "five keywords score full",
			content: "cashback, rebate offers on grocery, fuel and dining spends",
			url:     "https://bank.example/cards/platinum",
			score:   1.0,
			matches: 5,
		},
		{
			name:    "negative keyword zeroes the source",
			content: "There is no cashback on fuel, grocery or dining purchases.",
			url:     "https://bank.example/cards/platinum",
			score:   0,
			matches: 0,
		},
		{
			name:    "terms url adds bonus",
			content: "Earn cashback on eligible spends.",
			url:     "https://bank.example/cards/platinum/terms-and-conditions",
			score:   0.5,
			matches: 1,
		},
		{
			name:    "fee schedule url alone carries the bonus",
			content: "Schedule of fees applicable to all consumer cards.",
			url:     "https://bank.example/en/fee-schedule.pdf",
			score:   0.3,
			matches: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, matches := p.Relevance(tt.content, tt.url)
			assert.InDelta(t, tt.score, score, 1e-9)
			assert.Equal(t, tt.matches, matches)
		})
	}
}

func TestRelevance_NoKeywordsDefaultsToHalf(t *testing.T) {
	s := testSpec()
	s.Keywords = nil
	p, err := Compile(s)
	require.NoError(t, err)

	score, matches := p.Relevance("anything at all", "https://bank.example/page")
	assert.InDelta(t, 0.5, score, 1e-9)
	assert.Equal(t, 0, matches)
}

func TestMatchesSource(t *testing.T) {
	p, err := Compile(testSpec())
	require.NoError(t, err)

	assert.True(t, p.MatchesSource("https://bank.example/en/cashback-offers", ""))
	assert.True(t, p.MatchesSource("https://bank.example/en/offers", "Rewards-Cashback Guide"))
	assert.False(t, p.MatchesSource("https://bank.example/en/lounge", "Airport Lounges"))

	s := testSpec()
	s.URLPatterns = nil
	bare, err := Compile(s)
	require.NoError(t, err)
	assert.False(t, bare.MatchesSource("https://bank.example/en/cashback-offers", ""))
}

func TestExcerpt_ShortContentUntouched(t *testing.T) {
	p, err := Compile(testSpec())
	require.NoError(t, err)

	content := "Earn 5% cashback on groceries."
	assert.Equal(t, content, p.excerpt(content, 1000))
	assert.Equal(t, content, p.excerpt(content, 0))
}

func TestExcerpt_KeepsKeywordRichSections(t *testing.T) {
	p, err := Compile(testSpec())
	require.NoError(t, err)

	filler := strings.Repeat("Nothing of note here in this paragraph. ", 6)
	rich := "Earn 5% cashback on grocery and fuel spends, with a rebate on dining too."
	content := filler + "\n\n" + rich + "\n\n" + filler

	got := p.excerpt(content, len(rich)+10)
	assert.Contains(t, got, "5% cashback")
	assert.LessOrEqual(t, len(got), len(rich)+10)
	assert.NotContains(t, got, "Nothing of note")
}

func TestExcerpt_TruncatesWhenNothingFits(t *testing.T) {
	p, err := Compile(testSpec())
	require.NoError(t, err)

	content := strings.Repeat("cashback rebate grocery fuel dining offers everywhere ", 10) +
		"\n\n" + "short tail section here"
	got := p.excerpt(content, 40)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 40)
}

func TestExcerpt_TruncationKeepsRunesWhole(t *testing.T) {
	p, err := Compile(testSpec())
	require.NoError(t, err)

	// Multi-byte text long enough that only a truncated slice of the first
	// section fits; the cut must land on a rune boundary.
	section := "استرداد نقدي على البقالة والوقود cashback rebate " + strings.Repeat("مزايا ", 20)
	content := section + "\n\nshort tail"

	for maxChars := 30; maxChars < 50; maxChars++ {
		got := p.excerpt(content, maxChars)
		assert.True(t, utf8.ValidString(got), "maxChars=%d produced invalid UTF-8", maxChars)
		assert.LessOrEqual(t, len(got), maxChars)
	}
}
