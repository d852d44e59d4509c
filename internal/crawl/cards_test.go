package crawl

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlens/benefit-cli/internal/registry"
	"github.com/cardlens/benefit-cli/pkg/webfetch"
)

func testBank() registry.Bank {
	return registry.Bank{
		Key:       "test_bank",
		Name:      "Test Bank",
		Domains:   []string{"bank.example"},
		BaseURL:   "https://bank.example",
		CardsPage: "https://bank.example/en/cards/credit-cards",
		CardURLPatterns: []string{
			`/en/cards/credit-cards/[\w-]+-card$`,
			`/en/cards/credit-cards/[\w-]+-credit-card$`,
		},
		ExcludePatterns: []string{"compare", "business"},
	}
}

func TestDiscoverCards_MatchesPatternsAndNames(t *testing.T) {
	bank := testBank()
	fc := newFakeClient().pageWithAnchors(bank.CardsPage, "Credit Cards",
		webfetch.Anchor{
			URL:  "https://bank.example/en/cards/credit-cards/skywards-infinite-credit-card",
			Text: "Skywards Infinite",
		},
		webfetch.Anchor{
			URL:      "https://bank.example/en/cards/credit-cards/titanium-card",
			Text:     "Learn More",
			ImageURL: "https://bank.example/img/titanium.png",
		},
		webfetch.Anchor{
			URL:  "https://bank.example/en/cards/credit-cards/compare-business-card",
			Text: "Compare cards",
		},
		webfetch.Anchor{
			URL:  "https://bank.example/en/loans/personal",
			Text: "Personal loans",
		},
	)
	d := New(fc, nil)

	cards, err := d.DiscoverCards(context.Background(), bank, false)
	require.NoError(t, err)
	require.Len(t, cards, 2)

	assert.Equal(t, "Skywards Infinite", cards[0].Name)
	assert.Equal(t, "https://bank.example/en/cards/credit-cards/skywards-infinite-credit-card", cards[0].URL)

	// Generic anchor text falls back to the URL slug.
	assert.Equal(t, "Titanium Credit Card", cards[1].Name)
	assert.Equal(t, "https://bank.example/img/titanium.png", cards[1].ImageURL)

	for _, c := range cards {
		assert.Len(t, c.ID, 12)
		assert.False(t, c.Selected)
	}
}

func TestDiscoverCards_DeduplicatesURLVariants(t *testing.T) {
	bank := testBank()
	fc := newFakeClient().pageWithAnchors(bank.CardsPage, "Credit Cards",
		webfetch.Anchor{URL: "https://bank.example/en/cards/credit-cards/titanium-card", Text: "Titanium"},
		webfetch.Anchor{URL: "https://bank.example/en/cards/credit-cards/Titanium-Card", Text: "Titanium again"},
	)
	d := New(fc, nil)

	cards, err := d.DiscoverCards(context.Background(), bank, false)
	require.NoError(t, err)

	require.Len(t, cards, 1)
	assert.Equal(t, "Titanium", cards[0].Name)
}

func TestDiscoverCards_StableIDsAcrossRuns(t *testing.T) {
	bank := testBank()
	fc := newFakeClient().pageWithAnchors(bank.CardsPage, "Credit Cards",
		webfetch.Anchor{URL: "https://bank.example/en/cards/credit-cards/titanium-card", Text: "Titanium"},
	)
	d := New(fc, nil)

	first, err := d.DiscoverCards(context.Background(), bank, false)
	require.NoError(t, err)
	second, err := d.DiscoverCards(context.Background(), bank, false)
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestDiscoverCards_FallsBackToBaseURL(t *testing.T) {
	bank := testBank()
	bank.CardsPage = ""
	fc := newFakeClient().pageWithAnchors(bank.BaseURL, "Test Bank",
		webfetch.Anchor{URL: "https://bank.example/en/cards/credit-cards/cashback-card", Text: "Cashback"},
	)
	d := New(fc, nil)

	cards, err := d.DiscoverCards(context.Background(), bank, false)
	require.NoError(t, err)

	require.Len(t, cards, 1)
	assert.Contains(t, fc.fetchedURLs(), bank.BaseURL)
}

func TestDiscoverCards_RendersWhenBankRequiresJS(t *testing.T) {
	bank := testBank()
	bank.RequiresJS = true
	fc := newFakeClient().pageWithAnchors(bank.CardsPage, "Credit Cards")
	d := New(fc, nil)

	_, err := d.DiscoverCards(context.Background(), bank, false)
	require.NoError(t, err)

	assert.Equal(t, []string{bank.CardsPage}, fc.renderedURLs())
}

func TestDiscoverCards_ListingFetchErrorPropagates(t *testing.T) {
	bank := testBank()
	fc := newFakeClient().fail(bank.CardsPage, eris.New("status 503"))
	d := New(fc, nil)

	_, err := d.DiscoverCards(context.Background(), bank, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bank.CardsPage)
}

func TestDiscoverCards_BadPatternRejected(t *testing.T) {
	bank := testBank()
	bank.CardURLPatterns = []string{"(unclosed"}
	d := New(newFakeClient(), nil)

	_, err := d.DiscoverCards(context.Background(), bank, false)
	assert.Error(t, err)
}

func TestDiscoverCards_NoCardsPageConfigured(t *testing.T) {
	d := New(newFakeClient(), nil)

	_, err := d.DiscoverCards(context.Background(), registry.Bank{Key: "empty"}, false)
	assert.Error(t, err)
}

func TestCardNameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://bank.example/en/cards/credit-cards/skywards-infinite-credit-card": "Skywards Infinite Credit Card",
		"https://bank.example/en/cards/credit-cards/titanium-card/":                "Titanium Credit Card",
		"https://bank.example/en/cards/credit-cards/cash-rewards-cards":            "Cash Rewards Credit Card",
		"https://bank.example/en/offers/dining":                                    "Unknown Card",
	}
	for url, want := range cases {
		assert.Equal(t, want, cardNameFromURL(url), url)
	}
}
