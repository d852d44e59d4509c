package crawl

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/registry"
	"github.com/cardlens/benefit-cli/pkg/webfetch"
)

// cardSlugRe pulls the product slug out of a card detail path, e.g.
// /en/cards/credit-cards/skywards-infinite-credit-card → skywards-infinite.
var cardSlugRe = regexp.MustCompile(`/([^/]+?)(?:-credit)?-cards?$`)

// genericAnchorTexts are call-to-action labels that name nothing. The URL
// slug produces the display name instead.
var genericAnchorTexts = map[string]bool{
	"learn more":   true,
	"apply now":    true,
	"view details": true,
	"read more":    true,
	"know more":    true,
	"explore":      true,
	"view card":    true,
}

// DiscoverCards fetches the bank's card listing page and returns the product
// pages linked from it: anchors matching the bank's card URL patterns, minus
// exclude-pattern hits, deduplicated by normalized URL. Display names come
// from the anchor text when it names the product, else from the URL slug.
func (d *Discoverer) DiscoverCards(ctx context.Context, bank registry.Bank, bypassCache bool) ([]model.CandidateCard, error) {
	listing := bank.CardsPage
	if listing == "" {
		listing = bank.BaseURL
	}
	if listing == "" {
		return nil, eris.Errorf("crawl: bank %q has no cards page", bank.Key)
	}

	patterns, err := compilePatterns(bank.CardURLPatterns)
	if err != nil {
		return nil, err
	}

	page, err := d.fetchPage(ctx, listing, bank.RequiresJS, bypassCache)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: fetch cards page %s", listing)
	}

	excludes := lowerAll(bank.ExcludePatterns)

	var cards []model.CandidateCard
	seen := make(map[string]bool)
	for _, a := range page.Anchors {
		if !matchAny(patterns, a.URL) || skippable(a.URL, excludes) {
			continue
		}
		norm := webfetch.NormalizeURL(a.URL)
		if seen[norm] {
			continue
		}
		seen[norm] = true

		cards = append(cards, model.CandidateCard{
			ID:       cardID(norm),
			Name:     cardName(a.Text, a.URL),
			URL:      a.URL,
			ImageURL: a.ImageURL,
		})
	}

	zap.L().Info("cards discovered",
		zap.String("bank", bank.Key),
		zap.String("listing", listing),
		zap.Int("cards", len(cards)),
	)
	return cards, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "crawl: bad card url pattern %q", p)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// cardID is stable across runs: the leading hex of the normalized URL's md5,
// enough for selection round-trips through the API.
func cardID(normalizedURL string) string {
	sum := md5.Sum([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])[:12]
}

func cardName(anchorText, rawURL string) string {
	text := strings.Join(strings.Fields(anchorText), " ")
	if text != "" && len(text) <= 80 && !genericAnchorTexts[strings.ToLower(text)] {
		return text
	}
	return cardNameFromURL(rawURL)
}

func cardNameFromURL(rawURL string) string {
	p := strings.ToLower(rawURL)
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = strings.ToLower(u.Path)
	}
	m := cardSlugRe.FindStringSubmatch(strings.TrimRight(p, "/"))
	if m == nil {
		return "Unknown Card"
	}
	return titleWords(strings.ReplaceAll(m[1], "-", " ")) + " Credit Card"
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
