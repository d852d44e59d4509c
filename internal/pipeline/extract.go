package pipeline

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/cardlens/benefit-cli/internal/model"
)

// Condition and cap sniffers run over the context window around each match.
// Bank pages state spend floors and caps in the sentence next to the rate,
// not inside it.
var (
	minSpendRe = regexp.MustCompile(`(?i)minimum\s*(?:spend|purchase)?\s*(?:of|:)?\s*(?:aed|usd|\$)?\s*(\d+(?:,\d{3})*)`)
	capRe      = regexp.MustCompile(`(?i)(?:up to|max|capped at)\s*(?:aed|usd|\$)?\s*(\d+(?:,\d{3})*)\s*(?:per|monthly|annually)?`)
)

const contextPad = 150

// ExtractPatterns runs the pattern pass over one source. Every regex match
// becomes a benefit; identical matched text collapses to one. Known partner
// venues mentioned anywhere in the source attach to each benefit.
func (p *Pipeline) ExtractPatterns(content, url, title string, now time.Time) []model.ExtractedBenefit {
	merchants := p.detectMerchants(content)

	var out []model.ExtractedBenefit
	seen := make(map[string]bool)
	for _, name := range p.patternNames {
		re := p.patterns[name]
		for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
			b := p.benefitFromMatch(re, name, content, m, url, title, now)
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			b.Merchants = append(b.Merchants, merchants...)
			out = append(out, b)
		}
	}
	return out
}

func (p *Pipeline) benefitFromMatch(re *regexp.Regexp, patternName, content string, m []int, url, title string, now time.Time) model.ExtractedBenefit {
	matched := strings.TrimSpace(content[m[0]:m[1]])
	groups := namedGroups(re, content, m)
	window := contextWindow(content, m[0], m[1], contextPad)

	value := strings.TrimSpace(groups["value"])
	numeric := parseNumeric(value)
	var unit string
	if value != "" {
		switch {
		case strings.Contains(matched, "%"):
			unit = "percent"
			value += "%"
		case containsCurrency(matched):
			unit = "AED"
			value = "AED " + value
		}
	}

	category := p.normalizeCategory(groups["category"])
	var tags []string
	if category != "" && category != "general" {
		tags = []string{category}
	}

	benefitTitle := strings.TrimSpace(groups["title"])
	if benefitTitle == "" {
		benefitTitle = p.buildTitle(patternName, value, unit, category)
	}

	var conditions, limitations []string
	if mm := minSpendRe.FindStringSubmatch(window); mm != nil {
		conditions = append(conditions, "Minimum spend: AED "+mm[1])
	}
	if cm := capRe.FindStringSubmatch(window); cm != nil {
		limitations = append(limitations, "Capped at AED "+cm[1])
	}

	return model.ExtractedBenefit{
		ID:           p.BenefitType + "_" + shortHash(matched),
		Pipeline:     p.Name,
		Type:         p.BenefitType,
		Title:        benefitTitle,
		Description:  matched,
		Category:     category,
		Value:        value,
		ValueNumeric: numeric,
		ValueUnit:    unit,
		Conditions:   conditions,
		Limitations:  limitations,
		CategoryTags: tags,
		SourceURL:    url,
		SourceTitle:  title,
		Method:       model.MethodPattern,
		Confidence:   patternConfidence,
		ExtractedAt:  now,
	}
}

// buildTitle names a pattern benefit. Matches with a recognized value carry
// it ("5% Cashback on Dining", "AED 500 Cashback"); the rest take their
// pattern's name, which reads better than a generic label when several
// distinct patterns hit the same page.
func (p *Pipeline) buildTitle(patternName, value, unit, category string) string {
	typeTitle := titleWords(strings.ReplaceAll(p.BenefitType, "_", " "))
	if value != "" && unit != "" {
		t := value + " " + typeTitle
		if category != "" && category != "general" {
			t += " on " + titleWords(category)
		}
		return t
	}
	if patternName != "" {
		return titleWords(strings.ReplaceAll(patternName, "_", " "))
	}
	return typeTitle + " Benefit"
}

// normalizeCategory folds a free-text category mention onto the pipeline's
// standard vocabulary. Empty input means the benefit is general.
func (p *Pipeline) normalizeCategory(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return "general"
	}
	for _, std := range p.categoryOrder {
		for _, v := range p.CategoryMap[std] {
			if strings.Contains(lower, v) {
				return std
			}
		}
	}
	if len(lower) > 2 {
		return lower
	}
	return "general"
}

func (p *Pipeline) detectMerchants(content string) []string {
	if len(p.MerchantMap) == 0 {
		return nil
	}
	lower := strings.ToLower(content)
	var found []string
	for name, variants := range p.MerchantMap {
		for _, v := range variants {
			if strings.Contains(lower, v) {
				found = append(found, name)
				break
			}
		}
	}
	sort.Strings(found)
	return found
}

func namedGroups(re *regexp.Regexp, content string, m []int) map[string]string {
	groups := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name == "" || 2*i+1 >= len(m) {
			continue
		}
		lo, hi := m[2*i], m[2*i+1]
		if lo >= 0 && hi >= 0 {
			groups[name] = content[lo:hi]
		}
	}
	return groups
}

// contextWindow returns pad bytes either side of [start,end), widened so it
// never splits a rune.
func contextWindow(s string, start, end, pad int) string {
	lo := start - pad
	if lo < 0 {
		lo = 0
	}
	hi := end + pad
	if hi > len(s) {
		hi = len(s)
	}
	for lo > 0 && !utf8.RuneStart(s[lo]) {
		lo--
	}
	for hi < len(s) && !utf8.RuneStart(s[hi]) {
		hi++
	}
	return strings.TrimSpace(s[lo:hi])
}

func containsCurrency(s string) bool {
	lower := strings.ToLower(s)
	for _, c := range []string{"aed", "usd", "eur", "$"} {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

func parseNumeric(value string) *float64 {
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &f
}

func shortHash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

func titleWords(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
