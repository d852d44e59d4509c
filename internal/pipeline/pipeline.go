// Package pipeline runs the named benefit-extraction pipelines over a raw
// record's approved sources. Each pipeline is declared as data: keyword and
// URL-pattern relevance gates, regex patterns with named groups for the
// pattern pass, and a prompt intro for the model pass. Execution per source
// is pattern extraction plus model extraction (when a client is configured),
// merged within the source; a pipeline failure never touches its siblings.
package pipeline

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// Extraction confidences. Pattern hits are mechanical and conservative;
// model extractions read context and score higher. Aggregation may still
// lift a merged benefit above either.
const (
	patternConfidence = 0.6
	modelConfidence   = 0.75
)

// minContentChars is the floor below which a source has nothing to extract.
const minContentChars = 50

// highValueURLTerms mark terms-and-conditions and fee-schedule pages, which
// get a relevance bonus: they hide benefits behind low keyword density.
var highValueURLTerms = []string{
	"terms", "conditions", "key-facts", "keyfacts", "fee-schedule",
	"fee_schedule", "tariff", "charges", "schedule-of-charges",
}

// benefitIndicators lift a content section's score during excerpting even
// when pipeline keywords miss it.
var benefitIndicators = []string{
	"free", "complimentary", "discount", "%", "aed",
	"offer", "eligible", "valid", "terms", "conditions", "benefit",
}

// Spec declares one extraction pipeline. Specs are data so the pipeline set
// stays reviewable and extendable without touching execution code.
type Spec struct {
	Name        string
	BenefitType string
	Description string

	// URLPatterns are substring hints: a source whose URL or title contains
	// one is processed regardless of its keyword relevance score.
	URLPatterns []string

	Keywords         []string
	NegativeKeywords []string

	// Patterns are named regexes for the pattern pass. Named groups `value`,
	// `category`, and `title` feed the extracted benefit.
	Patterns map[string]string

	// CategoryMap normalizes free-text category mentions to a standard
	// vocabulary: standard name → variant substrings.
	CategoryMap map[string][]string

	// MerchantMap names known partner venues: display name → mention
	// variants. Venues mentioned anywhere in a source attach to every
	// benefit the pattern pass extracts from it.
	MerchantMap map[string][]string

	// PromptIntro opens the model prompt. Empty means the pipeline is
	// pattern-only even when a model client is configured.
	PromptIntro string
}

// Pipeline is a compiled Spec.
type Pipeline struct {
	Spec

	patternNames  []string
	patterns      map[string]*regexp.Regexp
	exactWords    []*regexp.Regexp
	categoryOrder []string
}

// Compile validates and compiles a Spec. Pattern regexes run
// case-insensitive and multiline.
func Compile(s Spec) (*Pipeline, error) {
	if s.Name == "" {
		return nil, eris.New("pipeline: spec has no name")
	}
	p := &Pipeline{
		Spec:     s,
		patterns: make(map[string]*regexp.Regexp, len(s.Patterns)),
	}
	for name, expr := range s.Patterns {
		re, err := regexp.Compile(`(?im)` + expr)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: %s pattern %q", s.Name, name)
		}
		p.patterns[name] = re
		p.patternNames = append(p.patternNames, name)
	}
	sort.Strings(p.patternNames)

	p.exactWords = make([]*regexp.Regexp, len(s.Keywords))
	for i, kw := range s.Keywords {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(kw)) + `\b`)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: %s keyword %q", s.Name, kw)
		}
		p.exactWords[i] = re
	}

	// Overlapping variant lists must resolve the same way every run.
	for std := range s.CategoryMap {
		p.categoryOrder = append(p.categoryOrder, std)
	}
	sort.Strings(p.categoryOrder)
	return p, nil
}

// MatchesSource reports whether the source's URL or title names this
// pipeline's territory. Pipelines without hints match nothing here; the
// keyword score alone decides for them.
func (p *Pipeline) MatchesSource(url, title string) bool {
	if len(p.URLPatterns) == 0 {
		return false
	}
	combined := strings.ToLower(url + " " + title)
	for _, hint := range p.URLPatterns {
		if strings.Contains(combined, strings.ToLower(hint)) {
			return true
		}
	}
	return false
}

// Relevance scores content against this pipeline's keywords, returning the
// score and the keyword match count. Keyword hits are substring matches;
// exact word-boundary hits weigh extra; terms and fee-schedule URLs add a
// 0.3 bonus. Any negative keyword zeroes the source outright.
func (p *Pipeline) Relevance(content, url string) (float64, int) {
	lower := strings.ToLower(content)
	urlLower := strings.ToLower(url)

	var bonus float64
	for _, t := range highValueURLTerms {
		if strings.Contains(urlLower, t) {
			bonus = 0.3
			break
		}
	}

	for _, neg := range p.NegativeKeywords {
		if strings.Contains(lower, strings.ToLower(neg)) {
			return 0, 0
		}
	}

	if len(p.Keywords) == 0 {
		return 0.5 + bonus, 0
	}

	matches, exact := 0, 0
	for i, kw := range p.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matches++
			if p.exactWords[i].MatchString(lower) {
				exact++
			}
		}
	}

	var score float64
	switch {
	case matches == 0:
		return bonus, 0
	case matches == 1:
		return min(1, 0.2+bonus), 1
	case matches >= 5 || exact >= 3:
		score = 1.0
	case matches >= 3 || exact >= 2:
		score = 0.8
	default:
		score = 0.5
	}
	return min(1, score+bonus), matches
}

// excerpt trims content to maxChars for the model pass, keeping the
// sections that score best on pipeline keywords and benefit indicators.
// Sections are blank-line separated; ties keep document order.
func (p *Pipeline) excerpt(content string, maxChars int) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}

	type scored struct {
		score float64
		pos   int
		text  string
	}
	var sections []scored
	for i, section := range strings.Split(content, "\n\n") {
		text := strings.TrimSpace(section)
		if len(text) < 20 {
			continue
		}
		lowerText := strings.ToLower(text)
		var score float64
		for _, kw := range p.Keywords {
			if strings.Contains(lowerText, strings.ToLower(kw)) {
				score++
			}
		}
		for _, ind := range benefitIndicators {
			if strings.Contains(lowerText, ind) {
				score += 0.5
			}
		}
		sections = append(sections, scored{score: score, pos: i, text: text})
	}

	sort.SliceStable(sections, func(i, j int) bool {
		if sections[i].score != sections[j].score {
			return sections[i].score > sections[j].score
		}
		return sections[i].pos < sections[j].pos
	})

	var parts []string
	length := 0
	for _, s := range sections {
		if length+len(s.text)+2 <= maxChars {
			parts = append(parts, s.text)
			length += len(s.text) + 2
		} else if len(parts) == 0 {
			cut := maxChars
			if cut >= len(s.text) {
				cut = len(s.text)
			} else {
				for cut > 0 && !utf8.RuneStart(s.text[cut]) {
					cut--
				}
			}
			parts = append(parts, s.text[:cut])
			break
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// Registry holds compiled pipelines in registration order.
type Registry struct {
	byName map[string]*Pipeline
	order  []string
}

// NewRegistry compiles the given specs.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Pipeline, len(specs))}
	for _, s := range specs {
		if _, dup := r.byName[s.Name]; dup {
			return nil, eris.Errorf("pipeline: duplicate pipeline %q", s.Name)
		}
		p, err := Compile(s)
		if err != nil {
			return nil, err
		}
		r.byName[s.Name] = p
		r.order = append(r.order, s.Name)
	}
	return r, nil
}

// Get returns the named pipeline.
func (r *Registry) Get(name string) (*Pipeline, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names lists registered pipelines in registration order.
func (r *Registry) Names() []string {
	return append([]string{}, r.order...)
}
