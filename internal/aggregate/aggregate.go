// Package aggregate turns raw per-pipeline extractions into the final benefit
// set. Merging happens in two passes: within one source (pattern and model
// findings of the same benefit collapse into one, resolving value conflicts
// by policy) and across sources (the same benefit found on several pages
// becomes one entry that remembers every contributing URL).
package aggregate

import (
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cardlens/benefit-cli/internal/model"
)

// ValueConflictPolicy decides which value survives when pattern and model
// extraction disagree about the same benefit.
type ValueConflictPolicy string

const (
	// PreferModel keeps the model's value and records the pattern value as a
	// condition note. The default.
	PreferModel ValueConflictPolicy = "prefer_model"
	// PreferConfidence keeps the higher-confidence side's value.
	PreferConfidence ValueConflictPolicy = "prefer_confidence"
)

// Thresholds are the inclusive lower bounds of the confidence buckets.
type Thresholds struct {
	High   float64 `yaml:"high" mapstructure:"high"`
	Medium float64 `yaml:"medium" mapstructure:"medium"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.75, Medium: 0.4}
}

// Level buckets a confidence score. This is the only place bucketing lives;
// every consumer goes through it.
func (t Thresholds) Level(confidence float64) model.ConfidenceLevel {
	switch {
	case confidence >= t.High:
		return model.ConfidenceHigh
	case confidence >= t.Medium:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// Merger applies the two merge passes with a fixed policy and thresholds.
type Merger struct {
	policy     ValueConflictPolicy
	thresholds Thresholds
}

func NewMerger(policy ValueConflictPolicy, thresholds Thresholds) *Merger {
	if policy == "" {
		policy = PreferModel
	}
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}
	return &Merger{policy: policy, thresholds: thresholds}
}

// MergeWithinSource collapses duplicate findings from one source. Two
// benefits merge when their normalized titles match and their categories
// overlap. Benefits with empty titles never merge.
func (m *Merger) MergeWithinSource(benefits []model.ExtractedBenefit) []model.ExtractedBenefit {
	out := make([]model.ExtractedBenefit, 0, len(benefits))
	for _, b := range benefits {
		key := NormalizeTitle(b.Title)
		matched := false
		if key != "" {
			for i := range out {
				if NormalizeTitle(out[i].Title) == key && categoriesOverlap(out[i], b) {
					out[i] = m.mergePair(out[i], b)
					matched = true
					break
				}
			}
		}
		if !matched {
			out = append(out, b)
		}
	}
	m.relevel(out)
	return out
}

// MergeAcrossSources merges the same benefit found on several pages: same
// normalized title and same category become one entry with unioned tags,
// the highest-confidence description, and every contributing source URL.
// Merging the output again is a no-op.
func (m *Merger) MergeAcrossSources(benefits []model.ExtractedBenefit) []model.ExtractedBenefit {
	type group struct {
		rep   model.ExtractedBenefit
		count int
	}
	var order []string
	groups := make(map[string]*group)

	for i, b := range benefits {
		key := NormalizeTitle(b.Title)
		if key == "" {
			key = fmt.Sprintf("\x00untitled:%d", i)
		} else {
			key += "\x00" + b.Category
		}
		g, ok := groups[key]
		if !ok {
			groups[key] = &group{rep: withOwnSource(b), count: 1}
			order = append(order, key)
			continue
		}
		g.rep = m.mergeCross(g.rep, b)
		g.count++
	}

	out := make([]model.ExtractedBenefit, 0, len(order))
	merged := 0
	for _, key := range order {
		g := groups[key]
		if g.count > 1 {
			merged += g.count - 1
		}
		out = append(out, g.rep)
	}
	m.relevel(out)

	zap.L().Debug("cross-source merge",
		zap.Int("in", len(benefits)),
		zap.Int("out", len(out)),
		zap.Int("collapsed", merged),
	)
	return out
}

// Stats summarizes a final benefit set.
func (m *Merger) Stats(benefits []model.ExtractedBenefit, sourcesProcessed, sourcesRelevant int) model.AggregateStats {
	s := model.AggregateStats{
		Total:            len(benefits),
		SourcesProcessed: sourcesProcessed,
		SourcesRelevant:  sourcesRelevant,
	}
	for _, b := range benefits {
		switch m.thresholds.Level(b.Confidence) {
		case model.ConfidenceHigh:
			s.HighConfidence++
		case model.ConfidenceMedium:
			s.MediumConfidence++
		default:
			s.LowConfidence++
		}
		switch b.Method {
		case model.MethodPattern:
			s.ByPattern++
		case model.MethodModel:
			s.ByModel++
		case model.MethodHybrid:
			s.ByHybrid++
		}
	}
	return s
}

func (m *Merger) relevel(benefits []model.ExtractedBenefit) {
	for i := range benefits {
		benefits[i].ConfidenceLevel = m.thresholds.Level(benefits[i].Confidence)
	}
}

// mergePair resolves one within-source duplicate. The first-seen benefit
// keeps its identity; the merge folds the other into it.
func (m *Merger) mergePair(a, b model.ExtractedBenefit) model.ExtractedBenefit {
	merged := a
	if a.Method != b.Method {
		merged.Method = model.MethodHybrid
	}
	if b.Confidence > merged.Confidence {
		merged.Confidence = b.Confidence
	}

	switch {
	case a.Value == "" || a.Value == b.Value:
		merged.Value, merged.ValueNumeric, merged.ValueUnit = pickValue(a, b)
	case b.Value == "":
		// keep a's value
	default:
		winner, loser := m.resolveConflict(a, b)
		merged.Value, merged.ValueNumeric, merged.ValueUnit = winner.Value, winner.ValueNumeric, winner.ValueUnit
		note := fmt.Sprintf("%s extraction also reported value %q", loser.Method, loser.Value)
		merged.Conditions = appendUnique(merged.Conditions, note)
	}

	if b.Confidence > a.Confidence && b.Description != "" {
		merged.Description = b.Description
	} else if merged.Description == "" {
		merged.Description = b.Description
	}

	merged.Conditions = unionStrings(merged.Conditions, b.Conditions)
	merged.Limitations = unionStrings(merged.Limitations, b.Limitations)
	merged.CategoryTags = unionStrings(merged.CategoryTags, b.CategoryTags)
	merged.Merchants = unionStrings(merged.Merchants, b.Merchants)
	return merged
}

func (m *Merger) resolveConflict(a, b model.ExtractedBenefit) (winner, loser model.ExtractedBenefit) {
	if m.policy == PreferConfidence {
		if b.Confidence > a.Confidence {
			return b, a
		}
		return a, b
	}
	// prefer_model: the model side wins; between equals, higher confidence.
	aModel := a.Method == model.MethodModel || a.Method == model.MethodHybrid
	bModel := b.Method == model.MethodModel || b.Method == model.MethodHybrid
	switch {
	case bModel && !aModel:
		return b, a
	case aModel && !bModel:
		return a, b
	case b.Confidence > a.Confidence:
		return b, a
	default:
		return a, b
	}
}

// mergeCross folds one more sighting of a benefit into its cross-source
// representative.
func (m *Merger) mergeCross(rep, b model.ExtractedBenefit) model.ExtractedBenefit {
	if b.Confidence > rep.Confidence {
		rep.Confidence = b.Confidence
		if b.Description != "" {
			rep.Description = b.Description
		}
		if b.Value != "" {
			rep.Value, rep.ValueNumeric, rep.ValueUnit = b.Value, b.ValueNumeric, b.ValueUnit
		}
	} else if rep.Description == "" {
		rep.Description = b.Description
	}
	if rep.Method != b.Method {
		rep.Method = model.MethodHybrid
	}
	rep.CategoryTags = unionStrings(rep.CategoryTags, b.CategoryTags)
	rep.Conditions = unionStrings(rep.Conditions, b.Conditions)
	rep.Limitations = unionStrings(rep.Limitations, b.Limitations)
	rep.Merchants = unionStrings(rep.Merchants, b.Merchants)
	rep.SourceURLs = unionStrings(rep.SourceURLs, b.SourceURLs)
	if b.SourceURL != "" {
		rep.SourceURLs = appendUnique(rep.SourceURLs, b.SourceURL)
	}
	return rep
}

func withOwnSource(b model.ExtractedBenefit) model.ExtractedBenefit {
	if b.SourceURL != "" {
		b.SourceURLs = appendUnique(b.SourceURLs, b.SourceURL)
	}
	return b
}

func pickValue(a, b model.ExtractedBenefit) (string, *float64, string) {
	if a.Value != "" {
		return a.Value, a.ValueNumeric, a.ValueUnit
	}
	return b.Value, b.ValueNumeric, b.ValueUnit
}

func categoriesOverlap(a, b model.ExtractedBenefit) bool {
	set := map[string]bool{}
	if a.Category != "" {
		set[a.Category] = true
	}
	for _, t := range a.CategoryTags {
		set[t] = true
	}
	if b.Category != "" && set[b.Category] {
		return true
	}
	for _, t := range b.CategoryTags {
		if set[t] {
			return true
		}
	}
	return false
}

func unionStrings(a, b []string) []string {
	out := a
	for _, s := range b {
		out = appendUnique(out, s)
	}
	return out
}

func appendUnique(xs []string, s string) []string {
	if s == "" {
		return xs
	}
	for _, x := range xs {
		if x == s {
			return xs
		}
	}
	return append(xs, s)
}

// NormalizeTitle folds a benefit title for matching: diacritics stripped,
// lowercased, punctuation dropped, whitespace collapsed.
func NormalizeTitle(s string) string {
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}

	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '_', r == '/':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
