// Package relevance scores text against a keyword set and assigns the
// high/medium/low tier used to rank discovered documents.
package relevance

import (
	"strings"

	"github.com/cardlens/benefit-cli/internal/model"
)

// DefaultHighCutoff is the match count at which text is tiered high.
const DefaultHighCutoff = 5

// Result holds the outcome of scoring one block of text.
type Result struct {
	Matched []string   `json:"matched"`
	Tier    model.Tier `json:"tier"`
}

// Score matches keywords against text by case-insensitive substring
// containment — a keyword inside a longer word counts, deliberately. Tiers:
// high when at least highCutoff distinct keywords match, medium when at
// least one matches, low otherwise. An empty keyword set tiers everything
// low. highCutoff <= 0 falls back to DefaultHighCutoff.
func Score(text string, keywords []string, highCutoff int) Result {
	if highCutoff <= 0 {
		highCutoff = DefaultHighCutoff
	}

	lower := strings.ToLower(text)
	var matched []string
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		if strings.Contains(lower, k) {
			matched = append(matched, k)
		}
	}

	return Result{Matched: matched, Tier: tierFor(len(matched), highCutoff)}
}

func tierFor(matches, highCutoff int) model.Tier {
	switch {
	case matches >= highCutoff:
		return model.TierHigh
	case matches >= 1:
		return model.TierMedium
	default:
		return model.TierLow
	}
}
