package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlens/benefit-cli/internal/model"
)

func bf(title, category, value string, method model.ExtractionMethod, conf float64) model.ExtractedBenefit {
	return model.ExtractedBenefit{
		Title:      title,
		Category:   category,
		Value:      value,
		Method:     method,
		Confidence: conf,
	}
}

func TestLevel_BucketBoundariesAreInclusive(t *testing.T) {
	th := DefaultThresholds()

	assert.Equal(t, model.ConfidenceHigh, th.Level(0.8))
	assert.Equal(t, model.ConfidenceHigh, th.Level(0.75))
	assert.Equal(t, model.ConfidenceMedium, th.Level(0.5))
	assert.Equal(t, model.ConfidenceMedium, th.Level(0.4))
	assert.Equal(t, model.ConfidenceLow, th.Level(0.39))
	assert.Equal(t, model.ConfidenceLow, th.Level(0.1))
	assert.Equal(t, model.ConfidenceLow, th.Level(0))
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "5 cashback on dining", NormalizeTitle("5% Cashback on Dining"))
	assert.Equal(t, "5 cashback on dining", NormalizeTitle("  5%  CASHBACK on   dining! "))
	assert.Equal(t, "cafe lounge access", NormalizeTitle("Café Lounge-Access"))
	assert.Equal(t, "buy 1 get 1", NormalizeTitle("Buy-1/Get-1"))
	assert.Equal(t, "", NormalizeTitle("  ***  "))
}

func TestMergeWithinSource_AgreeingFindingsBecomeHybrid(t *testing.T) {
	m := NewMerger(PreferModel, DefaultThresholds())

	in := []model.ExtractedBenefit{
		bf("5% Cashback on Dining", "cashback", "5%", model.MethodPattern, 0.6),
		bf("5% cashback on dining", "cashback", "5%", model.MethodModel, 0.75),
	}
	out := m.MergeWithinSource(in)

	require.Len(t, out, 1)
	assert.Equal(t, model.MethodHybrid, out[0].Method)
	assert.Equal(t, 0.75, out[0].Confidence)
	assert.Equal(t, model.ConfidenceHigh, out[0].ConfidenceLevel)
	assert.Equal(t, "5%", out[0].Value)
}

func TestMergeWithinSource_ValueConflictPrefersModel(t *testing.T) {
	m := NewMerger(PreferModel, DefaultThresholds())

	in := []model.ExtractedBenefit{
		bf("Airport Lounge Access", "lounge", "8 visits", model.MethodPattern, 0.6),
		bf("Airport lounge access", "lounge", "unlimited visits", model.MethodModel, 0.75),
	}
	out := m.MergeWithinSource(in)

	require.Len(t, out, 1)
	assert.Equal(t, "unlimited visits", out[0].Value)
	require.NotEmpty(t, out[0].Conditions)
	assert.Contains(t, out[0].Conditions[0], "8 visits")
	assert.Contains(t, out[0].Conditions[0], "pattern")
}

func TestMergeWithinSource_PreferConfidencePolicy(t *testing.T) {
	m := NewMerger(PreferConfidence, DefaultThresholds())

	in := []model.ExtractedBenefit{
		bf("Golf Access", "golf", "2 rounds", model.MethodPattern, 0.9),
		bf("Golf access", "golf", "4 rounds", model.MethodModel, 0.75),
	}
	out := m.MergeWithinSource(in)

	require.Len(t, out, 1)
	assert.Equal(t, "2 rounds", out[0].Value)
	assert.Contains(t, out[0].Conditions[0], "4 rounds")
}

func TestMergeWithinSource_DifferentCategoriesStayApart(t *testing.T) {
	m := NewMerger(PreferModel, DefaultThresholds())

	in := []model.ExtractedBenefit{
		bf("Complimentary Access", "lounge", "", model.MethodPattern, 0.6),
		bf("Complimentary access", "golf", "", model.MethodModel, 0.75),
	}
	out := m.MergeWithinSource(in)
	assert.Len(t, out, 2)
}

func TestMergeWithinSource_TagOverlapCountsAsSameCategory(t *testing.T) {
	m := NewMerger(PreferModel, DefaultThresholds())

	a := bf("Free Valet Parking", "lifestyle", "", model.MethodPattern, 0.6)
	b := bf("Free valet parking", "", "", model.MethodModel, 0.75)
	b.CategoryTags = []string{"lifestyle"}

	out := m.MergeWithinSource([]model.ExtractedBenefit{a, b})
	assert.Len(t, out, 1)
}

func TestMergeWithinSource_EmptyTitlesNeverMerge(t *testing.T) {
	m := NewMerger(PreferModel, DefaultThresholds())

	in := []model.ExtractedBenefit{
		bf("", "cashback", "1%", model.MethodPattern, 0.6),
		bf("", "cashback", "2%", model.MethodModel, 0.75),
	}
	out := m.MergeWithinSource(in)
	assert.Len(t, out, 2)
}

func TestMergeAcrossSources_UnionsTagsAndSourceURLs(t *testing.T) {
	m := NewMerger(PreferModel, DefaultThresholds())

	a := bf("Airport Lounge Access", "lounge", "unlimited", model.MethodModel, 0.8)
	a.SourceURL = "https://bank.example/benefits"
	a.CategoryTags = []string{"travel"}
	a.Description = "Unlimited lounge visits worldwide."

	b := bf("airport lounge access", "lounge", "unlimited", model.MethodPattern, 0.6)
	b.SourceURL = "https://bank.example/terms"
	b.CategoryTags = []string{"airport"}
	b.Description = "Lounge visits."

	out := m.MergeAcrossSources([]model.ExtractedBenefit{a, b})

	require.Len(t, out, 1)
	assert.ElementsMatch(t, []string{"travel", "airport"}, out[0].CategoryTags)
	assert.ElementsMatch(t,
		[]string{"https://bank.example/benefits", "https://bank.example/terms"},
		out[0].SourceURLs,
	)
	// Highest-confidence description wins.
	assert.Equal(t, "Unlimited lounge visits worldwide.", out[0].Description)
	assert.Equal(t, model.MethodHybrid, out[0].Method)
	assert.Equal(t, 0.8, out[0].Confidence)
}

func TestMergeAcrossSources_SameTitleDifferentCategoryStaysApart(t *testing.T) {
	m := NewMerger(PreferModel, DefaultThresholds())

	a := bf("Complimentary Membership", "golf", "", model.MethodModel, 0.8)
	b := bf("Complimentary membership", "lifestyle", "", model.MethodModel, 0.8)

	out := m.MergeAcrossSources([]model.ExtractedBenefit{a, b})
	assert.Len(t, out, 2)
}

func TestMergeAcrossSources_Idempotent(t *testing.T) {
	m := NewMerger(PreferModel, DefaultThresholds())

	a := bf("Airport Lounge Access", "lounge", "unlimited", model.MethodModel, 0.8)
	a.SourceURL = "https://bank.example/benefits"
	b := bf("airport lounge access", "lounge", "8 visits", model.MethodPattern, 0.6)
	b.SourceURL = "https://bank.example/terms"
	c := bf("2% Cashback", "cashback", "2%", model.MethodPattern, 0.6)
	c.SourceURL = "https://bank.example/cards"

	once := m.MergeAcrossSources([]model.ExtractedBenefit{a, b, c})
	twice := m.MergeAcrossSources(once)

	assert.Equal(t, once, twice)
}

func TestStats_CountsBucketsAndMethods(t *testing.T) {
	m := NewMerger(PreferModel, DefaultThresholds())

	in := []model.ExtractedBenefit{
		bf("A", "cashback", "", model.MethodPattern, 0.8),
		bf("B", "lounge", "", model.MethodModel, 0.75),
		bf("C", "golf", "", model.MethodHybrid, 0.5),
		bf("D", "dining", "", model.MethodPattern, 0.1),
	}
	s := m.Stats(in, 7, 5)

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.HighConfidence)
	assert.Equal(t, 1, s.MediumConfidence)
	assert.Equal(t, 1, s.LowConfidence)
	assert.Equal(t, 2, s.ByPattern)
	assert.Equal(t, 1, s.ByModel)
	assert.Equal(t, 1, s.ByHybrid)
	assert.Equal(t, 7, s.SourcesProcessed)
	assert.Equal(t, 5, s.SourcesRelevant)
}

func TestNewMerger_Defaults(t *testing.T) {
	m := NewMerger("", Thresholds{})
	assert.Equal(t, PreferModel, m.policy)
	assert.Equal(t, DefaultThresholds(), m.thresholds)
}
