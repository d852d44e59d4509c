package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlens/benefit-cli/internal/registry"
)

func defaultDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	r, err := registry.Load("")
	require.NoError(t, err)
	return New(r.PipelineMap())
}

func TestPipelines_SingleCategory(t *testing.T) {
	d := defaultDispatcher(t)

	assert.Equal(t, []string{"cashback"}, d.Pipelines([]string{"cashback"}))
	assert.Equal(t, []string{"lounge_access"}, d.Pipelines([]string{"lounge"}))
	assert.Equal(t, []string{"fee_waiver"}, d.Pipelines([]string{"fees"}))
}

func TestPipelines_UnionOfCategories(t *testing.T) {
	d := defaultDispatcher(t)

	a := d.Pipelines([]string{"cashback"})
	b := d.Pipelines([]string{"travel", "movie"})
	both := d.Pipelines([]string{"cashback", "travel", "movie"})

	want := map[string]bool{}
	for _, p := range a {
		want[p] = true
	}
	for _, p := range b {
		want[p] = true
	}
	got := map[string]bool{}
	for _, p := range both {
		got[p] = true
	}
	assert.Equal(t, want, got)
}

func TestPipelines_ZeroPipelineCategoriesContributeNothing(t *testing.T) {
	d := defaultDispatcher(t)

	assert.Empty(t, d.Pipelines([]string{"eligibility"}))
	assert.Empty(t, d.Pipelines([]string{"general"}))
	assert.Equal(t,
		d.Pipelines([]string{"dining"}),
		d.Pipelines([]string{"dining", "general", "eligibility"}),
	)
}

func TestPipelines_UnknownCategoryIgnored(t *testing.T) {
	d := defaultDispatcher(t)

	assert.Empty(t, d.Pipelines([]string{"cryptozoology"}))
	assert.Equal(t,
		d.Pipelines([]string{"golf"}),
		d.Pipelines([]string{"golf", "cryptozoology"}),
	)
}

func TestPipelines_OrderIndependentAndDeduped(t *testing.T) {
	d := New(map[string][]string{
		"a": {"p1", "p2"},
		"b": {"p2", "p3"},
		"c": {"p1"},
	})

	first := d.Pipelines([]string{"c", "a", "b", "a"})
	second := d.Pipelines([]string{"b", "b", "a", "c"})

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"p1", "p2", "p3"}, first)
}

func TestPipelines_EmptyInput(t *testing.T) {
	d := defaultDispatcher(t)

	assert.Empty(t, d.Pipelines(nil))
	assert.Empty(t, d.Pipelines([]string{"", ""}))
}

func TestCategories_SortedCoverage(t *testing.T) {
	d := defaultDispatcher(t)

	cats := d.Categories()
	assert.Contains(t, cats, "cashback")
	assert.Contains(t, cats, "general")
	assert.Len(t, cats, 12)
}
