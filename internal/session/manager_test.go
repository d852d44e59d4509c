package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlens/benefit-cli/internal/aggregate"
	"github.com/cardlens/benefit-cli/internal/cache"
	"github.com/cardlens/benefit-cli/internal/chunker"
	"github.com/cardlens/benefit-cli/internal/crawl"
	"github.com/cardlens/benefit-cli/internal/dispatch"
	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/pipeline"
	"github.com/cardlens/benefit-cli/internal/registry"
	"github.com/cardlens/benefit-cli/internal/store"
	"github.com/cardlens/benefit-cli/pkg/webfetch"
)

const cashbackText = `Gold Card benefits. Earn 5% cashback on all dining spend at restaurants
worldwide, and 2% cashback on groceries. Complimentary airport lounge access
across the region. Annual fee waived in the first year for new cardholders.
Travel insurance coverage included for trips booked on the card.`

func newTestManager(t *testing.T, fc *fakeClient, opts ...Option) (*Manager, *memStore) {
	t.Helper()
	reg, err := registry.Load("")
	require.NoError(t, err)

	preg, err := pipeline.Builtin()
	require.NoError(t, err)
	merger := aggregate.NewMerger("", aggregate.Thresholds{})

	st := newMemStore()
	m := NewManager(Deps{
		Registry:   reg,
		Discoverer: crawl.New(fc, cache.Noop{}),
		Fetcher:    fc,
		PageCache:  cache.Noop{},
		Store:      st,
		Chunker:    chunker.New(chunker.DefaultConfig(), reg.Categories()),
		Dispatcher: dispatch.New(reg.PipelineMap()),
		Runner:     pipeline.NewRunner(preg, nil, merger),
		Merger:     merger,
	}, opts...)
	return m, st
}

func urlSeed(u string) model.Seed {
	return model.Seed{Kind: model.SeedURL, URL: u}
}

func TestCreateSession_ValidatesSeed(t *testing.T) {
	m, _ := newTestManager(t, newFakeClient())
	ctx := context.Background()

	_, err := m.CreateSession(ctx, model.Seed{Kind: model.SeedBank, BankKey: "no_such_bank"}, model.SessionConfig{})
	assert.True(t, IsConfigError(err))

	_, err = m.CreateSession(ctx, model.Seed{Kind: model.SeedURL, URL: "not a url"}, model.SessionConfig{})
	assert.True(t, IsConfigError(err))

	_, err = m.CreateSession(ctx, model.Seed{Kind: model.SeedText, Text: "   "}, model.SessionConfig{})
	assert.True(t, IsConfigError(err))

	_, err = m.CreateSession(ctx, urlSeed("https://bank.example/cards/gold"), model.SessionConfig{MaxDepth: 9})
	assert.True(t, IsConfigError(err), "depth beyond the cap is a config error")

	s, err := m.CreateSession(ctx, urlSeed("https://bank.example/cards/gold"), model.SessionConfig{MaxDepth: 1})
	require.NoError(t, err)
	assert.Equal(t, model.PhaseCreated, s.Phase)
	assert.NotEmpty(t, s.ID)
}

func TestSelectURLs_BeforeDiscoveryIsInvalidState(t *testing.T) {
	m, _ := newTestManager(t, newFakeClient())
	ctx := context.Background()

	s, err := m.CreateSession(ctx, urlSeed("https://bank.example/cards/gold"), model.SessionConfig{MaxDepth: 1})
	require.NoError(t, err)

	err = m.SelectURLs(ctx, s.ID, []string{"https://bank.example/cards/gold"})
	require.Error(t, err)
	assert.True(t, IsInvalidState(err))

	// The rejected operation left the session untouched.
	after, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseCreated, after.Phase)
	assert.Empty(t, after.Candidates)
}

func TestEndToEnd_URLSeed(t *testing.T) {
	seed := "https://bank.example/cards/gold"
	fc := newFakeClient().
		page(seed, "Gold Card", cashbackText,
			"https://bank.example/cards/gold/benefits",
			"https://bank.example/cards/gold/fees",
			"https://bank.example/cards/gold/terms.pdf",
		).
		page("https://bank.example/cards/gold/benefits", "Benefits", cashbackText).
		page("https://bank.example/cards/gold/fees", "Fees", cashbackText).
		fail("https://bank.example/cards/gold/terms.pdf", eris.New("simulated fetch failure"))

	m, _ := newTestManager(t, fc)
	ctx := context.Background()

	s, err := m.CreateSession(ctx, urlSeed(seed), model.SessionConfig{
		MaxDepth: 1, FollowLinks: true, ProcessDocuments: true,
	})
	require.NoError(t, err)

	// Discovery: the seed at depth 0 plus its three links at depth 1.
	cands, err := m.DiscoverURLs(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, cands, 4)
	assert.Equal(t, 0, cands[0].Depth)
	for _, c := range cands[1:] {
		assert.Equal(t, 1, c.Depth)
		assert.Equal(t, seed, c.ParentURL)
	}

	var urls []string
	docs := 0
	for _, c := range cands {
		urls = append(urls, c.URL)
		if c.DocType == model.DocTypeBinary {
			docs++
		}
	}
	assert.Equal(t, 1, docs)

	require.NoError(t, m.SelectURLs(ctx, s.ID, urls))

	// Fetch: one simulated failure, recorded on that source only.
	sources, err := m.FetchContent(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, sources, 4)

	var failed, ok int
	for _, src := range sources {
		if src.FetchError != "" {
			failed++
		} else {
			ok++
		}
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, 1, failed)

	// The approval gate auto-selects the three successes.
	rev, err := m.ApproveAll(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, rev.Approved)
	assert.Equal(t, 3*len(cashbackText), rev.TotalChars)

	recordID, err := m.SaveApprovedRaw(ctx, s.ID)
	require.NoError(t, err)
	require.NotEmpty(t, recordID)

	after, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseRawPersisted, after.Phase)
	assert.Equal(t, recordID, after.RecordID)

	// Indexing reports chunk counts per category.
	idx, err := m.IndexVectors(ctx, recordID)
	require.NoError(t, err)
	assert.Greater(t, idx.TotalChunks, 0)
	assert.NotEmpty(t, idx.ByCategory)

	// Pattern-only pipeline run (no model client configured).
	out, err := m.RunPipelines(ctx, recordID, []string{"cashback", "lounge_access"}, true)
	require.NoError(t, err)
	require.Len(t, out.PipelineResults, 2)
	for _, pr := range out.PipelineResults {
		assert.True(t, pr.Success)
	}
	assert.NotEmpty(t, out.Benefits)

	final, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhasePipelinesRun, final.Phase)

	// The terminal phase is re-enterable.
	_, err = m.RunPipelines(ctx, recordID, []string{"cashback"}, false)
	require.NoError(t, err)
}

func TestIndexVectors_BeforeSaveIsInvalidState(t *testing.T) {
	seed := "https://bank.example/cards/gold"
	fc := newFakeClient().page(seed, "Gold Card", cashbackText)
	m, _ := newTestManager(t, fc)
	ctx := context.Background()

	s, err := m.CreateSession(ctx, urlSeed(seed), model.SessionConfig{MaxDepth: 0})
	require.NoError(t, err)
	_, err = m.DiscoverURLs(ctx, s.ID)
	require.NoError(t, err)
	require.NoError(t, m.SelectURLs(ctx, s.ID, []string{seed}))
	_, err = m.FetchContent(ctx, s.ID)
	require.NoError(t, err)
	_, err = m.ApproveAll(ctx, s.ID)
	require.NoError(t, err)
	recordID, err := m.SaveApprovedRaw(ctx, s.ID)
	require.NoError(t, err)

	// Pipelines before vectorization is out of order.
	_, err = m.RunPipelines(ctx, recordID, nil, false)
	assert.True(t, IsInvalidState(err))

	_, err = m.IndexVectors(ctx, recordID)
	require.NoError(t, err)
	_, err = m.RunPipelines(ctx, recordID, nil, false)
	require.NoError(t, err)
}

func TestTextSeed_SkipsCardPhases(t *testing.T) {
	m, _ := newTestManager(t, newFakeClient())
	ctx := context.Background()

	s, err := m.CreateSession(ctx, model.Seed{Kind: model.SeedText, Text: cashbackText}, model.SessionConfig{})
	require.NoError(t, err)

	// Card discovery never applies to a pasted-text session.
	_, err = m.DiscoverCards(ctx, s.ID)
	assert.True(t, IsConfigError(err))

	cands, err := m.DiscoverURLs(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, 0, cands[0].Depth)
	assert.True(t, strings.HasPrefix(cands[0].URL, "text://"))

	require.NoError(t, m.SelectURLs(ctx, s.ID, []string{cands[0].URL}))
	sources, err := m.FetchContent(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, cashbackText, sources[0].Content)
	assert.Equal(t, model.ApprovalApproved, sources[0].Approval)

	rev, err := m.ApproveAll(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rev.Approved)

	recordID, err := m.SaveApprovedRaw(ctx, s.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, recordID)
}

func TestDocumentSeed_UnprocessedWithoutFlag(t *testing.T) {
	m, _ := newTestManager(t, newFakeClient())
	ctx := context.Background()

	s, err := m.CreateSession(ctx, model.Seed{
		Kind:         model.SeedDocument,
		DocumentName: "fees.pdf",
		Document:     []byte("%PDF-1.4 not really"),
	}, model.SessionConfig{ProcessDocuments: false})
	require.NoError(t, err)

	cands, err := m.DiscoverURLs(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, model.DocTypeBinary, cands[0].DocType)

	require.NoError(t, m.SelectURLs(ctx, s.ID, []string{cands[0].URL}))
	sources, err := m.FetchContent(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.True(t, sources[0].Unprocessed)
	assert.Empty(t, sources[0].Content)
	assert.Equal(t, model.ApprovalPending, sources[0].Approval)
}

func TestBankSeed_CardFlow(t *testing.T) {
	listing := "https://www.emiratesnbd.com/en/cards/credit-cards"
	fc := newFakeClient().pageWithAnchors(listing, "Credit Cards",
		webfetch.Anchor{URL: "https://www.emiratesnbd.com/en/cards/credit-cards/skywards-infinite-credit-card", Text: "Skywards Infinite"},
		webfetch.Anchor{URL: "https://www.emiratesnbd.com/en/cards/credit-cards/go4it-gold-card", Text: "Go4it Gold"},
	)
	m, _ := newTestManager(t, fc)
	ctx := context.Background()

	s, err := m.CreateSession(ctx, model.Seed{Kind: model.SeedBank, BankKey: "emirates_nbd"}, model.SessionConfig{MaxDepth: 1})
	require.NoError(t, err)

	cards, err := m.DiscoverCards(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, cards, 2)

	// Selecting an unknown card id rejects and stays in cards_discovered.
	err = m.SelectCards(ctx, s.ID, []string{"nope"})
	assert.True(t, IsConfigError(err))
	after, _ := m.Get(s.ID)
	assert.Equal(t, model.PhaseCardsDiscovered, after.Phase)

	require.NoError(t, m.SelectCards(ctx, s.ID, []string{cards[0].ID}))
	after, _ = m.Get(s.ID)
	assert.Equal(t, model.PhaseCardsSelected, after.Phase)

	cands, err := m.DiscoverURLs(ctx, s.ID)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	assert.Equal(t, cards[0].URL, cands[0].URL)
}

func TestConcurrentOperation_IsBusy(t *testing.T) {
	seed := "https://bank.example/cards/gold"
	fc := newFakeClient().page(seed, "Gold Card", cashbackText)
	release := fc.hold(seed)

	m, _ := newTestManager(t, fc)
	ctx := context.Background()

	s, err := m.CreateSession(ctx, urlSeed(seed), model.SessionConfig{MaxDepth: 0})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, derr := m.DiscoverURLs(ctx, s.ID)
		done <- derr
	}()

	// Wait for the in-flight discovery to reach the blocked fetch.
	require.Eventually(t, func() bool {
		return len(fc.fetchedURLs()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	_, err = m.DiscoverURLs(ctx, s.ID)
	assert.True(t, IsBusy(err))

	close(release)
	require.NoError(t, <-done)

	// After the first operation completes, the session accepts work again.
	after, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseURLsDiscovered, after.Phase)
}

func TestReset_RetainsConfig(t *testing.T) {
	seed := "https://bank.example/cards/gold"
	fc := newFakeClient().page(seed, "Gold Card", cashbackText)
	m, _ := newTestManager(t, fc)
	ctx := context.Background()

	cfg := model.SessionConfig{MaxDepth: 1, FollowLinks: true, Keywords: []string{"cashback"}}
	s, err := m.CreateSession(ctx, urlSeed(seed), cfg)
	require.NoError(t, err)
	_, err = m.DiscoverURLs(ctx, s.ID)
	require.NoError(t, err)

	got, err := m.Reset(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseCreated, got.Phase)
	assert.Empty(t, got.Candidates)
	assert.Empty(t, got.Sources)
	assert.Empty(t, got.RecordID)
	assert.Equal(t, cfg, got.Config)

	// The machine restarts from the top.
	_, err = m.DiscoverURLs(ctx, s.ID)
	require.NoError(t, err)
}

func TestDeleteBenefit_IsLocal(t *testing.T) {
	m, st := newTestManager(t, newFakeClient())
	ctx := context.Background()

	rec := model.BenefitRecord{
		RawRecordID: "rr-1",
		Benefits: []model.ExtractedBenefit{
			{ID: "b1", Title: "5% dining cashback", Category: "cashback", Method: model.MethodPattern, Confidence: 0.6, ConfidenceLevel: model.ConfidenceMedium},
			{ID: "b2", Title: "Airport lounge access", Category: "lounge", Method: model.MethodModel, Confidence: 0.8, ConfidenceLevel: model.ConfidenceHigh},
			{ID: "b3", Title: "Airport lounge entry", Category: "lounge", Method: model.MethodPattern, Confidence: 0.6, ConfidenceLevel: model.ConfidenceMedium},
		},
		Stats: model.AggregateStats{Total: 3, HighConfidence: 1, MediumConfidence: 2, ByPattern: 2, ByModel: 1, SourcesProcessed: 2, SourcesRelevant: 2},
	}
	_, err := st.SaveBenefitRecord(ctx, rec)
	require.NoError(t, err)

	got, err := m.DeleteBenefit(ctx, "rr-1", "b1")
	require.NoError(t, err)
	require.Len(t, got.Benefits, 2)

	// Survivors are byte-for-byte what they were: no re-deduplication of the
	// two near-duplicate lounge benefits.
	assert.Equal(t, rec.Benefits[1], got.Benefits[0])
	assert.Equal(t, rec.Benefits[2], got.Benefits[1])

	assert.Equal(t, 2, got.Stats.Total)
	assert.Equal(t, 1, got.Stats.HighConfidence)
	assert.Equal(t, 1, got.Stats.MediumConfidence)
	assert.Equal(t, 2, got.Stats.SourcesProcessed)

	_, err = m.DeleteBenefit(ctx, "rr-1", "no-such-benefit")
	assert.Error(t, err)
}

func TestSweepExpired(t *testing.T) {
	m, _ := newTestManager(t, newFakeClient(), WithIdleTTL(time.Nanosecond))
	ctx := context.Background()

	_, err := m.CreateSession(ctx, urlSeed("https://bank.example/a"), model.SessionConfig{})
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, urlSeed("https://bank.example/b"), model.SessionConfig{})
	require.NoError(t, err)
	require.Equal(t, 2, m.LiveCount())

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, m.SweepExpired(ctx))
	assert.Equal(t, 0, m.LiveCount())
}

func TestDelete_DuringInFlightOperation_DropsSnapshot(t *testing.T) {
	seed := "https://bank.example/cards/gold"
	fc := newFakeClient().page(seed, "Gold Card", cashbackText)
	release := fc.hold(seed)

	m, st := newTestManager(t, fc)
	ctx := context.Background()

	s, err := m.CreateSession(ctx, urlSeed(seed), model.SessionConfig{MaxDepth: 0})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, derr := m.DiscoverURLs(ctx, s.ID)
		done <- derr
	}()
	require.Eventually(t, func() bool {
		return len(fc.fetchedURLs()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	// Delete while discovery is still blocked on the fetch.
	require.NoError(t, m.Delete(ctx, s.ID))

	close(release)
	require.NoError(t, <-done)

	// The completed operation must not write the deleted session back.
	_, err = st.GetSession(ctx, s.ID)
	assert.True(t, eris.Is(err, store.ErrNotFound))
}

func TestRunPipelines_EmptyNamesUseDispatchedCategories(t *testing.T) {
	seed := "https://bank.example/cards/gold"
	fc := newFakeClient().page(seed, "Gold Card", cashbackText)
	m, _ := newTestManager(t, fc)
	ctx := context.Background()

	s, err := m.CreateSession(ctx, urlSeed(seed), model.SessionConfig{MaxDepth: 0})
	require.NoError(t, err)
	_, err = m.DiscoverURLs(ctx, s.ID)
	require.NoError(t, err)
	require.NoError(t, m.SelectURLs(ctx, s.ID, []string{seed}))
	_, err = m.FetchContent(ctx, s.ID)
	require.NoError(t, err)
	_, err = m.ApproveAll(ctx, s.ID)
	require.NoError(t, err)
	recordID, err := m.SaveApprovedRaw(ctx, s.ID)
	require.NoError(t, err)
	_, err = m.IndexVectors(ctx, recordID)
	require.NoError(t, err)

	cats := m.indexedCategories(recordID)
	require.NotEmpty(t, cats)
	dispatched := m.DispatchPipelines(cats)
	require.NotEmpty(t, dispatched)

	// Empty names run the dispatched union, not every registered pipeline.
	out, err := m.RunPipelines(ctx, recordID, nil, false)
	require.NoError(t, err)
	var ran []string
	for _, pr := range out.PipelineResults {
		ran = append(ran, pr.Pipeline)
	}
	assert.ElementsMatch(t, dispatched, ran)

	preg, err := pipeline.Builtin()
	require.NoError(t, err)
	assert.Less(t, len(ran), len(preg.Names()))
}

func TestDispatchPipelines_Union(t *testing.T) {
	m, _ := newTestManager(t, newFakeClient())

	// cashback and fees map to distinct pipelines; general maps to none.
	got := m.DispatchPipelines([]string{"cashback", "fees", "general", "cashback"})
	assert.Equal(t, []string{"cashback", "fee_waiver"}, got)
}
