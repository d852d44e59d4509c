package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cardlens/benefit-cli/internal/crawl"
	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/relevance"
	"github.com/cardlens/benefit-cli/pkg/pdftext"
	"github.com/cardlens/benefit-cli/pkg/webfetch"
)

// DiscoverCards fetches the bank's card listing pages and records the
// products found there. Bank seeds only.
func (m *Manager) DiscoverCards(ctx context.Context, id string) ([]model.CandidateCard, error) {
	var cards []model.CandidateCard
	err := m.withSession(ctx, id, "discover cards", func(s *model.Session) error {
		if err := requirePhase(s, "discover cards", model.PhaseCreated); err != nil {
			return err
		}
		if s.Seed.Kind != model.SeedBank {
			return &ConfigError{Reason: "card discovery requires a bank seed"}
		}
		bank, ok := m.deps.Registry.Bank(s.Seed.BankKey)
		if !ok {
			return &ConfigError{Reason: "unknown bank key " + s.Seed.BankKey}
		}

		found, err := m.deps.Discoverer.DiscoverCards(ctx, bank, s.Config.BypassCache)
		if err != nil {
			return eris.Wrapf(err, "session %s: discover cards", id)
		}

		s.Cards = found
		s.Phase = model.PhaseCardsDiscovered
		s.UpdatedAt = time.Now().UTC()
		cards = append([]model.CandidateCard(nil), found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// SelectCards marks the chosen cards. Every id must name a discovered card.
func (m *Manager) SelectCards(ctx context.Context, id string, cardIDs []string) error {
	return m.withSession(ctx, id, "select cards", func(s *model.Session) error {
		if err := requirePhase(s, "select cards", model.PhaseCardsDiscovered); err != nil {
			return err
		}
		if len(cardIDs) == 0 {
			return &ConfigError{Reason: "no cards selected"}
		}

		byID := make(map[string]int, len(s.Cards))
		for i, c := range s.Cards {
			byID[c.ID] = i
		}
		for _, cid := range cardIDs {
			if _, ok := byID[cid]; !ok {
				return &ConfigError{Reason: "unknown card id " + cid}
			}
		}

		want := make(map[string]bool, len(cardIDs))
		for _, cid := range cardIDs {
			want[cid] = true
		}
		for i := range s.Cards {
			s.Cards[i].Selected = want[s.Cards[i].ID]
		}
		s.Phase = model.PhaseCardsSelected
		s.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// DiscoverURLs expands the session's seeds breadth-first into candidate
// URLs. Bank seeds expand from the selected cards; url seeds expand from the
// seed itself; text and document seeds become their own single depth-0
// candidate, skipping the card phases entirely.
func (m *Manager) DiscoverURLs(ctx context.Context, id string) ([]model.CandidateURL, error) {
	var out []model.CandidateURL
	err := m.withSession(ctx, id, "discover urls", func(s *model.Session) error {
		keywords := s.Config.Keywords
		if len(keywords) == 0 {
			keywords = relevance.DefaultKeywords
		}

		var cands []model.CandidateURL
		switch s.Seed.Kind {
		case model.SeedText, model.SeedDocument:
			if err := requirePhase(s, "discover urls", model.PhaseCreated); err != nil {
				return err
			}
			cands = []model.CandidateURL{seedCandidate(s, keywords)}

		case model.SeedURL:
			if err := requirePhase(s, "discover urls", model.PhaseCreated); err != nil {
				return err
			}
			found, err := m.deps.Discoverer.DiscoverURLs(ctx, crawl.Params{
				Seeds:       []string{s.Seed.URL},
				Keywords:    keywords,
				HighCutoff:  s.Config.HighTierCutoff,
				MaxDepth:    s.Config.MaxDepth,
				FollowLinks: s.Config.FollowLinks,
				BypassCache: s.Config.BypassCache,
			})
			if err != nil {
				return eris.Wrapf(err, "session %s: discover urls", id)
			}
			cands = found

		case model.SeedBank:
			if err := requirePhase(s, "discover urls", model.PhaseCardsSelected); err != nil {
				return err
			}
			bank, ok := m.deps.Registry.Bank(s.Seed.BankKey)
			if !ok {
				return &ConfigError{Reason: "unknown bank key " + s.Seed.BankKey}
			}
			var seeds []string
			for _, c := range s.Cards {
				if c.Selected {
					seeds = append(seeds, c.URL)
				}
			}
			if len(seeds) == 0 {
				return &ConfigError{Reason: "no selected cards to expand"}
			}
			found, err := m.deps.Discoverer.DiscoverURLs(ctx, crawl.Params{
				Seeds:        seeds,
				AllowedHosts: bank.Domains,
				ExcludeTerms: bank.ExcludePatterns,
				Keywords:     keywords,
				HighCutoff:   s.Config.HighTierCutoff,
				MaxDepth:     s.Config.MaxDepth,
				FollowLinks:  s.Config.FollowLinks,
				BypassCache:  s.Config.BypassCache,
				RenderSeeds:  bank.RequiresJS,
			})
			if err != nil {
				return eris.Wrapf(err, "session %s: discover urls", id)
			}
			cands = found

		default:
			return &ConfigError{Reason: "unknown seed kind " + string(s.Seed.Kind)}
		}

		s.Candidates = cands
		s.Phase = model.PhaseURLsDiscovered
		s.UpdatedAt = time.Now().UTC()
		out = append([]model.CandidateURL(nil), cands...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// seedCandidate indexes a text or document seed as a depth-0 candidate of
// its own, under a synthetic URL that names the session.
func seedCandidate(s *model.Session, keywords []string) model.CandidateURL {
	if s.Seed.Kind == model.SeedDocument {
		name := s.Seed.DocumentName
		if name == "" {
			name = "upload.pdf"
		}
		return model.CandidateURL{
			URL:     "document://" + s.ID + "/" + name,
			Title:   name,
			DocType: model.DocTypeBinary,
			Depth:   0,
			Tier:    relevance.Score(name, keywords, s.Config.HighTierCutoff).Tier,
		}
	}
	return model.CandidateURL{
		URL:     "text://" + s.ID,
		Title:   "Pasted text",
		DocType: model.DocTypePage,
		Depth:   0,
		Tier:    relevance.Score(s.Seed.Text, keywords, s.Config.HighTierCutoff).Tier,
	}
}

// SelectURLs marks the chosen candidates, matched by normalized URL.
func (m *Manager) SelectURLs(ctx context.Context, id string, urls []string) error {
	return m.withSession(ctx, id, "select urls", func(s *model.Session) error {
		if err := requirePhase(s, "select urls", model.PhaseURLsDiscovered); err != nil {
			return err
		}
		if len(urls) == 0 {
			return &ConfigError{Reason: "no urls selected"}
		}

		byNorm := make(map[string]int, len(s.Candidates))
		for i, c := range s.Candidates {
			byNorm[webfetch.NormalizeURL(c.URL)] = i
		}
		want := make(map[int]bool, len(urls))
		for _, u := range urls {
			i, ok := byNorm[webfetch.NormalizeURL(u)]
			if !ok {
				return &ConfigError{Reason: "url not in candidate set: " + u}
			}
			want[i] = true
		}

		for i := range s.Candidates {
			s.Candidates[i].Selected = want[i]
		}
		s.Phase = model.PhaseURLsSelected
		s.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// FetchContent fetches every selected candidate into a source. Fetches run
// concurrently under the manager's bound and all join before the phase
// advances; a failed fetch records its error on that source and blocks
// nothing else. The default review status is applied here: approved when the
// fetch succeeded and the content clears the length threshold, pending
// otherwise.
func (m *Manager) FetchContent(ctx context.Context, id string) ([]model.Source, error) {
	var out []model.Source
	err := m.withSession(ctx, id, "fetch content", func(s *model.Session) error {
		if err := requirePhase(s, "fetch content", model.PhaseURLsSelected); err != nil {
			return err
		}

		var selected []model.CandidateURL
		for _, c := range s.Candidates {
			if c.Selected {
				selected = append(selected, c)
			}
		}
		if len(selected) == 0 {
			return &ConfigError{Reason: "no selected urls to fetch"}
		}

		sources := make([]model.Source, len(selected))
		if s.Seed.Kind.SingleDocument() {
			for i, cand := range selected {
				sources[i] = m.seedSource(ctx, s, cand)
			}
		} else {
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(m.fetchBatch)
			for i, cand := range selected {
				g.Go(func() error {
					sources[i] = m.fetchSource(gctx, s, cand)
					return nil
				})
			}
			_ = g.Wait()
			if ctx.Err() != nil {
				return eris.Wrap(ctx.Err(), "session: fetch content cancelled")
			}
		}

		failed := 0
		for i := range sources {
			sources[i].Approval = m.defaultApproval(sources[i])
			if sources[i].FetchError != "" {
				failed++
			}
		}

		s.Sources = sources
		s.Phase = model.PhaseContentFetched
		s.UpdatedAt = time.Now().UTC()
		out = append([]model.Source(nil), sources...)

		zap.L().Info("content fetched",
			zap.String("session_id", id),
			zap.Int("fetched", len(sources)-failed),
			zap.Int("failed", failed),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// seedSource materializes the text or document seed as a source without any
// network fetch.
func (m *Manager) seedSource(ctx context.Context, s *model.Session, cand model.CandidateURL) model.Source {
	src := model.Source{
		ID:        uuid.NewString(),
		URL:       cand.URL,
		Title:     cand.Title,
		DocType:   cand.DocType,
		Depth:     0,
		FetchedAt: time.Now().UTC(),
	}
	if s.Seed.Kind == model.SeedText {
		src.Content = s.Seed.Text
		src.ContentLength = len(src.Content)
		return src
	}

	if !s.Config.ProcessDocuments {
		src.Unprocessed = true
		return src
	}
	res, err := pdftext.Extract(ctx, s.Seed.Document)
	if err != nil {
		src.FetchError = fmt.Sprintf("extract document text: %v", err)
		return src
	}
	src.Content = res.Text
	src.ContentLength = len(src.Content)
	return src
}

// fetchSource fetches one candidate, cache-first unless the session bypasses
// the cache. Binary documents are only converted to text when the session
// processes documents; otherwise they are recorded unprocessed.
func (m *Manager) fetchSource(ctx context.Context, s *model.Session, cand model.CandidateURL) model.Source {
	src := model.Source{
		ID:        uuid.NewString(),
		URL:       cand.URL,
		Title:     cand.Title,
		DocType:   cand.DocType,
		Depth:     cand.Depth,
		FetchedAt: time.Now().UTC(),
	}

	var page *webfetch.Page
	if !s.Config.BypassCache {
		if cached, ok := m.deps.PageCache.Get(ctx, cand.URL); ok {
			page = cached
			src.FromCache = true
		}
	}
	if page == nil {
		fetched, err := m.deps.Fetcher.Fetch(ctx, webfetch.Request{URL: cand.URL})
		if err != nil {
			src.FetchError = err.Error()
			zap.L().Warn("source fetch failed",
				zap.String("url", cand.URL),
				zap.Error(err),
			)
			return src
		}
		page = fetched
		m.deps.PageCache.Put(ctx, cand.URL, page)
	}

	if page.IsBinary || cand.DocType == model.DocTypeBinary {
		src.DocType = model.DocTypeBinary
		if !s.Config.ProcessDocuments {
			src.Unprocessed = true
			return src
		}
		res, err := pdftext.Extract(ctx, page.Binary)
		if err != nil {
			src.FetchError = fmt.Sprintf("extract document text: %v", err)
			return src
		}
		src.Content = res.Text
		src.ContentLength = len(src.Content)
		return src
	}

	if page.Title != "" {
		src.Title = page.Title
	}
	src.Content = page.Markdown
	src.ContentLength = len(src.Content)
	return src
}

func (m *Manager) defaultApproval(src model.Source) model.ApprovalStatus {
	if src.FetchError == "" && !src.Unprocessed && src.ContentLength > m.minApproveChars {
		return model.ApprovalApproved
	}
	return model.ApprovalPending
}

// Review is the approval checksum returned by every review operation: how
// many sources are approved and how many characters of content they carry.
type Review struct {
	Approved   int `json:"approved"`
	TotalChars int `json:"total_chars"`
}

// ApproveSource approves one source by id.
func (m *Manager) ApproveSource(ctx context.Context, id, sourceID string) (*Review, error) {
	return m.review(ctx, id, "approve source", func(s *model.Session) error {
		return setApproval(s, sourceID, model.ApprovalApproved)
	})
}

// RejectSource rejects one source by id.
func (m *Manager) RejectSource(ctx context.Context, id, sourceID string) (*Review, error) {
	return m.review(ctx, id, "reject source", func(s *model.Session) error {
		return setApproval(s, sourceID, model.ApprovalRejected)
	})
}

// ApproveAll applies the default auto-selection to every source: approved
// when the fetch succeeded and the content clears the length threshold,
// rejected otherwise. Individual approvals can still override afterwards.
func (m *Manager) ApproveAll(ctx context.Context, id string) (*Review, error) {
	return m.review(ctx, id, "approve all", func(s *model.Session) error {
		for i := range s.Sources {
			if m.defaultApproval(s.Sources[i]) == model.ApprovalApproved {
				s.Sources[i].Approval = model.ApprovalApproved
			} else {
				s.Sources[i].Approval = model.ApprovalRejected
			}
		}
		return nil
	})
}

// review wraps one approval mutation: phase check, the mutation, the move to
// sources_reviewed, and the approval checksum.
func (m *Manager) review(ctx context.Context, id, op string, mutate func(*model.Session) error) (*Review, error) {
	var rev Review
	err := m.withSession(ctx, id, op, func(s *model.Session) error {
		if err := requirePhase(s, op, model.PhaseContentFetched, model.PhaseSourcesReviewed); err != nil {
			return err
		}
		if err := mutate(s); err != nil {
			return err
		}
		s.Phase = model.PhaseSourcesReviewed
		s.UpdatedAt = time.Now().UTC()
		rev = reviewSummary(s.Sources)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func setApproval(s *model.Session, sourceID string, status model.ApprovalStatus) error {
	for i := range s.Sources {
		if s.Sources[i].ID == sourceID {
			s.Sources[i].Approval = status
			return nil
		}
	}
	return eris.Wrapf(ErrNotFound, "source %s", sourceID)
}

func reviewSummary(sources []model.Source) Review {
	var rev Review
	for _, src := range sources {
		if src.Approval == model.ApprovalApproved {
			rev.Approved++
			rev.TotalChars += src.ContentLength
		}
	}
	return rev
}

// SaveApprovedRaw persists the approved sources as one durable raw record
// and stamps its id on the session.
func (m *Manager) SaveApprovedRaw(ctx context.Context, id string) (string, error) {
	var recordID string
	err := m.withSession(ctx, id, "save approved raw", func(s *model.Session) error {
		if err := requirePhase(s, "save approved raw", model.PhaseSourcesReviewed); err != nil {
			return err
		}

		var approved []model.Source
		total := 0
		for _, src := range s.Sources {
			if src.Approval == model.ApprovalApproved {
				approved = append(approved, src)
				total += src.ContentLength
			}
		}
		if len(approved) == 0 {
			return &ConfigError{Reason: "no approved sources to save"}
		}

		rec := model.RawRecord{
			ID:         uuid.NewString(),
			SessionID:  s.ID,
			SeedURL:    seedURL(s),
			Sources:    approved,
			TotalChars: total,
			CreatedAt:  time.Now().UTC(),
		}
		if s.Seed.Kind == model.SeedBank {
			rec.BankKey = s.Seed.BankKey
			if bank, ok := m.deps.Registry.Bank(s.Seed.BankKey); ok {
				rec.BankName = bank.Name
				rec.SeedURL = bank.CardsPage
			}
		}
		if name, ok := singleSelectedCard(s.Cards); ok {
			rec.CardName = name
		}

		saved, err := m.deps.Store.CreateRawRecord(ctx, rec)
		if err != nil {
			return eris.Wrapf(err, "session %s: save raw record", id)
		}

		s.RecordID = saved.ID
		s.Phase = model.PhaseRawPersisted
		s.UpdatedAt = time.Now().UTC()
		recordID = saved.ID

		zap.L().Info("raw record persisted",
			zap.String("session_id", id),
			zap.String("record_id", saved.ID),
			zap.Int("sources", len(approved)),
			zap.Int("total_chars", total),
		)
		return nil
	})
	if err != nil {
		return "", err
	}
	return recordID, nil
}

func seedURL(s *model.Session) string {
	switch s.Seed.Kind {
	case model.SeedURL:
		return s.Seed.URL
	case model.SeedBank:
		return ""
	default:
		if len(s.Candidates) > 0 {
			return s.Candidates[0].URL
		}
		return ""
	}
}

func singleSelectedCard(cards []model.CandidateCard) (string, bool) {
	name := ""
	count := 0
	for _, c := range cards {
		if c.Selected {
			name = c.Name
			count++
		}
	}
	return name, count == 1
}
