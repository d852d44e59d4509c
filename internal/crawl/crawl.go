// Package crawl discovers the bounded document graph around a session's
// seed. Bank-wide seeds first discover candidate cards from the issuer's
// listing page; card or plain URL seeds expand breadth-first into candidate
// URLs, one depth level at a time, deduplicated by normalized URL and fenced
// by a host allow-list. Fetch failures during expansion are recorded on the
// candidate, never propagated.
package crawl

import (
	"context"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cardlens/benefit-cli/internal/cache"
	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/relevance"
	"github.com/cardlens/benefit-cli/pkg/webfetch"
)

// defaultSkipTerms drop navigation and service URLs that never carry product
// content. Matched as substrings of the lowercased URL.
var defaultSkipTerms = []string{
	"apply-now", "apply-online", "login", "sign-in", "register",
	"contact-us", "about-us", "career", "investor", "press",
	"privacy", "cookie", "sitemap", "faq", "download-app",
	"locate-us", "atm-locator", "branch", "customer-service",
}

// binaryExts classify a URL as a binary document before it is ever fetched.
var binaryExts = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true,
	".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
}

// Discoverer runs the discovery stages over a fetch client and the shared
// page cache. Safe for concurrent use by independent sessions.
type Discoverer struct {
	client   webfetch.Client
	cache    cache.PageCache
	batch    int
	maxPages int
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithConcurrency bounds how many same-depth fetches run at once.
func WithConcurrency(n int) Option {
	return func(d *Discoverer) {
		if n > 0 {
			d.batch = n
		}
	}
}

// WithMaxPages caps the total candidate count per discovery run.
func WithMaxPages(n int) Option {
	return func(d *Discoverer) {
		if n > 0 {
			d.maxPages = n
		}
	}
}

// New builds a Discoverer. A nil pageCache disables caching.
func New(client webfetch.Client, pageCache cache.PageCache, opts ...Option) *Discoverer {
	d := &Discoverer{
		client:   client,
		cache:    pageCache,
		batch:    5,
		maxPages: 50,
	}
	if d.cache == nil {
		d.cache = cache.Noop{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Params configures one URL discovery run. Seeds sit at depth 0 and are
// candidates themselves; AllowedHosts fences expansion (derived from the
// seeds when empty); ExcludeTerms extend the built-in skip list.
type Params struct {
	Seeds        []string
	AllowedHosts []string
	ExcludeTerms []string
	Keywords     []string
	HighCutoff   int
	MaxDepth     int
	FollowLinks  bool
	BypassCache  bool

	// RenderSeeds fetches depth-0 pages through the headless renderer, for
	// issuers whose listing and card pages need JavaScript.
	RenderSeeds bool
}

// DiscoverURLs expands the seeds breadth-first up to MaxDepth and returns
// every candidate found, in discovery order. A depth level is fully fetched
// before the next level starts. Child URLs found on a parent at depth d join
// at depth d+1; a URL seen at any depth is never re-queued. With FollowLinks
// false only the seeds are expanded. Fetch failures mark the candidate's
// FetchError and cost it its children, nothing else.
func (d *Discoverer) DiscoverURLs(ctx context.Context, p Params) ([]model.CandidateURL, error) {
	if len(p.Seeds) == 0 {
		return nil, eris.New("crawl: no seed urls")
	}
	if p.MaxDepth < 0 {
		return nil, eris.Errorf("crawl: negative max depth %d", p.MaxDepth)
	}

	keywords := p.Keywords
	if len(keywords) == 0 {
		keywords = relevance.DefaultKeywords
	}
	skip := append(append([]string{}, defaultSkipTerms...), lowerAll(p.ExcludeTerms)...)

	allowed := lowerAll(p.AllowedHosts)
	if len(allowed) == 0 {
		hosts, err := seedHosts(p.Seeds)
		if err != nil {
			return nil, err
		}
		allowed = hosts
	}

	var (
		mu         sync.Mutex
		candidates []model.CandidateURL
		index      = make(map[string]int)
	)

	// add appends a candidate unless its normalized URL is already known or
	// the page cap is hit. Callers hold mu.
	add := func(c model.CandidateURL) (int, bool) {
		norm := webfetch.NormalizeURL(c.URL)
		if _, ok := index[norm]; ok {
			return 0, false
		}
		if len(candidates) >= d.maxPages {
			return 0, false
		}
		index[norm] = len(candidates)
		candidates = append(candidates, c)
		return index[norm], true
	}

	for _, seed := range p.Seeds {
		if u, err := url.Parse(seed); err != nil || u.Host == "" {
			return nil, eris.Errorf("crawl: bad seed url %q", seed)
		}
	}

	var frontier []int
	mu.Lock()
	for _, seed := range p.Seeds {
		pos, ok := add(model.CandidateURL{
			URL:     seed,
			DocType: docTypeFor(seed),
			Depth:   0,
			Tier:    relevance.Score(seed, keywords, p.HighCutoff).Tier,
		})
		if ok {
			frontier = append(frontier, pos)
		}
	}
	mu.Unlock()

	for depth := 0; len(frontier) > 0 && depth < p.MaxDepth && (depth == 0 || p.FollowLinks); depth++ {
		var next []int

		// The whole level joins before the next one starts, so every child's
		// depth is its parent's plus one. A fresh group per batch keeps the
		// derived context alive across iterations.
		for start := 0; start < len(frontier); start += d.batch {
			end := start + d.batch
			if end > len(frontier) {
				end = len(frontier)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(d.batch)
			for _, pi := range frontier[start:end] {
				pos := pi
				mu.Lock()
				node := candidates[pos]
				mu.Unlock()
				if node.DocType == model.DocTypeBinary {
					continue
				}

				g.Go(func() error {
					render := p.RenderSeeds && node.Depth == 0
					page, err := d.fetchPage(gctx, node.URL, render, p.BypassCache)

					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						candidates[pos].FetchError = err.Error()
						zap.L().Warn("discovery fetch failed",
							zap.String("url", node.URL),
							zap.Int("depth", node.Depth),
							zap.Error(err),
						)
						return nil
					}

					if page.IsBinary {
						candidates[pos].DocType = model.DocTypeBinary
						return nil
					}
					if page.Title != "" {
						candidates[pos].Title = page.Title
						candidates[pos].Tier = relevance.Score(page.Title+" "+node.URL, keywords, p.HighCutoff).Tier
					}

					for _, link := range page.Links {
						if !hostAllowed(link, allowed) || skippable(link, skip) {
							continue
						}
						child, ok := add(model.CandidateURL{
							URL:       link,
							DocType:   docTypeFor(link),
							Depth:     node.Depth + 1,
							Tier:      relevance.Score(link, keywords, p.HighCutoff).Tier,
							ParentURL: node.URL,
						})
						if ok {
							next = append(next, child)
						}
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, eris.Wrap(err, "crawl: expand level")
			}
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "crawl: discovery cancelled")
			}
		}

		zap.L().Debug("depth level expanded",
			zap.Int("depth", depth),
			zap.Int("fetched", len(frontier)),
			zap.Int("discovered", len(next)),
		)
		frontier = next
	}

	zap.L().Info("url discovery complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("max_depth", p.MaxDepth),
		zap.Int("seeds", len(p.Seeds)),
	)
	return candidates, nil
}

// fetchPage is the cache-first fetch. BypassCache skips the read but the
// result is still written back, so a forced re-crawl refreshes the cache.
func (d *Discoverer) fetchPage(ctx context.Context, rawURL string, render, bypass bool) (*webfetch.Page, error) {
	if !bypass {
		if page, ok := d.cache.Get(ctx, rawURL); ok {
			zap.L().Debug("fetch cache hit", zap.String("url", rawURL))
			return page, nil
		}
	}
	page, err := d.client.Fetch(ctx, webfetch.Request{URL: rawURL, Render: render})
	if err != nil {
		return nil, err
	}
	d.cache.Put(ctx, rawURL, page)
	return page, nil
}

func seedHosts(seeds []string) ([]string, error) {
	var hosts []string
	seen := make(map[string]bool)
	for _, s := range seeds {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return nil, eris.Errorf("crawl: bad seed url %q", s)
		}
		h := strings.ToLower(u.Hostname())
		if !seen[h] {
			seen[h] = true
			hosts = append(hosts, h)
		}
	}
	return hosts, nil
}

// hostAllowed accepts a URL whose host equals an allowed domain or is a
// subdomain of one, so www.bank.example passes an allow-list of bank.example.
func hostAllowed(rawURL string, allowed []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, a := range allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

func skippable(rawURL string, terms []string) bool {
	lower := strings.ToLower(rawURL)
	for _, t := range terms {
		if t != "" && strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func docTypeFor(rawURL string) model.DocType {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.DocTypePage
	}
	if binaryExts[strings.ToLower(path.Ext(u.Path))] {
		return model.DocTypeBinary
	}
	return model.DocTypePage
}

func lowerAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
