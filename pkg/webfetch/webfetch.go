// Package webfetch fetches and cleans web pages for the discovery and
// content stages. It owns per-host rate limiting, retry, and circuit
// breaking; callers get back markdown content, the page title, and the
// outbound links, or the raw bytes for binary documents.
package webfetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cardlens/benefit-cli/internal/resilience"
)

// Request names one page to fetch. Render asks for a headless-browser pass,
// used for issuers whose card pages need JavaScript.
type Request struct {
	URL    string
	Render bool
}

// Page is the cleaned outcome of one fetch.
type Page struct {
	URL         string
	FinalURL    string
	Title       string
	Markdown    string
	Links       []string
	Anchors     []Anchor
	StatusCode  int
	ContentType string
	Binary      []byte
	IsBinary    bool
	Rendered    bool
	FetchedAt   time.Time
}

// Anchor is one outbound link together with its display context. Card
// discovery reads the text and image to label discovered products; plain
// link walking uses Page.Links.
type Anchor struct {
	URL      string
	Text     string
	ImageURL string
}

// Client fetches pages. Implementations are safe for concurrent use.
type Client interface {
	Fetch(ctx context.Context, req Request) (*Page, error)
	Close() error
}

// Renderer produces fully-rendered HTML for JavaScript-heavy pages.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

type client struct {
	http     *http.Client
	ua       string
	timeout  time.Duration
	policy   resilience.Policy
	breakers *resilience.BreakerSet
	renderer Renderer
	maxBody  int64

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configures the client.
type Option func(*client)

func WithUserAgent(ua string) Option {
	return func(c *client) { c.ua = ua }
}

func WithTimeout(d time.Duration) Option {
	return func(c *client) { c.timeout = d }
}

func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *client) { c.policy = p }
}

func WithBreakers(set *resilience.BreakerSet) Option {
	return func(c *client) { c.breakers = set }
}

// WithPerHostRate sets the polite-crawl budget applied to every host.
func WithPerHostRate(limit rate.Limit, burst int) Option {
	return func(c *client) { c.limit, c.burst = limit, burst }
}

func WithRenderer(r Renderer) Option {
	return func(c *client) { c.renderer = r }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

func WithMaxBodyBytes(n int64) Option {
	return func(c *client) { c.maxBody = n }
}

// New builds a fetch client. Without options it fetches politely (2 req/s
// per host), retries transient failures, and trips a per-host breaker after
// repeated ones.
func New(opts ...Option) Client {
	c := &client{
		ua:       "benefit-cli/1.0",
		timeout:  30 * time.Second,
		policy:   resilience.DefaultPolicy(),
		breakers: resilience.NewBreakerSet(resilience.DefaultBreakerConfig()),
		maxBody:  10 << 20,
		limit:    2,
		burst:    4,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout: c.timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return c
}

func (c *client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(c.limit, c.burst)
		c.limiters[host] = lim
	}
	return lim
}

// Fetch retrieves one page. HTML is cleaned to markdown with links and title
// extracted; PDFs and other binaries come back as raw bytes. Non-2xx
// responses are errors (retried first when the status is transient).
func (c *client) Fetch(ctx context.Context, req Request) (*Page, error) {
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		return nil, eris.Wrapf(err, "webfetch: bad url %q", req.URL)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	host := u.Host
	breaker := c.breakers.For(host)
	limiter := c.limiterFor(host)

	page, err := resilience.RetryVal(ctx, c.policy, "fetch "+host, func(ctx context.Context) (*Page, error) {
		if berr := breaker.Allow(); berr != nil {
			return nil, berr
		}
		if werr := limiter.Wait(ctx); werr != nil {
			return nil, eris.Wrap(werr, "webfetch: rate wait")
		}

		p, ferr := c.fetchOnce(ctx, req)
		breaker.Record(ferr)
		return p, ferr
	})
	if err != nil {
		return nil, err
	}

	page.FetchedAt = time.Now().UTC()
	zap.L().Debug("fetched page",
		zap.String("url", req.URL),
		zap.Int("status", page.StatusCode),
		zap.Bool("rendered", page.Rendered),
		zap.Bool("binary", page.IsBinary),
		zap.Int("links", len(page.Links)),
	)
	return page, nil
}

func (c *client) fetchOnce(ctx context.Context, req Request) (*Page, error) {
	if req.Render && c.renderer != nil {
		return c.fetchRendered(ctx, req.URL)
	}
	return c.fetchHTTP(ctx, req.URL)
}

func (c *client) fetchHTTP(ctx context.Context, rawURL string) (*Page, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "webfetch: build request")
	}
	httpReq.Header.Set("User-Agent", c.ua)
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrapf(err, "webfetch: get %s", rawURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := eris.Errorf("webfetch: status %d for %s", resp.StatusCode, rawURL)
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.MarkTransient(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, eris.Wrapf(err, "webfetch: read body of %s", rawURL)
	}

	page := &Page{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	if isBinaryContent(page.ContentType, page.FinalURL) {
		page.IsBinary = true
		page.Binary = body
		return page, nil
	}

	cleanInto(page, string(body))
	return page, nil
}

func (c *client) fetchRendered(ctx context.Context, rawURL string) (*Page, error) {
	html, err := c.renderer.Render(ctx, rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "webfetch: render %s", rawURL)
	}

	page := &Page{
		URL:         rawURL,
		FinalURL:    rawURL,
		StatusCode:  http.StatusOK,
		ContentType: "text/html",
		Rendered:    true,
	}
	cleanInto(page, html)
	return page, nil
}

func (c *client) Close() error {
	if c.renderer != nil {
		return c.renderer.Close()
	}
	return nil
}

func isBinaryContent(contentType, finalURL string) bool {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/pdf"):
		return true
	case strings.Contains(ct, "text/html"), strings.Contains(ct, "text/plain"),
		strings.Contains(ct, "application/xhtml"):
		return false
	case ct == "":
		return strings.HasSuffix(strings.ToLower(finalURL), ".pdf")
	case strings.Contains(ct, "application/octet-stream"):
		return true
	default:
		return !strings.HasPrefix(ct, "text/")
	}
}
