package webfetch

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// ChromeRenderer runs a long-lived headless Chrome and returns rendered
// outer HTML per URL. Construct once, Close on shutdown.
type ChromeRenderer struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	browserCtx  context.Context
	cancelBr    context.CancelFunc

	settle time.Duration
}

// NewChromeRenderer starts the browser. settle is the extra wait after the
// body is ready, for pages that populate card listings late.
func NewChromeRenderer(userAgent string, settle time.Duration) (*ChromeRenderer, error) {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBr := chromedp.NewContext(allocCtx)

	// Fail fast if Chrome cannot start at all.
	probeCtx, cancel := context.WithTimeout(browserCtx, 15*time.Second)
	defer cancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		cancelBr()
		cancelAlloc()
		return nil, eris.Wrap(err, "webfetch: start headless browser")
	}

	return &ChromeRenderer{
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		browserCtx:  browserCtx,
		cancelBr:    cancelBr,
		settle:      settle,
	}, nil
}

// Render navigates to url and returns the rendered document.
func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	tabCtx, cancel := chromedp.NewContext(r.browserCtx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var tcancel context.CancelFunc
		tabCtx, tcancel = context.WithDeadline(tabCtx, deadline)
		defer tcancel()
	}

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", eris.Wrapf(err, "webfetch: render %s", url)
	}
	return html, nil
}

func (r *ChromeRenderer) Close() error {
	if r.cancelBr != nil {
		r.cancelBr()
	}
	if r.cancelAlloc != nil {
		r.cancelAlloc()
	}
	return nil
}
