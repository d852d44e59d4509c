package webfetch

import (
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

// cleanInto fills page.Title, page.Markdown, and page.Links from raw HTML.
// Readability strips boilerplate before the markdown pass; links come from
// the full document so navigation targets survive for the crawler.
func cleanInto(page *Page, html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		zap.L().Warn("parse html failed", zap.String("url", page.URL), zap.Error(err))
		page.Markdown = strings.TrimSpace(html)
		return
	}

	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	page.Links, page.Anchors = extractLinks(doc, page.FinalURL)

	content := html
	if article, rerr := readability.FromReader(strings.NewReader(html), mustParse(page.FinalURL)); rerr == nil {
		if strings.TrimSpace(article.Title) != "" {
			page.Title = strings.TrimSpace(article.Title)
		}
		if strings.TrimSpace(article.Content) != "" {
			content = article.Content
		}
	}

	converter := md.NewConverter(page.FinalURL, true, nil)
	markdown, err := converter.ConvertString(content)
	if err != nil {
		zap.L().Warn("markdown conversion failed", zap.String("url", page.URL), zap.Error(err))
		markdown = doc.Text()
	}
	page.Markdown = strings.TrimSpace(markdown)
}

// extractLinks collects absolute, deduplicated anchor targets. Fragments are
// dropped; javascript:, mailto:, tel:, and data: schemes are skipped. The
// first anchor for a URL wins, so its text and image become the display
// context.
func extractLinks(doc *goquery.Document, baseURL string) ([]string, []Anchor) {
	base := mustParse(baseURL)

	var links []string
	var anchors []Anchor
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || skipHref(href) {
			return
		}
		resolved := resolveHref(href, base)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)

		a := Anchor{URL: resolved, Text: strings.Join(strings.Fields(s.Text()), " ")}
		if src, ok := s.Find("img[src]").First().Attr("src"); ok {
			a.ImageURL = resolveHref(src, base)
		}
		anchors = append(anchors, a)
	})
	return links, anchors
}

func skipHref(href string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	if h == "" || strings.HasPrefix(h, "#") {
		return true
	}
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "sms:", "ftp:", "data:"} {
		if strings.HasPrefix(h, scheme) {
			return true
		}
	}
	return false
}

func resolveHref(href string, base *url.URL) string {
	u, err := base.Parse(strings.TrimSpace(href))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func mustParse(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
