// Package chunker splits fetched source content into category-tagged chunks
// sized for indexing and extraction. Splitting follows paragraph boundaries,
// merges fragments below the minimum, and hard-splits oversized paragraphs
// with overlap so no text is ever dropped.
package chunker

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/registry"
)

// Config bounds chunk sizes in characters.
type Config struct {
	MinChars int `yaml:"min_chars" mapstructure:"min_chars"`
	MaxChars int `yaml:"max_chars" mapstructure:"max_chars"`
	Overlap  int `yaml:"overlap" mapstructure:"overlap"`
}

// DefaultConfig matches the sizes the extraction pipelines are tuned for.
func DefaultConfig() Config {
	return Config{MinChars: 80, MaxChars: 800, Overlap: 50}
}

// Meta carries the session-level attribution stamped onto every chunk.
type Meta struct {
	SeedURL  string
	CardName string
	BankKey  string
	BankName string
}

// Chunker is safe for concurrent use once built.
type Chunker struct {
	cfg  Config
	cats []registry.CategoryKeywords
}

func New(cfg Config, cats []registry.CategoryKeywords) *Chunker {
	if cfg.MaxChars <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.Overlap >= cfg.MaxChars {
		cfg.Overlap = cfg.MaxChars / 4
	}
	return &Chunker{cfg: cfg, cats: cats}
}

// Chunks splits one source's content and tags each chunk with its category,
// page type, and provenance. An empty or whitespace-only source yields nil.
func (c *Chunker) Chunks(src model.Source, m Meta) []model.Chunk {
	parts := c.split(src.Content)
	if len(parts) == 0 {
		return nil
	}

	pageType := DetectPageType(src.URL)
	chunks := make([]model.Chunk, 0, len(parts))
	for i, text := range parts {
		chunks = append(chunks, model.Chunk{
			ID:          chunkID(src.ID, i, text),
			SourceID:    src.ID,
			Ordinal:     i,
			Text:        text,
			CharCount:   utf8.RuneCountInString(text),
			Category:    c.categorize(text),
			PageType:    pageType,
			SourceURL:   src.URL,
			SourceTitle: src.Title,
			SeedURL:     m.SeedURL,
			CardName:    m.CardName,
			BankKey:     m.BankKey,
			BankName:    m.BankName,
		})
	}
	return chunks
}

// split walks paragraphs, packing them into chunks of at most MaxChars.
// A paragraph longer than MaxChars is tiled with Overlap characters carried
// between windows. A trailing chunk below MinChars folds into its
// predecessor so fragments never stand alone.
func (c *Chunker) split(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var out []string
	var buf strings.Builder
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, s)
		}
		buf.Reset()
	}

	for _, p := range paragraphs(text) {
		if utf8.RuneCountInString(p) > c.cfg.MaxChars {
			flush()
			out = append(out, c.tile(p)...)
			continue
		}
		if buf.Len() > 0 && utf8.RuneCountInString(buf.String())+utf8.RuneCountInString(p)+2 > c.cfg.MaxChars {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}
	flush()

	if n := len(out); n > 1 && utf8.RuneCountInString(out[n-1]) < c.cfg.MinChars {
		out[n-2] = out[n-2] + "\n\n" + out[n-1]
		out = out[:n-1]
	}
	return out
}

// tile hard-splits one oversized paragraph into MaxChars windows, stepping
// MaxChars-Overlap runes so neighbouring windows share Overlap characters.
func (c *Chunker) tile(p string) []string {
	runes := []rune(p)
	step := c.cfg.MaxChars - c.cfg.Overlap
	if step <= 0 {
		step = c.cfg.MaxChars
	}

	var parts []string
	for start := 0; start < len(runes); start += step {
		end := start + c.cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			parts = append(parts, s)
		}
		if end == len(runes) {
			break
		}
	}
	return parts
}

// categorize scores the chunk against the keyword table. A keyword present
// anywhere counts once; present in a heading line it counts again. Highest
// score wins, earlier table rows win ties, no match files under general.
func (c *Chunker) categorize(text string) string {
	lower := strings.ToLower(text)
	headings := headingLines(lower)

	best, bestScore := model.CategoryGeneral, 0
	for _, row := range c.cats {
		score := 0
		for _, kw := range row.Keywords {
			k := strings.ToLower(strings.TrimSpace(kw))
			if k == "" || !strings.Contains(lower, k) {
				continue
			}
			score++
			if strings.Contains(headings, k) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = row.Category, score
		}
	}
	return best
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func headingLines(lower string) string {
	var b strings.Builder
	for _, line := range strings.Split(lower, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// DetectPageType classifies a source URL by the kind of page it names.
func DetectPageType(url string) string {
	u := strings.ToLower(url)
	switch {
	case containsAny(u, "terms", "condition", "key-fact", "tariff"):
		return "terms"
	case containsAny(u, "fee", "charge", "schedule"):
		return "fees"
	case containsAny(u, "benefit", "feature", "offer", "reward"):
		return "benefits"
	case strings.HasSuffix(u, ".pdf"):
		return "pdf"
	default:
		return "general"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func chunkID(sourceID string, ordinal int, text string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%d:%s", sourceID, ordinal, text)))
	return hex.EncodeToString(sum[:])[:16]
}
