// Package chunkindex holds a record's chunks in an in-memory full-text
// index. It is the working set the extraction pipelines read: chunks by
// category for dispatch, keyword search for pipeline-specific retrieval.
package chunkindex

import (
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/rotisserie/eris"

	"github.com/cardlens/benefit-cli/internal/model"
)

// Index is safe for concurrent use. Close releases the bleve resources.
type Index struct {
	idx bleve.Index

	mu         sync.RWMutex
	chunks     map[string]model.Chunk
	order      []string
	byCategory map[string][]string
	bySource   map[string]int
}

// New builds an empty in-memory index.
func New() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, eris.Wrap(err, "chunkindex: create index")
	}
	return &Index{
		idx:        idx,
		chunks:     make(map[string]model.Chunk),
		byCategory: make(map[string][]string),
		bySource:   make(map[string]int),
	}, nil
}

// Add indexes chunks. Re-adding an existing chunk ID overwrites it without
// inflating the counts.
func (x *Index) Add(chunks []model.Chunk) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, c := range chunks {
		doc := map[string]any{
			"text":      c.Text,
			"category":  c.Category,
			"page_type": c.PageType,
			"card":      c.CardName,
		}
		if err := x.idx.Index(c.ID, doc); err != nil {
			return eris.Wrapf(err, "chunkindex: index chunk %s", c.ID)
		}

		if _, seen := x.chunks[c.ID]; !seen {
			x.order = append(x.order, c.ID)
			x.byCategory[c.Category] = append(x.byCategory[c.Category], c.ID)
			x.bySource[c.SourceID]++
		}
		x.chunks[c.ID] = c
	}
	return nil
}

// Result summarizes the index for the vectorize stage response.
func (x *Index) Result() model.IndexResult {
	x.mu.RLock()
	defer x.mu.RUnlock()

	byCat := make(map[string]int, len(x.byCategory))
	for cat, ids := range x.byCategory {
		byCat[cat] = len(ids)
	}
	bySrc := make(map[string]int, len(x.bySource))
	for src, n := range x.bySource {
		bySrc[src] = n
	}
	return model.IndexResult{
		TotalChunks: len(x.chunks),
		ByCategory:  byCat,
		BySource:    bySrc,
	}
}

// Categories lists the categories present, in first-seen order.
func (x *Index) Categories() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var cats []string
	seen := make(map[string]bool)
	for _, id := range x.order {
		cat := x.chunks[id].Category
		if !seen[cat] {
			seen[cat] = true
			cats = append(cats, cat)
		}
	}
	return cats
}

// ByCategory returns the category's chunks in insertion order.
func (x *Index) ByCategory(category string) []model.Chunk {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := x.byCategory[category]
	out := make([]model.Chunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, x.chunks[id])
	}
	return out
}

// All returns every chunk in insertion order.
func (x *Index) All() []model.Chunk {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]model.Chunk, 0, len(x.order))
	for _, id := range x.order {
		out = append(out, x.chunks[id])
	}
	return out
}

// Search runs a query-string search over the indexed text and returns the
// matching chunks, best first.
func (x *Index) Search(query string, limit int) ([]model.Chunk, error) {
	if limit <= 0 {
		limit = 50
	}
	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)

	res, err := x.idx.Search(req)
	if err != nil {
		return nil, eris.Wrapf(err, "chunkindex: search %q", query)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]model.Chunk, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if c, ok := x.chunks[hit.ID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (x *Index) Close() error {
	return x.idx.Close()
}
