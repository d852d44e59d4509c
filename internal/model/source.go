package model

import "time"

// ApprovalStatus is the review state of a fetched source.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Source is the fetched-and-cleaned result of one candidate URL (or of the
// seed itself for text/document seeds). Content is immutable once fetched;
// Approval is the only post-fetch mutation.
type Source struct {
	ID            string         `json:"id"`
	URL           string         `json:"url"`
	Title         string         `json:"title,omitempty"`
	DocType       DocType        `json:"doc_type"`
	Depth         int            `json:"depth"`
	Content       string         `json:"content"`
	ContentLength int            `json:"content_length"`
	FetchError    string         `json:"fetch_error,omitempty"`
	FetchedAt     time.Time      `json:"fetched_at"`
	FromCache     bool           `json:"from_cache,omitempty"`
	Approval      ApprovalStatus `json:"approval"`

	// Unprocessed marks a binary document that was recorded but not turned
	// into text because process_documents was off.
	Unprocessed bool `json:"unprocessed,omitempty"`
}

// CategoryGeneral is the fallback chunk category when no keyword row
// matches. It dispatches to no extraction pipeline.
const CategoryGeneral = "general"

// Chunk is a bounded, categorized slice of one source's content. Chunks tile
// the source text in ordinal order: concatenating them reconstructs the
// content, with up to the overlap window repeated at split boundaries.
type Chunk struct {
	ID          string `json:"id"`
	SourceID    string `json:"source_id"`
	Ordinal     int    `json:"ordinal"`
	Text        string `json:"text"`
	CharCount   int    `json:"char_count"`
	Category    string `json:"category"`
	PageType    string `json:"page_type,omitempty"`
	SourceURL   string `json:"source_url"`
	SourceTitle string `json:"source_title,omitempty"`
	SeedURL     string `json:"seed_url,omitempty"`
	CardName    string `json:"card_name,omitempty"`
	BankKey     string `json:"bank_key,omitempty"`
	BankName    string `json:"bank_name,omitempty"`
}

// IndexResult is what vector indexing reports back to the orchestrator.
type IndexResult struct {
	TotalChunks int            `json:"total_chunks"`
	ByCategory  map[string]int `json:"by_category"`
	BySource    map[string]int `json:"by_source"`
}
