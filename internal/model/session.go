package model

import (
	"time"
)

// Phase represents the current stage of an extraction session. Phases
// advance strictly in the order below; only reset moves a session backward.
type Phase string

const (
	PhaseCreated         Phase = "created"
	PhaseCardsDiscovered Phase = "cards_discovered"
	PhaseCardsSelected   Phase = "cards_selected"
	PhaseURLsDiscovered  Phase = "urls_discovered"
	PhaseURLsSelected    Phase = "urls_selected"
	PhaseContentFetched  Phase = "content_fetched"
	PhaseSourcesReviewed Phase = "sources_reviewed"
	PhaseRawPersisted    Phase = "raw_persisted"
	PhaseVectorized      Phase = "vectorized"
	PhasePipelinesRun    Phase = "pipelines_run"
)

// phaseRank orders phases for before/after checks. Higher means later.
var phaseRank = map[Phase]int{
	PhaseCreated:         0,
	PhaseCardsDiscovered: 1,
	PhaseCardsSelected:   2,
	PhaseURLsDiscovered:  3,
	PhaseURLsSelected:    4,
	PhaseContentFetched:  5,
	PhaseSourcesReviewed: 6,
	PhaseRawPersisted:    7,
	PhaseVectorized:      8,
	PhasePipelinesRun:    9,
}

// Rank returns the position of the phase in the session lifecycle, or -1
// for an unknown phase.
func (p Phase) Rank() int {
	r, ok := phaseRank[p]
	if !ok {
		return -1
	}
	return r
}

// Before reports whether p comes strictly earlier than other in the lifecycle.
func (p Phase) Before(other Phase) bool {
	return p.Rank() < other.Rank()
}

// SeedKind identifies what a session was created from.
type SeedKind string

const (
	SeedBank     SeedKind = "bank"     // bank key implying its card listing pages
	SeedURL      SeedKind = "url"      // a single product URL
	SeedText     SeedKind = "text"     // pasted raw text
	SeedDocument SeedKind = "document" // an uploaded binary document
)

// SingleDocument reports whether the seed bypasses card discovery: text and
// document seeds carry their own content and enter the URL phases directly.
func (k SeedKind) SingleDocument() bool {
	return k == SeedText || k == SeedDocument
}

// Seed is the initial input to a session.
type Seed struct {
	Kind         SeedKind `json:"kind"`
	BankKey      string   `json:"bank_key,omitempty"`
	URL          string   `json:"url,omitempty"`
	Text         string   `json:"text,omitempty"`
	DocumentName string   `json:"document_name,omitempty"`
	Document     []byte   `json:"-"`
}

// SessionConfig is the per-session configuration snapshot. It is frozen at
// creation and survives reset.
type SessionConfig struct {
	MaxDepth         int      `json:"max_depth" validate:"gte=0,lte=3"`
	FollowLinks      bool     `json:"follow_links"`
	BypassCache      bool     `json:"bypass_cache"`
	ProcessDocuments bool     `json:"process_documents"`
	Keywords         []string `json:"keywords,omitempty"`
	HighTierCutoff   int      `json:"high_tier_cutoff,omitempty" validate:"gte=0"`
}

// Session is one extraction run. All mutation goes through the session
// manager; everything here is a snapshot for callers.
type Session struct {
	ID        string        `json:"id"`
	Phase     Phase         `json:"phase"`
	Seed      Seed          `json:"seed"`
	Config    SessionConfig `json:"config"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	Cards      []CandidateCard `json:"cards,omitempty"`
	Candidates []CandidateURL  `json:"candidates,omitempty"`
	Sources    []Source        `json:"sources,omitempty"`

	// RecordID is set once approved raw content has been persisted.
	RecordID string `json:"record_id,omitempty"`
}
