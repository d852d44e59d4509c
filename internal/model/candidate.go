package model

// DocType classifies a discovered URL by what fetching it yields.
type DocType string

const (
	DocTypePage   DocType = "page"
	DocTypeBinary DocType = "binary-document"
)

// Tier is the relevance tier assigned by the relevance scorer.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// CandidateCard is a product discovered on a bank-wide seed's listing pages.
// Only the Selected flag mutates after discovery.
type CandidateCard struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Selected bool   `json:"selected"`
}

// CandidateURL is a document URL discovered during BFS expansion. The URL is
// normalized and unique within a session. Depth of a URL found on parent P is
// depth(P)+1; the seed itself sits at depth 0.
type CandidateURL struct {
	URL       string  `json:"url"`
	Title     string  `json:"title,omitempty"`
	DocType   DocType `json:"doc_type"`
	Depth     int     `json:"depth"`
	Tier      Tier    `json:"tier"`
	ParentURL string  `json:"parent_url,omitempty"`
	Selected  bool    `json:"selected"`

	// FetchError records a discovery-time fetch failure for this node. The
	// node stays in the candidate set; its children are simply unknown.
	FetchError string `json:"fetch_error,omitempty"`
}
