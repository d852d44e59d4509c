package model

import "time"

// RawRecord is the durable bundle of a session's approved sources. It is
// created exactly once per session pass through raw persistence and is the
// input handle for indexing and pipeline runs.
type RawRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	BankKey    string    `json:"bank_key,omitempty"`
	BankName   string    `json:"bank_name,omitempty"`
	CardName   string    `json:"card_name,omitempty"`
	SeedURL    string    `json:"seed_url,omitempty"`
	Sources    []Source  `json:"sources"`
	TotalChars int       `json:"total_chars"`
	CreatedAt  time.Time `json:"created_at"`
}

// BenefitRecord holds the aggregated output of one pipeline run over a raw
// record. Deleting a benefit updates the record in place without touching
// the surviving benefits.
type BenefitRecord struct {
	ID              string             `json:"id"`
	RawRecordID     string             `json:"raw_record_id"`
	Benefits        []ExtractedBenefit `json:"benefits"`
	PipelineResults []PipelineResult   `json:"pipeline_results"`
	Stats           AggregateStats     `json:"stats"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// RecordFilter selects raw records when listing.
type RecordFilter struct {
	SessionID string `json:"session_id,omitempty"`
	BankKey   string `json:"bank_key,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// RecordPage is one page of a record listing.
type RecordPage struct {
	Items []RawRecord `json:"items"`
	Total int         `json:"total"`
}
