package model

import "time"

// ExtractionMethod records how a benefit was produced. A benefit found by
// both methods and merged keeps MethodHybrid.
type ExtractionMethod string

const (
	MethodPattern ExtractionMethod = "pattern"
	MethodModel   ExtractionMethod = "model"
	MethodHybrid  ExtractionMethod = "hybrid"
)

// ConfidenceLevel buckets numeric confidence for display and filtering.
// Bucketing policy lives in the aggregate package; nothing else should
// compare raw confidence floats against thresholds.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ExtractedBenefit is one unit of structured benefit intelligence. Benefits
// are immutable once aggregated; a user edit is a delete plus recreate.
type ExtractedBenefit struct {
	ID          string `json:"id"`
	Pipeline    string `json:"pipeline"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`

	Value        string   `json:"value,omitempty"`
	ValueNumeric *float64 `json:"value_numeric,omitempty"`
	ValueUnit    string   `json:"value_unit,omitempty"`
	Conditions   []string `json:"conditions,omitempty"`
	Limitations  []string `json:"limitations,omitempty"`

	CategoryTags []string `json:"category_tags,omitempty"`
	Merchants    []string `json:"merchants,omitempty"`

	SourceURL   string   `json:"source_url"`
	SourceTitle string   `json:"source_title,omitempty"`
	SourceURLs  []string `json:"source_urls,omitempty"`

	Method          ExtractionMethod `json:"method"`
	Confidence      float64          `json:"confidence"`
	ConfidenceLevel ConfidenceLevel  `json:"confidence_level"`
	ExtractedAt     time.Time        `json:"extracted_at"`
}

// SourceStats counts how a pipeline run treated the record's sources.
type SourceStats struct {
	SourcesTotal       int `json:"sources_total"`
	SourcesRelevant    int `json:"sources_relevant"`
	SourcesProcessed   int `json:"sources_processed"`
	PatternExtractions int `json:"pattern_extractions"`
	ModelExtractions   int `json:"model_extractions"`
}

// PipelineResult is the output of one named pipeline over one raw record.
// A failed pipeline still yields a result, with Success false and the cause
// in Errors; sibling pipelines are unaffected.
type PipelineResult struct {
	Pipeline    string             `json:"pipeline"`
	BenefitType string             `json:"benefit_type"`
	Success     bool               `json:"success"`
	Benefits    []ExtractedBenefit `json:"benefits"`
	Stats       SourceStats        `json:"stats"`
	StartedAt   time.Time          `json:"started_at"`
	DurationMS  int64              `json:"duration_ms"`
	Errors      []string           `json:"errors,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
}

// AggregateStats summarizes an aggregated benefit set.
type AggregateStats struct {
	Total            int `json:"total"`
	HighConfidence   int `json:"high_confidence"`
	MediumConfidence int `json:"medium_confidence"`
	LowConfidence    int `json:"low_confidence"`
	ByPattern        int `json:"by_pattern"`
	ByModel          int `json:"by_model"`
	ByHybrid         int `json:"by_hybrid"`
	SourcesProcessed int `json:"sources_processed"`
	SourcesRelevant  int `json:"sources_relevant"`
}
