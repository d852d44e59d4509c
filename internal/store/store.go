package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cardlens/benefit-cli/internal/model"
)

// ErrNotFound reports a lookup that matched no row. Callers branch on it
// with errors.Is; both backends wrap it with the entity and id.
var ErrNotFound = eris.New("store: not found")

// SessionFilter specifies criteria for listing session snapshots.
type SessionFilter struct {
	Phase  model.Phase `json:"phase,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

// PipelineTally sums pipeline run outcomes across benefit records.
type PipelineTally struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// FailureRate returns the fraction of pipeline runs that failed, or 0 when
// nothing has run.
func (t PipelineTally) FailureRate() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Failed) / float64(t.Total)
}

// Store defines persistence for session snapshots, raw source bundles, and
// aggregated benefit records.
type Store interface {
	// Session snapshots
	SaveSession(ctx context.Context, s model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Raw records
	CreateRawRecord(ctx context.Context, rec model.RawRecord) (*model.RawRecord, error)
	GetRawRecord(ctx context.Context, id string) (*model.RawRecord, error)
	ListRawRecords(ctx context.Context, filter model.RecordFilter) (*model.RecordPage, error)
	DeleteRawRecord(ctx context.Context, id string) error

	// Benefit records, one per raw record, updated in place
	SaveBenefitRecord(ctx context.Context, rec model.BenefitRecord) (*model.BenefitRecord, error)
	GetBenefitRecord(ctx context.Context, rawRecordID string) (*model.BenefitRecord, error)

	// Monitoring counters
	CountSessionsByPhase(ctx context.Context) (map[model.Phase]int, error)
	CountRawRecords(ctx context.Context) (int, error)
	PipelineOutcomes(ctx context.Context, since time.Time) (PipelineTally, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// pipelineCounts extracts the persisted outcome columns from a benefit record.
func pipelineCounts(rec model.BenefitRecord) (total, failed int) {
	total = len(rec.PipelineResults)
	for _, pr := range rec.PipelineResults {
		if !pr.Success {
			failed++
		}
	}
	return total, failed
}
