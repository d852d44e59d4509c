package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cardlens/benefit-cli/internal/chunker"
	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/store"
	"github.com/cardlens/benefit-cli/pkg/chunkindex"
)

// IndexVectors chunks and categorizes a persisted raw record and indexes the
// chunks for category-driven dispatch. Re-indexing a record replaces its
// previous index. The owning session, if still live, moves to vectorized.
func (m *Manager) IndexVectors(ctx context.Context, recordID string) (*model.IndexResult, error) {
	rec, err := m.deps.Store.GetRawRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	var result *model.IndexResult
	err = m.withRecordSession(ctx, rec.SessionID, "index vectors",
		[]model.Phase{model.PhaseRawPersisted, model.PhaseVectorized},
		model.PhaseVectorized,
		func() error {
			idx, err := chunkindex.New()
			if err != nil {
				return eris.Wrap(err, "session: build chunk index")
			}

			meta := chunker.Meta{
				SeedURL:  rec.SeedURL,
				CardName: rec.CardName,
				BankKey:  rec.BankKey,
				BankName: rec.BankName,
			}
			total := 0
			for _, src := range rec.Sources {
				chunks := m.deps.Chunker.Chunks(src, meta)
				if len(chunks) == 0 {
					continue
				}
				if err := idx.Add(chunks); err != nil {
					idx.Close() //nolint:errcheck
					return eris.Wrapf(err, "session: index chunks of %s", src.URL)
				}
				total += len(chunks)
			}

			m.idxMu.Lock()
			if old, ok := m.indexes[recordID]; ok {
				old.Close() //nolint:errcheck
			}
			m.indexes[recordID] = idx
			m.idxMu.Unlock()

			r := idx.Result()
			result = &r

			zap.L().Info("record indexed",
				zap.String("record_id", recordID),
				zap.Int("chunks", total),
				zap.Int("sources", len(rec.Sources)),
			)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ChunksByCategory returns the indexed chunks of one category for a record.
// The record must have been indexed in this process.
func (m *Manager) ChunksByCategory(recordID, category string) ([]model.Chunk, error) {
	m.idxMu.Lock()
	idx, ok := m.indexes[recordID]
	m.idxMu.Unlock()
	if !ok {
		return nil, &ConfigError{Reason: "record " + recordID + " is not indexed"}
	}
	return idx.ByCategory(category), nil
}

// RunOutput is what one pipeline run hands back: the merged benefit set, the
// per-pipeline results it came from, and aggregate statistics.
type RunOutput struct {
	RecordID        string                   `json:"record_id"`
	Benefits        []model.ExtractedBenefit `json:"benefits"`
	PipelineResults []model.PipelineResult   `json:"pipeline_results"`
	Stats           model.AggregateStats     `json:"stats"`
}

// RunPipelines executes the named extraction pipelines over a raw record,
// concurrently when parallel is set, then merges and deduplicates their
// benefits and persists the aggregated record. Empty names run the pipelines
// dispatched from the record's indexed categories, falling back to every
// registered pipeline when the record is not indexed in this process. The
// terminal phase is re-enterable: running pipelines again replaces the
// benefit record without regressing the session.
func (m *Manager) RunPipelines(ctx context.Context, recordID string, names []string, parallel bool) (*RunOutput, error) {
	rec, err := m.deps.Store.GetRawRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	var out *RunOutput
	err = m.withRecordSession(ctx, rec.SessionID, "run pipelines",
		[]model.Phase{model.PhaseVectorized, model.PhasePipelinesRun},
		model.PhasePipelinesRun,
		func() error {
			if len(names) == 0 {
				if cats := m.indexedCategories(recordID); len(cats) > 0 {
					if dispatched := m.DispatchPipelines(cats); len(dispatched) > 0 {
						names = dispatched
					}
				}
			}
			results := m.deps.Runner.Run(ctx, names, rec, parallel)

			benefits := m.aggregateResults(results)
			stats := m.deps.Merger.Stats(benefits, maxProcessed(results), maxRelevant(results))

			benefitRec := model.BenefitRecord{
				ID:              uuid.NewString(),
				RawRecordID:     recordID,
				Benefits:        benefits,
				PipelineResults: results,
				Stats:           stats,
				CreatedAt:       time.Now().UTC(),
				UpdatedAt:       time.Now().UTC(),
			}
			if prev, err := m.deps.Store.GetBenefitRecord(ctx, recordID); err == nil {
				benefitRec.ID = prev.ID
				benefitRec.CreatedAt = prev.CreatedAt
			}

			saved, err := m.deps.Store.SaveBenefitRecord(ctx, benefitRec)
			if err != nil {
				return eris.Wrapf(err, "session: save benefit record for %s", recordID)
			}

			failed := 0
			for _, r := range results {
				if !r.Success {
					failed++
				}
			}
			zap.L().Info("pipelines run",
				zap.String("record_id", recordID),
				zap.Int("pipelines", len(results)),
				zap.Int("failed", failed),
				zap.Int("benefits", len(benefits)),
				zap.Bool("parallel", parallel),
			)

			out = &RunOutput{
				RecordID:        recordID,
				Benefits:        saved.Benefits,
				PipelineResults: saved.PipelineResults,
				Stats:           saved.Stats,
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// aggregateResults runs the two merge tiers over everything the pipelines
// found: first within each source, so pattern and model sightings of one
// benefit collapse, then across sources. Input order does not matter; the
// output is stable for the same result set.
func (m *Manager) aggregateResults(results []model.PipelineResult) []model.ExtractedBenefit {
	bySource := make(map[string][]model.ExtractedBenefit)
	var order []string
	for _, res := range results {
		for _, b := range res.Benefits {
			if _, ok := bySource[b.SourceURL]; !ok {
				order = append(order, b.SourceURL)
			}
			bySource[b.SourceURL] = append(bySource[b.SourceURL], b)
		}
	}

	var merged []model.ExtractedBenefit
	for _, src := range order {
		merged = append(merged, m.deps.Merger.MergeWithinSource(bySource[src])...)
	}
	return m.deps.Merger.MergeAcrossSources(merged)
}

// indexedCategories returns the categories present in the record's
// in-process index, or nil when the record has not been indexed here.
func (m *Manager) indexedCategories(recordID string) []string {
	m.idxMu.Lock()
	idx, ok := m.indexes[recordID]
	m.idxMu.Unlock()
	if !ok {
		return nil
	}
	return idx.Categories()
}

// GetBenefitRecord returns the persisted aggregated record for a raw record.
func (m *Manager) GetBenefitRecord(ctx context.Context, recordID string) (*model.BenefitRecord, error) {
	return m.deps.Store.GetBenefitRecord(ctx, recordID)
}

// GetRawRecord returns a persisted raw record.
func (m *Manager) GetRawRecord(ctx context.Context, recordID string) (*model.RawRecord, error) {
	return m.deps.Store.GetRawRecord(ctx, recordID)
}

// ListRawRecords lists persisted raw records.
func (m *Manager) ListRawRecords(ctx context.Context, filter model.RecordFilter) (*model.RecordPage, error) {
	return m.deps.Store.ListRawRecords(ctx, filter)
}

// DeleteBenefit removes one benefit from a record's persisted view. The
// surviving benefits are untouched: no re-deduplication, only the aggregate
// counts shrink by the deleted entry.
func (m *Manager) DeleteBenefit(ctx context.Context, recordID, benefitID string) (*model.BenefitRecord, error) {
	rec, err := m.deps.Store.GetBenefitRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	kept := make([]model.ExtractedBenefit, 0, len(rec.Benefits))
	found := false
	for _, b := range rec.Benefits {
		if b.ID == benefitID {
			found = true
			continue
		}
		kept = append(kept, b)
	}
	if !found {
		return nil, eris.Wrapf(store.ErrNotFound, "benefit %s", benefitID)
	}

	rec.Benefits = kept
	rec.Stats = m.deps.Merger.Stats(kept, rec.Stats.SourcesProcessed, rec.Stats.SourcesRelevant)
	rec.UpdatedAt = time.Now().UTC()

	saved, err := m.deps.Store.SaveBenefitRecord(ctx, *rec)
	if err != nil {
		return nil, eris.Wrapf(err, "session: delete benefit %s", benefitID)
	}
	zap.L().Info("benefit deleted",
		zap.String("record_id", recordID),
		zap.String("benefit_id", benefitID),
		zap.Int("remaining", len(kept)),
	)
	return saved, nil
}

// withRecordSession serializes a record operation against its owning session
// when that session is still live: the phase is validated up front and
// advanced on success. A session that has expired no longer gates its
// records; the work proceeds against the store alone.
func (m *Manager) withRecordSession(ctx context.Context, sessionID, op string, allowed []model.Phase, next model.Phase, fn func() error) error {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return fn()
	}

	if !e.op.TryLock() {
		return &BusyError{SessionID: sessionID, Op: op}
	}
	defer e.op.Unlock()

	if err := requirePhase(&e.sess, op, allowed...); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}

	e.sess.Phase = next
	e.sess.UpdatedAt = time.Now().UTC()
	m.mu.Lock()
	_, live := m.sessions[sessionID]
	if live {
		e.lastActive = time.Now()
	}
	m.mu.Unlock()
	if live {
		m.persist(ctx, e.sess)
	}
	return nil
}

func maxProcessed(results []model.PipelineResult) int {
	max := 0
	for _, r := range results {
		if r.Stats.SourcesProcessed > max {
			max = r.Stats.SourcesProcessed
		}
	}
	return max
}

func maxRelevant(results []model.PipelineResult) int {
	max := 0
	for _, r := range results {
		if r.Stats.SourcesRelevant > max {
			max = r.Stats.SourcesRelevant
		}
	}
	return max
}
