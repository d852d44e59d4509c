package server

import (
	"context"

	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/monitoring"
	"github.com/cardlens/benefit-cli/internal/session"
)

// mockSessions implements SessionService with per-method function fields; a
// test sets only the methods its route exercises.
type mockSessions struct {
	createFn      func(ctx context.Context, seed model.Seed, cfg model.SessionConfig) (*model.Session, error)
	getFn         func(id string) (*model.Session, error)
	listFn        func() []model.Session
	resetFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteFn      func(ctx context.Context, id string) error
	discCardsFn   func(ctx context.Context, id string) ([]model.CandidateCard, error)
	selCardsFn    func(ctx context.Context, id string, cardIDs []string) error
	discURLsFn    func(ctx context.Context, id string) ([]model.CandidateURL, error)
	selURLsFn     func(ctx context.Context, id string, urls []string) error
	fetchFn       func(ctx context.Context, id string) ([]model.Source, error)
	approveFn     func(ctx context.Context, id, sourceID string) (*session.Review, error)
	rejectFn      func(ctx context.Context, id, sourceID string) (*session.Review, error)
	approveAllFn  func(ctx context.Context, id string) (*session.Review, error)
	saveRawFn     func(ctx context.Context, id string) (string, error)
	indexFn       func(ctx context.Context, recordID string) (*model.IndexResult, error)
	runFn         func(ctx context.Context, recordID string, names []string, parallel bool) (*session.RunOutput, error)
	getRawFn      func(ctx context.Context, recordID string) (*model.RawRecord, error)
	getBenefitFn  func(ctx context.Context, recordID string) (*model.BenefitRecord, error)
	listRawFn     func(ctx context.Context, filter model.RecordFilter) (*model.RecordPage, error)
	delBenefitFn  func(ctx context.Context, recordID, benefitID string) (*model.BenefitRecord, error)
}

func (m *mockSessions) CreateSession(ctx context.Context, seed model.Seed, cfg model.SessionConfig) (*model.Session, error) {
	return m.createFn(ctx, seed, cfg)
}

func (m *mockSessions) Get(id string) (*model.Session, error) { return m.getFn(id) }

func (m *mockSessions) List() []model.Session {
	if m.listFn == nil {
		return nil
	}
	return m.listFn()
}

func (m *mockSessions) Reset(ctx context.Context, id string) (*model.Session, error) {
	return m.resetFn(ctx, id)
}

func (m *mockSessions) Delete(ctx context.Context, id string) error { return m.deleteFn(ctx, id) }

func (m *mockSessions) DiscoverCards(ctx context.Context, id string) ([]model.CandidateCard, error) {
	return m.discCardsFn(ctx, id)
}

func (m *mockSessions) SelectCards(ctx context.Context, id string, cardIDs []string) error {
	return m.selCardsFn(ctx, id, cardIDs)
}

func (m *mockSessions) DiscoverURLs(ctx context.Context, id string) ([]model.CandidateURL, error) {
	return m.discURLsFn(ctx, id)
}

func (m *mockSessions) SelectURLs(ctx context.Context, id string, urls []string) error {
	return m.selURLsFn(ctx, id, urls)
}

func (m *mockSessions) FetchContent(ctx context.Context, id string) ([]model.Source, error) {
	return m.fetchFn(ctx, id)
}

func (m *mockSessions) ApproveSource(ctx context.Context, id, sourceID string) (*session.Review, error) {
	return m.approveFn(ctx, id, sourceID)
}

func (m *mockSessions) RejectSource(ctx context.Context, id, sourceID string) (*session.Review, error) {
	return m.rejectFn(ctx, id, sourceID)
}

func (m *mockSessions) ApproveAll(ctx context.Context, id string) (*session.Review, error) {
	return m.approveAllFn(ctx, id)
}

func (m *mockSessions) SaveApprovedRaw(ctx context.Context, id string) (string, error) {
	return m.saveRawFn(ctx, id)
}

func (m *mockSessions) IndexVectors(ctx context.Context, recordID string) (*model.IndexResult, error) {
	return m.indexFn(ctx, recordID)
}

func (m *mockSessions) RunPipelines(ctx context.Context, recordID string, names []string, parallel bool) (*session.RunOutput, error) {
	return m.runFn(ctx, recordID, names, parallel)
}

func (m *mockSessions) GetRawRecord(ctx context.Context, recordID string) (*model.RawRecord, error) {
	return m.getRawFn(ctx, recordID)
}

func (m *mockSessions) GetBenefitRecord(ctx context.Context, recordID string) (*model.BenefitRecord, error) {
	return m.getBenefitFn(ctx, recordID)
}

func (m *mockSessions) ListRawRecords(ctx context.Context, filter model.RecordFilter) (*model.RecordPage, error) {
	return m.listRawFn(ctx, filter)
}

func (m *mockSessions) DeleteBenefit(ctx context.Context, recordID, benefitID string) (*model.BenefitRecord, error) {
	return m.delBenefitFn(ctx, recordID, benefitID)
}

type mockCollector struct {
	snap *monitoring.MetricsSnapshot
	err  error
}

func (m *mockCollector) Collect(context.Context, int) (*monitoring.MetricsSnapshot, error) {
	return m.snap, m.err
}
