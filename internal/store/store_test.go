package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlens/benefit-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleSession(id string, phase model.Phase) model.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return model.Session{
		ID:        id,
		Phase:     phase,
		Seed:      model.Seed{Kind: model.SeedBank, BankKey: "emirates_nbd"},
		Config:    model.SessionConfig{MaxDepth: 2, FollowLinks: true},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func sampleRawRecord(sessionID string) model.RawRecord {
	return model.RawRecord{
		SessionID: sessionID,
		BankKey:   "emirates_nbd",
		BankName:  "Emirates NBD",
		CardName:  "Skywards Infinite",
		Sources: []model.Source{
			{
				ID:       "s1",
				URL:      "https://bank.example/cards/skywards",
				Title:    "Skywards Infinite",
				Content:  "5% cashback on dining, unlimited lounge access",
				Approval: model.ApprovalApproved,
			},
		},
		TotalChars: 46,
	}
}

func sampleBenefitRecord(rawRecordID string) model.BenefitRecord {
	return model.BenefitRecord{
		RawRecordID: rawRecordID,
		Benefits: []model.ExtractedBenefit{
			{ID: "b1", Pipeline: "cashback", Title: "5% Cashback on Dining", Category: "dining", Confidence: 0.8},
		},
		PipelineResults: []model.PipelineResult{
			{Pipeline: "cashback", Success: true},
			{Pipeline: "golf", Success: false, Errors: []string{"no relevant chunks"}},
		},
		Stats: model.AggregateStats{Total: 1, HighConfidence: 1},
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SaveAndGetSession", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		sess := sampleSession("sess-1", model.PhaseCreated)
		require.NoError(t, s.SaveSession(ctx, sess))

		got, err := s.GetSession(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, model.PhaseCreated, got.Phase)
		assert.Equal(t, "emirates_nbd", got.Seed.BankKey)
		assert.Equal(t, 2, got.Config.MaxDepth)
	})

	t.Run("SaveSessionOverwritesSnapshot", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		sess := sampleSession("sess-1", model.PhaseCreated)
		require.NoError(t, s.SaveSession(ctx, sess))

		sess.Phase = model.PhaseCardsDiscovered
		sess.Cards = []model.CandidateCard{{ID: "c1", Name: "Skywards Infinite"}}
		sess.UpdatedAt = sess.UpdatedAt.Add(time.Minute)
		require.NoError(t, s.SaveSession(ctx, sess))

		got, err := s.GetSession(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, model.PhaseCardsDiscovered, got.Phase)
		require.Len(t, got.Cards, 1)
		assert.Equal(t, "Skywards Infinite", got.Cards[0].Name)
	})

	t.Run("GetSessionNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetSession(context.Background(), "nonexistent")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("ListSessionsFilterByPhase", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveSession(ctx, sampleSession("sess-a", model.PhaseCreated)))
		require.NoError(t, s.SaveSession(ctx, sampleSession("sess-b", model.PhaseContentFetched)))
		require.NoError(t, s.SaveSession(ctx, sampleSession("sess-c", model.PhaseContentFetched)))

		all, err := s.ListSessions(ctx, SessionFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		fetched, err := s.ListSessions(ctx, SessionFilter{Phase: model.PhaseContentFetched})
		require.NoError(t, err)
		assert.Len(t, fetched, 2)

		limited, err := s.ListSessions(ctx, SessionFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("DeleteSession", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveSession(ctx, sampleSession("sess-1", model.PhaseCreated)))
		require.NoError(t, s.DeleteSession(ctx, "sess-1"))

		_, err := s.GetSession(ctx, "sess-1")
		assert.True(t, errors.Is(err, ErrNotFound))

		err = s.DeleteSession(ctx, "sess-1")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("CreateAndGetRawRecord", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec, err := s.CreateRawRecord(ctx, sampleRawRecord("sess-1"))
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.False(t, rec.CreatedAt.IsZero())

		got, err := s.GetRawRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "Skywards Infinite", got.CardName)
		require.Len(t, got.Sources, 1)
		assert.Equal(t, model.ApprovalApproved, got.Sources[0].Approval)
		assert.Equal(t, 46, got.TotalChars)
	})

	t.Run("GetRawRecordNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetRawRecord(context.Background(), "nonexistent")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("ListRawRecordsFilterAndPaging", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreateRawRecord(ctx, sampleRawRecord("sess-1"))
		require.NoError(t, err)
		_, err = s.CreateRawRecord(ctx, sampleRawRecord("sess-1"))
		require.NoError(t, err)

		other := sampleRawRecord("sess-2")
		other.BankKey = "fab"
		_, err = s.CreateRawRecord(ctx, other)
		require.NoError(t, err)

		page, err := s.ListRawRecords(ctx, model.RecordFilter{})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Len(t, page.Items, 3)

		bySession, err := s.ListRawRecords(ctx, model.RecordFilter{SessionID: "sess-1"})
		require.NoError(t, err)
		assert.Equal(t, 2, bySession.Total)

		byBank, err := s.ListRawRecords(ctx, model.RecordFilter{BankKey: "fab"})
		require.NoError(t, err)
		assert.Equal(t, 1, byBank.Total)

		// Paging reports the full total even when the page is smaller.
		paged, err := s.ListRawRecords(ctx, model.RecordFilter{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, paged.Total)
		assert.Len(t, paged.Items, 2)
	})

	t.Run("SaveBenefitRecordInsertThenUpdate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		raw, err := s.CreateRawRecord(ctx, sampleRawRecord("sess-1"))
		require.NoError(t, err)

		first, err := s.SaveBenefitRecord(ctx, sampleBenefitRecord(raw.ID))
		require.NoError(t, err)
		assert.NotEmpty(t, first.ID)

		// Saving again for the same raw record updates in place.
		updated := sampleBenefitRecord(raw.ID)
		updated.ID = first.ID
		updated.CreatedAt = first.CreatedAt
		updated.Benefits = append(updated.Benefits, model.ExtractedBenefit{
			ID: "b2", Pipeline: "lounge_access", Title: "Unlimited Lounge Access", Category: "lounge",
		})
		_, err = s.SaveBenefitRecord(ctx, updated)
		require.NoError(t, err)

		got, err := s.GetBenefitRecord(ctx, raw.ID)
		require.NoError(t, err)
		assert.Len(t, got.Benefits, 2)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("GetBenefitRecordNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetBenefitRecord(context.Background(), "nonexistent")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("DeleteRawRecordRemovesBenefits", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		raw, err := s.CreateRawRecord(ctx, sampleRawRecord("sess-1"))
		require.NoError(t, err)
		_, err = s.SaveBenefitRecord(ctx, sampleBenefitRecord(raw.ID))
		require.NoError(t, err)

		require.NoError(t, s.DeleteRawRecord(ctx, raw.ID))

		_, err = s.GetRawRecord(ctx, raw.ID)
		assert.True(t, errors.Is(err, ErrNotFound))
		_, err = s.GetBenefitRecord(ctx, raw.ID)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("CountSessionsByPhase", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveSession(ctx, sampleSession("sess-a", model.PhaseCreated)))
		require.NoError(t, s.SaveSession(ctx, sampleSession("sess-b", model.PhaseCreated)))
		require.NoError(t, s.SaveSession(ctx, sampleSession("sess-c", model.PhasePipelinesRun)))

		counts, err := s.CountSessionsByPhase(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, counts[model.PhaseCreated])
		assert.Equal(t, 1, counts[model.PhasePipelinesRun])
	})

	t.Run("PipelineOutcomesWithinWindow", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		raw, err := s.CreateRawRecord(ctx, sampleRawRecord("sess-1"))
		require.NoError(t, err)
		_, err = s.SaveBenefitRecord(ctx, sampleBenefitRecord(raw.ID))
		require.NoError(t, err)

		tally, err := s.PipelineOutcomes(ctx, time.Now().UTC().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, tally.Total)
		assert.Equal(t, 1, tally.Failed)
		assert.InDelta(t, 0.5, tally.FailureRate(), 0.001)

		// A window starting in the future sees nothing.
		empty, err := s.PipelineOutcomes(ctx, time.Now().UTC().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, empty.Total)
		assert.Equal(t, float64(0), empty.FailureRate())
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_Ping(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Ping(context.Background()))
}

func TestSQLite_CountRawRecords(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	n, err := s.CountRawRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.CreateRawRecord(ctx, sampleRawRecord("sess-1"))
	require.NoError(t, err)

	n, err = s.CountRawRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
