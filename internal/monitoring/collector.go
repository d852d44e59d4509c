package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Session metrics.
	LiveSessions    int                 `json:"live_sessions"`
	SessionsByPhase map[model.Phase]int `json:"sessions_by_phase"`

	// Record metrics.
	RawRecords int `json:"raw_records"`

	// Pipeline metrics (within lookback window).
	PipelineTotal    int     `json:"pipeline_total"`
	PipelineFailed   int     `json:"pipeline_failed"`
	PipelineFailRate float64 `json:"pipeline_fail_rate"`

	// Dependency probes.
	StoreOK bool `json:"store_ok"`
	CacheOK bool `json:"cache_ok"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SessionCounter reports how many sessions are live in memory. Satisfied by
// the session manager.
type SessionCounter interface {
	LiveCount() int
}

// Pinger probes a dependency for liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Collector gathers metrics from the store and the session manager.
type Collector struct {
	store    store.Store
	sessions SessionCounter
	cache    Pinger
}

// NewCollector creates a new metrics collector. sessions and cache may be nil
// when the corresponding subsystem is not running.
func NewCollector(st store.Store, sessions SessionCounter, cache Pinger) *Collector {
	return &Collector{store: st, sessions: sessions, cache: cache}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	byPhase, err := c.store.CountSessionsByPhase(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count sessions")
	}
	snap.SessionsByPhase = byPhase

	rawCount, err := c.store.CountRawRecords(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count raw records")
	}
	snap.RawRecords = rawCount

	tally, err := c.store.PipelineOutcomes(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: tally pipeline outcomes")
	}
	snap.PipelineTotal = tally.Total
	snap.PipelineFailed = tally.Failed
	snap.PipelineFailRate = tally.FailureRate()

	if c.sessions != nil {
		snap.LiveSessions = c.sessions.LiveCount()
	}

	snap.StoreOK = c.store.Ping(ctx) == nil
	snap.CacheOK = c.cache == nil || c.cache.Ping(ctx) == nil

	return snap, nil
}
