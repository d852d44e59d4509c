// Package session owns the extraction workflow. A Manager holds every live
// session, serializes operations per session id, and drives each one through
// the phase machine: discovery, selection, fetching, review, persistence,
// indexing, and pipeline runs. Sessions are independent; the registry,
// dispatch table, and thresholds they share are read-only.
package session

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cardlens/benefit-cli/internal/aggregate"
	"github.com/cardlens/benefit-cli/internal/cache"
	"github.com/cardlens/benefit-cli/internal/chunker"
	"github.com/cardlens/benefit-cli/internal/crawl"
	"github.com/cardlens/benefit-cli/internal/dispatch"
	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/pipeline"
	"github.com/cardlens/benefit-cli/internal/registry"
	"github.com/cardlens/benefit-cli/internal/store"
	"github.com/cardlens/benefit-cli/pkg/chunkindex"
	"github.com/cardlens/benefit-cli/pkg/webfetch"
)

// Deps are the collaborators a Manager drives. All are required except
// PageCache, which defaults to no caching.
type Deps struct {
	Registry   *registry.Registry
	Discoverer *crawl.Discoverer
	Fetcher    webfetch.Client
	PageCache  cache.PageCache
	Store      store.Store
	Chunker    *chunker.Chunker
	Dispatcher *dispatch.Dispatcher
	Runner     *pipeline.Runner
	Merger     *aggregate.Merger
}

// Manager is the one component with mutable shared state: the live session
// table. Operations for the same session are serialized; a second concurrent
// call gets a BusyError rather than a queue slot.
type Manager struct {
	deps     Deps
	validate *validator.Validate

	minApproveChars int
	fetchBatch      int
	idleTTL         time.Duration

	mu       sync.Mutex
	sessions map[string]*entry

	idxMu   sync.Mutex
	indexes map[string]*chunkindex.Index
}

type entry struct {
	op         sync.Mutex
	sess       model.Session
	lastActive time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithApprovalThreshold sets the minimum content length a source needs for
// default auto-approval.
func WithApprovalThreshold(chars int) Option {
	return func(m *Manager) {
		if chars >= 0 {
			m.minApproveChars = chars
		}
	}
}

// WithFetchConcurrency bounds concurrent source fetches per session.
func WithFetchConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.fetchBatch = n
		}
	}
}

// WithIdleTTL sets how long an untouched session survives a sweep.
func WithIdleTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idleTTL = d
		}
	}
}

// NewManager builds a Manager over its collaborators.
func NewManager(deps Deps, opts ...Option) *Manager {
	if deps.PageCache == nil {
		deps.PageCache = cache.Noop{}
	}
	m := &Manager{
		deps:            deps,
		validate:        validator.New(),
		minApproveChars: 100,
		fetchBatch:      5,
		idleTTL:         2 * time.Hour,
		sessions:        make(map[string]*entry),
		indexes:         make(map[string]*chunkindex.Index),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession validates the seed and configuration and registers a new
// session in phase created.
func (m *Manager) CreateSession(ctx context.Context, seed model.Seed, cfg model.SessionConfig) (*model.Session, error) {
	if err := m.validateSeed(seed); err != nil {
		return nil, err
	}
	if err := m.validate.Struct(&cfg); err != nil {
		return nil, &ConfigError{Reason: "invalid session config: " + err.Error()}
	}

	now := time.Now().UTC()
	s := model.Session{
		ID:        uuid.NewString(),
		Phase:     model.PhaseCreated,
		Seed:      seed,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = &entry{sess: s, lastActive: now}
	m.mu.Unlock()

	m.persist(ctx, s)
	zap.L().Info("session created",
		zap.String("session_id", s.ID),
		zap.String("seed_kind", string(seed.Kind)),
		zap.Int("max_depth", cfg.MaxDepth),
	)
	return snapshot(s), nil
}

func (m *Manager) validateSeed(seed model.Seed) error {
	switch seed.Kind {
	case model.SeedBank:
		if seed.BankKey == "" {
			return &ConfigError{Reason: "bank seed requires a bank key"}
		}
		if _, ok := m.deps.Registry.Bank(seed.BankKey); !ok {
			return &ConfigError{Reason: "unknown bank key " + seed.BankKey}
		}
	case model.SeedURL:
		u, err := url.Parse(seed.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return &ConfigError{Reason: "url seed requires an absolute http(s) url"}
		}
	case model.SeedText:
		if strings.TrimSpace(seed.Text) == "" {
			return &ConfigError{Reason: "text seed is empty"}
		}
	case model.SeedDocument:
		if len(seed.Document) == 0 {
			return &ConfigError{Reason: "document seed has no content"}
		}
	default:
		return &ConfigError{Reason: "unknown seed kind " + string(seed.Kind)}
	}
	return nil
}

// Get returns a point-in-time snapshot of the session.
func (m *Manager) Get(id string) (*model.Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	e.op.Lock()
	defer e.op.Unlock()
	return snapshot(e.sess), nil
}

// List returns snapshots of every live session, newest first.
func (m *Manager) List() []model.Session {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	out := make([]model.Session, 0, len(entries))
	for _, e := range entries {
		e.op.Lock()
		out = append(out, *snapshot(e.sess))
		e.op.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Reset returns the session to phase created, discarding everything
// discovered or fetched but keeping the seed and configuration.
func (m *Manager) Reset(ctx context.Context, id string) (*model.Session, error) {
	var snap *model.Session
	err := m.withSession(ctx, id, "reset", func(s *model.Session) error {
		s.Phase = model.PhaseCreated
		s.Cards = nil
		s.Candidates = nil
		s.Sources = nil
		s.RecordID = ""
		s.UpdatedAt = time.Now().UTC()
		snap = snapshot(*s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("session reset", zap.String("session_id", id))
	return snap, nil
}

// Delete removes the session from the live table and drops its persisted
// snapshot. Raw and benefit records it produced stay.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	// An in-flight operation may still hold the entry lock; it completes
	// against the orphaned entry and its result is discarded with it.
	_ = e

	if err := m.deps.Store.DeleteSession(ctx, id); err != nil && !eris.Is(err, store.ErrNotFound) {
		zap.L().Warn("delete session snapshot failed", zap.String("session_id", id), zap.Error(err))
	}
	return nil
}

// LiveCount reports how many sessions are in the live table.
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SweepExpired drops sessions idle longer than the TTL and returns how many
// went. Sessions with an operation in flight are skipped until next sweep.
func (m *Manager) SweepExpired(ctx context.Context) int {
	cutoff := time.Now().Add(-m.idleTTL)

	m.mu.Lock()
	var expired []string
	for id, e := range m.sessions {
		if e.lastActive.Before(cutoff) && e.op.TryLock() {
			e.op.Unlock()
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, id := range expired {
		if err := m.deps.Store.DeleteSession(ctx, id); err != nil && !eris.Is(err, store.ErrNotFound) {
			zap.L().Warn("expire session snapshot failed", zap.String("session_id", id), zap.Error(err))
		}
	}
	if len(expired) > 0 {
		zap.L().Info("expired idle sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// DispatchPipelines maps the selected chunk categories to the pipelines that
// should run, deduplicated.
func (m *Manager) DispatchPipelines(categories []string) []string {
	return m.deps.Dispatcher.Pipelines(categories)
}

// withSession runs fn holding the session's operation lock. A second
// concurrent operation is rejected with BusyError. fn must validate before
// mutating so a rejected operation leaves the session unchanged.
func (m *Manager) withSession(ctx context.Context, id, op string, fn func(s *model.Session) error) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}

	if !e.op.TryLock() {
		return &BusyError{SessionID: id, Op: op}
	}
	defer e.op.Unlock()

	if err := fn(&e.sess); err != nil {
		return err
	}

	// A concurrent Delete or sweep may have dropped the session while fn
	// ran; persisting then would resurrect the deleted row.
	m.mu.Lock()
	_, live := m.sessions[id]
	if live {
		e.lastActive = time.Now()
	}
	m.mu.Unlock()

	if live {
		m.persist(ctx, e.sess)
	}
	return nil
}

// persist writes the session snapshot through the store. The live table is
// authoritative; a snapshot failure is logged, not returned.
func (m *Manager) persist(ctx context.Context, s model.Session) {
	if err := m.deps.Store.SaveSession(ctx, s); err != nil {
		zap.L().Warn("session snapshot save failed",
			zap.String("session_id", s.ID),
			zap.String("phase", string(s.Phase)),
			zap.Error(err),
		)
	}
}

func requirePhase(s *model.Session, op string, allowed ...model.Phase) error {
	for _, p := range allowed {
		if s.Phase == p {
			return nil
		}
	}
	return &InvalidStateError{Op: op, Phase: s.Phase, Allowed: allowed}
}

func snapshot(s model.Session) *model.Session {
	c := s
	c.Cards = append([]model.CandidateCard(nil), s.Cards...)
	c.Candidates = append([]model.CandidateURL(nil), s.Candidates...)
	c.Sources = append([]model.Source(nil), s.Sources...)
	return &c
}
