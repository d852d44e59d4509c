package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/monitoring"
	"github.com/cardlens/benefit-cli/internal/session"
)

// SessionService is the slice of the session manager the HTTP surface
// drives. Declared here so handlers can be tested against a mock.
type SessionService interface {
	CreateSession(ctx context.Context, seed model.Seed, cfg model.SessionConfig) (*model.Session, error)
	Get(id string) (*model.Session, error)
	List() []model.Session
	Reset(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error

	DiscoverCards(ctx context.Context, id string) ([]model.CandidateCard, error)
	SelectCards(ctx context.Context, id string, cardIDs []string) error
	DiscoverURLs(ctx context.Context, id string) ([]model.CandidateURL, error)
	SelectURLs(ctx context.Context, id string, urls []string) error
	FetchContent(ctx context.Context, id string) ([]model.Source, error)
	ApproveSource(ctx context.Context, id, sourceID string) (*session.Review, error)
	RejectSource(ctx context.Context, id, sourceID string) (*session.Review, error)
	ApproveAll(ctx context.Context, id string) (*session.Review, error)
	SaveApprovedRaw(ctx context.Context, id string) (string, error)

	IndexVectors(ctx context.Context, recordID string) (*model.IndexResult, error)
	RunPipelines(ctx context.Context, recordID string, names []string, parallel bool) (*session.RunOutput, error)
	GetRawRecord(ctx context.Context, recordID string) (*model.RawRecord, error)
	GetBenefitRecord(ctx context.Context, recordID string) (*model.BenefitRecord, error)
	ListRawRecords(ctx context.Context, filter model.RecordFilter) (*model.RecordPage, error)
	DeleteBenefit(ctx context.Context, recordID, benefitID string) (*model.BenefitRecord, error)
}

// Collector produces the monitoring snapshot served at /metrics/snapshot.
type Collector interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error)
}

// Server is the chi-routed REST surface over the session manager.
type Server struct {
	sessions      SessionService
	collector     Collector
	lookbackHours int
}

// New builds a Server. collector may be nil; /metrics/snapshot then 404s.
func New(sessions SessionService, collector Collector, lookbackHours int) *Server {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	return &Server{sessions: sessions, collector: collector, lookbackHours: lookbackHours}
}

// Handler assembles the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics/snapshot", s.handleMetricsSnapshot)

	r.Route("/api/v2", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/reset", s.handleReset)
				r.Post("/discover-cards", s.handleDiscoverCards)
				r.Post("/select-cards", s.handleSelectCards)
				r.Post("/discover-urls", s.handleDiscoverURLs)
				r.Post("/select-urls", s.handleSelectURLs)
				r.Post("/fetch", s.handleFetchContent)
				r.Post("/sources/{sid}/approve", s.handleApproveSource)
				r.Post("/sources/{sid}/reject", s.handleRejectSource)
				r.Post("/approve-all", s.handleApproveAll)
				r.Post("/save-raw", s.handleSaveRaw)
			})
		})
		r.Route("/records", func(r chi.Router) {
			r.Get("/", s.handleListRecords)
			r.Post("/compare", s.handleCompare)
			r.Route("/{recordId}", func(r chi.Router) {
				r.Get("/", s.handleGetRecord)
				r.Post("/index", s.handleIndexVectors)
				r.Post("/pipelines", s.handleRunPipelines)
				r.Get("/export", s.handleExport)
				r.Delete("/benefits/{bid}", s.handleDeleteBenefit)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		http.NotFound(w, r)
		return
	}
	snap, err := s.collector.Collect(r.Context(), s.lookbackHours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}
