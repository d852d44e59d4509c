package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/internal/store"
	"github.com/cardlens/benefit-cli/pkg/webfetch"
)

// fakeClient serves canned pages keyed by URL. A URL registered in holds
// blocks until its channel is closed, for exercising per-session busy
// rejection.
type fakeClient struct {
	mu      sync.Mutex
	pages   map[string]*webfetch.Page
	errs    map[string]error
	holds   map[string]chan struct{}
	fetched []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pages: make(map[string]*webfetch.Page),
		errs:  make(map[string]error),
		holds: make(map[string]chan struct{}),
	}
}

func (f *fakeClient) page(url, title, markdown string, links ...string) *fakeClient {
	f.pages[url] = &webfetch.Page{
		URL: url, FinalURL: url, Title: title,
		Markdown: markdown, Links: links, StatusCode: 200,
	}
	return f
}

func (f *fakeClient) pageWithAnchors(url, title string, anchors ...webfetch.Anchor) *fakeClient {
	p := &webfetch.Page{URL: url, FinalURL: url, Title: title, StatusCode: 200, Anchors: anchors}
	for _, a := range anchors {
		p.Links = append(p.Links, a.URL)
	}
	f.pages[url] = p
	return f
}

func (f *fakeClient) fail(url string, err error) *fakeClient {
	f.errs[url] = err
	return f
}

func (f *fakeClient) hold(url string) chan struct{} {
	ch := make(chan struct{})
	f.holds[url] = ch
	return ch
}

func (f *fakeClient) Fetch(_ context.Context, req webfetch.Request) (*webfetch.Page, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, req.URL)
	hold := f.holds[req.URL]
	err := f.errs[req.URL]
	p := f.pages[req.URL]
	f.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if err != nil {
		return nil, err
	}
	if p != nil {
		cp := *p
		return &cp, nil
	}
	return &webfetch.Page{URL: req.URL, FinalURL: req.URL, StatusCode: 200}, nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.fetched...)
}

// memStore is an in-memory store.Store for manager tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session
	raw      map[string]model.RawRecord
	benefits map[string]model.BenefitRecord
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]model.Session),
		raw:      make(map[string]model.RawRecord),
		benefits: make(map[string]model.BenefitRecord),
	}
}

func (s *memStore) SaveSession(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *memStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "session %s", id)
	}
	return &sess, nil
}

func (s *memStore) ListSessions(_ context.Context, _ store.SessionFilter) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

func (s *memStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return eris.Wrapf(store.ErrNotFound, "session %s", id)
	}
	delete(s.sessions, id)
	return nil
}

func (s *memStore) CreateRawRecord(_ context.Context, rec model.RawRecord) (*model.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.raw[rec.ID] = rec
	return &rec, nil
}

func (s *memStore) GetRawRecord(_ context.Context, id string) (*model.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.raw[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "raw record %s", id)
	}
	return &rec, nil
}

func (s *memStore) ListRawRecords(_ context.Context, _ model.RecordFilter) (*model.RecordPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := &model.RecordPage{}
	for _, rec := range s.raw {
		page.Items = append(page.Items, rec)
	}
	page.Total = len(page.Items)
	return page, nil
}

func (s *memStore) DeleteRawRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.raw[id]; !ok {
		return eris.Wrapf(store.ErrNotFound, "raw record %s", id)
	}
	delete(s.raw, id)
	return nil
}

func (s *memStore) SaveBenefitRecord(_ context.Context, rec model.BenefitRecord) (*model.BenefitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.benefits[rec.RawRecordID] = rec
	return &rec, nil
}

func (s *memStore) GetBenefitRecord(_ context.Context, rawRecordID string) (*model.BenefitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.benefits[rawRecordID]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "benefit record %s", rawRecordID)
	}
	return &rec, nil
}

func (s *memStore) CountSessionsByPhase(_ context.Context) (map[model.Phase]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.Phase]int)
	for _, sess := range s.sessions {
		out[sess.Phase]++
	}
	return out, nil
}

func (s *memStore) CountRawRecords(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.raw), nil
}

func (s *memStore) PipelineOutcomes(_ context.Context, _ time.Time) (store.PipelineTally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t store.PipelineTally
	for _, rec := range s.benefits {
		for _, pr := range rec.PipelineResults {
			t.Total++
			if !pr.Success {
				t.Failed++
			}
		}
	}
	return t, nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Ping(context.Context) error    { return nil }
func (s *memStore) Close() error                  { return nil }
