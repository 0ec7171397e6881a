package services

import (
	"context"
	"sync"
	"time"

	"github.com/prepview/backend/internal/models"
	"github.com/prepview/backend/internal/providers/analysis"
	"github.com/prepview/backend/internal/providers/call"
	"github.com/prepview/backend/internal/queue"
	"github.com/prepview/backend/internal/utils"
)

// In-memory fakes mirroring the compare-and-set semantics of the Postgres
// repositories. Every transition takes the store mutex so concurrent tests
// observe the same single-winner behavior as the guarded UPDATEs.

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.InterviewSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*models.InterviewSession)}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *models.InterviewSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.SessionID] = &cp
	return nil
}

func (r *fakeSessionRepo) Get(_ context.Context, sessionID string) (*models.InterviewSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) GetByConversationID(_ context.Context, conversationID string) (*models.InterviewSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ConversationID != nil && *s.ConversationID == conversationID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r *fakeSessionRepo) Activate(_ context.Context, sessionID, conversationID, conversationURL string, startedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != models.SessionStatusPending || s.ConversationID != nil {
		return false, nil
	}
	s.Status = models.SessionStatusLive
	s.ConversationID = &conversationID
	s.ConversationURL = conversationURL
	t := startedAt
	s.StartedAt = &t
	return true, nil
}

func (r *fakeSessionRepo) MarkEnded(_ context.Context, sessionID, cause string, endedAt time.Time, durationSeconds int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != models.SessionStatusLive {
		return false, nil
	}
	s.Status = models.SessionStatusEnded
	s.EndedCause = cause
	t := endedAt
	s.EndedAt = &t
	s.DurationSeconds = durationSeconds
	return true, nil
}

func (r *fakeSessionRepo) Cancel(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != models.SessionStatusPending || s.ConversationID != nil {
		return false, nil
	}
	s.Status = models.SessionStatusCancelled
	return true, nil
}

func (r *fakeSessionRepo) UpdateConfig(_ context.Context, sessionID string, cfg models.InterviewConfig) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != models.SessionStatusPending {
		return false, nil
	}
	s.JobTitle = cfg.JobTitle
	s.Company = cfg.Company
	s.InterviewType = cfg.InterviewType
	s.Language = cfg.Language
	s.DurationMinutes = cfg.DurationMinutes
	return true, nil
}

type fakeRecordingRepo struct {
	mu     sync.Mutex
	events map[string]*models.RecordingEvent // by event id
	byConv map[string]string                 // conversation id -> event id
}

func newFakeRecordingRepo() *fakeRecordingRepo {
	return &fakeRecordingRepo{
		events: make(map[string]*models.RecordingEvent),
		byConv: make(map[string]string),
	}
}

func (r *fakeRecordingRepo) Create(_ context.Context, e *models.RecordingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byConv[e.ConversationID]; dup {
		return utils.ErrDuplicate
	}
	cp := *e
	r.events[e.EventID] = &cp
	r.byConv[e.ConversationID] = e.EventID
	return nil
}

func (r *fakeRecordingRepo) Get(_ context.Context, eventID string) (*models.RecordingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeRecordingRepo) GetBySessionID(_ context.Context, sessionID string) (*models.RecordingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.SessionID == sessionID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r *fakeRecordingRepo) Claim(_ context.Context, eventID, expected, next string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok || e.Status != expected {
		return false, nil
	}
	e.Status = next
	if next == models.RecordingStatusAnalyzing {
		e.Attempts++
	}
	return true, nil
}

func (r *fakeRecordingRepo) SetArchivedURL(_ context.Context, eventID, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.events[eventID]; ok {
		u := url
		e.ArchivedURL = &u
	}
	return nil
}

type fakeFeedbackRepo struct {
	mu      sync.Mutex
	records map[string]*models.FeedbackRecord
}

func newFakeFeedbackRepo() *fakeFeedbackRepo {
	return &fakeFeedbackRepo{records: make(map[string]*models.FeedbackRecord)}
}

func (r *fakeFeedbackRepo) Create(_ context.Context, f *models.FeedbackRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.records[f.SessionID]; dup {
		return utils.ErrDuplicate
	}
	cp := *f
	r.records[f.SessionID] = &cp
	return nil
}

func (r *fakeFeedbackRepo) GetBySessionID(_ context.Context, sessionID string) (*models.FeedbackRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.records[sessionID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

type fakeCallProvider struct {
	mu       sync.Mutex
	created  int
	ended    []string
	failNext error
	nextID   int
}

func (p *fakeCallProvider) CreateConversation(_ context.Context, cfg call.Config) (*call.Conversation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return nil, err
	}
	p.created++
	p.nextID++
	return &call.Conversation{
		ID:      "conv-" + cfg.SessionID + "-" + string(rune('a'+p.nextID-1)),
		JoinURL: "https://calls.example/join",
	}, nil
}

func (p *fakeCallProvider) EndConversation(_ context.Context, conversationID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, conversationID)
	return nil
}

func (p *fakeCallProvider) Close() error { return nil }

func (p *fakeCallProvider) endedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ended)
}

type fakeAnalysisProvider struct {
	mu        sync.Mutex
	responses []string // one per call, last repeats
	errs      []error
	calls     int
}

func (p *fakeAnalysisProvider) Analyze(_ context.Context, _ string, _ analysis.Rubric) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if len(p.responses) == 0 {
		return "", nil
	}
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return p.responses[i], nil
}

func (p *fakeAnalysisProvider) Close() error { return nil }

func (p *fakeAnalysisProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []queue.AnalysisJob
}

func (q *fakeEnqueuer) EnqueueAnalysis(_ context.Context, job queue.AnalysisJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeEnqueuer) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type fakeCache struct {
	mu     sync.Mutex
	claims map[string]bool
	values map[string]any
}

func newFakeCache() *fakeCache {
	return &fakeCache{claims: make(map[string]bool), values: make(map[string]any)}
}

func (c *fakeCache) GetJSON(_ context.Context, key string, _ any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok, nil
}

func (c *fakeCache) SetJSON(_ context.Context, key string, val any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = val
	return nil
}

func (c *fakeCache) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claims[key] {
		return false, nil
	}
	c.claims[key] = true
	return true, nil
}

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
		delete(c.claims, k)
	}
	return nil
}

type fakeArtifactRepo struct {
	mu        sync.Mutex
	artifacts []models.AnalysisArtifact
}

func (r *fakeArtifactRepo) Insert(_ context.Context, a *models.AnalysisArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, *a)
	return nil
}

func (r *fakeArtifactRepo) ListBySession(_ context.Context, sessionID string, _ int64) ([]models.AnalysisArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AnalysisArtifact
	for _, a := range r.artifacts {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

// noopWatcher satisfies SessionWatcher when the test is not about timing.
type noopWatcher struct {
	mu      sync.Mutex
	watched []string
	stopped []string
}

func (w *noopWatcher) Watch(sessionID string, _ time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched = append(w.watched, sessionID)
}

func (w *noopWatcher) Stop(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = append(w.stopped, sessionID)
}
