package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/prepview/backend/internal/models"
	"github.com/prepview/backend/internal/utils"
)

type stubInterviewService struct {
	sessions map[string]*models.InterviewSession

	created   *models.InterviewSession
	createErr error

	provisioned *models.InterviewSession
	endCause    string
	endErr      error

	feedback      *models.FeedbackRecord
	feedbackState string
}

func (s *stubInterviewService) Create(_ context.Context, userID string, cfg models.InterviewConfig) (*models.InterviewSession, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = &models.InterviewSession{
		SessionID:       "sess-new",
		UserID:          userID,
		JobTitle:        cfg.JobTitle,
		Company:         cfg.Company,
		InterviewType:   cfg.InterviewType,
		Language:        cfg.Language,
		DurationMinutes: cfg.DurationMinutes,
		Status:          models.SessionStatusPending,
	}
	return s.created, nil
}

func (s *stubInterviewService) Get(_ context.Context, sessionID string) (*models.InterviewSession, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, utils.E(utils.CodeNotFound, "InterviewService.Get", "session not found", nil)
	}
	return sess, nil
}

func (s *stubInterviewService) UpdateConfig(_ context.Context, sessionID string, cfg models.InterviewConfig) (*models.InterviewSession, error) {
	sess := s.sessions[sessionID]
	sess.JobTitle = cfg.JobTitle
	return sess, nil
}

func (s *stubInterviewService) Provision(_ context.Context, sessionID string) (*models.InterviewSession, error) {
	s.provisioned = s.sessions[sessionID]
	conv := "conv-1"
	s.provisioned.Status = models.SessionStatusLive
	s.provisioned.ConversationID = &conv
	s.provisioned.ConversationURL = "https://calls.example/join"
	return s.provisioned, nil
}

func (s *stubInterviewService) End(_ context.Context, sessionID, cause string) (*models.InterviewSession, error) {
	if s.endErr != nil {
		return nil, s.endErr
	}
	s.endCause = cause
	sess := s.sessions[sessionID]
	sess.Status = models.SessionStatusEnded
	sess.EndedCause = cause
	return sess, nil
}

func (s *stubInterviewService) Cancel(_ context.Context, sessionID string) (*models.InterviewSession, error) {
	sess := s.sessions[sessionID]
	sess.Status = models.SessionStatusCancelled
	return sess, nil
}

func (s *stubInterviewService) Feedback(_ context.Context, _ string) (*models.FeedbackRecord, string, error) {
	return s.feedback, s.feedbackState, nil
}

type stubAnalysisService struct {
	artifacts []models.AnalysisArtifact
}

func (s *stubAnalysisService) Analyze(context.Context, string) error { return nil }

func (s *stubAnalysisService) Artifacts(_ context.Context, _ string, _ int64) ([]models.AnalysisArtifact, error) {
	return s.artifacts, nil
}

func interviewRouter(svc *stubInterviewService, userID string) *gin.Engine {
	return interviewRouterWithAnalysis(svc, &stubAnalysisService{}, userID)
}

func interviewRouterWithAnalysis(svc *stubInterviewService, analysis *stubAnalysisService, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if userID != "" {
		r.Use(func(c *gin.Context) { c.Set("user_id", userID) })
	}
	h := NewInterviewHandler(svc, analysis)
	r.POST("/interviews", h.Create)
	r.GET("/interviews/:session_id", h.Get)
	r.PUT("/interviews/:session_id/config", h.UpdateConfig)
	r.POST("/interviews/:session_id/start", h.Start)
	r.POST("/interviews/:session_id/end", h.End)
	r.POST("/interviews/:session_id/cancel", h.Cancel)
	r.GET("/interviews/:session_id/feedback", h.Feedback)
	r.GET("/interviews/:session_id/feedback/artifacts", h.FeedbackArtifacts)
	return r
}

func ownedSession(userID string) map[string]*models.InterviewSession {
	return map[string]*models.InterviewSession{
		"sess-1": {
			SessionID:       "sess-1",
			UserID:          userID,
			JobTitle:        "Backend Engineer",
			InterviewType:   "technical",
			Language:        "en",
			DurationMinutes: 15,
			Status:          models.SessionStatusPending,
		},
	}
}

func TestCreateInterview(t *testing.T) {
	svc := &stubInterviewService{sessions: ownedSession("user-1")}
	r := interviewRouter(svc, "user-1")

	body := []byte(`{"job_title":"Backend Engineer","company":"Prepview","interview_type":"technical","language":"en","duration_minutes":15}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/interviews", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body.String())
	}
	if svc.created == nil || svc.created.UserID != "user-1" {
		t.Fatalf("created = %+v", svc.created)
	}
}

func TestCreateInterviewRejectsMissingFields(t *testing.T) {
	svc := &stubInterviewService{sessions: ownedSession("user-1")}
	r := interviewRouter(svc, "user-1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/interviews", bytes.NewReader([]byte(`{"company":"Prepview"}`)))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if svc.created != nil {
		t.Fatal("service must not be reached on binding failure")
	}
}

func TestInterviewRequiresAuth(t *testing.T) {
	svc := &stubInterviewService{sessions: ownedSession("user-1")}
	r := interviewRouter(svc, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/interviews/sess-1", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestInterviewOwnershipEnforced(t *testing.T) {
	svc := &stubInterviewService{sessions: ownedSession("someone-else")}
	r := interviewRouter(svc, "user-1")

	for _, route := range []struct {
		method, path string
	}{
		{http.MethodGet, "/interviews/sess-1"},
		{http.MethodPost, "/interviews/sess-1/start"},
		{http.MethodPost, "/interviews/sess-1/end"},
		{http.MethodPost, "/interviews/sess-1/cancel"},
		{http.MethodGet, "/interviews/sess-1/feedback"},
		{http.MethodGet, "/interviews/sess-1/feedback/artifacts"},
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(route.method, route.path, nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("%s %s: status = %d, want 403", route.method, route.path, w.Code)
		}
	}
}

func TestStartReturnsConversationHandle(t *testing.T) {
	svc := &stubInterviewService{sessions: ownedSession("user-1")}
	r := interviewRouter(svc, "user-1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/interviews/sess-1/start", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	var resp StartInterviewResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.ConversationID != "conv-1" || resp.ConversationURL == "" || resp.Status != models.SessionStatusLive {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestEndUsesClientCause(t *testing.T) {
	svc := &stubInterviewService{sessions: ownedSession("user-1")}
	svc.sessions["sess-1"].Status = models.SessionStatusLive
	r := interviewRouter(svc, "user-1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/interviews/sess-1/end", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if svc.endCause != models.EndCauseClient {
		t.Fatalf("end cause = %q, want client", svc.endCause)
	}
}

func TestEndBeforeStartMapsToConflict(t *testing.T) {
	svc := &stubInterviewService{sessions: ownedSession("user-1")}
	svc.endErr = utils.E(utils.CodeConflict, "InterviewService.End", "session has not started", nil)
	r := interviewRouter(svc, "user-1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/interviews/sess-1/end", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestFeedbackArtifactsListed(t *testing.T) {
	svc := &stubInterviewService{sessions: ownedSession("user-1")}
	analysis := &stubAnalysisService{
		artifacts: []models.AnalysisArtifact{
			{SessionID: "sess-1", EventID: "evt-1", Attempt: 1, Outcome: "invalid", RawResponse: "not json"},
			{SessionID: "sess-1", EventID: "evt-1", Attempt: 2, Outcome: "parsed", RawResponse: "{}"},
		},
	}
	r := interviewRouterWithAnalysis(svc, analysis, "user-1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/interviews/sess-1/feedback/artifacts", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	var resp struct {
		SessionID string                    `json:"session_id"`
		Artifacts []models.AnalysisArtifact `json:"artifacts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.SessionID != "sess-1" || len(resp.Artifacts) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Artifacts[0].Outcome != "invalid" {
		t.Fatalf("artifacts[0] = %+v", resp.Artifacts[0])
	}
}

func TestFeedbackStates(t *testing.T) {
	record, _ := json.Marshal([]string{"clear structure"})
	svc := &stubInterviewService{
		sessions:      ownedSession("user-1"),
		feedbackState: "available",
		feedback: &models.FeedbackRecord{
			SessionID:    "sess-1",
			OverallScore: 79,
			Strengths:    datatypes.JSON(record),
			Weaknesses:   datatypes.JSON(record),
		},
	}
	r := interviewRouter(svc, "user-1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/interviews/sess-1/feedback", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp FeedbackResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Status != "available" || resp.Feedback == nil || resp.Feedback.OverallScore != 79 {
		t.Fatalf("resp = %+v", resp)
	}

	svc.feedback = nil
	svc.feedbackState = "pending"
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/interviews/sess-1/feedback", nil)
	r.ServeHTTP(w, req)
	resp = FeedbackResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Status != "pending" || resp.Feedback != nil {
		t.Fatalf("resp = %+v", resp)
	}
}
