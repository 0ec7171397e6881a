package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepview/backend/internal/models"
	"github.com/prepview/backend/internal/services"
	"github.com/prepview/backend/internal/utils"
)

type InterviewHandler struct {
	svc      services.InterviewService
	analysis services.AnalysisService
}

func NewInterviewHandler(svc services.InterviewService, analysis services.AnalysisService) *InterviewHandler {
	return &InterviewHandler{svc: svc, analysis: analysis}
}

type CreateInterviewRequest struct {
	JobTitle        string `json:"job_title" binding:"required"`
	Company         string `json:"company"`
	InterviewType   string `json:"interview_type" binding:"required"` // behavioral|technical|hr
	Language        string `json:"language" binding:"required"`       // id|en
	DurationMinutes int    `json:"duration_minutes" binding:"required"`
}

func (r CreateInterviewRequest) config() models.InterviewConfig {
	return models.InterviewConfig{
		JobTitle:        r.JobTitle,
		Company:         r.Company,
		InterviewType:   r.InterviewType,
		Language:        r.Language,
		DurationMinutes: r.DurationMinutes,
	}
}

func (h *InterviewHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CreateInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.Create", "invalid request body", err))
		return
	}

	sess, err := h.svc.Create(c.Request.Context(), userID, req.config())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sess)
}

func (h *InterviewHandler) Get(c *gin.Context) {
	sess, ok := h.authorize(c, "InterviewHandler.Get")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *InterviewHandler) UpdateConfig(c *gin.Context) {
	sess, ok := h.authorize(c, "InterviewHandler.UpdateConfig")
	if !ok {
		return
	}

	var req CreateInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.UpdateConfig", "invalid request body", err))
		return
	}

	updated, err := h.svc.UpdateConfig(c.Request.Context(), sess.SessionID, req.config())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

type StartInterviewResponse struct {
	SessionID       string `json:"session_id"`
	Status          string `json:"status"`
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
}

func (h *InterviewHandler) Start(c *gin.Context) {
	sess, ok := h.authorize(c, "InterviewHandler.Start")
	if !ok {
		return
	}

	live, err := h.svc.Provision(c.Request.Context(), sess.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := StartInterviewResponse{
		SessionID:       live.SessionID,
		Status:          live.Status,
		ConversationURL: live.ConversationURL,
	}
	if live.ConversationID != nil {
		resp.ConversationID = *live.ConversationID
	}
	c.JSON(http.StatusOK, resp)
}

func (h *InterviewHandler) End(c *gin.Context) {
	sess, ok := h.authorize(c, "InterviewHandler.End")
	if !ok {
		return
	}

	ended, err := h.svc.End(c.Request.Context(), sess.SessionID, models.EndCauseClient)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ended)
}

func (h *InterviewHandler) Cancel(c *gin.Context) {
	sess, ok := h.authorize(c, "InterviewHandler.Cancel")
	if !ok {
		return
	}

	cancelled, err := h.svc.Cancel(c.Request.Context(), sess.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelled)
}

type FeedbackResponse struct {
	SessionID string                 `json:"session_id"`
	Status    string                 `json:"status"` // available|pending|analyzing|unavailable
	Feedback  *models.FeedbackRecord `json:"feedback,omitempty"`
}

func (h *InterviewHandler) Feedback(c *gin.Context) {
	sess, ok := h.authorize(c, "InterviewHandler.Feedback")
	if !ok {
		return
	}

	record, state, err := h.svc.Feedback(c.Request.Context(), sess.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, FeedbackResponse{
		SessionID: sess.SessionID,
		Status:    state,
		Feedback:  record,
	})
}

// FeedbackArtifacts exposes the raw analysis responses for a session, for
// debugging rejected or failed analyses.
func (h *InterviewHandler) FeedbackArtifacts(c *gin.Context) {
	sess, ok := h.authorize(c, "InterviewHandler.FeedbackArtifacts")
	if !ok {
		return
	}

	artifacts, err := h.analysis.Artifacts(c.Request.Context(), sess.SessionID, 20)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.SessionID,
		"artifacts":  artifacts,
	})
}

// authorize loads the session and enforces ownership.
func (h *InterviewHandler) authorize(c *gin.Context, op string) (*models.InterviewSession, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return nil, false
	}

	sessionID := c.Param("session_id")
	sess, err := h.svc.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if sess.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, op, "forbidden", nil))
		return nil, false
	}
	return sess, true
}
