package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/prepview/backend/internal/models"
	"github.com/prepview/backend/internal/providers/call"
	pgrepo "github.com/prepview/backend/internal/repositories/postgres"
	"github.com/prepview/backend/internal/utils"
)

// Feedback availability states for sessions without a persisted record yet.
const (
	FeedbackAvailable   = "available"
	FeedbackPending     = "pending"
	FeedbackAnalyzing   = "analyzing"
	FeedbackUnavailable = "unavailable"
)

type InterviewService interface {
	Create(ctx context.Context, userID string, cfg models.InterviewConfig) (*models.InterviewSession, error)
	Get(ctx context.Context, sessionID string) (*models.InterviewSession, error)
	UpdateConfig(ctx context.Context, sessionID string, cfg models.InterviewConfig) (*models.InterviewSession, error)

	// Provision creates the remote conversation and moves pending->live.
	// Idempotent: a session that already holds a remote handle gets it back
	// unchanged.
	Provision(ctx context.Context, sessionID string) (*models.InterviewSession, error)

	// End performs the single authoritative live->ended transition. The three
	// callers (client finish, governor timeout, provider report) race through
	// the same compare-and-set; losers see the terminal row and no error.
	End(ctx context.Context, sessionID, cause string) (*models.InterviewSession, error)

	Cancel(ctx context.Context, sessionID string) (*models.InterviewSession, error)

	// Feedback returns the record when present, else the availability state
	// derived from the recording event.
	Feedback(ctx context.Context, sessionID string) (*models.FeedbackRecord, string, error)
}

type interviewService struct {
	sessions   pgrepo.SessionRepository
	recordings pgrepo.RecordingRepository
	feedback   pgrepo.FeedbackRepository
	calls      call.Provider
	governor   SessionWatcher
	log        *logrus.Logger

	provisionTimeout time.Duration
	endCallTimeout   time.Duration
}

func NewInterviewService(
	sessions pgrepo.SessionRepository,
	recordings pgrepo.RecordingRepository,
	feedback pgrepo.FeedbackRepository,
	calls call.Provider,
	governor SessionWatcher,
	log *logrus.Logger,
) InterviewService {
	if log == nil {
		log = logrus.New()
	}
	return &interviewService{
		sessions:         sessions,
		recordings:       recordings,
		feedback:         feedback,
		calls:            calls,
		governor:         governor,
		log:              log,
		provisionTimeout: 15 * time.Second,
		endCallTimeout:   5 * time.Second,
	}
}

func validateConfig(cfg models.InterviewConfig) error {
	if cfg.JobTitle == "" || cfg.InterviewType == "" || cfg.Language == "" {
		return errors.New("job_title, interview_type, and language are required")
	}
	if !models.AllowedDurations[cfg.DurationMinutes] {
		return errors.New("duration_minutes must be one of 1, 5, 10, 15, 30, 45")
	}
	return nil
}

func (s *interviewService) Create(ctx context.Context, userID string, cfg models.InterviewConfig) (*models.InterviewSession, error) {
	const op = "InterviewService.Create"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, err.Error(), nil)
	}

	sess := &models.InterviewSession{
		SessionID:       uuid.NewString(),
		UserID:          userID,
		JobTitle:        cfg.JobTitle,
		Company:         cfg.Company,
		InterviewType:   cfg.InterviewType,
		Language:        cfg.Language,
		DurationMinutes: cfg.DurationMinutes,
		Status:          models.SessionStatusPending,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	return sess, nil
}

func (s *interviewService) Get(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	const op = "InterviewService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	out, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	return out, nil
}

func (s *interviewService) UpdateConfig(ctx context.Context, sessionID string, cfg models.InterviewConfig) (*models.InterviewSession, error) {
	const op = "InterviewService.UpdateConfig"

	if err := validateConfig(cfg); err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, err.Error(), nil)
	}
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	ok, err := s.sessions.UpdateConfig(ctx, sessionID, cfg)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to update config", err)
	}
	if !ok {
		return nil, utils.E(utils.CodeConflict, op, "configuration is fixed once the session has started", nil)
	}
	return s.Get(ctx, sessionID)
}

func (s *interviewService) Provision(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	const op = "InterviewService.Provision"

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// at-most-one remote conversation per session
	if sess.ConversationID != nil {
		return sess, nil
	}
	if sess.Status != models.SessionStatusPending {
		return nil, utils.E(utils.CodeConflict, op, "session is not pending", nil)
	}

	limit := time.Duration(sess.DurationMinutes) * time.Minute

	cctx, cancel := context.WithTimeout(ctx, s.provisionTimeout)
	defer cancel()

	conv, err := s.calls.CreateConversation(cctx, call.Config{
		SessionID:     sess.SessionID,
		JobTitle:      sess.JobTitle,
		Company:       sess.Company,
		InterviewType: sess.InterviewType,
		Language:      sess.Language,
		MaxDuration:   limit,
	})
	if err != nil {
		// session stays pending, the caller may retry
		return nil, utils.E(utils.CodeProvisioningFailed, op, "call provider rejected conversation create", err)
	}

	ok, err := s.sessions.Activate(ctx, sessionID, conv.ID, conv.JoinURL, time.Now().UTC())
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to activate session", err)
	}
	if !ok {
		// a concurrent provision won; our remote conversation is an orphan
		s.endRemote(conv.ID)

		cur, gerr := s.Get(ctx, sessionID)
		if gerr != nil {
			return nil, gerr
		}
		if cur.ConversationID != nil {
			return cur, nil
		}
		return nil, utils.E(utils.CodeConflict, op, "session left pending during provisioning", nil)
	}

	s.governor.Watch(sessionID, limit)

	s.log.WithFields(logrus.Fields{
		"session_id":      sessionID,
		"conversation_id": conv.ID,
	}).Info("session provisioned")

	return s.Get(ctx, sessionID)
}

func (s *interviewService) End(ctx context.Context, sessionID, cause string) (*models.InterviewSession, error) {
	const op = "InterviewService.End"

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var dur int64
	if sess.StartedAt != nil {
		dur = int64(now.Sub(*sess.StartedAt).Seconds())
		if dur < 0 {
			dur = 0
		}
	}

	won, err := s.sessions.MarkEnded(ctx, sessionID, cause, now, dur)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to end session", err)
	}
	if !won {
		cur, gerr := s.Get(ctx, sessionID)
		if gerr != nil {
			return nil, gerr
		}
		if cur.Terminal() {
			// another terminator already won; replay is a no-op
			return cur, nil
		}
		return nil, utils.E(utils.CodeConflict, op, "session has not started", nil)
	}

	// winner's side effects only
	s.governor.Stop(sessionID)
	if sess.ConversationID != nil {
		s.endRemote(*sess.ConversationID)
	}

	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"cause":      cause,
		"duration_s": dur,
	}).Info("session ended")

	return s.Get(ctx, sessionID)
}

func (s *interviewService) Cancel(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	const op = "InterviewService.Cancel"

	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	ok, err := s.sessions.Cancel(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to cancel session", err)
	}
	if !ok {
		cur, gerr := s.Get(ctx, sessionID)
		if gerr != nil {
			return nil, gerr
		}
		if cur.Status == models.SessionStatusCancelled {
			return cur, nil
		}
		return nil, utils.E(utils.CodeConflict, op, "only unstarted sessions can be cancelled", nil)
	}
	return s.Get(ctx, sessionID)
}

func (s *interviewService) Feedback(ctx context.Context, sessionID string) (*models.FeedbackRecord, string, error) {
	const op = "InterviewService.Feedback"

	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, "", err
	}

	f, err := s.feedback.GetBySessionID(ctx, sessionID)
	if err == nil {
		return f, FeedbackAvailable, nil
	}
	if !errors.Is(err, utils.ErrNotFound) {
		return nil, "", utils.E(utils.CodeInternal, op, "failed to get feedback", err)
	}

	ev, err := s.recordings.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			// no recording notification yet
			return nil, FeedbackPending, nil
		}
		return nil, "", utils.E(utils.CodeInternal, op, "failed to get recording event", err)
	}

	switch ev.Status {
	case models.RecordingStatusFailed:
		return nil, FeedbackUnavailable, nil
	case models.RecordingStatusAnalyzing:
		return nil, FeedbackAnalyzing, nil
	default:
		return nil, FeedbackPending, nil
	}
}

// endRemote issues the provider-side end call, best effort. The local
// transition already happened; a provider error here only means the remote
// side lingers until its own timeout.
func (s *interviewService) endRemote(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.endCallTimeout)
	defer cancel()

	if err := s.calls.EndConversation(ctx, conversationID); err != nil {
		s.log.WithError(err).WithField("conversation_id", conversationID).Warn("provider end call failed")
	}
}
