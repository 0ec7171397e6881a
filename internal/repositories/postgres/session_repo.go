package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/prepview/backend/internal/models"
	"github.com/prepview/backend/internal/utils"
)

// SessionRepository is the session store contract. Every status transition is
// a single guarded UPDATE; callers learn whether they won the transition from
// the boolean, and that guarantee holds across processes, not just goroutines.
type SessionRepository interface {
	Create(ctx context.Context, s *models.InterviewSession) error
	Get(ctx context.Context, sessionID string) (*models.InterviewSession, error)
	GetByConversationID(ctx context.Context, conversationID string) (*models.InterviewSession, error)

	// Activate assigns the remote handle and moves pending->live in one
	// statement. False when the session was not pending or already holds a
	// handle.
	Activate(ctx context.Context, sessionID, conversationID, conversationURL string, startedAt time.Time) (bool, error)

	// MarkEnded performs the live->ended compare-and-set, recording the
	// winning cause. False when some other terminator got there first.
	MarkEnded(ctx context.Context, sessionID, cause string, endedAt time.Time, durationSeconds int64) (bool, error)

	// Cancel moves pending->cancelled, only while no remote conversation exists.
	Cancel(ctx context.Context, sessionID string) (bool, error)

	// UpdateConfig rewrites the configuration, pending-only.
	UpdateConfig(ctx context.Context, sessionID string, cfg models.InterviewConfig) (bool, error)
}

type sessionRepo struct {
	db *gorm.DB
}

func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.InterviewSession) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepo) Get(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	var s models.InterviewSession
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *sessionRepo) GetByConversationID(ctx context.Context, conversationID string) (*models.InterviewSession, error) {
	var s models.InterviewSession
	err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *sessionRepo) Activate(ctx context.Context, sessionID, conversationID, conversationURL string, startedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("session_id = ? AND status = ? AND conversation_id IS NULL", sessionID, models.SessionStatusPending).
		Updates(map[string]any{
			"status":           models.SessionStatusLive,
			"conversation_id":  conversationID,
			"conversation_url": conversationURL,
			"started_at":       startedAt.UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *sessionRepo) MarkEnded(ctx context.Context, sessionID, cause string, endedAt time.Time, durationSeconds int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("session_id = ? AND status = ?", sessionID, models.SessionStatusLive).
		Updates(map[string]any{
			"status":           models.SessionStatusEnded,
			"ended_cause":      cause,
			"ended_at":         endedAt.UTC(),
			"duration_seconds": durationSeconds,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *sessionRepo) Cancel(ctx context.Context, sessionID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("session_id = ? AND status = ? AND conversation_id IS NULL", sessionID, models.SessionStatusPending).
		Update("status", models.SessionStatusCancelled)
	return res.RowsAffected == 1, res.Error
}

func (r *sessionRepo) UpdateConfig(ctx context.Context, sessionID string, cfg models.InterviewConfig) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("session_id = ? AND status = ?", sessionID, models.SessionStatusPending).
		Updates(map[string]any{
			"job_title":        cfg.JobTitle,
			"company":          cfg.Company,
			"interview_type":   cfg.InterviewType,
			"language":         cfg.Language,
			"duration_minutes": cfg.DurationMinutes,
		})
	return res.RowsAffected == 1, res.Error
}
