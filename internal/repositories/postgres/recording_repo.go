package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/prepview/backend/internal/models"
	"github.com/prepview/backend/internal/utils"
)

type RecordingRepository interface {
	// Create inserts the first event for a conversation. A concurrent or
	// replayed delivery hits the unique conversation_id index and surfaces as
	// utils.ErrDuplicate.
	Create(ctx context.Context, e *models.RecordingEvent) error
	Get(ctx context.Context, eventID string) (*models.RecordingEvent, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.RecordingEvent, error)

	// Claim is the compare-and-set on processing status. Claiming into
	// analyzing bumps the attempt counter.
	Claim(ctx context.Context, eventID, expected, next string) (bool, error)

	SetArchivedURL(ctx context.Context, eventID, url string) error
}

type recordingRepo struct {
	db *gorm.DB
}

func NewRecordingRepo(db *gorm.DB) RecordingRepository {
	return &recordingRepo{db: db}
}

func (r *recordingRepo) Create(ctx context.Context, e *models.RecordingEvent) error {
	if e.DeliveredAt.IsZero() {
		e.DeliveredAt = time.Now().UTC()
	}
	e.UpdatedAt = e.DeliveredAt
	err := r.db.WithContext(ctx).Create(e).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return utils.ErrDuplicate
	}
	return err
}

func (r *recordingRepo) Get(ctx context.Context, eventID string) (*models.RecordingEvent, error) {
	var e models.RecordingEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &e, err
}

func (r *recordingRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.RecordingEvent, error) {
	var e models.RecordingEvent
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &e, err
}

func (r *recordingRepo) Claim(ctx context.Context, eventID, expected, next string) (bool, error) {
	updates := map[string]any{
		"status":     next,
		"updated_at": time.Now().UTC(),
	}
	if next == models.RecordingStatusAnalyzing {
		updates["attempts"] = gorm.Expr("attempts + 1")
	}
	res := r.db.WithContext(ctx).
		Model(&models.RecordingEvent{}).
		Where("event_id = ? AND status = ?", eventID, expected).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *recordingRepo) SetArchivedURL(ctx context.Context, eventID, url string) error {
	return r.db.WithContext(ctx).
		Model(&models.RecordingEvent{}).
		Where("event_id = ?", eventID).
		Update("archived_url", url).Error
}
