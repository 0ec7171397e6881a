package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/prepview/backend/internal/models"
	"github.com/prepview/backend/internal/utils"
)

type FeedbackRepository interface {
	// Create fails with utils.ErrDuplicate when a record already exists for
	// the session; feedback is write-once.
	Create(ctx context.Context, f *models.FeedbackRecord) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.FeedbackRecord, error)
}

type feedbackRepo struct {
	db *gorm.DB
}

func NewFeedbackRepo(db *gorm.DB) FeedbackRepository {
	return &feedbackRepo{db: db}
}

func (r *feedbackRepo) Create(ctx context.Context, f *models.FeedbackRecord) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Create(f).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return utils.ErrDuplicate
	}
	return err
}

func (r *feedbackRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.FeedbackRecord, error) {
	var f models.FeedbackRecord
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &f, err
}
