package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/prepview/backend/internal/models"
)

type ArtifactRepository interface {
	Insert(ctx context.Context, a *models.AnalysisArtifact) error
	ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.AnalysisArtifact, error)
}

type artifactRepo struct {
	col *mongo.Collection
	ttl time.Duration
}

func NewArtifactRepo(db *mongo.Database, ttl time.Duration) ArtifactRepository {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &artifactRepo{col: db.Collection("analysis_artifacts"), ttl: ttl}
}

func (r *artifactRepo) Insert(ctx context.Context, a *models.AnalysisArtifact) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.ExpiresAt.IsZero() {
		a.ExpiresAt = now.Add(r.ttl)
	}
	_, err := r.col.InsertOne(ctx, a)
	return err
}

func (r *artifactRepo) ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.AnalysisArtifact, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cur, err := r.col.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.AnalysisArtifact
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
