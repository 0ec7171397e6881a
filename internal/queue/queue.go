package queue

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// AnalysisStream is the Redis stream fed by the webhook ingestor and drained
// by the analysis worker pool.
const AnalysisStream = "analysis:stream"

type AnalysisJob struct {
	EventID        string
	SessionID      string
	ConversationID string
	RecordingURL   string
}

type Enqueuer interface {
	EnqueueAnalysis(ctx context.Context, job AnalysisJob) error
}

type RedisQueue struct {
	rdb    *redis.Client
	stream string
}

func NewRedisQueue(rdb *redis.Client, stream string) *RedisQueue {
	if stream == "" {
		stream = AnalysisStream
	}
	return &RedisQueue{rdb: rdb, stream: stream}
}

func (q *RedisQueue) EnqueueAnalysis(ctx context.Context, job AnalysisJob) error {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"event_id":        job.EventID,
			"session_id":      job.SessionID,
			"conversation_id": job.ConversationID,
			"recording_url":   job.RecordingURL,
		},
	}).Err()
}
