package models

import "time"

const (
	RecordingStatusReceived  = "received"
	RecordingStatusAnalyzing = "analyzing"
	RecordingStatusAnalyzed  = "analyzed"
	RecordingStatusFailed    = "analysis_failed"
)

// RecordingEvent tracks one provider recording notification through analysis.
// The unique index on conversation_id is load-bearing: duplicate webhook
// deliveries for the same conversation collapse onto a single row, and the
// status column is the claim that keeps concurrent analyzers out of each
// other's way.
type RecordingEvent struct {
	EventID        string `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	SessionID      string `gorm:"column:session_id;type:uuid;index" json:"session_id"`
	ConversationID string `gorm:"column:conversation_id;type:text;uniqueIndex" json:"conversation_id"`

	RecordingURL string  `gorm:"column:recording_url;type:text" json:"recording_url"`
	ArchivedURL  *string `gorm:"column:archived_url;type:text" json:"archived_url,omitempty"`
	DeliveryID   string  `gorm:"column:delivery_id;type:text" json:"delivery_id,omitempty"`

	Status   string `gorm:"column:status;type:text;index" json:"status"` // received|analyzing|analyzed|analysis_failed
	Attempts int    `gorm:"column:attempts" json:"attempts"`

	DeliveredAt time.Time `gorm:"column:delivered_at;type:timestamptz" json:"delivered_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (RecordingEvent) TableName() string { return "recording_events" }
