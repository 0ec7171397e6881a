package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SessionStatusPending   = "pending"
	SessionStatusLive      = "live"
	SessionStatusEnded     = "ended"
	SessionStatusCancelled = "cancelled"
)

const (
	EndCauseClient   = "client"
	EndCauseTimeout  = "timeout"
	EndCauseProvider = "provider"
)

// AllowedDurations is the fixed set of configurable interview lengths (minutes).
var AllowedDurations = map[int]bool{1: true, 5: true, 10: true, 15: true, 30: true, 45: true}

// InterviewSession is the durable record of one interview attempt, from setup
// through call end. Status is mutated only through the guarded single-statement
// updates in repositories/postgres.SessionRepository.
type InterviewSession struct {
	SessionID string `gorm:"column:session_id;type:uuid;primaryKey" json:"session_id"`
	UserID    string `gorm:"column:user_id;type:uuid;index" json:"user_id"`

	JobTitle        string `gorm:"column:job_title;type:text" json:"job_title"`
	Company         string `gorm:"column:company;type:text" json:"company"`
	InterviewType   string `gorm:"column:interview_type;type:text" json:"interview_type"` // behavioral|technical|hr
	Language        string `gorm:"column:language;type:text" json:"language"`             // id|en
	DurationMinutes int    `gorm:"column:duration_minutes" json:"duration_minutes"`

	// Remote handle, assigned exactly once by provisioning.
	ConversationID  *string `gorm:"column:conversation_id;type:text;uniqueIndex" json:"conversation_id,omitempty"`
	ConversationURL string  `gorm:"column:conversation_url;type:text" json:"conversation_url,omitempty"`

	Status     string `gorm:"column:status;type:text;index" json:"status"` // pending|live|ended|cancelled
	EndedCause string `gorm:"column:ended_cause;type:text" json:"ended_cause,omitempty"`

	CreatedAt       time.Time  `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	StartedAt       *time.Time `gorm:"column:started_at;type:timestamptz" json:"started_at,omitempty"`
	EndedAt         *time.Time `gorm:"column:ended_at;type:timestamptz" json:"ended_at,omitempty"`
	DurationSeconds int64      `gorm:"column:duration_seconds" json:"duration_seconds"`

	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
}

func (InterviewSession) TableName() string { return "interview_sessions" }

// Terminal reports whether no further status transition is permitted.
func (s *InterviewSession) Terminal() bool {
	return s.Status == SessionStatusEnded || s.Status == SessionStatusCancelled
}

// InterviewConfig is the client-settable part of a session, immutable once the
// session leaves pending.
type InterviewConfig struct {
	JobTitle        string `json:"job_title"`
	Company         string `json:"company"`
	InterviewType   string `json:"interview_type"`
	Language        string `json:"language"`
	DurationMinutes int    `json:"duration_minutes"`
}
