package models

import (
	"time"

	"gorm.io/datatypes"
)

// FeedbackRecord is the validated analysis result for one session. The
// session_id primary key makes it write-once: a second insert for the same
// session fails on the key, never merges.
type FeedbackRecord struct {
	SessionID string `gorm:"column:session_id;type:uuid;primaryKey" json:"session_id"`

	// Sub-scores, each in [0,100].
	VerbalCommunication    int `gorm:"column:verbal_communication" json:"verbal_communication"`
	NonverbalCommunication int `gorm:"column:nonverbal_communication" json:"nonverbal_communication"`
	ContentQuality         int `gorm:"column:content_quality" json:"content_quality"`
	QuestionUnderstanding  int `gorm:"column:question_understanding" json:"question_understanding"`

	// Provider's overall figure when supplied, else the rounded mean of the
	// four sub-scores. Persisted redundantly for fast reads.
	OverallScore int `gorm:"column:overall_score" json:"overall_score"`

	// Ordered, order meaningful for top-N display.
	Strengths  datatypes.JSON `gorm:"column:strengths;type:jsonb" json:"strengths"`
	Weaknesses datatypes.JSON `gorm:"column:weaknesses;type:jsonb" json:"weaknesses"`

	ImprovementSuggestion string `gorm:"column:improvement_suggestion;type:text" json:"improvement_suggestion"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (FeedbackRecord) TableName() string { return "feedback_records" }
