package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ArtifactOutcomeParsed        = "parsed"
	ArtifactOutcomeInvalid       = "invalid"
	ArtifactOutcomeProviderError = "provider_error"
)

// AnalysisArtifact keeps the raw analysis-provider response for one attempt,
// so failed parses stay diagnosable. Expired by a Mongo TTL index.
type AnalysisArtifact struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	EventID   string             `bson:"event_id" json:"event_id"`
	Attempt   int                `bson:"attempt" json:"attempt"`

	RawResponse string `bson:"raw_response" json:"raw_response"`
	Outcome     string `bson:"outcome" json:"outcome"` // parsed|invalid|provider_error

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}
