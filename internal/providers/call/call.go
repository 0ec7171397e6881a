package call

import (
	"context"
	"time"
)

// Config describes the remote conversation to create for one session.
type Config struct {
	SessionID     string
	JobTitle      string
	Company       string
	InterviewType string
	Language      string
	MaxDuration   time.Duration
}

// Conversation is the provider-side handle for a live call.
type Conversation struct {
	ID      string
	JoinURL string
}

type Provider interface {
	CreateConversation(ctx context.Context, cfg Config) (*Conversation, error)
	EndConversation(ctx context.Context, conversationID string) error
	Close() error
}
