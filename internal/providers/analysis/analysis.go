package analysis

import "context"

// Rubric carries the session context the provider evaluates against. The four
// dimensions themselves are fixed: verbal communication, non-verbal
// communication, content quality, question understanding.
type Rubric struct {
	JobTitle      string
	Company       string
	InterviewType string
	Language      string
}

type Provider interface {
	// Analyze evaluates the recording and returns the provider's raw response.
	// Parsing and validation happen in the orchestrator, never here.
	Analyze(ctx context.Context, recordingURL string, rubric Rubric) (string, error)
	Close() error
}
