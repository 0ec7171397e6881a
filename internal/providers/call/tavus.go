package call

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Tavus drives the conversational-video provider's REST API.
type Tavus struct {
	apiKey    string
	baseURL   string
	replicaID string
	personaID string
	webhook   string
	http      *http.Client
}

func NewTavusFromEnv() (*Tavus, error) {
	key := os.Getenv("TAVUS_API_KEY")
	if key == "" {
		return nil, errors.New("TAVUS_API_KEY environment variable is not set")
	}
	base := os.Getenv("TAVUS_BASE_URL")
	if base == "" {
		base = "https://tavusapi.com"
	}
	return &Tavus{
		apiKey:    key,
		baseURL:   strings.TrimRight(base, "/"),
		replicaID: os.Getenv("TAVUS_REPLICA_ID"),
		personaID: os.Getenv("TAVUS_PERSONA_ID"),
		webhook:   os.Getenv("WEBHOOK_CALLBACK_URL"),
		http:      &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (t *Tavus) Close() error { return nil }

type tavusCreateRequest struct {
	ReplicaID           string              `json:"replica_id,omitempty"`
	PersonaID           string              `json:"persona_id,omitempty"`
	ConversationName    string              `json:"conversation_name"`
	ConversationContext string              `json:"conversational_context"`
	CallbackURL         string              `json:"callback_url,omitempty"`
	Properties          tavusCallProperties `json:"properties"`
}

type tavusCallProperties struct {
	MaxCallDuration int    `json:"max_call_duration"` // seconds
	Language        string `json:"language,omitempty"`
	EnableRecording bool   `json:"enable_recording"`
}

type tavusCreateResponse struct {
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
	Status          string `json:"status"`
}

func (t *Tavus) CreateConversation(ctx context.Context, cfg Config) (*Conversation, error) {
	body := tavusCreateRequest{
		ReplicaID:        t.replicaID,
		PersonaID:        t.personaID,
		ConversationName: "interview-" + cfg.SessionID,
		ConversationContext: fmt.Sprintf(
			"You are interviewing a candidate for the role of %s at %s. Interview style: %s. Conduct the interview in %s.",
			cfg.JobTitle, cfg.Company, cfg.InterviewType, cfg.Language,
		),
		CallbackURL: t.webhook,
		Properties: tavusCallProperties{
			MaxCallDuration: int(cfg.MaxDuration.Seconds()),
			Language:        cfg.Language,
			EnableRecording: true,
		},
	}

	var out tavusCreateResponse
	if err := t.do(ctx, http.MethodPost, "/v2/conversations", body, &out); err != nil {
		return nil, err
	}
	if out.ConversationID == "" {
		return nil, errors.New("tavus: create returned empty conversation_id")
	}
	return &Conversation{ID: out.ConversationID, JoinURL: out.ConversationURL}, nil
}

func (t *Tavus) EndConversation(ctx context.Context, conversationID string) error {
	return t.do(ctx, http.MethodPost, "/v2/conversations/"+conversationID+"/end", nil, nil)
}

func (t *Tavus) do(ctx context.Context, method, path string, in, out any) error {
	var rd io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", t.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return fmt.Errorf("tavus: %s %s: status %d: %s", method, path, resp.StatusCode, string(snippet))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
