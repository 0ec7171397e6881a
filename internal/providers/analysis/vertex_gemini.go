package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
)

type VertexGemini struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	m := c.GenerativeModel(modelName)
	m.ResponseMIMEType = "application/json"
	return &VertexGemini{client: c, model: m}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) Analyze(ctx context.Context, recordingURL string, rubric Rubric) (string, error) {
	prompt := buildPrompt(rubric)

	resp, err := v.model.GenerateContent(ctx,
		vertexgenai.FileData{MIMEType: "video/mp4", FileURI: recordingURL},
		vertexgenai.Text(prompt),
	)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("vertex: empty response")
	}
	return sb.String(), nil
}

func buildPrompt(r Rubric) string {
	return fmt.Sprintf(`You are evaluating a recorded job interview for the role of %s at %s (%s interview, conducted in %s).

Score the candidate on exactly these four dimensions, each an integer from 0 to 100:
- verbal_communication
- nonverbal_communication
- content_quality
- question_understanding

Respond with a single JSON object:
{
  "verbal_communication": <0-100>,
  "nonverbal_communication": <0-100>,
  "content_quality": <0-100>,
  "question_understanding": <0-100>,
  "overall_score": <0-100>,
  "strengths": ["..."],
  "weaknesses": ["..."],
  "improvement_suggestion": "..."
}

strengths and weaknesses must each contain at least one short item, ordered most important first.`,
		r.JobTitle, r.Company, r.InterviewType, r.Language)
}
