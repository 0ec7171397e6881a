package services

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/prepview/backend/internal/models"
	"github.com/prepview/backend/internal/utils"
)

// rawFeedback is the loosely-shaped provider output. Pointers distinguish a
// missing score from a zero score.
type rawFeedback struct {
	VerbalCommunication    *float64 `json:"verbal_communication"`
	NonverbalCommunication *float64 `json:"nonverbal_communication"`
	ContentQuality         *float64 `json:"content_quality"`
	QuestionUnderstanding  *float64 `json:"question_understanding"`
	OverallScore           *float64 `json:"overall_score"`
	Strengths              []string `json:"strengths"`
	Weaknesses             []string `json:"weaknesses"`
	ImprovementSuggestion  string   `json:"improvement_suggestion"`
}

// parseFeedback validates the provider response into a FeedbackRecord or
// rejects it. Never trust-and-store: missing or non-numeric dimensions reject
// the payload, out-of-range numerics are clamped into [0,100].
func parseFeedback(sessionID, raw string) (*models.FeedbackRecord, error) {
	const op = "AnalysisService.parseFeedback"

	payload := extractJSON(raw)
	if payload == "" {
		return nil, utils.E(utils.CodeInvalidAnalysis, op, "no JSON object in provider response", nil)
	}

	var rf rawFeedback
	if err := json.Unmarshal([]byte(payload), &rf); err != nil {
		return nil, utils.E(utils.CodeInvalidAnalysis, op, "provider response is not valid JSON", err)
	}

	verbal, err := scoreOf("verbal_communication", rf.VerbalCommunication)
	if err != nil {
		return nil, err
	}
	nonverbal, err := scoreOf("nonverbal_communication", rf.NonverbalCommunication)
	if err != nil {
		return nil, err
	}
	content, err := scoreOf("content_quality", rf.ContentQuality)
	if err != nil {
		return nil, err
	}
	understanding, err := scoreOf("question_understanding", rf.QuestionUnderstanding)
	if err != nil {
		return nil, err
	}

	strengths := cleanList(rf.Strengths)
	weaknesses := cleanList(rf.Weaknesses)
	if len(strengths) == 0 || len(weaknesses) == 0 {
		return nil, utils.E(utils.CodeInvalidAnalysis, op, "strengths and weaknesses must be non-empty lists", nil)
	}

	// provider's overall figure takes precedence over the derived mean
	var overall int
	if rf.OverallScore != nil {
		overall, err = scoreOf("overall_score", rf.OverallScore)
		if err != nil {
			return nil, err
		}
	} else {
		overall = int(math.Round(float64(verbal+nonverbal+content+understanding) / 4.0))
	}

	strengthsJSON, _ := json.Marshal(strengths)
	weaknessesJSON, _ := json.Marshal(weaknesses)

	return &models.FeedbackRecord{
		SessionID:              sessionID,
		VerbalCommunication:    verbal,
		NonverbalCommunication: nonverbal,
		ContentQuality:         content,
		QuestionUnderstanding:  understanding,
		OverallScore:           overall,
		Strengths:              datatypes.JSON(strengthsJSON),
		Weaknesses:             datatypes.JSON(weaknessesJSON),
		ImprovementSuggestion:  strings.TrimSpace(rf.ImprovementSuggestion),
		CreatedAt:              time.Now().UTC(),
	}, nil
}

func scoreOf(name string, v *float64) (int, error) {
	const op = "AnalysisService.parseFeedback"

	if v == nil {
		return 0, utils.E(utils.CodeInvalidAnalysis, op, "missing required score: "+name, nil)
	}
	f := *v
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, utils.E(utils.CodeInvalidAnalysis, op, "score is not a finite number: "+name, nil)
	}
	switch {
	case f < 0:
		return 0, nil
	case f > 100:
		return 100, nil
	default:
		return int(math.Round(f)), nil
	}
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// extractJSON tolerates markdown fencing and prose around the object;
// providers rarely honor "JSON only" perfectly.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
