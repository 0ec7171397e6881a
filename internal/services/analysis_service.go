package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prepview/backend/internal/models"
	"github.com/prepview/backend/internal/providers/analysis"
	mongorepo "github.com/prepview/backend/internal/repositories/mongo"
	pgrepo "github.com/prepview/backend/internal/repositories/postgres"
	"github.com/prepview/backend/internal/storage"
	"github.com/prepview/backend/internal/utils"
)

type AnalysisService interface {
	// Analyze drives one recording event through the analysis provider and,
	// on success, persists the session's feedback record. Safe to invoke
	// concurrently and repeatedly for the same event.
	Analyze(ctx context.Context, eventID string) error

	// Artifacts lists the raw provider responses recorded for a session,
	// newest first. Diagnostics for rejected or failed analyses.
	Artifacts(ctx context.Context, sessionID string, limit int64) ([]models.AnalysisArtifact, error)
}

type analysisService struct {
	sessions   pgrepo.SessionRepository
	recordings pgrepo.RecordingRepository
	feedback   pgrepo.FeedbackRepository
	artifacts  mongorepo.ArtifactRepository
	provider   analysis.Provider
	archive    storage.Uploader // nil disables archiving
	httpc      *http.Client
	log        *logrus.Logger

	callTimeout time.Duration
	maxAttempts int
	backoffBase time.Duration
}

func NewAnalysisService(
	sessions pgrepo.SessionRepository,
	recordings pgrepo.RecordingRepository,
	feedback pgrepo.FeedbackRepository,
	artifacts mongorepo.ArtifactRepository,
	provider analysis.Provider,
	archive storage.Uploader,
	log *logrus.Logger,
) AnalysisService {
	if log == nil {
		log = logrus.New()
	}
	return &analysisService{
		sessions:    sessions,
		recordings:  recordings,
		feedback:    feedback,
		artifacts:   artifacts,
		provider:    provider,
		archive:     archive,
		httpc:       &http.Client{Timeout: 2 * time.Minute},
		log:         log,
		callTimeout: 3 * time.Minute,
		maxAttempts: 3,
		backoffBase: 5 * time.Second,
	}
}

func (s *analysisService) Analyze(ctx context.Context, eventID string) error {
	const op = "AnalysisService.Analyze"

	ev, err := s.recordings.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "recording event not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to load recording event", err)
	}

	// Feedback is write-once; a record means some earlier attempt finished.
	done, err := s.feedbackExists(ctx, ev.SessionID)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to check feedback", err)
	}
	if done {
		_, _ = s.recordings.Claim(ctx, eventID, ev.Status, models.RecordingStatusAnalyzed)
		return nil
	}

	if ev.Status != models.RecordingStatusReceived {
		// analyzing, analyzed or terminally failed elsewhere; decline
		return nil
	}

	claimed, err := s.recordings.Claim(ctx, eventID, models.RecordingStatusReceived, models.RecordingStatusAnalyzing)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to claim event", err)
	}
	if !claimed {
		return nil
	}

	sess, err := s.sessions.Get(ctx, ev.SessionID)
	if err != nil {
		s.fail(ctx, eventID)
		return utils.E(utils.CodeInternal, op, "failed to load session", err)
	}

	recordingURL := s.archiveRecording(ctx, ev)

	rubric := analysis.Rubric{
		JobTitle:      sess.JobTitle,
		Company:       sess.Company,
		InterviewType: sess.InterviewType,
		Language:      sess.Language,
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.backoff(ctx, attempt); err != nil {
				break
			}
			// another path may have produced feedback while we slept
			done, err := s.feedbackExists(ctx, ev.SessionID)
			if err == nil && done {
				_, _ = s.recordings.Claim(ctx, eventID, models.RecordingStatusAnalyzing, models.RecordingStatusAnalyzed)
				return nil
			}
		}

		raw, aerr := s.invoke(ctx, recordingURL, rubric)
		if aerr != nil {
			lastErr = aerr
			s.storeArtifact(ctx, ev, attempt, aerr.Error(), models.ArtifactOutcomeProviderError)
			s.log.WithError(aerr).WithFields(logrus.Fields{
				"event_id": eventID,
				"attempt":  attempt,
			}).Warn("analysis provider call failed")
			continue
		}

		record, perr := parseFeedback(ev.SessionID, raw)
		if perr != nil {
			lastErr = perr
			s.storeArtifact(ctx, ev, attempt, raw, models.ArtifactOutcomeInvalid)
			s.log.WithError(perr).WithFields(logrus.Fields{
				"event_id": eventID,
				"attempt":  attempt,
			}).Warn("analysis response rejected")
			continue
		}
		s.storeArtifact(ctx, ev, attempt, raw, models.ArtifactOutcomeParsed)

		if err := s.feedback.Create(ctx, record); err != nil && !errors.Is(err, utils.ErrDuplicate) {
			lastErr = err
			continue
		}

		_, _ = s.recordings.Claim(ctx, eventID, models.RecordingStatusAnalyzing, models.RecordingStatusAnalyzed)
		s.log.WithFields(logrus.Fields{
			"session_id": ev.SessionID,
			"event_id":   eventID,
			"overall":    record.OverallScore,
		}).Info("feedback persisted")
		return nil
	}

	s.fail(ctx, eventID)
	code := utils.CodeAnalysisFailed
	if utils.IsCode(lastErr, utils.CodeInvalidAnalysis) {
		code = utils.CodeInvalidAnalysis
	}
	return utils.E(code, op, "analysis did not produce a valid result", lastErr)
}

func (s *analysisService) Artifacts(ctx context.Context, sessionID string, limit int64) ([]models.AnalysisArtifact, error) {
	const op = "AnalysisService.Artifacts"

	if s.artifacts == nil {
		return nil, nil
	}
	out, err := s.artifacts.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list analysis artifacts", err)
	}
	return out, nil
}

func (s *analysisService) feedbackExists(ctx context.Context, sessionID string) (bool, error) {
	_, err := s.feedback.GetBySessionID(ctx, sessionID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, utils.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *analysisService) invoke(ctx context.Context, recordingURL string, rubric analysis.Rubric) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.provider.Analyze(cctx, recordingURL, rubric)
}

func (s *analysisService) fail(ctx context.Context, eventID string) {
	if _, err := s.recordings.Claim(ctx, eventID, models.RecordingStatusAnalyzing, models.RecordingStatusFailed); err != nil {
		s.log.WithError(err).WithField("event_id", eventID).Error("failed to mark event analysis_failed")
	}
}

func (s *analysisService) backoff(ctx context.Context, attempt int) error {
	d := s.backoffBase << (attempt - 2)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (s *analysisService) storeArtifact(ctx context.Context, ev *models.RecordingEvent, attempt int, raw, outcome string) {
	if s.artifacts == nil {
		return
	}
	err := s.artifacts.Insert(ctx, &models.AnalysisArtifact{
		SessionID:   ev.SessionID,
		EventID:     ev.EventID,
		Attempt:     attempt,
		RawResponse: raw,
		Outcome:     outcome,
	})
	if err != nil {
		s.log.WithError(err).WithField("event_id", ev.EventID).Warn("artifact insert failed")
	}
}

// archiveRecording copies the provider-hosted recording into our bucket and
// returns the URI the analysis provider should read. Provider URLs expire, and
// the Vertex backend can only read Cloud Storage URIs; without an archiver the
// original URL is passed through as-is.
func (s *analysisService) archiveRecording(ctx context.Context, ev *models.RecordingEvent) string {
	if ev.ArchivedURL != nil && *ev.ArchivedURL != "" {
		return *ev.ArchivedURL
	}
	if s.archive == nil {
		return ev.RecordingURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ev.RecordingURL, nil)
	if err != nil {
		return ev.RecordingURL
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		s.log.WithError(err).WithField("event_id", ev.EventID).Warn("recording download failed")
		return ev.RecordingURL
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.log.WithField("status", resp.StatusCode).WithField("event_id", ev.EventID).Warn("recording download rejected")
		return ev.RecordingURL
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}

	object := fmt.Sprintf("recordings/%s/%s.mp4", ev.SessionID, ev.EventID)
	stored, err := s.archive.Upload(ctx, object, contentType, io.LimitReader(resp.Body, 2<<30))
	if err != nil {
		s.log.WithError(err).WithField("event_id", ev.EventID).Warn("recording archive failed")
		return ev.RecordingURL
	}

	if err := s.recordings.SetArchivedURL(ctx, ev.EventID, stored); err != nil {
		s.log.WithError(err).WithField("event_id", ev.EventID).Warn("archived_url update failed")
	}
	return stored
}
