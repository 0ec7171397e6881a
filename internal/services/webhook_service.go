package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/prepview/backend/internal/cache"
	"github.com/prepview/backend/internal/models"
	"github.com/prepview/backend/internal/queue"
	pgrepo "github.com/prepview/backend/internal/repositories/postgres"
	"github.com/prepview/backend/internal/utils"
)

// RecordingNotification is the provider's recording-ready webhook body.
type RecordingNotification struct {
	ConversationID string `json:"conversation_id"`
	RecordingURL   string `json:"recording_url"`
	DeliveryID     string `json:"delivery_id"`
}

type IngestResult struct {
	EventID   string
	SessionID string
	Duplicate bool
}

type WebhookService interface {
	// VerifySignature checks the provider HMAC over the raw body. Payloads
	// failing this never reach Ingest.
	VerifySignature(body []byte, signature string) bool

	Ingest(ctx context.Context, n RecordingNotification) (*IngestResult, error)
}

type webhookService struct {
	sessions   pgrepo.SessionRepository
	recordings pgrepo.RecordingRepository
	interviews InterviewService
	idem       cache.Cache
	queue      queue.Enqueuer
	secret     []byte
	log        *logrus.Logger
}

func NewWebhookService(
	sessions pgrepo.SessionRepository,
	recordings pgrepo.RecordingRepository,
	interviews InterviewService,
	idem cache.Cache,
	q queue.Enqueuer,
	secret string,
	log *logrus.Logger,
) WebhookService {
	if log == nil {
		log = logrus.New()
	}
	return &webhookService{
		sessions:   sessions,
		recordings: recordings,
		interviews: interviews,
		idem:       idem,
		queue:      q,
		secret:     []byte(secret),
		log:        log,
	}
}

func (s *webhookService) VerifySignature(body []byte, signature string) bool {
	if len(s.secret) == 0 || signature == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(want), []byte(strings.ToLower(signature)))
}

func (s *webhookService) Ingest(ctx context.Context, n RecordingNotification) (*IngestResult, error) {
	const op = "WebhookService.Ingest"

	if n.ConversationID == "" || n.RecordingURL == "" {
		return nil, utils.E(utils.CodeUnprocessable, op, "conversation_id and recording_url are required", nil)
	}

	sess, err := s.sessions.GetByConversationID(ctx, n.ConversationID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			// never create a session from a webhook
			return nil, utils.E(utils.CodeNotFound, op, "no session holds this conversation", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to look up session", err)
	}

	// The recording exists, so the call is over on the provider's side. Settle
	// the local state first; End is idempotent against the client and timeout
	// paths, so arrival order does not matter.
	if sess.Status == models.SessionStatusLive {
		if _, err := s.interviews.End(ctx, sess.SessionID, models.EndCauseProvider); err != nil {
			s.log.WithError(err).WithField("session_id", sess.SessionID).Warn("provider-reported end failed")
		}
	}

	// Fast-path dedup on (conversation, delivery). A Redis outage falls
	// through to the durable claim below rather than dropping the delivery.
	key := "webhook:delivery:" + n.ConversationID
	if n.DeliveryID != "" {
		key += ":" + n.DeliveryID
	}
	if s.idem != nil {
		fresh, cerr := s.idem.Claim(ctx, key, 24*time.Hour)
		if cerr != nil {
			s.log.WithError(cerr).Warn("idempotency claim failed, relying on durable dedup")
		} else if !fresh {
			// A held claim with no durable event means an earlier accept died
			// before the insert; take the durable path again instead of acking
			// a delivery that was never stored.
			if res, stored := s.replay(ctx, sess, n); stored {
				return res, nil
			}
		}
	}

	ev := &models.RecordingEvent{
		EventID:        uuid.NewString(),
		SessionID:      sess.SessionID,
		ConversationID: n.ConversationID,
		RecordingURL:   n.RecordingURL,
		DeliveryID:     n.DeliveryID,
		Status:         models.RecordingStatusReceived,
		DeliveredAt:    time.Now().UTC(),
	}
	if err := s.recordings.Create(ctx, ev); err != nil {
		if errors.Is(err, utils.ErrDuplicate) {
			res, _ := s.replay(ctx, sess, n)
			return res, nil
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to record delivery", err)
	}

	s.enqueue(ctx, ev)

	s.log.WithFields(logrus.Fields{
		"session_id":      sess.SessionID,
		"conversation_id": n.ConversationID,
		"event_id":        ev.EventID,
	}).Info("recording accepted")

	return &IngestResult{EventID: ev.EventID, SessionID: sess.SessionID}, nil
}

// replay acknowledges a redelivery against the stored event. If the event
// never left received (a crash between insert and enqueue), the redelivery
// re-enqueues it; the worker's status claim collapses doubles. Returns false
// when no event exists for the session, so the caller can fall back to the
// durable insert rather than ack a delivery that was never persisted.
func (s *webhookService) replay(ctx context.Context, sess *models.InterviewSession, n RecordingNotification) (*IngestResult, bool) {
	ev, err := s.recordings.GetBySessionID(ctx, sess.SessionID)
	if err != nil {
		return &IngestResult{SessionID: sess.SessionID, Duplicate: true}, false
	}

	res := &IngestResult{SessionID: sess.SessionID, EventID: ev.EventID, Duplicate: true}
	if ev.Status == models.RecordingStatusReceived {
		s.enqueue(ctx, ev)
	}

	s.log.WithFields(logrus.Fields{
		"session_id":  sess.SessionID,
		"delivery_id": n.DeliveryID,
	}).Info("duplicate delivery ignored")
	return res, true
}

// enqueue hands the event to the analysis workers. Failure is logged, not
// returned: the event row is durable and the provider's next redelivery
// re-enqueues it.
func (s *webhookService) enqueue(ctx context.Context, ev *models.RecordingEvent) {
	err := s.queue.EnqueueAnalysis(ctx, queue.AnalysisJob{
		EventID:        ev.EventID,
		SessionID:      ev.SessionID,
		ConversationID: ev.ConversationID,
		RecordingURL:   ev.RecordingURL,
	})
	if err != nil {
		s.log.WithError(err).WithField("event_id", ev.EventID).Error("analysis enqueue failed")
	}
}
