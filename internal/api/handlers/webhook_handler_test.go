package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/prepview/backend/internal/services"
	"github.com/prepview/backend/internal/utils"
)

const webhookTestSecret = "test-webhook-secret"

type stubWebhookService struct {
	ingested  []services.RecordingNotification
	result    *services.IngestResult
	ingestErr error
}

func (s *stubWebhookService) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(webhookTestSecret))
	mac.Write(body)
	return hmac.Equal([]byte(signature), []byte(hex.EncodeToString(mac.Sum(nil))))
}

func (s *stubWebhookService) Ingest(_ context.Context, n services.RecordingNotification) (*services.IngestResult, error) {
	s.ingested = append(s.ingested, n)
	if s.ingestErr != nil {
		return nil, s.ingestErr
	}
	return s.result, nil
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookTestSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postRecordingReady(t *testing.T, svc services.WebhookService, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/recording-ready", NewWebhookHandler(svc).RecordingReady)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/recording-ready", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validNotificationBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(services.RecordingNotification{
		ConversationID: "conv-1",
		RecordingURL:   "https://recordings.example/conv-1.mp4",
		DeliveryID:     "del-1",
	})
	if err != nil {
		t.Fatalf("marshal notification: %v", err)
	}
	return body
}

func TestRecordingReadyAccepted(t *testing.T) {
	svc := &stubWebhookService{result: &services.IngestResult{EventID: "evt-1", SessionID: "sess-1"}}
	body := validNotificationBody(t)

	w := postRecordingReady(t, svc, body, signBody(body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	var ack WebhookAck
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
		t.Fatalf("invalid ack: %v", err)
	}
	if ack.Status != "accepted" || ack.EventID != "evt-1" || ack.SessionID != "sess-1" {
		t.Fatalf("ack = %+v", ack)
	}
	if len(svc.ingested) != 1 || svc.ingested[0].ConversationID != "conv-1" {
		t.Fatalf("ingested = %+v", svc.ingested)
	}
}

func TestRecordingReadyDuplicate(t *testing.T) {
	svc := &stubWebhookService{result: &services.IngestResult{EventID: "evt-1", SessionID: "sess-1", Duplicate: true}}
	body := validNotificationBody(t)

	w := postRecordingReady(t, svc, body, signBody(body))

	if w.Code != http.StatusOK {
		t.Fatalf("duplicate status = %d, want 200", w.Code)
	}
	var ack WebhookAck
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
		t.Fatalf("invalid ack: %v", err)
	}
	if ack.Status != "duplicate" {
		t.Fatalf("ack.Status = %q, want duplicate", ack.Status)
	}
}

func TestRecordingReadyBadSignature(t *testing.T) {
	svc := &stubWebhookService{result: &services.IngestResult{}}
	body := validNotificationBody(t)

	for _, sig := range []string{"", "deadbeef", signBody([]byte("other payload"))} {
		w := postRecordingReady(t, svc, body, sig)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("signature %q: status = %d, want 401", sig, w.Code)
		}
	}
	if len(svc.ingested) != 0 {
		t.Fatalf("unsigned deliveries must never reach Ingest, got %d", len(svc.ingested))
	}
}

func TestRecordingReadyMalformedBody(t *testing.T) {
	svc := &stubWebhookService{result: &services.IngestResult{}}
	body := []byte(`{"conversation_id": `)

	w := postRecordingReady(t, svc, body, signBody(body))

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if len(svc.ingested) != 0 {
		t.Fatalf("malformed body must not reach Ingest")
	}
}

func TestRecordingReadyUnknownConversation(t *testing.T) {
	svc := &stubWebhookService{
		ingestErr: utils.E(utils.CodeNotFound, "WebhookService.Ingest", "no session for conversation", nil),
	}
	body := validNotificationBody(t)

	w := postRecordingReady(t, svc, body, signBody(body))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var apiErr APIError
	if err := json.Unmarshal(w.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if apiErr.Code != utils.CodeNotFound {
		t.Fatalf("error code = %q, want NOT_FOUND", apiErr.Code)
	}
}
