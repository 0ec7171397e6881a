package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepview/backend/internal/services"
	"github.com/prepview/backend/internal/utils"
)

// SignatureHeader carries the provider's HMAC over the raw request body.
const SignatureHeader = "X-Webhook-Signature"

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	svc services.WebhookService
}

func NewWebhookHandler(svc services.WebhookService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

type WebhookAck struct {
	Status    string `json:"status"` // accepted|duplicate
	EventID   string `json:"event_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// RecordingReady handles POST /webhooks/recording-ready. Always answers 200
// once the delivery is durably accepted, duplicates included, so the provider
// stops retrying.
func (h *WebhookHandler) RecordingReady(c *gin.Context) {
	const op = "WebhookHandler.RecordingReady"

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "unreadable body", err))
		return
	}

	if !h.svc.VerifySignature(body, c.GetHeader(SignatureHeader)) {
		writeError(c, utils.E(utils.CodeUnauthorized, op, "invalid webhook signature", nil))
		return
	}

	var n services.RecordingNotification
	if err := json.Unmarshal(body, &n); err != nil {
		writeError(c, utils.E(utils.CodeUnprocessable, op, "malformed webhook body", err))
		return
	}

	res, err := h.svc.Ingest(c.Request.Context(), n)
	if err != nil {
		writeError(c, err)
		return
	}

	ack := WebhookAck{Status: "accepted", EventID: res.EventID, SessionID: res.SessionID}
	if res.Duplicate {
		ack.Status = "duplicate"
	}
	c.JSON(http.StatusOK, ack)
}
