package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/logger"
	"github.com/username/cardgate/backend/src/models"
	"github.com/username/cardgate/backend/src/utils"
	"github.com/username/cardgate/backend/src/webhook"
)

// maxWebhookBodyBytes caps inbound webhook payloads.
const maxWebhookBodyBytes = 1 << 20

// WebhookHandler receives asynchronous callbacks from the counterpart
// network, verifies their signature and routes them into the dispatcher.
type WebhookHandler struct {
	verifier   *webhook.Verifier
	dispatcher *webhook.Dispatcher
}

func NewWebhookHandler(verifier *webhook.Verifier, dispatcher *webhook.Dispatcher) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		dispatcher: dispatcher,
	}
}

// HandleWebhook verifies and dispatches one delivery. Verification failures
// return 401 and are never dispatched; dispatch errors return 500 so the
// network redelivers; everything else (including unknown event types and
// duplicates) is acknowledged with 200 to avoid a retry storm.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		utils.SendJSONError(w, "error reading body", http.StatusInternalServerError)
		return
	}

	signature := r.Header.Get(webhook.SignatureHeader)
	if err := h.verifier.Verify(rawBody, signature); err != nil {
		logger.L.Warn("Webhook signature verification failed", "remoteAddr", r.RemoteAddr, "error", err)
		utils.SendJSONError(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		logger.L.Warn("Webhook body unparseable after valid signature", "error", err)
		utils.SendJSONError(w, "invalid payload", http.StatusInternalServerError)
		return
	}

	result, err := h.dispatcher.Dispatch(event)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidStateTransition) {
			// Logged for investigation; acknowledged so the network does not
			// redeliver an event we can never apply.
			logger.L.Error("Webhook event rejected by state machine",
				"eventType", event.EventType, "transactionId", event.TransactionID, "error", err)
		} else {
			logger.L.Error("Webhook dispatch failed", "eventType", event.EventType, "error", err)
			utils.SendJSONError(w, "dispatch failed", http.StatusInternalServerError)
			return
		}
	}

	outcome := ""
	if result != nil {
		outcome = result.Outcome
	}
	logger.L.Info("Webhook processed",
		"eventType", event.EventType, "transactionId", event.TransactionID, "outcome", outcome)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"received":      true,
		"transactionId": event.TransactionID,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}
