package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/logger"
	"github.com/username/cardgate/backend/src/model"
	"github.com/username/cardgate/backend/src/models"
	"github.com/username/cardgate/backend/src/security"
	"github.com/username/cardgate/backend/src/services"
	"github.com/username/cardgate/backend/src/utils"
)

// PaymentHandler exposes the merchant-facing transaction API.
type PaymentHandler struct {
	paymentService services.PaymentService
	authService    *security.AuthService
}

func NewPaymentHandler(paymentService services.PaymentService, authService *security.AuthService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		authService:    authService,
	}
}

func (h *PaymentHandler) decodeInput(w http.ResponseWriter, r *http.Request) (*models.PaymentInput, bool) {
	var input models.PaymentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.SendJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return nil, false
	}
	return &input, true
}

func (h *PaymentHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	result, err := h.paymentService.Authorize(r.Context(), *input)
	h.respond(w, result, err)
}

func (h *PaymentHandler) HandleVoid(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	result, err := h.paymentService.Void(r.Context(), *input)
	h.respond(w, result, err)
}

func (h *PaymentHandler) HandlePushFunds(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	result, err := h.paymentService.PushFunds(r.Context(), *input)
	h.respond(w, result, err)
}

func (h *PaymentHandler) HandlePullFunds(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	result, err := h.paymentService.PullFunds(r.Context(), *input)
	h.respond(w, result, err)
}

func (h *PaymentHandler) HandleReverseFunds(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	result, err := h.paymentService.ReverseFunds(r.Context(), *input)
	h.respond(w, result, err)
}

// HandleGetTransaction returns the persisted record for a merchant
// transaction id.
func (h *PaymentHandler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	merchantTxID := r.PathValue("merchantTransactionId")
	if merchantTxID == "" {
		utils.SendJSONError(w, "merchantTransactionId required", http.StatusBadRequest)
		return
	}

	tx, err := h.paymentService.GetTransaction(merchantTxID)
	if err != nil {
		if errors.Is(err, model.ErrTransactionNotFound) {
			utils.SendJSONError(w, "transaction not found", http.StatusNotFound)
			return
		}
		utils.SendJSONError(w, fmt.Sprintf("error loading transaction: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tx); err != nil {
		logger.L.Error("Error encoding transaction response", "merchantTransactionId", merchantTxID, "error", err)
	}
}

// HandleQueryStatus asks the counterpart network for the current state of a
// submitted transaction.
func (h *PaymentHandler) HandleQueryStatus(w http.ResponseWriter, r *http.Request) {
	merchantTxID := r.PathValue("merchantTransactionId")
	if merchantTxID == "" {
		utils.SendJSONError(w, "merchantTransactionId required", http.StatusBadRequest)
		return
	}
	result, err := h.paymentService.QueryStatus(r.Context(), merchantTxID)
	h.respond(w, result, err)
}

// respond maps the service result and error taxonomy onto HTTP. A business
// decline is a normal 200 with success=false; "your request was malformed"
// and "we could not reach the network" get their own statuses and are never
// collapsed into a generic error.
func (h *PaymentHandler) respond(w http.ResponseWriter, result *services.PaymentResult, err error) {
	if err != nil {
		var verr *gateway.ValidationError
		switch {
		case errors.As(err, &verr):
			utils.SendJSONError(w, verr.Error(), http.StatusBadRequest)
		case errors.Is(err, model.ErrTransactionNotFound):
			utils.SendJSONError(w, "transaction not found", http.StatusNotFound)
		case errors.Is(err, gateway.ErrInvalidStateTransition):
			utils.SendJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, gateway.ErrNetworkTimeout):
			utils.SendJSONError(w, "gateway timeout: transaction state is not final", http.StatusGatewayTimeout)
		case errors.Is(err, gateway.ErrNetwork), errors.Is(err, gateway.ErrMalformedResponse):
			utils.SendJSONError(w, "could not reach the payment network", http.StatusBadGateway)
		case errors.Is(err, gateway.ErrEncryptionUnavailable), errors.Is(err, gateway.ErrEncryptionFailed):
			utils.SendJSONError(w, "card encryption unavailable", http.StatusInternalServerError)
		default:
			utils.SendJSONError(w, fmt.Sprintf("internal error: %v", err), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.L.Error("Error encoding payment result", "error", err)
	}
}
