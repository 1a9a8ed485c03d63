package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/patrickmn/go-cache"

	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/gateway/credentials"
	"github.com/username/cardgate/backend/src/gateway/request"
	"github.com/username/cardgate/backend/src/gateway/response"
	"github.com/username/cardgate/backend/src/gateway/transport"
	"github.com/username/cardgate/backend/src/lifecycle"
	"github.com/username/cardgate/backend/src/logger"
	"github.com/username/cardgate/backend/src/model"
	"github.com/username/cardgate/backend/src/models"
)

// TransactionStatusPathPrefix is the network's transaction-query resource.
const TransactionStatusPathPrefix = "/visadirect/fundstransfer/v1/transactions/"

type paymentService struct {
	db       *sql.DB
	builders map[models.OperationKind]request.Builder
	creds    *credentials.Builder
	client   *transport.Client
	machine  *lifecycle.Machine
	outcomes *cache.Cache
}

// NewPaymentService wires the gateway client parts into the merchant-facing
// payment service.
func NewPaymentService(
	db *sql.DB,
	creds *credentials.Builder,
	client *transport.Client,
	machine *lifecycle.Machine,
	builders []request.Builder,
	outcomes *cache.Cache,
) PaymentService {
	byKind := make(map[models.OperationKind]request.Builder, len(builders))
	for _, b := range builders {
		byKind[b.Kind()] = b
	}
	return &paymentService{
		db:       db,
		builders: byKind,
		creds:    creds,
		client:   client,
		machine:  machine,
		outcomes: outcomes,
	}
}

func (s *paymentService) Authorize(ctx context.Context, input models.PaymentInput) (*PaymentResult, error) {
	return s.submit(ctx, models.OpAuthorization, input)
}

func (s *paymentService) PushFunds(ctx context.Context, input models.PaymentInput) (*PaymentResult, error) {
	return s.submit(ctx, models.OpPushFunds, input)
}

func (s *paymentService) PullFunds(ctx context.Context, input models.PaymentInput) (*PaymentResult, error) {
	return s.submit(ctx, models.OpPullFunds, input)
}

func (s *paymentService) Void(ctx context.Context, input models.PaymentInput) (*PaymentResult, error) {
	return s.followUp(ctx, models.OpVoid, models.StatusVoided, input)
}

func (s *paymentService) ReverseFunds(ctx context.Context, input models.PaymentInput) (*PaymentResult, error) {
	return s.followUp(ctx, models.OpReverseFunds, models.StatusReversed, input)
}

// submit runs a fresh money movement: authorization, push or pull.
//
// The transaction record is created in pending before the transport call.
// Trace and retrieval references are generated exactly once per logical
// transaction: a retry of the same merchant transaction id reuses the stored
// references so the network matches it instead of moving money twice.
func (s *paymentService) submit(ctx context.Context, kind models.OperationKind, input models.PaymentInput) (*PaymentResult, error) {
	builder, ok := s.builders[kind]
	if !ok {
		return nil, fmt.Errorf("no request builder for operation kind %q", kind)
	}
	if input.MerchantTransactionID == "" {
		return nil, gateway.NewValidationError("merchantTransactionId")
	}

	// Fast path for resubmits of a recently finished transaction: the cached
	// outcome answers without touching the store. Only terminal outcomes are
	// ever cached, but re-check before trusting it.
	if cached, found := s.outcomes.Get(input.MerchantTransactionID); found {
		if result, ok := cached.(*PaymentResult); ok && result.Status.Terminal() {
			return result, nil
		}
	}

	rin := request.Input{PaymentInput: input}

	existing, err := model.GetTransactionByMerchantID(s.db, input.MerchantTransactionID)
	switch {
	case err == nil:
		if existing.Status.Terminal() {
			// Idempotent resubmit: the logical transaction already ran.
			return resultFromRecord(existing), nil
		}
		if existing.Kind != kind {
			return nil, gateway.NewValidationError("merchantTransactionId")
		}
		// Retry of an in-flight logical transaction: the stored references
		// vouch for the original amount and currency, so a retry that changes
		// either is rejected rather than replayed under the same references.
		var mismatched []string
		if input.Amount != existing.Amount {
			mismatched = append(mismatched, "amount")
		}
		if input.Currency != existing.Currency {
			mismatched = append(mismatched, "currency")
		}
		if len(mismatched) > 0 {
			return nil, gateway.NewValidationError(mismatched...)
		}
		// Thread the original references through, never regenerate.
		rin.TraceNumber = existing.TraceNumber
		rin.RetrievalReference = existing.RetrievalReference
	case errors.Is(err, model.ErrTransactionNotFound):
		existing = nil
	default:
		return nil, err
	}

	built, err := builder.Build(rin)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		record := &model.Transaction{
			MerchantTxID:       input.MerchantTransactionID,
			Kind:               kind,
			Amount:             input.Amount,
			Currency:           input.Currency,
			Status:             models.StatusPending,
			TraceNumber:        built.TraceNumber,
			RetrievalReference: built.RetrievalReference,
		}
		if err := model.CreateTransaction(s.db, record); err != nil {
			return nil, err
		}
		existing = record
	}

	return s.exchange(ctx, existing, built)
}

// followUp runs a void or reversal against a prior completed transaction.
// input.MerchantTransactionID names the original transaction; the original
// record transitions completed -> voided/reversed on success, and a
// transaction is voided/reversed at most once.
func (s *paymentService) followUp(ctx context.Context, kind models.OperationKind, target models.TransactionStatus, input models.PaymentInput) (*PaymentResult, error) {
	builder, ok := s.builders[kind]
	if !ok {
		return nil, fmt.Errorf("no request builder for operation kind %q", kind)
	}
	if input.MerchantTransactionID == "" {
		return nil, gateway.NewValidationError("merchantTransactionId")
	}

	orig, err := model.GetTransactionByMerchantID(s.db, input.MerchantTransactionID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CanTransition(orig.Kind, orig.Status, target); err != nil {
		return nil, err
	}

	rin := request.Input{PaymentInput: input}
	if rin.Amount == "" {
		rin.Amount = orig.Amount
	}
	if rin.Currency == "" {
		rin.Currency = orig.Currency
	}
	rin.NetworkTransactionID = orig.NetworkTransactionID
	rin.OriginalTraceNumber = orig.TraceNumber
	rin.OriginalRetrievalReference = orig.RetrievalReference

	built, err := builder.Build(rin)
	if err != nil {
		return nil, err
	}

	headers := s.creds.AuthHeaders(built.Dialect, built.Path, string(built.Payload))
	resp, err := s.client.Send(ctx, built.Method, built.Path, headers, built.Payload)
	if err != nil {
		// The call may still have reached the network; the original stays
		// completed until a definitive response or reconciliation.
		return nil, err
	}

	outcome, err := response.Interpret(built.Dialect, resp)
	if err != nil {
		return nil, err
	}

	if !outcome.Success {
		result := resultFromRecord(orig)
		result.Success = false
		result.ResultCode = outcome.ResultCode
		result.ErrorDetail = outcome.ErrorDetail
		return result, nil
	}

	updated, err := s.machine.Apply(orig.MerchantTxID, target, func(t *model.Transaction) {
		mergeMetadata(t, map[string]any{
			string(kind) + "ResultCode":   outcome.ResultCode,
			string(kind) + "TraceNumber":  built.TraceNumber,
			string(kind) + "RetrievalRef": built.RetrievalReference,
		})
	})
	if err != nil {
		return nil, err
	}

	result := resultFromRecord(updated)
	s.outcomes.Set(updated.MerchantTxID, result, cache.DefaultExpiration)
	return result, nil
}

// exchange sends a built request and applies the synchronous outcome to the
// transaction record.
func (s *paymentService) exchange(ctx context.Context, record *model.Transaction, built *request.Built) (*PaymentResult, error) {
	headers := s.creds.AuthHeaders(built.Dialect, built.Path, string(built.Payload))

	resp, err := s.client.Send(ctx, built.Method, built.Path, headers, built.Payload)
	if err != nil {
		// A cancelled or timed-out call may still have reached the network.
		// The record stays pending/processing, never failed on suspicion.
		if logger.L != nil {
			logger.L.Warn("Gateway exchange failed, transaction left in non-terminal state",
				"merchantTransactionId", record.MerchantTxID, "status", string(record.Status), "error", err)
		}
		return nil, err
	}

	// Submit acknowledged; mark processing before the final result is known.
	if record.Status == models.StatusPending {
		updated, applyErr := s.machine.Apply(record.MerchantTxID, models.StatusProcessing, nil)
		if applyErr != nil {
			return nil, applyErr
		}
		record = updated
	}

	outcome, err := response.Interpret(built.Dialect, resp)
	if err != nil {
		return nil, err
	}

	if outcome.Pending {
		result := resultFromRecord(record)
		result.Pending = true
		return result, nil
	}

	target := models.StatusFailed
	if outcome.Success {
		target = models.StatusCompleted
	}
	updated, err := s.machine.Apply(record.MerchantTxID, target, func(t *model.Transaction) {
		t.ResultCode = outcome.ResultCode
		t.ApprovalCode = outcome.ApprovalCode
		if outcome.NetworkTransactionID != "" {
			t.NetworkTransactionID = outcome.NetworkTransactionID
		}
		t.ErrorDetail = outcome.ErrorDetail
	})
	if err != nil {
		return nil, err
	}

	result := resultFromRecord(updated)
	s.outcomes.Set(updated.MerchantTxID, result, cache.DefaultExpiration)
	return result, nil
}

// QueryStatus asks the network for the current state of a submitted
// transaction, using the stored network identifier.
func (s *paymentService) QueryStatus(ctx context.Context, merchantTxID string) (*PaymentResult, error) {
	tx, err := model.GetTransactionByMerchantID(s.db, merchantTxID)
	if err != nil {
		return nil, err
	}
	if tx.NetworkTransactionID == "" {
		// Nothing to query; report the local state.
		return resultFromRecord(tx), nil
	}

	path := TransactionStatusPathPrefix + tx.NetworkTransactionID
	headers := s.creds.AuthHeaders(gateway.DialectFundsTransfer, path, "")
	resp, err := s.client.Send(ctx, http.MethodGet, path, headers, nil)
	if err != nil {
		return nil, err
	}

	outcome, err := response.Interpret(gateway.DialectFundsTransfer, resp)
	if err != nil {
		return nil, err
	}

	result := resultFromRecord(tx)
	result.Success = outcome.Success
	result.ResultCode = outcome.ResultCode
	if outcome.ApprovalCode != "" {
		result.ApprovalCode = outcome.ApprovalCode
	}
	result.ErrorDetail = outcome.ErrorDetail
	return result, nil
}

// GetTransaction returns the persisted record for a merchant transaction id.
func (s *paymentService) GetTransaction(merchantTxID string) (*model.Transaction, error) {
	return model.GetTransactionByMerchantID(s.db, merchantTxID)
}

// resultFromRecord projects a stored transaction onto the merchant result.
func resultFromRecord(tx *model.Transaction) *PaymentResult {
	success := tx.Status == models.StatusCompleted ||
		tx.Status == models.StatusVoided || tx.Status == models.StatusReversed
	return &PaymentResult{
		MerchantTransactionID: tx.MerchantTxID,
		Status:                tx.Status,
		Success:               success,
		ResultCode:            tx.ResultCode,
		ApprovalCode:          tx.ApprovalCode,
		NetworkTransactionID:  tx.NetworkTransactionID,
		ErrorDetail:           tx.ErrorDetail,
	}
}

// mergeMetadata folds key/values into the record's free-form metadata JSON.
func mergeMetadata(t *model.Transaction, extra map[string]any) {
	meta := map[string]any{}
	if t.Metadata != "" {
		if err := json.Unmarshal([]byte(t.Metadata), &meta); err != nil {
			meta = map[string]any{"previous": t.Metadata}
		}
	}
	for k, v := range extra {
		meta[k] = v
	}
	if data, err := json.Marshal(meta); err == nil {
		t.Metadata = string(data)
	}
}
