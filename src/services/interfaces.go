package services

import (
	"context"

	"github.com/username/cardgate/backend/src/model"
	"github.com/username/cardgate/backend/src/models"
)

// PaymentResult is the structured outcome returned to the merchant
// application. It distinguishes a malformed request (surfaced as an error
// before any result exists), a business decline (Success=false with the
// network's result code) and an unreachable network (error from the
// transport taxonomy). These are never collapsed into one another.
type PaymentResult struct {
	MerchantTransactionID string                   `json:"merchantTransactionId"`
	Status                models.TransactionStatus `json:"status"`
	Success               bool                     `json:"success"`
	Pending               bool                     `json:"pending,omitempty"`
	ResultCode            string                   `json:"resultCode,omitempty"`
	ApprovalCode          string                   `json:"approvalCode,omitempty"`
	NetworkTransactionID  string                   `json:"networkTransactionId,omitempty"`
	ErrorDetail           string                   `json:"errorDetail,omitempty"`
}

// PaymentService defines the merchant-facing transaction operations.
type PaymentService interface {
	Authorize(ctx context.Context, input models.PaymentInput) (*PaymentResult, error)
	Void(ctx context.Context, input models.PaymentInput) (*PaymentResult, error)
	PushFunds(ctx context.Context, input models.PaymentInput) (*PaymentResult, error)
	PullFunds(ctx context.Context, input models.PaymentInput) (*PaymentResult, error)
	ReverseFunds(ctx context.Context, input models.PaymentInput) (*PaymentResult, error)
	QueryStatus(ctx context.Context, merchantTxID string) (*PaymentResult, error)
	GetTransaction(merchantTxID string) (*model.Transaction, error)
}
