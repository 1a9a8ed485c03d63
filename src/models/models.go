package models

import (
	"fmt"
	"time"
)

// OperationKind identifies the network operation a transaction performs.
type OperationKind string

const (
	OpAuthorization OperationKind = "authorization"
	OpVoid          OperationKind = "void"
	OpPushFunds     OperationKind = "push"
	OpPullFunds     OperationKind = "pull"
	OpReverseFunds  OperationKind = "reversal"
)

// IsAuthorizationKind reports whether the kind belongs to the
// authorization/void dialect (nested envelope, signed-token headers).
func (k OperationKind) IsAuthorizationKind() bool {
	return k == OpAuthorization || k == OpVoid
}

// IsFundsTransferKind reports whether the kind belongs to the flat
// funds-transfer dialect.
func (k OperationKind) IsFundsTransferKind() bool {
	return k == OpPushFunds || k == OpPullFunds || k == OpReverseFunds
}

// TransactionStatus is the lifecycle status of a transaction record.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
	StatusVoided     TransactionStatus = "voided"
	StatusReversed   TransactionStatus = "reversed"
)

// Terminal reports whether no further submit should act on the record.
// Voided/reversed are reachable from completed, so completed itself is not
// terminal for lifecycle purposes, but it is terminal for resubmits.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusVoided || s == StatusReversed
}

// CardReference is the read-only card data supplied by the caller. The full
// unmasked number only exists between here and the field-encryption boundary;
// it must never be logged or persisted in cleartext.
type CardReference struct {
	HolderName    string `json:"holderName"`
	ExpiryDate    string `json:"expiryDate"` // YYYY-MM
	AccountNumber string `json:"accountNumber"`
	Brand         string `json:"brand"`
}

// PaymentInput is the merchant-facing input model consumed by the request
// builders.
type PaymentInput struct {
	MerchantTransactionID string        `json:"merchantTransactionId"`
	Amount                string        `json:"amount"`
	Currency              string        `json:"currency"`
	Card                  CardReference `json:"card"`
	SenderName            string        `json:"senderName,omitempty"`
	Description           string        `json:"description,omitempty"`

	// Reference to a prior transaction, required for void/reverse.
	NetworkTransactionID string `json:"networkTransactionId,omitempty"`
}

// WebhookEvent is an asynchronous callback from the counterpart network.
type WebhookEvent struct {
	EventID       string            `json:"eventId"`
	TransactionID string            `json:"transactionId"`
	Status        string            `json:"status"`
	EventType     string            `json:"eventType"`
	Timestamp     time.Time         `json:"timestamp"`
	Data          map[string]string `json:"data,omitempty"`
}

// Key returns the identity used for duplicate-delivery detection. Deliveries
// that omit an explicit event id fall back to the event's composite identity,
// so a redelivered payload still maps to the same key.
func (e WebhookEvent) Key() string {
	if e.EventID != "" {
		return e.EventID
	}
	return fmt.Sprintf("%s:%s:%d", e.EventType, e.TransactionID, e.Timestamp.Unix())
}
