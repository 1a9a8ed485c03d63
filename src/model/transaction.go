package model

import (
	"database/sql"
	"errors"
	"time"

	"github.com/username/cardgate/backend/src/models"
)

// ErrTransactionNotFound is returned when no record matches the lookup key.
var ErrTransactionNotFound = errors.New("transaction not found")

// ErrVersionConflict is returned when an optimistic update loses the race:
// the row's version no longer matches the one the caller read.
var ErrVersionConflict = errors.New("transaction version conflict")

// Transaction is the persisted record of one logical money movement.
// Trace number and retrieval reference are assigned once at submit time and
// never regenerated on retry of the same logical transaction. Records are
// never hard-deleted; terminal states are retained for audit and idempotency.
type Transaction struct {
	ID                   int64                    `json:"id,omitempty"`
	MerchantTxID         string                   `json:"merchantTransactionId"`
	Kind                 models.OperationKind     `json:"kind"`
	Amount               string                   `json:"amount"`
	Currency             string                   `json:"currency"`
	Status               models.TransactionStatus `json:"status"`
	NetworkTransactionID string                   `json:"networkTransactionId,omitempty"`
	TraceNumber          int                      `json:"traceNumber,omitempty"`
	RetrievalReference   string                   `json:"retrievalReference,omitempty"`
	ApprovalCode         string                   `json:"approvalCode,omitempty"`
	ResultCode           string                   `json:"resultCode,omitempty"`
	ErrorDetail          string                   `json:"errorDetail,omitempty"`
	Metadata             string                   `json:"metadata,omitempty"`
	Version              int64                    `json:"-"`
	CreatedAt            time.Time                `json:"createdAt"`
	UpdatedAt            time.Time                `json:"updatedAt"`
}

const transactionColumns = `id, merchant_tx_id, kind, amount, currency, status,
	network_tx_id, trace_number, retrieval_reference, approval_code,
	result_code, error_detail, metadata, version, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*Transaction, error) {
	var tx Transaction
	var kind, status string
	err := row.Scan(
		&tx.ID, &tx.MerchantTxID, &kind, &tx.Amount, &tx.Currency, &status,
		&tx.NetworkTransactionID, &tx.TraceNumber, &tx.RetrievalReference,
		&tx.ApprovalCode, &tx.ResultCode, &tx.ErrorDetail, &tx.Metadata,
		&tx.Version, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return nil, err
	}
	tx.Kind = models.OperationKind(kind)
	tx.Status = models.TransactionStatus(status)
	return &tx, nil
}

// CreateTransaction inserts a new transaction record in its initial status.
func CreateTransaction(db *sql.DB, tx *Transaction) error {
	query := `
	INSERT INTO transactions (merchant_tx_id, kind, amount, currency, status,
		network_tx_id, trace_number, retrieval_reference, approval_code,
		result_code, error_detail, metadata, version, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	if tx.Version == 0 {
		tx.Version = 1
	}

	res, err := stmt.Exec(tx.MerchantTxID, string(tx.Kind), tx.Amount, tx.Currency,
		string(tx.Status), tx.NetworkTransactionID, tx.TraceNumber,
		tx.RetrievalReference, tx.ApprovalCode, tx.ResultCode, tx.ErrorDetail,
		tx.Metadata, tx.Version, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	tx.ID = id
	return nil
}

// GetTransactionByMerchantID retrieves a transaction by the merchant-assigned
// identifier.
func GetTransactionByMerchantID(db *sql.DB, merchantTxID string) (*Transaction, error) {
	row := db.QueryRow(`SELECT `+transactionColumns+` FROM transactions WHERE merchant_tx_id = ?`, merchantTxID)
	tx, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// GetTransactionByNetworkID retrieves a transaction by the network-assigned
// identifier. Webhook payloads carry this id, not the merchant one. An empty
// id never matches: rows awaiting their network id store '' in the column.
func GetTransactionByNetworkID(db *sql.DB, networkTxID string) (*Transaction, error) {
	if networkTxID == "" {
		return nil, ErrTransactionNotFound
	}
	row := db.QueryRow(`SELECT `+transactionColumns+` FROM transactions WHERE network_tx_id = ?`, networkTxID)
	tx, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// UpdateTransaction persists mutable fields with an optimistic version check.
// The caller passes the version it read; if the row moved on in the meantime
// no write happens and ErrVersionConflict is returned so the losing writer is
// rejected rather than silently ignored.
func UpdateTransaction(db *sql.DB, tx *Transaction, expectedVersion int64) error {
	query := `
	UPDATE transactions
	SET status = ?, network_tx_id = ?, trace_number = ?, retrieval_reference = ?,
		approval_code = ?, result_code = ?, error_detail = ?, metadata = ?,
		version = version + 1, updated_at = ?
	WHERE merchant_tx_id = ? AND version = ?`

	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	res, err := stmt.Exec(string(tx.Status), tx.NetworkTransactionID, tx.TraceNumber,
		tx.RetrievalReference, tx.ApprovalCode, tx.ResultCode, tx.ErrorDetail,
		tx.Metadata, now, tx.MerchantTxID, expectedVersion)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	tx.Version = expectedVersion + 1
	tx.UpdatedAt = now
	return nil
}

// ListTransactions returns recent transactions, newest first.
func ListTransactions(db *sql.DB, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+transactionColumns+` FROM transactions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		txs = append(txs, *tx)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []Transaction{}
	}
	return txs, nil
}
