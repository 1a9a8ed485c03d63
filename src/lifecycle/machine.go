// Package lifecycle owns the transaction state machine:
//
//	pending -> processing -> {completed | failed}
//	completed -> voided   (authorization-type transactions, at most once)
//	completed -> reversed (push/pull-type transactions, at most once)
//
// Every other move is illegal and rejected with ErrInvalidStateTransition.
// A synchronous response and an asynchronous webhook may race to apply a
// terminal transition; mutation is serialized per transaction id and the row
// carries an optimistic version, so the last writer of an illegal transition
// is rejected rather than silently ignored.
package lifecycle

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/logger"
	"github.com/username/cardgate/backend/src/model"
	"github.com/username/cardgate/backend/src/models"
)

// transitions holds the legal moves that do not need kind awareness.
var transitions = map[models.TransactionStatus]map[models.TransactionStatus]bool{
	models.StatusPending: {
		models.StatusProcessing: true,
		models.StatusCompleted:  true,
		models.StatusFailed:     true,
	},
	models.StatusProcessing: {
		models.StatusCompleted: true,
		models.StatusFailed:    true,
	},
}

// CanTransition checks the legality of a lifecycle move for a transaction of
// the given kind.
func CanTransition(kind models.OperationKind, from, to models.TransactionStatus) error {
	switch to {
	case models.StatusVoided:
		if from == models.StatusCompleted && kind.IsAuthorizationKind() {
			return nil
		}
	case models.StatusReversed:
		if from == models.StatusCompleted && kind.IsFundsTransferKind() {
			return nil
		}
	default:
		if transitions[from][to] {
			return nil
		}
	}
	return fmt.Errorf("%s transaction cannot move %s -> %s: %w", kind, from, to, gateway.ErrInvalidStateTransition)
}

// Machine applies lifecycle transitions against the persisted record.
type Machine struct {
	db    *sql.DB
	locks sync.Map // merchant tx id -> *sync.Mutex
}

func NewMachine(db *sql.DB) *Machine {
	return &Machine{db: db}
}

func (m *Machine) lockFor(merchantTxID string) *sync.Mutex {
	v, _ := m.locks.LoadOrStore(merchantTxID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Apply moves the transaction identified by merchantTxID to the target
// status, running mutate on the record before persisting. The write is
// guarded by the per-id lock and the row version; on a version conflict the
// record is reloaded and legality re-checked, so an interleaved writer that
// made the move illegal causes a clean rejection.
func (m *Machine) Apply(merchantTxID string, to models.TransactionStatus, mutate func(*model.Transaction)) (*model.Transaction, error) {
	mu := m.lockFor(merchantTxID)
	mu.Lock()
	defer mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		tx, err := model.GetTransactionByMerchantID(m.db, merchantTxID)
		if err != nil {
			return nil, err
		}

		if err := CanTransition(tx.Kind, tx.Status, to); err != nil {
			if logger.L != nil {
				logger.L.Warn("Rejected illegal state transition",
					"merchantTransactionId", merchantTxID,
					"from", string(tx.Status), "to", string(to), "kind", string(tx.Kind))
			}
			return nil, err
		}

		expected := tx.Version
		tx.Status = to
		if mutate != nil {
			mutate(tx)
		}

		err = model.UpdateTransaction(m.db, tx, expected)
		if err == nil {
			// No transition leaves failed/voided/reversed; drop the per-id
			// lock so the map does not grow with every finished transaction.
			// A late racer re-checks legality against the stored state, so a
			// freshly created lock cannot let an illegal move through.
			switch tx.Status {
			case models.StatusFailed, models.StatusVoided, models.StatusReversed:
				m.locks.Delete(merchantTxID)
			}
			return tx, nil
		}
		if !errors.Is(err, model.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("transaction %s: %w", merchantTxID, lastErr)
}
