package lifecycle

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/username/cardgate/backend/src/database"
	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/logger"
	"github.com/username/cardgate/backend/src/model"
	"github.com/username/cardgate/backend/src/models"
)

func init() {
	logger.InitLogger("error")
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedTransaction(t *testing.T, db *sql.DB, merchantTxID string, kind models.OperationKind, status models.TransactionStatus) {
	t.Helper()
	err := model.CreateTransaction(db, &model.Transaction{
		MerchantTxID: merchantTxID,
		Kind:         kind,
		Amount:       "124.05",
		Currency:     "USD",
		Status:       status,
	})
	if err != nil {
		t.Fatalf("seeding transaction: %v", err)
	}
}

func TestCanTransitionLegalMoves(t *testing.T) {
	cases := []struct {
		kind models.OperationKind
		from models.TransactionStatus
		to   models.TransactionStatus
	}{
		{models.OpAuthorization, models.StatusPending, models.StatusProcessing},
		{models.OpAuthorization, models.StatusProcessing, models.StatusCompleted},
		{models.OpAuthorization, models.StatusProcessing, models.StatusFailed},
		{models.OpAuthorization, models.StatusPending, models.StatusFailed},
		{models.OpAuthorization, models.StatusCompleted, models.StatusVoided},
		{models.OpPushFunds, models.StatusCompleted, models.StatusReversed},
		{models.OpPullFunds, models.StatusCompleted, models.StatusReversed},
	}
	for _, c := range cases {
		if err := CanTransition(c.kind, c.from, c.to); err != nil {
			t.Fatalf("%s %s -> %s should be legal: %v", c.kind, c.from, c.to, err)
		}
	}
}

func TestCanTransitionIllegalMoves(t *testing.T) {
	cases := []struct {
		kind models.OperationKind
		from models.TransactionStatus
		to   models.TransactionStatus
	}{
		{models.OpAuthorization, models.StatusCompleted, models.StatusProcessing},
		{models.OpAuthorization, models.StatusFailed, models.StatusCompleted},
		{models.OpAuthorization, models.StatusVoided, models.StatusVoided},
		{models.OpAuthorization, models.StatusVoided, models.StatusCompleted},
		{models.OpAuthorization, models.StatusPending, models.StatusVoided},
		{models.OpAuthorization, models.StatusFailed, models.StatusVoided},
		// Kind rules: funds transfers reverse, authorizations void.
		{models.OpPushFunds, models.StatusCompleted, models.StatusVoided},
		{models.OpAuthorization, models.StatusCompleted, models.StatusReversed},
		{models.OpPushFunds, models.StatusReversed, models.StatusReversed},
	}
	for _, c := range cases {
		err := CanTransition(c.kind, c.from, c.to)
		if !errors.Is(err, gateway.ErrInvalidStateTransition) {
			t.Fatalf("%s %s -> %s should be illegal, got %v", c.kind, c.from, c.to, err)
		}
	}
}

func TestApplyPersistsTransition(t *testing.T) {
	db := newTestDB(t)
	machine := NewMachine(db)
	seedTransaction(t, db, "order-1", models.OpAuthorization, models.StatusPending)

	if _, err := machine.Apply("order-1", models.StatusProcessing, nil); err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}

	tx, err := machine.Apply("order-1", models.StatusCompleted, func(tx *model.Transaction) {
		tx.ApprovalCode = "A1B2C3"
		tx.NetworkTransactionID = "9988776655"
		tx.ResultCode = "00"
	})
	if err != nil {
		t.Fatalf("processing -> completed: %v", err)
	}
	if tx.Status != models.StatusCompleted || tx.ApprovalCode != "A1B2C3" {
		t.Fatalf("unexpected record %+v", tx)
	}

	stored, err := model.GetTransactionByMerchantID(db, "order-1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != models.StatusCompleted || stored.NetworkTransactionID != "9988776655" {
		t.Fatalf("transition not persisted: %+v", stored)
	}
	if stored.Version != 3 {
		t.Fatalf("expected version 3 after two updates, got %d", stored.Version)
	}
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	db := newTestDB(t)
	machine := NewMachine(db)
	seedTransaction(t, db, "order-2", models.OpAuthorization, models.StatusFailed)

	_, err := machine.Apply("order-2", models.StatusCompleted, nil)
	if !errors.Is(err, gateway.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}

	stored, _ := model.GetTransactionByMerchantID(db, "order-2")
	if stored.Status != models.StatusFailed {
		t.Fatalf("rejected transition must not mutate, got %s", stored.Status)
	}
}

func TestApplyVoidOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	machine := NewMachine(db)
	seedTransaction(t, db, "order-3", models.OpAuthorization, models.StatusCompleted)

	if _, err := machine.Apply("order-3", models.StatusVoided, nil); err != nil {
		t.Fatalf("first void: %v", err)
	}
	_, err := machine.Apply("order-3", models.StatusVoided, nil)
	if !errors.Is(err, gateway.ErrInvalidStateTransition) {
		t.Fatalf("second void must be rejected, got %v", err)
	}
}

func TestApplyUnknownTransaction(t *testing.T) {
	db := newTestDB(t)
	machine := NewMachine(db)

	_, err := machine.Apply("missing", models.StatusProcessing, nil)
	if !errors.Is(err, model.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

// Locks for transactions that can never move again are dropped so the map
// does not grow with every finished transaction. Completed keeps its lock:
// voided/reversed are still reachable from it.
func TestApplyEvictsLockWhenNoMoveRemains(t *testing.T) {
	db := newTestDB(t)
	machine := NewMachine(db)
	seedTransaction(t, db, "order-6", models.OpAuthorization, models.StatusPending)

	if _, err := machine.Apply("order-6", models.StatusProcessing, nil); err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	if _, ok := machine.locks.Load("order-6"); !ok {
		t.Fatal("in-flight transaction must keep its lock")
	}

	if _, err := machine.Apply("order-6", models.StatusFailed, nil); err != nil {
		t.Fatalf("processing -> failed: %v", err)
	}
	if _, ok := machine.locks.Load("order-6"); ok {
		t.Fatal("lock must be evicted once no transition can leave the state")
	}

	seedTransaction(t, db, "order-7", models.OpAuthorization, models.StatusProcessing)
	if _, err := machine.Apply("order-7", models.StatusCompleted, nil); err != nil {
		t.Fatalf("processing -> completed: %v", err)
	}
	if _, ok := machine.locks.Load("order-7"); !ok {
		t.Fatal("completed can still be voided/reversed and must keep its lock")
	}
}

// Two goroutines racing to finalize the same transaction: exactly one wins,
// the loser is rejected after re-checking against the new state.
func TestApplyConcurrentTerminalRace(t *testing.T) {
	db := newTestDB(t)
	machine := NewMachine(db)
	seedTransaction(t, db, "order-4", models.OpAuthorization, models.StatusProcessing)

	results := make(chan error, 2)
	go func() {
		_, err := machine.Apply("order-4", models.StatusCompleted, nil)
		results <- err
	}()
	go func() {
		_, err := machine.Apply("order-4", models.StatusFailed, nil)
		results <- err
	}()

	var wins, rejections int
	for i := 0; i < 2; i++ {
		if err := <-results; err == nil {
			wins++
		} else if errors.Is(err, gateway.ErrInvalidStateTransition) {
			rejections++
		} else {
			t.Fatalf("unexpected error in race: %v", err)
		}
	}
	if wins != 1 || rejections != 1 {
		t.Fatalf("expected exactly one winner and one rejection, got %d/%d", wins, rejections)
	}

	stored, _ := model.GetTransactionByMerchantID(db, "order-4")
	if !stored.Status.Terminal() {
		t.Fatalf("expected terminal state, got %s", stored.Status)
	}
}
