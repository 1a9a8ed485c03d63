package webhook

import (
	"database/sql"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/username/cardgate/backend/src/eventlog"
	"github.com/username/cardgate/backend/src/gateway"
	"github.com/username/cardgate/backend/src/lifecycle"
	"github.com/username/cardgate/backend/src/logger"
	"github.com/username/cardgate/backend/src/model"
	"github.com/username/cardgate/backend/src/models"
)

// Event types the counterpart network delivers.
const (
	EventTransactionCompleted = "TRANSACTION_COMPLETED"
	EventTransactionFailed    = "TRANSACTION_FAILED"
	EventTransactionVoided    = "TRANSACTION_VOIDED"
	EventTransactionReversed  = "TRANSACTION_REVERSED"
)

// eventTargets routes an event type to its state-machine transition.
var eventTargets = map[string]models.TransactionStatus{
	EventTransactionCompleted: models.StatusCompleted,
	EventTransactionFailed:    models.StatusFailed,
	EventTransactionVoided:    models.StatusVoided,
	EventTransactionReversed:  models.StatusReversed,
}

// Dispatch outcomes recorded per event.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeUnmatched = "unmatched"
	OutcomeRejected  = "rejected"
)

// DispatchResult reports what one delivery did.
type DispatchResult struct {
	EventID       string `json:"eventId"`
	TransactionID string `json:"transactionId"`
	Outcome       string `json:"outcome"`
	Applied       bool   `json:"applied"`
}

// Dispatcher routes verified webhook events into the state machine.
// Duplicate deliveries are detected against the persistent event log (with
// an in-memory fast path) and acknowledged without re-applying anything.
type Dispatcher struct {
	db      *sql.DB
	machine *lifecycle.Machine
	log     *eventlog.Store
	seen    *cache.Cache
}

func NewDispatcher(db *sql.DB, machine *lifecycle.Machine, log *eventlog.Store) *Dispatcher {
	return &Dispatcher{
		db:      db,
		machine: machine,
		log:     log,
		seen:    cache.New(1*time.Hour, 2*time.Hour),
	}
}

// Dispatch processes one verified event. It is idempotent: redelivering an
// already-processed event returns its recorded outcome and changes nothing.
// Unknown event types are recorded and acknowledged, never errors, so the
// network does not enter a retry storm over traffic we do not consume.
func (d *Dispatcher) Dispatch(event models.WebhookEvent) (*DispatchResult, error) {
	key := event.Key()

	if _, found := d.seen.Get(key); found {
		return &DispatchResult{EventID: key, TransactionID: event.TransactionID, Outcome: OutcomeDuplicate}, nil
	}
	if prior, err := d.log.Get(key); err == nil {
		d.seen.Set(key, prior.Outcome, cache.DefaultExpiration)
		return &DispatchResult{EventID: key, TransactionID: prior.TransactionID, Outcome: OutcomeDuplicate}, nil
	}

	target, known := eventTargets[event.EventType]
	if !known {
		if logger.L != nil {
			logger.L.Warn("Unknown webhook event type acknowledged without state change",
				"eventType", event.EventType, "transactionId", event.TransactionID)
		}
		d.record(key, event, OutcomeIgnored)
		return &DispatchResult{EventID: key, TransactionID: event.TransactionID, Outcome: OutcomeIgnored}, nil
	}

	// An empty transaction id must never match anything: rows that have not
	// yet been assigned a network id carry '' in that column.
	if event.TransactionID == "" {
		if logger.L != nil {
			logger.L.Warn("Webhook event carried no transaction id", "eventType", event.EventType)
		}
		d.record(key, event, OutcomeUnmatched)
		return &DispatchResult{EventID: key, Outcome: OutcomeUnmatched}, nil
	}

	tx, err := model.GetTransactionByNetworkID(d.db, event.TransactionID)
	if errors.Is(err, model.ErrTransactionNotFound) {
		tx, err = model.GetTransactionByMerchantID(d.db, event.TransactionID)
	}
	if errors.Is(err, model.ErrTransactionNotFound) {
		if logger.L != nil {
			logger.L.Warn("Webhook event matched no transaction",
				"eventType", event.EventType, "transactionId", event.TransactionID)
		}
		d.record(key, event, OutcomeUnmatched)
		return &DispatchResult{EventID: key, TransactionID: event.TransactionID, Outcome: OutcomeUnmatched}, nil
	}
	if err != nil {
		return nil, err
	}

	_, err = d.machine.Apply(tx.MerchantTxID, target, func(t *model.Transaction) {
		applyEventData(t, event)
	})
	if err != nil {
		// A permanently illegal move is recorded so redelivery of this exact
		// event is acknowledged instead of retried forever. Anything else
		// (version conflict exhaustion, db errors) stays unrecorded: the
		// network's redelivery is the retry and must still be able to apply.
		if errors.Is(err, gateway.ErrInvalidStateTransition) {
			d.record(key, event, OutcomeRejected)
		}
		return nil, err
	}

	d.record(key, event, OutcomeApplied)
	return &DispatchResult{EventID: key, TransactionID: event.TransactionID, Outcome: OutcomeApplied, Applied: true}, nil
}

// applyEventData copies the event payload onto the transaction record.
func applyEventData(t *model.Transaction, event models.WebhookEvent) {
	if code, ok := event.Data["resultCode"]; ok {
		t.ResultCode = code
	}
	if approval, ok := event.Data["approvalCode"]; ok {
		t.ApprovalCode = approval
	}
	if event.EventType == EventTransactionFailed {
		if detail, ok := event.Data["errorDetail"]; ok && detail != "" {
			t.ErrorDetail = detail
		} else if event.Status != "" {
			t.ErrorDetail = event.Status
		} else {
			t.ErrorDetail = "transaction failed"
		}
	}
}

// record persists the event outcome in the bolt log, mirrors it to the sqlite
// audit table and primes the fast-path cache.
func (d *Dispatcher) record(key string, event models.WebhookEvent, outcome string) {
	if _, _, err := d.log.Put(&eventlog.Record{
		EventID:       key,
		EventType:     event.EventType,
		TransactionID: event.TransactionID,
		Outcome:       outcome,
	}); err != nil && logger.L != nil {
		logger.L.Error("Failed to record webhook event in event log", "eventId", key, "error", err)
	}

	if err := model.RecordWebhookEvent(d.db, &model.WebhookEventRecord{
		EventID:       key,
		EventType:     event.EventType,
		TransactionID: event.TransactionID,
		Outcome:       outcome,
	}); err != nil && logger.L != nil {
		logger.L.Error("Failed to mirror webhook event to database", "eventId", key, "error", err)
	}

	d.seen.Set(key, outcome, cache.DefaultExpiration)
}
