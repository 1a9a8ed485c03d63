package model

import (
	"database/sql"
	"errors"
	"time"
)

// ErrEventNotFound is returned when no audit row matches the event id.
var ErrEventNotFound = errors.New("webhook event not found")

// WebhookEventRecord is the sqlite audit mirror of a processed webhook
// delivery. The authoritative idempotency check lives in the bolt event log;
// this table exists so event history can be queried next to transactions.
type WebhookEventRecord struct {
	ID            int64     `json:"id,omitempty"`
	EventID       string    `json:"eventId"`
	EventType     string    `json:"eventType"`
	TransactionID string    `json:"transactionId"`
	Outcome       string    `json:"outcome"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

// RecordWebhookEvent inserts an audit row for a processed event. Re-inserting
// the same event id is a no-op thanks to the unique index.
func RecordWebhookEvent(db *sql.DB, rec *WebhookEventRecord) error {
	query := `
	INSERT OR IGNORE INTO webhook_events (event_id, event_type, transaction_id, outcome, received_at)
	VALUES (?, ?, ?, ?, ?)`

	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	_, err = stmt.Exec(rec.EventID, rec.EventType, rec.TransactionID, rec.Outcome, rec.ReceivedAt)
	return err
}

// GetWebhookEvent retrieves an audit row by event id.
func GetWebhookEvent(db *sql.DB, eventID string) (*WebhookEventRecord, error) {
	row := db.QueryRow(`
	SELECT id, event_id, event_type, transaction_id, outcome, received_at
	FROM webhook_events WHERE event_id = ?`, eventID)

	var rec WebhookEventRecord
	err := row.Scan(&rec.ID, &rec.EventID, &rec.EventType, &rec.TransactionID, &rec.Outcome, &rec.ReceivedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &rec, nil
}
