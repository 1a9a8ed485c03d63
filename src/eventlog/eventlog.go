// Package eventlog is the BoltDB-backed record of processed webhook events.
//
// Every processed event is recorded exactly once under its event id. A
// redelivered event finds its prior record and is acknowledged without
// re-entering the state machine, which is what makes duplicate webhook
// deliveries unable to double-move money.
package eventlog

import (
	"encoding/json"
	"errors"
	"time"

	bolt "github.com/boltdb/bolt"
)

const bucketName = "webhook_events"

// ErrNotFound is returned when no record exists for an event id.
var ErrNotFound = errors.New("webhook event not found")

// Record is the stored outcome of one processed webhook event.
type Record struct {
	EventID       string    `json:"eventId"`
	EventType     string    `json:"eventType"`
	TransactionID string    `json:"transactionId"`
	Outcome       string    `json:"outcome"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

// Store wraps a BoltDB database holding the event log.
type Store struct {
	db *bolt.DB
}

// New opens (or creates) the event log at the given path and ensures the
// bucket exists.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves the record for an event id, or ErrNotFound.
func (s *Store) Get(eventID string) (*Record, error) {
	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		v := b.Get([]byte(eventID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put records an event outcome ONLY if the event id has not been seen.
//
// Returns (stored, true, nil) when the record was written for the first time.
// Returns (existing, false, nil) when the event id already existed; the
// stored record is returned unchanged and no write is performed, so replaying
// the same delivery any number of times observes one stable outcome.
func (s *Store) Put(rec *Record) (*Record, bool, error) {
	var result Record
	recorded := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		existing := b.Get([]byte(rec.EventID))
		if existing != nil {
			return json.Unmarshal(existing, &result)
		}

		if rec.ReceivedAt.IsZero() {
			rec.ReceivedAt = time.Now().UTC()
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		result = *rec
		recorded = true
		return b.Put([]byte(rec.EventID), data)
	})
	if err != nil {
		return nil, false, err
	}

	return &result, recorded, nil
}
