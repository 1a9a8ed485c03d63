package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/cardgate/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

// InitDB opens the sqlite database, runs migrations and ensures tables exist.
func InitDB(databasePath string) {
	db, err := Open(databasePath)
	if err != nil {
		stdlog.Fatalf("failed to initialize database at %s: %v", databasePath, err)
	}
	DB = db
}

// Open opens a sqlite database at the given path and ensures the schema.
// Exposed separately from InitDB so tests can build isolated stores without
// touching the process-wide handle.
func Open(databasePath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, err
	}

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateTransactionsTable(db)

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		merchant_tx_id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		network_tx_id TEXT DEFAULT '',
		trace_number INTEGER DEFAULT 0,
		retrieval_reference TEXT DEFAULT '',
		approval_code TEXT DEFAULT '',
		result_code TEXT DEFAULT '',
		error_detail TEXT DEFAULT '',
		metadata TEXT DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_network_tx_id ON transactions(network_tx_id);

	CREATE TABLE IF NOT EXISTS webhook_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		transaction_id TEXT,
		outcome TEXT,
		received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err = db.Exec(createTableStatement); err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		db.Close()
		return nil, err
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
	return db, nil
}

// migrateTransactionsTable adds columns introduced after the first release to
// databases created before them. New databases get the full schema from the
// CREATE TABLE statement and skip this entirely.
func migrateTransactionsTable(db *sql.DB) {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='transactions'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Info("'transactions' table does not exist, no migration needed as table will be created.")
			} else {
				stdlog.Println("'transactions' table does not exist, no migration needed as table will be created.")
			}
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'transactions' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'transactions' table: %v", err)
		}
		return
	}

	rows, err := db.Query("PRAGMA table_info(transactions)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'transactions'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'transactions': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'transactions'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'transactions': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'transactions'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'transactions': %v", err)
		}
		return
	}

	if _, ok := columnExists["error_detail"]; !ok {
		_, err := db.Exec("ALTER TABLE transactions ADD COLUMN error_detail TEXT DEFAULT ''")
		if err != nil {
			logger.L.Error("Error adding 'error_detail' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'error_detail' column to 'transactions' table")
		}
	}
	if _, ok := columnExists["metadata"]; !ok {
		_, err := db.Exec("ALTER TABLE transactions ADD COLUMN metadata TEXT DEFAULT ''")
		if err != nil {
			logger.L.Error("Error adding 'metadata' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'metadata' column to 'transactions' table")
		}
	}
	if _, ok := columnExists["version"]; !ok {
		_, err := db.Exec("ALTER TABLE transactions ADD COLUMN version INTEGER NOT NULL DEFAULT 1")
		if err != nil {
			logger.L.Error("Error adding 'version' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'version' column to 'transactions' table")
		}
	}
}
