// Package sqlite is the embedded flight-log and schedule store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yegors/depwatch/pkg/logger"
)

// sqliteTimeLayout matches CURRENT_TIMESTAMP and the naive local departure
// times written by this package.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// Storage is a SQLite-backed persistence gateway.
type Storage struct {
	db     *sql.DB
	logger *logger.Logger
}

// New opens (or creates) the database at dbPath and ensures the schema.
func New(dbPath string, log *logger.Logger) (*Storage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := initDatabase(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{db: db, logger: storageLogger}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS flight_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			flight_number TEXT NOT NULL,
			origin_airport TEXT NOT NULL,
			destination_airport TEXT NOT NULL DEFAULT 'UNK',
			actual_departure_time TEXT NOT NULL, -- naive station-local wall clock
			month_period TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flight_log table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS monthly_schedule (
			flight_number TEXT NOT NULL,
			origin_airport TEXT NOT NULL,
			month_period TEXT NOT NULL,
			estimated_std_time TEXT NOT NULL,
			sample_count INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (flight_number, origin_airport, month_period)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create monthly_schedule table: %w", err)
	}

	// Dedup lookups are a range scan on this index.
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_flight_log_key_time ON flight_log(flight_number, origin_airport, actual_departure_time)`)
	if err != nil {
		return fmt.Errorf("failed to create index on flight_log key: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_flight_log_period ON flight_log(month_period)`)
	if err != nil {
		return fmt.Errorf("failed to create index on flight_log.month_period: %w", err)
	}

	log.Info("Database schema initialized successfully")
	return nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		// Drivers may hand back RFC3339 for values written by other tools.
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}
