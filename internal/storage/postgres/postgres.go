// Package postgres is the PostgreSQL flight-log and schedule store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yegors/depwatch/internal/departure"
	"github.com/yegors/depwatch/internal/schedule"
	"github.com/yegors/depwatch/pkg/logger"
)

// Config holds PostgreSQL connection settings. DSN wins when set.
type Config struct {
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int32
}

// ConnString renders the connection URL.
func (c Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode)
}

// Storage wraps a pgx pool.
type Storage struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// Open connects, pings and ensures the schema.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Storage, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Storage{pool: pool, logger: log.Named("postgres")}
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s.logger.Info("Connected to PostgreSQL",
		logger.String("host", poolCfg.ConnConfig.Host),
		logger.String("database", poolCfg.ConnConfig.Database))
	return s, nil
}

// Close closes the pool.
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateSchema creates the tables and indexes.
func (s *Storage) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS flight_log (
		id                      BIGSERIAL PRIMARY KEY,
		flight_number           TEXT NOT NULL,
		origin_airport          TEXT NOT NULL,
		destination_airport     TEXT NOT NULL DEFAULT 'UNK',
		actual_departure_time   TIMESTAMP NOT NULL,
		month_period            TEXT NOT NULL,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_flight_log_key_time ON flight_log(flight_number, origin_airport, actual_departure_time);
	CREATE INDEX IF NOT EXISTS idx_flight_log_period ON flight_log(month_period);

	CREATE TABLE IF NOT EXISTS monthly_schedule (
		flight_number       TEXT NOT NULL,
		origin_airport      TEXT NOT NULL,
		month_period        TEXT NOT NULL,
		estimated_std_time  TIME NOT NULL,
		sample_count        INTEGER NOT NULL DEFAULT 0,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (flight_number, origin_airport, month_period)
	);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// wallClock keeps the station-local reading and drops the zone; the
// departure column is a zoneless TIMESTAMP.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

const flightLogColumns = `id, flight_number, origin_airport, destination_airport, actual_departure_time, month_period, created_at`

// FindDeparture returns the latest record for flight/origin with a departure
// time in (from, to].
func (s *Storage) FindDeparture(ctx context.Context, flight, origin string, from, to time.Time) (*departure.Record, error) {
	var r departure.Record
	err := s.pool.QueryRow(ctx, `
		SELECT `+flightLogColumns+`
		FROM flight_log
		WHERE flight_number = $1 AND origin_airport = $2
		  AND actual_departure_time > $3 AND actual_departure_time <= $4
		ORDER BY actual_departure_time DESC
		LIMIT 1
	`, flight, origin, wallClock(from), wallClock(to)).Scan(
		&r.ID, &r.FlightNumber, &r.OriginAirport, &r.DestinationAirport, &r.DepartureLocal, &r.Period, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query departure: %w", err)
	}
	return &r, nil
}

// InsertDeparture writes one flight-log row. Each call autocommits.
func (s *Storage) InsertDeparture(ctx context.Context, ev departure.Event) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO flight_log (flight_number, origin_airport, destination_airport, actual_departure_time, month_period)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, ev.FlightNumber, ev.OriginAirport, ev.DestinationAirport, wallClock(ev.DepartureLocal), ev.Period).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert departure: %w", err)
	}
	return id, nil
}

// ListDepartures returns flight-log rows, newest first.
func (s *Storage) ListDepartures(ctx context.Context, f departure.Filter) ([]departure.Record, error) {
	query := `SELECT ` + flightLogColumns + ` FROM flight_log WHERE 1=1`
	var args []any

	if f.FlightNumber != "" {
		args = append(args, f.FlightNumber)
		query += fmt.Sprintf(" AND flight_number = $%d", len(args))
	}
	if f.OriginAirport != "" {
		args = append(args, f.OriginAirport)
		query += fmt.Sprintf(" AND origin_airport = $%d", len(args))
	}
	if f.Period != "" {
		args = append(args, f.Period)
		query += fmt.Sprintf(" AND month_period = $%d", len(args))
	}
	query += " ORDER BY actual_departure_time DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return s.queryRecords(ctx, query, args...)
}

// DepartureHistory returns every flight-log row, or only those in periods.
func (s *Storage) DepartureHistory(ctx context.Context, periods []string) ([]departure.Record, error) {
	if len(periods) == 0 {
		return s.queryRecords(ctx, `SELECT `+flightLogColumns+` FROM flight_log ORDER BY id`)
	}
	return s.queryRecords(ctx, `SELECT `+flightLogColumns+` FROM flight_log WHERE month_period = ANY($1) ORDER BY id`, periods)
}

func (s *Storage) queryRecords(ctx context.Context, query string, args ...any) ([]departure.Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query flight log: %w", err)
	}
	defer rows.Close()

	var out []departure.Record
	for rows.Next() {
		var r departure.Record
		if err := rows.Scan(&r.ID, &r.FlightNumber, &r.OriginAirport, &r.DestinationAirport, &r.DepartureLocal, &r.Period, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan flight log row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flight log rows: %w", err)
	}
	return out, nil
}

// UpsertSchedule writes all entries in one transaction as a pipelined batch
// of INSERT ... ON CONFLICT statements.
func (s *Storage) UpsertSchedule(ctx context.Context, entries []schedule.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO monthly_schedule (flight_number, origin_airport, month_period, estimated_std_time, sample_count, updated_at)
			VALUES ($1, $2, $3, $4::time, $5, NOW())
			ON CONFLICT (flight_number, origin_airport, month_period) DO UPDATE SET
				estimated_std_time = EXCLUDED.estimated_std_time,
				sample_count = EXCLUDED.sample_count,
				updated_at = NOW()
		`, e.FlightNumber, e.OriginAirport, e.Period, e.EstimatedTime, e.SampleCount)
	}

	br := tx.SendBatch(ctx, batch)
	for _, e := range entries {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, fmt.Errorf("upsert schedule for %s/%s/%s: %w", e.FlightNumber, e.OriginAirport, e.Period, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close schedule batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit schedule upsert: %w", err)
	}
	return len(entries), nil
}

// ListSchedule returns schedule rows ordered by period, origin and time.
func (s *Storage) ListSchedule(ctx context.Context, f schedule.Filter) ([]schedule.Entry, error) {
	query := `
		SELECT flight_number, origin_airport, month_period, to_char(estimated_std_time, 'HH24:MI:SS'), sample_count, updated_at
		FROM monthly_schedule
		WHERE 1=1`
	var args []any

	if f.FlightNumber != "" {
		args = append(args, f.FlightNumber)
		query += fmt.Sprintf(" AND flight_number = $%d", len(args))
	}
	if f.OriginAirport != "" {
		args = append(args, f.OriginAirport)
		query += fmt.Sprintf(" AND origin_airport = $%d", len(args))
	}
	if f.Period != "" {
		args = append(args, f.Period)
		query += fmt.Sprintf(" AND month_period = $%d", len(args))
	}
	query += " ORDER BY month_period, origin_airport, estimated_std_time, flight_number"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer rows.Close()

	var out []schedule.Entry
	for rows.Next() {
		var e schedule.Entry
		if err := rows.Scan(&e.FlightNumber, &e.OriginAirport, &e.Period, &e.EstimatedTime, &e.SampleCount, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule rows: %w", err)
	}
	return out, nil
}
