// Package clickhouse archives logged departures for analytics.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/yegors/depwatch/internal/departure"
	"github.com/yegors/depwatch/pkg/logger"
)

// Config holds ClickHouse connection settings.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Archive is an append-only departure history in ClickHouse. It implements
// departure.Notifier.
type Archive struct {
	conn   driver.Conn
	logger *logger.Logger
}

// Open connects to ClickHouse and ensures the archive table exists.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Archive, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	a := &Archive{conn: conn, logger: log.Named("clickhouse")}
	if err := a.CreateSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the connection.
func (a *Archive) Close() error {
	return a.conn.Close()
}

// CreateSchema creates the departures table.
func (a *Archive) CreateSchema(ctx context.Context) error {
	err := a.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS departures (
			id                  UInt64,
			flight_number       LowCardinality(String),
			origin_airport      LowCardinality(String),
			destination_airport LowCardinality(String),
			departure_local     DateTime,
			month_period        LowCardinality(String),
			seconds_of_day      UInt32,
			recorded_at         DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = ReplacingMergeTree()
		PARTITION BY month_period
		ORDER BY (origin_airport, flight_number, departure_local, id)`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const insertColumns = `INSERT INTO departures (id, flight_number, origin_airport, destination_airport, departure_local, month_period, seconds_of_day)`

// row flattens a record into insert arguments. The departure time is sent as
// the naive local wall clock.
func row(r departure.Record) []any {
	t := r.DepartureLocal
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	return []any{
		uint64(r.ID),
		r.FlightNumber,
		r.OriginAirport,
		r.DestinationAirport,
		wall,
		r.Period,
		uint32(t.Hour()*3600 + t.Minute()*60 + t.Second()),
	}
}

// DepartureLogged archives one departure.
func (a *Archive) DepartureLogged(ctx context.Context, r departure.Record) error {
	if err := a.conn.Exec(ctx, insertColumns+` VALUES (?, ?, ?, ?, ?, ?, ?)`, row(r)...); err != nil {
		return fmt.Errorf("archive departure %s: %w", r.FlightNumber, err)
	}
	return nil
}

// Backfill bulk-loads existing flight-log rows. Re-running it is safe; the
// table collapses duplicates on merge.
func (a *Archive) Backfill(ctx context.Context, records []departure.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch, err := a.conn.PrepareBatch(ctx, insertColumns)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range records {
		if err := batch.Append(row(r)...); err != nil {
			return 0, fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}

	a.logger.Info("Backfilled departure archive", logger.Int("count", len(records)))
	return len(records), nil
}

// CountByOrigin returns archived departure counts per origin for a period,
// or across all periods when period is empty.
func (a *Archive) CountByOrigin(ctx context.Context, period string) (map[string]uint64, error) {
	rows, err := a.conn.Query(ctx, `
		SELECT origin_airport, count()
		FROM departures FINAL
		WHERE ? = '' OR month_period = ?
		GROUP BY origin_airport`, period, period)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var (
			origin string
			n      uint64
		)
		if err := rows.Scan(&origin, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[origin] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}
