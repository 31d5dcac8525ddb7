package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/depwatch/internal/departure"
	"github.com/yegors/depwatch/pkg/logger"
)

const flightLogColumns = `id, flight_number, origin_airport, destination_airport, actual_departure_time, month_period, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (departure.Record, error) {
	var (
		r                   departure.Record
		departed, createdAt string
	)
	if err := row.Scan(&r.ID, &r.FlightNumber, &r.OriginAirport, &r.DestinationAirport, &departed, &r.Period, &createdAt); err != nil {
		return r, err
	}

	t, err := parseTime(departed)
	if err != nil {
		return r, fmt.Errorf("failed to parse departure time %q: %w", departed, err)
	}
	r.DepartureLocal = t

	if t, err := parseTime(createdAt); err == nil {
		r.CreatedAt = t
	}
	return r, nil
}

// FindDeparture returns the latest record for flight/origin with a departure
// time in (from, to], compared as naive local wall clocks.
func (s *Storage) FindDeparture(ctx context.Context, flight, origin string, from, to time.Time) (*departure.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+flightLogColumns+`
		FROM flight_log
		WHERE flight_number = ? AND origin_airport = ?
		  AND actual_departure_time > ? AND actual_departure_time <= ?
		ORDER BY actual_departure_time DESC
		LIMIT 1
	`, flight, origin, from.Format(sqliteTimeLayout), to.Format(sqliteTimeLayout))

	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query departure: %w", err)
	}
	return &r, nil
}

// InsertDeparture writes one flight-log row and commits it immediately.
func (s *Storage) InsertDeparture(ctx context.Context, ev departure.Event) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO flight_log (flight_number, origin_airport, destination_airport, actual_departure_time, month_period)
		VALUES (?, ?, ?, ?, ?)
	`, ev.FlightNumber, ev.OriginAirport, ev.DestinationAirport, ev.LocalString(), ev.Period)
	if err != nil {
		s.logger.Error("Failed to insert departure", logger.Error(err),
			logger.String("flight", ev.FlightNumber), logger.String("origin", ev.OriginAirport))
		return 0, fmt.Errorf("failed to insert departure: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read departure id: %w", err)
	}
	return id, nil
}

// ListDepartures returns flight-log rows, newest first.
func (s *Storage) ListDepartures(ctx context.Context, f departure.Filter) ([]departure.Record, error) {
	query := `SELECT ` + flightLogColumns + ` FROM flight_log WHERE 1=1`
	args := []any{}

	if f.FlightNumber != "" {
		query += " AND flight_number = ?"
		args = append(args, f.FlightNumber)
	}
	if f.OriginAirport != "" {
		query += " AND origin_airport = ?"
		args = append(args, f.OriginAirport)
	}
	if f.Period != "" {
		query += " AND month_period = ?"
		args = append(args, f.Period)
	}
	query += " ORDER BY actual_departure_time DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return s.queryRecords(ctx, query, args...)
}

// DepartureHistory returns every flight-log row, or only those in periods.
func (s *Storage) DepartureHistory(ctx context.Context, periods []string) ([]departure.Record, error) {
	query := `SELECT ` + flightLogColumns + ` FROM flight_log`
	args := []any{}

	if len(periods) > 0 {
		query += " WHERE month_period IN (" + strings.Repeat("?,", len(periods)-1) + "?)"
		for _, p := range periods {
			args = append(args, p)
		}
	}
	query += " ORDER BY id"

	return s.queryRecords(ctx, query, args...)
}

func (s *Storage) queryRecords(ctx context.Context, query string, args ...any) ([]departure.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flight log: %w", err)
	}
	defer rows.Close()

	var out []departure.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flight log row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flight log rows: %w", err)
	}
	return out, nil
}
