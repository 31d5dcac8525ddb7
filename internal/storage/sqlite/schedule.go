package sqlite

import (
	"context"
	"fmt"

	"github.com/yegors/depwatch/internal/schedule"
	"github.com/yegors/depwatch/pkg/logger"
)

// UpsertSchedule writes all entries in a single transaction. Each row is an
// INSERT ... ON CONFLICT upsert on the (flight, origin, period) key.
func (s *Storage) UpsertSchedule(ctx context.Context, entries []schedule.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO monthly_schedule (flight_number, origin_airport, month_period, estimated_std_time, sample_count, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (flight_number, origin_airport, month_period) DO UPDATE SET
			estimated_std_time = excluded.estimated_std_time,
			sample_count = excluded.sample_count,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare schedule upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.FlightNumber, e.OriginAirport, e.Period, e.EstimatedTime, e.SampleCount); err != nil {
			return 0, fmt.Errorf("failed to upsert schedule for %s/%s/%s: %w", e.FlightNumber, e.OriginAirport, e.Period, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit schedule upsert: %w", err)
	}

	s.logger.Debug("Upserted schedule entries", logger.Int("count", len(entries)))
	return len(entries), nil
}

// ListSchedule returns schedule rows ordered by period, origin and time.
func (s *Storage) ListSchedule(ctx context.Context, f schedule.Filter) ([]schedule.Entry, error) {
	query := `
		SELECT flight_number, origin_airport, month_period, estimated_std_time, sample_count, updated_at
		FROM monthly_schedule
		WHERE 1=1`
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
	query += " ORDER BY month_period, origin_airport, estimated_std_time, flight_number"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	defer rows.Close()

	var out []schedule.Entry
	for rows.Next() {
		var (
			e         schedule.Entry
			updatedAt string
		)
		if err := rows.Scan(&e.FlightNumber, &e.OriginAirport, &e.Period, &e.EstimatedTime, &e.SampleCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		if t, err := parseTime(updatedAt); err == nil {
			e.UpdatedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule rows: %w", err)
	}
	return out, nil
}
