// Package schedule turns the flight log into estimated departure times.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/yegors/depwatch/internal/departure"
	"github.com/yegors/depwatch/pkg/logger"
)

// Entry is one row of the schedule table, keyed by flight, origin and period.
type Entry struct {
	FlightNumber  string    `json:"flight_number"`
	OriginAirport string    `json:"origin_airport"`
	Period        string    `json:"month_period"`
	EstimatedTime string    `json:"estimated_std_time"`
	SampleCount   int       `json:"sample_count"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Filter narrows schedule listings. Zero values match everything.
type Filter struct {
	FlightNumber  string
	OriginAirport string
	Period        string
}

// Store is what the aggregator needs from the persistence gateway.
type Store interface {
	// DepartureHistory returns flight-log rows, restricted to the given periods
	// when any are passed.
	DepartureHistory(ctx context.Context, periods []string) ([]departure.Record, error)
	// UpsertSchedule writes all entries atomically and returns how many rows
	// were written.
	UpsertSchedule(ctx context.Context, entries []Entry) (int, error)
}

// Report summarizes one aggregation run.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Periods    []string      `json:"periods,omitempty"`
	Departures int           `json:"departures"`
	Groups     int           `json:"groups"`
	Updated    int           `json:"updated"`
}

type groupKey struct {
	flight, origin, period string
}

// Compute groups records by flight, origin and period and takes the median
// time of day of each group. Output is sorted by period, origin, flight.
func Compute(records []departure.Record) []Entry {
	groups := make(map[groupKey][]int)
	for _, r := range records {
		k := groupKey{r.FlightNumber, r.OriginAirport, r.Period}
		groups[k] = append(groups[k], SecondsSinceMidnight(r.DepartureLocal))
	}

	entries := make([]Entry, 0, len(groups))
	for k, secs := range groups {
		entries = append(entries, Entry{
			FlightNumber:  k.flight,
			OriginAirport: k.origin,
			Period:        k.period,
			EstimatedTime: FormatClock(Median(secs)),
			SampleCount:   len(secs),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		if a.OriginAirport != b.OriginAirport {
			return a.OriginAirport < b.OriginAirport
		}
		return a.FlightNumber < b.FlightNumber
	})
	return entries
}

// Aggregator recomputes the schedule table from the flight log.
type Aggregator struct {
	store  Store
	logger *logger.Logger
}

// NewAggregator creates an aggregator over store.
func NewAggregator(store Store, log *logger.Logger) *Aggregator {
	return &Aggregator{store: store, logger: log.Named("schedule")}
}

// Run reads the history, computes the medians and upserts them. With no
// periods the whole history is used. An empty history writes nothing.
func (a *Aggregator) Run(ctx context.Context, periods ...string) (Report, error) {
	report := Report{StartedAt: time.Now().UTC(), Periods: periods}

	records, err := a.store.DepartureHistory(ctx, periods)
	if err != nil {
		return report, fmt.Errorf("failed to read departure history: %w", err)
	}
	report.Departures = len(records)
	if len(records) == 0 {
		report.Duration = time.Since(report.StartedAt)
		a.logger.Info("No flight data found, schedule unchanged", logger.Strings("periods", periods))
		return report, nil
	}

	entries := Compute(records)
	report.Groups = len(entries)

	n, err := a.store.UpsertSchedule(ctx, entries)
	if err != nil {
		return report, fmt.Errorf("failed to upsert schedule: %w", err)
	}
	report.Updated = n
	report.Duration = time.Since(report.StartedAt)

	a.logger.Info("Schedule updated",
		logger.Int("departures", report.Departures),
		logger.Int("groups", report.Groups),
		logger.Int("updated", report.Updated),
		logger.Duration("duration", report.Duration))

	return report, nil
}
