package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/yegors/depwatch/internal/departure"
	"github.com/yegors/depwatch/internal/schedule"
	"github.com/yegors/depwatch/internal/station"
	"github.com/yegors/depwatch/pkg/logger"
)

var cgk = station.Station{Code: "CGK", Latitude: -6.1256, Longitude: 106.6559, UTCOffsetHours: 7}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "depwatch.db"), logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// utcFor returns the UTC instant that is the given wall clock at CGK.
func utcFor(local string) time.Time {
	t, err := time.ParseInLocation(departure.LocalTimeLayout, local, cgk.Location())
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestFlightLogRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	ev := departure.NewEvent("GIA404", cgk, utcFor("2025-03-10 08:00:00"))
	id, err := s.InsertDeparture(ctx, ev)
	if err != nil || id != 1 {
		t.Fatalf("InsertDeparture: id=%d err=%v", id, err)
	}

	recs, err := s.ListDepartures(ctx, departure.Filter{OriginAirport: "CGK"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	r := recs[0]
	if r.FlightNumber != "GIA404" || r.DestinationAirport != "UNK" || r.Period != "2025-03" {
		t.Errorf("record = %+v", r)
	}
	if got := r.DepartureLocal.Format(departure.LocalTimeLayout); got != "2025-03-10 08:00:00" {
		t.Errorf("stored local time = %s", got)
	}
	if r.CreatedAt.IsZero() {
		t.Error("created_at not populated")
	}
}

func TestFindDepartureWindow(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.InsertDeparture(ctx, departure.NewEvent("GIA404", cgk, utcFor("2025-03-10 08:00:00"))); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		candidate string
		found     bool
	}{
		{"same time", "2025-03-10 08:00:00", true},
		{"T+30m", "2025-03-10 08:30:00", true},
		{"T+45m", "2025-03-10 08:45:00", false},
		{"T+50m", "2025-03-10 08:50:00", false},
		{"before", "2025-03-10 07:59:59", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to := departure.NewEvent("GIA404", cgk, utcFor(tt.candidate)).DepartureLocal
			rec, err := s.FindDeparture(ctx, "GIA404", "CGK", to.Add(-45*time.Minute), to)
			if err != nil {
				t.Fatal(err)
			}
			if (rec != nil) != tt.found {
				t.Errorf("found = %v, want %v", rec != nil, tt.found)
			}
		})
	}

	rec, err := s.FindDeparture(ctx, "GIA404", "DPS", time.Time{}, time.Now())
	if err != nil || rec != nil {
		t.Errorf("other origin: rec=%v err=%v", rec, err)
	}
}

func TestDeduplicatorAgainstSQLite(t *testing.T) {
	s := newTestStorage(t)
	d := departure.NewDeduplicator(s, 45*time.Minute, false)
	ctx := context.Background()

	for _, tt := range []struct {
		local  string
		logged bool
	}{
		{"2025-03-10 08:00:00", true},
		{"2025-03-10 08:30:00", false},
		{"2025-03-10 08:50:00", true},
	} {
		_, ok, err := d.Record(ctx, departure.NewEvent("GIA404", cgk, utcFor(tt.local)))
		if err != nil {
			t.Fatal(err)
		}
		if ok != tt.logged {
			t.Errorf("%s: logged = %v, want %v", tt.local, ok, tt.logged)
		}
	}
}

func TestScheduleAggregationEndToEnd(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	agg := schedule.NewAggregator(s, logger.NewNop())

	report, err := agg.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Updated != 0 {
		t.Errorf("empty history updated %d rows", report.Updated)
	}

	for _, local := range []string{"2025-03-01 08:00:00", "2025-03-02 08:10:00", "2025-03-03 08:50:00"} {
		if _, err := s.InsertDeparture(ctx, departure.NewEvent("GIA404", cgk, utcFor(local))); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 2; i++ {
		report, err = agg.Run(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if report.Updated != 1 {
			t.Errorf("run %d updated %d", i, report.Updated)
		}
	}

	entries, err := s.ListSchedule(ctx, schedule.Filter{Period: "2025-03"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d schedule rows, want 1", len(entries))
	}
	if e := entries[0]; e.EstimatedTime != "08:10:00" || e.SampleCount != 3 || e.OriginAirport != "CGK" {
		t.Errorf("entry = %+v", e)
	}
}

func TestUpsertScheduleUpdatesExisting(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	e := schedule.Entry{FlightNumber: "LNI600", OriginAirport: "DPS", Period: "2025-04", EstimatedTime: "14:20:00", SampleCount: 1}
	if _, err := s.UpsertSchedule(ctx, []schedule.Entry{e}); err != nil {
		t.Fatal(err)
	}
	e.EstimatedTime = "14:25:30"
	e.SampleCount = 2
	if _, err := s.UpsertSchedule(ctx, []schedule.Entry{e}); err != nil {
		t.Fatal(err)
	}

	entries, err := s.ListSchedule(ctx, schedule.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].EstimatedTime != "14:25:30" || entries[0].SampleCount != 2 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestDepartureHistoryPeriods(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, local := range []string{"2025-02-28 23:50:00", "2025-03-01 00:10:00", "2025-04-01 09:00:00"} {
		if _, err := s.InsertDeparture(ctx, departure.NewEvent("GIA1", cgk, utcFor(local))); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.DepartureHistory(ctx, nil)
	if err != nil || len(all) != 3 {
		t.Fatalf("all: %d %v", len(all), err)
	}
	some, err := s.DepartureHistory(ctx, []string{"2025-02", "2025-04"})
	if err != nil || len(some) != 2 {
		t.Fatalf("filtered: %d %v", len(some), err)
	}
}
