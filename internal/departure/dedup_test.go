package departure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yegors/depwatch/internal/station"
)

var cgk = station.Station{Code: "CGK", Latitude: -6.1256, Longitude: 106.6559, UTCOffsetHours: 7}

func TestDeduplicatorWindow(t *testing.T) {
	base := time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC) // 08:00 local

	tests := []struct {
		name   string
		offset time.Duration
		logged bool
	}{
		{"same instant", 0, false},
		{"T+30m", 30 * time.Minute, false},
		{"T+45m boundary", 45 * time.Minute, true},
		{"T+50m", 50 * time.Minute, true},
	}

	for _, useCache := range []bool{false, true} {
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				store := &memStore{}
				d := NewDeduplicator(store, 0, useCache)
				ctx := context.Background()

				if _, ok, err := d.Record(ctx, NewEvent("GIA404", cgk, base)); err != nil || !ok {
					t.Fatalf("first record: ok=%v err=%v", ok, err)
				}
				_, ok, err := d.Record(ctx, NewEvent("GIA404", cgk, base.Add(tt.offset)))
				if err != nil {
					t.Fatal(err)
				}
				if ok != tt.logged {
					t.Errorf("cache=%v logged = %v, want %v", useCache, ok, tt.logged)
				}
			})
		}
	}
}

func TestDeduplicatorKeysAreIndependent(t *testing.T) {
	store := &memStore{}
	d := NewDeduplicator(store, 45*time.Minute, false)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)
	hlp := station.Station{Code: "HLP", Latitude: -6.2665, Longitude: 106.891, UTCOffsetHours: 7}

	for _, ev := range []Event{
		NewEvent("GIA404", cgk, now),
		NewEvent("GIA405", cgk, now),
		NewEvent("GIA404", hlp, now),
	} {
		if _, ok, err := d.Record(ctx, ev); err != nil || !ok {
			t.Fatalf("%s@%s: ok=%v err=%v", ev.FlightNumber, ev.OriginAirport, ok, err)
		}
	}
	if store.count() != 3 {
		t.Errorf("stored %d records, want 3", store.count())
	}
}

func TestDeduplicatorIgnoresLaterRecords(t *testing.T) {
	store := &memStore{}
	d := NewDeduplicator(store, 45*time.Minute, false)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)

	if _, err := store.InsertDeparture(ctx, NewEvent("GIA404", cgk, now.Add(10*time.Minute))); err != nil {
		t.Fatal(err)
	}
	dup, err := d.IsDuplicate(ctx, NewEvent("GIA404", cgk, now))
	if err != nil {
		t.Fatal(err)
	}
	if dup {
		t.Error("a record after the candidate time is outside the trailing window")
	}
}

func TestDeduplicatorCacheShortCircuits(t *testing.T) {
	store := &memStore{}
	d := NewDeduplicator(store, 45*time.Minute, true)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)

	if _, _, err := d.Record(ctx, NewEvent("GIA404", cgk, now)); err != nil {
		t.Fatal(err)
	}
	before := store.finds
	if _, ok, _ := d.Record(ctx, NewEvent("GIA404", cgk, now.Add(5*time.Minute))); ok {
		t.Fatal("expected duplicate")
	}
	if store.finds != before {
		t.Error("cache hit should not query the store")
	}
}

func TestDeduplicatorInsertError(t *testing.T) {
	store := &memStore{insertErr: errDiskFull}
	d := NewDeduplicator(store, 0, true)

	_, ok, err := d.Record(context.Background(), NewEvent("GIA404", cgk, time.Now()))
	if ok || !errors.Is(err, errDiskFull) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if d.cache.len() != 0 {
		t.Error("failed insert must not be cached")
	}
}

func TestDeduplicatorConcurrentSameKey(t *testing.T) {
	store := &memStore{}
	d := NewDeduplicator(store, 45*time.Minute, false)
	now := time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = d.Record(context.Background(), NewEvent("GIA404", cgk, now))
		}()
	}
	wg.Wait()

	if store.count() != 1 {
		t.Errorf("stored %d records for one takeoff", store.count())
	}
	if len(d.locks.locks) != 0 {
		t.Errorf("keyed mutex leaked %d entries", len(d.locks.locks))
	}
}

func TestNewEventLocalizes(t *testing.T) {
	bpn := station.Station{Code: "BPN", UTCOffsetHours: 8}
	ev := NewEvent(" LNI12  ", bpn, time.Date(2025, 1, 31, 20, 30, 0, 0, time.UTC))

	if ev.FlightNumber != "LNI12" || ev.DestinationAirport != UnknownDestination {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.LocalString() != "2025-02-01 04:30:00" || ev.Period != "2025-02" {
		t.Errorf("local=%s period=%s", ev.LocalString(), ev.Period)
	}
}
