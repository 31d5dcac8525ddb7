package departure

import (
	"context"
	"errors"
	"sync"
	"time"
)

// memStore is an in-memory flight log comparing naive local wall clocks, the
// same way the SQL stores do.
type memStore struct {
	mu        sync.Mutex
	records   []Record
	finds     int
	failOn    string
	insertErr error
}

func (m *memStore) FindDeparture(_ context.Context, flight, origin string, from, to time.Time) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++

	lo, hi := from.Format(LocalTimeLayout), to.Format(LocalTimeLayout)
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		at := r.DepartureLocal.Format(LocalTimeLayout)
		if r.FlightNumber == flight && r.OriginAirport == origin && at > lo && at <= hi {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertDeparture(_ context.Context, ev Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil && (m.failOn == "" || m.failOn == ev.OriginAirport) {
		return 0, m.insertErr
	}
	naive, _ := time.Parse(LocalTimeLayout, ev.LocalString())
	m.records = append(m.records, Record{
		ID:                 int64(len(m.records) + 1),
		FlightNumber:       ev.FlightNumber,
		OriginAirport:      ev.OriginAirport,
		DestinationAirport: ev.DestinationAirport,
		DepartureLocal:     naive,
		Period:             ev.Period,
	})
	return int64(len(m.records)), nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

var errDiskFull = errors.New("disk full")
