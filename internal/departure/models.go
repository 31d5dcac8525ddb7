package departure

import (
	"time"

	"github.com/yegors/depwatch/internal/station"
)

// UnknownDestination is stored for every detected departure. Single snapshots
// carry no flight plan.
const UnknownDestination = "UNK"

// LocalTimeLayout is the naive wall-clock layout used to persist local times.
const LocalTimeLayout = "2006-01-02 15:04:05"

// Event is a detected takeoff, ready for dedup and persistence.
type Event struct {
	FlightNumber       string    `json:"flight_number"`
	OriginAirport      string    `json:"origin_airport"`
	DestinationAirport string    `json:"destination_airport"`
	DepartureLocal     time.Time `json:"departure_local"`
	Period             string    `json:"period"`
}

// NewEvent localizes nowUTC to the station's offset and derives the period key.
func NewEvent(callsign string, st station.Station, nowUTC time.Time) Event {
	local := st.LocalTime(nowUTC)
	return Event{
		FlightNumber:       NormalizeCallsign(callsign),
		OriginAirport:      st.Code,
		DestinationAirport: UnknownDestination,
		DepartureLocal:     local,
		Period:             station.PeriodKey(local),
	}
}

// Key identifies the (flight, origin) pair that dedup serializes on.
func (e Event) Key() string {
	return e.FlightNumber + "|" + e.OriginAirport
}

// LocalString renders the departure time as a naive local timestamp.
func (e Event) LocalString() string {
	return e.DepartureLocal.Format(LocalTimeLayout)
}

// Record is a persisted flight-log row.
type Record struct {
	ID                 int64     `json:"id"`
	FlightNumber       string    `json:"flight_number"`
	OriginAirport      string    `json:"origin_airport"`
	DestinationAirport string    `json:"destination_airport"`
	DepartureLocal     time.Time `json:"actual_departure_time"`
	Period             string    `json:"month_period"`
	CreatedAt          time.Time `json:"created_at"`
}

// Filter narrows flight-log listings. Zero values match everything.
type Filter struct {
	FlightNumber  string
	OriginAirport string
	Period        string
	Limit         int
}

// CycleReport summarizes one ingestion cycle.
type CycleReport struct {
	StartedAt         time.Time       `json:"started_at"`
	Duration          time.Duration   `json:"duration"`
	StationsAttempted int             `json:"stations_attempted"`
	StationsFailed    int             `json:"stations_failed"`
	VectorsSeen       int             `json:"vectors_seen"`
	Takeoffs          int             `json:"takeoffs"`
	Duplicates        int             `json:"duplicates"`
	Logged            int             `json:"logged"`
	Skips             map[Verdict]int `json:"skips"`
}

// merge folds a per-station report into the cycle total.
func (r *CycleReport) merge(o stationReport) {
	r.StationsAttempted++
	if o.failed {
		r.StationsFailed++
	}
	r.VectorsSeen += o.vectors
	r.Takeoffs += o.takeoffs
	r.Duplicates += o.duplicates
	r.Logged += o.logged
	for k, v := range o.skips {
		r.Skips[k] += v
	}
}

type stationReport struct {
	failed     bool
	vectors    int
	takeoffs   int
	duplicates int
	logged     int
	skips      map[Verdict]int
}
