// Package station holds the fixed set of monitored airports.
package station

import (
	"fmt"
	"strings"
	"time"
)

// PeriodLayout formats the year-month period key.
const PeriodLayout = "2006-01"

// Station is a monitored airport. Immutable once the registry is built.
type Station struct {
	Code           string  `json:"code"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	UTCOffsetHours int     `json:"utc_offset_hours"`
}

// Location returns a fixed zone carrying the station offset.
func (s Station) Location() *time.Location {
	return time.FixedZone(s.Code, s.UTCOffsetHours*3600)
}

// LocalTime converts an instant to the station's wall clock.
func (s Station) LocalTime(t time.Time) time.Time {
	return t.In(s.Location())
}

// PeriodKey returns the year-month bucket of a local time.
func PeriodKey(local time.Time) string {
	return local.Format(PeriodLayout)
}

// Registry is an ordered, read-only list of stations.
type Registry struct {
	stations []Station
	byCode   map[string]int
}

// NewRegistry validates and copies the given stations. Order is preserved.
func NewRegistry(stations []Station) (*Registry, error) {
	if len(stations) == 0 {
		return nil, fmt.Errorf("station registry is empty")
	}

	r := &Registry{
		stations: make([]Station, 0, len(stations)),
		byCode:   make(map[string]int, len(stations)),
	}
	for _, s := range stations {
		s.Code = strings.ToUpper(strings.TrimSpace(s.Code))
		if s.Code == "" {
			return nil, fmt.Errorf("station code is required")
		}
		if _, dup := r.byCode[s.Code]; dup {
			return nil, fmt.Errorf("duplicate station code: %s", s.Code)
		}
		if s.Latitude < -90 || s.Latitude > 90 {
			return nil, fmt.Errorf("station %s: invalid latitude %f", s.Code, s.Latitude)
		}
		if s.Longitude < -180 || s.Longitude > 180 {
			return nil, fmt.Errorf("station %s: invalid longitude %f", s.Code, s.Longitude)
		}
		if s.UTCOffsetHours < -12 || s.UTCOffsetHours > 14 {
			return nil, fmt.Errorf("station %s: invalid utc offset %d", s.Code, s.UTCOffsetHours)
		}
		r.byCode[s.Code] = len(r.stations)
		r.stations = append(r.stations, s)
	}
	return r, nil
}

// All returns a copy of the stations in registry order.
func (r *Registry) All() []Station {
	out := make([]Station, len(r.stations))
	copy(out, r.stations)
	return out
}

// Len returns the number of stations.
func (r *Registry) Len() int {
	return len(r.stations)
}

// Lookup finds a station by code.
func (r *Registry) Lookup(code string) (Station, bool) {
	i, ok := r.byCode[strings.ToUpper(code)]
	if !ok {
		return Station{}, false
	}
	return r.stations[i], true
}
