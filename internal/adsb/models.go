package adsb

import (
	"errors"
	"fmt"
	"time"

	"github.com/yegors/depwatch/internal/station"
)

// Source types accepted in configuration.
const (
	SourceAirplanesLive = "external-adsbexchangelike"
	SourceOpenSky       = "external-opensky"
)

// StateVector is one aircraft observation from a snapshot.
// AltitudeFeet is nil when the source reported no usable barometric altitude
// (missing, null, or the "ground" sentinel).
type StateVector struct {
	Hex              string   `json:"hex"`
	Callsign         string   `json:"callsign"`
	AltitudeFeet     *float64 `json:"altitude_ft,omitempty"`
	GroundSpeedKnots float64  `json:"ground_speed_kts"`
	VerticalRateFPM  float64  `json:"vertical_rate_fpm"`
	Lat              float64  `json:"lat,omitempty"`
	Lon              float64  `json:"lon,omitempty"`
	SourceType       string   `json:"source_type,omitempty"`
}

// Snapshot is the set of aircraft near one station at fetch time.
type Snapshot struct {
	Station   station.Station
	FetchedAt time.Time
	Aircraft  []StateVector
}

// FetchError reports a failed snapshot fetch for a single station.
// StatusCode is zero for transport and decode failures.
type FetchError struct {
	Station    string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Station, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrUnexpectedStatus is wrapped by FetchError when the source answers non-200.
var ErrUnexpectedStatus = errors.New("unexpected status code")
