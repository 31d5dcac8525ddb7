package adsb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexibleField can hold either a string, a number or a boolean.
// A missing or null field holds nothing.
type FlexibleField struct {
	value any
}

// UnmarshalJSON implements custom JSON unmarshaling for FlexibleField
func (f *FlexibleField) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.value = nil
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.value = num
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		f.value = str
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		f.value = b
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleField", data)
}

// Number returns the value only when the source sent a JSON number.
// Strings such as "ground" are not readings.
func (f FlexibleField) Number() (float64, bool) {
	v, ok := f.value.(float64)
	return v, ok
}

// Float64 returns the value as a float64, 0 when absent or unparseable.
func (f FlexibleField) Float64() float64 {
	switch v := f.value.(type) {
	case float64:
		return v
	case string:
		if v == "" || v == "ground" {
			return 0
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// String returns the value as a string
func (f FlexibleField) String() string {
	switch v := f.value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// ExternalADSBTarget is a single aircraft in an airplanes.live / ADS-B Exchange
// style response.
type ExternalADSBTarget struct {
	Hex          string        `json:"hex"`
	Flight       string        `json:"flight"`
	Registration string        `json:"r"`
	AircraftType string        `json:"t"`
	AltBaro      FlexibleField `json:"alt_baro"`
	AltGeom      FlexibleField `json:"alt_geom"`
	GS           FlexibleField `json:"gs"`
	BaroRate     FlexibleField `json:"baro_rate"`
	GeomRate     FlexibleField `json:"geom_rate"`
	Squawk       string        `json:"squawk"`
	Category     string        `json:"category"`
	Lat          FlexibleField `json:"lat"`
	Lon          FlexibleField `json:"lon"`
	Seen         FlexibleField `json:"seen"`
}

// ExternalAPIResponse is the JSON body of a point query. tar1090 style
// feeds use "aircraft" instead of "ac".
type ExternalAPIResponse struct {
	Now      float64              `json:"now,omitempty"`
	Total    int                  `json:"total,omitempty"`
	AC       []ExternalADSBTarget `json:"ac"`
	Aircraft []ExternalADSBTarget `json:"aircraft"`
}

// Targets returns whichever aircraft list the body carried.
func (r *ExternalAPIResponse) Targets() []ExternalADSBTarget {
	if len(r.AC) > 0 {
		return r.AC
	}
	return r.Aircraft
}

// Convert maps an external target onto a StateVector.
func (e *ExternalADSBTarget) Convert() StateVector {
	v := StateVector{
		Hex:        e.Hex,
		Callsign:   e.Flight,
		Lat:        e.Lat.Float64(),
		Lon:        e.Lon.Float64(),
		SourceType: SourceAirplanesLive,
	}

	if alt, ok := e.AltBaro.Number(); ok {
		v.AltitudeFeet = &alt
	}
	if gs, ok := e.GS.Number(); ok {
		v.GroundSpeedKnots = gs
	}
	v.VerticalRateFPM = verticalRate(e.BaroRate, e.GeomRate)

	return v
}

// verticalRate prefers the barometric rate and falls back to the geometric
// one when the barometric rate is absent or zero.
func verticalRate(baro, geom FlexibleField) float64 {
	if r, ok := baro.Number(); ok && r != 0 {
		return r
	}
	if r, ok := geom.Number(); ok {
		return r
	}
	return 0
}
