package station

import (
	"testing"
	"time"
)

func TestNewRegistry(t *testing.T) {
	tests := []struct {
		name     string
		stations []Station
		wantErr  bool
	}{
		{name: "empty", stations: nil, wantErr: true},
		{name: "blank code", stations: []Station{{Code: " "}}, wantErr: true},
		{
			name:     "duplicate code",
			stations: []Station{{Code: "CGK"}, {Code: "cgk"}},
			wantErr:  true,
		},
		{name: "bad latitude", stations: []Station{{Code: "CGK", Latitude: 91}}, wantErr: true},
		{name: "bad offset", stations: []Station{{Code: "CGK", UTCOffsetHours: 15}}, wantErr: true},
		{
			name:     "valid",
			stations: []Station{{Code: "CGK", Latitude: -6.1256, Longitude: 106.6559, UTCOffsetHours: 7}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.stations)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRegistry() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryOrderAndLookup(t *testing.T) {
	r, err := NewRegistry([]Station{
		{Code: "dps", UTCOffsetHours: 8},
		{Code: "CGK", UTCOffsetHours: 7},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	all := r.All()
	if len(all) != 2 || all[0].Code != "DPS" || all[1].Code != "CGK" {
		t.Fatalf("unexpected order: %+v", all)
	}

	// Mutating the copy must not leak into the registry.
	all[0].Code = "XXX"
	if s, ok := r.Lookup("dps"); !ok || s.Code != "DPS" {
		t.Errorf("Lookup(dps) = %+v, %v", s, ok)
	}
	if _, ok := r.Lookup("SUB"); ok {
		t.Error("Lookup(SUB) should miss")
	}
}

func TestLocalTimeAndPeriod(t *testing.T) {
	s := Station{Code: "DPS", UTCOffsetHours: 8}
	utc := time.Date(2025, 1, 31, 20, 30, 0, 0, time.UTC)

	local := s.LocalTime(utc)
	if local.Hour() != 4 || local.Day() != 1 || local.Month() != time.February {
		t.Errorf("LocalTime = %v, want 2025-02-01 04:30 local", local)
	}
	if got := PeriodKey(local); got != "2025-02" {
		t.Errorf("PeriodKey = %q, want 2025-02", got)
	}
}
