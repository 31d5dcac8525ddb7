package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yegors/depwatch/internal/adsb"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	reg, err := c.Registry()
	if err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 14 {
		t.Errorf("stations = %d, want 14", reg.Len())
	}
	if st := reg.All()[0]; st.Code != "CGK" || st.UTCOffsetHours != 7 {
		t.Errorf("first station = %+v", st)
	}
	if st, ok := reg.Lookup("DPS"); !ok || st.UTCOffsetHours != 8 {
		t.Errorf("DPS = %+v, %v", st, ok)
	}

	if got := c.Filters.ExcludedPrefixes; len(got) != 2 || got[0] != "QG" || got[1] != "CTV" {
		t.Errorf("excluded prefixes = %v", got)
	}
	if c.DedupWindow() != 45*time.Minute || !c.Dedup.Cache {
		t.Errorf("dedup = %v cache=%v", c.DedupWindow(), c.Dedup.Cache)
	}
	svc := c.IngestService()
	if svc.StationDelay != 12*time.Second || svc.Workers != 1 {
		t.Errorf("ingest = %+v", svc)
	}
	if cl := c.Client(); cl.SourceType != adsb.SourceAirplanesLive || cl.Timeout != 15*time.Second || cl.SearchRadiusNM != 50 {
		t.Errorf("client = %+v", cl)
	}

	bands := c.Bands()
	if len(bands) != 2 || bands[0].MinRateFPM != 50 || bands[0].RateInclusive || !bands[1].RateInclusive || bands[1].MinGroundSpeedK != 130 {
		t.Errorf("bands = %+v", bands)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
[logging]
level = "debug"

[[stations]]
code = "CGK"
latitude = -6.1256
longitude = 106.6559
utc_offset_hours = 7

[filters]
excluded_prefixes = ["QG"]

[dedup]
window_minutes = 30
cache = false

[ingest]
workers = 4

[storage]
driver = "postgres"
dsn = "postgres://u:p@db:5432/dw"

[takeoff.climb]
min_rate_fpm = 100
`)

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}

	if c.Logging.Level != "debug" || c.Logging.Format != "console" {
		t.Errorf("logging = %+v", c.Logging)
	}
	if len(c.Stations) != 1 {
		t.Errorf("stations = %d", len(c.Stations))
	}
	if c.DedupWindow() != 30*time.Minute || c.Dedup.Cache {
		t.Errorf("dedup = %+v", c.Dedup)
	}
	if c.Ingest.Workers != 4 {
		t.Errorf("workers = %d", c.Ingest.Workers)
	}
	if c.Postgres().ConnString() != "postgres://u:p@db:5432/dw" {
		t.Errorf("conn string = %s", c.Postgres().ConnString())
	}
	if b := c.Bands()[0]; b.MinRateFPM != 100 || b.MinAltitudeFt != 500 || b.MaxAltitudeFt != 6000 {
		t.Errorf("climb band = %+v", b)
	}
}

func TestLoadWithoutStationsUsesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", "[server]\nport = 9090\n")
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Stations) != 14 || c.Server.Port != 9090 {
		t.Errorf("stations = %d port = %d", len(c.Stations), c.Server.Port)
	}
}

func TestStationCoordinatesFromCSV(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "airports.csv",
		`"id","ident","type","name","latitude_deg","longitude_deg","elevation_ft","continent","iso_country","iso_region","municipality","scheduled_service","gps_code","iata_code"
1,"WIII","large_airport","Soekarno-Hatta",-6.1256,106.6559,34,"AS","ID","ID-BT","Jakarta","yes","WIII","CGK"
2,"WADD","large_airport","Ngurah Rai",-8.7481,115.1672,14,"AS","ID","ID-BA","Denpasar","yes","WADD","DPS"
`)
	path := writeFile(t, dir, "config.toml", `
airports_db_path = "`+filepath.ToSlash(csvPath)+`"

[[stations]]
code = "WIII"
utc_offset_hours = 7

[[stations]]
code = "DPS"
utc_offset_hours = 8

[[stations]]
code = "SUB"
latitude = -7.3798
longitude = 112.7878
utc_offset_hours = 7
`)

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	reg, err := c.Registry()
	if err != nil {
		t.Fatal(err)
	}

	cgk, _ := reg.Lookup("WIII")
	if cgk.Latitude != -6.1256 || cgk.Longitude != 106.6559 {
		t.Errorf("WIII = %+v", cgk)
	}
	dps, _ := reg.Lookup("DPS")
	if dps.Latitude != -8.7481 || dps.Longitude != 115.1672 {
		t.Errorf("DPS = %+v", dps)
	}
}

func TestStationMissingFromCSV(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "airports.csv", "id,ident,type,name,latitude_deg,longitude_deg\n1,WIII,large_airport,x,-6.1,106.6\n")
	path := writeFile(t, dir, "config.toml", `
airports_db_path = "`+filepath.ToSlash(csvPath)+`"

[[stations]]
code = "ZZZ"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "ZZZ") {
		t.Errorf("err = %v, want not-found error naming ZZZ", err)
	}
}

func TestStationWithoutCoordinatesNeedsCSV(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", "[[stations]]\ncode = \"CGK\"\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for station without coordinates and no airports_db_path")
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Run("missing preferred path", func(t *testing.T) {
		if _, err := LoadWithFallback(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for explicit missing path")
		}
	})

	t.Run("no files gives defaults", func(t *testing.T) {
		chdir(t, t.TempDir())
		c, err := LoadWithFallback("")
		if err != nil {
			t.Fatal(err)
		}
		if len(c.Stations) != 14 {
			t.Errorf("stations = %d", len(c.Stations))
		}
	})

	t.Run("configs directory", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.Mkdir(filepath.Join(dir, "configs"), 0o755); err != nil {
			t.Fatal(err)
		}
		writeFile(t, filepath.Join(dir, "configs"), "config.toml", "[server]\nport = 7070\n")
		chdir(t, dir)

		c, err := LoadWithFallback("")
		if err != nil {
			t.Fatal(err)
		}
		if c.Server.Port != 7070 {
			t.Errorf("port = %d", c.Server.Port)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DEPWATCH_DB_DRIVER", "postgres")
	t.Setenv("DEPWATCH_PG_HOST", "pg.internal")
	t.Setenv("DEPWATCH_PG_PORT", "6543")
	t.Setenv("DEPWATCH_PG_USER", "tracker")
	t.Setenv("DEPWATCH_PG_PASSWORD", "secret")
	t.Setenv("DEPWATCH_EXCLUDED_PREFIXES", " qg, ctv ,,ID")
	t.Setenv("DEPWATCH_CLICKHOUSE_HOST", "ch.internal")

	c := Default()
	if err := c.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}

	pg := c.Postgres()
	if c.Storage.Driver != DriverPostgres || pg.Host != "pg.internal" || pg.Port != 6543 || pg.User != "tracker" || pg.Password != "secret" {
		t.Errorf("postgres = %+v", pg)
	}
	if got := strings.Join(c.Filters.ExcludedPrefixes, "|"); got != "qg|ctv|ID" {
		t.Errorf("prefixes = %s", got)
	}
	if !c.Archive.Enabled || c.ClickHouse().Host != "ch.internal" {
		t.Errorf("archive = %+v", c.Archive)
	}
}

func TestApplyEnvBadPort(t *testing.T) {
	t.Setenv("DEPWATCH_PG_PORT", "not-a-port")
	if err := Default().ApplyEnv(); err == nil {
		t.Error("expected error for bad port")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"source type", func(c *Config) { c.ADSB.SourceType = "local" }},
		{"driver", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"workers", func(c *Config) { c.Ingest.Workers = -1 }},
		{"band", func(c *Config) { c.Takeoff.Level.MinAltitudeFt = 3000 }},
		{"duplicate station", func(c *Config) { c.Stations = append(c.Stations, c.Stations[0]) }},
		{"offset", func(c *Config) { c.Stations[0].UTCOffsetHours = 20 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// chdir changes the working directory for the rest of the test and restores
// it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
