package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yegors/depwatch/internal/adsb"
	"github.com/yegors/depwatch/internal/departure"
	"github.com/yegors/depwatch/internal/events"
	"github.com/yegors/depwatch/internal/station"
	"github.com/yegors/depwatch/internal/storage"
	"github.com/yegors/depwatch/internal/storage/clickhouse"
	"github.com/yegors/depwatch/internal/storage/postgres"
	"github.com/yegors/depwatch/pkg/logger"
)

// Storage drivers
const (
	DriverSQLite   = storage.DriverSQLite
	DriverPostgres = storage.DriverPostgres
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config represents the application configuration
type Config struct {
	Logging        LoggingConfig   `toml:"logging"`
	ADSB           ADSBConfig      `toml:"adsb"`
	AirportsDBPath string          `toml:"airports_db_path"`
	Stations       []StationConfig `toml:"stations"`
	Filters        FiltersConfig   `toml:"filters"`
	Takeoff        TakeoffConfig   `toml:"takeoff"`
	Dedup          DedupConfig     `toml:"dedup"`
	Ingest         IngestConfig    `toml:"ingest"`
	Schedule       ScheduleConfig  `toml:"schedule"`
	Storage        StorageConfig   `toml:"storage"`
	Archive        ArchiveConfig   `toml:"archive"`
	Events         EventsConfig    `toml:"events"`
	Server         ServerConfig    `toml:"server"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ADSBConfig contains snapshot source configuration
type ADSBConfig struct {
	SourceType          string `toml:"source_type"`         // "external-adsbexchangelike" or "external-opensky"
	ExternalSourceURL   string `toml:"external_source_url"` // fmt template: lat, lon, radius
	UserAgent           string `toml:"user_agent"`
	APIHost             string `toml:"api_host"`
	APIKey              string `toml:"api_key"`
	SearchRadiusNM      int    `toml:"search_radius_nm"`
	TimeoutSecs         int    `toml:"timeout_seconds"`
	OpenSkyURL          string `toml:"opensky_url"`
	OpenSkyClientID     string `toml:"opensky_client_id"`
	OpenSkyClientSecret string `toml:"opensky_client_secret"`
	OpenSkyTokenURL     string `toml:"opensky_token_url"`
}

// StationConfig describes one monitored airport. Latitude and longitude may
// be omitted when airports_db_path is set.
type StationConfig struct {
	Code           string   `toml:"code"`
	Latitude       *float64 `toml:"latitude"`
	Longitude      *float64 `toml:"longitude"`
	UTCOffsetHours int      `toml:"utc_offset_hours"`
}

// FiltersConfig lists operator callsign prefixes that are never logged.
type FiltersConfig struct {
	ExcludedPrefixes []string `toml:"excluded_prefixes"`
}

// TakeoffConfig holds the two takeoff bands.
type TakeoffConfig struct {
	Climb BandConfig `toml:"climb"`
	Level BandConfig `toml:"level"`
}

// BandConfig mirrors departure.Band. Zero values take the defaults.
type BandConfig struct {
	MinAltitudeFt   float64 `toml:"min_altitude_ft"`
	MaxAltitudeFt   float64 `toml:"max_altitude_ft"`
	MinRateFPM      float64 `toml:"min_rate_fpm"`
	MinGroundSpeedK float64 `toml:"min_ground_speed_kts"`
}

// DedupConfig controls the duplicate window.
type DedupConfig struct {
	WindowMinutes int  `toml:"window_minutes"`
	Cache         bool `toml:"cache"`
}

// IngestConfig controls cycle pacing.
type IngestConfig struct {
	StationDelaySecs  int `toml:"station_delay_seconds"`
	CycleIntervalSecs int `toml:"cycle_interval_seconds"`
	Workers           int `toml:"workers"`
}

// ScheduleConfig controls the aggregation loop.
type ScheduleConfig struct {
	IntervalMinutes int `toml:"interval_minutes"`
}

// StorageConfig contains flight log storage configuration
type StorageConfig struct {
	Driver     string `toml:"driver"` // "sqlite" or "postgres"
	SQLitePath string `toml:"sqlite_path"`
	DSN        string `toml:"dsn"`
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	Database   string `toml:"database"`
	User       string `toml:"user"`
	Password   string `toml:"password"`
	SSLMode    string `toml:"sslmode"`
	MaxConns   int    `toml:"max_conns"`
}

// ArchiveConfig enables the ClickHouse departure archive.
type ArchiveConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// EventsConfig enables NATS departure events.
type EventsConfig struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"`
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

func coord(v float64) *float64 { return &v }

// DefaultStations is the built-in station list.
func DefaultStations() []StationConfig {
	return []StationConfig{
		{Code: "CGK", Latitude: coord(-6.1256), Longitude: coord(106.6559), UTCOffsetHours: 7},
		{Code: "HLP", Latitude: coord(-6.2653), Longitude: coord(106.8911), UTCOffsetHours: 7},
		{Code: "DPS", Latitude: coord(-8.7481), Longitude: coord(115.1672), UTCOffsetHours: 8},
		{Code: "SUB", Latitude: coord(-7.3798), Longitude: coord(112.7878), UTCOffsetHours: 7},
		{Code: "KNO", Latitude: coord(3.6422), Longitude: coord(98.8852), UTCOffsetHours: 7},
		{Code: "UPG", Latitude: coord(-5.0616), Longitude: coord(119.5540), UTCOffsetHours: 8},
		{Code: "BDJ", Latitude: coord(-3.4472), Longitude: coord(114.7639), UTCOffsetHours: 8},
		{Code: "BPN", Latitude: coord(-1.2683), Longitude: coord(116.8944), UTCOffsetHours: 8},
		{Code: "PKU", Latitude: coord(0.4608), Longitude: coord(101.4442), UTCOffsetHours: 7},
		{Code: "SOC", Latitude: coord(-7.5156), Longitude: coord(110.7553), UTCOffsetHours: 7},
		{Code: "SRG", Latitude: coord(-6.9722), Longitude: coord(110.3756), UTCOffsetHours: 7},
		{Code: "YIA", Latitude: coord(-7.9016), Longitude: coord(110.0544), UTCOffsetHours: 7},
		{Code: "JOG", Latitude: coord(-7.7881), Longitude: coord(110.4317), UTCOffsetHours: 7},
		{Code: "LOP", Latitude: coord(-8.7583), Longitude: coord(116.2764), UTCOffsetHours: 8},
	}
}

// Default returns the built-in configuration with defaults applied.
func Default() *Config {
	c := &Config{Stations: DefaultStations(), Dedup: DedupConfig{Cache: true}}
	c.applyDefaults()
	return c
}

// Load loads the configuration from a file
func Load(path string) (*Config, error) {
	config := Config{Dedup: DedupConfig{Cache: true}}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if len(config.Stations) == 0 {
		config.Stations = DefaultStations()
	}

	if err := config.loadStationsFromCSV(); err != nil {
		return nil, fmt.Errorf("failed to load station details from CSV: %w", err)
	}

	return &config, nil
}

// loadStationsFromCSV fills missing coordinates from an OurAirports-style CSV
// (ident at index 1, latitude at 4, longitude at 5). Stations are matched by
// ident, then by IATA code (index 13) when the file has one.
func (c *Config) loadStationsFromCSV() error {
	missing := make(map[string]int)
	for i, st := range c.Stations {
		if st.Latitude == nil || st.Longitude == nil {
			missing[strings.ToUpper(st.Code)] = i
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if c.AirportsDBPath == "" {
		codes := make([]string, 0, len(missing))
		for code := range missing {
			codes = append(codes, code)
		}
		return fmt.Errorf("airports_db_path is required for stations without coordinates: %v", codes)
	}

	file, err := os.Open(c.AirportsDBPath)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	// Skip header
	if _, err := reader.Read(); err != nil {
		return err
	}

	records, err := reader.ReadAll()
	if err != nil {
		return err
	}

	for _, record := range records {
		if len(missing) == 0 {
			break
		}
		if len(record) < 6 {
			continue
		}

		code := strings.ToUpper(record[1])
		idx, ok := missing[code]
		if !ok && len(record) > 13 {
			code = strings.ToUpper(record[13])
			idx, ok = missing[code]
		}
		if !ok || code == "" {
			continue
		}

		lat, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			return fmt.Errorf("invalid latitude in CSV for %s: %w", code, err)
		}
		lon, err := strconv.ParseFloat(record[5], 64)
		if err != nil {
			return fmt.Errorf("invalid longitude in CSV for %s: %w", code, err)
		}
		c.Stations[idx].Latitude = &lat
		c.Stations[idx].Longitude = &lon
		delete(missing, code)
	}

	for code := range missing {
		return fmt.Errorf("airport code %s not found in %s", code, c.AirportsDBPath)
	}
	return nil
}

// LoadWithFallback loads the configuration by checking multiple locations in
// order of preference. When no file exists the built-in defaults are used.
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,
		"configs/config.toml",
		"config.toml",
	}

	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
			}
			return config, nil
		}
	}

	if preferredPath != "" {
		return nil, fmt.Errorf("config file not found: %s", preferredPath)
	}
	return Default(), nil
}

// ApplyEnv overrides storage endpoints, credentials and filters from the
// environment.
func (c *Config) ApplyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setString("DEPWATCH_DB_DRIVER", &c.Storage.Driver)
	setString("DEPWATCH_DB_DSN", &c.Storage.DSN)
	setString("DEPWATCH_SQLITE_PATH", &c.Storage.SQLitePath)
	setString("DEPWATCH_PG_HOST", &c.Storage.Host)
	setString("DEPWATCH_PG_DATABASE", &c.Storage.Database)
	setString("DEPWATCH_PG_USER", &c.Storage.User)
	setString("DEPWATCH_PG_PASSWORD", &c.Storage.Password)
	setString("DEPWATCH_NATS_URL", &c.Events.NATSURL)

	if v, ok := os.LookupEnv("DEPWATCH_PG_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DEPWATCH_PG_PORT %q: %w", v, err)
		}
		c.Storage.Port = port
	}

	if v, ok := os.LookupEnv("DEPWATCH_EXCLUDED_PREFIXES"); ok {
		var prefixes []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				prefixes = append(prefixes, p)
			}
		}
		c.Filters.ExcludedPrefixes = prefixes
	}

	if v, ok := os.LookupEnv("DEPWATCH_CLICKHOUSE_HOST"); ok && v != "" {
		c.Archive.Host = v
		c.Archive.Enabled = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	// Backwards-compatibility: map legacy "external" value to the explicit name
	if c.ADSB.SourceType == "" || c.ADSB.SourceType == "external" {
		c.ADSB.SourceType = adsb.SourceAirplanesLive
	}
	if c.ADSB.ExternalSourceURL == "" {
		c.ADSB.ExternalSourceURL = "https://api.airplanes.live/v2/point/%v/%v/%v"
	}
	if c.ADSB.UserAgent == "" {
		c.ADSB.UserAgent = defaultUserAgent
	}
	if c.ADSB.SearchRadiusNM == 0 {
		c.ADSB.SearchRadiusNM = 50
	}
	if c.ADSB.TimeoutSecs == 0 {
		c.ADSB.TimeoutSecs = 15
	}

	if c.Filters.ExcludedPrefixes == nil {
		c.Filters.ExcludedPrefixes = departure.DefaultExcludedPrefixes()
	}

	defaults := departure.DefaultBands()
	fillBand(&c.Takeoff.Climb, defaults[0])
	fillBand(&c.Takeoff.Level, defaults[1])

	if c.Dedup.WindowMinutes == 0 {
		c.Dedup.WindowMinutes = int(departure.DefaultWindow / time.Minute)
	}

	if c.Ingest.StationDelaySecs == 0 {
		c.Ingest.StationDelaySecs = 12
	}
	if c.Ingest.CycleIntervalSecs == 0 {
		c.Ingest.CycleIntervalSecs = 300
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 1
	}

	if c.Schedule.IntervalMinutes == 0 {
		c.Schedule.IntervalMinutes = 60
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/depwatch.db"
	}
	if c.Storage.Host == "" {
		c.Storage.Host = "localhost"
	}
	if c.Storage.Port == 0 {
		c.Storage.Port = 5432
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "depwatch"
	}
	if c.Storage.MaxConns == 0 {
		c.Storage.MaxConns = 10
	}

	if c.Archive.Host == "" {
		c.Archive.Host = "localhost"
	}
	if c.Archive.Port == 0 {
		c.Archive.Port = 9000
	}
	if c.Archive.Database == "" {
		c.Archive.Database = "default"
	}
	if c.Archive.User == "" {
		c.Archive.User = "default"
	}

	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = events.DefaultSubjectPrefix
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = 15
	}
	if c.Server.WriteTimeoutSecs == 0 {
		c.Server.WriteTimeoutSecs = 15
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 60
	}
}

func fillBand(b *BandConfig, d departure.Band) {
	if b.MinAltitudeFt == 0 {
		b.MinAltitudeFt = d.MinAltitudeFt
	}
	if b.MaxAltitudeFt == 0 {
		b.MaxAltitudeFt = d.MaxAltitudeFt
	}
	if b.MinRateFPM == 0 {
		b.MinRateFPM = d.MinRateFPM
	}
	if b.MinGroundSpeedK == 0 {
		b.MinGroundSpeedK = d.MinGroundSpeedK
	}
}

// Validate fills defaults and validates the configuration
func (c *Config) Validate() error {
	c.applyDefaults()

	switch c.ADSB.SourceType {
	case adsb.SourceAirplanesLive, adsb.SourceOpenSky:
	default:
		return fmt.Errorf("invalid adsb source_type: %s (must be '%s' or '%s')",
			c.ADSB.SourceType, adsb.SourceAirplanesLive, adsb.SourceOpenSky)
	}
	if c.ADSB.SearchRadiusNM < 0 {
		return fmt.Errorf("invalid search_radius_nm: %d", c.ADSB.SearchRadiusNM)
	}
	if c.ADSB.TimeoutSecs < 0 {
		return fmt.Errorf("invalid timeout_seconds: %d", c.ADSB.TimeoutSecs)
	}

	for _, b := range []BandConfig{c.Takeoff.Climb, c.Takeoff.Level} {
		if b.MinAltitudeFt >= b.MaxAltitudeFt {
			return fmt.Errorf("invalid takeoff band: min_altitude_ft %.0f >= max_altitude_ft %.0f",
				b.MinAltitudeFt, b.MaxAltitudeFt)
		}
	}

	if c.Dedup.WindowMinutes < 0 {
		return fmt.Errorf("invalid dedup window_minutes: %d", c.Dedup.WindowMinutes)
	}
	if c.Ingest.StationDelaySecs < 0 {
		return fmt.Errorf("invalid station_delay_seconds: %d", c.Ingest.StationDelaySecs)
	}
	if c.Ingest.CycleIntervalSecs < 0 {
		return fmt.Errorf("invalid cycle_interval_seconds: %d", c.Ingest.CycleIntervalSecs)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("invalid ingest workers: %d (must be >= 1)", c.Ingest.Workers)
	}
	if c.Schedule.IntervalMinutes < 0 {
		return fmt.Errorf("invalid schedule interval_minutes: %d", c.Schedule.IntervalMinutes)
	}

	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("invalid storage driver: %s (must be '%s' or '%s')",
			c.Storage.Driver, DriverSQLite, DriverPostgres)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if _, err := c.Registry(); err != nil {
		return err
	}
	return nil
}

// Registry builds the station registry.
func (c *Config) Registry() (*station.Registry, error) {
	stations := make([]station.Station, 0, len(c.Stations))
	for _, s := range c.Stations {
		if s.Latitude == nil || s.Longitude == nil {
			return nil, fmt.Errorf("station %s has no coordinates", s.Code)
		}
		stations = append(stations, station.Station{
			Code:           s.Code,
			Latitude:       *s.Latitude,
			Longitude:      *s.Longitude,
			UTCOffsetHours: s.UTCOffsetHours,
		})
	}
	return station.NewRegistry(stations)
}

// Bands returns the configured takeoff bands.
func (c *Config) Bands() []departure.Band {
	return []departure.Band{
		{
			MinAltitudeFt:   c.Takeoff.Climb.MinAltitudeFt,
			MaxAltitudeFt:   c.Takeoff.Climb.MaxAltitudeFt,
			MinRateFPM:      c.Takeoff.Climb.MinRateFPM,
			MinGroundSpeedK: c.Takeoff.Climb.MinGroundSpeedK,
		},
		{
			MinAltitudeFt:   c.Takeoff.Level.MinAltitudeFt,
			MaxAltitudeFt:   c.Takeoff.Level.MaxAltitudeFt,
			MinRateFPM:      c.Takeoff.Level.MinRateFPM,
			RateInclusive:   true,
			MinGroundSpeedK: c.Takeoff.Level.MinGroundSpeedK,
		},
	}
}

// DedupWindow returns the duplicate window.
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.Dedup.WindowMinutes) * time.Minute
}

// IngestService returns the ingestion pacing.
func (c *Config) IngestService() departure.ServiceConfig {
	return departure.ServiceConfig{
		StationDelay:  time.Duration(c.Ingest.StationDelaySecs) * time.Second,
		CycleInterval: time.Duration(c.Ingest.CycleIntervalSecs) * time.Second,
		Workers:       c.Ingest.Workers,
	}
}

// ScheduleInterval returns the aggregation period.
func (c *Config) ScheduleInterval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}

// Client returns the snapshot client settings.
func (c *Config) Client() adsb.ClientConfig {
	return adsb.ClientConfig{
		SourceType:          c.ADSB.SourceType,
		ExternalSourceURL:   c.ADSB.ExternalSourceURL,
		OpenSkyURL:          c.ADSB.OpenSkyURL,
		UserAgent:           c.ADSB.UserAgent,
		APIHost:             c.ADSB.APIHost,
		APIKey:              c.ADSB.APIKey,
		SearchRadiusNM:      c.ADSB.SearchRadiusNM,
		Timeout:             time.Duration(c.ADSB.TimeoutSecs) * time.Second,
		OpenSkyClientID:     c.ADSB.OpenSkyClientID,
		OpenSkyClientSecret: c.ADSB.OpenSkyClientSecret,
		OpenSkyTokenURL:     c.ADSB.OpenSkyTokenURL,
	}
}

// Postgres returns the PostgreSQL connection settings.
func (c *Config) Postgres() postgres.Config {
	return postgres.Config{
		DSN:      c.Storage.DSN,
		Host:     c.Storage.Host,
		Port:     c.Storage.Port,
		Database: c.Storage.Database,
		User:     c.Storage.User,
		Password: c.Storage.Password,
		SSLMode:  c.Storage.SSLMode,
		MaxConns: int32(c.Storage.MaxConns),
	}
}

// StorageOptions returns the gateway driver selection.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver:     c.Storage.Driver,
		SQLitePath: c.Storage.SQLitePath,
		Postgres:   c.Postgres(),
	}
}

// ClickHouse returns the archive connection settings.
func (c *Config) ClickHouse() clickhouse.Config {
	return clickhouse.Config{
		Host:     c.Archive.Host,
		Port:     c.Archive.Port,
		Database: c.Archive.Database,
		User:     c.Archive.User,
		Password: c.Archive.Password,
	}
}

// Logger returns the logger settings.
func (c *Config) Logger() logger.Config {
	return logger.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}
