package adsb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/yegors/depwatch/internal/physics"
	"github.com/yegors/depwatch/internal/station"
	"github.com/yegors/depwatch/pkg/logger"
)

const defaultOpenSkyTokenURL = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"

// ClientConfig configures the snapshot client.
type ClientConfig struct {
	SourceType        string
	ExternalSourceURL string // fmt template: lat, lon, radius
	OpenSkyURL        string
	UserAgent         string
	APIHost           string
	APIKey            string
	SearchRadiusNM    int
	Timeout           time.Duration

	OpenSkyClientID     string
	OpenSkyClientSecret string
	OpenSkyTokenURL     string
}

// Client fetches aircraft snapshots around a station.
type Client struct {
	httpClient *http.Client
	cfg        ClientConfig
	logger     *logger.Logger

	// Cached OpenSky OAuth2 token
	token       string
	tokenExpiry time.Time
	tokenMu     sync.Mutex
}

// NewClient creates a new snapshot client
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	if cfg.SourceType == "" {
		cfg.SourceType = SourceAirplanesLive
	}
	if cfg.OpenSkyURL == "" {
		cfg.OpenSkyURL = "https://opensky-network.org/api/states/all"
	}
	if cfg.OpenSkyTokenURL == "" {
		cfg.OpenSkyTokenURL = defaultOpenSkyTokenURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     log.Named("adsb-cli"),
	}
}

// FetchSnapshot retrieves the aircraft currently near the station.
// Every failure is returned as a *FetchError.
func (c *Client) FetchSnapshot(ctx context.Context, st station.Station) (*Snapshot, error) {
	var (
		vectors []StateVector
		err     error
	)
	switch c.cfg.SourceType {
	case SourceAirplanesLive:
		vectors, err = c.fetchExternalData(ctx, st)
	case SourceOpenSky:
		vectors, err = c.fetchOpenSkyData(ctx, st)
	default:
		err = fmt.Errorf("unknown source type: %s", c.cfg.SourceType)
	}
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, &FetchError{Station: st.Code, Err: err}
	}

	return &Snapshot{
		Station:   st,
		FetchedAt: time.Now().UTC(),
		Aircraft:  vectors,
	}, nil
}

func (c *Client) get(ctx context.Context, st station.Station, urlStr, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.APIHost != "" {
		req.Header.Set("x-rapidapi-host", c.cfg.APIHost)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("x-rapidapi-key", c.cfg.APIKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("Fetching ADS-B snapshot",
		logger.String("station", st.Code),
		logger.String("url", urlStr))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Station:    st.Code,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// fetchExternalData queries an airplanes.live style point endpoint.
func (c *Client) fetchExternalData(ctx context.Context, st station.Station) ([]StateVector, error) {
	urlStr := fmt.Sprintf(c.cfg.ExternalSourceURL, st.Latitude, st.Longitude, c.cfg.SearchRadiusNM)

	body, err := c.get(ctx, st, urlStr, "")
	if err != nil {
		return nil, err
	}

	var data ExternalAPIResponse
	if err := json.Unmarshal(body, &data); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.Debug("Response body preview", logger.String("body", bodyPreview))
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	targets := data.Targets()
	vectors := make([]StateVector, 0, len(targets))
	for i := range targets {
		vectors = append(vectors, targets[i].Convert())
	}

	c.logger.Debug("Fetched external ADS-B snapshot",
		logger.String("station", st.Code),
		logger.Int("aircraft_count", len(vectors)))

	return vectors, nil
}

// withinRadius drops positioned vectors outside the search circle. The
// OpenSky query is a box, so its corners reach past the radius.
func withinRadius(vectors []StateVector, st station.Station, radiusNM float64) []StateVector {
	out := vectors[:0]
	for _, v := range vectors {
		if v.Lat == 0 && v.Lon == 0 {
			out = append(out, v)
			continue
		}
		if physics.DistanceNM(st.Latitude, st.Longitude, v.Lat, v.Lon) <= radiusNM {
			out = append(out, v)
		}
	}
	return out
}

// fetchOpenSkyData fetches state vectors from the OpenSky REST API.
// OpenSky reports metres and metres per second; values are converted to feet,
// knots and feet per minute.
func (c *Client) fetchOpenSkyData(ctx context.Context, st station.Station) ([]StateVector, error) {
	if c.cfg.SearchRadiusNM <= 0 {
		return nil, fmt.Errorf("search radius must be positive for OpenSky bounding box derivation")
	}
	radius := float64(c.cfg.SearchRadiusNM)
	lamin, lomin, lamax, lomax := physics.BoundingBox(st.Latitude, st.Longitude, radius)

	token, err := c.openSkyToken(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("lamin", fmt.Sprintf("%f", lamin))
	q.Set("lomin", fmt.Sprintf("%f", lomin))
	q.Set("lamax", fmt.Sprintf("%f", lamax))
	q.Set("lomax", fmt.Sprintf("%f", lomax))
	urlStr := c.cfg.OpenSkyURL + "?" + q.Encode()

	body, err := c.get(ctx, st, urlStr, token)
	if err != nil {
		return nil, err
	}

	var osResp struct {
		Time   int64   `json:"time"`
		States [][]any `json:"states"`
	}
	if err := json.Unmarshal(body, &osResp); err != nil {
		return nil, fmt.Errorf("failed to parse opensky JSON: %w", err)
	}

	vectors := make([]StateVector, 0, len(osResp.States))
	for _, s := range osResp.States {
		vectors = append(vectors, convertOpenSkyState(s))
	}
	vectors = withinRadius(vectors, st, radius)

	c.logger.Debug("Fetched OpenSky snapshot",
		logger.String("station", st.Code),
		logger.Int("aircraft_count", len(vectors)))

	return vectors, nil
}

// convertOpenSkyState maps one positional states/all row onto a StateVector.
// Index layout per the OpenSky REST docs.
func convertOpenSkyState(s []any) StateVector {
	str := func(i int) string {
		if len(s) > i {
			if v, ok := s[i].(string); ok {
				return v
			}
		}
		return ""
	}
	num := func(i int) (float64, bool) {
		if len(s) > i {
			if v, ok := s[i].(float64); ok {
				return v, true
			}
		}
		return 0, false
	}

	v := StateVector{
		Hex:        str(0),
		Callsign:   str(1),
		SourceType: SourceOpenSky,
	}
	if lon, ok := num(5); ok {
		v.Lon = lon
	}
	if lat, ok := num(6); ok {
		v.Lat = lat
	}
	onGround := len(s) > 8 && s[8] == true
	if alt, ok := num(7); ok && !onGround {
		ft := alt * physics.MetersToFeet
		v.AltitudeFeet = &ft
	}
	if vel, ok := num(9); ok {
		v.GroundSpeedKnots = vel * physics.MsToKnots
	}
	if vr, ok := num(11); ok {
		v.VerticalRateFPM = vr * physics.MsToFeetPerMin
	}
	return v
}

// openSkyToken returns a cached bearer token, requesting a new one through the
// client-credentials flow when credentials are configured. Without
// credentials the request goes out anonymously.
func (c *Client) openSkyToken(ctx context.Context) (string, error) {
	if c.cfg.OpenSkyClientID == "" || c.cfg.OpenSkyClientSecret == "" {
		return "", nil
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.OpenSkyClientID)
	form.Set("client_secret", c.cfg.OpenSkyClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenSkyTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create opensky token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Debug("Requesting OpenSky OAuth2 token", logger.String("token_url", c.cfg.OpenSkyTokenURL))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request opensky token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("opensky token endpoint error: %d", resp.StatusCode)
	}

	var tokResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokResp); err != nil {
		return "", fmt.Errorf("failed to decode opensky token response: %w", err)
	}
	if tokResp.AccessToken == "" {
		return "", fmt.Errorf("opensky token response did not contain access_token")
	}

	expiry := time.Now().Add(29 * time.Minute)
	if tokResp.ExpiresIn > 60 {
		expiry = time.Now().Add(time.Duration(tokResp.ExpiresIn-30) * time.Second)
	}
	c.token = tokResp.AccessToken
	c.tokenExpiry = expiry

	return c.token, nil
}
