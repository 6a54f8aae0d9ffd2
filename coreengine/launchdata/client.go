// Package launchdata fetches rocket launches from RocketLaunch.Live and
// site weather from OpenWeather, and rates weather impact on a launch.
package launchdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jeeves-cluster-organization/goalrunner/coreengine/config"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/observability"
	"github.com/jeeves-cluster-organization/goalrunner/coreengine/typeutil"
)

// ProviderName identifies the launch data source in research output.
const ProviderName = "RocketLaunch.Live"

// Service labels used for metrics and errors.
const (
	serviceLaunches  = "rocketlaunch_launches"
	serviceLocations = "rocketlaunch_locations"
	serviceWeather   = "openweather"
)

const maxBodyBytes = 4 << 20

var (
	// ErrNoLaunches is returned when the launch list is empty.
	ErrNoLaunches = errors.New("no upcoming launches found from RocketLaunch.Live API")
	// ErrNoSpaceXLaunch is returned when no listed launch is operated by SpaceX.
	ErrNoSpaceXLaunch = errors.New("no SpaceX launch found in the upcoming launches")
)

var tracer = otel.Tracer("goalrunner/launchdata")

// StatusError reports a non-200 response from a data provider.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API error: %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s API error: %d %s", e.Service, e.StatusCode, e.Body)
}

// Logger is the logging surface the client needs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Config configures a Client.
type Config struct {
	LaunchURL     string
	LocationsURL  string
	WeatherURL    string
	WeatherAPIKey string

	// Timeout bounds every request. Zero means no client-side limit.
	Timeout time.Duration

	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to the launch and weather providers.
type Client struct {
	cfg    Config
	http   *http.Client
	logger Logger
}

// ConfigFromCore extracts the endpoint, key and timeout settings.
func ConfigFromCore(c *config.CoreConfig) Config {
	return Config{
		LaunchURL:     c.LaunchEndpoint,
		LocationsURL:  c.LocationsEndpoint,
		WeatherURL:    c.WeatherEndpoint,
		WeatherAPIKey: c.OpenWeatherAPIKey,
		Timeout:       c.HTTPTimeoutDuration(),
	}
}

// NewClient creates a Client.
func NewClient(cfg Config, logger Logger) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc, logger: logger}
}

// NextSpaceXLaunch returns the first upcoming launch whose provider name
// contains "spacex", case-insensitively.
func (c *Client) NextSpaceXLaunch(ctx context.Context) (Launch, error) {
	body, err := c.get(ctx, serviceLaunches, c.cfg.LaunchURL, nil)
	if err != nil {
		return Launch{}, err
	}
	if !gjson.ValidBytes(body) {
		return Launch{}, fmt.Errorf("%s: malformed launch list", ProviderName)
	}

	results := gjson.GetBytes(body, "result").Array()
	if len(results) == 0 {
		return Launch{}, ErrNoLaunches
	}

	for _, r := range results {
		launch := NewLaunch(json.RawMessage(r.Raw))
		if strings.Contains(strings.ToLower(launch.ProviderName()), "spacex") {
			c.logger.Debug("launchdata_spacex_launch_found", "name", launch.Name())
			return launch, nil
		}
	}
	return Launch{}, fmt.Errorf("%w (checked %d)", ErrNoSpaceXLaunch, len(results))
}

// LocationDetails looks id up in the locations list.
// Any failure is logged and reported as not found.
func (c *Client) LocationDetails(ctx context.Context, id int64) (Location, bool) {
	if id == 0 {
		return Location{}, false
	}

	body, err := c.get(ctx, serviceLocations, c.cfg.LocationsURL, nil)
	if err != nil {
		c.logger.Warn("launchdata_locations_fetch_failed", "error", err.Error())
		return Location{}, false
	}
	if !gjson.ValidBytes(body) {
		c.logger.Warn("launchdata_locations_malformed")
		return Location{}, false
	}

	var found Location
	ok := false
	gjson.GetBytes(body, "result").ForEach(func(_, loc gjson.Result) bool {
		if loc.Get("id").Int() == id {
			found = Location{raw: json.RawMessage(loc.Raw)}
			ok = true
			return false
		}
		return true
	})
	if !ok {
		c.logger.Warn("launchdata_location_not_found", "location_id", id)
	}
	return found, ok
}

// ExtractLaunchLocation resolves the coordinates of a launch's pad.
func (c *Client) ExtractLaunchLocation(ctx context.Context, launch Launch) (Coordinates, bool) {
	id, ok := launch.LocationID()
	if !ok {
		c.logger.Warn("launchdata_location_id_missing")
		return Coordinates{}, false
	}

	loc, ok := c.LocationDetails(ctx, id)
	if !ok {
		return Coordinates{}, false
	}

	coords, ok := loc.Coordinates()
	if !ok {
		c.logger.Warn("launchdata_coordinates_missing", "location_id", id)
		return Coordinates{}, false
	}
	c.logger.Debug("launchdata_coordinates_resolved", "lat", coords.Lat, "lon", coords.Lon)
	return coords, true
}

// Weather fetches current conditions at coords in metric units.
func (c *Client) Weather(ctx context.Context, coords Coordinates) (Weather, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	params.Set("appid", c.cfg.WeatherAPIKey)
	params.Set("units", "metric")

	body, err := c.get(ctx, serviceWeather, c.cfg.WeatherURL, params)
	if err != nil {
		return Weather{}, err
	}
	if !gjson.ValidBytes(body) {
		return Weather{}, errors.New("OpenWeather: malformed weather payload")
	}
	return NewWeather(json.RawMessage(body)), nil
}

func (c *Client) get(ctx context.Context, service, rawURL string, params url.Values) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "launchdata."+service,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("goalrunner.external.service", service)),
	)
	defer span.End()

	start := time.Now()
	status := "error"
	defer func() {
		observability.RecordExternalCall(service, status, int(time.Since(start).Milliseconds()))
	}()

	u, err := url.Parse(rawURL)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s: invalid url: %w", service, err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", service, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s: request failed: %w", service, err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", service, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := &StatusError{Service: serviceTitle(service), StatusCode: resp.StatusCode, Body: typeutil.Truncate(strings.TrimSpace(string(body)), 200)}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return body, nil
}

func serviceTitle(service string) string {
	if service == serviceWeather {
		return "OpenWeather"
	}
	return ProviderName
}

