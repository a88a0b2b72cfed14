package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"krishisat/internal/risk"
	"krishisat/internal/types"
)

const openWeatherCurrentPath = "/data/2.5/weather"

// OpenWeatherClientConfig configures the OpenWeather client.
type OpenWeatherClientConfig struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
	Now     func() time.Time
}

// OpenWeatherClient fetches current conditions from the OpenWeather
// current-weather endpoint.
type OpenWeatherClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

// NewOpenWeatherClient creates an OpenWeatherClient that makes a single
// attempt per call.
func NewOpenWeatherClient(httpClient *http.Client, cfg OpenWeatherClientConfig, opts ...BaseClientOption) *OpenWeatherClient {
	opts = append([]BaseClientOption{WithFailureCode(types.ErrCodeUpstreamWeather)}, opts...)
	base := NewBaseClient(httpClient, "openweather", SingleAttempt(), "KrishiSat/1.0", opts...)
	return NewOpenWeatherClientWithBase(base, cfg)
}

// NewOpenWeatherClientWithBase creates an OpenWeatherClient around an
// existing BaseClient.
func NewOpenWeatherClientWithBase(base *BaseClient, cfg OpenWeatherClientConfig) *OpenWeatherClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &OpenWeatherClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
		now:     now,
	}
}

type currentWeatherResponse struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Rain *struct {
		OneHour *float64 `json:"1h"`
	} `json:"rain"`
}

// FetchCurrent returns current conditions at a point. Fields the provider
// omits take the documented defaults.
func (c *OpenWeatherClient) FetchCurrent(ctx context.Context, lat, lon float64) (risk.WeatherObservation, error) {
	q := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(lon, 'f', -1, 64)},
		"appid": {c.apiKey},
		"units": {"metric"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+openWeatherCurrentPath+"?"+q.Encode(), nil)
	if err != nil {
		return risk.WeatherObservation{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create weather request", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return risk.WeatherObservation{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.WarnContext(ctx, "openweather API error", "status_code", resp.StatusCode)
		return risk.WeatherObservation{}, types.NewAppError(
			types.ErrCodeUpstreamWeather,
			fmt.Sprintf("openweather returned %d", resp.StatusCode),
			nil,
		)
	}

	var body currentWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return risk.WeatherObservation{}, types.NewAppError(types.ErrCodeUpstreamWeather, "failed to decode weather response", err)
	}

	obs := risk.DefaultWeather(c.now())
	obs.Description = ""
	if body.Main.Temp != nil {
		obs.TemperatureC = *body.Main.Temp
	}
	if body.Main.Humidity != nil {
		obs.HumidityPct = *body.Main.Humidity
	}
	if body.Rain != nil && body.Rain.OneHour != nil {
		obs.RainfallMM = *body.Rain.OneHour
	}
	if len(body.Weather) > 0 {
		obs.Description = body.Weather[0].Description
	}
	return obs, nil
}
