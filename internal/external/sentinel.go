package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"krishisat/internal/risk"
	"krishisat/internal/types"
)

const (
	sentinelStatisticsPath = "/api/v1/statistics"
	sentinelCRS            = "http://www.opengis.net/def/crs/EPSG/0/4326"
	// sentinelResolution is the sampling step in degrees, roughly 100 m.
	sentinelResolution = 0.001
	// tokenRefreshSkew renews the access token before it actually expires.
	tokenRefreshSkew = time.Minute
)

// ndviEvalscript computes per-pixel NDVI from Sentinel-2 bands 4 and 8 and
// masks pixels without data.
const ndviEvalscript = `//VERSION=3
function setup() {
  return {
    input: [{ bands: ["B04", "B08", "dataMask"] }],
    output: [
      { id: "ndvi", bands: 1, sampleType: "FLOAT32" },
      { id: "dataMask", bands: 1 }
    ]
  };
}
function evaluatePixel(s) {
  const ndvi = (s.B08 - s.B04) / (s.B08 + s.B04 + 0.0001);
  return { ndvi: [ndvi], dataMask: [s.dataMask] };
}`

// SentinelClientConfig configures the Sentinel Hub client.
type SentinelClientConfig struct {
	ClientID         string
	ClientSecret     string
	TokenURL         string
	BaseURL          string
	LookbackDays     int
	MaxCloudCoverage int
	Logger           *slog.Logger
	Now              func() time.Time
}

// SentinelClient derives daily NDVI for a bounding box from the Sentinel Hub
// Statistical API.
type SentinelClient struct {
	base       *BaseClient
	cfg        SentinelClientConfig
	logger     *slog.Logger
	now        func() time.Time
	mu         sync.Mutex
	token      string
	tokenUntil time.Time
}

// NewSentinelClient creates a SentinelClient that makes a single attempt per
// call.
func NewSentinelClient(httpClient *http.Client, cfg SentinelClientConfig, opts ...BaseClientOption) *SentinelClient {
	opts = append([]BaseClientOption{WithFailureCode(types.ErrCodeUpstreamImagery)}, opts...)
	base := NewBaseClient(httpClient, "sentinel", SingleAttempt(), "KrishiSat/1.0", opts...)
	return NewSentinelClientWithBase(base, cfg)
}

// NewSentinelClientWithBase creates a SentinelClient around an existing
// BaseClient.
func NewSentinelClientWithBase(base *BaseClient, cfg SentinelClientConfig) *SentinelClient {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = risk.SeriesLength * 5
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &SentinelClient{base: base, cfg: cfg, logger: cfg.Logger, now: cfg.Now}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type statsRequest struct {
	Input struct {
		Bounds struct {
			BBox       risk.BBox         `json:"bbox"`
			Properties map[string]string `json:"properties"`
		} `json:"bounds"`
		Data []statsDataSource `json:"data"`
	} `json:"input"`
	Aggregation struct {
		TimeRange struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"timeRange"`
		AggregationInterval struct {
			Of string `json:"of"`
		} `json:"aggregationInterval"`
		Evalscript string  `json:"evalscript"`
		ResX       float64 `json:"resx"`
		ResY       float64 `json:"resy"`
	} `json:"aggregation"`
}

type statsDataSource struct {
	Type       string `json:"type"`
	DataFilter struct {
		MaxCloudCoverage int `json:"maxCloudCoverage"`
	} `json:"dataFilter"`
}

type statsResponse struct {
	Data []struct {
		Interval struct {
			From time.Time `json:"from"`
		} `json:"interval"`
		Outputs struct {
			NDVI struct {
				Bands struct {
					B0 struct {
						Stats bandStats `json:"stats"`
					} `json:"B0"`
				} `json:"bands"`
			} `json:"ndvi"`
		} `json:"outputs"`
	} `json:"data"`
}

// bandStats.Mean is "NaN" (a JSON string) when every pixel was masked.
type bandStats struct {
	Mean        any `json:"mean"`
	SampleCount int `json:"sampleCount"`
	NoDataCount int `json:"noDataCount"`
}

func (s bandStats) value() (float64, bool) {
	mean, ok := s.Mean.(float64)
	if !ok || math.IsNaN(mean) || math.IsInf(mean, 0) {
		return 0, false
	}
	if s.SampleCount > 0 && s.NoDataCount >= s.SampleCount {
		return 0, false
	}
	return mean, true
}

// FetchVegetation returns the last 30 clear daily NDVI means over the box.
// With fewer clear days it returns their average as an aggregate, and with
// none it fails.
func (c *SentinelClient) FetchVegetation(ctx context.Context, bbox risk.BBox) (*risk.VegetationReading, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(c.buildStatsRequest(bbox))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize statistics request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+sentinelStatisticsPath, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create statistics request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
		}
		return nil, c.statusError(resp, "statistics")
	}

	var stats statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamImagery, "failed to decode statistics response", err)
	}

	sort.SliceStable(stats.Data, func(i, j int) bool {
		return stats.Data[i].Interval.From.Before(stats.Data[j].Interval.From)
	})
	var values []float64
	for _, d := range stats.Data {
		if v, ok := d.Outputs.NDVI.Bands.B0.Stats.value(); ok {
			values = append(values, risk.Round3(v))
		}
	}

	c.logger.InfoContext(ctx, "sentinel statistics received",
		"intervals", len(stats.Data),
		"clear_days", len(values),
	)

	switch {
	case len(values) >= risk.SeriesLength:
		return &risk.VegetationReading{Series: values[len(values)-risk.SeriesLength:]}, nil
	case len(values) > 0:
		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := risk.Round3(sum / float64(len(values)))
		return &risk.VegetationReading{Aggregate: &mean}, nil
	default:
		return nil, types.NewAppError(types.ErrCodeUpstreamImagery, "no cloud-free imagery in lookback window", nil)
	}
}

func (c *SentinelClient) buildStatsRequest(bbox risk.BBox) statsRequest {
	now := c.now().UTC()
	from := now.AddDate(0, 0, -c.cfg.LookbackDays)

	var r statsRequest
	r.Input.Bounds.BBox = bbox
	r.Input.Bounds.Properties = map[string]string{"crs": sentinelCRS}
	src := statsDataSource{Type: "sentinel-2-l2a"}
	src.DataFilter.MaxCloudCoverage = c.cfg.MaxCloudCoverage
	r.Input.Data = []statsDataSource{src}
	r.Aggregation.TimeRange.From = from.Format(time.RFC3339)
	r.Aggregation.TimeRange.To = now.Format(time.RFC3339)
	r.Aggregation.AggregationInterval.Of = "P1D"
	r.Aggregation.Evalscript = ndviEvalscript
	r.Aggregation.ResX = sentinelResolution
	r.Aggregation.ResY = sentinelResolution
	return r
}

// accessToken returns a cached OAuth token, fetching a new one with the
// client credentials grant when it is missing or about to expire.
func (c *SentinelClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenUntil) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp, "token")
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamImagery, "failed to decode token response", err)
	}
	if tok.AccessToken == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamImagery, "sentinel returned empty access token", nil)
	}

	c.token = tok.AccessToken
	c.tokenUntil = c.now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenRefreshSkew)
	return c.token, nil
}

func (c *SentinelClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *SentinelClient) statusError(resp *http.Response, op string) *types.AppError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	c.logger.Warn("sentinel API error",
		"operation", op,
		"status_code", resp.StatusCode,
		"response_body", string(body),
	)
	return types.NewAppError(
		types.ErrCodeUpstreamImagery,
		fmt.Sprintf("sentinel %s returned %d", op, resp.StatusCode),
		nil,
	)
}
