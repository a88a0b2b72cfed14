package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"krishisat/internal/risk"
	"krishisat/internal/types"
)

const (
	classifyPath = "/v1/classify"
	forecastPath = "/v1/forecast"
)

// InferenceClientConfig configures the model server client.
type InferenceClientConfig struct {
	BaseURL string
	APIKey  string
	Logger  *slog.Logger
}

type classifyResponse struct {
	Predictions []risk.ClassProbability `json:"predictions"`
}

type forecastRequest struct {
	Sequence risk.FeatureVector `json:"sequence"`
}

type forecastResponse struct {
	RiskScores []float64 `json:"risk_scores"`
}

// InferenceClient calls the model server that hosts the disease classifier
// and the sequence risk model.
type InferenceClient struct {
	base    *BaseClient
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewInferenceClient creates an InferenceClient with the default retry
// policy.
func NewInferenceClient(httpClient *http.Client, cfg InferenceClientConfig, opts ...BaseClientOption) *InferenceClient {
	opts = append([]BaseClientOption{WithFailureCode(types.ErrCodeUpstreamInference)}, opts...)
	base := NewBaseClient(httpClient, "inference", DefaultRetryPolicy(), "KrishiSat/1.0", opts...)
	return NewInferenceClientWithBase(base, cfg)
}

// NewInferenceClientWithBase creates an InferenceClient around an existing
// BaseClient.
func NewInferenceClientWithBase(base *BaseClient, cfg InferenceClientConfig) *InferenceClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &InferenceClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// Classify uploads an image and returns the probability of every class the
// classifier knows, in the model's native order.
func (c *InferenceClient) Classify(ctx context.Context, image []byte) ([]risk.ClassProbability, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "leaf")
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build classify request", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build classify request", err)
	}
	if err := mw.Close(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build classify request", err)
	}

	var out classifyResponse
	if err := c.post(ctx, classifyPath, mw.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	if len(out.Predictions) == 0 {
		return nil, types.NewAppError(types.ErrCodeInternalModelOutputInvalid, "classifier returned no predictions", nil)
	}

	c.logger.DebugContext(ctx, "image classified", "classes", len(out.Predictions))
	return out.Predictions, nil
}

// Predict runs the sequence model and returns its daily risk scores.
func (c *InferenceClient) Predict(ctx context.Context, features risk.FeatureVector) ([]float64, error) {
	body, err := json.Marshal(forecastRequest{Sequence: features})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize feature sequence", err)
	}

	var out forecastResponse
	if err := c.post(ctx, forecastPath, "application/json", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "sequence model scored", "days", len(out.RiskScores))
	return out.RiskScores, nil
}

// Health reports whether the model server answers its health endpoint.
func (c *InferenceClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference health returned %d", resp.StatusCode)
	}
	return nil
}

func (c *InferenceClient) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create inference request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(ctx, resp, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeInternalModelOutputInvalid, "failed to decode inference response", err)
	}
	return nil
}

func (c *InferenceClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// handleErrorResponse maps a 4xx from the model server. A 400 or 422 from
// the classifier means it could not decode the image; anything else is an
// integration fault.
func (c *InferenceClient) handleErrorResponse(ctx context.Context, resp *http.Response, path string) *types.AppError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	c.logger.ErrorContext(ctx, "inference API error",
		"path", path,
		"status_code", resp.StatusCode,
		"response_body", string(body),
	)

	rejected := resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest
	if rejected && path == classifyPath {
		return types.NewAppError(
			types.ErrCodeValidationInvalidImage,
			"model server rejected the input",
			fmt.Errorf("inference %s returned %d: %s", path, resp.StatusCode, body),
		)
	}
	return types.NewAppError(
		types.ErrCodeUpstreamInference,
		fmt.Sprintf("inference client error (%d)", resp.StatusCode),
		fmt.Errorf("inference %s returned %d: %s", path, resp.StatusCode, body),
	)
}
