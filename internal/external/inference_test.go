package external

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"krishisat/internal/risk"
	"krishisat/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInferenceClient(t *testing.T, serverURL string) *InferenceClient {
	t.Helper()
	base := newTestClient(t, fastPolicy(2), WithFailureCode(types.ErrCodeUpstreamInference))
	return NewInferenceClientWithBase(base, InferenceClientConfig{BaseURL: serverURL + "/", APIKey: "model-key"})
}

func TestInferenceClassify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/classify", r.URL.Path)
		assert.Equal(t, "Bearer model-key", r.Header.Get("Authorization"))

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		assert.Equal(t, []byte("image-bytes"), data)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"predictions":[{"label":"Wheat_Rust","probability":0.8},{"label":"Healthy","probability":0.2}]}`))
	}))
	defer server.Close()

	got, err := newTestInferenceClient(t, server.URL).Classify(context.Background(), []byte("image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, []risk.ClassProbability{
		{Label: "Wheat_Rust", Probability: 0.8},
		{Label: "Healthy", Probability: 0.2},
	}, got)
}

func TestInferenceClassifyRejectedImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"cannot identify image file"}`))
	}))
	defer server.Close()

	_, err := newTestInferenceClient(t, server.URL).Classify(context.Background(), []byte("x"))
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidImage, appErr.Code)
}

func TestInferenceClassifyEmptyPredictions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"predictions":[]}`))
	}))
	defer server.Close()

	_, err := newTestInferenceClient(t, server.URL).Classify(context.Background(), []byte("x"))
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalModelOutputInvalid, appErr.Code)
}

func TestInferencePredict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)

		var body struct {
			Sequence [][]float64 `json:"sequence"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Sequence, risk.SeriesLength)
		assert.Len(t, body.Sequence[0], risk.FeatureCount)
		assert.Equal(t, 0.5, body.Sequence[29][0])

		w.Write([]byte(`{"risk_scores":[0.1,0.2,0.3,0.9,0.5,0.2,0.1]}`))
	}))
	defer server.Close()

	vec, err := risk.BuildFeatures([]float64{0.5}, risk.DefaultWeather(fixedNow))
	require.NoError(t, err)

	scores, err := newTestInferenceClient(t, server.URL).Predict(context.Background(), vec)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.9, 0.5, 0.2, 0.1}, scores)
}

func TestInferencePredictUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestInferenceClient(t, server.URL).Predict(context.Background(), risk.FeatureVector{})
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamInference, appErr.Code)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInferencePredictMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	_, err := newTestInferenceClient(t, server.URL).Predict(context.Background(), risk.FeatureVector{})
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalModelOutputInvalid, appErr.Code)
}

func TestInferenceHealth(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := newTestInferenceClient(t, server.URL)
	assert.NoError(t, client.Health(context.Background()))

	healthy = false
	assert.Error(t, client.Health(context.Background()))
}
