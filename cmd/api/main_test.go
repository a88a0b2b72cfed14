package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"krishisat/internal/config"
	"krishisat/internal/core"
)

// buildTestServer wires the server with no optional infrastructure and the
// model server pointed at inferenceURL.
func buildTestServer(t *testing.T, inferenceURL string) *core.Server {
	t.Helper()
	setTestEnv(t)
	t.Setenv("INFERENCE_BASE_URL", inferenceURL)

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv, err := buildServer(cfg, logger, &infra{})
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	return srv
}

func fakeModelServer(t *testing.T, healthy bool) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			if !healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/v1/forecast":
			_, _ = w.Write([]byte(`{"risk_scores":[0.1,0.2,0.3,0.9,0.5,0.2,0.1]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	srv := buildTestServer(t, fakeModelServer(t, true).URL)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health: got status %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("GET /health: got status=%v, want 'healthy'", resp["status"])
	}
}

func TestHealthEndpoint_ModelServerDown(t *testing.T) {
	srv := buildTestServer(t, fakeModelServer(t, false).URL)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health: got status %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestDistrictsEndpoint(t *testing.T) {
	srv := buildTestServer(t, fakeModelServer(t, true).URL)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/districts/2/risk", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d; body: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "No forecast available yet") {
		t.Errorf("expected no-forecast message without a database, got %s", rec.Body.String())
	}
}

// TestScanHistoryRequiresDatabase checks the scan routes stay unmounted when
// scans are not persisted.
func TestScanHistoryRequiresDatabase(t *testing.T) {
	srv := buildTestServer(t, fakeModelServer(t, true).URL)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/scans/history", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d; body: %s", rec.Code, rec.Body.String())
	}
}

// TestForecastEndpoint runs a manual forecast through the wired service
// against the fake model server.
func TestForecastEndpoint(t *testing.T) {
	srv := buildTestServer(t, fakeModelServer(t, true).URL)

	body := `{"ndvi_series":[0.6,0.6,0.6,0.6,0.6,0.6,0.6]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/predict/forecast", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			PeakRiskDay  int    `json:"peak_risk_day"`
			MaxRiskLevel string `json:"max_risk_level"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Data.PeakRiskDay != 4 || resp.Data.MaxRiskLevel != "HIGH" {
		t.Errorf("unexpected forecast: %+v", resp.Data)
	}
}

// TestNewLogger verifies that the logger factory handles various log levels.
func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		t.Run(level, func(t *testing.T) {
			if newLogger(level) == nil {
				t.Fatalf("newLogger(%q) returned nil", level)
			}
		})
	}
}

// setTestEnv sets the minimal environment for a local config with every
// optional integration disabled.
func setTestEnv(t *testing.T) {
	t.Helper()

	t.Setenv("APP_ENV", "local")
	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("SENTINEL_CLIENT_ID", "")
	t.Setenv("SENTINEL_CLIENT_SECRET", "")
	t.Setenv("OPENWEATHER_API_KEY", "")
	t.Setenv("SQS_RISK_ALERTS", "")
	t.Setenv("ENABLE_METRICS", "false")
	t.Setenv("INFERENCE_MAX_RETRIES", "0")
}
