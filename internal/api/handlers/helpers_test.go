package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"krishisat/internal/core"
	"krishisat/internal/districts"
	"krishisat/internal/risk"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCatalog() *districts.Catalog {
	return districts.NewCatalog([]districts.District{
		{ID: 1, Name: "Nashik", BBox: risk.BBox{73.6, 19.9, 74.2, 20.4}, Lat: 20.0, Lon: 73.8, Crop: "Wheat, Onion"},
		{ID: 2, Name: "Pune", BBox: risk.BBox{73.7, 18.4, 74.0, 18.7}, Lat: 18.5, Lon: 73.9, Crop: "Sugarcane"},
	})
}

// serve routes req through a router with the given registrar mounted, the
// way core.Server mounts /v1 registrars.
func serve(register func(chi.Router), req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage    `json:"data"`
	Meta  *core.ResponseMeta `json:"meta"`
	Error *core.ErrorDetail  `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}
