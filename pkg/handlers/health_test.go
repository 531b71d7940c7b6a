package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/config"
)

func TestHealthHandler_Health(t *testing.T) {
	cfg := &config.Config{Version: "test-version", Env: "test"}
	handler := NewHealthHandler(cfg, &mockVersionProvider{version: "v1.2.1"}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "v1.2.1", response.DuckDBVersion)
	assert.Equal(t, "test-version", response.Version)
}

func TestHealthHandler_Health_EngineUnavailable(t *testing.T) {
	cfg := &config.Config{Version: "test-version"}
	handler := NewHealthHandler(cfg, &mockVersionProvider{err: errEngineDown}, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "engine_unavailable", body["error"])
}

func TestHealthHandler_Ping(t *testing.T) {
	cfg := &config.Config{Version: "1.0.0", Env: "production"}
	handler := NewHealthHandler(cfg, &mockVersionProvider{version: "v1.2.1"}, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Ping(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var response PingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "1.0.0", response.Version)
	assert.Equal(t, "ekaya-insights", response.Service)
	assert.Equal(t, "production", response.Environment)
	assert.NotEmpty(t, response.GoVersion)
}

func TestHealthHandler_RegisterRoutes(t *testing.T) {
	cfg := &config.Config{Version: "test-version"}
	handler := NewHealthHandler(cfg, &mockVersionProvider{version: "v1.2.1"}, zap.NewNop())

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	for _, path := range []string{"/health", "/api/health", "/ping"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
