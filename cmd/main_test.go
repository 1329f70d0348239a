package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/listing-service/internal/config"
	"jobmate/listing-service/internal/grpcserver"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreBackend:     config.BackendMemory,
		AnalyticsBackend: config.BackendMemory,
		EventsBackend:    config.BackendNone,
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestNewApp_MemoryBackends(t *testing.T) {
	a, err := newApp(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.pool)
	assert.Nil(t, a.rdb)
	assert.Empty(t, a.checks)
	require.NoError(t, a.Ping(context.Background()))

	res, err := a.engine.ProcessTransitions(context.Background(), a.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, res.MovedToDump)
}

func TestHealthHandler(t *testing.T) {
	a, err := newApp(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	healthHandler(a)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	a.checks = append(a.checks, grpcserver.Check(func(context.Context) error { return errors.New("down") }))
	rec = httptest.NewRecorder()
	healthHandler(a)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
