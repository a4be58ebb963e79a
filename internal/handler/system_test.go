package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboard/internal/metrics"
	"onboard/pkg/logger"
)

type fixedCount int

func (c fixedCount) Len() int { return int(c) }

func newSystemRouter(deps map[string]Pinger) *mux.Router {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.IncrementSessionStarted("create")

	r := mux.NewRouter()
	NewSystemHandler(deps, fixedCount(3), reg, logger.NewNop()).RegisterRoutes(r)
	return r
}

func TestSystemHandler_HealthAndMetrics(t *testing.T) {
	r := newSystemRouter(nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 3, body["sessions"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "onboard_sessions_started_total")
}

func TestSystemHandler_Ready(t *testing.T) {
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return fmt.Errorf("connection refused") })

	w := httptest.NewRecorder()
	newSystemRouter(map[string]Pinger{"postgres": up, "redis": up}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	newSystemRouter(map[string]Pinger{"postgres": up, "redis": down}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "down", body.Checks["redis"])
	assert.Equal(t, "up", body.Checks["postgres"])
}
