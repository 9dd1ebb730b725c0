package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler echo.HandlerFunc) (int, Response) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, handler(e.NewContext(req, rec)))

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestLiveness(t *testing.T) {
	checker := NewChecker("test")
	code, body := serve(t, checker.LivenessHandler)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, body.Status)
}

func TestReadiness_NotReadyDuringStartup(t *testing.T) {
	checker := NewChecker("test")
	code, body := serve(t, checker.ReadinessHandler)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "startup")
}

func TestReadiness_ReportsFailingDependency(t *testing.T) {
	checker := NewChecker("test")
	checker.AddCheck("database", PingFunc(func(context.Context) error { return nil }))
	checker.AddCheck("redis", PingFunc(func(context.Context) error { return errors.New("connection refused") }))
	checker.SetReady(true)

	code, body := serve(t, checker.ReadinessHandler)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusHealthy, body.Checks["database"].Status)
	assert.Equal(t, StatusUnhealthy, body.Checks["redis"].Status)
	assert.Equal(t, "connection refused", body.Checks["redis"].Message)
}

func TestReadiness_Healthy(t *testing.T) {
	checker := NewChecker("test")
	checker.AddCheck("database", PingFunc(func(context.Context) error { return nil }))
	checker.AddCheck("redis", nil)
	checker.SetReady(true)

	code, body := serve(t, checker.ReadinessHandler)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, body.Status)
	assert.Len(t, body.Checks, 1)
}
