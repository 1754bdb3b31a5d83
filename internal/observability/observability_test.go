package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/authgate/internal/config"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/gates/:bridge", "GET", 200, time.Millisecond)
	m.RecordRequest("/gates/:bridge", "GET", 200, time.Millisecond)
	m.RecordError("/auth/users/login", "POST", "UNAUTHORIZED")
	m.RecordTokenCheck("auth", "expired")
	m.RecordCrossing("beta", true)
	m.RecordCrossing("beta", false)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/gates/:bridge|GET|200"])
	assert.Equal(t, int64(1), snap.Errors["/auth/users/login|POST|UNAUTHORIZED"])
	assert.Equal(t, int64(1), snap.TokenChecks["auth|expired"])
	assert.Equal(t, int64(1), snap.Crossings["beta|true"])
	assert.Equal(t, int64(1), snap.Crossings["beta|false"])
	assert.Equal(t, int64(2000), snap.LatencyMicros["/gates/:bridge|GET|200"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordTokenCheck("auth", "ok")
	assert.Empty(t, m.Snapshot().Requests)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	metrics := NewMetrics()

	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), metrics))
	app.Get("/gates/:bridge", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/gates/beta", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "request", entry.Message)
	assert.Equal(t, "/gates/beta", entry.ContextMap()["path"])
	assert.Equal(t, int64(1), metrics.Snapshot().Requests["/gates/:bridge|GET|204"])
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "debug"}, config.AppConfig{Name: "authgate", Env: "test"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = NewLogger(config.LoggerConfig{Level: "bogus"}, config.AppConfig{})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}
