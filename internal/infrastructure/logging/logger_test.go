package logging

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "verbose"})
	assert.Error(t, err)
}

func TestComponentLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := New(Config{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Component(Orchestrator).Info("Session created", zap.String("session_id", "term_x"))
	logger.Component(Orchestrator).Debug("hidden")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"component":"orchestrator"`)
	assert.Contains(t, out, `"session_id":"term_x"`)
	assert.NotContains(t, out, "hidden")
}

func TestSetLevel(t *testing.T) {
	logger, err := New(Config{Level: "warn", OutputPaths: []string{filepath.Join(t.TempDir(), "out.log")}})
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, logger.Level())

	require.NoError(t, logger.SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, logger.Level())
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, logger.SetLevel("loud"))
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	assert.NotPanics(t, func() {
		logger.Component(Policy).Warn("store unavailable")
	})
}

func TestServerConfig(t *testing.T) {
	assert.Equal(t, "info", ServerConfig("", false).Level)

	cfg := ServerConfig("debug", true)
	assert.True(t, cfg.Development)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.Equal(t, []string{"stderr"}, CLIConfig("warn").OutputPaths)
}

func TestLevelHandler(t *testing.T) {
	logger, err := New(Config{Level: "info", OutputPaths: []string{filepath.Join(t.TempDir(), "out.log")}})
	require.NoError(t, err)
	h := logger.LevelHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/debug/log-level", strings.NewReader(`{"level":"error"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, zapcore.ErrorLevel, logger.Level())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/log-level", nil))
	assert.JSONEq(t, `{"level":"error"}`, w.Body.String())
}
