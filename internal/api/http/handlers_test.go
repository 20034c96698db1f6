package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/terminal/terminaltest"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

type fixedCounter int

func (f fixedCounter) Connections() int { return int(f) }

func setupRouter(t *testing.T) (*gin.Engine, *terminal.Manager, *terminaltest.Driver) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager, driver := terminaltest.NewManager(terminal.DefaultConfig())

	router := gin.New()
	NewHandlers(manager, fixedCounter(2)).Register(router)
	return router, manager, driver
}

func create(t *testing.T, m *terminal.Manager, project string) *terminal.Info {
	t.Helper()
	info, err := m.CreateSession(terminal.CreateRequest{ProjectPath: project, TerminalType: terminal.TypeShell})
	require.NoError(t, err)
	return info
}

func do(t *testing.T, router *gin.Engine, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealth(t *testing.T) {
	router, manager, _ := setupRouter(t)
	create(t, manager, t.TempDir())

	w, body := do(t, router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 2, body["connections"])

	sessions := body["sessions"].(map[string]any)
	assert.EqualValues(t, 1, sessions["active"])
	assert.EqualValues(t, 5, sessions["max_sessions"])
}

func TestListSessionsByProject(t *testing.T) {
	router, manager, _ := setupRouter(t)
	a, b := t.TempDir(), t.TempDir()
	create(t, manager, a)
	create(t, manager, a)
	create(t, manager, b)

	_, body := do(t, router, http.MethodGet, "/sessions")
	assert.Len(t, body["sessions"], 3)

	_, body = do(t, router, http.MethodGet, "/sessions?project="+a)
	assert.Len(t, body["sessions"], 2)

	_, body = do(t, router, http.MethodGet, "/sessions?project=/nowhere")
	assert.Len(t, body["sessions"], 0)
}

func TestGetSessionAndBuffer(t *testing.T) {
	router, manager, driver := setupRouter(t)
	info := create(t, manager, t.TempDir())

	w, body := do(t, router, http.MethodGet, "/sessions/"+info.ID.String())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, info.ID.String(), body["id"])
	assert.Equal(t, "active", body["status"])
	assert.EqualValues(t, info.PID, body["pid"])
	assert.NotZero(t, info.PID)

	driver.Emit(driver.Last(), "$ ls\r\n")
	w, body = do(t, router, http.MethodGet, "/sessions/"+info.ID.String()+"/buffer")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "$ ls\r\n", body["buffer"])
}

func TestUnknownAndInvalidIDs(t *testing.T) {
	router, _, _ := setupRouter(t)
	missing := id.NewSessionID().String()

	w, _ := do(t, router, http.MethodGet, "/sessions/"+missing)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, router, http.MethodGet, "/sessions/"+missing+"/buffer")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, router, http.MethodDelete, "/sessions/"+missing)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := do(t, router, http.MethodGet, "/sessions/not-an-id")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "invalid session_id")
}

func TestCloseSession(t *testing.T) {
	router, manager, _ := setupRouter(t)
	info := create(t, manager, t.TempDir())

	w, body := do(t, router, http.MethodDelete, "/sessions/"+info.ID.String())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	_, ok := manager.Get(info.ID)
	assert.False(t, ok)
}
