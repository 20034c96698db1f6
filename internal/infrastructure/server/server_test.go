package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/protocol"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Sessions.DefaultShell = "/bin/sh"
	return cfg
}

func TestRoutes(t *testing.T) {
	srv, err := NewServer(testConfig(), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close(context.Background()) })

	for _, path := range []string{"/", "/health", "/sessions", "/metrics", "/debug/log-level"} {
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"), "REST responses carry a trace id")

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Empty(t, w.Header().Get("X-Trace-ID"))
}

func TestBadAgentConfig(t *testing.T) {
	cfg := testConfig()
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents: [unterminated"), 0o600))
	cfg.Sessions.AgentConfig = path

	_, err := NewServer(cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestShellSessionEndToEnd(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	srv, err := NewServer(testConfig(), logging.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Close(ctx)
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	send := func(msg protocol.Message) {
		data, err := protocol.Encode(msg)
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	}
	recv := func() protocol.Message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		msg, err := protocol.Decode(data)
		require.NoError(t, err)
		return msg
	}

	send(protocol.Message{
		Type:         protocol.TypeCreate,
		RequestID:    "req-e2e",
		ProjectPath:  t.TempDir(),
		TerminalType: protocol.TerminalShell,
	})
	created := recv()
	require.Equal(t, protocol.TypeCreated, created.Type, "got %+v", created)
	sid := created.SessionID

	send(protocol.Message{Type: protocol.TypeInput, SessionID: sid, Data: "echo termhub-$((40+2))\n"})

	var output strings.Builder
	for !strings.Contains(output.String(), "termhub-42") {
		msg := recv()
		if msg.Type == protocol.TypeData {
			output.WriteString(msg.Data)
		}
	}

	send(protocol.Message{Type: protocol.TypeClose, SessionID: sid})
	for {
		msg := recv()
		if msg.Type == protocol.TypeClosed {
			assert.Equal(t, sid, msg.SessionID)
			break
		}
	}
	assert.Empty(t, srv.Manager().List())
}
