package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/protocol"
)

// Config tunes per-connection behavior
type Config struct {
	// SendQueue is the number of outbound messages buffered per connection.
	// A connection that falls this far behind is dropped.
	SendQueue       int
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	MaxMessageBytes int64
	// InputRate limits input messages per connection
	InputRate  rate.Limit
	InputBurst int
}

// DefaultConfig returns the stock connection settings
func DefaultConfig() Config {
	return Config{
		SendQueue:       1024,
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		MaxMessageBytes: 1 << 20,
		InputRate:       500,
		InputBurst:      1000,
	}
}

// Handler upgrades connections and routes orchestrator events to the
// connection that owns each session
type Handler struct {
	manager  *terminal.Manager
	cfg      Config
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*conn // Protected by mu

	unsubscribe func()
}

// NewHandler creates a handler and subscribes it to the manager's events
func NewHandler(manager *terminal.Manager, cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = def.SendQueue
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if cfg.InputRate <= 0 {
		cfg.InputRate, cfg.InputBurst = def.InputRate, def.InputBurst
	}

	h := &Handler{
		manager: manager,
		cfg:     cfg,
		logger:  logger,
		conns:   make(map[string]*conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in dev
			},
		},
	}
	h.unsubscribe = manager.Events().Subscribe(h.route)
	return h
}

// WithMetrics adds metrics tracking to the handler
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// Connections returns the number of open connections
func (h *Handler) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every client and stops routing
func (h *Handler) Close() {
	h.unsubscribe()

	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cn := &conn{
		id:      "conn_" + uuid.NewString(),
		ws:      ws,
		send:    make(chan []byte, h.cfg.SendQueue),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(h.cfg.InputRate, h.cfg.InputBurst),
		cfg:     h.cfg,
	}
	h.register(cn)
	defer h.unregister(cn)

	go cn.writePump(h.logger)

	ws.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("WebSocket read error", zap.String("conn_id", cn.id), zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		msg, err := protocol.Decode(data)
		if err != nil {
			h.send(cn, protocol.Error("", "", protocol.CodeBadRequest, err.Error()))
			continue
		}
		h.metrics.RecordWSMessage("in", msg.Type)
		h.dispatch(cn, msg)
	}
}

func (h *Handler) dispatch(c *conn, msg protocol.Message) {
	if err := msg.Validate(); err != nil {
		h.send(c, protocol.Error(msg.RequestID, msg.SessionID, protocol.CodeBadRequest, err.Error()))
		return
	}

	sid := id.SessionID(msg.SessionID)
	switch msg.Type {
	case protocol.TypeCreate:
		h.handleCreate(c, msg)

	case protocol.TypeInput:
		if !c.limiter.Allow() {
			h.send(c, protocol.Error("", msg.SessionID, protocol.CodeRateLimited, "input rate limit exceeded"))
			return
		}
		if !h.manager.SendInput(sid, msg.Data) {
			h.rejectState(c, sid, "input dropped")
		}

	case protocol.TypeResize:
		if !h.manager.ResizeSession(sid, msg.Cols, msg.Rows) {
			h.rejectState(c, sid, "resize failed")
		}

	case protocol.TypePause:
		owner, ok := h.manager.Pause(sid)
		if !ok {
			h.rejectState(c, sid, "session is not active")
			return
		}
		// The owner hears it through route; a controlling connection still
		// needs its acknowledgement
		if owner != c.id {
			h.send(c, protocol.Paused(msg.SessionID))
		}

	case protocol.TypeResume:
		// Resuming from a new connection reattaches the session to it
		if _, ok := h.manager.ResumeFor(sid, c.id); !ok {
			h.rejectState(c, sid, "session is not paused")
		}

	case protocol.TypeBufferRequest:
		ok := h.manager.Attach(sid, c.id, func(buffer string) {
			h.send(c, protocol.BufferResponse(msg.SessionID, buffer))
		})
		if !ok {
			h.send(c, protocol.Error("", msg.SessionID, protocol.CodeSessionNotFound, "session not found"))
		}

	case protocol.TypeClose:
		if !h.manager.CloseSession(sid) {
			h.send(c, protocol.Error("", msg.SessionID, protocol.CodeSessionNotFound, "session not found"))
		}

	case protocol.TypePing:
		h.send(c, protocol.Message{Type: protocol.TypePong, RequestID: msg.RequestID})
	}
}

func (h *Handler) handleCreate(c *conn, msg protocol.Message) {
	req := terminal.CreateRequest{
		ProjectPath:  msg.ProjectPath,
		TerminalType: terminal.TerminalType(msg.TerminalType),
		Cols:         msg.Cols,
		Rows:         msg.Rows,
		Owner:        c.id,
		RequestID:    msg.RequestID,
	}
	if msg.ModelConfig != nil {
		req.ModelConfig = &terminal.ModelConfig{Model: msg.ModelConfig.Model, Provider: msg.ModelConfig.Provider}
	}

	// On success the created event reaches this connection through route
	if _, err := h.manager.CreateSession(req); err != nil {
		h.logger.Info("Session create rejected",
			zap.String("conn_id", c.id),
			zap.String("request_id", msg.RequestID),
			zap.Error(err))
		h.send(c, protocol.Error(msg.RequestID, "", ErrorCode(err), err.Error()))
	}
}

// rejectState reports a no-op operation, distinguishing unknown sessions
func (h *Handler) rejectState(c *conn, sid id.SessionID, reason string) {
	info, ok := h.manager.Get(sid)
	if !ok {
		h.send(c, protocol.Error("", sid.String(), protocol.CodeSessionNotFound, "session not found"))
		return
	}
	h.send(c, protocol.Error("", sid.String(), protocol.CodeInvalidState, reason+" ("+string(info.Status)+")"))
}

// route runs on the publishing goroutine under the session lock; it only
// enqueues
func (h *Handler) route(ev terminal.Event) {
	if ev.Owner == "" {
		return
	}

	h.mu.RLock()
	c, ok := h.conns[ev.Owner]
	h.mu.RUnlock()
	if !ok {
		return
	}

	sid := ev.SessionID.String()
	switch ev.Kind {
	case terminal.EventCreated:
		h.send(c, protocol.Created(ev.RequestID, Summary(*ev.Info)))
	case terminal.EventData:
		h.send(c, protocol.Data(sid, ev.Data))
	case terminal.EventPaused:
		h.send(c, protocol.Paused(sid))
	case terminal.EventResumed:
		h.send(c, protocol.Resumed(sid, ev.Buffer))
	case terminal.EventClosed:
		h.send(c, protocol.Closed(sid, ev.ExitCode))
	}
}

func (h *Handler) send(c *conn, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		h.logger.Error("Failed to encode message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	if !c.enqueue(data) {
		h.logger.Warn("Connection too slow, dropping it",
			zap.String("conn_id", c.id),
			zap.Int("queue", h.cfg.SendQueue))
		c.close()
		return
	}
	h.metrics.RecordWSMessage("out", msg.Type)
}

func (h *Handler) register(c *conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	h.metrics.IncWSConnections()
	h.logger.Info("WebSocket connected", zap.String("conn_id", c.id))
}

// unregister detaches the connection. Its sessions keep running and can be
// reattached with buffer-request or resume.
func (h *Handler) unregister(c *conn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()

	c.close()
	released := h.manager.Release(c.id)
	h.metrics.DecWSConnections()
	h.logger.Info("WebSocket disconnected",
		zap.String("conn_id", c.id),
		zap.Int("detached_sessions", released))
}

// Summary converts session info to its wire form
func Summary(info terminal.Info) protocol.SessionSummary {
	out := protocol.SessionSummary{
		ID:           info.ID.String(),
		ProjectPath:  info.ProjectPath,
		TerminalType: string(info.TerminalType),
		Status:       string(info.Status),
		PID:          info.PID,
		CreatedAt:    info.CreatedAt,
	}
	if info.ModelConfig != nil {
		out.ModelConfig = &protocol.ModelConfig{Model: info.ModelConfig.Model, Provider: info.ModelConfig.Provider}
	}
	return out
}

// ErrorCode maps a create error to its wire code
func ErrorCode(err error) string {
	var spawnErr *terminal.SpawnError
	switch {
	case errors.Is(err, terminal.ErrMaxSessionsReached):
		return protocol.CodeMaxSessionsReached
	case errors.Is(err, terminal.ErrMissingModelConfig):
		return protocol.CodeMissingModelConfig
	case errors.Is(err, terminal.ErrInvalidProjectPath):
		return protocol.CodeInvalidProjectPath
	case errors.Is(err, terminal.ErrUnknownTerminalType), errors.Is(err, terminal.ErrUnknownProvider):
		return protocol.CodeBadRequest
	case errors.As(err, &spawnErr) && spawnErr.NotFound():
		return protocol.CodeCommandNotFound
	default:
		return protocol.CodeSpawnFailed
	}
}
