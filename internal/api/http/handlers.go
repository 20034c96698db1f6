package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

// Version is reported by the root endpoint
const Version = "0.3.0"

// ConnectionCounter reports open stream connections
type ConnectionCounter interface {
	Connections() int
}

// Handlers contains all HTTP handlers
type Handlers struct {
	manager *terminal.Manager
	streams ConnectionCounter
}

// NewHandlers creates a new handler set. streams may be nil.
func NewHandlers(manager *terminal.Manager, streams ConnectionCounter) *Handlers {
	return &Handlers{
		manager: manager,
		streams: streams,
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id", h.GetSession)
	r.GET("/sessions/:id/buffer", h.GetBuffer)
	r.DELETE("/sessions/:id", h.CloseSession)
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "termhub",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	connections := 0
	if h.streams != nil {
		connections = h.streams.Connections()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"sessions":    h.manager.Stats(),
		"connections": connections,
	})
}

// ListSessions lists sessions, optionally filtered by ?project=
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.manager.ListByProject(c.Query("project"))

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"stats":    h.manager.Stats(),
	})
}

// GetSession gets details of a specific session
func (h *Handlers) GetSession(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	info, found := h.manager.Get(sessionID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	c.JSON(http.StatusOK, info)
}

// GetBuffer returns the live output buffer of a session
func (h *Handlers) GetBuffer(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	buffer, found := h.manager.Buffer(sessionID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"buffer":     buffer,
	})
}

// CloseSession terminates a session
func (h *Handlers) CloseSession(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	if !h.manager.CloseSession(sessionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": sessionID,
	})
}

// sessionParam validates the :id path parameter
func sessionParam(c *gin.Context) (id.SessionID, bool) {
	raw := c.Param("id")
	if !id.IsValidPrefixed(raw, id.SessionPrefix) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id: " + raw})
		return "", false
	}
	return id.SessionID(raw), true
}
