package terminal

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

// Status represents session lifecycle states
type Status string

const (
	StatusCreating Status = "creating"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusClosed   Status = "closed"
)

// TerminalType selects what a session runs
type TerminalType string

const (
	TypeShell TerminalType = "plain-shell"
	TypeAgent TerminalType = "agent-cli"
)

// Valid reports whether t is a known terminal type
func (t TerminalType) Valid() bool {
	return t == TypeShell || t == TypeAgent
}

// ModelConfig selects the model for an agent-cli session
type ModelConfig struct {
	Model    string `json:"model"`
	Provider string `json:"provider,omitempty"`
}

// CreateRequest carries everything needed to start a session
type CreateRequest struct {
	ProjectPath  string
	TerminalType TerminalType
	ModelConfig  *ModelConfig
	Cols         int
	Rows         int

	// Owner and RequestID are opaque to the orchestrator and echoed on events
	Owner     string
	RequestID string
}

// Session is one live terminal bound to one PTY process
type Session struct {
	ID           id.SessionID
	ProjectPath  string
	TerminalType TerminalType
	ModelConfig  *ModelConfig
	CreatedAt    time.Time

	mu           sync.Mutex
	status       Status
	owner        string
	execID       id.ExecutionID
	pid          int
	cols         int
	rows         int
	buffer       *LineBuffer
	pausedBuffer *LineBuffer
	exitCode     *int
	lastActivity time.Time
	pausedAt     *time.Time

	// overflowWarned suppresses repeat overflow logging for this session
	overflowWarned bool
}

// info snapshots the session; callers hold s.mu
func (s *Session) info() Info {
	out := Info{
		ID:            s.ID,
		ProjectPath:   s.ProjectPath,
		TerminalType:  s.TerminalType,
		Status:        s.status,
		PID:           s.pid,
		Cols:          s.cols,
		Rows:          s.rows,
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.lastActivity,
		BufferedLines: s.buffer.Len(),
		PausedLines:   s.pausedBuffer.Len(),
	}
	if s.ModelConfig != nil {
		mc := *s.ModelConfig
		out.ModelConfig = &mc
	}
	if s.exitCode != nil {
		code := *s.exitCode
		out.ExitCode = &code
	}
	if s.pausedAt != nil {
		at := *s.pausedAt
		out.PausedAt = &at
	}
	return out
}

// Info is the public representation of a session
type Info struct {
	ID            id.SessionID `json:"id"`
	ProjectPath   string       `json:"project_path"`
	TerminalType  TerminalType `json:"terminal_type"`
	Status        Status       `json:"status"`
	ModelConfig   *ModelConfig `json:"model_config,omitempty"`
	PID           int          `json:"pid,omitempty"`
	Cols          int          `json:"cols"`
	Rows          int          `json:"rows"`
	ExitCode      *int         `json:"exit_code,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	LastActivity  time.Time    `json:"last_activity"`
	PausedAt      *time.Time   `json:"paused_at,omitempty"`
	BufferedLines int          `json:"buffered_lines"`
	PausedLines   int          `json:"paused_lines"`
}

// Stats contains orchestrator statistics
type Stats struct {
	Total       int `json:"total"`
	Creating    int `json:"creating"`
	Active      int `json:"active"`
	Paused      int `json:"paused"`
	Closed      int `json:"closed"`
	MaxSessions int `json:"max_sessions"`
}

// Config tunes admission and buffering
type Config struct {
	MaxSessions        int
	BufferMaxLines     int
	BufferMaxBytes     int
	PausedBufferRatio  float64
	RemovalGrace       time.Duration
	ProcessIdleTimeout time.Duration
	AllowedRoots       []string
}

// DefaultConfig returns the stock limits
func DefaultConfig() Config {
	return Config{
		MaxSessions:       5,
		BufferMaxLines:    10000,
		BufferMaxBytes:    1024 * 1024,
		PausedBufferRatio: 0.5,
		RemovalGrace:      5 * time.Second,
	}
}

// pausedCaps derives the paused buffer caps from the live ones
func (c Config) pausedCaps() (lines, bytes int) {
	ratio := c.PausedBufferRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	lines = int(float64(c.BufferMaxLines) * ratio)
	bytes = int(float64(c.BufferMaxBytes) * ratio)
	if lines < 1 {
		lines = 1
	}
	if bytes < 1 {
		bytes = 1
	}
	return lines, bytes
}
