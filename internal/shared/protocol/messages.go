package protocol

import (
	"fmt"
	"time"
)

// Request kinds
const (
	TypeCreate        = "create"
	TypeInput         = "input"
	TypeResize        = "resize"
	TypePause         = "pause"
	TypeResume        = "resume"
	TypeBufferRequest = "buffer-request"
	TypeClose         = "close"
	TypePing          = "ping"
)

// Response and event kinds
const (
	TypeCreated        = "created"
	TypeData           = "data"
	TypeClosed         = "closed"
	TypePaused         = "paused"
	TypeResumed        = "resumed"
	TypeError          = "error"
	TypeBufferResponse = "buffer-response"
	TypePong           = "pong"
)

// Terminal types
const (
	TerminalShell = "plain-shell"
	TerminalAgent = "agent-cli"
)

// Error codes carried by error messages
const (
	CodeMaxSessionsReached = "MAX_SESSIONS_REACHED"
	CodeMissingModelConfig = "MISSING_MODEL_CONFIG"
	CodeInvalidProjectPath = "INVALID_PROJECT_PATH"
	CodeCommandNotFound    = "COMMAND_NOT_FOUND"
	CodeSpawnFailed        = "SPAWN_FAILED"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeInvalidState       = "INVALID_STATE"
	CodeBadRequest         = "BAD_REQUEST"
	CodeRateLimited        = "RATE_LIMITED"
)

// ModelConfig selects the model an agent-cli session runs
type ModelConfig struct {
	Model    string `json:"model"`
	Provider string `json:"provider,omitempty"`
}

// SessionSummary is the public view of a session sent with created
type SessionSummary struct {
	ID           string       `json:"id"`
	ProjectPath  string       `json:"projectPath"`
	TerminalType string       `json:"terminalType"`
	Status       string       `json:"status"`
	ModelConfig  *ModelConfig `json:"modelConfig,omitempty"`
	PID          int          `json:"pid,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// Message is the single envelope for every frame on the wire
type Message struct {
	Type         string          `json:"type"`
	RequestID    string          `json:"requestId,omitempty"`
	SessionID    string          `json:"sessionId,omitempty"`
	ProjectPath  string          `json:"projectPath,omitempty"`
	TerminalType string          `json:"terminalType,omitempty"`
	ModelConfig  *ModelConfig    `json:"modelConfig,omitempty"`
	Cols         int             `json:"cols,omitempty"`
	Rows         int             `json:"rows,omitempty"`
	Data         string          `json:"data,omitempty"`
	Buffer       *string         `json:"buffer,omitempty"`
	ExitCode     *int            `json:"exitCode,omitempty"`
	Code         string          `json:"code,omitempty"`
	Message      string          `json:"message,omitempty"`
	Session      *SessionSummary `json:"session,omitempty"`
}

// Validate checks that a client request carries the fields its kind needs
func (m *Message) Validate() error {
	switch m.Type {
	case TypeCreate:
		if m.RequestID == "" {
			return fmt.Errorf("create: requestId is required")
		}
		if m.ProjectPath == "" {
			return fmt.Errorf("create: projectPath is required")
		}
		if m.TerminalType != TerminalShell && m.TerminalType != TerminalAgent {
			return fmt.Errorf("create: unknown terminalType %q", m.TerminalType)
		}
		if m.Cols < 0 || m.Rows < 0 {
			return fmt.Errorf("create: negative geometry")
		}
	case TypeInput, TypePause, TypeResume, TypeBufferRequest, TypeClose:
		if m.SessionID == "" {
			return fmt.Errorf("%s: sessionId is required", m.Type)
		}
	case TypeResize:
		if m.SessionID == "" {
			return fmt.Errorf("resize: sessionId is required")
		}
		if m.Cols <= 0 || m.Rows <= 0 {
			return fmt.Errorf("resize: cols and rows must be positive")
		}
	case TypePing:
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

// Created builds a created reply
func Created(requestID string, session SessionSummary) Message {
	return Message{Type: TypeCreated, RequestID: requestID, SessionID: session.ID, Session: &session}
}

// Data builds a data event
func Data(sessionID, chunk string) Message {
	return Message{Type: TypeData, SessionID: sessionID, Data: chunk}
}

// Closed builds a closed event
func Closed(sessionID string, exitCode *int) Message {
	return Message{Type: TypeClosed, SessionID: sessionID, ExitCode: exitCode}
}

// Paused builds a paused event
func Paused(sessionID string) Message {
	return Message{Type: TypePaused, SessionID: sessionID}
}

// Resumed builds a resumed event carrying the pause-accumulated output
func Resumed(sessionID, buffer string) Message {
	return Message{Type: TypeResumed, SessionID: sessionID, Buffer: &buffer}
}

// BufferResponse builds a buffer-response reply
func BufferResponse(sessionID, buffer string) Message {
	return Message{Type: TypeBufferResponse, SessionID: sessionID, Buffer: &buffer}
}

// Error builds an error reply
func Error(requestID, sessionID, code, message string) Message {
	return Message{Type: TypeError, RequestID: requestID, SessionID: sessionID, Code: code, Message: message}
}
