package terminal

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/providers/pty"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

// Driver is the PTY facility the orchestrator spawns processes through
type Driver interface {
	SetHandlers(h pty.Handlers)
	Spawn(opts pty.SpawnOptions) (*pty.Process, error)
	Write(execID id.ExecutionID, data []byte) bool
	Resize(execID id.ExecutionID, cols, rows int) error
	Kill(execID id.ExecutionID) bool
}

// Resolver turns a terminal type and model config into an executable
type Resolver interface {
	Resolve(t TerminalType, mc *ModelConfig) (Command, error)
}

// Manager orchestrates session lifecycle.
//
// Lock order: m.mu before s.mu. Nothing acquires m.mu while holding a
// session lock.
type Manager struct {
	mu         sync.RWMutex
	sessions   map[id.SessionID]*Session      // Protected by mu
	executions map[id.ExecutionID]*Session    // Protected by mu
	live       int                            // Slots held by non-closed sessions; protected by mu

	driver   Driver
	resolver Resolver
	cfg      Config
	bus      *Bus
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	now       func() time.Time
	afterFunc func(time.Duration, func())
}

// NewManager creates a session orchestrator and subscribes it to the driver
func NewManager(driver Driver, resolver Resolver, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultConfig().MaxSessions
	}
	if cfg.BufferMaxLines <= 0 {
		cfg.BufferMaxLines = DefaultConfig().BufferMaxLines
	}
	if cfg.BufferMaxBytes <= 0 {
		cfg.BufferMaxBytes = DefaultConfig().BufferMaxBytes
	}

	m := &Manager{
		sessions:   make(map[id.SessionID]*Session),
		executions: make(map[id.ExecutionID]*Session),
		driver:     driver,
		resolver:   resolver,
		cfg:        cfg,
		bus:        NewBus(logger),
		logger:     logger,
		now:        time.Now,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}

	driver.SetHandlers(pty.Handlers{
		OnData: m.handleData,
		OnExit: m.handleExit,
	})

	return m
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Events returns the bus lifecycle events are published on
func (m *Manager) Events() *Bus {
	return m.bus
}

// Config returns the effective configuration
func (m *Manager) Config() Config {
	return m.cfg
}

// CreateSession admits, registers and spawns a new session
func (m *Manager) CreateSession(req CreateRequest) (*Info, error) {
	if !req.TerminalType.Valid() {
		m.metrics.IncAdmissionRejection("terminal_type")
		return nil, fmt.Errorf("%w: %q", ErrUnknownTerminalType, req.TerminalType)
	}
	if req.TerminalType == TypeAgent && (req.ModelConfig == nil || req.ModelConfig.Model == "") {
		m.metrics.IncAdmissionRejection("model_config")
		return nil, ErrMissingModelConfig
	}

	projectPath, err := ValidateProjectPath(req.ProjectPath, m.cfg.AllowedRoots)
	if err != nil {
		m.metrics.IncAdmissionRejection("project_path")
		return nil, err
	}

	cmd, err := m.resolver.Resolve(req.TerminalType, req.ModelConfig)
	if err != nil {
		if IsAdmissionError(err) {
			m.metrics.IncAdmissionRejection("resolve")
		}
		return nil, err
	}

	cols, rows := req.Cols, req.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	now := m.now()
	pausedLines, pausedBytes := m.cfg.pausedCaps()
	s := &Session{
		ID:           id.NewSessionID(),
		ProjectPath:  projectPath,
		TerminalType: req.TerminalType,
		CreatedAt:    now,
		status:       StatusCreating,
		owner:        req.Owner,
		execID:       id.NewExecutionID(),
		cols:         cols,
		rows:         rows,
		buffer:       NewLineBuffer(m.cfg.BufferMaxLines, m.cfg.BufferMaxBytes),
		pausedBuffer: NewLineBuffer(pausedLines, pausedBytes),
		lastActivity: now,
	}
	if req.ModelConfig != nil {
		mc := *req.ModelConfig
		s.ModelConfig = &mc
	}

	// Check-and-register in one step so concurrent creates cannot both pass
	m.mu.Lock()
	if m.live >= m.cfg.MaxSessions {
		m.mu.Unlock()
		m.metrics.IncAdmissionRejection("max_sessions")
		return nil, ErrMaxSessionsReached
	}
	s.mu.Lock()
	m.sessions[s.ID] = s
	m.executions[s.execID] = s
	m.live++
	m.mu.Unlock()

	// Output that races the spawn waits on s.mu, so created is always
	// published before the first data event.
	proc, err := m.driver.Spawn(pty.SpawnOptions{
		ExecutionID:       s.execID,
		Cwd:               projectPath,
		Command:           cmd.Path,
		Args:              cmd.Args,
		Cols:              cols,
		Rows:              rows,
		Env:               cmd.Env,
		InactivityTimeout: m.cfg.ProcessIdleTimeout,
	})
	if err != nil {
		s.status = StatusClosed
		s.mu.Unlock()
		m.mu.Lock()
		delete(m.executions, s.execID)
		m.live--
		m.mu.Unlock()
		m.remove(s)

		m.logger.Warn("Failed to spawn session process",
			zap.String("session_id", s.ID.String()),
			zap.String("command", cmd.Path),
			zap.Error(err))
		return nil, &SpawnError{Command: cmd.Path, Err: err}
	}

	s.pid = proc.PID
	s.status = StatusActive
	info := s.info()
	m.bus.Publish(Event{
		Kind:      EventCreated,
		SessionID: s.ID,
		Owner:     s.owner,
		RequestID: req.RequestID,
		Info:      &info,
	})
	s.mu.Unlock()

	m.metrics.IncSessionsCreated(string(req.TerminalType))
	m.publishCounts()
	m.logger.Info("Session created",
		zap.String("session_id", s.ID.String()),
		zap.String("project_path", projectPath),
		zap.String("terminal_type", string(req.TerminalType)),
		zap.Int("pid", proc.PID))

	return &info, nil
}

// CloseSession kills the process and removes the session
func (m *Manager) CloseSession(sessionID id.SessionID) bool {
	s, ok := m.lookup(sessionID)
	if !ok {
		return false
	}

	s.mu.Lock()
	if s.status == StatusClosed {
		// Already exited; the removal grace timer owns cleanup
		s.mu.Unlock()
		return false
	}
	m.driver.Kill(s.execID)
	s.status = StatusClosed
	m.bus.Publish(Event{
		Kind:      EventClosed,
		SessionID: s.ID,
		Owner:     s.owner,
		ExitCode:  copyInt(s.exitCode),
	})
	s.mu.Unlock()

	m.releaseSlot()
	m.remove(s)
	m.metrics.IncSessionsClosed()
	m.publishCounts()
	m.logger.Info("Session closed", zap.String("session_id", sessionID.String()))
	return true
}

// PauseSession stops live forwarding; output accumulates in the paused buffer
func (m *Manager) PauseSession(sessionID id.SessionID) bool {
	_, ok := m.Pause(sessionID)
	return ok
}

// Pause is PauseSession that also reports the owner the paused event was
// published to, so a requester that is not the owner can be answered.
func (m *Manager) Pause(sessionID id.SessionID) (owner string, ok bool) {
	s, found := m.lookup(sessionID)
	if !found {
		m.logger.Warn("Pause requested for unknown session", zap.String("session_id", sessionID.String()))
		return "", false
	}

	s.mu.Lock()
	if s.status != StatusActive {
		status := s.status
		s.mu.Unlock()
		m.logger.Warn("Ignoring pause",
			zap.String("session_id", sessionID.String()),
			zap.String("status", string(status)))
		return "", false
	}
	now := m.now()
	s.status = StatusPaused
	s.pausedAt = &now
	owner = s.owner
	m.bus.Publish(Event{Kind: EventPaused, SessionID: s.ID, Owner: owner})
	s.mu.Unlock()

	m.publishCounts()
	m.logger.Info("Session paused", zap.String("session_id", sessionID.String()))
	return owner, true
}

// ResumeSession reactivates a paused session and returns the output produced
// while it was paused. The resumed event is published before any later data
// event for the session.
func (m *Manager) ResumeSession(sessionID id.SessionID) (string, bool) {
	return m.resume(sessionID, nil)
}

// ResumeFor resumes the session and reattaches it to owner in the same
// critical section. A session that is not paused keeps its current owner.
func (m *Manager) ResumeFor(sessionID id.SessionID, owner string) (string, bool) {
	return m.resume(sessionID, &owner)
}

func (m *Manager) resume(sessionID id.SessionID, owner *string) (string, bool) {
	s, ok := m.lookup(sessionID)
	if !ok {
		return "", false
	}

	s.mu.Lock()
	if s.status != StatusPaused {
		s.mu.Unlock()
		return "", false
	}
	if owner != nil {
		s.owner = *owner
	}
	s.status = StatusActive
	s.pausedAt = nil
	missed := s.pausedBuffer.String()
	s.pausedBuffer.Reset()
	// Keep the reconnect view complete
	m.appendOutput(s, s.buffer, "live", missed)
	m.bus.Publish(Event{Kind: EventResumed, SessionID: s.ID, Owner: s.owner, Buffer: missed})
	s.mu.Unlock()

	m.publishCounts()
	m.logger.Info("Session resumed",
		zap.String("session_id", sessionID.String()),
		zap.Int("replayed_bytes", len(missed)))
	return missed, true
}

// SendInput forwards input to an active session. Input for any other state
// is dropped, never queued.
func (m *Manager) SendInput(sessionID id.SessionID, data string) bool {
	s, ok := m.lookup(sessionID)
	if !ok {
		return false
	}

	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		return false
	}
	execID := s.execID
	s.lastActivity = m.now()
	s.mu.Unlock()

	// Written outside the session lock: a process blocked on a full output
	// pipe must still have its output routed.
	return m.driver.Write(execID, []byte(data))
}

// ResizeSession changes the terminal geometry of a non-closed session
func (m *Manager) ResizeSession(sessionID id.SessionID, cols, rows int) (ok bool) {
	s, found := m.lookup(sessionID)
	if !found {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusClosed || cols <= 0 || rows <= 0 {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Resize panicked", zap.String("session_id", sessionID.String()), zap.Any("panic", r))
			ok = false
		}
	}()

	if err := m.driver.Resize(s.execID, cols, rows); err != nil {
		m.logger.Debug("Resize failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		return false
	}
	s.cols, s.rows = cols, rows
	return true
}

// Buffer returns the retained live output used to rebuild a fresh view
func (m *Manager) Buffer(sessionID id.SessionID) (string, bool) {
	s, ok := m.lookup(sessionID)
	if !ok {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.String(), true
}

// Rebind makes owner the recipient of the session's future events
func (m *Manager) Rebind(sessionID id.SessionID, owner string) bool {
	s, ok := m.lookup(sessionID)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusClosed {
		return false
	}
	s.owner = owner
	return true
}

// Attach rebinds the session to owner and hands deliver the live buffer in
// the same critical section, so no data event can slip between the snapshot
// and the rebind. deliver must not block or call back into the Manager.
func (m *Manager) Attach(sessionID id.SessionID, owner string, deliver func(buffer string)) bool {
	s, ok := m.lookup(sessionID)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusClosed {
		s.owner = owner
	}
	deliver(s.buffer.String())
	return true
}

// Release clears ownership of every session held by owner
func (m *Manager) Release(owner string) int {
	released := 0
	for _, s := range m.snapshot() {
		s.mu.Lock()
		if s.owner == owner {
			s.owner = ""
			released++
		}
		s.mu.Unlock()
	}
	return released
}

// Get retrieves session info
func (m *Manager) Get(sessionID id.SessionID) (*Info, bool) {
	s, ok := m.lookup(sessionID)
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.info()
	return &info, true
}

// List returns every session in the live map, oldest first
func (m *Manager) List() []Info {
	return m.ListByProject("")
}

// ListByProject returns the sessions for one project, or all when empty
func (m *Manager) ListByProject(projectPath string) []Info {
	sessions := m.snapshot()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		if projectPath != "" && s.ProjectPath != projectPath {
			continue
		}
		s.mu.Lock()
		out = append(out, s.info())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns orchestrator statistics
func (m *Manager) Stats() Stats {
	stats := Stats{MaxSessions: m.cfg.MaxSessions}
	for _, s := range m.snapshot() {
		s.mu.Lock()
		status := s.status
		s.mu.Unlock()

		stats.Total++
		switch status {
		case StatusCreating:
			stats.Creating++
		case StatusActive:
			stats.Active++
		case StatusPaused:
			stats.Paused++
		case StatusClosed:
			stats.Closed++
		}
	}
	return stats
}

// Shutdown closes every session
func (m *Manager) Shutdown() {
	for _, s := range m.snapshot() {
		m.CloseSession(s.ID)
	}
}

// handleData routes a chunk from the driver to its session
func (m *Manager) handleData(execID id.ExecutionID, chunk string) {
	s, ok := m.lookupExecution(execID)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusClosed:
		return
	case StatusPaused:
		m.appendOutput(s, s.pausedBuffer, "paused", chunk)
	default:
		m.appendOutput(s, s.buffer, "live", chunk)
		m.bus.Publish(Event{Kind: EventData, SessionID: s.ID, Owner: s.owner, Data: chunk})
	}
}

// handleExit records the exit code and closes the session. Removal is
// deferred so late status queries see the final state instead of a hole.
func (m *Manager) handleExit(execID id.ExecutionID, exitCode int) {
	s, ok := m.lookupExecution(execID)
	if !ok {
		return
	}

	m.mu.Lock()
	delete(m.executions, execID)
	m.mu.Unlock()

	s.mu.Lock()
	code := exitCode
	s.exitCode = &code
	if s.status == StatusClosed {
		s.mu.Unlock()
		return
	}
	s.status = StatusClosed
	m.bus.Publish(Event{Kind: EventClosed, SessionID: s.ID, Owner: s.owner, ExitCode: copyInt(&code)})
	s.mu.Unlock()

	m.releaseSlot()
	m.metrics.IncSessionsClosed()
	m.publishCounts()
	m.logger.Info("Session process exited",
		zap.String("session_id", s.ID.String()),
		zap.Int("exit_code", exitCode))

	m.afterFunc(m.cfg.RemovalGrace, func() { m.remove(s) })
}

// appendOutput buffers a chunk, warning about overflow once per session;
// callers hold s.mu
func (m *Manager) appendOutput(s *Session, buf *LineBuffer, name, chunk string) {
	if !buf.Append(chunk) {
		return
	}
	m.metrics.IncBufferOverflow(name)
	if !s.overflowWarned {
		s.overflowWarned = true
		m.logger.Warn("Session output buffer overflow, dropping oldest lines",
			zap.String("session_id", s.ID.String()),
			zap.String("buffer", name),
			zap.Int("lines", buf.Len()),
			zap.Int("bytes", buf.Size()))
	}
}

func (m *Manager) lookup(sessionID id.SessionID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

func (m *Manager) lookupExecution(execID id.ExecutionID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.executions[execID]
	return s, ok
}

// remove drops a session from the live map. The execution handle stays
// mapped until the driver reports exit so the exit code is still recorded.
func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.ID]; ok && cur == s {
		delete(m.sessions, s.ID)
	}
	m.mu.Unlock()

	m.publishCounts()
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// releaseSlot frees the slot of a session that just transitioned to closed.
// Each session transitions once, so each slot is released once.
func (m *Manager) releaseSlot() {
	m.mu.Lock()
	m.live--
	m.mu.Unlock()
}

func (m *Manager) publishCounts() {
	if m.metrics == nil {
		return
	}
	stats := m.Stats()
	m.metrics.SetSessionCounts(stats.Creating, stats.Active, stats.Paused)
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
