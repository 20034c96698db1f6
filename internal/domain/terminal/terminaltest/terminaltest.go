// Package terminaltest provides an in-memory PTY driver for tests of code
// built on the session orchestrator.
package terminaltest

import (
	"sync"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/providers/pty"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

// Driver records spawns and input and lets tests inject output and exits
type Driver struct {
	mu       sync.Mutex
	handlers pty.Handlers
	spawned  []pty.SpawnOptions
	written  map[id.ExecutionID]string
	killed   map[id.ExecutionID]bool
	nextPID  int

	// SpawnErr fails every subsequent spawn when set
	SpawnErr error
}

// NewDriver creates an empty driver
func NewDriver() *Driver {
	return &Driver{
		written: make(map[id.ExecutionID]string),
		killed:  make(map[id.ExecutionID]bool),
		nextPID: 1000,
	}
}

func (d *Driver) SetHandlers(h pty.Handlers) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = h
}

func (d *Driver) Spawn(opts pty.SpawnOptions) (*pty.Process, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SpawnErr != nil {
		return nil, d.SpawnErr
	}
	d.spawned = append(d.spawned, opts)
	d.nextPID++
	return &pty.Process{ExecutionID: opts.ExecutionID, PID: d.nextPID}, nil
}

func (d *Driver) Write(execID id.ExecutionID, data []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.killed[execID] {
		return false
	}
	d.written[execID] += string(data)
	return true
}

func (d *Driver) Resize(execID id.ExecutionID, cols, rows int) error { return nil }

// Kill marks the process dead. Like a real PTY, the exit arrives later; call
// Exit to deliver it.
func (d *Driver) Kill(execID id.ExecutionID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.killed[execID] = true
	return true
}

// Emit delivers output for execID
func (d *Driver) Emit(execID id.ExecutionID, chunk string) {
	d.current().OnData(execID, chunk)
}

// Exit delivers a process exit for execID
func (d *Driver) Exit(execID id.ExecutionID, code int) {
	d.current().OnExit(execID, code)
}

// Last returns the most recently spawned execution
func (d *Driver) Last() id.ExecutionID {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.spawned) == 0 {
		return ""
	}
	return d.spawned[len(d.spawned)-1].ExecutionID
}

// Spawned returns a copy of every spawn request
func (d *Driver) Spawned() []pty.SpawnOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]pty.SpawnOptions(nil), d.spawned...)
}

// Input returns everything written to execID
func (d *Driver) Input(execID id.ExecutionID) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written[execID]
}

// Killed reports whether execID was killed
func (d *Driver) Killed(execID id.ExecutionID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.killed[execID]
}

func (d *Driver) current() pty.Handlers {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handlers
}

// Resolver resolves every shell to /bin/sh and every agent with a model to
// /usr/bin/agent
type Resolver struct{}

func (Resolver) Resolve(t terminal.TerminalType, mc *terminal.ModelConfig) (terminal.Command, error) {
	if t == terminal.TypeAgent {
		if mc == nil || mc.Model == "" {
			return terminal.Command{}, terminal.ErrMissingModelConfig
		}
		return terminal.Command{Path: "/usr/bin/agent", Args: []string{"--model", mc.Model}}, nil
	}
	return terminal.Command{Path: "/bin/sh"}, nil
}

// NewManager wires a manager to a fresh Driver
func NewManager(cfg terminal.Config) (*terminal.Manager, *Driver) {
	driver := NewDriver()
	return terminal.NewManager(driver, Resolver{}, cfg, nil), driver
}
