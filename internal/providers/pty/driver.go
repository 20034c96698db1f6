package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

const (
	readBufferSize = 32 * 1024

	// drainTimeout bounds how long exit waits for the reader when a
	// grandchild still holds the slave side open.
	drainTimeout = 2 * time.Second
)

// Driver manages PTY-backed processes
type Driver struct {
	mu       sync.RWMutex
	procs    map[id.ExecutionID]*process
	handlers Handlers
	logger   *zap.Logger
}

// NewDriver creates a new PTY driver
func NewDriver(logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		procs:  make(map[id.ExecutionID]*process),
		logger: logger,
	}
}

// SetHandlers installs the data and exit callbacks
func (d *Driver) SetHandlers(h Handlers) {
	d.mu.Lock()
	d.handlers = h
	d.mu.Unlock()
}

// Spawn starts a process under a new PTY
func (d *Driver) Spawn(opts SpawnOptions) (*Process, error) {
	if opts.ExecutionID == "" {
		return nil, errors.New("execution id is required")
	}
	if opts.Command == "" {
		return nil, errors.New("command is required")
	}

	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	for key, value := range opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	p := &process{
		id:          opts.ExecutionID,
		cmd:         cmd,
		ptmx:        ptmx,
		idleTimeout: opts.InactivityTimeout,
		readDone:    make(chan struct{}),
	}
	if p.idleTimeout > 0 {
		p.idle = time.AfterFunc(p.idleTimeout, func() {
			d.logger.Info("Killing idle process",
				zap.String("execution_id", p.id.String()),
				zap.Duration("idle_timeout", p.idleTimeout))
			d.Kill(p.id)
		})
	}

	d.mu.Lock()
	d.procs[p.id] = p
	d.mu.Unlock()

	go d.readOutput(p)
	go d.monitorProcess(p)

	return &Process{ExecutionID: p.id, PID: cmd.Process.Pid}, nil
}

// Write sends input to a process
func (d *Driver) Write(execID id.ExecutionID, data []byte) bool {
	p, ok := d.get(execID)
	if !ok {
		return false
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := p.ptmx.Write(data); err != nil {
		d.logger.Debug("PTY write failed", zap.String("execution_id", execID.String()), zap.Error(err))
		return false
	}
	p.touch()
	return true
}

// Resize changes the terminal geometry of a process
func (d *Driver) Resize(execID id.ExecutionID, cols, rows int) error {
	p, ok := d.get(execID)
	if !ok {
		return fmt.Errorf("execution not found: %s", execID)
	}
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("invalid geometry %dx%d", cols, rows)
	}

	return pty.Setsize(p.ptmx, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// Kill terminates a process. The exit callback still fires once it is reaped.
func (d *Driver) Kill(execID id.ExecutionID) bool {
	p, ok := d.get(execID)
	if !ok {
		return false
	}

	if p.cmd.Process != nil {
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			d.logger.Warn("Failed to kill process", zap.String("execution_id", execID.String()), zap.Error(err))
		}
	}
	return true
}

// Close kills every running process
func (d *Driver) Close() {
	d.mu.RLock()
	ids := make([]id.ExecutionID, 0, len(d.procs))
	for execID := range d.procs {
		ids = append(ids, execID)
	}
	d.mu.RUnlock()

	for _, execID := range ids {
		d.Kill(execID)
	}
}

// Running returns the number of live processes
func (d *Driver) Running() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.procs)
}

func (d *Driver) get(execID id.ExecutionID) (*process, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.procs[execID]
	return p, ok
}

func (d *Driver) currentHandlers() Handlers {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers
}

// readOutput continuously reads from the PTY and forwards complete UTF-8 chunks
func (d *Driver) readOutput(p *process) {
	defer close(p.readDone)

	buf := make([]byte, readBufferSize)
	var pending []byte
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			p.touch()
			pending = append(pending, buf[:n]...)
			complete, rest := splitUTF8Tail(pending)
			if len(complete) > 0 {
				d.emitData(p.id, string(complete))
			}
			pending = append(pending[:0], rest...)
		}
		if err != nil {
			if len(pending) > 0 {
				d.emitData(p.id, string(pending))
			}
			// Linux reports EIO once the slave side is gone
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
				d.logger.Debug("PTY read ended", zap.String("execution_id", p.id.String()), zap.Error(err))
			}
			return
		}
	}
}

// monitorProcess waits for the process to exit and cleans up
func (d *Driver) monitorProcess(p *process) {
	err := p.cmd.Wait()
	exitCode := exitCodeOf(err)

	select {
	case <-p.readDone:
	case <-time.After(drainTimeout):
	}

	if p.idle != nil {
		p.idle.Stop()
	}
	p.ptmx.Close()

	d.mu.Lock()
	delete(d.procs, p.id)
	d.mu.Unlock()

	d.emitExit(p.id, exitCode)
}

func (d *Driver) emitData(execID id.ExecutionID, chunk string) {
	h := d.currentHandlers()
	if h.OnData == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Data handler panicked", zap.String("execution_id", execID.String()), zap.Any("panic", r))
		}
	}()
	h.OnData(execID, chunk)
}

func (d *Driver) emitExit(execID id.ExecutionID, exitCode int) {
	h := d.currentHandlers()
	if h.OnExit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Exit handler panicked", zap.String("execution_id", execID.String()), zap.Any("panic", r))
		}
	}()
	h.OnExit(execID, exitCode)
}

// exitCodeOf maps a Wait error to a shell-style exit code
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return -1
}

// splitUTF8Tail separates a trailing incomplete UTF-8 sequence from b
func splitUTF8Tail(b []byte) (complete, rest []byte) {
	// A rune is at most 4 bytes, so only the last 3 can start a partial one
	for i := 1; i <= 3 && i <= len(b); i++ {
		c := b[len(b)-i]
		if !utf8.RuneStart(c) {
			continue
		}
		if utf8.FullRune(b[len(b)-i:]) {
			return b, nil
		}
		return b[:len(b)-i], b[len(b)-i:]
	}
	return b, nil
}
