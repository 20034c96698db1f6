package pty

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

// SpawnOptions describes a process to start under a PTY
type SpawnOptions struct {
	ExecutionID id.ExecutionID
	Cwd         string
	Command     string
	Args        []string
	Cols        int
	Rows        int
	Env         map[string]string

	// InactivityTimeout kills the process after this long without input or
	// output. Zero disables the watchdog.
	InactivityTimeout time.Duration
}

// Process is returned by a successful spawn
type Process struct {
	ExecutionID id.ExecutionID
	PID         int
}

// Handlers receive asynchronous process events. Either may be nil.
type Handlers struct {
	OnData func(execID id.ExecutionID, chunk string)
	OnExit func(execID id.ExecutionID, exitCode int)
}

// process is one running child
type process struct {
	id   id.ExecutionID
	cmd  *exec.Cmd
	ptmx *os.File

	idleTimeout time.Duration
	idle        *time.Timer

	writeMu  sync.Mutex
	readDone chan struct{}
}

// touch re-arms the idle watchdog
func (p *process) touch() {
	if p.idle != nil {
		p.idle.Reset(p.idleTimeout)
	}
}
