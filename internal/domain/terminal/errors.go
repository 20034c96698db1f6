package terminal

import (
	"errors"
	"fmt"
	"os/exec"
)

// Admission errors are returned before any process is spawned
var (
	ErrMaxSessionsReached  = errors.New("maximum sessions reached, close one first")
	ErrMissingModelConfig  = errors.New("agent-cli sessions require modelConfig.model")
	ErrUnknownTerminalType = errors.New("unknown terminal type")
	ErrUnknownProvider     = errors.New("unknown agent provider")
	ErrInvalidProjectPath  = errors.New("invalid project path")
)

// SpawnError reports a process that could not be started. The session is
// rolled back before it is returned.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	if e.NotFound() {
		return fmt.Sprintf("%s: command not found in PATH", e.Command)
	}
	return fmt.Sprintf("failed to spawn %s: %v", e.Command, e.Err)
}

// NotFound reports whether the executable was missing from PATH
func (e *SpawnError) NotFound() bool {
	return errors.Is(e.Err, exec.ErrNotFound)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsAdmissionError reports whether err rejected a create without side effects
func IsAdmissionError(err error) bool {
	return errors.Is(err, ErrMaxSessionsReached) ||
		errors.Is(err, ErrMissingModelConfig) ||
		errors.Is(err, ErrUnknownTerminalType) ||
		errors.Is(err, ErrUnknownProvider) ||
		errors.Is(err, ErrInvalidProjectPath)
}
