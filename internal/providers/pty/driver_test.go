package pty

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

type recorder struct {
	mu     sync.Mutex
	output strings.Builder
	exits  map[id.ExecutionID]int
}

func newRecorder() *recorder {
	return &recorder{exits: make(map[id.ExecutionID]int)}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnData: func(_ id.ExecutionID, chunk string) {
			r.mu.Lock()
			r.output.WriteString(chunk)
			r.mu.Unlock()
		},
		OnExit: func(execID id.ExecutionID, code int) {
			r.mu.Lock()
			r.exits[execID] = code
			r.mu.Unlock()
		},
	}
}

func (r *recorder) exitCode(execID id.ExecutionID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.exits[execID]
	return code, ok
}

func (r *recorder) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output.String()
}

func TestSpawnDeliversOutputBeforeExit(t *testing.T) {
	d := NewDriver(nil)
	rec := newRecorder()
	d.SetHandlers(rec.handlers())

	execID := id.NewExecutionID()
	proc, err := d.Spawn(SpawnOptions{
		ExecutionID: execID,
		Command:     "/bin/sh",
		Args:        []string{"-c", "echo hello-pty; exit 3"},
		Cwd:         t.TempDir(),
	})
	require.NoError(t, err)
	assert.Greater(t, proc.PID, 0)

	require.Eventually(t, func() bool {
		_, ok := rec.exitCode(execID)
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	code, _ := rec.exitCode(execID)
	assert.Equal(t, 3, code)
	assert.Contains(t, rec.text(), "hello-pty")
	assert.Equal(t, 0, d.Running())
}

func TestWriteAndKill(t *testing.T) {
	d := NewDriver(nil)
	rec := newRecorder()
	d.SetHandlers(rec.handlers())

	execID := id.NewExecutionID()
	_, err := d.Spawn(SpawnOptions{ExecutionID: execID, Command: "/bin/cat", Cols: 100, Rows: 30})
	require.NoError(t, err)

	assert.True(t, d.Write(execID, []byte("ping\n")))
	require.Eventually(t, func() bool {
		return strings.Contains(rec.text(), "ping")
	}, 5*time.Second, 10*time.Millisecond)

	assert.NoError(t, d.Resize(execID, 120, 40))
	assert.Error(t, d.Resize(execID, 0, 40))

	assert.True(t, d.Kill(execID))
	require.Eventually(t, func() bool {
		_, ok := rec.exitCode(execID)
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	assert.False(t, d.Write(execID, []byte("late\n")))
	assert.False(t, d.Kill(execID))
	assert.Error(t, d.Resize(execID, 80, 24))
}

func TestSpawnMissingCommand(t *testing.T) {
	d := NewDriver(nil)

	_, err := d.Spawn(SpawnOptions{ExecutionID: id.NewExecutionID(), Command: "definitely-not-a-real-binary-xyz"})
	assert.Error(t, err)
	assert.Equal(t, 0, d.Running())

	_, err = d.Spawn(SpawnOptions{Command: "/bin/sh"})
	assert.Error(t, err)
}

func TestIdleWatchdogKillsProcess(t *testing.T) {
	d := NewDriver(nil)
	rec := newRecorder()
	d.SetHandlers(rec.handlers())

	execID := id.NewExecutionID()
	_, err := d.Spawn(SpawnOptions{
		ExecutionID:       execID,
		Command:           "/bin/cat",
		InactivityTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := rec.exitCode(execID)
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSplitUTF8Tail(t *testing.T) {
	euro := []byte("€") // 3 bytes

	complete, rest := splitUTF8Tail([]byte("abc"))
	assert.Equal(t, "abc", string(complete))
	assert.Empty(t, rest)

	partial := append([]byte("ab"), euro[:2]...)
	complete, rest = splitUTF8Tail(partial)
	assert.Equal(t, "ab", string(complete))
	assert.Equal(t, euro[:2], rest)

	whole := append([]byte("ab"), euro...)
	complete, rest = splitUTF8Tail(whole)
	assert.Equal(t, "ab€", string(complete))
	assert.Empty(t, rest)
}

func TestExitCodeOf(t *testing.T) {
	assert.Equal(t, 0, exitCodeOf(nil))
	assert.Equal(t, -1, exitCodeOf(assert.AnError))
}
